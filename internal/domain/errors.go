package domain

import "errors"

var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrValidation         = errors.New("validation failed")
	ErrUploadConflict     = errors.New("file already exists in parcel")
	ErrChunksIncomplete   = errors.New("uploaded chunks incomplete")
	ErrUploadBusy         = errors.New("upload lease busy")
	ErrDeletionDisabled   = errors.New("parcel deletion is disabled")
	ErrStorageFatal       = errors.New("unrecoverable storage condition")
)
