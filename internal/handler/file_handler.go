package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gioland/internal/domain"
	"gioland/internal/service"
)

// FileHandler handles parcel file uploads and downloads.
type FileHandler struct {
	uploadService service.UploadService
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(uploadService service.UploadService) *FileHandler {
	return &FileHandler{uploadService: uploadService}
}

// Upload handles POST /api/v1/parcel/:name/files
func (h *FileHandler) Upload(c *gin.Context) {
	username, ok := requireUsername(c)
	if !ok {
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "missing file field")
		return
	}
	defer file.Close()

	err = h.uploadService.SaveFile(c.Request.Context(), username, c.Param("name"), header.Filename, file)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondCreated(c, gin.H{"filename": header.Filename})
}

// Download handles GET /api/v1/parcel/:name/files/:filename
func (h *FileHandler) Download(c *gin.Context) {
	path, err := h.uploadService.FilePath(c.Request.Context(), c.Param("name"), c.Param("filename"))
	if err != nil {
		HandleError(c, err)
		return
	}
	c.FileAttachment(path, c.Param("filename"))
}

// Delete handles DELETE /api/v1/parcel/:name/files/:filename
func (h *FileHandler) Delete(c *gin.Context) {
	username, ok := requireUsername(c)
	if !ok {
		return
	}
	err := h.uploadService.DeleteFile(c.Request.Context(), username, c.Param("name"), c.Param("filename"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "file deleted"})
}

// chunkInput reads the resumable-upload form fields.
func chunkInput(c *gin.Context) (service.ChunkInput, bool) {
	totalSize, err := strconv.ParseInt(c.PostForm("resumableTotalSize"), 10, 64)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "bad resumableTotalSize")
		return service.ChunkInput{}, false
	}
	chunkNumber := 0
	if raw := c.PostForm("resumableChunkNumber"); raw != "" {
		chunkNumber, err = strconv.Atoi(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "bad resumableChunkNumber")
			return service.ChunkInput{}, false
		}
	}
	return service.ChunkInput{
		Filename:    c.PostForm("resumableFilename"),
		Identifier:  c.PostForm("resumableIdentifier"),
		TotalSize:   totalSize,
		ChunkNumber: chunkNumber,
	}, true
}

// Chunk handles POST /api/v1/parcel/:name/chunk
func (h *FileHandler) Chunk(c *gin.Context) {
	username, ok := requireUsername(c)
	if !ok {
		return
	}
	in, ok := chunkInput(c)
	if !ok {
		return
	}
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "missing file field")
		return
	}
	defer file.Close()

	if err := h.uploadService.WriteChunk(c.Request.Context(), username, c.Param("name"), in, file); err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"chunk": in.ChunkNumber})
}

// FinalizeUpload handles POST /api/v1/parcel/:name/finalize_upload
func (h *FileHandler) FinalizeUpload(c *gin.Context) {
	username, ok := requireUsername(c)
	if !ok {
		return
	}
	in, ok := chunkInput(c)
	if !ok {
		return
	}
	err := h.uploadService.FinalizeUpload(c.Request.Context(), username, c.Param("name"), in)
	// a size mismatch means the client still has chunks in flight;
	// answer 200 so resumable clients keep sending instead of aborting
	if errors.Is(err, domain.ErrChunksIncomplete) {
		RespondOK(c, gin.H{"status": "incomplete"})
		return
	}
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondCreated(c, gin.H{"filename": in.Filename})
}
