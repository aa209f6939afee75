package domain

import "time"

// Account is a locally configured login. Role membership is resolved
// separately through the role allow-lists and the directory.
type Account struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	DisplayName  string `json:"display_name"`
	Email        string `json:"email,omitempty"`
}

// HistoryItem is one audit entry on a parcel. IDs are 1-based and
// strictly increasing per parcel; the id doubles as the fragment used
// in notification event URLs.
type HistoryItem struct {
	ID              int       `json:"id"`
	Title           string    `json:"title"`
	Time            time.Time `json:"time"`
	Actor           string    `json:"actor"`
	DescriptionHTML string    `json:"description_html"`
}

// FileChecksum is one line of a parcel's sealed file manifest.
type FileChecksum struct {
	File string `json:"file"`
	MD5  string `json:"md5"`
}

// Report is an uploaded country or lot deliverable report.
type Report struct {
	ID         int       `json:"id"`
	Country    string    `json:"country,omitempty"`
	Lot        string    `json:"lot,omitempty"`
	Category   string    `json:"category"`
	Filename   string    `json:"filename"`
	User       string    `json:"user"`
	UploadedAt time.Time `json:"uploaded_at"`
}
