package domain

// Upload is a file received from the client and kept in the temp directory
type Upload struct {
	OriginalName string `json:"originalName"`
	StoredName   string `json:"filename"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mimeType"`
}
