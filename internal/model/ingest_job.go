package model

// UploadedFile is a file accepted by the upload endpoint and staged on disk.
type UploadedFile struct {
	OriginalName string `json:"original_name"`
	Path         string `json:"path"`
	MediaType    string `json:"media_type"`
}

// IngestJob is the unit handed from the upload endpoint to background processing.
type IngestJob struct {
	ConversationID string         `json:"conversation_id"`
	Files          []UploadedFile `json:"files"`
}
