package dto

type UploadDocumentResponse struct {
	DocumentKey  string `json:"document_key"`
	DocumentName string `json:"document_name"`
	Size         int64  `json:"size"`
}
