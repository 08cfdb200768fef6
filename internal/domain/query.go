package domain

import "mime/multipart"

// NoAnswer is returned when the AI service answers without an answer field
const NoAnswer = "No answer received."

// AIFailure is the ai_response body returned when the AI service cannot be reached
const AIFailure = "Error communicating with AI backend."

// ChatRequest is one /chat/send submission
type ChatRequest struct {
	SessionID     string                  `form:"sessionId" validate:"required"`
	Chat          string                  `form:"chat"`
	Documents     []*multipart.FileHeader `form:"documents"`
	UploadedFiles []string                `form:"uploadedFiles" validate:"dive,required"`
}

// ChatResponse is the client-facing shape of an AI answer
type ChatResponse struct {
	AIResponse string `json:"ai_response"`
	Files      []any  `json:"files"`
}

// BatchQueryRequest is the body accepted by /batch-query
type BatchQueryRequest struct {
	Queries   []string `json:"queries" validate:"required,min=1,dive,required"`
	TopK      *int     `json:"top_k,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// BatchQueryResponse is the reshaped /batch-query answer
type BatchQueryResponse struct {
	Responses    []ChatResponse `json:"responses"`
	TotalQueries int            `json:"total_queries"`
}
