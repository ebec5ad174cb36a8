package models

import "time"

type ConsultationType string

const (
	ConsultationChat             ConsultationType = "chat"
	ConsultationDocumentAnalysis ConsultationType = "document_analysis"
)

// Valid reports whether t is a known consultation type.
func (t ConsultationType) Valid() bool {
	return t == ConsultationChat || t == ConsultationDocumentAnalysis
}

// DefaultConfidenceScore is stamped on every generated reply; nothing computes a real score.
const DefaultConfidenceScore = 0.85

const (
	FeedbackNegative = -1
	FeedbackNone     = 0
	FeedbackPositive = 1
)

// Consultation is one persisted query/response exchange.
type Consultation struct {
	ID              string           `json:"id"`
	UserID          *int64           `json:"user_id"`
	Type            ConsultationType `json:"type"`
	QueryText       string           `json:"query_text"`
	AIResponse      string           `json:"ai_response"`
	ConfidenceScore float64          `json:"confidence_score"`
	UploadedFiles   []string         `json:"uploaded_files"`
	Feedback        int              `json:"feedback"`
	CreatedAt       time.Time        `json:"created_at"`
}

// ConsultationPatch carries the fields an update may touch. Nil fields are left alone.
type ConsultationPatch struct {
	Feedback *int `json:"feedback,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ConsultationPatch) Empty() bool {
	return p.Feedback == nil
}
