package models

import "time"

// UploadedFile represents a file attached to a workspace. Only metadata is exposed;
// the bytes live in the preview store until the entry is released.
type UploadedFile struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Size       int64           `json:"size"`
	MimeType   string          `json:"mime_type"`
	PreviewURL string          `json:"preview_url"`
	CreatedAt  time.Time       `json:"created_at"`
	Analysis   *AnalysisResult `json:"analysis,omitempty"`
}

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

type Finding struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
}

// AnalysisResult is a simulated document analysis. Never persisted.
type AnalysisResult struct {
	Title           string    `json:"title"`
	Locale          Locale    `json:"locale"`
	FileName        string    `json:"file_name"`
	ExtractedText   string    `json:"extracted_text,omitempty"`
	Findings        []Finding `json:"findings"`
	Recommendations []string  `json:"recommendations"`
	LegalReferences []string  `json:"legal_references"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}
