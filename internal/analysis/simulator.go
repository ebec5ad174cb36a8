// Package analysis provides the simulated document analysis used by the
// consultation workflow. Nothing here reads document content.
package analysis

import (
	"context"
	"math/rand/v2"
	"time"

	"legaladvisor/internal/i18n"
	"legaladvisor/internal/metrics"
	"legaladvisor/internal/models"
)

// MockAnalysisProvider produces an analysis for a document. Implementations
// must not fail; callers treat the result as display-only.
type MockAnalysisProvider interface {
	Analyze(ctx context.Context, extractedText, fileName string) models.AnalysisResult
}

// Simulator picks canned analyses and OCR texts uniformly at random. The
// locale comes from the context (see i18n.WithLocale).
type Simulator struct {
	intn     func(n int) int
	now      func() time.Time
	fallback models.Locale
}

type Option func(*Simulator)

// WithRand replaces the random source. intn must return a value in [0, n).
func WithRand(intn func(n int) int) Option {
	return func(s *Simulator) {
		if intn != nil {
			s.intn = intn
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFallbackLocale sets the locale used when the context carries none.
func WithFallbackLocale(locale models.Locale) Option {
	return func(s *Simulator) {
		if locale.Valid() {
			s.fallback = locale
		}
	}
}

func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		intn:     rand.IntN,
		now:      time.Now,
		fallback: models.LocaleArabic,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ MockAnalysisProvider = (*Simulator)(nil)

// Analyze ignores extractedText and returns one of the two canned bundles.
func (s *Simulator) Analyze(ctx context.Context, extractedText, fileName string) models.AnalysisResult {
	locale := i18n.LocaleFrom(ctx, s.fallback)
	list := bundles[locale]
	b := list[s.pick(len(list))]
	metrics.RecordAnalysis(b.key)
	return models.AnalysisResult{
		Title:           b.title,
		Locale:          locale,
		FileName:        fileName,
		ExtractedText:   extractedText,
		Findings:        append([]models.Finding(nil), b.findings...),
		Recommendations: append([]string(nil), b.recommendations...),
		LegalReferences: append([]string(nil), b.references...),
		AnalyzedAt:      s.now().UTC(),
	}
}

// SimulateOCR ignores the file and returns one of three canned document texts.
// A nil file is fine.
func (s *Simulator) SimulateOCR(ctx context.Context, _ *models.UploadedFile) string {
	list := ocrTexts[i18n.LocaleFrom(ctx, s.fallback)]
	return list[s.pick(len(list))]
}

func (s *Simulator) pick(n int) int {
	i := s.intn(n)
	if i < 0 || i >= n {
		return 0
	}
	return i
}
