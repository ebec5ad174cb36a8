// Package consultation implements the consultation workflow: per-view
// workspaces holding a conversation and an upload collector, asynchronous
// submission to the persistence collaborator, and feedback recording.
package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"legaladvisor/internal/i18n"
	"legaladvisor/internal/logger"
	"legaladvisor/internal/models"
	"legaladvisor/internal/worker"
)

// Request is what a submission hands to the backend.
type Request struct {
	QueryText string
	FileNames []string
	Type      models.ConsultationType
	UserID    *int64
	Locale    models.Locale
}

// Store is the persistence collaborator.
type Store interface {
	Insert(ctx context.Context, rec *models.Consultation) (*models.Consultation, error)
	Update(ctx context.Context, id string, patch models.ConsultationPatch) error
}

// Responder produces the reply text for a request.
type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
}

// Publisher receives lifecycle events. Implementations must not block.
type Publisher interface {
	PublishCreated(ctx context.Context, rec *models.Consultation)
	PublishFeedback(ctx context.Context, consultationID string, value int, saved bool)
}

// Backend turns a request into a persisted consultation.
type Backend interface {
	Submit(ctx context.Context, req Request) (*models.Consultation, error)
}

// Runner executes submission jobs off the request path.
type Runner interface {
	Submit(job worker.Job) error
}

// PersistingBackend generates the reply, then inserts the record. The two
// steps are independent calls; nothing is rolled back.
type PersistingBackend struct {
	responder Responder
	store     Store
	publisher Publisher
	log       *logger.Logger
}

func NewBackend(responder Responder, store Store, publisher Publisher, log *logger.Logger) *PersistingBackend {
	return &PersistingBackend{
		responder: responder,
		store:     store,
		publisher: publisher,
		log:       logger.OrNop(log).Named("backend"),
	}
}

func (b *PersistingBackend) Submit(ctx context.Context, req Request) (*models.Consultation, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("invalid consultation type %q", req.Type)
	}
	text, err := b.responder.Respond(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}
	files := req.FileNames
	if files == nil {
		files = []string{}
	}
	saved, err := b.store.Insert(ctx, &models.Consultation{
		UserID:          req.UserID,
		Type:            req.Type,
		QueryText:       req.QueryText,
		AIResponse:      text,
		ConfidenceScore: models.DefaultConfidenceScore,
		UploadedFiles:   files,
	})
	if err != nil {
		return nil, fmt.Errorf("insert consultation: %w", err)
	}
	if saved == nil {
		b.log.Warn("store returned no record")
		return nil, errors.New("insert consultation: empty result")
	}
	if b.publisher != nil {
		b.publisher.PublishCreated(ctx, saved)
	}
	b.log.Debug("consultation stored", zap.String("consultation_id", saved.ID), zap.String("type", string(saved.Type)))
	return saved, nil
}

// TemplateResponder echoes the query inside a fixed localized template,
// lists attached file names, and appends the legal disclaimer.
type TemplateResponder struct{}

func (TemplateResponder) Respond(_ context.Context, req Request) (string, error) {
	locale := req.Locale
	var b strings.Builder
	b.WriteString(i18n.T(locale, i18n.ResponseTemplate, req.QueryText))
	if len(req.FileNames) > 0 {
		sep := ", "
		if locale != models.LocaleEnglish {
			sep = "، "
		}
		b.WriteString("\n\n")
		b.WriteString(i18n.T(locale, i18n.ResponseFilesLine, strings.Join(req.FileNames, sep)))
	}
	b.WriteString("\n\n")
	b.WriteString(i18n.T(locale, i18n.ResponseDisclaimer))
	return b.String(), nil
}
