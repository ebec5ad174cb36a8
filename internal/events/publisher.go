// Package events publishes consultation lifecycle events over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"legaladvisor/internal/logger"
	"legaladvisor/internal/models"
)

const (
	subjectCreated  = "created"
	subjectFeedback = "feedback"
)

type Config struct {
	URL           string
	Token         string
	SubjectPrefix string
}

// ConsultationCreated is published after a consultation row is written.
type ConsultationCreated struct {
	ID        string                  `json:"id"`
	UserID    *int64                  `json:"user_id"`
	Type      models.ConsultationType `json:"type"`
	Files     int                     `json:"files"`
	CreatedAt time.Time               `json:"created_at"`
}

// FeedbackRecorded is published for every feedback attempt, successful or not.
type FeedbackRecorded struct {
	ConsultationID string    `json:"consultation_id"`
	Value          int       `json:"value"`
	Saved          bool      `json:"saved"`
	At             time.Time `json:"at"`
}

// Publisher sends events to NATS. A nil Publisher, or one built without a URL,
// drops every event.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	log    *logger.Logger
}

// Connect dials NATS when cfg.URL is set. An empty URL yields a disabled publisher.
func Connect(cfg Config, log *logger.Logger) (*Publisher, error) {
	log = logger.OrNop(log).Named("events")
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "consultations"
	}
	if cfg.URL == "" {
		return &Publisher{prefix: prefix, log: log}, nil
	}

	opts := []nats.Option{
		nats.Name("legaladvisor"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("NATS error", zap.Error(err))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Publisher{conn: nc, prefix: prefix, log: log}, nil
}

// Enabled reports whether events actually leave the process.
func (p *Publisher) Enabled() bool {
	return p != nil && p.conn != nil
}

// Subject returns the full subject for an event kind.
func (p *Publisher) Subject(kind string) string {
	prefix := "consultations"
	if p != nil && p.prefix != "" {
		prefix = p.prefix
	}
	return prefix + "." + kind
}

func (p *Publisher) PublishCreated(ctx context.Context, rec *models.Consultation) {
	if rec == nil {
		return
	}
	p.publish(ctx, subjectCreated, ConsultationCreated{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Type:      rec.Type,
		Files:     len(rec.UploadedFiles),
		CreatedAt: rec.CreatedAt,
	})
}

func (p *Publisher) PublishFeedback(ctx context.Context, consultationID string, value int, saved bool) {
	p.publish(ctx, subjectFeedback, FeedbackRecorded{
		ConsultationID: consultationID,
		Value:          value,
		Saved:          saved,
		At:             time.Now().UTC(),
	})
}

// publish is fire and forget; failures are logged only.
func (p *Publisher) publish(ctx context.Context, kind string, payload any) {
	if !p.Enabled() {
		return
	}
	if ctx != nil && ctx.Err() != nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("marshal event", zap.String("kind", kind), zap.Error(err))
		return
	}
	subject := p.Subject(kind)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn("publish event", zap.String("subject", subject), zap.Error(err))
	}
}

// Close drains pending publishes and closes the connection.
func (p *Publisher) Close() {
	if !p.Enabled() {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
