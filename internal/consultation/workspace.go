package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"legaladvisor/internal/analysis"
	"legaladvisor/internal/i18n"
	"legaladvisor/internal/logger"
	"legaladvisor/internal/metrics"
	"legaladvisor/internal/models"
	"legaladvisor/internal/upload"
	"legaladvisor/internal/worker"
)

var (
	ErrWorkspaceClosed = errors.New("workspace closed")
	ErrFileNotFound    = errors.New("file not found")
	errJobDropped      = errors.New("submission dropped before it ran")
)

// Analyzer is the simulated document pipeline used for per-file analysis.
type Analyzer interface {
	analysis.MockAnalysisProvider
	SimulateOCR(ctx context.Context, file *models.UploadedFile) string
}

// Workspace is the server-side state of one consultation view: a conversation,
// an upload collector, the current draft and recent notifications. Closing it
// releases every preview and cancels in-flight submissions.
type Workspace struct {
	ID        string
	UserID    *int64
	Type      models.ConsultationType
	CreatedAt time.Time

	Files        *upload.Collector
	conversation *Conversation
	notes        *notificationLog
	events       *hub

	backend  Backend
	runner   Runner
	feedback *FeedbackRecorder
	analyzer Analyzer
	log      *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	locale   models.Locale
	draft    string
	closed   bool
	lastUsed time.Time
}

// Snapshot is the JSON view of a workspace.
type Snapshot struct {
	ID        string                       `json:"id"`
	Type      models.ConsultationType      `json:"type"`
	Locale    models.Locale                `json:"locale"`
	Draft     string                       `json:"draft"`
	MaxFiles  int                          `json:"max_files"`
	Files     []models.UploadedFile        `json:"files"`
	Messages  []models.ConversationMessage `json:"messages"`
	CreatedAt time.Time                    `json:"created_at"`
}

func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	locale, draft := w.locale, w.draft
	w.mu.Unlock()
	return Snapshot{
		ID:        w.ID,
		Type:      w.Type,
		Locale:    locale,
		Draft:     draft,
		MaxFiles:  w.Files.MaxFiles(),
		Files:     w.Files.Files(),
		Messages:  w.conversation.Messages(),
		CreatedAt: w.CreatedAt,
	}
}

func (w *Workspace) Messages() []models.ConversationMessage {
	return w.conversation.Messages()
}

func (w *Workspace) Notifications() []models.Notification {
	return w.notes.list()
}

// Subscribe streams workspace events until cancel is called or the workspace closes.
func (w *Workspace) Subscribe(buf int) (<-chan Event, func()) {
	return w.events.Subscribe(buf)
}

func (w *Workspace) Locale() models.Locale {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.locale
}

func (w *Workspace) SetLocale(locale models.Locale) {
	if !locale.Valid() {
		return
	}
	w.mu.Lock()
	w.locale = locale
	w.mu.Unlock()
}

func (w *Workspace) Draft() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

func (w *Workspace) SetDraft(text string) {
	w.mu.Lock()
	w.draft = text
	w.mu.Unlock()
}

func (w *Workspace) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// AddFiles attaches files to the workspace collector. A rejected batch adds a
// destructive notification.
func (w *Workspace) AddFiles(ctx context.Context, inputs []upload.FileInput) ([]models.UploadedFile, error) {
	if w.Closed() {
		return nil, ErrWorkspaceClosed
	}
	files, err := w.Files.AddFiles(ctx, inputs)
	if err != nil {
		locale := w.Locale()
		switch {
		case errors.Is(err, upload.ErrTooManyFiles):
			w.notify(i18n.T(locale, i18n.UploadLimitTitle), i18n.T(locale, i18n.UploadLimitDescription, w.Files.MaxFiles()), models.VariantDestructive)
		case errors.Is(err, upload.ErrCollectorClosed):
			return nil, ErrWorkspaceClosed
		default:
			w.notify(i18n.T(locale, i18n.UploadFailedTitle), err.Error(), models.VariantDestructive)
		}
		return nil, err
	}
	return files, nil
}

func (w *Workspace) RemoveFile(ctx context.Context, fileID string) bool {
	return w.Files.RemoveFile(ctx, fileID)
}

// AnalyzeFile runs the simulated OCR and analysis on an attached file and
// attaches the result to it.
func (w *Workspace) AnalyzeFile(ctx context.Context, fileID string) (*models.AnalysisResult, error) {
	if w.Closed() {
		return nil, ErrWorkspaceClosed
	}
	file, ok := w.Files.File(fileID)
	if !ok {
		return nil, ErrFileNotFound
	}
	locale := w.Locale()
	ctx = i18n.WithLocale(ctx, locale)
	text := w.analyzer.SimulateOCR(ctx, &file)
	res := w.analyzer.Analyze(ctx, text, file.Name)
	if !w.Files.SetAnalysis(fileID, &res) {
		return nil, ErrFileNotFound
	}
	w.notify(i18n.T(locale, i18n.AnalysisDoneTitle), res.Title, models.VariantDefault)
	return &res, nil
}

// Submit appends the user message right away and hands the request to the
// runner. A blank query without files does nothing and returns nil, nil. The
// bot reply, or a failure notification, arrives asynchronously.
func (w *Workspace) Submit(ctx context.Context, queryText string, files []models.UploadedFile) (*models.ConversationMessage, error) {
	text := strings.TrimSpace(queryText)
	if text == "" && len(files) == 0 {
		return nil, nil
	}
	if w.Closed() {
		return nil, ErrWorkspaceClosed
	}

	locale := w.Locale()
	if text == "" {
		text = i18n.T(locale, i18n.FilesAttachedPlaceholder)
	}
	msg := w.conversation.Append(models.ConversationMessage{
		Role:   models.RoleUser,
		Text:   text,
		Files:  files,
		Status: models.StatusPending,
	})

	req := Request{
		QueryText: text,
		FileNames: fileNames(files),
		Type:      w.Type,
		UserID:    w.UserID,
		Locale:    locale,
	}
	started := time.Now()
	job := w.newJob(msg.ID, req, started)
	if err := w.runner.Submit(job); err != nil {
		w.mu.Lock()
		w.failLocked(msg.ID, req, started, err, i18n.T(locale, i18n.SubmitBusyDescription))
		w.mu.Unlock()
		msg.Status = models.StatusFailed
		return &msg, fmt.Errorf("submit consultation: %w", err)
	}
	w.touch()
	return &msg, nil
}

// RecordFeedback stores a rating for a bot reply. Nothing in the conversation
// changes; failures surface as a notification.
func (w *Workspace) RecordFeedback(ctx context.Context, consultationID string, value int) error {
	locale := w.Locale()
	err := w.feedback.Record(ctx, consultationID, value)
	switch {
	case err == nil:
		w.notify(i18n.T(locale, i18n.FeedbackSavedTitle), i18n.T(locale, i18n.FeedbackSavedDescription), models.VariantDefault)
	case errors.Is(err, ErrInvalidFeedback), errors.Is(err, ErrMissingConsultationID):
		w.notify(i18n.T(locale, i18n.FeedbackFailedTitle), i18n.T(locale, i18n.FeedbackInvalid), models.VariantDestructive)
	default:
		w.notify(i18n.T(locale, i18n.FeedbackFailedTitle), i18n.T(locale, i18n.FeedbackFailedDescription), models.VariantDestructive)
	}
	return err
}

// Close cancels in-flight submissions and releases every preview. Results that
// arrive afterwards are dropped.
func (w *Workspace) Close(ctx context.Context) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	w.Files.Close(ctx)
	w.events.Close()
}

func (w *Workspace) newJob(msgID string, req Request, started time.Time) worker.Job {
	return worker.Job{
		UserID: ownerKey(w.UserID),
		Name:   "consultation.submit",
		Fn:     func() { w.complete(msgID, req, started) },
		Drop: func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.closed {
				return
			}
			w.failLocked(msgID, req, started, errJobDropped, i18n.T(w.locale, i18n.SubmitFailedDescription))
		},
	}
}

// complete runs on a worker: call the backend, then apply the outcome unless
// the workspace closed in the meantime.
func (w *Workspace) complete(msgID string, req Request, started time.Time) {
	ctx := i18n.WithLocale(w.ctx, req.Locale)
	rec, err := w.backend.Submit(ctx, req)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.log.Debug("dropping late result", zap.String("message_id", msgID), zap.Bool("failed", err != nil))
		return
	}
	if err != nil {
		w.failLocked(msgID, req, started, err, i18n.T(w.locale, i18n.SubmitFailedDescription))
		w.mu.Unlock()
		w.log.Warn("consultation failed", zap.String("message_id", msgID), zap.Error(err))
		return
	}

	var id, reply string
	if rec != nil {
		id, reply = rec.ID, rec.AIResponse
	}
	if id == "" {
		w.log.Warn("backend returned a consultation without id", zap.String("message_id", msgID))
	}
	w.conversation.Append(models.ConversationMessage{
		Role:           models.RoleBot,
		Text:           reply,
		ConsultationID: id,
		Status:         models.StatusConfirmed,
	})
	w.conversation.SetStatus(msgID, models.StatusConfirmed)
	w.draft = ""
	release := w.Files.Detach()
	w.lastUsed = time.Now()
	w.notifyLocked(i18n.T(w.locale, i18n.SubmitSuccessTitle), i18n.T(w.locale, i18n.SubmitSuccessDescription), models.VariantDefault)
	w.mu.Unlock()

	// preview deletes may be remote, keep them off the workspace lock
	release(w.ctx)
	metrics.RecordConsultation(string(req.Type), "success", time.Since(started).Seconds())
}

func (w *Workspace) failLocked(msgID string, req Request, started time.Time, err error, description string) {
	w.conversation.SetStatus(msgID, models.StatusFailed)
	w.notifyLocked(i18n.T(w.locale, i18n.SubmitFailedTitle), description, models.VariantDestructive)
	status := "failed"
	if errors.Is(err, errJobDropped) {
		status = "dropped"
	}
	metrics.RecordConsultation(string(req.Type), status, time.Since(started).Seconds())
}

func (w *Workspace) notify(title, description string, variant models.NotificationVariant) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notifyLocked(title, description, variant)
}

func (w *Workspace) notifyLocked(title, description string, variant models.NotificationVariant) {
	n := w.notes.push(title, description, variant)
	w.events.Publish(Event{Kind: EventNotification, Notification: &n})
}

func (w *Workspace) touch() {
	w.mu.Lock()
	w.lastUsed = time.Now()
	w.mu.Unlock()
}

func (w *Workspace) idleSince(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.lastUsed)
}

func fileNames(files []models.UploadedFile) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names
}

func ownerKey(userID *int64) int64 {
	if userID == nil {
		return 0
	}
	return *userID
}
