package consultation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"legaladvisor/internal/logger"
	"legaladvisor/internal/metrics"
	"legaladvisor/internal/models"
	"legaladvisor/internal/upload"
)

var ErrWorkspaceNotFound = errors.New("workspace not found")

const (
	DefaultWorkspaceIdleTTL = time.Hour
	DefaultJanitorInterval  = 5 * time.Minute
)

type ManagerConfig struct {
	MaxFilesChat     int
	MaxFilesDocument int
	Accept           []string
	IdleTTL          time.Duration
}

type Deps struct {
	Backend  Backend
	Runner   Runner
	Feedback *FeedbackRecorder
	Analyzer Analyzer
	Previews upload.PreviewStore
	Signer   *upload.URLSigner
	Logger   *logger.Logger
}

// Manager owns the open workspaces, keyed by id.
type Manager struct {
	deps Deps
	cfg  ManagerConfig
	log  *logger.Logger
	now  func() time.Time

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

func NewManager(deps Deps, cfg ManagerConfig) *Manager {
	if cfg.MaxFilesChat <= 0 {
		cfg.MaxFilesChat = 5
	}
	if cfg.MaxFilesDocument <= 0 {
		cfg.MaxFilesDocument = 3
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultWorkspaceIdleTTL
	}
	return &Manager{
		deps:       deps,
		cfg:        cfg,
		log:        logger.OrNop(deps.Logger).Named("workspaces"),
		now:        time.Now,
		workspaces: make(map[string]*Workspace),
	}
}

// Open creates a workspace. userID 0 opens an anonymous workspace whose
// records carry no owner.
func (m *Manager) Open(userID int64, kind models.ConsultationType, locale models.Locale) (*Workspace, error) {
	if !kind.Valid() {
		return nil, errors.New("invalid consultation type")
	}
	if !locale.Valid() {
		locale = models.LocaleArabic
	}
	var owner *int64
	if userID > 0 {
		id := userID
		owner = &id
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := newHub()
	w := &Workspace{
		ID:           newID(),
		UserID:       owner,
		Type:         kind,
		CreatedAt:    m.now().UTC(),
		conversation: newConversation(events),
		notes:        newNotificationLog(defaultNotificationLimit),
		events:       events,
		backend:      m.deps.Backend,
		runner:       m.deps.Runner,
		feedback:     m.deps.Feedback,
		analyzer:     m.deps.Analyzer,
		ctx:          ctx,
		cancel:       cancel,
		locale:       locale,
		lastUsed:     m.now(),
	}
	w.log = m.log.With(zap.String("workspace_id", w.ID), zap.Int64("user_id", userID))

	maxFiles := m.cfg.MaxFilesChat
	if kind == models.ConsultationDocumentAnalysis {
		maxFiles = m.cfg.MaxFilesDocument
	}
	w.Files = upload.NewCollector(m.deps.Previews, m.deps.Signer, upload.Options{
		MaxFiles: maxFiles,
		Accept:   m.cfg.Accept,
		Scope:    w.ID,
		Logger:   m.deps.Logger,
		OnChange: func(files []models.UploadedFile) {
			events.Publish(Event{Kind: EventFiles, Files: files})
		},
	})

	m.mu.Lock()
	m.workspaces[w.ID] = w
	m.mu.Unlock()
	metrics.WorkspacesActive.Inc()
	w.log.Debug("workspace opened", zap.String("type", string(kind)))
	return w, nil
}

// Get returns the workspace if it exists and belongs to userID.
func (m *Manager) Get(userID int64, id string) (*Workspace, error) {
	m.mu.Lock()
	w, ok := m.workspaces[id]
	m.mu.Unlock()
	if !ok || ownerKey(w.UserID) != userID {
		return nil, ErrWorkspaceNotFound
	}
	w.touch()
	return w, nil
}

func (m *Manager) List(userID int64) []*Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Workspace
	for _, w := range m.workspaces {
		if ownerKey(w.UserID) == userID {
			out = append(out, w)
		}
	}
	return out
}

func (m *Manager) CloseWorkspace(ctx context.Context, userID int64, id string) error {
	m.mu.Lock()
	w, ok := m.workspaces[id]
	if !ok || ownerKey(w.UserID) != userID {
		m.mu.Unlock()
		return ErrWorkspaceNotFound
	}
	delete(m.workspaces, id)
	m.mu.Unlock()

	m.closeWorkspace(ctx, w, "closed")
	return nil
}

// CloseUser closes every workspace of userID and drops their queued jobs.
func (m *Manager) CloseUser(ctx context.Context, userID int64) {
	m.mu.Lock()
	var victims []*Workspace
	for id, w := range m.workspaces {
		if ownerKey(w.UserID) == userID {
			victims = append(victims, w)
			delete(m.workspaces, id)
		}
	}
	m.mu.Unlock()

	for _, w := range victims {
		m.closeWorkspace(ctx, w, "user closed")
	}
	if c, ok := m.deps.Runner.(interface{ CancelUser(int64) }); ok && len(victims) > 0 {
		c.CancelUser(userID)
	}
}

// StartJanitor closes workspaces idle for longer than the configured TTL.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	go m.cleanupLoop(ctx, interval)
}

func (m *Manager) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.closeIdle(ctx); n > 0 {
				m.log.Info("closed idle workspaces", zap.Int("count", n))
			}
		}
	}
}

func (m *Manager) closeIdle(ctx context.Context) int {
	now := m.now()
	m.mu.Lock()
	var stale []*Workspace
	for id, w := range m.workspaces {
		if w.idleSince(now) >= m.cfg.IdleTTL {
			stale = append(stale, w)
			delete(m.workspaces, id)
		}
	}
	m.mu.Unlock()

	for _, w := range stale {
		m.closeWorkspace(ctx, w, "idle")
	}
	return len(stale)
}

// Shutdown closes every workspace.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Workspace, 0, len(m.workspaces))
	for id, w := range m.workspaces {
		all = append(all, w)
		delete(m.workspaces, id)
	}
	m.mu.Unlock()

	for _, w := range all {
		m.closeWorkspace(ctx, w, "shutdown")
	}
}

func (m *Manager) closeWorkspace(ctx context.Context, w *Workspace, reason string) {
	w.Close(ctx)
	metrics.WorkspacesActive.Dec()
	w.log.Debug("workspace closed", zap.String("reason", reason))
}
