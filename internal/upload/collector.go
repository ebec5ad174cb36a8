package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"legaladvisor/internal/logger"
	"legaladvisor/internal/metrics"
	"legaladvisor/internal/models"
)

var (
	ErrTooManyFiles    = errors.New("too many files")
	ErrCollectorClosed = errors.New("upload collector closed")
)

// FileInput is one file handed over by the client.
type FileInput struct {
	Name     string
	MimeType string
	Size     int64
	Content  io.Reader
}

type Options struct {
	MaxFiles int
	// Accept lists extensions (".pdf"), MIME prefixes ("image/") or exact MIME
	// types. It is advisory only.
	Accept []string
	// Scope prefixes every preview key, usually the workspace id.
	Scope    string
	Logger   *logger.Logger
	OnChange func([]models.UploadedFile)
}

type entry struct {
	file models.UploadedFile
	key  string
}

// Collector holds the files attached to one workspace. Every accepted file
// owns a preview until it is removed or the collector is closed.
type Collector struct {
	store  PreviewStore
	signer *URLSigner
	log    *logger.Logger
	opts   Options

	mu      sync.Mutex
	entries []*entry
	pending int
	closed  bool
}

func NewCollector(store PreviewStore, signer *URLSigner, opts Options) *Collector {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 5
	}
	return &Collector{
		store:  store,
		signer: signer,
		log:    logger.OrNop(opts.Logger).Named("upload"),
		opts:   opts,
	}
}

func (c *Collector) MaxFiles() int {
	return c.opts.MaxFiles
}

// AddFiles accepts the whole batch or none of it. The batch is rejected with
// ErrTooManyFiles when it would push the count past MaxFiles.
func (c *Collector) AddFiles(ctx context.Context, inputs []FileInput) ([]models.UploadedFile, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	n := len(inputs)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCollectorClosed
	}
	if current := len(c.entries) + c.pending; current+n > c.opts.MaxFiles {
		c.mu.Unlock()
		metrics.RecordUploads("rejected", n)
		return nil, fmt.Errorf("%w: %d attached, %d offered, max %d", ErrTooManyFiles, current, n, c.opts.MaxFiles)
	}
	// reserve the slots so concurrent batches cannot overshoot
	c.pending += n
	c.mu.Unlock()

	added := make([]*entry, n)
	stored := make([]bool, n)
	now := time.Now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		id := newID()
		name := filepath.Base(in.Name)
		e := &entry{
			key: previewKey(c.opts.Scope, id),
			file: models.UploadedFile{
				ID:        id,
				Name:      name,
				Size:      in.Size,
				MimeType:  in.MimeType,
				CreatedAt: now,
			},
		}
		added[i] = e
		if !matchesAccept(name, in.MimeType, c.opts.Accept) {
			c.log.Debug("file outside accept list", zap.String("name", name), zap.String("mime", in.MimeType))
		}
		g.Go(func() error {
			content := in.Content
			if content == nil {
				content = strings.NewReader("")
			}
			if err := c.store.Put(gctx, e.key, content, e.file.MimeType); err != nil {
				return fmt.Errorf("store %s: %w", e.file.Name, err)
			}
			stored[i] = true
			url, err := c.signer.Sign(e.file.ID, e.key, e.file.Name, e.file.MimeType)
			if err != nil {
				return err
			}
			e.file.PreviewURL = url
			return nil
		})
	}
	err := g.Wait()

	c.mu.Lock()
	c.pending -= n
	closed := c.closed
	if err == nil && !closed {
		c.entries = append(c.entries, added...)
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if err != nil || closed {
		for i, e := range added {
			if stored[i] {
				c.release(ctx, e)
			}
		}
		metrics.RecordUploads("failed", n)
		if err == nil {
			err = ErrCollectorClosed
		}
		return nil, err
	}

	metrics.RecordUploads("accepted", n)
	c.notify(snapshot)
	out := make([]models.UploadedFile, n)
	for i, e := range added {
		out[i] = e.file
	}
	return out, nil
}

// RemoveFile releases the file's preview. Unknown ids are ignored; the result
// reports whether anything was removed.
func (c *Collector) RemoveFile(ctx context.Context, id string) bool {
	c.mu.Lock()
	var removed *entry
	for i, e := range c.entries {
		if e.file.ID == id {
			removed = e
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if removed == nil {
		return false
	}
	c.release(ctx, removed)
	c.notify(snapshot)
	return true
}

func (c *Collector) Files() []models.UploadedFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Collector) File(id string) (models.UploadedFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.file.ID == id {
			return e.file, true
		}
	}
	return models.UploadedFile{}, false
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SetAnalysis attaches an analysis to a file. It is dropped with the file.
func (c *Collector) SetAnalysis(id string, result *models.AnalysisResult) bool {
	c.mu.Lock()
	found := false
	for _, e := range c.entries {
		if e.file.ID == id {
			e.file.Analysis = result
			found = true
			break
		}
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	if found {
		c.notify(snapshot)
	}
	return found
}

// Clear removes every file and releases the previews.
func (c *Collector) Clear(ctx context.Context) {
	c.detach(false)(ctx)
}

// Detach empties the collector right away and returns the release of the
// detached previews, which the caller may run later.
func (c *Collector) Detach() func(ctx context.Context) {
	return c.detach(false)
}

// Close releases every preview and refuses further files.
func (c *Collector) Close(ctx context.Context) {
	c.detach(true)(ctx)
}

func (c *Collector) detach(closing bool) func(ctx context.Context) {
	c.mu.Lock()
	if closing {
		c.closed = true
	}
	entries := c.entries
	c.entries = nil
	c.mu.Unlock()

	if len(entries) > 0 {
		c.notify(nil)
	}
	return func(ctx context.Context) {
		for _, e := range entries {
			c.release(ctx, e)
		}
	}
}

func (c *Collector) release(ctx context.Context, e *entry) {
	if ctx == nil {
		ctx = context.Background()
	}
	// release must happen even when the caller's context is already done
	if err := c.store.Delete(context.WithoutCancel(ctx), e.key); err != nil {
		c.log.Warn("release preview", zap.String("file_id", e.file.ID), zap.Error(err))
	}
}

func (c *Collector) notify(files []models.UploadedFile) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(files)
	}
}

func (c *Collector) snapshotLocked() []models.UploadedFile {
	out := make([]models.UploadedFile, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.file
	}
	return out
}

func previewKey(scope, id string) string {
	if scope == "" {
		return id
	}
	return scope + "/" + id
}

func matchesAccept(name, mimeType string, accept []string) bool {
	if len(accept) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	mimeType = strings.ToLower(mimeType)
	for _, a := range accept {
		a = strings.ToLower(strings.TrimSpace(a))
		switch {
		case strings.HasPrefix(a, "."):
			if ext == a {
				return true
			}
		case strings.HasSuffix(a, "/*"), strings.HasSuffix(a, "/"):
			if strings.HasPrefix(mimeType, strings.TrimSuffix(a, "*")) {
				return true
			}
		case a == mimeType:
			return true
		}
	}
	return false
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
