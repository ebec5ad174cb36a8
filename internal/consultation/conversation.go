package consultation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"legaladvisor/internal/models"
)

type EventKind string

const (
	EventMessage       EventKind = "message"
	EventMessageStatus EventKind = "message_status"
	EventNotification  EventKind = "notification"
	EventFiles         EventKind = "files"
)

// Event is pushed to workspace subscribers (the SSE stream).
type Event struct {
	Kind         EventKind                   `json:"kind"`
	Message      *models.ConversationMessage `json:"message,omitempty"`
	Notification *models.Notification        `json:"notification,omitempty"`
	Files        []models.UploadedFile       `json:"files,omitempty"`
}

// hub fans events out to subscribers without ever blocking the publisher.
type hub struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a cancel func. Events are dropped
// for a subscriber whose buffer is full. The channel is closed by cancel or
// when the hub closes.
func (h *hub) Subscribe(buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

func (h *hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

// Conversation is the ordered, append-only message list of one workspace.
type Conversation struct {
	mu       sync.RWMutex
	messages []models.ConversationMessage
	hub      *hub
	now      func() time.Time
}

func NewConversation() *Conversation {
	return newConversation(nil)
}

func newConversation(h *hub) *Conversation {
	return &Conversation{hub: h, now: time.Now}
}

// Append stores msg at the end, filling ID and CreatedAt when empty, and
// returns the stored copy.
func (c *Conversation) Append(msg models.ConversationMessage) models.ConversationMessage {
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = c.now().UTC()
	}
	msg.Files = cloneFiles(msg.Files)

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	if c.hub != nil {
		out := copyMessage(msg)
		c.hub.Publish(Event{Kind: EventMessage, Message: &out})
	}
	return copyMessage(msg)
}

// SetStatus moves a message to status. It reports false for unknown ids.
func (c *Conversation) SetStatus(id string, status models.MessageStatus) bool {
	c.mu.Lock()
	var updated *models.ConversationMessage
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i].Status = status
			m := copyMessage(c.messages[i])
			updated = &m
			break
		}
	}
	c.mu.Unlock()

	if updated == nil {
		return false
	}
	if c.hub != nil {
		c.hub.Publish(Event{Kind: EventMessageStatus, Message: updated})
	}
	return true
}

func (c *Conversation) Messages() []models.ConversationMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ConversationMessage, len(c.messages))
	for i, m := range c.messages {
		out[i] = copyMessage(m)
	}
	return out
}

func (c *Conversation) Message(id string) (models.ConversationMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.messages {
		if m.ID == id {
			return copyMessage(m), true
		}
	}
	return models.ConversationMessage{}, false
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

func copyMessage(m models.ConversationMessage) models.ConversationMessage {
	m.Files = cloneFiles(m.Files)
	return m
}

func cloneFiles(files []models.UploadedFile) []models.UploadedFile {
	if len(files) == 0 {
		return nil
	}
	out := make([]models.UploadedFile, len(files))
	copy(out, files)
	return out
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
