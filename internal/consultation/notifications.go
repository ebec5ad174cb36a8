package consultation

import (
	"sync"
	"time"

	"legaladvisor/internal/models"
)

const defaultNotificationLimit = 20

// notificationLog keeps the most recent toasts of a workspace.
type notificationLog struct {
	mu    sync.Mutex
	items []models.Notification
	limit int
}

func newNotificationLog(limit int) *notificationLog {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	return &notificationLog{limit: limit}
}

func (l *notificationLog) push(title, description string, variant models.NotificationVariant) models.Notification {
	n := models.Notification{
		ID:          newID(),
		Title:       title,
		Description: description,
		Variant:     variant,
		CreatedAt:   time.Now().UTC(),
	}
	l.mu.Lock()
	l.items = append(l.items, n)
	if over := len(l.items) - l.limit; over > 0 {
		l.items = append([]models.Notification(nil), l.items[over:]...)
	}
	l.mu.Unlock()
	return n
}

func (l *notificationLog) list() []models.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Notification(nil), l.items...)
}
