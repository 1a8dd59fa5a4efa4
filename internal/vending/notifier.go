package vending

import (
	"sync"
	"time"
)

// NotificationLevel classifies a user-facing message.
type NotificationLevel string

// Notification levels.
const (
	LevelInfo    NotificationLevel = "info"
	LevelSuccess NotificationLevel = "success"
	LevelError   NotificationLevel = "error"
)

// Notification is one user-facing message emitted on a state transition a
// human must notice. Format is not contractual, content and timing are.
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	At      time.Time         `json:"at"`
}

const defaultHistory = 128

// Notifier is the outbound notification queue. Publishing never blocks the
// mutation path: subscribers get buffered channels and slow ones drop.
type Notifier struct {
	mu      sync.Mutex
	history []Notification
	limit   int
	subs    map[chan Notification]struct{}
	now     func() time.Time
}

// NewNotifier returns a notifier keeping up to limit recent messages.
func NewNotifier(limit int) *Notifier {
	if limit <= 0 {
		limit = defaultHistory
	}
	return &Notifier{
		limit: limit,
		subs:  make(map[chan Notification]struct{}),
		now:   time.Now,
	}
}

// Publish appends a notification and fans it out to subscribers.
func (n *Notifier) Publish(level NotificationLevel, code, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	notification := Notification{Level: level, Code: code, Message: message, At: n.now().UTC()}
	n.history = append(n.history, notification)
	if len(n.history) > n.limit {
		n.history = n.history[len(n.history)-n.limit:]
	}
	for ch := range n.subs {
		select {
		case ch <- notification:
		default:
			// Slow subscriber, drop rather than stall the engine.
		}
	}
}

// Subscribe returns a channel of future notifications and a cancel func.
func (n *Notifier) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, 32)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, ch)
			n.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Recent returns up to limit latest notifications, oldest first.
func (n *Notifier) Recent(limit int) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if limit <= 0 || limit > len(n.history) {
		limit = len(n.history)
	}
	out := make([]Notification, limit)
	copy(out, n.history[len(n.history)-limit:])
	return out
}
