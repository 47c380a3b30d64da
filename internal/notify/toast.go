package notify

import (
	"sync"
	"time"
)

// DefaultToastTTL is the fixed lifetime of an ephemeral toast. Toasts
// expire unconditionally, dismissed or not, and are never persisted.
const DefaultToastTTL = 4 * time.Second

type Toast struct {
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ToastQueue holds per-session self-expiring toasts. It is separate
// from the notification ledger on purpose.
type ToastQueue struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string][]Toast

	now func() time.Time
}

func NewToastQueue(ttl time.Duration) *ToastQueue {
	if ttl <= 0 {
		ttl = DefaultToastTTL
	}
	return &ToastQueue{
		ttl:      ttl,
		sessions: make(map[string][]Toast),
		now:      time.Now,
	}
}

func (q *ToastQueue) Push(sessionID, message, typ string) Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := Toast{
		Message:   message,
		Type:      typ,
		ExpiresAt: q.now().Add(q.ttl),
	}
	q.sessions[sessionID] = append(q.sessions[sessionID], t)
	return t
}

// Pending returns the session's live toasts and drops the expired ones.
func (q *ToastQueue) Pending(sessionID string) []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var live []Toast
	for _, t := range q.sessions[sessionID] {
		if t.ExpiresAt.After(now) {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		delete(q.sessions, sessionID)
		return nil
	}
	q.sessions[sessionID] = live
	return live
}
