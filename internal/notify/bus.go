package notify

import (
	"sync"

	"github.com/dkrylov/fashion_store/internal/models"
)

// Bus is an in-process subscription channel for freshly emitted
// notifications. It replaces interval polling on the admin side: each
// subscriber gets a buffered channel filtered to its role, and a slow
// subscriber drops messages rather than blocking the emitter.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]subscriber
}

type subscriber struct {
	role string
	ch   chan models.Notification
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]subscriber)}
}

// Subscribe registers a listener for one role. The returned cancel
// func must be called when the listener goes away.
func (b *Bus) Subscribe(role string) (<-chan models.Notification, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan models.Notification, 16)
	b.subs[id] = subscriber{role: role, ch: ch}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

func (b *Bus) Publish(n models.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.role != n.TargetRole {
			continue
		}
		select {
		case sub.ch <- n:
		default:
		}
	}
}
