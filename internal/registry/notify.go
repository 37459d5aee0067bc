package registry

import (
	"sync"

	"github.com/google/uuid"
)

// notifier is the instance-scoped publish/subscribe channel for schema
// changes. Subscribers are invoked synchronously, in registration order,
// immediately after a sync transaction commits — so for any application,
// notifications arrive in the same order the versions were appended.
type notifier struct {
	mu   sync.RWMutex
	subs []subscription
}

type subscription struct {
	id string
	fn func(SchemaChange)
}

// Subscribe registers a handler for schema change notifications and
// returns an opaque handle for Unsubscribe.
func (s *Store) Subscribe(fn func(SchemaChange)) string {
	id := uuid.NewString()
	s.notify.mu.Lock()
	s.notify.subs = append(s.notify.subs, subscription{id: id, fn: fn})
	s.notify.mu.Unlock()
	return id
}

// Unsubscribe removes a previously registered handler. Unknown handles
// are ignored.
func (s *Store) Unsubscribe(id string) {
	s.notify.mu.Lock()
	defer s.notify.mu.Unlock()
	for i, sub := range s.notify.subs {
		if sub.id == id {
			s.notify.subs = append(s.notify.subs[:i], s.notify.subs[i+1:]...)
			return
		}
	}
}

// publish delivers changes to every subscriber, one change at a time,
// preserving append order.
func (n *notifier) publish(changes []SchemaChange) {
	n.mu.RLock()
	subs := make([]subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	for _, change := range changes {
		for _, sub := range subs {
			sub.fn(change)
		}
	}
}
