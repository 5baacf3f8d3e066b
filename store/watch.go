package store

import (
	"context"
	"log/slog"
	"sync"
)

// watchHub fans active-location-reminder snapshots out to subscribers.
// Each subscriber holds at most one pending snapshot; a newer snapshot
// replaces an unread one.
type watchHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan []*Reminder
}

func newWatchHub() *watchHub {
	return &watchHub{subs: make(map[int]chan []*Reminder)}
}

func (h *watchHub) add() (int, chan []*Reminder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	ch := make(chan []*Reminder, 1)
	h.subs[h.nextID] = ch
	return h.nextID, ch
}

func (h *watchHub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *watchHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *watchHub) empty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs) == 0
}

func (h *watchHub) broadcast(snapshot []*Reminder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		deliverLatest(ch, snapshot)
	}
}

func deliverLatest(ch chan []*Reminder, snapshot []*Reminder) {
	select {
	case ch <- snapshot:
		return
	default:
	}
	// Drop the unread snapshot and retry; the hub lock keeps us the only sender.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snapshot:
	default:
	}
}

// SubscribeActiveLocationReminders streams the set of active location
// reminders. The current set is sent immediately and again after every
// reminder or trigger mutation. The channel closes when ctx is done.
func (s *Store) SubscribeActiveLocationReminders(ctx context.Context) (<-chan []*Reminder, error) {
	snapshot, err := s.ListActiveLocationReminders(ctx)
	if err != nil {
		return nil, err
	}
	id, ch := s.watchers.add()
	deliverLatest(ch, snapshot)

	go func() {
		<-ctx.Done()
		s.watchers.remove(id)
	}()
	return ch, nil
}

func (s *Store) publish(ctx context.Context) {
	if s.watchers.empty() {
		return
	}
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	snapshot, err := s.ListActiveLocationReminders(context.WithoutCancel(ctx))
	if err != nil {
		slog.Warn("failed to publish active location reminders", "error", err)
		return
	}
	s.watchers.broadcast(snapshot)
}
