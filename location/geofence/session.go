package geofence

import (
	"context"
	"sync"

	"github.com/hrygo/geominder/location/metrics"
)

// MonitorSession owns the single device monitoring session. Start and stop
// are driven purely by the reference count: the session runs while the count
// is positive.
type MonitorSession struct {
	capability Capability
	metrics    *metrics.Exporter

	mu      sync.Mutex
	count   int
	running bool
}

// NewMonitorSession creates a stopped session.
func NewMonitorSession(capability Capability, m *metrics.Exporter) *MonitorSession {
	return &MonitorSession{capability: capability, metrics: m}
}

// Acquire adds one reference, starting monitoring on the first.
func (s *MonitorSession) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	if err := s.apply(ctx); err != nil {
		s.count--
		return err
	}
	return nil
}

// Release drops one reference, stopping monitoring on the last.
func (s *MonitorSession) Release(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		return nil
	}
	s.count--
	return s.apply(ctx)
}

// Reconcile replaces the count with n, the number of reminders that
// currently hold registered triggers.
func (s *MonitorSession) Reconcile(ctx context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count = max(n, 0)
	return s.apply(ctx)
}

func (s *MonitorSession) apply(ctx context.Context) error {
	switch {
	case s.count > 0 && !s.running:
		if err := s.capability.StartMonitoring(ctx); err != nil {
			return err
		}
		s.running = true
	case s.count == 0 && s.running:
		if err := s.capability.StopMonitoring(ctx); err != nil {
			return err
		}
		s.running = false
	default:
		return nil
	}
	s.metrics.SetMonitoring(s.running)
	return nil
}

// Count returns the current reference count.
func (s *MonitorSession) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Running reports whether monitoring is started.
func (s *MonitorSession) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
