package backups

import (
	"context"
	"log"
	"sync"
	"time"
)

// EventSource is a subscription to one server's daemon event feed. The
// handler is invoked for every frame; StreamEvents returns when the
// connection drops or ctx is cancelled.
type EventSource interface {
	StreamEvents(ctx context.Context, handler func(channel string, payload []byte)) error
}

const reconnectDelay = 5 * time.Second

// Manager owns one tracker per registered server plus the websocket
// subscription feeding it
type Manager struct {
	policy SweepPolicy

	mu       sync.RWMutex
	trackers map[string]*Tracker
	cancels  map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// NewManager creates an empty tracker registry
func NewManager(policy SweepPolicy) *Manager {
	return &Manager{
		policy:   policy,
		trackers: make(map[string]*Tracker),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Register creates (or returns) the tracker for a server and starts its
// event subscription. The subscription reconnects with a fixed delay until
// the server is unregistered.
func (m *Manager) Register(serverUUID string, api API, events EventSource) *Tracker {
	m.mu.Lock()
	if t, ok := m.trackers[serverUUID]; ok {
		m.mu.Unlock()
		return t
	}

	t := NewTracker(api, m.policy)
	m.trackers[serverUUID] = t

	ctx, cancel := context.WithCancel(context.Background())
	m.cancels[serverUUID] = cancel
	m.mu.Unlock()

	// Prime the snapshot so the first view is not empty
	refreshCtx, done := context.WithTimeout(ctx, 10*time.Second)
	if err := t.Refresh(refreshCtx); err != nil {
		log.Printf("Backup tracker: initial refresh for server %s failed: %v", serverUUID, err)
	}
	done()

	if events != nil {
		m.wg.Add(1)
		go m.subscribe(ctx, serverUUID, t, events)
	}

	return t
}

// subscribe keeps one server's event feed alive
func (m *Manager) subscribe(ctx context.Context, serverUUID string, t *Tracker, events EventSource) {
	defer m.wg.Done()

	for {
		err := events.StreamEvents(ctx, t.HandleEvent)
		if ctx.Err() != nil {
			return
		}
		log.Printf("Backup tracker: event feed for server %s dropped: %v. Reconnecting in %s...", serverUUID, err, reconnectDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// Get returns the tracker for a server, if registered
func (m *Manager) Get(serverUUID string) (*Tracker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trackers[serverUUID]
	return t, ok
}

// Unregister stops a server's subscription and tracker
func (m *Manager) Unregister(serverUUID string) {
	m.mu.Lock()
	t, ok := m.trackers[serverUUID]
	cancel := m.cancels[serverUUID]
	delete(m.trackers, serverUUID)
	delete(m.cancels, serverUUID)
	m.mu.Unlock()

	if !ok {
		return
	}
	if cancel != nil {
		cancel()
	}
	t.Close()
}

// Close stops all subscriptions and trackers
func (m *Manager) Close() {
	m.mu.Lock()
	trackers := m.trackers
	cancels := m.cancels
	m.trackers = make(map[string]*Tracker)
	m.cancels = make(map[string]context.CancelFunc)
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	m.wg.Wait()
	for _, t := range trackers {
		t.Close()
	}
}
