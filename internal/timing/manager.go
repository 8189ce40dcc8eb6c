package timing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/CloudNativeWorks/sak-client/internal/transport"
	"github.com/CloudNativeWorks/sak-client/pkg/logger"
	"github.com/benbjohnson/clock"
)

// Store persists timed-send items per page type
type Store interface {
	List(ctx context.Context, pageType string) ([]Item, error)
	Upsert(ctx context.Context, pageType string, item Item) error
	Delete(ctx context.Context, pageType string, id int64) error
}

// ManagerOption customizes a Manager
type ManagerOption func(*Manager)

// WithClock swaps the wall clock, mainly for tests
func WithClock(clk clock.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = clk
	}
}

// Manager owns the timed senders of one debug page
type Manager struct {
	log      *logger.Logger
	clock    clock.Clock
	writer   transport.Writer
	store    Store
	pageType string

	mu      sync.Mutex
	senders map[int64]*Sender
}

// NewManager creates an empty manager for pageType
func NewManager(pageType string, writer transport.Writer, store Store, log *logger.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		log:      log,
		clock:    clock.New(),
		writer:   writer,
		store:    store,
		pageType: pageType,
		senders:  make(map[int64]*Sender),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PageType returns the page the manager's items belong to
func (m *Manager) PageType() string {
	return m.pageType
}

// Add creates a new idle sender whose id is the creation time in milliseconds
func (m *Manager) Add(item Item) *Sender {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.clock.Now().UnixMilli()
	for {
		if _, exists := m.senders[id]; !exists {
			break
		}
		id++
	}
	item.ID = id

	s := NewSender(item, m.writer, m.clock, m.log)
	m.senders[id] = s
	return s
}

// Load replaces the in-memory senders with the stored items
func (m *Manager) Load(ctx context.Context) error {
	items, err := m.store.List(ctx, m.pageType)
	if err != nil {
		return fmt.Errorf("failed to load timed sends: %w", err)
	}

	m.StopAll()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.senders = make(map[int64]*Sender, len(items))
	for _, item := range items {
		m.senders[item.ID] = NewSender(item, m.writer, m.clock, m.log)
	}

	m.log.WithFields(logger.Fields{
		"page_type": m.pageType,
		"count":     len(items),
	}).Info("Timed sends loaded")
	return nil
}

// Get returns the sender with id
func (m *Manager) Get(id int64) (*Sender, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.senders[id]
	return s, ok
}

// Senders returns all senders ordered by id
func (m *Manager) Senders() []*Sender {
	m.mu.Lock()
	out := make([]*Sender, 0, len(m.senders))
	for _, s := range m.senders {
		out = append(out, s)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Update persists the current state of sender id
func (m *Manager) Update(ctx context.Context, id int64) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("timed send %d not found", id)
	}
	if err := m.store.Upsert(ctx, m.pageType, s.Item()); err != nil {
		return fmt.Errorf("failed to update timed send %d: %w", id, err)
	}
	return nil
}

// Remove stops sender id and deletes it from the store
func (m *Manager) Remove(ctx context.Context, id int64) error {
	m.mu.Lock()
	s, ok := m.senders[id]
	delete(m.senders, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("timed send %d not found", id)
	}
	s.Stop()

	if err := m.store.Delete(ctx, m.pageType, id); err != nil {
		return fmt.Errorf("failed to delete timed send %d: %w", id, err)
	}
	return nil
}

// StartAll enables every sender with a non-empty payload
func (m *Manager) StartAll() int {
	started := 0
	for _, s := range m.Senders() {
		if s.Payload() == "" {
			continue
		}
		s.Start()
		started++
	}
	return started
}

// StopAll disables every sender
func (m *Manager) StopAll() {
	for _, s := range m.Senders() {
		s.Stop()
	}
}
