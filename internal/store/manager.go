package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tally/internal/notify"
	"tally/internal/remote"
)

// Manager owns one CategoryStore/PayeeStore pair per company. Stores are
// created lazily, primed with a full fetch on first access, and subscribed
// to the change-notification broker so external edits trigger a refetch.
type Manager struct {
	remote       remote.Store
	broker       *notify.Broker
	highlightTTL time.Duration
	log          *zap.SugaredLogger

	mu      sync.Mutex
	stores  map[string]*CategoryStore
	payees  map[string]*PayeeStore
	cancels []func()
}

// NewManager creates a store manager over the given remote capability.
func NewManager(r remote.Store, broker *notify.Broker, highlightTTL time.Duration, log *zap.SugaredLogger) *Manager {
	return &Manager{
		remote:       r,
		broker:       broker,
		highlightTTL: highlightTTL,
		log:          log,
		stores:       make(map[string]*CategoryStore),
		payees:       make(map[string]*PayeeStore),
	}
}

// Categories returns the category store for a company, creating and priming
// it on first access.
func (m *Manager) Categories(ctx context.Context, companyID string) (*CategoryStore, error) {
	m.mu.Lock()
	if st, ok := m.stores[companyID]; ok {
		m.mu.Unlock()
		return st, nil
	}
	st := NewCategoryStore(companyID, m.remote, m.highlightTTL, m.log)
	m.mu.Unlock()

	if err := st.Refetch(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.stores[companyID]; ok {
		// Another request primed the same company concurrently.
		return existing, nil
	}
	m.stores[companyID] = st
	if m.broker != nil {
		events, cancel := m.broker.Subscribe(companyID)
		m.cancels = append(m.cancels, cancel)
		go m.watch(st, events)
	}
	return st, nil
}

// Payees returns the payee store for a company, creating and priming it on
// first access.
func (m *Manager) Payees(ctx context.Context, companyID string) (*PayeeStore, error) {
	m.mu.Lock()
	if st, ok := m.payees[companyID]; ok {
		m.mu.Unlock()
		return st, nil
	}
	st := NewPayeeStore(companyID, m.remote, m.log)
	m.mu.Unlock()

	if err := st.Refetch(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.payees[companyID]; ok {
		return existing, nil
	}
	m.payees[companyID] = st
	return st, nil
}

// watch refetches the store whenever an external change arrives. The event
// carries a kind and record id, but the store's only obligation is a full
// refetch; in-flight optimistic state loses to the refetched truth.
func (m *Manager) watch(st *CategoryStore, events <-chan notify.Event) {
	for ev := range events {
		if err := st.Refetch(context.Background()); err != nil {
			m.log.Errorw("refetch after change notification failed",
				"company_id", st.CompanyID(), "kind", ev.Kind, "record_id", ev.RecordID, "error", err)
		}
	}
}

// Close cancels every notification subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
}
