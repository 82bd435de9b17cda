package session

import (
	"context"
	"sync"

	"github.com/securepatrol-id/securepatrol-backend/pkg/bus"
	pkgerrors "github.com/securepatrol-id/securepatrol-backend/pkg/errors"
	"github.com/securepatrol-id/securepatrol-backend/pkg/logger"
	"github.com/securepatrol-id/securepatrol-backend/pkg/models"
	"github.com/securepatrol-id/securepatrol-backend/pkg/store"
)

// Manager tracks the single active identity. The session is a cache, not a
// source of truth: collection managers call Sync whenever a canonical user
// record changes so duplicated fields never drift.
type Manager struct {
	mu      sync.RWMutex
	current *models.UserAccount

	store store.Store
	bus   *bus.Bus
	logg  *logger.Logger
}

// ManagerParams bundles the dependencies required to build a session manager.
type ManagerParams struct {
	Store  store.Store
	Bus    *bus.Bus
	Logger *logger.Logger
}

// NewManager restores any persisted session from the session partition so an
// authenticated identity survives a process restart.
func NewManager(ctx context.Context, params ManagerParams) (*Manager, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session store required")
	}
	if params.Bus == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session bus required")
	}

	m := &Manager{
		store: params.Store,
		bus:   params.Bus,
		logg:  params.Logger,
	}

	var persisted *models.UserAccount
	if _, err := store.LoadJSON(ctx, params.Store, store.PartitionSession, &persisted); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restore session")
	}
	m.current = persisted

	return m, nil
}

// Current returns the active account, or nil when no one is signed in. It is
// cheap and synchronous: it backs every authorization check in the system.
func (m *Manager) Current() *models.UserAccount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	account := *m.current
	return &account
}

// Start records the account as the active identity and broadcasts the auth
// transition.
func (m *Manager) Start(ctx context.Context, account models.UserAccount) error {
	m.mu.Lock()
	if err := store.SaveJSON(ctx, m.store, store.PartitionSession, &account); err != nil {
		m.mu.Unlock()
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist session")
	}
	m.current = &account
	m.mu.Unlock()

	if m.logg != nil {
		m.logg.Info(m.logg.WithUserID(ctx, account.ID), "session started")
	}
	m.bus.Publish(ctx, bus.TopicAuth)
	return nil
}

// End clears the active identity and broadcasts the auth transition. Ending
// an already-empty session is a no-op.
func (m *Manager) End(ctx context.Context) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil
	}
	if err := store.SaveJSON(ctx, m.store, store.PartitionSession, (*models.UserAccount)(nil)); err != nil {
		m.mu.Unlock()
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear session")
	}
	m.current = nil
	m.mu.Unlock()

	m.bus.Publish(ctx, bus.TopicAuth)
	return nil
}

// Sync reconciles the cached session with a freshly-mutated canonical
// record. Accounts other than the active one are ignored.
func (m *Manager) Sync(ctx context.Context, account models.UserAccount) error {
	m.mu.Lock()
	if m.current == nil || m.current.ID != account.ID {
		m.mu.Unlock()
		return nil
	}
	if err := store.SaveJSON(ctx, m.store, store.PartitionSession, &account); err != nil {
		m.mu.Unlock()
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reconcile session")
	}
	m.current = &account
	m.mu.Unlock()
	return nil
}
