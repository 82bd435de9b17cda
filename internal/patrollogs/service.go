package patrollogs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/securepatrol-id/securepatrol-backend/pkg/bus"
	"github.com/securepatrol-id/securepatrol-backend/pkg/config"
	pkgerrors "github.com/securepatrol-id/securepatrol-backend/pkg/errors"
	"github.com/securepatrol-id/securepatrol-backend/pkg/logger"
	"github.com/securepatrol-id/securepatrol-backend/pkg/models"
	"github.com/securepatrol-id/securepatrol-backend/pkg/store"
)

// Service is the Logs collection manager: append-mostly patrol records with a
// bounded retention window.
type Service struct {
	mu sync.Mutex

	store   store.Store
	bus     *bus.Bus
	logg    *logger.Logger
	maxLogs int
}

// ServiceParams bundles the dependencies required to build the service.
type ServiceParams struct {
	Store     store.Store
	Bus       *bus.Bus
	Logger    *logger.Logger
	Retention config.RetentionConfig
}

// NewService constructs a patrol log service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("patrol log store is required")
	}
	if params.Bus == nil {
		return nil, fmt.Errorf("patrol log bus is required")
	}
	maxLogs := params.Retention.MaxLogs
	if maxLogs <= 0 {
		maxLogs = 50
	}
	return &Service{
		store:   params.Store,
		bus:     params.Bus,
		logg:    params.Logger,
		maxLogs: maxLogs,
	}, nil
}

// Append persists a completed patrol record. When the retention ceiling is
// exceeded the oldest entry by insertion order is evicted, keeping the
// partition bounded on a constrained medium.
func (s *Service) Append(ctx context.Context, entry models.PatrolLog) (models.PatrolLog, error) {
	if entry.ID == "" {
		return models.PatrolLog{}, pkgerrors.New(pkgerrors.CodeValidation, "log id is required")
	}

	evicted, err := s.appendLocked(ctx, entry)
	if err != nil {
		return models.PatrolLog{}, err
	}

	// Published after the mutex is released so a subscriber can re-pull the
	// fresh snapshot through List without deadlocking, while still observing
	// the mutation before Append returns.
	s.bus.Publish(ctx, bus.TopicLogs)

	if s.logg != nil && evicted > 0 {
		s.logg.Debug(ctx, fmt.Sprintf("evicted %d patrol log(s) past retention ceiling", evicted))
	}
	return entry, nil
}

func (s *Service) appendLocked(ctx context.Context, entry models.PatrolLog) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logs, err := s.loadAll(ctx)
	if err != nil {
		return 0, err
	}

	logs = append(logs, entry)
	evicted := 0
	for len(logs) > s.maxLogs {
		logs = logs[1:]
		evicted++
	}

	if err := store.SaveJSON(ctx, s.store, store.PartitionLogs, logs); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save patrol logs")
	}
	return evicted, nil
}

// List returns the retained records ordered newest first. Ties keep their
// relative insertion order.
func (s *Service) List(ctx context.Context) ([]models.PatrolLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp.After(logs[j].Timestamp)
	})
	return logs, nil
}

func (s *Service) loadAll(ctx context.Context) ([]models.PatrolLog, error) {
	var logs []models.PatrolLog
	if _, err := store.LoadJSON(ctx, s.store, store.PartitionLogs, &logs); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load patrol logs")
	}
	return logs, nil
}
