package locations

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/securepatrol-id/securepatrol-backend/pkg/bus"
	pkgerrors "github.com/securepatrol-id/securepatrol-backend/pkg/errors"
	"github.com/securepatrol-id/securepatrol-backend/pkg/logger"
	"github.com/securepatrol-id/securepatrol-backend/pkg/models"
	"github.com/securepatrol-id/securepatrol-backend/pkg/store"
	"github.com/securepatrol-id/securepatrol-backend/pkg/validate"
)

// seedLocations is the checkpoint catalog served when the partition has never
// been written. The first mutation persists it, so the seed only backs reads
// of a fresh installation.
var seedLocations = []models.Location{
	{ID: "L001", Name: "Lobby Utama", Floor: "Lantai Dasar"},
	{ID: "L002", Name: "Ruang Server", Floor: "Lantai 2"},
	{ID: "L003", Name: "Gudang Logistik", Floor: "Basement"},
	{ID: "L004", Name: "Ruang Meeting CEO", Floor: "Lantai 10"},
	{ID: "L005", Name: "Area Parkir VIP", Floor: "Basement"},
	{ID: "L006", Name: "Kantin Karyawan", Floor: "Lantai 3"},
}

// AddInput is the payload for registering a patrol checkpoint.
type AddInput struct {
	Name  string `json:"name" validate:"required"`
	Floor string `json:"floor" validate:"required"`
}

// Service is the Locations collection manager: the catalog of patrol
// checkpoints a log entry can reference.
type Service struct {
	mu sync.Mutex

	store store.Store
	bus   *bus.Bus
	logg  *logger.Logger
	now   func() time.Time
}

// ServiceParams bundles the dependencies required to build the service.
type ServiceParams struct {
	Store  store.Store
	Bus    *bus.Bus
	Logger *logger.Logger

	// Now overrides the clock used for generated checkpoint ids. Tests only.
	Now func() time.Time
}

// NewService constructs a locations service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("locations store is required")
	}
	if params.Bus == nil {
		return nil, fmt.Errorf("locations bus is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store: params.Store,
		bus:   params.Bus,
		logg:  params.Logger,
		now:   now,
	}, nil
}

// List returns the checkpoint catalog. An unwritten partition yields the
// built-in seed so a fresh installation is immediately usable.
func (s *Service) List(ctx context.Context) ([]models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadAll(ctx)
}

// Add registers a checkpoint with a generated time-derived id and broadcasts
// the catalog change.
func (s *Service) Add(ctx context.Context, input AddInput) (models.Location, error) {
	if err := validate.Struct(input); err != nil {
		return models.Location{}, err
	}

	location, err := s.addLocked(ctx, input)
	if err != nil {
		return models.Location{}, err
	}

	// Published outside the mutex so a subscriber re-pulling through List
	// cannot deadlock; the event still lands before Add returns.
	s.bus.Publish(ctx, bus.TopicLocations)

	if s.logg != nil {
		s.logg.Info(ctx, fmt.Sprintf("checkpoint %q added", location.Name))
	}
	return location, nil
}

func (s *Service) addLocked(ctx context.Context, input AddInput) (models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	locs, err := s.loadAll(ctx)
	if err != nil {
		return models.Location{}, err
	}

	location := models.Location{
		ID:    strconv.FormatInt(s.now().UnixMilli(), 10),
		Name:  input.Name,
		Floor: input.Floor,
	}
	locs = append(locs, location)

	if err := s.save(ctx, locs); err != nil {
		return models.Location{}, err
	}
	return location, nil
}

// Remove deletes a checkpoint by id. Existing log entries keep their embedded
// checkpoint name, so history stays readable after removal.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.removeLocked(ctx, id); err != nil {
		return err
	}
	s.bus.Publish(ctx, bus.TopicLocations)
	return nil
}

func (s *Service) removeLocked(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locs, err := s.loadAll(ctx)
	if err != nil {
		return err
	}

	idx := -1
	for i := range locs {
		if locs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeRecordNotFound, "checkpoint not found")
	}

	remaining := append(locs[:idx:idx], locs[idx+1:]...)
	return s.save(ctx, remaining)
}

// FindByID resolves one checkpoint from the catalog.
func (s *Service) FindByID(ctx context.Context, id string) (models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	locs, err := s.loadAll(ctx)
	if err != nil {
		return models.Location{}, err
	}
	for _, loc := range locs {
		if loc.ID == id {
			return loc, nil
		}
	}
	return models.Location{}, pkgerrors.New(pkgerrors.CodeRecordNotFound, "checkpoint not found")
}

func (s *Service) loadAll(ctx context.Context) ([]models.Location, error) {
	var locs []models.Location
	found, err := store.LoadJSON(ctx, s.store, store.PartitionLocations, &locs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load locations")
	}
	if !found {
		seeded := make([]models.Location, len(seedLocations))
		copy(seeded, seedLocations)
		return seeded, nil
	}
	return locs, nil
}

func (s *Service) save(ctx context.Context, locs []models.Location) error {
	if err := store.SaveJSON(ctx, s.store, store.PartitionLocations, locs); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save locations")
	}
	return nil
}
