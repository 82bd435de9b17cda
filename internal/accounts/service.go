package accounts

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/securepatrol-id/securepatrol-backend/pkg/bus"
	"github.com/securepatrol-id/securepatrol-backend/pkg/config"
	"github.com/securepatrol-id/securepatrol-backend/pkg/enums"
	pkgerrors "github.com/securepatrol-id/securepatrol-backend/pkg/errors"
	"github.com/securepatrol-id/securepatrol-backend/pkg/logger"
	"github.com/securepatrol-id/securepatrol-backend/pkg/models"
	"github.com/securepatrol-id/securepatrol-backend/pkg/security"
	"github.com/securepatrol-id/securepatrol-backend/pkg/store"
	"github.com/securepatrol-id/securepatrol-backend/pkg/validate"
)

// MasterAccountID identifies the synthetic always-active admin backing the
// configured master credential pair. It never exists in the users partition.
const MasterAccountID = "admin-001"

const tempPasswordLength = 10

// sessionCache is the slice of the session manager the accounts service
// needs to keep the active session consistent with canonical records.
type sessionCache interface {
	Current() *models.UserAccount
	Sync(ctx context.Context, account models.UserAccount) error
	End(ctx context.Context) error
}

// Service is the Users collection manager: CRUD plus domain rules layered on
// the partition store, publishing a users event on every mutation. Events
// are published after the service mutex is released, so a subscriber can
// re-pull the fresh snapshot through List without deadlocking; the event
// still lands before the mutating call returns.
type Service struct {
	mu sync.Mutex

	store       store.Store
	bus         *bus.Bus
	session     sessionCache
	logg        *logger.Logger
	passwordCfg config.PasswordConfig
	master      config.MasterConfig
}

// ServiceParams bundles the dependencies required to build the service.
type ServiceParams struct {
	Store          store.Store
	Bus            *bus.Bus
	Session        sessionCache
	Logger         *logger.Logger
	PasswordConfig config.PasswordConfig
	MasterConfig   config.MasterConfig
}

// NewService constructs an accounts service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("accounts store is required")
	}
	if params.Bus == nil {
		return nil, fmt.Errorf("accounts bus is required")
	}
	if params.Session == nil {
		return nil, fmt.Errorf("session cache is required")
	}
	return &Service{
		store:       params.Store,
		bus:         params.Bus,
		session:     params.Session,
		logg:        params.Logger,
		passwordCfg: params.PasswordConfig,
		master:      params.MasterConfig,
	}, nil
}

// Register creates a self-service account. The new account is forced to
// pending status regardless of input; an admin must approve it before the
// credential can be used for submissions.
func (s *Service) Register(ctx context.Context, input RegisterInput) (models.UserAccount, error) {
	if err := validate.Struct(input); err != nil {
		return models.UserAccount{}, err
	}

	hash, err := security.HashPassword(input.Password, s.passwordCfg)
	if err != nil {
		return models.UserAccount{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	account := models.UserAccount{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(input.Email),
		Name:         input.Name,
		BadgeNumber:  input.BadgeNumber,
		Role:         enums.AccountRoleUser,
		Status:       enums.AccountStatusPending,
		AvatarURL:    defaultAvatarURL(input.Name),
		PasswordHash: hash,
	}

	if err := s.insertLocked(ctx, account); err != nil {
		return models.UserAccount{}, err
	}
	s.bus.Publish(ctx, bus.TopicUsers)

	if s.logg != nil {
		s.logg.Info(s.logg.WithUserID(ctx, account.ID), "account registered, awaiting approval")
	}
	return account.Redacted(), nil
}

// Authenticate resolves a credential pair to an account. The configured
// master pair always authenticates to a synthetic active admin, whatever the
// users partition contains.
func (s *Service) Authenticate(ctx context.Context, email, password string) (models.UserAccount, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return models.UserAccount{}, pkgerrors.New(pkgerrors.CodeAccountNotFound, "account not found")
	}

	if s.master.Enabled() && normalized == normalizeEmail(s.master.Email) {
		if password != s.master.Password {
			return models.UserAccount{}, pkgerrors.New(pkgerrors.CodeInvalidCredential, "invalid credentials")
		}
		return masterAccount(normalized), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadAll(ctx)
	if err != nil {
		return models.UserAccount{}, err
	}
	account := findByEmail(users, normalized)
	if account == nil {
		return models.UserAccount{}, pkgerrors.New(pkgerrors.CodeAccountNotFound, "account not found")
	}

	ok, err := security.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return models.UserAccount{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return models.UserAccount{}, pkgerrors.New(pkgerrors.CodeInvalidCredential, "invalid credentials")
	}

	return account.Redacted(), nil
}

// AdminCreate provisions an account on behalf of an operator. Unlike
// self-registration the account defaults to active. When no password is
// supplied a temporary one is generated and returned exactly once.
func (s *Service) AdminCreate(ctx context.Context, authz AuthzContext, input CreateInput) (models.UserAccount, string, error) {
	if err := requireAdmin(authz); err != nil {
		return models.UserAccount{}, "", err
	}
	if err := validate.Struct(input); err != nil {
		return models.UserAccount{}, "", err
	}

	role := input.Role
	if role == "" {
		role = enums.AccountRoleUser
	}
	if !role.IsValid() {
		return models.UserAccount{}, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid account role")
	}
	status := input.Status
	if status == "" {
		status = enums.AccountStatusActive
	}
	if !status.IsValid() {
		return models.UserAccount{}, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid account status")
	}

	password := input.Password
	tempPassword := ""
	if password == "" {
		generated, err := security.GenerateTempPassword(tempPasswordLength)
		if err != nil {
			return models.UserAccount{}, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate temp password")
		}
		password = generated
		tempPassword = generated
	}

	hash, err := security.HashPassword(password, s.passwordCfg)
	if err != nil {
		return models.UserAccount{}, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	account := models.UserAccount{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(input.Email),
		Name:         input.Name,
		BadgeNumber:  input.BadgeNumber,
		Role:         role,
		Status:       status,
		AvatarURL:    defaultAvatarURL(input.Name),
		PasswordHash: hash,
	}

	if err := s.insertLocked(ctx, account); err != nil {
		return models.UserAccount{}, "", err
	}
	s.bus.Publish(ctx, bus.TopicUsers)
	return account.Redacted(), tempPassword, nil
}

// AdminUpdate edits a canonical account record. When the edited account is
// the active session, the session cache is reconciled before returning.
func (s *Service) AdminUpdate(ctx context.Context, authz AuthzContext, input UpdateInput) (models.UserAccount, error) {
	if err := requireAdmin(authz); err != nil {
		return models.UserAccount{}, err
	}
	if err := validate.Struct(input); err != nil {
		return models.UserAccount{}, err
	}

	account, err := s.updateLocked(ctx, input)
	if err != nil {
		return models.UserAccount{}, err
	}
	s.bus.Publish(ctx, bus.TopicUsers)

	if err := s.session.Sync(ctx, account.Redacted()); err != nil {
		return models.UserAccount{}, err
	}
	return account.Redacted(), nil
}

func (s *Service) updateLocked(ctx context.Context, input UpdateInput) (models.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadAll(ctx)
	if err != nil {
		return models.UserAccount{}, err
	}
	idx := indexByID(users, input.ID)
	if idx < 0 {
		return models.UserAccount{}, pkgerrors.New(pkgerrors.CodeRecordNotFound, "account not found")
	}

	account := users[idx]
	if input.Email != "" {
		email := normalizeEmail(input.Email)
		if other := findByEmail(users, email); other != nil && other.ID != account.ID {
			return models.UserAccount{}, pkgerrors.New(pkgerrors.CodeDuplicateEmail, "email already registered")
		}
		account.Email = email
	}
	if input.Name != "" {
		account.Name = input.Name
	}
	if input.BadgeNumber != nil {
		account.BadgeNumber = *input.BadgeNumber
	}
	if input.Role != "" {
		if !input.Role.IsValid() {
			return models.UserAccount{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid account role")
		}
		account.Role = input.Role
	}
	if input.Status != "" {
		if !input.Status.IsValid() {
			return models.UserAccount{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid account status")
		}
		account.Status = input.Status
	}
	if input.AvatarURL != nil {
		account.AvatarURL = *input.AvatarURL
	}

	users[idx] = account
	if err := s.save(ctx, users); err != nil {
		return models.UserAccount{}, err
	}
	return account, nil
}

// AdminDelete removes an account. A live session referencing the removed id
// is ended so a deleted identity cannot keep acting.
func (s *Service) AdminDelete(ctx context.Context, authz AuthzContext, id string) error {
	if err := requireAdmin(authz); err != nil {
		return err
	}

	if err := s.deleteLocked(ctx, id); err != nil {
		return err
	}
	s.bus.Publish(ctx, bus.TopicUsers)

	if current := s.session.Current(); current != nil && current.ID == id {
		if err := s.session.End(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) deleteLocked(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadAll(ctx)
	if err != nil {
		return err
	}
	idx := indexByID(users, id)
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeRecordNotFound, "account not found")
	}

	remaining := append(users[:idx:idx], users[idx+1:]...)
	return s.save(ctx, remaining)
}

// ResetCredential replaces an account's secret with a new one.
func (s *Service) ResetCredential(ctx context.Context, authz AuthzContext, id, newPassword string) error {
	if err := requireAdmin(authz); err != nil {
		return err
	}
	if newPassword == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "new password is required")
	}

	hash, err := security.HashPassword(newPassword, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	account, err := s.mutateLocked(ctx, id, func(account *models.UserAccount) {
		account.PasswordHash = hash
	})
	if err != nil {
		return err
	}
	s.bus.Publish(ctx, bus.TopicUsers)
	return s.session.Sync(ctx, account.Redacted())
}

// SetStatus transitions an account between pending and active.
func (s *Service) SetStatus(ctx context.Context, authz AuthzContext, id string, status enums.AccountStatus) error {
	if err := requireAdmin(authz); err != nil {
		return err
	}
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid account status")
	}

	account, err := s.mutateLocked(ctx, id, func(account *models.UserAccount) {
		account.Status = status
	})
	if err != nil {
		return err
	}
	s.bus.Publish(ctx, bus.TopicUsers)
	return s.session.Sync(ctx, account.Redacted())
}

// SyncProfile applies a self-service profile edit: display fields only, the
// credential, role and status are preserved. When the id is absent from the
// partition but matches the signed-in identity, the record is created, which
// is how the synthetic master admin enters the roster.
func (s *Service) SyncProfile(ctx context.Context, input ProfileInput) (models.UserAccount, error) {
	if err := validate.Struct(input); err != nil {
		return models.UserAccount{}, err
	}

	account, err := s.syncProfileLocked(ctx, input)
	if err != nil {
		return models.UserAccount{}, err
	}
	s.bus.Publish(ctx, bus.TopicUsers)

	if err := s.session.Sync(ctx, account.Redacted()); err != nil {
		return models.UserAccount{}, err
	}
	return account.Redacted(), nil
}

func (s *Service) syncProfileLocked(ctx context.Context, input ProfileInput) (models.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadAll(ctx)
	if err != nil {
		return models.UserAccount{}, err
	}
	idx := indexByID(users, input.ID)
	if idx < 0 {
		current := s.session.Current()
		if current == nil || current.ID != input.ID {
			return models.UserAccount{}, pkgerrors.New(pkgerrors.CodeRecordNotFound, "account not found")
		}
		users = append(users, *current)
		idx = len(users) - 1
	}

	account := users[idx]
	if input.Name != "" {
		account.Name = input.Name
	}
	if input.BadgeNumber != nil {
		account.BadgeNumber = *input.BadgeNumber
	}
	if input.AvatarURL != nil {
		account.AvatarURL = *input.AvatarURL
	}

	users[idx] = account
	if err := s.save(ctx, users); err != nil {
		return models.UserAccount{}, err
	}
	return account, nil
}

// List returns every account, credential redacted.
func (s *Service) List(ctx context.Context) ([]models.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserAccount, 0, len(users))
	for _, u := range users {
		out = append(out, u.Redacted())
	}
	return out, nil
}

// FindByID returns a single account, credential redacted.
func (s *Service) FindByID(ctx context.Context, id string) (models.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadAll(ctx)
	if err != nil {
		return models.UserAccount{}, err
	}
	idx := indexByID(users, id)
	if idx < 0 {
		return models.UserAccount{}, pkgerrors.New(pkgerrors.CodeRecordNotFound, "account not found")
	}
	return users[idx].Redacted(), nil
}

// insertLocked appends a new account after re-checking email uniqueness
// under the mutex.
func (s *Service) insertLocked(ctx context.Context, account models.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadAll(ctx)
	if err != nil {
		return err
	}
	if findByEmail(users, account.Email) != nil {
		return pkgerrors.New(pkgerrors.CodeDuplicateEmail, "email already registered")
	}
	return s.save(ctx, append(users, account))
}

// mutateLocked applies an in-place edit to one account and persists the
// partition, returning the mutated record.
func (s *Service) mutateLocked(ctx context.Context, id string, apply func(*models.UserAccount)) (models.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadAll(ctx)
	if err != nil {
		return models.UserAccount{}, err
	}
	idx := indexByID(users, id)
	if idx < 0 {
		return models.UserAccount{}, pkgerrors.New(pkgerrors.CodeRecordNotFound, "account not found")
	}

	apply(&users[idx])
	if err := s.save(ctx, users); err != nil {
		return models.UserAccount{}, err
	}
	return users[idx], nil
}

func (s *Service) loadAll(ctx context.Context) ([]models.UserAccount, error) {
	var users []models.UserAccount
	if _, err := store.LoadJSON(ctx, s.store, store.PartitionUsers, &users); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load users")
	}
	return users, nil
}

// save overwrites the users partition. A storage fault leaves the partition
// unchanged and is raised to the caller.
func (s *Service) save(ctx context.Context, users []models.UserAccount) error {
	if err := store.SaveJSON(ctx, s.store, store.PartitionUsers, users); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save users")
	}
	return nil
}

func masterAccount(email string) models.UserAccount {
	return models.UserAccount{
		ID:          MasterAccountID,
		Email:       email,
		Name:        "Administrator",
		BadgeNumber: "ADM-001",
		Role:        enums.AccountRoleAdmin,
		Status:      enums.AccountStatusActive,
		AvatarURL:   defaultAvatarURL("Admin"),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func findByEmail(users []models.UserAccount, email string) *models.UserAccount {
	for i := range users {
		if normalizeEmail(users[i].Email) == email {
			return &users[i]
		}
	}
	return nil
}

func indexByID(users []models.UserAccount, id string) int {
	for i := range users {
		if users[i].ID == id {
			return i
		}
	}
	return -1
}

func defaultAvatarURL(name string) string {
	display := strings.TrimSpace(name)
	if display == "" {
		display = "U"
	}
	return fmt.Sprintf("https://ui-avatars.com/api/?name=%s&background=0f172a&color=fff", url.QueryEscape(display))
}
