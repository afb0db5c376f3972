// Package usecase implements the profile business logic: resolving federated
// identities to local profiles and managing agent sessions.
package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/go-pwdhash"
	"github.com/google/uuid"

	"github.com/allisson/gridgate/internal/database"
	apperrors "github.com/allisson/gridgate/internal/errors"
	outboxdomain "github.com/allisson/gridgate/internal/outbox/domain"
	"github.com/allisson/gridgate/internal/user/domain"
	appValidation "github.com/allisson/gridgate/internal/validation"
)

// LogoffReplacedByNewLogin is the reason recorded when a new login displaces
// an active session for the same profile.
const LogoffReplacedByNewLogin = "This account is logging in from another location"

// CreateAccountInput contains the input data for local account creation
type CreateAccountInput struct {
	FirstName string `json:"first_name"`
	SurName   string `json:"sur_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// UseCase defines the interface for profile business logic operations
type UseCase interface {
	GetOrCreateByIdentity(ctx context.Context, identity *url.URL, firstName, lastName string) (*domain.UserProfile, error)
	GetProfileByID(ctx context.Context, id uuid.UUID) (*domain.UserProfile, error)
	CreateLocalAccount(ctx context.Context, input CreateAccountInput) (*domain.UserProfile, error)
	AuthenticateLocal(ctx context.Context, firstName, surName, password string) (*domain.UserProfile, error)
	BeginSession(ctx context.Context, profile *domain.UserProfile) error
	LogOffUser(ctx context.Context, profile *domain.UserProfile, reason string) error
	Friends(ctx context.Context, profileID uuid.UUID) ([]*domain.Friend, error)
}

// ProfileRepository interface defines profile repository operations
type ProfileRepository interface {
	Create(ctx context.Context, profile *domain.UserProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UserProfile, error)
	GetByName(ctx context.Context, firstName, surName string) (*domain.UserProfile, error)
	SaveAgentSession(ctx context.Context, profileID uuid.UUID, session *domain.AgentSession) error
	Friends(ctx context.Context, profileID uuid.UUID) ([]*domain.Friend, error)
}

// IdentityRepository interface defines identity mapping repository operations
type IdentityRepository interface {
	GetProfileID(ctx context.Context, identity string) (uuid.UUID, error)
	Map(ctx context.Context, identity string, profileID uuid.UUID) error
}

// OutboxEventRepository records presence events in the same transaction as
// the session change.
type OutboxEventRepository interface {
	Create(ctx context.Context, event *outboxdomain.OutboxEvent) error
}

// UserUseCase handles profile-related business logic
type UserUseCase struct {
	txManager      database.TxManager
	profileRepo    ProfileRepository
	identityRepo   IdentityRepository
	outboxRepo     OutboxEventRepository
	passwordHasher *pwdhash.PasswordHasher
	logger         *slog.Logger
	defaultHomeX   uint32
	defaultHomeY   uint32

	// sessionLocks serializes session creation per profile so two concurrent
	// logins for the same profile cannot both end up online.
	sessionLocks   map[uuid.UUID]*sync.Mutex
	sessionLocksMu sync.Mutex
}

// NewUserUseCase creates a new UserUseCase
func NewUserUseCase(
	txManager database.TxManager,
	profileRepo ProfileRepository,
	identityRepo IdentityRepository,
	outboxRepo OutboxEventRepository,
	logger *slog.Logger,
	defaultHomeX, defaultHomeY uint32,
) (UseCase, error) {
	hasher, err := pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyInteractive))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create password hasher")
	}

	return &UserUseCase{
		txManager:      txManager,
		profileRepo:    profileRepo,
		identityRepo:   identityRepo,
		outboxRepo:     outboxRepo,
		passwordHasher: hasher,
		logger:         logger,
		defaultHomeX:   defaultHomeX,
		defaultHomeY:   defaultHomeY,
		sessionLocks:   make(map[uuid.UUID]*sync.Mutex),
	}, nil
}

// GetOrCreateByIdentity resolves an authenticated identity URI to its local
// profile, creating one on first login. The profile UUID is derived from the
// identity URI; if the grid name derived from the provider attributes is
// already taken, creation is retried once with an identity-derived name.
func (uc *UserUseCase) GetOrCreateByIdentity(ctx context.Context, identity *url.URL, firstName, lastName string) (*domain.UserProfile, error) {
	identityKey := identity.String()

	profileID, err := uc.identityRepo.GetProfileID(ctx, identityKey)
	if err == nil {
		return uc.profileRepo.GetByID(ctx, profileID)
	}
	if !apperrors.Is(err, domain.ErrIdentityNotMapped) {
		return nil, err
	}

	derivedID := domain.ProfileIDForIdentity(identity)
	gridFirst, gridLast := domain.GridNameForIdentity(identity, firstName, lastName)

	var created *domain.UserProfile
	err = uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		profile := &domain.UserProfile{
			ID:          derivedID,
			FirstName:   gridFirst,
			SurName:     gridLast,
			HomeRegionX: uc.defaultHomeX,
			HomeRegionY: uc.defaultHomeY,
		}

		if err := uc.profileRepo.Create(ctx, profile); err != nil {
			if !apperrors.Is(err, domain.ErrProfileNameTaken) {
				return err
			}

			// Name collision with a different identity. Retry once with a
			// name derived from the identity URI itself.
			gridFirst, gridLast = domain.GridNameForIdentity(identity, "", "")
			profile.FirstName = gridFirst
			profile.SurName = gridLast
			if err := uc.profileRepo.Create(ctx, profile); err != nil {
				return err
			}
		}

		stored, err := uc.profileRepo.GetByName(ctx, gridFirst, gridLast)
		if err != nil {
			return err
		}
		if stored.ID != derivedID {
			uc.logger.Warn("created profile UUID differs from identity-derived UUID",
				slog.String("identity", identityKey),
				slog.String("derived_id", derivedID.String()),
				slog.String("stored_id", stored.ID.String()),
			)
		}

		if err := uc.identityRepo.Map(ctx, identityKey, stored.ID); err != nil {
			return err
		}

		created = stored
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("created profile for first login",
		slog.String("identity", identityKey),
		slog.String("profile_id", created.ID.String()),
		slog.String("name", created.Name()),
	)

	return created, nil
}

// GetProfileByID retrieves a profile by ID
func (uc *UserUseCase) GetProfileByID(ctx context.Context, id uuid.UUID) (*domain.UserProfile, error) {
	return uc.profileRepo.GetByID(ctx, id)
}

// validateCreateAccountInput validates the account creation input
func (uc *UserUseCase) validateCreateAccountInput(input CreateAccountInput) error {
	err := validation.ValidateStruct(&input,
		validation.Field(&input.FirstName,
			validation.Required.Error("first name is required"),
			appValidation.NotBlank,
			validation.Length(1, 64).Error("first name must be between 1 and 64 characters"),
		),
		validation.Field(&input.SurName,
			validation.Required.Error("sur name is required"),
			appValidation.NotBlank,
			validation.Length(1, 64).Error("sur name must be between 1 and 64 characters"),
		),
		validation.Field(&input.Email,
			validation.When(input.Email != "", appValidation.Email),
		),
		validation.Field(&input.Password,
			validation.Required.Error("password is required"),
			validation.Length(8, 128).Error("password must be between 8 and 128 characters"),
		),
	)
	return appValidation.WrapValidationError(err)
}

// CreateLocalAccount creates a pre-registered local account that can log in
// with a direct credential check instead of a federated identity.
func (uc *UserUseCase) CreateLocalAccount(ctx context.Context, input CreateAccountInput) (*domain.UserProfile, error) {
	if err := uc.validateCreateAccountInput(input); err != nil {
		return nil, err
	}

	hashedPassword, err := uc.passwordHasher.Hash([]byte(input.Password))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to hash password")
	}

	profile := &domain.UserProfile{
		ID:           uuid.Must(uuid.NewV7()),
		FirstName:    strings.TrimSpace(input.FirstName),
		SurName:      strings.TrimSpace(input.SurName),
		Email:        strings.TrimSpace(strings.ToLower(input.Email)),
		PasswordHash: hashedPassword,
		HomeRegionX:  uc.defaultHomeX,
		HomeRegionY:  uc.defaultHomeY,
	}

	if err := uc.profileRepo.Create(ctx, profile); err != nil {
		return nil, err
	}

	return profile, nil
}

// AuthenticateLocal verifies a local account's credentials
func (uc *UserUseCase) AuthenticateLocal(ctx context.Context, firstName, surName, password string) (*domain.UserProfile, error) {
	profile, err := uc.profileRepo.GetByName(ctx, firstName, surName)
	if err != nil {
		if apperrors.Is(err, domain.ErrProfileNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if profile.PasswordHash == "" {
		return nil, domain.ErrInvalidCredentials
	}

	valid, err := uc.passwordHasher.Verify([]byte(password), profile.PasswordHash)
	if err != nil || !valid {
		return nil, domain.ErrInvalidCredentials
	}

	return profile, nil
}

// BeginSession creates a fresh agent session for the profile. At most one
// session is online per profile: an existing online session is logged off
// first.
func (uc *UserUseCase) BeginSession(ctx context.Context, profile *domain.UserProfile) error {
	lock := uc.profileLock(profile.ID)
	lock.Lock()
	defer lock.Unlock()

	// The caller's copy was loaded before the lock was taken and can miss a
	// login that came online since. Log off whatever session is stored now,
	// not what the caller last saw.
	current, err := uc.profileRepo.GetByID(ctx, profile.ID)
	if err != nil && !apperrors.Is(err, domain.ErrProfileNotFound) {
		return err
	}
	if current != nil && current.Online() {
		if err := uc.LogOffUser(ctx, current, LogoffReplacedByNewLogin); err != nil {
			return err
		}
	}

	session := &domain.AgentSession{
		SessionID:       uuid.Must(uuid.NewV7()),
		SecureSessionID: uuid.Must(uuid.NewV7()),
		Online:          true,
		LoginTime:       time.Now().UTC(),
	}

	err = uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.profileRepo.SaveAgentSession(ctx, profile.ID, session); err != nil {
			return err
		}
		return uc.recordPresenceEvent(ctx, outboxdomain.EventTypePresenceLogin, profile, session.SessionID, "")
	})
	if err != nil {
		return err
	}

	profile.CurrentAgent = session
	profile.LastLogin = session.LoginTime

	uc.logger.Info("agent session created",
		slog.String("profile_id", profile.ID.String()),
		slog.String("name", profile.Name()),
		slog.String("session_id", session.SessionID.String()),
	)

	return nil
}

// LogOffUser marks the profile's current session offline
func (uc *UserUseCase) LogOffUser(ctx context.Context, profile *domain.UserProfile, reason string) error {
	if profile.CurrentAgent == nil {
		return nil
	}

	profile.CurrentAgent.Online = false
	profile.CurrentAgent.LogoutTime = time.Now().UTC()

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := uc.profileRepo.SaveAgentSession(ctx, profile.ID, profile.CurrentAgent); err != nil {
			return err
		}
		return uc.recordPresenceEvent(ctx, outboxdomain.EventTypePresenceLogout, profile, profile.CurrentAgent.SessionID, reason)
	})
	if err != nil {
		return err
	}

	uc.logger.Info("agent session logged off",
		slog.String("profile_id", profile.ID.String()),
		slog.String("name", profile.Name()),
		slog.String("reason", reason),
	)

	return nil
}

// Friends retrieves the friend list owned by a profile
func (uc *UserUseCase) Friends(ctx context.Context, profileID uuid.UUID) ([]*domain.Friend, error) {
	return uc.profileRepo.Friends(ctx, profileID)
}

// recordPresenceEvent writes a presence event to the outbox. A nil outbox
// repository disables presence publishing.
func (uc *UserUseCase) recordPresenceEvent(ctx context.Context, eventType string, profile *domain.UserProfile, sessionID uuid.UUID, reason string) error {
	if uc.outboxRepo == nil {
		return nil
	}

	payload, err := json.Marshal(outboxdomain.PresencePayload{
		ProfileID: profile.ID,
		Name:      profile.Name(),
		SessionID: sessionID,
		Reason:    reason,
	})
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal presence payload")
	}

	return uc.outboxRepo.Create(ctx, &outboxdomain.OutboxEvent{
		ID:        uuid.Must(uuid.NewV7()),
		EventType: eventType,
		Payload:   string(payload),
		Status:    outboxdomain.OutboxEventStatusPending,
	})
}

// profileLock returns the mutex serializing session changes for a profile
func (uc *UserUseCase) profileLock(id uuid.UUID) *sync.Mutex {
	uc.sessionLocksMu.Lock()
	defer uc.sessionLocksMu.Unlock()

	lock, ok := uc.sessionLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		uc.sessionLocks[id] = lock
	}
	return lock
}
