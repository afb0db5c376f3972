// Package usecase implements the capability negotiation state machine that
// turns an authenticated identity into a claimable agent session. A login
// resolves the grid services, collects capability grants over the trusted and
// delegated-authorization paths, and suspends itself in a registry whenever a
// handshake leaves the process.
package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"

	capabilitydomain "github.com/allisson/gridgate/internal/capability/domain"
	discoverydomain "github.com/allisson/gridgate/internal/discovery/domain"
	"github.com/allisson/gridgate/internal/errors"
	"github.com/allisson/gridgate/internal/login/domain"
	"github.com/allisson/gridgate/internal/registry"
	userusecase "github.com/allisson/gridgate/internal/user/usecase"
)

// callbackPath is where delegated-authorization providers send the viewer
// browser back to resume a suspended negotiation.
const callbackPath = "/login/oauth_callback"

// Outcome is the result of advancing a negotiation. Exactly one of the two
// shapes is set: a redirect the viewer browser must follow to authorize the
// next handshake, or a completed session awaiting its claim.
type Outcome struct {
	// AuthorizeRedirect is the remote authorize endpoint for the outstanding
	// handshake, nil when the login completed.
	AuthorizeRedirect *url.URL

	// Session is the completed pending session, nil while handshakes remain.
	Session *domain.PendingSession
	// ClaimURL is the legacy login endpoint where the viewer claims Session.
	ClaimURL *url.URL
	// AuthCookie is the browser token issued alongside a completed session.
	AuthCookie string
}

// Completed reports whether the negotiation produced a claimable session.
func (o *Outcome) Completed() bool {
	return o.Session != nil
}

// DescriptorCache resolves service locations into cached descriptors.
type DescriptorCache interface {
	Resolve(ctx context.Context, location *url.URL, serviceType string, allowOverride bool) (*discoverydomain.Service, error)
	Invalidate(location *url.URL)
}

// TrustedCapabilityFetcher collects grants from a pre-trusted seed capability.
type TrustedCapabilityFetcher interface {
	Fetch(ctx context.Context, seedCapability *url.URL, identity *url.URL, capabilities []string) (capabilitydomain.CapabilityMap, error)
}

// Authorizer drives one delegated-authorization handshake.
type Authorizer interface {
	BeginAuthorization(ctx context.Context, svc *discoverydomain.Service, callback *url.URL, capabilities []string) (*url.URL, string, error)
	CompleteAuthorization(ctx context.Context, svc *discoverydomain.Service, token, verifier string) (capabilitydomain.CapabilityMap, error)
}

// IdentityPolicy decides whether an authenticated identity may log in at all.
type IdentityPolicy interface {
	IsIdentityAuthorized(identity *url.URL) bool
}

// AllowAllPolicy authorizes every identity. It is the default policy.
type AllowAllPolicy struct{}

// IsIdentityAuthorized always reports true.
func (AllowAllPolicy) IsIdentityAuthorized(*url.URL) bool { return true }

// UseCase defines the interface for login negotiation operations
type UseCase interface {
	StartLogin(ctx context.Context, input StartLoginInput) (*Outcome, error)
	ResumeAuthorization(ctx context.Context, token, verifier string) (*Outcome, error)
	ClaimSession(ctx context.Context, sessionID uuid.UUID) (*domain.PendingSession, error)
	CookieIdentity(token string) (*domain.AuthCookie, bool)
}

// StartLoginInput describes one authenticated login attempt.
type StartLoginInput struct {
	// Identity is the authenticated identity URI.
	Identity *url.URL
	// AuthMethod records how the identity was authenticated (openid, cookie,
	// password). Used for logging only.
	AuthMethod string
	// FirstName and LastName are optional provider attributes used to name a
	// profile created on first login.
	FirstName string
	LastName  string
	// StartLocation is the region start request from the login form.
	StartLocation string
}

// LoginUseCase is the negotiation state machine. Per-attempt state lives in
// the Negotiation value, which is either on the stack of one request or parked
// in the pending-authorization registry; the use case itself only holds shared
// collaborators and registries.
type LoginUseCase struct {
	cache      DescriptorCache
	trusted    TrustedCapabilityFetcher
	authorizer Authorizer
	users      userusecase.UseCase
	policy     IdentityPolicy

	// serviceLocations maps each required service type to its configured
	// descriptor location.
	serviceLocations map[string]*url.URL

	pendingAuth  *registry.Registry[string, *domain.Negotiation]
	pendingLogin *registry.Registry[uuid.UUID, *domain.PendingSession]
	authCookies  *registry.Registry[string, *domain.AuthCookie]

	externalURL *url.URL
	logger      *slog.Logger
}

// NewLoginUseCase creates the negotiation state machine.
func NewLoginUseCase(
	cache DescriptorCache,
	trusted TrustedCapabilityFetcher,
	authorizer Authorizer,
	users userusecase.UseCase,
	policy IdentityPolicy,
	serviceLocations map[string]*url.URL,
	externalURL *url.URL,
	pendingAuthTTL, pendingLoginTTL, authCookieTTL time.Duration,
	logger *slog.Logger,
) *LoginUseCase {
	if policy == nil {
		policy = AllowAllPolicy{}
	}
	return &LoginUseCase{
		cache:            cache,
		trusted:          trusted,
		authorizer:       authorizer,
		users:            users,
		policy:           policy,
		serviceLocations: serviceLocations,
		pendingAuth:      registry.New[string, *domain.Negotiation](pendingAuthTTL),
		pendingLogin:     registry.New[uuid.UUID, *domain.PendingSession](pendingLoginTTL),
		authCookies:      registry.New[string, *domain.AuthCookie](authCookieTTL),
		externalURL:      externalURL,
		logger:           logger,
	}
}

// StartSweepers starts the periodic expiry sweeps for all registries.
func (uc *LoginUseCase) StartSweepers(ctx context.Context, interval time.Duration) {
	uc.pendingAuth.StartSweeper(ctx, interval)
	uc.pendingLogin.StartSweeper(ctx, interval)
	uc.authCookies.StartSweeper(ctx, interval)
}

// StartLogin begins a negotiation for an authenticated identity: resolve the
// service descriptors, collect trusted grants, then advance through the
// delegated-authorization handshakes until the login either completes or must
// wait for the viewer to authorize a remote service.
func (uc *LoginUseCase) StartLogin(ctx context.Context, input StartLoginInput) (*Outcome, error) {
	if !uc.policy.IsIdentityAuthorized(input.Identity) {
		return nil, domain.ErrIdentityNotAuthorized
	}

	profile, err := uc.users.GetOrCreateByIdentity(ctx, input.Identity, input.FirstName, input.LastName)
	if err != nil {
		return nil, err
	}

	negotiation := &domain.Negotiation{
		Identity:      input.Identity,
		AuthMethod:    input.AuthMethod,
		Requirements:  domain.NewServiceRequirements(),
		Services:      make(map[string]*discoverydomain.Service),
		Profile:       profile,
		StartLocation: input.StartLocation,
	}

	uc.logger.Info("login negotiation started",
		slog.String("identity", input.Identity.String()),
		slog.String("auth_method", input.AuthMethod),
		slog.String("profile_id", profile.ID.String()),
	)

	if err := uc.resolveServices(ctx, negotiation); err != nil {
		return nil, err
	}

	uc.fetchTrustedCapabilities(ctx, negotiation)

	return uc.advance(ctx, negotiation)
}

// ResumeAuthorization picks a suspended negotiation back up when the viewer
// returns from a remote authorize endpoint. A token with no suspended
// negotiation behind it (stale, already consumed, or forged) yields
// ErrNegotiationNotFound.
func (uc *LoginUseCase) ResumeAuthorization(ctx context.Context, token, verifier string) (*Outcome, error) {
	negotiation, ok := uc.pendingAuth.Take(token)
	if !ok {
		return nil, domain.ErrNegotiationNotFound
	}

	// One handshake is outstanding at a time and requirements only change on
	// resume, so the first unfulfilled service is the one this token covers.
	serviceType, ok := negotiation.Requirements.NextUnfulfilled()
	if !ok {
		return nil, domain.ErrNegotiationNotFound
	}
	svc, ok := negotiation.ServiceFor(serviceType)
	if !ok {
		return nil, domain.ErrNegotiationNotFound
	}

	granted, err := uc.authorizer.CompleteAuthorization(ctx, svc, token, verifier)
	if err != nil {
		uc.logger.Warn("delegated authorization failed",
			slog.String("identity", negotiation.Identity.String()),
			slog.String("service_type", serviceType),
			slog.Any("error", err),
		)
		return nil, errors.Wrapf(domain.ErrCapabilityShortfall, "authorization with %s failed", serviceType)
	}

	negotiation.Requirements.Merge(serviceType, granted)

	// A partial grant is not terminal for an untrusted service: advance starts
	// another handshake for whatever identifiers are still missing.
	if !negotiation.Requirements[serviceType].Fulfilled() {
		uc.logger.Warn("delegated authorization granted a partial set",
			slog.String("identity", negotiation.Identity.String()),
			slog.String("service_type", serviceType),
			slog.Any("missing", sortedMissing(negotiation.Requirements[serviceType])),
		)
	}

	return uc.advance(ctx, negotiation)
}

// ClaimSession consumes a pending session. The first successful claim removes
// the entry, so a session can be claimed at most once; an expired entry is
// reported exactly like one that never existed.
func (uc *LoginUseCase) ClaimSession(ctx context.Context, sessionID uuid.UUID) (*domain.PendingSession, error) {
	session, ok := uc.pendingLogin.Take(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// CookieIdentity returns the identity behind a browser auth cookie token.
func (uc *LoginUseCase) CookieIdentity(token string) (*domain.AuthCookie, bool) {
	return uc.authCookies.Get(token)
}

// resolveServices discovers a descriptor for every required service type. A
// service that cannot be resolved fails the attempt: nothing can grant its
// capabilities.
func (uc *LoginUseCase) resolveServices(ctx context.Context, negotiation *domain.Negotiation) error {
	for _, serviceType := range negotiation.Requirements.ServiceTypes() {
		location, ok := uc.serviceLocations[serviceType]
		if !ok {
			return errors.Wrapf(domain.ErrCapabilityShortfall, "no configured location for service %s", serviceType)
		}

		svc, err := uc.cache.Resolve(ctx, location, serviceType, false)
		if err != nil {
			uc.logger.Warn("service discovery failed",
				slog.String("service_type", serviceType),
				slog.String("location", location.String()),
				slog.Any("error", err),
			)
			return errors.Wrapf(domain.ErrCapabilityShortfall, "failed to resolve service %s", serviceType)
		}

		negotiation.Services[serviceType] = svc
	}
	return nil
}

// fetchTrustedCapabilities runs the trusted pass: one seed-capability request
// per trusted service. The pass is best effort; a shortfall is logged here and
// surfaces later when the untrusted loop reaches the still-unmet service.
func (uc *LoginUseCase) fetchTrustedCapabilities(ctx context.Context, negotiation *domain.Negotiation) {
	for _, serviceType := range negotiation.Requirements.ServiceTypes() {
		svc := negotiation.Services[serviceType]
		if !svc.Trusted() {
			continue
		}

		granted, err := uc.trusted.Fetch(ctx, svc.SeedCapability, negotiation.Identity, negotiation.Requirements.SortedIdentifiers(serviceType))
		if err != nil {
			uc.logger.Warn("trusted capability fetch failed",
				slog.String("identity", negotiation.Identity.String()),
				slog.String("service_type", serviceType),
				slog.Any("error", err),
			)
		}
		negotiation.Requirements.Merge(serviceType, granted)
	}
}

// advance moves the negotiation to its next state: complete it when every
// requirement is met, otherwise start a handshake with the first unfulfilled
// service and suspend until the viewer authorizes it.
func (uc *LoginUseCase) advance(ctx context.Context, negotiation *domain.Negotiation) (*Outcome, error) {
	serviceType, ok := negotiation.Requirements.NextUnfulfilled()
	if !ok {
		return uc.complete(ctx, negotiation)
	}

	svc := negotiation.Services[serviceType]

	// A trusted service that still has unmet requirements already had its one
	// seed request; it is not retried through the untrusted path.
	if svc.Trusted() {
		return nil, errors.Wrapf(domain.ErrCapabilityShortfall, "trusted service %s did not grant all required capabilities", serviceType)
	}

	// The descriptor passed validation at resolve time, but a cached entry may
	// predate this code path. Drop it so the broken descriptor is not served
	// again before its natural expiry.
	if !svc.HasAuthorizationEndpoints() {
		uc.cache.Invalidate(svc.Location)
		return nil, errors.Wrapf(domain.ErrCapabilityShortfall, "service %s lacks authorization endpoints", serviceType)
	}

	callback := uc.externalURL.JoinPath(callbackPath)
	redirect, token, err := uc.authorizer.BeginAuthorization(ctx, svc, callback, sortedMissing(negotiation.Requirements[serviceType]))
	if err != nil {
		uc.logger.Warn("failed to start delegated authorization",
			slog.String("identity", negotiation.Identity.String()),
			slog.String("service_type", serviceType),
			slog.Any("error", err),
		)
		return nil, errors.Wrapf(domain.ErrCapabilityShortfall, "could not start authorization with %s", serviceType)
	}

	uc.pendingAuth.Put(token, negotiation)

	uc.logger.Info("login negotiation suspended for authorization",
		slog.String("identity", negotiation.Identity.String()),
		slog.String("service_type", serviceType),
	)

	return &Outcome{AuthorizeRedirect: redirect}, nil
}

// complete finishes a fulfilled negotiation: commit an agent session for the
// profile, park the pending session for its one-time claim, and issue a
// browser auth cookie.
func (uc *LoginUseCase) complete(ctx context.Context, negotiation *domain.Negotiation) (*Outcome, error) {
	profile := negotiation.Profile

	if err := uc.users.BeginSession(ctx, profile); err != nil {
		return nil, err
	}

	session := &domain.PendingSession{
		SessionID:       profile.CurrentAgent.SessionID,
		SecureSessionID: profile.CurrentAgent.SecureSessionID,
		Profile:         profile,
		Identity:        negotiation.Identity,
		Capabilities:    negotiation.Requirements.CapabilityURLs(),
		StartLocation:   negotiation.StartLocation,
	}
	uc.pendingLogin.Put(session.SessionID, session)

	cookie := newCookieToken()
	uc.authCookies.Put(cookie, &domain.AuthCookie{
		Identity:  negotiation.Identity,
		ProfileID: profile.ID,
	})

	uc.logger.Info("login negotiation completed",
		slog.String("identity", negotiation.Identity.String()),
		slog.String("auth_method", negotiation.AuthMethod),
		slog.String("profile_id", profile.ID.String()),
		slog.String("session_id", session.SessionID.String()),
	)

	return &Outcome{
		Session:    session,
		ClaimURL:   uc.externalURL.JoinPath("/login/", session.SessionID.String()),
		AuthCookie: cookie,
	}, nil
}

// sortedMissing returns the unmet identifiers of a capability map in sorted
// order, for deterministic outbound requests.
func sortedMissing(caps capabilitydomain.CapabilityMap) []string {
	missing := caps.Missing()
	sort.Strings(missing)
	return missing
}

func newCookieToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
