// Package domain defines the local profile entities backing federated
// identities.
package domain

import (
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/gridgate/internal/errors"
)

// UserProfile is a local grid profile. Profiles are keyed by a UUID derived
// deterministically from the identity URI, so the same identity maps to the
// same agent across gateways sharing the derivation.
type UserProfile struct {
	ID           uuid.UUID
	FirstName    string
	SurName      string
	Email        string
	PasswordHash string
	HomeRegionX  uint32
	HomeRegionY  uint32
	LastLogin    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// CurrentAgent is the active session, nil when the profile has never
	// logged in.
	CurrentAgent *AgentSession
}

// Name returns the profile's full grid name.
func (p *UserProfile) Name() string {
	return p.FirstName + " " + p.SurName
}

// Online reports whether the profile has an active agent session.
func (p *UserProfile) Online() bool {
	return p.CurrentAgent != nil && p.CurrentAgent.Online
}

// AgentSession is one viewer session for a profile.
type AgentSession struct {
	SessionID       uuid.UUID
	SecureSessionID uuid.UUID
	Online          bool
	LoginTime       time.Time
	LogoutTime      time.Time
}

// Friend is one friend-list relation owned by a profile.
type Friend struct {
	FriendID    uuid.UUID
	OwnerPerms  int32
	FriendPerms int32
}

// Domain-specific errors for profile operations.
var (
	// ErrProfileNotFound indicates the requested profile does not exist.
	ErrProfileNotFound = errors.Wrap(errors.ErrNotFound, "profile not found")

	// ErrProfileNameTaken indicates a profile with the same grid name already
	// exists.
	ErrProfileNameTaken = errors.Wrap(errors.ErrConflict, "profile name already taken")

	// ErrIdentityNotMapped indicates no profile mapping exists for the
	// identity URI.
	ErrIdentityNotMapped = errors.Wrap(errors.ErrNotFound, "identity is not mapped to a profile")

	// ErrInvalidCredentials indicates a failed local credential check.
	ErrInvalidCredentials = errors.Wrap(errors.ErrUnauthorized, "invalid credentials")
)

// ProfileIDForIdentity derives the deterministic profile UUID for an identity
// URI.
func ProfileIDForIdentity(identity *url.URL) uuid.UUID {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(identity.String()))
}

const maxIdentityNameLength = 32

// GridNameForIdentity builds the visible grid name for an identity. When the
// identity provider supplied personal names the result is
// "First Last" / "@provider"; otherwise the identity URI itself becomes the
// first name, shortened when too long for a name field.
func GridNameForIdentity(identity *url.URL, firstName, lastName string) (string, string) {
	if firstName != "" && lastName != "" {
		return firstName + " " + lastName, "@" + identity.Host
	}

	name := identity.String()
	if len(name) > maxIdentityNameLength {
		name = name[:15] + "..." + name[len(name)-14:]
	}
	return name, "@" + identity.Host
}
