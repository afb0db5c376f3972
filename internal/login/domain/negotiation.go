package domain

import (
	"net/url"

	"github.com/google/uuid"

	discoverydomain "github.com/allisson/gridgate/internal/discovery/domain"
	userdomain "github.com/allisson/gridgate/internal/user/domain"
)

// Negotiation is the state of one login attempt, carried across the suspension
// points of the delegated-authorization handshakes. While a handshake is
// outstanding the negotiation lives in the pending-authorization registry
// keyed by the issued request token.
type Negotiation struct {
	// Identity is the authenticated identity URI driving this login.
	Identity *url.URL
	// AuthMethod records how the identity was authenticated (openid, cookie,
	// password).
	AuthMethod string
	// Requirements tracks which capabilities are still unmet per service.
	Requirements ServiceRequirements
	// Services holds the discovered descriptor per service type.
	Services map[string]*discoverydomain.Service
	// Profile is the local profile resolved or created for the identity.
	Profile *userdomain.UserProfile
	// StartLocation is the region start request carried through from the login
	// form ("last", "home", or an explicit location).
	StartLocation string
}

// ServiceFor returns the discovered descriptor for serviceType.
func (n *Negotiation) ServiceFor(serviceType string) (*discoverydomain.Service, bool) {
	svc, ok := n.Services[serviceType]
	return svc, ok
}

// PendingSession is a completed negotiation awaiting its one-time claim
// through the legacy login protocol.
type PendingSession struct {
	SessionID       uuid.UUID
	SecureSessionID uuid.UUID
	Profile         *userdomain.UserProfile
	Identity        *url.URL
	// Capabilities is the full negotiated capability map handed to the region.
	Capabilities map[string]*url.URL
	// StartLocation is the start request captured at negotiation time; the
	// claim call may override it.
	StartLocation string
}

// AuthCookie maps a browser cookie token to an authenticated identity, so a
// returning browser can start a new login without re-authenticating.
type AuthCookie struct {
	Identity  *url.URL
	ProfileID uuid.UUID
}

// Buddy is one friend-list entry included in the session claim response.
type Buddy struct {
	ID          uuid.UUID
	RightsHave  int32
	RightsGiven int32
}
