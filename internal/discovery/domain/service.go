// Package domain defines the service-descriptor model produced by discovery.
package domain

import (
	"net/url"

	"github.com/allisson/gridgate/internal/errors"
)

// Well-known link relations extracted from a descriptor document.
const (
	RelationSeedCapability = "http://gridgate.dev/rel/seed-capability"
	RelationRequestToken   = "http://gridgate.dev/rel/oauth/request-token"
	RelationAuthorize      = "http://gridgate.dev/rel/oauth/authorize"
	RelationAccessToken    = "http://gridgate.dev/rel/oauth/access-token"
)

// Discovery errors.
var (
	// ErrServiceNotFound indicates no usable descriptor could be resolved for a
	// location, either because the fetch failed, the document was malformed, or
	// the declared endpoints were incomplete.
	ErrServiceNotFound = errors.Wrap(errors.ErrNotFound, "service descriptor not found")

	// ErrWrongServiceType indicates the descriptor resolved but does not declare
	// support for the requested service type.
	ErrWrongServiceType = errors.Wrap(errors.ErrNotFound, "descriptor does not declare the requested service type")
)

// Service is the resolved metadata for one remote service instance. Exactly one
// of two shapes is valid: a non-nil SeedCapability (trusted path), or all three
// delegated-authorization endpoints non-nil (untrusted path). Discovery rejects
// descriptors satisfying neither.
type Service struct {
	// Location is the URL the descriptor document was fetched from.
	Location *url.URL
	// SeedCapability is the pre-trusted capability URL, if any.
	SeedCapability *url.URL
	// RequestTokenURL, AuthorizeURL and AccessTokenURL are the three
	// delegated-authorization endpoints, if declared.
	RequestTokenURL *url.URL
	AuthorizeURL    *url.URL
	AccessTokenURL  *url.URL
	// AllowOverride records whether a user-supplied descriptor may replace this
	// one for the same service type.
	AllowOverride bool
}

// Trusted reports whether the service exposes a seed capability. A trusted
// service is never sent through the delegated-authorization handshake.
func (s *Service) Trusted() bool {
	return s.SeedCapability != nil
}

// HasAuthorizationEndpoints reports whether all three delegated-authorization
// endpoints are present.
func (s *Service) HasAuthorizationEndpoints() bool {
	return s.RequestTokenURL != nil && s.AuthorizeURL != nil && s.AccessTokenURL != nil
}

// Valid reports whether the descriptor satisfies the trusted or the untrusted
// shape.
func (s *Service) Valid() bool {
	return s.Trusted() || s.HasAuthorizationEndpoints()
}
