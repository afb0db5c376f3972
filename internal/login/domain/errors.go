package domain

import (
	"github.com/allisson/gridgate/internal/errors"
)

// Login domain errors.
var (
	// ErrIdentityNotAuthorized indicates the identity is denied by policy
	// before negotiation starts.
	ErrIdentityNotAuthorized = errors.Wrap(errors.ErrForbidden, "identity is not authorized to log in")

	// ErrNegotiationNotFound indicates an authorization callback carried a
	// token with no suspended negotiation behind it: stale, already consumed,
	// or forged. Handlers send the browser back to a fresh login rather than
	// rendering an error.
	ErrNegotiationNotFound = errors.Wrap(errors.ErrNotFound, "no suspended negotiation for token")

	// ErrCapabilityShortfall indicates negotiation ended with required
	// capabilities still unmet.
	ErrCapabilityShortfall = errors.Wrap(errors.ErrUnavailable, "failed to fetch required capabilities")

	// ErrSessionNotFound indicates a session claim carried an unknown or
	// expired session id.
	ErrSessionNotFound = errors.Wrap(errors.ErrNotFound, "no pending session for id")

	// ErrInventoryUnavailable indicates the filesystem skeleton could not be
	// fetched and logins without inventory are disabled.
	ErrInventoryUnavailable = errors.Wrap(errors.ErrUnavailable, "inventory service is unavailable")

	// ErrRegionUnavailable indicates the region handoff failed.
	ErrRegionUnavailable = errors.Wrap(errors.ErrUnavailable, "destination region is unavailable")
)
