package app

import (
	"net/http"

	capabilityService "github.com/allisson/gridgate/internal/capability/service"
)

// TokenManager returns the request-token store used by delegated
// authorization. Tokens live as long as the pending authorization they belong
// to.
func (c *Container) TokenManager() *capabilityService.TokenManager {
	c.tokenManagerInit.Do(func() {
		c.tokenManager = capabilityService.NewTokenManager(c.config.PendingAuthTTL)
	})
	return c.tokenManager
}

// AuthorizationClient returns the delegated-authorization client.
func (c *Container) AuthorizationClient() *capabilityService.AuthorizationClient {
	c.authorizationInit.Do(func() {
		client := &http.Client{Timeout: c.config.AuthorizationTimeout}
		c.authorizationClient = capabilityService.NewAuthorizationClient(
			client,
			c.config.ConsumerKey,
			c.config.ConsumerSecret,
			c.TokenManager(),
			c.Logger(),
		)
	})
	return c.authorizationClient
}

// TrustedFetcher returns the trusted seed-capability fetcher.
func (c *Container) TrustedFetcher() *capabilityService.TrustedFetcher {
	c.trustedFetcherInit.Do(func() {
		client := &http.Client{Timeout: c.config.SeedCapabilityTimeout}
		c.trustedFetcher = capabilityService.NewTrustedFetcher(client, c.Logger())
	})
	return c.trustedFetcher
}
