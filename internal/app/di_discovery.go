package app

import (
	"fmt"

	discoveryService "github.com/allisson/gridgate/internal/discovery/service"
)

// DescriptorCache returns the service descriptor cache in front of the LRDD
// resolver.
func (c *Container) DescriptorCache() (*discoveryService.Cache, error) {
	var err error
	c.descriptorCacheInit.Do(func() {
		c.descriptorCache, err = c.initDescriptorCache()
		if err != nil {
			c.initErrors["descriptorCache"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["descriptorCache"]; exists {
		return nil, storedErr
	}
	return c.descriptorCache, nil
}

// initDescriptorCache creates the descriptor cache and its resolver.
func (c *Container) initDescriptorCache() (*discoveryService.Cache, error) {
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for descriptor cache: %w", err)
	}

	client := discoveryService.NewDiscoveryClient(c.config.DiscoveryTimeout, c.config.DiscoveryMaxRedirects)
	resolver := discoveryService.NewResolver(client, c.config.DiscoveryMaxBodyBytes, c.Logger())

	return discoveryService.NewCache(resolver, c.config.ServiceCacheTTL, businessMetrics), nil
}
