package service

import (
	"context"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/allisson/gridgate/internal/discovery/domain"
	"github.com/allisson/gridgate/internal/registry"
)

// DescriptorResolver resolves a service location into a descriptor.
type DescriptorResolver interface {
	Resolve(ctx context.Context, location *url.URL, serviceType string, allowOverride bool) (*domain.Service, error)
}

// CacheLookupRecorder records descriptor cache hits and misses.
// metrics.BusinessMetrics satisfies it.
type CacheLookupRecorder interface {
	RecordCacheLookup(ctx context.Context, cache string, hit bool)
}

// cacheName labels the descriptor cache in recorded lookups.
const cacheName = "service_descriptors"

// Cache is a time-bounded descriptor cache in front of a resolver. Concurrent
// resolves of the same location are collapsed into a single fetch.
type Cache struct {
	resolver DescriptorResolver
	store    *registry.Registry[string, *domain.Service]
	group    singleflight.Group
	recorder CacheLookupRecorder
}

// NewCache creates a descriptor cache with the given entry TTL. A nil recorder
// disables lookup metrics.
func NewCache(resolver DescriptorResolver, ttl time.Duration, recorder CacheLookupRecorder) *Cache {
	return &Cache{
		resolver: resolver,
		store:    registry.New[string, *domain.Service](ttl),
		recorder: recorder,
	}
}

// Resolve returns the cached descriptor for location or resolves and caches a
// fresh one. Only successful resolutions are cached.
func (c *Cache) Resolve(ctx context.Context, location *url.URL, serviceType string, allowOverride bool) (*domain.Service, error) {
	key := location.String()

	if svc, ok := c.store.Get(key); ok {
		c.recordLookup(ctx, true)
		return svc, nil
	}
	c.recordLookup(ctx, false)

	result, err, _ := c.group.Do(key, func() (any, error) {
		if svc, ok := c.store.Get(key); ok {
			return svc, nil
		}
		svc, err := c.resolver.Resolve(ctx, location, serviceType, allowOverride)
		if err != nil {
			return nil, err
		}
		c.store.Put(key, svc)
		return svc, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*domain.Service), nil
}

// Invalidate drops the cached descriptor for location. Used when a cached
// descriptor is later found to be structurally incomplete, so it is not served
// again before its natural expiry.
func (c *Cache) Invalidate(location *url.URL) {
	c.store.Remove(location.String())
}

func (c *Cache) recordLookup(ctx context.Context, hit bool) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(ctx, cacheName, hit)
	}
}
