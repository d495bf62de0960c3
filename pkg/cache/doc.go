// Package cache provides a Redis cache of resolved CDF resources.
//
// Get-or-create writes first have to find out which of the requested
// identities already exist. The cache remembers resources the engine has
// created or retrieved, so repeated runs over the same identities do not
// read them from the API again.
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create cache manager with a 15 minute entry lifetime
//	manager := cache.NewManager(redisClient, 15*time.Minute)
//
//	// Look up assets by identity
//	found, err := cache.Lookup[resource.Asset](ctx, manager, "my-project", resource.KindAsset, ids)
//
//	// Remember assets returned by the API
//	err = cache.Remember(ctx, manager, "my-project", resource.KindAsset, assets, resource.Asset.Identity)
//
// # Keys
//
// Keys are "cdf:<project>:<kind>:<identity>", for example
// "cdf:my-project:assets:externalId:pump-01".
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - bulkwrite_cache_hits_total{kind} - Cache hits
//   - bulkwrite_cache_misses_total{kind} - Cache misses
//   - bulkwrite_cache_errors_total{operation} - Cache operation errors
//
// A cache failure never fails a write; the engine logs it and falls back to
// the API.
package cache
