package cache

import (
	"strings"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
)

// CacheKey identifies one cached resource.
type CacheKey struct {
	// Project is the CDF project the resource belongs to.
	Project string

	// Kind is the resource kind (assets, events, ...).
	Kind resource.Kind

	// Identity addresses the resource within its kind.
	Identity identity.Identity
}

// String generates a deterministic cache key string.
// Format: cdf:project:kind:identity
//
// Example:
//
//	cdf:my-project:assets:externalId:pump-01
func (k CacheKey) String() string {
	parts := []string{"cdf"}
	if k.Project != "" {
		parts = append(parts, k.Project)
	}
	parts = append(parts, string(k.Kind), k.Identity.String())
	return strings.Join(parts, ":")
}

// Keys builds the keys of ids within project and kind.
func Keys(project string, kind resource.Kind, ids []identity.Identity) []CacheKey {
	keys := make([]CacheKey, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, CacheKey{Project: project, Kind: kind, Identity: id})
	}
	return keys
}
