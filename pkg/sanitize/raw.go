package sanitize

import (
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

// VerifyRawRow requires a non-empty key within the key limit. Raw rows have
// no repairable fields, so there is no sanitizer.
func VerifyRawRow(r resource.RawRow) (result.ResourceType, bool) {
	if r.Key == "" || !fits(r.Key, RawKeyMax) {
		return result.ResourceRawKey, false
	}
	return "", true
}

// RawRules validates raw row inserts. Keys must be unique within a request.
var RawRules = Rules[resource.RawRow]{
	Verify: VerifyRawRow,
	Identity: func(r resource.RawRow) identity.Identity {
		return externalIDKey(r.Key)
	},
	Distinct: []Distinct[resource.RawRow]{
		{Resource: result.ResourceRawKey, Key: func(r resource.RawRow) identity.Identity {
			return externalIDKey(r.Key)
		}},
	},
}
