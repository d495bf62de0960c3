package resource

import "github.com/Sternrassler/cdf-bulkwrite/pkg/identity"

// RawRow is one row of a raw table.
type RawRow struct {
	Key     string         `json:"key"`
	Columns map[string]any `json:"columns"`
}

// Identity returns the row key as an external id identity.
func (r RawRow) Identity() identity.Identity {
	return identity.FromExternalID(r.Key)
}
