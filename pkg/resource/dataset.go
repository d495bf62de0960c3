package resource

import "github.com/Sternrassler/cdf-bulkwrite/pkg/identity"

// DataSet is a data set as returned by the API. Records refer to data sets
// by internal id.
type DataSet struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"externalId,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Identity returns the internal id identity of the data set.
func (d DataSet) Identity() identity.Identity {
	return identity.FromID(d.ID)
}
