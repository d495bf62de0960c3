package resource

import "github.com/Sternrassler/cdf-bulkwrite/pkg/identity"

// EventWrite is the create payload of an event.
type EventWrite struct {
	ExternalID  string            `json:"externalId,omitempty"`
	StartTime   *int64            `json:"startTime,omitempty"`
	EndTime     *int64            `json:"endTime,omitempty"`
	Type        string            `json:"type,omitempty"`
	Subtype     string            `json:"subtype,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	AssetIDs    []int64           `json:"assetIds,omitempty"`
	Source      string            `json:"source,omitempty"`
	DataSetID   *int64            `json:"dataSetId,omitempty"`
}

// Identity returns the external id identity of the write.
func (e EventWrite) Identity() identity.Identity {
	if e.ExternalID == "" {
		return identity.Identity{}
	}
	return identity.FromExternalID(e.ExternalID)
}

// Event is an event as returned by the API.
type Event struct {
	ID              int64             `json:"id"`
	ExternalID      string            `json:"externalId,omitempty"`
	StartTime       int64             `json:"startTime,omitempty"`
	EndTime         int64             `json:"endTime,omitempty"`
	Type            string            `json:"type,omitempty"`
	Subtype         string            `json:"subtype,omitempty"`
	Description     string            `json:"description,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	AssetIDs        []int64           `json:"assetIds,omitempty"`
	Source          string            `json:"source,omitempty"`
	DataSetID       int64             `json:"dataSetId,omitempty"`
	CreatedTime     int64             `json:"createdTime,omitempty"`
	LastUpdatedTime int64             `json:"lastUpdatedTime,omitempty"`
}

// Identity returns the external id identity when set, otherwise the id.
func (e Event) Identity() identity.Identity {
	if e.ExternalID != "" {
		return identity.FromExternalID(e.ExternalID)
	}
	return identity.FromID(e.ID)
}

// EventPatch holds the field updates of an event update.
type EventPatch struct {
	ExternalID  *SetField[string]  `json:"externalId,omitempty"`
	StartTime   *SetField[int64]   `json:"startTime,omitempty"`
	EndTime     *SetField[int64]   `json:"endTime,omitempty"`
	Description *SetField[string]  `json:"description,omitempty"`
	Metadata    *MapUpdate         `json:"metadata,omitempty"`
	AssetIDs    *ListUpdate[int64] `json:"assetIds,omitempty"`
	Source      *SetField[string]  `json:"source,omitempty"`
	Type        *SetField[string]  `json:"type,omitempty"`
	Subtype     *SetField[string]  `json:"subtype,omitempty"`
	DataSetID   *SetField[int64]   `json:"dataSetId,omitempty"`
}

// EventUpdate is one item of an event update request.
type EventUpdate = UpdateItem[EventPatch]

// DiffEvent computes the patch that turns existing into desired.
func DiffEvent(existing Event, desired EventWrite, opts UpdateOptions) (EventPatch, bool) {
	var p EventPatch
	p.StartTime = timePatch(existing.StartTime, desired.StartTime, opts)
	p.EndTime = timePatch(existing.EndTime, desired.EndTime, opts)
	p.Description = stringPatch(existing.Description, desired.Description, opts)
	p.Source = stringPatch(existing.Source, desired.Source, opts)
	p.Type = stringPatch(existing.Type, desired.Type, opts)
	p.Subtype = stringPatch(existing.Subtype, desired.Subtype, opts)
	p.DataSetID = idPatch(existing.DataSetID, desired.DataSetID, opts)
	p.Metadata = metadataPatch(existing.Metadata, desired.Metadata, opts)
	p.AssetIDs = int64ListPatch(existing.AssetIDs, desired.AssetIDs)

	changed := p.StartTime != nil || p.EndTime != nil || p.Description != nil || p.Source != nil ||
		p.Type != nil || p.Subtype != nil || p.DataSetID != nil || p.Metadata != nil || p.AssetIDs != nil
	return p, changed
}

func timePatch(existing int64, desired *int64, opts UpdateOptions) *SetField[int64] {
	switch {
	case desired == nil:
		if opts.SetNull && existing != 0 {
			return SetNull[int64]()
		}
		return nil
	case *desired == existing:
		return nil
	default:
		return Set(*desired)
	}
}

func int64ListPatch(existing, desired []int64) *ListUpdate[int64] {
	have := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		have[id] = struct{}{}
	}
	var add []int64
	for _, id := range desired {
		if _, ok := have[id]; !ok {
			add = append(add, id)
		}
	}
	if len(add) == 0 {
		return nil
	}
	return &ListUpdate[int64]{Add: add}
}
