package resource

import "github.com/Sternrassler/cdf-bulkwrite/pkg/identity"

// Label references a label definition by external id.
type Label struct {
	ExternalID string `json:"externalId"`
}

// Identity returns the external id identity of the label.
func (l Label) Identity() identity.Identity {
	return identity.FromExternalID(l.ExternalID)
}

// AssetWrite is the create payload of an asset.
type AssetWrite struct {
	ExternalID       string            `json:"externalId,omitempty"`
	Name             string            `json:"name"`
	ParentID         *int64            `json:"parentId,omitempty"`
	ParentExternalID string            `json:"parentExternalId,omitempty"`
	Description      string            `json:"description,omitempty"`
	DataSetID        *int64            `json:"dataSetId,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Source           string            `json:"source,omitempty"`
	Labels           []Label           `json:"labels,omitempty"`
}

// Identity returns the external id identity of the write, or the zero
// Identity when no external id is set.
func (a AssetWrite) Identity() identity.Identity {
	if a.ExternalID == "" {
		return identity.Identity{}
	}
	return identity.FromExternalID(a.ExternalID)
}

// Asset is an asset as returned by the API.
type Asset struct {
	ID               int64             `json:"id"`
	ExternalID       string            `json:"externalId,omitempty"`
	Name             string            `json:"name"`
	ParentID         int64             `json:"parentId,omitempty"`
	ParentExternalID string            `json:"parentExternalId,omitempty"`
	RootID           int64             `json:"rootId,omitempty"`
	Description      string            `json:"description,omitempty"`
	DataSetID        int64             `json:"dataSetId,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Source           string            `json:"source,omitempty"`
	Labels           []Label           `json:"labels,omitempty"`
	CreatedTime      int64             `json:"createdTime,omitempty"`
	LastUpdatedTime  int64             `json:"lastUpdatedTime,omitempty"`
}

// Identity returns the external id identity when set, otherwise the id.
func (a Asset) Identity() identity.Identity {
	if a.ExternalID != "" {
		return identity.FromExternalID(a.ExternalID)
	}
	return identity.FromID(a.ID)
}

// AssetPatch holds the field updates of an asset update.
type AssetPatch struct {
	ExternalID       *SetField[string]  `json:"externalId,omitempty"`
	Name             *SetField[string]  `json:"name,omitempty"`
	Description      *SetField[string]  `json:"description,omitempty"`
	DataSetID        *SetField[int64]   `json:"dataSetId,omitempty"`
	Metadata         *MapUpdate         `json:"metadata,omitempty"`
	Source           *SetField[string]  `json:"source,omitempty"`
	ParentID         *SetField[int64]   `json:"parentId,omitempty"`
	ParentExternalID *SetField[string]  `json:"parentExternalId,omitempty"`
	Labels           *ListUpdate[Label] `json:"labels,omitempty"`
}

// AssetUpdate is one item of an asset update request.
type AssetUpdate = UpdateItem[AssetPatch]

// DiffAsset computes the patch that turns existing into desired. The second
// return value is false when nothing needs to change.
func DiffAsset(existing Asset, desired AssetWrite, opts UpdateOptions) (AssetPatch, bool) {
	var p AssetPatch
	if desired.Name != "" && desired.Name != existing.Name {
		p.Name = Set(desired.Name)
	}
	p.Description = stringPatch(existing.Description, desired.Description, opts)
	p.Source = stringPatch(existing.Source, desired.Source, opts)
	p.DataSetID = idPatch(existing.DataSetID, desired.DataSetID, opts)
	p.Metadata = metadataPatch(existing.Metadata, desired.Metadata, opts)

	// Parent can only be set, never cleared, and a move by external id must
	// not also carry the numeric id.
	switch {
	case desired.ParentExternalID != "" && desired.ParentExternalID != existing.ParentExternalID:
		p.ParentExternalID = Set(desired.ParentExternalID)
	case desired.ParentExternalID == "" && desired.ParentID != nil && *desired.ParentID > 0 && *desired.ParentID != existing.ParentID:
		p.ParentID = Set(*desired.ParentID)
	}

	p.Labels = labelsPatch(existing.Labels, desired.Labels, opts)

	changed := p.Name != nil || p.Description != nil || p.Source != nil || p.DataSetID != nil ||
		p.Metadata != nil || p.ParentExternalID != nil || p.ParentID != nil || p.Labels != nil
	return p, changed
}

func labelsPatch(existing, desired []Label, opts UpdateOptions) *ListUpdate[Label] {
	have := make(map[string]struct{}, len(existing))
	for _, l := range existing {
		have[l.ExternalID] = struct{}{}
	}
	want := make(map[string]struct{}, len(desired))
	var add []Label
	for _, l := range desired {
		want[l.ExternalID] = struct{}{}
		if _, ok := have[l.ExternalID]; !ok {
			add = append(add, l)
		}
	}
	var remove []Label
	if opts.ReplaceLabels {
		for _, l := range existing {
			if _, ok := want[l.ExternalID]; !ok {
				remove = append(remove, l)
			}
		}
	}
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	return &ListUpdate[Label]{Add: add, Remove: remove}
}
