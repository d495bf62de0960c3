package resource

import "github.com/Sternrassler/cdf-bulkwrite/pkg/identity"

// Sequence column value types.
const (
	ValueTypeString = "STRING"
	ValueTypeDouble = "DOUBLE"
	ValueTypeLong   = "LONG"
)

// SequenceColumnWrite is one column of a sequence create payload.
type SequenceColumnWrite struct {
	ExternalID  string            `json:"externalId"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	ValueType   string            `json:"valueType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SequenceWrite is the create payload of a sequence.
type SequenceWrite struct {
	ExternalID  string                `json:"externalId,omitempty"`
	Name        string                `json:"name,omitempty"`
	Description string                `json:"description,omitempty"`
	AssetID     *int64                `json:"assetId,omitempty"`
	DataSetID   *int64                `json:"dataSetId,omitempty"`
	Metadata    map[string]string     `json:"metadata,omitempty"`
	Columns     []SequenceColumnWrite `json:"columns"`
}

// Identity returns the external id identity of the write.
func (s SequenceWrite) Identity() identity.Identity {
	if s.ExternalID == "" {
		return identity.Identity{}
	}
	return identity.FromExternalID(s.ExternalID)
}

// SequenceColumn is a column as returned by the API.
type SequenceColumn struct {
	ExternalID  string            `json:"externalId"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	ValueType   string            `json:"valueType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Sequence is a sequence as returned by the API.
type Sequence struct {
	ID              int64             `json:"id"`
	ExternalID      string            `json:"externalId,omitempty"`
	Name            string            `json:"name,omitempty"`
	Description     string            `json:"description,omitempty"`
	AssetID         int64             `json:"assetId,omitempty"`
	DataSetID       int64             `json:"dataSetId,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Columns         []SequenceColumn  `json:"columns"`
	CreatedTime     int64             `json:"createdTime,omitempty"`
	LastUpdatedTime int64             `json:"lastUpdatedTime,omitempty"`
}

// Identity returns the external id identity when set, otherwise the id.
func (s Sequence) Identity() identity.Identity {
	if s.ExternalID != "" {
		return identity.FromExternalID(s.ExternalID)
	}
	return identity.FromID(s.ID)
}

// SequencePatch holds the field updates of a sequence update. Columns are
// fixed at creation time.
type SequencePatch struct {
	ExternalID  *SetField[string] `json:"externalId,omitempty"`
	Name        *SetField[string] `json:"name,omitempty"`
	Description *SetField[string] `json:"description,omitempty"`
	AssetID     *SetField[int64]  `json:"assetId,omitempty"`
	DataSetID   *SetField[int64]  `json:"dataSetId,omitempty"`
	Metadata    *MapUpdate        `json:"metadata,omitempty"`
}

// SequenceUpdate is one item of a sequence update request.
type SequenceUpdate = UpdateItem[SequencePatch]

// DiffSequence computes the patch that turns existing into desired.
func DiffSequence(existing Sequence, desired SequenceWrite, opts UpdateOptions) (SequencePatch, bool) {
	var p SequencePatch
	p.Name = stringPatch(existing.Name, desired.Name, opts)
	p.Description = stringPatch(existing.Description, desired.Description, opts)
	p.AssetID = idPatch(existing.AssetID, desired.AssetID, opts)
	p.DataSetID = idPatch(existing.DataSetID, desired.DataSetID, opts)
	p.Metadata = metadataPatch(existing.Metadata, desired.Metadata, opts)

	changed := p.Name != nil || p.Description != nil || p.AssetID != nil || p.DataSetID != nil || p.Metadata != nil
	return p, changed
}

// SequenceRow is one row of sequence data. Values are positional and match
// the Columns of the enclosing SequenceRowsWrite.
type SequenceRow struct {
	RowNumber int64 `json:"rowNumber"`
	Values    []any `json:"values"`
}

// SequenceRowsWrite is one item of a sequence row insert request.
type SequenceRowsWrite struct {
	ID         int64         `json:"id,omitempty"`
	ExternalID string        `json:"externalId,omitempty"`
	Columns    []string      `json:"columns"`
	Rows       []SequenceRow `json:"rows"`
}

// Identity returns the sequence the rows belong to.
func (s SequenceRowsWrite) Identity() identity.Identity {
	if s.ExternalID != "" {
		return identity.FromExternalID(s.ExternalID)
	}
	return identity.FromID(s.ID)
}
