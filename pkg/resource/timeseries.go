package resource

import "github.com/Sternrassler/cdf-bulkwrite/pkg/identity"

// TimeSeriesWrite is the create payload of a time series.
type TimeSeriesWrite struct {
	ExternalID         string            `json:"externalId,omitempty"`
	Name               string            `json:"name,omitempty"`
	LegacyName         string            `json:"legacyName,omitempty"`
	IsString           bool              `json:"isString,omitempty"`
	IsStep             bool              `json:"isStep,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	Unit               string            `json:"unit,omitempty"`
	AssetID            *int64            `json:"assetId,omitempty"`
	Description        string            `json:"description,omitempty"`
	SecurityCategories []int64           `json:"securityCategories,omitempty"`
	DataSetID          *int64            `json:"dataSetId,omitempty"`
}

// Identity returns the external id identity of the write.
func (t TimeSeriesWrite) Identity() identity.Identity {
	if t.ExternalID == "" {
		return identity.Identity{}
	}
	return identity.FromExternalID(t.ExternalID)
}

// TimeSeries is a time series as returned by the API.
type TimeSeries struct {
	ID                 int64             `json:"id"`
	ExternalID         string            `json:"externalId,omitempty"`
	Name               string            `json:"name,omitempty"`
	IsString           bool              `json:"isString"`
	IsStep             bool              `json:"isStep"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	Unit               string            `json:"unit,omitempty"`
	AssetID            int64             `json:"assetId,omitempty"`
	Description        string            `json:"description,omitempty"`
	SecurityCategories []int64           `json:"securityCategories,omitempty"`
	DataSetID          int64             `json:"dataSetId,omitempty"`
	CreatedTime        int64             `json:"createdTime,omitempty"`
	LastUpdatedTime    int64             `json:"lastUpdatedTime,omitempty"`
}

// Identity returns the external id identity when set, otherwise the id.
func (t TimeSeries) Identity() identity.Identity {
	if t.ExternalID != "" {
		return identity.FromExternalID(t.ExternalID)
	}
	return identity.FromID(t.ID)
}

// TimeSeriesPatch holds the field updates of a time series update.
type TimeSeriesPatch struct {
	ExternalID         *SetField[string]  `json:"externalId,omitempty"`
	Name               *SetField[string]  `json:"name,omitempty"`
	Metadata           *MapUpdate         `json:"metadata,omitempty"`
	Unit               *SetField[string]  `json:"unit,omitempty"`
	AssetID            *SetField[int64]   `json:"assetId,omitempty"`
	IsStep             *SetField[bool]    `json:"isStep,omitempty"`
	Description        *SetField[string]  `json:"description,omitempty"`
	SecurityCategories *ListUpdate[int64] `json:"securityCategories,omitempty"`
	DataSetID          *SetField[int64]   `json:"dataSetId,omitempty"`
}

// TimeSeriesUpdate is one item of a time series update request.
type TimeSeriesUpdate = UpdateItem[TimeSeriesPatch]

// DiffTimeSeries computes the patch that turns existing into desired.
// IsString cannot be changed after creation and is ignored.
func DiffTimeSeries(existing TimeSeries, desired TimeSeriesWrite, opts UpdateOptions) (TimeSeriesPatch, bool) {
	var p TimeSeriesPatch
	p.Name = stringPatch(existing.Name, desired.Name, opts)
	p.Unit = stringPatch(existing.Unit, desired.Unit, opts)
	p.Description = stringPatch(existing.Description, desired.Description, opts)
	p.AssetID = idPatch(existing.AssetID, desired.AssetID, opts)
	p.DataSetID = idPatch(existing.DataSetID, desired.DataSetID, opts)
	p.Metadata = metadataPatch(existing.Metadata, desired.Metadata, opts)
	p.SecurityCategories = int64ListPatch(existing.SecurityCategories, desired.SecurityCategories)
	if existing.IsStep != desired.IsStep {
		p.IsStep = Set(desired.IsStep)
	}

	changed := p.Name != nil || p.Unit != nil || p.Description != nil || p.AssetID != nil ||
		p.DataSetID != nil || p.Metadata != nil || p.SecurityCategories != nil || p.IsStep != nil
	return p, changed
}
