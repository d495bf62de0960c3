package resilience

import (
	"context"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/sanitize"
)

func (e *Engine) timeSeries() crud[resource.TimeSeriesWrite, resource.TimeSeries, resource.TimeSeriesUpdate] {
	return crud[resource.TimeSeriesWrite, resource.TimeSeries, resource.TimeSeriesUpdate]{
		kind:       resource.KindTimeSeries,
		endpoint:   e.api.TimeSeries(),
		rules:      sanitize.TimeSeriesRules,
		limit:      sanitize.TimeSeriesPerRequest,
		writeID:    resource.TimeSeriesWrite.Identity,
		readID:     resource.TimeSeries.Identity,
		internalID: func(ts resource.TimeSeries) int64 { return ts.ID },
		updateID:   func(u resource.TimeSeriesUpdate) identity.Identity { return u.Identity },
		refs:       timeSeriesRefs,
		updateRefs: func(u resource.TimeSeriesUpdate, res result.ResourceType) []identity.Identity {
			p := u.Update
			switch res {
			case result.ResourceID, result.ResourceExternalID, result.ResourceInstanceID:
				return []identity.Identity{u.Identity}
			case result.ResourceAssetID:
				if p.AssetID != nil {
					return idRef(p.AssetID.Set)
				}
			case result.ResourceDataSetID:
				if p.DataSetID != nil {
					return idRef(p.DataSetID.Set)
				}
			}
			return nil
		},
		resolveCreate: referencesOnCreate[resource.TimeSeriesWrite, resource.TimeSeries, resource.TimeSeriesUpdate],
		resolveUpdate: referencesOnUpdate[resource.TimeSeriesWrite, resource.TimeSeries, resource.TimeSeriesUpdate],
		diff: func(existing resource.TimeSeries, desired resource.TimeSeriesWrite, opts resource.UpdateOptions) (resource.TimeSeriesUpdate, bool) {
			p, changed := resource.DiffTimeSeries(existing, desired, opts)
			return resource.TimeSeriesUpdate{Identity: identity.FromID(existing.ID), Update: p}, changed
		},
	}
}

// GetOrCreateTimeSeries returns the time series with the given external
// ids, creating the ones that do not exist with build. Results follow the
// order of externalIDs.
func (e *Engine) GetOrCreateTimeSeries(ctx context.Context, externalIDs []string, build func([]string) ([]resource.TimeSeriesWrite, error), opts WriteOptions) (result.Result[resource.TimeSeries, resource.TimeSeriesWrite], error) {
	return getOrCreate(ctx, e, e.timeSeries(), externalIDs, build, opts)
}

// EnsureTimeSeriesExist creates items. Legacy names must be unique, both
// within the request and on the server.
func (e *Engine) EnsureTimeSeriesExist(ctx context.Context, items []resource.TimeSeriesWrite, opts WriteOptions) (result.Result[resource.TimeSeries, resource.TimeSeriesWrite], error) {
	return ensure(ctx, e, e.timeSeries(), items, opts)
}

// UpsertTimeSeries creates items and updates the time series that already
// exist. IsString cannot change. Results follow the order of items.
func (e *Engine) UpsertTimeSeries(ctx context.Context, items []resource.TimeSeriesWrite, opts WriteOptions, upd resource.UpdateOptions) (result.Result[resource.TimeSeries, resource.TimeSeriesWrite], error) {
	return upsert(ctx, e, e.timeSeries(), items, opts, upd)
}

func timeSeriesRefs(ts resource.TimeSeriesWrite, res result.ResourceType) []identity.Identity {
	switch res {
	case result.ResourceExternalID:
		return externalIDRef(ts.ExternalID)
	case result.ResourceLegacyName:
		return externalIDRef(ts.LegacyName)
	case result.ResourceAssetID:
		return idRef(ts.AssetID)
	case result.ResourceDataSetID:
		return idRef(ts.DataSetID)
	case result.ResourceSecurityCategories:
		return idsRef(ts.SecurityCategories)
	}
	return nil
}
