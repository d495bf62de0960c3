package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/client"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/metrics"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/sanitize"
)

func assetWrites(n int) []resource.AssetWrite {
	out := make([]resource.AssetWrite, n)
	for i := range out {
		out[i] = resource.AssetWrite{ExternalID: fmt.Sprintf("asset-%03d", i), Name: fmt.Sprintf("Asset %d", i)}
	}
	return out
}

func externalIDs(assets []resource.Asset) []string {
	out := make([]string, len(assets))
	for i, a := range assets {
		out[i] = a.ExternalID
	}
	return out
}

// counterValue sums the samples of the counter name in reg.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestNew(t *testing.T) {
	_, err := New(nil, Options{})
	require.ErrorIs(t, err, ErrNilAPI)

	e, err := New(newFakeAPI(), Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultFatalDelay, e.fatalDelay)
	assert.Equal(t, DefaultMaxFatalRetries, e.maxFatalRetries)
	assert.Equal(t, DefaultDuplicateBackoff, e.duplicateBackoff)
	assert.Equal(t, DefaultMaxGetOrCreateAttempts, e.maxGetOrCreateAttempts)
}

func TestWriteOptions_Validation(t *testing.T) {
	e := newTestEngine(newFakeAPI())
	ctx := context.Background()

	_, err := e.EnsureAssetsExist(ctx, assetWrites(1), testOptions(0, 1))
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	_, err = e.EnsureAssetsExist(ctx, assetWrites(1), testOptions(10, 0))
	assert.ErrorIs(t, err, ErrInvalidParallelism)

	_, err = e.GetOrCreateAssets(ctx, []string{"a"}, nil, testOptions(10, 1))
	assert.ErrorIs(t, err, ErrNilBuilder)

	_, err = e.Delete(ctx, resource.KindRaw, nil, testOptions(10, 1))
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestEnsureAssetsExist_Batches(t *testing.T) {
	api := newFakeAPI()
	api.assets.latency = 5 * time.Millisecond
	e := newTestEngine(api)

	var calls []int
	opts := testOptions(100, 4)
	opts.Progress = func(done, total int) {
		calls = append(calls, done)
		assert.Equal(t, 3, total)
	}

	res, err := e.EnsureAssetsExist(context.Background(), assetWrites(250), opts)
	require.NoError(t, err)

	assert.True(t, res.IsAllGood())
	assert.Len(t, res.Results, 250)
	assert.Equal(t, 3, api.assets.createCalls)
	assert.LessOrEqual(t, api.assets.maxInFlight, 4)
	assert.Equal(t, []int{1, 2, 3}, calls)

	sizes := make([]int, 0, len(api.assets.created))
	for _, batch := range api.assets.created {
		sizes = append(sizes, len(batch))
	}
	assert.ElementsMatch(t, []int{100, 100, 50}, sizes)
}

func TestEnsureAssetsExist_RemovesOversizedMetadata(t *testing.T) {
	api := newFakeAPI()
	e := newTestEngine(api)

	items := assetWrites(5)
	items[2].Metadata = map[string]string{"blob": strings.Repeat("x", sanitize.AssetMetadataMaxPerValue+1)}

	opts := testOptions(100, 1)
	opts.Mode = sanitize.ModeRemove
	res, err := e.EnsureAssetsExist(context.Background(), items, opts)
	require.NoError(t, err)

	assert.Len(t, res.Results, 4)
	require.Len(t, res.Errors, 1)
	ce := res.Errors[0]
	assert.Equal(t, result.KindSanitationFailed, ce.Kind)
	assert.Equal(t, result.ResourceMetadata, ce.Resource)
	require.Len(t, ce.Skipped, 1)
	assert.Equal(t, "asset-002", ce.Skipped[0].ExternalID)
}

func TestEnsureAssetsExist_KeepDuplicates(t *testing.T) {
	api := newFakeAPI()
	items := assetWrites(10)
	api.assets.seed(items[3], items[7])
	e := newTestEngine(api)

	res, err := e.EnsureAssetsExist(context.Background(), items, testOptions(100, 1))
	require.NoError(t, err)

	assert.True(t, res.IsAllGood(), "errors: %v", res.Errors)
	assert.Len(t, res.Results, 10)
	assert.Contains(t, externalIDs(res.Results), "asset-003")
	assert.Contains(t, externalIDs(res.Results), "asset-007")
	// First create is rejected, the retry without the duplicates succeeds.
	assert.Equal(t, 2, api.assets.createCalls)
}

func TestEnsureAssetsExist_DropDuplicates(t *testing.T) {
	api := newFakeAPI()
	items := assetWrites(10)
	api.assets.seed(items[3], items[7])
	e := newTestEngine(api)

	opts := testOptions(100, 1)
	opts.Policy.KeepDuplicates = false
	res, err := e.EnsureAssetsExist(context.Background(), items, opts)
	require.NoError(t, err)

	assert.Len(t, res.Results, 8)
	require.Len(t, res.Errors, 1)
	ce := res.Errors[0]
	assert.Equal(t, result.KindItemExists, ce.Kind)
	assert.Equal(t, result.ResourceExternalID, ce.Resource)
	assert.Len(t, ce.Skipped, 2)
	assert.ElementsMatch(t, []identity.Identity{
		identity.FromExternalID("asset-003"),
		identity.FromExternalID("asset-007"),
	}, ce.Values)
}

func TestEnsureAssetsExist_CancelledAfterFirstBatch(t *testing.T) {
	api := newFakeAPI()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api.assets.onCreate = func(_ context.Context, call int, _ []resource.AssetWrite) error {
		if call == 1 {
			// The first batch completes, nothing after it starts.
			defer cancel()
		}
		return nil
	}
	e := newTestEngine(api)

	res, err := e.EnsureAssetsExist(ctx, assetWrites(300), testOptions(100, 1))
	assert.ErrorIs(t, err, context.Canceled)

	assert.Len(t, res.Results, 100)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, api.assets.createCalls)
}

func TestEnsureAssetsExist_ParentsFirst(t *testing.T) {
	api := newFakeAPI()
	api.assets.onCreate = func(_ context.Context, _ int, items []resource.AssetWrite) error {
		for _, a := range items {
			if a.ParentExternalID == "" {
				continue
			}
			api.assets.mu.Lock()
			_, ok := api.assets.store[identity.FromExternalID(a.ParentExternalID)]
			api.assets.mu.Unlock()
			if !ok {
				return notFound(client.ErrorItem{Field: "externalId", Identity: identity.FromExternalID(a.ParentExternalID)})
			}
		}
		return nil
	}
	e := newTestEngine(api)

	items := []resource.AssetWrite{
		{ExternalID: "pump", Name: "Pump", ParentExternalID: "station"},
		{ExternalID: "station", Name: "Station", ParentExternalID: "plant"},
		{ExternalID: "plant", Name: "Plant"},
	}
	res, err := e.EnsureAssetsExist(context.Background(), items, testOptions(100, 2))
	require.NoError(t, err)

	assert.True(t, res.IsAllGood(), "errors: %v", res.Errors)
	assert.Len(t, res.Results, 3)
	assert.Equal(t, 3, api.assets.createCalls)
}

func TestEnsureAssetsExist_MissingParentStripped(t *testing.T) {
	api := newFakeAPI()
	api.assets.onCreate = func(_ context.Context, _ int, items []resource.AssetWrite) error {
		var missing []client.ErrorItem
		for _, a := range items {
			if a.ParentExternalID == "ghost" {
				missing = append(missing, client.ErrorItem{Field: "externalId", Identity: identity.FromExternalID("ghost")})
			}
		}
		if len(missing) > 0 {
			return notFound(missing...)
		}
		return nil
	}
	e := newTestEngine(api)

	items := assetWrites(4)
	items[1].ParentExternalID = "ghost"
	res, err := e.EnsureAssetsExist(context.Background(), items, testOptions(100, 1))
	require.NoError(t, err)

	assert.Len(t, res.Results, 3)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, result.KindItemMissing, res.Errors[0].Kind)
	assert.Equal(t, result.ResourceParentExternalID, res.Errors[0].Resource)
	require.Len(t, res.Errors[0].Skipped, 1)
	assert.Equal(t, "asset-001", res.Errors[0].Skipped[0].ExternalID)
}

func TestEnsureAssetsExist_IncompleteParentErrorResolved(t *testing.T) {
	api := newFakeAPI()
	api.assets.seed(resource.AssetWrite{ExternalID: "real-parent", Name: "Parent"})
	api.assets.onCreate = func(_ context.Context, _ int, items []resource.AssetWrite) error {
		for _, a := range items {
			if a.ParentExternalID == "ghost" {
				return apiError(http.StatusBadRequest, "Bad parent reference")
			}
		}
		return nil
	}
	e := newTestEngine(api)

	items := assetWrites(3)
	items[0].ParentExternalID = "real-parent"
	items[2].ParentExternalID = "ghost"
	res, err := e.EnsureAssetsExist(context.Background(), items, testOptions(100, 1))
	require.NoError(t, err)

	assert.Len(t, res.Results, 2)
	require.Len(t, res.Errors, 1)
	ce := res.Errors[0]
	assert.Equal(t, result.KindItemMissing, ce.Kind)
	assert.True(t, ce.Complete)
	assert.Equal(t, []identity.Identity{identity.FromExternalID("ghost")}, ce.Values)
	require.Len(t, ce.Skipped, 1)
	assert.Equal(t, "asset-002", ce.Skipped[0].ExternalID)
}

func TestEnsureAssetsExist_FailedFollowUpImplicatesBatch(t *testing.T) {
	api := newFakeAPI()
	api.assets.onCreate = func(context.Context, int, []resource.AssetWrite) error {
		return apiError(http.StatusBadRequest, "Bad parent reference")
	}
	api.assets.onRetrieve = func(context.Context, []identity.Identity) error {
		return apiError(http.StatusForbidden, "forbidden")
	}
	e := newTestEngine(api)

	items := assetWrites(3)
	items[0].ParentExternalID = "p"
	res, err := e.EnsureAssetsExist(context.Background(), items, testOptions(100, 1))
	require.NoError(t, err)

	assert.Empty(t, res.Results)
	require.Len(t, res.Errors, 1)
	assert.Len(t, res.Errors[0].Skipped, 3)
	assert.Equal(t, 1, api.assets.createCalls)
}

func TestRunBatch_TerminatesWhenEveryRequestFails(t *testing.T) {
	api := newFakeAPI()
	// Every request reports its first record as referencing a missing parent.
	api.assets.onCreate = func(_ context.Context, _ int, items []resource.AssetWrite) error {
		return notFound(client.ErrorItem{Field: "externalId", Identity: identity.FromExternalID(items[0].ParentExternalID)})
	}
	e := newTestEngine(api)

	items := assetWrites(20)
	for i := range items {
		items[i].ParentExternalID = fmt.Sprintf("missing-%d", i)
	}
	res, err := e.EnsureAssetsExist(context.Background(), items, testOptions(100, 1))
	require.NoError(t, err)

	assert.Empty(t, res.Results)
	assert.Equal(t, 20, res.SkippedCount())
	assert.LessOrEqual(t, api.assets.createCalls, len(items))
}

func TestRunBatch_FatalWaitThenSuccess(t *testing.T) {
	api := newFakeAPI()
	api.assets.onCreate = func(_ context.Context, call int, _ []resource.AssetWrite) error {
		if call == 1 {
			return apiError(http.StatusServiceUnavailable, "unavailable")
		}
		return nil
	}
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)
	e := newTestEngine(api, func(o *Options) { o.Metrics = rec })

	res, err := e.EnsureAssetsExist(context.Background(), assetWrites(5), testOptions(100, 1))
	require.NoError(t, err)

	assert.True(t, res.IsAllGood())
	assert.Len(t, res.Results, 5)
	assert.Equal(t, 2, api.assets.createCalls)
	assert.Equal(t, 5.0, counterValue(t, reg, "bulkwrite_items_created_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "bulkwrite_fatal_waits_total"))
}

func TestRunBatch_FatalWithoutWait(t *testing.T) {
	api := newFakeAPI()
	api.assets.onCreate = func(context.Context, int, []resource.AssetWrite) error {
		return apiError(http.StatusServiceUnavailable, "unavailable")
	}
	e := newTestEngine(api)

	opts := testOptions(100, 1)
	opts.Policy.WaitOnFatal = false
	res, err := e.EnsureAssetsExist(context.Background(), assetWrites(5), opts)
	require.NoError(t, err)

	assert.Empty(t, res.Results)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, result.KindFatalFailure, res.Errors[0].Kind)
	assert.Equal(t, http.StatusServiceUnavailable, res.Errors[0].StatusCode)
	assert.Len(t, res.Errors[0].Skipped, 5)
	assert.Equal(t, 1, api.assets.createCalls)
}

func TestRunBatch_FatalRetriesBounded(t *testing.T) {
	api := newFakeAPI()
	api.assets.onCreate = func(context.Context, int, []resource.AssetWrite) error {
		return apiError(http.StatusBadGateway, "bad gateway")
	}
	e := newTestEngine(api, func(o *Options) { o.MaxFatalRetries = 2 })

	res, err := e.EnsureAssetsExist(context.Background(), assetWrites(3), testOptions(100, 1))
	require.NoError(t, err)

	assert.Equal(t, 3, api.assets.createCalls)
	require.Len(t, res.Errors, 1)
	assert.Len(t, res.Errors[0].Skipped, 3)
}

func TestRunBatch_UnrecognizedClientErrorNotResent(t *testing.T) {
	api := newFakeAPI()
	api.assets.onCreate = func(context.Context, int, []resource.AssetWrite) error {
		return apiError(http.StatusUnprocessableEntity, "something nobody expected")
	}
	e := newTestEngine(api)

	res, err := e.EnsureAssetsExist(context.Background(), assetWrites(3), testOptions(100, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, api.assets.createCalls)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, result.KindFatalFailure, res.Errors[0].Kind)
}

func TestRunBatch_NoRetryOnError(t *testing.T) {
	api := newFakeAPI()
	items := assetWrites(4)
	api.assets.seed(items[0])
	e := newTestEngine(api)

	opts := testOptions(100, 1)
	opts.Policy = RetryPolicy{}
	res, err := e.EnsureAssetsExist(context.Background(), items, opts)
	require.NoError(t, err)

	assert.Empty(t, res.Results)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, result.KindItemExists, res.Errors[0].Kind)
	assert.Len(t, res.Errors[0].Skipped, 4)
	assert.Equal(t, 1, api.assets.createCalls)
}

func TestUpsertAssets(t *testing.T) {
	api := newFakeAPI()
	api.assets.seed(
		resource.AssetWrite{ExternalID: "b", Name: "old name"},
		resource.AssetWrite{ExternalID: "d", Name: "same"},
	)
	e := newTestEngine(api)

	items := []resource.AssetWrite{
		{ExternalID: "a", Name: "A"},
		{ExternalID: "b", Name: "new name"},
		{ExternalID: "c", Name: "C"},
		{ExternalID: "d", Name: "same"},
	}
	opts := testOptions(100, 1)
	opts.Policy.KeepDuplicates = false
	res, err := e.UpsertAssets(context.Background(), items, opts, resource.UpdateOptions{})
	require.NoError(t, err)

	assert.True(t, res.IsAllGood(), "errors: %v", res.Errors)
	assert.Equal(t, []string{"a", "b", "c", "d"}, externalIDs(res.Results))
	assert.Equal(t, "new name", res.Results[1].Name)

	require.Len(t, api.assets.updated, 1, "only the changed asset is updated")
	require.NotNil(t, api.assets.updated[0].Update.Name)
	assert.Equal(t, "new name", *api.assets.updated[0].Update.Name.Set)
}

func TestUpsertAssets_UpdateFailureReportedAsWrite(t *testing.T) {
	api := newFakeAPI()
	api.assets.seed(resource.AssetWrite{ExternalID: "b", Name: "old"})
	api.assets.onUpdate = func(_ context.Context, items []resource.AssetUpdate) error {
		return notFound(client.ErrorItem{Field: "id", Identity: items[0].Identity})
	}
	e := newTestEngine(api)

	items := []resource.AssetWrite{{ExternalID: "a", Name: "A"}, {ExternalID: "b", Name: "new"}}
	res, err := e.UpsertAssets(context.Background(), items, testOptions(100, 1), resource.UpdateOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, externalIDs(res.Results))
	require.Len(t, res.Errors, 1)
	require.Len(t, res.Errors[0].Skipped, 1)
	assert.Equal(t, "b", res.Errors[0].Skipped[0].ExternalID)
}

func TestGetOrCreateAssets(t *testing.T) {
	api := newFakeAPI()
	api.assets.seed(resource.AssetWrite{ExternalID: "b", Name: "B"})
	e := newTestEngine(api)

	var built [][]string
	build := func(ids []string) ([]resource.AssetWrite, error) {
		built = append(built, ids)
		out := make([]resource.AssetWrite, 0, len(ids))
		for _, id := range ids {
			out = append(out, resource.AssetWrite{ExternalID: id, Name: strings.ToUpper(id)})
		}
		return out, nil
	}

	res, err := e.GetOrCreateAssets(context.Background(), []string{"a", "b", "c", "a"}, build, testOptions(100, 1))
	require.NoError(t, err)

	assert.True(t, res.IsAllGood())
	assert.Equal(t, []string{"a", "b", "c"}, externalIDs(res.Results))
	assert.Equal(t, [][]string{{"a", "c"}}, built)
}

func TestGetOrCreateAssets_BuilderError(t *testing.T) {
	e := newTestEngine(newFakeAPI())

	boom := errors.New("boom")
	_, err := e.GetOrCreateAssets(context.Background(), []string{"a"}, func([]string) ([]resource.AssetWrite, error) {
		return nil, boom
	}, testOptions(100, 1))
	assert.ErrorIs(t, err, boom)
}

func TestGetOrCreateAssets_ConcurrentCreatorResolved(t *testing.T) {
	api := newFakeAPI()
	// Another writer creates "x" between our lookup and our create.
	api.assets.onCreate = func(_ context.Context, call int, items []resource.AssetWrite) error {
		if call == 1 {
			api.assets.seed(resource.AssetWrite{ExternalID: "x", Name: "from elsewhere"})
		}
		return nil
	}
	e := newTestEngine(api)

	res, err := e.GetOrCreateAssets(context.Background(), []string{"x", "y"}, func(ids []string) ([]resource.AssetWrite, error) {
		out := make([]resource.AssetWrite, 0, len(ids))
		for _, id := range ids {
			out = append(out, resource.AssetWrite{ExternalID: id, Name: id})
		}
		return out, nil
	}, testOptions(100, 1))
	require.NoError(t, err)

	assert.True(t, res.IsAllGood(), "errors: %v", res.Errors)
	assert.Equal(t, []string{"x", "y"}, externalIDs(res.Results))
	assert.Equal(t, "from elsewhere", res.Results[0].Name)
}

func TestEnsureTimeSeriesExist_LegacyNameConflict(t *testing.T) {
	api := newFakeAPI()
	api.timeSeries.onCreate = func(_ context.Context, _ int, items []resource.TimeSeriesWrite) error {
		for _, ts := range items {
			if ts.LegacyName == "taken" {
				return conflict(client.ErrorItem{Field: "legacyName", Identity: identity.FromExternalID("taken")})
			}
		}
		return nil
	}
	e := newTestEngine(api)

	items := []resource.TimeSeriesWrite{
		{ExternalID: "ts-1", LegacyName: "taken"},
		{ExternalID: "ts-2", LegacyName: "free"},
	}
	res, err := e.EnsureTimeSeriesExist(context.Background(), items, testOptions(100, 1))
	require.NoError(t, err)

	assert.Len(t, res.Results, 1)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, result.ResourceLegacyName, res.Errors[0].Resource)
	assert.Equal(t, "ts-1", res.Errors[0].Skipped[0].ExternalID)
}

func TestEnsureEventsExist_MissingAssetIDs(t *testing.T) {
	api := newFakeAPI()
	api.events.onCreate = func(_ context.Context, _ int, items []resource.EventWrite) error {
		for _, ev := range items {
			for _, id := range ev.AssetIDs {
				if id == 404 {
					return notFound(client.ErrorItem{Field: "id", Identity: identity.FromID(404)})
				}
			}
		}
		return nil
	}
	e := newTestEngine(api)

	items := []resource.EventWrite{
		{ExternalID: "ev-1", AssetIDs: []int64{1, 404}},
		{ExternalID: "ev-2", AssetIDs: []int64{1}},
	}
	res, err := e.EnsureEventsExist(context.Background(), items, testOptions(100, 1))
	require.NoError(t, err)

	assert.Len(t, res.Results, 1)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, result.ResourceAssetID, res.Errors[0].Resource)
	assert.Equal(t, "ev-1", res.Errors[0].Skipped[0].ExternalID)
}

func TestEnsureSequencesExist(t *testing.T) {
	api := newFakeAPI()
	e := newTestEngine(api)

	items := []resource.SequenceWrite{
		{ExternalID: "seq-1", Columns: []resource.SequenceColumnWrite{{ExternalID: "c1", ValueType: resource.ValueTypeDouble}}},
		{ExternalID: "seq-2"},
	}
	opts := testOptions(100, 1)
	opts.Mode = sanitize.ModeRemove
	res, err := e.EnsureSequencesExist(context.Background(), items, opts)
	require.NoError(t, err)

	assert.Len(t, res.Results, 1)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, result.ResourceColumns, res.Errors[0].Resource)
}
