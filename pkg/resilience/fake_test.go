package resilience

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/client"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
)

// fakeEndpoint is an in-memory resource endpoint. Hooks run before the
// default behaviour; a hook error fails the call.
type fakeEndpoint[W, R, U any] struct {
	mu     sync.Mutex
	store  map[identity.Identity]R
	nextID int64

	toRead   func(w W, id int64) R
	writeID  func(W) identity.Identity
	readID   func(R) identity.Identity
	idOf     func(R) int64
	updateID func(U) identity.Identity
	apply    func(R, U) R

	latency time.Duration

	onCreate   func(ctx context.Context, call int, items []W) error
	onRetrieve func(ctx context.Context, ids []identity.Identity) error
	onUpdate   func(ctx context.Context, items []U) error

	createCalls   int
	retrieveCalls int
	updateCalls   int
	deleteCalls   int
	inFlight      int
	maxInFlight   int
	created       [][]W
	updated       []U
}

func (f *fakeEndpoint[W, R, U]) enter() {
	f.mu.Lock()
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.mu.Unlock()
	if f.latency > 0 {
		time.Sleep(f.latency)
	}
}

func (f *fakeEndpoint[W, R, U]) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

// put stores r under its identity and its internal id.
func (f *fakeEndpoint[W, R, U]) put(r R) {
	f.store[f.readID(r)] = r
	f.store[identity.FromID(f.idOf(r))] = r
}

// seed stores w as if it had been created earlier.
func (f *fakeEndpoint[W, R, U]) seed(items ...W) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range items {
		f.nextID++
		f.put(f.toRead(w, f.nextID))
	}
}

func (f *fakeEndpoint[W, R, U]) Create(ctx context.Context, items []W) ([]R, error) {
	f.enter()
	defer f.leave()

	f.mu.Lock()
	f.createCalls++
	call := f.createCalls
	f.created = append(f.created, items)
	f.mu.Unlock()

	if f.onCreate != nil {
		if err := f.onCreate(ctx, call, items); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var dups []client.ErrorItem
	for _, w := range items {
		id := f.writeID(w)
		if _, ok := f.store[id]; ok && !id.IsZero() {
			dups = append(dups, client.ErrorItem{Field: "externalId", Identity: id})
		}
	}
	if len(dups) > 0 {
		return nil, conflict(dups...)
	}

	out := make([]R, 0, len(items))
	for _, w := range items {
		f.nextID++
		r := f.toRead(w, f.nextID)
		f.put(r)
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeEndpoint[W, R, U]) Retrieve(ctx context.Context, ids []identity.Identity, ignoreUnknownIDs bool) ([]R, error) {
	f.mu.Lock()
	f.retrieveCalls++
	f.mu.Unlock()

	if f.onRetrieve != nil {
		if err := f.onRetrieve(ctx, ids); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		out     []R
		missing []client.ErrorItem
	)
	for _, id := range ids {
		if r, ok := f.store[id]; ok {
			out = append(out, r)
		} else {
			missing = append(missing, client.ErrorItem{Field: "externalId", Identity: id})
		}
	}
	if len(missing) > 0 && !ignoreUnknownIDs {
		return nil, notFound(missing...)
	}
	return out, nil
}

func (f *fakeEndpoint[W, R, U]) Update(ctx context.Context, items []U) ([]R, error) {
	f.mu.Lock()
	f.updateCalls++
	f.updated = append(f.updated, items...)
	f.mu.Unlock()

	if f.onUpdate != nil {
		if err := f.onUpdate(ctx, items); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var missing []client.ErrorItem
	for _, u := range items {
		if _, ok := f.store[f.updateID(u)]; !ok {
			missing = append(missing, client.ErrorItem{Field: "id", Identity: f.updateID(u)})
		}
	}
	if len(missing) > 0 {
		return nil, notFound(missing...)
	}

	out := make([]R, 0, len(items))
	for _, u := range items {
		r := f.apply(f.store[f.updateID(u)], u)
		f.put(r)
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeEndpoint[W, R, U]) Delete(_ context.Context, ids []identity.Identity, ignoreUnknownIDs bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++

	var missing []client.ErrorItem
	for _, id := range ids {
		if _, ok := f.store[id]; !ok {
			missing = append(missing, client.ErrorItem{Field: "externalId", Identity: id})
		}
	}
	if len(missing) > 0 && !ignoreUnknownIDs {
		return notFound(missing...)
	}
	for _, id := range ids {
		if r, ok := f.store[id]; ok {
			delete(f.store, f.readID(r))
			delete(f.store, identity.FromID(f.idOf(r)))
		}
	}
	return nil
}

// fakeLookup is an in-memory read-only endpoint.
type fakeLookup[R any] struct {
	mu    sync.Mutex
	known map[identity.Identity]R
	calls int
}

func (f *fakeLookup[R]) add(id identity.Identity, r R) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.known[id] = r
}

func (f *fakeLookup[R]) has(id identity.Identity) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.known[id]
	return ok
}

func (f *fakeLookup[R]) Retrieve(_ context.Context, ids []identity.Identity, ignoreUnknownIDs bool) ([]R, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	var (
		out     []R
		missing []client.ErrorItem
	)
	for _, id := range ids {
		if r, ok := f.known[id]; ok {
			out = append(out, r)
		} else {
			missing = append(missing, client.ErrorItem{Field: "id", Identity: id})
		}
	}
	if len(missing) > 0 && !ignoreUnknownIDs {
		return nil, notFound(missing...)
	}
	return out, nil
}

func conflict(items ...client.ErrorItem) error {
	return &client.APIError{
		StatusCode: http.StatusConflict,
		ErrorClass: client.ErrorClassClient,
		Message:    "Duplicated",
		Duplicated: items,
	}
}

func notFound(items ...client.ErrorItem) error {
	return &client.APIError{
		StatusCode: http.StatusBadRequest,
		ErrorClass: client.ErrorClassClient,
		Message:    "Not found",
		Missing:    items,
	}
}

func apiError(status int, message string) error {
	class := client.ErrorClassClient
	if status >= 500 {
		class = client.ErrorClassServer
	}
	return &client.APIError{StatusCode: status, ErrorClass: class, Message: message}
}

// fakeAPI implements API on top of fake endpoints.
type fakeAPI struct {
	assets     *fakeEndpoint[resource.AssetWrite, resource.Asset, resource.AssetUpdate]
	events     *fakeEndpoint[resource.EventWrite, resource.Event, resource.EventUpdate]
	timeSeries *fakeEndpoint[resource.TimeSeriesWrite, resource.TimeSeries, resource.TimeSeriesUpdate]
	sequences  *fakeEndpoint[resource.SequenceWrite, resource.Sequence, resource.SequenceUpdate]
	dataSets   *fakeLookup[resource.DataSet]
	labels     *fakeLookup[resource.Label]

	mu           sync.Mutex
	dataPoints   []resource.DataPointsWrite
	sequenceRows []resource.SequenceRowsWrite
	rawRows      []resource.RawRow
	rawCalls     int

	onDataPoints   func(items []resource.DataPointsWrite) error
	onSequenceRows func(items []resource.SequenceRowsWrite) error
	onRawRows      func(rows []resource.RawRow) error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		assets: &fakeEndpoint[resource.AssetWrite, resource.Asset, resource.AssetUpdate]{
			store: make(map[identity.Identity]resource.Asset),
			toRead: func(w resource.AssetWrite, id int64) resource.Asset {
				a := resource.Asset{
					ID:               id,
					ExternalID:       w.ExternalID,
					Name:             w.Name,
					ParentExternalID: w.ParentExternalID,
					Description:      w.Description,
					Metadata:         w.Metadata,
					RootID:           id,
				}
				if w.ParentID != nil {
					a.ParentID = *w.ParentID
				}
				return a
			},
			writeID:  resource.AssetWrite.Identity,
			readID:   resource.Asset.Identity,
			idOf:     func(a resource.Asset) int64 { return a.ID },
			updateID: func(u resource.AssetUpdate) identity.Identity { return u.Identity },
			apply: func(a resource.Asset, u resource.AssetUpdate) resource.Asset {
				if u.Update.Name != nil && u.Update.Name.Set != nil {
					a.Name = *u.Update.Name.Set
				}
				if u.Update.Description != nil && u.Update.Description.Set != nil {
					a.Description = *u.Update.Description.Set
				}
				return a
			},
		},
		events: &fakeEndpoint[resource.EventWrite, resource.Event, resource.EventUpdate]{
			store: make(map[identity.Identity]resource.Event),
			toRead: func(w resource.EventWrite, id int64) resource.Event {
				return resource.Event{ID: id, ExternalID: w.ExternalID, Type: w.Type, AssetIDs: w.AssetIDs}
			},
			writeID:  resource.EventWrite.Identity,
			readID:   resource.Event.Identity,
			idOf:     func(ev resource.Event) int64 { return ev.ID },
			updateID: func(u resource.EventUpdate) identity.Identity { return u.Identity },
			apply:    func(ev resource.Event, _ resource.EventUpdate) resource.Event { return ev },
		},
		timeSeries: &fakeEndpoint[resource.TimeSeriesWrite, resource.TimeSeries, resource.TimeSeriesUpdate]{
			store: make(map[identity.Identity]resource.TimeSeries),
			toRead: func(w resource.TimeSeriesWrite, id int64) resource.TimeSeries {
				return resource.TimeSeries{ID: id, ExternalID: w.ExternalID, Name: w.Name, IsString: w.IsString}
			},
			writeID:  resource.TimeSeriesWrite.Identity,
			readID:   resource.TimeSeries.Identity,
			idOf:     func(ts resource.TimeSeries) int64 { return ts.ID },
			updateID: func(u resource.TimeSeriesUpdate) identity.Identity { return u.Identity },
			apply:    func(ts resource.TimeSeries, _ resource.TimeSeriesUpdate) resource.TimeSeries { return ts },
		},
		sequences: &fakeEndpoint[resource.SequenceWrite, resource.Sequence, resource.SequenceUpdate]{
			store: make(map[identity.Identity]resource.Sequence),
			toRead: func(w resource.SequenceWrite, id int64) resource.Sequence {
				s := resource.Sequence{ID: id, ExternalID: w.ExternalID, Name: w.Name}
				for _, c := range w.Columns {
					s.Columns = append(s.Columns, resource.SequenceColumn{ExternalID: c.ExternalID, ValueType: c.ValueType})
				}
				return s
			},
			writeID:  resource.SequenceWrite.Identity,
			readID:   resource.Sequence.Identity,
			idOf:     func(s resource.Sequence) int64 { return s.ID },
			updateID: func(u resource.SequenceUpdate) identity.Identity { return u.Identity },
			apply:    func(s resource.Sequence, _ resource.SequenceUpdate) resource.Sequence { return s },
		},
		dataSets: &fakeLookup[resource.DataSet]{known: make(map[identity.Identity]resource.DataSet)},
		labels:   &fakeLookup[resource.Label]{known: make(map[identity.Identity]resource.Label)},
	}
}

func (f *fakeAPI) Assets() client.Endpoint[resource.AssetWrite, resource.Asset, resource.AssetUpdate] {
	return f.assets
}

func (f *fakeAPI) Events() client.Endpoint[resource.EventWrite, resource.Event, resource.EventUpdate] {
	return f.events
}

func (f *fakeAPI) TimeSeries() client.Endpoint[resource.TimeSeriesWrite, resource.TimeSeries, resource.TimeSeriesUpdate] {
	return f.timeSeries
}

func (f *fakeAPI) Sequences() client.Endpoint[resource.SequenceWrite, resource.Sequence, resource.SequenceUpdate] {
	return f.sequences
}

func (f *fakeAPI) DataSets() client.Lookup[resource.DataSet] {
	return f.dataSets
}

func (f *fakeAPI) Labels() client.Lookup[resource.Label] {
	return f.labels
}

func (f *fakeAPI) InsertDataPoints(_ context.Context, items []resource.DataPointsWrite) error {
	if f.onDataPoints != nil {
		if err := f.onDataPoints(items); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataPoints = append(f.dataPoints, items...)
	return nil
}

func (f *fakeAPI) InsertSequenceRows(_ context.Context, items []resource.SequenceRowsWrite) error {
	if f.onSequenceRows != nil {
		if err := f.onSequenceRows(items); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequenceRows = append(f.sequenceRows, items...)
	return nil
}

func (f *fakeAPI) InsertRawRows(_ context.Context, _, _ string, rows []resource.RawRow, _ bool) error {
	f.mu.Lock()
	f.rawCalls++
	f.mu.Unlock()
	if f.onRawRows != nil {
		if err := f.onRawRows(rows); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawRows = append(f.rawRows, rows...)
	return nil
}

// newTestEngine creates an engine over api with short delays.
func newTestEngine(api API, modify ...func(*Options)) *Engine {
	logger := zerolog.Nop()
	opts := Options{
		Logger:           &logger,
		FatalDelay:       time.Millisecond,
		MaxFatalRetries:  3,
		DuplicateBackoff: time.Millisecond,
	}
	for _, m := range modify {
		m(&opts)
	}
	e, err := New(api, opts)
	if err != nil {
		panic(err)
	}
	return e
}

func testOptions(chunkSize, parallelism int) WriteOptions {
	opts := DefaultWriteOptions()
	opts.ChunkSize = chunkSize
	opts.Parallelism = parallelism
	return opts
}
