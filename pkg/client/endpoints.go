package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
)

// Endpoint is the create/retrieve/update/delete surface of one resource
// kind. W is the create payload, R the stored resource and U the update item.
type Endpoint[W, R, U any] interface {
	Create(ctx context.Context, items []W) ([]R, error)
	Retrieve(ctx context.Context, ids []identity.Identity, ignoreUnknownIDs bool) ([]R, error)
	Update(ctx context.Context, items []U) ([]R, error)
	Delete(ctx context.Context, ids []identity.Identity, ignoreUnknownIDs bool) error
}

// Lookup is the retrieve surface of a kind that is read but never written.
type Lookup[R any] interface {
	Retrieve(ctx context.Context, ids []identity.Identity, ignoreUnknownIDs bool) ([]R, error)
}

type itemsRequest[T any] struct {
	Items            []T  `json:"items"`
	IgnoreUnknownIDs bool `json:"ignoreUnknownIds,omitempty"`
}

type itemsResponse[T any] struct {
	Items []T `json:"items"`
}

// resourceEndpoint implements Endpoint for the standard resource routes.
type resourceEndpoint[W, R, U any] struct {
	c    *Client
	name string
}

func (e resourceEndpoint[W, R, U]) Create(ctx context.Context, items []W) ([]R, error) {
	var out itemsResponse[R]
	if err := e.c.Post(ctx, e.name+"/create", "/"+e.name, nil, itemsRequest[W]{Items: items}, &out); err != nil {
		return nil, fmt.Errorf("create %s: %w", e.name, err)
	}
	return out.Items, nil
}

func (e resourceEndpoint[W, R, U]) Retrieve(ctx context.Context, ids []identity.Identity, ignoreUnknownIDs bool) ([]R, error) {
	var out itemsResponse[R]
	req := itemsRequest[identity.Identity]{Items: ids, IgnoreUnknownIDs: ignoreUnknownIDs}
	if err := e.c.Post(ctx, e.name+"/byids", "/"+e.name+"/byids", nil, req, &out); err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", e.name, err)
	}
	return out.Items, nil
}

func (e resourceEndpoint[W, R, U]) Update(ctx context.Context, items []U) ([]R, error) {
	var out itemsResponse[R]
	if err := e.c.Post(ctx, e.name+"/update", "/"+e.name+"/update", nil, itemsRequest[U]{Items: items}, &out); err != nil {
		return nil, fmt.Errorf("update %s: %w", e.name, err)
	}
	return out.Items, nil
}

func (e resourceEndpoint[W, R, U]) Delete(ctx context.Context, ids []identity.Identity, ignoreUnknownIDs bool) error {
	req := itemsRequest[identity.Identity]{Items: ids, IgnoreUnknownIDs: ignoreUnknownIDs}
	if err := e.c.Post(ctx, e.name+"/delete", "/"+e.name+"/delete", nil, req, nil); err != nil {
		return fmt.Errorf("delete %s: %w", e.name, err)
	}
	return nil
}

// Assets returns the asset endpoint.
func (c *Client) Assets() Endpoint[resource.AssetWrite, resource.Asset, resource.AssetUpdate] {
	return resourceEndpoint[resource.AssetWrite, resource.Asset, resource.AssetUpdate]{c: c, name: string(resource.KindAsset)}
}

// Events returns the event endpoint.
func (c *Client) Events() Endpoint[resource.EventWrite, resource.Event, resource.EventUpdate] {
	return resourceEndpoint[resource.EventWrite, resource.Event, resource.EventUpdate]{c: c, name: string(resource.KindEvent)}
}

// TimeSeries returns the time series endpoint.
func (c *Client) TimeSeries() Endpoint[resource.TimeSeriesWrite, resource.TimeSeries, resource.TimeSeriesUpdate] {
	return resourceEndpoint[resource.TimeSeriesWrite, resource.TimeSeries, resource.TimeSeriesUpdate]{c: c, name: string(resource.KindTimeSeries)}
}

// Sequences returns the sequence endpoint.
func (c *Client) Sequences() Endpoint[resource.SequenceWrite, resource.Sequence, resource.SequenceUpdate] {
	return resourceEndpoint[resource.SequenceWrite, resource.Sequence, resource.SequenceUpdate]{c: c, name: string(resource.KindSequence)}
}

// DataSets returns the data set lookup.
func (c *Client) DataSets() Lookup[resource.DataSet] {
	return resourceEndpoint[struct{}, resource.DataSet, struct{}]{c: c, name: string(resource.KindDataSet)}
}

// Labels returns the label definition lookup.
func (c *Client) Labels() Lookup[resource.Label] {
	return resourceEndpoint[struct{}, resource.Label, struct{}]{c: c, name: string(resource.KindLabel)}
}

// InsertDataPoints inserts data points into existing time series.
func (c *Client) InsertDataPoints(ctx context.Context, items []resource.DataPointsWrite) error {
	if err := c.Post(ctx, "timeseries/data", "/timeseries/data", nil, itemsRequest[resource.DataPointsWrite]{Items: items}, nil); err != nil {
		return fmt.Errorf("insert datapoints: %w", err)
	}
	return nil
}

// InsertSequenceRows inserts rows into existing sequences.
func (c *Client) InsertSequenceRows(ctx context.Context, items []resource.SequenceRowsWrite) error {
	if err := c.Post(ctx, "sequences/data", "/sequences/data", nil, itemsRequest[resource.SequenceRowsWrite]{Items: items}, nil); err != nil {
		return fmt.Errorf("insert sequence rows: %w", err)
	}
	return nil
}

// InsertRawRows inserts rows into a raw table, creating the database and
// table when ensureParent is set.
func (c *Client) InsertRawRows(ctx context.Context, db, table string, rows []resource.RawRow, ensureParent bool) error {
	path := "/raw/dbs/" + url.PathEscape(db) + "/tables/" + url.PathEscape(table) + "/rows"
	var query url.Values
	if ensureParent {
		query = url.Values{"ensureParent": []string{"true"}}
	}
	if err := c.Post(ctx, "raw/rows", path, query, itemsRequest[resource.RawRow]{Items: rows}, nil); err != nil {
		return fmt.Errorf("insert raw rows into %s/%s: %w", db, table, err)
	}
	return nil
}
