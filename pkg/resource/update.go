// Package resource defines the write, read and update payloads for the record
// kinds the bulk-write engine handles: assets, events, time series, sequences,
// sequence rows, raw rows and data points.
package resource

import (
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
)

// Kind names a resource kind. It is used as a metrics label and to give the
// error classifier request context.
type Kind string

const (
	KindAsset        Kind = "assets"
	KindEvent        Kind = "events"
	KindTimeSeries   Kind = "timeseries"
	KindSequence     Kind = "sequences"
	KindSequenceRows Kind = "sequence_rows"
	KindDataPoints   Kind = "datapoints"
	KindRaw          Kind = "raw"

	// Kinds the engine only reads, to check references.
	KindDataSet Kind = "datasets"
	KindLabel   Kind = "labels"
)

// SetField is a scalar update: either set a value or clear it.
type SetField[T any] struct {
	Set     *T   `json:"set,omitempty"`
	SetNull bool `json:"setNull,omitempty"`
}

// Set returns an update that sets v.
func Set[T any](v T) *SetField[T] {
	return &SetField[T]{Set: &v}
}

// SetNull returns an update that clears the field.
func SetNull[T any]() *SetField[T] {
	return &SetField[T]{SetNull: true}
}

// MapUpdate updates a string map either by replacement or by add/remove.
type MapUpdate struct {
	Set    map[string]string `json:"set,omitempty"`
	Add    map[string]string `json:"add,omitempty"`
	Remove []string          `json:"remove,omitempty"`
}

// ListUpdate updates a list either by replacement or by add/remove.
type ListUpdate[T any] struct {
	Set    []T `json:"set,omitempty"`
	Add    []T `json:"add,omitempty"`
	Remove []T `json:"remove,omitempty"`
}

// UpdateItem pairs the identity of a record with a patch. It encodes as the
// identity object with an extra "update" member.
type UpdateItem[P any] struct {
	Identity identity.Identity
	Update   P
}

// MarshalJSON implements json.Marshaler.
func (u UpdateItem[P]) MarshalJSON() ([]byte, error) {
	patch, err := json.Marshal(u.Update)
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	return spliceIdentity(u.Identity, "update", patch)
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *UpdateItem[P]) UnmarshalJSON(data []byte) error {
	var wire struct {
		Update json.RawMessage `json:"update"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode update: %w", err)
	}
	if err := json.Unmarshal(data, &u.Identity); err != nil {
		return err
	}
	if len(wire.Update) == 0 {
		return nil
	}
	return json.Unmarshal(wire.Update, &u.Update)
}

// UpdateOptions controls how an upsert turns a write record into a patch
// for an existing record.
type UpdateOptions struct {
	// SetNull clears fields on the existing record that the write leaves
	// empty. When false, empty fields leave the existing value in place.
	SetNull bool

	// ReplaceMetadata replaces the metadata map instead of merging into it.
	ReplaceMetadata bool

	// ReplaceLabels replaces labels instead of adding the missing ones.
	ReplaceLabels bool
}

// spliceIdentity encodes id and appends one extra member to the object.
func spliceIdentity(id identity.Identity, field string, value []byte) ([]byte, error) {
	idJSON, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	if len(idJSON) < 2 || idJSON[0] != '{' {
		return nil, fmt.Errorf("encode %s: record has no identity", field)
	}
	out := make([]byte, 0, len(idJSON)+len(field)+len(value)+4)
	out = append(out, idJSON[:len(idJSON)-1]...)
	out = append(out, ',', '"')
	out = append(out, field...)
	out = append(out, '"', ':')
	out = append(out, value...)
	out = append(out, '}')
	return out, nil
}

func stringPatch(existing, desired string, opts UpdateOptions) *SetField[string] {
	switch {
	case desired == existing:
		return nil
	case desired == "":
		if opts.SetNull {
			return SetNull[string]()
		}
		return nil
	default:
		return Set(desired)
	}
}

func idPatch(existing int64, desired *int64, opts UpdateOptions) *SetField[int64] {
	switch {
	case desired == nil || *desired <= 0:
		if opts.SetNull && existing > 0 {
			return SetNull[int64]()
		}
		return nil
	case *desired == existing:
		return nil
	default:
		return Set(*desired)
	}
}

func metadataPatch(existing, desired map[string]string, opts UpdateOptions) *MapUpdate {
	if opts.ReplaceMetadata {
		if mapsEqual(existing, desired) {
			return nil
		}
		if len(desired) == 0 && !opts.SetNull {
			return nil
		}
		set := desired
		if set == nil {
			set = map[string]string{}
		}
		return &MapUpdate{Set: set}
	}

	add := make(map[string]string)
	for k, v := range desired {
		if old, ok := existing[k]; !ok || old != v {
			add[k] = v
		}
	}
	if len(add) == 0 {
		return nil
	}
	return &MapUpdate{Add: add}
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
