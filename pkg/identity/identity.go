// Package identity provides the key type used to address records in the
// remote resource API: an internal numeric id, an external string id, or a
// composite instance id.
package identity

import (
	"encoding/json"
	"fmt"
)

// Kind tags which variant an Identity holds.
type Kind uint8

const (
	// KindNone is the zero Identity.
	KindNone Kind = iota

	// KindID is a server-assigned internal id.
	KindID

	// KindExternalID is a caller-assigned external id.
	KindExternalID

	// KindInstanceID is a space-scoped external id.
	KindInstanceID
)

// InstanceID is the composite key of a data-modelling instance.
type InstanceID struct {
	Space      string `json:"space"`
	ExternalID string `json:"externalId"`
}

// Identity is a tagged union of {ID, ExternalID, InstanceID}.
//
// Identity is comparable and is meant to be used directly as a map key. Two
// identities are equal only when they hold the same variant with the same
// value.
type Identity struct {
	kind       Kind
	id         int64
	externalID string
	space      string
}

// FromID creates an Identity from an internal id.
func FromID(id int64) Identity {
	return Identity{kind: KindID, id: id}
}

// FromExternalID creates an Identity from an external id.
func FromExternalID(externalID string) Identity {
	return Identity{kind: KindExternalID, externalID: externalID}
}

// FromInstanceID creates an Identity from a space and external id.
func FromInstanceID(space, externalID string) Identity {
	return Identity{kind: KindInstanceID, space: space, externalID: externalID}
}

// FromExternalIDs maps a list of external ids to identities.
func FromExternalIDs(externalIDs []string) []Identity {
	out := make([]Identity, 0, len(externalIDs))
	for _, x := range externalIDs {
		out = append(out, FromExternalID(x))
	}
	return out
}

// Kind returns the variant held by the identity.
func (i Identity) Kind() Kind { return i.kind }

// IsZero reports whether the identity holds no value.
func (i Identity) IsZero() bool { return i.kind == KindNone }

// ID returns the internal id and whether the identity holds one.
func (i Identity) ID() (int64, bool) {
	return i.id, i.kind == KindID
}

// ExternalID returns the external id and whether the identity holds one.
func (i Identity) ExternalID() (string, bool) {
	return i.externalID, i.kind == KindExternalID
}

// InstanceID returns the instance id and whether the identity holds one.
func (i Identity) InstanceID() (InstanceID, bool) {
	if i.kind != KindInstanceID {
		return InstanceID{}, false
	}
	return InstanceID{Space: i.space, ExternalID: i.externalID}, true
}

// String returns a compact, human readable form used in logs and cache keys.
func (i Identity) String() string {
	switch i.kind {
	case KindID:
		return fmt.Sprintf("id:%d", i.id)
	case KindExternalID:
		return "externalId:" + i.externalID
	case KindInstanceID:
		return "instanceId:" + i.space + "/" + i.externalID
	default:
		return "none"
	}
}

type wireIdentity struct {
	ID         *int64      `json:"id,omitempty"`
	ExternalID *string     `json:"externalId,omitempty"`
	InstanceID *InstanceID `json:"instanceId,omitempty"`

	// Data-modelling errors report instances flat.
	Space *string `json:"space,omitempty"`
}

// MarshalJSON encodes the identity as {"id":..}, {"externalId":..} or
// {"instanceId":{..}}.
func (i Identity) MarshalJSON() ([]byte, error) {
	var w wireIdentity
	switch i.kind {
	case KindID:
		w.ID = &i.id
	case KindExternalID:
		w.ExternalID = &i.externalID
	case KindInstanceID:
		w.InstanceID = &InstanceID{Space: i.space, ExternalID: i.externalID}
	default:
		return []byte("null"), nil
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes any of the wire forms, including the flat
// {"space":..,"externalId":..} shape the API uses in error payloads.
func (i *Identity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*i = Identity{}
		return nil
	}

	var w wireIdentity
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode identity: %w", err)
	}

	switch {
	case w.ID != nil:
		*i = FromID(*w.ID)
	case w.InstanceID != nil:
		*i = FromInstanceID(w.InstanceID.Space, w.InstanceID.ExternalID)
	case w.Space != nil && w.ExternalID != nil:
		*i = FromInstanceID(*w.Space, *w.ExternalID)
	case w.ExternalID != nil:
		*i = FromExternalID(*w.ExternalID)
	default:
		return fmt.Errorf("decode identity: no id, externalId or instanceId in %s", string(data))
	}
	return nil
}

// Set is an insertion-ordered set of identities.
type Set struct {
	index map[Identity]struct{}
	items []Identity
}

// NewSet creates a set holding ids, duplicates removed.
func NewSet(ids ...Identity) *Set {
	s := &Set{index: make(map[Identity]struct{}, len(ids))}
	s.Add(ids...)
	return s
}

// Add inserts ids not already present.
func (s *Set) Add(ids ...Identity) {
	for _, id := range ids {
		if _, ok := s.index[id]; ok {
			continue
		}
		s.index[id] = struct{}{}
		s.items = append(s.items, id)
	}
}

// Contains reports whether id is in the set.
func (s *Set) Contains(id Identity) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of distinct identities.
func (s *Set) Len() int { return len(s.items) }

// Items returns the identities in insertion order.
func (s *Set) Items() []Identity {
	out := make([]Identity, len(s.items))
	copy(out, s.items)
	return out
}
