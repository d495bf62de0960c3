package sanitize

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

// Mode selects what CleanRequest does with records that break a limit.
type Mode int

const (
	// ModeNone leaves records untouched.
	ModeNone Mode = iota

	// ModeClean repairs records in place and removes only those that cannot
	// be repaired.
	ModeClean

	// ModeRemove removes every record that fails validation.
	ModeRemove
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeClean:
		return "clean"
	case ModeRemove:
		return "remove"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "none", "clean" or "remove".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ModeNone, nil
	case "clean":
		return ModeClean, nil
	case "remove":
		return ModeRemove, nil
	default:
		return ModeNone, fmt.Errorf("unknown sanitation mode %q", s)
	}
}

// Distinct is a uniqueness constraint within one request. Key returns the
// zero Identity for records the constraint does not apply to.
type Distinct[T any] struct {
	Resource result.ResourceType
	Key      func(T) identity.Identity
}

// Rules bundles the validation of one record kind.
type Rules[T any] struct {
	// Verify returns the first failing resource, with ok false, or ok true
	// when the record is valid. It must not modify the record.
	Verify func(T) (failed result.ResourceType, ok bool)

	// Sanitize repairs the record in place.
	Sanitize func(*T)

	// Identity is used to fill the Values of reported errors.
	Identity func(T) identity.Identity

	// Distinct constraints are checked after per-record validation. The
	// first record holding a key is kept.
	Distinct []Distinct[T]
}

// CleanRequest applies rules to items according to mode. It returns the
// accepted records, in input order, and one error per (kind, resource) group
// describing the removed records. items itself is not modified; records are
// copied before being sanitized.
func CleanRequest[T any](items []T, mode Mode, rules Rules[T]) ([]T, []*result.CogniteError[T]) {
	if mode == ModeNone || len(items) == 0 {
		return items, nil
	}

	g := newGrouper[T](rules.Identity)
	accepted := make([]T, 0, len(items))

	for _, item := range items {
		if mode == ModeClean && rules.Sanitize != nil {
			rules.Sanitize(&item)
		}
		if rules.Verify != nil {
			if failed, ok := rules.Verify(item); !ok {
				g.add(result.KindSanitationFailed, failed, item)
				continue
			}
		}
		accepted = append(accepted, item)
	}

	for _, d := range rules.Distinct {
		seen := make(map[identity.Identity]struct{}, len(accepted))
		kept := accepted[:0:0]
		for _, item := range accepted {
			key := d.Key(item)
			if key.IsZero() {
				kept = append(kept, item)
				continue
			}
			if _, dup := seen[key]; dup {
				g.addWithValue(result.KindItemDuplicated, d.Resource, item, key)
				continue
			}
			seen[key] = struct{}{}
			kept = append(kept, item)
		}
		accepted = kept
	}

	return accepted, g.errors()
}

// grouper collects removed records into one error per (kind, resource).
type grouper[T any] struct {
	ident  func(T) identity.Identity
	groups map[[2]string]*result.CogniteError[T]
	values map[[2]string]*identity.Set
	order  [][2]string
}

func newGrouper[T any](ident func(T) identity.Identity) *grouper[T] {
	return &grouper[T]{
		ident:  ident,
		groups: make(map[[2]string]*result.CogniteError[T]),
		values: make(map[[2]string]*identity.Set),
	}
}

func (g *grouper[T]) add(kind result.ErrorKind, res result.ResourceType, item T) {
	var id identity.Identity
	if g.ident != nil {
		id = g.ident(item)
	}
	g.addWithValue(kind, res, item, id)
}

func (g *grouper[T]) addWithValue(kind result.ErrorKind, res result.ResourceType, item T, id identity.Identity) {
	key := [2]string{string(kind), string(res)}
	e, ok := g.groups[key]
	if !ok {
		e = &result.CogniteError[T]{Kind: kind, Resource: res, Complete: true}
		g.groups[key] = e
		g.values[key] = identity.NewSet()
		g.order = append(g.order, key)
	}
	e.Skipped = append(e.Skipped, item)
	if !id.IsZero() {
		g.values[key].Add(id)
	}
}

func (g *grouper[T]) errors() []*result.CogniteError[T] {
	if len(g.order) == 0 {
		return nil
	}
	out := make([]*result.CogniteError[T], 0, len(g.order))
	for _, key := range g.order {
		e := g.groups[key]
		e.Values = g.values[key].Items()
		switch e.Kind {
		case result.KindItemDuplicated:
			e.Message = fmt.Sprintf("%d records with duplicated %s removed from request", len(e.Skipped), e.Resource)
		default:
			e.Message = fmt.Sprintf("%d records failed validation on %s", len(e.Skipped), e.Resource)
		}
		out = append(out, e)
	}
	return out
}
