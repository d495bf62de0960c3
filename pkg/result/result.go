package result

import (
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
)

// Result is the outcome of a bulk write. Results holds the records the server
// accepted; Errors describes every record that was removed along the way.
//
// Records present in neither list were not attempted, for example because
// the operation was cancelled.
type Result[R, E any] struct {
	Results []R
	Errors  []*CogniteError[E]
}

// IsAllGood reports whether the result carries no errors.
func (r Result[R, E]) IsAllGood() bool {
	return len(r.Errors) == 0
}

// SkippedCount returns the number of records removed across all errors.
func (r Result[R, E]) SkippedCount() int {
	n := 0
	for _, e := range r.Errors {
		n += len(e.Skipped)
	}
	return n
}

// FirstError returns the first error of the result, or nil.
func (r Result[R, E]) FirstError() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

type errorKey struct {
	kind     ErrorKind
	resource ResourceType
}

// Merge combines results. Successes are concatenated in argument order.
// Errors are grouped by (Kind, Resource): values are unioned, skipped records
// concatenated, and groups without any skipped records are dropped.
//
// Merge is associative and, up to the order of list elements, commutative.
// Inputs are not modified.
func Merge[R, E any](results ...Result[R, E]) Result[R, E] {
	var out Result[R, E]

	total := 0
	for _, r := range results {
		total += len(r.Results)
	}
	if total > 0 {
		out.Results = make([]R, 0, total)
	}

	groups := make(map[errorKey]*CogniteError[E])
	values := make(map[errorKey]*identity.Set)
	var order []errorKey

	for _, r := range results {
		out.Results = append(out.Results, r.Results...)

		for _, e := range r.Errors {
			if e == nil {
				continue
			}
			key := errorKey{e.Kind, e.Resource}
			g, ok := groups[key]
			if !ok {
				g = &CogniteError[E]{
					Kind:       e.Kind,
					Resource:   e.Resource,
					Complete:   true,
					StatusCode: e.StatusCode,
					Message:    e.Message,
					Err:        e.Err,
				}
				groups[key] = g
				values[key] = identity.NewSet()
				order = append(order, key)
			}
			values[key].Add(e.Values...)
			g.Skipped = append(g.Skipped, e.Skipped...)
			g.Complete = g.Complete && e.Complete
			if g.Message == "" {
				g.Message = e.Message
				g.StatusCode = e.StatusCode
			}
			if g.Err == nil {
				g.Err = e.Err
			}
		}
	}

	for _, key := range order {
		g := groups[key]
		if len(g.Skipped) == 0 {
			continue
		}
		if vs := values[key]; vs.Len() > 0 {
			g.Values = vs.Items()
		}
		out.Errors = append(out.Errors, g)
	}

	return out
}

// Reproject reorders r.Results to follow order, matching records by key.
// When several results share an identity the last one wins, so an update
// supersedes the create it follows. Results whose identity is not in order
// are appended afterwards in their original order.
func Reproject[R, E any](r Result[R, E], order []identity.Identity, key func(R) identity.Identity) Result[R, E] {
	byID := make(map[identity.Identity]int, len(r.Results))
	for i, item := range r.Results {
		byID[key(item)] = i
	}

	used := make([]bool, len(r.Results))
	out := make([]R, 0, len(r.Results))
	seen := make(map[identity.Identity]struct{}, len(order))
	for _, id := range order {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if i, ok := byID[id]; ok {
			out = append(out, r.Results[i])
			used[i] = true
		}
	}

	for i, item := range r.Results {
		if used[i] {
			continue
		}
		if _, inOrder := seen[key(item)]; inOrder {
			// Superseded by a later result with the same identity.
			continue
		}
		out = append(out, item)
	}

	return Result[R, E]{Results: out, Errors: r.Errors}
}
