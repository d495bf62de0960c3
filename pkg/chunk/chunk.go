// Package chunk splits request payloads into groups that fit the size limits
// of one API call.
package chunk

import (
	"errors"
	"fmt"
)

// ErrInvalidSize is returned when a group size limit is not positive.
var ErrInvalidSize = errors.New("chunk size must be greater than zero")

// Chunk splits items into ceil(len(items)/size) groups of at most size
// elements. Order is preserved within and across groups. The returned groups
// share the backing array of items.
func Chunk[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidSize, size)
	}
	if len(items) == 0 {
		return nil, nil
	}

	groups := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		groups = append(groups, items[start:end:end])
	}
	return groups, nil
}

// Entry is one key of a two-level collection together with its values.
type Entry[K comparable, V any] struct {
	Key    K
	Values []V
}

// Len returns the number of values in the entry.
func (e Entry[K, V]) Len() int { return len(e.Values) }

// ChunkGroups splits a two-level collection so that each group holds at most
// maxKeys keys and at most maxValues values in total.
//
// A key's values are never split across groups unless the key alone holds
// more than maxValues values. Such a key is sub-chunked and each sub-chunk is
// emitted as its own single-key group. Entry order is preserved.
func ChunkGroups[K comparable, V any](entries []Entry[K, V], maxKeys, maxValues int) ([][]Entry[K, V], error) {
	if maxKeys <= 0 {
		return nil, fmt.Errorf("%w: max keys %d", ErrInvalidSize, maxKeys)
	}
	if maxValues <= 0 {
		return nil, fmt.Errorf("%w: max values %d", ErrInvalidSize, maxValues)
	}

	var (
		groups  [][]Entry[K, V]
		current []Entry[K, V]
		count   int
	)
	flush := func() {
		if len(current) > 0 {
			groups = append(groups, current)
			current = nil
			count = 0
		}
	}

	for _, e := range entries {
		if len(e.Values) > maxValues {
			flush()
			parts, _ := Chunk(e.Values, maxValues)
			for _, part := range parts {
				groups = append(groups, []Entry[K, V]{{Key: e.Key, Values: part}})
			}
			continue
		}
		if len(current) >= maxKeys || count+len(e.Values) > maxValues {
			flush()
		}
		current = append(current, e)
		count += len(e.Values)
	}
	flush()

	return groups, nil
}
