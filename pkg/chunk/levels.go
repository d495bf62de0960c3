package chunk

// Levels orders items of a hierarchy so that every item comes in a later
// level than the item it references. key returns the item's own key and
// parent the key of the item it depends on ("" for none).
//
// Items whose parent is not part of items start at level 0. Items that can
// never be placed, because their parents form a cycle, are returned as a
// final level so the server can reject them. Input order is kept within each
// level.
func Levels[T any](items []T, key, parent func(T) string) [][]T {
	if len(items) == 0 {
		return nil
	}

	present := make(map[string]struct{}, len(items))
	for _, it := range items {
		if k := key(it); k != "" {
			present[k] = struct{}{}
		}
	}

	placed := make(map[string]struct{}, len(items))
	done := make([]bool, len(items))
	remaining := len(items)
	var levels [][]T

	for remaining > 0 {
		var level []T
		var levelKeys []string
		for i, it := range items {
			if done[i] {
				continue
			}
			p := parent(it)
			_, inRequest := present[p]
			_, parentPlaced := placed[p]
			if p == "" || !inRequest || parentPlaced {
				level = append(level, it)
				levelKeys = append(levelKeys, key(it))
				done[i] = true
			}
		}

		if len(level) == 0 {
			var rest []T
			for i, it := range items {
				if !done[i] {
					rest = append(rest, it)
				}
			}
			return append(levels, rest)
		}

		// Keys become visible only after the whole level is collected, so
		// a child never shares a level with its parent.
		for _, k := range levelKeys {
			if k != "" {
				placed[k] = struct{}{}
			}
		}
		remaining -= len(level)
		levels = append(levels, level)
	}

	return levels
}
