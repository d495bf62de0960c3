package sanitize

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// LimitUTF8ByteCount truncates s to at most n bytes without splitting a
// UTF-8 sequence. When the cut falls inside a multi-byte rune the cut moves
// back to the start of that rune. Invalid input bytes are replaced with
// U+FFFD before truncation so the result is always valid UTF-8.
func LimitUTF8ByteCount(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	if len(s) <= n {
		return s
	}

	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// fits reports whether s is valid UTF-8 of at most n bytes.
func fits(s string, n int) bool {
	return len(s) <= n && utf8.ValidString(s)
}

type metadataLimits struct {
	maxKey   int
	maxValue int
	maxBytes int
	maxPairs int
}

// verifyMetadata checks every pair and the totals of m against limits.
func verifyMetadata(m map[string]string, l metadataLimits) bool {
	if len(m) > l.maxPairs {
		return false
	}
	total := 0
	for k, v := range m {
		if k == "" || !fits(k, l.maxKey) || !fits(v, l.maxValue) {
			return false
		}
		total += len(k) + len(v)
	}
	return total <= l.maxBytes
}

// sanitizeMetadata returns a copy of m that satisfies l. Keys and values
// are truncated, pairs whose key ends up empty are dropped, and pairs are
// admitted in key order while they fit the pair count and byte budget.
// The input map is not modified.
func sanitizeMetadata(m map[string]string, l metadataLimits) map[string]string {
	if m == nil {
		return nil
	}
	if verifyMetadata(m, l) {
		return m
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, min(len(m), l.maxPairs))
	total := 0
	for _, k := range keys {
		if len(out) >= l.maxPairs {
			break
		}
		key := LimitUTF8ByteCount(k, l.maxKey)
		if key == "" {
			continue
		}
		if _, taken := out[key]; taken {
			continue
		}
		val := LimitUTF8ByteCount(m[k], l.maxValue)
		if total+len(key)+len(val) > l.maxBytes {
			continue
		}
		out[key] = val
		total += len(key) + len(val)
	}
	return out
}

// positiveID clears non-positive reference ids.
func positiveID(id *int64) *int64 {
	if id == nil || *id <= 0 {
		return nil
	}
	return id
}

func verifyID(id *int64) bool {
	return id == nil || *id > 0
}

// positiveIDs drops non-positive and repeated ids and caps the list at max.
func positiveIDs(ids []int64, max int) []int64 {
	if ids == nil {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, min(len(ids), max))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		if len(out) >= max {
			break
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func verifyIDs(ids []int64, max int) bool {
	if len(ids) > max {
		return false
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return false
		}
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}
