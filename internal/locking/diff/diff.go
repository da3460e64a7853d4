// Package diff provides recursive structural diffing over loosely-typed
// snapshot trees, plus the path lookup and field formatting helpers used to
// build conflict payloads and notification summaries.
package diff

import (
	"encoding/json"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Change is one differing field between two snapshots.
type Change struct {
	Before interface{}
	After  interface{}
}

// volatileFields are bookkeeping fields skipped at any nesting depth,
// matched on the final path segment.
var volatileFields = map[string]bool{
	"createdAt":  true,
	"updatedAt":  true,
	"deletedAt":  true,
	"created_at": true,
	"updated_at": true,
	"deleted_at": true,
}

// Snapshots computes the field-level differences between two snapshot
// trees, keyed by dotted path. Objects recurse by key, arrays by index;
// anything else is compared as a scalar. Inputs can be arbitrary external
// data, so recursion carries a visited set for cycle protection.
func Snapshots(before, after interface{}) map[string]Change {
	out := make(map[string]Change)
	visited := make(map[uintptr]bool)
	diffValue("", before, after, out, visited)
	return out
}

func diffValue(path string, before, after interface{}, out map[string]Change, visited map[uintptr]bool) {
	if path != "" && volatileFields[lastSegment(path)] {
		return
	}

	bm, bIsMap := asMap(before)
	am, aIsMap := asMap(after)
	if bIsMap && aIsMap {
		if enterCycle(before, visited) || enterCycle(after, visited) {
			return
		}
		for _, key := range unionKeys(bm, am) {
			diffValue(joinPath(path, key), bm[key], am[key], out, visited)
		}
		return
	}

	bs, bIsSlice := asSlice(before)
	as, aIsSlice := asSlice(after)
	if bIsSlice && aIsSlice {
		if enterCycle(before, visited) || enterCycle(after, visited) {
			return
		}
		n := len(bs)
		if len(as) > n {
			n = len(as)
		}
		for i := 0; i < n; i++ {
			var bv, av interface{}
			if i < len(bs) {
				bv = bs[i]
			}
			if i < len(as) {
				av = as[i]
			}
			diffValue(joinPath(path, strconv.Itoa(i)), bv, av, out, visited)
		}
		return
	}

	if !equalValue(before, after) {
		out[path] = Change{Before: before, After: after}
	}
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

// enterCycle marks a container as visited and reports whether it was seen
// before on this walk.
func enterCycle(v interface{}, visited map[uintptr]bool) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr:
		if rv.IsNil() {
			return false
		}
		p := rv.Pointer()
		if visited[p] {
			return true
		}
		visited[p] = true
	}
	return false
}

func unionKeys(a, b map[string]interface{}) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether two values compare equal under the differ's rules,
// including numeric normalization across JSON decode boundaries.
func Equal(a, b interface{}) bool {
	return equalValue(a, b)
}

// equalValue compares two scalars, normalizing numeric types so values that
// crossed a JSON decode boundary (float64) compare equal to native ints.
func equalValue(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func joinPath(base, seg string) string {
	if base == "" {
		return seg
	}
	return base + "." + seg
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Lookup descends a dotted path through nested maps.
func Lookup(m map[string]interface{}, path string) (interface{}, bool) {
	cur := interface{}(m)
	for _, seg := range strings.Split(path, ".") {
		cm, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = cm[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// LooseLookup tries the full path, then successive suffixes of it, to
// tolerate namespace prefixes in structured diff paths ("quote.total"
// matches a payload carrying only "total").
func LooseLookup(m map[string]interface{}, path string) (interface{}, bool) {
	if m == nil || path == "" {
		return nil, false
	}
	segs := strings.Split(path, ".")
	for i := 0; i < len(segs); i++ {
		if v, ok := Lookup(m, strings.Join(segs[i:], ".")); ok {
			return v, true
		}
	}
	return nil, false
}

// FieldLabel renders a field path as a human-readable label: the dotted
// prefix is stripped and the final segment is expanded from snake_case or
// camelCase to Title Case. Paths are external data; a path whose final
// segment carries no printable words renders as "-".
func FieldLabel(path string) string {
	seg := lastSegment(path)
	var words []string
	for _, w := range splitWords(seg) {
		if w == "" {
			continue
		}
		words = append(words, strings.ToUpper(w[:1])+w[1:])
	}
	if len(words) == 0 {
		return "-"
	}
	return strings.Join(words, " ")
}

func splitWords(s string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	if len(words) == 0 {
		return []string{s}
	}
	return words
}

// FormatValue renders a value for display in a conflict payload.
const maxDisplayLen = 120

func FormatValue(v interface{}) string {
	if v == nil {
		return ""
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			s = "?"
		} else {
			s = string(raw)
		}
	}
	if runes := []rune(s); len(runes) > maxDisplayLen {
		s = string(runes[:maxDisplayLen]) + "…"
	}
	return s
}
