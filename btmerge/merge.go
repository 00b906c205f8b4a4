// Package btmerge deep-merges nested key/value payloads.
//
// Merging recurses through map-valued fields until it hits a "cut path",
// below which the incoming value replaces the existing one wholesale.
// A small table of reserved field names selects non-default strategies;
// today that is just "tags", which merges as a de-duplicated set union at
// the top level.
package btmerge

import (
	"reflect"
	"strings"

	"github.com/muir/list"
)

// FieldTags is the reserved top-level field that merges as a set union.
const FieldTags = "tags"

type strategy int

const (
	strategyDeepMerge strategy = iota
	strategyReplace
	strategySetUnion
)

// reservedStrategies maps reserved top-level field names to their merge
// strategy. Consulted only at depth zero. Add entries here rather than
// branching on field names in the merge walk.
var reservedStrategies = map[string]strategy{
	FieldTags: strategySetUnion,
}

// Merge merges from into into, mutating into in place and returning it.
// Map-valued fields present on both sides merge recursively; everything
// else replaces. cutPaths are dotted field paths (eg "input" or
// "metadata.model") below which recursion stops and replacement applies.
//
// Putting FieldTags in cutPaths forces replacement instead of union, which
// is how a caller clears tags by sending an empty list. A nil tags value
// always replaces.
func Merge(into, from map[string]any, cutPaths ...string) map[string]any {
	if into == nil {
		into = make(map[string]any, len(from))
	}
	var cuts map[string]struct{}
	if len(cutPaths) != 0 {
		cuts = make(map[string]struct{}, len(cutPaths))
		for _, p := range cutPaths {
			cuts[p] = struct{}{}
		}
	}
	mergeLevel(into, from, "", 0, cuts)
	return into
}

func mergeLevel(into, from map[string]any, prefix string, depth int, cuts map[string]struct{}) {
	for key, fromVal := range from {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		_, cut := cuts[path]
		if depth == 0 && !cut {
			if strat, ok := reservedStrategies[key]; ok && strat == strategySetUnion {
				if union, ok := unionStrings(into[key], fromVal); ok {
					into[key] = union
					continue
				}
				// either side is not a string list: fall through to replace
			}
		}
		if !cut {
			intoMap, intoIsMap := into[key].(map[string]any)
			fromMap, fromIsMap := fromVal.(map[string]any)
			if intoIsMap && fromIsMap {
				mergeLevel(intoMap, fromMap, path, depth+1, cuts)
				continue
			}
		}
		into[key] = fromVal
	}
}

// unionStrings returns the de-duplicated union of two string lists,
// preserving a's order followed by new elements of b in their order.
// The second return is false unless both values are string lists.
func unionStrings(a, b any) ([]string, bool) {
	as, ok := stringList(a)
	if !ok {
		return nil, false
	}
	bs, ok := stringList(b)
	if !ok {
		return nil, false
	}
	seen := make(map[string]struct{}, len(as)+len(bs))
	union := list.Copy(as)
	for _, s := range as {
		seen[s] = struct{}{}
	}
	for _, s := range bs {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		union = append(union, s)
	}
	return union, true
}

// stringList accepts []string directly and []any whose elements are all
// strings (the shape produced by JSON decoding).
func stringList(v any) ([]string, bool) {
	switch typed := v.(type) {
	case []string:
		return typed, true
	case []any:
		out := make([]string, len(typed))
		for i, elem := range typed {
			s, ok := elem.(string)
			if !ok {
				return nil, false
			}
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// ApplyArrayDeletes removes values from array fields of target. For each
// dotted path, any element of the array at that path that deep-equals one
// of the listed values is dropped. Missing fields, non-array fields, and
// values that match nothing are no-ops: retractions may legitimately race
// with or trail the data they target.
func ApplyArrayDeletes(target map[string]any, deletes map[string][]any) {
	for path, values := range deletes {
		if len(values) == 0 {
			continue
		}
		parent, last, ok := descend(target, path)
		if !ok {
			continue
		}
		field := reflect.ValueOf(parent[last])
		if !field.IsValid() || field.Kind() != reflect.Slice {
			continue
		}
		kept := reflect.MakeSlice(field.Type(), 0, field.Len())
		removed := false
		for i := 0; i < field.Len(); i++ {
			elem := field.Index(i)
			if matchesAny(elem.Interface(), values) {
				removed = true
				continue
			}
			kept = reflect.Append(kept, elem)
		}
		if removed {
			parent[last] = kept.Interface()
		}
	}
}

// descend walks all but the last segment of a dotted path through nested
// maps, returning the map holding the final segment.
func descend(m map[string]any, path string) (map[string]any, string, bool) {
	segments := strings.Split(path, ".")
	for _, seg := range segments[:len(segments)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			return nil, "", false
		}
		m = next
	}
	return m, segments[len(segments)-1], true
}

func matchesAny(elem any, values []any) bool {
	for _, v := range values {
		if reflect.DeepEqual(elem, v) {
			return true
		}
	}
	return false
}
