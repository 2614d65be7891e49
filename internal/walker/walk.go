package walker

import (
	"iter"
	"strconv"
)

// DefaultMaxDepth is the object nesting limit used when Options.MaxDepth is unset.
const DefaultMaxDepth = 9

// Options controls Walk.
type Options struct {
	// MaxDepth bounds object descent. Objects reached at depth >= MaxDepth
	// contribute nothing. Zero or negative means DefaultMaxDepth.
	MaxDepth int
	// CollapseArrayIndices renders every array index as "[]" so all elements
	// of an array share one path.
	CollapseArrayIndices bool
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// Walk yields every (path, scalar) pair reachable from v.
//
// Object keys join with "." (no leading dot at the root); array elements
// append "[i]" or "[]". Empty containers yield nothing. The sequence can be
// ranged over any number of times.
func Walk(v Value, opt Options) iter.Seq2[string, Value] {
	limit := opt.maxDepth()
	return func(yield func(string, Value) bool) {
		walk(v, "", 0, limit, opt.CollapseArrayIndices, yield)
	}
}

func walk(v Value, path string, depth, limit int, collapse bool, yield func(string, Value) bool) bool {
	switch v.kind {
	case Object:
		if depth >= limit {
			return true
		}
		for _, m := range v.members {
			p := m.Key
			if path != "" {
				p = path + "." + m.Key
			}
			if !walk(m.Value, p, depth+1, limit, collapse, yield) {
				return false
			}
		}
		return true
	case Array:
		for i, e := range v.elems {
			var p string
			if collapse {
				p = path + "[]"
			} else {
				p = path + "[" + strconv.Itoa(i) + "]"
			}
			if !walk(e, p, depth+1, limit, collapse, yield) {
				return false
			}
		}
		return true
	default:
		return yield(path, v)
	}
}

// Flatten returns an object with one member per (path, scalar) pair of v, in
// walk order.
func Flatten(v Value, opt Options) Value {
	var members []Member
	for p, s := range Walk(v, opt) {
		members = append(members, Member{Key: p, Value: s})
	}
	return ObjectValue(members...)
}
