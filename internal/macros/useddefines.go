package macros

import (
	"slices"
	"strings"
)

// exportMarker identifies visibility macros such as MYLIB_EXPORT.
const exportMarker = "EXPORT"

// Insert adds u at its sorted position unless an equal element exists.
func (defs *UsedDefines) Insert(u UsedDefine) bool {
	i, found := slices.BinarySearchFunc(*defs, u, UsedDefine.Compare)
	if found {
		return false
	}
	*defs = slices.Insert(*defs, i, u)
	return true
}

// IsSorted reports whether defs is strictly increasing.
func (defs UsedDefines) IsSorted() bool {
	for i := 1; i < len(defs); i++ {
		if defs[i-1].Compare(defs[i]) >= 0 {
			return false
		}
	}
	return true
}

// Names returns the macro names in order.
func (defs UsedDefines) Names() []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// stableFilter keeps the elements for which keep returns true, in order.
func stableFilter(defs UsedDefines, keep func(UsedDefine) bool) UsedDefines {
	out := defs[:0]
	for _, d := range defs {
		if keep(d) {
			out = append(out, d)
		}
	}
	clear(defs[len(out):])
	return out
}

// filterHeaderGuards drops staged names whose current definition is an
// include guard. Names that no longer resolve are kept.
func filterHeaderGuards(maybe UsedDefines, lookup MacroLookup) UsedDefines {
	if lookup == nil {
		return maybe
	}
	return stableFilter(maybe, func(d UsedDefine) bool {
		info := lookup.MacroInfo(d.Name)
		return info == nil || !info.UsedForHeaderGuard
	})
}

// mergeUsedDefines merges two sorted sets into one sorted set. A name tested
// both while undefined and while defined in the same file is kept once.
func mergeUsedDefines(confirmed, maybe UsedDefines) UsedDefines {
	if len(maybe) == 0 {
		return confirmed
	}
	out := make(UsedDefines, 0, len(confirmed)+len(maybe))
	i, j := 0, 0
	for i < len(confirmed) && j < len(maybe) {
		switch c := maybe[j].Compare(confirmed[i]); {
		case c < 0:
			out = append(out, maybe[j])
			j++
		case c > 0:
			out = append(out, confirmed[i])
			i++
		default:
			out = append(out, confirmed[i])
			i++
			j++
		}
	}
	out = append(out, confirmed[i:]...)
	return append(out, maybe[j:]...)
}

func filterExports(defs UsedDefines) UsedDefines {
	return stableFilter(defs, func(d UsedDefine) bool {
		return !strings.Contains(d.Name, exportMarker)
	})
}

// ResolveUsedDefines runs the end-of-file passes: drop include guards from
// maybe, merge it into confirmed, then drop export macros.
func ResolveUsedDefines(confirmed, maybe UsedDefines, lookup MacroLookup) UsedDefines {
	maybe = filterHeaderGuards(maybe, lookup)
	return filterExports(mergeUsedDefines(confirmed, maybe))
}
