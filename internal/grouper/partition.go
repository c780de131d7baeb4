package grouper

import (
	"slices"
)

// SandboxPartition splits the union of the given sandbox sets into disjoint
// cells. Two sandboxes share a cell exactly when every input set holds
// either both or neither of them, so each input set is the union of the
// cells it intersects.
//
// It works through a sorted worklist: take the first unassigned sandbox,
// intersect every set containing it, subtract every set that does not,
// emit the result and drop it from the worklist.
func SandboxPartition(sets [][]string) [][]string {
	members := make([]map[string]bool, 0, len(sets))
	universe := make(map[string]bool)
	for _, s := range sets {
		m := make(map[string]bool, len(s))
		for _, tag := range s {
			m[tag] = true
			universe[tag] = true
		}
		members = append(members, m)
	}

	var cells [][]string
	for len(universe) > 0 {
		pending := sortedKeys(universe)
		first := pending[0]

		cell := make(map[string]bool, len(pending))
		for _, tag := range pending {
			cell[tag] = true
		}
		for _, m := range members {
			if m[first] {
				for tag := range cell {
					if !m[tag] {
						delete(cell, tag)
					}
				}
			} else {
				for tag := range m {
					delete(cell, tag)
				}
			}
		}

		out := sortedKeys(cell)
		cells = append(cells, out)
		for _, tag := range out {
			delete(universe, tag)
			for _, m := range members {
				delete(m, tag)
			}
		}
	}
	return cells
}

// Intersects reports whether a and b share an element.
func Intersects(a, b []string) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
