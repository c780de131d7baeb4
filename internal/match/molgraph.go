package match

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/sells-group/materials-cli/internal/structure"
)

// wlRounds is the number of Weisfeiler-Lehman refinement rounds.
const wlRounds = 3

// Graph is the bonding graph of a molecule.
type Graph struct {
	Species []string
	adj     [][]bool
	nbrs    [][]int
}

// BuildGraph connects atoms closer than tol times the sum of their
// covalent radii.
func BuildGraph(m *structure.Molecule, tol float64) *Graph {
	n := m.NumAtoms()
	g := &Graph{
		Species: m.Species,
		adj:     make([][]bool, n),
		nbrs:    make([][]int, n),
	}
	radii := make([]float64, n)
	for i, sp := range m.Species {
		el, _ := structure.LookupElement(sp)
		radii[i] = el.CovalentRadius
		g.adj[i] = make([]bool, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if m.Distance(i, j) <= (radii[i]+radii[j])*tol {
				g.adj[i][j], g.adj[j][i] = true, true
				g.nbrs[i] = append(g.nbrs[i], j)
				g.nbrs[j] = append(g.nbrs[j], i)
			}
		}
	}
	return g
}

// NumBonds is the number of edges.
func (g *Graph) NumBonds() int {
	n := 0
	for _, nb := range g.nbrs {
		n += len(nb)
	}
	return n / 2
}

// Hash is a Weisfeiler-Lehman hash: isomorphic graphs always share it.
func (g *Graph) Hash() string {
	labels := make([]uint64, len(g.Species))
	for i, sp := range g.Species {
		labels[i] = xxhash.Sum64String(sp)
	}
	buf := make([]byte, 8)
	for round := 0; round < wlRounds; round++ {
		next := make([]uint64, len(labels))
		for i := range labels {
			nl := make([]uint64, len(g.nbrs[i]))
			for k, j := range g.nbrs[i] {
				nl[k] = labels[j]
			}
			sort.Slice(nl, func(a, b int) bool { return nl[a] < nl[b] })
			d := xxhash.New()
			binary.LittleEndian.PutUint64(buf, labels[i])
			_, _ = d.Write(buf)
			for _, l := range nl {
				binary.LittleEndian.PutUint64(buf, l)
				_, _ = d.Write(buf)
			}
			next[i] = d.Sum64()
		}
		labels = next
	}
	sort.Slice(labels, func(a, b int) bool { return labels[a] < labels[b] })
	d := xxhash.New()
	for _, l := range labels {
		binary.LittleEndian.PutUint64(buf, l)
		_, _ = d.Write(buf)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// isomorphisms calls fn with each mapping perm (atom i of a corresponds to
// atom perm[i] of b) that preserves species and bonds, stopping after limit
// mappings or when fn returns false.
func isomorphisms(a, b *Graph, limit int, fn func(perm []int) bool) {
	n := len(a.Species)
	if n != len(b.Species) || a.NumBonds() != b.NumBonds() {
		return
	}
	order := bfsOrder(a)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = -1
	}
	used := make([]bool, n)
	count := 0

	var place func(depth int) bool
	place = func(depth int) bool {
		if depth == n {
			count++
			out := append([]int(nil), perm...)
			return fn(out) && count < limit
		}
		i := order[depth]
		for j := 0; j < n; j++ {
			if used[j] || a.Species[i] != b.Species[j] || len(a.nbrs[i]) != len(b.nbrs[j]) {
				continue
			}
			consistent := true
			for k := 0; k < n; k++ {
				if perm[k] >= 0 && a.adj[i][k] != b.adj[j][perm[k]] {
					consistent = false
					break
				}
			}
			if !consistent {
				continue
			}
			perm[i], used[j] = j, true
			if !place(depth + 1) {
				return false
			}
			perm[i], used[j] = -1, false
		}
		return true
	}
	place(0)
}

// bfsOrder visits atoms so that each one after the first in its component
// has an already placed neighbor, which prunes the search early.
func bfsOrder(g *Graph) []int {
	n := len(g.Species)
	seen := make([]bool, n)
	order := make([]int, 0, n)
	for start := 0; start < n; start++ {
		if seen[start] {
			continue
		}
		seen[start] = true
		queue := []int{start}
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			order = append(order, i)
			for _, j := range g.nbrs[i] {
				if !seen[j] {
					seen[j] = true
					queue = append(queue, j)
				}
			}
		}
	}
	return order
}
