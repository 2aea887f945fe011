// Package graph runs structural diagnostics over the comparison graph:
// connectivity of the compared-item graph and a census of circular triads
// in the majority-winner tournament.
package graph

import (
	"sort"

	"github.com/scAIentist/sciblind-sub001/internal/domain/model"
)

// Default diagnostic limits.
const (
	// defaultTriadItemLimit bounds the cubic triad census.
	defaultTriadItemLimit = 100
)

// TriadLimitExceeded is the sentinel circular-triad count reported when
// the item set is larger than the census limit.
const TriadLimitExceeded = -1

// ConnectivityReport describes how the item set splits into components.
// Items that never appear in a comparison stay singleton components and
// are listed in IsolatedItems.
type ConnectivityReport struct {
	Connected      bool     `json:"connected"`
	ComponentCount int      `json:"component_count"`
	ComponentSizes []int    `json:"component_sizes"`
	IsolatedItems  []string `json:"isolated_items"`
}

// TriadReport summarizes rock-paper-scissors style inconsistencies.
// TransitivityIndex is nil when no complete triads exist.
type TriadReport struct {
	CircularTriadCount int      `json:"circular_triad_count"`
	TotalTriads        int      `json:"total_triads"`
	TransitivityIndex  *float64 `json:"transitivity_index,omitempty"`
}

// Connectivity reports the component structure of the comparison graph.
// Every item is a node and each comparison joins its two endpoints.
// Comparisons referencing unknown items contribute no edge. An empty item
// set is trivially connected with zero components.
func Connectivity(items []model.Item, comparisons []model.Comparison) ConnectivityReport {
	report := ConnectivityReport{
		ComponentSizes: []int{},
		IsolatedItems:  []string{},
	}
	if len(items) == 0 {
		report.Connected = true
		return report
	}

	index := make(map[string]int, len(items))
	for i, it := range items {
		index[it.ID] = i
	}

	uf := newUnionFind(len(items))
	seen := make([]bool, len(items))
	for _, c := range comparisons {
		a, okA := index[c.ItemAID]
		b, okB := index[c.ItemBID]
		if okA {
			seen[a] = true
		}
		if okB {
			seen[b] = true
		}
		if okA && okB && a != b {
			uf.union(a, b)
		}
	}

	sizes := make(map[int]int)
	for i := range items {
		sizes[uf.find(i)]++
	}
	for _, size := range sizes {
		report.ComponentSizes = append(report.ComponentSizes, size)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(report.ComponentSizes)))

	for i, it := range items {
		if !seen[i] {
			report.IsolatedItems = append(report.IsolatedItems, it.ID)
		}
	}
	sort.Strings(report.IsolatedItems)

	report.ComponentCount = len(sizes)
	report.Connected = report.ComponentCount <= 1
	return report
}

// TriadOption applies a configuration option to the triad census.
type TriadOption func(*triadSettings)

// WithTriadItemLimit overrides the item-count limit of the census.
func WithTriadItemLimit(limit int) TriadOption {
	return func(s *triadSettings) {
		if limit > 0 {
			s.itemLimit = limit
		}
	}
}

type triadSettings struct {
	itemLimit int
}

// CircularTriads counts intransitive triples in the majority-winner
// tournament. Each unordered pair collapses to one directed edge held by
// the side with strictly more wins; a tied pair holds no edge, and triples
// missing any edge do not count toward TotalTriads. Above the item limit
// the census short-circuits with CircularTriadCount set to
// TriadLimitExceeded.
func CircularTriads(comparisons []model.Comparison, opts ...TriadOption) TriadReport {
	s := &triadSettings{itemLimit: defaultTriadItemLimit}
	for _, opt := range opts {
		opt(s)
	}

	wins := make(map[string]map[string]int)
	members := make(map[string]struct{})
	for _, c := range comparisons {
		w, l := c.WinnerID, c.LoserID()
		if w == l || w == "" || l == "" {
			continue
		}
		members[w] = struct{}{}
		members[l] = struct{}{}
		if wins[w] == nil {
			wins[w] = make(map[string]int)
		}
		wins[w][l]++
	}

	if len(members) > s.itemLimit {
		return TriadReport{CircularTriadCount: TriadLimitExceeded}
	}

	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	won := func(a, b string) int {
		if m, ok := wins[a]; ok {
			return m[b]
		}
		return 0
	}
	// beats: a holds the strict majority over b. Equal wins (including
	// never compared) leave the pair without an edge.
	beats := func(a, b string) bool { return won(a, b) > won(b, a) }
	hasEdge := func(a, b string) bool { return won(a, b) != won(b, a) }

	report := TriadReport{}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if !hasEdge(ids[i], ids[j]) {
				continue
			}
			for k := j + 1; k < len(ids); k++ {
				if !hasEdge(ids[i], ids[k]) || !hasEdge(ids[j], ids[k]) {
					continue
				}
				report.TotalTriads++
				a, b, c := ids[i], ids[j], ids[k]
				ab, ac, bc := beats(a, b), beats(a, c), beats(b, c)
				// A triangle is transitive exactly when one vertex
				// beats both others.
				transitive := (ab && ac) || (!ab && bc) || (!ac && !bc)
				if !transitive {
					report.CircularTriadCount++
				}
			}
		}
	}

	if report.TotalTriads > 0 {
		idx := 1.0 - float64(report.CircularTriadCount)/float64(report.TotalTriads)
		report.TransitivityIndex = &idx
	}
	return report
}

// unionFind is a weighted quick-union with path halving over item indexes.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
