// Package graphstore implements codegraph's in-memory directed labelled
// graph (spec.md §4.2), mirroring code.db and serving low-latency navigation
// queries: search_symbols, get_file_symbols, get_neighbors.
//
// Grounded on codenerd's internal/store/local_graph.go (KnowledgeLink,
// StoreLink, direction-filtered queryLinksLocked), generalized from a flat
// SQL-backed edge table into the indexed adjacency-list shape spec.md §4.2
// requires, plus the dense integer handle per id that spec.md §9
// ("Identifiers as strings vs indices") calls for to keep BFS allocation
// cheap.
package graphstore

import (
	"sort"
	"strings"
	"sync"

	"github.com/standardbeagle/codegraph/internal/types"
)

type handle int

type adjacency struct {
	edgeKind types.EdgeKind
	target   handle
}

// Graph is codegraph's in-memory mirror of code.db. The database is the
// authority (spec.md §9): Graph is always rebuilt by replaying the database
// on start and swapped as a whole under a single mutation boundary so
// queries never observe a half-built graph (spec.md §5).
type Graph struct {
	mu sync.RWMutex

	nodes    []types.Node          // dense, index == handle
	idToH    map[string]handle
	out      map[handle][]adjacency
	in       map[handle][]adjacency

	nameIdx map[string]map[handle]bool // trailing identifier -> node handles
	fileIdx map[string]map[handle]bool
	kindIdx map[types.SymbolKind]map[handle]bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		idToH:   make(map[string]handle),
		out:     make(map[handle][]adjacency),
		in:      make(map[handle][]adjacency),
		nameIdx: make(map[string]map[handle]bool),
		fileIdx: make(map[string]map[handle]bool),
		kindIdx: make(map[types.SymbolKind]map[handle]bool),
	}
}

// Build replaces the graph's contents wholesale from a full node/edge set,
// matching the "single mutation boundary" rule of spec.md §9.
func Build(nodes []types.Node, edges []types.Edge) *Graph {
	g := New()
	for _, n := range nodes {
		g.addNodeLocked(n)
	}
	for _, e := range edges {
		g.addEdgeLocked(e)
	}
	return g
}

// Swap atomically replaces this graph's internals with other's, so a caller
// holding a *Graph reference observes the rebuild as one step.
func (g *Graph) Swap(other *Graph) {
	g.mu.Lock()
	other.mu.RLock()
	g.nodes = other.nodes
	g.idToH = other.idToH
	g.out = other.out
	g.in = other.in
	g.nameIdx = other.nameIdx
	g.fileIdx = other.fileIdx
	g.kindIdx = other.kindIdx
	other.mu.RUnlock()
	g.mu.Unlock()
}

func trailingIdent(id string) string {
	idx := strings.LastIndex(id, "::")
	if idx == -1 {
		return id
	}
	return id[idx+2:]
}

func (g *Graph) addNodeLocked(n types.Node) handle {
	if h, ok := g.idToH[n.ID]; ok {
		g.nodes[h] = n
		return h
	}
	h := handle(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.idToH[n.ID] = h

	name := strings.ToLower(trailingIdent(n.ID))
	if g.nameIdx[name] == nil {
		g.nameIdx[name] = make(map[handle]bool)
	}
	g.nameIdx[name][h] = true

	if n.File != "" {
		if g.fileIdx[n.File] == nil {
			g.fileIdx[n.File] = make(map[handle]bool)
		}
		g.fileIdx[n.File][h] = true
	}

	if g.kindIdx[n.Kind] == nil {
		g.kindIdx[n.Kind] = make(map[handle]bool)
	}
	g.kindIdx[n.Kind][h] = true

	return h
}

func (g *Graph) addEdgeLocked(e types.Edge) {
	sh, ok := g.idToH[e.Source]
	if !ok {
		sh = g.addNodeLocked(types.Node{ID: e.Source, Kind: types.KindUnresolved, Graph: e.Graph})
	}
	th, ok := g.idToH[e.Target]
	if !ok {
		th = g.addNodeLocked(types.Node{ID: e.Target, Kind: types.KindUnresolved, Graph: e.Graph})
	}
	g.out[sh] = append(g.out[sh], adjacency{edgeKind: e.Kind, target: th})
	g.in[th] = append(g.in[th], adjacency{edgeKind: e.Kind, target: sh})
}

// NodeCount returns the number of nodes currently in the graph.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// SymbolMatch is one search_symbols result (spec.md §4.2).
type SymbolMatch struct {
	ID        string
	Kind      types.SymbolKind
	File      string
	StartLine int
	EndLine   int
	Signature string
}

type matchTier int

const (
	tierExact matchTier = iota
	tierPrefix
	tierSubstring
	tierNone
)

// SearchSymbols performs a case-insensitive substring match on the trailing
// identifier of each node id, optionally filtered by kind/file, ranked
// exact > prefix > substring, then id ascending (spec.md §4.2, Open
// Question resolved in DESIGN.md).
func (g *Graph) SearchSymbols(query string, kind *types.SymbolKind, file string, limit int) []SymbolMatch {
	g.mu.RLock()
	defer g.mu.RUnlock()

	q := strings.ToLower(query)
	type scored struct {
		h    handle
		tier matchTier
	}
	var candidates []scored

	for h, n := range g.nodes {
		if n.IsUnresolved() {
			continue
		}
		if kind != nil && n.Kind != *kind {
			continue
		}
		if file != "" && n.File != file {
			continue
		}
		name := strings.ToLower(trailingIdent(n.ID))
		tier := tierNone
		switch {
		case q == "" || name == q:
			tier = tierExact
		case strings.HasPrefix(name, q):
			tier = tierPrefix
		case strings.Contains(name, q):
			tier = tierSubstring
		default:
			continue
		}
		candidates = append(candidates, scored{h: handle(h), tier: tier})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].tier != candidates[j].tier {
			return candidates[i].tier < candidates[j].tier
		}
		return g.nodes[candidates[i].h].ID < g.nodes[candidates[j].h].ID
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]SymbolMatch, 0, len(candidates))
	for _, c := range candidates {
		n := g.nodes[c.h]
		out = append(out, SymbolMatch{ID: n.ID, Kind: n.Kind, File: n.File, StartLine: n.StartLine, EndLine: n.EndLine, Signature: n.Signature})
	}
	return out
}

// FileSymbol is one get_file_symbols result entry.
type FileSymbol struct {
	ID        string
	Kind      types.SymbolKind
	StartLine int
	EndLine   int
	Signature string // omitted (empty) when compact is requested
	Summary   string // omitted (empty) when compact is requested
}

// GetFileSymbols lists all nodes whose file matches, sorted by start line.
// The compact form omits signatures and summaries (spec.md §4.2).
func (g *Graph) GetFileSymbols(file string, compact bool) []FileSymbol {
	g.mu.RLock()
	defer g.mu.RUnlock()

	handles := g.fileIdx[file]
	out := make([]FileSymbol, 0, len(handles))
	for h := range handles {
		n := g.nodes[h]
		fs := FileSymbol{ID: n.ID, Kind: n.Kind, StartLine: n.StartLine, EndLine: n.EndLine}
		if !compact {
			fs.Signature = n.Signature
			fs.Summary = n.Summary
		}
		out = append(out, fs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartLine != out[j].StartLine {
			return out[i].StartLine < out[j].StartLine
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Direction controls which edges get_neighbors traverses.
type Direction string

const (
	DirOutgoing Direction = "outgoing"
	DirIncoming Direction = "incoming"
	DirBoth     Direction = "both"
)

// Neighbor is one get_neighbors result entry.
type Neighbor struct {
	ID       string
	EdgeKind types.EdgeKind
	Distance int
}

// NeighborsResult carries the BFS frontier plus a truncation flag.
type NeighborsResult struct {
	Neighbors []Neighbor
	Truncated bool
}

// GetNeighbors performs a bounded, cycle-safe BFS from id out to depth,
// filtering by edge kind when kinds is non-empty, capped at maxResults
// (spec.md §4.2; depth is exclusive of the anchor per DESIGN.md's Open
// Question resolution).
func (g *Graph) GetNeighbors(id string, dir Direction, depth int, kinds []types.EdgeKind, maxResults int) NeighborsResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.idToH[id]
	if !ok {
		return NeighborsResult{}
	}
	if depth < 1 {
		depth = 1
	}
	if depth > 5 {
		depth = 5
	}

	allowed := make(map[types.EdgeKind]bool)
	for _, k := range kinds {
		allowed[k] = true
	}

	visited := map[handle]bool{start: true}
	type frontierItem struct {
		h        handle
		edgeKind types.EdgeKind
		dist     int
	}
	queue := []frontierItem{{h: start, dist: 0}}

	var result []Neighbor
	truncated := false

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.dist > 0 {
			if maxResults > 0 && len(result) >= maxResults {
				truncated = true
				break
			}
			result = append(result, Neighbor{ID: g.nodes[cur.h].ID, EdgeKind: cur.edgeKind, Distance: cur.dist})
		}

		if cur.dist >= depth {
			continue
		}

		var adjacencies []adjacency
		switch dir {
		case DirOutgoing:
			adjacencies = g.out[cur.h]
		case DirIncoming:
			adjacencies = g.in[cur.h]
		default:
			adjacencies = append(append([]adjacency(nil), g.out[cur.h]...), g.in[cur.h]...)
		}

		for _, adj := range adjacencies {
			if len(allowed) > 0 && !allowed[adj.edgeKind] {
				continue
			}
			if visited[adj.target] {
				continue
			}
			visited[adj.target] = true
			queue = append(queue, frontierItem{h: adj.target, edgeKind: adj.edgeKind, dist: cur.dist + 1})
		}
	}

	// Anything still queued beyond maxResults counts as truncation too.
	if len(queue) > 0 {
		truncated = true
	}

	return NeighborsResult{Neighbors: result, Truncated: truncated}
}
