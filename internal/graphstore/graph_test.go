package graphstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codegraph/internal/types"
)

func sampleGraph() *Graph {
	nodes := []types.Node{
		{ID: "pkg::Foo", Kind: types.KindFunction, File: "a.go", StartLine: 10},
		{ID: "pkg::FooBar", Kind: types.KindFunction, File: "a.go", StartLine: 20},
		{ID: "pkg::bar", Kind: types.KindFunction, File: "b.go", StartLine: 5},
		{ID: "pkg::Baz", Kind: types.KindClass, File: "b.go", StartLine: 1},
	}
	edges := []types.Edge{
		{Source: "pkg::Foo", Target: "pkg::bar", Kind: types.EdgeCalls},
		{Source: "pkg::bar", Target: "pkg::Baz", Kind: types.EdgeCalls},
	}
	return Build(nodes, edges)
}

func TestSearchSymbolsRanksExactPrefixSubstring(t *testing.T) {
	g := sampleGraph()

	matches := g.SearchSymbols("foo", nil, "", 10)
	require.Len(t, matches, 2)
	require.Equal(t, "pkg::Foo", matches[0].ID) // exact (case-insensitive) beats prefix
	require.Equal(t, "pkg::FooBar", matches[1].ID)
}

func TestSearchSymbolsFiltersByKindAndFile(t *testing.T) {
	g := sampleGraph()

	kind := types.KindClass
	matches := g.SearchSymbols("ba", &kind, "", 10)
	require.Len(t, matches, 1)
	require.Equal(t, "pkg::Baz", matches[0].ID)

	matches = g.SearchSymbols("ba", nil, "b.go", 10)
	require.Len(t, matches, 2) // bar and Baz, both in b.go
}

func TestSearchSymbolsRespectsLimit(t *testing.T) {
	g := sampleGraph()
	matches := g.SearchSymbols("", nil, "", 2)
	require.Len(t, matches, 2)
}

func TestGetFileSymbolsSortsByStartLine(t *testing.T) {
	g := sampleGraph()
	syms := g.GetFileSymbols("a.go", false)
	require.Len(t, syms, 2)
	require.Equal(t, "pkg::Foo", syms[0].ID)
	require.Equal(t, "pkg::FooBar", syms[1].ID)
}

func TestGetFileSymbolsCompactOmitsSignatureAndSummary(t *testing.T) {
	g := New()
	g.Swap(Build([]types.Node{
		{ID: "pkg::X", Kind: types.KindFunction, File: "a.go", Signature: "func X()", Summary: "does X"},
	}, nil))

	full := g.GetFileSymbols("a.go", false)
	require.Equal(t, "func X()", full[0].Signature)
	require.Equal(t, "does X", full[0].Summary)

	compact := g.GetFileSymbols("a.go", true)
	require.Empty(t, compact[0].Signature)
	require.Empty(t, compact[0].Summary)
}

func TestGetNeighborsExcludesAnchorAndRespectsDirection(t *testing.T) {
	g := sampleGraph()

	out := g.GetNeighbors("pkg::Foo", DirOutgoing, 1, nil, 10)
	require.Len(t, out.Neighbors, 1)
	require.Equal(t, "pkg::bar", out.Neighbors[0].ID)
	require.Equal(t, 1, out.Neighbors[0].Distance)

	in := g.GetNeighbors("pkg::bar", DirIncoming, 1, nil, 10)
	require.Len(t, in.Neighbors, 1)
	require.Equal(t, "pkg::Foo", in.Neighbors[0].ID)
}

func TestGetNeighborsDepthExpandsBFSFrontier(t *testing.T) {
	g := sampleGraph()

	depth1 := g.GetNeighbors("pkg::Foo", DirOutgoing, 1, nil, 10)
	require.Len(t, depth1.Neighbors, 1)

	depth2 := g.GetNeighbors("pkg::Foo", DirOutgoing, 2, nil, 10)
	require.Len(t, depth2.Neighbors, 2)
	require.Equal(t, "pkg::Baz", depth2.Neighbors[1].ID)
	require.Equal(t, 2, depth2.Neighbors[1].Distance)
}

func TestGetNeighborsUnknownAnchorReturnsEmpty(t *testing.T) {
	g := sampleGraph()
	out := g.GetNeighbors("pkg::DoesNotExist", DirBoth, 1, nil, 10)
	require.Empty(t, out.Neighbors)
	require.False(t, out.Truncated)
}

func TestGetNeighborsCapSetsTruncated(t *testing.T) {
	g := sampleGraph()
	out := g.GetNeighbors("pkg::Foo", DirOutgoing, 2, nil, 1)
	require.Len(t, out.Neighbors, 1)
	require.True(t, out.Truncated)
}

func TestGetNeighborsFiltersByEdgeKind(t *testing.T) {
	g := sampleGraph()
	out := g.GetNeighbors("pkg::Foo", DirOutgoing, 2, []types.EdgeKind{types.EdgeImports}, 10)
	require.Empty(t, out.Neighbors)
}

func TestBuildMaterializesUnresolvedStubsForDanglingEdges(t *testing.T) {
	g := Build(
		[]types.Node{{ID: "pkg::A", Kind: types.KindFunction}},
		[]types.Edge{{Source: "pkg::A", Target: "pkg::Missing", Kind: types.EdgeCalls}},
	)
	require.Equal(t, 2, g.NodeCount())
	out := g.GetNeighbors("pkg::A", DirOutgoing, 1, nil, 10)
	require.Len(t, out.Neighbors, 1)
	require.Equal(t, "pkg::Missing", out.Neighbors[0].ID)
}
