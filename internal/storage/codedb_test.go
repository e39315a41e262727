package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codegraph/internal/types"
)

func openCodeDB(t *testing.T) *CodeDB {
	t.Helper()
	db, err := OpenCodeDB(filepath.Join(t.TempDir(), "code.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestWriteFileThenDeleteFileRemovesNodesAndRecord(t *testing.T) {
	db := openCodeDB(t)

	fr := types.FileRecord{Path: "a.go", ModTime: time.Now(), ContentHash: 42, IndexedAt: time.Now()}
	nodes := []types.Node{{ID: "pkg::Foo", Kind: types.KindFunction, File: "a.go"}}
	require.NoError(t, db.WriteFile("a.go", fr, nodes, nil))

	got, err := db.NodeByID("pkg::Foo")
	require.NoError(t, err)
	require.NotNil(t, got)

	rec, err := db.FileRecordByPath("a.go")
	require.NoError(t, err)
	require.Equal(t, uint64(42), rec.ContentHash)

	require.NoError(t, db.DeleteFile("a.go"))

	got, err = db.NodeByID("pkg::Foo")
	require.NoError(t, err)
	require.Nil(t, got)

	rec, err = db.FileRecordByPath("a.go")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestWriteFileRewritesExistingNodesOnReindex(t *testing.T) {
	db := openCodeDB(t)

	fr := types.FileRecord{Path: "a.go", IndexedAt: time.Now()}
	require.NoError(t, db.WriteFile("a.go", fr, []types.Node{
		{ID: "pkg::Foo", Kind: types.KindFunction, File: "a.go"},
		{ID: "pkg::Bar", Kind: types.KindFunction, File: "a.go"},
	}, nil))

	// Reindexing a.go with only Foo remaining should drop Bar.
	require.NoError(t, db.WriteFile("a.go", fr, []types.Node{
		{ID: "pkg::Foo", Kind: types.KindFunction, File: "a.go"},
	}, nil))

	nodes, err := db.NodesByFile("a.go")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "pkg::Foo", nodes[0].ID)
}

func TestDeleteFileConvertsCrossFileIncomingEdgeToUnresolvedStub(t *testing.T) {
	db := openCodeDB(t)

	require.NoError(t, db.UpsertNode(types.Node{ID: "a.go::foo", Kind: types.KindFunction, File: "a.go"}))
	require.NoError(t, db.UpsertNode(types.Node{ID: "b.go::bar", Kind: types.KindFunction, File: "b.go"}))
	require.NoError(t, db.UpsertEdge(types.Edge{Source: "a.go::foo", Target: "b.go::bar", Kind: types.EdgeCalls}))

	require.NoError(t, db.DeleteFile("b.go"))

	got, err := db.NodeByID("b.go::bar")
	require.NoError(t, err)
	require.Nil(t, got, "b.go's own node must still be gone")

	edges, err := db.EdgesBySource("a.go::foo")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, "unresolved::bar", edges[0].Target)

	stub, err := db.NodeByID("unresolved::bar")
	require.NoError(t, err)
	require.NotNil(t, stub)
	require.Equal(t, types.KindUnresolved, stub.Kind)
}

func TestDeleteFileLeavesSameFileIncomingEdgesToCascadeAway(t *testing.T) {
	db := openCodeDB(t)

	require.NoError(t, db.UpsertNode(types.Node{ID: "a.go::foo", Kind: types.KindFunction, File: "a.go"}))
	require.NoError(t, db.UpsertNode(types.Node{ID: "a.go::bar", Kind: types.KindFunction, File: "a.go"}))
	require.NoError(t, db.UpsertEdge(types.Edge{Source: "a.go::foo", Target: "a.go::bar", Kind: types.EdgeCalls}))

	require.NoError(t, db.DeleteFile("a.go"))

	stub, err := db.NodeByID("unresolved::bar")
	require.NoError(t, err)
	require.Nil(t, stub, "a purely intra-file edge must not spawn a stub")
}

func TestEnsureStubIsIdempotent(t *testing.T) {
	db := openCodeDB(t)
	require.NoError(t, db.EnsureStub("pkg::Missing", "a.go"))
	require.NoError(t, db.EnsureStub("pkg::Missing", "a.go"))

	n, err := db.NodeByID("pkg::Missing")
	require.NoError(t, err)
	require.Equal(t, types.KindUnresolved, n.Kind)
}

func TestRewriteEdgeTargetRepointsEdgesAndDropsResolvedStub(t *testing.T) {
	db := openCodeDB(t)

	require.NoError(t, db.UpsertNode(types.Node{ID: "pkg::A", Kind: types.KindFunction, File: "a.go"}))
	require.NoError(t, db.EnsureStub("pkg::Unresolved::b", "a.go"))
	require.NoError(t, db.UpsertEdge(types.Edge{Source: "pkg::A", Target: "pkg::Unresolved::b", Kind: types.EdgeCalls}))

	require.NoError(t, db.UpsertNode(types.Node{ID: "pkg::B", Kind: types.KindFunction, File: "b.go"}))
	require.NoError(t, db.RewriteEdgeTarget("pkg::Unresolved::b", "pkg::B"))

	edges, err := db.EdgesBySource("pkg::A")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, "pkg::B", edges[0].Target)

	stub, err := db.NodeByID("pkg::Unresolved::b")
	require.NoError(t, err)
	require.Nil(t, stub)
}

func TestUnresolvedStubsWithIncomingListsOnlyReferencedStubs(t *testing.T) {
	db := openCodeDB(t)

	require.NoError(t, db.UpsertNode(types.Node{ID: "pkg::A", Kind: types.KindFunction, File: "a.go"}))
	require.NoError(t, db.EnsureStub("pkg::Unresolved::b", "a.go"))
	require.NoError(t, db.EnsureStub("pkg::Unresolved::orphan", "a.go"))
	require.NoError(t, db.UpsertEdge(types.Edge{Source: "pkg::A", Target: "pkg::Unresolved::b", Kind: types.EdgeCalls}))

	ids, err := db.UnresolvedStubsWithIncoming()
	require.NoError(t, err)
	require.Equal(t, []string{"pkg::Unresolved::b"}, ids)
}
