package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codegraph/internal/storage"
	"github.com/standardbeagle/codegraph/internal/types"
)

func newManager(t *testing.T) (*Manager, *storage.CodeDB) {
	t.Helper()
	db, err := storage.OpenCodeDB(filepath.Join(t.TempDir(), "code.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := NewManager(db)
	require.NoError(t, err)
	return m, db
}

func TestUpdateTaskWithoutActiveSessionFails(t *testing.T) {
	m, _ := newManager(t)
	err := m.UpdateTask(UpdateTaskOptions{})
	require.ErrorIs(t, err, ErrNoActiveSession)
}

func TestStartSessionInitializesSubtasksPending(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.StartSession("t", "do the thing", []string{"a", "b"}))

	sess := m.Get()
	require.Equal(t, "do the thing", sess.Task)
	require.Len(t, sess.Subtasks, 2)
	for _, s := range sess.Subtasks {
		require.Equal(t, types.SubtaskPending, s.Status)
	}
}

func TestUpdateTaskCannotDemoteDoneToPending(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.StartSession("t", "task", []string{"a"}))

	idx := 0
	done := types.SubtaskDone
	require.NoError(t, m.UpdateTask(UpdateTaskOptions{ItemIndex: &idx, Status: &done}))

	pending := types.SubtaskPending
	err := m.UpdateTask(UpdateTaskOptions{ItemIndex: &idx, Status: &pending})
	require.Error(t, err)

	sess := m.Get()
	require.Equal(t, types.SubtaskDone, sess.Subtasks[0].Status)
}

func TestUpdateTaskRejectsOutOfRangeIndex(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.StartSession("t", "task", []string{"a"}))

	idx := 5
	err := m.UpdateTask(UpdateTaskOptions{ItemIndex: &idx})
	require.Error(t, err)
}

func TestUpdateTaskAddItemsAppends(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.StartSession("t", "task", []string{"a"}))
	require.NoError(t, m.UpdateTask(UpdateTaskOptions{AddItems: []string{"b", "c"}}))

	sess := m.Get()
	require.Len(t, sess.Subtasks, 3)
}

func TestSetContextFullReplaceNotMerge(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.StartSession("t", "task", nil))

	require.NoError(t, m.SetContext(SetContextOptions{Files: []string{"a.go"}, Symbols: []string{"Foo"}}))
	require.NoError(t, m.SetContext(SetContextOptions{Files: []string{"b.go"}}))

	sess := m.Get()
	require.Equal(t, []string{"b.go"}, sess.Context.Files)
	// Symbols was nil on the second call, so it is left unchanged.
	require.Equal(t, []string{"Foo"}, sess.Context.Symbols)
}

func TestSmartContextAggregatesProgressAndRecentDecisions(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.StartSession("t", "task", []string{"a", "b", "c"}))

	idx0, idx1 := 0, 1
	done, inProgress := types.SubtaskDone, types.SubtaskInProgress
	require.NoError(t, m.UpdateTask(UpdateTaskOptions{ItemIndex: &idx0, Status: &done}))
	require.NoError(t, m.UpdateTask(UpdateTaskOptions{ItemIndex: &idx1, Status: &inProgress}))

	for i := 0; i < DefaultRecentDecisions+2; i++ {
		require.NoError(t, m.AddDecision("decision", "reason", nil))
	}

	sc := m.SmartContext()
	require.Equal(t, "1/3", sc.Progress)
	require.Equal(t, "b", sc.CurrentItem)
	require.Len(t, sc.RecentDecisions, DefaultRecentDecisions)
}

func TestSessionRoundTripsThroughPersistence(t *testing.T) {
	db, err := storage.OpenCodeDB(filepath.Join(t.TempDir(), "code.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m1, err := NewManager(db)
	require.NoError(t, err)
	require.NoError(t, m1.StartSession("title", "task", []string{"a"}))
	require.NoError(t, m1.AddDecision("did x", "because y", []string{"pkg::X"}))

	m2, err := NewManager(db)
	require.NoError(t, err)
	sess := m2.Get()
	require.Equal(t, "task", sess.Task)
	require.Len(t, sess.Decisions, 1)
	require.Equal(t, "did x", sess.Decisions[0].Text)
}
