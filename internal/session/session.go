// Package session implements codegraph's session state machine (spec.md
// §4.5): task/subtask tracking, a decision log, working-context tracking,
// and the smart_context restoration operation.
//
// The session document is persisted inside code.db's graph as the
// well-known node id RootID (kind=session_root, graph=session), following
// spec.md §4.5's own framing, with the full document round-tripped as a
// JSON blob in the node's Summary field so restart recovery is lossless
// (spec.md §8 "Session round-trip"). Decision-log entries are additionally
// materialized as "decided" edges to synthetic decision nodes, so the
// decision log is inspectable through the same node/edge primitives as the
// code graph; the working context (files, symbols, notes) is kept only in the
// JSON blob and is not materialized as edges — mirroring the
// append-log idiom of codenerd's internal/store/local_session.go
// (StoreSessionTurn/GetSessionHistory) generalized to a structured document.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/standardbeagle/codegraph/internal/storage"
	"github.com/standardbeagle/codegraph/internal/types"
)

// RootID is the fixed well-known node id for the active session document.
const RootID = "session::root"

// Manager owns the single active session for a project, mirroring it
// in-memory for fast mutation and persisting to code.db on every write.
type Manager struct {
	mu   sync.Mutex
	db   *storage.CodeDB
	sess types.Session
	next int // decision node sequence counter
}

// NewManager constructs a Manager, loading any previously persisted session
// from db. If none exists, a zero-value session is the starting state.
func NewManager(db *storage.CodeDB) (*Manager, error) {
	m := &Manager{db: db}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	n, err := m.db.NodeByID(RootID)
	if err != nil {
		return fmt.Errorf("load session root: %w", err)
	}
	if n == nil {
		m.sess = types.Session{}
		return nil
	}
	var sess types.Session
	if n.Summary != "" {
		if err := json.Unmarshal([]byte(n.Summary), &sess); err != nil {
			return fmt.Errorf("decode persisted session: %w", err)
		}
	}
	m.sess = sess
	m.next = len(sess.Decisions)
	return nil
}

// persist writes the in-memory session atomically to its root node, and
// materializes decision nodes and "decided" edges for graph inspection.
func (m *Manager) persist() error {
	blob, err := json.Marshal(m.sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	root := types.Node{
		ID:      RootID,
		Kind:    types.KindSessionRoot,
		File:    "",
		Summary: string(blob),
		Graph:   types.GraphSession,
	}
	if err := m.db.UpsertNode(root); err != nil {
		return fmt.Errorf("persist session root: %w", err)
	}

	for i, d := range m.sess.Decisions {
		decisionID := fmt.Sprintf("session::decision::%d", i)
		dBlob, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode decision %d: %w", i, err)
		}
		node := types.Node{ID: decisionID, Kind: types.KindDecision, Summary: string(dBlob), Graph: types.GraphSession}
		if err := m.db.UpsertNode(node); err != nil {
			return fmt.Errorf("persist decision %d: %w", i, err)
		}
		if err := m.db.UpsertEdge(types.Edge{Source: RootID, Target: decisionID, Kind: types.EdgeDecided, Graph: types.GraphSession}); err != nil {
			return fmt.Errorf("persist decision edge %d: %w", i, err)
		}
	}

	return nil
}

// StartSession destructively replaces the session root (spec.md §4.5).
func (m *Manager) StartSession(title, task string, subtasks []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := make([]types.Subtask, len(subtasks))
	for i, t := range subtasks {
		sub[i] = types.Subtask{Text: t, Status: types.SubtaskPending}
	}
	m.sess = types.Session{Title: title, Task: task, Subtasks: sub}
	m.next = 0
	return m.persist()
}

// ErrNoActiveSession is returned by operations that require a prior
// StartSession call. It is a *types.UserError (spec.md §7 "user errors"):
// calling update_task/add_decision/set_context before start_session is a
// caller mistake, not an internal failure.
var ErrNoActiveSession = types.NewUserError("no active session")

// UpdateTaskOptions carries the partial-mutation fields of update_task
// (spec.md §4.5). A nil pointer/slice means "leave unchanged".
type UpdateTaskOptions struct {
	ItemIndex *int
	Status    *types.SubtaskStatus
	AddItems  []string
	Blocker   *string
}

// UpdateTask applies a partial mutation to the session's subtasks. Status
// transitions are unrestricted except a completed subtask must not be
// demoted to pending (spec.md §4.5, §3 invariants).
func (m *Manager) UpdateTask(opt UpdateTaskOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess.Task == "" && m.sess.Title == "" {
		return ErrNoActiveSession
	}

	for _, text := range opt.AddItems {
		m.sess.Subtasks = append(m.sess.Subtasks, types.Subtask{Text: text, Status: types.SubtaskPending})
	}

	if opt.ItemIndex != nil {
		idx := *opt.ItemIndex
		if idx < 0 || idx >= len(m.sess.Subtasks) {
			return types.NewUserError("subtask index %d out of range (have %d)", idx, len(m.sess.Subtasks))
		}
		if opt.Status != nil {
			if m.sess.Subtasks[idx].Status == types.SubtaskDone && *opt.Status == types.SubtaskPending {
				return types.NewUserError("cannot demote completed subtask %d back to pending", idx)
			}
			m.sess.Subtasks[idx].Status = *opt.Status
		}
		if opt.Blocker != nil {
			m.sess.Subtasks[idx].Blocker = *opt.Blocker
		}
	}

	return m.persist()
}

// AddDecision appends a decision entry with a UTC timestamp (spec.md §4.5).
func (m *Manager) AddDecision(text, reasoning string, symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess.Task == "" && m.sess.Title == "" {
		return ErrNoActiveSession
	}

	m.sess.Decisions = append(m.sess.Decisions, types.Decision{
		Timestamp: time.Now().UTC(),
		Text:      text,
		Reasoning: reasoning,
		Symbols:   symbols,
	})
	return m.persist()
}

// SetContextOptions carries the replace-only fields of set_context.
// A nil slice/pointer means "leave that sub-field unchanged"; a non-nil
// (possibly empty) slice fully replaces it — callers send the complete
// desired value, never a delta (spec.md §4.5).
type SetContextOptions struct {
	Files   []string
	Symbols []string
	Notes   *string
}

// SetContext replaces the named sub-fields of the working context.
func (m *Manager) SetContext(opt SetContextOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess.Task == "" && m.sess.Title == "" {
		return ErrNoActiveSession
	}

	if opt.Files != nil {
		m.sess.Context.Files = opt.Files
	}
	if opt.Symbols != nil {
		m.sess.Context.Symbols = opt.Symbols
	}
	if opt.Notes != nil {
		m.sess.Context.Notes = *opt.Notes
	}
	return m.persist()
}

// Get returns a copy of the current session document (get_session tool).
func (m *Manager) Get() types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// SmartContext is the compact restoration document (spec.md §4.5), targeted
// at roughly 400 output tokens.
type SmartContext struct {
	Task               string                `json:"task"`
	Progress           string                `json:"progress"` // "k/n"
	CurrentItem        string                `json:"current_item,omitempty"`
	RecentDecisions    []types.Decision      `json:"recent_decisions"`
	Context            types.WorkingContext  `json:"context"`
}

// DefaultRecentDecisions is the default count of decisions smart_context
// surfaces (spec.md §4.5).
const DefaultRecentDecisions = 5

// SmartContext aggregates task, completion progress, the first in-progress
// subtask, the most recent N decisions, and the full working context.
func (m *Manager) SmartContext() SmartContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	done := 0
	var current string
	for _, s := range m.sess.Subtasks {
		if s.Status == types.SubtaskDone {
			done++
		}
		if current == "" && s.Status == types.SubtaskInProgress {
			current = s.Text
		}
	}

	n := DefaultRecentDecisions
	decisions := m.sess.Decisions
	if len(decisions) > n {
		decisions = decisions[len(decisions)-n:]
	}
	recent := make([]types.Decision, len(decisions))
	copy(recent, decisions)

	return SmartContext{
		Task:            m.sess.Task,
		Progress:        fmt.Sprintf("%d/%d", done, len(m.sess.Subtasks)),
		CurrentItem:     current,
		RecentDecisions: recent,
		Context:         m.sess.Context,
	}
}
