package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/standardbeagle/codegraph/internal/export"
	"github.com/standardbeagle/codegraph/internal/graphstore"
	"github.com/standardbeagle/codegraph/internal/indexer"
	"github.com/standardbeagle/codegraph/internal/session"
	"github.com/standardbeagle/codegraph/internal/types"
)

// decodeArgs unmarshals a tools/call arguments object into T, returning a
// zero-value plus a descriptive error on malformed input rather than
// panicking — every handler below is reached from untrusted client input.
func decodeArgs[T any](args json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(args, &v); err != nil {
		return v, types.NewUserError("invalid arguments: %v", err)
	}
	return v, nil
}

func scopeOf(globs, tags []string) types.Scope {
	return types.Scope{Globs: globs, Tags: tags}
}

// --- C2 in-memory graph -----------------------------------------------

type searchSymbolsArgs struct {
	Query string `json:"query"`
	Kind  string `json:"kind"`
	File  string `json:"file"`
	Limit int    `json:"limit"`
}

func handleSearchSymbols(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[searchSymbolsArgs](raw)
	if err != nil {
		return nil, err
	}
	var kindPtr *types.SymbolKind
	if a.Kind != "" {
		k := types.SymbolKind(a.Kind)
		kindPtr = &k
	}
	limit := a.Limit
	if limit <= 0 {
		limit = 20
	}
	return s.graph.SearchSymbols(a.Query, kindPtr, a.File, limit), nil
}

type getFileSymbolsArgs struct {
	File    string `json:"file"`
	Compact bool   `json:"compact"`
}

func handleGetFileSymbols(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[getFileSymbolsArgs](raw)
	if err != nil {
		return nil, err
	}
	return s.graph.GetFileSymbols(a.File, a.Compact), nil
}

type getNeighborsArgs struct {
	ID        string   `json:"id"`
	Direction string   `json:"direction"`
	Depth     int      `json:"depth"`
	Kinds     []string `json:"kinds"`
}

func handleGetNeighbors(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[getNeighborsArgs](raw)
	if err != nil {
		return nil, err
	}
	dir := graphstore.DirBoth
	switch a.Direction {
	case string(graphstore.DirOutgoing):
		dir = graphstore.DirOutgoing
	case string(graphstore.DirIncoming):
		dir = graphstore.DirIncoming
	}
	depth := a.Depth
	if depth <= 0 {
		depth = 1
	}
	kinds := make([]types.EdgeKind, len(a.Kinds))
	for i, k := range a.Kinds {
		kinds[i] = types.EdgeKind(k)
	}
	neighborCap := s.cfg().Graph.NeighborCap
	return s.graph.GetNeighbors(a.ID, dir, depth, kinds, neighborCap), nil
}

// --- C4 indexer ---------------------------------------------------------

type indexProjectArgs struct {
	Full bool `json:"full"`
}

func handleIndexProject(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[indexProjectArgs](raw)
	if err != nil {
		return nil, err
	}
	stats, err := s.indexer.Run(context.Background(), a.Full)
	if err != nil {
		return nil, fmt.Errorf("index project: %w", err)
	}
	if err := indexer.RebuildGraph(s.codeDB, s.graph); err != nil {
		return nil, fmt.Errorf("rebuild graph: %w", err)
	}
	return stats, nil
}

// --- C5 session state -----------------------------------------------

type startSessionArgs struct {
	Title    string   `json:"title"`
	Task     string   `json:"task"`
	Subtasks []string `json:"subtasks"`
}

func handleStartSession(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[startSessionArgs](raw)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.StartSession(a.Title, a.Task, a.Subtasks); err != nil {
		return nil, err
	}
	return s.sessions.Get(), nil
}

type updateTaskArgs struct {
	ItemIndex *int     `json:"item_index"`
	Status    *string  `json:"status"`
	AddItems  []string `json:"add_items"`
	Blocker   *string  `json:"blocker"`
}

func handleUpdateTask(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[updateTaskArgs](raw)
	if err != nil {
		return nil, err
	}
	opt := session.UpdateTaskOptions{ItemIndex: a.ItemIndex, AddItems: a.AddItems, Blocker: a.Blocker}
	if a.Status != nil {
		st := types.SubtaskStatus(*a.Status)
		opt.Status = &st
	}
	if err := s.sessions.UpdateTask(opt); err != nil {
		return nil, err
	}
	return s.sessions.Get(), nil
}

type addDecisionArgs struct {
	Text      string   `json:"text"`
	Reasoning string   `json:"reasoning"`
	Symbols   []string `json:"symbols"`
}

func handleAddDecision(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[addDecisionArgs](raw)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.AddDecision(a.Text, a.Reasoning, a.Symbols); err != nil {
		return nil, err
	}
	return s.sessions.Get(), nil
}

type setContextArgs struct {
	Files   []string `json:"files"`
	Symbols []string `json:"symbols"`
	Notes   *string  `json:"notes"`
}

func handleSetContext(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[setContextArgs](raw)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.SetContext(session.SetContextOptions{Files: a.Files, Symbols: a.Symbols, Notes: a.Notes}); err != nil {
		return nil, err
	}
	return s.sessions.Get(), nil
}

func handleSmartContext(s *Server, _ json.RawMessage) (any, error) {
	return s.sessions.SmartContext(), nil
}

func handleGetSession(s *Server, _ json.RawMessage) (any, error) {
	return s.sessions.Get(), nil
}

// --- C6 learning store ------------------------------------------------

type scopeArgs struct {
	Globs []string `json:"globs"`
	Tags  []string `json:"tags"`
	Limit int      `json:"limit"`
}

func handleRecallPatterns(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[scopeArgs](raw)
	if err != nil {
		return nil, err
	}
	limit := a.Limit
	if limit <= 0 {
		limit = 10
	}
	return s.learn.RecallPatterns(scopeOf(a.Globs, a.Tags), limit)
}

func handleRecallFailures(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[scopeArgs](raw)
	if err != nil {
		return nil, err
	}
	limit := a.Limit
	if limit <= 0 {
		limit = 10
	}
	return s.learn.RecallFailures(scopeOf(a.Globs, a.Tags), limit)
}

type extractPatternArgs struct {
	Intent     string   `json:"intent"`
	Mechanism  string   `json:"mechanism"`
	Examples   []string `json:"examples"`
	Globs      []string `json:"globs"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
}

func handleExtractPattern(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[extractPatternArgs](raw)
	if err != nil {
		return nil, err
	}
	id, err := s.learn.ExtractPattern(a.Intent, a.Mechanism, a.Examples, scopeOf(a.Globs, a.Tags), a.Confidence)
	if err != nil {
		return nil, err
	}
	return map[string]string{"id": id}, nil
}

type recordFailureArgs struct {
	Cause     string   `json:"cause"`
	Avoidance string   `json:"avoidance"`
	Severity  string   `json:"severity"`
	Globs     []string `json:"globs"`
	Tags      []string `json:"tags"`
}

func handleRecordFailure(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[recordFailureArgs](raw)
	if err != nil {
		return nil, err
	}
	severity := types.SeverityMajor
	if a.Severity != "" {
		severity = types.FailureSeverity(a.Severity)
	}
	id, err := s.learn.RecordFailure(a.Cause, a.Avoidance, severity, scopeOf(a.Globs, a.Tags))
	if err != nil {
		return nil, err
	}
	return map[string]string{"id": id}, nil
}

type recordAttemptArgs struct {
	Task   string `json:"task"`
	Plan   string `json:"plan"`
	Parent string `json:"parent"`
}

func handleRecordAttempt(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[recordAttemptArgs](raw)
	if err != nil {
		return nil, err
	}
	id, err := s.learn.RecordAttempt(a.Task, a.Plan, a.Parent)
	if err != nil {
		return nil, err
	}
	return map[string]string{"id": id}, nil
}

type recordOutcomeArgs struct {
	SolutionID string             `json:"solution_id"`
	Outcome    string             `json:"outcome"`
	Metrics    map[string]float64 `json:"metrics"`
	Files      []string           `json:"files"`
	Symbols    []string           `json:"symbols"`
}

func handleRecordOutcome(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[recordOutcomeArgs](raw)
	if err != nil {
		return nil, err
	}
	if err := s.learn.RecordOutcome(a.SolutionID, types.SolutionOutcome(a.Outcome), a.Metrics, a.Files, a.Symbols); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

type queryLineageArgs struct {
	TaskSubstring string `json:"task_substring"`
}

func handleQueryLineage(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[queryLineageArgs](raw)
	if err != nil {
		return nil, err
	}
	return s.learn.QueryLineage(a.TaskSubstring)
}

// --- C7 reflection & suggestion -----------------------------------------

type reflectArgs struct {
	SolutionID string   `json:"solution_id"`
	Intent     string   `json:"intent"`
	Mechanism  string   `json:"mechanism"`
	RootCause  string   `json:"root_cause"`
	Lesson     string   `json:"lesson"`
	Confidence float64  `json:"confidence"`
	Globs      []string `json:"globs"`
	Tags       []string `json:"tags"`
}

func handleReflect(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[reflectArgs](raw)
	if err != nil {
		return nil, err
	}
	return s.learn.Reflect(a.SolutionID, a.Intent, a.Mechanism, a.RootCause, a.Lesson, a.Confidence, scopeOf(a.Globs, a.Tags))
}

type suggestApproachArgs struct {
	Task  string   `json:"task"`
	Globs []string `json:"globs"`
	Tags  []string `json:"tags"`
}

func handleSuggestApproach(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[suggestApproachArgs](raw)
	if err != nil {
		return nil, err
	}
	return s.learn.SuggestApproach(a.Task, scopeOf(a.Globs, a.Tags))
}

// --- C8 sync/export -------------------------------------------------

func handleSyncLearnings(s *Server, _ json.RawMessage) (any, error) {
	return export.Export(s.learningDB, s.paths.PatternsJSON, s.paths.FailuresJSON)
}

// --- C10 niches & cross-language edges --------------------------------

func handleInferCrossEdges(s *Server, _ json.RawMessage) (any, error) {
	if !s.cfg().CrossLanguage.Enabled {
		return map[string]int{"edges": 0}, nil
	}
	n, err := s.learn.RefreshCrossLangEdges(s.codeDB)
	if err != nil {
		return nil, err
	}
	return map[string]int{"edges": n}, nil
}

type getAPIConnectionsArgs struct {
	File string `json:"file"`
}

func handleGetAPIConnections(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[getAPIConnectionsArgs](raw)
	if err != nil {
		return nil, err
	}
	return s.learn.GetAPIConnections(a.File)
}

func handleListNiches(s *Server, _ json.RawMessage) (any, error) {
	return s.learn.ListNiches()
}

// handleDistillProjectSkill renders the current learning state to a
// human-readable SKILL.md under the project's hidden config directory.
// Markdown rendering is explicitly out of core scope (spec.md §1), so this
// stays a minimal, deterministic renderer rather than anything templated.
func handleDistillProjectSkill(s *Server, _ json.RawMessage) (any, error) {
	n, err := renderProjectSkill(s.learningDB, s.paths.SkillMD)
	if err != nil {
		return nil, err
	}
	return map[string]any{"path": s.paths.SkillMD, "patterns": n}, nil
}

// --- standing instructions (learning.db, spec.md §2 C1 "plus ... instructions") ---

type addInstructionArgs struct {
	Text string `json:"text"`
}

func handleAddInstruction(s *Server, raw json.RawMessage) (any, error) {
	a, err := decodeArgs[addInstructionArgs](raw)
	if err != nil {
		return nil, err
	}
	if err := s.learningDB.AddInstruction(a.Text, time.Now().UTC()); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func handleListInstructions(s *Server, _ json.RawMessage) (any, error) {
	return s.learningDB.ListInstructions()
}
