// Package types holds the data model shared across codegraph's storage,
// graph, indexer, session and learning packages (SPEC_FULL.md §3).
package types

import (
	"fmt"
	"time"
)

// UserError marks an error caused by invalid caller input or an invalid
// request state (bad arguments, an unknown id, a disallowed state
// transition) rather than an internal failure, so the mcpserver boundary can
// report it as a JSON-RPC error in the user-error range instead of treating
// it as a recoverable internal failure (spec.md §7's three-tier model).
type UserError struct {
	Message string
}

// NewUserError builds a UserError with a formatted message.
func NewUserError(format string, args ...any) *UserError {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

func (e *UserError) Error() string { return e.Message }

// SymbolKind enumerates the recognized node kinds for code symbols.
type SymbolKind string

const (
	KindFunction   SymbolKind = "function"
	KindMethod     SymbolKind = "method"
	KindClass      SymbolKind = "class"
	KindStruct     SymbolKind = "struct"
	KindEnum       SymbolKind = "enum"
	KindTrait      SymbolKind = "trait"
	KindInterface  SymbolKind = "interface"
	KindType       SymbolKind = "type"
	KindConst      SymbolKind = "const"
	KindStatic     SymbolKind = "static"
	KindVariable   SymbolKind = "variable"
	KindModule     SymbolKind = "module"
	KindUnresolved SymbolKind = "unresolved"

	// KindSessionRoot and KindDecision are not code symbol kinds; they tag
	// the well-known session-state nodes of the session graph (spec.md §4.5).
	KindSessionRoot SymbolKind = "session_root"
	KindDecision    SymbolKind = "decision"
)

// GraphTag distinguishes which logical graph a node/edge belongs to.
type GraphTag string

const (
	GraphCode    GraphTag = "code"
	GraphSession GraphTag = "session"
	GraphCross   GraphTag = "cross"
)

// UnresolvedPrefix is prepended to stub node ids (spec.md §3).
const UnresolvedPrefix = "unresolved::"

// EdgeKind enumerates recognized edge relations.
type EdgeKind string

const (
	EdgeCalls      EdgeKind = "calls"
	EdgeImports    EdgeKind = "imports"
	EdgeInherits   EdgeKind = "inherits"
	EdgeImplements EdgeKind = "implements"
	EdgeHasItem    EdgeKind = "has_item"

	// Session-graph edge kinds (spec.md §3 "arbitrary session/learning kinds").
	EdgeWorkingOn EdgeKind = "working_on"
	EdgeDecided   EdgeKind = "decided"
)

// Node is a symbol node (spec.md §3 "Symbol node").
type Node struct {
	ID        string
	Kind      SymbolKind
	File      string
	StartLine int
	EndLine   int
	Signature string
	Summary   string
	Graph     GraphTag
}

// IsUnresolved reports whether this node is a stub placeholder.
func (n Node) IsUnresolved() bool {
	return n.Kind == KindUnresolved
}

// Edge is a directed labelled relation (spec.md §3 "Edge").
// The primary key is (Source, Target, Kind, Graph).
type Edge struct {
	Source   string
	Target   string
	Kind     EdgeKind
	Graph    GraphTag
	Metadata map[string]any
}

// FileRecord tracks a single indexed file (spec.md §3 "File record").
type FileRecord struct {
	Path         string
	ModTime      time.Time
	ContentHash  uint64
	IndexedAt    time.Time
}

// SubtaskStatus enumerates the lifecycle of a session subtask.
type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "pending"
	SubtaskInProgress SubtaskStatus = "in_progress"
	SubtaskBlocked    SubtaskStatus = "blocked"
	SubtaskDone       SubtaskStatus = "done"
)

// Subtask is one ordered item of a session's task breakdown.
type Subtask struct {
	Text    string
	Status  SubtaskStatus
	Blocker string
}

// Decision is one entry of a session's decision log.
type Decision struct {
	Timestamp time.Time
	Text      string
	Reasoning string
	Symbols   []string
}

// WorkingContext is the session's current focus (spec.md §3 "Session").
type WorkingContext struct {
	Files   []string
	Symbols []string
	Notes   string
}

// Session is the single active session document (spec.md §3 "Session").
type Session struct {
	Title    string
	Task     string
	Subtasks []Subtask
	Decisions []Decision
	Context  WorkingContext
}

// FailureSeverity enumerates severity levels for learning-store failures.
type FailureSeverity string

const (
	SeverityCritical FailureSeverity = "critical"
	SeverityMajor    FailureSeverity = "major"
	SeverityMinor    FailureSeverity = "minor"
)

// SolutionOutcome enumerates the terminal state of a recorded attempt.
type SolutionOutcome string

const (
	OutcomeInProgress SolutionOutcome = "in_progress"
	OutcomeSuccess    SolutionOutcome = "success"
	OutcomeFailure    SolutionOutcome = "failure"
	OutcomePartial    SolutionOutcome = "partial"
)

// Scope is the (file-glob list, tag list) pair that controls pattern/failure
// visibility to recall queries (spec.md §3, §4.6, §9).
type Scope struct {
	Globs []string
	Tags  []string
}

// Pattern is a stored, scoped record of "something that worked" (spec.md §3).
type Pattern struct {
	ID             string
	Intent         string
	Mechanism      string
	Examples       []string
	Scope          Scope
	BaseConfidence float64
	UsageCount     int
	SuccessCount   int
	LastValidated  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Failure is a stored, scoped record of "something to avoid" (spec.md §3).
type Failure struct {
	ID             string
	Cause          string
	Avoidance      string
	Severity       FailureSeverity
	Scope          Scope
	TimesPrevented int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Solution is a recorded attempt with an optional parent forming a retry
// chain (spec.md §3 "Solution / Lineage").
type Solution struct {
	ID              string
	Task            string
	Plan            string
	Approach        string
	Outcome         SolutionOutcome
	Metrics         map[string]float64
	FilesModified   []string
	SymbolsModified []string
	ParentID        string
	CreatedAt       time.Time
	FinalizedAt     time.Time
}

// NicheBestSolution records the best solution observed for a task-type niche.
type NicheBestSolution struct {
	SolutionID     string
	CompositeScore float64
	FeatureVector  []float64
}

// Niche is a task-type label with its best known solution (spec.md §3).
type Niche struct {
	TaskType    string
	Description string
	Best        *NicheBestSolution
}

// CrossLangEdge links a client file to a server file via an API path
// (spec.md §3 "Cross-language edge").
type CrossLangEdge struct {
	ClientFile string
	ServerFile string
	APIPath    string
	Method     string
	Confidence float64
}
