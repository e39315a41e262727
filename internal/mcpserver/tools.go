package mcpserver

import "encoding/json"

// schema is a convenience constructor for a minimal JSON Schema object
// describing a tool's input. Every tool accepts a JSON object; this keeps
// the schema declarations terse without inventing a schema builder library
// the teacher never reaches for either.
func schema(properties string, required ...string) json.RawMessage {
	req := "[]"
	if len(required) > 0 {
		b, _ := json.Marshal(required)
		req = string(b)
	}
	return json.RawMessage(`{"type":"object","properties":{` + properties + `},"required":` + req + `}`)
}

// toolOrder fixes tools/list's output order (registration order would be
// map-random otherwise), grouped by the component that owns each operation
// (spec.md §4.2, §4.4, §4.5, §4.6, §4.7, §4.8, §4.10).
var toolOrder = []string{
	"search_symbols", "get_file_symbols", "get_neighbors",
	"index_project",
	"start_session", "update_task", "add_decision", "set_context", "smart_context", "get_session",
	"recall_patterns", "recall_failures", "extract_pattern", "record_failure",
	"record_attempt", "record_outcome", "query_lineage",
	"reflect", "suggest_approach",
	"sync_learnings",
	"list_niches", "distill_project_skill", "add_instruction", "get_project_instructions",
	"infer_cross_edges", "get_api_connections",
}

// registerTools builds the name -> (descriptor, handler) table. Handlers
// live in handlers.go, grouped the same way as toolOrder.
func (s *Server) registerTools() map[string]toolEntry {
	t := map[string]toolEntry{
		"search_symbols": {
			descriptor: toolDescriptor{
				Name:        "search_symbols",
				Description: "Case-insensitive search over symbol names, ranked exact > prefix > substring.",
				InputSchema: schema(`"query":{"type":"string"},"kind":{"type":"string"},"file":{"type":"string"},"limit":{"type":"integer"}`, "query"),
			},
			handler: handleSearchSymbols,
		},
		"get_file_symbols": {
			descriptor: toolDescriptor{
				Name:        "get_file_symbols",
				Description: "List all symbols declared in a file, sorted by start line.",
				InputSchema: schema(`"file":{"type":"string"},"compact":{"type":"boolean"}`, "file"),
			},
			handler: handleGetFileSymbols,
		},
		"get_neighbors": {
			descriptor: toolDescriptor{
				Name:        "get_neighbors",
				Description: "Bounded BFS from a symbol id, filtered by direction, depth, and edge kinds.",
				InputSchema: schema(`"id":{"type":"string"},"direction":{"type":"string"},"depth":{"type":"integer"},"kinds":{"type":"array","items":{"type":"string"}}`, "id"),
			},
			handler: handleGetNeighbors,
		},
		"index_project": {
			descriptor: toolDescriptor{
				Name:        "index_project",
				Description: "Walk the project, (re-)parse changed files, and run the cross-file resolution pass.",
				InputSchema: schema(`"full":{"type":"boolean"}`),
			},
			handler: handleIndexProject,
		},
		"start_session": {
			descriptor: toolDescriptor{
				Name:        "start_session",
				Description: "Destructively replace the session with a new title/task/subtask list.",
				InputSchema: schema(`"title":{"type":"string"},"task":{"type":"string"},"subtasks":{"type":"array","items":{"type":"string"}}`, "task"),
			},
			handler: handleStartSession,
		},
		"update_task": {
			descriptor: toolDescriptor{
				Name:        "update_task",
				Description: "Partially mutate the session's subtasks: status, blocker note, or append new items.",
				InputSchema: schema(`"item_index":{"type":"integer"},"status":{"type":"string"},"add_items":{"type":"array","items":{"type":"string"}},"blocker":{"type":"string"}`),
			},
			handler: handleUpdateTask,
		},
		"add_decision": {
			descriptor: toolDescriptor{
				Name:        "add_decision",
				Description: "Append a timestamped decision-log entry to the active session.",
				InputSchema: schema(`"text":{"type":"string"},"reasoning":{"type":"string"},"symbols":{"type":"array","items":{"type":"string"}}`, "text"),
			},
			handler: handleAddDecision,
		},
		"set_context": {
			descriptor: toolDescriptor{
				Name:        "set_context",
				Description: "Replace the session's working-context files/symbols/notes (full replace, not merge).",
				InputSchema: schema(`"files":{"type":"array","items":{"type":"string"}},"symbols":{"type":"array","items":{"type":"string"}},"notes":{"type":"string"}`),
			},
			handler: handleSetContext,
		},
		"smart_context": {
			descriptor: toolDescriptor{
				Name:        "smart_context",
				Description: "Return a compact restoration document: task, progress, current subtask, recent decisions, working context.",
				InputSchema: schema(``),
			},
			handler: handleSmartContext,
		},
		"get_session": {
			descriptor: toolDescriptor{
				Name:        "get_session",
				Description: "Return the full current session document.",
				InputSchema: schema(``),
			},
			handler: handleGetSession,
		},
		"recall_patterns": {
			descriptor: toolDescriptor{
				Name:        "recall_patterns",
				Description: "Rank patterns matching a scope by effective (decayed) confidence, descending.",
				InputSchema: schema(`"globs":{"type":"array","items":{"type":"string"}},"tags":{"type":"array","items":{"type":"string"}},"limit":{"type":"integer"}`),
			},
			handler: handleRecallPatterns,
		},
		"recall_failures": {
			descriptor: toolDescriptor{
				Name:        "recall_failures",
				Description: "Union of all critical-severity failures with scope-matching failures ranked by times-prevented then severity.",
				InputSchema: schema(`"globs":{"type":"array","items":{"type":"string"}},"tags":{"type":"array","items":{"type":"string"}},"limit":{"type":"integer"}`),
			},
			handler: handleRecallFailures,
		},
		"extract_pattern": {
			descriptor: toolDescriptor{
				Name:        "extract_pattern",
				Description: "Directly record a new pattern with the given intent, mechanism, examples, scope, and base confidence.",
				InputSchema: schema(`"intent":{"type":"string"},"mechanism":{"type":"string"},"examples":{"type":"array","items":{"type":"string"}},"globs":{"type":"array","items":{"type":"string"}},"tags":{"type":"array","items":{"type":"string"}},"confidence":{"type":"number"}`, "intent"),
			},
			handler: handleExtractPattern,
		},
		"record_failure": {
			descriptor: toolDescriptor{
				Name:        "record_failure",
				Description: "Directly record a new failure with the given cause, avoidance rule, severity, and scope.",
				InputSchema: schema(`"cause":{"type":"string"},"avoidance":{"type":"string"},"severity":{"type":"string"},"globs":{"type":"array","items":{"type":"string"}},"tags":{"type":"array","items":{"type":"string"}}`, "cause", "avoidance"),
			},
			handler: handleRecordFailure,
		},
		"record_attempt": {
			descriptor: toolDescriptor{
				Name:        "record_attempt",
				Description: "Start a new solution attempt (outcome=in_progress), optionally chained to a parent attempt.",
				InputSchema: schema(`"task":{"type":"string"},"plan":{"type":"string"},"parent":{"type":"string"}`, "task"),
			},
			handler: handleRecordAttempt,
		},
		"record_outcome": {
			descriptor: toolDescriptor{
				Name:        "record_outcome",
				Description: "Finalize a solution attempt with its terminal outcome, metrics, and modified files/symbols.",
				InputSchema: schema(`"solution_id":{"type":"string"},"outcome":{"type":"string"},"metrics":{"type":"object"},"files":{"type":"array","items":{"type":"string"}},"symbols":{"type":"array","items":{"type":"string"}}`, "solution_id", "outcome"),
			},
			handler: handleRecordOutcome,
		},
		"query_lineage": {
			descriptor: toolDescriptor{
				Name:        "query_lineage",
				Description: "Breadth-first walk of the parent/child chain of solutions whose task matches a substring.",
				InputSchema: schema(`"task_substring":{"type":"string"}`, "task_substring"),
			},
			handler: handleQueryLineage,
		},
		"reflect": {
			descriptor: toolDescriptor{
				Name:        "reflect",
				Description: "Convert a finalized solution's outcome into a pattern, a failure, or both (partial outcome).",
				InputSchema: schema(`"solution_id":{"type":"string"},"intent":{"type":"string"},"mechanism":{"type":"string"},"root_cause":{"type":"string"},"lesson":{"type":"string"},"confidence":{"type":"number"},"globs":{"type":"array","items":{"type":"string"}},"tags":{"type":"array","items":{"type":"string"}}`, "solution_id", "lesson"),
			},
			handler: handleReflect,
		},
		"suggest_approach": {
			descriptor: toolDescriptor{
				Name:        "suggest_approach",
				Description: "Fuse top patterns, top failures, and a token-overlapping prior solution into a synthesized textual approach.",
				InputSchema: schema(`"task":{"type":"string"},"globs":{"type":"array","items":{"type":"string"}},"tags":{"type":"array","items":{"type":"string"}}`, "task"),
			},
			handler: handleSuggestApproach,
		},
		"sync_learnings": {
			descriptor: toolDescriptor{
				Name:        "sync_learnings",
				Description: "Atomically export high-confidence patterns and all failures to patterns.json/failures.json.",
				InputSchema: schema(``),
			},
			handler: handleSyncLearnings,
		},
		"infer_cross_edges": {
			descriptor: toolDescriptor{
				Name:        "infer_cross_edges",
				Description: "Re-derive and persist cross-language client/server edges from the current code graph's imports.",
				InputSchema: schema(``),
			},
			handler: handleInferCrossEdges,
		},
		"get_api_connections": {
			descriptor: toolDescriptor{
				Name:        "get_api_connections",
				Description: "List stored cross-language edges touching a given file, as either client or server side.",
				InputSchema: schema(`"file":{"type":"string"}`, "file"),
			},
			handler: handleGetAPIConnections,
		},
		"list_niches": {
			descriptor: toolDescriptor{
				Name:        "list_niches",
				Description: "List every known task-type niche and its best recorded solution, if any.",
				InputSchema: schema(``),
			},
			handler: handleListNiches,
		},
		"distill_project_skill": {
			descriptor: toolDescriptor{
				Name:        "distill_project_skill",
				Description: "Render the current patterns, failures, and standing instructions to a human-readable SKILL.md.",
				InputSchema: schema(``),
			},
			handler: handleDistillProjectSkill,
		},
		"add_instruction": {
			descriptor: toolDescriptor{
				Name:        "add_instruction",
				Description: "Append a free-text standing instruction for the agent to the learning store.",
				InputSchema: schema(`"text":{"type":"string"}`, "text"),
			},
			handler: handleAddInstruction,
		},
		"get_project_instructions": {
			descriptor: toolDescriptor{
				Name:        "get_project_instructions",
				Description: "List all standing instructions, in creation order.",
				InputSchema: schema(``),
			},
			handler: handleListInstructions,
		},
	}
	return t
}
