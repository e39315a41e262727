package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/standardbeagle/codegraph/internal/types"
)

// LearningDB persists patterns, failures, solutions, niches, cross-language
// edges and project instructions (spec.md §4.1, §4.6), grounded on
// codenerd's internal/store/learning.go LearningStore shape (one schema per
// domain, lazily-applied migrations, upsert-with-reinforcement idiom).
type LearningDB struct {
	db *sql.DB
	w  *writer
}

var learningMigrations = []Migration{
	{Version: 1, SQL: `
		CREATE TABLE IF NOT EXISTS patterns (
			id              TEXT PRIMARY KEY,
			intent          TEXT NOT NULL,
			mechanism       TEXT NOT NULL DEFAULT '',
			examples        TEXT NOT NULL DEFAULT '[]',
			scope_globs     TEXT NOT NULL DEFAULT '[]',
			scope_tags      TEXT NOT NULL DEFAULT '[]',
			base_confidence REAL NOT NULL DEFAULT 0,
			usage_count     INTEGER NOT NULL DEFAULT 0,
			success_count   INTEGER NOT NULL DEFAULT 0,
			last_validated  INTEGER NOT NULL DEFAULT 0,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS failures (
			id              TEXT PRIMARY KEY,
			cause           TEXT NOT NULL,
			avoidance       TEXT NOT NULL,
			severity        TEXT NOT NULL,
			scope_globs     TEXT NOT NULL DEFAULT '[]',
			scope_tags      TEXT NOT NULL DEFAULT '[]',
			times_prevented INTEGER NOT NULL DEFAULT 0,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS solutions (
			id               TEXT PRIMARY KEY,
			task             TEXT NOT NULL,
			plan             TEXT NOT NULL DEFAULT '',
			approach         TEXT NOT NULL DEFAULT '',
			outcome          TEXT NOT NULL,
			metrics          TEXT NOT NULL DEFAULT '{}',
			files_modified   TEXT NOT NULL DEFAULT '[]',
			symbols_modified TEXT NOT NULL DEFAULT '[]',
			parent_id        TEXT REFERENCES solutions(id),
			created_at       INTEGER NOT NULL,
			finalized_at     INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_solutions_parent ON solutions(parent_id);

		CREATE TABLE IF NOT EXISTS niches (
			task_type           TEXT PRIMARY KEY,
			description         TEXT NOT NULL DEFAULT '',
			best_solution_id    TEXT,
			best_composite_score REAL NOT NULL DEFAULT 0,
			best_feature_vector TEXT NOT NULL DEFAULT '[]'
		);

		CREATE TABLE IF NOT EXISTS cross_lang_edges (
			client_file TEXT NOT NULL,
			server_file TEXT NOT NULL,
			api_path    TEXT NOT NULL,
			method      TEXT NOT NULL DEFAULT '',
			confidence  REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (client_file, server_file, api_path, method)
		);

		CREATE TABLE IF NOT EXISTS instructions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			text       TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
	`},
}

// OpenLearningDB opens (creating if needed) the learning.db at path and
// applies pending migrations.
func OpenLearningDB(path string) (*LearningDB, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(db, learningMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate learning.db: %w", err)
	}
	return &LearningDB{db: db, w: newWriter(db)}, nil
}

// Close releases the database handle and stops the writer goroutine.
func (l *LearningDB) Close() error {
	l.w.Close()
	return l.db.Close()
}

// UpsertPattern inserts or replaces a pattern record.
func (l *LearningDB) UpsertPattern(p types.Pattern) error {
	return l.w.Do(func(tx *sql.Tx) error {
		examples, err := json.Marshal(p.Examples)
		if err != nil {
			return err
		}
		globs, err := json.Marshal(p.Scope.Globs)
		if err != nil {
			return err
		}
		tags, err := json.Marshal(p.Scope.Tags)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO patterns (id, intent, mechanism, examples, scope_globs, scope_tags,
				base_confidence, usage_count, success_count, last_validated, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   intent = excluded.intent, mechanism = excluded.mechanism, examples = excluded.examples,
			   scope_globs = excluded.scope_globs, scope_tags = excluded.scope_tags,
			   base_confidence = excluded.base_confidence, usage_count = excluded.usage_count,
			   success_count = excluded.success_count, last_validated = excluded.last_validated,
			   updated_at = excluded.updated_at`,
			p.ID, p.Intent, p.Mechanism, string(examples), string(globs), string(tags),
			p.BaseConfidence, p.UsageCount, p.SuccessCount, p.LastValidated.UnixNano(),
			p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano(),
		)
		return err
	})
}

// AllPatterns returns every stored pattern, ordered by id for stable export.
func (l *LearningDB) AllPatterns() ([]types.Pattern, error) {
	rows, err := l.db.Query(
		`SELECT id, intent, mechanism, examples, scope_globs, scope_tags,
			base_confidence, usage_count, success_count, last_validated, created_at, updated_at
		 FROM patterns ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPattern(rows *sql.Rows) (types.Pattern, error) {
	var p types.Pattern
	var examples, globs, tags string
	var lastValidated, createdAt, updatedAt int64
	if err := rows.Scan(&p.ID, &p.Intent, &p.Mechanism, &examples, &globs, &tags,
		&p.BaseConfidence, &p.UsageCount, &p.SuccessCount, &lastValidated, &createdAt, &updatedAt); err != nil {
		return p, err
	}
	_ = json.Unmarshal([]byte(examples), &p.Examples)
	_ = json.Unmarshal([]byte(globs), &p.Scope.Globs)
	_ = json.Unmarshal([]byte(tags), &p.Scope.Tags)
	p.LastValidated = time.Unix(0, lastValidated)
	p.CreatedAt = time.Unix(0, createdAt)
	p.UpdatedAt = time.Unix(0, updatedAt)
	return p, nil
}

// UpsertFailure inserts or replaces a failure record.
func (l *LearningDB) UpsertFailure(f types.Failure) error {
	return l.w.Do(func(tx *sql.Tx) error {
		globs, err := json.Marshal(f.Scope.Globs)
		if err != nil {
			return err
		}
		tags, err := json.Marshal(f.Scope.Tags)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO failures (id, cause, avoidance, severity, scope_globs, scope_tags,
				times_prevented, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   cause = excluded.cause, avoidance = excluded.avoidance, severity = excluded.severity,
			   scope_globs = excluded.scope_globs, scope_tags = excluded.scope_tags,
			   times_prevented = excluded.times_prevented, updated_at = excluded.updated_at`,
			f.ID, f.Cause, f.Avoidance, string(f.Severity), string(globs), string(tags),
			f.TimesPrevented, f.CreatedAt.UnixNano(), f.UpdatedAt.UnixNano(),
		)
		return err
	})
}

// AllFailures returns every stored failure, ordered by id for stable export.
func (l *LearningDB) AllFailures() ([]types.Failure, error) {
	rows, err := l.db.Query(
		`SELECT id, cause, avoidance, severity, scope_globs, scope_tags, times_prevented, created_at, updated_at
		 FROM failures ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Failure
	for rows.Next() {
		f, err := scanFailure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFailure(rows *sql.Rows) (types.Failure, error) {
	var f types.Failure
	var severity, globs, tags string
	var createdAt, updatedAt int64
	if err := rows.Scan(&f.ID, &f.Cause, &f.Avoidance, &severity, &globs, &tags,
		&f.TimesPrevented, &createdAt, &updatedAt); err != nil {
		return f, err
	}
	f.Severity = types.FailureSeverity(severity)
	_ = json.Unmarshal([]byte(globs), &f.Scope.Globs)
	_ = json.Unmarshal([]byte(tags), &f.Scope.Tags)
	f.CreatedAt = time.Unix(0, createdAt)
	f.UpdatedAt = time.Unix(0, updatedAt)
	return f, nil
}

// InsertSolution records a brand-new attempt.
func (l *LearningDB) InsertSolution(s types.Solution) error {
	return l.w.Do(func(tx *sql.Tx) error {
		return insertSolutionTx(tx, s)
	})
}

func insertSolutionTx(tx *sql.Tx, s types.Solution) error {
	metrics, err := json.Marshal(s.Metrics)
	if err != nil {
		return err
	}
	files, err := json.Marshal(s.FilesModified)
	if err != nil {
		return err
	}
	symbols, err := json.Marshal(s.SymbolsModified)
	if err != nil {
		return err
	}
	var parent any
	if s.ParentID != "" {
		parent = s.ParentID
	}
	_, err = tx.Exec(
		`INSERT INTO solutions (id, task, plan, approach, outcome, metrics, files_modified,
			symbols_modified, parent_id, created_at, finalized_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Task, s.Plan, s.Approach, string(s.Outcome), string(metrics), string(files),
		string(symbols), parent, s.CreatedAt.UnixNano(), s.FinalizedAt.UnixNano(),
	)
	return err
}

// FinalizeSolution sets a solution's terminal outcome; no further mutation
// is permitted afterwards (spec.md §4.6 record_outcome).
func (l *LearningDB) FinalizeSolution(id string, outcome types.SolutionOutcome, metrics map[string]float64, files, symbols []string, finalizedAt time.Time) error {
	return l.w.Do(func(tx *sql.Tx) error {
		metricsJSON, err := json.Marshal(metrics)
		if err != nil {
			return err
		}
		filesJSON, err := json.Marshal(files)
		if err != nil {
			return err
		}
		symbolsJSON, err := json.Marshal(symbols)
		if err != nil {
			return err
		}
		res, err := tx.Exec(
			`UPDATE solutions SET outcome = ?, metrics = ?, files_modified = ?, symbols_modified = ?, finalized_at = ?
			 WHERE id = ? AND outcome = ?`,
			string(outcome), string(metricsJSON), string(filesJSON), string(symbolsJSON), finalizedAt.UnixNano(),
			id, string(types.OutcomeInProgress),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return types.NewUserError("solution %s not found or already finalized", id)
		}
		return nil
	})
}

// SolutionByID looks up one solution.
func (l *LearningDB) SolutionByID(id string) (*types.Solution, error) {
	row := l.db.QueryRow(
		`SELECT id, task, plan, approach, outcome, metrics, files_modified, symbols_modified,
			COALESCE(parent_id, ''), created_at, finalized_at FROM solutions WHERE id = ?`, id)
	s, err := scanSolutionRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SolutionsByTaskSubstring returns every solution whose task contains
// substr, used by query_lineage to seed the BFS walk.
func (l *LearningDB) SolutionsByTaskSubstring(substr string) ([]types.Solution, error) {
	rows, err := l.db.Query(
		`SELECT id, task, plan, approach, outcome, metrics, files_modified, symbols_modified,
			COALESCE(parent_id, ''), created_at, finalized_at
		 FROM solutions WHERE task LIKE ? ORDER BY created_at ASC`, "%"+substr+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSolutions(rows)
}

// SolutionsByParent returns the direct children of a solution id.
func (l *LearningDB) SolutionsByParent(id string) ([]types.Solution, error) {
	rows, err := l.db.Query(
		`SELECT id, task, plan, approach, outcome, metrics, files_modified, symbols_modified,
			COALESCE(parent_id, ''), created_at, finalized_at
		 FROM solutions WHERE parent_id = ? ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSolutions(rows)
}

// RecentSuccessfulSolutions returns successful solutions most-recent first,
// used by suggest_approach.
func (l *LearningDB) RecentSuccessfulSolutions(limit int) ([]types.Solution, error) {
	rows, err := l.db.Query(
		`SELECT id, task, plan, approach, outcome, metrics, files_modified, symbols_modified,
			COALESCE(parent_id, ''), created_at, finalized_at
		 FROM solutions WHERE outcome = ? ORDER BY finalized_at DESC LIMIT ?`,
		string(types.OutcomeSuccess), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSolutions(rows)
}

func scanSolutionRow(row *sql.Row) (*types.Solution, error) {
	var s types.Solution
	var outcome, metrics, files, symbols, parent string
	var createdAt, finalizedAt int64
	if err := row.Scan(&s.ID, &s.Task, &s.Plan, &s.Approach, &outcome, &metrics, &files, &symbols,
		&parent, &createdAt, &finalizedAt); err != nil {
		return nil, err
	}
	fillSolution(&s, outcome, metrics, files, symbols, parent, createdAt, finalizedAt)
	return &s, nil
}

func scanSolutions(rows *sql.Rows) ([]types.Solution, error) {
	var out []types.Solution
	for rows.Next() {
		var s types.Solution
		var outcome, metrics, files, symbols, parent string
		var createdAt, finalizedAt int64
		if err := rows.Scan(&s.ID, &s.Task, &s.Plan, &s.Approach, &outcome, &metrics, &files, &symbols,
			&parent, &createdAt, &finalizedAt); err != nil {
			return nil, err
		}
		fillSolution(&s, outcome, metrics, files, symbols, parent, createdAt, finalizedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

func fillSolution(s *types.Solution, outcome, metrics, files, symbols, parent string, createdAt, finalizedAt int64) {
	s.Outcome = types.SolutionOutcome(outcome)
	_ = json.Unmarshal([]byte(metrics), &s.Metrics)
	_ = json.Unmarshal([]byte(files), &s.FilesModified)
	_ = json.Unmarshal([]byte(symbols), &s.SymbolsModified)
	s.ParentID = parent
	s.CreatedAt = time.Unix(0, createdAt)
	if finalizedAt > 0 {
		s.FinalizedAt = time.Unix(0, finalizedAt)
	}
}

// UpsertNicheBest records the best-known solution for a task-type niche
// (spec.md §9 "implement the minimal path: store and retrieve best-per-niche").
func (l *LearningDB) UpsertNicheBest(n types.Niche) error {
	return l.w.Do(func(tx *sql.Tx) error {
		var solutionID any
		var score float64
		var vector string = "[]"
		if n.Best != nil {
			solutionID = n.Best.SolutionID
			score = n.Best.CompositeScore
			b, err := json.Marshal(n.Best.FeatureVector)
			if err != nil {
				return err
			}
			vector = string(b)
		}
		_, err := tx.Exec(
			`INSERT INTO niches (task_type, description, best_solution_id, best_composite_score, best_feature_vector)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(task_type) DO UPDATE SET
			   description = excluded.description, best_solution_id = excluded.best_solution_id,
			   best_composite_score = excluded.best_composite_score, best_feature_vector = excluded.best_feature_vector`,
			n.TaskType, n.Description, solutionID, score, vector,
		)
		return err
	})
}

// ListNiches returns every stored niche.
func (l *LearningDB) ListNiches() ([]types.Niche, error) {
	rows, err := l.db.Query(`SELECT task_type, description, best_solution_id, best_composite_score, best_feature_vector FROM niches ORDER BY task_type ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Niche
	for rows.Next() {
		var n types.Niche
		var best sql.NullString
		var score float64
		var vector string
		if err := rows.Scan(&n.TaskType, &n.Description, &best, &score, &vector); err != nil {
			return nil, err
		}
		if best.Valid && best.String != "" {
			var fv []float64
			_ = json.Unmarshal([]byte(vector), &fv)
			n.Best = &types.NicheBestSolution{SolutionID: best.String, CompositeScore: score, FeatureVector: fv}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpsertCrossLangEdge inserts or replaces a cross-language edge.
func (l *LearningDB) UpsertCrossLangEdge(e types.CrossLangEdge) error {
	return l.w.Do(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO cross_lang_edges (client_file, server_file, api_path, method, confidence)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(client_file, server_file, api_path, method) DO UPDATE SET confidence = excluded.confidence`,
			e.ClientFile, e.ServerFile, e.APIPath, e.Method, e.Confidence,
		)
		return err
	})
}

// ListCrossLangEdges returns every stored cross-language edge.
func (l *LearningDB) ListCrossLangEdges() ([]types.CrossLangEdge, error) {
	rows, err := l.db.Query(`SELECT client_file, server_file, api_path, method, confidence FROM cross_lang_edges`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.CrossLangEdge
	for rows.Next() {
		var e types.CrossLangEdge
		if err := rows.Scan(&e.ClientFile, &e.ServerFile, &e.APIPath, &e.Method, &e.Confidence); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddInstruction appends a project instruction.
func (l *LearningDB) AddInstruction(text string, createdAt time.Time) error {
	return l.w.Do(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO instructions (text, created_at) VALUES (?, ?)`, text, createdAt.UnixNano())
		return err
	})
}

// ListInstructions returns every project instruction, oldest first.
func (l *LearningDB) ListInstructions() ([]string, error) {
	rows, err := l.db.Query(`SELECT text FROM instructions ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, rows.Err()
}
