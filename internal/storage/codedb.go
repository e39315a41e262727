package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/standardbeagle/codegraph/internal/logging"
	"github.com/standardbeagle/codegraph/internal/types"
)

// CodeDB persists the code graph: nodes, edges and file records
// (spec.md §4.1), grounded on codenerd's internal/store/local.go /
// local_core.go NewLocalStore shape.
type CodeDB struct {
	db *sql.DB
	w  *writer
}

var codeMigrations = []Migration{
	{Version: 1, SQL: `
		CREATE TABLE IF NOT EXISTS nodes (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			file       TEXT NOT NULL,
			start_line INTEGER NOT NULL DEFAULT 0,
			end_line   INTEGER NOT NULL DEFAULT 0,
			signature  TEXT NOT NULL DEFAULT '',
			summary    TEXT NOT NULL DEFAULT '',
			graph      TEXT NOT NULL DEFAULT 'code'
		);
		CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(file);
		CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind);

		CREATE TABLE IF NOT EXISTS edges (
			source   TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			target   TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			kind     TEXT NOT NULL,
			graph    TEXT NOT NULL DEFAULT 'code',
			metadata TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (source, target, kind, graph)
		);
		CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source);
		CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target);

		CREATE TABLE IF NOT EXISTS files (
			path         TEXT PRIMARY KEY,
			mod_time     INTEGER NOT NULL,
			content_hash INTEGER NOT NULL,
			indexed_at   INTEGER NOT NULL
		);
	`},
}

// OpenCodeDB opens (creating if needed) the code.db at path and applies
// pending migrations.
func OpenCodeDB(path string) (*CodeDB, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(db, codeMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate code.db: %w", err)
	}
	return &CodeDB{db: db, w: newWriter(db)}, nil
}

// Close releases the database handle and stops the writer goroutine.
func (c *CodeDB) Close() error {
	c.w.Close()
	return c.db.Close()
}

// UpsertNode inserts or replaces a single node.
func (c *CodeDB) UpsertNode(n types.Node) error {
	return c.w.Do(func(tx *sql.Tx) error {
		return upsertNodeTx(tx, n)
	})
}

func upsertNodeTx(tx *sql.Tx, n types.Node) error {
	_, err := tx.Exec(
		`INSERT INTO nodes (id, kind, file, start_line, end_line, signature, summary, graph)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   kind = excluded.kind, file = excluded.file,
		   start_line = excluded.start_line, end_line = excluded.end_line,
		   signature = excluded.signature, summary = excluded.summary, graph = excluded.graph`,
		n.ID, string(n.Kind), n.File, n.StartLine, n.EndLine, n.Signature, n.Summary, string(n.Graph),
	)
	return err
}

// UpsertEdge inserts or replaces a single edge. The caller is responsible
// for ensuring both endpoints already exist as nodes (the indexer creates
// unresolved stub nodes on demand before writing a dangling edge).
func (c *CodeDB) UpsertEdge(e types.Edge) error {
	return c.w.Do(func(tx *sql.Tx) error {
		return upsertEdgeTx(tx, e)
	})
}

func upsertEdgeTx(tx *sql.Tx, e types.Edge) error {
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal edge metadata: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO edges (source, target, kind, graph, metadata) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source, target, kind, graph) DO UPDATE SET metadata = excluded.metadata`,
		e.Source, e.Target, string(e.Kind), string(e.Graph), string(metaJSON),
	)
	return err
}

// WriteFile performs one file's entire re-index write sequence atomically
// (spec.md §4.4 "Write sequence per file"): delete existing nodes/edges for
// the file (cascade removes edges), insert the new nodes, insert the new
// edges, upsert the file's metadata row.
func (c *CodeDB) WriteFile(file string, fr types.FileRecord, nodes []types.Node, edges []types.Edge) error {
	return c.w.Do(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM nodes WHERE file = ?`, file); err != nil {
			return fmt.Errorf("delete nodes for %s: %w", file, err)
		}
		for _, n := range nodes {
			if err := upsertNodeTx(tx, n); err != nil {
				return fmt.Errorf("upsert node %s: %w", n.ID, err)
			}
		}
		for _, e := range edges {
			if err := upsertEdgeTx(tx, e); err != nil {
				return fmt.Errorf("upsert edge %s->%s: %w", e.Source, e.Target, err)
			}
		}
		_, err := tx.Exec(
			`INSERT INTO files (path, mod_time, content_hash, indexed_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(path) DO UPDATE SET mod_time = excluded.mod_time,
			   content_hash = excluded.content_hash, indexed_at = excluded.indexed_at`,
			fr.Path, fr.ModTime.UnixNano(), int64(fr.ContentHash), fr.IndexedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("upsert file record %s: %w", file, err)
		}
		return nil
	})
}

// DeleteFile removes a file's nodes and its file record, used when a file is
// removed from the project. Before dropping a node, any incoming edge held
// by a node in a *different* file is re-pointed onto a freshly minted
// unresolved stub rather than being cascade-deleted, so a surviving file's
// edge never dangles (spec.md §3 "every edge references nodes that exist";
// spec.md §8 scenario 2: deleting b.py turns a.py::foo's edge into
// a.py::foo -[calls]-> unresolved::bar). Same-file incoming edges are left
// to cascade away with the rest of the file's nodes.
func (c *CodeDB) DeleteFile(file string) error {
	return c.w.Do(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT id FROM nodes WHERE file = ?`, file)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		for _, id := range ids {
			if err := stubOutgoingExternalEdgesTx(tx, id, file); err != nil {
				return fmt.Errorf("stub external edges for %s: %w", id, err)
			}
		}

		if _, err := tx.Exec(`DELETE FROM nodes WHERE file = ?`, file); err != nil {
			return err
		}
		_, err = tx.Exec(`DELETE FROM files WHERE path = ?`, file)
		return err
	})
}

// stubOutgoingExternalEdgesTx re-points every edge landing on target whose
// source belongs to a different file onto a fresh unresolved stub named from
// target's trailing segment. The stub is recorded with an empty file, so
// re-indexing a file at the old path does not delete it (and the re-pointed
// edges with it) before the resolution pass can rewrite them.
func stubOutgoingExternalEdgesTx(tx *sql.Tx, target, file string) error {
	rows, err := tx.Query(
		`SELECT e.source, e.kind, e.graph, e.metadata FROM edges e
		 JOIN nodes sn ON sn.id = e.source
		 WHERE e.target = ? AND sn.file != ?`, target, file)
	if err != nil {
		return err
	}
	type incoming struct{ source, kind, graph, meta string }
	var external []incoming
	for rows.Next() {
		var r incoming
		if err := rows.Scan(&r.source, &r.kind, &r.graph, &r.meta); err != nil {
			rows.Close()
			return err
		}
		external = append(external, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	if len(external) == 0 {
		return nil
	}

	stub := types.UnresolvedPrefix + trailingSegment(target)
	if _, err := tx.Exec(
		`INSERT INTO nodes (id, kind, file, graph) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		stub, string(types.KindUnresolved), "", string(types.GraphCode),
	); err != nil {
		return err
	}

	for _, r := range external {
		if _, err := tx.Exec(`DELETE FROM edges WHERE source = ? AND target = ? AND kind = ? AND graph = ?`,
			r.source, target, r.kind, r.graph); err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO edges (source, target, kind, graph, metadata) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(source, target, kind, graph) DO UPDATE SET metadata = excluded.metadata`,
			r.source, stub, r.kind, r.graph, r.meta,
		); err != nil {
			return err
		}
	}
	return nil
}

// trailingSegment returns the last "::"-delimited segment of id, matching
// the indexer's name-based stub-resolution convention (spec.md §4.4).
func trailingSegment(id string) string {
	idx := strings.LastIndex(id, "::")
	if idx == -1 {
		return id
	}
	return id[idx+2:]
}

// RewriteEdgeTarget repoints every edge landing on oldTarget to newTarget,
// used by the cross-file resolution pass (spec.md §4.4), then deletes the
// stub node at oldTarget if it has no remaining incoming edges.
func (c *CodeDB) RewriteEdgeTarget(oldTarget, newTarget string) error {
	return c.w.Do(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT source, kind, graph, metadata FROM edges WHERE target = ?`, oldTarget)
		if err != nil {
			return err
		}
		type rewrite struct{ source, kind, graph, meta string }
		var rewrites []rewrite
		for rows.Next() {
			var r rewrite
			if err := rows.Scan(&r.source, &r.kind, &r.graph, &r.meta); err != nil {
				rows.Close()
				return err
			}
			rewrites = append(rewrites, r)
		}
		rows.Close()

		for _, r := range rewrites {
			if _, err := tx.Exec(`DELETE FROM edges WHERE source = ? AND target = ? AND kind = ? AND graph = ?`,
				r.source, oldTarget, r.kind, r.graph); err != nil {
				return err
			}
			if _, err := tx.Exec(
				`INSERT INTO edges (source, target, kind, graph, metadata) VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT(source, target, kind, graph) DO UPDATE SET metadata = excluded.metadata`,
				r.source, newTarget, r.kind, r.graph, r.meta,
			); err != nil {
				return err
			}
		}

		var remaining int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM edges WHERE target = ?`, oldTarget).Scan(&remaining); err != nil {
			return err
		}
		if remaining == 0 {
			if _, err := tx.Exec(`DELETE FROM nodes WHERE id = ? AND kind = ?`, oldTarget, string(types.KindUnresolved)); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureStub inserts a placeholder unresolved node if one doesn't already
// exist, so an edge always lands on a node (spec.md §9 "Unresolved stubs").
func (c *CodeDB) EnsureStub(id, file string) error {
	return c.w.Do(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO nodes (id, kind, file, graph) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			id, string(types.KindUnresolved), file, string(types.GraphCode),
		)
		return err
	})
}

// NodeByID looks up a single node.
func (c *CodeDB) NodeByID(id string) (*types.Node, error) {
	row := c.db.QueryRow(`SELECT id, kind, file, start_line, end_line, signature, summary, graph FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// NodesByFile lists all nodes belonging to a file, sorted by start line.
func (c *CodeDB) NodesByFile(file string) ([]types.Node, error) {
	rows, err := c.db.Query(
		`SELECT id, kind, file, start_line, end_line, signature, summary, graph
		 FROM nodes WHERE file = ? ORDER BY start_line ASC`, file)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

// NodesByKind lists all nodes of a given kind.
func (c *CodeDB) NodesByKind(kind types.SymbolKind) ([]types.Node, error) {
	rows, err := c.db.Query(
		`SELECT id, kind, file, start_line, end_line, signature, summary, graph
		 FROM nodes WHERE kind = ? ORDER BY id ASC`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

// AllNodes lists every node, used to rebuild the in-memory graph on start.
func (c *CodeDB) AllNodes() ([]types.Node, error) {
	rows, err := c.db.Query(`SELECT id, kind, file, start_line, end_line, signature, summary, graph FROM nodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

// AllEdges lists every edge, used to rebuild the in-memory graph on start.
func (c *CodeDB) AllEdges() ([]types.Edge, error) {
	rows, err := c.db.Query(`SELECT source, target, kind, graph, metadata FROM edges`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEdges(rows)
}

// EdgesBySource lists edges originating at id.
func (c *CodeDB) EdgesBySource(id string) ([]types.Edge, error) {
	rows, err := c.db.Query(`SELECT source, target, kind, graph, metadata FROM edges WHERE source = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEdges(rows)
}

// EdgesByTarget lists edges landing at id.
func (c *CodeDB) EdgesByTarget(id string) ([]types.Edge, error) {
	rows, err := c.db.Query(`SELECT source, target, kind, graph, metadata FROM edges WHERE target = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEdges(rows)
}

// UnresolvedStubsWithIncoming lists unresolved stub node ids that have at
// least one incoming edge, for the cross-file resolution pass.
func (c *CodeDB) UnresolvedStubsWithIncoming() ([]string, error) {
	rows, err := c.db.Query(
		`SELECT DISTINCT n.id FROM nodes n
		 JOIN edges e ON e.target = n.id
		 WHERE n.kind = ?`, string(types.KindUnresolved))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListFiles returns every tracked file record.
func (c *CodeDB) ListFiles() ([]types.FileRecord, error) {
	rows, err := c.db.Query(`SELECT path, mod_time, content_hash, indexed_at FROM files`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.FileRecord
	for rows.Next() {
		var (
			path           string
			modTime, index int64
			hash           int64
		)
		if err := rows.Scan(&path, &modTime, &hash, &index); err != nil {
			return nil, err
		}
		out = append(out, types.FileRecord{
			Path:        path,
			ModTime:     time.Unix(0, modTime),
			ContentHash: uint64(hash),
			IndexedAt:   time.Unix(0, index),
		})
	}
	return out, rows.Err()
}

// FileRecordByPath looks up a single file's tracked metadata.
func (c *CodeDB) FileRecordByPath(path string) (*types.FileRecord, error) {
	var modTime, index int64
	var hash int64
	err := c.db.QueryRow(`SELECT mod_time, content_hash, indexed_at FROM files WHERE path = ?`, path).
		Scan(&modTime, &hash, &index)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &types.FileRecord{
		Path:        path,
		ModTime:     time.Unix(0, modTime),
		ContentHash: uint64(hash),
		IndexedAt:   time.Unix(0, index),
	}, nil
}

func scanNode(row *sql.Row) (*types.Node, error) {
	var n types.Node
	var kind, graph string
	if err := row.Scan(&n.ID, &kind, &n.File, &n.StartLine, &n.EndLine, &n.Signature, &n.Summary, &graph); err != nil {
		return nil, err
	}
	n.Kind = types.SymbolKind(kind)
	n.Graph = types.GraphTag(graph)
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]types.Node, error) {
	var out []types.Node
	for rows.Next() {
		var n types.Node
		var kind, graph string
		if err := rows.Scan(&n.ID, &kind, &n.File, &n.StartLine, &n.EndLine, &n.Signature, &n.Summary, &graph); err != nil {
			return nil, err
		}
		n.Kind = types.SymbolKind(kind)
		n.Graph = types.GraphTag(graph)
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanEdges(rows *sql.Rows) ([]types.Edge, error) {
	var out []types.Edge
	for rows.Next() {
		var e types.Edge
		var kind, graph, metaJSON string
		if err := rows.Scan(&e.Source, &e.Target, &kind, &graph, &metaJSON); err != nil {
			return nil, err
		}
		e.Kind = types.EdgeKind(kind)
		e.Graph = types.GraphTag(graph)
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
				logging.Get(logging.CategoryStorage).Warn("skipping malformed edge metadata")
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
