// Package indexer walks a project tree, drives the parser, writes the
// resulting nodes/edges into storage, and runs the cross-file unresolved-stub
// resolution pass (spec.md §4.4).
//
// Grounded on codenerd's internal/world/incremental_scan.go
// ScanWorkspaceIncremental: filepath.WalkDir enumeration with an ignore-list,
// a file-cache diff (mtime/size) to find changed/new/deleted files, and a
// semaphore-bounded worker pool parsing files concurrently while funneling
// all persistence through one store. Codegraph swaps the teacher's
// size+mtime fingerprint for (mtime, xxhash) per spec.md §3, and adds the
// single repo-wide resolution post-pass the teacher's incremental scan has
// no equivalent of.
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/standardbeagle/codegraph/internal/config"
	"github.com/standardbeagle/codegraph/internal/graphstore"
	"github.com/standardbeagle/codegraph/internal/logging"
	"github.com/standardbeagle/codegraph/internal/parser"
	"github.com/standardbeagle/codegraph/internal/scope"
	"github.com/standardbeagle/codegraph/internal/storage"
	"github.com/standardbeagle/codegraph/internal/types"
)

var extLanguage = map[string]parser.Language{
	".go":    parser.LangGo,
	".py":    parser.LangPython,
	".pyw":   parser.LangPython,
	".js":    parser.LangJavaScript,
	".jsx":   parser.LangJavaScript,
	".mjs":   parser.LangJavaScript,
	".cjs":   parser.LangJavaScript,
	".ts":    parser.LangTypeScript,
	".tsx":   parser.LangTypeScript,
	".rs":    parser.LangRust,
}

// Indexer drives a project's indexing cycle (spec.md §4.4).
type Indexer struct {
	root   string
	db     *storage.CodeDB
	parser *parser.Parser
	cfg    func() *config.Config

	maxConcurrent int
}

// New constructs an Indexer rooted at root, using cfg() to read the current
// (possibly hot-reloaded) configuration on each run.
func New(root string, db *storage.CodeDB, p *parser.Parser, cfg func() *config.Config) *Indexer {
	return &Indexer{root: root, db: db, parser: p, cfg: cfg, maxConcurrent: 8}
}

// Stats summarizes one indexing run (spec.md §4.4 "aggregate statistics").
type Stats struct {
	FilesScanned    int
	FilesIndexed    int
	FilesSkipped    int
	FilesDeleted    int
	FilesFailed     int
	StubsBefore     int
	StubsResolved   int
	StubsRemaining  int
	Duration        time.Duration
}

// Run walks the project, indexes changed files, and runs the resolution
// pass. When full is true every file is re-parsed regardless of its
// recorded (mtime, hash).
func (ix *Indexer) Run(ctx context.Context, full bool) (Stats, error) {
	start := time.Now()
	cfg := ix.cfg()

	known, err := ix.db.ListFiles()
	if err != nil {
		return Stats{}, fmt.Errorf("list known files: %w", err)
	}
	knownByPath := make(map[string]types.FileRecord, len(known))
	for _, fr := range known {
		knownByPath[fr.Path] = fr
	}

	current, err := ix.enumerate(cfg)
	if err != nil {
		return Stats{}, fmt.Errorf("enumerate project: %w", err)
	}

	stats := Stats{FilesScanned: len(current)}

	type job struct {
		relPath string
		absPath string
		info    os.FileInfo
	}
	var jobs []job
	for relPath, info := range current {
		if _, ok := extLanguage[strings.ToLower(filepath.Ext(relPath))]; !ok {
			stats.FilesSkipped++
			continue
		}
		jobs = append(jobs, job{relPath: relPath, absPath: filepath.Join(ix.root, relPath), info: info})
	}

	sem := make(chan struct{}, ix.maxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, j := range jobs {
		prev, seen := knownByPath[j.relPath]
		needsIndex := full || !seen
		var hash uint64
		if !needsIndex {
			content, err := os.ReadFile(j.absPath)
			if err != nil {
				mu.Lock()
				stats.FilesFailed++
				mu.Unlock()
				logging.Get(logging.CategoryIndexer).Warn("read failed", zap.String("file", j.relPath), zap.Error(err))
				continue
			}
			hash = xxhash.Sum64(content)
			if prev.ModTime.Equal(j.info.ModTime()) && prev.ContentHash == hash {
				continue
			}
			needsIndex = true
		}
		if !needsIndex {
			continue
		}

		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ix.indexFile(ctx, j.relPath, j.absPath, j.info); err != nil {
				mu.Lock()
				stats.FilesFailed++
				mu.Unlock()
				logging.Get(logging.CategoryIndexer).Warn("index file failed", zap.String("file", j.relPath), zap.Error(err))
				return
			}
			mu.Lock()
			stats.FilesIndexed++
			mu.Unlock()
		}(j)
	}
	wg.Wait()

	for path := range knownByPath {
		if _, ok := current[path]; !ok {
			if err := ix.db.DeleteFile(path); err != nil {
				logging.Get(logging.CategoryIndexer).Warn("delete stale file failed", zap.String("file", path), zap.Error(err))
				continue
			}
			stats.FilesDeleted++
		}
	}

	resolveStats, err := ix.resolve()
	if err != nil {
		return stats, fmt.Errorf("resolve stubs: %w", err)
	}
	stats.StubsBefore = resolveStats.before
	stats.StubsResolved = resolveStats.resolved
	stats.StubsRemaining = resolveStats.remaining

	stats.Duration = time.Since(start)
	return stats, nil
}

// enumerate walks ix.root, skipping excluded directories and oversized
// files, returning the relative-path set of candidate files with their
// current os.FileInfo (spec.md §4.4 "Enumeration").
func (ix *Indexer) enumerate(cfg *config.Config) (map[string]os.FileInfo, error) {
	out := make(map[string]os.FileInfo)
	err := filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if path == ix.root {
			return nil
		}
		rel, err := filepath.Rel(ix.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if scope.MatchesAnyExclude(name, cfg.Indexing.Exclude) {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if cfg.Indexing.MaxFileSize > 0 && info.Size() > cfg.Indexing.MaxFileSize {
			return nil
		}
		if _, ok := extLanguage[strings.ToLower(filepath.Ext(rel))]; !ok {
			return nil
		}
		out[rel] = info
		return nil
	})
	return out, err
}

// indexFile performs one file's write sequence (spec.md §4.4 "Write
// sequence per file"): parse, build per-file node, symbol nodes with
// has_item edges, reference edges landing on resolved ids or unresolved
// stubs, then one atomic WriteFile call.
func (ix *Indexer) indexFile(ctx context.Context, relPath, absPath string, info os.FileInfo) error {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", relPath, err)
	}
	lang := extLanguage[strings.ToLower(filepath.Ext(relPath))]

	result, err := ix.parser.Parse(ctx, relPath, lang, content)
	if err != nil {
		return fmt.Errorf("parse %s: %w", relPath, err)
	}

	var nodes []types.Node
	var edges []types.Edge

	fileNodeID := relPath
	nodes = append(nodes, types.Node{ID: fileNodeID, Kind: types.KindModule, File: relPath, Graph: types.GraphCode})

	knownIDs := make(map[string]bool, len(result.Symbols))
	for _, s := range result.Symbols {
		knownIDs[s.ID] = true
	}

	for _, s := range result.Symbols {
		nodes = append(nodes, types.Node{
			ID: s.ID, Kind: types.SymbolKind(s.Kind), File: relPath,
			StartLine: s.StartLine, EndLine: s.EndLine, Signature: s.Signature,
			Graph: types.GraphCode,
		})
		edges = append(edges, types.Edge{
			Source: fileNodeID, Target: s.ID, Kind: types.EdgeHasItem, Graph: types.GraphCode,
		})
	}

	for _, r := range result.References {
		from := r.FromID
		if from == "" {
			from = fileNodeID
		}
		target := r.Target
		if !knownIDs[target] {
			target = types.UnresolvedPrefix + target
			if !containsNode(nodes, target) {
				nodes = append(nodes, types.Node{ID: target, Kind: types.KindUnresolved, File: relPath, Graph: types.GraphCode})
			}
		}
		meta := map[string]any{}
		if r.CallsiteLine > 0 {
			meta["line"] = r.CallsiteLine
		}
		edges = append(edges, types.Edge{
			Source: from, Target: target, Kind: types.EdgeKind(r.Kind), Graph: types.GraphCode, Metadata: meta,
		})
	}

	fr := types.FileRecord{
		Path:        relPath,
		ModTime:     info.ModTime(),
		ContentHash: xxhash.Sum64(content),
		IndexedAt:   time.Now(),
	}

	return ix.db.WriteFile(relPath, fr, nodes, edges)
}

func containsNode(nodes []types.Node, id string) bool {
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

type resolveStats struct {
	before, resolved, remaining int
}

// resolve performs the single repo-wide cross-file resolution pass (spec.md
// §4.4 "Cross-file resolution"): unresolved stubs with exactly one
// name-index candidate are rewritten in place; ambiguous or external names
// are left as stubs.
func (ix *Indexer) resolve() (resolveStats, error) {
	stubs, err := ix.db.UnresolvedStubsWithIncoming()
	if err != nil {
		return resolveStats{}, err
	}
	stats := resolveStats{before: len(stubs)}

	allNodes, err := ix.db.AllNodes()
	if err != nil {
		return stats, err
	}
	byTrailing := make(map[string][]string)
	for _, n := range allNodes {
		if n.IsUnresolved() {
			continue
		}
		name := trailingName(n.ID)
		byTrailing[name] = append(byTrailing[name], n.ID)
	}

	for _, stub := range stubs {
		name := strings.TrimPrefix(stub, types.UnresolvedPrefix)
		name = trailingName(name)
		candidates := byTrailing[name]
		if len(candidates) != 1 {
			continue
		}
		if err := ix.db.RewriteEdgeTarget(stub, candidates[0]); err != nil {
			logging.Get(logging.CategoryIndexer).Warn("rewrite edge target failed", zap.String("file", stub), zap.Error(err))
			continue
		}
		stats.resolved++
	}

	remaining, err := ix.db.UnresolvedStubsWithIncoming()
	if err != nil {
		return stats, err
	}
	stats.remaining = len(remaining)
	return stats, nil
}

func trailingName(id string) string {
	idx := strings.LastIndex(id, "::")
	if idx == -1 {
		return id
	}
	return id[idx+2:]
}

// RebuildGraph replays every node/edge from code.db into a fresh graph and
// swaps it into g (spec.md §9 "database is the authority").
func RebuildGraph(db *storage.CodeDB, g *graphstore.Graph) error {
	nodes, err := db.AllNodes()
	if err != nil {
		return fmt.Errorf("load nodes: %w", err)
	}
	edges, err := db.AllEdges()
	if err != nil {
		return fmt.Errorf("load edges: %w", err)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	fresh := graphstore.Build(nodes, edges)
	g.Swap(fresh)
	return nil
}
