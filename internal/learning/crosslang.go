package learning

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/codegraph/internal/storage"
	"github.com/standardbeagle/codegraph/internal/types"
)

// clientLibHints and serverLibHints are substrings of import targets that
// suggest a file issues or serves HTTP requests, used by the coarse
// cross-language heuristic below (SPEC_FULL.md §4.10).
var (
	clientLibHints = []string{"axios", "fetch", "requests", "httpx", "reqwest", "http.client", "retrofit", "okhttp"}
	serverLibHints = []string{"express", "gin-gonic", "fiber", "flask", "fastapi", "actix-web", "net/http", "koa", "django", "echo"}
)

// InferCrossEdges scans the code graph's import edges for files that look
// like HTTP clients and files that look like HTTP servers, and proposes a
// CrossLangEdge for every such pair whose file paths share a name token,
// with confidence derived from path-token overlap. This is intentionally
// coarse per spec.md's Non-goals ("not a general-purpose graph database"):
// it does not parse route literals or request call sites.
func InferCrossEdges(db *storage.CodeDB) ([]types.CrossLangEdge, error) {
	edges, err := db.AllEdges()
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}

	clientFiles := make(map[string]bool)
	serverFiles := make(map[string]bool)
	for _, e := range edges {
		if e.Kind != types.EdgeImports {
			continue
		}
		target := strings.ToLower(e.Target)
		for _, hint := range clientLibHints {
			if strings.Contains(target, hint) {
				clientFiles[e.Source] = true
			}
		}
		for _, hint := range serverLibHints {
			if strings.Contains(target, hint) {
				serverFiles[e.Source] = true
			}
		}
	}

	var out []types.CrossLangEdge
	for c := range clientFiles {
		for svr := range serverFiles {
			if c == svr {
				continue
			}
			token, score := bestSharedToken(c, svr)
			if score <= 0 {
				continue
			}
			out = append(out, types.CrossLangEdge{
				ClientFile: c, ServerFile: svr, APIPath: token, Confidence: score,
			})
		}
	}
	return out, nil
}

// RefreshCrossLangEdges re-derives cross-language edges from the current
// code graph and persists them (spec.md §4.10 infer_cross_edges).
func (s *Store) RefreshCrossLangEdges(db *storage.CodeDB) (int, error) {
	inferred, err := InferCrossEdges(db)
	if err != nil {
		return 0, err
	}
	for _, e := range inferred {
		if err := s.db.UpsertCrossLangEdge(e); err != nil {
			return 0, fmt.Errorf("store cross-lang edge: %w", err)
		}
	}
	return len(inferred), nil
}

// GetAPIConnections returns every stored cross-language edge touching file,
// as either client or server side (spec.md §4.10 get_api_connections).
func (s *Store) GetAPIConnections(file string) ([]types.CrossLangEdge, error) {
	all, err := s.db.ListCrossLangEdges()
	if err != nil {
		return nil, fmt.Errorf("load cross-lang edges: %w", err)
	}
	var out []types.CrossLangEdge
	for _, e := range all {
		if e.ClientFile == file || e.ServerFile == file {
			out = append(out, e)
		}
	}
	return out, nil
}

// bestSharedToken returns the longest filename token (path segment or
// extension-stripped basename) shared by two paths, and a Jaccard overlap
// score over their token sets.
func bestSharedToken(a, b string) (string, float64) {
	ta := pathTokens(a)
	tb := pathTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return "", 0
	}

	setB := make(map[string]bool, len(tb))
	for _, t := range tb {
		setB[t] = true
	}

	shared := map[string]bool{}
	best := ""
	for _, t := range ta {
		if setB[t] {
			shared[t] = true
			if len(t) > len(best) {
				best = t
			}
		}
	}
	if len(shared) == 0 {
		return "", 0
	}

	union := make(map[string]bool, len(ta)+len(tb))
	for _, t := range ta {
		union[t] = true
	}
	for _, t := range tb {
		union[t] = true
	}
	return best, float64(len(shared)) / float64(len(union))
}

func pathTokens(path string) []string {
	var out []string
	for _, seg := range strings.FieldsFunc(filepath.ToSlash(path), func(r rune) bool {
		return r == '/' || r == '_' || r == '-' || r == '.'
	}) {
		seg = strings.ToLower(seg)
		if len(seg) >= 3 {
			out = append(out, seg)
		}
	}
	return out
}
