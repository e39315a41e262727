package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codegraph/internal/config"
	"github.com/standardbeagle/codegraph/internal/graphstore"
	"github.com/standardbeagle/codegraph/internal/indexer"
	"github.com/standardbeagle/codegraph/internal/learning"
	"github.com/standardbeagle/codegraph/internal/parser"
	"github.com/standardbeagle/codegraph/internal/session"
	"github.com/standardbeagle/codegraph/internal/storage"
)

// testBuild returns a Deps builder rooted at a fresh temp directory, mirroring
// cmd/codegraph's buildDeps but without touching package-global logging.Init
// (tests run concurrently across packages; a shared log file would race).
func testBuild(t *testing.T) func() (Deps, error) {
	t.Helper()
	dir := t.TempDir()
	paths := config.PathsFor(dir)
	require.NoError(t, config.EnsureGitignore(paths))

	cfg, _, err := config.Load(paths.ConfigFile)
	require.NoError(t, err)

	codeDB, err := storage.OpenCodeDB(paths.CodeDB)
	require.NoError(t, err)
	t.Cleanup(func() { _ = codeDB.Close() })

	learningDB, err := storage.OpenLearningDB(paths.LearningDB)
	require.NoError(t, err)
	t.Cleanup(func() { _ = learningDB.Close() })

	graph := graphstore.New()
	sessions, err := session.NewManager(codeDB)
	require.NoError(t, err)

	cfgFn := func() *config.Config { return cfg }
	p := parser.New()
	t.Cleanup(p.Close)

	return func() (Deps, error) {
		return Deps{
			Root:       dir,
			Paths:      paths,
			Config:     cfgFn,
			CodeDB:     codeDB,
			LearningDB: learningDB,
			Graph:      graph,
			Indexer:    indexer.New(dir, codeDB, p, cfgFn),
			Sessions:   sessions,
			Learn:      learning.New(learningDB, cfgFn),
		}, nil
	}
}

func writeLine(t *testing.T, buf *bytes.Buffer, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	buf.Write(b)
	buf.WriteByte('\n')
}

func TestInitializeAndToolsList(t *testing.T) {
	s := New(testBuild(t))

	var in bytes.Buffer
	writeLine(t, &in, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize"})
	writeLine(t, &in, map[string]any{"jsonrpc": "2.0", "method": "notifications/initialized"})
	writeLine(t, &in, map[string]any{"jsonrpc": "2.0", "id": 2, "method": "tools/list"})

	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), &in, &out))

	dec := json.NewDecoder(&out)

	var initResp response
	require.NoError(t, dec.Decode(&initResp))
	require.Nil(t, initResp.Error)

	var listResp struct {
		Result struct {
			Tools []toolDescriptor `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, dec.Decode(&listResp))
	require.Len(t, listResp.Result.Tools, 26)
	require.Equal(t, "search_symbols", listResp.Result.Tools[0].Name)
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := New(testBuild(t))

	var in bytes.Buffer
	writeLine(t, &in, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "not/a/real/method"})

	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), &in, &out))

	var resp response
	require.NoError(t, json.NewDecoder(&out).Decode(&resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestToolCallStartAndGetSessionRoundTrips(t *testing.T) {
	s := New(testBuild(t))

	var in bytes.Buffer
	writeLine(t, &in, map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "tools/call",
		"params": toolCallParams{
			Name:      "start_session",
			Arguments: json.RawMessage(`{"title":"t","task":"do the thing","subtasks":["a","b"]}`),
		},
	})
	writeLine(t, &in, map[string]any{
		"jsonrpc": "2.0", "id": 2, "method": "tools/call",
		"params": toolCallParams{Name: "get_session", Arguments: json.RawMessage(`{}`)},
	})

	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), &in, &out))

	dec := json.NewDecoder(&out)
	var resp1, resp2 response
	require.NoError(t, dec.Decode(&resp1))
	require.NoError(t, dec.Decode(&resp2))
	require.Nil(t, resp1.Error)
	require.Nil(t, resp2.Error)
}

func TestToolCallUnknownToolIsReportedAsUserError(t *testing.T) {
	s := New(testBuild(t))

	var in bytes.Buffer
	writeLine(t, &in, map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "tools/call",
		"params": toolCallParams{Name: "does_not_exist", Arguments: json.RawMessage(`{}`)},
	})

	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), &in, &out))

	var resp response
	require.NoError(t, json.NewDecoder(&out).Decode(&resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUserError, resp.Error.Code)
}

func TestToolCallValidationErrorIsReportedAsUserError(t *testing.T) {
	s := New(testBuild(t))

	var in bytes.Buffer
	// update_task with no prior start_session: session.ErrNoActiveSession,
	// a *types.UserError, must surface as a JSON-RPC error, not IsError.
	writeLine(t, &in, map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "tools/call",
		"params": toolCallParams{Name: "update_task", Arguments: json.RawMessage(`{}`)},
	})

	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), &in, &out))

	var resp response
	require.NoError(t, json.NewDecoder(&out).Decode(&resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUserError, resp.Error.Code)
}

func TestFatalInitErrorStopsServeAndIsClassified(t *testing.T) {
	buildErr := errors.New("simulated unwritable config directory")
	s := New(func() (Deps, error) {
		return Deps{}, buildErr
	})

	var in bytes.Buffer
	writeLine(t, &in, map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "tools/call",
		"params": toolCallParams{Name: "get_session", Arguments: json.RawMessage(`{}`)},
	})

	var out bytes.Buffer
	err := s.Serve(context.Background(), &in, &out)
	require.Error(t, err)
	require.True(t, IsFatalInit(err))
}
