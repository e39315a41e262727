// Command codegraph runs the codegraph MCP tool server: a stdio JSON-RPC
// process giving an AI coding agent a persistent code graph, session memory,
// and a learning store, all scoped to one project root (SPEC_FULL.md §6).
//
// Grounded on codenerd's cmd/nerd/cmd_mangle_lsp.go runMangleLSP: a
// cancelable context, a signal.Notify goroutine for graceful shutdown, and a
// ServeStdio-style blocking call, adapted from an LSP-over-stdio process to
// an MCP-over-stdio one.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/standardbeagle/codegraph/internal/config"
	"github.com/standardbeagle/codegraph/internal/graphstore"
	"github.com/standardbeagle/codegraph/internal/indexer"
	"github.com/standardbeagle/codegraph/internal/learning"
	"github.com/standardbeagle/codegraph/internal/logging"
	"github.com/standardbeagle/codegraph/internal/mcpserver"
	"github.com/standardbeagle/codegraph/internal/parser"
	"github.com/standardbeagle/codegraph/internal/session"
	"github.com/standardbeagle/codegraph/internal/storage"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code per spec.md §6: 0 clean stream close,
// 1 fatal initialization error, 2 protocol framing violation.
func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	srv := mcpserver.New(buildDeps)

	err := srv.Serve(ctx, os.Stdin, os.Stdout)
	switch {
	case err == nil, err == context.Canceled:
		return 0
	case mcpserver.IsFatalInit(err):
		fmt.Fprintln(os.Stderr, err)
		return 1
	default:
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
}

// buildDeps detects the project root from the current working directory,
// opens both databases, rebuilds the in-memory graph, and wires every
// subsystem together. Called at most once, on the first tools/call
// (mcpserver.Server.ensureReady).
func buildDeps() (mcpserver.Deps, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return mcpserver.Deps{}, fmt.Errorf("get working directory: %w", err)
	}
	root, err := config.FindRoot(cwd)
	if err != nil {
		return mcpserver.Deps{}, fmt.Errorf("detect project root: %w", err)
	}
	paths := config.PathsFor(root)

	if err := os.MkdirAll(paths.ConfigDir, 0o755); err != nil {
		return mcpserver.Deps{}, fmt.Errorf("create config directory: %w", err)
	}
	if err := config.EnsureGitignore(paths); err != nil {
		return mcpserver.Deps{}, fmt.Errorf("write .codegraph/.gitignore: %w", err)
	}

	cfg, _, err := config.Load(paths.ConfigFile)
	if err != nil {
		return mcpserver.Deps{}, fmt.Errorf("load config: %w", err)
	}

	if err := logging.Init(paths.ConfigDir); err != nil {
		return mcpserver.Deps{}, fmt.Errorf("init logging: %w", err)
	}

	codeDB, err := storage.OpenCodeDB(paths.CodeDB)
	if err != nil {
		return mcpserver.Deps{}, fmt.Errorf("open code.db: %w", err)
	}
	learningDB, err := storage.OpenLearningDB(paths.LearningDB)
	if err != nil {
		return mcpserver.Deps{}, fmt.Errorf("open learning.db: %w", err)
	}

	graph := graphstore.New()
	if err := indexer.RebuildGraph(codeDB, graph); err != nil {
		return mcpserver.Deps{}, fmt.Errorf("rebuild graph from code.db: %w", err)
	}

	p := parser.New()
	cfgFn := func() *config.Config { return cfg }
	ix := indexer.New(root, codeDB, p, cfgFn)

	sessions, err := session.NewManager(codeDB)
	if err != nil {
		return mcpserver.Deps{}, fmt.Errorf("load session: %w", err)
	}

	learn := learning.New(learningDB, cfgFn)

	return mcpserver.Deps{
		Root:       root,
		Paths:      paths,
		Config:     cfgFn,
		CodeDB:     codeDB,
		LearningDB: learningDB,
		Graph:      graph,
		Indexer:    ix,
		Sessions:   sessions,
		Learn:      learn,
	}, nil
}
