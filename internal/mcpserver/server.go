package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/standardbeagle/codegraph/internal/config"
	"github.com/standardbeagle/codegraph/internal/graphstore"
	"github.com/standardbeagle/codegraph/internal/indexer"
	"github.com/standardbeagle/codegraph/internal/learning"
	"github.com/standardbeagle/codegraph/internal/logging"
	"github.com/standardbeagle/codegraph/internal/session"
	"github.com/standardbeagle/codegraph/internal/storage"
	"github.com/standardbeagle/codegraph/internal/types"
)

// Server wires every codegraph subsystem behind the tools/call dispatch
// table. One Server serves exactly one project root (spec.md §1 "not
// multi-writer").
//
// Subsystem construction is deferred: New only builds the static tool
// registry. The project root is detected, and every store/graph/indexer
// opened, on the first tools/call (spec.md §6 "detection is deferred until
// the first tool call after initialize so the server can respect a
// client-supplied root" — the client's cwd at the moment it issues its
// first real call, not the moment it starts the subprocess).
type Server struct {
	build    func() (Deps, error)
	initOnce sync.Once
	initErr  error

	root  string
	paths config.Paths
	cfg   func() *config.Config

	codeDB     *storage.CodeDB
	learningDB *storage.LearningDB
	graph      *graphstore.Graph
	indexer    *indexer.Indexer
	sessions   *session.Manager
	learn      *learning.Store

	tools map[string]toolEntry
}

type toolEntry struct {
	descriptor toolDescriptor
	handler    func(s *Server, args json.RawMessage) (any, error)
}

// Deps collects the already-constructed subsystem handles New wires
// together. Constructing these (opening the databases, building the
// indexer, loading the session) is cmd/codegraph's job, not this package's.
type Deps struct {
	Root       string
	Paths      config.Paths
	Config     func() *config.Config
	CodeDB     *storage.CodeDB
	LearningDB *storage.LearningDB
	Graph      *graphstore.Graph
	Indexer    *indexer.Indexer
	Sessions   *session.Manager
	Learn      *learning.Store
}

// New constructs a Server and registers its tool table. build is called at
// most once, the first time a "tools/call" request arrives, to open the
// project's stores and wire every subsystem together.
func New(build func() (Deps, error)) *Server {
	s := &Server{build: build}
	s.tools = s.registerTools()
	return s
}

// ensureReady runs build exactly once and reports whether it succeeded.
// tools/list and initialize never call this — only tools/call needs a
// resolved project root and open databases.
func (s *Server) ensureReady() error {
	s.initOnce.Do(func() {
		d, err := s.build()
		if err != nil {
			s.initErr = err
			return
		}
		s.root = d.Root
		s.paths = d.Paths
		s.cfg = d.Config
		s.codeDB = d.CodeDB
		s.learningDB = d.LearningDB
		s.graph = d.Graph
		s.indexer = d.Indexer
		s.sessions = d.Sessions
		s.learn = d.Learn
	})
	return s.initErr
}

// Serve runs the request/response loop: read newline-delimited JSON-RPC
// requests from r, process each to completion, write the response to w
// (spec.md §5 "Single-threaded cooperative at the request-dispatch layer").
// Serve returns when r is exhausted (the client closed the stream) or ctx
// is canceled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	enc := json.NewEncoder(w)
	log := logging.Get(logging.CategoryRPC)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handleLine(line, log)
		if resp != nil {
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
		if s.initErr != nil {
			// Project initialization (spec.md §6, deferred to the first
			// tools/call) failed fatally: the client already got an error
			// reply above, but nothing further can succeed, so stop serving.
			return fmt.Errorf("%w: %v", errFatalInit, s.initErr)
		}
	}
	return scanner.Err()
}

// errFatalInit marks a Serve error caused by a failed project initialization
// rather than a transport error, so main can map it to exit code 1 instead
// of the generic stream-close path (spec.md §6 exit codes).
var errFatalInit = errors.New("codegraph: fatal project initialization error")

// IsFatalInit reports whether err (as returned by Serve) was caused by a
// failed project initialization, for main's exit-code mapping.
func IsFatalInit(err error) bool {
	return errors.Is(err, errFatalInit)
}

func (s *Server) handleLine(line []byte, log *zap.Logger) *response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		log.Warn("malformed request", zap.Error(err))
		return &response{JSONRPC: "2.0", Error: &rpcError{Code: codeParseError, Message: "parse error: " + err.Error()}}
	}

	// A notification (no id, e.g. notifications/initialized) gets no reply.
	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	result, rpcErr := s.dispatch(req.Method, req.Params)
	if isNotification {
		return nil
	}
	if rpcErr != nil {
		return &response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return &response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) dispatch(method string, params json.RawMessage) (any, *rpcError) {
	switch method {
	case "initialize":
		return initializeResult{
			ProtocolVersion: "2024-11-05",
			Capabilities:    capabilities{Tools: true},
			ServerInfo:      serverInfo{Name: "codegraph", Version: "0.1.0"},
		}, nil
	case "notifications/initialized", "ping":
		return map[string]any{}, nil
	case "tools/list":
		return map[string]any{"tools": s.toolDescriptors()}, nil
	case "tools/call":
		return s.callTool(params)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %q", method)}
	}
}

func (s *Server) toolDescriptors() []toolDescriptor {
	out := make([]toolDescriptor, 0, len(s.tools))
	for _, name := range toolOrder {
		if entry, ok := s.tools[name]; ok {
			out = append(out, entry.descriptor)
		}
	}
	return out
}

func (s *Server) callTool(raw json.RawMessage) (any, *rpcError) {
	var p toolCallParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid tools/call params: " + err.Error()}
	}

	if err := s.ensureReady(); err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: "project initialization failed: " + err.Error()}
	}

	entry, ok := s.tools[p.Name]
	if !ok {
		return nil, &rpcError{Code: codeUserError, Message: fmt.Sprintf("unknown tool %q", p.Name)}
	}

	args := p.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	result, err := entry.handler(s, args)
	if err != nil {
		var userErr *types.UserError
		if errors.As(err, &userErr) {
			return nil, &rpcError{Code: codeUserError, Message: userErr.Error()}
		}
		// Recoverable internal error (spec.md §7): logged, the operation
		// reports partial failure through the tool result rather than
		// aborting the JSON-RPC exchange.
		return toolCallResult{
			Content: []toolContent{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}

	text, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return nil, &rpcError{Code: codeInternalError, Message: "marshal tool result: " + marshalErr.Error()}
	}
	return toolCallResult{Content: []toolContent{{Type: "text", Text: string(text)}}}, nil
}
