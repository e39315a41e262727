// Package logging provides category-tagged structured logging for codegraph.
//
// All output goes to a file under the project's hidden config directory;
// codegraph's stdout is the JSON-RPC channel and must never receive a log
// line. Only fatal startup errors (see cmd/codegraph) are allowed on stderr.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category groups log lines by subsystem, mirroring the component split in
// SPEC_FULL.md §2.
type Category string

const (
	CategoryStorage Category = "storage"
	CategoryGraph   Category = "graph"
	CategoryParser  Category = "parser"
	CategoryIndexer Category = "indexer"
	CategorySession Category = "session"
	CategoryLearn   Category = "learning"
	CategoryExport  Category = "export"
	CategoryRPC     Category = "rpc"
	CategoryConfig  Category = "config"
	CategoryBoot    Category = "boot"
)

var (
	mu      sync.RWMutex
	base    *zap.Logger
	file    *os.File
	started bool
)

// Init opens the log file under <configDir>/logs/codegraph.log and wires a
// JSON zapcore to it. Safe to call once at process start; subsequent calls
// are no-ops.
func Init(configDir string) error {
	mu.Lock()
	defer mu.Unlock()

	if started {
		return nil
	}

	logsDir := filepath.Join(configDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logsDir, "codegraph.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.DebugLevel)

	base = zap.New(core)
	file = f
	started = true
	return nil
}

// Close flushes and releases the underlying log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if base != nil {
		_ = base.Sync()
	}
	if file != nil {
		_ = file.Close()
	}
	started = false
}

// Get returns a zap logger tagged with the given category. Safe to call
// before Init; in that case the returned logger discards output.
func Get(category Category) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if base == nil {
		return zap.NewNop()
	}
	return base.With(zap.String("category", string(category)))
}
