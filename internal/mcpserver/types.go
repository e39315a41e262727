// Package mcpserver implements codegraph's JSON-RPC 2.0 tool-server shell
// (SPEC_FULL.md §4.9): newline-delimited requests over stdio, initialize,
// tools/list, and tools/call dispatch over the storage/graph/parser/indexer/
// session/learning/export packages.
//
// Grounded on codenerd's internal/mcp/types.go (MCPCapabilities, the
// jsonrpc/id/method/params envelope shape also named mcpRequest/mcpResponse
// in internal/mcp/transport_http.go) and internal/mcp/transport_stdio.go's
// line-delimited stdout read loop, with the roles inverted: the teacher
// dials out to an MCP server subprocess over stdio, codegraph *is* the
// subprocess a client dials into, so this package is a server loop reading
// requests from stdin and writing responses to stdout rather than a client
// writing requests and reading responses.
package mcpserver

import "encoding/json"

// JSON-RPC 2.0 error codes (spec.md §6; -32601 is the one spec.md calls out
// by name for unrecognized methods).
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// codeUserError is the JSON-RPC error code for "bad arguments, missing
// symbol id, unknown tool" (spec.md §7's first error tier), distinct from
// codeMethodNotFound which spec.md §6 reserves for unrecognized top-level
// JSON-RPC methods, not tool names nested inside a valid tools/call.
const codeUserError = -32000

// request mirrors a single JSON-RPC 2.0 call. ID is raw so both numeric and
// string client ids round-trip untouched (codenerd's own mcpRequest/
// mcpResponse pair hard-codes ID int; codegraph accepts either shape since
// it is now the callee, not the caller).
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// response mirrors a single JSON-RPC 2.0 reply. Exactly one of Result/Error
// is populated, per the JSON-RPC spec.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// toolDescriptor is one entry of the tools/list response, matching the
// name/description/inputSchema shape of codenerd's MCPToolSchema.
type toolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// capabilities mirrors codenerd's MCPCapabilities, reporting only the tools
// capability since codegraph exposes no resources/prompts/logging surface.
type capabilities struct {
	Tools     bool `json:"tools"`
	Resources bool `json:"resources"`
	Prompts   bool `json:"prompts"`
	Logging   bool `json:"logging"`
}

// serverInfo identifies codegraph in the initialize response.
type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// initializeResult is the result payload of the initialize method.
type initializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ServerInfo      serverInfo   `json:"serverInfo"`
}

// toolCallParams is the params shape of a tools/call request: a tool name
// plus its JSON arguments object, per codenerd's CallTool(name, arguments).
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// toolContent is one entry of a tools/call result's content array, following
// the MCP text-content convention: structured tool output is marshaled to
// JSON text rather than invented as a bespoke per-tool schema.
type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toolCallResult is the result payload of a successful tools/call.
type toolCallResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}
