// Package parser extracts symbols and references from source bytes using
// tree-sitter, one dedicated *sitter.Parser per language tag (spec.md §4.3).
//
// Grounded on codenerd's internal/world/ast_treesitter.go TreeSitterParser:
// one *sitter.Parser field per language, ParseCtx against the language's
// grammar, then a hand-walked recursive descent over *sitter.Node using
// ChildByFieldName to pull out names/params/results. Codegraph keeps that
// walking style (rather than sitter.Query S-expressions) and generalizes it
// to emit codegraph's Symbol/Reference shape with nested scope ids instead
// of the teacher's flat Datalog-fact tuples.
package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Parser holds one tree-sitter parser per supported language.
type Parser struct {
	go_ *sitter.Parser
	py  *sitter.Parser
	js  *sitter.Parser
	ts  *sitter.Parser
	rs  *sitter.Parser
}

// New constructs a Parser with one tree-sitter sub-parser per language.
func New() *Parser {
	return &Parser{
		go_: sitter.NewParser(),
		py:  sitter.NewParser(),
		js:  sitter.NewParser(),
		ts:  sitter.NewParser(),
		rs:  sitter.NewParser(),
	}
}

// Close releases resources held by every sub-parser.
func (p *Parser) Close() {
	p.go_.Close()
	p.py.Close()
	p.js.Close()
	p.ts.Close()
	p.rs.Close()
}

// Supported reports whether language is one of the five tags codegraph
// knows how to parse (spec.md §4.4 "Unknown-language files are silently
// skipped").
func Supported(language string) bool {
	switch Language(language) {
	case LangGo, LangPython, LangJavaScript, LangTypeScript, LangRust:
		return true
	default:
		return false
	}
}

// Parse dispatches to the language-specific extractor (spec.md §4.3).
func (p *Parser) Parse(ctx context.Context, relPath string, language Language, source []byte) (Result, error) {
	switch language {
	case LangGo:
		return p.parseGo(ctx, relPath, source)
	case LangPython:
		return p.parsePython(ctx, relPath, source)
	case LangJavaScript:
		return p.parseJSOrTS(ctx, relPath, source, p.js, javascript.GetLanguage())
	case LangTypeScript:
		return p.parseJSOrTS(ctx, relPath, source, p.ts, typescript.GetLanguage())
	case LangRust:
		return p.parseRust(ctx, relPath, source)
	default:
		return Result{}, fmt.Errorf("unsupported language: %s", language)
	}
}

// scopeBuilder accumulates symbols/references while walking a tree,
// tracking the id of the innermost enclosing symbol (spec.md §4.3
// "Scoping rule").
type scopeBuilder struct {
	relPath string
	src     []byte
	result  Result
}

func newScopeBuilder(relPath string, src []byte) *scopeBuilder {
	return &scopeBuilder{relPath: relPath, src: src}
}

func (b *scopeBuilder) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(b.src)
}

func (b *scopeBuilder) lineRange(n *sitter.Node) (int, int) {
	return int(n.StartPoint().Row) + 1, int(n.EndPoint().Row) + 1
}

// childID returns parentID::name, or relPath::name when parentID is empty
// (top-level), per spec.md §4.3's nesting rule.
func childID(parentID, relPath, name string) string {
	if parentID == "" {
		return relPath + "::" + name
	}
	return parentID + "::" + name
}

func oneLineSignature(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		s = s[:idx]
	}
	const maxLen = 200
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

func parseWithCtx(ctx context.Context, p *sitter.Parser, lang *sitter.Language, src []byte) (*sitter.Tree, error) {
	p.SetLanguage(lang)
	return p.ParseCtx(ctx, nil, src)
}
