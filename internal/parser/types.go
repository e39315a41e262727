package parser

// Language is one of the five tags codegraph's parser accepts (spec.md §4.3).
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangRust       Language = "rust"
)

// Kind mirrors the subset of types.SymbolKind a parser can directly observe.
// Kept as a separate string type here (rather than importing internal/types)
// so the parser package has zero dependency on the storage data model; the
// indexer maps Kind to types.SymbolKind when writing nodes.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindTrait     Kind = "trait"
	KindInterface Kind = "interface"
	KindType      Kind = "type"
	KindConst     Kind = "const"
	KindStatic    Kind = "static"
	KindVariable  Kind = "variable"
	KindModule    Kind = "module"
)

// RefKind mirrors the subset of reference relations a parser extracts.
type RefKind string

const (
	RefCalls      RefKind = "calls"
	RefImports    RefKind = "imports"
	RefInherits   RefKind = "inherits"
	RefImplements RefKind = "implements"
)

// Symbol is one parsed declaration (spec.md §4.3).
type Symbol struct {
	ID        string // fully scoped id, built by the nesting rule (spec.md §4.3)
	Name      string
	Kind      Kind
	StartLine int
	EndLine   int
	Signature string
	startByte uint32
	endByte   uint32
}

// Reference is one parsed use of a name (spec.md §4.3).
type Reference struct {
	Kind         RefKind
	Target       string // a bare name; the indexer resolves or stubs it
	CallsiteLine int
	FromID       string // the enclosing symbol's scoped id, or the file id
}

// Result is a parser's output for one file: a symbol list and a reference
// list. Symbols carry line ranges; their byte-offset fields are never set,
// so neither list is keyed by byte range.
type Result struct {
	Symbols    []Symbol
	References []Reference
}
