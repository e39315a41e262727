package parser

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
)

func (p *Parser) parseJSOrTS(ctx context.Context, relPath string, src []byte, sp *sitter.Parser, lang *sitter.Language) (Result, error) {
	tree, err := parseWithCtx(ctx, sp, lang, src)
	if err != nil {
		return Result{}, err
	}
	defer tree.Close()

	b := newScopeBuilder(relPath, src)
	b.walkJSOrTS(tree.RootNode(), "")
	return b.result, nil
}

func (b *scopeBuilder) walkJSOrTS(n *sitter.Node, scopeID string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}

		switch child.Type() {
		case "class_declaration":
			id := b.jsClassDecl(child, scopeID)
			body := child.ChildByFieldName("body")
			if body != nil {
				b.walkJSOrTS(body, id)
			}

		case "interface_declaration":
			b.jsInterfaceDecl(child, scopeID)

		case "type_alias_declaration":
			b.jsTypeAlias(child, scopeID)

		case "function_declaration":
			id := b.jsFuncDecl(child, scopeID)
			if body := child.ChildByFieldName("body"); body != nil {
				b.collectJSCalls(body, id)
			}

		case "method_definition":
			id := b.jsMethodDef(child, scopeID)
			if body := child.ChildByFieldName("body"); body != nil {
				b.collectJSCalls(body, id)
			}

		case "lexical_declaration", "variable_declaration":
			b.jsVarDecl(child, scopeID)

		case "export_statement":
			b.walkJSOrTS(child, scopeID)

		case "import_statement":
			b.jsImport(child)

		default:
			b.walkJSOrTS(child, scopeID)
		}
	}
}

func (b *scopeBuilder) jsClassDecl(n *sitter.Node, scopeID string) string {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return scopeID
	}
	name := b.text(nameNode)
	id := childID(scopeID, b.relPath, name)
	start, end := b.lineRange(n)
	b.result.Symbols = append(b.result.Symbols, Symbol{
		ID: id, Name: name, Kind: KindClass, StartLine: start, EndLine: end,
		Signature: oneLineSignature(b.text(n)),
	})

	if heritage := n.ChildByFieldName("superclass"); heritage != nil {
		b.result.References = append(b.result.References, Reference{
			Kind: RefInherits, Target: b.text(heritage), FromID: id,
		})
	}
	return id
}

func (b *scopeBuilder) jsInterfaceDecl(n *sitter.Node, scopeID string) string {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return scopeID
	}
	name := b.text(nameNode)
	id := childID(scopeID, b.relPath, name)
	start, end := b.lineRange(n)
	b.result.Symbols = append(b.result.Symbols, Symbol{
		ID: id, Name: name, Kind: KindInterface, StartLine: start, EndLine: end,
		Signature: oneLineSignature(b.text(n)),
	})
	return id
}

func (b *scopeBuilder) jsTypeAlias(n *sitter.Node, scopeID string) string {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return scopeID
	}
	name := b.text(nameNode)
	id := childID(scopeID, b.relPath, name)
	start, end := b.lineRange(n)
	b.result.Symbols = append(b.result.Symbols, Symbol{
		ID: id, Name: name, Kind: KindType, StartLine: start, EndLine: end,
		Signature: oneLineSignature(b.text(n)),
	})
	return id
}

func (b *scopeBuilder) jsFuncDecl(n *sitter.Node, scopeID string) string {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return scopeID
	}
	name := b.text(nameNode)
	id := childID(scopeID, b.relPath, name)
	start, end := b.lineRange(n)
	b.result.Symbols = append(b.result.Symbols, Symbol{
		ID: id, Name: name, Kind: KindFunction, StartLine: start, EndLine: end,
		Signature: oneLineSignature(b.text(n)),
	})
	return id
}

func (b *scopeBuilder) jsMethodDef(n *sitter.Node, scopeID string) string {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return scopeID
	}
	name := b.text(nameNode)
	id := childID(scopeID, b.relPath, name)
	start, end := b.lineRange(n)
	b.result.Symbols = append(b.result.Symbols, Symbol{
		ID: id, Name: name, Kind: KindMethod, StartLine: start, EndLine: end,
		Signature: oneLineSignature(b.text(n)),
	})
	return id
}

// jsVarDecl picks arrow-function/function-expression initializers out of a
// const/let/var statement, matching the teacher's "might be a component"
// handling, generalized to codegraph's flat Symbol shape.
func (b *scopeBuilder) jsVarDecl(n *sitter.Node, scopeID string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil || child.Type() != "variable_declarator" {
			continue
		}
		nameNode := child.ChildByFieldName("name")
		valueNode := child.ChildByFieldName("value")
		if nameNode == nil || valueNode == nil {
			continue
		}
		switch valueNode.Type() {
		case "arrow_function", "function", "function_expression":
		default:
			continue
		}
		name := b.text(nameNode)
		id := childID(scopeID, b.relPath, name)
		start, end := b.lineRange(n)
		b.result.Symbols = append(b.result.Symbols, Symbol{
			ID: id, Name: name, Kind: KindFunction, StartLine: start, EndLine: end,
			Signature: oneLineSignature(b.text(n)),
		})
		if body := valueNode.ChildByFieldName("body"); body != nil {
			b.collectJSCalls(body, id)
		}
	}
}

func (b *scopeBuilder) collectJSCalls(n *sitter.Node, scopeID string) {
	if n == nil {
		return
	}
	if n.Type() == "call_expression" {
		fn := n.ChildByFieldName("function")
		if fn != nil {
			name := jsCallName(b.text(fn))
			if name != "" {
				b.result.References = append(b.result.References, Reference{
					Kind: RefCalls, Target: name, CallsiteLine: int(n.StartPoint().Row) + 1, FromID: scopeID,
				})
			}
		}
	}
	if n.Type() == "function_declaration" || n.Type() == "method_definition" || n.Type() == "class_declaration" {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		b.collectJSCalls(n.Child(i), scopeID)
	}
}

func jsCallName(expr string) string {
	return pyCallName(expr)
}

func (b *scopeBuilder) jsImport(n *sitter.Node) {
	src := n.ChildByFieldName("source")
	if src == nil {
		return
	}
	b.result.References = append(b.result.References, Reference{
		Kind: RefImports, Target: trimQuotes(b.text(src)), CallsiteLine: int(n.StartPoint().Row) + 1,
	})
}
