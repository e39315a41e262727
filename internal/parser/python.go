package parser

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

func (p *Parser) parsePython(ctx context.Context, relPath string, src []byte) (Result, error) {
	tree, err := parseWithCtx(ctx, p.py, python.GetLanguage(), src)
	if err != nil {
		return Result{}, err
	}
	defer tree.Close()

	b := newScopeBuilder(relPath, src)
	b.walkPython(tree.RootNode(), "")
	return b.result, nil
}

func (b *scopeBuilder) walkPython(n *sitter.Node, scopeID string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}

		switch child.Type() {
		case "class_definition":
			id := b.pyClassDef(child, scopeID)
			body := child.ChildByFieldName("body")
			if body != nil {
				b.walkPython(body, id)
			}

		case "function_definition":
			id := b.pyFuncDef(child, scopeID)
			body := child.ChildByFieldName("body")
			if body != nil {
				b.collectPyCalls(body, id)
				b.walkPython(body, id)
			}

		case "decorated_definition":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				inner := child.NamedChild(j)
				switch inner.Type() {
				case "function_definition":
					id := b.pyFuncDef(inner, scopeID)
					body := inner.ChildByFieldName("body")
					if body != nil {
						b.collectPyCalls(body, id)
						b.walkPython(body, id)
					}
				case "class_definition":
					id := b.pyClassDef(inner, scopeID)
					body := inner.ChildByFieldName("body")
					if body != nil {
						b.walkPython(body, id)
					}
				}
			}

		case "import_statement", "import_from_statement":
			b.pyImport(child)

		default:
			b.walkPython(child, scopeID)
		}
	}
}

func (b *scopeBuilder) pyClassDef(n *sitter.Node, scopeID string) string {
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

	if superclasses := n.ChildByFieldName("superclasses"); superclasses != nil {
		for i := 0; i < int(superclasses.NamedChildCount()); i++ {
			base := superclasses.NamedChild(i)
			if base == nil {
				continue
			}
			b.result.References = append(b.result.References, Reference{
				Kind: RefInherits, Target: b.text(base), FromID: id,
			})
		}
	}
	return id
}

func (b *scopeBuilder) pyFuncDef(n *sitter.Node, scopeID string) string {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return scopeID
	}
	name := b.text(nameNode)
	id := childID(scopeID, b.relPath, name)
	kind := KindFunction
	if scopeID != "" {
		kind = KindMethod
	}
	start, end := b.lineRange(n)
	b.result.Symbols = append(b.result.Symbols, Symbol{
		ID: id, Name: name, Kind: kind, StartLine: start, EndLine: end,
		Signature: oneLineSignature(b.text(n)),
	})
	return id
}

func (b *scopeBuilder) collectPyCalls(n *sitter.Node, scopeID string) {
	if n == nil {
		return
	}
	if n.Type() == "call" {
		fn := n.ChildByFieldName("function")
		if fn != nil {
			name := pyCallName(b.text(fn))
			if name != "" {
				b.result.References = append(b.result.References, Reference{
					Kind: RefCalls, Target: name, CallsiteLine: int(n.StartPoint().Row) + 1, FromID: scopeID,
				})
			}
		}
	}
	// stop recursing into nested defs; their own walk will collect calls
	// within their own scope.
	if n.Type() == "function_definition" || n.Type() == "class_definition" {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		b.collectPyCalls(n.Child(i), scopeID)
	}
}

func pyCallName(expr string) string {
	if idx := strings.LastIndex(expr, "."); idx >= 0 {
		return expr[idx+1:]
	}
	return expr
}

func (b *scopeBuilder) pyImport(n *sitter.Node) {
	line := int(n.StartPoint().Row) + 1
	if n.Type() == "import_from_statement" {
		if mod := n.ChildByFieldName("module_name"); mod != nil {
			b.result.References = append(b.result.References, Reference{
				Kind: RefImports, Target: b.text(mod), CallsiteLine: line,
			})
		}
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		name := b.text(child)
		name = strings.TrimSuffix(name, " as "+lastPart(name))
		b.result.References = append(b.result.References, Reference{
			Kind: RefImports, Target: name, CallsiteLine: line,
		})
	}
}

func lastPart(s string) string {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return s
	}
	return parts[len(parts)-1]
}
