package parser

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

func (p *Parser) parseRust(ctx context.Context, relPath string, src []byte) (Result, error) {
	tree, err := parseWithCtx(ctx, p.rs, rust.GetLanguage(), src)
	if err != nil {
		return Result{}, err
	}
	defer tree.Close()

	b := newScopeBuilder(relPath, src)
	types := make(map[string]string) // bare type name -> its symbol id
	b.walkRust(tree.RootNode(), "", types)
	return b.result, nil
}

func (b *scopeBuilder) walkRust(n *sitter.Node, scopeID string, types map[string]string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}

		switch child.Type() {
		case "struct_item":
			id, name := b.rustTypeItem(child, scopeID, KindStruct)
			if id != "" {
				types[name] = id
			}

		case "enum_item":
			id, name := b.rustTypeItem(child, scopeID, KindEnum)
			if id != "" {
				types[name] = id
			}

		case "trait_item":
			id, name := b.rustTypeItem(child, scopeID, KindTrait)
			if id != "" {
				types[name] = id
			}

		case "type_item":
			b.rustTypeItem(child, scopeID, KindType)

		case "const_item":
			b.rustTypeItem(child, scopeID, KindConst)

		case "static_item":
			b.rustTypeItem(child, scopeID, KindStatic)

		case "impl_item":
			b.rustImplItem(child, scopeID, types)

		case "function_item":
			id := b.rustFuncItem(child, scopeID, "")
			if body := child.ChildByFieldName("body"); body != nil {
				b.collectRustCalls(body, id)
			}

		case "mod_item":
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			id := childID(scopeID, b.relPath, b.text(nameNode))
			start, end := b.lineRange(child)
			b.result.Symbols = append(b.result.Symbols, Symbol{
				ID: id, Name: b.text(nameNode), Kind: KindModule, StartLine: start, EndLine: end,
				Signature: oneLineSignature(b.text(child)),
			})
			if body := child.ChildByFieldName("body"); body != nil {
				b.walkRust(body, id, types)
			}

		default:
			b.walkRust(child, scopeID, types)
		}
	}
}

func (b *scopeBuilder) rustTypeItem(n *sitter.Node, scopeID string, kind Kind) (string, string) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return "", ""
	}
	name := b.text(nameNode)
	id := childID(scopeID, b.relPath, name)
	start, end := b.lineRange(n)
	b.result.Symbols = append(b.result.Symbols, Symbol{
		ID: id, Name: name, Kind: kind, StartLine: start, EndLine: end,
		Signature: oneLineSignature(b.text(n)),
	})
	return id, name
}

// rustImplItem emits the impl block's methods with the implemented type as
// their scope, and records an `implements` reference when the block targets
// a trait, matching the teacher's parseImplItem.
func (b *scopeBuilder) rustImplItem(n *sitter.Node, scopeID string, types map[string]string) {
	typeNode := n.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	typeName := b.text(typeNode)
	if idx := strings.Index(typeName, "<"); idx > 0 {
		typeName = typeName[:idx]
	}

	parentID, ok := types[typeName]
	if !ok {
		parentID = childID(scopeID, b.relPath, typeName)
	}

	traitNode := n.ChildByFieldName("trait")

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child == nil || child.Type() != "function_item" {
			continue
		}
		id := b.rustFuncItem(child, parentID, typeName)
		if traitNode != nil {
			b.result.References = append(b.result.References, Reference{
				Kind: RefImplements, Target: b.text(traitNode), FromID: id,
			})
		}
		if fnBody := child.ChildByFieldName("body"); fnBody != nil {
			b.collectRustCalls(fnBody, id)
		}
	}
}

func (b *scopeBuilder) rustFuncItem(n *sitter.Node, scopeID, receiverType string) string {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return scopeID
	}
	name := b.text(nameNode)
	id := childID(scopeID, b.relPath, name)
	kind := KindFunction
	if receiverType != "" {
		kind = KindMethod
	}
	start, end := b.lineRange(n)
	b.result.Symbols = append(b.result.Symbols, Symbol{
		ID: id, Name: name, Kind: kind, StartLine: start, EndLine: end,
		Signature: oneLineSignature(b.text(n)),
	})
	return id
}

func (b *scopeBuilder) collectRustCalls(n *sitter.Node, scopeID string) {
	if n == nil {
		return
	}
	if n.Type() == "call_expression" {
		fn := n.ChildByFieldName("function")
		if fn != nil {
			name := rustCallName(b.text(fn))
			if name != "" {
				b.result.References = append(b.result.References, Reference{
					Kind: RefCalls, Target: name, CallsiteLine: int(n.StartPoint().Row) + 1, FromID: scopeID,
				})
			}
		}
	}
	if n.Type() == "function_item" {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		b.collectRustCalls(n.Child(i), scopeID)
	}
}

func rustCallName(expr string) string {
	if idx := strings.LastIndex(expr, "::"); idx >= 0 {
		return expr[idx+2:]
	}
	if idx := strings.LastIndex(expr, "."); idx >= 0 {
		return expr[idx+1:]
	}
	return expr
}
