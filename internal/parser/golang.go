package parser

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

func (p *Parser) parseGo(ctx context.Context, relPath string, src []byte) (Result, error) {
	tree, err := parseWithCtx(ctx, p.go_, golang.GetLanguage(), src)
	if err != nil {
		return Result{}, err
	}
	defer tree.Close()

	b := newScopeBuilder(relPath, src)
	b.walkGo(tree.RootNode(), "")
	return b.result, nil
}

func (b *scopeBuilder) walkGo(n *sitter.Node, scopeID string) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}

		bodyScope := scopeID
		switch child.Type() {
		case "function_declaration":
			bodyScope = b.goFunc(child, scopeID, "")
		case "method_declaration":
			recv := child.ChildByFieldName("receiver")
			recvType := ""
			if recv != nil {
				recvType = goReceiverType(b.text(recv))
			}
			bodyScope = b.goFunc(child, scopeID, recvType)
		case "type_declaration":
			b.goTypeDecl(child, scopeID)
		case "const_declaration", "var_declaration":
			b.goValueDecl(child, scopeID)
		case "import_declaration":
			b.goImports(child)
		default:
			b.walkGo(child, scopeID)
			continue
		}
		// collect the calls inside a function or method body, attributed
		// to that declaration's own id.
		b.walkGoBody(child, bodyScope)
	}
}

// walkGoBody walks into a declaration's body to collect call references,
// attributing them to parentScope (walkGo passes the declaration's own id).
// Nested function literals are not emitted as symbols; calls inside them are
// attributed to the enclosing declaration.
func (b *scopeBuilder) walkGoBody(n *sitter.Node, parentScope string) {
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	b.collectGoCalls(body, parentScope)
}

func (b *scopeBuilder) collectGoCalls(n *sitter.Node, scopeID string) {
	if n == nil {
		return
	}
	if n.Type() == "call_expression" {
		fn := n.ChildByFieldName("function")
		if fn != nil {
			name := goCallName(b.text(fn))
			if name != "" {
				b.result.References = append(b.result.References, Reference{
					Kind: RefCalls, Target: name, CallsiteLine: int(n.StartPoint().Row) + 1, FromID: scopeID,
				})
			}
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		b.collectGoCalls(n.Child(i), scopeID)
	}
}

func goCallName(expr string) string {
	// "pkg.Func(...)" -> "Func"; "Func(...)" -> "Func"
	if idx := lastIndexByte(expr, '.'); idx >= 0 {
		return expr[idx+1:]
	}
	return expr
}

func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func goReceiverType(recv string) string {
	// recv looks like "(c *Client)" or "(c Client)"
	s := recv
	for len(s) > 0 && (s[0] == '(' || s[0] == ' ') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ')' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	fields := splitFields(s)
	if len(fields) == 0 {
		return ""
	}
	t := fields[len(fields)-1]
	for len(t) > 0 && t[0] == '*' {
		t = t[1:]
	}
	return t
}

func splitFields(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func (b *scopeBuilder) goFunc(n *sitter.Node, scopeID, receiverType string) string {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return scopeID
	}
	name := b.text(nameNode)
	id := childID(scopeID, b.relPath, name)
	kind := KindFunction
	if receiverType != "" {
		id = childID(scopeID, b.relPath, receiverType+"::"+name)
		kind = KindMethod
	}
	start, end := b.lineRange(n)
	b.result.Symbols = append(b.result.Symbols, Symbol{
		ID: id, Name: name, Kind: kind, StartLine: start, EndLine: end,
		Signature: oneLineSignature(b.text(n)),
	})

	if receiverType != "" {
		b.result.References = append(b.result.References, Reference{
			Kind: RefImplements, Target: receiverType, FromID: id,
		})
	}
	return id
}

func (b *scopeBuilder) goTypeDecl(n *sitter.Node, scopeID string) {
	for i := 0; i < int(n.ChildCount()); i++ {
		spec := n.Child(i)
		if spec == nil || spec.Type() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := b.text(nameNode)
		id := childID(scopeID, b.relPath, name)
		kind := KindType
		typeNode := spec.ChildByFieldName("type")
		if typeNode != nil {
			switch typeNode.Type() {
			case "struct_type":
				kind = KindStruct
			case "interface_type":
				kind = KindInterface
			}
		}
		start, end := b.lineRange(spec)
		b.result.Symbols = append(b.result.Symbols, Symbol{
			ID: id, Name: name, Kind: kind, StartLine: start, EndLine: end,
			Signature: oneLineSignature(b.text(spec)),
		})
	}
}

func (b *scopeBuilder) goValueDecl(n *sitter.Node, scopeID string) {
	kind := KindVariable
	if n.Type() == "const_declaration" {
		kind = KindConst
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		spec := n.Child(i)
		if spec == nil || (spec.Type() != "var_spec" && spec.Type() != "const_spec") {
			continue
		}
		for j := 0; j < int(spec.ChildCount()); j++ {
			nameNode := spec.Child(j)
			if nameNode == nil || nameNode.Type() != "identifier" {
				continue
			}
			name := b.text(nameNode)
			id := childID(scopeID, b.relPath, name)
			start, end := b.lineRange(spec)
			b.result.Symbols = append(b.result.Symbols, Symbol{
				ID: id, Name: name, Kind: kind, StartLine: start, EndLine: end,
				Signature: oneLineSignature(b.text(spec)),
			})
		}
	}
}

func (b *scopeBuilder) goImports(n *sitter.Node) {
	walkImportSpecs(n, func(spec *sitter.Node) {
		pathNode := spec.ChildByFieldName("path")
		if pathNode == nil {
			return
		}
		path := trimQuotes(b.text(pathNode))
		b.result.References = append(b.result.References, Reference{
			Kind: RefImports, Target: path, CallsiteLine: int(spec.StartPoint().Row) + 1,
		})
	})
}

func walkImportSpecs(n *sitter.Node, fn func(*sitter.Node)) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if child.Type() == "import_spec" {
			fn(child)
		} else {
			walkImportSpecs(child, fn)
		}
	}
}

func trimQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'' || s[0] == '`') {
		return s[1 : len(s)-1]
	}
	return s
}
