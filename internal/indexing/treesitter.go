package indexing

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// nodeKinds maps tree-sitter Go grammar node types to the symbol kinds
// the pipeline understands.
var nodeKinds = map[string]string{
	"function_declaration": "function",
	"method_declaration":   "method",
	"type_declaration":     "class",
	"const_declaration":    "variable",
	"var_declaration":      "variable",
	"import_declaration":   "import",
}

// GoSymbolParser is the one concrete SymbolParser backend: it extracts
// top-level functions, methods, type declarations and package-level
// const/var groups from Go source via tree-sitter's Go grammar.
type GoSymbolParser struct{}

func NewGoSymbolParser() *GoSymbolParser { return &GoSymbolParser{} }

func (p *GoSymbolParser) Supports(language string) bool { return language == "go" }

func (p *GoSymbolParser) Parse(ctx context.Context, content []byte, language string) ([]ParsedSymbol, error) {
	if language != "go" {
		return nil, fmt.Errorf("indexing: GoSymbolParser does not support %q", language)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("indexing: parse go source: %w", err)
	}
	if tree == nil {
		return nil, fmt.Errorf("indexing: parse go source: nil tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	var symbols []ParsedSymbol

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		kind, ok := nodeKinds[child.Type()]
		if !ok {
			continue
		}
		for _, sym := range p.extractNode(child, content, kind) {
			symbols = append(symbols, sym)
		}
	}

	return symbols, nil
}

func (p *GoSymbolParser) extractNode(n *sitter.Node, source []byte, kind string) []ParsedSymbol {
	switch kind {
	case "variable":
		return p.extractDeclGroup(n, source)
	case "import":
		return p.extractImports(n, source)
	default:
		name := p.extractName(n, source)
		if name == "" {
			return nil
		}
		return []ParsedSymbol{{
			Name:          name,
			Kind:          kind,
			StartLine:     int(n.StartPoint().Row) + 1,
			EndLine:       int(n.EndPoint().Row) + 1,
			Signature:     p.extractSignature(n, source, kind),
			Documentation: p.precedingComment(n, source),
		}}
	}
}

func (p *GoSymbolParser) extractName(n *sitter.Node, source []byte) string {
	if id := n.ChildByFieldName("name"); id != nil {
		return id.Content(source)
	}
	// method_declaration's receiver comes before the name field in some
	// grammar versions; fall back to the first identifier child.
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "identifier" || c.Type() == "field_identifier" {
			return c.Content(source)
		}
	}
	return ""
}

func (p *GoSymbolParser) extractSignature(n *sitter.Node, source []byte, kind string) string {
	if kind != "function" && kind != "method" {
		return ""
	}
	params := n.ChildByFieldName("parameters")
	result := n.ChildByFieldName("result")
	sig := p.extractName(n, source)
	if params != nil {
		sig += params.Content(source)
	}
	if result != nil {
		sig += " " + result.Content(source)
	}
	return sig
}

// extractDeclGroup pulls one ParsedSymbol per bound identifier out of a
// top-level const/var declaration, which may bind several names at once.
func (p *GoSymbolParser) extractDeclGroup(n *sitter.Node, source []byte) []ParsedSymbol {
	var out []ParsedSymbol
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if t := node.Type(); t == "const_spec" || t == "var_spec" {
			// Only a spec's direct identifier children are bound names;
			// identifiers inside its type or value expressions are not.
			for i := 0; i < int(node.ChildCount()); i++ {
				if c := node.Child(i); c.Type() == "identifier" {
					out = append(out, ParsedSymbol{
						Name:      c.Content(source),
						Kind:      "variable",
						StartLine: int(n.StartPoint().Row) + 1,
						EndLine:   int(n.EndPoint().Row) + 1,
					})
				}
			}
			return
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(n)
	return out
}

// extractImports returns one ParsedSymbol per imported path in an
// import_declaration, stripping the surrounding quotes tree-sitter
// leaves on interpreted_string_literal nodes.
func (p *GoSymbolParser) extractImports(n *sitter.Node, source []byte) []ParsedSymbol {
	var out []ParsedSymbol
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node.Type() == "interpreted_string_literal" {
			path := strings.Trim(node.Content(source), `"`)
			out = append(out, ParsedSymbol{
				Name:      path,
				Kind:      "import",
				StartLine: int(n.StartPoint().Row) + 1,
				EndLine:   int(n.EndPoint().Row) + 1,
			})
			return
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(n)
	return out
}

// precedingComment walks backward from a node's first line to collect
// the contiguous block of "//" comment lines immediately above it.
func (p *GoSymbolParser) precedingComment(n *sitter.Node, source []byte) string {
	lineStart := int(n.StartByte())
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart == 0 {
		return ""
	}

	var lines []string
	pos := lineStart - 1
	for pos > 0 {
		end := pos
		pos--
		for pos > 0 && source[pos] != '\n' {
			pos--
		}
		start := pos
		if pos > 0 {
			start++
		}
		line := strings.TrimSpace(string(source[start:end]))
		if !strings.HasPrefix(line, "//") {
			break
		}
		lines = append([]string{strings.TrimPrefix(line, "//")}, lines...)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
