// Package planlang implements the tree-walking plan-language evaluator: a
// small Lisp-like expression language whose only host-observable effects
// are capability invocation and step boundaries. The file layout
// (ast.go/parser.go/eval.go) splits the small DSL into node/tokenizer/eval
// concerns; the grammar itself is hand-rolled recursive descent, since
// exact surface syntax is a presentation detail rather than a semantic one.
package planlang

import "github.com/mandubian/ccos-sub014/value"

// NodeKind tags the variant of an AST node.
type NodeKind int

const (
	NodeLiteral NodeKind = iota
	NodeSymbol
	NodeList
)

// Node is a single parsed expression: a literal value, a bare symbol
// reference, or a parenthesized list whose first element determines
// whether it's a special form or a function application.
type Node struct {
	Kind  NodeKind
	Lit   value.Value
	Sym   string
	Items []*Node
	Pos   int // byte offset in source, for error messages
}

func litNode(v value.Value, pos int) *Node { return &Node{Kind: NodeLiteral, Lit: v, Pos: pos} }
func symNode(s string, pos int) *Node      { return &Node{Kind: NodeSymbol, Sym: s, Pos: pos} }
func listNode(items []*Node, pos int) *Node {
	return &Node{Kind: NodeList, Items: items, Pos: pos}
}
