// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/dynexport/pkg/core/symbolic"
	"github.com/gomlx/dynexport/pkg/core/values"
)

// NodeType enumerates the kinds of nodes of a Graph.
type NodeType int

const (
	NodeTypeInvalid NodeType = iota
	NodeTypePlaceholder
	NodeTypeCallOperation
	NodeTypeGetAttribute
	NodeTypeOutput
)

var nodeTypeNames = []string{"invalid", "placeholder", "call_function", "get_attr", "output"}

// String implements fmt.Stringer.
func (t NodeType) String() string {
	if int(t) < 0 || int(t) >= len(nodeTypeNames) {
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
	return nodeTypeNames[t]
}

// Meta is the metadata recorded with a node, describing the value it produces.
type Meta struct {
	// Val is the example value produced while tracing: for tensors it carries the dtype and
	// (hint) dimensions of the output.
	Val values.Literal

	// SymDims are the symbolic dimensions of a tensor output, set only when tracing with dynamic shapes.
	SymDims []symbolic.Expr

	// Sym is the symbolic expression of an integer (SymInt) output.
	Sym *symbolic.Expr
}

// ModuleFrame identifies one level of the module hierarchy active when a node was recorded.
type ModuleFrame struct {
	// Path is the attribute path of the module, e.g. "layers.0".
	Path string

	// Type is the Go type name of the module.
	Type string
}

// Provenance records where in the user program a node was recorded.
type Provenance struct {
	StackTrace  string
	ModuleStack []ModuleFrame
}

// IsZero returns whether no provenance was recorded.
func (p Provenance) IsZero() bool {
	return p.StackTrace == "" && len(p.ModuleStack) == 0
}

// ModulePath returns the dot-joined path of the innermost module, or "" if none.
func (p Provenance) ModulePath() string {
	if len(p.ModuleStack) == 0 {
		return ""
	}
	return p.ModuleStack[len(p.ModuleStack)-1].Path
}

// Node is one entry of a Graph.
type Node struct {
	graph    *Graph
	id       NodeId
	nodeType NodeType
	name     string

	// target is the operator of a call, or the attribute name of a GetAttribute.
	target string
	args   []Arg

	// slot is the input position of a placeholder.
	slot int

	meta       Meta
	provenance Provenance
}

// Graph that holds the node.
func (n *Node) Graph() *Graph { return n.graph }

// Id is the position of the node in its graph.
func (n *Node) Id() NodeId { return n.id }

// Type of the node.
func (n *Node) Type() NodeType { return n.nodeType }

// Name is unique within the graph.
func (n *Node) Name() string { return n.name }

// Target is the operator of a call node, or the attribute name of a GetAttribute node.
func (n *Node) Target() string { return n.target }

// Args of a call or output node. The returned slice is a copy.
func (n *Node) Args() []Arg { return slices.Clone(n.args) }

// Slot is the input position of a placeholder node.
func (n *Node) Slot() int { return n.slot }

// Meta returns the metadata of the node.
func (n *Node) Meta() Meta { return n.meta }

// Provenance returns where the node was recorded.
func (n *Node) Provenance() Provenance { return n.provenance }

// IsCall returns whether the node is a call to target.
func (n *Node) IsCall(target string) bool {
	return n.nodeType == NodeTypeCallOperation && n.target == target
}

// Inputs returns the nodes referenced by the arguments, in order, possibly with repetitions.
func (n *Node) Inputs() []*Node {
	var inputs []*Node
	for _, arg := range n.args {
		inputs = append(inputs, arg.Nodes()...)
	}
	return inputs
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%%%s = %s", n.name, n.nodeType)
	switch n.nodeType {
	case NodeTypePlaceholder:
		fmt.Fprintf(&sb, "[slot=%d]", n.slot)
	case NodeTypeCallOperation:
		fmt.Fprintf(&sb, "[target=%s](%s)", n.target, argsString(n.args))
	case NodeTypeGetAttribute:
		fmt.Fprintf(&sb, "[target=%s]", n.target)
	case NodeTypeOutput:
		fmt.Fprintf(&sb, "(%s)", argsString(n.args))
	}
	if meta := n.metaString(); meta != "" {
		sb.WriteString(" -> ")
		sb.WriteString(meta)
	}
	return sb.String()
}

func (n *Node) metaString() string {
	val := n.meta.Val
	switch {
	case n.meta.Sym != nil:
		return "SymInt(" + n.meta.Sym.String() + ")"
	case val.Kind == values.KindTensor:
		dims := make([]string, val.Tensor.Rank())
		for ii, dim := range val.Tensor.Dimensions() {
			if ii < len(n.meta.SymDims) {
				dims[ii] = n.meta.SymDims[ii].String()
			} else {
				dims[ii] = fmt.Sprint(dim)
			}
		}
		return fmt.Sprintf("(%s)[%s] %s", val.Tensor.DType(), strings.Join(dims, " "),
			humanize.Bytes(uint64(val.Tensor.Memory())))
	case val.Kind == values.KindNone:
		return ""
	}
	return val.Kind.String()
}

func argsString(args []Arg) string {
	parts := make([]string, len(args))
	for ii, arg := range args {
		parts[ii] = arg.String()
	}
	return strings.Join(parts, ", ")
}
