// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"strings"

	"github.com/gomlx/dynexport/pkg/core/values"
)

// ArgKind enumerates the kinds of node arguments.
type ArgKind int

const (
	ArgNode ArgKind = iota
	ArgLiteral
	ArgList

	// ArgSlice has 3 items: start, stop and step. Each is a node (SymInt) or a literal (Int or None).
	ArgSlice
)

// Arg is an argument of a call or output node: a reference to a previous node, a literal, or
// a list (or slice) of arguments.
type Arg struct {
	Kind    ArgKind
	Node    *Node
	Literal values.Literal
	Items   []Arg
}

// NodeArg returns an argument referring to node.
func NodeArg(node *Node) Arg { return Arg{Kind: ArgNode, Node: node} }

// LiteralArg returns a literal argument.
func LiteralArg(l values.Literal) Arg { return Arg{Kind: ArgLiteral, Literal: l} }

// ListArg returns a list argument.
func ListArg(items ...Arg) Arg { return Arg{Kind: ArgList, Items: items} }

// SliceArg returns a slice argument.
func SliceArg(start, stop, step Arg) Arg { return Arg{Kind: ArgSlice, Items: []Arg{start, stop, step}} }

// Nodes returns all nodes referenced by the argument, recursively.
func (a Arg) Nodes() []*Node {
	switch a.Kind {
	case ArgNode:
		return []*Node{a.Node}
	case ArgList, ArgSlice:
		var nodes []*Node
		for _, item := range a.Items {
			nodes = append(nodes, item.Nodes()...)
		}
		return nodes
	}
	return nil
}

// Map returns a copy of the argument with every referenced node replaced by fn(node).
func (a Arg) Map(fn func(node *Node) Arg) Arg {
	switch a.Kind {
	case ArgNode:
		return fn(a.Node)
	case ArgList, ArgSlice:
		items := make([]Arg, len(a.Items))
		for ii, item := range a.Items {
			items[ii] = item.Map(fn)
		}
		return Arg{Kind: a.Kind, Items: items}
	}
	return a
}

// String implements fmt.Stringer.
func (a Arg) String() string {
	switch a.Kind {
	case ArgNode:
		return "%" + a.Node.Name()
	case ArgLiteral:
		return a.Literal.String()
	case ArgSlice:
		parts := make([]string, 3)
		for ii, item := range a.Items {
			if item.Kind != ArgLiteral || !item.Literal.IsNone() {
				parts[ii] = item.String()
			}
		}
		return "slice(" + strings.Join(parts, ":") + ")"
	}
	parts := make([]string, len(a.Items))
	for ii, item := range a.Items {
		parts[ii] = item.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
