// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package pytree implements nested containers (lists, tuples and string-keyed dicts) of leaves,
// and the flatten/unflatten machinery used to pass them through graphs that only deal with flat
// lists of values.
//
// Spec is the structure of a tree without its leaves. When a tree is flattened with
// deduplication, the leaves of the Spec are indices into the flat list and can repeat: this is the
// reconstruction plan of an exported graph's outputs.
package pytree

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
)

// Kind of a tree node.
type Kind int

const (
	KindLeaf Kind = iota
	KindList
	KindTuple
	KindDict
)

var kindNames = []string{"Leaf", "List", "Tuple", "Dict"}

// String implements fmt.Stringer.
func (k Kind) String() string { return kindNames[k] }

// Tree is a nested container with leaves of type L.
//
// Dict keys keep their insertion order.
type Tree[L any] struct {
	kind     Kind
	leaf     L
	children []*Tree[L]
	keys     []string
}

// Leaf returns a tree holding a single leaf.
func Leaf[L any](leaf L) *Tree[L] {
	return &Tree[L]{kind: KindLeaf, leaf: leaf}
}

// List returns a list node.
func List[L any](children ...*Tree[L]) *Tree[L] {
	return &Tree[L]{kind: KindList, children: children}
}

// Tuple returns a tuple node.
func Tuple[L any](children ...*Tree[L]) *Tree[L] {
	return &Tree[L]{kind: KindTuple, children: children}
}

// Dict returns an empty dict node. Use Set to populate it.
func Dict[L any]() *Tree[L] {
	return &Tree[L]{kind: KindDict}
}

// Set inserts or replaces key in a dict node, and returns the dict itself for chaining.
func (t *Tree[L]) Set(key string, child *Tree[L]) *Tree[L] {
	t.assertKind(KindDict)
	if idx := slices.Index(t.keys, key); idx >= 0 {
		t.children[idx] = child
		return t
	}
	t.keys = append(t.keys, key)
	t.children = append(t.children, child)
	return t
}

// Append a child to a list node.
func (t *Tree[L]) Append(child *Tree[L]) {
	t.assertKind(KindList)
	t.children = append(t.children, child)
}

func (t *Tree[L]) assertKind(kinds ...Kind) {
	if !slices.Contains(kinds, t.kind) {
		exceptions.Panicf("pytree: operation requires a node of kind %v, got %s", kinds, t.kind)
	}
}

// Kind of the node.
func (t *Tree[L]) Kind() Kind { return t.kind }

// IsLeaf returns whether the node is a leaf.
func (t *Tree[L]) IsLeaf() bool { return t.kind == KindLeaf }

// Value returns the leaf value. It panics if the node is not a leaf.
func (t *Tree[L]) Value() L {
	t.assertKind(KindLeaf)
	return t.leaf
}

// Len returns the number of children of a container node.
func (t *Tree[L]) Len() int {
	t.assertKind(KindList, KindTuple, KindDict)
	return len(t.children)
}

// At returns the i-th child of a list/tuple node. Negative indices count from the end.
func (t *Tree[L]) At(i int) *Tree[L] {
	t.assertKind(KindList, KindTuple)
	if i < 0 {
		i += len(t.children)
	}
	if i < 0 || i >= len(t.children) {
		exceptions.Panicf("pytree: index %d out of range for %s of length %d", i, t.kind, len(t.children))
	}
	return t.children[i]
}

// Children returns the children of a container node, in order. For dicts it follows the keys order.
func (t *Tree[L]) Children() []*Tree[L] {
	return t.children
}

// Keys returns the keys of a dict node in insertion order.
func (t *Tree[L]) Keys() []string {
	t.assertKind(KindDict)
	return t.keys
}

// Get returns the child of a dict node with the given key, or nil if not present.
func (t *Tree[L]) Get(key string) *Tree[L] {
	t.assertKind(KindDict)
	if idx := slices.Index(t.keys, key); idx >= 0 {
		return t.children[idx]
	}
	return nil
}

// Leaves returns the leaves in depth-first, left-to-right order.
func (t *Tree[L]) Leaves() []L {
	var leaves []L
	t.Walk(func(_ string, leaf L) { leaves = append(leaves, leaf) })
	return leaves
}

// Walk visits each leaf in depth-first, left-to-right order, with a path like "[0]['a'][1]".
func (t *Tree[L]) Walk(fn func(path string, leaf L)) {
	t.walk("", fn)
}

func (t *Tree[L]) walk(path string, fn func(path string, leaf L)) {
	if t.kind == KindLeaf {
		fn(path, t.leaf)
		return
	}
	for ii, child := range t.children {
		if t.kind == KindDict {
			child.walk(fmt.Sprintf("%s[%q]", path, t.keys[ii]), fn)
		} else {
			child.walk(fmt.Sprintf("%s[%d]", path, ii), fn)
		}
	}
}

// Map returns a new tree with the same structure and each leaf converted by fn.
func Map[L, M any](t *Tree[L], fn func(L) M) *Tree[M] {
	if t.kind == KindLeaf {
		return Leaf(fn(t.leaf))
	}
	mapped := &Tree[M]{kind: t.kind, keys: slices.Clone(t.keys), children: make([]*Tree[M], len(t.children))}
	for ii, child := range t.children {
		mapped.children[ii] = Map(child, fn)
	}
	return mapped
}

// String implements fmt.Stringer.
func (t *Tree[L]) String() string {
	switch t.kind {
	case KindLeaf:
		return fmt.Sprintf("%v", t.leaf)
	case KindDict:
		parts := make([]string, len(t.children))
		for ii, child := range t.children {
			parts[ii] = fmt.Sprintf("%q: %s", t.keys[ii], child)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	parts := make([]string, len(t.children))
	for ii, child := range t.children {
		parts[ii] = child.String()
	}
	if t.kind == KindTuple {
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
