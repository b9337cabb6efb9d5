// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pytree

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Spec describes the structure of a tree: containers as in the tree, and leaves holding an index into
// a flat list of values. Indices can repeat, in which case the same flat value is placed at all those
// positions.
type Spec struct {
	Kind     Kind
	Index    int
	Keys     []string
	Children []*Spec
}

// Flatten returns the leaves of t in depth-first, left-to-right order and the Spec to rebuild it.
func Flatten[L any](t *Tree[L]) ([]L, *Spec) {
	return FlattenDedup(t, func(L) (struct{}, bool) { return struct{}{}, false })
}

// FlattenDedup is like Flatten, but leaves for which identity returns the same key (and true) are
// stored only once in the flat list, at the position of their first occurrence. The Spec leaves for
// later occurrences point to that same index.
func FlattenDedup[L any, K comparable](t *Tree[L], identity func(L) (K, bool)) ([]L, *Spec) {
	var flat []L
	seen := make(map[K]int)
	var visit func(t *Tree[L]) *Spec
	visit = func(t *Tree[L]) *Spec {
		if t.kind == KindLeaf {
			if key, ok := identity(t.leaf); ok {
				if idx, found := seen[key]; found {
					return &Spec{Kind: KindLeaf, Index: idx}
				}
				seen[key] = len(flat)
			}
			flat = append(flat, t.leaf)
			return &Spec{Kind: KindLeaf, Index: len(flat) - 1}
		}
		s := &Spec{Kind: t.kind, Keys: slices.Clone(t.keys), Children: make([]*Spec, len(t.children))}
		for ii, child := range t.children {
			s.Children[ii] = visit(child)
		}
		return s
	}
	spec := visit(t)
	return flat, spec
}

// Unflatten rebuilds the tree described by spec from the flat values.
// Repeated indices receive the very same value (aliasing is preserved).
func Unflatten[L any](spec *Spec, flat []L) (*Tree[L], error) {
	if spec.NumFlat() != len(flat) {
		return nil, errors.Errorf("pytree.Unflatten: spec %s requires %d flat values, got %d", spec, spec.NumFlat(), len(flat))
	}
	var build func(s *Spec) *Tree[L]
	build = func(s *Spec) *Tree[L] {
		if s.Kind == KindLeaf {
			return Leaf(flat[s.Index])
		}
		t := &Tree[L]{kind: s.Kind, keys: slices.Clone(s.Keys), children: make([]*Tree[L], len(s.Children))}
		for ii, child := range s.Children {
			t.children[ii] = build(child)
		}
		return t
	}
	return build(spec), nil
}

// NumFlat returns the number of flat values required by the spec: the largest leaf index + 1.
func (s *Spec) NumFlat() int {
	n := 0
	s.walkLeaves(func(idx int) { n = max(n, idx+1) })
	return n
}

// NumLeaves returns the number of leaf positions, counting repeated indices.
func (s *Spec) NumLeaves() int {
	n := 0
	s.walkLeaves(func(int) { n++ })
	return n
}

// LeafIndices returns the flat index of each leaf position, in depth-first order.
func (s *Spec) LeafIndices() []int {
	var indices []int
	s.walkLeaves(func(idx int) { indices = append(indices, idx) })
	return indices
}

func (s *Spec) walkLeaves(fn func(idx int)) {
	if s.Kind == KindLeaf {
		fn(s.Index)
		return
	}
	for _, child := range s.Children {
		child.walkLeaves(fn)
	}
}

// Equal returns whether both specs have the same structure and leaf indices.
func (s *Spec) Equal(other *Spec) bool {
	return s.equal(other, true)
}

// SameStructure returns whether both specs have the same structure, ignoring leaf indices.
func (s *Spec) SameStructure(other *Spec) bool {
	return s.equal(other, false)
}

func (s *Spec) equal(other *Spec, compareIndices bool) bool {
	if s.Kind != other.Kind {
		return false
	}
	if s.Kind == KindLeaf {
		return !compareIndices || s.Index == other.Index
	}
	if !slices.Equal(s.Keys, other.Keys) || len(s.Children) != len(other.Children) {
		return false
	}
	for ii, child := range s.Children {
		if !child.equal(other.Children[ii], compareIndices) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer. Leaves are printed as "*<index>".
func (s *Spec) String() string {
	switch s.Kind {
	case KindLeaf:
		return "*" + strconv.Itoa(s.Index)
	case KindDict:
		parts := make([]string, len(s.Children))
		for ii, child := range s.Children {
			parts[ii] = fmt.Sprintf("%q: %s", s.Keys[ii], child)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	parts := make([]string, len(s.Children))
	for ii, child := range s.Children {
		parts[ii] = child.String()
	}
	if s.Kind == KindTuple {
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
