// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pytree

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree(t *testing.T) {
	tree := Tuple(
		List(Leaf("x"), Leaf("x")),
		Dict[string]().Set("b", Leaf("y")).Set("a", Leaf("z")),
	)
	assert.Equal(t, `([x, x], {"b": y, "a": z})`, tree.String())
	assert.Equal(t, []string{"x", "x", "y", "z"}, tree.Leaves())
	assert.Equal(t, []string{"b", "a"}, tree.At(1).Keys())
	assert.Equal(t, "z", tree.At(-1).Get("a").Value())
	assert.Nil(t, tree.At(1).Get("missing"))
	require.Panics(t, func() { tree.Value() })
	require.Panics(t, func() { tree.At(2) })

	var paths []string
	tree.Walk(func(path string, _ string) { paths = append(paths, path) })
	assert.Equal(t, []string{"[0][0]", "[0][1]", `[1]["b"]`, `[1]["a"]`}, paths)

	lengths := Map(tree, func(s string) int { return len(s) })
	assert.Equal(t, []int{1, 1, 1, 1}, lengths.Leaves())
	assert.Equal(t, "(x,)", Tuple(Leaf("x")).String())
}

func TestFlattenDedup(t *testing.T) {
	x, y := new(int), new(int)
	tree := Tuple(List(Leaf(x), Leaf(x)), Tuple(Leaf(y), Leaf(y)))
	flat, spec := FlattenDedup(tree, func(p *int) (*int, bool) { return p, true })
	require.Len(t, flat, 2)
	assert.Equal(t, "([*0, *0], (*1, *1))", spec.String())
	assert.Equal(t, 2, spec.NumFlat())
	assert.Equal(t, 4, spec.NumLeaves())
	assert.Equal(t, []int{0, 0, 1, 1}, spec.LeafIndices())

	rebuilt, err := Unflatten(spec, flat)
	require.NoError(t, err)
	assert.Same(t, rebuilt.At(0).At(0).Value(), rebuilt.At(0).At(1).Value())
	assert.Same(t, y, rebuilt.At(1).At(1).Value())

	_, err = Unflatten(spec, flat[:1])
	require.Error(t, err)

	flatNoDedup, specNoDedup := Flatten(tree)
	assert.Len(t, flatNoDedup, 4)
	assert.True(t, spec.SameStructure(specNoDedup))
	assert.False(t, spec.Equal(specNoDedup))
	if diff := cmp.Diff([]int{0, 1, 2, 3}, specNoDedup.LeafIndices()); diff != "" {
		t.Errorf("unexpected leaf indices (-want +got):\n%s", diff)
	}
}

func TestDictOrder(t *testing.T) {
	d := Dict[int]().Set("z", Leaf(1)).Set("a", Leaf(2)).Set("z", Leaf(3))
	flat, spec := Flatten(d)
	assert.Equal(t, []int{3, 2}, flat)
	rebuilt, err := Unflatten(spec, []int{10, 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a"}, rebuilt.Keys())
	assert.Equal(t, 20, rebuilt.Get("a").Value())
}
