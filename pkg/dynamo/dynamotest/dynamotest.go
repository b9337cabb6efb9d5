// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dynamotest holds helpers to test exported functions: generating inputs and checking that
// an exported graph computes the same as the function run eagerly.
package dynamotest

import (
	"math/rand/v2"
	"testing"

	"github.com/gomlx/dynexport/pkg/core/pytree"
	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/dynexport/pkg/dynamo"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// Delta used when comparing float results.
const Delta = 1e-4

// Randn returns a Float32 tensor with normally distributed values, generated from seed.
func Randn(seed uint64, dims ...int) *tensors.Tensor {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	flat := make([]float64, size)
	for ii := range flat {
		flat[ii] = rng.NormFloat64()
	}
	return tensors.FromFlat(dtypes.Float32, flat, dims...)
}

// Ones returns a Float32 tensor of ones.
func Ones(dims ...int) *tensors.Tensor {
	return tensors.Full(dtypes.Float32, 1, dims...)
}

// Leaf returns a tree with a single literal tensor.
func Leaf(t *tensors.Tensor) *dynamo.Tree { return dynamo.Leaf(dynamo.Tensor(t)) }

// RequireTreesInDelta checks that the trees have the same structure, and the same leaves: tensors
// are compared with delta.
func RequireTreesInDelta(t *testing.T, want, got *dynamo.Tree, delta float64) {
	t.Helper()
	require.NotNil(t, got)
	wantLeaves, wantSpec := pytree.Flatten(want)
	gotLeaves, gotSpec := pytree.Flatten(got)
	require.Truef(t, wantSpec.SameStructure(gotSpec), "tree structure differs (-want +got):\n%s",
		cmp.Diff(wantSpec.String(), gotSpec.String()))
	for ii := range wantLeaves {
		w, g := wantLeaves[ii].Example(), gotLeaves[ii].Example()
		require.Equalf(t, w.Kind, g.Kind, "leaf #%d: %s != %s", ii, w, g)
		if w.Tensor != nil {
			require.Truef(t, w.Tensor.InDelta(g.Tensor, delta), "leaf #%d: want %s, got %s", ii, w.Tensor, g.Tensor)
			continue
		}
		require.Truef(t, w.Equal(g), "leaf #%d: want %s, got %s", ii, w, g)
	}
}

// RequireSameAsEager calls the exported graph with inputs and checks it returns the same as running
// fn eagerly on them.
func RequireSameAsEager(t *testing.T, exported *dynamo.ExportedGraph, fn dynamo.Fn, inputs ...*dynamo.Tree) *dynamo.Tree {
	t.Helper()
	want, err := dynamo.Eager(fn, inputs...)
	require.NoError(t, err)
	got, err := exported.Call(inputs...)
	require.NoError(t, err)
	RequireTreesInDelta(t, want, got, Delta)
	return got
}

// ExportAndCheck exports fn with exporter on the example inputs, and checks the exported graph
// reproduces fn on the example inputs.
func ExportAndCheck(t *testing.T, exporter *dynamo.Exporter, fn dynamo.Fn, inputs ...*dynamo.Tree) *dynamo.ExportedGraph {
	t.Helper()
	exported, _, err := exporter.Export(inputs...)
	require.NoErrorf(t, err, "failed to export: %+v", err)
	RequireSameAsEager(t, exported, fn, inputs...)
	return exported
}
