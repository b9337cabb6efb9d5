// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromValue(t *testing.T) {
	tensor := FromValue([][]float32{{1, 2, 3}, {4, 5, 6}})
	assert.Equal(t, "(Float32)[2 3]", tensor.Shape().String())
	assert.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, tensor.Value())
	assert.Equal(t, []int{3, 1}, tensor.LayoutStrides())

	scalar := FromAnyValue(7.0)
	assert.True(t, scalar.IsScalar())
	assert.Equal(t, 7.0, scalar.Value())

	ints := FromValue([]int64{1, 2})
	assert.Equal(t, dtypes.Int64, ints.DType())

	require.Panics(t, func() { FromValue([][]float32{{1, 2}, {3}}) })
	require.Panics(t, func() { FromValue([]float32{}) })
	assert.Same(t, tensor, FromAnyValue(tensor))
}

func TestFloat16Rounding(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float16.Float16{float16.Fromfloat32(0.1)}, 1)
	assert.Equal(t, dtypes.Float16, tensor.DType())
	want := float64(float16.Fromfloat32(0.1).Float32())
	assert.Equal(t, want, tensor.Flat()[0])

	converted := ConvertDType(FromValue([]float64{0.1}), dtypes.Float16)
	assert.Equal(t, want, converted.Flat()[0])
}

func TestBinaryBroadcast(t *testing.T) {
	a := FromValue([][]float32{{1}, {2}})
	b := FromValue([]float32{10, 20, 30})
	sum := Binary(OpAdd, a, b)
	assert.Equal(t, [][]float32{{11, 21, 31}, {12, 22, 32}}, sum.Value())

	div := Binary(OpDiv, FromValue([]int64{1, 3}), FromScalar(int64(2)))
	assert.Equal(t, dtypes.Float32, div.DType())
	assert.Equal(t, []float32{0.5, 1.5}, div.Value())

	mixed := Binary(OpMul, FromValue([]int32{2}), FromValue([]float64{0.5}))
	assert.Equal(t, dtypes.Float64, mixed.DType())

	lt := Compare(OpLessThan, FromValue([]float32{1, 5}), FromScalar(float32(3)))
	assert.Equal(t, []bool{true, false}, lt.Value())
}

func TestUnaryAndMatMul(t *testing.T) {
	x := FromValue([]float64{0, math.Pi / 2})
	assert.True(t, Sin(x).InDelta(FromValue([]float64{0, 1}), 1e-9))
	assert.True(t, Cos(x).InDelta(FromValue([]float64{1, 0}), 1e-9))
	assert.Equal(t, []float64{0, 2}, Relu(FromValue([]float64{-1, 2})).Value())

	m := FromValue([][]float32{{1, 2}, {3, 4}})
	assert.Equal(t, [][]float32{{1, 3}, {2, 4}}, Transpose(m).Value())
	assert.Same(t, x, Transpose(x))
	assert.Equal(t, [][]float32{{7, 10}, {15, 22}}, MatMul(m, m).Value())
	assert.Equal(t, []float32{7, 10}, MatMul(FromValue([]float32{1, 2}), m).Value())
	assert.Equal(t, float32(10), Sum(m).Value())
}

func TestNonZeroSelectSlice(t *testing.T) {
	m := FromValue([][]float32{{1, 0}, {0, 2}})
	nz := NonZero(m)
	assert.Equal(t, [][]int64{{0, 0}, {1, 1}}, nz.Value())
	assert.Equal(t, []int{0, 2}, NonZero(Zeros(dtypes.Float32, 2, 2)).Dimensions())

	assert.Equal(t, []float32{0, 2}, Select(m, 0, -1).Value())
	assert.Equal(t, []float32{1, 0}, Select(m, 1, 0).Value())

	x := FromValue([][]float32{{0, 1, 2, 3, 4}, {5, 6, 7, 8, 9}})
	assert.Equal(t, [][]float32{{1, 3}, {6, 8}}, Slice(x, 1, 1, 100, 2).Value())
	assert.Equal(t, []int{0, 5}, Slice(x, 0, 2, 1, 1).Dimensions())
	start, stop := NormalizeSliceBounds(5, -2, math.MaxInt, 1)
	assert.Equal(t, []int{3, 5}, []int{start, stop})

	stacked := Stack([]*Tensor{FromValue([]float32{1}), FromValue([]float32{2})})
	assert.Equal(t, [][]float32{{1}, {2}}, stacked.Value())
	assert.True(t, stacked.Equal(stacked.Clone()))
}
