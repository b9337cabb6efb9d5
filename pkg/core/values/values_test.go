// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package values

import (
	"testing"

	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiteral(t *testing.T) {
	assert.Equal(t, "[1, 2]", Ints(1, 2).String())
	assert.Equal(t, "slice(:3:2)", Slice(None(), Int(3), Int(2)).String())
	assert.Equal(t, []int{4, 5}, Ints(4, 5).AsInts())
	assert.True(t, Int(3).IsNumber())
	assert.False(t, None().AsBool())
	assert.True(t, String("A").Equal(String("A")))
	assert.False(t, String("A").Equal(Int(1)))
	require.Panics(t, func() { Slice(Float(1), None(), None()) })

	x := tensors.FromValue([]float32{1, 2})
	l := List(Tensor(x), Float(0.5))
	c := l.Clone()
	assert.True(t, l.Equal(c))
	assert.NotSame(t, x, c.Items[0].Tensor)
}

func TestScalarLike(t *testing.T) {
	ints := tensors.FromValue([]int32{1})
	assert.Equal(t, dtypes.Int32, ScalarLike(Int(4), ints).DType())
	assert.Equal(t, dtypes.Float32, ScalarLike(Float(0.5), ints).DType())
	f16 := tensors.Zeros(dtypes.Float16, 2)
	assert.Equal(t, dtypes.Float16, ScalarLike(Float(0.5), f16).DType())
	assert.Equal(t, 2, Tensor(tensors.FromScalar(int64(2))).AsInt())
	require.Panics(t, func() { Tensor(tensors.FromScalar(float32(2))).AsInt() })
}
