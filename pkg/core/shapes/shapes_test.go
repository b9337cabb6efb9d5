// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	s := Make(dtypes.Float32, 2, 3)
	assert.Equal(t, 2, s.Rank())
	assert.Equal(t, 6, s.Size())
	assert.Equal(t, 3, s.Dim(-1))
	assert.Equal(t, uintptr(24), s.Memory())
	assert.Equal(t, "(Float32)[2 3]", s.String())
	assert.False(t, s.IsZeroSize())
	assert.True(t, Make(dtypes.Float32, 0, 2).IsZeroSize())
	assert.True(t, Scalar[float64]().IsScalar())
	assert.False(t, Invalid().Ok())

	s2 := s.Clone()
	s2.Dimensions[0] = 7
	assert.False(t, s.Equal(s2))
	assert.Equal(t, 2, s.Dimensions[0])
	require.NoError(t, s.CheckDims(-1, 3))
	require.Error(t, s.CheckDims(2))
	require.Panics(t, func() { s.AssertDims(3, 3) })
	require.Panics(t, func() { _ = Make(dtypes.Int64, -1) })
}

func TestBroadcast(t *testing.T) {
	dims, err := Broadcast(Make(dtypes.Float32, 3, 1), Make(dtypes.Float32, 4))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, dims)

	dims, err = Broadcast(Scalar[float32](), Make(dtypes.Float32, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, dims)

	_, err = Broadcast(Make(dtypes.Float32, 3), Make(dtypes.Float32, 4))
	require.Error(t, err)
}
