// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	got := Map([]int{1, 2, 3}, func(e int) string { return strconv.Itoa(e * 2) })
	assert.Equal(t, []string{"2", "4", "6"}, got)
	assert.Empty(t, Map([]int(nil), func(e int) int { return e }))
	assert.Equal(t, 3, Last([]int{1, 2, 3}))
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 0, "a": 1, "b": 2}))
}

func TestFlag(t *testing.T) {
	f := &genericSliceFlagImpl[int]{parserFn: strconv.Atoi}
	require.NoError(t, f.Set("1,2,3"))
	assert.Equal(t, []int{1, 2, 3}, f.parsedSlice)
	assert.Equal(t, "1,2,3", f.String())
	require.Error(t, f.Set("1,x"))
	require.NoError(t, f.Set(""))
	assert.Empty(t, f.parsedSlice)
}
