// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets_test

import (
	"testing"

	"github.com/gomlx/dynexport/pkg/core/ops"
	. "github.com/gomlx/dynexport/pkg/support/sets"
	"github.com/stretchr/testify/assert"
)

func TestMakeWith(t *testing.T) {
	targets := MakeWith(ops.Add, ops.AtenAdd, ops.Add)
	assert.Len(t, targets, 2)
	assert.True(t, targets.Has(ops.Add))
	assert.True(t, targets.Has(ops.AtenAdd))
	assert.False(t, targets.Has(ops.MatMul))
	assert.False(t, targets.Has(""))

	var empty Set[string]
	assert.False(t, empty.Has(ops.Add))
	assert.Len(t, MakeWith[int](), 0)
}
