// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package symbolic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpr(t *testing.T) {
	env := NewShapeEnv()
	s0 := env.CreateSymbol("x.size()[0]", 6)
	s1 := env.CreateSymbol("x.size()[1]", 5)
	assert.True(t, env.CreateSymbol("x.size()[2]", 1).IsConst())
	assert.Len(t, env.Symbols(), 2)

	e := Sub(Mul(s0, Const(2)), s1)
	assert.Equal(t, "s0 * 2 - s1", e.String())
	assert.Equal(t, "x.size()[0] * 2 - x.size()[1]", e.SourceString())
	assert.Equal(t, 7, e.Hint())
	assert.Equal(t, 9, e.Eval(func(s *Symbol) int {
		if s.Name == "s0" {
			return 7
		}
		return 5
	}))
	assert.Equal(t, "s0 * (s1 - 2)", Mul(s0, Sub(s1, Const(2))).String())
	assert.Equal(t, Const(-2), FloorDiv(Const(-3), Const(2)))
	assert.Equal(t, 5, Add(Const(2), Const(3)).ConstValue())
	require.Panics(t, func() { s0.ConstValue() })
	assert.Len(t, e.Symbols(), 2)
}

func TestShapeEnvGuards(t *testing.T) {
	env := NewShapeEnv()
	var guards []string
	env.OnGuard = func(r Relation) { guards = append(guards, r.SourceString()) }
	s0 := env.CreateSymbol("x.size()[0]", 6)

	assert.False(t, env.Evaluate(Relation{Op: GT, X: s0, Y: Const(10)}))
	assert.True(t, env.Evaluate(Relation{Op: LT, X: Const(1), Y: Const(2)}))
	assert.Equal(t, 6, env.Specialize(s0))
	assert.Equal(t, []string{"x.size()[0] <= 10", "x.size()[0] == 6"}, guards)
	assert.Equal(t, NE, EQ.Negate())
}
