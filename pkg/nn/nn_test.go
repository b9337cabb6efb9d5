// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn_test

import (
	"testing"

	"github.com/gomlx/dynexport/pkg/core/ops"
	"github.com/gomlx/dynexport/pkg/dynamo"
	"github.com/gomlx/dynexport/pkg/dynamo/dynamotest"
	. "github.com/gomlx/dynexport/pkg/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivationFromName(t *testing.T) {
	a, err := ActivationFromName("ReLU")
	require.NoError(t, err)
	assert.Equal(t, ActivationRelu, a)
	assert.Equal(t, "cos", ActivationCos.String())
	_, err = ActivationFromName("gelu")
	require.Error(t, err)
}

func TestLinear(t *testing.T) {
	linear := NewLinear(3, 2, 42)
	assert.Equal(t, []int{2, 3}, linear.Weight.Dimensions())
	assert.Equal(t, []int{2}, linear.Bias.Dimensions())
	assert.True(t, linear.Weight.Equal(NewLinear(3, 2, 42).Weight), "initialization must be deterministic")

	model := NewSequential().
		Add("fc1", NewLinear(3, 4, 1).WithActivation(ActivationRelu)).
		Add("fc2", NewLinear(4, 2, 2)).
		Add("", Activations{ActivationSin})
	assert.Equal(t, 3, model.Len())
	fn := func(inputs ...*dynamo.Tree) *dynamo.Tree { return dynamo.CallModule("model", model, inputs...) }
	x := dynamotest.Leaf(dynamotest.Randn(0, 5, 3))
	exported := dynamotest.ExportAndCheck(t, dynamo.NewExporter(fn), fn, x)
	g := exported.Graph()
	assert.Equal(t, 2, g.CountTarget(ops.Linear))
	assert.ElementsMatch(t, []string{"model.fc1.weight", "model.fc1.bias", "model.fc2.weight", "model.fc2.bias"},
		g.AttributeNames())
	for _, node := range g.NodesWithTarget(ops.Relu) {
		assert.Equal(t, "model.fc1", node.Provenance().ModulePath())
	}

	// Lowered: linear becomes t + addmm.
	lowered := dynamotest.ExportAndCheck(t, dynamo.NewExporter(fn).WithAtenGraph(true), fn, x)
	assert.Equal(t, 0, lowered.Graph().CountTarget(ops.Linear))
	assert.Equal(t, 2, lowered.Graph().CountTarget(ops.AtenAddMM))
	assert.Equal(t, 2, lowered.Graph().CountTarget(ops.AtenT))
}
