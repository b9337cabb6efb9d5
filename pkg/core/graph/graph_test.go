// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph_test

import (
	"testing"

	. "github.com/gomlx/dynexport/pkg/core/graph"
	"github.com/gomlx/dynexport/pkg/core/ops"
	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/dynexport/pkg/core/values"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

func tensorMeta(t *tensors.Tensor) Meta { return Meta{Val: values.Tensor(t)} }

func TestBuild(t *testing.T) {
	g := New("")
	x := g.Placeholder("x", tensorMeta(tensors.Zeros(dtypes.Float32, 2)))
	sin := g.CallOperation(ops.Sin, []Arg{NodeArg(x)}, Meta{}, Provenance{})
	add := g.CallOperation(ops.Add, []Arg{NodeArg(sin), LiteralArg(values.Int(1))}, Meta{}, Provenance{})
	add2 := g.CallOperation(ops.Add, []Arg{NodeArg(add), NodeArg(x)}, Meta{}, Provenance{})
	g.SetOutput([]Arg{NodeArg(add2), NodeArg(add2)})
	require.Panics(t, func() { g.SetOutput(nil) })
	g.Finalize()

	assert.True(t, g.IsFrozen())
	assert.Equal(t, "add_1", add2.Name())
	assert.Equal(t, NodeId(3), add2.Id())
	assert.Equal(t, []*Node{add, x}, add2.Inputs())
	assert.Len(t, g.NodesWithTarget(ops.Add), 2)
	assert.Equal(t, 2, g.CountTarget(ops.Add))
	assert.Contains(t, g.String(), "%add_1 = call_function[target=add](%add, %x)")
	require.Panics(t, func() { g.CallOperation(ops.Neg, []Arg{NodeArg(x)}, Meta{}, Provenance{}) })

	// Accessors return copies: the frozen graph can't be changed through them.
	nodes := g.Nodes()
	nodes[0] = nil
	g.Placeholders()[0] = nil
	add2.Args()[0] = LiteralArg(values.Int(0))
	assert.Equal(t, x, g.Nodes()[0])
	assert.Equal(t, x, g.Placeholders()[0])
	assert.Equal(t, NodeArg(add), add2.Args()[0])
	assert.Equal(t, len(nodes), g.NumNodes())

	// Nodes from a different graph can't be used.
	other := New("other")
	require.Panics(t, func() { other.CallOperation(ops.Neg, []Arg{NodeArg(x)}, Meta{}, Provenance{}) })
}

func TestRun(t *testing.T) {
	g := New("")
	x := g.Placeholder("x", Meta{})
	weightName := g.AddTensorAttribute("weight", tensors.FromValue([][]float32{{1, 0}, {0, 2}}))
	assert.Equal(t, "weight_1", g.AddTensorAttribute("weight", tensors.FromScalar(float32(0))))
	weight := g.GetAttribute(weightName, Meta{}, Provenance{ModuleStack: []ModuleFrame{{Path: "fc", Type: "Linear"}}})
	assert.Equal(t, "fc", weight.Provenance().ModulePath())
	linear := g.CallOperation(ops.Linear, []Arg{NodeArg(x), NodeArg(weight), LiteralArg(values.None())}, Meta{}, Provenance{})
	size := g.CallOperation(ops.Size, []Arg{NodeArg(x)}, Meta{}, Provenance{})
	dim0 := g.CallOperation(ops.GetItem, []Arg{NodeArg(size), LiteralArg(values.Int(0))}, Meta{}, Provenance{})
	sliced := g.CallOperation(ops.GetItem, []Arg{NodeArg(linear), ListArg(
		SliceArg(LiteralArg(values.None()), NodeArg(dim0), LiteralArg(values.None())),
		LiteralArg(values.Int(1)))}, Meta{}, Provenance{})
	g.SetOutput([]Arg{NodeArg(sliced), NodeArg(dim0), LiteralArg(values.Int(7))})
	_, err := Run(g, nil)
	require.Error(t, err, "graph not frozen")
	g.Finalize()

	outputs, err := Run(g, []values.Literal{values.Tensor(tensors.FromValue([][]float32{{1, 2}, {3, 4}, {5, 6}}))})
	require.NoError(t, err)
	require.Len(t, outputs, 3)
	assert.Equal(t, []float32{4, 8, 12}, outputs[0].Tensor.Value())
	assert.Equal(t, values.Int(3), outputs[1])
	assert.Equal(t, values.Int(7), outputs[2])

	_, err = Run(g, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "takes 1 inputs")
}

func TestRunCondAndMap(t *testing.T) {
	g := New("")
	x := g.Placeholder("x", Meta{})

	trueBranch := g.NewSubGraph("true_graph_0")
	in := trueBranch.Placeholder("x", Meta{})
	trueBranch.SetOutput([]Arg{NodeArg(trueBranch.CallOperation(ops.Cos, []Arg{NodeArg(in)}, Meta{}, Provenance{}))})
	trueBranch.Finalize()
	falseBranch := g.NewSubGraph("false_graph_0")
	in = falseBranch.Placeholder("x", Meta{})
	falseBranch.SetOutput([]Arg{NodeArg(falseBranch.CallOperation(ops.Sin, []Arg{NodeArg(in)}, Meta{}, Provenance{}))})
	falseBranch.Finalize()

	body := g.NewSubGraph("body_graph_0")
	xi := body.Placeholder("xs", Meta{})
	y := body.Placeholder("y", Meta{})
	body.SetOutput([]Arg{NodeArg(body.CallOperation(ops.Add, []Arg{NodeArg(xi), NodeArg(y)}, Meta{}, Provenance{}))})
	body.Finalize()

	trueAttr := g.GetAttribute(g.AddGraphAttribute("true_graph_0", trueBranch), Meta{}, Provenance{})
	falseAttr := g.GetAttribute(g.AddGraphAttribute("false_graph_0", falseBranch), Meta{}, Provenance{})
	bodyAttr := g.GetAttribute(g.AddGraphAttribute("body_graph_0", body), Meta{}, Provenance{})
	sum := g.CallOperation(ops.Sum, []Arg{NodeArg(x)}, Meta{}, Provenance{})
	pred := g.CallOperation(ops.Gt, []Arg{NodeArg(sum), LiteralArg(values.Int(4))}, Meta{}, Provenance{})
	cond := g.CallOperation(ops.Cond, []Arg{NodeArg(pred), NodeArg(trueAttr), NodeArg(falseAttr), ListArg(NodeArg(x))}, Meta{}, Provenance{})
	condOut := g.CallOperation(ops.GetItem, []Arg{NodeArg(cond), LiteralArg(values.Int(0))}, Meta{}, Provenance{})
	mapped := g.CallOperation(ops.Map, []Arg{NodeArg(bodyAttr), NodeArg(x), ListArg(NodeArg(x))}, Meta{}, Provenance{})
	mapOut := g.CallOperation(ops.GetItem, []Arg{NodeArg(mapped), LiteralArg(values.Int(0))}, Meta{}, Provenance{})
	g.SetOutput([]Arg{NodeArg(condOut), NodeArg(mapOut)})
	g.Finalize()

	assert.Equal(t, 1, g.CountTarget(ops.Cos))
	assert.Equal(t, 1, g.CountTarget(ops.Add))
	assert.Len(t, g.SubGraphs(), 3)

	input := tensors.FromValue([]float64{0, 1, 2})
	outputs, err := Run(g, []values.Literal{values.Tensor(input)})
	require.NoError(t, err)
	// sum(x) = 3 <= 4: false branch.
	assert.True(t, outputs[0].Tensor.InDelta(tensors.Sin(input), 1e-9))
	assert.Equal(t, [][]float64{{0, 1, 2}, {1, 2, 3}, {2, 3, 4}}, outputs[1].Tensor.Value())

	input = tensors.FromValue([]float64{2, 2, 2})
	outputs, err = Run(g, []values.Literal{values.Tensor(input)})
	require.NoError(t, err)
	assert.True(t, outputs[0].Tensor.InDelta(tensors.Cos(input), 1e-9))

	_, err = Run(g, []values.Literal{values.Tensor(tensors.Zeros(dtypes.Float64, 0))})
	require.Error(t, err)
}
