// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"math"

	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/dynexport/pkg/dynamo"
	"github.com/gomlx/dynexport/pkg/nn"
	"github.com/gomlx/dynexport/pkg/support/xslices"
	"github.com/gomlx/gopjrt/dtypes"
)

// Demo is a built-in program that can be exported, with its example inputs.
type Demo struct {
	Name        string
	Description string
	Fn          dynamo.Fn
	Inputs      func() []*dynamo.Tree
	InputNames  []string
}

// demos indexed by name.
var demos = map[string]*Demo{}

// demoNames returns the sorted names of the demos.
func demoNames() []string { return xslices.SortedKeys(demos) }

func registerDemo(demo *Demo) {
	demos[demo.Name] = demo
}

// wave returns a deterministic Float32 tensor with values in [-1, 1].
func wave(dims ...int) *dynamo.Tree {
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	flat := make([]float64, size)
	for ii := range flat {
		flat[ii] = math.Sin(float64(ii) + 0.5)
	}
	return dynamo.Leaf(dynamo.Tensor(tensors.FromFlat(dtypes.Float32, flat, dims...)))
}

func init() {
	model := nn.NewSequential().
		Add("fc1", nn.NewLinear(4, 8, 1).WithActivation(nn.ActivationRelu)).
		Add("fc2", nn.NewLinear(8, 2, 2))
	registerDemo(&Demo{
		Name:        "mlp",
		Description: "Two linear layers with a relu in between.",
		Fn: func(inputs ...*dynamo.Tree) *dynamo.Tree {
			return dynamo.CallModule("model", model, inputs...)
		},
		Inputs:     func() []*dynamo.Tree { return []*dynamo.Tree{wave(3, 4)} },
		InputNames: []string{"x"},
	})

	registerDemo(&Demo{
		Name:        "cond",
		Description: "Data-dependent branch: cos(x) if sum(x) > 0, else sin(x).",
		Fn: func(inputs ...*dynamo.Tree) *dynamo.Tree {
			x := inputs[0].Value()
			return dynamo.Cond(dynamo.Gt(dynamo.Sum(x), dynamo.Float(0)),
				func(operands ...dynamo.Value) *dynamo.Tree { return dynamo.Leaf(dynamo.Cos(operands[0])) },
				func(operands ...dynamo.Value) *dynamo.Tree { return dynamo.Leaf(dynamo.Sin(operands[0])) },
				x)
		},
		Inputs:     func() []*dynamo.Tree { return []*dynamo.Tree{wave(4)} },
		InputNames: []string{"x"},
	})

	registerDemo(&Demo{
		Name:        "map",
		Description: "Per-row computation over the leading axis of xs, with an extra operand.",
		Fn: func(inputs ...*dynamo.Tree) *dynamo.Tree {
			xs, y := inputs[0].Value(), inputs[1].Value()
			return dynamo.Map(func(operands ...dynamo.Value) *dynamo.Tree {
				return dynamo.Leaf(dynamo.Add(dynamo.Relu(operands[0]), operands[1]))
			}, xs, y)
		},
		Inputs:     func() []*dynamo.Tree { return []*dynamo.Tree{wave(3, 2), wave(2)} },
		InputNames: []string{"xs", "y"},
	})

	registerDemo(&Demo{
		Name:        "slice",
		Description: "Slicing with bounds computed from the shape: x[:x.shape[0]-2, x.shape[1]-1::2].",
		Fn: func(inputs ...*dynamo.Tree) *dynamo.Tree {
			x := inputs[0].Value()
			return dynamo.Leaf(dynamo.GetItem(x,
				dynamo.Sl(dynamo.None(), dynamo.Sub(dynamo.Size(x, 0), dynamo.Int(2)), dynamo.None()),
				dynamo.Sl(dynamo.Sub(dynamo.Size(x, 1), dynamo.Int(1)), dynamo.None(), dynamo.Int(2))))
		},
		Inputs:     func() []*dynamo.Tree { return []*dynamo.Tree{wave(4, 5)} },
		InputNames: []string{"x"},
	})

	norm := dynamo.AssumeConstantResult("norm", func(inputs ...*dynamo.Tree) *dynamo.Tree {
		x := inputs[0].Value()
		return dynamo.Leaf(dynamo.Sum(dynamo.Mul(x, x)))
	})
	registerDemo(&Demo{
		Name:        "constant",
		Description: "Normalization by a value frozen at export time, plus non-tensor inputs.",
		Fn: func(inputs ...*dynamo.Tree) *dynamo.Tree {
			x, scale, mode := inputs[0].Value(), inputs[1].Value(), inputs[2].Value()
			y := dynamo.Div(dynamo.Mul(x, scale), norm.Call(inputs[0]).Value())
			if dynamo.Eq(mode, dynamo.String("relu")).Bool() {
				y = dynamo.Relu(y)
			}
			return dynamo.Dict().Set("y", dynamo.Leaf(y)).Set("mode", inputs[2])
		},
		Inputs: func() []*dynamo.Tree {
			return []*dynamo.Tree{wave(2, 3), dynamo.Leaf(dynamo.Float(2)), dynamo.Leaf(dynamo.String("relu"))}
		},
		InputNames: []string{"x", "scale", "mode"},
	})
}
