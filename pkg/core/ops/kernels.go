// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"math"

	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/dynexport/pkg/core/values"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

func checkNumArgs(name string, args []values.Literal, minArgs, maxArgs int) {
	if len(args) < minArgs || len(args) > maxArgs {
		exceptions.Panicf("%s: expected between %d and %d arguments, got %d", name, minArgs, maxArgs, len(args))
	}
}

type arithmeticOp struct {
	name   string
	tensor tensors.BinaryOp
	ints   func(a, b int) int
	floats func(a, b float64) float64
}

var (
	opAdd = arithmeticOp{"add", tensors.OpAdd, func(a, b int) int { return a + b }, func(a, b float64) float64 { return a + b }}
	opSub = arithmeticOp{"sub", tensors.OpSub, func(a, b int) int { return a - b }, func(a, b float64) float64 { return a - b }}
	opMul = arithmeticOp{"mul", tensors.OpMul, func(a, b int) int { return a * b }, func(a, b float64) float64 { return a * b }}
	opDiv = arithmeticOp{"div", tensors.OpDiv, nil, func(a, b float64) float64 { return a / b }}
)

// binaryTensors converts a pair of operands, where at least one is a tensor, to tensors.
// Scalars follow the dtype of the tensor operand.
func binaryTensors(a, b values.Literal) (*tensors.Tensor, *tensors.Tensor) {
	switch {
	case a.Kind == values.KindTensor && b.Kind == values.KindTensor:
		return a.Tensor, b.Tensor
	case a.Kind == values.KindTensor:
		return a.Tensor, values.ScalarLike(b, a.Tensor)
	default:
		return values.ScalarLike(a, b.Tensor), b.Tensor
	}
}

func binaryKernel(op arithmeticOp) Kernel {
	return func(args []values.Literal) values.Literal {
		checkNumArgs(op.name, args, 2, 2)
		a, b := args[0], args[1]
		if a.Kind == values.KindTensor || b.Kind == values.KindTensor {
			ta, tb := binaryTensors(a, b)
			return values.Tensor(tensors.Binary(op.tensor, ta, tb))
		}
		if !a.IsNumber() || !b.IsNumber() {
			exceptions.Panicf("%s: unsupported operands %s and %s", op.name, a.Kind, b.Kind)
		}
		if op.ints != nil && a.Kind != values.KindFloat && b.Kind != values.KindFloat {
			return values.Int(op.ints(a.AsInt(), b.AsInt()))
		}
		return values.Float(op.floats(a.AsFloat(), b.AsFloat()))
	}
}

func floorDivKernel(args []values.Literal) values.Literal {
	checkNumArgs("floordiv", args, 2, 2)
	a, b := args[0].AsInt(), args[1].AsInt()
	if b == 0 {
		exceptions.Panicf("floordiv: integer division by zero")
	}
	return values.Int(int(math.Floor(float64(a) / float64(b))))
}

func tensorArg(name string, args []values.Literal, idx int) *tensors.Tensor {
	if idx >= len(args) || args[idx].Kind != values.KindTensor {
		exceptions.Panicf("%s: argument #%d must be a tensor", name, idx)
	}
	return args[idx].Tensor
}

func unaryKernel(name string, fn func(*tensors.Tensor) *tensors.Tensor) Kernel {
	return func(args []values.Literal) values.Literal {
		checkNumArgs(name, args, 1, 1)
		return values.Tensor(fn(tensorArg(name, args, 0)))
	}
}

var (
	negKernel       = unaryKernel("neg", tensors.Neg)
	sinKernel       = unaryKernel("sin", tensors.Sin)
	cosKernel       = unaryKernel("cos", tensors.Cos)
	reluKernel      = unaryKernel("relu", tensors.Relu)
	transposeKernel = unaryKernel("t", tensors.Transpose)
	sumKernel       = unaryKernel("sum", tensors.Sum)
	nonZeroKernel   = unaryKernel("nonzero", tensors.NonZero)
)

func matMulKernel(args []values.Literal) values.Literal {
	checkNumArgs("matmul", args, 2, 2)
	return values.Tensor(tensors.MatMul(tensorArg("matmul", args, 0), tensorArg("matmul", args, 1)))
}

// linearKernel computes x @ weight^T + bias, bias is optional (None).
func linearKernel(args []values.Literal) values.Literal {
	checkNumArgs("linear", args, 2, 3)
	x, weight := tensorArg("linear", args, 0), tensorArg("linear", args, 1)
	y := tensors.MatMul(x, tensors.Transpose(weight))
	if len(args) == 3 && !args[2].IsNone() {
		y = tensors.Binary(tensors.OpAdd, y, tensorArg("linear", args, 2))
	}
	return values.Tensor(y)
}

// addMMKernel computes bias + m1 @ m2.
func addMMKernel(args []values.Literal) values.Literal {
	checkNumArgs("addmm", args, 3, 3)
	product := tensors.MatMul(tensorArg("addmm", args, 1), tensorArg("addmm", args, 2))
	return values.Tensor(tensors.Binary(tensors.OpAdd, tensorArg("addmm", args, 0), product))
}

// itemKernel converts a single-element tensor to a scalar literal of the matching kind.
func itemKernel(args []values.Literal) values.Literal {
	checkNumArgs("item", args, 1, 1)
	t := tensorArg("item", args, 0)
	v := t.Item()
	switch {
	case t.DType() == dtypes.Bool:
		return values.Bool(v != 0)
	case t.DType().IsFloat():
		return values.Float(v)
	}
	return values.Int(int(v))
}

type compareOp struct {
	name   string
	tensor tensors.CompareOp
	fn     func(a, b float64) bool
}

var (
	cmpLt = compareOp{"lt", tensors.OpLessThan, func(a, b float64) bool { return a < b }}
	cmpGt = compareOp{"gt", tensors.OpGreaterThan, func(a, b float64) bool { return a > b }}
	cmpEq = compareOp{"eq", tensors.OpEqual, func(a, b float64) bool { return a == b }}
)

func compareKernel(op compareOp) Kernel {
	return func(args []values.Literal) values.Literal {
		checkNumArgs(op.name, args, 2, 2)
		a, b := args[0], args[1]
		if a.Kind == values.KindTensor || b.Kind == values.KindTensor {
			ta, tb := binaryTensors(a, b)
			return values.Tensor(tensors.Compare(op.tensor, ta, tb))
		}
		if op.tensor == tensors.OpEqual && (a.Kind == values.KindString || b.Kind == values.KindString) {
			return values.Bool(a.Equal(b))
		}
		return values.Bool(op.fn(a.AsFloat(), b.AsFloat()))
	}
}

// emptyKernel creates a Float32 tensor: args are either the dimensions, or a single list of dimensions.
// The contents are zeros, which is a valid realization of uninitialized memory.
func emptyKernel(args []values.Literal) values.Literal {
	var dims []int
	if len(args) == 1 && args[0].Kind == values.KindList {
		dims = args[0].AsInts()
	} else {
		for _, arg := range args {
			dims = append(dims, arg.AsInt())
		}
	}
	return values.Tensor(tensors.Zeros(dtypes.Float32, dims...))
}

// stackKernel stacks its tensor (or scalar) arguments along a new leading axis.
func stackKernel(args []values.Literal) values.Literal {
	if len(args) == 0 {
		exceptions.Panicf("stack: requires at least one argument")
	}
	ts := make([]*tensors.Tensor, len(args))
	for ii, arg := range args {
		ts[ii] = arg.AsTensor()
	}
	return values.Tensor(tensors.Stack(ts))
}

func sizeKernel(args []values.Literal) values.Literal {
	checkNumArgs("size", args, 1, 1)
	return values.Ints(tensorArg("size", args, 0).Dimensions()...)
}

func symSizeKernel(args []values.Literal) values.Literal {
	checkNumArgs("sym_size", args, 2, 2)
	return values.Int(tensorArg("sym_size", args, 0).Shape().Dim(args[1].AsInt()))
}

// sliceBounds returns start/stop of an optional (None) start and stop.
func sliceBounds(start, stop values.Literal) (int, int) {
	startV, stopV := 0, math.MaxInt
	if !start.IsNone() {
		startV = start.AsInt()
	}
	if !stop.IsNone() {
		stopV = stop.AsInt()
	}
	return startV, stopV
}

// sliceKernel: (x, dim, start, end, step), start and end can be None.
func sliceKernel(args []values.Literal) values.Literal {
	checkNumArgs("slice", args, 5, 5)
	start, stop := sliceBounds(args[2], args[3])
	return values.Tensor(tensors.Slice(tensorArg("slice", args, 0), args[1].AsInt(), start, stop, args[4].AsInt()))
}

// selectKernel: (x, dim, index).
func selectKernel(args []values.Literal) values.Literal {
	checkNumArgs("select", args, 3, 3)
	return values.Tensor(tensors.Select(tensorArg("select", args, 0), args[1].AsInt(), args[2].AsInt()))
}

// getItemKernel indexes a list (e.g. the outputs of a cond, or a shape) with an integer, or a tensor
// with a list of per-axis indices (Int or Slice literals).
func getItemKernel(args []values.Literal) values.Literal {
	checkNumArgs("getitem", args, 2, 2)
	container, index := args[0], args[1]
	switch container.Kind {
	case values.KindList:
		i := index.AsInt()
		if i < 0 {
			i += len(container.Items)
		}
		if i < 0 || i >= len(container.Items) {
			exceptions.Panicf("getitem: index %d out of range for list of length %d", index.AsInt(), len(container.Items))
		}
		return container.Items[i]
	case values.KindTensor:
		return values.Tensor(IndexTensor(container.Tensor, index))
	}
	exceptions.Panicf("getitem: cannot index a %s", container.Kind)
	return values.None()
}

// IndexTensor applies index to t: index is an Int, a Slice, or a List of those, applied to consecutive axes.
// An Int selects (and removes) the axis, a Slice keeps it.
func IndexTensor(t *tensors.Tensor, index values.Literal) *tensors.Tensor {
	entries := []values.Literal{index}
	if index.Kind == values.KindList {
		entries = index.Items
	}
	axis := 0
	for _, entry := range entries {
		switch entry.Kind {
		case values.KindSlice:
			start, stop := sliceBounds(entry.Items[0], entry.Items[1])
			step := 1
			if !entry.Items[2].IsNone() {
				step = entry.Items[2].AsInt()
			}
			t = tensors.Slice(t, axis, start, stop, step)
			axis++
		default:
			t = tensors.Select(t, axis, entry.AsInt())
		}
	}
	return t
}
