// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"slices"

	"github.com/gomlx/dynexport/pkg/core/graph"
	"github.com/gomlx/dynexport/pkg/core/ops"
	"github.com/gomlx/dynexport/pkg/core/symbolic"
	"github.com/gomlx/dynexport/pkg/core/values"
	"github.com/gomlx/exceptions"
)

// Shape returns the dimensions of the tensor x as a list of integers.
//
// With dynamic shapes, the shape of a traced tensor is itself traced (a "size" node), and indexing it
// returns symbolic integers.
func Shape(x Value) Value {
	if !x.IsTensor() {
		exceptions.Panicf("Shape(%s): value is not a tensor", x)
	}
	dims := x.ExampleTensor().Dimensions()
	if x.proxy == nil {
		return Lit(values.Ints(dims...))
	}
	ctx := x.proxy.tracer.ctx
	if ctx.eager > 0 || !ctx.config.IsDynamic() {
		return Lit(values.Ints(dims...))
	}
	t := ctx.active
	p := t.call(ops.Size, []graph.Arg{t.arg(x)}, values.Ints(dims...), nil, nil)
	p.shapeOf = x.proxy
	return proxyValue(p)
}

// Size returns the dimension of x on the given axis. Negative axes count from the end.
func Size(x Value, axis int) Value {
	if axis < 0 {
		axis += x.ExampleTensor().Rank()
	}
	return GetItem(Shape(x), At(Int(axis)))
}

// Rank returns the number of axes of the tensor x. Ranks are always static.
func Rank(x Value) int {
	if !x.IsTensor() {
		exceptions.Panicf("Rank(%s): value is not a tensor", x)
	}
	return x.ExampleTensor().Rank()
}

// Index is one entry of a GetItem: either a single position, or a slice.
type Index struct {
	isSlice           bool
	at                Value
	start, stop, step Value
}

// At selects one position of an axis, removing the axis.
func At(i Value) Index { return Index{at: i} }

// Sl selects the positions start, start+step, ... < stop of an axis. Any of them can be None.
func Sl(start, stop, step Value) Index {
	return Index{isSlice: true, start: start, stop: stop, step: step}
}

// All selects a whole axis.
func All() Index { return Sl(None(), None(), None()) }

// bounds returns the values the index is built from.
func (idx Index) bounds() []Value {
	if idx.isSlice {
		return []Value{idx.start, idx.stop, idx.step}
	}
	return []Value{idx.at}
}

// GetItem indexes a tensor, one Index per leading axis, or a list (shape or multiple outputs) with
// a single position.
//
// Positions and bounds can be integers or symbolic integers derived from shapes. Values computed from
// the contents of traced tensors can't be used: the resulting shape would depend on the data.
func GetItem(x Value, indices ...Index) Value {
	switch x.Kind() {
	case values.KindList:
		if len(indices) != 1 || indices[0].isSlice {
			exceptions.Panicf("GetItem(%s): lists can only be indexed with a single position", x)
		}
		return getListItem(x, indices[0].at.Int())
	case values.KindTensor:
		return getTensorItem(x, indices)
	}
	exceptions.Panicf("GetItem(%s): value of kind %s can't be indexed", x, x.Kind())
	return None()
}

func getListItem(x Value, i int) Value {
	items := x.Example().Items
	if i < 0 {
		i += len(items)
	}
	if i < 0 || i >= len(items) {
		exceptions.Panicf("GetItem(%s): index %d out of range for %d items", x, i, len(items))
	}
	if x.proxy == nil || x.proxy.tracer.ctx.eager > 0 {
		return Lit(items[i])
	}
	t := x.proxy.tracer.ctx.active
	if x.proxy.shapeOf != nil {
		dim := x.proxy.shapeOf.symDims()[i]
		if dim.IsConst() {
			return Int(dim.ConstValue())
		}
		if x.proxy.node == nil {
			// Shapes of lowered graphs are read one dimension at a time.
			src := proxyValue(x.proxy.shapeOf)
			return proxyValue(t.call(ops.AtenSymSize, []graph.Arg{t.arg(src), graph.LiteralArg(values.Int(i))},
				items[i], nil, &dim))
		}
		return proxyValue(t.call(ops.GetItem, []graph.Arg{t.arg(x), graph.LiteralArg(values.Int(i))}, items[i], nil, &dim))
	}
	return proxyValue(t.call(ops.GetItem, []graph.Arg{t.arg(x), graph.LiteralArg(values.Int(i))}, items[i], nil, nil))
}

// checkIndexBound panics if v can't be used as a position or slice bound. It returns v with literal
// tensors converted to integers.
func checkIndexBound(v Value, allowNone bool) Value {
	if v.proxy != nil {
		if v.proxy.sym != nil {
			return v
		}
		panicUnsupported("Dynamic slicing on data-dependent value is not supported: %s is computed from the "+
			"contents of a tensor", v.proxy)
	}
	switch v.literal.Kind {
	case values.KindInt:
		return v
	case values.KindNone:
		if allowNone {
			return v
		}
	case values.KindTensor, values.KindBool:
		return Int(v.literal.AsInt())
	}
	exceptions.Panicf("invalid index %s", v)
	return v
}

func getTensorItem(x Value, indices []Index) Value {
	rank := x.ExampleTensor().Rank()
	if len(indices) > rank {
		exceptions.Panicf("GetItem(%s): %d indices given for a tensor of rank %d", x, len(indices), rank)
	}
	indices = slices.Clone(indices)
	var proxies []Value
	for ii, idx := range indices {
		if idx.isSlice {
			idx.start = checkIndexBound(idx.start, true)
			idx.stop = checkIndexBound(idx.stop, true)
			idx.step = checkIndexBound(idx.step, true)
		} else {
			idx.at = checkIndexBound(idx.at, false)
		}
		indices[ii] = idx
		for _, v := range idx.bounds() {
			if v.proxy != nil {
				proxies = append(proxies, v)
			}
		}
	}
	exampleIndex := indexLiteral(indices, Value.Example)
	ctx := contextOf(append(proxies, x)...)
	if ctx == nil || ctx.eager > 0 {
		return Tensor(ops.IndexTensor(x.ExampleTensor(), exampleIndex))
	}
	t := ctx.active
	items := make([]graph.Arg, len(indices))
	for ii, idx := range indices {
		if idx.isSlice {
			items[ii] = graph.SliceArg(t.arg(idx.start), t.arg(idx.stop), t.arg(idx.step))
		} else {
			items[ii] = t.arg(idx.at)
		}
	}
	example := ops.IndexTensor(x.ExampleTensor(), exampleIndex)
	var dims []symbolic.Expr
	if ctx.config.IsDynamic() {
		dims = indexedDims(x, indices, example.Dimensions())
	}
	return proxyValue(t.call(ops.GetItem, []graph.Arg{t.arg(x), graph.ListArg(items...)}, values.Tensor(example), dims, nil))
}

// indexLiteral converts the indices to the literal accepted by ops.IndexTensor.
func indexLiteral(indices []Index, lit func(Value) values.Literal) values.Literal {
	entries := make([]values.Literal, len(indices))
	for ii, idx := range indices {
		if idx.isSlice {
			entries[ii] = values.Slice(lit(idx.start), lit(idx.stop), lit(idx.step))
		} else {
			entries[ii] = lit(idx.at)
		}
	}
	return values.List(entries...)
}

// indexedDims returns the symbolic dimensions of x indexed by indices: selected axes are removed,
// full slices keep the dimension of x, and other slices have the constant dimension of the example.
func indexedDims(x Value, indices []Index, outDims []int) []symbolic.Expr {
	in := constDims(x.ExampleTensor().Dimensions())
	if x.proxy != nil {
		in = x.proxy.symDims()
	}
	var dims []symbolic.Expr
	for axis, dim := range in {
		if axis >= len(indices) {
			dims = append(dims, dim)
			continue
		}
		idx := indices[axis]
		if !idx.isSlice {
			continue
		}
		if isFullSlice(idx.start.Example(), idx.stop.Example(), idx.step.Example()) {
			dims = append(dims, dim)
		} else {
			dims = append(dims, symbolic.Const(outDims[len(dims)]))
		}
	}
	return dims
}
