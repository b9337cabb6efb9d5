// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"fmt"
	"slices"

	"github.com/gomlx/dynexport/pkg/core/graph"
	"github.com/gomlx/dynexport/pkg/core/ops"
	"github.com/gomlx/dynexport/pkg/core/pytree"
	"github.com/gomlx/dynexport/pkg/core/symbolic"
	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/dynexport/pkg/core/values"
	"github.com/gomlx/dynexport/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// BranchFn is the body of a Cond branch or of a Map. It receives the operands (for Map, the slice of xs
// followed by the extra operands).
type BranchFn func(operands ...Value) *Tree

// Cond returns trueFn(operands...) if pred is true, falseFn(operands...) otherwise.
//
// If pred is traced, both branches are traced into sub-graphs, and a single "cond" node selects one of them
// when the graph is run. Both branches must then return the same structure, with leaves of the same kind,
// dtype and shape. Traced values used by the branches must be passed as operands: capturing them from
// the enclosing function is not supported.
//
// If pred is a literal (or a comparison of shapes already decided), only the selected branch is called.
func Cond(pred Value, trueFn, falseFn BranchFn, operands ...Value) *Tree {
	ctx := contextOf(append([]Value{pred}, operands...)...)
	if pred.proxy == nil || ctx.eager > 0 {
		if pred.Example().AsBool() {
			return trueFn(operands...)
		}
		return falseFn(operands...)
	}
	if pred.IsSymInt() {
		// Decided on the example, with a guard.
		if pred.Bool() {
			return trueFn(operands...)
		}
		return falseFn(operands...)
	}
	if predT := pred.ExampleTensor(); predT != nil && predT.Size() != 1 {
		exceptions.Panicf("Cond predicate must have a single element, got shape %s", predT.Shape())
	}

	parent := ctx.active
	predArg := parent.arg(pred)
	var operandArgs []graph.Arg
	for _, operand := range operands {
		if operand.proxy != nil {
			operandArgs = append(operandArgs, parent.arg(operand))
		}
	}
	idx := ctx.numConds
	ctx.numConds++
	trueGraph, trueOut, trueSpec := traceBranch(parent, fmt.Sprintf("true_graph_%d", idx), trueFn, operands)
	falseGraph, falseOut, falseSpec := traceBranch(parent, fmt.Sprintf("false_graph_%d", idx), falseFn, operands)
	if err := checkBranchesMatch(trueOut, trueSpec, falseOut, falseSpec); err != nil {
		panicUnsupported("Cond branches must return the same structure, kinds and shapes: %v", err)
	}

	trueAttr := parent.graphAttribute(trueGraph)
	falseAttr := parent.graphAttribute(falseGraph)
	chosen := falseOut
	if pred.Example().AsBool() {
		chosen = trueOut
	}
	outputs := make([]outputInfo, len(chosen))
	for ii, v := range chosen {
		outputs[ii].example = v.Example()
		if ctx.config.IsDynamic() && v.IsTensor() {
			outputs[ii].dims = v.symDims()
		}
	}
	condNode := parent.call(ops.Cond,
		[]graph.Arg{predArg, graph.NodeArg(trueAttr), graph.NodeArg(falseAttr), graph.ListArg(operandArgs...)},
		values.List(examples(chosen)...), nil, nil)
	results := parent.unpackOutputs(condNode, outputs)
	return must(pytree.Unflatten(trueSpec, results))
}

// Map applies body to each slice xs[i] along the leading axis, stacking the results:
// it returns the tree of body's structure where each leaf is the stack of the corresponding leaves.
// The extra operands are passed to every call after the slice.
//
// If xs is traced, the body is traced once into a sub-graph executed by a single "map" node, so the
// leading dimension of xs can change between calls of the exported graph.
func Map(body BranchFn, xs Value, extra ...Value) *Tree {
	if !xs.IsTensor() {
		exceptions.Panicf("Map(%s): xs must be a tensor", xs)
	}
	xsT := xs.ExampleTensor()
	if xsT.Rank() == 0 {
		exceptions.Panicf("Map(%s): xs must have at least one axis", xs)
	}
	if xsT.Shape().Dim(0) == 0 {
		panicUnsupported("map() operator doesn't support zero-sized tensors during tracing")
	}
	ctx := contextOf(append([]Value{xs}, extra...)...)
	if ctx == nil || ctx.eager > 0 {
		return mapEagerly(body, xsT, extra)
	}

	parent := ctx.active
	xsArg := parent.arg(xs)
	var extraArgs []graph.Arg
	var extraExamples []values.Literal
	for _, operand := range extra {
		if operand.proxy != nil {
			extraArgs = append(extraArgs, parent.arg(operand))
			extraExamples = append(extraExamples, operand.proxy.example)
		}
	}
	idx := ctx.numMaps
	ctx.numMaps++

	// The body sees a slice of xs as its first operand.
	slice := &Proxy{example: values.Tensor(tensors.Select(xsT, 0, 0))}
	var xsDims []symbolic.Expr
	if xs.proxy != nil {
		xsDims = xs.proxy.dims
	}
	if xsDims != nil {
		slice.dims = xsDims[1:]
	}
	operands := append([]Value{proxyValue(slice)}, extra...)
	bodyGraph, bodyOut, bodySpec := traceBranch(parent, fmt.Sprintf("body_graph_%d", idx), body, operands)
	for _, out := range bodyOut {
		if !out.IsTensor() && !out.Example().IsNumber() {
			exceptions.Panicf("Map body must return tensors or numbers, got %s", out)
		}
	}

	// Example of the stacked outputs: the body graph is run on each slice.
	numSlices := xsT.Shape().Dim(0)
	perOutput := make([][]*tensors.Tensor, len(bodyOut))
	for i := range numSlices {
		inputs := append([]values.Literal{values.Tensor(tensors.Select(xsT, 0, i))}, extraExamples...)
		outputs, err := graph.Run(bodyGraph, inputs)
		if err != nil {
			panic(errors.WithMessagef(err, "while computing the example of Map over %s", xs))
		}
		for ii, out := range outputs {
			perOutput[ii] = append(perOutput[ii], out.AsTensor())
		}
	}
	stacked := make([]values.Literal, len(bodyOut))
	outputs := make([]outputInfo, len(bodyOut))
	for ii := range bodyOut {
		stacked[ii] = values.Tensor(tensors.Stack(perOutput[ii]))
		outputs[ii].example = stacked[ii]
		if ctx.config.IsDynamic() {
			leading := symbolic.Const(numSlices)
			if xsDims != nil {
				leading = xsDims[0]
			}
			outputs[ii].dims = append([]symbolic.Expr{leading}, bodyOut[ii].symDims()...)
		}
	}

	bodyAttr := parent.graphAttribute(bodyGraph)
	mapNode := parent.call(ops.Map, []graph.Arg{graph.NodeArg(bodyAttr), xsArg, graph.ListArg(extraArgs...)},
		values.List(stacked...), nil, nil)
	results := parent.unpackOutputs(mapNode, outputs)
	return must(pytree.Unflatten(bodySpec, results))
}

// symDims of a value: nil if it is not a tensor.
func (v Value) symDims() []symbolic.Expr {
	if v.proxy != nil {
		return v.proxy.symDims()
	}
	if v.IsTensor() {
		return constDims(v.ExampleTensor().Dimensions())
	}
	return nil
}

func mapEagerly(body BranchFn, xsT *tensors.Tensor, extra []Value) *Tree {
	var spec *pytree.Spec
	var perOutput [][]*tensors.Tensor
	for i := range xsT.Shape().Dim(0) {
		out := body(append([]Value{Tensor(tensors.Select(xsT, 0, i))}, extra...)...)
		flat, s := pytree.Flatten(out)
		if spec == nil {
			spec = s
			perOutput = make([][]*tensors.Tensor, len(flat))
		}
		for ii, v := range flat {
			perOutput[ii] = append(perOutput[ii], v.Example().AsTensor())
		}
	}
	results := make([]Value, len(perOutput))
	for ii, ts := range perOutput {
		results[ii] = Tensor(tensors.Stack(ts))
	}
	return must(pytree.Unflatten(spec, results))
}

// traceBranch traces fn into a new sub-graph of parent's graph. Traced operands become placeholders,
// literal operands are passed as is. It returns the finalized sub-graph and the flattened outputs of fn.
func traceBranch(parent *tracer, name string, fn BranchFn, operands []Value) (*graph.Graph, []Value, *pytree.Spec) {
	ctx := parent.ctx
	sub := newTracer(ctx, parent, parent.graph.NewSubGraph(name))
	inputs := make([]Value, len(operands))
	for ii, operand := range operands {
		if operand.proxy == nil {
			inputs[ii] = operand
			continue
		}
		p := &Proxy{tracer: sub, example: operand.proxy.example, dims: operand.proxy.dims, sym: operand.proxy.sym}
		p.node = sub.graph.Placeholder(fmt.Sprintf("arg%d", ii), p.meta())
		inputs[ii] = proxyValue(p)
	}
	var out *Tree
	ctx.withTracer(sub, func() { out = fn(inputs...) })
	if out == nil {
		out = Leaf(None())
	}
	flat, spec := pytree.Flatten(out)
	sub.graph.SetOutput(xslices.Map(flat, sub.arg))
	sub.graph.Finalize()
	return sub.graph, flat, spec
}

// graphAttribute registers the finalized sub-graph as an attribute of t's graph, and returns the node reading it.
func (t *tracer) graphAttribute(sub *graph.Graph) *graph.Node {
	name := t.graph.AddGraphAttribute(sub.Name(), sub)
	return t.graph.GetAttribute(name, graph.Meta{Val: values.String(name)}, t.ctx.provenance())
}

// outputInfo describes one output of a multi-output node.
type outputInfo struct {
	example values.Literal
	dims    []symbolic.Expr
}

// unpackOutputs records one "getitem" per output of a multi-output node.
func (t *tracer) unpackOutputs(node *Proxy, outputs []outputInfo) []Value {
	results := make([]Value, len(outputs))
	for ii, output := range outputs {
		results[ii] = proxyValue(t.call(ops.GetItem,
			[]graph.Arg{graph.NodeArg(node.node), graph.LiteralArg(values.Int(ii))}, output.example, output.dims, nil))
	}
	return results
}

// checkBranchesMatch returns an error describing the first difference between the outputs of two branches.
func checkBranchesMatch(a []Value, aSpec *pytree.Spec, b []Value, bSpec *pytree.Spec) error {
	if !aSpec.SameStructure(bSpec) || len(a) != len(b) {
		return errors.Errorf("true branch returned %s, false branch returned %s", aSpec, bSpec)
	}
	for ii := range a {
		ea, eb := a[ii].Example(), b[ii].Example()
		if ea.Kind != eb.Kind {
			return errors.Errorf("output #%d is a %s in the true branch and a %s in the false branch", ii, ea.Kind, eb.Kind)
		}
		if ea.Kind != values.KindTensor {
			continue
		}
		if ea.Tensor.DType() != eb.Tensor.DType() || !slices.Equal(ea.Tensor.Dimensions(), eb.Tensor.Dimensions()) {
			return errors.Errorf("output #%d has shape %s in the true branch and %s in the false branch",
				ii, ea.Tensor.Shape(), eb.Tensor.Shape())
		}
		da, db := a[ii].symDims(), b[ii].symDims()
		for axis := range da {
			if da[axis].String() != db[axis].String() && !(da[axis].IsConst() && db[axis].IsConst()) {
				return errors.Errorf("output #%d has dimensions %v in the true branch and %v in the false branch", ii, da, db)
			}
		}
	}
	return nil
}

// must panics on error, and otherwise returns the value.
func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
