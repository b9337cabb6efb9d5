// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"math"
	"slices"

	"github.com/gomlx/dynexport/pkg/core/graph"
	"github.com/gomlx/dynexport/pkg/core/ops"
	"github.com/gomlx/dynexport/pkg/core/symbolic"
	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/dynexport/pkg/core/values"
	"github.com/gomlx/dynexport/pkg/support/sets"
	"github.com/gomlx/dynexport/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// Record appends to the graph being traced one call to the operator target over args, and returns the
// value it produces. If no argument is traced, the operator is executed eagerly and a literal is returned.
//
// The value produced on the example inputs is computed by executing the same operator on the
// examples of the arguments.
func Record(target string, args ...Value) Value {
	return record(target, args...)
}

func record(target string, args ...Value) Value {
	ctx := contextOf(args...)
	if ctx == nil || ctx.eager > 0 {
		return Lit(ops.Execute(target, examples(args)...))
	}
	t := ctx.active
	graphArgs := xslices.Map(args, t.arg)
	example := ops.Execute(target, examples(args)...)
	var dims []symbolic.Expr
	if ctx.config.IsDynamic() && example.Kind == values.KindTensor {
		dims = inferDims(target, args, example.Tensor)
	}
	return proxyValue(t.call(target, graphArgs, example, dims, nil))
}

// recordSymInt is like record for operations on symbolic integers, whose result has the expression sym.
func recordSymInt(target string, sym symbolic.Expr, args ...Value) Value {
	ctx := contextOf(args...)
	if ctx == nil || ctx.eager > 0 {
		return Lit(ops.Execute(target, examples(args)...))
	}
	t := ctx.active
	example := ops.Execute(target, examples(args)...)
	return proxyValue(t.call(target, xslices.Map(args, t.arg), example, nil, &sym))
}

func examples(args []Value) []values.Literal {
	return xslices.Map(args, Value.Example)
}

// call appends a call node to the tracer's graph and returns its proxy.
func (t *tracer) call(target string, args []graph.Arg, example values.Literal, dims []symbolic.Expr, sym *symbolic.Expr) *Proxy {
	p := &Proxy{tracer: t, example: example, dims: dims, sym: sym}
	p.node = t.graph.CallOperation(target, args, p.meta(), t.ctx.provenance())
	if klog.V(2).Enabled() {
		klog.Infof("dynamo: graph %q: %s", t.graph.Name(), p.node)
	}
	return p
}

// arg converts v to an argument of a node of t's graph.
func (t *tracer) arg(v Value) graph.Arg {
	if v.proxy == nil {
		return graph.LiteralArg(v.literal)
	}
	t.checkOwned(v.proxy)
	if v.proxy.node == nil {
		return t.shapeArg(v)
	}
	return graph.NodeArg(v.proxy.node)
}

// shapeArg returns a shape of a lowered graph as a list with one "aten.sym_size.int" per dynamic
// dimension, and literal integers for the static ones.
func (t *tracer) shapeArg(shape Value) graph.Arg {
	items := make([]graph.Arg, len(shape.Example().Items))
	for ii := range items {
		items[ii] = t.arg(getListItem(shape, ii))
	}
	return graph.ListArg(items...)
}

// checkOwned panics if the proxy can't be used by nodes of t's graph.
func (t *tracer) checkOwned(p *Proxy) {
	if p.tracer.ctx != t.ctx {
		panicUnsupported("%s belongs to a different export", p)
	}
	if p.tracer != t {
		panicUnsupported("%s is captured from the enclosing graph %q while tracing %q: values used by "+
			"dynamo.Cond and dynamo.Map branches must be passed as operands", p, p.tracer.graph.Name(), t.graph.Name())
	}
	if p.node == nil && p.shapeOf == nil {
		exceptions.Panicf("%s has no node in graph %q", p, t.graph.Name())
	}
}

var elementwiseTargets = sets.MakeWith(
	ops.Add, ops.Sub, ops.Mul, ops.Div, ops.Neg, ops.Sin, ops.Cos, ops.Relu, ops.Lt, ops.Gt, ops.Eq,
	ops.AtenAdd, ops.AtenSub, ops.AtenMul, ops.AtenDiv, ops.AtenNeg, ops.AtenSin, ops.AtenCos, ops.AtenRelu,
	ops.AtenLt, ops.AtenGt, ops.AtenEq,
)

// inferDims returns the symbolic dimensions of the tensor out, produced by target over args.
// Dimensions that can't be related to the inputs are constants.
func inferDims(target string, args []Value, out *tensors.Tensor) []symbolic.Expr {
	dims := constDims(out.Dimensions())
	argDims := func(ii int) []symbolic.Expr {
		if ii >= len(args) || args[ii].proxy == nil {
			if ii < len(args) && args[ii].IsTensor() {
				return constDims(args[ii].literal.Tensor.Dimensions())
			}
			return nil
		}
		return args[ii].proxy.symDims()
	}
	switch {
	case elementwiseTargets.Has(target):
		return broadcastDims(args, out)

	case target == ops.T || target == ops.AtenT:
		in := slices.Clone(argDims(0))
		slices.Reverse(in)
		return in

	case target == ops.MatMul || target == ops.AtenMM:
		a, b := argDims(0), argDims(1)
		if len(a) == 2 && len(b) == 2 {
			return []symbolic.Expr{a[0], b[1]}
		}

	case target == ops.AtenAddMM:
		a, b := argDims(1), argDims(2)
		if len(a) == 2 && len(b) == 2 {
			return []symbolic.Expr{a[0], b[1]}
		}

	case target == ops.Linear:
		x, w := argDims(0), argDims(1)
		if len(x) >= 1 && len(w) == 2 {
			return append(slices.Clone(x[:len(x)-1]), w[0])
		}

	case target == ops.Empty || target == ops.AtenEmpty:
		if len(args) == len(dims) {
			for ii, arg := range args {
				if arg.IsSymInt() {
					dims[ii] = *arg.proxy.sym
				}
			}
		}

	case target == ops.Stack || target == ops.AtenStack:
		return append([]symbolic.Expr{symbolic.Const(len(args))}, argDims(0)...)

	case target == ops.AtenSelect:
		in := argDims(0)
		axis := args[1].Example().AsInt()
		return append(slices.Clone(in[:axis]), in[axis+1:]...)

	case target == ops.AtenSlice:
		in := slices.Clone(argDims(0))
		axis := args[1].Example().AsInt()
		if !isFullSlice(args[2].Example(), args[3].Example(), args[4].Example()) {
			in[axis] = symbolic.Const(out.Shape().Dim(axis))
		}
		return in
	}
	return dims
}

// broadcastDims aligns the dimensions of the output with the ones of the tensor operands, from the right.
func broadcastDims(args []Value, out *tensors.Tensor) []symbolic.Expr {
	outDims := out.Dimensions()
	dims := constDims(outDims)
	for k := 1; k <= len(outDims); k++ {
		axis := len(outDims) - k
		for _, arg := range args {
			if arg.proxy == nil || arg.proxy.dims == nil || len(arg.proxy.dims) < k {
				continue
			}
			e := arg.proxy.dims[len(arg.proxy.dims)-k]
			if !e.IsConst() && e.Hint() == outDims[axis] {
				dims[axis] = e
				break
			}
		}
	}
	return dims
}

// isFullSlice returns whether the bounds select the whole axis.
func isFullSlice(start, stop, step values.Literal) bool {
	return (start.IsNone() || (start.Kind == values.KindInt && start.Int == 0)) &&
		(stop.IsNone() || (stop.Kind == values.KindInt && stop.Int == math.MaxInt)) &&
		(step.IsNone() || (step.Kind == values.KindInt && step.Int == 1))
}
