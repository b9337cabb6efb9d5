// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"github.com/gomlx/dynexport/pkg/core/ops"
	"github.com/gomlx/dynexport/pkg/core/symbolic"
	"github.com/gomlx/dynexport/pkg/core/values"
	"github.com/gomlx/exceptions"
)

// isIntOperand returns whether v can take part in symbolic integer arithmetic.
func isIntOperand(v Value) bool {
	if v.proxy != nil {
		return v.proxy.sym != nil
	}
	return v.literal.Kind == values.KindInt
}

// symExpr returns the expression of a SymInt or of an integer literal.
func symExpr(v Value) symbolic.Expr {
	if v.proxy != nil {
		return *v.proxy.sym
	}
	return symbolic.Const(v.literal.AsInt())
}

func isSymArithmetic(a, b Value) bool {
	return (a.IsSymInt() || b.IsSymInt()) && isIntOperand(a) && isIntOperand(b)
}

func arithmetic(target, symTarget string, symFn func(x, y symbolic.Expr) symbolic.Expr, a, b Value) Value {
	if isSymArithmetic(a, b) {
		return recordSymInt(symTarget, symFn(symExpr(a), symExpr(b)), a, b)
	}
	return record(target, a, b)
}

// Add returns a + b, with broadcasting.
func Add(a, b Value) Value { return arithmetic(ops.Add, ops.SymAdd, symbolic.Add, a, b) }

// Sub returns a - b, with broadcasting.
func Sub(a, b Value) Value { return arithmetic(ops.Sub, ops.SymSub, symbolic.Sub, a, b) }

// Mul returns a * b, with broadcasting.
func Mul(a, b Value) Value { return arithmetic(ops.Mul, ops.SymMul, symbolic.Mul, a, b) }

// Div returns the true division a / b, with broadcasting.
func Div(a, b Value) Value { return record(ops.Div, a, b) }

// FloorDiv returns the integer division of a by b, rounded down. It only accepts integers.
func FloorDiv(a, b Value) Value {
	if isSymArithmetic(a, b) {
		return recordSymInt(ops.SymFloorDiv, symbolic.FloorDiv(symExpr(a), symExpr(b)), a, b)
	}
	if !isIntOperand(a) || !isIntOperand(b) {
		exceptions.Panicf("FloorDiv(%s, %s): only integer operands are supported", a, b)
	}
	return record(ops.SymFloorDiv, a, b)
}

// Neg returns -x.
func Neg(x Value) Value {
	if x.IsSymInt() {
		return Sub(Int(0), x)
	}
	return record(ops.Neg, x)
}

// Sin returns the element-wise sine of x.
func Sin(x Value) Value { return record(ops.Sin, x) }

// Cos returns the element-wise cosine of x.
func Cos(x Value) Value { return record(ops.Cos, x) }

// Relu returns max(x, 0) element-wise.
func Relu(x Value) Value { return record(ops.Relu, x) }

// T transposes a tensor of rank <= 2.
func T(x Value) Value { return record(ops.T, x) }

// MatMul returns the matrix product of a and b.
func MatMul(a, b Value) Value { return record(ops.MatMul, a, b) }

// Linear returns x @ weight^T + bias. bias can be None.
func Linear(x, weight, bias Value) Value {
	if bias.IsNone() {
		return record(ops.Linear, x, weight)
	}
	return record(ops.Linear, x, weight, bias)
}

// Sum reduces all elements of x to a scalar.
func Sum(x Value) Value { return record(ops.Sum, x) }

// NonZero returns the indices of the non-zero elements of x: its output shape depends on the values of x.
func NonZero(x Value) Value { return record(ops.NonZero, x) }

// Item converts a single-element tensor to a scalar. For traced tensors it requires
// Config.CaptureScalarOutputs: the scalar is then recorded in the graph.
func Item(x Value) Value {
	if x.proxy != nil {
		ctx := x.proxy.tracer.ctx
		if ctx.eager == 0 && !ctx.config.CaptureScalarOutputs {
			panicUnsupported("Item() on %s: converting a traced tensor to a scalar depends on the input values, "+
				"set capture_scalar_outputs to record it in the graph", x.proxy)
		}
	}
	return record(ops.Item, x)
}

// Empty returns a Float32 tensor with the given dimensions, which can be symbolic integers.
// Its contents are unspecified.
func Empty(dims ...Value) Value { return record(ops.Empty, dims...) }

// Stack stacks tensors of the same shape along a new leading axis.
func Stack(xs ...Value) Value {
	if len(xs) == 0 {
		exceptions.Panicf("Stack requires at least one value")
	}
	return record(ops.Stack, xs...)
}

func compare(target string, op symbolic.RelOp, a, b Value) Value {
	if isSymArithmetic(a, b) {
		ctx := contextOf(a, b)
		if ctx.eager > 0 {
			return record(target, a, b)
		}
		return Bool(ctx.shapeEnv.Evaluate(symbolic.Relation{Op: op, X: symExpr(a), Y: symExpr(b)}))
	}
	return record(target, a, b)
}

// Lt returns a < b. Comparisons of symbolic integers are decided on the example values, recording a guard.
func Lt(a, b Value) Value { return compare(ops.Lt, symbolic.LT, a, b) }

// Gt returns a > b. Comparisons of symbolic integers are decided on the example values, recording a guard.
func Gt(a, b Value) Value { return compare(ops.Gt, symbolic.GT, a, b) }

// Eq returns a == b. Comparisons of symbolic integers are decided on the example values, recording a guard.
func Eq(a, b Value) Value { return compare(ops.Eq, symbolic.EQ, a, b) }
