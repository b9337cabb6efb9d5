// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"fmt"

	"github.com/gomlx/dynexport/pkg/core/graph"
	"github.com/gomlx/dynexport/pkg/core/pytree"
	"github.com/gomlx/dynexport/pkg/core/symbolic"
	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/dynexport/pkg/core/values"
	"github.com/gomlx/exceptions"
)

// Value is what traced functions operate on: either a concrete literal, or a *Proxy standing for a
// value computed by the graph being recorded.
//
// Operations on values whose operands are all literals are executed eagerly and return literals.
type Value struct {
	proxy   *Proxy
	literal values.Literal
}

// Proxy stands for a value produced by a node of the graph being traced. It is immutable.
type Proxy struct {
	tracer *tracer
	node   *graph.Node

	// example is the value computed on the example inputs.
	example values.Literal

	// dims are the symbolic dimensions of a tensor, only set with dynamic shapes.
	dims []symbolic.Expr

	// sym is the symbolic expression of a SymInt.
	sym *symbolic.Expr

	// shapeOf is set for shapes: the tensor the shape was read from. During lowering shapes have no node.
	shapeOf *Proxy
}

// Tree is a nested structure (list, tuple or dict) of values: the inputs and outputs of traced functions.
type Tree = pytree.Tree[Value]

// Fn is a function that can be traced and exported.
type Fn func(inputs ...*Tree) *Tree

// Lit returns a literal value.
func Lit(l values.Literal) Value { return Value{literal: l} }

// Tensor returns a literal tensor value.
func Tensor(t *tensors.Tensor) Value { return Lit(values.Tensor(t)) }

// Const returns a literal tensor built from a Go value (a scalar or a multi-dimensional slice), see tensors.FromValue.
func Const[S any](v S) Value { return Tensor(tensors.FromValue(v)) }

// Int returns a literal integer.
func Int(i int) Value { return Lit(values.Int(i)) }

// Float returns a literal float.
func Float(f float64) Value { return Lit(values.Float(f)) }

// Bool returns a literal boolean.
func Bool(b bool) Value { return Lit(values.Bool(b)) }

// String returns a literal string.
func String(s string) Value { return Lit(values.String(s)) }

// None returns the None literal.
func None() Value { return Lit(values.None()) }

func proxyValue(p *Proxy) Value { return Value{proxy: p} }

// IsProxy returns whether the value is computed by the graph being traced.
func (v Value) IsProxy() bool { return v.proxy != nil }

// Proxy returns the proxy of a traced value, or nil for literals.
func (v Value) Proxy() *Proxy { return v.proxy }

// Literal returns the concrete value. It panics for proxies: use Example instead.
func (v Value) Literal() values.Literal {
	if v.proxy != nil {
		exceptions.Panicf("Value.Literal() called on a traced value (%s), use Example() instead", v.proxy)
	}
	return v.literal
}

// Example returns the concrete value: for proxies, the value computed on the example inputs.
func (v Value) Example() values.Literal {
	if v.proxy != nil {
		return v.proxy.example
	}
	return v.literal
}

// Kind of the (example) value.
func (v Value) Kind() values.Kind { return v.Example().Kind }

// IsNone returns whether the value is the None literal.
func (v Value) IsNone() bool { return v.proxy == nil && v.literal.IsNone() }

// IsTensor returns whether the value is a (literal or traced) tensor.
func (v Value) IsTensor() bool { return v.Kind() == values.KindTensor }

// IsSymInt returns whether the value is a traced integer with a symbolic expression, derived from dynamic shapes.
func (v Value) IsSymInt() bool { return v.proxy != nil && v.proxy.sym != nil }

// ExampleTensor returns the (example) tensor, or nil if the value is not a tensor.
func (v Value) ExampleTensor() *tensors.Tensor {
	if !v.IsTensor() {
		return nil
	}
	return v.Example().Tensor
}

// Bool converts the value to a Go bool, to be used in Go control flow.
// A comparison of symbolic integers is decided on the example values, and a guard is recorded.
// Data-dependent values can't be converted: Cond must be used instead.
func (v Value) Bool() bool {
	if v.proxy == nil || v.proxy.tracer.ctx.eager > 0 {
		return v.Example().AsBool()
	}
	if v.proxy.sym != nil {
		return v.proxy.tracer.ctx.shapeEnv.Evaluate(symbolic.Relation{Op: symbolic.NE, X: *v.proxy.sym, Y: symbolic.Const(0)})
	}
	panicUnsupported("data-dependent control flow on %s: the branch taken depends on the values of the inputs, use dynamo.Cond instead", v.proxy)
	return false
}

// Int converts the value to a Go int. A symbolic integer is specialized to its example value, recording
// an equality guard. Data-dependent values can't be converted.
func (v Value) Int() int {
	if v.proxy == nil || v.proxy.tracer.ctx.eager > 0 {
		return v.Example().AsInt()
	}
	if v.proxy.sym != nil {
		return v.proxy.tracer.ctx.shapeEnv.Specialize(*v.proxy.sym)
	}
	panicUnsupported("data-dependent conversion of %s to an int", v.proxy)
	return 0
}

// Float converts the value to a Go float64. Data-dependent values can't be converted.
func (v Value) Float() float64 {
	if v.proxy == nil || v.proxy.tracer.ctx.eager > 0 {
		return v.Example().AsFloat()
	}
	panicUnsupported("data-dependent conversion of %s to a float", v.proxy)
	return 0
}

// Str returns the Go string of a string literal.
func (v Value) Str() string {
	if v.proxy != nil || v.literal.Kind != values.KindString {
		exceptions.Panicf("value %s is not a string literal", v)
	}
	return v.literal.Str
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.proxy != nil {
		return v.proxy.String()
	}
	return v.literal.String()
}

// Node returns the graph node that produces the value. It is nil for shapes during lowering.
func (p *Proxy) Node() *graph.Node { return p.node }

// Dims returns the symbolic dimensions of a traced tensor, or nil if shapes are static.
func (p *Proxy) Dims() []symbolic.Expr { return p.dims }

// Sym returns the symbolic expression of a SymInt, or nil.
func (p *Proxy) Sym() *symbolic.Expr { return p.sym }

// symDims returns the symbolic dimensions of a tensor proxy: constants if shapes are static.
func (p *Proxy) symDims() []symbolic.Expr {
	if p.dims != nil {
		return p.dims
	}
	if p.example.Kind != values.KindTensor {
		return nil
	}
	return constDims(p.example.Tensor.Dimensions())
}

func constDims(dims []int) []symbolic.Expr {
	exprs := make([]symbolic.Expr, len(dims))
	for ii, dim := range dims {
		exprs[ii] = symbolic.Const(dim)
	}
	return exprs
}

// meta returns the node metadata describing the proxy.
func (p *Proxy) meta() graph.Meta {
	return graph.Meta{Val: p.example, SymDims: p.dims, Sym: p.sym}
}

// String implements fmt.Stringer.
func (p *Proxy) String() string {
	if p.node == nil {
		return fmt.Sprintf("Proxy(shape of %s)", p.shapeOf)
	}
	if p.sym != nil {
		return fmt.Sprintf("Proxy(%%%s: SymInt %s)", p.node.Name(), p.sym)
	}
	return fmt.Sprintf("Proxy(%%%s: %s)", p.node.Name(), p.example.Kind)
}

// Leaf returns a tree with a single value.
func Leaf(v Value) *Tree { return pytree.Leaf(v) }

// List returns a list tree.
func List(children ...*Tree) *Tree { return pytree.List(children...) }

// Tuple returns a tuple tree.
func Tuple(children ...*Tree) *Tree { return pytree.Tuple(children...) }

// Dict returns an empty dict tree, to be populated with Set.
func Dict() *Tree { return pytree.Dict[Value]() }

// TupleOf returns a tuple of leaves.
func TupleOf(vs ...Value) *Tree { return pytree.Tuple(leaves(vs)...) }

// ListOf returns a list of leaves.
func ListOf(vs ...Value) *Tree { return pytree.List(leaves(vs)...) }

func leaves(vs []Value) []*Tree {
	children := make([]*Tree, len(vs))
	for ii, v := range vs {
		children[ii] = Leaf(v)
	}
	return children
}
