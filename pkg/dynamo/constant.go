// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"github.com/gomlx/dynexport/pkg/core/pytree"
	"k8s.io/klog/v2"
)

// ConstantFn wraps a function whose result is assumed not to depend on the traced inputs, see AssumeConstantResult.
type ConstantFn struct {
	name string
	fn   Fn
}

// AssumeConstantResult wraps fn so that, during an export, it is executed once on the example values and
// its result is frozen into the graph as constants. Later calls within the same export return the
// frozen result without calling fn, even with different arguments.
//
// Outside an export the wrapper simply calls fn.
func AssumeConstantResult(name string, fn Fn) *ConstantFn {
	return &ConstantFn{name: name, fn: fn}
}

// Name of the wrapped function.
func (c *ConstantFn) Name() string { return c.name }

// Call executes the wrapped function, or returns its frozen result during an export.
func (c *ConstantFn) Call(args ...*Tree) *Tree {
	ctx := contextOfTrees(args...)
	if ctx == nil {
		return c.fn(args...)
	}
	if frozen, found := ctx.constants[c]; found {
		return pytree.Map(frozen, func(v Value) Value { return v })
	}
	ctx.eager++
	defer func() { ctx.eager-- }()
	concrete := make([]*Tree, len(args))
	for ii, arg := range args {
		if arg != nil {
			concrete[ii] = pytree.Map(arg, func(v Value) Value { return Lit(v.Example()) })
		}
	}
	out := c.fn(concrete...)
	if out == nil {
		out = Leaf(None())
	}
	frozen := pytree.Map(out, func(v Value) Value { return Lit(v.Example().Clone()) })
	ctx.constants[c] = frozen
	klog.V(1).Infof("dynamo: froze result of %q: %s", c.name, frozen)
	return pytree.Map(frozen, func(v Value) Value { return v })
}
