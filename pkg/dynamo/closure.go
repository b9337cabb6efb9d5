// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import "slices"

// Closure is a function bundled with the values it captured. Captured traced values are used by
// the graph like any other value.
type Closure struct {
	fn       func(captured []Value, args ...Value) Value
	captured []Value
}

// NewClosure returns a closure calling fn with the captured values.
func NewClosure(fn func(captured []Value, args ...Value) Value, captured ...Value) *Closure {
	return &Closure{fn: fn, captured: captured}
}

// Captured returns the captured values.
func (c *Closure) Captured() []Value { return slices.Clone(c.captured) }

// Call calls the closure.
func (c *Closure) Call(args ...Value) Value {
	return c.fn(slices.Clone(c.captured), args...)
}
