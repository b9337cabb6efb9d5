// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package values defines Literal, the concrete value that flows through the kernels of the operator
// registry and through the graph interpreter.
//
// A Literal is a tagged variant: exactly one of its fields is meaningful, as indicated by Kind.
// Code switches on Kind explicitly, there are no runtime type queries.
package values

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Kind of Literal.
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTensor

	// KindList holds an ordered list of literals: used for shapes, multiple outputs and operand lists.
	KindList

	// KindSlice holds 3 items (start, stop, step), each either KindNone or KindInt.
	KindSlice
)

var kindNames = []string{"None", "Bool", "Int", "Float", "String", "Tensor", "List", "Slice"}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// Literal is a concrete value.
type Literal struct {
	Kind   Kind
	Bool   bool
	Int    int
	Float  float64
	Str    string
	Tensor *tensors.Tensor
	Items  []Literal
}

// None returns the None literal.
func None() Literal { return Literal{Kind: KindNone} }

// Bool returns a boolean literal.
func Bool(b bool) Literal { return Literal{Kind: KindBool, Bool: b} }

// Int returns an integer literal.
func Int(i int) Literal { return Literal{Kind: KindInt, Int: i} }

// Float returns a float literal.
func Float(f float64) Literal { return Literal{Kind: KindFloat, Float: f} }

// String returns a string literal.
func String(s string) Literal { return Literal{Kind: KindString, Str: s} }

// Tensor returns a tensor literal.
func Tensor(t *tensors.Tensor) Literal {
	if t == nil {
		exceptions.Panicf("values.Tensor(nil)")
	}
	return Literal{Kind: KindTensor, Tensor: t}
}

// List returns a list literal.
func List(items ...Literal) Literal { return Literal{Kind: KindList, Items: items} }

// Ints returns a list literal of integers, e.g. the dimensions of a shape.
func Ints(ints ...int) Literal {
	items := make([]Literal, len(ints))
	for ii, i := range ints {
		items[ii] = Int(i)
	}
	return List(items...)
}

// Slice returns a slice literal: start, stop and step must each be either None or Int.
func Slice(start, stop, step Literal) Literal {
	for _, l := range []Literal{start, stop, step} {
		if l.Kind != KindNone && l.Kind != KindInt {
			exceptions.Panicf("slice bounds must be None or Int, got %s", l.Kind)
		}
	}
	return Literal{Kind: KindSlice, Items: []Literal{start, stop, step}}
}

// IsNone returns whether the literal is None.
func (l Literal) IsNone() bool { return l.Kind == KindNone }

// IsNumber returns whether the literal is a Python-like scalar: bool, int or float.
func (l Literal) IsNumber() bool {
	return l.Kind == KindBool || l.Kind == KindInt || l.Kind == KindFloat
}

// AsFloat returns the numeric value of a scalar literal, or of a tensor with one element.
func (l Literal) AsFloat() float64 {
	switch l.Kind {
	case KindBool:
		if l.Bool {
			return 1
		}
		return 0
	case KindInt:
		return float64(l.Int)
	case KindFloat:
		return l.Float
	case KindTensor:
		return l.Tensor.Item()
	}
	exceptions.Panicf("literal of kind %s is not a number", l.Kind)
	return 0
}

// AsInt returns the integer value of an Int or Bool literal, or of an integer tensor with one element.
func (l Literal) AsInt() int {
	switch l.Kind {
	case KindBool, KindInt:
		return int(l.AsFloat())
	case KindTensor:
		if l.Tensor.DType().IsFloat() {
			exceptions.Panicf("float tensor cannot be used as an integer")
		}
		return int(l.Tensor.Item())
	}
	exceptions.Panicf("literal of kind %s is not an integer", l.Kind)
	return 0
}

// AsBool returns the truth value of a scalar literal or single element tensor.
func (l Literal) AsBool() bool {
	switch l.Kind {
	case KindNone:
		return false
	case KindString:
		return l.Str != ""
	case KindList:
		return len(l.Items) > 0
	}
	return l.AsFloat() != 0
}

// AsInts returns the integers of a list literal.
func (l Literal) AsInts() []int {
	if l.Kind != KindList {
		exceptions.Panicf("literal of kind %s is not a list", l.Kind)
	}
	ints := make([]int, len(l.Items))
	for ii, item := range l.Items {
		ints[ii] = item.AsInt()
	}
	return ints
}

// AsTensor converts numeric scalars to a scalar tensor; tensors are returned as is.
// Booleans become Bool tensors, ints Int64 and floats Float32.
func (l Literal) AsTensor() *tensors.Tensor {
	switch l.Kind {
	case KindTensor:
		return l.Tensor
	case KindBool:
		return tensors.FromScalar(l.Bool)
	case KindInt:
		return tensors.FromScalar(int64(l.Int))
	case KindFloat:
		return tensors.FromScalar(float32(l.Float))
	}
	exceptions.Panicf("literal of kind %s cannot be converted to a tensor", l.Kind)
	return nil
}

// ScalarLike converts a numeric scalar to a tensor whose dtype follows t: a Python-like scalar does
// not promote the dtype of a tensor, except a float scalar applied to an integer tensor, which gives Float32.
func ScalarLike(scalar Literal, t *tensors.Tensor) *tensors.Tensor {
	dtype := t.DType()
	if scalar.Kind == KindFloat && !dtype.IsFloat() {
		dtype = dtypes.Float32
	}
	if dtype == dtypes.Bool && scalar.Kind != KindBool {
		dtype = dtypes.Int64
	}
	return tensors.FromFlat(dtype, []float64{scalar.AsFloat()})
}

// Clone returns a deep copy of the literal, tensors included.
func (l Literal) Clone() Literal {
	c := l
	if l.Tensor != nil {
		c.Tensor = l.Tensor.Clone()
	}
	if l.Items != nil {
		c.Items = make([]Literal, len(l.Items))
		for ii, item := range l.Items {
			c.Items[ii] = item.Clone()
		}
	}
	return c
}

// Equal returns whether the literals hold the same values. Tensors are compared by value.
func (l Literal) Equal(other Literal) bool {
	if l.Kind != other.Kind {
		return false
	}
	switch l.Kind {
	case KindNone:
		return true
	case KindBool:
		return l.Bool == other.Bool
	case KindInt:
		return l.Int == other.Int
	case KindFloat:
		return l.Float == other.Float
	case KindString:
		return l.Str == other.Str
	case KindTensor:
		return l.Tensor.Equal(other.Tensor)
	}
	return slices.EqualFunc(l.Items, other.Items, Literal.Equal)
}

// String implements fmt.Stringer.
func (l Literal) String() string {
	switch l.Kind {
	case KindNone:
		return "None"
	case KindBool:
		return strconv.FormatBool(l.Bool)
	case KindInt:
		return strconv.Itoa(l.Int)
	case KindFloat:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case KindString:
		return strconv.Quote(l.Str)
	case KindTensor:
		return l.Tensor.String()
	case KindSlice:
		parts := make([]string, 3)
		for ii, item := range l.Items {
			if !item.IsNone() {
				parts[ii] = item.String()
			}
		}
		return fmt.Sprintf("slice(%s)", strings.Join(parts, ":"))
	}
	parts := make([]string, len(l.Items))
	for ii, item := range l.Items {
		parts[ii] = item.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
