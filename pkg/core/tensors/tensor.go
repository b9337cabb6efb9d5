// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements a concrete multi-dimensional array value, used as the example values
// during tracing and as the inputs/outputs of exported graphs.
//
// Storage is always a flat []float64 in row-major order, regardless of the DType: values are
// rounded to the precision of the DType (float16 goes through github.com/x448/float16) when
// written, so results match what a native kernel of that DType would produce for the small
// tensors this package is meant for.
//
// Tensors are immutable once created: every kernel returns a new Tensor.
package tensors

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"

	"github.com/gomlx/dynexport/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// Tensor is a concrete value with a shape.
type Tensor struct {
	shape shapes.Shape
	flat  []float64
}

// FromShape returns a Tensor with the given shape, with the data initialized with zeros.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		panic(errors.New("invalid shape"))
	}
	return &Tensor{shape: shape.Clone(), flat: make([]float64, shape.Size())}
}

// Zeros is a shortcut to FromShape(shapes.Make(dtype, dimensions...)).
func Zeros(dtype dtypes.DType, dimensions ...int) *Tensor {
	return FromShape(shapes.Make(dtype, dimensions...))
}

// Full returns a tensor with all elements set to value.
func Full(dtype dtypes.DType, value float64, dimensions ...int) *Tensor {
	t := Zeros(dtype, dimensions...)
	value = castValue(dtype, value)
	for ii := range t.flat {
		t.flat[ii] = value
	}
	return t
}

// fromFloat64 takes ownership of flat, rounding its values to dtype.
func fromFloat64(dtype dtypes.DType, flat []float64, dimensions ...int) *Tensor {
	shape := shapes.Make(dtype, dimensions...)
	if shape.Size() != len(flat) {
		exceptions.Panicf("flat data has %d elements, but shape %s requires %d", len(flat), shape, shape.Size())
	}
	for ii, v := range flat {
		flat[ii] = castValue(dtype, v)
	}
	return &Tensor{shape: shape, flat: flat}
}

// FromFlat returns a tensor of the given dtype with a copy of the flat float64 data.
func FromFlat(dtype dtypes.DType, flat []float64, dimensions ...int) *Tensor {
	return fromFloat64(dtype, slices.Clone(flat), dimensions...)
}

// FromScalar returns a scalar tensor with the given value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return FromFlatDataAndDimensions([]T{value})
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with the flattened values given in `data`.
// The data is copied.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	dataV := reflect.ValueOf(data)
	flat := make([]float64, dataV.Len())
	for ii := range flat {
		flat[ii] = toFloat64(dataV.Index(ii))
	}
	return fromFloat64(dtype, flat, dimensions...)
}

// FromValue returns a tensor constructed from the given multi-dimension slice (or scalar).
// If the rank of the `value` is larger than 1, the shape of all sub-slices must be the same.
func FromValue[S any](value S) *Tensor {
	return FromAnyValue(value)
}

// FromAnyValue is the non-generic version of FromValue.
// If the input is a tensor already, it is simply returned.
//
// It panics with an error if `value` type is unsupported or the shape is not regular.
func FromAnyValue(value any) *Tensor {
	if valueT, ok := value.(*Tensor); ok {
		return valueT
	}
	shape, err := shapeForValue(value)
	if err != nil {
		panic(errors.Wrapf(err, "cannot create shape from %T", value))
	}
	flat := make([]float64, 0, shape.Size())
	flat = appendFlatRecursively(flat, reflect.ValueOf(value))
	return fromFloat64(shape.DType, flat, shape.Dimensions...)
}

func appendFlatRecursively(flat []float64, v reflect.Value) []float64 {
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		for ii := range v.Len() {
			flat = appendFlatRecursively(flat, v.Index(ii))
		}
		return flat
	}
	return append(flat, toFloat64(v))
}

func shapeForValue(v any) (shape shapes.Shape, err error) {
	err = shapeForValueRecursive(&shape, reflect.ValueOf(v), reflect.TypeOf(v))
	return
}

func shapeForValueRecursive(shape *shapes.Shape, v reflect.Value, t reflect.Type) error {
	if t == nil {
		return errors.New("cannot convert nil to a tensor")
	}
	if t.Kind() == reflect.Slice {
		t = t.Elem()
		shape.Dimensions = append(shape.Dimensions, v.Len())
		shapePrefix := shape.Clone()
		if v.Len() == 0 {
			exceptions.Panicf("value with empty slice not valid for Tensor conversion: %T: %v -- use tensors.Zeros for zero-sized tensors", v.Interface(), v)
		}
		if err := shapeForValueRecursive(shape, v.Index(0), t); err != nil {
			return err
		}
		for ii := 1; ii < v.Len(); ii++ {
			shapeTest := shapePrefix.Clone()
			if err := shapeForValueRecursive(&shapeTest, v.Index(ii), t); err != nil {
				return err
			}
			if !shape.Equal(shapeTest) {
				return errors.Errorf("sub-slices have irregular shapes, found shapes %q, and %q", shape, shapeTest)
			}
		}
		return nil
	}
	if t.Kind() == reflect.Pointer {
		return errors.Errorf("cannot convert Pointer (%s) to a concrete value for tensors", t)
	}
	if t.Kind() == reflect.Int {
		// Go `int` is stored as Int64 (or Int32 on 32-bit platforms).
		if strconv.IntSize == 32 {
			shape.DType = dtypes.Int32
		} else {
			shape.DType = dtypes.Int64
		}
		return nil
	}
	shape.DType = dtypes.FromGoType(t)
	if shape.DType == dtypes.InvalidDType {
		return errors.Errorf("cannot convert type %s to a value concrete tensor type (maybe type not supported yet?)", t)
	}
	return nil
}

var float16Type = reflect.TypeOf(float16.Float16(0))

func toFloat64(v reflect.Value) float64 {
	if v.Type() == float16Type {
		return float64(v.Interface().(float16.Float16).Float32())
	}
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	default:
		exceptions.Panicf("unsupported value type %s for tensors", v.Type())
	}
	return 0
}

// castValue rounds v to what can be represented in dtype.
func castValue(dtype dtypes.DType, v float64) float64 {
	switch dtype {
	case dtypes.Float64:
		return v
	case dtypes.Float32:
		return float64(float32(v))
	case dtypes.Float16:
		return float64(float16.Fromfloat32(float32(v)).Float32())
	case dtypes.Bool:
		if v != 0 {
			return 1
		}
		return 0
	case dtypes.Int64:
		return float64(castInt[int64](v))
	case dtypes.Int32:
		return float64(castInt[int32](v))
	case dtypes.Int16:
		return float64(castInt[int16](v))
	case dtypes.Int8:
		return float64(castInt[int8](v))
	case dtypes.Uint8:
		return float64(castInt[uint8](v))
	}
	exceptions.Panicf("dtype %s not supported by tensors", dtype)
	return 0
}

func castInt[T constraints.Integer](v float64) T {
	if math.IsNaN(v) {
		return 0
	}
	return T(math.Trunc(v))
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor's shape.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// IsScalar returns whether the tensor represents a scalar value.
func (t *Tensor) IsScalar() bool { return t.shape.IsScalar() }

// Size returns the number of elements in the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory returns the number of bytes used by the tensor in its native DType.
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// Dimensions returns a copy of the tensor's dimensions.
func (t *Tensor) Dimensions() []int { return slices.Clone(t.shape.Dimensions) }

// Flat returns a copy of the flat data, as float64.
func (t *Tensor) Flat() []float64 { return slices.Clone(t.flat) }

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{shape: t.shape.Clone(), flat: slices.Clone(t.flat)}
}

// Item returns the single value of a tensor with exactly one element.
func (t *Tensor) Item() float64 {
	if t.Size() != 1 {
		exceptions.Panicf("Item() requires a tensor with exactly one element, got shape %s", t.shape)
	}
	return t.flat[0]
}

// LayoutStrides return the strides for each axis, in number of elements.
func (t *Tensor) LayoutStrides() (strides []int) {
	rank := t.shape.Rank()
	if rank == 0 {
		return
	}
	strides = make([]int, rank)
	currentStride := 1
	for dim := rank - 1; dim >= 0; dim-- {
		strides[dim] = currentStride
		currentStride *= t.shape.Dimensions[dim]
	}
	return
}

// Value returns a multidimensional slice (or a scalar) of the Go type of the DType, with a copy of the data.
// E.g.: a Float32 tensor of shape [2, 3] returns a [][]float32.
func (t *Tensor) Value() any {
	goType := t.shape.DType.GoType()
	flatV := reflect.MakeSlice(reflect.SliceOf(goType), len(t.flat), len(t.flat))
	for ii, v := range t.flat {
		flatV.Index(ii).Set(fromFloat64Value(goType, v))
	}
	if t.shape.IsScalar() {
		return flatV.Index(0).Interface()
	}
	return convertDataToSlices(flatV, t.shape.Dimensions...).Interface()
}

func fromFloat64Value(goType reflect.Type, v float64) reflect.Value {
	switch {
	case goType == float16Type:
		return reflect.ValueOf(float16.Fromfloat32(float32(v)))
	case goType.Kind() == reflect.Bool:
		return reflect.ValueOf(v != 0)
	default:
		return reflect.ValueOf(v).Convert(goType)
	}
}

// convertDataToSlices takes data as a flat slice, and creates a multidimensional slices with the given dimensions that
// points to the given data.
func convertDataToSlices(dataV reflect.Value, dimensions ...int) reflect.Value {
	if len(dimensions) <= 1 {
		return dataV
	}
	resultT := dataV.Type().Elem()
	for range dimensions {
		resultT = reflect.SliceOf(resultT)
	}
	strides := make([]int, len(dimensions))
	currentStride := 1
	for dim := len(dimensions) - 1; dim >= 0; dim-- {
		strides[dim] = currentStride
		currentStride *= dimensions[dim]
	}
	return createSlicesRecursively(resultT, dataV, dimensions, strides)
}

func createSlicesRecursively(resultT reflect.Type, data reflect.Value, dimensions []int, strides []int) reflect.Value {
	if len(strides) == 1 {
		return data
	}
	numElements := dimensions[0]
	slice := reflect.MakeSlice(resultT, numElements, numElements)
	for ii := range numElements {
		subData := data.Slice(ii*strides[0], (ii+1)*strides[0])
		slice.Index(ii).Set(createSlicesRecursively(resultT.Elem(), subData, dimensions[1:], strides[1:]))
	}
	return slice
}

// Equal checks whether t == otherTensor: same shape and same values.
// If they are the same pointer they are considered equal.
func (t *Tensor) Equal(otherTensor *Tensor) bool {
	if t == otherTensor {
		return true
	}
	if t == nil || otherTensor == nil || !t.shape.Equal(otherTensor.shape) {
		return false
	}
	return slices.Equal(t.flat, otherTensor.flat)
}

// InDelta checks whether Abs(t - otherTensor) < delta for every element, and that the dimensions match.
// DTypes are not compared.
func (t *Tensor) InDelta(otherTensor *Tensor, delta float64) bool {
	if t == otherTensor {
		return true
	}
	if t == nil || otherTensor == nil || !t.shape.EqualDimensions(otherTensor.shape) {
		return false
	}
	for ii, v := range t.flat {
		v2 := otherTensor.flat[ii]
		if math.IsNaN(v) && math.IsNaN(v2) {
			continue
		}
		if math.Abs(v-v2) > delta {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	if t == nil {
		return "<nil tensor>"
	}
	if t.shape.IsZeroSize() {
		return fmt.Sprintf("%s: []", t.shape)
	}
	return fmt.Sprintf("%s: %v", t.shape, t.Value())
}
