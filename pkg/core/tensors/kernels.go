// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"math"
	"slices"

	"github.com/gomlx/dynexport/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// BinaryOp enumerates the element-wise arithmetic kernels.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
)

// CompareOp enumerates the element-wise comparison kernels.
type CompareOp int

const (
	OpLessThan CompareOp = iota
	OpLessOrEqual
	OpGreaterThan
	OpGreaterOrEqual
	OpEqual
	OpNotEqual
)

// dtypeRank orders dtypes for promotion: bool < integers < floats, and by bit width within each class.
func dtypeRank(dtype dtypes.DType) int {
	switch {
	case dtype == dtypes.Bool:
		return 0
	case dtype.IsInt():
		return 10 + int(dtype.Memory())
	case dtype.IsFloat():
		return 100 + int(dtype.Memory())
	}
	exceptions.Panicf("dtype %s not supported by tensors", dtype)
	return -1
}

// PromoteDTypes returns the dtype resulting of an arithmetic operation between dtypes a and b.
func PromoteDTypes(a, b dtypes.DType) dtypes.DType {
	if dtypeRank(a) >= dtypeRank(b) {
		return a
	}
	return b
}

// ConvertDType returns a copy of t converted to dtype. If t is already of the given dtype it is returned as is.
func ConvertDType(t *Tensor, dtype dtypes.DType) *Tensor {
	if t.DType() == dtype {
		return t
	}
	return FromFlat(dtype, t.flat, t.shape.Dimensions...)
}

// broadcastStrides returns the strides of src, with stride 0 on broadcast axes, aligned to outDims.
func broadcastStrides(src shapes.Shape, outDims []int) []int {
	strides := make([]int, len(outDims))
	stride := 1
	offset := len(outDims) - src.Rank()
	for axis := src.Rank() - 1; axis >= 0; axis-- {
		if src.Dimensions[axis] != 1 {
			strides[axis+offset] = stride
		}
		stride *= src.Dimensions[axis]
	}
	return strides
}

// broadcastApply calls fn for each element of the broadcast result of a and b.
func broadcastApply(a, b *Tensor, fn func(x, y float64) float64) ([]float64, []int) {
	outDims, err := shapes.Broadcast(a.shape, b.shape)
	if err != nil {
		panic(err)
	}
	size := 1
	for _, d := range outDims {
		size *= d
	}
	out := make([]float64, size)
	stridesA := broadcastStrides(a.shape, outDims)
	stridesB := broadcastStrides(b.shape, outDims)
	index := make([]int, len(outDims))
	posA, posB := 0, 0
	for ii := range out {
		out[ii] = fn(a.flat[posA], b.flat[posB])
		// Increment multi-dimensional index.
		for axis := len(outDims) - 1; axis >= 0; axis-- {
			index[axis]++
			posA += stridesA[axis]
			posB += stridesB[axis]
			if index[axis] < outDims[axis] {
				break
			}
			posA -= stridesA[axis] * outDims[axis]
			posB -= stridesB[axis] * outDims[axis]
			index[axis] = 0
		}
	}
	return out, outDims
}

// Binary applies the element-wise arithmetic op, with numpy-style broadcasting and dtype promotion.
// Division of integers produces Float32 (true division).
func Binary(op BinaryOp, a, b *Tensor) *Tensor {
	dtype := PromoteDTypes(a.DType(), b.DType())
	var fn func(x, y float64) float64
	switch op {
	case OpAdd:
		fn = func(x, y float64) float64 { return x + y }
	case OpSub:
		fn = func(x, y float64) float64 { return x - y }
	case OpMul:
		fn = func(x, y float64) float64 { return x * y }
	case OpDiv:
		fn = func(x, y float64) float64 { return x / y }
		if !dtype.IsFloat() {
			dtype = dtypes.Float32
		}
	default:
		exceptions.Panicf("unknown BinaryOp %d", op)
	}
	if dtype == dtypes.Bool {
		dtype = dtypes.Int64
	}
	flat, dims := broadcastApply(a, b, fn)
	return fromFloat64(dtype, flat, dims...)
}

// Compare applies the element-wise comparison, with broadcasting. The result is a Bool tensor.
func Compare(op CompareOp, a, b *Tensor) *Tensor {
	var fn func(x, y float64) bool
	switch op {
	case OpLessThan:
		fn = func(x, y float64) bool { return x < y }
	case OpLessOrEqual:
		fn = func(x, y float64) bool { return x <= y }
	case OpGreaterThan:
		fn = func(x, y float64) bool { return x > y }
	case OpGreaterOrEqual:
		fn = func(x, y float64) bool { return x >= y }
	case OpEqual:
		fn = func(x, y float64) bool { return x == y }
	case OpNotEqual:
		fn = func(x, y float64) bool { return x != y }
	default:
		exceptions.Panicf("unknown CompareOp %d", op)
	}
	flat, dims := broadcastApply(a, b, func(x, y float64) float64 {
		if fn(x, y) {
			return 1
		}
		return 0
	})
	return fromFloat64(dtypes.Bool, flat, dims...)
}

func unary(t *Tensor, floatResult bool, fn func(float64) float64) *Tensor {
	dtype := t.DType()
	if floatResult && !dtype.IsFloat() {
		dtype = dtypes.Float32
	}
	flat := make([]float64, len(t.flat))
	for ii, v := range t.flat {
		flat[ii] = fn(v)
	}
	return fromFloat64(dtype, flat, t.shape.Dimensions...)
}

// Neg returns -t.
func Neg(t *Tensor) *Tensor { return unary(t, false, func(x float64) float64 { return -x }) }

// Sin returns the element-wise sine. Integer tensors produce Float32.
func Sin(t *Tensor) *Tensor { return unary(t, true, math.Sin) }

// Cos returns the element-wise cosine. Integer tensors produce Float32.
func Cos(t *Tensor) *Tensor { return unary(t, true, math.Cos) }

// Relu returns max(t, 0).
func Relu(t *Tensor) *Tensor { return unary(t, false, func(x float64) float64 { return max(x, 0) }) }

// Transpose swaps the two axes of a rank-2 tensor. Tensors with rank < 2 are returned as is.
func Transpose(t *Tensor) *Tensor {
	switch t.Rank() {
	case 0, 1:
		return t
	case 2:
	default:
		exceptions.Panicf("Transpose expects a tensor with rank <= 2, got shape %s", t.shape)
	}
	rows, cols := t.shape.Dimensions[0], t.shape.Dimensions[1]
	flat := make([]float64, len(t.flat))
	for r := range rows {
		for c := range cols {
			flat[c*rows+r] = t.flat[r*cols+c]
		}
	}
	return fromFloat64(t.DType(), flat, cols, rows)
}

// MatMul returns the matrix product of a and b. Rank-1 operands are treated as a row vector (for a) or
// column vector (for b), and the corresponding axis is dropped from the result.
func MatMul(a, b *Tensor) *Tensor {
	if a.Rank() == 0 || b.Rank() == 0 || a.Rank() > 2 || b.Rank() > 2 {
		exceptions.Panicf("MatMul requires operands of rank 1 or 2, got %s and %s", a.shape, b.shape)
	}
	aRows, aCols := 1, a.shape.Dim(-1)
	if a.Rank() == 2 {
		aRows = a.shape.Dimensions[0]
	}
	bRows, bCols := b.shape.Dimensions[0], 1
	if b.Rank() == 2 {
		bCols = b.shape.Dimensions[1]
	}
	if aCols != bRows {
		exceptions.Panicf("MatMul contracting dimensions don't match: %s and %s", a.shape, b.shape)
	}
	var outDims []int
	if a.Rank() == 2 {
		outDims = append(outDims, aRows)
	}
	if b.Rank() == 2 {
		outDims = append(outDims, bCols)
	}
	dtype := PromoteDTypes(a.DType(), b.DType())
	if aRows*aCols == 0 || bRows*bCols == 0 {
		return Zeros(dtype, outDims...)
	}
	var out mat.Dense
	out.Mul(mat.NewDense(aRows, aCols, slices.Clone(a.flat)), mat.NewDense(bRows, bCols, slices.Clone(b.flat)))
	return fromFloat64(dtype, slices.Clone(out.RawMatrix().Data), outDims...)
}

// Sum reduces all elements to a scalar. Bool and integer tensors sum to Int64.
func Sum(t *Tensor) *Tensor {
	dtype := t.DType()
	if !dtype.IsFloat() {
		dtype = dtypes.Int64
	}
	return fromFloat64(dtype, []float64{floats.Sum(t.flat)})
}

// NonZero returns an Int64 tensor of shape [n, rank] with the indices of the n non-zero elements of t.
func NonZero(t *Tensor) *Tensor {
	strides := t.LayoutStrides()
	var flat []float64
	count := 0
	for ii, v := range t.flat {
		if v == 0 {
			continue
		}
		count++
		rem := ii
		for _, stride := range strides {
			flat = append(flat, float64(rem/stride))
			rem %= stride
		}
	}
	if flat == nil {
		flat = []float64{}
	}
	return fromFloat64(dtypes.Int64, flat, count, t.Rank())
}

// Select takes the given index along axis, removing the axis. Negative index counts from the end.
func Select(t *Tensor, axis, index int) *Tensor {
	axis = t.shape.AdjustAxis(axis)
	dim := t.shape.Dimensions[axis]
	if index < 0 {
		index += dim
	}
	if index < 0 || index >= dim {
		exceptions.Panicf("index %d out of bounds for axis %d with size %d", index, axis, dim)
	}
	sliced := Slice(t, axis, index, index+1, 1)
	dims := slices.Delete(sliced.Dimensions(), axis, axis+1)
	return &Tensor{shape: shapes.Make(t.DType(), dims...), flat: sliced.flat}
}

// NormalizeSliceBounds converts Python-like slice bounds (which may be negative or out-of-range) to
// valid [start, stop) bounds for an axis of size dim. Step must be positive.
func NormalizeSliceBounds(dim, start, stop, step int) (int, int) {
	if step <= 0 {
		exceptions.Panicf("slice step must be positive, got %d", step)
	}
	clamp := func(v int) int {
		if v < 0 {
			v += dim
		}
		return min(max(v, 0), dim)
	}
	start, stop = clamp(start), clamp(stop)
	if stop < start {
		stop = start
	}
	return start, stop
}

// Slice takes the elements start:stop:step along axis. Bounds follow NormalizeSliceBounds.
func Slice(t *Tensor, axis, start, stop, step int) *Tensor {
	axis = t.shape.AdjustAxis(axis)
	dim := t.shape.Dimensions[axis]
	start, stop = NormalizeSliceBounds(dim, start, stop, step)
	newDim := (stop - start + step - 1) / step
	outer := 1
	for _, d := range t.shape.Dimensions[:axis] {
		outer *= d
	}
	inner := 1
	for _, d := range t.shape.Dimensions[axis+1:] {
		inner *= d
	}
	flat := make([]float64, 0, outer*newDim*inner)
	for o := range outer {
		for i := start; i < stop; i += step {
			base := (o*dim + i) * inner
			flat = append(flat, t.flat[base:base+inner]...)
		}
	}
	dims := t.Dimensions()
	dims[axis] = newDim
	return &Tensor{shape: shapes.Make(t.DType(), dims...), flat: flat}
}

// Stack concatenates tensors of the same shape along a new leading axis.
func Stack(ts []*Tensor) *Tensor {
	if len(ts) == 0 {
		exceptions.Panicf("Stack requires at least one tensor")
	}
	shape := ts[0].shape
	flat := make([]float64, 0, len(ts)*shape.Size())
	for ii, t := range ts {
		if !t.shape.Equal(shape) {
			exceptions.Panicf("Stack requires tensors of the same shape, tensor #%d has shape %s, wanted %s", ii, t.shape, shape)
		}
		flat = append(flat, t.flat...)
	}
	dims := append([]int{len(ts)}, shape.Dimensions...)
	return &Tensor{shape: shapes.Make(shape.DType, dims...), flat: flat}
}
