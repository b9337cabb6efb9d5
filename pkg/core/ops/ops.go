// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ops is the registry of operators that can appear as the target of a call node in a
// captured graph: their identifiers, whether they belong to the canonical low-level set, and the
// kernel that executes them on concrete values.
//
// High-level targets (e.g. "add", "t", "linear") are what a traced function records. Low-level
// targets ("aten.*") are the canonical instruction set produced by lowering. A handful of targets
// ("getitem", "cond", "map" and the "sym_*" integer arithmetic) are structural: they are valid in
// both kinds of graph.
package ops

import (
	"slices"

	"github.com/gomlx/dynexport/pkg/core/values"
	"github.com/gomlx/exceptions"
)

// Kernel executes an operator on concrete arguments.
type Kernel func(args []values.Literal) values.Literal

// Level of an operator.
type Level int

const (
	// HighLevel operators are recorded by traced functions, and are replaced by lowering.
	HighLevel Level = iota

	// LowLevel operators form the canonical instruction set of lowered graphs.
	LowLevel

	// Structural operators are valid in both high-level and lowered graphs.
	Structural
)

// OpDef describes one operator.
type OpDef struct {
	Target string
	Level  Level

	// Kernel is nil for operators executed by the interpreter itself (cond, map).
	Kernel Kernel
}

// High-level targets.
const (
	Add     = "add"
	Sub     = "sub"
	Mul     = "mul"
	Div     = "div"
	Neg     = "neg"
	Sin     = "sin"
	Cos     = "cos"
	Relu    = "relu"
	T       = "t"
	MatMul  = "matmul"
	Linear  = "linear"
	Sum     = "sum"
	Item    = "item"
	NonZero = "nonzero"
	Lt      = "lt"
	Gt      = "gt"
	Eq      = "eq"
	Empty   = "empty"
	Size    = "size"
	Stack   = "stack"
)

// Structural targets.
const (
	GetItem     = "getitem"
	Cond        = "cond"
	Map         = "map"
	SymAdd      = "sym_add"
	SymSub      = "sym_sub"
	SymMul      = "sym_mul"
	SymFloorDiv = "sym_floordiv"
)

// Low-level targets.
const (
	AtenAdd         = "aten.add.Tensor"
	AtenSub         = "aten.sub.Tensor"
	AtenMul         = "aten.mul.Tensor"
	AtenDiv         = "aten.div.Tensor"
	AtenNeg         = "aten.neg.default"
	AtenSin         = "aten.sin.default"
	AtenCos         = "aten.cos.default"
	AtenRelu        = "aten.relu.default"
	AtenT           = "aten.t.default"
	AtenMM          = "aten.mm.default"
	AtenAddMM       = "aten.addmm.default"
	AtenSum         = "aten.sum.default"
	AtenLocalScalar = "aten._local_scalar_dense.default"
	AtenNonZero     = "aten.nonzero.default"
	AtenLt          = "aten.lt.Tensor"
	AtenGt          = "aten.gt.Tensor"
	AtenEq          = "aten.eq.Tensor"
	AtenEmpty       = "aten.empty.memory_format"
	AtenSymSize     = "aten.sym_size.int"
	AtenSlice       = "aten.slice.Tensor"
	AtenSelect      = "aten.select.int"
	AtenStack       = "aten.stack.default"
)

var registry = make(map[string]*OpDef)

func register(target string, level Level, kernel Kernel) {
	if _, found := registry[target]; found {
		exceptions.Panicf("operator %q registered twice", target)
	}
	registry[target] = &OpDef{Target: target, Level: level, Kernel: kernel}
}

func init() {
	register(Add, HighLevel, binaryKernel(opAdd))
	register(Sub, HighLevel, binaryKernel(opSub))
	register(Mul, HighLevel, binaryKernel(opMul))
	register(Div, HighLevel, binaryKernel(opDiv))
	register(Neg, HighLevel, negKernel)
	register(Sin, HighLevel, sinKernel)
	register(Cos, HighLevel, cosKernel)
	register(Relu, HighLevel, reluKernel)
	register(T, HighLevel, transposeKernel)
	register(MatMul, HighLevel, matMulKernel)
	register(Linear, HighLevel, linearKernel)
	register(Sum, HighLevel, sumKernel)
	register(Item, HighLevel, itemKernel)
	register(NonZero, HighLevel, nonZeroKernel)
	register(Lt, HighLevel, compareKernel(cmpLt))
	register(Gt, HighLevel, compareKernel(cmpGt))
	register(Eq, HighLevel, compareKernel(cmpEq))
	register(Empty, HighLevel, emptyKernel)
	register(Size, HighLevel, sizeKernel)
	register(Stack, HighLevel, stackKernel)

	register(GetItem, Structural, getItemKernel)
	register(Cond, Structural, nil)
	register(Map, Structural, nil)
	register(SymAdd, Structural, binaryKernel(opAdd))
	register(SymSub, Structural, binaryKernel(opSub))
	register(SymMul, Structural, binaryKernel(opMul))
	register(SymFloorDiv, Structural, floorDivKernel)

	register(AtenAdd, LowLevel, binaryKernel(opAdd))
	register(AtenSub, LowLevel, binaryKernel(opSub))
	register(AtenMul, LowLevel, binaryKernel(opMul))
	register(AtenDiv, LowLevel, binaryKernel(opDiv))
	register(AtenNeg, LowLevel, negKernel)
	register(AtenSin, LowLevel, sinKernel)
	register(AtenCos, LowLevel, cosKernel)
	register(AtenRelu, LowLevel, reluKernel)
	register(AtenT, LowLevel, transposeKernel)
	register(AtenMM, LowLevel, matMulKernel)
	register(AtenAddMM, LowLevel, addMMKernel)
	register(AtenSum, LowLevel, sumKernel)
	register(AtenLocalScalar, LowLevel, itemKernel)
	register(AtenNonZero, LowLevel, nonZeroKernel)
	register(AtenLt, LowLevel, compareKernel(cmpLt))
	register(AtenGt, LowLevel, compareKernel(cmpGt))
	register(AtenEq, LowLevel, compareKernel(cmpEq))
	register(AtenEmpty, LowLevel, emptyKernel)
	register(AtenSymSize, LowLevel, symSizeKernel)
	register(AtenSlice, LowLevel, sliceKernel)
	register(AtenSelect, LowLevel, selectKernel)
	register(AtenStack, LowLevel, stackKernel)
}

// Lookup returns the definition of the operator with the given target.
func Lookup(target string) (*OpDef, bool) {
	def, found := registry[target]
	return def, found
}

// MustLookup is like Lookup, but panics if the target is not registered.
func MustLookup(target string) *OpDef {
	def, found := registry[target]
	if !found {
		exceptions.Panicf("unknown operator target %q", target)
	}
	return def
}

// IsLowLevel returns whether target is valid in a lowered graph: low-level or structural.
func IsLowLevel(target string) bool {
	def, found := registry[target]
	return found && def.Level != HighLevel
}

// Targets returns all registered targets of the given level, sorted.
func Targets(level Level) []string {
	var targets []string
	for target, def := range registry {
		if def.Level == level {
			targets = append(targets, target)
		}
	}
	slices.Sort(targets)
	return targets
}

// Execute runs the kernel of target on args.
func Execute(target string, args ...values.Literal) values.Literal {
	def := MustLookup(target)
	if def.Kernel == nil {
		exceptions.Panicf("operator %q has no kernel, it must be executed by the graph interpreter", target)
	}
	return def.Kernel(args)
}
