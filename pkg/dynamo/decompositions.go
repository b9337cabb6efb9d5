// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"github.com/gomlx/dynexport/pkg/core/ops"
)

// Decomposition expresses one operator in terms of others. It is called during lowering with the
// (traced) arguments of a node, and the nodes it records replace the node.
type Decomposition func(args ...Value) Value

// DecompositionTable maps operator targets to their decomposition.
type DecompositionTable map[string]Decomposition

// atenEquivalents lists the high-level operators with a direct low-level equivalent.
var atenEquivalents = map[string]string{
	ops.Add:     ops.AtenAdd,
	ops.Sub:     ops.AtenSub,
	ops.Mul:     ops.AtenMul,
	ops.Div:     ops.AtenDiv,
	ops.Neg:     ops.AtenNeg,
	ops.Sin:     ops.AtenSin,
	ops.Cos:     ops.AtenCos,
	ops.Relu:    ops.AtenRelu,
	ops.T:       ops.AtenT,
	ops.MatMul:  ops.AtenMM,
	ops.Sum:     ops.AtenSum,
	ops.Item:    ops.AtenLocalScalar,
	ops.NonZero: ops.AtenNonZero,
	ops.Lt:      ops.AtenLt,
	ops.Gt:      ops.AtenGt,
	ops.Eq:      ops.AtenEq,
	ops.Empty:   ops.AtenEmpty,
	ops.Stack:   ops.AtenStack,
}

// DefaultDecompositions returns a new table with the decompositions of all high-level operators.
// "size" and "getitem" are lowered by the lowering pass itself.
func DefaultDecompositions() DecompositionTable {
	table := make(DecompositionTable, len(atenEquivalents)+1)
	for target, aten := range atenEquivalents {
		table[target] = renameTo(aten)
	}
	table[ops.Linear] = decomposeLinear
	return table
}

// renameTo returns the decomposition recording the same arguments with another target.
func renameTo(target string) Decomposition {
	return func(args ...Value) Value { return record(target, args...) }
}

// decomposeLinear expresses x @ weight^T + bias with "aten.t" and "aten.addmm" (or "aten.mm" without bias).
func decomposeLinear(args ...Value) Value {
	x, weight := args[0], args[1]
	weightT := record(ops.AtenT, weight)
	if len(args) < 3 || args[2].IsNone() {
		return record(ops.AtenMM, x, weightT)
	}
	return record(ops.AtenAddMM, args[2], x, weightT)
}
