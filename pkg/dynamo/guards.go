// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"fmt"
	"strings"

	"github.com/gomlx/dynexport/pkg/core/symbolic"
	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/dynexport/pkg/core/values"
	"k8s.io/klog/v2"
)

// GuardSource is the category of a guard.
type GuardSource int

const (
	// GuardSourceLocal guards check the inputs of the exported function.
	GuardSourceLocal GuardSource = iota

	// GuardSourceConstant guards check the values of inputs embedded as constants in the graph.
	GuardSourceConstant

	// GuardSourceShapeEnv guards check relations between dimensions the trace depended on.
	GuardSourceShapeEnv
)

var guardSourceNames = []string{"LOCAL", "CONSTANT", "SHAPE_ENV"}

// String implements fmt.Stringer.
func (s GuardSource) String() string {
	if int(s) < 0 || int(s) >= len(guardSourceNames) {
		return fmt.Sprintf("GuardSource(%d)", int(s))
	}
	return guardSourceNames[s]
}

// Guard is a condition on the inputs the exported graph is valid for. Guards are only reported,
// checking them is left to the caller.
type Guard struct {
	Source GuardSource

	// Name of the input the guard is about, empty for SHAPE_ENV guards.
	Name string

	// Code is the human-readable predicate, e.g. "x.size()[0] <= 10".
	Code string

	// Origin is the "file:line" of the code that caused the guard.
	Origin string
}

// String implements fmt.Stringer.
func (g Guard) String() string {
	return fmt.Sprintf("%s: %s", g.Source, g.Code)
}

// emit appends a guard. Guards are kept in the order they are emitted, duplicates included.
func (ctx *exportContext) emit(source GuardSource, name, code, origin string) {
	guard := Guard{Source: source, Name: name, Code: code, Origin: origin}
	ctx.guards = append(ctx.guards, guard)
	if klog.V(2).Enabled() {
		klog.Infof("dynamo: guard %s (from %s)", guard, origin)
	}
}

// tensorMatchCode is the predicate of the guard on a tensor input.
func tensorMatchCode(name string, t *tensors.Tensor, dims []symbolic.Expr) string {
	parts := make([]string, t.Rank())
	for ii, dim := range t.Dimensions() {
		if dims != nil {
			parts[ii] = dims[ii].String()
		} else {
			parts[ii] = fmt.Sprint(dim)
		}
	}
	return fmt.Sprintf("TENSOR_MATCH: check_tensor(%s, %s, size=[%s])", name, t.DType(), strings.Join(parts, ", "))
}

// constantMatchCode is the predicate of the guard on a non-tensor input.
func constantMatchCode(name string, l values.Literal) string {
	return fmt.Sprintf("CONSTANT_MATCH: %s == %s", name, l)
}
