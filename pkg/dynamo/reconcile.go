// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"github.com/gomlx/dynexport/pkg/core/graph"
	"github.com/gomlx/dynexport/pkg/core/pytree"
	"github.com/gomlx/dynexport/pkg/core/values"
	"k8s.io/klog/v2"
)

// reconcileOutputs sets the outputs of t's graph from the tree returned by the traced function.
//
// Each distinct traced value is output once: the returned spec (the output plan) maps the leaves of the
// tree to positions in the graph outputs, so a value returned several times is aliased on the way back.
// Literal leaves are output as constants.
func (t *tracer) reconcileOutputs(out *Tree) *pytree.Spec {
	flat, plan := pytree.FlattenDedup(out, func(v Value) (*graph.Node, bool) {
		if v.proxy == nil || v.proxy.node == nil {
			return nil, false
		}
		return v.proxy.node, true
	})
	outputs := make([]graph.Arg, len(flat))
	for ii, v := range flat {
		if v.proxy == nil && v.literal.Kind == values.KindTensor {
			klog.Warningf("dynamo: output #%d of %q is a constant tensor %s, it doesn't depend on the inputs",
				ii, t.graph.Name(), v.literal.Tensor.Shape())
		}
		outputs[ii] = t.arg(v)
	}
	t.graph.SetOutput(outputs)
	return plan
}
