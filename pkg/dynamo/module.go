// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/dynexport/pkg/core/values"
)

// Module is a reusable component with parameters, e.g. a linear layer.
type Module interface {
	Forward(inputs ...*Tree) *Tree
}

// CallModule calls m.Forward. During an export, the nodes recorded by the call are attributed to the
// module named name (nested in the calling module, if any), and the parameters it reads are named after it.
func CallModule(name string, m Module, inputs ...*Tree) *Tree {
	ctx := contextOfTrees(inputs...)
	if ctx == nil {
		return m.Forward(inputs...)
	}
	pop := ctx.pushModule(name, m)
	defer pop()
	return m.Forward(inputs...)
}

// Parameter returns the value of the parameter t of a module, for use in a computation with like.
//
// If like is traced, the parameter is registered as an attribute of the graph (once per tensor, named after
// the module path and name) and read with a "get_attr" node. Otherwise t is returned as a literal.
func Parameter(like Value, name string, t *tensors.Tensor) Value {
	ctx := contextOf(like)
	if ctx == nil || ctx.eager > 0 {
		return Tensor(t)
	}
	tr := ctx.active
	if p, found := tr.params[t]; found {
		return proxyValue(p)
	}
	attrName, found := ctx.attrNames[t]
	if !found {
		base := name
		if path := ctx.modulePath(); path != "" {
			base = path + "." + name
		}
		attrName = tr.graph.AddTensorAttribute(base, t)
		ctx.attrNames[t] = attrName
	}
	p := &Proxy{tracer: tr, example: values.Tensor(t)}
	if ctx.config.IsDynamic() {
		p.dims = constDims(t.Dimensions())
	}
	p.node = tr.graph.GetAttribute(attrName, p.meta(), ctx.provenance())
	tr.params[t] = p
	return proxyValue(p)
}
