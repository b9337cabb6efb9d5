// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"time"

	"github.com/gomlx/dynexport/pkg/core/ops"
	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/dynexport/pkg/core/values"
	"github.com/gomlx/dynexport/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Run executes the frozen graph g on the given inputs, one per placeholder, and returns one value per output argument.
//
// Call nodes are executed with the kernels of the ops registry, except "cond" and "map", executed by the
// interpreter itself:
//
//   - cond(pred, true_graph, false_graph, [operands...]): runs only the sub-graph selected by pred on the
//     operands, and returns the list of its outputs.
//   - map(body_graph, xs, [extras...]): runs the body once per slice of xs along its first axis, with the
//     extras appended as inputs, and returns the list of its outputs, each stacked along a new first axis.
func Run(g *Graph, inputs []values.Literal) (outputs []values.Literal, err error) {
	err = exceptions.TryCatch[error](func() {
		var start time.Time
		if klog.V(1).Enabled() {
			start = time.Now()
		}
		outputs = run(g, inputs)
		if klog.V(1).Enabled() {
			klog.Infof("graph.Run(%q): %s elapsed", g.Name(), time.Since(start))
		}
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to run graph %q", g.Name())
	}
	return outputs, nil
}

// run is like Run, but panics on errors.
func run(g *Graph, inputs []values.Literal) []values.Literal {
	g.AssertFrozen()
	if len(inputs) != len(g.placeholders) {
		exceptions.Panicf("graph %q takes %d inputs, but %d were given", g.name, len(g.placeholders), len(inputs))
	}
	env := make(map[*Node]values.Literal, len(g.nodes))
	resolve := func(arg Arg) values.Literal { return resolveArg(env, arg) }
	for _, node := range g.nodes {
		var result values.Literal
		switch node.nodeType {
		case NodeTypePlaceholder:
			result = inputs[node.slot]
		case NodeTypeGetAttribute:
			if t := g.attrs.tensors[node.target]; t != nil {
				result = values.Tensor(t)
			} else {
				// Sub-graphs are referred to by name.
				result = values.String(node.target)
			}
		case NodeTypeCallOperation:
			args := xslices.Map(node.args, resolve)
			switch node.target {
			case ops.Cond:
				result = runCond(g, node, args)
			case ops.Map:
				result = runMap(g, node, args)
			default:
				result = ops.Execute(node.target, args...)
			}
		case NodeTypeOutput:
			return xslices.Map(node.args, resolve)
		}
		if klog.V(2).Enabled() {
			klog.Infof("graph %q: %s = %s", g.name, node.name, result)
		}
		env[node] = result
	}
	exceptions.Panicf("graph %q has no output node", g.name)
	return nil
}

func resolveArg(env map[*Node]values.Literal, arg Arg) values.Literal {
	switch arg.Kind {
	case ArgNode:
		return env[arg.Node]
	case ArgLiteral:
		return arg.Literal
	case ArgSlice:
		items := make([]values.Literal, 3)
		for ii, item := range arg.Items {
			items[ii] = resolveArg(env, item)
		}
		return values.Slice(items[0], items[1], items[2])
	}
	items := make([]values.Literal, len(arg.Items))
	for ii, item := range arg.Items {
		items[ii] = resolveArg(env, item)
	}
	return values.List(items...)
}

// subGraphArg returns the sub-graph referred to by an argument of node.
func subGraphArg(g *Graph, node *Node, arg values.Literal) *Graph {
	if arg.Kind != values.KindString {
		exceptions.Panicf("%s: expected a sub-graph attribute, got %s", node.name, arg.Kind)
	}
	sub := g.attrs.graphs[arg.Str]
	if sub == nil {
		exceptions.Panicf("%s: unknown sub-graph attribute %q", node.name, arg.Str)
	}
	return sub
}

func runCond(g *Graph, node *Node, args []values.Literal) values.Literal {
	if len(args) != 4 {
		exceptions.Panicf("%s: cond takes 4 arguments, got %d", node.name, len(args))
	}
	pred := args[0]
	if pred.Kind == values.KindTensor && pred.Tensor.Size() != 1 {
		exceptions.Panicf("%s: cond predicate must have exactly one element, got shape %s", node.name, pred.Tensor.Shape())
	}
	branch := args[2]
	if pred.AsBool() {
		branch = args[1]
	}
	return values.List(run(subGraphArg(g, node, branch), args[3].Items)...)
}

func runMap(g *Graph, node *Node, args []values.Literal) values.Literal {
	if len(args) != 3 {
		exceptions.Panicf("%s: map takes 3 arguments, got %d", node.name, len(args))
	}
	body := subGraphArg(g, node, args[0])
	xs := args[1].AsTensor()
	if xs.Rank() == 0 || xs.Shape().Dim(0) == 0 {
		exceptions.Panicf("%s: map requires a non-empty leading axis, got shape %s", node.name, xs.Shape())
	}
	var perOutput [][]*tensors.Tensor
	for ii := range xs.Shape().Dim(0) {
		bodyInputs := append([]values.Literal{values.Tensor(tensors.Select(xs, 0, ii))}, args[2].Items...)
		results := run(body, bodyInputs)
		if perOutput == nil {
			perOutput = make([][]*tensors.Tensor, len(results))
		}
		for jj, result := range results {
			perOutput[jj] = append(perOutput[jj], result.AsTensor())
		}
	}
	return values.List(xslices.Map(perOutput, func(ts []*tensors.Tensor) values.Literal {
		return values.Tensor(tensors.Stack(ts))
	})...)
}
