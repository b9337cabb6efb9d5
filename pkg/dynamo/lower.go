// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"maps"
	"math"
	"strings"
	"time"

	"github.com/gomlx/dynexport/pkg/core/graph"
	"github.com/gomlx/dynexport/pkg/core/ops"
	"github.com/gomlx/dynexport/pkg/core/values"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Lower rewrites the frozen high-level graph g into the "aten.*" operator set, using the default
// decompositions overridden by table. The input graph is not modified.
//
// Lowering replays the graph applying the decompositions, until a pass makes no change. Decompositions
// may emit operators that are themselves decomposed in the next pass. If no fixed point is reached within
// config.MaxDecompositionPasses, an *InvalidConfigurationError is returned.
func Lower(g *graph.Graph, table DecompositionTable, config Config) (lowered *graph.Graph, err error) {
	if err = config.Validate(); err != nil {
		return nil, err
	}
	err = exceptions.TryCatch[error](func() { lowered = lower(g, table, config) })
	if err != nil && !IsUnsupported(err) && !IsInvalidConfiguration(err) {
		err = errors.WithMessagef(err, "failed to lower graph %q", g.Name())
	}
	return
}

func lower(g *graph.Graph, table DecompositionTable, config Config) *graph.Graph {
	g.AssertFrozen()
	combined := DefaultDecompositions()
	maps.Copy(combined, table)
	start := time.Now()
	current := g
	for pass := 1; ; pass++ {
		ctx := newExportContext(config, g.Name())
		root := newTracer(ctx, nil, graph.New(g.Name()))
		var progress bool
		ctx.withTracer(root, func() { progress = root.replay(current, combined) })
		root.graph.Finalize()
		current = root.graph
		klog.V(2).Infof("dynamo: lowering %q pass #%d: %d nodes, progress=%v", g.Name(), pass, len(current.Nodes()), progress)
		if !progress {
			break
		}
		if pass >= config.MaxDecompositionPasses {
			panicInvalidConfiguration("lowering of graph %q didn't converge after %d passes, "+
				"probably a decomposition re-emits the operator it replaces", g.Name(), pass)
		}
	}
	if klog.V(1).Enabled() {
		klog.Infof("dynamo: lowered %q in %s: %d nodes", g.Name(), time.Since(start), len(current.Nodes()))
	}
	return current
}

// lowerSubGraph lowers a sub-graph into a new sub-graph of t's graph, iterating to a fixed point.
func (t *tracer) lowerSubGraph(sub *graph.Graph, table DecompositionTable) *graph.Graph {
	current := sub
	for pass := 1; ; pass++ {
		child := newTracer(t.ctx, t, t.graph.NewSubGraph(sub.Name()))
		var progress bool
		t.ctx.withTracer(child, func() { progress = child.replay(current, table) })
		child.graph.Finalize()
		current = child.graph
		if !progress {
			return current
		}
		if pass >= t.ctx.config.MaxDecompositionPasses {
			panicInvalidConfiguration("lowering of sub-graph %q didn't converge after %d passes, "+
				"probably a decomposition re-emits the operator it replaces", sub.Name(), pass)
		}
	}
}

// replay records into t the nodes of src, applying the decompositions in table. It returns whether
// any node was replaced.
func (t *tracer) replay(src *graph.Graph, table DecompositionTable) (progress bool) {
	ctx := t.ctx
	previous := ctx.inherited
	defer func() { ctx.inherited = previous }()
	env := make(map[*graph.Node]Value, len(src.Nodes()))
	for _, node := range src.Nodes() {
		provenance := node.Provenance()
		ctx.inherited = &provenance
		switch node.Type() {
		case graph.NodeTypePlaceholder:
			meta := node.Meta()
			p := &Proxy{tracer: t, example: meta.Val, dims: meta.SymDims, sym: meta.Sym}
			p.node = t.graph.Placeholder(node.Name(), p.meta())
			env[node] = proxyValue(p)

		case graph.NodeTypeGetAttribute:
			env[node] = t.replayAttribute(src, node, table)

		case graph.NodeTypeCallOperation:
			checkLowerable(ctx, node)
			before := t.graph.NumNodes()
			env[node] = t.replayCall(node, env, table)
			added := t.graph.Nodes()[before:]
			if len(added) != 1 || added[0].Target() != node.Target() {
				progress = true
			}

		case graph.NodeTypeOutput:
			outputs := make([]graph.Arg, len(node.Args()))
			for ii, arg := range node.Args() {
				outputs[ii] = t.mapArg(arg, env)
			}
			t.graph.SetOutput(outputs)
		}
	}
	return
}

// checkLowerable panics if node computes on symbolic shapes and the tracing mode is not symbolic.
func checkLowerable(ctx *exportContext, node *graph.Node) {
	if ctx.config.TracingMode == TracingSymbolic {
		return
	}
	target := node.Target()
	if target == ops.Size || strings.HasPrefix(target, "sym_") || node.Meta().Sym != nil {
		panicInvalidConfiguration("node %%%s (%s) computes on dynamic shapes, lowering it requires tracing_mode=%q",
			node.Name(), target, TracingSymbolic)
	}
}

// replayAttribute registers in t's graph the attribute read by node, lowering sub-graphs.
func (t *tracer) replayAttribute(src *graph.Graph, node *graph.Node, table DecompositionTable) Value {
	name := node.Target()
	if tensor := src.AttributeTensor(name); tensor != nil {
		attrName, found := t.ctx.attrNames[tensor]
		if !found {
			attrName = t.graph.AddTensorAttribute(name, tensor)
			t.ctx.attrNames[tensor] = attrName
		}
		if p, found := t.params[tensor]; found {
			return proxyValue(p)
		}
		meta := node.Meta()
		p := &Proxy{tracer: t, example: values.Tensor(tensor), dims: meta.SymDims}
		p.node = t.graph.GetAttribute(attrName, p.meta(), node.Provenance())
		t.params[tensor] = p
		return proxyValue(p)
	}
	sub := src.AttributeGraph(name)
	if sub == nil {
		exceptions.Panicf("graph %q has no attribute %q", src.Name(), name)
	}
	lowered := t.lowerSubGraph(sub, table)
	p := &Proxy{tracer: t}
	p.node = t.graphAttribute(lowered)
	p.example = p.node.Meta().Val
	return proxyValue(p)
}

// argValue returns the value of a node argument that is a node or a literal.
func argValue(arg graph.Arg, env map[*graph.Node]Value) Value {
	switch arg.Kind {
	case graph.ArgNode:
		return env[arg.Node]
	case graph.ArgLiteral:
		return Lit(arg.Literal)
	}
	exceptions.Panicf("argument %s is not a single value", arg)
	return None()
}

// mapArg converts an argument of the source graph to an argument of t's graph.
func (t *tracer) mapArg(arg graph.Arg, env map[*graph.Node]Value) graph.Arg {
	return arg.Map(func(node *graph.Node) graph.Arg { return t.arg(env[node]) })
}

func (t *tracer) replayCall(node *graph.Node, env map[*graph.Node]Value, table DecompositionTable) Value {
	args := node.Args()
	switch node.Target() {
	case ops.Size:
		x := argValue(args[0], env)
		if x.proxy == nil {
			return Lit(values.Ints(x.ExampleTensor().Dimensions()...))
		}
		// Shapes are read per dimension in lowered graphs: see getListItem.
		return proxyValue(&Proxy{tracer: t, example: node.Meta().Val, shapeOf: x.proxy})

	case ops.GetItem:
		container := argValue(args[0], env)
		switch container.Kind() {
		case values.KindList:
			if container.proxy != nil && container.proxy.shapeOf != nil {
				return GetItem(container, At(Lit(args[1].Literal)))
			}
		case values.KindTensor:
			return lowerIndexing(container, t.indicesOf(args[1], env))
		}
		return t.replayAsIs(node, env)
	}

	decomposition, found := table[node.Target()]
	if !found {
		return t.replayAsIs(node, env)
	}
	operands := make([]Value, len(args))
	for ii, arg := range args {
		if arg.Kind != graph.ArgNode && arg.Kind != graph.ArgLiteral {
			return t.replayAsIs(node, env)
		}
		operands[ii] = argValue(arg, env)
	}
	return decomposition(operands...)
}

// replayAsIs records node with the same target and metadata.
func (t *tracer) replayAsIs(node *graph.Node, env map[*graph.Node]Value) Value {
	args := make([]graph.Arg, len(node.Args()))
	for ii, arg := range node.Args() {
		args[ii] = t.mapArg(arg, env)
	}
	meta := node.Meta()
	return proxyValue(t.call(node.Target(), args, meta.Val, meta.SymDims, meta.Sym))
}

// indicesOf converts the index argument of a tensor "getitem" back to indices.
func (t *tracer) indicesOf(index graph.Arg, env map[*graph.Node]Value) []Index {
	items := []graph.Arg{index}
	if index.Kind == graph.ArgList {
		items = index.Items
	}
	indices := make([]Index, len(items))
	for ii, item := range items {
		if item.Kind == graph.ArgSlice {
			indices[ii] = Sl(argValue(item.Items[0], env), argValue(item.Items[1], env), argValue(item.Items[2], env))
		} else {
			indices[ii] = At(argValue(item, env))
		}
	}
	return indices
}

// lowerIndexing expresses the indexing of a tensor with one "aten.select.int" per position and one
// "aten.slice.Tensor" per slice.
func lowerIndexing(x Value, indices []Index) Value {
	axis := 0
	for _, idx := range indices {
		if !idx.isSlice {
			x = record(ops.AtenSelect, x, Int(axis), idx.at)
			continue
		}
		start, stop, step := idx.start, idx.stop, idx.step
		if start.IsNone() {
			start = Int(0)
		}
		if stop.IsNone() {
			stop = Int(math.MaxInt)
		}
		if step.IsNone() {
			step = Int(1)
		}
		x = record(ops.AtenSlice, x, Int(axis), start, stop, step)
		axis++
	}
	return x
}
