// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/gomlx/dynexport/pkg/core/graph"
	"github.com/gomlx/dynexport/pkg/core/symbolic"
	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/dynexport/pkg/support/xslices"
)

// exportContext holds the state of one export call (or of one lowering): it is never shared
// across calls, so independent exports can run concurrently.
type exportContext struct {
	config Config

	// active is the tracer currently recording: the root tracer or the one of a Cond/Map branch.
	active *tracer

	guards   []Guard
	shapeEnv *symbolic.ShapeEnv

	// constants caches the frozen results of AssumeConstantResult functions.
	constants map[*ConstantFn]*Tree

	// eager > 0 while running an AssumeConstantResult function on the example values.
	eager int

	moduleStack []graph.ModuleFrame

	// attrNames maps parameters to their attribute name, so each tensor is registered once.
	attrNames map[*tensors.Tensor]string

	// numConds and numMaps number the sub-graphs.
	numConds, numMaps int

	// inherited is the provenance assigned to all nodes recorded while lowering a node.
	inherited *graph.Provenance
}

func newExportContext(config Config, fnName string) *exportContext {
	ctx := &exportContext{
		config:      config,
		shapeEnv:    symbolic.NewShapeEnv(),
		constants:   make(map[*ConstantFn]*Tree),
		attrNames:   make(map[*tensors.Tensor]string),
		moduleStack: []graph.ModuleFrame{{Path: fnName, Type: "func"}},
	}
	ctx.shapeEnv.OnGuard = func(r symbolic.Relation) {
		_, origin := captureStack(1)
		ctx.emit(GuardSourceShapeEnv, "", r.SourceString(), origin)
	}
	return ctx
}

// tracer records into one graph. Nested tracers record the sub-graphs of Cond and Map.
type tracer struct {
	ctx    *exportContext
	parent *tracer
	graph  *graph.Graph

	// params deduplicates the GetAttribute nodes of parameters within the graph.
	params map[*tensors.Tensor]*Proxy
}

func newTracer(ctx *exportContext, parent *tracer, g *graph.Graph) *tracer {
	return &tracer{ctx: ctx, parent: parent, graph: g, params: make(map[*tensors.Tensor]*Proxy)}
}

// withTracer runs fn with t as the active tracer.
func (ctx *exportContext) withTracer(t *tracer, fn func()) {
	previous := ctx.active
	ctx.active = t
	defer func() { ctx.active = previous }()
	fn()
}

// provenance returns the provenance of a node being recorded now.
func (ctx *exportContext) provenance() graph.Provenance {
	if ctx.inherited != nil {
		return *ctx.inherited
	}
	var p graph.Provenance
	if ctx.config.CaptureStackTraces {
		p.StackTrace, _ = captureStack(maxStackFrames)
	}
	p.ModuleStack = append([]graph.ModuleFrame(nil), ctx.moduleStack...)
	return p
}

// modulePath is the path of the innermost module being called, or "" at the top level.
func (ctx *exportContext) modulePath() string {
	if len(ctx.moduleStack) <= 1 {
		return ""
	}
	return xslices.Last(ctx.moduleStack).Path
}

// pushModule enters a module call named name, returning the function that leaves it.
func (ctx *exportContext) pushModule(name string, module any) (pop func()) {
	path := name
	if parent := ctx.modulePath(); parent != "" {
		path = parent + "." + name
	}
	ctx.moduleStack = append(ctx.moduleStack, graph.ModuleFrame{Path: path, Type: fmt.Sprintf("%T", module)})
	return func() { ctx.moduleStack = ctx.moduleStack[:len(ctx.moduleStack)-1] }
}

// contextOf returns the export context of the first traced value, or nil.
func contextOf(vs ...Value) *exportContext {
	for _, v := range vs {
		if v.proxy != nil {
			return v.proxy.tracer.ctx
		}
	}
	return nil
}

// contextOfTrees is like contextOf for the leaves of trees.
func contextOfTrees(trees ...*Tree) *exportContext {
	for _, tree := range trees {
		if tree == nil {
			continue
		}
		if ctx := contextOf(tree.Leaves()...); ctx != nil {
			return ctx
		}
	}
	return nil
}

const maxStackFrames = 8

// internalPrefixes are the function name prefixes of the frames skipped in stack traces: this package,
// the core packages it calls back from (e.g. guards emitted by the shape environment) and the runtime.
var internalPrefixes = []string{
	reflect.TypeOf(Value{}).PkgPath() + ".",
	strings.TrimSuffix(reflect.TypeOf(Value{}).PkgPath(), "dynamo") + "core/",
	"runtime.",
	"github.com/gomlx/exceptions.",
}

func isInternalFrame(function string) bool {
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(function, prefix) {
			return true
		}
	}
	return false
}

// captureStack returns up to maxFrames frames of the caller's stack, skipping the frames of this package
// and of the Go runtime, and the "file:line" of the innermost one.
func captureStack(maxFrames int) (trace, origin string) {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var lines []string
	for {
		frame, more := frames.Next()
		if !isInternalFrame(frame.Function) {
			if origin == "" {
				origin = fmt.Sprintf("%s:%d", frame.File, frame.Line)
			}
			lines = append(lines, fmt.Sprintf("  File \"%s\", line %d, in %s", frame.File, frame.Line, frame.Function))
			if len(lines) >= maxFrames {
				break
			}
		}
		if !more {
			break
		}
	}
	return strings.Join(lines, "\n"), origin
}
