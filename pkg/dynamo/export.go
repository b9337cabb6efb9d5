// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/dynexport/pkg/core/graph"
	"github.com/gomlx/dynexport/pkg/core/pytree"
	"github.com/gomlx/dynexport/pkg/core/symbolic"
	"github.com/gomlx/dynexport/pkg/core/values"
	"github.com/gomlx/dynexport/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Exporter configures and runs the export of a function. Create it with NewExporter, configure it with
// the With* methods and call Export.
type Exporter struct {
	fn     Fn
	name   string
	config Config
	table  DecompositionTable
}

// NewExporter returns an Exporter for fn with the DefaultConfig.
func NewExporter(fn Fn) *Exporter {
	return &Exporter{fn: fn, name: funcName(fn), config: DefaultConfig()}
}

// funcName returns the short name of the Go function fn.
func funcName(fn Fn) string {
	name := "fn"
	if f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); f != nil {
		name = f.Name()
	}
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// WithConfig replaces all the options.
func (e *Exporter) WithConfig(config Config) *Exporter {
	e.config = config
	return e
}

// WithName sets the name of the exported graph. It defaults to the name of the Go function.
func (e *Exporter) WithName(name string) *Exporter {
	e.name = name
	return e
}

// WithAtenGraph sets whether the graph is lowered to the "aten.*" operator set.
func (e *Exporter) WithAtenGraph(aten bool) *Exporter {
	e.config.AtenGraph = aten
	return e
}

// WithDecompositionTable sets decompositions used during lowering, overriding the default ones for the
// same targets. It requires WithAtenGraph(true).
func (e *Exporter) WithDecompositionTable(table DecompositionTable) *Exporter {
	e.table = table
	return e
}

// WithTracingMode sets the tracing mode, TracingSymbolic requires WithAtenGraph(true).
func (e *Exporter) WithTracingMode(mode TracingMode) *Exporter {
	e.config.TracingMode = mode
	return e
}

// WithDynamicShapes sets whether the dimensions of the inputs are symbolic.
func (e *Exporter) WithDynamicShapes(dynamic bool) *Exporter {
	e.config.DynamicShapes = dynamic
	return e
}

// WithCaptureScalarOutputs sets whether Item on traced tensors is recorded in the graph.
func (e *Exporter) WithCaptureScalarOutputs(capture bool) *Exporter {
	e.config.CaptureScalarOutputs = capture
	return e
}

// WithInputNames sets the names of the top-level inputs.
func (e *Exporter) WithInputNames(names ...string) *Exporter {
	e.config.InputNames = names
	return e
}

// Export traces the function on the example inputs, and returns the exported graph and the guards
// under which it is valid (also available with ExportedGraph.Guards).
//
// Errors are an *UnsupportedOperationError if the function does something that can't be captured,
// an *InvalidConfigurationError for contradictory options, or any error raised by the function itself.
func (e *Exporter) Export(inputs ...*Tree) (*ExportedGraph, []Guard, error) {
	if err := e.config.Validate(); err != nil {
		return nil, nil, err
	}
	if e.table != nil && !e.config.AtenGraph {
		return nil, nil, newInvalidConfiguration("a decomposition_table requires aten_graph")
	}
	var exported *ExportedGraph
	err := exceptions.TryCatch[error](func() { exported = e.export(inputs) })
	if err != nil {
		if IsUnsupported(err) || IsInvalidConfiguration(err) {
			return nil, nil, err
		}
		return nil, nil, errors.WithMessagef(err, "failed to export %q", e.name)
	}
	return exported, exported.Guards(), nil
}

// Export traces fn with the default options, see Exporter.Export.
func Export(fn Fn, inputs ...*Tree) (*ExportedGraph, []Guard, error) {
	return NewExporter(fn).Export(inputs...)
}

func (e *Exporter) export(inputs []*Tree) *ExportedGraph {
	start := time.Now()
	ctx := newExportContext(e.config, e.name)
	root := newTracer(ctx, nil, graph.New(e.name))
	exported := &ExportedGraph{id: uuid.New(), name: e.name, config: e.config}
	ctx.withTracer(root, func() {
		var traced []*Tree
		traced, exported.inputSpec, exported.placeholderLeaves = root.traceInputs(inputs)
		out := e.fn(traced...)
		if out == nil {
			out = Leaf(None())
		}
		exported.outputPlan = root.reconcileOutputs(out)
	})
	root.graph.Finalize()
	exported.graph = root.graph
	if klog.V(1).Enabled() {
		klog.Infof("dynamo: traced %q in %s: %d nodes, %d guards", e.name, time.Since(start),
			len(root.graph.Nodes()), len(ctx.guards))
	}
	if e.config.AtenGraph {
		exported.graph = lower(root.graph, e.table, e.config)
	}
	exported.guards = ctx.guards
	return exported
}

// inputName returns the name of the top-level input ii.
func (t *tracer) inputName(ii int) string {
	if names := t.ctx.config.InputNames; ii < len(names) && names[ii] != "" {
		return names[ii]
	}
	return fmt.Sprintf("arg%d", ii)
}

// traceInputs replaces the tensor leaves of the inputs by placeholders, and emits the guards on the inputs.
// It returns the traced inputs, the spec of the tuple of inputs and the indices of its flattened leaves
// fed to each placeholder.
func (t *tracer) traceInputs(inputs []*Tree) (traced []*Tree, spec *pytree.Spec, placeholderLeaves []int) {
	ctx := t.ctx
	inputs = xslices.Map(inputs, func(input *Tree) *Tree {
		if input == nil {
			return Leaf(None())
		}
		return input
	})
	_, spec = pytree.Flatten(Tuple(inputs...))
	offset := 0
	traced = make([]*Tree, len(inputs))
	for ii, input := range inputs {
		var paths []string
		input.Walk(func(path string, _ Value) { paths = append(paths, path) })
		flat, inputSpec := pytree.Flatten(input)
		for jj, v := range flat {
			if v.proxy != nil {
				exceptions.Panicf("input %s%s is a traced value: inputs of an export must be concrete", t.inputName(ii), paths[jj])
			}
			name := t.inputName(ii) + paths[jj]
			if !v.IsTensor() {
				ctx.emit(GuardSourceConstant, name, constantMatchCode(name, v.literal), "")
				continue
			}
			tensor := v.literal.Tensor
			p := &Proxy{tracer: t, example: v.literal}
			if ctx.config.IsDynamic() {
				p.dims = make([]symbolic.Expr, tensor.Rank())
				for axis, dim := range tensor.Dimensions() {
					p.dims[axis] = ctx.shapeEnv.CreateSymbol(fmt.Sprintf("%s.size()[%d]", name, axis), dim)
				}
			}
			p.node = t.graph.Placeholder(placeholderName(name), p.meta())
			flat[jj] = proxyValue(p)
			placeholderLeaves = append(placeholderLeaves, offset+jj)
			ctx.emit(GuardSourceLocal, name, tensorMatchCode(name, tensor, p.dims), "")
		}
		offset += len(flat)
		traced[ii] = must(pytree.Unflatten(inputSpec, flat))
	}
	return
}

// placeholderName converts an input path like `x[0]["a"]` to a node name like "x_0_a".
func placeholderName(path string) string {
	name := strings.Map(func(r rune) rune {
		if r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return r
		}
		return '_'
	}, path)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return strings.Trim(name, "_")
}

// ExportedGraph is the result of an export: a frozen graph, with the structure of its inputs and outputs.
// It can be called with inputs of the same structure (tensors can have different shapes if they were
// exported with dynamic shapes). It is safe for concurrent use.
type ExportedGraph struct {
	id     uuid.UUID
	name   string
	config Config
	graph  *graph.Graph

	inputSpec         *pytree.Spec
	placeholderLeaves []int
	outputPlan        *pytree.Spec
	guards            []Guard
}

// ID uniquely identifies the export.
func (e *ExportedGraph) ID() uuid.UUID { return e.id }

// Name of the exported function.
func (e *ExportedGraph) Name() string { return e.name }

// Config used for the export.
func (e *ExportedGraph) Config() Config { return e.config }

// Graph returns the captured graph (lowered, if exported with AtenGraph).
func (e *ExportedGraph) Graph() *graph.Graph { return e.graph }

// InputSpec is the structure of the tuple of inputs.
func (e *ExportedGraph) InputSpec() *pytree.Spec { return e.inputSpec }

// OutputPlan maps the leaves of the returned tree to the outputs of the graph.
func (e *ExportedGraph) OutputPlan() *pytree.Spec { return e.outputPlan }

// Guards returns the conditions on the inputs the graph was captured under.
func (e *ExportedGraph) Guards() []Guard { return e.guards }

// Call runs the graph on new inputs, which must have the same structure as the example inputs. Non-tensor
// leaves were captured as constants, and their values are ignored.
func (e *ExportedGraph) Call(inputs ...*Tree) (*Tree, error) {
	inputs = xslices.Map(inputs, func(input *Tree) *Tree {
		if input == nil {
			return Leaf(None())
		}
		return input
	})
	flat, spec := pytree.Flatten(Tuple(inputs...))
	if !spec.SameStructure(e.inputSpec) {
		return nil, errors.Errorf("exported graph %q takes inputs with structure %s, got %s", e.name, e.inputSpec, spec)
	}
	graphInputs := make([]values.Literal, len(e.placeholderLeaves))
	for ii, idx := range e.placeholderLeaves {
		v := flat[idx]
		if v.IsProxy() || !v.IsTensor() {
			return nil, errors.Errorf("exported graph %q: input leaf #%d must be a concrete tensor, got %s", e.name, idx, v)
		}
		graphInputs[ii] = v.literal
	}
	outputs, err := graph.Run(e.graph, graphInputs)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to call exported graph %q", e.name)
	}
	return pytree.Unflatten(e.outputPlan, xslices.Map(outputs, Lit))
}

// MustCall is like Call, but panics on error.
func (e *ExportedGraph) MustCall(inputs ...*Tree) *Tree {
	return must(e.Call(inputs...))
}

// String implements fmt.Stringer.
func (e *ExportedGraph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ExportedGraph %q (id=%s, parameters=%s)\n", e.name, e.id, humanize.Bytes(uint64(e.graph.AttributesMemory())))
	sb.WriteString(e.graph.String())
	fmt.Fprintf(&sb, "\nInputs: %s\nOutputs: %s\n", e.inputSpec, e.outputPlan)
	for _, guard := range e.guards {
		fmt.Fprintf(&sb, "Guard %s\n", guard)
	}
	return sb.String()
}

// Eager runs fn on concrete inputs, without tracing.
func Eager(fn Fn, inputs ...*Tree) (out *Tree, err error) {
	err = exceptions.TryCatch[error](func() { out = fn(inputs...) })
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to run %q eagerly", funcName(fn))
	}
	return out, nil
}
