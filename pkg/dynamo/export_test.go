// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/gomlx/dynexport/pkg/core/graph"
	"github.com/gomlx/dynexport/pkg/core/ops"
	"github.com/gomlx/dynexport/pkg/core/tensors"
	. "github.com/gomlx/dynexport/pkg/dynamo"
	"github.com/gomlx/dynexport/pkg/dynamo/dynamotest"
	"github.com/gomlx/dynexport/pkg/nn"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

var (
	leaf  = dynamotest.Leaf
	randn = dynamotest.Randn
)

func TestRoundTrip(t *testing.T) {
	fn := func(inputs ...*Tree) *Tree {
		x, y := inputs[0].Value(), inputs[1].Value()
		return Leaf(Add(Mul(Sin(x), y), Relu(Cos(x))))
	}
	x, y := leaf(randn(1, 3, 4)), leaf(randn(2, 3, 4))
	for _, aten := range []bool{false, true} {
		exported := dynamotest.ExportAndCheck(t, NewExporter(fn).WithAtenGraph(aten), fn, x, y)
		dynamotest.RequireSameAsEager(t, exported, fn, leaf(randn(3, 3, 4)), leaf(randn(4, 3, 4)))
		g := exported.Graph()
		assert.Equal(t, 2, g.NumPlaceholders())
		for _, node := range g.Nodes() {
			if node.Type() == graph.NodeTypeCallOperation {
				assert.Equalf(t, aten, ops.IsLowLevel(node.Target()), "aten=%v, node %s", aten, node)
			}
		}
	}

	// Operations on literals only are executed eagerly and don't record nodes.
	fn = func(inputs ...*Tree) *Tree {
		x := inputs[0].Value()
		c := Mul(Const([]float32{1, 2}), Float(3))
		return Leaf(Add(x, c))
	}
	exported := dynamotest.ExportAndCheck(t, NewExporter(fn), fn, leaf(randn(5, 2)))
	assert.Equal(t, 0, exported.Graph().CountTarget(ops.Mul))
	assert.Equal(t, 1, exported.Graph().CountTarget(ops.Add))
}

func TestOutputDeduplication(t *testing.T) {
	fn := func(inputs ...*Tree) *Tree {
		x := inputs[0].Value()
		y := Sin(x)
		return Tuple(Leaf(y), Leaf(x), List(Leaf(y), Leaf(Int(3))), Dict().Set("y", Leaf(y)))
	}
	x := randn(0, 2, 3)
	exported := dynamotest.ExportAndCheck(t, NewExporter(fn), fn, leaf(x))
	// y, x and the literal 3.
	assert.Len(t, exported.Graph().Output().Args(), 3)
	assert.Equal(t, 3, exported.OutputPlan().NumFlat())
	assert.Equal(t, 5, exported.OutputPlan().NumLeaves())

	out, err := exported.Call(leaf(randn(1, 2, 3)))
	require.NoError(t, err)
	first := out.At(0).Value().Example().Tensor
	assert.Same(t, first, out.At(2).At(0).Value().Example().Tensor)
	assert.Same(t, first, out.Get("y").Value().Example().Tensor)
	assert.Equal(t, 3, out.At(2).At(1).Value().Int())
}

func TestNonTensorInputs(t *testing.T) {
	fn := func(inputs ...*Tree) *Tree {
		x, k, s := inputs[0].Value(), inputs[1].Value(), inputs[2].Value()
		if Eq(s, String("A")).Bool() {
			return Leaf(Add(x, k))
		}
		return Leaf(x)
	}
	x := randn(0, 4)
	exported, guards, err := NewExporter(fn).WithInputNames("x", "k", "s").
		Export(leaf(x), Leaf(Int(4)), Leaf(String("A")))
	require.NoError(t, err)
	assert.Equal(t, 1, exported.Graph().NumPlaceholders())
	require.Len(t, guards, 3)
	assert.Equal(t, GuardSourceLocal, guards[0].Source)
	assert.Equal(t, "TENSOR_MATCH: check_tensor(x, Float32, size=[4])", guards[0].Code)
	assert.Equal(t, GuardSourceConstant, guards[1].Source)
	assert.Equal(t, "k", guards[1].Name)
	assert.Equal(t, "CONSTANT_MATCH: k == 4", guards[1].Code)
	assert.Equal(t, "s", guards[2].Name)

	// Non-tensor inputs were embedded at trace time: new values are ignored.
	x2 := randn(1, 4)
	got, err := exported.Call(leaf(x2), Leaf(Int(100)), Leaf(String("B")))
	require.NoError(t, err)
	want, err := Eager(fn, leaf(x2), Leaf(Int(4)), Leaf(String("A")))
	require.NoError(t, err)
	dynamotest.RequireTreesInDelta(t, want, got, dynamotest.Delta)

	// The structure must match.
	_, err = exported.Call(leaf(x2), Leaf(Int(4)))
	require.Error(t, err)
	_, err = exported.Call(Leaf(Int(1)), Leaf(Int(4)), Leaf(String("A")))
	require.Error(t, err)
}

func TestContainerInputs(t *testing.T) {
	fn := func(inputs ...*Tree) *Tree {
		list, dict := inputs[0], inputs[1]
		sum := list.At(0).Value()
		for _, child := range list.Children()[1:] {
			sum = Add(sum, child.Value())
		}
		return Dict().Set("sum", Leaf(sum)).Set("a", dict.Get("a"))
	}
	xs := List(leaf(randn(0, 3)), leaf(randn(1, 3)), leaf(randn(2, 3)))
	d := Dict().Set("a", leaf(randn(3, 2)))
	exported := dynamotest.ExportAndCheck(t, NewExporter(fn).WithInputNames("xs", "d"), fn, xs, d)
	names := make([]string, 0, 4)
	for _, p := range exported.Graph().Placeholders() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"xs_0", "xs_1", "xs_2", "d_a"}, names)
	assert.Equal(t, []string{"sum", "a"}, exported.OutputPlan().Keys)
}

func TestAssumeConstantResult(t *testing.T) {
	calls := 0
	helper := AssumeConstantResult("helper", func(inputs ...*Tree) *Tree {
		calls++
		x := inputs[0].Value()
		return Tuple(Leaf(Sum(x)), ListOf(Int(1), String("A")), Leaf(None()))
	})
	fn := func(inputs ...*Tree) *Tree {
		x := inputs[0].Value()
		a := helper.Call(inputs[0])
		b := helper.Call(Leaf(Mul(x, Float(2))))
		if !Eq(a.At(1).At(1).Value(), String("A")).Bool() || !a.At(2).Value().IsNone() {
			panic("unexpected constant result")
		}
		return Tuple(Leaf(Add(x, a.At(0).Value())), Leaf(Add(x, b.At(0).Value())))
	}
	x := randn(0, 5)
	exported, _, err := Export(fn, leaf(x))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	g := exported.Graph()
	assert.Equal(t, 0, g.CountTarget(ops.Sum))

	// The frozen sum of the example is used for any input.
	x2 := randn(1, 5)
	got, err := exported.Call(leaf(x2))
	require.NoError(t, err)
	want := Add(Tensor(x2), Tensor(tensors.Sum(x))).Example().Tensor
	assert.True(t, want.InDelta(got.At(0).Value().Example().Tensor, dynamotest.Delta))
	assert.True(t, want.InDelta(got.At(1).Value().Example().Tensor, dynamotest.Delta))

	// Each export has its own cache.
	_, _, err = Export(fn, leaf(x2))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	// Outside an export, the function is simply called.
	calls = 0
	_, err = Eager(fn, leaf(x))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

type scaler struct {
	scale float64
}

func (s *scaler) factors(inputs ...*Tree) *Tree {
	return Dict().Set("scale", Leaf(Float(s.scale))).Set("name", Leaf(String("scaler")))
}

func TestAssumeConstantResultMethod(t *testing.T) {
	s := &scaler{scale: 3}
	factors := AssumeConstantResult("factors", s.factors)
	fn := func(inputs ...*Tree) *Tree {
		x := inputs[0].Value()
		f := factors.Call(inputs...)
		return Tuple(Leaf(Mul(x, f.Get("scale").Value())), f.Get("name"))
	}
	x := randn(0, 2, 2)
	exported := dynamotest.ExportAndCheck(t, NewExporter(fn), fn, leaf(x))

	// Changing the state after the export doesn't change the exported graph.
	s.scale = 5
	got := exported.MustCall(leaf(x))
	want := Mul(Tensor(x), Float(3)).Example().Tensor
	assert.True(t, want.InDelta(got.At(0).Value().Example().Tensor, dynamotest.Delta))
	assert.Equal(t, "scaler", got.At(1).Value().Str())
}

func TestCondPredicateAtCallTime(t *testing.T) {
	fn := func(inputs ...*Tree) *Tree {
		pred, x := inputs[0].Value(), inputs[1].Value()
		return Cond(pred,
			func(operands ...Value) *Tree { return Leaf(Cos(operands[0])) },
			func(operands ...Value) *Tree { return Leaf(Sin(operands[0])) },
			x)
	}
	x := randn(0, 3)
	predFalse, predTrue := leaf(tensors.FromValue(false)), leaf(tensors.FromValue(true))
	for _, aten := range []bool{false, true} {
		exported := dynamotest.ExportAndCheck(t, NewExporter(fn).WithAtenGraph(aten), fn, predFalse, leaf(x))
		g := exported.Graph()
		assert.Equal(t, 1, g.CountTarget(ops.Cond))
		assert.Len(t, g.SubGraphs(), 2)
		got := dynamotest.RequireSameAsEager(t, exported, fn, predTrue, leaf(x))
		assert.True(t, tensors.Cos(x).InDelta(got.Value().Example().Tensor, dynamotest.Delta))
		if aten {
			assert.Equal(t, 1, g.CountTarget(ops.AtenCos))
			assert.Equal(t, 0, g.CountTarget(ops.Cos))
		}
	}

	// A literal predicate calls only the selected branch.
	fn2 := func(inputs ...*Tree) *Tree {
		return Cond(Bool(true),
			func(operands ...Value) *Tree { return Leaf(Cos(operands[0])) },
			func(operands ...Value) *Tree { panic("false branch must not be called") },
			inputs[0].Value())
	}
	exported := dynamotest.ExportAndCheck(t, NewExporter(fn2), fn2, leaf(x))
	assert.Equal(t, 0, exported.Graph().CountTarget(ops.Cond))
}

func TestCondErrors(t *testing.T) {
	pred, x := leaf(tensors.FromValue(true)), leaf(randn(0, 3))

	// Branches returning different shapes.
	mismatch := func(inputs ...*Tree) *Tree {
		return Cond(inputs[0].Value(),
			func(operands ...Value) *Tree { return Leaf(operands[0]) },
			func(operands ...Value) *Tree { return Leaf(Sum(operands[0])) },
			inputs[1].Value())
	}
	_, _, err := Export(mismatch, pred, x)
	require.Error(t, err)
	assert.True(t, IsUnsupported(err), "unexpected error %+v", err)

	// Branch capturing a traced value instead of receiving it as an operand.
	closure := func(inputs ...*Tree) *Tree {
		y := inputs[1].Value()
		return Cond(inputs[0].Value(),
			func(operands ...Value) *Tree { return Leaf(Add(operands[0], y)) },
			func(operands ...Value) *Tree { return Leaf(operands[0]) },
			Sin(y))
	}
	_, _, err = Export(closure, pred, x)
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
	assert.Contains(t, err.Error(), "must be passed as operands")

	// Go control flow on traced values.
	dataDependent := func(inputs ...*Tree) *Tree {
		x := inputs[0].Value()
		if Gt(Sum(x), Float(0)).Bool() {
			return Leaf(x)
		}
		return Leaf(Neg(x))
	}
	_, _, err = Export(dataDependent, x)
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
	assert.Contains(t, err.Error(), "dynamo.Cond")
}

func TestShapeGuard(t *testing.T) {
	fn := func(inputs ...*Tree) *Tree {
		x := inputs[0].Value()
		if Gt(Size(x, 0), Int(10)).Bool() {
			return Leaf(Cos(x))
		}
		return Leaf(Sin(x))
	}
	exported, guards, err := NewExporter(fn).WithDynamicShapes(true).WithInputNames("x").
		Export(leaf(dynamotest.Ones(6, 4)))
	require.NoError(t, err)
	var shapeGuards []Guard
	for _, guard := range guards {
		if guard.Source == GuardSourceShapeEnv {
			shapeGuards = append(shapeGuards, guard)
		}
	}
	require.Len(t, shapeGuards, 1)
	assert.Equal(t, "x.size()[0] <= 10", shapeGuards[0].Code)
	assert.Contains(t, shapeGuards[0].Origin, "export_test.go")
	assert.Equal(t, "TENSOR_MATCH: check_tensor(x, Float32, size=[s0, s1])", guards[0].Code)

	// Graph is valid for other sizes satisfying the guard.
	dynamotest.RequireSameAsEager(t, exported, fn, leaf(randn(0, 8, 3)))
}

func TestMapZeroSized(t *testing.T) {
	fn := func(inputs ...*Tree) *Tree {
		return Map(func(operands ...Value) *Tree { return Leaf(Add(operands[0], Int(1))) }, inputs[0].Value())
	}
	_, _, err := Export(fn, leaf(tensors.Zeros(dtypes.Float32, 0, 2)))
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
	assert.Contains(t, err.Error(), "zero-sized")
}

func TestMap(t *testing.T) {
	fn := func(inputs ...*Tree) *Tree {
		xs, y := inputs[0].Value(), inputs[1].Value()
		return Map(func(operands ...Value) *Tree {
			x, y := operands[0], operands[1]
			return Tuple(Leaf(Add(x, y)), Leaf(Sum(x)))
		}, xs, y)
	}
	xs, y := leaf(randn(0, 4, 3)), leaf(randn(1, 3))
	exported := dynamotest.ExportAndCheck(t, NewExporter(fn).WithDynamicShapes(true), fn, xs, y)
	assert.Equal(t, 1, exported.Graph().CountTarget(ops.Map))
	// The leading dimension can change.
	got := dynamotest.RequireSameAsEager(t, exported, fn, leaf(randn(2, 7, 3)), y)
	assert.Equal(t, []int{7, 3}, got.At(0).Value().Example().Tensor.Dimensions())
	assert.Equal(t, []int{7}, got.At(1).Value().Example().Tensor.Dimensions())
}

func TestMapWithCond(t *testing.T) {
	fn := func(inputs ...*Tree) *Tree {
		pred, xs := inputs[0].Value(), inputs[1].Value()
		body := func(operands ...Value) *Tree {
			return Cond(operands[1],
				func(operands ...Value) *Tree { return Leaf(Add(operands[0], operands[0])) },
				func(operands ...Value) *Tree { return Leaf(Mul(operands[0], operands[0])) },
				operands[0])
		}
		return Map(body, xs, pred)
	}
	pred, xs := leaf(tensors.FromValue(true)), leaf(randn(0, 3, 2, 1))
	exported := dynamotest.ExportAndCheck(t, NewExporter(fn).WithDynamicShapes(true), fn, pred, xs)
	g := exported.Graph()
	assert.Equal(t, 1, g.CountTarget(ops.Map))
	assert.Equal(t, 1, g.CountTarget(ops.Cond))
	dynamotest.RequireSameAsEager(t, exported, fn, leaf(tensors.FromValue(false)), leaf(randn(1, 4, 3, 2)))
}

func TestItem(t *testing.T) {
	fn := func(inputs ...*Tree) *Tree {
		x, y := inputs[0].Value(), inputs[1].Value()
		return Leaf(Add(Item(Sum(x)), Item(Sum(y))))
	}
	x, y := leaf(randn(0, 3)), leaf(randn(1, 2))
	_, _, err := Export(fn, x, y)
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))

	for _, aten := range []bool{false, true} {
		exported := dynamotest.ExportAndCheck(t, NewExporter(fn).WithCaptureScalarOutputs(true).WithAtenGraph(aten), fn, x, y)
		if aten {
			assert.Equal(t, 2, exported.Graph().CountTarget(ops.AtenLocalScalar))
		} else {
			assert.Equal(t, 2, exported.Graph().CountTarget(ops.Item))
		}
		dynamotest.RequireSameAsEager(t, exported, fn, leaf(randn(2, 3)), leaf(randn(3, 2)))
	}
}

func TestClosure(t *testing.T) {
	fn := func(inputs ...*Tree) *Tree {
		x, y := inputs[0].Value(), inputs[1].Value()
		affine := NewClosure(func(captured []Value, args ...Value) Value {
			return Add(Mul(args[0], captured[0]), captured[1])
		}, y, Float(2))
		inner := NewClosure(func(captured []Value, args ...Value) Value {
			return Cos(affine.Call(captured[0]))
		}, x)
		return Leaf(inner.Call())
	}
	dynamotest.ExportAndCheck(t, NewExporter(fn), fn, leaf(randn(0, 3)), leaf(randn(1, 3)))
}

type myModule struct {
	block nn.Activations
}

func (m *myModule) Forward(inputs ...*Tree) *Tree {
	x := inputs[0].Value()
	y := CallModule("block", m.block, Leaf(x)).Value()
	return Leaf(Add(y, x))
}

func TestProvenance(t *testing.T) {
	module := &myModule{block: nn.Activations{nn.ActivationCos, nn.ActivationRelu}}
	fn := func(inputs ...*Tree) *Tree { return CallModule("my_module", module, inputs...) }
	for _, aten := range []bool{false, true} {
		exported := dynamotest.ExportAndCheck(t, NewExporter(fn).WithAtenGraph(aten), fn, leaf(randn(0, 4)))
		g := exported.Graph()
		cosTarget, addTarget := ops.Cos, ops.Add
		if aten {
			cosTarget, addTarget = ops.AtenCos, ops.AtenAdd
		}
		for _, node := range g.Nodes() {
			if node.Type() == graph.NodeTypeCallOperation || node.Type() == graph.NodeTypeGetAttribute {
				assert.Falsef(t, node.Provenance().IsZero(), "node %s has no provenance", node)
			}
		}
		cos := g.NodesWithTarget(cosTarget)
		require.Len(t, cos, 1)
		provenance := cos[0].Provenance()
		assert.Equal(t, "my_module.block", provenance.ModulePath())
		require.Len(t, provenance.ModuleStack, 3)
		assert.NotEmpty(t, provenance.ModuleStack[0].Path)
		assert.Equal(t, "nn.Activations", provenance.ModuleStack[2].Type)
		assert.Contains(t, provenance.StackTrace, "export_test.go")
		add := g.NodesWithTarget(addTarget)
		require.Len(t, add, 1)
		assert.Equal(t, "my_module", add[0].Provenance().ModulePath())
	}
}

func TestLinearInCond(t *testing.T) {
	linear := nn.NewLinear(3, 3, 0)
	fn := func(inputs ...*Tree) *Tree {
		return Cond(inputs[0].Value(),
			func(operands ...Value) *Tree { return Leaf(linear.Apply(operands[0])) },
			func(operands ...Value) *Tree { return Leaf(Sin(linear.Apply(operands[0]))) },
			inputs[1].Value())
	}
	x := leaf(randn(0, 2, 3))
	for _, aten := range []bool{false, true} {
		exported := dynamotest.ExportAndCheck(t, NewExporter(fn).WithAtenGraph(aten), fn, leaf(tensors.FromValue(true)), x)
		dynamotest.RequireSameAsEager(t, exported, fn, leaf(tensors.FromValue(false)), x)
		// Parameters are registered once, and read inside the branches.
		assert.Equal(t, []string{"weight", "bias"}, exported.Graph().AttributeNames()[:2])
		assert.Equal(t, 0, countAttributeReads(exported.Graph(), "weight"))
		for _, sub := range exported.Graph().SubGraphs() {
			assert.Equal(t, 1, countAttributeReads(sub, "weight"))
		}
	}
}

func TestBadConfigurations(t *testing.T) {
	fn := func(inputs ...*Tree) *Tree { return Leaf(T(inputs[0].Value())) }
	x := leaf(randn(0, 2, 3))

	_, _, err := NewExporter(fn).WithDecompositionTable(DecompositionTable{}).Export(x)
	require.Error(t, err)
	assert.True(t, IsInvalidConfiguration(err))
	assert.Contains(t, err.Error(), "aten_graph")

	_, _, err = NewExporter(fn).WithTracingMode(TracingSymbolic).Export(x)
	require.Error(t, err)
	assert.True(t, IsInvalidConfiguration(err))

	_, _, err = NewExporter(fn).WithTracingMode("fake").Export(x)
	require.Error(t, err)
	assert.True(t, IsInvalidConfiguration(err))
}

func TestExportedGraphString(t *testing.T) {
	fn := func(inputs ...*Tree) *Tree { return Leaf(Relu(inputs[0].Value())) }
	exported, _, err := NewExporter(fn).WithName("relu_fn").WithInputNames("x").Export(leaf(randn(0, 3)))
	require.NoError(t, err)
	assert.Equal(t, "relu_fn", exported.Name())
	s := exported.String()
	assert.True(t, strings.HasPrefix(s, `ExportedGraph "relu_fn"`), s)
	assert.Contains(t, s, "%relu = call_function[target=relu](%x)")
	assert.Contains(t, s, "LOCAL: TENSOR_MATCH")
	assert.NotEqual(t, exported.ID(), must1(Export(fn, leaf(randn(0, 3)))).ID())
}

func TestConcurrentCalls(t *testing.T) {
	fn := func(inputs ...*Tree) *Tree { return Leaf(Mul(Sin(inputs[0].Value()), Float(2))) }
	exported, _, err := Export(fn, leaf(randn(0, 8)))
	require.NoError(t, err)
	var wg sync.WaitGroup
	for ii := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			x := leaf(randn(uint64(ii), 8))
			want, err := Eager(fn, x)
			if !assert.NoError(t, err) {
				return
			}
			got, err := exported.Call(x)
			if !assert.NoError(t, err) {
				return
			}
			assert.True(t, want.Value().Example().Tensor.InDelta(got.Value().Example().Tensor, dynamotest.Delta))
		}()
	}
	wg.Wait()
}

// countAttributeReads counts the get_attr nodes of g reading the attribute name.
func countAttributeReads(g *graph.Graph, name string) int {
	var count int
	for _, node := range g.Nodes() {
		if node.Type() == graph.NodeTypeGetAttribute && node.Target() == name {
			count++
		}
	}
	return count
}

func must1(exported *ExportedGraph, _ []Guard, err error) *ExportedGraph {
	if err != nil {
		panic(err)
	}
	return exported
}
