// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph defines the captured computation graph: an ordered list of nodes, where each node is
// a graph input (placeholder), a call to an operator, a reference to an attribute (a parameter tensor
// or a sub-graph) or the graph output.
//
// Nodes are appended in execution order and can only reference nodes created before them, so the
// order of Graph.Nodes is always a valid topological order.
//
// A Graph is built by a tracer (see package dynamo) and frozen with Graph.Finalize: after that,
// any attempt to further build on it panics. Frozen graphs can be executed with Run, and are
// safe for concurrent use.
//
// Errors during building are reported by panicking with an error with a stack trace (see
// github.com/gomlx/exceptions); execution errors are returned.
package graph

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// GraphId is globally unique.
type GraphId int

var (
	muGraphCount sync.Mutex
	graphCount   GraphId
)

// NodeId is a unique NodeId within a Graph.
type NodeId int

// Graph holds the captured operations.
type Graph struct {
	id   GraphId
	name string

	// nodes include all nodes known to Graph, in creation order.
	nodes        []*Node
	placeholders []*Node
	output       *Node

	// nameCount is used to generate unique node names.
	nameCount map[string]int

	// attrs is shared with all sub-graphs.
	attrs *Attributes

	frozen bool
}

// Attributes holds the tensors and sub-graphs referred to by GetAttribute nodes.
// It is shared by a graph and all its sub-graphs.
type Attributes struct {
	names   []string
	tensors map[string]*tensors.Tensor
	graphs  map[string]*Graph
}

// New constructs an empty Graph, with its own attributes table.
func New(name string) *Graph {
	return newGraph(name, &Attributes{
		tensors: make(map[string]*tensors.Tensor),
		graphs:  make(map[string]*Graph),
	})
}

func newGraph(name string, attrs *Attributes) *Graph {
	muGraphCount.Lock()
	defer muGraphCount.Unlock()
	if name == "" {
		name = fmt.Sprintf("graph_#%d", graphCount)
	}
	g := &Graph{
		id:        graphCount,
		name:      name,
		nameCount: make(map[string]int),
		attrs:     attrs,
	}
	graphCount++
	return g
}

// NewSubGraph creates an empty graph that shares the attributes table of g.
// It is used for the bodies of cond and map operations.
func (g *Graph) NewSubGraph(name string) *Graph {
	g.AssertValid()
	return newGraph(name, g.attrs)
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// GraphId is the globally unique id of the graph.
func (g *Graph) GraphId() GraphId { return g.id }

// CheckValid returns an error if the graph is nil.
func (g *Graph) CheckValid() error {
	if g == nil {
		return errors.Errorf("the Graph is nil")
	}
	return nil
}

// AssertValid panics if the graph is nil.
func (g *Graph) AssertValid() {
	if err := g.CheckValid(); err != nil {
		panic(err)
	}
}

// IsFrozen returns whether Finalize has been called.
func (g *Graph) IsFrozen() bool { return g.frozen }

// AssertBuilding panics if the graph is no longer being built.
func (g *Graph) AssertBuilding() {
	g.AssertValid()
	if g.frozen {
		exceptions.Panicf("Graph %q is frozen, one cannot further build on it", g.name)
	}
}

// AssertFrozen panics if the graph is still being built.
func (g *Graph) AssertFrozen() {
	g.AssertValid()
	if !g.frozen {
		exceptions.Panicf("Graph %q is still being built, it can't be used for execution", g.name)
	}
}

// Finalize freezes the graph. It requires the output to have been set.
func (g *Graph) Finalize() {
	g.AssertBuilding()
	if g.output == nil {
		exceptions.Panicf("Graph %q has no output set, it can't be finalized", g.name)
	}
	g.frozen = true
}

// uniqueName returns base, or base_<n> if base was already used.
func (g *Graph) uniqueName(base string) string {
	base = strings.NewReplacer(".", "_", " ", "_").Replace(base)
	count := g.nameCount[base]
	g.nameCount[base] = count + 1
	if count == 0 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, count)
}

// registerNode appends the node to the graph, setting its id and unique name.
func (g *Graph) registerNode(node *Node, baseName string) *Node {
	g.AssertBuilding()
	node.graph = g
	node.id = NodeId(len(g.nodes))
	node.name = g.uniqueName(baseName)
	for _, input := range node.Inputs() {
		if input.graph != g {
			exceptions.Panicf("node %s in graph %q refers to node %q of a different graph %q",
				node.name, g.name, input.name, input.graph.Name())
		}
	}
	g.nodes = append(g.nodes, node)
	return node
}

// Placeholder appends a graph input. Placeholders are numbered in creation order.
func (g *Graph) Placeholder(name string, meta Meta) *Node {
	if g.output != nil {
		exceptions.Panicf("Graph %q: placeholders must be created before the output", g.name)
	}
	node := &Node{nodeType: NodeTypePlaceholder, slot: len(g.placeholders), meta: meta}
	g.registerNode(node, name)
	g.placeholders = append(g.placeholders, node)
	return node
}

// CallOperation appends a call to the operator target.
func (g *Graph) CallOperation(target string, args []Arg, meta Meta, provenance Provenance) *Node {
	if target == "" {
		exceptions.Panicf("Graph %q: CallOperation with an empty target", g.name)
	}
	node := &Node{nodeType: NodeTypeCallOperation, target: target, args: args, meta: meta, provenance: provenance}
	return g.registerNode(node, target)
}

// GetAttribute appends a reference to the attribute attrName, which must have been registered with
// AddTensorAttribute or AddGraphAttribute.
func (g *Graph) GetAttribute(attrName string, meta Meta, provenance Provenance) *Node {
	if !slices.Contains(g.attrs.names, attrName) {
		exceptions.Panicf("Graph %q: unknown attribute %q", g.name, attrName)
	}
	node := &Node{nodeType: NodeTypeGetAttribute, target: attrName, meta: meta, provenance: provenance}
	return g.registerNode(node, attrName)
}

// SetOutput appends the output node, returning the given values. It can only be called once.
func (g *Graph) SetOutput(outputs []Arg) *Node {
	if g.output != nil {
		exceptions.Panicf("Graph %q: output already set", g.name)
	}
	node := &Node{nodeType: NodeTypeOutput, target: "output", args: outputs}
	g.output = g.registerNode(node, "output")
	return g.output
}

// uniqueAttrName returns a name not yet used in the attributes table.
func (g *Graph) uniqueAttrName(base string) string {
	name := base
	for ii := 1; slices.Contains(g.attrs.names, name); ii++ {
		name = fmt.Sprintf("%s_%d", base, ii)
	}
	return name
}

// AddTensorAttribute registers the tensor in the attributes table under a unique name derived from base.
func (g *Graph) AddTensorAttribute(base string, t *tensors.Tensor) string {
	g.AssertBuilding()
	name := g.uniqueAttrName(base)
	g.attrs.names = append(g.attrs.names, name)
	g.attrs.tensors[name] = t
	return name
}

// AddGraphAttribute registers the (frozen) sub-graph in the attributes table under a unique name derived from base.
func (g *Graph) AddGraphAttribute(base string, sub *Graph) string {
	g.AssertBuilding()
	sub.AssertFrozen()
	if sub.attrs != g.attrs {
		exceptions.Panicf("sub-graph %q doesn't share the attributes of %q, create it with NewSubGraph", sub.name, g.name)
	}
	name := g.uniqueAttrName(base)
	g.attrs.names = append(g.attrs.names, name)
	g.attrs.graphs[name] = sub
	return name
}

// AttributeTensor returns the tensor attribute with the given name, or nil.
func (g *Graph) AttributeTensor(name string) *tensors.Tensor { return g.attrs.tensors[name] }

// AttributeGraph returns the sub-graph attribute with the given name, or nil.
func (g *Graph) AttributeGraph(name string) *Graph { return g.attrs.graphs[name] }

// AttributeNames returns the names of all attributes, in registration order.
func (g *Graph) AttributeNames() []string { return slices.Clone(g.attrs.names) }

// Nodes returns a copy of the list of nodes, in creation (and topological) order.
func (g *Graph) Nodes() []*Node { return slices.Clone(g.nodes) }

// NumNodes returns the number of nodes recorded so far.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Placeholders returns a copy of the list of input nodes, in slot order.
func (g *Graph) Placeholders() []*Node { return slices.Clone(g.placeholders) }

// NumPlaceholders returns the number of graph inputs.
func (g *Graph) NumPlaceholders() int { return len(g.placeholders) }

// Output returns the output node, or nil if not set yet.
func (g *Graph) Output() *Node { return g.output }

// NodesWithTarget returns the call nodes of g (not of its sub-graphs) with the given target.
func (g *Graph) NodesWithTarget(target string) []*Node {
	var nodes []*Node
	for _, node := range g.nodes {
		if node.nodeType == NodeTypeCallOperation && node.target == target {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// SubGraphs returns the sub-graphs referenced by GetAttribute nodes of g, in node order.
func (g *Graph) SubGraphs() []*Graph {
	var subs []*Graph
	for _, node := range g.nodes {
		if node.nodeType == NodeTypeGetAttribute {
			if sub := g.attrs.graphs[node.target]; sub != nil {
				subs = append(subs, sub)
			}
		}
	}
	return subs
}

// CountTarget returns the number of call nodes with the given target in g and, recursively, its sub-graphs.
func (g *Graph) CountTarget(target string) int {
	count := len(g.NodesWithTarget(target))
	for _, sub := range g.SubGraphs() {
		count += sub.CountTarget(target)
	}
	return count
}

// AttributesMemory returns the total memory used by the tensor attributes.
func (g *Graph) AttributesMemory() uintptr {
	var total uintptr
	for _, name := range slices.Sorted(maps.Keys(g.attrs.tensors)) {
		total += g.attrs.tensors[name].Memory()
	}
	return total
}

// String converts the Graph to a multiline string with a description of the full graph, including sub-graphs.
func (g *Graph) String() string {
	if g == nil {
		return "Graph(nil)!?"
	}
	var frozen string
	if g.frozen {
		frozen = " (*)"
	}
	parts := []string{
		fmt.Sprintf("Graph %q%s: %d nodes, %d placeholders, attributes: %s",
			g.name, frozen, len(g.nodes), len(g.placeholders), humanize.Bytes(uint64(g.AttributesMemory()))),
	}
	for ii, node := range g.nodes {
		parts = append(parts, fmt.Sprintf("\t#%d\t%s", ii, node))
	}
	for _, sub := range g.SubGraphs() {
		for _, line := range strings.Split(sub.String(), "\n") {
			parts = append(parts, "\t"+line)
		}
	}
	return strings.Join(parts, "\n")
}
