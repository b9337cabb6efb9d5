// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// dynexport exports one of the built-in demo programs and reports the captured graph, its output plan
// and the guards it was captured under.
//
// Usage:
//
//	dynexport [-config export.yaml] [-aten] [-dynamic] [-symbolic] <demo>
//	dynexport -list
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/dynexport/pkg/core/graph"
	"github.com/gomlx/dynexport/pkg/dynamo"
	"github.com/gomlx/dynexport/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"k8s.io/klog/v2"
)

var (
	flagConfig = flag.String("config", "", "YAML file with the export options. "+
		"The flags below override the values in the file when set.")
	flagAten     = flag.Bool("aten", false, "Lower the graph to the aten.* operator set.")
	flagDynamic  = flag.Bool("dynamic", false, "Make the dimensions of the tensor inputs symbolic.")
	flagSymbolic = flag.Bool("symbolic", false, "Use symbolic tracing (requires -aten).")
	flagScalars  = flag.Bool("capture_scalars", false, "Record conversions of tensors to scalars in the graph.")
	flagInputs   = xslices.Flag("input_names", nil, "Comma-separated names of the inputs, used for placeholders and guards. "+
		"Defaults to the names given by the demo.", func(name string) (string, error) { return strings.TrimSpace(name), nil })

	flagList   = flag.Bool("list", false, "List the available demos.")
	flagGraph  = flag.Bool("graph", true, "Print the exported graph.")
	flagNodes  = flag.Bool("nodes", false, "List the nodes with their provenance.")
	flagGuards = flag.Bool("guards", true, "List the guards.")
	flagCall   = flag.Bool("call", true, "Call the exported graph on the example inputs and compare with the eager result.")
	flagPlain  = flag.Bool("plain", false, "Disable colors, also disabled when the output is not a terminal.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagPlain || termenv.NewOutput(os.Stdout).ColorProfile() == termenv.Ascii {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	if *flagList {
		listDemos()
		return
	}
	args := flag.Args()
	if len(args) != 1 {
		klog.Errorf("Expected exactly one demo name, got %q. See 'dynexport -list' and 'dynexport -help'.", args)
		os.Exit(1)
	}
	demo, found := demos[args[0]]
	if !found {
		klog.Errorf("Unknown demo %q, valid demos are %s.", args[0], strings.Join(demoNames(), ", "))
		os.Exit(1)
	}
	if err := report(demo, buildConfig()); err != nil {
		klog.Errorf("Failed to export %q: %+v", demo.Name, err)
		os.Exit(1)
	}
}

// buildConfig returns the export options from the -config file and the flags set explicitly.
func buildConfig() dynamo.Config {
	config := dynamo.DefaultConfig()
	if *flagConfig != "" {
		config = must.M1(dynamo.LoadConfig(*flagConfig))
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "aten":
			config.AtenGraph = *flagAten
		case "dynamic":
			config.DynamicShapes = *flagDynamic
		case "symbolic":
			config.TracingMode = dynamo.TracingReal
			if *flagSymbolic {
				config.TracingMode = dynamo.TracingSymbolic
			}
		case "capture_scalars":
			config.CaptureScalarOutputs = *flagScalars
		case "input_names":
			config.InputNames = *flagInputs
		}
	})
	return config
}

func listDemos() {
	fmt.Println(titleStyle.Render("Demos"))
	table := newPlainTable([]string{"Name", "Inputs", "Description"}, lipgloss.Right, lipgloss.Left)
	for _, name := range demoNames() {
		demo := demos[name]
		table.Row(false, demo.Name, strings.Join(demo.InputNames, ", "), demo.Description)
	}
	fmt.Println(table.Table.Render())
}

// report exports the demo and prints the requested reports.
func report(demo *Demo, config dynamo.Config) error {
	if len(config.InputNames) == 0 {
		config.InputNames = demo.InputNames
	}
	inputs := demo.Inputs()
	exported, guards, err := dynamo.NewExporter(demo.Fn).WithName(demo.Name).WithConfig(config).Export(inputs...)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Summary"))
	summary := newPlainTable(nil, lipgloss.Right, lipgloss.Left)
	g := exported.Graph()
	summary.Row(false, "demo", demo.Name)
	summary.Row(false, "id", exported.ID().String())
	summary.Row(false, "aten_graph", fmt.Sprint(config.AtenGraph))
	summary.Row(false, "tracing_mode", string(config.TracingMode))
	summary.Row(false, "dynamic_shapes", fmt.Sprint(config.IsDynamic()))
	summary.Row(false, "# nodes", humanize.Comma(int64(len(g.Nodes()))))
	summary.Row(false, "# sub-graphs", humanize.Comma(int64(len(g.SubGraphs()))))
	summary.Row(false, "# placeholders", humanize.Comma(int64(g.NumPlaceholders())))
	summary.Row(false, "parameters", humanize.Bytes(uint64(g.AttributesMemory())))
	summary.Row(false, "inputs", exported.InputSpec().String())
	summary.Row(false, "outputs", exported.OutputPlan().String())
	fmt.Println(summary.Table.Render())

	if *flagGraph {
		fmt.Println(titleStyle.Render("Graph"))
		fmt.Println(g)
	}
	if *flagNodes {
		fmt.Println(titleStyle.Render("Nodes"))
		table := newPlainTable([]string{"Graph", "Name", "Op", "Target", "Module"}, lipgloss.Left)
		listNodes(table, g)
		fmt.Println(table.Table.Render())
	}
	if *flagGuards {
		fmt.Println(titleStyle.Render("Guards"))
		table := newPlainTable([]string{"Source", "Name", "Code", "Origin"}, lipgloss.Left)
		for _, guard := range guards {
			table.Row(guard.Source == dynamo.GuardSourceShapeEnv, guard.Source.String(), guard.Name, guard.Code, guard.Origin)
		}
		fmt.Println(table.Table.Render())
	}
	if *flagCall {
		return compareWithEager(demo, exported, inputs)
	}
	return nil
}

// listNodes adds a row per node of g and, recursively, of its sub-graphs. Nodes without provenance
// are highlighted.
func listNodes(table *TableWithReds, g *graph.Graph) {
	for _, node := range g.Nodes() {
		target := node.Target()
		if node.Type() == graph.NodeTypePlaceholder || node.Type() == graph.NodeTypeOutput {
			target = ""
		}
		missing := node.Provenance().IsZero() &&
			(node.Type() == graph.NodeTypeCallOperation || node.Type() == graph.NodeTypeGetAttribute)
		table.Row(missing, g.Name(), node.Name(), node.Type().String(), target, node.Provenance().ModulePath())
	}
	for _, sub := range g.SubGraphs() {
		listNodes(table, sub)
	}
}

// compareWithEager calls the exported graph and the demo function on the example inputs, and prints
// both results.
func compareWithEager(demo *Demo, exported *dynamo.ExportedGraph, inputs []*dynamo.Tree) error {
	got, err := exported.Call(inputs...)
	if err != nil {
		return err
	}
	want, err := dynamo.Eager(demo.Fn, demo.Inputs()...)
	if err != nil {
		return err
	}
	fmt.Println(titleStyle.Render("Results"))
	table := newPlainTable([]string{"Path", "Exported", "Eager"}, lipgloss.Left)
	var wantLeaves []string
	want.Walk(func(_ string, v dynamo.Value) { wantLeaves = append(wantLeaves, v.String()) })
	var ii int
	got.Walk(func(path string, v dynamo.Value) {
		w := ""
		if ii < len(wantLeaves) {
			w = wantLeaves[ii]
		}
		table.Row(w != v.String(), path, v.String(), w)
		ii++
	})
	fmt.Println(table.Table.Render())
	return nil
}
