// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/gomlx/dynexport/pkg/dynamo"
	"github.com/gomlx/dynexport/pkg/dynamo/dynamotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemos(t *testing.T) {
	require.Equal(t, []string{"cond", "constant", "map", "mlp", "slice"}, demoNames())
	configs := map[string]func(*dynamo.Exporter) *dynamo.Exporter{
		"default": func(e *dynamo.Exporter) *dynamo.Exporter { return e },
		"aten":    func(e *dynamo.Exporter) *dynamo.Exporter { return e.WithAtenGraph(true) },
		"symbolic": func(e *dynamo.Exporter) *dynamo.Exporter {
			return e.WithAtenGraph(true).WithTracingMode(dynamo.TracingSymbolic)
		},
	}
	for _, name := range demoNames() {
		demo := demos[name]
		for configName, configure := range configs {
			t.Run(name+"/"+configName, func(t *testing.T) {
				exporter := configure(dynamo.NewExporter(demo.Fn).WithInputNames(demo.InputNames...))
				exported := dynamotest.ExportAndCheck(t, exporter, demo.Fn, demo.Inputs()...)
				assert.Equal(t, len(demo.InputNames), len(exported.InputSpec().Children))
			})
		}
	}
}

func TestReportDynamicNeedsSymbolic(t *testing.T) {
	config := dynamo.DefaultConfig()
	config.AtenGraph = true
	config.DynamicShapes = true
	err := report(demos["slice"], config)
	require.Error(t, err)
	assert.True(t, dynamo.IsInvalidConfiguration(err))
}
