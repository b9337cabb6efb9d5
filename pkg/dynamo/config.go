// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// TracingMode selects how shapes are propagated during lowering.
type TracingMode string

const (
	// TracingReal uses the concrete shapes of the example inputs.
	TracingReal TracingMode = "real"

	// TracingSymbolic propagates symbolic shapes: dimensions are symbols and size computations are
	// kept in the graph. It implies DynamicShapes.
	TracingSymbolic TracingMode = "symbolic"
)

// DefaultMaxDecompositionPasses is the default cap on the number of lowering passes.
const DefaultMaxDecompositionPasses = 16

// Config holds the export options. It can be loaded from YAML.
type Config struct {
	// AtenGraph requests the graph to be lowered to the canonical "aten.*" operator set.
	AtenGraph bool `yaml:"aten_graph"`

	TracingMode TracingMode `yaml:"tracing_mode"`

	// DynamicShapes makes the dimensions of the tensor inputs symbolic: shape reads are recorded in
	// the graph, and decisions taken on them are reported as SHAPE_ENV guards.
	DynamicShapes bool `yaml:"dynamic_shapes"`

	// CaptureScalarOutputs allows Item on traced tensors, recording the conversion in the graph.
	CaptureScalarOutputs bool `yaml:"capture_scalar_outputs"`

	MaxDecompositionPasses int `yaml:"max_decomposition_passes"`

	// CaptureStackTraces records the Go call stack as the provenance of every node.
	CaptureStackTraces bool `yaml:"capture_stack_traces"`

	// InputNames are the names of the top-level inputs, used for placeholders and guards.
	// Missing names default to "arg<i>".
	InputNames []string `yaml:"input_names"`
}

// DefaultConfig returns the default export options: high-level graph, real tracing, stack traces captured.
func DefaultConfig() Config {
	return Config{
		TracingMode:            TracingReal,
		MaxDecompositionPasses: DefaultMaxDecompositionPasses,
		CaptureStackTraces:     true,
	}
}

// IsDynamic returns whether dimensions of the inputs are symbolic.
func (c Config) IsDynamic() bool {
	return c.DynamicShapes || c.TracingMode == TracingSymbolic
}

// Validate returns an InvalidConfigurationError if the options are contradictory.
func (c Config) Validate() error {
	switch c.TracingMode {
	case TracingReal, TracingSymbolic:
	default:
		return newInvalidConfiguration("unknown tracing_mode %q, valid values are %q and %q", c.TracingMode, TracingReal, TracingSymbolic)
	}
	if c.TracingMode == TracingSymbolic && !c.AtenGraph {
		return newInvalidConfiguration("tracing_mode=%q requires aten_graph", c.TracingMode)
	}
	if c.MaxDecompositionPasses < 1 {
		return newInvalidConfiguration("max_decomposition_passes must be at least 1, got %d", c.MaxDecompositionPasses)
	}
	return nil
}

// ParseConfig parses YAML options on top of DefaultConfig, and validates the result.
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, errors.Wrap(err, "failed to parse export configuration")
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// LoadConfig reads the YAML options file in path, see ParseConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), errors.Wrapf(err, "failed to read export configuration from %q", path)
	}
	config, err := ParseConfig(data)
	if err != nil {
		return config, errors.WithMessagef(err, "in configuration file %q", path)
	}
	return config, nil
}
