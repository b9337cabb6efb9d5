// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dynamo_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/gomlx/dynexport/pkg/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig([]byte(`
aten_graph: true
tracing_mode: symbolic
input_names: [x, mask]
`))
	require.NoError(t, err)
	assert.True(t, config.AtenGraph)
	assert.Equal(t, TracingSymbolic, config.TracingMode)
	assert.True(t, config.IsDynamic())
	assert.Equal(t, []string{"x", "mask"}, config.InputNames)
	// Unset options keep their defaults.
	assert.Equal(t, DefaultMaxDecompositionPasses, config.MaxDecompositionPasses)
	assert.True(t, config.CaptureStackTraces)

	config, err = ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)

	_, err = ParseConfig([]byte("tracing_mode: symbolic\n"))
	require.Error(t, err)
	assert.True(t, IsInvalidConfiguration(err))

	_, err = ParseConfig([]byte("max_decomposition_passes: 0\n"))
	require.Error(t, err)
	assert.True(t, IsInvalidConfiguration(err))

	_, err = ParseConfig([]byte("aten_graph: [1, 2\n"))
	require.Error(t, err)
	assert.False(t, IsInvalidConfiguration(err))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dynamic_shapes: true\ncapture_scalar_outputs: true\n"), 0o644))
	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, config.DynamicShapes)
	assert.True(t, config.CaptureScalarOutputs)
	assert.Equal(t, TracingReal, config.TracingMode)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
