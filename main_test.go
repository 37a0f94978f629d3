// Copyright 2025 convtb Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEmitter(t *testing.T) {
	assert.Equal(t, []string{"c", "vhdl", "yaml"}, ListFormats())
	for _, format := range ListFormats() {
		e, err := GetEmitter(format)
		require.NoError(t, err)
		assert.Equal(t, format, e.Name())
	}
	_, err := GetEmitter("verilog")
	assert.EqualError(t, err, "unsupported format: verilog (available: [c vhdl yaml])")
}

func TestNewGenerator_Errors(t *testing.T) {
	_, err := NewGenerator("", "out", "verilog", 1, defaultMemory)
	assert.Error(t, err)
	for _, size := range []int{0, -4, 130, 132, 256} {
		_, err := NewGenerator("", "out", "vhdl", 1, MemoryConfig{Size: size})
		assert.Error(t, err, "size %d", size)
	}
}

func TestNewGenerator_LargestMemory(t *testing.T) {
	_, err := NewGenerator("", "out", "vhdl", 1, MemoryConfig{Size: 128})
	assert.NoError(t, err)
	_, err = NewGenerator("", "out", "vhdl", 1, MemoryConfig{Size: 256})
	assert.EqualError(t, err, "memory size 256 exceeds the 128 bytes the accelerator can address")
}

type brokenEmitter struct{}

func (brokenEmitter) Name() string { return "broken" }

func (brokenEmitter) Extension() string { return "txt" }

func (brokenEmitter) Emit(w io.Writer, b *Bench) error {
	_, _ = io.WriteString(w, "partial")
	return errors.New("emit failed")
}

func TestGenerator_FailedEmitLeavesNoFile(t *testing.T) {
	output := filepath.Join(t.TempDir(), "bench.txt")
	g := Generator{Output: output, Parallel: 1, Memory: defaultMemory, emitter: brokenEmitter{}}
	assert.EqualError(t, g.Generate(context.Background()), "emit failed")
	assert.NoFileExists(t, output)
}

func TestGenerator_Generate(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"vhdl", "entity conv_accelerator_tb is"},
		{"c", "void run_pool_relu_offset(void) {"},
		{"yaml", "source: built-in suite"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			output := filepath.Join(t.TempDir(), "bench."+tt.format)
			g, err := NewGenerator("", output, tt.format, 4, defaultMemory)
			require.NoError(t, err)
			require.NoError(t, g.Generate(context.Background()))

			data, err := os.ReadFile(output)
			require.NoError(t, err)
			assert.Contains(t, string(data), tt.want)
			for _, job := range BuiltinJobs() {
				assert.Contains(t, string(data), job.Name)
			}
		})
	}
}

func TestGenerator_JobFile(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(source, []byte(poolReluYAML), 0o644))

	output := filepath.Join(dir, "bench.vhd")
	g, err := NewGenerator(source, output, "vhdl", 1, defaultMemory)
	require.NoError(t, err)
	require.NoError(t, g.Generate(context.Background()))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- source: suite.yaml\n")
	assert.Contains(t, string(data), "-- jobs: pool_relu job1\n")

	// a memory too small for the tensors fails before anything is written
	small := filepath.Join(dir, "small.vhd")
	g, err = NewGenerator(source, small, "vhdl", 1, MemoryConfig{Size: 8, Filler: DefaultFiller})
	require.NoError(t, err)
	assert.ErrorContains(t, g.Generate(context.Background()), "do not fit a 8-byte memory")
	assert.NoFileExists(t, small)
}

func TestLogf(t *testing.T) {
	var buf bytes.Buffer
	logWriter, verbose = &buf, false
	defer func() { logWriter, verbose = os.Stderr, false }()

	logf("quiet %d", 1)
	assert.Empty(t, buf.String())

	verbose = true
	g, err := NewGenerator("", filepath.Join(t.TempDir(), "bench.yaml"), "yaml", 1, defaultMemory)
	require.NoError(t, err)
	require.NoError(t, g.Generate(context.Background()))
	assert.Contains(t, buf.String(), "loaded 5 jobs from built-in suite\n")
	assert.Contains(t, buf.String(), `simulated job "basic": 48 address events, 16 output writes`)
	assert.True(t, strings.HasSuffix(buf.String(), "bench.yaml\n"))
}
