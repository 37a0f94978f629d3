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
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poolReluYAML = `
jobs:
  - name: pool_relu
    input_ramp: {start: -20, shape: [2, 5, 4]}
    filters:
      - [[[127, -1, -128], [4, 5, 6]], [[7, 8, 9], [10, 11, 12]]]
      - [[[-13, -14, -15], [-16, -17, -18]], [[-19, -20, -21], [-22, -23, -24]]]
      - [[[25, 26, 27], [28, 29, 30]], [[31, 32, 33], [34, 35, 36]]]
      - [[[37, 38, 39], [40, 41, 42]], [[43, 44, 45], [46, 47, 48]]]
    biases: [0, 1, 2, 3]
    scale: 0x7A32BC81
    zero: -127
    max_pooling: true
    relu: true
  - input: [[[0x40, 0], [0, 0]]]
    filters:
      - [[[1, 0], [0, 0]]]
      - [[[1, 0], [0, 0]]]
      - [[[1, 0], [0, 0]]]
      - [[[1, 0], [0, 0]]]
    biases: [0x100, 0x100, 0x100, 0xFFFFFFFF]
    scale: 0x40000000
    zero: 3
`

func TestParseJobs(t *testing.T) {
	jobs, err := ParseJobs([]byte(poolReluYAML))
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	if diff := cmp.Diff(builtinJob(t, "pool_relu"), jobs[0]); diff != "" {
		t.Errorf("ramp job mismatch (-builtin +parsed):\n%s", diff)
	}

	second := jobs[1]
	assert.Equal(t, "job1", second.Name)
	assert.Equal(t, [NumLanes]int32{0x100, 0x100, 0x100, -1}, second.Biases)
	assert.Equal(t, uint32(0x40000000), second.Scale)
	assert.Equal(t, int32(3), second.Zero)
	assert.False(t, second.ReLU)
	assert.Equal(t, [][][]int8{{{0x40, 0}, {0, 0}}}, second.Input)
}

func TestParseJobs_Errors(t *testing.T) {
	const filters = `
    filters:
      - [[[1]]]
      - [[[1]]]
      - [[[1]]]
      - [[[1]]]
`
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no jobs", "jobs: []\n", "no jobs defined"},
		{"not yaml", "jobs: [", ""},
		{"both inputs", "jobs:\n  - name: a\n    input: [[[1]]]\n    input_ramp: {start: 0, shape: [1, 1, 1]}\n" + filters + "    biases: [0, 0, 0, 0]\n",
			`job "a": input and input_ramp are mutually exclusive`},
		{"three filters", "jobs:\n  - name: b\n    input: [[[1]]]\n    filters: [[[[1]]], [[[1]]], [[[1]]]]\n    biases: [0, 0, 0, 0]\n",
			`job "b": got 3 filters, want 4`},
		{"missing bias", "jobs:\n  - name: c\n    input: [[[1]]]\n" + filters + "    biases: [0, 0, 0]\n",
			`job "c": got 3 biases, want 4`},
		{"wide bias", "jobs:\n  - name: d\n    input: [[[1]]]\n" + filters + "    biases: [0, 0, 0, 0x100000000]\n",
			`job "d": bias 3: 4294967296 does not fit 32 bits`},
		{"not a byte", "jobs:\n  - name: e\n    input: [[[128]]]\n" + filters + "    biases: [0, 0, 0, 0]\n",
			`job "e": input: value 128 at [0][0][0] is not a signed byte`},
		{"bad ramp", "jobs:\n  - name: f\n    input_ramp: {start: 0, shape: [1, 2]}\n" + filters + "    biases: [0, 0, 0, 0]\n",
			`job "f": input: ramp shape [1 2] is not channel, height, width`},
		{"duplicate name", "jobs:\n  - name: h\n    input: [[[1]]]\n" + filters + "    biases: [0, 0, 0, 0]\n  - name: h\n    input: [[[2]]]\n" + filters + "    biases: [0, 0, 0, 0]\n",
			`job "h": C identifier "h" is already used by job "h"`},
		{"same C identifier", "jobs:\n  - name: a-b\n    input: [[[1]]]\n" + filters + "    biases: [0, 0, 0, 0]\n  - name: a_b\n    input: [[[2]]]\n" + filters + "    biases: [0, 0, 0, 0]\n",
			`job "a_b": C identifier "a_b" is already used by job "a-b"`},
		{"memory test name", "jobs:\n  - name: memory test\n    input: [[[1]]]\n" + filters + "    biases: [0, 0, 0, 0]\n",
			`job "memory test": C identifier "memory_test" is already used by the memory test`},
		{"ramp overflow", "jobs:\n  - name: g\n    input_ramp: {start: 120, shape: [1, 1, 10]}\n" + filters + "    biases: [0, 0, 0, 0]\n",
			`job "g": input: value 128 at [0][0][8] is not a signed byte`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJobs([]byte(tt.yaml))
			require.Error(t, err)
			if tt.want != "" {
				assert.EqualError(t, err, tt.want)
			}
		})
	}
}

func TestLoadJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(poolReluYAML), 0o644))

	jobs, err := LoadJobs(path)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	_, err = LoadJobs(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuiltinJobs_Valid(t *testing.T) {
	names := make(map[string]bool)
	for _, job := range BuiltinJobs() {
		require.NoError(t, job.Validate(), job.Name)
		assert.False(t, names[job.Name], "duplicate job %q", job.Name)
		names[job.Name] = true
	}
}
