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
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// jobFile is the on-disk description of a test suite. Integers may be
// written in decimal or with a 0x prefix.
type jobFile struct {
	Jobs []jobSpec `yaml:"jobs"`
}

type rampSpec struct {
	Start int   `yaml:"start"`
	Shape []int `yaml:"shape"`
}

type jobSpec struct {
	Name                string      `yaml:"name"`
	Input               [][][]int   `yaml:"input"`
	InputRamp           *rampSpec   `yaml:"input_ramp"`
	Filters             [][][][]int `yaml:"filters"`
	Biases              []int64     `yaml:"biases"`
	Scale               uint32      `yaml:"scale"`
	Zero                int32       `yaml:"zero"`
	MaxPooling          bool        `yaml:"max_pooling"`
	ReLU                bool        `yaml:"relu"`
	OutputInitialOffset int         `yaml:"output_initial_offset"`
}

// LoadJobs reads a job file.
func LoadJobs(path string) ([]*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jobs, err := ParseJobs(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}

// ParseJobs decodes and validates the jobs of a job file.
func ParseJobs(data []byte) ([]*Job, error) {
	var file jobFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Jobs) == 0 {
		return nil, errors.New("no jobs defined")
	}
	jobs := make([]*Job, 0, len(file.Jobs))
	// the C driver derives symbol names from job names
	symbols := map[string]string{"memory_test": "the memory test"}
	for i, spec := range file.Jobs {
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("job%d", i)
		}
		job, err := spec.job()
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", spec.Name, err)
		}
		if err := job.Validate(); err != nil {
			return nil, err
		}
		id := cIdent(job.Name)
		if owner, ok := symbols[id]; ok {
			return nil, fmt.Errorf("job %q: C identifier %q is already used by %s", job.Name, id, owner)
		}
		symbols[id] = fmt.Sprintf("job %q", job.Name)
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s jobSpec) job() (*Job, error) {
	job := &Job{
		Name:                s.Name,
		Scale:               s.Scale,
		Zero:                s.Zero,
		MaxPooling:          s.MaxPooling,
		ReLU:                s.ReLU,
		OutputInitialOffset: s.OutputInitialOffset,
	}
	var err error
	switch {
	case s.Input != nil && s.InputRamp != nil:
		return nil, errors.New("input and input_ramp are mutually exclusive")
	case s.InputRamp != nil:
		job.Input, err = s.InputRamp.tensor()
	default:
		job.Input, err = toInt8Tensor(s.Input)
	}
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	if len(s.Filters) != NumLanes {
		return nil, fmt.Errorf("got %d filters, want %d", len(s.Filters), NumLanes)
	}
	for lane, f := range s.Filters {
		if job.Filters[lane], err = toInt8Tensor(f); err != nil {
			return nil, fmt.Errorf("filter %d: %w", lane, err)
		}
	}
	if len(s.Biases) != NumLanes {
		return nil, fmt.Errorf("got %d biases, want %d", len(s.Biases), NumLanes)
	}
	for lane, b := range s.Biases {
		if b < math.MinInt32 || b > math.MaxUint32 {
			return nil, fmt.Errorf("bias %d: %d does not fit 32 bits", lane, b)
		}
		job.Biases[lane] = int32(b)
	}
	return job, nil
}

func (r *rampSpec) tensor() ([][][]int8, error) {
	if len(r.Shape) != 3 {
		return nil, fmt.Errorf("ramp shape %v is not channel, height, width", r.Shape)
	}
	c, h, w := r.Shape[0], r.Shape[1], r.Shape[2]
	if c <= 0 || h <= 0 || w <= 0 {
		return nil, fmt.Errorf("invalid ramp shape %v", r.Shape)
	}
	next := r.Start
	t := make([][][]int, c)
	for i := range t {
		t[i] = make([][]int, h)
		for k := range t[i] {
			t[i][k] = lo.RangeFrom(next, w)
			next += w
		}
	}
	return toInt8Tensor(t)
}

func toInt8Tensor(t [][][]int) ([][][]int8, error) {
	out := make([][][]int8, len(t))
	for c := range t {
		out[c] = make([][]int8, len(t[c]))
		for h := range t[c] {
			out[c][h] = make([]int8, len(t[c][h]))
			for w, v := range t[c][h] {
				if v < math.MinInt8 || v > math.MaxInt8 {
					return nil, fmt.Errorf("value %d at [%d][%d][%d] is not a signed byte", v, c, h, w)
				}
				out[c][h][w] = int8(v)
			}
		}
	}
	return out, nil
}

// BuiltinJobs returns the default regression suite of the accelerator.
func BuiltinJobs() []*Job {
	input := [][][]int8{
		{
			{127, -1, -128, 4},
			{5, 6, 7, 8},
			{9, 10, 11, 12},
		},
		{
			{13, 14, 15, 16},
			{17, 18, 19, 0},
			{21, 3, 2, 1},
		},
	}
	filters := [NumLanes][][][]int8{
		{
			{{127, -1, -128}, {4, 5, 6}},
			{{7, 8, 9}, {10, 11, 12}},
		},
		{
			{{-13, -14, -15}, {-16, -17, -18}},
			{{-19, -20, -21}, {-22, -23, -24}},
		},
		{
			{{25, 26, 27}, {28, 29, 30}},
			{{31, 32, 33}, {34, 35, 36}},
		},
		{
			{{37, 38, 39}, {40, 41, 42}},
			{{43, 44, 45}, {46, 47, 48}},
		},
	}
	ramp := func(start, c, h, w int) [][][]int8 {
		t, err := (&rampSpec{Start: start, Shape: []int{c, h, w}}).tensor()
		if err != nil {
			panic(err)
		}
		return t
	}
	unit := [][][]int8{{{1, 0}, {0, 0}}}

	return []*Job{
		{
			Name:    "basic",
			Input:   input,
			Filters: filters,
			Biases:  [NumLanes]int32{0, 1, 2, 3},
			Scale:   0x04000000,
		},
		{
			Name:    "wide_bias",
			Input:   input,
			Filters: filters,
			Biases:  [NumLanes]int32{0, 1, -2, int32(-0x75CD437F)},
			Scale:   0x7A32BC81,
			Zero:    -127,
		},
		{
			Name:       "pool_relu",
			Input:      ramp(-20, 2, 5, 4),
			Filters:    filters,
			Biases:     [NumLanes]int32{0, 1, 2, 3},
			Scale:      0x7A32BC81,
			Zero:       -127,
			MaxPooling: true,
			ReLU:       true,
		},
		{
			Name:                "pool_relu_offset",
			Input:               ramp(-30, 2, 5, 6),
			Filters:             filters,
			Biases:              [NumLanes]int32{4, 5, 6, 7},
			Scale:               0x7A32BC81,
			Zero:                -100,
			MaxPooling:          true,
			ReLU:                true,
			OutputInitialOffset: 4,
		},
		{
			Name:    "identity_relu",
			Input:   [][][]int8{{{0x40, 0}, {0, 0}}},
			Filters: [NumLanes][][][]int8{unit, unit, unit, unit},
			Biases:  [NumLanes]int32{0x100, 0x100, 0x100, 0x100},
			Scale:   0x40000000,
			Zero:    3,
			ReLU:    true,
		},
	}
}
