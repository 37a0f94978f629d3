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
	"fmt"
	"io"
	"sort"
)

// Bench is everything an emitter needs: the simulated jobs, their
// accumulated trace, and the stimulus that drives each job.
type Bench struct {
	Session *Session
	Stimuli []*Stimulus
	Memory  MemoryConfig
	Source  string // where the jobs came from, for generated headers
}

// NewBench builds the stimulus for every job of the session.
func NewBench(s *Session, cfg MemoryConfig, source string) (*Bench, error) {
	stimuli, err := BuildStimuli(s, cfg)
	if err != nil {
		return nil, err
	}
	return &Bench{Session: s, Stimuli: stimuli, Memory: cfg, Source: source}, nil
}

// Emitter defines the interface for writing a bench in one output format.
type Emitter interface {
	// Name returns the format name (e.g., "vhdl", "c")
	Name() string

	// Extension returns the file extension of generated files, without the dot
	Extension() string

	// Emit writes the bench.
	Emit(w io.Writer, b *Bench) error
}

// emitters holds the registered output formats
var emitters = map[string]Emitter{}

// RegisterEmitter registers an output format
func RegisterEmitter(e Emitter) {
	emitters[e.Name()] = e
}

// GetEmitter returns the emitter for the given format
func GetEmitter(name string) (Emitter, error) {
	if e, ok := emitters[name]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("unsupported format: %s (available: %v)", name, ListFormats())
}

// ListFormats returns the registered format names, sorted
func ListFormats() []string {
	names := make([]string, 0, len(emitters))
	for name := range emitters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
