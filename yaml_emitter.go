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

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

type yamlDump struct {
	Source string      `yaml:"source"`
	Jobs   []yamlJob   `yaml:"jobs"`
	Groups []yamlGroup `yaml:"groups"`
}

type yamlJob struct {
	Name      string            `yaml:"name"`
	Input     []int             `yaml:"input,flow"`
	Filter    []int             `yaml:"filter,flow"`
	Output    []int             `yaml:"output,flow"`
	Registers map[string]string `yaml:"registers"`
	Final     []string          `yaml:"final_output,flow"`
}

type yamlGroup struct {
	Prefix       string       `yaml:"prefix"`
	Kind         string       `yaml:"kind"`
	Transactions int          `yaml:"transactions"`
	Signals      []yamlSignal `yaml:"signals"`
}

type yamlSignal struct {
	Name   string   `yaml:"name"`
	Width  int      `yaml:"width"`
	Values []uint64 `yaml:"values,flow"`
}

type yamlEmitter struct{}

func init() {
	RegisterEmitter(yamlEmitter{})
}

func (yamlEmitter) Name() string { return "yaml" }

func (yamlEmitter) Extension() string { return "yaml" }

func (yamlEmitter) Emit(w io.Writer, b *Bench) error {
	dump := yamlDump{Source: b.Source}
	for _, r := range b.Session.Results {
		g := r.Geometry
		values := RegisterValues(r)
		job := yamlJob{
			Name:      r.Job.Name,
			Input:     []int{g.IC, g.IH, g.IW},
			Filter:    []int{g.FC, g.FH, g.FW},
			Output:    []int{g.PooledH(), g.PooledW()},
			Registers: make(map[string]string, len(Registers)),
			Final:     lo.Map(r.Output.Words(), func(v uint32, _ int) string { return fmt.Sprintf("0x%08X", v) }),
		}
		for i, reg := range Registers {
			job.Registers[reg.Name] = fmt.Sprintf("0x%08X", values[i])
		}
		dump.Jobs = append(dump.Jobs, job)
	}
	for _, g := range b.Session.Trace.SignalGroups() {
		kind := "stream"
		if g.Kind == MemoryGroup {
			kind = "memory"
		}
		dump.Groups = append(dump.Groups, yamlGroup{
			Prefix:       g.Prefix,
			Kind:         kind,
			Transactions: g.Transactions(),
			Signals: lo.Map(g.Signals, func(s Signal, _ int) yamlSignal {
				return yamlSignal{Name: s.Name, Width: s.Width, Values: s.Values}
			}),
		})
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&dump); err != nil {
		return err
	}
	return encoder.Close()
}
