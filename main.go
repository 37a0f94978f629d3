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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
)

// Generator turns a job suite into one testbench file.
type Generator struct {
	Source   string // job file, empty for the built-in suite
	Output   string // output file, "-" for stdout
	Format   string
	Parallel int
	Memory   MemoryConfig
	emitter  Emitter
}

func NewGenerator(source, output, format string, parallel int, memory MemoryConfig) (Generator, error) {
	emitter, err := GetEmitter(format)
	if err != nil {
		return Generator{}, err
	}
	if memory.Size <= 0 || memory.Size%4 != 0 {
		return Generator{}, fmt.Errorf("memory size %d is not a positive multiple of 4", memory.Size)
	}
	if limit := 1 << min(InputAddrWidth, FilterAddrWidth); memory.Size > limit {
		return Generator{}, fmt.Errorf("memory size %d exceeds the %d bytes the accelerator can address", memory.Size, limit)
	}
	return Generator{
		Source:   source,
		Output:   output,
		Format:   format,
		Parallel: parallel,
		Memory:   memory,
		emitter:  emitter,
	}, nil
}

// jobs loads the job suite.
func (g *Generator) jobs() ([]*Job, string, error) {
	if g.Source == "" {
		return BuiltinJobs(), "built-in suite", nil
	}
	jobs, err := LoadJobs(g.Source)
	if err != nil {
		return nil, "", err
	}
	return jobs, filepath.Base(g.Source), nil
}

// Generate simulates every job and writes the bench in the selected format.
func (g *Generator) Generate(ctx context.Context) error {
	jobs, source, err := g.jobs()
	if err != nil {
		return err
	}
	logf("loaded %d jobs from %s", len(jobs), source)
	session, err := RunJobs(ctx, jobs, g.Parallel)
	if err != nil {
		return err
	}
	bench, err := NewBench(session, g.Memory, source)
	if err != nil {
		return err
	}
	if g.Output == "-" {
		return g.emitter.Emit(os.Stdout, bench)
	}
	return g.writeFile(bench)
}

// writeFile emits the whole bench before creating the output, so a failed
// emission leaves no partial file behind.
func (g *Generator) writeFile(bench *Bench) (err error) {
	var buf bytes.Buffer
	if err = g.emitter.Emit(&buf, bench); err != nil {
		return err
	}
	f, err := os.Create(g.Output)
	if err != nil {
		return err
	}
	defer func(f *os.File) {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}(f)
	if _, err = buf.WriteTo(f); err != nil {
		return err
	}
	logf("wrote %s", g.Output)
	return nil
}

var (
	verbose   bool
	logWriter io.Writer = os.Stderr
)

// logf reports progress on stderr when verbose output is enabled.
func logf(format string, args ...any) {
	if verbose {
		_, _ = fmt.Fprintf(logWriter, format+"\n", args...)
	}
}

var command = &cobra.Command{
	Use:  "convtb [jobs.yaml] [-o output] [-f format]",
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var source string
		if len(args) > 0 {
			source = args[0]
		}
		format, _ := cmd.PersistentFlags().GetString("format")
		output, _ := cmd.PersistentFlags().GetString("output")
		if output == "" {
			emitter, err := GetEmitter(format)
			if err != nil {
				_, _ = fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			output = vhdlEntity + "." + emitter.Extension()
		}
		parallel, _ := cmd.PersistentFlags().GetInt("parallel")
		size, _ := cmd.PersistentFlags().GetInt("memory-size")
		fillerText, _ := cmd.PersistentFlags().GetString("filler")
		filler, err := strconv.ParseUint(fillerText, 0, 8)
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, fmt.Errorf("invalid filler byte %q: %w", fillerText, err))
			os.Exit(1)
		}
		generator, err := NewGenerator(source, output, format, parallel, MemoryConfig{Size: size, Filler: byte(filler)})
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := generator.Generate(cmd.Context()); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	command.PersistentFlags().StringP("output", "o", "", "output file of the generated bench, - for stdout")
	command.PersistentFlags().StringP("format", "f", "vhdl", "output format (c, vhdl, yaml)")
	command.PersistentFlags().IntP("parallel", "j", 1, "number of jobs simulated concurrently")
	command.PersistentFlags().Int("memory-size", DefaultMemorySize, "capacity in bytes of the input and filter memories")
	command.PersistentFlags().String("filler", fmt.Sprintf("0x%02X", DefaultFiller), "byte stored past the end of each tensor")
	command.PersistentFlags().BoolVar(&verifyC, "verify-c", false, "parse the generated C driver before writing it")
	command.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "if set, increase verbosity level")
}

func main() {
	if err := command.ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
