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

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Memory sizes and filler used when loading the simulated BRAM blocks.
const (
	DefaultMemorySize        = 128
	DefaultFiller       byte = 0xA5
	ConvBaseAddr             = 0x4C000000
	BRAMBaseAddr             = 0x40000000
)

// MemoryConfig describes the input and filter memories of the testbench.
type MemoryConfig struct {
	Size   int  // capacity in bytes
	Filler byte // value of every byte past the end of the tensor
}

// Memory names. Emitters derive hardware identifiers from them.
const (
	InputMemory  = "input"
	OutputMemory = "output"
)

// FilterMemory returns the name of one lane's filter memory.
func FilterMemory(lane int) string {
	return fmt.Sprintf("filter%d", lane)
}

var upper = cases.Upper(language.Und)

// BRAMName returns the testbench identifier of a memory block.
func BRAMName(memory string) string {
	return "BRAM_" + upper.String(memory)
}

// BoardAddr returns the address of a memory block on the board.
func BoardAddr(memory string) uint32 {
	switch memory {
	case InputMemory:
		return BRAMBaseAddr
	case OutputMemory:
		return BRAMBaseAddr + 1<<17
	}
	var lane int
	if _, err := fmt.Sscanf(memory, "filter%d", &lane); err != nil {
		return 0
	}
	return BRAMBaseAddr + 1<<18 + uint32(lane)<<11
}

// BoardSize returns the size in bytes of a memory region on the board.
func BoardSize(memory string) uint32 {
	switch memory {
	case InputMemory, OutputMemory:
		return 1 << 17
	}
	return 1 << 11
}

// MemoryImage is the content of one memory block, indexed by byte address.
type MemoryImage struct {
	Name  string
	Bytes []byte
}

// NewMemoryImage places data at address 0 and fills the rest of the memory.
func NewMemoryImage(name string, data []int8, cfg MemoryConfig) (MemoryImage, error) {
	if len(data) > cfg.Size {
		return MemoryImage{}, fmt.Errorf("%s: %d bytes do not fit a %d-byte memory", name, len(data), cfg.Size)
	}
	image := make([]byte, cfg.Size)
	for i := range image {
		if i < len(data) {
			image[i] = byte(data[i])
		} else {
			image[i] = cfg.Filler
		}
	}
	return MemoryImage{Name: name, Bytes: image}, nil
}

// Register is one configuration input of the accelerator. Flag registers
// are single bits of a control register on the board.
type Register struct {
	Name   string
	Offset uint32 // from ConvBaseAddr
	Bit    int    // bit within the control register, -1 for word registers
}

// Width returns the width of the register in the testbench.
func (r Register) Width() int {
	if r.Bit >= 0 {
		return 1
	}
	return 32
}

// Control registers.
const (
	CtrlA         = 0x00
	CtrlB         = 0x04
	CtrlAConvIdle = 1 << 0
)

// SwapBits are the bank-select flags of CtrlB. The testbench never drives
// them; the board driver preserves them when it configures a job.
var SwapBits = []Register{
	{"swap_filters", CtrlB, 0},
	{"swap_activations", CtrlB, 1},
}

// Registers lists the configuration registers in the order the stimulus sets them.
var Registers = []Register{
	{"max_pooling", CtrlB, 2},
	{"relu", CtrlB, 3},
	{"filter_w", 0x0C, -1},
	{"filter_h", 0x10, -1},
	{"filter_c", 0x14, -1},
	{"output_w", 0x18, -1},
	{"output_h", 0x1C, -1},
	{"input_end_diff_fw", 0x20, -1},
	{"input_end_diff_fh", 0x24, -1},
	{"input_end_diff_fc", 0x28, -1},
	{"input_end_diff_ow", 0x2C, -1},
	{"output_elements_per_channel", 0x30, -1},
	{"output_initial_offset", 0x34, -1},
	{"mac0_bias", 0x38, -1},
	{"mac1_bias", 0x3C, -1},
	{"mac2_bias", 0x40, -1},
	{"mac3_bias", 0x44, -1},
	{"q_scale", 0x48, -1},
	{"q_zero", 0x4C, -1},
}

// RegisterWrite is one configuration value of a job.
type RegisterWrite struct {
	Register
	Value uint32
}

// StepKind is the kind of a stimulus step.
type StepKind int

const (
	StepSetIdle StepKind = iota
	StepDelay
	StepLoadMemory
	StepSetRegister
	StepWaitComplete
)

// Step is one action of the control process.
type Step struct {
	Kind   StepKind
	Idle   bool
	Memory MemoryImage
	Write  RegisterWrite
}

// Stimulus drives one job through the accelerator: load memories, configure,
// start, and wait for completion.
type Stimulus struct {
	Job      *Job
	Memories []MemoryImage
	Writes   []RegisterWrite
	Steps    []Step
}

// RegisterValues returns the configuration of a simulated job in the order
// of Registers.
func RegisterValues(r *Result) []uint32 {
	g, d, job := r.Geometry, r.Deltas, r.Job
	return []uint32{
		uint32(bit(job.MaxPooling)),
		uint32(bit(job.ReLU)),
		uint32(g.FW),
		uint32(g.FH),
		uint32(g.FC),
		uint32(g.OW),
		uint32(g.OH),
		d.FW,
		d.FH,
		d.FC,
		d.OW,
		uint32(g.ElementsPerChannel()),
		uint32(job.OutputInitialOffset),
		uint32(job.Biases[0]),
		uint32(job.Biases[1]),
		uint32(job.Biases[2]),
		uint32(job.Biases[3]),
		job.Scale,
		uint32(job.Zero),
	}
}

// BuildStimulus returns the stimulus of one simulated job.
func BuildStimulus(r *Result, cfg MemoryConfig) (*Stimulus, error) {
	st := &Stimulus{Job: r.Job}
	input, err := NewMemoryImage(InputMemory, r.Job.FlatInput(), cfg)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", r.Job.Name, err)
	}
	st.Memories = append(st.Memories, input)
	for lane := range NumLanes {
		filter, err := NewMemoryImage(FilterMemory(lane), r.Job.FlatFilter(lane), cfg)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", r.Job.Name, err)
		}
		st.Memories = append(st.Memories, filter)
	}
	for i, v := range RegisterValues(r) {
		st.Writes = append(st.Writes, RegisterWrite{Register: Registers[i], Value: v})
	}

	st.Steps = append(st.Steps, Step{Kind: StepSetIdle, Idle: true}, Step{Kind: StepDelay})
	for _, m := range st.Memories {
		st.Steps = append(st.Steps, Step{Kind: StepLoadMemory, Memory: m})
	}
	for _, w := range st.Writes {
		st.Steps = append(st.Steps, Step{Kind: StepSetRegister, Write: w})
	}
	st.Steps = append(st.Steps,
		Step{Kind: StepDelay},
		Step{Kind: StepSetIdle, Idle: false},
		Step{Kind: StepWaitComplete},
		Step{Kind: StepDelay},
	)
	return st, nil
}

// BuildStimuli returns the stimulus of every job of a session, in order.
func BuildStimuli(s *Session, cfg MemoryConfig) ([]*Stimulus, error) {
	stimuli := make([]*Stimulus, 0, len(s.Results))
	for _, r := range s.Results {
		st, err := BuildStimulus(r, cfg)
		if err != nil {
			return nil, err
		}
		stimuli = append(stimuli, st)
	}
	return stimuli, nil
}
