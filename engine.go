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
	"github.com/samber/lo"
)

// OutputBuffer mirrors the output memory of one job: NumLanes channels of
// height x width signed bytes, laid out channel after channel.
type OutputBuffer struct {
	Height int
	Width  int
	cells  []int8
}

func newOutputBuffer(height, width int) *OutputBuffer {
	return &OutputBuffer{
		Height: height,
		Width:  width,
		cells:  make([]int8, NumLanes*height*width),
	}
}

// At returns the value of one output element.
func (b *OutputBuffer) At(lane, y, x int) int8 {
	return b.cells[b.index(lane, y, x)]
}

func (b *OutputBuffer) set(lane, y, x int, v int8) {
	b.cells[b.index(lane, y, x)] = v
}

func (b *OutputBuffer) index(lane, y, x int) int {
	return (lane*b.Height+y)*b.Width + x
}

// Word returns the little-endian 32-bit memory word holding elements
// 4*i .. 4*i+3.
func (b *OutputBuffer) Word(i int) uint32 {
	var w uint32
	for k := 3; k >= 0; k-- {
		w = w<<8 | uint32(uint8(b.cells[4*i+k]))
	}
	return w
}

// Words returns the whole buffer as memory words.
func (b *OutputBuffer) Words() []uint32 {
	return lo.Times(len(b.cells)/4, b.Word)
}

// Requantize converts an accumulator value into the 8-bit output of the
// dequantization unit. The product is taken at full width before the
// arithmetic shift.
func Requantize(acc int32, scale uint32, zero int32, relu bool) int8 {
	scaled := (int64(acc) * int64(scale)) >> 32
	if relu {
		scaled = max(scaled, 0)
	}
	return int8(lo.Clamp(scaled+int64(zero), -128, 127))
}

// Result is the golden model output of one job.
type Result struct {
	Job      *Job
	Geometry Geometry
	Deltas   WrapDeltas
	Trace    Trace
	Output   *OutputBuffer
}

// Simulate runs one job through the reference model of the accelerator
// pipeline and records every stage's transactions.
func Simulate(job *Job) (*Result, error) {
	g, err := job.Geometry()
	if err != nil {
		return nil, err
	}
	r := &Result{
		Job:      job,
		Geometry: g,
		Deltas:   g.WrapDeltas(),
		Output:   newOutputBuffer(g.PooledH(), g.PooledW()),
	}
	tr := &r.Trace
	epc := g.ElementsPerChannel()
	n := g.OH * g.OW
	tr.Addresses = make([]AddressEvent, 0, n*g.MACsPerElement())
	tr.Combined = make([]CombinedSample, 0, n*NumLanes)
	tr.Quantized = make([]QuantizedSample, 0, n*NumLanes)
	tr.Writes = make([]OutputWrite, 0, n*NumLanes)

	for oh := 0; oh < g.OH; oh++ {
		for ow := 0; ow < g.OW; ow++ {
			var acc [NumLanes]int32
			for lane := range NumLanes {
				acc[lane] = job.Biases[lane]
			}
			for fc := 0; fc < g.FC; fc++ {
				for fh := 0; fh < g.FH; fh++ {
					for fw := 0; fw < g.FW; fw++ {
						last := fc == g.FC-1 && fh == g.FH-1 && fw == g.FW-1
						tr.Addresses = append(tr.Addresses, AddressEvent{
							InputAddr:  uint32(g.InputAddr(oh, ow, fc, fh, fw)),
							FilterAddr: uint32(g.FilterAddr(fc, fh, fw)),
							Last:       last,
						})
						in := job.Input[fc][fh+oh][fw+ow]
						for lane := range NumLanes {
							w := job.Filters[lane][fc][fh][fw]
							tr.LaneIn[lane] = append(tr.LaneIn[lane], LaneSample{Operand: packOperand(in, w), Last: last})
							acc[lane] += int32(in) * int32(w)
						}
					}
				}
			}

			index := g.OutputIndex(oh, ow)
			for lane := range NumLanes {
				tr.LaneOut[lane] = append(tr.LaneOut[lane], LaneResult{Value: acc[lane], Last: true})
				tr.Combined = append(tr.Combined, CombinedSample{Value: acc[lane], Last: true, Lane: uint8(lane)})
				q := Requantize(acc[lane], job.Scale, job.Zero, job.ReLU)
				tr.Quantized = append(tr.Quantized, QuantizedSample{Value: q, Last: true, Lane: uint8(lane)})

				elem := index + epc*lane
				r.store(lane, oh, ow, q)
				tr.Writes = append(tr.Writes, OutputWrite{
					Addr: uint32(4 * ((job.OutputInitialOffset + elem) / 4)),
					Data: r.Output.Word(elem / 4),
				})
			}
		}
	}
	return r, nil
}

// store places a saturated value into the output buffer, merging pooled
// regions with a running max. The first raw position of a region overwrites
// whatever the cell held.
func (r *Result) store(lane, oh, ow int, v int8) {
	if !r.Geometry.MaxPooling {
		r.Output.set(lane, oh, ow, v)
		return
	}
	y, x := oh/2, ow/2
	if oh%2 == 1 || ow%2 == 1 {
		v = max(v, r.Output.At(lane, y, x))
	}
	r.Output.set(lane, y, x, v)
}
