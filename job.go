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

	"github.com/samber/lo"
)

// NumLanes is the number of multiply-accumulate lanes in the accelerator.
// Each lane is bound to one filter and one output channel.
const NumLanes = 4

// Job is one convolution invocation of the accelerator.
type Job struct {
	Name    string
	Input   [][][]int8 // channel, height, width
	Filters [NumLanes][][][]int8
	Biases  [NumLanes]int32
	Scale   uint32
	Zero    int32

	MaxPooling bool
	ReLU       bool

	OutputInitialOffset int
}

// Geometry holds the dimensions derived from a job's tensors.
type Geometry struct {
	IC, IH, IW int
	FC, FH, FW int
	OH, OW     int
	MaxPooling bool
}

// PooledH returns the height of each output channel in memory.
func (g Geometry) PooledH() int {
	if g.MaxPooling {
		return g.OH / 2
	}
	return g.OH
}

// PooledW returns the width of each output channel in memory.
func (g Geometry) PooledW() int {
	if g.MaxPooling {
		return g.OW / 2
	}
	return g.OW
}

// ElementsPerChannel is the stride between lane regions of the output memory.
func (g Geometry) ElementsPerChannel() int {
	if g.MaxPooling {
		return (g.OH * g.OW) / 4
	}
	return g.OH * g.OW
}

// OutputIndex returns the linear element index, within one lane's region,
// that the raw output position (oh, ow) lands on.
func (g Geometry) OutputIndex(oh, ow int) int {
	if g.MaxPooling {
		return (oh/2)*(g.OW/2) + ow/2
	}
	return oh*g.OW + ow
}

// InputAddr is the linear input memory address of input[fc][fh+oh][fw+ow].
func (g Geometry) InputAddr(oh, ow, fc, fh, fw int) int {
	return fc*g.IH*g.IW + (fh+oh)*g.IW + (fw + ow)
}

// FilterAddr is the linear filter memory address of filter[fc][fh][fw].
func (g Geometry) FilterAddr(fc, fh, fw int) int {
	return fc*g.FH*g.FW + fh*g.FW + fw
}

// MACsPerElement is the number of address events issued per output element.
func (g Geometry) MACsPerElement() int {
	return g.FC * g.FH * g.FW
}

// WrapDeltas are the backward jumps the index generator applies to the
// input address when each nested loop rolls over.
type WrapDeltas struct {
	FW, FH, FC, OW uint32
}

// WrapDeltas computes the index generator configuration, wrapped to 32 bits.
func (g Geometry) WrapDeltas() WrapDeltas {
	fw := 1 - g.FW + g.IW
	fh := fw - g.IW*g.FH + g.IW*g.IH
	fc := fh - g.IW*g.IH*g.FC + 1
	ow := fc + g.FW - 1
	return WrapDeltas{
		FW: uint32(fw),
		FH: uint32(fh),
		FC: uint32(fc),
		OW: uint32(ow),
	}
}

// Geometry validates the job's tensor shapes and derives its dimensions.
func (j *Job) Geometry() (Geometry, error) {
	if err := j.Validate(); err != nil {
		return Geometry{}, err
	}
	ic, ih, iw := shape(j.Input)
	fc, fh, fw := shape(j.Filters[0])
	return Geometry{
		IC: ic, IH: ih, IW: iw,
		FC: fc, FH: fh, FW: fw,
		OH:         ih - fh + 1,
		OW:         iw - fw + 1,
		MaxPooling: j.MaxPooling,
	}, nil
}

// Validate checks that the input and filters describe a convolution the
// accelerator can run.
func (j *Job) Validate() error {
	if err := checkRectangular(j.Input); err != nil {
		return fmt.Errorf("job %q: input: %w", j.Name, err)
	}
	for lane, filter := range j.Filters {
		if err := checkRectangular(filter); err != nil {
			return fmt.Errorf("job %q: filter %d: %w", j.Name, lane, err)
		}
	}
	ic, ih, iw := shape(j.Input)
	fc, fh, fw := shape(j.Filters[0])
	for lane := 1; lane < NumLanes; lane++ {
		c, h, w := shape(j.Filters[lane])
		if c != fc || h != fh || w != fw {
			return fmt.Errorf("job %q: filter %d is %dx%dx%d, filter 0 is %dx%dx%d",
				j.Name, lane, c, h, w, fc, fh, fw)
		}
	}
	if fc != ic {
		return fmt.Errorf("job %q: filters have %d channels, input has %d", j.Name, fc, ic)
	}
	if fh > ih || fw > iw {
		return fmt.Errorf("job %q: %dx%d filter does not fit %dx%d input", j.Name, fh, fw, ih, iw)
	}
	if j.MaxPooling {
		oh, ow := ih-fh+1, iw-fw+1
		if oh%2 != 0 || ow%2 != 0 {
			return fmt.Errorf("job %q: max pooling needs an even output, got %dx%d", j.Name, oh, ow)
		}
	}
	if j.OutputInitialOffset < 0 {
		return fmt.Errorf("job %q: negative output initial offset %d", j.Name, j.OutputInitialOffset)
	}
	return nil
}

// FlatInput returns the input tensor in memory order.
func (j *Job) FlatInput() []int8 {
	return flatten(j.Input)
}

// FlatFilter returns one lane's filter in memory order.
func (j *Job) FlatFilter(lane int) []int8 {
	return flatten(j.Filters[lane])
}

func shape(t [][][]int8) (c, h, w int) {
	c = len(t)
	if c > 0 {
		h = len(t[0])
		if h > 0 {
			w = len(t[0][0])
		}
	}
	return
}

func checkRectangular(t [][][]int8) error {
	c, h, w := shape(t)
	if c == 0 || h == 0 || w == 0 {
		return errors.New("empty tensor")
	}
	for i := range t {
		if len(t[i]) != h {
			return fmt.Errorf("channel %d has %d rows, want %d", i, len(t[i]), h)
		}
		for k := range t[i] {
			if len(t[i][k]) != w {
				return fmt.Errorf("channel %d row %d has %d columns, want %d", i, k, len(t[i][k]), w)
			}
		}
	}
	return nil
}

func flatten(t [][][]int8) []int8 {
	return lo.Flatten(lo.Flatten(t))
}
