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

// AddressEvent is one transaction of the index generator.
type AddressEvent struct {
	InputAddr  uint32
	FilterAddr uint32
	Last       bool
}

// LaneSample is one operand pair entering a lane: the input byte in the
// high half and the filter byte in the low half.
type LaneSample struct {
	Operand uint16
	Last    bool
}

// LaneResult is the accumulated value a lane emits once per output element.
type LaneResult struct {
	Value int32
	Last  bool
}

// CombinedSample is a lane result tagged with its lane by the output combiner.
type CombinedSample struct {
	Value int32
	Last  bool
	Lane  uint8
}

// QuantizedSample is the saturated 8-bit output of the dequantization unit.
type QuantizedSample struct {
	Value int8
	Last  bool
	Lane  uint8
}

// OutputWrite is one 32-bit word write into the output memory.
type OutputWrite struct {
	Addr uint32
	Data uint32
}

// Trace holds the ordered transactions observed at every pipeline stage.
type Trace struct {
	Addresses []AddressEvent
	LaneIn    [NumLanes][]LaneSample
	LaneOut   [NumLanes][]LaneResult
	Combined  []CombinedSample
	Quantized []QuantizedSample
	Writes    []OutputWrite
}

// Append adds the transactions of other after the ones already in t.
func (t *Trace) Append(other *Trace) {
	t.Addresses = append(t.Addresses, other.Addresses...)
	for lane := range NumLanes {
		t.LaneIn[lane] = append(t.LaneIn[lane], other.LaneIn[lane]...)
		t.LaneOut[lane] = append(t.LaneOut[lane], other.LaneOut[lane]...)
	}
	t.Combined = append(t.Combined, other.Combined...)
	t.Quantized = append(t.Quantized, other.Quantized...)
	t.Writes = append(t.Writes, other.Writes...)
}

func packOperand(input, filter int8) uint16 {
	return uint16(uint8(input))<<8 | uint16(uint8(filter))
}
