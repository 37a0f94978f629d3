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

	"github.com/samber/lo"
)

// Field widths of the checked interfaces. These must match the port widths
// of the design under test.
const (
	InputAddrWidth  = 7
	FilterAddrWidth = 7
	OperandWidth    = 16
	AccWidth        = 32
	LaneIDWidth     = 2
	QuantWidth      = 8
	MemAddrWidth    = 32
	MemDataWidth    = 32
)

// GroupKind selects how a checking process synchronizes with the design.
type GroupKind int

const (
	// StreamGroup advances on an AXI-stream handshake (tvalid and tready).
	StreamGroup GroupKind = iota
	// MemoryGroup advances on a full-word memory write (en and we).
	MemoryGroup
)

// Signal is one checked field and its expected value per transaction.
type Signal struct {
	Name   string
	Width  int
	Values []uint64
}

// Vector packs the expected values of the signal.
func (s Signal) Vector() Vector {
	return NewVector(s.Values, s.Width)
}

// SignalGroup is a set of signals checked together, one transaction at a time.
type SignalGroup struct {
	Prefix  string
	Kind    GroupKind
	Signals []Signal
}

// Transactions returns the number of modeled transactions of the group.
func (g SignalGroup) Transactions() int {
	if len(g.Signals) == 0 {
		return 0
	}
	return len(g.Signals[0].Values)
}

func bit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func signedBits[T int8 | int32](v T) uint64 {
	return uint64(int64(v))
}

// SignalGroups lays the trace out as the checked interfaces of the design,
// in the order the checking processes are emitted.
func (t *Trace) SignalGroups() []SignalGroup {
	const index = "s_index_gen_m_axis"
	groups := []SignalGroup{{
		Prefix: index,
		Kind:   StreamGroup,
		Signals: []Signal{
			{index + "_tdata_input_addr", InputAddrWidth, lo.Map(t.Addresses, func(e AddressEvent, _ int) uint64 { return uint64(e.InputAddr) })},
			{index + "_tdata_filter_addr", FilterAddrWidth, lo.Map(t.Addresses, func(e AddressEvent, _ int) uint64 { return uint64(e.FilterAddr) })},
			{index + "_tlast", 1, lo.Map(t.Addresses, func(e AddressEvent, _ int) uint64 { return bit(e.Last) })},
		},
	}}
	for lane := range NumLanes {
		prefix := fmt.Sprintf("s_mac%d_s_axis", lane)
		groups = append(groups, SignalGroup{
			Prefix: prefix,
			Kind:   StreamGroup,
			Signals: []Signal{
				{prefix + "_tdata", OperandWidth, lo.Map(t.LaneIn[lane], func(s LaneSample, _ int) uint64 { return uint64(s.Operand) })},
				{prefix + "_tlast", 1, lo.Map(t.LaneIn[lane], func(s LaneSample, _ int) uint64 { return bit(s.Last) })},
			},
		})
	}
	for lane := range NumLanes {
		prefix := fmt.Sprintf("s_mac%d_m_axis", lane)
		groups = append(groups, SignalGroup{
			Prefix: prefix,
			Kind:   StreamGroup,
			Signals: []Signal{
				{prefix + "_tdata", AccWidth, lo.Map(t.LaneOut[lane], func(r LaneResult, _ int) uint64 { return signedBits(r.Value) })},
				{prefix + "_tlast", 1, lo.Map(t.LaneOut[lane], func(r LaneResult, _ int) uint64 { return bit(r.Last) })},
			},
		})
	}
	const combiner = "s_out_combiner_m_axis"
	groups = append(groups, SignalGroup{
		Prefix: combiner,
		Kind:   StreamGroup,
		Signals: []Signal{
			{combiner + "_tdata", AccWidth, lo.Map(t.Combined, func(s CombinedSample, _ int) uint64 { return signedBits(s.Value) })},
			{combiner + "_tlast", 1, lo.Map(t.Combined, func(s CombinedSample, _ int) uint64 { return bit(s.Last) })},
			{combiner + "_tid", LaneIDWidth, lo.Map(t.Combined, func(s CombinedSample, _ int) uint64 { return uint64(s.Lane) })},
		},
	})
	const deq = "s_dequantization_m_axis"
	groups = append(groups, SignalGroup{
		Prefix: deq,
		Kind:   StreamGroup,
		Signals: []Signal{
			{deq + "_tdata", QuantWidth, lo.Map(t.Quantized, func(s QuantizedSample, _ int) uint64 { return signedBits(s.Value) })},
			{deq + "_tlast", 1, lo.Map(t.Quantized, func(s QuantizedSample, _ int) uint64 { return bit(s.Last) })},
			{deq + "_tid", LaneIDWidth, lo.Map(t.Quantized, func(s QuantizedSample, _ int) uint64 { return uint64(s.Lane) })},
		},
	})
	out := BRAMName(OutputMemory)
	groups = append(groups, SignalGroup{
		Prefix: out,
		Kind:   MemoryGroup,
		Signals: []Signal{
			{out + "_addr", MemAddrWidth, lo.Map(t.Writes, func(w OutputWrite, _ int) uint64 { return uint64(w.Addr) })},
			{out + "_din", MemDataWidth, lo.Map(t.Writes, func(w OutputWrite, _ int) uint64 { return uint64(w.Data) })},
		},
	})
	return groups
}
