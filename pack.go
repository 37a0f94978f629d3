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
	"strings"
)

// Pack concatenates values into a binary string of width-bit fields, newest
// value first, so that transaction i occupies bits [(i+1)*width-1 : i*width]
// counted from the low end. Each value is truncated to width bits, which
// gives negative values their two's-complement pattern. A width below 1
// packs nothing.
func Pack(values []uint64, width int) string {
	if width <= 0 {
		return ""
	}
	var builder strings.Builder
	builder.Grow(len(values) * width)
	for i := len(values) - 1; i >= 0; i-- {
		builder.WriteString(fieldBits(values[i], width))
	}
	return builder.String()
}

// Unpack recovers the values packed by Pack.
func Unpack(bits string, width int) ([]uint64, error) {
	if width <= 0 || width > 64 {
		return nil, fmt.Errorf("invalid field width %d", width)
	}
	if len(bits)%width != 0 {
		return nil, fmt.Errorf("%d bits is not a multiple of field width %d", len(bits), width)
	}
	n := len(bits) / width
	values := make([]uint64, n)
	for i := range n {
		field := bits[len(bits)-(i+1)*width : len(bits)-i*width]
		var v uint64
		for _, c := range field {
			switch c {
			case '0':
				v <<= 1
			case '1':
				v = v<<1 | 1
			default:
				return nil, fmt.Errorf("invalid bit %q in field %d", c, i)
			}
		}
		values[i] = v
	}
	return values, nil
}

func fieldBits(v uint64, width int) string {
	b := make([]byte, width)
	for k := range width {
		if v>>uint(width-1-k)&1 == 1 {
			b[k] = '1'
		} else {
			b[k] = '0'
		}
	}
	return string(b)
}

// Vector is a packed signal that a transaction counter indexes into.
type Vector struct {
	Width int
	Bits  string
}

// NewVector packs values into a vector of width-bit fields.
func NewVector(values []uint64, width int) Vector {
	return Vector{Width: width, Bits: Pack(values, width)}
}

// Len returns the number of transactions in the vector.
func (v Vector) Len() int {
	if v.Width == 0 {
		return 0
	}
	return len(v.Bits) / v.Width
}

// At returns the field of transaction i.
func (v Vector) At(i int) (uint64, error) {
	if i < 0 || i >= v.Len() {
		return 0, fmt.Errorf("transaction %d out of range [0, %d)", i, v.Len())
	}
	hi := len(v.Bits) - i*v.Width
	values, err := Unpack(v.Bits[hi-v.Width:hi], v.Width)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}
