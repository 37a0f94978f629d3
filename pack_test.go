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
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPack(t *testing.T) {
	tests := []struct {
		name   string
		values []uint64
		width  int
		want   string
	}{
		{"newest first", []uint64{1, 2, 3}, 2, "111001"},
		{"single bits", []uint64{1, 0, 0, 1, 1}, 1, "11001"},
		{"truncates", []uint64{0x1FF}, 8, "11111111"},
		{"negative", []uint64{signedBits(int32(-1))}, 4, "1111"},
		{"negative byte", []uint64{signedBits(int8(-33))}, 8, "11011111"},
		{"empty", nil, 32, ""},
		{"zero width", []uint64{1, 2}, 0, ""},
		{"negative width", []uint64{1, 2}, -3, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Pack(tt.values, tt.width); got != tt.want {
				t.Errorf("Pack(%v, %d) = %q, want %q", tt.values, tt.width, got, tt.want)
			}
		})
	}
}

func TestPackUnpack_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, width := range []int{1, 2, 7, 8, 16, 32, 64} {
		values := make([]uint64, 100)
		for i := range values {
			values[i] = rng.Uint64()
			if width < 64 {
				values[i] &= 1<<uint(width) - 1
			}
		}
		got, err := Unpack(Pack(values, width), width)
		if err != nil {
			t.Fatalf("width %d: %v", width, err)
		}
		if diff := cmp.Diff(values, got); diff != "" {
			t.Errorf("width %d: round trip mismatch (-want +got):\n%s", width, diff)
		}
	}
}

func TestUnpack_Errors(t *testing.T) {
	tests := []struct {
		name  string
		bits  string
		width int
	}{
		{"zero width", "0101", 0},
		{"too wide", "0101", 65},
		{"partial field", "01010", 2},
		{"not binary", "01X1", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unpack(tt.bits, tt.width); err == nil {
				t.Errorf("Unpack(%q, %d) succeeded, want error", tt.bits, tt.width)
			}
		})
	}
}

func TestVector_At(t *testing.T) {
	v := NewVector([]uint64{5, 0, 127, 64}, 7)
	if v.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", v.Len())
	}
	for i, want := range []uint64{5, 0, 127, 64} {
		got, err := v.At(i)
		if err != nil {
			t.Fatalf("At(%d): %v", i, err)
		}
		if got != want {
			t.Errorf("At(%d) = %d, want %d", i, got, want)
		}
	}
	// transaction 0 lives in the lowest bits
	if tail := v.Bits[len(v.Bits)-7:]; tail != "0000101" {
		t.Errorf("low field = %q, want %q", tail, "0000101")
	}
	if _, err := v.At(4); err == nil {
		t.Error("At(4) succeeded past the last transaction")
	}
}
