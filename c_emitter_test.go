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
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"modernc.org/cc/v4"
)

func TestCEmitter_Driver(t *testing.T) {
	out := emit(t, "c", newTestBench(t, "basic", "identity_relu"))

	for _, want := range []string{
		"// Code generated by convtb. DO NOT EDIT.\n",
		"#define MLP_BRAM_BASEADDR (0x40000000)\n",
		"#define MLP_CONV_BASEADDR (0x4C000000)\n",
		"#define MLP_OUTPUT (0x40020000u)\n",
		"#define MLP_FILTER1 (0x40040800u)\n",
		"#define MLP_CTRLB_MAX_POOLING (1 << 2)\n",
		"#define MLP_CTRLB_RELU (1 << 3)\n",
		"#define MLP_CTRLB_SWAP_FILTERS (1 << 0)\n",
		"#define MLP_CTRLB_SWAP_ACTIVATIONS (1 << 1)\n",
		"#define MLP_CTRLB_SWAP_MASK (MLP_CTRLB_SWAP_FILTERS | MLP_CTRLB_SWAP_ACTIVATIONS)\n",
		"#define MLP_Q_ZERO (MLP_CONV_BASEADDR + 0x4C)\n",
		"static const uint32_t basic_input[32] = {\n    0x0480FF7Fu,",
		"static const uint32_t basic_expected_addr[4] = {\n    0x00000000u, 0x00000004u, 0x00000008u, 0x0000000Cu,\n};\n",
		"static const uint32_t basic_expected_data[4] = {\n    0x0309057Fu, 0xE5DAFADFu, 0x2D3D0136u, 0x3F55FD4Bu,\n};\n",
		"static const uint32_t identity_relu_expected_data[1] = {\n    0x53535353u,\n};\n",
		"void run_basic(void) {\n",
		"    Xil_Out32(MLP_FILTER_W, 0x00000003u);\n",
		"    Xil_Out32(MLP_CTRLB, (Xil_In32(MLP_CTRLB) & MLP_CTRLB_SWAP_MASK) | 0);\n",
		"    Xil_Out32(MLP_CTRLB, (Xil_In32(MLP_CTRLB) & MLP_CTRLB_SWAP_MASK) | MLP_CTRLB_RELU);\n",
		"int check_identity_relu(void) {\n",
	} {
		assert.Contains(t, out, want)
	}
	// job configuration never writes the bank-select bits directly
	assert.NotContains(t, out, "Xil_Out32(MLP_CTRLB, 0);")
	assert.NotContains(t, out, "Xil_Out32(MLP_CTRLB, MLP_CTRLB_")

	// every memory is loaded word by word
	assert.Equal(t, 2*(1+NumLanes), strings.Count(out, "    for (uint32_t i = 0; i < 32; i++) {\n"))
}

func TestCEmitter_MemoryTest(t *testing.T) {
	out := emit(t, "c", newTestBench(t, "basic"))

	start := strings.Index(out, "int run_memory_test(void) {\n")
	require.GreaterOrEqual(t, start, 0)
	assert.Less(t, start, strings.Index(out, "void run_basic(void)"))
	body := out[start:]
	body = body[:strings.Index(body, "}\n")]

	for _, want := range []string{
		"static void memcheck_write(uint32_t base, uint32_t length, uint32_t seed) {",
		"static int memcheck_verify(uint32_t base, uint32_t length, uint32_t seed) {",
	} {
		assert.Contains(t, out, want)
	}
	for _, want := range []string{
		"    uint32_t ctrlb = Xil_In32(MLP_CTRLB);\n",
		"    memcheck_write(MLP_INPUT, 0x20000u, 14);\n",
		"    errors += memcheck_verify(MLP_OUTPUT, 0x20000u, 15);\n",
		"    memcheck_write(MLP_FILTER3, 0x800u, 13);\n",
		"    Xil_Out32(MLP_CTRLB, (ctrlb & ~MLP_CTRLB_SWAP_MASK) | MLP_CTRLB_SWAP_FILTERS);\n",
		"    errors += memcheck_verify(MLP_FILTER0, 0x800u, 20);\n",
		"    errors += memcheck_verify(MLP_FILTER2, 0x800u, 12);\n",
		"    return errors;\n",
	} {
		assert.Contains(t, body, want)
	}
	// bank 1 is written after the swap and bank 0 verified after swapping back
	swap := strings.Index(body, "| MLP_CTRLB_SWAP_FILTERS);")
	assert.Less(t, strings.Index(body, "memcheck_write(MLP_FILTER0, 0x800u, 10);"), swap)
	assert.Greater(t, strings.Index(body, "memcheck_write(MLP_FILTER0, 0x800u, 20);"), swap)
	restore := strings.LastIndex(body, "Xil_Out32(MLP_CTRLB, ctrlb & ~MLP_CTRLB_SWAP_MASK);")
	assert.Greater(t, strings.Index(body, "memcheck_verify(MLP_FILTER0, 0x800u, 10);"), restore)
	assert.True(t, strings.HasSuffix(body, "    Xil_Out32(MLP_CTRLB, ctrlb);\n    return errors;\n"))
}

func TestCIdent(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"basic", "basic"},
		{"pool-relu 2", "pool_relu_2"},
		{"3x3", "job_3x3"},
		{"", "job_"},
		{"naïve", "na_ve"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cIdent(tt.name), tt.name)
	}
}

func TestImageWords(t *testing.T) {
	assert.Equal(t, []uint32{0x0480FF7F, 0xA5A5A505}, imageWords([]byte{0x7F, 0xFF, 0x80, 0x04, 0x05, 0xA5, 0xA5, 0xA5}))
}

func TestVerifyCSource(t *testing.T) {
	if _, err := cc.NewConfig(runtime.GOOS, runtime.GOARCH); err != nil {
		t.Skipf("no host C configuration: %v", err)
	}
	b := newTestBench(t, "basic", "pool_relu")
	src, err := generateC(b)
	require.NoError(t, err)

	require.NoError(t, verifyCSource("driver.c", src, []string{"run_memory_test", "run_basic", "check_pool_relu"}))
	err = verifyCSource("driver.c", src, []string{"run_missing"})
	assert.ErrorContains(t, err, "missing functions [run_missing]")

	verifyC = true
	defer func() { verifyC = false }()
	var out strings.Builder
	require.NoError(t, cEmitter{}.Emit(&out, b))
	assert.Equal(t, src, out.String())
}
