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
	"runtime"
	"sort"
	"strings"
	"unicode"

	"github.com/samber/lo"
	"modernc.org/cc/v4"
)

// verifyC makes the C emitter parse its own output before writing it.
var verifyC bool

// cPrologue stands in for the system and board headers when the generated
// driver is parsed.
const cPrologue = `#define CONVTB_NO_SYSTEM_HEADERS 1
typedef unsigned int uint32_t;
void Xil_Out32(uint32_t addr, uint32_t value);
uint32_t Xil_In32(uint32_t addr);
`

type cEmitter struct{}

func init() {
	RegisterEmitter(cEmitter{})
}

func (cEmitter) Name() string { return "c" }

func (cEmitter) Extension() string { return "c" }

func (cEmitter) Emit(w io.Writer, b *Bench) error {
	src, err := generateC(b)
	if err != nil {
		return err
	}
	if verifyC {
		want := append([]string{"run_memory_test"}, lo.FlatMap(b.Session.Results, func(r *Result, _ int) []string {
			id := cIdent(r.Job.Name)
			return []string{"run_" + id, "check_" + id}
		})...)
		if err := verifyCSource(vhdlEntity+".c", src, want); err != nil {
			return err
		}
		logf("verified generated C driver: %d functions", len(want))
	}
	_, err = io.WriteString(w, src)
	return err
}

func generateC(b *Bench) (string, error) {
	var builder strings.Builder
	builder.WriteString("// Code generated by convtb. DO NOT EDIT.\n")
	builder.WriteString(fmt.Sprintf("// source: %s\n\n", b.Source))
	builder.WriteString("#ifndef CONVTB_NO_SYSTEM_HEADERS\n#include <stdint.h>\n#ifdef ZEDBOARD\n#include <xil_io.h>\n#endif\n#endif\n\n")

	builder.WriteString(fmt.Sprintf("#define MLP_BRAM_BASEADDR (0x%08X)\n", BRAMBaseAddr))
	builder.WriteString(fmt.Sprintf("#define MLP_CONV_BASEADDR (0x%08X)\n\n", ConvBaseAddr))
	for _, m := range benchMemories() {
		builder.WriteString(fmt.Sprintf("#define %s (0x%08Xu)\n", cMemoryName(m), BoardAddr(m)))
	}
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("#define MLP_CTRLA (MLP_CONV_BASEADDR + 0x%02X)\n", CtrlA))
	builder.WriteString(fmt.Sprintf("#define MLP_CTRLA_CONV_IDLE (%d << 0)\n", CtrlAConvIdle))
	builder.WriteString(fmt.Sprintf("#define MLP_CTRLB (MLP_CONV_BASEADDR + 0x%02X)\n", CtrlB))
	for _, r := range append(append([]Register(nil), SwapBits...), Registers...) {
		if r.Bit >= 0 {
			builder.WriteString(fmt.Sprintf("#define %s (1 << %d)\n", cRegisterName(r), r.Bit))
		} else {
			builder.WriteString(fmt.Sprintf("#define %s (MLP_CONV_BASEADDR + 0x%02X)\n", cRegisterName(r), r.Offset))
		}
	}
	swaps := lo.Map(SwapBits, func(r Register, _ int) string { return cRegisterName(r) })
	builder.WriteString(fmt.Sprintf("#define MLP_CTRLB_SWAP_MASK (%s)\n", strings.Join(swaps, " | ")))
	writeCMemoryTest(&builder)

	for i, st := range b.Stimuli {
		r := b.Session.Results[i]
		id := cIdent(st.Job.Name)
		builder.WriteString("\n")
		for _, m := range st.Memories {
			writeCWords(&builder, fmt.Sprintf("%s_%s", id, m.Name), imageWords(m.Bytes))
		}
		addrs, data := finalWrites(r)
		writeCWords(&builder, id+"_expected_addr", addrs)
		writeCWords(&builder, id+"_expected_data", data)

		builder.WriteString(fmt.Sprintf("\nvoid run_%s(void) {\n", id))
		builder.WriteString("    Xil_Out32(MLP_CTRLA, MLP_CTRLA_CONV_IDLE);\n")
		for _, m := range st.Memories {
			builder.WriteString(fmt.Sprintf("    for (uint32_t i = 0; i < %d; i++) {\n", len(m.Bytes)/4))
			builder.WriteString(fmt.Sprintf("        Xil_Out32(%s + 4 * i, %s_%s[i]);\n", cMemoryName(m.Name), id, m.Name))
			builder.WriteString("    }\n")
		}
		var flags []string
		for _, wr := range st.Writes {
			if wr.Bit >= 0 {
				if wr.Value != 0 {
					flags = append(flags, cRegisterName(wr.Register))
				}
				continue
			}
			builder.WriteString(fmt.Sprintf("    Xil_Out32(%s, 0x%08Xu);\n", cRegisterName(wr.Register), wr.Value))
		}
		if len(flags) == 0 {
			flags = []string{"0"}
		}
		builder.WriteString(fmt.Sprintf("    Xil_Out32(MLP_CTRLB, (Xil_In32(MLP_CTRLB) & MLP_CTRLB_SWAP_MASK) | %s);\n", strings.Join(flags, " | ")))
		builder.WriteString("    Xil_Out32(MLP_CTRLA, 0);\n")
		builder.WriteString("}\n")

		builder.WriteString(fmt.Sprintf("\nint check_%s(void) {\n", id))
		builder.WriteString("    int errors = 0;\n")
		builder.WriteString(fmt.Sprintf("    for (uint32_t i = 0; i < %d; i++) {\n", len(addrs)))
		builder.WriteString(fmt.Sprintf("        if (Xil_In32(MLP_OUTPUT + %[1]s_expected_addr[i]) != %[1]s_expected_data[i]) {\n", id))
		builder.WriteString("            errors++;\n")
		builder.WriteString("        }\n")
		builder.WriteString("    }\n")
		builder.WriteString("    return errors;\n")
		builder.WriteString("}\n")
	}
	return builder.String(), nil
}

// Seeds of the memory test patterns. Filter banks get seed+lane.
const (
	memcheckInputSeed  = 14
	memcheckOutputSeed = 15
	memcheckBank0Seed  = 10
	memcheckBank1Seed  = 20
)

// writeCMemoryTest emits a board self-test that fills every memory region
// with a counting pattern and reads it back, for both filter banks. The
// bank selection in CTRLB is restored on return.
func writeCMemoryTest(builder *strings.Builder) {
	builder.WriteString(`
static void memcheck_write(uint32_t base, uint32_t length, uint32_t seed) {
    for (uint32_t i = 0; i < length / 4; i++) {
        Xil_Out32(base + 4 * i, seed + i);
    }
}

static int memcheck_verify(uint32_t base, uint32_t length, uint32_t seed) {
    int errors = 0;
    for (uint32_t i = 0; i < length / 4; i++) {
        if (Xil_In32(base + 4 * i) != seed + i) {
            errors++;
        }
    }
    return errors;
}
`)
	filterCalls := func(call string, seed int) {
		for lane := range NumLanes {
			m := FilterMemory(lane)
			builder.WriteString(fmt.Sprintf("    %s(%s, 0x%Xu, %d);\n", call, cMemoryName(m), BoardSize(m), seed+lane))
		}
	}
	builder.WriteString("\nint run_memory_test(void) {\n")
	builder.WriteString("    uint32_t ctrlb = Xil_In32(MLP_CTRLB);\n")
	builder.WriteString("    int errors = 0;\n")
	builder.WriteString(fmt.Sprintf("    memcheck_write(MLP_INPUT, 0x%Xu, %d);\n", BoardSize(InputMemory), memcheckInputSeed))
	builder.WriteString(fmt.Sprintf("    memcheck_write(MLP_OUTPUT, 0x%Xu, %d);\n", BoardSize(OutputMemory), memcheckOutputSeed))
	builder.WriteString(fmt.Sprintf("    errors += memcheck_verify(MLP_INPUT, 0x%Xu, %d);\n", BoardSize(InputMemory), memcheckInputSeed))
	builder.WriteString(fmt.Sprintf("    errors += memcheck_verify(MLP_OUTPUT, 0x%Xu, %d);\n", BoardSize(OutputMemory), memcheckOutputSeed))
	builder.WriteString("    Xil_Out32(MLP_CTRLB, ctrlb & ~MLP_CTRLB_SWAP_MASK);\n")
	filterCalls("memcheck_write", memcheckBank0Seed)
	builder.WriteString("    Xil_Out32(MLP_CTRLB, (ctrlb & ~MLP_CTRLB_SWAP_MASK) | MLP_CTRLB_SWAP_FILTERS);\n")
	filterCalls("memcheck_write", memcheckBank1Seed)
	filterCalls("errors += memcheck_verify", memcheckBank1Seed)
	builder.WriteString("    Xil_Out32(MLP_CTRLB, ctrlb & ~MLP_CTRLB_SWAP_MASK);\n")
	filterCalls("errors += memcheck_verify", memcheckBank0Seed)
	builder.WriteString("    Xil_Out32(MLP_CTRLB, ctrlb);\n")
	builder.WriteString("    return errors;\n")
	builder.WriteString("}\n")
}

func cMemoryName(memory string) string {
	return "MLP_" + upper.String(memory)
}

func cRegisterName(r Register) string {
	if r.Bit >= 0 {
		return "MLP_CTRLB_" + upper.String(r.Name)
	}
	return "MLP_" + upper.String(r.Name)
}

// cIdent turns a job name into a C identifier.
func cIdent(name string) string {
	id := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '_'
	}, name)
	if id == "" || unicode.IsDigit(rune(id[0])) {
		id = "job_" + id
	}
	return id
}

// imageWords packs a memory image into little-endian 32-bit words.
func imageWords(image []byte) []uint32 {
	return lo.Map(lo.Chunk(image, 4), func(c []byte, _ int) uint32 {
		var w uint32
		for k := len(c) - 1; k >= 0; k-- {
			w = w<<8 | uint32(c[k])
		}
		return w
	})
}

// finalWrites returns the last word written to each output address of a
// job, sorted by address.
func finalWrites(r *Result) (addrs, data []uint32) {
	last := make(map[uint32]uint32)
	for _, w := range r.Trace.Writes {
		last[w.Addr] = w.Data
	}
	addrs = lo.Keys(last)
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	data = lo.Map(addrs, func(a uint32, _ int) uint32 { return last[a] })
	return addrs, data
}

func writeCWords(builder *strings.Builder, name string, words []uint32) {
	builder.WriteString(fmt.Sprintf("static const uint32_t %s[%d] = {", name, len(words)))
	for i, w := range words {
		if i%8 == 0 {
			builder.WriteString("\n   ")
		}
		builder.WriteString(fmt.Sprintf(" 0x%08Xu,", w))
	}
	builder.WriteString("\n};\n")
}

// verifyCSource parses generated C and checks that every wanted function
// is defined in it.
func verifyCSource(name, src string, want []string) error {
	cfg, err := cc.NewConfig(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	ast, err := cc.Parse(cfg, []cc.Source{
		{Name: "<predefined>", Value: cfg.Predefined},
		{Name: "<builtin>", Value: cc.Builtin},
		{Name: "<prologue>", Value: cPrologue},
		{Name: name, Value: src},
	})
	if err != nil {
		return fmt.Errorf("failed to parse generated driver %v: %w", name, err)
	}
	defined := make(map[string]bool)
	for tu := ast.TranslationUnit; tu != nil; tu = tu.TranslationUnit {
		externalDeclaration := tu.ExternalDeclaration
		if externalDeclaration.Position().Filename == name && externalDeclaration.Case == cc.ExternalDeclarationFuncDef {
			directDeclarator := externalDeclaration.FunctionDefinition.Declarator.DirectDeclarator
			if directDeclarator.Case != cc.DirectDeclaratorFuncParam {
				return fmt.Errorf("invalid function declarator: %v", directDeclarator.Case)
			}
			defined[directDeclarator.DirectDeclarator.Token.SrcStr()] = true
		}
	}
	if missing := lo.Filter(want, func(fn string, _ int) bool { return !defined[fn] }); len(missing) > 0 {
		return fmt.Errorf("generated driver %v is missing functions %v", name, missing)
	}
	return nil
}
