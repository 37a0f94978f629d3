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
	"strings"

	"github.com/samber/lo"
)

const vhdlEntity = "conv_accelerator_tb"

// Generics of the design under test, in declaration order.
var vhdlGenerics = []lo.Tuple2[string, string]{
	{A: "DIM_WIDTH", B: "12"},
	{A: "INPUT_ADDR_WIDTH", B: fmt.Sprint(InputAddrWidth)},
	{A: "FILTER_ADDR_WIDTH", B: fmt.Sprint(FilterAddrWidth)},
	{A: "OUTPUT_ADDR_WIDTH", B: "7"},
	{A: "INPUT_BRAM_ADDR_WIDTH", B: "5"},
	{A: "FILTER_BRAM_ADDR_WIDTH", B: "5"},
	{A: "OUTPUT_BRAM_ADDR_WIDTH", B: "5"},
	{A: "BRAM_DATA_WIDTH", B: "32"},
	{A: "MAC_DATA_WIDTH", B: "8"},
	{A: "MAC_OUTPUT_DATA_WIDTH", B: fmt.Sprint(AccWidth)},
}

// vhdlPortWidth is the generic that bounds each configuration port of the
// design. Registers not listed are connected whole.
var vhdlPortWidth = map[string]string{
	"filter_w":                    "DIM_WIDTH",
	"filter_h":                    "DIM_WIDTH",
	"filter_c":                    "DIM_WIDTH",
	"output_w":                    "DIM_WIDTH",
	"output_h":                    "DIM_WIDTH",
	"input_end_diff_fw":           "INPUT_ADDR_WIDTH",
	"input_end_diff_fh":           "INPUT_ADDR_WIDTH",
	"input_end_diff_fc":           "INPUT_ADDR_WIDTH",
	"input_end_diff_ow":           "INPUT_ADDR_WIDTH",
	"output_elements_per_channel": "OUTPUT_ADDR_WIDTH",
	"output_initial_offset":       "OUTPUT_ADDR_WIDTH",
	"mac0_bias":                   "MAC_OUTPUT_DATA_WIDTH",
	"mac1_bias":                   "MAC_OUTPUT_DATA_WIDTH",
	"mac2_bias":                   "MAC_OUTPUT_DATA_WIDTH",
	"mac3_bias":                   "MAC_OUTPUT_DATA_WIDTH",
	"q_scale":                     "MAC_OUTPUT_DATA_WIDTH",
	"q_zero":                      "MAC_DATA_WIDTH",
}

type vhdlEmitter struct{}

func init() {
	RegisterEmitter(vhdlEmitter{})
}

func (vhdlEmitter) Name() string { return "vhdl" }

func (vhdlEmitter) Extension() string { return "vhd" }

func (vhdlEmitter) Emit(w io.Writer, b *Bench) error {
	var builder strings.Builder
	groups := b.Session.Trace.SignalGroups()
	streams := lo.Filter(groups, func(g SignalGroup, _ int) bool { return g.Kind == StreamGroup })
	memories := benchMemories()

	writeVHDLHeader(&builder, b)
	builder.WriteString("library work;\nlibrary IEEE;\nuse IEEE.STD_LOGIC_1164.ALL;\nuse IEEE.NUMERIC_STD.ALL;\n\n")
	builder.WriteString(fmt.Sprintf("entity %s is\nend %s;\n\n", vhdlEntity, vhdlEntity))
	builder.WriteString(fmt.Sprintf("architecture Behavioral of %s is\n\n", vhdlEntity))

	for _, g := range vhdlGenerics {
		builder.WriteString(fmt.Sprintf("    constant %s : integer := %s;\n", g.A, g.B))
	}
	builder.WriteString("\n    -- Configuration values from conv_config unit\n")
	for _, r := range Registers {
		builder.WriteString(fmt.Sprintf("    signal %s : %s;\n", r.Name, vhdlType(r.Width())))
	}

	builder.WriteString("\n    -- BRAM blocks for high speed memory access\n")
	for _, m := range memories {
		writeBRAMSignals(&builder, BRAMName(m), m == OutputMemory)
	}
	for _, m := range memories {
		builder.WriteString(fmt.Sprintf("    signal %s_data : std_logic_vector(8*%d-1 downto 0);\n", BRAMName(m), b.Memory.Size))
	}
	builder.WriteString("\n")
	builder.WriteString("    signal conv_complete : std_logic;\n")
	builder.WriteString("    signal conv_idle : std_logic; -- Must be set between each convolutional operation\n")
	builder.WriteString("    signal rst : std_logic; -- Reset everything, including BRAM contents\n")
	builder.WriteString("    signal clk : std_logic := '0';\n")

	for _, g := range streams {
		builder.WriteString("\n")
		builder.WriteString(fmt.Sprintf("    signal TEST_%s_tready : std_logic;\n", g.Prefix))
		for _, s := range g.Signals {
			builder.WriteString(fmt.Sprintf("    signal TEST_%s : %s;\n", s.Name, vhdlType(s.Width)))
			builder.WriteString(fmt.Sprintf("    signal EXPECTED_%s : %s;\n", s.Name, vhdlType(s.Width)))
		}
		builder.WriteString(fmt.Sprintf("    signal TEST_%s_tvalid : std_logic;\n", g.Prefix))
		builder.WriteString(fmt.Sprintf("    signal TEST_%s_fail : std_logic := '0';\n", g.Prefix))
	}
	builder.WriteString("begin\n\n")

	for _, m := range memories {
		if m == OutputMemory {
			writeOutputBRAMProcess(&builder, BRAMName(m))
		} else {
			writeBRAMReadProcess(&builder, BRAMName(m))
		}
	}
	builder.WriteString("    clk <= not clk after 1ps;\n\n")
	writeDUT(&builder, memories, streams)

	if err := writeControlProcess(&builder, b.Stimuli); err != nil {
		return err
	}
	for _, g := range groups {
		builder.WriteString(indent(checkingProcess(g), 1))
		builder.WriteString("\n")
	}
	builder.WriteString("end Behavioral;\n")

	_, err := io.WriteString(w, builder.String())
	return err
}

func benchMemories() []string {
	memories := []string{InputMemory}
	for lane := range NumLanes {
		memories = append(memories, FilterMemory(lane))
	}
	return append(memories, OutputMemory)
}

func writeVHDLHeader(builder *strings.Builder, b *Bench) {
	builder.WriteString("----------------------------------------------------------------------------------\n")
	builder.WriteString("-- Code generated by convtb. DO NOT EDIT.\n")
	builder.WriteString(fmt.Sprintf("-- source: %s\n", b.Source))
	builder.WriteString("-- jobs:")
	for _, job := range b.Session.Jobs() {
		builder.WriteString(" ")
		builder.WriteString(job.Name)
	}
	builder.WriteString("\n----------------------------------------------------------------------------------\n\n")
}

func vhdlType(bits int) string {
	if bits == 1 {
		return "std_logic"
	}
	return fmt.Sprintf("std_logic_vector(%d downto 0)", bits-1)
}

// vhdlLiteral formats a value as a bit literal of the given width.
func vhdlLiteral(value uint64, bits int) string {
	if bits == 1 {
		return fmt.Sprintf("'%d'", value&1)
	}
	return fmt.Sprintf("\"%s\"", fieldBits(value, bits))
}

// vhdlHex formats a memory image with the highest address first, so that
// byte address k occupies bits 8k+7 downto 8k.
func vhdlHex(image []byte) string {
	var builder strings.Builder
	builder.WriteString("x\"")
	for _, v := range lo.Reverse(append([]byte(nil), image...)) {
		builder.WriteString(fmt.Sprintf("%02X", v))
	}
	builder.WriteString("\"")
	return builder.String()
}

func indent(s string, tabs int) string {
	pad := strings.Repeat("    ", tabs)
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

func writeBRAMSignals(builder *strings.Builder, name string, checked bool) {
	builder.WriteString(fmt.Sprintf("    signal %s_addr : std_logic_vector(32-1 downto 0);\n", name))
	if checked {
		builder.WriteString(fmt.Sprintf("    signal EXPECTED_%s_addr : std_logic_vector(32-1 downto 0);\n", name))
	}
	builder.WriteString(fmt.Sprintf("    signal %s_din : std_logic_vector(BRAM_DATA_WIDTH-1 downto 0);\n", name))
	if checked {
		builder.WriteString(fmt.Sprintf("    signal EXPECTED_%s_din : std_logic_vector(BRAM_DATA_WIDTH-1 downto 0);\n", name))
	}
	builder.WriteString(fmt.Sprintf("    signal %s_dout : std_logic_vector(31 downto 0);\n", name))
	builder.WriteString(fmt.Sprintf("    signal %s_dout_delay1 : std_logic_vector(31 downto 0);\n", name))
	builder.WriteString(fmt.Sprintf("    signal %s_en : std_logic;\n", name))
	builder.WriteString(fmt.Sprintf("    signal %s_we : std_logic_vector((BRAM_DATA_WIDTH/8)-1 downto 0);\n", name))
	builder.WriteString(fmt.Sprintf("    signal %s_rst : std_logic;\n", name))
	builder.WriteString(fmt.Sprintf("    signal %s_clk : std_logic;\n", name))
	if checked {
		builder.WriteString(fmt.Sprintf("    signal %s_fail : std_logic := '0';\n", name))
	}
	builder.WriteString("\n")
}

func bramWord(name string) string {
	return fmt.Sprintf("%[1]s_data((32*(to_integer(unsigned(%[1]s_addr(32-1 downto 2)))+1))-1 downto (32*(to_integer(unsigned(%[1]s_addr(32-1 downto 2))))))", name)
}

func writeBRAMReadProcess(builder *strings.Builder, name string) {
	builder.WriteString(fmt.Sprintf("    %[1]s_dout <= %[1]s_dout_delay1; -- BRAM read latency = 2\n", name))
	builder.WriteString(fmt.Sprintf("    process(%s_clk)\n", name))
	builder.WriteString("    begin\n")
	builder.WriteString(fmt.Sprintf("        if rising_edge(%s_clk) then\n", name))
	builder.WriteString(fmt.Sprintf("            if (%s_rst = '1') then\n", name))
	builder.WriteString(fmt.Sprintf("                %s_dout_delay1 <= (others => '0');\n", name))
	builder.WriteString(fmt.Sprintf("            elsif (%s_en = '1') then\n", name))
	builder.WriteString(fmt.Sprintf("                %s_dout_delay1 <= %s;\n", name, bramWord(name)))
	builder.WriteString("            end if;\n")
	builder.WriteString("        end if;\n")
	builder.WriteString("    end process;\n\n")
}

// writeOutputBRAMProcess models the output memory, which is writable and
// cleared whenever the accelerator is idle.
func writeOutputBRAMProcess(builder *strings.Builder, name string) {
	builder.WriteString(fmt.Sprintf("    %[1]s_dout <= %[1]s_dout_delay1; -- BRAM read latency = 2\n", name))
	builder.WriteString(fmt.Sprintf("    process(%s_clk)\n", name))
	builder.WriteString("    begin\n")
	builder.WriteString(fmt.Sprintf("        if rising_edge(%s_clk) then\n", name))
	builder.WriteString(fmt.Sprintf("            if (%s_rst = '1' or conv_idle = '1') then\n", name))
	builder.WriteString(fmt.Sprintf("                %s_dout_delay1 <= (others => '0');\n", name))
	builder.WriteString(fmt.Sprintf("                %s_data <= (others => '0');\n", name))
	builder.WriteString(fmt.Sprintf("            elsif (%s_en = '1') then\n", name))
	builder.WriteString(fmt.Sprintf("                if (%s_we = \"1111\") then\n", name))
	builder.WriteString(fmt.Sprintf("                    %s <= %s_din;\n", bramWord(name), name))
	builder.WriteString(fmt.Sprintf("                    %[1]s_dout_delay1 <= %[1]s_din;\n", name))
	builder.WriteString("                else\n")
	builder.WriteString(fmt.Sprintf("                    %s_dout_delay1 <= %s;\n", name, bramWord(name)))
	builder.WriteString("                end if;\n")
	builder.WriteString("            end if;\n")
	builder.WriteString("        end if;\n")
	builder.WriteString("    end process;\n\n")
}

func writeDUT(builder *strings.Builder, memories []string, streams []SignalGroup) {
	var ports []string
	for _, r := range Registers {
		if width, ok := vhdlPortWidth[r.Name]; ok {
			ports = append(ports, fmt.Sprintf("%[1]s => %[1]s(%[2]s-1 downto 0)", r.Name, width))
		} else {
			ports = append(ports, fmt.Sprintf("%[1]s => %[1]s", r.Name))
		}
	}
	for _, m := range memories {
		name := BRAMName(m)
		for _, suffix := range []string{"addr", "din", "dout", "en", "we", "rst", "clk"} {
			if suffix == "dout" {
				ports = append(ports, fmt.Sprintf("%[1]s_dout => %[1]s_dout(BRAM_DATA_WIDTH-1 downto 0)", name))
			} else {
				ports = append(ports, fmt.Sprintf("%[1]s_%[2]s => %[1]s_%[2]s", name, suffix))
			}
		}
	}
	for _, g := range streams {
		names := []string{g.Prefix + "_tready"}
		names = append(names, lo.Map(g.Signals, func(s Signal, _ int) string { return s.Name })...)
		names = append(names, g.Prefix+"_tvalid")
		for _, n := range names {
			ports = append(ports, fmt.Sprintf("TEST_%[1]s => TEST_%[1]s", n))
		}
	}
	for _, n := range []string{"conv_complete", "conv_idle", "rst", "clk"} {
		ports = append(ports, fmt.Sprintf("%[1]s => %[1]s", n))
	}

	builder.WriteString("    dut: entity work.conv_accelerator\n")
	builder.WriteString("        generic map(\n")
	generics := lo.Map(vhdlGenerics, func(g lo.Tuple2[string, string], _ int) string {
		return fmt.Sprintf("            %[1]s => %[1]s", g.A)
	})
	builder.WriteString(strings.Join(generics, ",\n"))
	builder.WriteString("\n        )\n")
	builder.WriteString("        port map(\n")
	builder.WriteString(strings.Join(lo.Map(ports, func(p string, _ int) string { return "            " + p }), ",\n"))
	builder.WriteString("\n        );\n\n")
}

func writeControlProcess(builder *strings.Builder, stimuli []*Stimulus) error {
	var body strings.Builder
	for _, st := range stimuli {
		body.WriteString(fmt.Sprintf("-- job %s\n", st.Job.Name))
		for _, step := range st.Steps {
			switch step.Kind {
			case StepSetIdle:
				body.WriteString(fmt.Sprintf("conv_idle <= %s;\n", vhdlLiteral(bit(step.Idle), 1)))
			case StepDelay:
				body.WriteString("wait for 10ps;\n")
			case StepLoadMemory:
				body.WriteString(fmt.Sprintf("%s_data <= %s;\n", BRAMName(step.Memory.Name), vhdlHex(step.Memory.Bytes)))
			case StepSetRegister:
				if step.Write.Width() == 1 {
					body.WriteString(fmt.Sprintf("%s <= %s;\n", step.Write.Name, vhdlLiteral(uint64(step.Write.Value), 1)))
				} else {
					body.WriteString(fmt.Sprintf("%s <= x\"%08X\";\n", step.Write.Name, step.Write.Value))
				}
			case StepWaitComplete:
				body.WriteString("wait until rising_edge(conv_complete);\n")
			default:
				return fmt.Errorf("unknown stimulus step %d", step.Kind)
			}
		}
	}
	builder.WriteString("    process begin\n")
	builder.WriteString("        rst <= '1';\n")
	builder.WriteString("        wait for 2ps;\n")
	builder.WriteString("        conv_idle <= '1';\n")
	builder.WriteString("        rst <= '0';\n")
	builder.WriteString(indent(body.String(), 2))
	builder.WriteString("\n        assert FALSE Report \"Simulation Complete!\" severity FAILURE;\n")
	builder.WriteString("    end process;\n\n")
	return nil
}

// checkingProcess returns a process that compares every transaction of a
// signal group against its expected values and flags a failure when the
// design produces more transactions than were modeled.
func checkingProcess(g SignalGroup) string {
	var out strings.Builder
	n := g.Transactions()
	test, fail, wait := "TEST_", "TEST_"+g.Prefix+"_fail", fmt.Sprintf("rising_edge(clk) and TEST_%[1]s_tready = '1' and TEST_%[1]s_tvalid = '1'", g.Prefix)
	if g.Kind == MemoryGroup {
		test, fail, wait = "", g.Prefix+"_fail", fmt.Sprintf("rising_edge(clk) and %[1]s_en = '1' and %[1]s_we = \"1111\"", g.Prefix)
	}

	out.WriteString("process\n")
	out.WriteString("    variable i : integer := 0;\n")
	for _, s := range g.Signals {
		out.WriteString(fmt.Sprintf("    constant EXPECTED_VALUES_%s : std_logic_vector(%d*%d-1 downto 0) := \"%s\";\n",
			s.Name, n, s.Width, s.Vector().Bits))
	}
	out.WriteString("begin\n")
	for _, s := range g.Signals {
		if s.Width == 1 {
			out.WriteString(fmt.Sprintf("    EXPECTED_%[1]s <= EXPECTED_VALUES_%[1]s(i);\n", s.Name))
		} else {
			out.WriteString(fmt.Sprintf("    EXPECTED_%[1]s <= EXPECTED_VALUES_%[1]s((i+1)*%[2]d-1 downto i*%[2]d);\n", s.Name, s.Width))
		}
	}
	out.WriteString(fmt.Sprintf("    wait until %s;\n", wait))
	for _, s := range g.Signals {
		out.WriteString(fmt.Sprintf("    assert %[1]s%[2]s = EXPECTED_%[2]s report \"ASSERTION FAILURE\";\n", test, s.Name))
		out.WriteString(fmt.Sprintf("    if not (%[1]s%[2]s = EXPECTED_%[2]s) then %[3]s <= 'X'; end if;\n", test, s.Name, fail))
	}
	out.WriteString("    i := i + 1;\n")
	out.WriteString(fmt.Sprintf("    if (i = %d) then\n", n))
	out.WriteString(fmt.Sprintf("        wait until %s;\n", wait))
	out.WriteString(fmt.Sprintf("        %s <= 'X';\n", fail))
	out.WriteString("        assert FALSE report \"TOO MANY TRANSACTIONS!!!\";\n")
	out.WriteString("    end if;\n")
	out.WriteString("end process;\n")
	return out.String()
}
