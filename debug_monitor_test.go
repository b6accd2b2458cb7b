// debug_monitor_test.go - Monitor command parsing and execution tests.

package main

import (
	"strings"
	"testing"
)

// runMonitorCommand executes one line against a fresh output buffer.
func runMonitorCommand(m *Machine, line string) (string, bool) {
	var out strings.Builder
	mon := NewMachineMonitor(m, strings.NewReader(""), &out)
	exit := mon.ExecuteCommand(line)
	return out.String(), exit
}

// TestParseCommand splits and lowercases command names.
func TestParseCommand(t *testing.T) {
	cmd := ParseCommand("  M $1000 32  ")
	if cmd.Name != "m" {
		t.Fatalf("name %q", cmd.Name)
	}
	if len(cmd.Args) != 2 || cmd.Args[0] != "$1000" || cmd.Args[1] != "32" {
		t.Fatalf("args %v", cmd.Args)
	}
	if ParseCommand("").Name != "" {
		t.Fatal("empty line parsed as a command")
	}
}

// TestParseAddressFormats covers the four accepted notations and a
// few rejects.
func TestParseAddressFormats(t *testing.T) {
	cases := []struct {
		in   string
		want uint32
		ok   bool
	}{
		{"$1000", 0x1000, true},
		{"0x20", 0x20, true},
		{"0XFF", 0xFF, true},
		{"ff", 0xFF, true},
		{"#100", 100, true},
		{"$", 0, false},
		{"zz", 0, false},
		{"", 0, false},
		{"#12ab", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseAddress(c.in)
		if ok != c.ok || (ok && got != c.want) {
			t.Fatalf("ParseAddress(%q) = (%d, %v), expected (%d, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

// TestMonitorRegisterShowAndSet sets pc by name and reads the dump
// back.
func TestMonitorRegisterShowAndSet(t *testing.T) {
	m := newTestMachine()
	out, _ := runMonitorCommand(m, "r pc $40")
	if !strings.Contains(out, "pc = $00000040") {
		t.Fatalf("set output %q", out)
	}
	if m.PC() != 0x40 {
		t.Fatalf("PC = $%04X", m.PC())
	}

	m.cpu.Regs[3] = 0xDEAD
	out, _ = runMonitorCommand(m, "r")
	if !strings.Contains(out, "r3=$0000DEAD") {
		t.Fatalf("register dump %q", out)
	}

	out, _ = runMonitorCommand(m, "r bogus 1")
	if !strings.Contains(out, "unknown register") {
		t.Fatalf("bad name output %q", out)
	}
}

// TestMonitorMemoryDump enters bytes and dumps them back with the
// ASCII column.
func TestMonitorMemoryDump(t *testing.T) {
	m := newTestMachine()
	out, _ := runMonitorCommand(m, "e $4000 48 69 21")
	if !strings.Contains(out, "wrote 3 bytes at $4000") {
		t.Fatalf("enter output %q", out)
	}
	out, _ = runMonitorCommand(m, "m $4000 16")
	if !strings.Contains(out, "$4000: 48 69 21") {
		t.Fatalf("dump output %q", out)
	}
	if !strings.Contains(out, "Hi!") {
		t.Fatalf("ASCII column missing: %q", out)
	}
}

// TestMonitorMemoryDumpFaultReported dumps the unclaimed MMIO window.
func TestMonitorMemoryDumpFaultReported(t *testing.T) {
	m := newTestMachine()
	out, _ := runMonitorCommand(m, "m $C000 16")
	if !strings.Contains(out, "memory fault") {
		t.Fatalf("fault not reported: %q", out)
	}
}

// TestMonitorDisassembleMarksPC checks the listing and the > marker.
func TestMonitorDisassembleMarksPC(t *testing.T) {
	m := newTestMachine()
	loadWords(t, m, 0,
		EncodeI(LOADI, 1, 7),
		EncodeR(HALT, 0, 0, 0),
	)
	out, _ := runMonitorCommand(m, "d 0 2")
	if !strings.Contains(out, "> $0000") {
		t.Fatalf("PC marker missing: %q", out)
	}
	if !strings.Contains(out, "LOADI r1, #7") || !strings.Contains(out, "HALT") {
		t.Fatalf("listing %q", out)
	}
}

// TestMonitorStepAndGo steps once, then runs to the halt.
func TestMonitorStepAndGo(t *testing.T) {
	m := newTestMachine()
	loadWords(t, m, 0,
		EncodeI(LOADI, 1, 7),
		EncodeR(HALT, 0, 0, 0),
	)
	out, _ := runMonitorCommand(m, "s")
	if !strings.Contains(out, "LOADI r1, #7") {
		t.Fatalf("step output %q", out)
	}
	if m.PC() != 4 {
		t.Fatalf("PC = $%04X after step", m.PC())
	}
	out, _ = runMonitorCommand(m, "g")
	if !strings.Contains(out, "halted, exit code 0") {
		t.Fatalf("go output %q", out)
	}
}

// TestMonitorBreakpointCommands sets, lists and clears breakpoints.
func TestMonitorBreakpointCommands(t *testing.T) {
	m := newTestMachine()
	out, _ := runMonitorCommand(m, "b $10")
	if !strings.Contains(out, "breakpoint at $0010") {
		t.Fatalf("set output %q", out)
	}
	out, _ = runMonitorCommand(m, "bl")
	if !strings.Contains(out, "$0010") {
		t.Fatalf("list output %q", out)
	}
	out, _ = runMonitorCommand(m, "bc")
	if !strings.Contains(out, "breakpoints cleared") {
		t.Fatalf("clear output %q", out)
	}
	if len(m.debug.Breakpoints()) != 0 {
		t.Fatal("breakpoints survived bc")
	}
}

// TestMonitorPageMapGrouping shows the stock map as runs of identical
// protection.
func TestMonitorPageMapGrouping(t *testing.T) {
	m := newTestMachine()
	out, _ := runMonitorCommand(m, "pp")
	if !strings.Contains(out, "pr-x") {
		t.Fatalf("code run missing: %q", out)
	}
	if !strings.Contains(out, "----") {
		t.Fatalf("MMIO hole missing: %q", out)
	}
	out, _ = runMonitorCommand(m, "pp 0")
	if !strings.Contains(out, "page   0 $0000: pr-x") {
		t.Fatalf("single page output %q", out)
	}
}

// TestMonitorIRQCommand raises a vector and sees it pend.
func TestMonitorIRQCommand(t *testing.T) {
	m := newTestMachine()
	out, _ := runMonitorCommand(m, "irq #3")
	if !strings.Contains(out, "irq 3 raised") {
		t.Fatalf("output %q", out)
	}
	if !m.intc.Pending(3) {
		t.Fatal("vector not pending")
	}
}

// TestMonitorExitAndUnknown: x exits, junk is reported.
func TestMonitorExitAndUnknown(t *testing.T) {
	m := newTestMachine()
	if _, exit := runMonitorCommand(m, "x"); !exit {
		t.Fatal("x did not exit")
	}
	if _, exit := runMonitorCommand(m, "q"); !exit {
		t.Fatal("q did not exit")
	}
	out, exit := runMonitorCommand(m, "frobnicate")
	if exit || !strings.Contains(out, "unknown command") {
		t.Fatalf("output %q exit %v", out, exit)
	}
}

// TestMonitorLuaChunk evaluates an inline chunk that pokes a register.
func TestMonitorLuaChunk(t *testing.T) {
	m := newTestMachine()
	var out strings.Builder
	mon := NewMachineMonitor(m, strings.NewReader(""), &out)
	defer func() {
		if mon.script != nil {
			mon.script.Close()
		}
	}()
	mon.ExecuteCommand("lua vm.setreg(4, 123)")
	if m.cpu.Regs[4] != 123 {
		t.Fatalf("r4 = %d after lua chunk", m.cpu.Regs[4])
	}
	// State persists across chunks within one monitor.
	mon.ExecuteCommand("lua x = 5")
	mon.ExecuteCommand("lua vm.setreg(5, x)")
	if m.cpu.Regs[5] != 5 {
		t.Fatalf("r5 = %d, lua state not persistent", m.cpu.Regs[5])
	}
}
