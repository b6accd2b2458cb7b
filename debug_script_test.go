// debug_script_test.go - Lua binding tests.

package main

import (
	"strings"
	"testing"
)

// newTestScript pairs a machine with a script engine writing to buf.
func newTestScript(t *testing.T, buf *strings.Builder) (*Machine, *ScriptEngine) {
	t.Helper()
	m := newTestMachine()
	e := NewScriptEngine(m, buf)
	t.Cleanup(e.Close)
	return m, e
}

// TestLuaRegisterAccess reads and writes registers from a script.
func TestLuaRegisterAccess(t *testing.T) {
	var out strings.Builder
	m, e := newTestScript(t, &out)
	m.cpu.Regs[7] = 99
	if err := e.RunString(`vm.setreg(2, vm.reg(7) + 1)`); err != nil {
		t.Fatalf("RunString: %v", err)
	}
	if m.cpu.Regs[2] != 100 {
		t.Fatalf("r2 = %d, expected 100", m.cpu.Regs[2])
	}
	if err := e.RunString(`vm.reg(99)`); err == nil {
		t.Fatal("out-of-range register accepted")
	}
}

// TestLuaMemoryAccess pokes and peeks bytes and words.
func TestLuaMemoryAccess(t *testing.T) {
	var out strings.Builder
	m, e := newTestScript(t, &out)
	if err := e.RunString(`
		vm.poke32(0x4000, 0x11223344)
		b = vm.peek(0x4000)
		w = vm.peek32(0x4000)
	`); err != nil {
		t.Fatalf("RunString: %v", err)
	}
	v, err := m.mem.Read32(HEAP_BASE, PERM_READ)
	if err != nil {
		t.Fatalf("Read32: %v", err)
	}
	if v != 0x11223344 {
		t.Fatalf("memory 0x%08X", v)
	}
	// Unmapped probes raise, and pcall contains them.
	if err := e.RunString(`
		local ok = pcall(function() return vm.peek(0xC000) end)
		assert(not ok, "unmapped peek did not raise")
	`); err != nil {
		t.Fatalf("RunString: %v", err)
	}
}

// TestLuaStepAndRun drives a program from a script: step once, set a
// breakpoint, run to it, run to the halt.
func TestLuaStepAndRun(t *testing.T) {
	var out strings.Builder
	m, e := newTestScript(t, &out)
	loadWords(t, m, 0,
		EncodeI(LOADI, 1, 5),
		EncodeI(LOADI, 2, 6),
		EncodeR(ADD, 3, 1, 2),
		EncodeR(HALT, 0, 0, 0),
	)
	if err := e.RunString(`
		r = vm.step()
		assert(r == "Continue", r)
		vm.brk(8)
		r = vm.run()
		assert(r == "Paused", r)
		assert(vm.pc() == 8)
		r = vm.run()
		assert(r == "Halted", r)
	`); err != nil {
		t.Fatalf("RunString: %v", err)
	}
	if m.cpu.Regs[3] != 11 {
		t.Fatalf("r3 = %d after scripted run", m.cpu.Regs[3])
	}
}

// TestLuaDisasmAndPrint routes print to the engine's writer and
// renders a listing.
func TestLuaDisasmAndPrint(t *testing.T) {
	var out strings.Builder
	m, e := newTestScript(t, &out)
	loadWords(t, m, 0, EncodeI(LOADI, 1, 7))
	if err := e.RunString(`print(vm.disasm(0))`); err != nil {
		t.Fatalf("RunString: %v", err)
	}
	if !strings.Contains(out.String(), "LOADI r1, #7") {
		t.Fatalf("output %q", out.String())
	}
}

// TestLuaCountersAndTrigger exposes the counters and the interrupt
// controller.
func TestLuaCountersAndTrigger(t *testing.T) {
	var out strings.Builder
	m, e := newTestScript(t, &out)
	loadWords(t, m, 0,
		EncodeI(LOADI, 1, 1),
		EncodeR(HALT, 0, 0, 0),
	)
	if err := e.RunString(`
		vm.run()
		assert(vm.icount() == 2)
		assert(vm.ticks() == 0)
		vm.trigger(4)
	`); err != nil {
		t.Fatalf("RunString: %v", err)
	}
	if !m.intc.Pending(4) {
		t.Fatal("trigger did not pend")
	}
}
