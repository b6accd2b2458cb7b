// interrupt_ctrl_test.go - Interrupt controller latch and dispatch tests.

package main

import "testing"

// TestTriggerLatchesWhileDisabled triggers with the global enable off
// and checks the pending bit survives until enables come up.
func TestTriggerLatchesWhileDisabled(t *testing.T) {
	ic := NewInterruptController()
	if err := ic.SetHandler(5, 0x200); err != nil {
		t.Fatalf("SetHandler: %v", err)
	}
	if err := ic.Trigger(5); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if !ic.Pending(5) {
		t.Fatal("pending bit not latched")
	}
	if ic.AnyDeliverable() {
		t.Fatal("deliverable with global enable off")
	}
	ic.SetEnabled(true)
	if !ic.AnyDeliverable() {
		t.Fatal("not deliverable after enable")
	}
}

// TestDispatchPushesPCAndJumps checks a dispatch behaves like a CALL
// to the handler and clears the pending bit.
func TestDispatchPushesPCAndJumps(t *testing.T) {
	mem := NewSystemMemory()
	cpu := NewCPU(mem)
	cpu.PC = 0x40

	ic := NewInterruptController()
	ic.SetEnabled(true)
	if err := ic.SetHandler(2, 0x300); err != nil {
		t.Fatalf("SetHandler: %v", err)
	}
	if err := ic.Trigger(2); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	dispatched, err := ic.Dispatch(cpu)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !dispatched {
		t.Fatal("no dispatch happened")
	}
	if cpu.PC != 0x300 {
		t.Fatalf("PC = $%04X, expected $0300", cpu.PC)
	}
	if cpu.SP != STACK_TOP-4 {
		t.Fatalf("SP = $%04X, expected one pushed word", cpu.SP)
	}
	ret, err := mem.Read32(cpu.SP, PERM_READ)
	if err != nil {
		t.Fatalf("Read32: %v", err)
	}
	if ret != 0x40 {
		t.Fatalf("pushed return $%04X, expected $0040", ret)
	}
	if ic.Pending(2) {
		t.Fatal("pending bit not cleared by dispatch")
	}
}

// TestDispatchPriorityOrder pends two vectors and checks the lower
// index wins, one per dispatch.
func TestDispatchPriorityOrder(t *testing.T) {
	mem := NewSystemMemory()
	cpu := NewCPU(mem)

	ic := NewInterruptController()
	ic.SetEnabled(true)
	ic.SetHandler(3, 0x330)
	ic.SetHandler(7, 0x770)
	ic.Trigger(7)
	ic.Trigger(3)

	if _, err := ic.Dispatch(cpu); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if cpu.PC != 0x330 {
		t.Fatalf("first dispatch PC $%04X, expected vector 3", cpu.PC)
	}
	if _, err := ic.Dispatch(cpu); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if cpu.PC != 0x770 {
		t.Fatalf("second dispatch PC $%04X, expected vector 7", cpu.PC)
	}
	if dispatched, _ := ic.Dispatch(cpu); dispatched {
		t.Fatal("third dispatch with nothing pending")
	}
}

// TestHandlerReturnsWithRET runs the whole arc through the CPU: main
// loop, interrupt, handler, RET back to the interrupted spot.
func TestHandlerReturnsWithRET(t *testing.T) {
	m := newTestMachine()
	loadWords(t, m, 0,
		EncodeI(LOADI, 1, 1), // 0x00, interrupted before this runs
		EncodeR(HALT, 0, 0, 0), // 0x04
	)
	// Handler at 0x100: r2 = 9, RET.
	handler := wordsToBytes(
		EncodeI(LOADI, 2, 9),
		EncodeR(RET, 0, 0, 0),
	)
	if err := m.mem.LoadImage(0x100, handler); err != nil {
		t.Fatalf("LoadImage: %v", err)
	}

	m.EnableInterrupts(true)
	if err := m.SetHandler(0, 0x100); err != nil {
		t.Fatalf("SetHandler: %v", err)
	}
	if err := m.Trigger(0); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	if _, err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	r1, _ := m.Register(1)
	r2, _ := m.Register(2)
	if r2 != 9 {
		t.Fatalf("handler did not run: r2 = %d", r2)
	}
	if r1 != 1 {
		t.Fatalf("interrupted instruction lost: r1 = %d", r1)
	}
}

// TestVectorRangeChecks rejects out-of-range irq numbers.
func TestVectorRangeChecks(t *testing.T) {
	ic := NewInterruptController()
	if err := ic.SetHandler(NUM_INTERRUPT_VECTORS, 0); err == nil {
		t.Fatal("out-of-range SetHandler accepted")
	}
	if err := ic.Trigger(-1); err == nil {
		t.Fatal("negative Trigger accepted")
	}
	if ic.Pending(99) {
		t.Fatal("out-of-range Pending true")
	}
}

// TestResetClearsVectors triggers, resets, and checks everything is
// gone.
func TestResetClearsVectors(t *testing.T) {
	ic := NewInterruptController()
	ic.SetEnabled(true)
	ic.SetHandler(1, 0x100)
	ic.Trigger(1)
	ic.Reset()
	if ic.Enabled() || ic.Pending(1) || ic.AnyDeliverable() {
		t.Fatal("state survived reset")
	}
}
