// debug_interface.go - Debugger state: breakpoints, counters, supporting types

/*
 ██▒   █▓ ██▓ ██▀███  ▓█████  ▄████▄   ▒█████   ██▀███  ▓█████
▓██░   █▒▓██▒▓██ ▒ ██▒▓█   ▀ ▒██▀ ▀█  ▒██▒  ██▒▓██ ▒ ██▒▓█   ▀
 ▓██  █▒░▒██▒▓██ ░▄█ ▒▒███   ▒▓█    ▄ ▒██░  ██▒▓██ ░▄█ ▒▒███
  ▒██ █░ ░██░▒██▀▀█▄  ▒▓█  ▄ ▒▓▓▄ ▄██▒▒██   ██░▒██▀▀█▄  ▒▓█  ▄
   ▒▀█░  ░██░░██▓ ▒██▒░▒████▒▒ ▓███▀ ░░ ████▓▒░░██▓ ▒██▒░▒████▒
   ░ ▐░  ░▓  ░ ▒▓ ░▒▓░░░ ▒░ ░░ ░▒ ▒  ░░ ▒░▒░▒░ ░ ▒▓ ░▒▓░░░ ▒░ ░
   ░ ░░   ▒ ░  ░▒ ░ ▒░ ░ ░  ░  ░  ▒     ░ ▒ ▒░   ░▒ ░ ▒░ ░ ░  ░
     ░░   ▒ ░  ░░   ░    ░   ░        ░ ░ ░ ▒    ░░   ░    ░
      ░   ░     ░        ░  ░░ ░          ░ ░     ░        ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/intuitionamiga/VireCore
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"sort"
	"sync"
)

const MAX_BREAKPOINTS = 16

// RegisterInfo describes a single register for display in the monitor.
type RegisterInfo struct {
	Name  string
	Value uint32
}

// DisassembledLine is one decoded instruction for monitor display.
type DisassembledLine struct {
	Address  uint32
	Word     uint32
	Mnemonic string
	IsPC     bool
}

// Debugger owns the breakpoint set and the retirement counters. The
// CPU consults it at the top of every step; the monitor and the GDB
// stub mutate it from outside.
type Debugger struct {
	Enabled    bool
	SingleStep bool

	mu          sync.Mutex
	breakpoints map[uint32]bool

	// One-shot suppression so a resume from a breakpoint executes
	// the instruction under it instead of pausing forever.
	skipAddr  uint32
	skipValid bool

	instructionCount uint64
	cycleCount       uint64
}

func NewDebugger() *Debugger {
	return &Debugger{breakpoints: make(map[uint32]bool)}
}

// AddBreakpoint registers addr, failing when all 16 slots are taken.
func (d *Debugger) AddBreakpoint(addr uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.breakpoints[addr] {
		return nil
	}
	if len(d.breakpoints) >= MAX_BREAKPOINTS {
		return fmt.Errorf("breakpoint table full (%d)", MAX_BREAKPOINTS)
	}
	d.breakpoints[addr] = true
	return nil
}

func (d *Debugger) RemoveBreakpoint(addr uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.breakpoints, addr)
}

func (d *Debugger) ClearBreakpoints() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakpoints = make(map[uint32]bool)
}

func (d *Debugger) HasBreakpoint(addr uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.breakpoints[addr]
}

// Breakpoints returns the set in ascending order.
func (d *Debugger) Breakpoints() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	addrs := make([]uint32, 0, len(d.breakpoints))
	for addr := range d.breakpoints {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// shouldBreak is the top-of-step check. The first hit at an address
// pauses before execution; the immediately following step at the same
// address runs through so execution can resume.
func (d *Debugger) shouldBreak(pc uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.breakpoints[pc] {
		d.skipValid = false
		return false
	}
	if d.skipValid && d.skipAddr == pc {
		d.skipValid = false
		return false
	}
	d.skipAddr = pc
	d.skipValid = true
	return true
}

// retire accounts one committed instruction.
func (d *Debugger) retire() {
	d.mu.Lock()
	d.instructionCount++
	d.cycleCount++
	d.mu.Unlock()
}

// AddRetired accounts a batch of instructions committed by compiled
// code, which retires whole blocks at a time.
func (d *Debugger) AddRetired(n uint64) {
	d.mu.Lock()
	d.instructionCount += n
	d.cycleCount += n
	d.mu.Unlock()
}

// AddCycles accounts externally simulated time, e.g. SLEEP.
func (d *Debugger) AddCycles(n uint64) {
	d.mu.Lock()
	d.cycleCount += n
	d.mu.Unlock()
}

func (d *Debugger) InstructionCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.instructionCount
}

func (d *Debugger) CycleCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cycleCount
}

// ResetCounters zeroes the counters, keeping breakpoints in place.
func (d *Debugger) ResetCounters() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.instructionCount = 0
	d.cycleCount = 0
	d.skipValid = false
}
