// machine.go - The VE32 machine: owned, composed modules behind the public API

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
	"sync"

	"github.com/pkg/errors"
)

// Machine owns the CPU, memory, interrupt controller, scheduler,
// debugger, JIT cache and GDB stub, and is the only composition
// point: the parts reference each other through the seams wired here.
// The machine itself is not reentrant; concurrent drivers (a GDB poll
// loop next to a run loop) need external mutual exclusion.
type Machine struct {
	mem     *SystemMemory
	cpu     *CPU
	intc    *InterruptController
	sched   *Scheduler
	debug   *Debugger
	jit     *JITCache
	gdb     *GDBStub
	console *Console

	tickMu sync.Mutex
	ticks  uint64
}

func NewMachine() *Machine {
	m := &Machine{
		mem:   NewSystemMemory(),
		intc:  NewInterruptController(),
		sched: NewScheduler(),
		debug: NewDebugger(),
	}
	m.cpu = NewCPU(m.mem)
	m.cpu.intc = m.intc
	m.cpu.debug = m.debug
	m.cpu.sys = m
	m.console = NewConsole(nil)
	m.jit = NewJITCache(m)
	return m
}

// Console returns the host I/O peripheral so callers can wire output
// sinks and inject input.
func (m *Machine) Console() *Console {
	return m.console
}

// Init restores the stock machine state: default page map, zeroed
// memory and registers, cleared vectors, boot thread in slot 0, timer
// and counters at zero. Breakpoints survive; compiled code does not.
func (m *Machine) Init() {
	m.mem.InstallDefaultMap()
	m.cpu.ResetState()
	m.intc.Reset()
	m.sched.Reset()
	m.debug.ResetCounters()
	m.jit.Clear()
	m.tickMu.Lock()
	m.ticks = 0
	m.tickMu.Unlock()
}

// Reset re-runs Init.
func (m *Machine) Reset() {
	m.Init()
}

// Destroy stops the GDB stub and releases the JIT's executable
// mapping. The machine must not be used afterwards.
func (m *Machine) Destroy() {
	m.StopGDB()
	m.jit.Release()
}

// LoadProgram copies a flat little-endian instruction image to addr.
// Destination pages must be PRESENT; the loader deliberately does not
// require EXEC, callers own the protection of their code region.
func (m *Machine) LoadProgram(data []byte, addr uint32) error {
	if err := m.mem.LoadImage(addr, data); err != nil {
		return errors.Wrap(err, "load program")
	}
	m.cpu.PC = addr
	return nil
}

// Step runs exactly one interpreter step.
func (m *Machine) Step() StepResult {
	return m.cpu.Step()
}

// Run executes until halt, fault or debugger pause. Compiled blocks
// are used when the JIT is enabled and nothing needs per-instruction
// visibility (breakpoints, single-step, deliverable interrupts).
func (m *Machine) Run() (int, error) {
	for {
		if m.jit.Enabled() && m.jitEligible() {
			if blk := m.jit.Lookup(m.cpu.PC); blk != nil {
				if err := m.jit.Execute(blk, m.cpu); err != nil {
					return -1, err
				}
				if m.cpu.Halted {
					return int(m.cpu.ExitCode), nil
				}
				continue
			}
			if blk, err := m.jit.Compile(m.cpu.PC); err == nil && blk != nil {
				continue
			}
			// Not compilable here: interpret this step.
		}
		switch m.cpu.Step() {
		case StepContinue:
		case StepHalted:
			return int(m.cpu.ExitCode), nil
		case StepPaused:
			return 0, ErrPaused
		case StepFault:
			return -1, m.cpu.LastFault()
		}
	}
}

// jitEligible reports whether compiled code may run right now without
// hiding anything the interpreter path would surface.
func (m *Machine) jitEligible() bool {
	if m.debug.Enabled || m.debug.SingleStep {
		return false
	}
	if m.cpu.breakReq.Load() {
		return false
	}
	return !m.intc.AnyDeliverable()
}

// Register reads general register index 0..15.
func (m *Machine) Register(index int) (uint32, error) {
	if index < 0 || index >= NUM_REGISTERS {
		return 0, fmt.Errorf("register index %d out of range", index)
	}
	return m.cpu.Regs[index], nil
}

func (m *Machine) SetRegister(index int, value uint32) error {
	if index < 0 || index >= NUM_REGISTERS {
		return fmt.Errorf("register index %d out of range", index)
	}
	m.cpu.Regs[index] = value
	return nil
}

func (m *Machine) PC() uint32        { return m.cpu.PC }
func (m *Machine) SetPC(addr uint32) { m.cpu.PC = addr }
func (m *Machine) SP() uint32        { return m.cpu.SP }
func (m *Machine) Flags() uint32     { return m.cpu.Flags }
func (m *Machine) Halted() bool      { return m.cpu.Halted }

// ReadMemory and WriteMemory go through the same checked path the
// guest uses; the debugger gets no back door past page permissions.
func (m *Machine) ReadMemory(addr uint32, length int) ([]byte, error) {
	return m.mem.Read(addr, length)
}

func (m *Machine) WriteMemory(addr uint32, data []byte) error {
	return m.mem.Write(addr, data)
}

func (m *Machine) PageProtection(page int) (byte, error) {
	return m.mem.PageProtection(page)
}

func (m *Machine) SetPageProtection(page int, bits byte) error {
	return m.mem.SetPageProtection(page, bits)
}

// Debug surface.

func (m *Machine) EnableDebug(on bool)          { m.debug.Enabled = on }
func (m *Machine) SetSingleStep(on bool)        { m.debug.SingleStep = on }
func (m *Machine) AddBreakpoint(a uint32) error { return m.debug.AddBreakpoint(a) }
func (m *Machine) RemoveBreakpoint(a uint32)    { m.debug.RemoveBreakpoint(a) }
func (m *Machine) ClearBreakpoints()            { m.debug.ClearBreakpoints() }
func (m *Machine) InstructionCount() uint64     { return m.debug.InstructionCount() }
func (m *Machine) CycleCount() uint64           { return m.debug.CycleCount() }
func (m *Machine) RequestBreak()                { m.cpu.RequestBreak() }

// DebugRegisters snapshots the register file for monitor display.
func (m *Machine) DebugRegisters() []RegisterInfo {
	regs := make([]RegisterInfo, 0, NUM_REGISTERS+4)
	for i, v := range m.cpu.Regs {
		regs = append(regs, RegisterInfo{Name: ve32RegNames[i], Value: v})
	}
	regs = append(regs,
		RegisterInfo{Name: "pc", Value: m.cpu.PC},
		RegisterInfo{Name: "sp", Value: m.cpu.SP},
		RegisterInfo{Name: "fp", Value: m.cpu.FP},
		RegisterInfo{Name: "flags", Value: m.cpu.Flags},
	)
	return regs
}

// Timer surface: a software tick counter, never wall-clock time.

func (m *Machine) Ticks() uint64 {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	return m.ticks
}

func (m *Machine) AdvanceTicks(n uint64) {
	m.tickMu.Lock()
	m.ticks += n
	m.tickMu.Unlock()
	m.debug.AddCycles(n)
}

// Interrupt surface.

func (m *Machine) EnableInterrupts(on bool)           { m.intc.SetEnabled(on) }
func (m *Machine) SetHandler(irq int, a uint32) error { return m.intc.SetHandler(irq, a) }
func (m *Machine) Trigger(irq int) error              { return m.intc.Trigger(irq) }

// Thread surface.

func (m *Machine) ThreadCreate(entry, arg uint32) (int, error) { return m.sched.Create(entry, arg) }
func (m *Machine) ThreadCurrent() int                          { return m.sched.Current() }
func (m *Machine) ThreadYield()                                { m.sched.Yield(m.cpu) }

// JIT surface.

func (m *Machine) EnableJIT(on bool) { m.jit.SetEnabled(on) }
func (m *Machine) ClearJITCache()    { m.jit.Clear() }

func (m *Machine) CompileBlock(addr uint32) (*JitBlock, error) { return m.jit.Compile(addr) }

// GDB surface.

// StartGDB begins listening for one debugger client on port.
func (m *Machine) StartGDB(port int) error {
	if m.gdb != nil {
		return fmt.Errorf("gdb stub already running")
	}
	stub, err := NewGDBStub(m, port)
	if err != nil {
		return err
	}
	m.gdb = stub
	return nil
}

// StopGDB tears the stub down; safe to call when not running.
func (m *Machine) StopGDB() {
	if m.gdb != nil {
		m.gdb.Stop()
		m.gdb = nil
	}
}

// PollGDB services pending stub work without blocking. Call it from
// the same goroutine (or critical section) that owns the machine.
func (m *Machine) PollGDB() {
	if m.gdb != nil {
		m.gdb.Poll()
	}
}
