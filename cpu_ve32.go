// cpu_ve32.go - VE32 CPU: fetch/decode/execute loop, ALU flags, control flow

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
	"math"
	"os"
	"sync/atomic"
)

// StepResult is what one interpreter step reports back to the caller.
type StepResult int

const (
	StepContinue StepResult = iota
	StepPaused
	StepHalted
	StepFault
)

func (r StepResult) String() string {
	switch r {
	case StepContinue:
		return "Continue"
	case StepPaused:
		return "Paused"
	case StepHalted:
		return "Halted"
	case StepFault:
		return "Fault"
	}
	return fmt.Sprintf("StepResult(%d)", int(r))
}

// ArithmeticFault is raised by divide/modulo by zero. The destination
// register has been zeroed by the time it surfaces.
type ArithmeticFault struct {
	PC     uint32
	Opcode byte
}

func (f *ArithmeticFault) Error() string {
	return fmt.Sprintf("arithmetic fault: divide by zero at PC=%04x (opcode %02x)", f.PC, f.Opcode)
}

// InvalidOpcodeFault is a hard fault, unlike an unknown syscall number.
type InvalidOpcodeFault struct {
	PC     uint32
	Opcode byte
}

func (f *InvalidOpcodeFault) Error() string {
	return fmt.Sprintf("invalid opcode %02x at PC=%04x", f.Opcode, f.PC)
}

// ErrPaused is returned by Run when the debugger pauses execution.
var ErrPaused = fmt.Errorf("execution paused")

// SyscallDispatcher is the seam between the CPU and the machine's
// syscall surface (host I/O, timer, heap, threads). PC has already
// been advanced past the SYSCALL instruction when Dispatch runs.
type SyscallDispatcher interface {
	Dispatch(cpu *CPU) error
}

// CPU is one VE32 execution context's view of the machine: sixteen
// general registers, pc/sp/fp/flags and the halted latch, plus wiring
// to memory, interrupts, the debugger and the syscall layer.
type CPU struct {
	Regs  [16]uint32
	PC    uint32
	SP    uint32
	FP    uint32
	Flags uint32

	Halted   bool
	ExitCode int32
	Trace    bool

	mem   *SystemMemory
	intc  *InterruptController
	debug *Debugger
	sys   SyscallDispatcher

	breakReq  atomic.Bool
	lastFault error
}

func NewCPU(mem *SystemMemory) *CPU {
	return &CPU{
		mem: mem,
		SP:  STACK_TOP,
		FP:  STACK_TOP,
	}
}

// ResetState rewinds the register file without touching memory.
func (cpu *CPU) ResetState() {
	for i := range cpu.Regs {
		cpu.Regs[i] = 0
	}
	cpu.PC = 0
	cpu.SP = STACK_TOP
	cpu.FP = STACK_TOP
	cpu.Flags = 0
	cpu.Halted = false
	cpu.ExitCode = 0
	cpu.lastFault = nil
	cpu.breakReq.Store(false)
}

// RequestBreak asks the CPU to pause at the next step boundary. Safe
// to call from another goroutine (the GDB poll loop does).
func (cpu *CPU) RequestBreak() {
	cpu.breakReq.Store(true)
}

// LastFault returns the error behind the most recent StepFault.
func (cpu *CPU) LastFault() error {
	return cpu.lastFault
}

func (cpu *CPU) fault(err error) StepResult {
	cpu.lastFault = err
	return StepFault
}

// Flag computation matches two's-complement hardware (and the host
// x86 flags the JIT relies on): CARRY is unsigned overflow/borrow,
// OVERFLOW is signed, ZERO/NEGATIVE derive from the result. Logical
// ops clear CARRY and OVERFLOW.

func (cpu *CPU) setZN(res uint32) {
	cpu.Flags &^= FLAG_ZERO | FLAG_NEGATIVE
	if res == 0 {
		cpu.Flags |= FLAG_ZERO
	}
	if res&0x80000000 != 0 {
		cpu.Flags |= FLAG_NEGATIVE
	}
}

func (cpu *CPU) setFlagsLogic(res uint32) {
	cpu.Flags &^= FLAG_CARRY | FLAG_OVERFLOW
	cpu.setZN(res)
}

func (cpu *CPU) addFlags(a, b uint32) uint32 {
	res := a + b
	cpu.Flags &^= FLAG_CARRY | FLAG_OVERFLOW
	if res < a {
		cpu.Flags |= FLAG_CARRY
	}
	if (a^res)&(b^res)&0x80000000 != 0 {
		cpu.Flags |= FLAG_OVERFLOW
	}
	cpu.setZN(res)
	return res
}

func (cpu *CPU) subFlags(a, b uint32) uint32 {
	res := a - b
	cpu.Flags &^= FLAG_CARRY | FLAG_OVERFLOW
	if a < b {
		cpu.Flags |= FLAG_CARRY
	}
	if (a^b)&(a^res)&0x80000000 != 0 {
		cpu.Flags |= FLAG_OVERFLOW
	}
	cpu.setZN(res)
	return res
}

func btou(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// push writes value below sp and only then commits the sp move, so a
// faulting push leaves sp where it was.
func (cpu *CPU) push(value uint32) error {
	if err := cpu.mem.Write32(cpu.SP-WORD_SIZE, value); err != nil {
		return err
	}
	cpu.SP -= WORD_SIZE
	return nil
}

func (cpu *CPU) pop() (uint32, error) {
	value, err := cpu.mem.Read32(cpu.SP, PERM_READ)
	if err != nil {
		return 0, err
	}
	cpu.SP += WORD_SIZE
	return value, nil
}

// Step executes one instruction. Order of business: debugger
// breakpoint check, cooperative break request, interrupt dispatch
// (which consumes the whole step), then fetch/decode/execute. The pc
// advances by 4 unless the instruction transferred control.
func (cpu *CPU) Step() StepResult {
	if cpu.Halted {
		return StepHalted
	}
	if cpu.debug != nil && cpu.debug.Enabled && cpu.debug.shouldBreak(cpu.PC) {
		return StepPaused
	}
	if cpu.breakReq.Swap(false) {
		return StepPaused
	}
	if cpu.intc != nil {
		dispatched, err := cpu.intc.Dispatch(cpu)
		if err != nil {
			return cpu.fault(err)
		}
		if dispatched {
			return StepContinue
		}
	}

	word, err := cpu.mem.Read32(cpu.PC, PERM_READ|PERM_EXEC)
	if err != nil {
		return cpu.fault(err)
	}
	inst := DecodeInstruction(word)
	if cpu.Trace {
		fmt.Fprintf(os.Stderr, "trace: %04x: %s\n", cpu.PC, Disassemble(word))
	}

	branched := false
	rd := &cpu.Regs[inst.Rd]
	rs1 := cpu.Regs[inst.Rs1]
	rs2 := cpu.Regs[inst.Rs2]
	target := uint32(inst.Imm24)

	switch inst.Opcode {
	case NOP:

	case LOADI:
		*rd = uint32(inst.Imm16)

	case MOVE:
		*rd = rs1

	case LOAD:
		value, err := cpu.mem.Read32(rs1, PERM_READ)
		if err != nil {
			return cpu.fault(err)
		}
		*rd = value

	case STORE:
		if err := cpu.mem.Write32(rs1, rs2); err != nil {
			return cpu.fault(err)
		}

	case PUSH:
		if err := cpu.push(*rd); err != nil {
			return cpu.fault(err)
		}

	case POP:
		value, err := cpu.pop()
		if err != nil {
			return cpu.fault(err)
		}
		*rd = value

	case ADD:
		*rd = cpu.addFlags(rs1, rs2)

	case SUB:
		*rd = cpu.subFlags(rs1, rs2)

	case MUL:
		wide := uint64(rs1) * uint64(rs2)
		res := uint32(wide)
		cpu.Flags &^= FLAG_CARRY | FLAG_OVERFLOW
		if wide>>32 != 0 {
			cpu.Flags |= FLAG_CARRY
		}
		cpu.setZN(res)
		*rd = res

	case DIV:
		if rs2 == 0 {
			*rd = 0
			return cpu.fault(&ArithmeticFault{PC: cpu.PC, Opcode: inst.Opcode})
		}
		res := uint32(int32(rs1) / int32(rs2))
		cpu.setFlagsLogic(res)
		*rd = res

	case MOD:
		if rs2 == 0 {
			*rd = 0
			return cpu.fault(&ArithmeticFault{PC: cpu.PC, Opcode: inst.Opcode})
		}
		res := uint32(int32(rs1) % int32(rs2))
		cpu.setFlagsLogic(res)
		*rd = res

	case AND:
		*rd = rs1 & rs2
		cpu.setFlagsLogic(*rd)

	case OR:
		*rd = rs1 | rs2
		cpu.setFlagsLogic(*rd)

	case XOR:
		*rd = rs1 ^ rs2
		cpu.setFlagsLogic(*rd)

	case NOT:
		*rd = ^rs1
		cpu.setFlagsLogic(*rd)

	case SHL:
		*rd = rs1 << (rs2 & 31)
		cpu.setFlagsLogic(*rd)

	case SHR:
		*rd = rs1 >> (rs2 & 31)
		cpu.setFlagsLogic(*rd)

	case CMP:
		cpu.subFlags(rs1, rs2)

	case TEST:
		cpu.setFlagsLogic(rs1 & rs2)

	case SLT:
		*rd = btou(int32(rs1) < int32(rs2))

	case SLE:
		*rd = btou(int32(rs1) <= int32(rs2))

	case SEQ:
		*rd = btou(rs1 == rs2)

	case SNE:
		*rd = btou(rs1 != rs2)

	case JMP:
		cpu.PC = target
		branched = true

	case JZ:
		if cpu.Flags&FLAG_ZERO != 0 {
			cpu.PC = target
			branched = true
		}

	case JNZ:
		if cpu.Flags&FLAG_ZERO == 0 {
			cpu.PC = target
			branched = true
		}

	case JC:
		if cpu.Flags&FLAG_CARRY != 0 {
			cpu.PC = target
			branched = true
		}

	case JNC:
		if cpu.Flags&FLAG_CARRY == 0 {
			cpu.PC = target
			branched = true
		}

	case JN:
		if cpu.Flags&FLAG_NEGATIVE != 0 {
			cpu.PC = target
			branched = true
		}

	case JO:
		if cpu.Flags&FLAG_OVERFLOW != 0 {
			cpu.PC = target
			branched = true
		}

	case CALL:
		if err := cpu.push(cpu.PC + INSTRUCTION_SIZE); err != nil {
			return cpu.fault(err)
		}
		cpu.PC = target
		branched = true

	case RET:
		retAddr, err := cpu.pop()
		if err != nil {
			return cpu.fault(err)
		}
		cpu.PC = retAddr
		branched = true

	case SYSCALL:
		// Return address committed first so cooperative context
		// switches inside the dispatcher resume past the SYSCALL.
		cpu.PC += INSTRUCTION_SIZE
		branched = true
		if cpu.sys == nil {
			cpu.Regs[0] = SYSCALL_FAILED
		} else if err := cpu.sys.Dispatch(cpu); err != nil {
			return cpu.fault(err)
		}

	case XCHG:
		old, err := cpu.mem.Read32(rs1, PERM_READ)
		if err != nil {
			return cpu.fault(err)
		}
		if err := cpu.mem.Write32(rs1, rs2); err != nil {
			return cpu.fault(err)
		}
		*rd = old

	case CAS:
		old, err := cpu.mem.Read32(rs1, PERM_READ)
		if err != nil {
			return cpu.fault(err)
		}
		if old == *rd {
			if err := cpu.mem.Write32(rs1, rs2); err != nil {
				return cpu.fault(err)
			}
			*rd = 1
		} else {
			*rd = 0
		}

	case FADD_ATOMIC:
		old, err := cpu.mem.Read32(rs1, PERM_READ)
		if err != nil {
			return cpu.fault(err)
		}
		if err := cpu.mem.Write32(rs1, old+rs2); err != nil {
			return cpu.fault(err)
		}
		*rd = old

	case FADD:
		*rd = math.Float32bits(math.Float32frombits(rs1) + math.Float32frombits(rs2))

	case FSUB:
		*rd = math.Float32bits(math.Float32frombits(rs1) - math.Float32frombits(rs2))

	case FMUL:
		*rd = math.Float32bits(math.Float32frombits(rs1) * math.Float32frombits(rs2))

	case FDIV:
		*rd = math.Float32bits(math.Float32frombits(rs1) / math.Float32frombits(rs2))

	case FCMP:
		a := math.Float32frombits(rs1)
		b := math.Float32frombits(rs2)
		cpu.Flags &^= FLAG_ZERO | FLAG_CARRY | FLAG_NEGATIVE | FLAG_OVERFLOW
		switch {
		case a != a || b != b: // unordered
			cpu.Flags |= FLAG_CARRY
		case a == b:
			cpu.Flags |= FLAG_ZERO
		case a < b:
			cpu.Flags |= FLAG_NEGATIVE
		}

	case FCVT:
		*rd = math.Float32bits(float32(int32(rs1)))

	case ICVT:
		*rd = uint32(int32(math.Float32frombits(rs1)))

	case FMOV:
		*rd = rs1

	case VADD:
		*rd = laneOp(rs1, rs2, func(a, b byte) byte { return a + b })

	case VSUB:
		*rd = laneOp(rs1, rs2, func(a, b byte) byte { return a - b })

	case VMUL:
		*rd = laneOp(rs1, rs2, func(a, b byte) byte { return a * b })

	case VDOT:
		var sum uint32
		for lane := 0; lane < 4; lane++ {
			shift := uint(lane * 8)
			sum += uint32(byte(rs1>>shift)) * uint32(byte(rs2>>shift))
		}
		*rd = sum

	case HALT:
		cpu.Halted = true

	default:
		return cpu.fault(&InvalidOpcodeFault{PC: cpu.PC, Opcode: inst.Opcode})
	}

	if !branched {
		cpu.PC += INSTRUCTION_SIZE
	}
	if cpu.debug != nil {
		cpu.debug.retire()
	}

	if cpu.Halted {
		return StepHalted
	}
	if cpu.debug != nil && cpu.debug.SingleStep {
		return StepPaused
	}
	return StepContinue
}

// laneOp applies f to each of the four 8-bit lanes. Wraparound is
// mod 256 per lane by construction.
func laneOp(a, b uint32, f func(a, b byte) byte) uint32 {
	var res uint32
	for lane := 0; lane < 4; lane++ {
		shift := uint(lane * 8)
		res |= uint32(f(byte(a>>shift), byte(b>>shift))) << shift
	}
	return res
}

// Run steps until something other than Continue comes back: the exit
// code on a clean halt, -1 with the fault on a fault, and ErrPaused
// when the debugger takes over.
func (cpu *CPU) Run() (int, error) {
	for {
		switch cpu.Step() {
		case StepContinue:
		case StepHalted:
			return int(cpu.ExitCode), nil
		case StepPaused:
			return 0, ErrPaused
		case StepFault:
			return -1, cpu.lastFault
		}
	}
}
