//go:build linux

// jit_amd64.go - x86-64 native backend for the VE32 JIT.
//
// Translated code works on the register dump buffer: rbx holds the
// dump base, rsi the guest memory base, and eax/ecx are scratch. VE32
// flag semantics match x86 for the translated subset, so the block
// prologue loads the saved flag image into RFLAGS and every exit path
// stores it back.

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
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
)

//go:noescape
func jitCall(code uintptr, regs *uint32, mem *byte)

func jitMapArena(size int) ([]byte, error) {
	mem, err := syscall.Mmap(-1, 0, size,
		syscall.PROT_READ|syscall.PROT_WRITE|syscall.PROT_EXEC,
		syscall.MAP_ANON|syscall.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "jit: mmap code arena")
	}
	return mem, nil
}

func jitUnmapArena(mem []byte) {
	syscall.Munmap(mem)
}

// vmFlagsToX86 builds an RFLAGS image from the VE32 flag register.
// 0x202 keeps the always-one reserved bit and IF set.
func vmFlagsToX86(f uint32) uint32 {
	x := uint32(0x202)
	if f&FLAG_CARRY != 0 {
		x |= 1 << 0
	}
	if f&FLAG_ZERO != 0 {
		x |= 1 << 6
	}
	if f&FLAG_NEGATIVE != 0 {
		x |= 1 << 7
	}
	if f&FLAG_OVERFLOW != 0 {
		x |= 1 << 11
	}
	return x
}

func x86FlagsToVM(x uint32) uint32 {
	f := uint32(0)
	if x&(1<<0) != 0 {
		f |= FLAG_CARRY
	}
	if x&(1<<6) != 0 {
		f |= FLAG_ZERO
	}
	if x&(1<<7) != 0 {
		f |= FLAG_NEGATIVE
	}
	if x&(1<<11) != 0 {
		f |= FLAG_OVERFLOW
	}
	return f
}

// Execute runs one compiled block and folds the register dump back
// into the CPU state.
func (j *JITCache) Execute(blk *JitBlock, cpu *CPU) error {
	if j.arena == nil || !blk.Compiled {
		return errors.New("jit: block not compiled")
	}
	d := &j.regdump
	copy(d[0:NUM_REGISTERS], cpu.Regs[:])
	d[jitSlotPC] = cpu.PC
	d[jitSlotSP] = cpu.SP
	d[jitSlotFP] = cpu.FP
	d[jitSlotFlags] = vmFlagsToX86(cpu.Flags)
	d[jitSlotHalt] = 0
	d[jitSlotICount] = 0

	code := uintptr(unsafe.Pointer(&j.arena[blk.NativeOff]))
	jitCall(code, &d[0], &j.m.mem.data[0])

	copy(cpu.Regs[:], d[0:NUM_REGISTERS])
	cpu.PC = d[jitSlotPC]
	cpu.SP = d[jitSlotSP]
	cpu.FP = d[jitSlotFP]
	cpu.Flags = x86FlagsToVM(d[jitSlotFlags])
	if d[jitSlotHalt] != 0 {
		cpu.Halted = true
	}
	blk.ExecCount++
	if retired := d[jitSlotICount]; retired != 0 && cpu.debug != nil {
		cpu.debug.AddRetired(uint64(retired))
	}
	return nil
}

// amd64Emitter translates one basic block into the byte buffer.
// Forward jumps to the epilogue are recorded and patched in Finalize.
type amd64Emitter struct {
	buf       []byte
	exitPatch []int // rel32 operand offsets targeting the epilogue
}

func newBlockEmitter() (blockEmitter, error) {
	return &amd64Emitter{buf: make([]byte, 0, 512)}, nil
}

func (e *amd64Emitter) raw(b ...byte) {
	e.buf = append(e.buf, b...)
}

func (e *amd64Emitter) u32(v uint32) {
	e.buf = append(e.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// loadSlot emits mov eax, [rbx+slot*4].
func (e *amd64Emitter) loadSlot(slot int) {
	e.raw(0x8B, 0x83)
	e.u32(uint32(slot * 4))
}

// storeSlot emits mov [rbx+slot*4], eax.
func (e *amd64Emitter) storeSlot(slot int) {
	e.raw(0x89, 0x83)
	e.u32(uint32(slot * 4))
}

// aluSlot emits an ALU op between eax and [rbx+slot*4].
func (e *amd64Emitter) aluSlot(op byte, slot int) {
	e.raw(op, 0x83)
	e.u32(uint32(slot * 4))
}

// storeSlotImm emits mov dword [rbx+slot*4], imm32. Leaves flags alone.
func (e *amd64Emitter) storeSlotImm(slot int, imm uint32) {
	e.raw(0xC7, 0x83)
	e.u32(uint32(slot * 4))
	e.u32(imm)
}

// count bumps the retired-instruction slot without touching flags:
// mov eax, [slot]; lea eax, [rax+1]; mov [slot], eax.
func (e *amd64Emitter) count() {
	e.loadSlot(jitSlotICount)
	e.raw(0x8D, 0x40, 0x01)
	e.storeSlot(jitSlotICount)
}

// saveFlags emits pushfq; pop rax; mov [flags], eax. Every exit path
// runs this before any flag-clobbering bookkeeping.
func (e *amd64Emitter) saveFlags() {
	e.raw(0x9C, 0x58)
	e.storeSlot(jitSlotFlags)
}

// jmpExit emits jmp rel32 to the (not yet placed) epilogue.
func (e *amd64Emitter) jmpExit() {
	e.raw(0xE9)
	e.exitPatch = append(e.exitPatch, len(e.buf))
	e.u32(0)
}

// Prologue loads the flag image into RFLAGS: mov eax, [flags];
// push rax; popfq.
func (e *amd64Emitter) Prologue() {
	e.loadSlot(jitSlotFlags)
	e.raw(0x50, 0x9D)
}

// alu3 emits a three-register ALU op through eax.
func (e *amd64Emitter) alu3(op byte, inst Instruction) {
	e.loadSlot(int(inst.Rs1))
	e.aluSlot(op, int(inst.Rs2))
	e.storeSlot(int(inst.Rd))
}

// branch emits a conditional exit: the inverted condition skips a stub
// that saves flags, stores the target PC and jumps to the epilogue.
func (e *amd64Emitter) branch(invCC byte, target uint32) {
	// saveFlags(8) + storeSlotImm(10) + jmpExit(5)
	const stubLen = 23
	e.raw(0x0F, invCC)
	e.u32(stubLen)
	e.saveFlags()
	e.storeSlotImm(jitSlotPC, target)
	e.jmpExit()
}

func (e *amd64Emitter) Translate(inst Instruction, addr uint32) (translated, terminal bool) {
	mark := len(e.buf)
	e.count()
	switch inst.Opcode {
	case NOP:

	case LOADI:
		e.storeSlotImm(int(inst.Rd), uint32(inst.Imm16))

	case MOVE:
		e.loadSlot(int(inst.Rs1))
		e.storeSlot(int(inst.Rd))

	case ADD:
		e.alu3(0x03, inst)
	case SUB:
		e.alu3(0x2B, inst)
	case AND:
		e.alu3(0x23, inst)
	case OR:
		e.alu3(0x0B, inst)
	case XOR:
		e.alu3(0x33, inst)

	case CMP:
		e.loadSlot(int(inst.Rs1))
		e.aluSlot(0x3B, int(inst.Rs2))

	case TEST:
		e.loadSlot(int(inst.Rs1))
		e.aluSlot(0x85, int(inst.Rs2))

	case JMP:
		e.saveFlags()
		e.storeSlotImm(jitSlotPC, uint32(inst.Imm24))
		return true, true

	case JZ:
		e.branch(0x85, uint32(inst.Imm24)) // skip with jnz
	case JNZ:
		e.branch(0x84, uint32(inst.Imm24)) // jz
	case JC:
		e.branch(0x83, uint32(inst.Imm24)) // jae
	case JNC:
		e.branch(0x82, uint32(inst.Imm24)) // jb
	case JN:
		e.branch(0x89, uint32(inst.Imm24)) // jns
	case JO:
		e.branch(0x81, uint32(inst.Imm24)) // jno

	case HALT:
		e.saveFlags()
		e.storeSlotImm(jitSlotPC, addr+INSTRUCTION_SIZE)
		e.storeSlotImm(jitSlotHalt, 1)
		return true, true

	default:
		// Outside the subset: drop the counter bump and let the
		// interpreter take over at this address.
		e.buf = e.buf[:mark]
		return false, false
	}
	return true, false
}

// Fallthrough exits the block with PC pointing at the first
// untranslated instruction.
func (e *amd64Emitter) Fallthrough(next uint32) {
	e.saveFlags()
	e.storeSlotImm(jitSlotPC, next)
}

// Finalize patches the recorded epilogue jumps and appends the ret.
func (e *amd64Emitter) Finalize() []byte {
	exit := len(e.buf)
	for _, off := range e.exitPatch {
		rel := uint32(exit - (off + 4))
		e.buf[off] = byte(rel)
		e.buf[off+1] = byte(rel >> 8)
		e.buf[off+2] = byte(rel >> 16)
		e.buf[off+3] = byte(rel >> 24)
	}
	e.buf = append(e.buf, 0xC3)
	return e.buf
}
