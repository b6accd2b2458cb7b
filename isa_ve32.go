// isa_ve32.go - VE32 instruction set: opcodes, flags and the three instruction formats

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

const (
	// Basic machine parameters
	WORD_SIZE        = 4
	WORD_SIZE_BITS   = 32
	INSTRUCTION_SIZE = 4
	NUM_REGISTERS    = 16

	// Bit field masks
	REG_INDEX_MASK = 0x0F
	IMM16_MASK     = 0xFFFF
	IMM24_MASK     = 0xFFFFFF
)

const (
	// Flag register bits
	FLAG_ZERO     = 1 << 0
	FLAG_CARRY    = 1 << 1
	FLAG_NEGATIVE = 1 << 2
	FLAG_OVERFLOW = 1 << 3
)

const (
	// Data movement
	NOP   = 0x00
	LOADI = 0x01 // I: rd = sext(imm16)
	MOVE  = 0x02 // R: rd = rs1
	LOAD  = 0x03 // R: rd = mem32[rs1]
	STORE = 0x04 // R: mem32[rs1] = rs2
	PUSH  = 0x05 // R: sp -= 4; mem32[sp] = rd
	POP   = 0x06 // R: rd = mem32[sp]; sp += 4

	// ALU
	ADD  = 0x10
	SUB  = 0x11
	MUL  = 0x12
	DIV  = 0x13
	MOD  = 0x14
	AND  = 0x15
	OR   = 0x16
	XOR  = 0x17
	NOT  = 0x18 // R: rd = ^rs1
	SHL  = 0x19
	SHR  = 0x1A
	CMP  = 0x1B // R: flags from rs1 - rs2
	TEST = 0x1C // R: flags from rs1 & rs2
	SLT  = 0x1D // R: rd = int32(rs1) <  int32(rs2)
	SLE  = 0x1E // R: rd = int32(rs1) <= int32(rs2)
	SEQ  = 0x1F // R: rd = rs1 == rs2
	SNE  = 0x20 // R: rd = rs1 != rs2

	// Control flow (J format, absolute target)
	JMP  = 0x30
	JZ   = 0x31
	JNZ  = 0x32
	JC   = 0x33
	JNC  = 0x34
	JN   = 0x35
	JO   = 0x36
	CALL = 0x37
	RET  = 0x38

	// System
	SYSCALL = 0x40

	// Atomic read-modify-write
	XCHG        = 0x50 // R: rd = mem32[rs1]; mem32[rs1] = rs2
	CAS         = 0x51 // R: mem32[rs1]==rd ? (mem32[rs1]=rs2, rd=1) : rd=0
	FADD_ATOMIC = 0x52 // R: rd = mem32[rs1]; mem32[rs1] += rs2

	// IEEE-754 single precision (registers bit-reinterpreted)
	FADD = 0x60
	FSUB = 0x61
	FMUL = 0x62
	FDIV = 0x63
	FCMP = 0x64 // R: flags from float compare of rs1, rs2
	FCVT = 0x65 // R: rd = float32(int32(rs1)) bit pattern
	ICVT = 0x66 // R: rd = uint32(int32(float32 value of rs1))
	FMOV = 0x67 // R: rd = rs1 (bit copy, no flags)

	// SIMD: four independent 8-bit lanes per register
	VADD = 0x70
	VSUB = 0x71
	VMUL = 0x72
	VDOT = 0x73 // R: rd = sum of lane products of rs1, rs2

	HALT = 0xFF
)

// Syscall numbers, dispatched on r0.
const (
	SYS_EXIT          = 1  // r1 = exit code
	SYS_PRINT         = 2  // r1 = addr, r2 = len
	SYS_READ          = 3  // r1 = addr, r2 = len -> r0 = bytes read
	SYS_GET_TIME      = 4  // -> r0 = tick counter
	SYS_SLEEP         = 5  // r1 = ticks to advance
	SYS_ALLOC         = 6  // r1 = size -> r0 = addr or 0
	SYS_FREE          = 7  // r1 = addr (no-op)
	SYS_OPEN          = 8  // unimplemented stub
	SYS_CLOSE         = 9  // unimplemented stub
	SYS_FILE_READ     = 10 // unimplemented stub
	SYS_FILE_WRITE    = 11 // unimplemented stub
	SYS_THREAD_CREATE = 12 // r1 = entry, r2 = arg -> r0 = id or ~0
	SYS_THREAD_EXIT   = 13
	SYS_THREAD_YIELD  = 14
	SYS_MUTEX_LOCK    = 15 // r1 = mutex id
	SYS_MUTEX_UNLOCK  = 16 // r1 = mutex id
	SYS_SEM_WAIT      = 17 // r1 = semaphore id
	SYS_SEM_POST      = 18 // r1 = semaphore id
)

// SYSCALL_FAILED is placed in r0 by unimplemented and unrecognised
// syscalls alike. The two cases are deliberately indistinguishable.
const SYSCALL_FAILED = 0xFFFFFFFF

// Instruction is one decoded 32-bit VE32 word. All three formats are
// decoded eagerly; consumers read the fields their opcode defines.
type Instruction struct {
	Opcode byte
	Rd     byte
	Rs1    byte
	Rs2    byte
	Imm16  int32 // sign-extended from 16 bits
	Imm24  int32 // sign-extended from bit 23
}

// EncodeR packs a register-register instruction.
// Layout: opcode[31:24] | rd[19:16] | rs1[11:8] | rs2[3:0].
func EncodeR(opcode, rd, rs1, rs2 byte) uint32 {
	return uint32(opcode)<<24 |
		uint32(rd&REG_INDEX_MASK)<<16 |
		uint32(rs1&REG_INDEX_MASK)<<8 |
		uint32(rs2&REG_INDEX_MASK)
}

// EncodeI packs a register-immediate instruction.
// Layout: opcode[31:24] | rd[19:16] | imm16[15:0], immediate signed.
func EncodeI(opcode, rd byte, imm int16) uint32 {
	return uint32(opcode)<<24 |
		uint32(rd&REG_INDEX_MASK)<<16 |
		uint32(uint16(imm))
}

// EncodeJ packs a jump instruction.
// Layout: opcode[31:24] | imm24[23:0], immediate sign-extended from bit 23.
func EncodeJ(opcode byte, imm int32) uint32 {
	return uint32(opcode)<<24 | uint32(imm)&IMM24_MASK
}

// DecodeInstruction unpacks a 32-bit word into all three format views.
// It is total: any bit pattern decodes, unknown opcodes are the
// dispatcher's problem.
func DecodeInstruction(word uint32) Instruction {
	imm16 := int32(int16(word & IMM16_MASK))
	imm24 := int32(word&IMM24_MASK) << 8 >> 8
	return Instruction{
		Opcode: byte(word >> 24),
		Rd:     byte(word>>16) & REG_INDEX_MASK,
		Rs1:    byte(word>>8) & REG_INDEX_MASK,
		Rs2:    byte(word) & REG_INDEX_MASK,
		Imm16:  imm16,
		Imm24:  imm24,
	}
}
