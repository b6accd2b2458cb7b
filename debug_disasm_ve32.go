// debug_disasm_ve32.go - VE32 disassembler

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

import "fmt"

var ve32RegNames = [NUM_REGISTERS]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var ve32OpcodeNames = map[byte]string{
	NOP: "NOP", LOADI: "LOADI", MOVE: "MOVE", LOAD: "LOAD", STORE: "STORE",
	PUSH: "PUSH", POP: "POP",
	ADD: "ADD", SUB: "SUB", MUL: "MUL", DIV: "DIV", MOD: "MOD",
	AND: "AND", OR: "OR", XOR: "XOR", NOT: "NOT", SHL: "SHL", SHR: "SHR",
	CMP: "CMP", TEST: "TEST", SLT: "SLT", SLE: "SLE", SEQ: "SEQ", SNE: "SNE",
	JMP: "JMP", JZ: "JZ", JNZ: "JNZ", JC: "JC", JNC: "JNC", JN: "JN", JO: "JO",
	CALL: "CALL", RET: "RET", SYSCALL: "SYSCALL",
	XCHG: "XCHG", CAS: "CAS", FADD_ATOMIC: "FADDA",
	FADD: "FADD", FSUB: "FSUB", FMUL: "FMUL", FDIV: "FDIV",
	FCMP: "FCMP", FCVT: "FCVT", ICVT: "ICVT", FMOV: "FMOV",
	VADD: "VADD", VSUB: "VSUB", VMUL: "VMUL", VDOT: "VDOT",
	HALT: "HALT",
}

// Disassemble renders one instruction word. It is total: undefined
// opcodes come back as a literal hex fallback.
func Disassemble(word uint32) string {
	inst := DecodeInstruction(word)
	name, ok := ve32OpcodeNames[inst.Opcode]
	if !ok {
		return fmt.Sprintf("dw $%08X", word)
	}

	rd := ve32RegNames[inst.Rd]
	rs1 := ve32RegNames[inst.Rs1]
	rs2 := ve32RegNames[inst.Rs2]

	switch inst.Opcode {
	case NOP, RET, SYSCALL, HALT:
		return name
	case LOADI:
		return fmt.Sprintf("%s %s, #%d", name, rd, inst.Imm16)
	case MOVE, NOT, FCVT, ICVT, FMOV:
		return fmt.Sprintf("%s %s, %s", name, rd, rs1)
	case LOAD:
		return fmt.Sprintf("%s %s, (%s)", name, rd, rs1)
	case STORE:
		return fmt.Sprintf("%s (%s), %s", name, rs1, rs2)
	case PUSH, POP:
		return fmt.Sprintf("%s %s", name, rd)
	case CMP, TEST, FCMP:
		return fmt.Sprintf("%s %s, %s", name, rs1, rs2)
	case JMP, JZ, JNZ, JC, JNC, JN, JO, CALL:
		return fmt.Sprintf("%s $%06X", name, uint32(inst.Imm24)&IMM24_MASK)
	default:
		return fmt.Sprintf("%s %s, %s, %s", name, rd, rs1, rs2)
	}
}

// DisassembleRange decodes count instructions starting at addr,
// reading through the checked memory API so non-PRESENT code pages
// stop the listing instead of faulting the machine.
func (m *Machine) DisassembleRange(addr uint32, count int) []DisassembledLine {
	var lines []DisassembledLine
	for i := 0; i < count; i++ {
		word, err := m.mem.Read32(addr, PERM_READ)
		if err != nil {
			break
		}
		lines = append(lines, DisassembledLine{
			Address:  addr,
			Word:     word,
			Mnemonic: Disassemble(word),
			IsPC:     addr == m.cpu.PC,
		})
		addr += INSTRUCTION_SIZE
	}
	return lines
}
