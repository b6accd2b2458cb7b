// ve32asm.go - Two-pass assembler for the VE32 instruction set.
//
// Source syntax mirrors the machine's disassembler: LOADI r1, #42 /
// LOAD r1, (r2) / STORE (r2), r3 / JMP label. Labels end with a colon,
// comments start with a semicolon. Directives: .org .equ .word .byte
// .ascii .space .align.

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
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	NOP   = 0x00
	LOADI = 0x01
	MOVE  = 0x02
	LOAD  = 0x03
	STORE = 0x04
	PUSH  = 0x05
	POP   = 0x06

	ADD  = 0x10
	SUB  = 0x11
	MUL  = 0x12
	DIV  = 0x13
	MOD  = 0x14
	AND  = 0x15
	OR   = 0x16
	XOR  = 0x17
	NOT  = 0x18
	SHL  = 0x19
	SHR  = 0x1A
	CMP  = 0x1B
	TEST = 0x1C
	SLT  = 0x1D
	SLE  = 0x1E
	SEQ  = 0x1F
	SNE  = 0x20

	JMP  = 0x30
	JZ   = 0x31
	JNZ  = 0x32
	JC   = 0x33
	JNC  = 0x34
	JN   = 0x35
	JO   = 0x36
	CALL = 0x37
	RET  = 0x38

	SYSCALL = 0x40

	XCHG  = 0x50
	CAS   = 0x51
	FADDA = 0x52

	FADD = 0x60
	FSUB = 0x61
	FMUL = 0x62
	FDIV = 0x63
	FCMP = 0x64
	FCVT = 0x65
	ICVT = 0x66
	FMOV = 0x67

	VADD = 0x70
	VSUB = 0x71
	VMUL = 0x72
	VDOT = 0x73

	HALT = 0xFF
)

// Instruction operand shapes.
type instFormat int

const (
	fmtNone     instFormat = iota // NOP
	fmtRdRs1Rs2                   // ADD r1, r2, r3
	fmtRdRs1                      // MOVE r1, r2
	fmtRdMem                      // LOAD r1, (r2)
	fmtMemRs2                     // STORE (r2), r3
	fmtRd                         // PUSH r1
	fmtRs1Rs2                     // CMP r1, r2
	fmtImm16                      // LOADI r1, #42
	fmtTarget                     // JMP label
)

var mnemonics = map[string]struct {
	op     byte
	format instFormat
}{
	"NOP":   {NOP, fmtNone},
	"LOADI": {LOADI, fmtImm16},
	"MOVE":  {MOVE, fmtRdRs1},
	"LOAD":  {LOAD, fmtRdMem},
	"STORE": {STORE, fmtMemRs2},
	"PUSH":  {PUSH, fmtRd},
	"POP":   {POP, fmtRd},

	"ADD": {ADD, fmtRdRs1Rs2},
	"SUB": {SUB, fmtRdRs1Rs2},
	"MUL": {MUL, fmtRdRs1Rs2},
	"DIV": {DIV, fmtRdRs1Rs2},
	"MOD": {MOD, fmtRdRs1Rs2},
	"AND": {AND, fmtRdRs1Rs2},
	"OR":  {OR, fmtRdRs1Rs2},
	"XOR": {XOR, fmtRdRs1Rs2},
	"NOT": {NOT, fmtRdRs1},
	"SHL": {SHL, fmtRdRs1Rs2},
	"SHR": {SHR, fmtRdRs1Rs2},

	"CMP":  {CMP, fmtRs1Rs2},
	"TEST": {TEST, fmtRs1Rs2},
	"SLT":  {SLT, fmtRdRs1Rs2},
	"SLE":  {SLE, fmtRdRs1Rs2},
	"SEQ":  {SEQ, fmtRdRs1Rs2},
	"SNE":  {SNE, fmtRdRs1Rs2},

	"JMP":  {JMP, fmtTarget},
	"JZ":   {JZ, fmtTarget},
	"JNZ":  {JNZ, fmtTarget},
	"JC":   {JC, fmtTarget},
	"JNC":  {JNC, fmtTarget},
	"JN":   {JN, fmtTarget},
	"JO":   {JO, fmtTarget},
	"CALL": {CALL, fmtTarget},
	"RET":  {RET, fmtNone},

	"SYSCALL": {SYSCALL, fmtNone},

	"XCHG":  {XCHG, fmtRdRs1Rs2},
	"CAS":   {CAS, fmtRdRs1Rs2},
	"FADDA": {FADDA, fmtRdRs1Rs2},

	"FADD": {FADD, fmtRdRs1Rs2},
	"FSUB": {FSUB, fmtRdRs1Rs2},
	"FMUL": {FMUL, fmtRdRs1Rs2},
	"FDIV": {FDIV, fmtRdRs1Rs2},
	"FCMP": {FCMP, fmtRs1Rs2},
	"FCVT": {FCVT, fmtRdRs1},
	"ICVT": {ICVT, fmtRdRs1},
	"FMOV": {FMOV, fmtRdRs1},

	"VADD": {VADD, fmtRdRs1Rs2},
	"VSUB": {VSUB, fmtRdRs1Rs2},
	"VMUL": {VMUL, fmtRdRs1Rs2},
	"VDOT": {VDOT, fmtRdRs1Rs2},

	"HALT": {HALT, fmtNone},
}

func encodeR(op, rd, rs1, rs2 byte) uint32 {
	return uint32(op)<<24 | uint32(rd&0xF)<<16 | uint32(rs1&0xF)<<8 | uint32(rs2&0xF)
}

func encodeI(op, rd byte, imm uint16) uint32 {
	return uint32(op)<<24 | uint32(rd&0xF)<<16 | uint32(imm)
}

func encodeJ(op byte, target uint32) uint32 {
	return uint32(op)<<24 | target&0xFFFFFF
}

func littleEndian(val uint32) []byte {
	return []byte{byte(val), byte(val >> 8), byte(val >> 16), byte(val >> 24)}
}

type Assembler struct {
	base    uint32
	offset  uint32
	labels  map[string]uint32
	equates map[string]uint32
}

func NewAssembler(base uint32) *Assembler {
	return &Assembler{
		base:    base,
		labels:  make(map[string]uint32),
		equates: make(map[string]uint32),
	}
}

func parseReg(s string) (byte, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "r") {
		return 0, false
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 || n > 15 {
		return 0, false
	}
	return byte(n), true
}

func parseMemReg(s string) (byte, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return 0, false
	}
	return parseReg(s[1 : len(s)-1])
}

// parseValue resolves a numeric literal, an equate or a label.
// Literals: #decimal, $hex, 0xhex, bare decimal.
func (a *Assembler) parseValue(s string) (uint32, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	neg := false
	body := s
	if strings.HasPrefix(body, "#") {
		body = body[1:]
	}
	if strings.HasPrefix(body, "-") {
		neg = true
		body = body[1:]
	}
	var v uint64
	var err error
	switch {
	case strings.HasPrefix(body, "$"):
		v, err = strconv.ParseUint(body[1:], 16, 32)
	case strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X"):
		v, err = strconv.ParseUint(body[2:], 16, 32)
	default:
		v, err = strconv.ParseUint(body, 10, 32)
		if err != nil {
			// Not a number: equate, then label.
			if val, ok := a.equates[s]; ok {
				return val, true
			}
			if val, ok := a.labels[s]; ok {
				return val, true
			}
			return 0, false
		}
	}
	if err != nil {
		return 0, false
	}
	if neg {
		return uint32(-int32(uint32(v))), true
	}
	return uint32(v), true
}

func splitOperands(rest string) []string {
	if strings.TrimSpace(rest) == "" {
		return nil
	}
	parts := strings.Split(rest, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// directiveSize reports how many bytes a directive emits, for the
// label-collection pass.
func directiveSize(parts []string, offset uint32, line string) (uint32, error) {
	switch parts[0] {
	case ".word":
		return 4, nil
	case ".byte":
		return 1, nil
	case ".space":
		n, err := strconv.ParseUint(parts[1], 0, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid space size: %s", parts[1])
		}
		return uint32(n), nil
	case ".ascii":
		str, err := quotedString(line)
		if err != nil {
			return 0, err
		}
		return uint32(len(str)), nil
	case ".align":
		n, err := strconv.ParseUint(parts[1], 0, 32)
		if err != nil || n == 0 {
			return 0, fmt.Errorf("invalid alignment: %s", parts[1])
		}
		pad := (uint32(n) - offset%uint32(n)) % uint32(n)
		return pad, nil
	case ".equ", ".org":
		return 0, nil
	}
	return 0, fmt.Errorf("unknown directive: %s", parts[0])
}

func quotedString(line string) (string, error) {
	start := strings.Index(line, "\"")
	end := strings.LastIndex(line, "\"")
	if start == -1 || end == start {
		return "", fmt.Errorf("missing quoted string")
	}
	return line[start+1 : end], nil
}

// Assemble turns source text into a flat image based at the assembler's
// base address.
func (a *Assembler) Assemble(src string) ([]byte, error) {
	lines := strings.Split(src, "\n")

	// First pass: directives that define symbols, label addresses,
	// image size.
	a.offset = 0
	maxOffset := uint32(0)
	for num, raw := range lines {
		line := strings.TrimSpace(strings.Split(raw, ";")[0])
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			label := strings.TrimSuffix(line, ":")
			if _, dup := a.labels[label]; dup {
				return nil, fmt.Errorf("line %d: duplicate label %q", num+1, label)
			}
			a.labels[label] = a.base + a.offset
			continue
		}
		parts := strings.Fields(line)
		if strings.HasPrefix(line, ".") {
			switch parts[0] {
			case ".equ":
				if len(parts) < 3 {
					return nil, fmt.Errorf("line %d: .equ needs a name and a value", num+1)
				}
				v, ok := a.parseValue(parts[2])
				if !ok {
					return nil, fmt.Errorf("line %d: invalid .equ value: %s", num+1, parts[2])
				}
				a.equates[parts[1]] = v
			case ".org":
				if len(parts) < 2 {
					return nil, fmt.Errorf("line %d: .org needs an address", num+1)
				}
				addr, ok := a.parseValue(parts[1])
				if !ok || addr < a.base {
					return nil, fmt.Errorf("line %d: invalid .org address: %s", num+1, parts[1])
				}
				a.offset = addr - a.base
			default:
				size, err := directiveSize(parts, a.offset, line)
				if err != nil {
					return nil, fmt.Errorf("line %d: %v", num+1, err)
				}
				a.offset += size
			}
		} else {
			a.offset += 4
		}
		if a.offset > maxOffset {
			maxOffset = a.offset
		}
	}

	// Second pass: encode.
	image := make([]byte, maxOffset)
	a.offset = 0
	for num, raw := range lines {
		line := strings.TrimSpace(strings.Split(raw, ";")[0])
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, ".") {
			if err := a.emitDirective(image, line, num+1); err != nil {
				return nil, err
			}
			continue
		}
		word, err := a.encodeLine(line, num+1)
		if err != nil {
			return nil, err
		}
		copy(image[a.offset:], littleEndian(word))
		a.offset += 4
	}
	return image, nil
}

func (a *Assembler) emitDirective(image []byte, line string, num int) error {
	parts := strings.Fields(line)
	switch parts[0] {
	case ".equ":
		// Symbols were collected in the first pass.
	case ".org":
		addr, _ := a.parseValue(parts[1])
		a.offset = addr - a.base
	case ".word":
		v, ok := a.parseValue(parts[1])
		if !ok {
			return fmt.Errorf("line %d: invalid word value: %s", num, parts[1])
		}
		copy(image[a.offset:], littleEndian(v))
		a.offset += 4
	case ".byte":
		v, ok := a.parseValue(parts[1])
		if !ok || v > 0xFF {
			return fmt.Errorf("line %d: invalid byte value: %s", num, parts[1])
		}
		image[a.offset] = byte(v)
		a.offset++
	case ".space":
		n, _ := strconv.ParseUint(parts[1], 0, 32)
		a.offset += uint32(n)
	case ".ascii":
		str, err := quotedString(line)
		if err != nil {
			return fmt.Errorf("line %d: %v", num, err)
		}
		copy(image[a.offset:], str)
		a.offset += uint32(len(str))
	case ".align":
		n, _ := strconv.ParseUint(parts[1], 0, 32)
		a.offset += (uint32(n) - a.offset%uint32(n)) % uint32(n)
	default:
		return fmt.Errorf("line %d: unknown directive: %s", num, parts[0])
	}
	return nil
}

func (a *Assembler) encodeLine(line string, num int) (uint32, error) {
	parts := strings.SplitN(line, " ", 2)
	name := strings.ToUpper(strings.TrimSpace(parts[0]))
	rest := ""
	if len(parts) == 2 {
		rest = parts[1]
	}
	m, ok := mnemonics[name]
	if !ok {
		return 0, fmt.Errorf("line %d: unknown instruction: %s", num, name)
	}
	ops := splitOperands(rest)

	badOperands := func() (uint32, error) {
		return 0, fmt.Errorf("line %d: invalid operands for %s: %q", num, name, rest)
	}

	switch m.format {
	case fmtNone:
		if len(ops) != 0 {
			return badOperands()
		}
		return encodeR(m.op, 0, 0, 0), nil

	case fmtRdRs1Rs2:
		if len(ops) != 3 {
			return badOperands()
		}
		rd, ok1 := parseReg(ops[0])
		rs1, ok2 := parseReg(ops[1])
		rs2, ok3 := parseReg(ops[2])
		if !ok1 || !ok2 || !ok3 {
			return badOperands()
		}
		return encodeR(m.op, rd, rs1, rs2), nil

	case fmtRdRs1:
		if len(ops) != 2 {
			return badOperands()
		}
		rd, ok1 := parseReg(ops[0])
		rs1, ok2 := parseReg(ops[1])
		if !ok1 || !ok2 {
			return badOperands()
		}
		return encodeR(m.op, rd, rs1, 0), nil

	case fmtRdMem:
		if len(ops) != 2 {
			return badOperands()
		}
		rd, ok1 := parseReg(ops[0])
		rs1, ok2 := parseMemReg(ops[1])
		if !ok1 || !ok2 {
			return badOperands()
		}
		return encodeR(m.op, rd, rs1, 0), nil

	case fmtMemRs2:
		if len(ops) != 2 {
			return badOperands()
		}
		rs1, ok1 := parseMemReg(ops[0])
		rs2, ok2 := parseReg(ops[1])
		if !ok1 || !ok2 {
			return badOperands()
		}
		return encodeR(m.op, 0, rs1, rs2), nil

	case fmtRd:
		if len(ops) != 1 {
			return badOperands()
		}
		rd, ok1 := parseReg(ops[0])
		if !ok1 {
			return badOperands()
		}
		return encodeR(m.op, rd, 0, 0), nil

	case fmtRs1Rs2:
		if len(ops) != 2 {
			return badOperands()
		}
		rs1, ok1 := parseReg(ops[0])
		rs2, ok2 := parseReg(ops[1])
		if !ok1 || !ok2 {
			return badOperands()
		}
		return encodeR(m.op, 0, rs1, rs2), nil

	case fmtImm16:
		if len(ops) != 2 {
			return badOperands()
		}
		rd, ok1 := parseReg(ops[0])
		v, ok2 := a.parseValue(ops[1])
		if !ok1 || !ok2 {
			return badOperands()
		}
		if signed := int32(v); (signed < -32768 || signed > 32767) && v > 0xFFFF {
			return 0, fmt.Errorf("line %d: immediate out of 16-bit range: %s", num, ops[1])
		}
		return encodeI(m.op, rd, uint16(v)), nil

	case fmtTarget:
		if len(ops) != 1 {
			return badOperands()
		}
		v, ok1 := a.parseValue(ops[0])
		if !ok1 {
			return 0, fmt.Errorf("line %d: undefined target: %s", num, ops[0])
		}
		return encodeJ(m.op, v), nil
	}
	return badOperands()
}

func main() {
	var (
		outFile string
		baseStr string
	)
	flag.StringVar(&outFile, "o", "out.bin", "output file")
	flag.StringVar(&baseStr, "base", "0x0000", "base address the image will be loaded at")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Println("Usage: ve32asm [-o out.bin] [-base 0x0000] source.s")
		os.Exit(1)
	}

	src, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Printf("Error reading %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}

	base, err := strconv.ParseUint(strings.TrimPrefix(baseStr, "0x"), 16, 32)
	if err != nil {
		fmt.Printf("Error: invalid base address %q\n", baseStr)
		os.Exit(1)
	}

	asm := NewAssembler(uint32(base))
	image, err := asm.Assemble(string(src))
	if err != nil {
		fmt.Printf("Assembly failed: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outFile, image, 0644); err != nil {
		fmt.Printf("Error writing %s: %v\n", outFile, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d bytes to %s\n", len(image), outFile)
}
