// isa_ve32_test.go - Instruction word codec tests.

package main

import "testing"

// TestEncodeRFieldPlacement checks each register field lands in its
// own nibble.
func TestEncodeRFieldPlacement(t *testing.T) {
	word := EncodeR(ADD, 3, 1, 2)
	if word != 0x10030102 {
		t.Fatalf("encoded 0x%08X, expected 0x10030102", word)
	}
	inst := DecodeInstruction(word)
	if inst.Opcode != ADD || inst.Rd != 3 || inst.Rs1 != 1 || inst.Rs2 != 2 {
		t.Fatalf("decoded %+v", inst)
	}
}

// TestEncodeRMasksRegisterIndices verifies out-of-range register
// values are truncated to 4 bits rather than spilling into other
// fields.
func TestEncodeRMasksRegisterIndices(t *testing.T) {
	word := EncodeR(ADD, 0x1F, 0x1F, 0x1F)
	if word != EncodeR(ADD, 0x0F, 0x0F, 0x0F) {
		t.Fatalf("register fields not masked: 0x%08X", word)
	}
}

// TestEncodeIRoundTrip round-trips signed 16-bit immediates.
func TestEncodeIRoundTrip(t *testing.T) {
	for _, imm := range []int16{0, 1, -1, 100, -100, 32767, -32768} {
		inst := DecodeInstruction(EncodeI(LOADI, 5, imm))
		if inst.Opcode != LOADI || inst.Rd != 5 {
			t.Fatalf("imm %d: decoded %+v", imm, inst)
		}
		if inst.Imm16 != int32(imm) {
			t.Fatalf("imm16 %d decoded as %d", imm, inst.Imm16)
		}
	}
}

// TestImm16SignExtension pins the sign extension boundary: 0x8000 is
// -32768, 0x7FFF is 32767.
func TestImm16SignExtension(t *testing.T) {
	if got := DecodeInstruction(0x01008000).Imm16; got != -32768 {
		t.Fatalf("0x8000 decoded as %d, expected -32768", got)
	}
	if got := DecodeInstruction(0x01007FFF).Imm16; got != 32767 {
		t.Fatalf("0x7FFF decoded as %d, expected 32767", got)
	}
}

// TestEncodeJRoundTrip round-trips 24-bit jump targets including
// negative values sign-extended from bit 23.
func TestEncodeJRoundTrip(t *testing.T) {
	for _, imm := range []int32{0, 4, 0x7FFFFF, -1, -0x800000} {
		inst := DecodeInstruction(EncodeJ(JMP, imm))
		if inst.Opcode != JMP {
			t.Fatalf("imm %d: opcode 0x%02X", imm, inst.Opcode)
		}
		if inst.Imm24 != imm {
			t.Fatalf("imm24 %d decoded as %d", imm, inst.Imm24)
		}
	}
}

// TestImm24SignExtension pins bit 23 as the sign bit.
func TestImm24SignExtension(t *testing.T) {
	if got := DecodeInstruction(0x30800000).Imm24; got != -0x800000 {
		t.Fatalf("0x800000 decoded as %d, expected %d", got, -0x800000)
	}
	if got := DecodeInstruction(0x307FFFFF).Imm24; got != 0x7FFFFF {
		t.Fatalf("0x7FFFFF decoded as %d, expected %d", got, int32(0x7FFFFF))
	}
}

// TestDecodeIsTotal checks arbitrary bit patterns decode without
// panicking and preserve the opcode byte.
func TestDecodeIsTotal(t *testing.T) {
	for _, word := range []uint32{0x00000000, 0xFFFFFFFF, 0xDEADBEEF, 0x80808080} {
		inst := DecodeInstruction(word)
		if inst.Opcode != byte(word>>24) {
			t.Fatalf("word 0x%08X: opcode 0x%02X", word, inst.Opcode)
		}
		if inst.Rd > 15 || inst.Rs1 > 15 || inst.Rs2 > 15 {
			t.Fatalf("word 0x%08X: register field out of range: %+v", word, inst)
		}
	}
}
