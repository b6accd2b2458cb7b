// ve32asm_test.go - Assembler tests.

package main

import (
	"bytes"
	"testing"
)

func assemble(t *testing.T, src string) []byte {
	t.Helper()
	img, err := NewAssembler(0).Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return img
}

func words(vals ...uint32) []byte {
	out := make([]byte, 0, len(vals)*4)
	for _, v := range vals {
		out = append(out, littleEndian(v)...)
	}
	return out
}

// TestAssembleBasicProgram encodes one instruction of each operand
// shape and checks the exact words.
func TestAssembleBasicProgram(t *testing.T) {
	img := assemble(t, `
		loadi r1, #42
		move r2, r1
		load r3, (r2)
		store (r2), r3
		push r1
		pop r4
		add r5, r1, r2
		cmp r1, r2
		not r6, r1
		syscall
		ret
		halt
	`)
	want := words(
		encodeI(LOADI, 1, 42),
		encodeR(MOVE, 2, 1, 0),
		encodeR(LOAD, 3, 2, 0),
		encodeR(STORE, 0, 2, 3),
		encodeR(PUSH, 1, 0, 0),
		encodeR(POP, 4, 0, 0),
		encodeR(ADD, 5, 1, 2),
		encodeR(CMP, 0, 1, 2),
		encodeR(NOT, 6, 1, 0),
		encodeR(SYSCALL, 0, 0, 0),
		encodeR(RET, 0, 0, 0),
		encodeR(HALT, 0, 0, 0),
	)
	if !bytes.Equal(img, want) {
		t.Fatalf("image\n% X\nexpected\n% X", img, want)
	}
}

// TestAssembleLabelsAndBranches resolves forward and backward labels
// to absolute targets.
func TestAssembleLabelsAndBranches(t *testing.T) {
	img := assemble(t, `
	start:
		loadi r1, #5
	loop:
		sub r1, r1, r2
		jnz loop
		jmp done
		nop
	done:
		halt
	`)
	want := words(
		encodeI(LOADI, 1, 5),
		encodeR(SUB, 1, 1, 2),
		encodeJ(JNZ, 4),
		encodeJ(JMP, 20),
		encodeR(NOP, 0, 0, 0),
		encodeR(HALT, 0, 0, 0),
	)
	if !bytes.Equal(img, want) {
		t.Fatalf("image\n% X\nexpected\n% X", img, want)
	}
}

// TestAssembleBaseAffectsLabels: labels are absolute addresses, offset
// by the load base.
func TestAssembleBaseAffectsLabels(t *testing.T) {
	img, err := NewAssembler(0x1000).Assemble(`
		jmp end
	end:
		halt
	`)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := words(encodeJ(JMP, 0x1004), encodeR(HALT, 0, 0, 0))
	if !bytes.Equal(img, want) {
		t.Fatalf("image % X, expected % X", img, want)
	}
}

// TestAssembleEquatesAndComments substitutes .equ symbols and strips
// comments.
func TestAssembleEquatesAndComments(t *testing.T) {
	img := assemble(t, `
		.equ SYS_EXIT 1
		.equ CODE $2A     ; hex equate
		loadi r0, SYS_EXIT  ; selector
		loadi r1, CODE
		syscall
	`)
	want := words(
		encodeI(LOADI, 0, 1),
		encodeI(LOADI, 1, 0x2A),
		encodeR(SYSCALL, 0, 0, 0),
	)
	if !bytes.Equal(img, want) {
		t.Fatalf("image % X, expected % X", img, want)
	}
}

// TestAssembleDataDirectives lays out .word, .byte, .ascii, .align
// and .space.
func TestAssembleDataDirectives(t *testing.T) {
	img := assemble(t, `
		.word $11223344
		.byte $AA
		.ascii "Hi"
		.align 4
		.space 2
		.byte 1
	`)
	want := []byte{
		0x44, 0x33, 0x22, 0x11,
		0xAA, 'H', 'i', 0x00, // align pads to 8
		0x00, 0x00, // .space
		0x01,
	}
	if !bytes.Equal(img, want) {
		t.Fatalf("image % X, expected % X", img, want)
	}
}

// TestAssembleOrgPlacesCode: .org moves the cursor and pads the image.
func TestAssembleOrgPlacesCode(t *testing.T) {
	img := assemble(t, `
		nop
		.org $10
	entry:
		halt
	`)
	if len(img) != 0x14 {
		t.Fatalf("image length %d, expected 0x14", len(img))
	}
	if !bytes.Equal(img[0x10:], words(encodeR(HALT, 0, 0, 0))) {
		t.Fatalf("code at .org target % X", img[0x10:])
	}
	for _, b := range img[4:0x10] {
		if b != 0 {
			t.Fatalf("gap not zero-filled: % X", img[4:0x10])
		}
	}
}

// TestAssembleNegativeImmediate sign-wraps #-1 into the 16-bit field.
func TestAssembleNegativeImmediate(t *testing.T) {
	img := assemble(t, "loadi r1, #-1")
	if !bytes.Equal(img, words(encodeI(LOADI, 1, 0xFFFF))) {
		t.Fatalf("image % X", img)
	}
}

// TestAssembleErrors rejects unknown mnemonics, bad operands,
// duplicate labels, range violations and undefined targets.
func TestAssembleErrors(t *testing.T) {
	cases := []string{
		"frob r1, r2",
		"add r1, r2",        // missing operand
		"loadi r1, #70000",  // immediate out of range
		"load r1, r2",       // LOAD needs (rN)
		"move r1, r99",      // bad register
		"jmp nowhere",       // undefined label
		"dup:\ndup:\nnop",   // duplicate label
		".bogus 1",          // unknown directive
	}
	for _, src := range cases {
		if _, err := NewAssembler(0).Assemble(src); err == nil {
			t.Fatalf("source %q assembled without error", src)
		}
	}
}
