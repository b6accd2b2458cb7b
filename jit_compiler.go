// jit_compiler.go - Block cache and translation driver for the VE32 JIT.

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
	"github.com/pkg/errors"
)

const (
	MAX_JIT_BLOCKS      = 256       // block descriptor table size
	JIT_CACHE_SIZE      = 256 * 1024 // native code arena in bytes
	JIT_MAX_BLOCK_INSNS = 128       // translation stops after this many guest instructions
)

// Register dump slot layout shared between Execute and the native code.
// Each slot is one uint32 at offset slot*4 from the dump base.
const (
	jitSlotPC     = 16
	jitSlotSP     = 17
	jitSlotFP     = 18
	jitSlotFlags  = 19 // host flag image, see vmFlagsToX86
	jitSlotHalt   = 20
	jitSlotICount = 21
	jitSlots      = 24
)

var ErrJITUnsupported = errors.New("jit: no native backend for this platform")

// JitBlock describes one translated basic block.
type JitBlock struct {
	StartAddr uint32 // guest address of the first instruction
	Length    uint32 // guest bytes covered by the block
	NativeOff int    // offset of the native code within the arena
	NativeLen int
	ExecCount uint64
	Compiled  bool
}

// blockEmitter is the per-architecture translation backend. The driver
// feeds it decoded instructions; the backend answers whether it could
// translate each one and whether the block is now terminated.
type blockEmitter interface {
	// Prologue emits the block entry sequence.
	Prologue()
	// Translate emits native code for one instruction at addr. It
	// returns translated=false when the opcode is outside the JIT
	// subset, and terminal=true when the instruction ends the block.
	Translate(inst Instruction, addr uint32) (translated, terminal bool)
	// Fallthrough emits an exit that resumes interpretation at next.
	Fallthrough(next uint32)
	// Finalize patches forward references, appends the epilogue and
	// returns the finished native code.
	Finalize() []byte
}

// JITCache owns the executable arena, the block descriptor table and
// the register dump buffer native code operates on.
type JITCache struct {
	m       *Machine
	enabled bool
	arena   []byte // RWX mapping, nil until first Compile
	used    int
	blocks  [MAX_JIT_BLOCKS]JitBlock
	count   int
	index   map[uint32]*JitBlock
	regdump [jitSlots]uint32
}

func NewJITCache(m *Machine) *JITCache {
	return &JITCache{m: m, index: make(map[uint32]*JitBlock)}
}

func (j *JITCache) Enabled() bool     { return j.enabled }
func (j *JITCache) SetEnabled(v bool) { j.enabled = v }

// Lookup returns the compiled block starting at addr, or nil.
func (j *JITCache) Lookup(addr uint32) *JitBlock {
	return j.index[addr]
}

// Compile translates the basic block starting at addr and registers it
// in the cache. Translation stops at the first control transfer, the
// first instruction outside the JIT subset, or the block size limit;
// in the latter two cases the block exits back to the interpreter with
// the PC pointing at the untranslated instruction.
func (j *JITCache) Compile(addr uint32) (*JitBlock, error) {
	if blk := j.index[addr]; blk != nil {
		return blk, nil
	}
	if j.count >= MAX_JIT_BLOCKS {
		return nil, errors.New("jit: block table full")
	}
	if j.arena == nil {
		arena, err := jitMapArena(JIT_CACHE_SIZE)
		if err != nil {
			return nil, err
		}
		j.arena = arena
	}

	em, err := newBlockEmitter()
	if err != nil {
		return nil, err
	}
	em.Prologue()

	pc := addr
	terminated := false
	for n := 0; n < JIT_MAX_BLOCK_INSNS; n++ {
		word, err := j.m.mem.Read32(pc, PERM_READ|PERM_EXEC)
		if err != nil {
			// Let the interpreter raise the fault at pc.
			break
		}
		inst := DecodeInstruction(word)
		translated, terminal := em.Translate(inst, pc)
		if !translated {
			break
		}
		pc += INSTRUCTION_SIZE
		if terminal {
			terminated = true
			break
		}
	}
	if pc == addr {
		return nil, errors.Errorf("jit: untranslatable block at $%04X", addr)
	}
	if !terminated {
		em.Fallthrough(pc)
	}

	code := em.Finalize()
	if j.used+len(code) > len(j.arena) {
		return nil, errors.New("jit: code arena exhausted")
	}
	copy(j.arena[j.used:], code)

	blk := &j.blocks[j.count]
	j.count++
	*blk = JitBlock{
		StartAddr: addr,
		Length:    pc - addr,
		NativeOff: j.used,
		NativeLen: len(code),
		Compiled:  true,
	}
	j.used += len(code)
	j.index[addr] = blk
	return blk, nil
}

// Clear drops every compiled block. The arena mapping is kept and
// reused by subsequent compiles.
func (j *JITCache) Clear() {
	j.index = make(map[uint32]*JitBlock)
	j.count = 0
	j.used = 0
}

// Release unmaps the native code arena. The cache is unusable for
// execution afterwards until a new Compile remaps it.
func (j *JITCache) Release() {
	j.Clear()
	if j.arena != nil {
		jitUnmapArena(j.arena)
		j.arena = nil
	}
}
