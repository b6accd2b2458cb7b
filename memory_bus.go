// memory_bus.go - Paged guest memory, page permissions, bump heap and MMIO regions

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
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	MEMORY_SIZE = 64 * 1024
	PAGE_SIZE   = 0x100
	NUM_PAGES   = MEMORY_SIZE / PAGE_SIZE
)

const (
	// Page permission bits
	PERM_READ    = 1 << 0
	PERM_WRITE   = 1 << 1
	PERM_EXEC    = 1 << 2
	PERM_PRESENT = 1 << 3
)

const (
	// Default memory map
	CODE_BASE  = 0x0000
	CODE_LIMIT = 0x4000 // first 16KB, R+X
	HEAP_BASE  = 0x4000
	HEAP_SIZE  = 0x8000 // 32KB bump region, R+W
	MMIO_BASE  = 0xC000
	MMIO_LIMIT = 0xE000 // not PRESENT until a peripheral claims it
	STACK_BASE = 0xE000
	STACK_TOP  = 0x10000 // last 8KB, R+W
)

// MemoryFault reports an out-of-range or permission-denied access.
// The access it describes was rejected atomically: no bytes moved.
type MemoryFault struct {
	Addr uint32
	Len  int
	Perm byte
}

func (f *MemoryFault) Error() string {
	return fmt.Sprintf("memory fault: addr=%04x len=%d perm=%s", f.Addr, f.Len, permString(f.Perm))
}

func permString(perm byte) string {
	s := ""
	if perm&PERM_READ != 0 {
		s += "r"
	}
	if perm&PERM_WRITE != 0 {
		s += "w"
	}
	if perm&PERM_EXEC != 0 {
		s += "x"
	}
	if s == "" {
		s = "-"
	}
	return s
}

// IORegion is a memory-mapped peripheral window. Callbacks fire on
// word-sized guest access falling inside [start, end].
type IORegion struct {
	start   uint32
	end     uint32
	onRead  func(addr uint32) uint32
	onWrite func(addr uint32, value uint32)
}

// SystemMemory is the VE32 guest memory: a flat 64KB buffer with a
// parallel page-permission table and a bump heap carved out of the
// writable range. All multi-byte accesses are checked page by page
// before any byte is copied.
type SystemMemory struct {
	data    []byte
	pages   [NUM_PAGES]byte
	mapping map[uint32][]IORegion
	mutex   sync.RWMutex

	heapBase uint32
	heapSize uint32
	heapUsed uint32
}

func NewSystemMemory() *SystemMemory {
	mem := &SystemMemory{
		data:    make([]byte, MEMORY_SIZE),
		mapping: make(map[uint32][]IORegion),
	}
	mem.InstallDefaultMap()
	return mem
}

// InstallDefaultMap resets the page table to the stock layout: code
// R+X, heap R+W, MMIO window absent, stack R+W. The heap cursor and
// memory contents are cleared too.
func (mem *SystemMemory) InstallDefaultMap() {
	mem.mutex.Lock()
	defer mem.mutex.Unlock()

	for i := range mem.data {
		mem.data[i] = 0
	}
	for page := 0; page < NUM_PAGES; page++ {
		addr := uint32(page * PAGE_SIZE)
		switch {
		case addr < CODE_LIMIT:
			mem.pages[page] = PERM_PRESENT | PERM_READ | PERM_EXEC
		case addr < HEAP_BASE+HEAP_SIZE:
			mem.pages[page] = PERM_PRESENT | PERM_READ | PERM_WRITE
		case addr < MMIO_LIMIT:
			mem.pages[page] = 0
		default:
			mem.pages[page] = PERM_PRESENT | PERM_READ | PERM_WRITE
		}
	}
	mem.heapBase = HEAP_BASE
	mem.heapSize = HEAP_SIZE
	mem.heapUsed = 0
}

// CheckAccess verifies that every page in [addr, addr+length) is
// PRESENT and grants perm. Nothing is copied here.
func (mem *SystemMemory) CheckAccess(addr uint32, length int, perm byte) error {
	if length < 0 || uint64(addr)+uint64(length) > MEMORY_SIZE {
		return &MemoryFault{Addr: addr, Len: length, Perm: perm}
	}
	if length == 0 {
		return nil
	}
	firstPage := addr / PAGE_SIZE
	lastPage := (addr + uint32(length) - 1) / PAGE_SIZE
	for page := firstPage; page <= lastPage; page++ {
		bits := mem.pages[page]
		if bits&PERM_PRESENT == 0 || bits&perm != perm {
			return &MemoryFault{Addr: addr, Len: length, Perm: perm}
		}
	}
	return nil
}

// Read copies length bytes starting at addr, requiring READ on every
// page touched. The copy is all-or-nothing.
func (mem *SystemMemory) Read(addr uint32, length int) ([]byte, error) {
	mem.mutex.RLock()
	defer mem.mutex.RUnlock()

	if err := mem.CheckAccess(addr, length, PERM_READ); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	copy(buf, mem.data[addr:addr+uint32(length)])
	return buf, nil
}

// Write copies data into memory at addr, requiring WRITE on every
// page touched. On fault nothing is written.
func (mem *SystemMemory) Write(addr uint32, data []byte) error {
	mem.mutex.Lock()
	defer mem.mutex.Unlock()

	if err := mem.CheckAccess(addr, len(data), PERM_WRITE); err != nil {
		return err
	}
	copy(mem.data[addr:addr+uint32(len(data))], data)
	return nil
}

// LoadImage copies a program image to addr. Destination pages must be
// PRESENT; WRITE and EXEC are deliberately not required here — the
// loader writes into R+X code pages, and making the region executable
// stays the caller's job.
func (mem *SystemMemory) LoadImage(addr uint32, data []byte) error {
	mem.mutex.Lock()
	defer mem.mutex.Unlock()

	if err := mem.CheckAccess(addr, len(data), 0); err != nil {
		return err
	}
	copy(mem.data[addr:addr+uint32(len(data))], data)
	return nil
}

// Read32 performs a checked little-endian word read. Reads inside a
// registered IO region are routed to the peripheral's onRead callback
// and mirrored into the backing store.
func (mem *SystemMemory) Read32(addr uint32, perm byte) (uint32, error) {
	mem.mutex.Lock()
	defer mem.mutex.Unlock()

	if err := mem.CheckAccess(addr, WORD_SIZE, perm); err != nil {
		return 0, err
	}
	if regions, exists := mem.mapping[addr&^uint32(PAGE_SIZE-1)]; exists {
		for _, region := range regions {
			if addr >= region.start && addr <= region.end && region.onRead != nil {
				value := region.onRead(addr)
				binary.LittleEndian.PutUint32(mem.data[addr:addr+WORD_SIZE], value)
				return value, nil
			}
		}
	}
	return binary.LittleEndian.Uint32(mem.data[addr : addr+WORD_SIZE]), nil
}

// Write32 performs a checked little-endian word write, honouring IO
// regions the way Read32 does.
func (mem *SystemMemory) Write32(addr uint32, value uint32) error {
	mem.mutex.Lock()
	defer mem.mutex.Unlock()

	if err := mem.CheckAccess(addr, WORD_SIZE, PERM_WRITE); err != nil {
		return err
	}
	if regions, exists := mem.mapping[addr&^uint32(PAGE_SIZE-1)]; exists {
		for _, region := range regions {
			if addr >= region.start && addr <= region.end && region.onWrite != nil {
				region.onWrite(addr, value)
				binary.LittleEndian.PutUint32(mem.data[addr:addr+WORD_SIZE], value)
				return nil
			}
		}
	}
	binary.LittleEndian.PutUint32(mem.data[addr:addr+WORD_SIZE], value)
	return nil
}

// MapIO registers a peripheral window. The pages it spans are marked
// PRESENT+R+W: a peripheral that claims part of the MMIO window makes
// it reachable, everything unclaimed keeps faulting.
func (mem *SystemMemory) MapIO(start, end uint32, onRead func(addr uint32) uint32, onWrite func(addr uint32, value uint32)) {
	mem.mutex.Lock()
	defer mem.mutex.Unlock()

	region := IORegion{start: start, end: end, onRead: onRead, onWrite: onWrite}
	firstPage := start &^ uint32(PAGE_SIZE - 1)
	lastPage := end &^ uint32(PAGE_SIZE - 1)
	for page := firstPage; page <= lastPage; page += PAGE_SIZE {
		mem.mapping[page] = append(mem.mapping[page], region)
		mem.pages[page/PAGE_SIZE] = PERM_PRESENT | PERM_READ | PERM_WRITE
	}
}

// PageProtection returns the permission bits of one page.
func (mem *SystemMemory) PageProtection(page int) (byte, error) {
	if page < 0 || page >= NUM_PAGES {
		return 0, fmt.Errorf("page %d out of range", page)
	}
	mem.mutex.RLock()
	defer mem.mutex.RUnlock()
	return mem.pages[page], nil
}

// SetPageProtection overwrites the permission bits of one page. No
// cascading effects: neighbouring pages and memory contents are
// untouched.
func (mem *SystemMemory) SetPageProtection(page int, bits byte) error {
	if page < 0 || page >= NUM_PAGES {
		return fmt.Errorf("page %d out of range", page)
	}
	mem.mutex.Lock()
	defer mem.mutex.Unlock()
	mem.pages[page] = bits
	return nil
}

// Alloc bumps the heap cursor by size rounded up to 4-byte alignment
// and returns the block address, or 0 when the region is exhausted.
// Allocations are monotonic and never reclaimed.
func (mem *SystemMemory) Alloc(size uint32) uint32 {
	mem.mutex.Lock()
	defer mem.mutex.Unlock()

	if size == 0 {
		return 0
	}
	aligned := (size + WORD_SIZE - 1) &^ uint32(WORD_SIZE-1)
	if aligned > mem.heapSize-mem.heapUsed {
		return 0
	}
	addr := mem.heapBase + mem.heapUsed
	mem.heapUsed += aligned
	return addr
}

// Free is a documented no-op: the bump allocator never reclaims.
func (mem *SystemMemory) Free(addr uint32) {
	_ = addr
}

// HeapUsed reports the bump cursor, mostly for tests and the monitor.
func (mem *SystemMemory) HeapUsed() uint32 {
	mem.mutex.RLock()
	defer mem.mutex.RUnlock()
	return mem.heapUsed
}
