// terminal_io.go - Console peripheral behind the syscall seam, with an optional MMIO window

package main

import (
	"io"
	"sync"
)

const (
	// Console MMIO registers, inside the machine's MMIO window.
	TERM_OUT    = MMIO_BASE + 0x00 // write: emit low byte
	TERM_IN     = MMIO_BASE + 0x04 // read: pop one input byte, 0 when empty
	TERM_STATUS = MMIO_BASE + 0x08 // read: 1 when input is buffered

	consoleInputCap = 1024
)

// Console is the host I/O peripheral serving the PRINT and READ
// syscalls. It is a pure state machine: tests inject input with
// PushInput and read output from any io.Writer; main.go wires it to
// stdout and the terminal host. Guest code can also reach it through
// the MMIO registers once AttachMMIO has claimed the window.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	inputBuf  [consoleInputCap]byte
	inputHead int
	inputLen  int
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// SetOutput redirects guest output; nil discards it.
func (c *Console) SetOutput(out io.Writer) {
	c.mu.Lock()
	c.out = out
	c.mu.Unlock()
}

// PushInput queues bytes for the guest to read. Overflow beyond the
// ring capacity is dropped.
func (c *Console) PushInput(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range data {
		if c.inputLen == consoleInputCap {
			break
		}
		c.inputBuf[(c.inputHead+c.inputLen)%consoleInputCap] = b
		c.inputLen++
	}
}

func (c *Console) popByte() (byte, bool) {
	if c.inputLen == 0 {
		return 0, false
	}
	b := c.inputBuf[c.inputHead]
	c.inputHead = (c.inputHead + 1) % consoleInputCap
	c.inputLen--
	return b, true
}

// WriteBytes emits guest output to the host sink.
func (c *Console) WriteBytes(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out != nil {
		c.out.Write(data)
	}
}

// ReadBytes fills buf from queued input, returning the count. It
// never blocks: cooperative guests poll TERM_STATUS or retry.
func (c *Console) ReadBytes(buf []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for n < len(buf) {
		b, ok := c.popByte()
		if !ok {
			break
		}
		buf[n] = b
		n++
	}
	return n
}

// InputPending reports whether queued input exists.
func (c *Console) InputPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputLen > 0
}

// AttachMMIO claims the console registers inside the MMIO window.
func (c *Console) AttachMMIO(mem *SystemMemory) {
	mem.MapIO(TERM_OUT, TERM_STATUS+WORD_SIZE-1,
		func(addr uint32) uint32 {
			switch addr {
			case TERM_IN:
				c.mu.Lock()
				defer c.mu.Unlock()
				b, _ := c.popByte()
				return uint32(b)
			case TERM_STATUS:
				if c.InputPending() {
					return 1
				}
				return 0
			}
			return 0
		},
		func(addr uint32, value uint32) {
			if addr == TERM_OUT {
				c.WriteBytes([]byte{byte(value)})
			}
		})
}
