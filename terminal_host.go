// terminal_host.go - Routes host stdin into the console device.

//go:build !windows

package main

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
)

// TerminalHost feeds host keystrokes into a Console's input ring. The
// terminal goes raw so the guest sees individual bytes; Stop restores
// it. Only useful for interactive runs, tests drive Console directly.
type TerminalHost struct {
	console      *Console
	stopCh       chan struct{}
	done         chan struct{}
	stopped      sync.Once
	fd           int
	nonblockSet  bool
	oldTermState *term.State
}

func NewTerminalHost(console *Console) *TerminalHost {
	return &TerminalHost{
		console: console,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start sets stdin to raw non-blocking mode and begins reading in a
// goroutine. Call Stop to restore the terminal.
func (h *TerminalHost) Start() {
	h.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminal_host: failed to set raw mode: %v\n", err)
		close(h.done)
		return
	}
	h.oldTermState = oldState

	if err := syscall.SetNonblock(h.fd, true); err != nil {
		fmt.Fprintf(os.Stderr, "terminal_host: failed to set nonblocking stdin: %v\n", err)
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
		close(h.done)
		return
	}
	h.nonblockSet = true

	go func() {
		defer close(h.done)
		buf := make([]byte, 1)

		for {
			select {
			case <-h.stopCh:
				return
			default:
			}

			n, err := syscall.Read(h.fd, buf)
			if n > 0 {
				b := buf[0]
				// Raw mode sends CR for Enter; the guest expects LF.
				if b == '\r' {
					b = '\n'
				}
				// Most terminals send DEL for Backspace.
				if b == 0x7F {
					b = 0x08
				}
				h.console.PushInput([]byte{b})
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
}

// Stop terminates the reader goroutine and restores the terminal.
func (h *TerminalHost) Stop() {
	h.stopped.Do(func() {
		close(h.stopCh)
	})
	<-h.done
	if h.nonblockSet {
		_ = syscall.SetNonblock(h.fd, false)
		h.nonblockSet = false
	}
	if h.oldTermState != nil {
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
	}
}
