// interrupt_ctrl.go - Vectored interrupt controller, 32 priority-ordered vectors

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
	"fmt"
	"sync"
)

const NUM_INTERRUPT_VECTORS = 32

// InterruptVector is one slot in the controller. The vector index
// doubles as priority: vector 0 beats vector 31.
type InterruptVector struct {
	Handler uint32
	Enabled bool
	Pending bool
}

// InterruptController owns the 32 vectors and the global enable. A
// vector dispatches only when the global enable, its own enable and
// its pending bit are all set.
type InterruptController struct {
	mutex   sync.Mutex
	enabled bool
	vectors [NUM_INTERRUPT_VECTORS]InterruptVector
}

func NewInterruptController() *InterruptController {
	return &InterruptController{}
}

// SetEnabled flips the global interrupt enable.
func (ic *InterruptController) SetEnabled(on bool) {
	ic.mutex.Lock()
	defer ic.mutex.Unlock()
	ic.enabled = on
}

func (ic *InterruptController) Enabled() bool {
	ic.mutex.Lock()
	defer ic.mutex.Unlock()
	return ic.enabled
}

// SetHandler installs a handler address and enables that vector.
func (ic *InterruptController) SetHandler(irq int, addr uint32) error {
	if irq < 0 || irq >= NUM_INTERRUPT_VECTORS {
		return fmt.Errorf("irq %d out of range", irq)
	}
	ic.mutex.Lock()
	defer ic.mutex.Unlock()
	ic.vectors[irq].Handler = addr
	ic.vectors[irq].Enabled = true
	return nil
}

// Trigger marks a vector pending. It latches regardless of enable
// state; the enables are checked at dispatch time.
func (ic *InterruptController) Trigger(irq int) error {
	if irq < 0 || irq >= NUM_INTERRUPT_VECTORS {
		return fmt.Errorf("irq %d out of range", irq)
	}
	ic.mutex.Lock()
	defer ic.mutex.Unlock()
	ic.vectors[irq].Pending = true
	return nil
}

// Pending reports one vector's pending bit; mostly for tests.
func (ic *InterruptController) Pending(irq int) bool {
	ic.mutex.Lock()
	defer ic.mutex.Unlock()
	if irq < 0 || irq >= NUM_INTERRUPT_VECTORS {
		return false
	}
	return ic.vectors[irq].Pending
}

// Reset clears all vectors and the global enable.
func (ic *InterruptController) Reset() {
	ic.mutex.Lock()
	defer ic.mutex.Unlock()
	ic.enabled = false
	for i := range ic.vectors {
		ic.vectors[i] = InterruptVector{}
	}
}

// AnyDeliverable reports whether a dispatch would happen right now.
// The JIT uses it to stay off the fast path while interrupts pend.
func (ic *InterruptController) AnyDeliverable() bool {
	ic.mutex.Lock()
	defer ic.mutex.Unlock()
	if !ic.enabled {
		return false
	}
	for irq := range ic.vectors {
		if ic.vectors[irq].Pending && ic.vectors[irq].Enabled {
			return true
		}
	}
	return false
}

// Dispatch scans vectors in priority order and services the first
// pending+enabled one: push the interrupted pc CALL-style, jump to
// the handler, clear pending. At most one vector dispatches per call;
// the handler returns with an ordinary RET.
func (ic *InterruptController) Dispatch(cpu *CPU) (bool, error) {
	ic.mutex.Lock()
	defer ic.mutex.Unlock()

	if !ic.enabled {
		return false, nil
	}
	for irq := range ic.vectors {
		v := &ic.vectors[irq]
		if !v.Pending || !v.Enabled {
			continue
		}
		if err := cpu.push(cpu.PC); err != nil {
			return false, err
		}
		cpu.PC = v.Handler
		v.Pending = false
		return true, nil
	}
	return false, nil
}
