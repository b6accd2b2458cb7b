// scheduler.go - Cooperative guest-thread scheduler: contexts, yield, wait/wake

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
)

// ErrDeadlock surfaces when every guest thread is parked on a wait
// target and nothing can ever wake one.
var ErrDeadlock = fmt.Errorf("deadlock: all guest threads waiting")

const (
	MAX_THREADS       = 8
	THREAD_STACK_SIZE = 0x400 // the 8KB stack region carved 8 ways
	NUM_MUTEXES       = 16
	NUM_SEMAPHORES    = 16
)

type waitKind int

const (
	waitNone waitKind = iota
	waitMutex
	waitSem
)

// ThreadContext is one guest thread: a private register file, a slice
// of the stack region, and scheduling state. Contexts are destroyed
// only by machine reset, never individually.
type ThreadContext struct {
	Regs  [16]uint32
	PC    uint32
	SP    uint32
	FP    uint32
	Flags uint32

	Active  bool
	Waiting bool
	waitOn  waitKind
	waitID  int
}

type mutexState struct {
	locked bool
	owner  int
}

// Scheduler multiplexes up to eight cooperative contexts onto the one
// CPU. Switches happen only on explicit yield and on blocking
// THREAD/MUTEX/SEM syscalls; there is no preemption.
type Scheduler struct {
	contexts [MAX_THREADS]ThreadContext
	current  int
	mutexes  [NUM_MUTEXES]mutexState
	sems     [NUM_SEMAPHORES]uint32
}

func NewScheduler() *Scheduler {
	s := &Scheduler{}
	s.Reset()
	return s
}

// Reset wipes all contexts and re-activates slot 0 as the boot thread.
func (s *Scheduler) Reset() {
	for i := range s.contexts {
		s.contexts[i] = ThreadContext{}
	}
	for i := range s.mutexes {
		s.mutexes[i] = mutexState{}
	}
	for i := range s.sems {
		s.sems[i] = 0
	}
	s.current = 0
	s.contexts[0].Active = true
	s.contexts[0].SP = STACK_TOP
	s.contexts[0].FP = STACK_TOP
}

// Current returns the running context's id.
func (s *Scheduler) Current() int {
	return s.current
}

// Context exposes one slot for the monitor and tests.
func (s *Scheduler) Context(id int) *ThreadContext {
	if id < 0 || id >= MAX_THREADS {
		return nil
	}
	return &s.contexts[id]
}

// Create seeds a fresh context: pc at entry, r1 carrying arg, sp at
// the top of its private 1KB stack slice. Fails when all eight slots
// are live.
func (s *Scheduler) Create(entry, arg uint32) (int, error) {
	for id := 0; id < MAX_THREADS; id++ {
		if s.contexts[id].Active {
			continue
		}
		ctx := &s.contexts[id]
		*ctx = ThreadContext{Active: true}
		ctx.PC = entry
		ctx.Regs[1] = arg
		ctx.SP = STACK_TOP - uint32(id)*THREAD_STACK_SIZE
		ctx.FP = ctx.SP
		return id, nil
	}
	return -1, fmt.Errorf("thread table full")
}

func (s *Scheduler) save(cpu *CPU) {
	ctx := &s.contexts[s.current]
	ctx.Regs = cpu.Regs
	ctx.PC = cpu.PC
	ctx.SP = cpu.SP
	ctx.FP = cpu.FP
	ctx.Flags = cpu.Flags
}

func (s *Scheduler) load(cpu *CPU, id int) {
	ctx := &s.contexts[id]
	cpu.Regs = ctx.Regs
	cpu.PC = ctx.PC
	cpu.SP = ctx.SP
	cpu.FP = ctx.FP
	cpu.Flags = ctx.Flags
	s.current = id
}

// nextRunnable round-robins from the slot after start, returning -1
// when nothing is active and not waiting.
func (s *Scheduler) nextRunnable(start int) int {
	for off := 1; off <= MAX_THREADS; off++ {
		id := (start + off) % MAX_THREADS
		ctx := &s.contexts[id]
		if ctx.Active && !ctx.Waiting {
			return id
		}
	}
	return -1
}

// Yield rotates to the next runnable context. With no other runnable
// context the current one just keeps going.
func (s *Scheduler) Yield(cpu *CPU) {
	next := s.nextRunnable(s.current)
	if next == -1 || next == s.current {
		return
	}
	s.save(cpu)
	s.load(cpu, next)
}

// Exit deactivates the current context and switches away. When the
// last runnable context exits the machine halts.
func (s *Scheduler) Exit(cpu *CPU) {
	s.contexts[s.current].Active = false
	next := s.nextRunnable(s.current)
	if next == -1 {
		cpu.Halted = true
		return
	}
	s.load(cpu, next)
}

// block parks the current context on (kind, id) and switches to the
// next runnable one. All contexts blocked at once is a guest deadlock
// and comes back as an error.
func (s *Scheduler) block(cpu *CPU, kind waitKind, id int) error {
	ctx := &s.contexts[s.current]
	ctx.Waiting = true
	ctx.waitOn = kind
	ctx.waitID = id
	next := s.nextRunnable(s.current)
	if next == -1 {
		ctx.Waiting = false
		ctx.waitOn = waitNone
		return ErrDeadlock
	}
	s.save(cpu)
	s.load(cpu, next)
	return nil
}

// wake makes the first context waiting on (kind, id) runnable again
// and reports whether one was found.
func (s *Scheduler) wake(kind waitKind, id int) int {
	for tid := range s.contexts {
		ctx := &s.contexts[tid]
		if ctx.Active && ctx.Waiting && ctx.waitOn == kind && ctx.waitID == id {
			ctx.Waiting = false
			ctx.waitOn = waitNone
			return tid
		}
	}
	return -1
}

// MutexLock acquires mutex id or blocks the caller until unlock.
func (s *Scheduler) MutexLock(cpu *CPU, id int) error {
	if id < 0 || id >= NUM_MUTEXES {
		return fmt.Errorf("mutex id %d out of range", id)
	}
	m := &s.mutexes[id]
	if !m.locked {
		m.locked = true
		m.owner = s.current
		return nil
	}
	return s.block(cpu, waitMutex, id)
}

// MutexUnlock releases mutex id. A blocked waiter, if any, acquires
// it directly (lock handoff) and becomes runnable.
func (s *Scheduler) MutexUnlock(cpu *CPU, id int) error {
	if id < 0 || id >= NUM_MUTEXES {
		return fmt.Errorf("mutex id %d out of range", id)
	}
	_ = cpu
	m := &s.mutexes[id]
	if waiter := s.wake(waitMutex, id); waiter != -1 {
		m.locked = true
		m.owner = waiter
		return nil
	}
	m.locked = false
	return nil
}

// SemWait takes one unit from semaphore id, blocking at zero.
func (s *Scheduler) SemWait(cpu *CPU, id int) error {
	if id < 0 || id >= NUM_SEMAPHORES {
		return fmt.Errorf("semaphore id %d out of range", id)
	}
	if s.sems[id] > 0 {
		s.sems[id]--
		return nil
	}
	return s.block(cpu, waitSem, id)
}

// SemPost releases one unit. A blocked waiter consumes it directly;
// otherwise the count goes up.
func (s *Scheduler) SemPost(cpu *CPU, id int) error {
	if id < 0 || id >= NUM_SEMAPHORES {
		return fmt.Errorf("semaphore id %d out of range", id)
	}
	_ = cpu
	if s.wake(waitSem, id) != -1 {
		return nil
	}
	s.sems[id]++
	return nil
}
