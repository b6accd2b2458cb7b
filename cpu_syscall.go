// cpu_syscall.go - SYSCALL dispatch: host I/O, timer, heap, threads, mutexes, semaphores

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

// Dispatch implements the syscall surface. The selector rides in r0
// and the result replaces it: SYSCALL_FAILED for unimplemented and
// unrecognised numbers alike (deliberately indistinguishable from a
// call that legitimately returns all-ones). Only a guest deadlock
// escalates to a fault; everything else keeps the machine running.
func (m *Machine) Dispatch(cpu *CPU) error {
	r1 := cpu.Regs[1]
	r2 := cpu.Regs[2]

	switch cpu.Regs[0] {
	case SYS_EXIT:
		cpu.ExitCode = int32(r1)
		cpu.Halted = true

	case SYS_PRINT:
		data, err := m.mem.Read(r1, int(r2))
		if err != nil {
			cpu.Regs[0] = SYSCALL_FAILED
			break
		}
		m.console.WriteBytes(data)
		cpu.Regs[0] = r2

	case SYS_READ:
		if err := m.mem.CheckAccess(r1, int(r2), PERM_WRITE); err != nil {
			cpu.Regs[0] = SYSCALL_FAILED
			break
		}
		buf := make([]byte, r2)
		n := m.console.ReadBytes(buf)
		if err := m.mem.Write(r1, buf[:n]); err != nil {
			cpu.Regs[0] = SYSCALL_FAILED
			break
		}
		cpu.Regs[0] = uint32(n)

	case SYS_GET_TIME:
		cpu.Regs[0] = uint32(m.Ticks())

	case SYS_SLEEP:
		// Simulated time: the tick counter advances, the host does
		// not sleep.
		m.AdvanceTicks(uint64(r1))
		cpu.Regs[0] = 0

	case SYS_ALLOC:
		cpu.Regs[0] = m.mem.Alloc(r1)

	case SYS_FREE:
		m.mem.Free(r1)
		cpu.Regs[0] = 0

	case SYS_OPEN, SYS_CLOSE, SYS_FILE_READ, SYS_FILE_WRITE:
		// File I/O is an explicit unimplemented stub.
		cpu.Regs[0] = SYSCALL_FAILED

	case SYS_THREAD_CREATE:
		id, err := m.sched.Create(r1, r2)
		if err != nil {
			cpu.Regs[0] = SYSCALL_FAILED
			break
		}
		cpu.Regs[0] = uint32(id)

	case SYS_THREAD_EXIT:
		m.sched.Exit(cpu)

	case SYS_THREAD_YIELD:
		// Result staged before the switch so the resuming context,
		// not the switched-to one, sees it.
		cpu.Regs[0] = 0
		m.sched.Yield(cpu)

	case SYS_MUTEX_LOCK:
		if int(r1) >= NUM_MUTEXES {
			cpu.Regs[0] = SYSCALL_FAILED
			break
		}
		cpu.Regs[0] = 0
		if err := m.sched.MutexLock(cpu, int(r1)); err != nil {
			return err
		}

	case SYS_MUTEX_UNLOCK:
		if int(r1) >= NUM_MUTEXES {
			cpu.Regs[0] = SYSCALL_FAILED
			break
		}
		cpu.Regs[0] = 0
		if err := m.sched.MutexUnlock(cpu, int(r1)); err != nil {
			return err
		}

	case SYS_SEM_WAIT:
		if int(r1) >= NUM_SEMAPHORES {
			cpu.Regs[0] = SYSCALL_FAILED
			break
		}
		cpu.Regs[0] = 0
		if err := m.sched.SemWait(cpu, int(r1)); err != nil {
			return err
		}

	case SYS_SEM_POST:
		if int(r1) >= NUM_SEMAPHORES {
			cpu.Regs[0] = SYSCALL_FAILED
			break
		}
		cpu.Regs[0] = 0
		if err := m.sched.SemPost(cpu, int(r1)); err != nil {
			return err
		}

	default:
		cpu.Regs[0] = SYSCALL_FAILED
	}
	return nil
}
