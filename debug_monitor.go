// debug_monitor.go - Interactive machine monitor REPL.

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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MonitorCommand is a parsed command with name and arguments.
type MonitorCommand struct {
	Name string
	Args []string
}

// ParseCommand splits a raw input line into a command name and arguments.
func ParseCommand(input string) MonitorCommand {
	input = strings.TrimSpace(input)
	if input == "" {
		return MonitorCommand{}
	}
	parts := strings.Fields(input)
	return MonitorCommand{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}
}

// ParseAddress parses a monitor address in various formats:
// $hex, 0xhex, bare hex, #decimal.
func ParseAddress(s string) (uint32, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.HasPrefix(s, "#") {
		v, err := strconv.ParseUint(s[1:], 10, 32)
		return uint32(v), err == nil
	}
	if strings.HasPrefix(s, "$") {
		v, err := strconv.ParseUint(s[1:], 16, 32)
		return uint32(v), err == nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		return uint32(v), err == nil
	}
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err == nil
}

// MachineMonitor is a line-oriented debugger front end. It owns no
// goroutines; Run blocks on the input stream until x or EOF.
type MachineMonitor struct {
	m   *Machine
	in  *bufio.Scanner
	out io.Writer

	lastAddr uint32 // continuation point for m and d
	script   *ScriptEngine
}

func NewMachineMonitor(m *Machine, in io.Reader, out io.Writer) *MachineMonitor {
	return &MachineMonitor{
		m:   m,
		in:  bufio.NewScanner(in),
		out: out,
	}
}

func (mon *MachineMonitor) printf(format string, args ...interface{}) {
	fmt.Fprintf(mon.out, format, args...)
}

// Run reads and executes commands until exit or EOF.
func (mon *MachineMonitor) Run() error {
	mon.printf("VireCore monitor, ? for help\n")
	for {
		mon.printf("* ")
		if !mon.in.Scan() {
			return mon.in.Err()
		}
		if mon.ExecuteCommand(mon.in.Text()) {
			return nil
		}
	}
}

// ExecuteCommand dispatches one input line. Returns true when the
// monitor should exit.
func (mon *MachineMonitor) ExecuteCommand(input string) bool {
	cmd := ParseCommand(input)
	switch cmd.Name {
	case "":
	case "r":
		mon.cmdRegisters(cmd)
	case "m":
		mon.cmdMemory(cmd)
	case "e":
		mon.cmdEnter(cmd)
	case "d":
		mon.cmdDisassemble(cmd)
	case "s":
		mon.cmdStep(cmd)
	case "g":
		mon.cmdGo(cmd)
	case "b":
		mon.cmdBreak(cmd)
	case "bc":
		mon.m.ClearBreakpoints()
		mon.printf("breakpoints cleared\n")
	case "bl":
		for _, addr := range mon.m.debug.Breakpoints() {
			mon.printf("  $%04X\n", addr)
		}
	case "i":
		mon.cmdInfo()
	case "irq":
		mon.cmdIRQ(cmd)
	case "pp":
		mon.cmdPages(cmd)
	case "trace":
		mon.m.cpu.Trace = !mon.m.cpu.Trace
		mon.printf("trace %v\n", mon.m.cpu.Trace)
	case "reset":
		mon.m.Reset()
		mon.printf("machine reset\n")
	case "script":
		mon.cmdScript(cmd)
	case "lua":
		mon.cmdLua(input)
	case "x", "q":
		return true
	case "?", "help":
		mon.cmdHelp()
	default:
		mon.printf("unknown command %q, ? for help\n", cmd.Name)
	}
	return false
}

func (mon *MachineMonitor) cmdRegisters(cmd MonitorCommand) {
	if len(cmd.Args) >= 2 {
		// Set register: r <name> <value>
		val, ok := ParseAddress(cmd.Args[1])
		if !ok {
			mon.printf("invalid value: %s\n", cmd.Args[1])
			return
		}
		if !mon.setRegisterByName(cmd.Args[0], val) {
			mon.printf("unknown register: %s\n", cmd.Args[0])
			return
		}
		mon.printf("%s = $%08X\n", strings.ToLower(cmd.Args[0]), val)
		return
	}
	regs := mon.m.DebugRegisters()
	for i, r := range regs {
		mon.printf("%5s=$%08X", r.Name, r.Value)
		if (i+1)%4 == 0 {
			mon.printf("\n")
		}
	}
	if len(regs)%4 != 0 {
		mon.printf("\n")
	}
}

func (mon *MachineMonitor) setRegisterByName(name string, val uint32) bool {
	name = strings.ToLower(name)
	switch name {
	case "pc":
		mon.m.SetPC(val)
	case "sp":
		mon.m.cpu.SP = val
	case "fp":
		mon.m.cpu.FP = val
	case "flags":
		mon.m.cpu.Flags = val
	default:
		for i, rn := range ve32RegNames {
			if name == rn {
				mon.m.cpu.Regs[i] = val
				return true
			}
		}
		return false
	}
	return true
}

func (mon *MachineMonitor) cmdMemory(cmd MonitorCommand) {
	addr := mon.lastAddr
	count := 64
	if len(cmd.Args) >= 1 {
		a, ok := ParseAddress(cmd.Args[0])
		if !ok {
			mon.printf("invalid address: %s\n", cmd.Args[0])
			return
		}
		addr = a
	}
	if len(cmd.Args) >= 2 {
		n, ok := ParseAddress(cmd.Args[1])
		if !ok || n == 0 {
			mon.printf("invalid length: %s\n", cmd.Args[1])
			return
		}
		count = int(n)
	}
	data, err := mon.m.ReadMemory(addr, count)
	if err != nil {
		mon.printf("%v\n", err)
		return
	}
	for base := 0; base < len(data); base += 16 {
		end := base + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[base:end]
		mon.printf("$%04X:", addr+uint32(base))
		for _, b := range row {
			mon.printf(" %02X", b)
		}
		mon.printf("%*s", (16-len(row))*3+2, "")
		for _, b := range row {
			if b >= 0x20 && b < 0x7F {
				mon.printf("%c", b)
			} else {
				mon.printf(".")
			}
		}
		mon.printf("\n")
	}
	mon.lastAddr = addr + uint32(count)
}

func (mon *MachineMonitor) cmdEnter(cmd MonitorCommand) {
	if len(cmd.Args) < 2 {
		mon.printf("usage: e <addr> <byte> [byte ...]\n")
		return
	}
	addr, ok := ParseAddress(cmd.Args[0])
	if !ok {
		mon.printf("invalid address: %s\n", cmd.Args[0])
		return
	}
	data := make([]byte, 0, len(cmd.Args)-1)
	for _, arg := range cmd.Args[1:] {
		v, ok := ParseAddress(arg)
		if !ok || v > 0xFF {
			mon.printf("invalid byte: %s\n", arg)
			return
		}
		data = append(data, byte(v))
	}
	if err := mon.m.WriteMemory(addr, data); err != nil {
		mon.printf("%v\n", err)
		return
	}
	mon.printf("wrote %d bytes at $%04X\n", len(data), addr)
}

func (mon *MachineMonitor) cmdDisassemble(cmd MonitorCommand) {
	addr := mon.m.PC()
	count := 8
	if len(cmd.Args) >= 1 {
		a, ok := ParseAddress(cmd.Args[0])
		if !ok {
			mon.printf("invalid address: %s\n", cmd.Args[0])
			return
		}
		addr = a
	}
	if len(cmd.Args) >= 2 {
		n, ok := ParseAddress(cmd.Args[1])
		if !ok || n == 0 {
			mon.printf("invalid count: %s\n", cmd.Args[1])
			return
		}
		count = int(n)
	}
	lines := mon.m.DisassembleRange(addr, count)
	if len(lines) == 0 {
		mon.printf("nothing readable at $%04X\n", addr)
		return
	}
	for _, l := range lines {
		marker := " "
		if l.IsPC {
			marker = ">"
		}
		mon.printf("%s $%04X  %08X  %s\n", marker, l.Address, l.Word, l.Mnemonic)
	}
	mon.lastAddr = addr + uint32(count)*INSTRUCTION_SIZE
}

func (mon *MachineMonitor) cmdStep(cmd MonitorCommand) {
	n := 1
	if len(cmd.Args) >= 1 {
		v, ok := ParseAddress(cmd.Args[0])
		if !ok || v == 0 {
			mon.printf("invalid count: %s\n", cmd.Args[0])
			return
		}
		n = int(v)
	}
	for i := 0; i < n; i++ {
		pc := mon.m.PC()
		if word, err := mon.m.mem.Read32(pc, PERM_READ); err == nil {
			mon.printf("$%04X  %s\n", pc, Disassemble(word))
		}
		res := mon.m.Step()
		if res != StepContinue {
			mon.reportStop(res)
			return
		}
	}
}

func (mon *MachineMonitor) cmdGo(cmd MonitorCommand) {
	if len(cmd.Args) >= 1 {
		addr, ok := ParseAddress(cmd.Args[0])
		if !ok {
			mon.printf("invalid address: %s\n", cmd.Args[0])
			return
		}
		mon.m.SetPC(addr)
	}
	for {
		res := mon.m.Step()
		if res != StepContinue {
			mon.reportStop(res)
			return
		}
	}
}

func (mon *MachineMonitor) reportStop(res StepResult) {
	switch res {
	case StepHalted:
		mon.printf("halted, exit code %d\n", mon.m.cpu.ExitCode)
	case StepPaused:
		mon.printf("paused at $%04X\n", mon.m.PC())
	case StepFault:
		mon.printf("fault: %v\n", mon.m.cpu.LastFault())
	}
}

func (mon *MachineMonitor) cmdBreak(cmd MonitorCommand) {
	if len(cmd.Args) < 1 {
		mon.printf("usage: b <addr>\n")
		return
	}
	addr, ok := ParseAddress(cmd.Args[0])
	if !ok {
		mon.printf("invalid address: %s\n", cmd.Args[0])
		return
	}
	mon.m.EnableDebug(true)
	if err := mon.m.AddBreakpoint(addr); err != nil {
		mon.printf("%v\n", err)
		return
	}
	mon.printf("breakpoint at $%04X\n", addr)
}

func (mon *MachineMonitor) cmdInfo() {
	mon.printf("instructions %d  cycles %d  ticks %d  heap %d\n",
		mon.m.InstructionCount(), mon.m.CycleCount(),
		mon.m.Ticks(), mon.m.mem.HeapUsed())
	mon.printf("thread %d  halted %v\n",
		mon.m.ThreadCurrent(), mon.m.Halted())
}

func (mon *MachineMonitor) cmdIRQ(cmd MonitorCommand) {
	if len(cmd.Args) < 1 {
		mon.printf("usage: irq <vector>\n")
		return
	}
	v, ok := ParseAddress(cmd.Args[0])
	if !ok {
		mon.printf("invalid vector: %s\n", cmd.Args[0])
		return
	}
	if err := mon.m.Trigger(int(v)); err != nil {
		mon.printf("%v\n", err)
		return
	}
	mon.printf("irq %d raised\n", v)
}

func (mon *MachineMonitor) cmdPages(cmd MonitorCommand) {
	page := -1
	if len(cmd.Args) >= 1 {
		v, ok := ParseAddress(cmd.Args[0])
		if !ok {
			mon.printf("invalid page: %s\n", cmd.Args[0])
			return
		}
		page = int(v)
	}
	show := func(p int) {
		bits, err := mon.m.PageProtection(p)
		if err != nil {
			mon.printf("%v\n", err)
			return
		}
		mon.printf("page %3d $%04X: %s\n", p, uint32(p)*PAGE_SIZE, protString(bits))
	}
	if page >= 0 {
		show(page)
		return
	}
	// Full map, one line per run of identical protection.
	start := 0
	cur, _ := mon.m.PageProtection(0)
	for p := 1; p <= NUM_PAGES; p++ {
		var bits byte
		if p < NUM_PAGES {
			bits, _ = mon.m.PageProtection(p)
		}
		if p == NUM_PAGES || bits != cur {
			mon.printf("pages %3d-%3d $%04X-$%04X: %s\n",
				start, p-1, uint32(start)*PAGE_SIZE, uint32(p)*PAGE_SIZE-1,
				protString(cur))
			start, cur = p, bits
		}
	}
}

func protString(bits byte) string {
	s := []byte("----")
	if bits&PERM_PRESENT != 0 {
		s[0] = 'p'
	}
	if bits&PERM_READ != 0 {
		s[1] = 'r'
	}
	if bits&PERM_WRITE != 0 {
		s[2] = 'w'
	}
	if bits&PERM_EXEC != 0 {
		s[3] = 'x'
	}
	return string(s)
}

func (mon *MachineMonitor) ensureScript() *ScriptEngine {
	if mon.script == nil {
		mon.script = NewScriptEngine(mon.m, mon.out)
	}
	return mon.script
}

func (mon *MachineMonitor) cmdScript(cmd MonitorCommand) {
	if len(cmd.Args) < 1 {
		mon.printf("usage: script <file.lua>\n")
		return
	}
	if err := mon.ensureScript().RunFile(cmd.Args[0]); err != nil {
		mon.printf("%v\n", err)
	}
}

func (mon *MachineMonitor) cmdLua(input string) {
	src := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), "lua"))
	if src == "" {
		mon.printf("usage: lua <chunk>\n")
		return
	}
	if err := mon.ensureScript().RunString(src); err != nil {
		mon.printf("%v\n", err)
	}
}

func (mon *MachineMonitor) cmdHelp() {
	mon.printf(`r [name value]     show or set registers
m [addr [len]]     dump memory
e <addr> <b> ...   enter bytes
d [addr [count]]   disassemble
s [n]              step
g [addr]           run until stop
b <addr>           set breakpoint
bl / bc            list / clear breakpoints
i                  counters and machine state
irq <vector>       raise an interrupt
pp [page]          page protection map
trace              toggle instruction trace
reset              reset the machine
script <file>      run a lua script
lua <chunk>        evaluate lua
x                  exit
`)
}
