// debug_script.go - Lua bindings for scripted debugging.
//
// Scripts see a global vm table. Addresses and values are plain Lua
// numbers; memory access errors raise Lua errors so a script can
// pcall around probes into unmapped space.

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
	"io"

	lua "github.com/yuin/gopher-lua"
)

// ScriptEngine owns one Lua state whose globals persist across runs,
// so a monitor session can build up helper functions interactively.
type ScriptEngine struct {
	m   *Machine
	out io.Writer
	L   *lua.LState
}

func NewScriptEngine(m *Machine, out io.Writer) *ScriptEngine {
	e := &ScriptEngine{m: m, out: out, L: lua.NewState()}
	e.bind()
	return e
}

func (e *ScriptEngine) Close() {
	e.L.Close()
}

func (e *ScriptEngine) RunString(src string) error {
	return e.L.DoString(src)
}

func (e *ScriptEngine) RunFile(path string) error {
	return e.L.DoFile(path)
}

func (e *ScriptEngine) bind() {
	L := e.L
	mod := L.NewTable()

	funcs := map[string]lua.LGFunction{
		"reg":     e.luaReg,
		"setreg":  e.luaSetReg,
		"pc":      e.luaPC,
		"setpc":   e.luaSetPC,
		"sp":      e.luaSP,
		"flags":   e.luaFlags,
		"peek":    e.luaPeek,
		"poke":    e.luaPoke,
		"peek32":  e.luaPeek32,
		"poke32":  e.luaPoke32,
		"step":    e.luaStep,
		"run":     e.luaRun,
		"brk":     e.luaBrk,
		"delbrk":  e.luaDelBrk,
		"disasm":  e.luaDisasm,
		"icount":  e.luaICount,
		"ticks":   e.luaTicks,
		"trigger": e.luaTrigger,
		"reset":   e.luaReset,
	}
	for name, fn := range funcs {
		mod.RawSetString(name, L.NewFunction(fn))
	}
	L.SetGlobal("vm", mod)

	// print goes to the monitor's output, not the process stdout.
	L.SetGlobal("print", L.NewFunction(e.luaPrint))
}

func (e *ScriptEngine) luaPrint(L *lua.LState) int {
	top := L.GetTop()
	for i := 1; i <= top; i++ {
		if i > 1 {
			fmt.Fprint(e.out, "\t")
		}
		fmt.Fprint(e.out, L.ToStringMeta(L.Get(i)).String())
	}
	fmt.Fprintln(e.out)
	return 0
}

func (e *ScriptEngine) luaReg(L *lua.LState) int {
	i := L.CheckInt(1)
	v, err := e.m.Register(i)
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(lua.LNumber(v))
	return 1
}

func (e *ScriptEngine) luaSetReg(L *lua.LState) int {
	i := L.CheckInt(1)
	v := uint32(L.CheckInt64(2))
	if err := e.m.SetRegister(i, v); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (e *ScriptEngine) luaPC(L *lua.LState) int {
	L.Push(lua.LNumber(e.m.PC()))
	return 1
}

func (e *ScriptEngine) luaSetPC(L *lua.LState) int {
	e.m.SetPC(uint32(L.CheckInt64(1)))
	return 0
}

func (e *ScriptEngine) luaSP(L *lua.LState) int {
	L.Push(lua.LNumber(e.m.SP()))
	return 1
}

func (e *ScriptEngine) luaFlags(L *lua.LState) int {
	L.Push(lua.LNumber(e.m.Flags()))
	return 1
}

func (e *ScriptEngine) luaPeek(L *lua.LState) int {
	addr := uint32(L.CheckInt64(1))
	data, err := e.m.ReadMemory(addr, 1)
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(lua.LNumber(data[0]))
	return 1
}

func (e *ScriptEngine) luaPoke(L *lua.LState) int {
	addr := uint32(L.CheckInt64(1))
	val := byte(L.CheckInt(2))
	if err := e.m.WriteMemory(addr, []byte{val}); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (e *ScriptEngine) luaPeek32(L *lua.LState) int {
	addr := uint32(L.CheckInt64(1))
	v, err := e.m.mem.Read32(addr, PERM_READ)
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(lua.LNumber(v))
	return 1
}

func (e *ScriptEngine) luaPoke32(L *lua.LState) int {
	addr := uint32(L.CheckInt64(1))
	val := uint32(L.CheckInt64(2))
	if err := e.m.mem.Write32(addr, val); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// step([n]) executes up to n instructions (default 1) and returns the
// last step result as a string.
func (e *ScriptEngine) luaStep(L *lua.LState) int {
	n := 1
	if L.GetTop() >= 1 {
		n = L.CheckInt(1)
	}
	res := StepContinue
	for i := 0; i < n; i++ {
		res = e.m.Step()
		if res != StepContinue {
			break
		}
	}
	L.Push(lua.LString(res.String()))
	return 1
}

// run() resumes until the machine stops and returns the stop reason.
func (e *ScriptEngine) luaRun(L *lua.LState) int {
	for {
		res := e.m.Step()
		if res != StepContinue {
			L.Push(lua.LString(res.String()))
			return 1
		}
	}
}

func (e *ScriptEngine) luaBrk(L *lua.LState) int {
	addr := uint32(L.CheckInt64(1))
	e.m.EnableDebug(true)
	if err := e.m.AddBreakpoint(addr); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (e *ScriptEngine) luaDelBrk(L *lua.LState) int {
	e.m.RemoveBreakpoint(uint32(L.CheckInt64(1)))
	return 0
}

func (e *ScriptEngine) luaDisasm(L *lua.LState) int {
	addr := uint32(L.CheckInt64(1))
	count := 1
	if L.GetTop() >= 2 {
		count = L.CheckInt(2)
	}
	var out string
	for _, line := range e.m.DisassembleRange(addr, count) {
		out += fmt.Sprintf("$%04X  %s\n", line.Address, line.Mnemonic)
	}
	L.Push(lua.LString(out))
	return 1
}

func (e *ScriptEngine) luaICount(L *lua.LState) int {
	L.Push(lua.LNumber(e.m.InstructionCount()))
	return 1
}

func (e *ScriptEngine) luaTicks(L *lua.LState) int {
	L.Push(lua.LNumber(e.m.Ticks()))
	return 1
}

func (e *ScriptEngine) luaTrigger(L *lua.LState) int {
	if err := e.m.Trigger(L.CheckInt(1)); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (e *ScriptEngine) luaReset(L *lua.LState) int {
	e.m.Reset()
	return 0
}
