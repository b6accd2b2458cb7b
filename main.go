// main.go - VireCore command line entry point.

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
	"flag"
	"fmt"
	"io"
	"os"
)

func boilerPlate() {
	fmt.Println("\nVireCore - a 32-bit virtual machine with paged memory, cooperative")
	fmt.Println("threads, a machine monitor, a GDB stub and a native code cache.")
	fmt.Println("(c) 2024 - 2026 Zayn Otley")
	fmt.Println("https://github.com/intuitionamiga/VireCore")
	fmt.Println("License: GPLv3 or later")
	fmt.Println()
}

func main() {
	boilerPlate()

	var (
		loadAddr    string
		gdbPort     int
		useJIT      bool
		useMonitor  bool
		trace       bool
		scriptFile  string
		interactive bool
	)

	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&loadAddr, "load-addr", "0x0000", "program load address (hex or decimal)")
	flagSet.IntVar(&gdbPort, "gdb", 0, "listen for a GDB client on this port")
	flagSet.BoolVar(&useJIT, "jit", false, "enable the native code cache")
	flagSet.BoolVar(&useMonitor, "monitor", false, "start in the machine monitor")
	flagSet.BoolVar(&trace, "trace", false, "print each executed instruction")
	flagSet.StringVar(&scriptFile, "script", "", "run a lua debug script instead of free-running")
	flagSet.BoolVar(&interactive, "term", false, "attach host stdin to the guest console")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: ./virecore [--load-addr 0x0000] [--gdb port] [--jit] [--monitor] [--trace] [--script file.lua] [--term] program.bin")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	filename := flagSet.Arg(0)
	if filename == "" && !useMonitor {
		flagSet.Usage()
		os.Exit(1)
	}

	addr, ok := ParseAddress(loadAddr)
	if !ok {
		fmt.Printf("Error: invalid load address %q\n", loadAddr)
		os.Exit(1)
	}

	machine := NewMachine()
	machine.Init()
	defer machine.Destroy()

	machine.Console().SetOutput(os.Stdout)
	machine.Console().AttachMMIO(machine.mem)
	machine.cpu.Trace = trace

	if filename != "" {
		program, err := os.ReadFile(filename)
		if err != nil {
			fmt.Printf("Error reading %s: %v\n", filename, err)
			os.Exit(1)
		}
		if err := machine.LoadProgram(program, addr); err != nil {
			fmt.Printf("Error loading %s: %v\n", filename, err)
			os.Exit(1)
		}
	}

	if useJIT {
		machine.EnableJIT(true)
	}

	var host *TerminalHost
	if interactive {
		host = NewTerminalHost(machine.Console())
		host.Start()
		defer host.Stop()
	}

	if gdbPort != 0 {
		if err := machine.StartGDB(gdbPort); err != nil {
			fmt.Printf("Error starting GDB stub: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("GDB stub listening on port %d, waiting for a client\n", gdbPort)
		for !machine.Halted() {
			machine.PollGDB()
		}
		machine.StopGDB()
		os.Exit(int(machine.cpu.ExitCode))
	}

	if useMonitor {
		mon := NewMachineMonitor(machine, os.Stdin, os.Stdout)
		if err := mon.Run(); err != nil {
			fmt.Printf("Monitor error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if scriptFile != "" {
		engine := NewScriptEngine(machine, os.Stdout)
		defer engine.Close()
		if err := engine.RunFile(scriptFile); err != nil {
			fmt.Printf("Script error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	code, err := machine.Run()
	if err != nil {
		fmt.Printf("Execution stopped: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}
