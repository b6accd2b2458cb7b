// gdb_stub.go - GDB remote serial protocol stub over TCP.
//
// One client at a time. The stub never runs its own goroutine: the
// owner of the machine calls Poll, which accepts, reads and answers
// packets with short socket deadlines so it returns quickly when the
// wire is idle. Register packets carry r0-r15, pc, sp, fp and flags
// in that order, little-endian hex words.

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
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	GDB_NUM_REGS = NUM_REGISTERS + 4

	gdbPollWait   = time.Millisecond
	gdbPacketWait = 100 * time.Millisecond
	gdbRunQuantum = 4096 // steps between interrupt checks while continuing
)

func gdbEscape(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for _, c := range p {
		if c == '#' || c == '$' || c == '}' {
			out = append(out, '}', c^0x20)
		} else {
			out = append(out, c)
		}
	}
	return out
}

func gdbUnescape(p []byte) []byte {
	out := make([]byte, 0, len(p))
	escaped := false
	for _, c := range p {
		if escaped {
			out = append(out, c^0x20)
			escaped = false
		} else if c == '}' {
			escaped = true
		} else {
			out = append(out, c)
		}
	}
	return out
}

func gdbChecksum(p []byte) []byte {
	chk := 0
	for _, c := range p {
		chk = (chk + int(c)) % 256
	}
	return []byte(fmt.Sprintf("%02x", chk))
}

// gdbHex32 formats a word as little-endian hex, the byte order the
// protocol expects for register values.
func gdbHex32(v uint32) string {
	return fmt.Sprintf("%02x%02x%02x%02x",
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func gdbParse32(s string) (uint32, bool) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 4 {
		return 0, false
	}
	return uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24, true
}

// GDBStub speaks the remote serial protocol to a single client.
type GDBStub struct {
	m        *Machine
	listener *net.TCPListener
	conn     net.Conn
	in       *bufio.Reader

	noAck        bool
	noAckPending bool
}

func NewGDBStub(m *Machine, port int) (*GDBStub, error) {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, errors.Wrap(err, "gdb stub listen")
	}
	return &GDBStub{m: m, listener: l.(*net.TCPListener)}, nil
}

// Addr returns the listen address, useful when port 0 was requested.
func (s *GDBStub) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *GDBStub) Stop() {
	s.disconnect()
	s.listener.Close()
}

func (s *GDBStub) disconnect() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.in = nil
	}
}

// Poll accepts a pending client and services whatever packets have
// arrived. It returns once the wire goes idle.
func (s *GDBStub) Poll() {
	if s.conn == nil {
		s.listener.SetDeadline(time.Now().Add(gdbPollWait))
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.conn = conn
		s.in = bufio.NewReader(conn)
		s.noAck = false
		s.noAckPending = false
	}
	for {
		pkt, brk, ok := s.readPacket()
		if !ok {
			return
		}
		if brk {
			// ^C while stopped: acknowledge with a trap report.
			s.m.RequestBreak()
			s.send("S05")
			continue
		}
		if err := s.dispatch(pkt); err != nil {
			s.disconnect()
			return
		}
	}
}

// readPacket consumes acks and returns the next unescaped payload.
// ok=false means the wire is idle or the client went away; brk=true
// reports an interrupt byte instead of a packet.
func (s *GDBStub) readPacket() (pkt []byte, brk, ok bool) {
	s.conn.SetReadDeadline(time.Now().Add(gdbPollWait))
	for {
		b, err := s.in.ReadByte()
		if err != nil {
			if ne, isNet := err.(net.Error); isNet && ne.Timeout() {
				return nil, false, false
			}
			s.disconnect()
			return nil, false, false
		}
		switch b {
		case '+':
			if s.noAckPending {
				s.noAck = true
				s.noAckPending = false
			}
		case '-':
			// No retransmit queue; the client will re-issue.
		case 0x03:
			return nil, true, true
		case '$':
			return s.readBody()
		}
	}
}

func (s *GDBStub) readBody() (pkt []byte, brk, ok bool) {
	// The start byte arrived, so the rest follows promptly.
	s.conn.SetReadDeadline(time.Now().Add(gdbPacketWait))
	payload, err := s.in.ReadBytes('#')
	if err != nil {
		s.disconnect()
		return nil, false, false
	}
	payload = payload[:len(payload)-1]
	var chk [2]byte
	for i := range chk {
		chk[i], err = s.in.ReadByte()
		if err != nil {
			s.disconnect()
			return nil, false, false
		}
	}
	good := string(gdbChecksum(payload)) == strings.ToLower(string(chk[:]))
	if !s.noAck {
		if good {
			s.conn.Write([]byte{'+'})
		} else {
			s.conn.Write([]byte{'-'})
		}
	}
	if !good {
		return nil, false, false
	}
	return gdbUnescape(payload), false, true
}

func (s *GDBStub) send(payload string) error {
	data := gdbEscape([]byte(payload))
	pkt := make([]byte, 0, len(data)+4)
	pkt = append(pkt, '$')
	pkt = append(pkt, data...)
	pkt = append(pkt, '#')
	pkt = append(pkt, gdbChecksum(data)...)
	s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, err := s.conn.Write(pkt)
	return errors.Wrap(err, "gdb stub write")
}

// regRead maps protocol register numbers onto the CPU.
func (s *GDBStub) regRead(i int) uint32 {
	cpu := s.m.cpu
	switch {
	case i < NUM_REGISTERS:
		return cpu.Regs[i]
	case i == NUM_REGISTERS:
		return cpu.PC
	case i == NUM_REGISTERS+1:
		return cpu.SP
	case i == NUM_REGISTERS+2:
		return cpu.FP
	default:
		return cpu.Flags
	}
}

func (s *GDBStub) regWrite(i int, v uint32) {
	cpu := s.m.cpu
	switch {
	case i < NUM_REGISTERS:
		cpu.Regs[i] = v
	case i == NUM_REGISTERS:
		cpu.PC = v
	case i == NUM_REGISTERS+1:
		cpu.SP = v
	case i == NUM_REGISTERS+2:
		cpu.FP = v
	default:
		cpu.Flags = v
	}
}

// stopReply maps an execution outcome onto a protocol stop packet:
// W for clean exit, SIGSEGV/SIGFPE/SIGILL for faults, SIGTRAP for
// everything the debugger paused.
func (s *GDBStub) stopReply(res StepResult) string {
	switch res {
	case StepHalted:
		return fmt.Sprintf("W%02x", byte(s.m.cpu.ExitCode))
	case StepFault:
		err := s.m.cpu.LastFault()
		sig := 5
		var memf *MemoryFault
		var arf *ArithmeticFault
		var opf *InvalidOpcodeFault
		switch {
		case errors.As(err, &memf):
			sig = 11
		case errors.As(err, &arf):
			sig = 8
		case errors.As(err, &opf):
			sig = 4
		}
		return fmt.Sprintf("S%02x", sig)
	default:
		return "S05"
	}
}

// resume steps the machine until it stops, checking the wire for an
// interrupt byte between quanta.
func (s *GDBStub) resume() error {
	for {
		for i := 0; i < gdbRunQuantum; i++ {
			res := s.m.Step()
			if res != StepContinue {
				return s.send(s.stopReply(res))
			}
		}
		if s.checkInterrupt() {
			return s.send("S05")
		}
	}
}

func (s *GDBStub) checkInterrupt() bool {
	s.conn.SetReadDeadline(time.Now().Add(gdbPollWait))
	b, err := s.in.Peek(1)
	if err != nil || len(b) == 0 {
		return false
	}
	if b[0] == 0x03 {
		s.in.Discard(1)
		return true
	}
	return false
}

func parseAddrLen(sp string) (uint32, int, bool) {
	parts := strings.SplitN(sp, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	addr, err1 := strconv.ParseUint(parts[0], 16, 32)
	n, err2 := strconv.ParseUint(parts[1], 16, 24)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return uint32(addr), int(n), true
}

func (s *GDBStub) dispatch(pkt []byte) error {
	if len(pkt) == 0 {
		return s.send("")
	}
	b, rest := pkt[0], string(pkt[1:])
	switch b {
	case 'q':
		return s.handleQuery(rest)
	case 'Q':
		if rest == "StartNoAckMode" {
			s.noAckPending = true
			return s.send("OK")
		}
		return s.send("")

	case '?':
		if s.m.Halted() {
			return s.send(s.stopReply(StepHalted))
		}
		return s.send("S05")

	case 'g':
		var sb strings.Builder
		for i := 0; i < GDB_NUM_REGS; i++ {
			sb.WriteString(gdbHex32(s.regRead(i)))
		}
		return s.send(sb.String())

	case 'G':
		if len(rest) < GDB_NUM_REGS*8 {
			return s.send("E01")
		}
		for i := 0; i < GDB_NUM_REGS; i++ {
			v, ok := gdbParse32(rest[i*8 : i*8+8])
			if !ok {
				return s.send("E01")
			}
			s.regWrite(i, v)
		}
		return s.send("OK")

	case 'p':
		i, err := strconv.ParseUint(rest, 16, 8)
		if err != nil || int(i) >= GDB_NUM_REGS {
			return s.send("E01")
		}
		return s.send(gdbHex32(s.regRead(int(i))))

	case 'P':
		parts := strings.SplitN(rest, "=", 2)
		if len(parts) != 2 {
			return s.send("E01")
		}
		i, err := strconv.ParseUint(parts[0], 16, 8)
		v, ok := gdbParse32(parts[1])
		if err != nil || !ok || int(i) >= GDB_NUM_REGS {
			return s.send("E01")
		}
		s.regWrite(int(i), v)
		return s.send("OK")

	case 'm':
		addr, n, ok := parseAddrLen(rest)
		if !ok {
			return s.send("E01")
		}
		data, err := s.m.ReadMemory(addr, n)
		if err != nil {
			return s.send("E02")
		}
		return s.send(hex.EncodeToString(data))

	case 'M':
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			return s.send("E01")
		}
		addr, n, ok := parseAddrLen(parts[0])
		if !ok {
			return s.send("E01")
		}
		data, err := hex.DecodeString(parts[1])
		if err != nil || len(data) != n {
			return s.send("E01")
		}
		if err := s.m.WriteMemory(addr, data); err != nil {
			return s.send("E02")
		}
		return s.send("OK")

	case 'Z', 'z':
		args := strings.Split(rest, ",")
		if len(args) != 3 || (args[0] != "0" && args[0] != "1") {
			return s.send("")
		}
		addr, err := strconv.ParseUint(args[1], 16, 32)
		if err != nil {
			return s.send("E01")
		}
		if b == 'Z' {
			s.m.EnableDebug(true)
			if err := s.m.AddBreakpoint(uint32(addr)); err != nil {
				return s.send("E02")
			}
		} else {
			s.m.RemoveBreakpoint(uint32(addr))
		}
		return s.send("OK")

	case 'c':
		if rest != "" {
			if a, err := strconv.ParseUint(rest, 16, 32); err == nil {
				s.m.SetPC(uint32(a))
			}
		}
		return s.resume()

	case 's':
		if rest != "" {
			if a, err := strconv.ParseUint(rest, 16, 32); err == nil {
				s.m.SetPC(uint32(a))
			}
		}
		return s.send(s.stopReply(s.m.Step()))

	case 'H', 'T':
		return s.send("OK")

	case 'D':
		s.send("OK")
		return errors.New("client detached")

	case 'k':
		s.m.cpu.Halted = true
		return errors.New("client killed session")
	}
	return s.send("")
}

func (s *GDBStub) handleQuery(rest string) error {
	cmd := rest
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		cmd = rest[:i]
	}
	switch cmd {
	case "Supported":
		return s.send("PacketSize=4000;QStartNoAckMode+;swbreak+")
	case "Attached":
		return s.send("1")
	case "C":
		return s.send("QC1")
	case "fThreadInfo":
		return s.send("m1")
	case "sThreadInfo":
		return s.send("l")
	case "Symbol":
		return s.send("OK")
	case "TStatus":
		return s.send("T0")
	}
	return s.send("")
}
