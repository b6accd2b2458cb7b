// gdb_stub_test.go - Remote protocol tests over a loopback socket.

package main

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// gdbClient is the test's side of the wire: raw packet writes, framed
// reply reads.
type gdbClient struct {
	conn net.Conn
}

func newGDBPair(t *testing.T, m *Machine) (*GDBStub, *gdbClient) {
	t.Helper()
	stub, err := NewGDBStub(m, 0)
	if err != nil {
		t.Fatalf("NewGDBStub: %v", err)
	}
	t.Cleanup(stub.Stop)
	conn, err := net.Dial("tcp", stub.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return stub, &gdbClient{conn: conn}
}

// sendPacket frames and writes one packet without waiting for a reply.
func (c *gdbClient) sendPacket(t *testing.T, payload string) {
	t.Helper()
	data := gdbEscape([]byte(payload))
	pkt := append([]byte{'$'}, data...)
	pkt = append(pkt, '#')
	pkt = append(pkt, gdbChecksum(data)...)
	if _, err := c.conn.Write(pkt); err != nil {
		t.Fatalf("write packet: %v", err)
	}
}

// readReply skips acks and returns the next unescaped reply payload.
func (c *gdbClient) readReply(t *testing.T) string {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	readByte := func() byte {
		var b [1]byte
		if _, err := io.ReadFull(c.conn, b[:]); err != nil {
			t.Fatalf("read reply: %v", err)
		}
		return b[0]
	}
	for {
		if readByte() == '$' {
			break
		}
	}
	var payload []byte
	for {
		b := readByte()
		if b == '#' {
			break
		}
		payload = append(payload, b)
	}
	readByte() // checksum
	readByte()
	return string(gdbUnescape(payload))
}

// exchange writes a packet, services the stub, and reads the reply.
func (c *gdbClient) exchange(t *testing.T, stub *GDBStub, payload string) string {
	t.Helper()
	c.sendPacket(t, payload)
	stub.Poll()
	return c.readReply(t)
}

// TestGDBSupportedAndStopState: the opening handshake queries.
func TestGDBSupportedAndStopState(t *testing.T) {
	m := newTestMachine()
	stub, c := newGDBPair(t, m)

	reply := c.exchange(t, stub, "qSupported:multiprocess+;swbreak+")
	if !strings.Contains(reply, "QStartNoAckMode+") || !strings.Contains(reply, "PacketSize=") {
		t.Fatalf("qSupported reply %q", reply)
	}
	if reply := c.exchange(t, stub, "?"); reply != "S05" {
		t.Fatalf("? reply %q", reply)
	}
	if reply := c.exchange(t, stub, "qAttached"); reply != "1" {
		t.Fatalf("qAttached reply %q", reply)
	}
	if reply := c.exchange(t, stub, "qC"); reply != "QC1" {
		t.Fatalf("qC reply %q", reply)
	}
}

// TestGDBRegisterPacket reads all twenty registers and spot-checks
// the little-endian layout.
func TestGDBRegisterPacket(t *testing.T) {
	m := newTestMachine()
	m.cpu.Regs[1] = 0x11223344
	m.SetPC(0xAABB)
	stub, c := newGDBPair(t, m)

	reply := c.exchange(t, stub, "g")
	if len(reply) != GDB_NUM_REGS*8 {
		t.Fatalf("g reply length %d, expected %d", len(reply), GDB_NUM_REGS*8)
	}
	if got := reply[8:16]; got != "44332211" {
		t.Fatalf("r1 field %q", got)
	}
	if got := reply[16*8 : 16*8+8]; got != "bbaa0000" {
		t.Fatalf("pc field %q", got)
	}
}

// TestGDBSingleRegisterReadWrite uses p and P on r2 and the pc.
func TestGDBSingleRegisterReadWrite(t *testing.T) {
	m := newTestMachine()
	m.cpu.Regs[2] = 0xCAFE
	stub, c := newGDBPair(t, m)

	if reply := c.exchange(t, stub, "p2"); reply != "feca0000" {
		t.Fatalf("p2 reply %q", reply)
	}
	if reply := c.exchange(t, stub, "P10=78563412"); reply != "OK" {
		t.Fatalf("P reply %q", reply)
	}
	if m.PC() != 0x12345678 {
		t.Fatalf("PC = $%08X after P", m.PC())
	}
	if reply := c.exchange(t, stub, "pFF"); reply != "E01" {
		t.Fatalf("out-of-range p reply %q", reply)
	}
}

// TestGDBMemoryReadWrite round-trips heap bytes through m and M.
func TestGDBMemoryReadWrite(t *testing.T) {
	m := newTestMachine()
	stub, c := newGDBPair(t, m)

	if reply := c.exchange(t, stub, "M4000,4:deadbeef"); reply != "OK" {
		t.Fatalf("M reply %q", reply)
	}
	if reply := c.exchange(t, stub, "m4000,4"); reply != "deadbeef" {
		t.Fatalf("m reply %q", reply)
	}
	// The unclaimed MMIO window reports an error, not garbage.
	if reply := c.exchange(t, stub, "mc000,4"); reply != "E02" {
		t.Fatalf("unmapped m reply %q", reply)
	}
}

// TestGDBBreakpointAndContinue plants a breakpoint, continues to it,
// and checks the trap report and the paused pc.
func TestGDBBreakpointAndContinue(t *testing.T) {
	m := newTestMachine()
	loadWords(t, m, 0,
		EncodeI(LOADI, 1, 1),
		EncodeI(LOADI, 2, 2),
		EncodeR(ADD, 3, 1, 2),
		EncodeR(HALT, 0, 0, 0),
	)
	stub, c := newGDBPair(t, m)

	if reply := c.exchange(t, stub, "Z0,8,4"); reply != "OK" {
		t.Fatalf("Z0 reply %q", reply)
	}
	if reply := c.exchange(t, stub, "c"); reply != "S05" {
		t.Fatalf("continue reply %q", reply)
	}
	if m.PC() != 8 {
		t.Fatalf("paused at $%04X, expected the breakpoint", m.PC())
	}
	if reply := c.exchange(t, stub, "z0,8,4"); reply != "OK" {
		t.Fatalf("z0 reply %q", reply)
	}
	// Continuing past the removed breakpoint runs to the halt.
	if reply := c.exchange(t, stub, "c"); reply != "W00" {
		t.Fatalf("final continue reply %q", reply)
	}
}

// TestGDBStepReportsTrap steps one instruction with s.
func TestGDBStepReportsTrap(t *testing.T) {
	m := newTestMachine()
	loadWords(t, m, 0,
		EncodeI(LOADI, 1, 1),
		EncodeR(HALT, 0, 0, 0),
	)
	m.SetSingleStep(true)
	stub, c := newGDBPair(t, m)

	if reply := c.exchange(t, stub, "s"); reply != "S05" {
		t.Fatalf("s reply %q", reply)
	}
	if m.PC() != 4 {
		t.Fatalf("PC = $%04X after step", m.PC())
	}
}

// TestGDBFaultSignals maps fault kinds onto signal numbers: SIGFPE
// for divide by zero.
func TestGDBFaultSignals(t *testing.T) {
	m := newTestMachine()
	loadWords(t, m, 0,
		EncodeI(LOADI, 1, 1),
		EncodeR(DIV, 3, 1, 2), // r2 is zero
	)
	stub, c := newGDBPair(t, m)

	if reply := c.exchange(t, stub, "c"); reply != "S08" {
		t.Fatalf("fault reply %q, expected SIGFPE", reply)
	}
}

// TestGDBExitCodeInW: a SYS_EXIT code rides in the W packet.
func TestGDBExitCodeInW(t *testing.T) {
	m := newTestMachine()
	loadWords(t, m, 0, syscallProgram(SYS_EXIT, 7, 0)...)
	stub, c := newGDBPair(t, m)

	if reply := c.exchange(t, stub, "c"); reply != "W07" {
		t.Fatalf("exit reply %q", reply)
	}
	if reply := c.exchange(t, stub, "?"); reply != "W07" {
		t.Fatalf("post-exit ? reply %q", reply)
	}
}

// TestGDBInterruptWhileStopped: a raw 0x03 byte is answered with a
// trap report.
func TestGDBInterruptWhileStopped(t *testing.T) {
	m := newTestMachine()
	stub, c := newGDBPair(t, m)

	// Prime the connection.
	c.exchange(t, stub, "?")
	if _, err := c.conn.Write([]byte{0x03}); err != nil {
		t.Fatalf("write interrupt: %v", err)
	}
	stub.Poll()
	if reply := c.readReply(t); reply != "S05" {
		t.Fatalf("interrupt reply %q", reply)
	}
}

// TestGDBNoAckMode switches modes and keeps exchanging packets.
func TestGDBNoAckMode(t *testing.T) {
	m := newTestMachine()
	stub, c := newGDBPair(t, m)

	if reply := c.exchange(t, stub, "QStartNoAckMode"); reply != "OK" {
		t.Fatalf("QStartNoAckMode reply %q", reply)
	}
	// The final ack from our side arms the mode; traffic keeps working.
	if _, err := c.conn.Write([]byte{'+'}); err != nil {
		t.Fatalf("write ack: %v", err)
	}
	if reply := c.exchange(t, stub, "?"); reply != "S05" {
		t.Fatalf("post-switch ? reply %q", reply)
	}
}

// TestGDBKillHaltsMachine: k stops the guest and drops the client.
func TestGDBKillHaltsMachine(t *testing.T) {
	m := newTestMachine()
	stub, c := newGDBPair(t, m)

	c.exchange(t, stub, "?")
	c.sendPacket(t, "k")
	stub.Poll()
	if !m.Halted() {
		t.Fatal("machine not halted by k")
	}
}
