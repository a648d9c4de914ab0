package client

import "testing"

func TestEscapeMachine_NormalBytesPassThrough(t *testing.T) {
	var m escapeMachine
	for _, b := range []byte("hello") {
		act, out := m.Feed(b)
		if act != actionConsole || out != b {
			t.Fatalf("Feed(%q) = %v,%q; want actionConsole,%q", b, act, out, b)
		}
	}
}

func TestEscapeMachine_EscapeByteIsConsumed(t *testing.T) {
	var m escapeMachine
	act, _ := m.Feed(escapeChar)
	if act != actionNone {
		t.Fatalf("Feed(escapeChar) = %v, want actionNone", act)
	}
	if m.state != escapeArmed {
		t.Fatalf("state = %v, want escapeArmed", m.state)
	}
}

func TestEscapeMachine_CommandBytes(t *testing.T) {
	cases := []struct {
		b    byte
		want action
	}{
		{'q', actionQuit},
		{'P', actionPowerOn},
		{'p', actionPowerOff},
		{'s', actionStatusUpdate},
		{'V', actionVBUSOn},
		{'v', actionVBUSOff},
		{'B', actionSendBreak},
	}
	for _, tc := range cases {
		var m escapeMachine
		m.Feed(escapeChar)
		act, out := m.Feed(tc.b)
		if act != tc.want {
			t.Fatalf("Feed(%q) after escape = %v, want %v", tc.b, act, tc.want)
		}
		if out != 0 {
			t.Fatalf("Feed(%q) returned non-zero byte %v for a non-console action", tc.b, out)
		}
		if m.state != escapeNormal {
			t.Fatalf("state after command byte = %v, want escapeNormal", m.state)
		}
	}
}

func TestEscapeMachine_LiteralEscapeReemitsEscapeChar(t *testing.T) {
	var m escapeMachine
	m.Feed(escapeChar)
	act, out := m.Feed('a')
	if act != actionConsole || out != escapeChar {
		t.Fatalf("Feed('a') after escape = %v,%v; want actionConsole,escapeChar", act, out)
	}
	if m.state != escapeNormal {
		t.Fatalf("state after literal escape = %v, want escapeNormal", m.state)
	}
}

func TestEscapeMachine_UnrecognizedEscapeByteIsSwallowed(t *testing.T) {
	var m escapeMachine
	m.Feed(escapeChar)
	act, out := m.Feed('z')
	if act != actionNone || out != 0 {
		t.Fatalf("Feed('z') after escape = %v,%v; want actionNone,0", act, out)
	}
	if m.state != escapeNormal {
		t.Fatalf("state after unrecognized escape byte = %v, want escapeNormal", m.state)
	}
	// and the machine is back to forwarding console data normally.
	act, out = m.Feed('x')
	if act != actionConsole || out != 'x' {
		t.Fatalf("Feed('x') after unrecognized escape = %v,%q; want actionConsole,'x'", act, out)
	}
}
