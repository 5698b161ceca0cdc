package machine

import (
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	m := New(Config{}, nil)
	if m.Port() != "/dev/ttyUSB0" {
		t.Fatalf("default port: %q", m.Port())
	}
	if m.Baudrate() != 9600 {
		t.Fatalf("default baudrate: %d", m.Baudrate())
	}
	if m.Connected() {
		t.Fatalf("machine must start disconnected")
	}
}

func TestNewKeepsExplicitConfig(t *testing.T) {
	m := New(Config{Port: "/dev/ttyS1", Baudrate: 19200, NodeAddress: 2, Timeout: 250 * time.Millisecond}, nil)
	if m.Port() != "/dev/ttyS1" || m.Baudrate() != 19200 {
		t.Fatalf("explicit config lost: %s %d", m.Port(), m.Baudrate())
	}
}

func TestCommandValidationBeforeSerialIO(t *testing.T) {
	m := New(Config{Port: "/dev/null"}, nil)

	// invalid group and coffee type are rejected without touching the line
	if err := m.DeliverCoffee(0, SingleShort); err == nil {
		t.Errorf("group 0 must be rejected")
	}
	if err := m.DeliverCoffee(MaxGroups+1, SingleShort); err == nil {
		t.Errorf("group beyond register map must be rejected")
	}
	if err := m.DeliverCoffee(1, "espresso"); err == nil {
		t.Errorf("unknown coffee type must be rejected")
	}
	if err := m.DeliverCoffee(1, Purge); err == nil {
		t.Errorf("purge must go through StartPurge, not DeliverCoffee")
	}
	if err := m.StopDelivery(0); err == nil {
		t.Errorf("stop on group 0 must be rejected")
	}
	if err := m.StartPurge(MaxGroups + 1); err == nil {
		t.Errorf("purge on invalid group must be rejected")
	}
}
