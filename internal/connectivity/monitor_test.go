package connectivity_test

import (
	"testing"

	"go.uber.org/zap"

	"github.com/milkbook/ledger/internal/connectivity"
)

func TestMonitor_FiresOnReconnectOnly(t *testing.T) {
	var changes []bool
	m := connectivity.New(true, zap.NewNop(), connectivity.WithChangeHook(func(v bool) { changes = append(changes, v) }))

	fired := 0
	remove := m.OnOnline(func() { fired++ })

	m.SetOnline(true) // no transition
	m.SetOnline(false)
	if m.IsOnline() {
		t.Fatal("expected offline")
	}
	if fired != 0 {
		t.Fatalf("expected no online event on going offline, got %d", fired)
	}

	m.SetOnline(true)
	m.SetOnline(true)
	if fired != 1 {
		t.Fatalf("expected exactly one online event, got %d", fired)
	}

	remove()
	remove()
	m.SetOnline(false)
	m.SetOnline(true)
	if fired != 1 {
		t.Fatalf("expected removed listener to stay silent, got %d", fired)
	}

	if len(changes) != 4 {
		t.Fatalf("expected 4 transitions, got %v", changes)
	}
}

func TestMonitor_ListenerPanicIsolated(t *testing.T) {
	m := connectivity.New(false, zap.NewNop())
	m.OnOnline(func() { panic("boom") })
	ok := false
	m.OnOnline(func() { ok = true })

	m.SetOnline(true)
	if !ok {
		t.Fatal("expected second listener to run")
	}
}

func TestMonitor_Override(t *testing.T) {
	m := connectivity.New(true, zap.NewNop())
	fired := 0
	m.OnOnline(func() { fired++ })

	off := false
	m.Override(&off)
	if m.IsOnline() || !m.Overridden() {
		t.Fatal("expected forced offline")
	}

	m.SetOnline(true) // probe result is ignored while overridden
	if m.IsOnline() {
		t.Fatal("expected override to win over probe")
	}

	m.Override(nil)
	if !m.IsOnline() || m.Overridden() {
		t.Fatal("expected probe state after clearing override")
	}
	if fired != 1 {
		t.Fatalf("expected one online event when override cleared, got %d", fired)
	}
}
