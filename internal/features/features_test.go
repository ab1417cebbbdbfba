package features

import "testing"

func TestNewDefaultManager(t *testing.T) {
	m := NewDefaultManager(map[string]bool{AutoBlock: false})

	if m.IsEnabled(AutoBlock) {
		t.Error("auto_block should be disabled")
	}
	for _, name := range []string{WebhookDedupe, Notifications, DeliverySweep} {
		if !m.IsEnabled(name) {
			t.Errorf("%s should default to enabled", name)
		}
	}
	if m.IsEnabled("does_not_exist") {
		t.Error("unknown flags should be disabled")
	}
}

func TestSetAndList(t *testing.T) {
	m := NewDefaultManager(nil)

	m.Disable(Notifications)
	if m.IsEnabled(Notifications) {
		t.Error("Disable did not take effect")
	}
	m.Enable(Notifications)
	if !m.IsEnabled(Notifications) {
		t.Error("Enable did not take effect")
	}
	if m.Set("unknown", true) {
		t.Error("Set should report false for unknown flags")
	}

	list := m.List()
	if len(list) != 4 {
		t.Fatalf("List() len = %d, want 4", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Name > list[i].Name {
			t.Errorf("List() not sorted: %v", list)
		}
	}
}

func TestNilManagerEnablesEverything(t *testing.T) {
	var m *Manager
	if !m.IsEnabled(AutoBlock) {
		t.Error("nil manager should report flags as enabled")
	}
}
