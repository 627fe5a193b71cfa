package lounge

import "testing"

func TestTryAdmitExcludesConcurrentBinding(t *testing.T) {
	r := NewRegistry()

	release, ok := r.TryAdmit("SERVER", "ws1")
	if !ok {
		t.Fatal("expected first admission to succeed")
	}

	if _, ok := r.TryAdmit("SERVER", "ws1"); ok {
		t.Fatal("expected second admission for the same (role, name) to be refused")
	}

	release()

	if _, ok := r.TryAdmit("SERVER", "ws1"); !ok {
		t.Fatal("expected admission to succeed again after release")
	}
}

func TestTryAdmitIsIndependentPerRoleAndName(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.TryAdmit("SERVER", "ws1"); !ok {
		t.Fatal("expected admission to succeed")
	}
	if _, ok := r.TryAdmit("CLIENT", "ws1"); !ok {
		t.Fatal("expected a different role to admit independently")
	}
	if _, ok := r.TryAdmit("SERVER", "ws2"); !ok {
		t.Fatal("expected a different workspace name to admit independently")
	}
}
