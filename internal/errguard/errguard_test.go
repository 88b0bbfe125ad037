package errguard

import "testing"

func TestGuard_Uncatch_NoErrorCaptured(t *testing.T) {
	g := NewGuard()
	g.Catch(10)

	if _, ok := g.Uncatch(); ok {
		t.Errorf("expected no error captured")
	}
}

func TestGuard_Deliver_WithinWindow(t *testing.T) {
	g := NewGuard()
	g.Catch(10)

	if swallowed := g.Deliver(Error{Sequence: 9, Code: 5}); swallowed {
		t.Errorf("error before the catch window should not be swallowed")
	}

	want := Error{Sequence: 11, Code: 3, Detail: "bad-drawable"}
	if swallowed := g.Deliver(want); !swallowed {
		t.Errorf("error within the catch window should be swallowed")
	}

	got, ok := g.Uncatch()
	if !ok {
		t.Fatalf("expected a captured error")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestGuard_Deliver_InactiveGuardDoesNotSwallow(t *testing.T) {
	g := NewGuard()
	if swallowed := g.Deliver(Error{Sequence: 1}); swallowed {
		t.Errorf("inactive guard should not swallow errors")
	}
}
