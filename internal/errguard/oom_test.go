package errguard

import "testing"

func TestOOMPolicy_HandleAllocFailed_QueuesHighestBucketOnly(t *testing.T) {
	p := NewOOMPolicy()

	const (
		clientA ClientID = 1
		clientB ClientID = 2
		clientC ClientID = 3
	)

	queued := p.HandleAllocFailed([]Score{
		{Client: clientA, Pixels: 10},
		{Client: clientB, Pixels: 20},
		{Client: clientC, Pixels: 170},
	})

	if len(queued) != 1 || queued[0] != clientC {
		t.Fatalf("queued: got %v, want [%v]", queued, clientC)
	}
	if p.IsDisconnecting(clientA) || p.IsDisconnecting(clientB) {
		t.Errorf("A and B should not be queued for disconnect")
	}
	if !p.IsDisconnecting(clientC) {
		t.Errorf("C should be queued for disconnect")
	}
}

func TestOOMPolicy_DrainQueue_MovesToDisconnecting(t *testing.T) {
	p := NewOOMPolicy()
	p.HandleAllocFailed([]Score{{Client: 1, Pixels: 100}})

	drained := p.DrainQueue()
	if len(drained) != 1 || drained[0] != ClientID(1) {
		t.Fatalf("drained: got %v", drained)
	}
	if !p.IsDisconnecting(1) {
		t.Errorf("client should remain marked disconnecting after drain")
	}
	if drained2 := p.DrainQueue(); len(drained2) != 0 {
		t.Errorf("second drain should be empty, got %v", drained2)
	}
}

func TestOOMPolicy_Forget(t *testing.T) {
	p := NewOOMPolicy()
	p.HandleAllocFailed([]Score{{Client: 1, Pixels: 100}})
	p.DrainQueue()
	p.Forget(1)

	if p.IsDisconnecting(1) {
		t.Errorf("client should no longer be tracked after Forget")
	}
}
