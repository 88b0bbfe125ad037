package errguard

import "sort"

// ClientID identifies a client for badness scoring. The bridge uses the
// client's compositor-protocol connection id.
type ClientID uint32

// quintile buckets, expressed as the upper bound of each bucket's share of
// total allocated pixels.
var quintileBounds = [...]float64{0.05, 0.10, 0.20, 0.50, 1.01}

// OOMPolicy buckets clients by a "badness" score (pixels allocated on their
// behalf) into quintiles of the total, and queues every client in the
// highest populated bucket for disconnection. The queue is drained at the
// next loop tick rather than inline, so the error handler that triggered
// the policy never reenters client teardown.
type OOMPolicy struct {
	pending       map[ClientID]bool
	disconnecting map[ClientID]bool
}

// NewOOMPolicy returns an empty policy.
func NewOOMPolicy() *OOMPolicy {
	return &OOMPolicy{
		pending:       make(map[ClientID]bool),
		disconnecting: make(map[ClientID]bool),
	}
}

// Score is one client's badness input to HandleAllocFailed.
type Score struct {
	Client ClientID
	Pixels uint64
}

// HandleAllocFailed is called when the underlying server signals an
// allocation failure. It computes each client's share of the total pixel
// count, buckets clients into quintiles, and queues every client in the
// highest populated bucket for disconnection. It returns the clients
// queued by this call.
func (p *OOMPolicy) HandleAllocFailed(scores []Score) []ClientID {
	if len(scores) == 0 {
		return nil
	}

	var total uint64
	for _, s := range scores {
		total += s.Pixels
	}
	if total == 0 {
		return nil
	}

	buckets := make([][]ClientID, len(quintileBounds))
	for _, s := range scores {
		share := float64(s.Pixels) / float64(total)
		idx := sort.SearchFloat64s(quintileBounds[:], share)
		if idx >= len(quintileBounds) {
			idx = len(quintileBounds) - 1
		}
		buckets[idx] = append(buckets[idx], s.Client)
	}

	for i := len(buckets) - 1; i >= 0; i-- {
		if len(buckets[i]) == 0 {
			continue
		}
		queued := make([]ClientID, 0, len(buckets[i]))
		for _, c := range buckets[i] {
			if p.pending[c] || p.disconnecting[c] {
				continue
			}
			p.pending[c] = true
			queued = append(queued, c)
		}
		return queued
	}
	return nil
}

// DrainQueue is called once per loop tick. It moves every pending client
// into the disconnecting set (so later bad-drawable teardown errors are
// swallowed, see IsDisconnecting) and returns the clients to actually
// disconnect now.
func (p *OOMPolicy) DrainQueue() []ClientID {
	if len(p.pending) == 0 {
		return nil
	}
	out := make([]ClientID, 0, len(p.pending))
	for c := range p.pending {
		out = append(out, c)
		p.disconnecting[c] = true
		delete(p.pending, c)
	}
	return out
}

// IsDisconnecting reports whether c has been queued (or already
// disconnected) by a prior allocation failure, so that subsequent
// resource-not-found errors arising from its teardown can be swallowed
// rather than surfaced.
func (p *OOMPolicy) IsDisconnecting(c ClientID) bool {
	return p.disconnecting[c] || p.pending[c]
}

// Forget removes c from tracking once its teardown has fully completed.
func (p *OOMPolicy) Forget(c ClientID) {
	delete(p.disconnecting, c)
	delete(p.pending, c)
}
