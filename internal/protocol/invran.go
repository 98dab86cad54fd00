package protocol

import (
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// InvRan produces a fresh share of a^-1 without revealing a: it multiplies
// a by a random secret r (consuming one RandomInteger preprocessing
// element reserved by the caller), reveals the product c = a·r, and — if
// c is non-zero — returns r·c^-1 as the new share of a^-1, since
// a^-1 = r·c^-1 (spec.md §4.3). When the revealed c is zero the caller
// must retry with fresh randomness (sm.NeedsRetry), never divide by the
// revealed zero.
//
// InvRan composes two nested state machines — Mult then Reveal — the way
// spec.md §9 asks for "internal sub-states... themselves tagged sums":
// InvRan's own CurrentState reports which delegate is currently driving.
type InvRan struct {
	participants Participants
	threshold    int
	a            share.Share
	r            share.Share

	mult   *Mult
	reveal *Reveal
	phase  invRanPhase
}

type invRanPhase int

const (
	invRanMultiplying invRanPhase = iota
	invRanRevealing
	invRanDone
)

// NewInvRan builds an INV-RAN instance. r must be a share of a value drawn
// uniformly at random and unknown to any single party (the caller obtains
// it from the RandomInteger preprocessing pool).
func NewInvRan(p Participants, threshold int, a, r share.Share) *InvRan {
	return &InvRan{
		participants: p,
		threshold:    threshold,
		a:            a,
		r:            r,
		mult:         NewMult(p, threshold, a, r),
		phase:        invRanMultiplying,
	}
}

func (iv *InvRan) CurrentState() sm.StateTag {
	switch iv.phase {
	case invRanMultiplying:
		return "multiplying:" + iv.mult.CurrentState()
	case invRanRevealing:
		return "revealing:" + iv.reveal.CurrentState()
	default:
		return "done"
	}
}

func (iv *InvRan) Step(inbound *sm.Message) sm.StepResult {
	switch iv.phase {
	case invRanMultiplying:
		result := iv.mult.Step(inbound)
		outputs, failed, kind, terminal := result.Outcome()
		if !terminal {
			return result
		}
		if failed {
			return sm.Failed(kind)
		}
		product, _ := MultOutput(outputs)
		iv.reveal = NewReveal(iv.participants, iv.threshold, product)
		iv.phase = invRanRevealing
		return iv.reveal.Step(nil)

	case invRanRevealing:
		result := iv.reveal.Step(inbound)
		outputs, failed, kind, terminal := result.Outcome()
		if !terminal {
			return result
		}
		if failed {
			return sm.Failed(kind)
		}
		c, _ := RevealOutput(outputs)
		iv.phase = invRanDone
		if c.IsZero() {
			return sm.Failed(sm.NeedsRetry)
		}
		cInv, err := c.Inv()
		if err != nil {
			return sm.Failed(sm.NeedsRetry)
		}
		return sm.Terminated(iv.r.ScalarMul(cInv))

	default:
		return sm.Failed(sm.ProtocolViolation)
	}
}

// InvRanOutput extracts the resulting share.Share of a^-1.
func InvRanOutput(outputs sm.Outputs) (share.Share, bool) {
	s, ok := outputs.(share.Share)
	return s, ok
}
