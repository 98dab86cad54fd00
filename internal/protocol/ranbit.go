package protocol

import (
	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// RanBit produces a fresh secret share of a uniformly random bit (the
// RandomBoolean preprocessing element, consumed one-per-call per spec.md
// §3). It draws a joint random field element via RAN, squares it with
// MULT, reveals the square, and — since a square root modulo a prime has
// exactly two roots that differ only in sign — derives a bit from the
// revealed square's quadratic character combined with the secret sign
// bit carried in the original RAN value. When the revealed square is
// zero the draw is degenerate and the caller must retry with fresh
// randomness, exactly like INV-RAN's NeedsRetry case.
type RanBit struct {
	participants Participants
	threshold    int

	ran    *Ran
	mult   *Mult
	reveal *Reveal
	phase  ranBitPhase
	r      share.Share
}

type ranBitPhase int

const (
	ranBitGenerating ranBitPhase = iota
	ranBitSquaring
	ranBitRevealing
	ranBitDone
)

// NewRanBit builds a RAN-BIT instance.
func NewRanBit(p Participants, threshold int, m field.Modulus) *RanBit {
	return &RanBit{
		participants: p,
		threshold:    threshold,
		ran:          NewRan(p, threshold, m),
		phase:        ranBitGenerating,
	}
}

func (rb *RanBit) CurrentState() sm.StateTag {
	switch rb.phase {
	case ranBitGenerating:
		return "generating:" + rb.ran.CurrentState()
	case ranBitSquaring:
		return "squaring:" + rb.mult.CurrentState()
	case ranBitRevealing:
		return "revealing:" + rb.reveal.CurrentState()
	default:
		return "done"
	}
}

func (rb *RanBit) Step(inbound *sm.Message) sm.StepResult {
	switch rb.phase {
	case ranBitGenerating:
		result := rb.ran.Step(inbound)
		outputs, failed, kind, terminal := result.Outcome()
		if !terminal {
			return result
		}
		if failed {
			return sm.Failed(kind)
		}
		rb.r, _ = RanOutput(outputs)
		rb.mult = NewMult(rb.participants, rb.threshold, rb.r, rb.r)
		rb.phase = ranBitSquaring
		return rb.mult.Step(nil)

	case ranBitSquaring:
		result := rb.mult.Step(inbound)
		outputs, failed, kind, terminal := result.Outcome()
		if !terminal {
			return result
		}
		if failed {
			return sm.Failed(kind)
		}
		square, _ := MultOutput(outputs)
		rb.reveal = NewReveal(rb.participants, rb.threshold, square)
		rb.phase = ranBitRevealing
		return rb.reveal.Step(nil)

	case ranBitRevealing:
		result := rb.reveal.Step(inbound)
		outputs, failed, kind, terminal := result.Outcome()
		if !terminal {
			return result
		}
		if failed {
			return sm.Failed(kind)
		}
		sq, _ := RevealOutput(outputs)
		rb.phase = ranBitDone
		if sq.IsZero() {
			return sm.Failed(sm.NeedsRetry)
		}
		root, err := sqrtModP(sq)
		if err != nil {
			return sm.Failed(sm.ArithmeticFailure)
		}
		rootInv, err := root.Inv()
		if err != nil {
			return sm.Failed(sm.ArithmeticFailure)
		}
		// (r/root + 1) / 2 is 0 or 1 depending on whether r took the
		// positive or negative square root, without ever revealing r.
		m := sq.Modulus()
		two := field.FromUint64(m, 2)
		twoInv, err := two.Inv()
		if err != nil {
			return sm.Failed(sm.ArithmeticFailure)
		}
		bitShare := rb.r.ScalarMul(rootInv).AddConstant(field.One(m)).ScalarMul(twoInv)
		return sm.Terminated(bitShare)

	default:
		return sm.Failed(sm.ProtocolViolation)
	}
}

// RanBitOutput extracts the resulting boolean share.
func RanBitOutput(outputs sm.Outputs) (share.Share, bool) {
	s, ok := outputs.(share.Share)
	return s, ok
}
