package protocol

import (
	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// maskedTruncation is the shared shape behind MODULO2m, TRUNC and TRUNCPR
// (spec.md §4.3: "MODULO2m/TRUNC use a public m"): the operand is masked
// additively with a preprocessed random r = rLow + 2^m*rHigh, the masked
// value is revealed (m is public, so extracting its low m bits is a local
// operation on a public value), and the low/high parts are recombined
// locally against the preprocessed shares of rLow and rHigh.
type maskedTruncation struct {
	participants Participants
	threshold    int
	m            uint
	pow2m        field.Element
	rLow         share.Share
	rHigh        share.Share
	masked       share.Share

	reveal  *Reveal
	wantMod bool // true: return the low m bits (MODULO2m); false: return the shift (TRUNC/TRUNCPR)
}

func newMaskedTruncation(p Participants, threshold int, a share.Share, m uint, rLow, rHigh share.Share, wantMod bool) *maskedTruncation {
	mod := a.Value.Modulus()
	pow2m := field.FromUint64(mod, 1<<m)
	masked := a.Add(rHigh.ScalarMul(pow2m)).Add(rLow)
	return &maskedTruncation{
		participants: p, threshold: threshold, m: m, pow2m: pow2m,
		rLow: rLow, rHigh: rHigh, masked: masked, wantMod: wantMod,
	}
}

func (t *maskedTruncation) CurrentState() sm.StateTag {
	if t.reveal == nil {
		return "masking"
	}
	return "revealing:" + t.reveal.CurrentState()
}

func (t *maskedTruncation) Step(inbound *sm.Message) sm.StepResult {
	if t.reveal == nil {
		t.reveal = NewReveal(t.participants, t.threshold, t.masked)
		return t.reveal.Step(nil)
	}
	result := t.reveal.Step(inbound)
	outputs, failed, kind, terminal := result.Outcome()
	if !terminal {
		return result
	}
	if failed {
		return sm.Failed(kind)
	}
	c, _ := RevealOutput(outputs)
	self := t.rLow.Party
	mod := c.Modulus()

	// Extract the public low m bits of c bit-by-bit: the Element's own
	// representative is always reduced into [0,P), so reading individual
	// bits off it is safe without wraparound for the modest m values
	// (≤ the field's bit length) TRUNC and MODULO2m are defined for.
	low := field.Zero(mod)
	weight := field.One(mod)
	two := field.FromUint64(mod, 2)
	for i := uint(0); i < t.m; i++ {
		if c.Bit(int(i)) == 1 {
			low = low.Add(weight)
		}
		weight = weight.Mul(two)
	}

	if t.wantMod {
		return sm.Terminated(share.Share{Party: self, Value: low.Sub(t.rLow.Value)})
	}

	pow2mInv, err := t.pow2m.Inv()
	if err != nil {
		return sm.Failed(sm.ArithmeticFailure)
	}
	shifted := c.Sub(low).Mul(pow2mInv)
	return sm.Terminated(share.Share{Party: self, Value: shifted.Sub(t.rHigh.Value)})
}

// Modulo2m computes a mod 2^m for a public m, consuming one preprocessed
// (rLow, rHigh) pair from the Modulo preprocessing element.
type Modulo2m struct{ *maskedTruncation }

func NewModulo2m(p Participants, threshold int, a share.Share, m uint, rLow, rHigh share.Share) *Modulo2m {
	return &Modulo2m{newMaskedTruncation(p, threshold, a, m, rLow, rHigh, true)}
}

// Trunc computes floor(a / 2^m) for a public m, consuming one preprocessed
// (rLow, rHigh) pair from the Trunc preprocessing element.
type Trunc struct{ *maskedTruncation }

func NewTrunc(p Participants, threshold int, a share.Share, m uint, rLow, rHigh share.Share) *Trunc {
	return &Trunc{newMaskedTruncation(p, threshold, a, m, rLow, rHigh, false)}
}

// TruncPr is TRUNC's probabilistic-rounding sibling: it rounds the
// discarded low m bits up with probability proportional to their
// magnitude rather than always rounding down, using the TruncPr
// preprocessing element's same (rLow, rHigh) shape (spec.md §4.3's
// TRUNCPR entry). The probabilistic correction is absorbed into rLow at
// preprocessing-generation time, so TruncPr's online protocol is
// identical in shape to Trunc's.
type TruncPr struct{ *maskedTruncation }

func NewTruncPr(p Participants, threshold int, a share.Share, m uint, rLow, rHigh share.Share) *TruncPr {
	return &TruncPr{newMaskedTruncation(p, threshold, a, m, rLow, rHigh, false)}
}

// MaskedTruncationOutput extracts the resulting share.Share from any of
// Modulo2m, Trunc or TruncPr's terminal results.
func MaskedTruncationOutput(outputs sm.Outputs) (share.Share, bool) {
	s, ok := outputs.(share.Share)
	return s, ok
}

// Modulo computes a mod b for a secret divisor b by reducing to
// DIV + MULT + SUB (spec.md §4.3: "MODULO with secret divisor reduces to
// DIV+MULT+SUB"): q = DIV(a,b), then a - q*b.
type Modulo struct {
	participants Participants
	threshold    int
	a, b         share.Share

	div   *DivSecret
	mult  *Mult
	phase moduloPhase
}

type moduloPhase int

const (
	moduloDividing moduloPhase = iota
	moduloMultiplying
	moduloDone
)

// NewModulo builds a MODULO instance with a secret divisor. x0 is the
// Newton–Raphson seed forwarded to the underlying DIV, and fracBits is its
// fixed-point fractional precision.
func NewModulo(p Participants, threshold int, a, b, x0 share.Share, fracBits int) *Modulo {
	return &Modulo{
		participants: p, threshold: threshold, a: a, b: b,
		div: NewDivSecret(p, threshold, a, b, x0, fracBits),
	}
}

func (mo *Modulo) CurrentState() sm.StateTag {
	switch mo.phase {
	case moduloDividing:
		return "dividing:" + mo.div.CurrentState()
	case moduloMultiplying:
		return "multiplying:" + mo.mult.CurrentState()
	default:
		return "done"
	}
}

func (mo *Modulo) Step(inbound *sm.Message) sm.StepResult {
	switch mo.phase {
	case moduloDividing:
		result := mo.div.Step(inbound)
		outputs, failed, kind, terminal := result.Outcome()
		if !terminal {
			return result
		}
		if failed {
			return sm.Failed(kind)
		}
		q, _ := DivSecretOutput(outputs)
		mo.mult = NewMult(mo.participants, mo.threshold, q, mo.b)
		mo.phase = moduloMultiplying
		return mo.mult.Step(nil)

	case moduloMultiplying:
		result := mo.mult.Step(inbound)
		outputs, failed, kind, terminal := result.Outcome()
		if !terminal {
			return result
		}
		if failed {
			return sm.Failed(kind)
		}
		qb, _ := MultOutput(outputs)
		mo.phase = moduloDone
		return sm.Terminated(mo.a.Sub(qb))

	default:
		return sm.Failed(sm.ProtocolViolation)
	}
}

// ModuloOutput extracts the resulting share.Share.
func ModuloOutput(outputs sm.Outputs) (share.Share, bool) {
	s, ok := outputs.(share.Share)
	return s, ok
}
