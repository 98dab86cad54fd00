package protocol

import (
	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// PolyEval evaluates a public polynomial (given by its coefficients, low
// degree first) at a secret-shared point, producing a fresh share of the
// result. Equals and Compare do not call it. Because the coefficients are
// public, only the powers of the secret point need to be computed
// jointly — everything else is a local linear combination.
//
// Powers of x are obtained by chaining MULT: x^2 = MULT(x,x), x^3 =
// MULT(x^2,x), and so on. Each chain link is one network round.
type PolyEval struct {
	coeffs []field.Element
	x      share.Share

	power  int // power currently being computed by cur (2..len(coeffs)-1)
	powers map[int]share.Share
	cur    *Mult
}

// NewPolyEval builds a PolyEval instance for sum(coeffs[i] * x^i).
func NewPolyEval(p Participants, threshold int, coeffs []field.Element, x share.Share) *PolyEval {
	one := share.Share{Party: x.Party, Value: field.One(x.Value.Modulus())}
	pe := &PolyEval{
		coeffs: coeffs,
		x:      x,
		powers: map[int]share.Share{0: one, 1: x},
	}
	if len(coeffs) > 2 {
		pe.power = 2
		pe.cur = NewMult(p, threshold, x, x)
	}
	return pe
}

func (pe *PolyEval) CurrentState() sm.StateTag {
	if pe.cur == nil {
		return "combining"
	}
	return sm.StateTag("computing-power")
}

func (pe *PolyEval) Step(inbound *sm.Message) sm.StepResult {
	if pe.cur != nil {
		result := pe.cur.Step(inbound)
		outputs, failed, kind, terminal := result.Outcome()
		if !terminal {
			return result
		}
		if failed {
			return sm.Failed(kind)
		}
		product, _ := MultOutput(outputs)
		pe.powers[pe.power] = product

		next := pe.power + 1
		if next >= len(pe.coeffs) {
			pe.cur = nil
			return pe.combine()
		}
		pe.power = next
		pe.cur = NewMult(pe.cur.participants, pe.cur.threshold, product, pe.x)
		return pe.cur.Step(nil)
	}
	return pe.combine()
}

func (pe *PolyEval) combine() sm.StepResult {
	self := pe.x.Party
	m := pe.x.Value.Modulus()
	acc := field.Zero(m)
	for i, c := range pe.coeffs {
		term := pe.powers[i].Value.Mul(c)
		acc = acc.Add(term)
	}
	return sm.Terminated(share.Share{Party: self, Value: acc})
}

// PolyEvalOutput extracts the resulting share.Share.
func PolyEvalOutput(outputs sm.Outputs) (share.Share, bool) {
	s, ok := outputs.(share.Share)
	return s, ok
}
