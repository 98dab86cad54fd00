package protocol

import (
	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// BitAdder adds two equal-length vectors of secret-shared bits and
// produces their bitwise sum, including the final carry out — a
// ripple-carry adder over bit shares. It is an internal helper consumed
// by BIT-DECOMPOSITION's diff-reduction step, not a top-level protocol
// library entry in its own right: like POLY-EVAL, it has no standalone
// preprocessing element and is only ever invoked from another protocol.
//
// Per bit position, with xor_ab = a_i + b_i - 2*a_i*b_i:
//
//	carry_out = a_i*b_i + carry_in*xor_ab
//	sum_i     = xor_ab + carry_in - 2*carry_in*xor_ab
//
// which needs exactly two MULTs (a_i*b_i, then carry_in*xor_ab), so the
// adder runs in 2n sequential rounds for n-bit operands.
type BitAdder struct {
	participants Participants
	threshold    int
	a, b         []share.Share
	n            int

	sum   []share.Share
	carry share.Share

	idx   int
	stage int // 0: computing ab = MULT(a_i,b_i); 1: computing carry_in*xor_ab
	ab    share.Share
	mult  *Mult
}

// NewBitAdder builds a BIT-ADDER instance. a and b must have equal length,
// ordered least-significant bit first.
func NewBitAdder(p Participants, threshold int, a, b []share.Share) *BitAdder {
	n := len(a)
	m := a[0].Value.Modulus()
	ba := &BitAdder{
		participants: p, threshold: threshold, a: a, b: b, n: n,
		sum:   make([]share.Share, n),
		carry: share.Share{Party: a[0].Party, Value: field.Zero(m)},
	}
	ba.mult = NewMult(p, threshold, a[0], b[0])
	return ba
}

func (ba *BitAdder) CurrentState() sm.StateTag {
	if ba.idx >= ba.n {
		return "done"
	}
	if ba.stage == 0 {
		return "position:ab"
	}
	return "position:carry"
}

func (ba *BitAdder) Step(inbound *sm.Message) sm.StepResult {
	result := ba.mult.Step(inbound)
	outputs, failed, kind, terminal := result.Outcome()
	if !terminal {
		return result
	}
	if failed {
		return sm.Failed(kind)
	}
	product, _ := MultOutput(outputs)

	if ba.stage == 0 {
		ba.ab = product
		i := ba.idx
		m := product.Value.Modulus()
		two := field.FromUint64(m, 2)
		xorAB := ba.a[i].Add(ba.b[i]).Sub(ba.ab.ScalarMul(two))
		ba.mult = NewMult(ba.participants, ba.threshold, ba.carry, xorAB)
		ba.stage = 1
		return ba.mult.Step(nil)
	}

	carryXorAB := product
	i := ba.idx
	m := product.Value.Modulus()
	two := field.FromUint64(m, 2)
	xorAB := ba.a[i].Add(ba.b[i]).Sub(ba.ab.ScalarMul(two))

	ba.sum[i] = xorAB.Add(ba.carry).Sub(carryXorAB.ScalarMul(two))
	ba.carry = ba.ab.Add(carryXorAB)

	ba.idx++
	if ba.idx >= ba.n {
		return sm.Terminated(BitAdderOutputs{Sum: ba.sum, Carry: ba.carry})
	}
	ba.stage = 0
	ba.mult = NewMult(ba.participants, ba.threshold, ba.a[ba.idx], ba.b[ba.idx])
	return ba.mult.Step(nil)
}

// BitAdderOutputs is BIT-ADDER's terminal payload.
type BitAdderOutputs struct {
	Sum   []share.Share
	Carry share.Share
}

// BitAdderOutput extracts the BitAdderOutputs payload.
func BitAdderOutput(outputs sm.Outputs) (BitAdderOutputs, bool) {
	o, ok := outputs.(BitAdderOutputs)
	return o, ok
}
