package protocol

import (
	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// RandomBitwise produces k independent RAN-BIT draws and their field-sum,
// i.e. a share of a uniformly random k-bit integer together with the
// shares of each of its bits (spec.md §3's RandomBitwise preprocessing
// element). It is what BIT-DECOMPOSITION's solvedBits step consumes.
type RandomBitwise struct {
	participants Participants
	threshold    int
	modulus      field.Modulus
	k            int

	bits    []*RanBit
	results []share.Share
	idx     int
}

// NewRandomBitwise builds a RANDOM-BITWISE instance for a k-bit draw.
func NewRandomBitwise(p Participants, threshold int, m field.Modulus, k int) *RandomBitwise {
	rw := &RandomBitwise{participants: p, threshold: threshold, modulus: m, k: k}
	rw.bits = make([]*RanBit, k)
	for i := range rw.bits {
		rw.bits[i] = NewRanBit(p, threshold, m)
	}
	return rw
}

func (rw *RandomBitwise) CurrentState() sm.StateTag {
	if rw.idx >= rw.k {
		return "done"
	}
	return "bit"
}

// Step drives the k RAN-BIT instances one at a time; bits are independent
// draws, so each only needs its own round of messages and nothing is lost
// by serializing them here rather than running them concurrently.
func (rw *RandomBitwise) Step(inbound *sm.Message) sm.StepResult {
	if inbound == nil && rw.idx == 0 && len(rw.results) == 0 {
		return rw.bits[0].Step(nil)
	}

	result := rw.bits[rw.idx].Step(inbound)
	outputs, failed, kind, terminal := result.Outcome()
	if !terminal {
		return result
	}
	if failed {
		if kind == sm.NeedsRetry {
			rw.bits[rw.idx] = NewRanBit(rw.participants, rw.threshold, rw.modulus)
			return rw.bits[rw.idx].Step(nil)
		}
		return sm.Failed(kind)
	}

	bit, _ := RanBitOutput(outputs)
	rw.results = append(rw.results, bit)
	rw.idx++

	if rw.idx >= rw.k {
		self := bit.Party
		sum := field.Zero(rw.modulus)
		weight := field.One(rw.modulus)
		two := field.FromUint64(rw.modulus, 2)
		for _, b := range rw.results {
			sum = sum.Add(b.Value.Mul(weight))
			weight = weight.Mul(two)
		}
		return sm.Terminated(RandomBitwiseOutputs{Bits: rw.results, Value: share.Share{Party: self, Value: sum}})
	}
	return rw.bits[rw.idx].Step(nil)
}

// RandomBitwiseOutputs is RandomBitwise's terminal payload: the bit shares
// and their weighted sum.
type RandomBitwiseOutputs struct {
	Bits  []share.Share
	Value share.Share
}

// RandomBitwiseOutput extracts the RandomBitwiseOutputs payload.
func RandomBitwiseOutput(outputs sm.Outputs) (RandomBitwiseOutputs, bool) {
	o, ok := outputs.(RandomBitwiseOutputs)
	return o, ok
}
