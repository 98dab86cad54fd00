package protocol

import (
	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// Compare decides whether a < b without revealing either operand,
// consuming one Compare preprocessing element per spec.md §4.3 ("COMPARE
// uses the hamming-distance-plus-polynomial-evaluation trick; it consumes
// one Compare preprocessing element"). The Compare element is a pair
// (r, topBit) generated once during preprocessing: r is a uniform random
// field element and topBit is a share of r's most significant bit.
//
// diff = a - b is masked additively with r and revealed; because r is
// uniform over the field, the reveal leaks nothing about diff beyond the
// single bit this protocol extracts. The MSB of the revealed masked value
// is public, so XOR-ing it with the secret topBit share is a local affine
// combination (no multiplication round needed): result = topBit if
// maskedMSB = 0, else (1 - topBit).
//
// Comparisons of operands at or beyond P/2 are out of range per spec.md §4
// and the result is unspecified but the protocol still terminates cleanly.
type Compare struct {
	participants Participants
	threshold    int
	diff         share.Share
	topBit       share.Share

	reveal *Reveal
}

// NewCompare builds a COMPARE instance for a < b. r and topBit are this
// party's shares of the reserved Compare preprocessing element.
func NewCompare(p Participants, threshold int, a, b, r, topBit share.Share) *Compare {
	diff := a.Sub(b).Add(r)
	return &Compare{participants: p, threshold: threshold, diff: diff, topBit: topBit}
}

func (c *Compare) CurrentState() sm.StateTag {
	if c.reveal == nil {
		return "masking"
	}
	return "revealing:" + c.reveal.CurrentState()
}

func (c *Compare) Step(inbound *sm.Message) sm.StepResult {
	if c.reveal == nil {
		c.reveal = NewReveal(c.participants, c.threshold, c.diff)
		return c.reveal.Step(nil)
	}

	result := c.reveal.Step(inbound)
	outputs, failed, kind, terminal := result.Outcome()
	if !terminal {
		return result
	}
	if failed {
		return sm.Failed(kind)
	}

	masked, _ := RevealOutput(outputs)
	m := masked.Modulus()
	maskedMSB := masked.Bit(m.BitLen() - 1)

	self := c.topBit.Party
	if maskedMSB == 0 {
		return sm.Terminated(share.Share{Party: self, Value: c.topBit.Value})
	}
	one := field.One(m)
	return sm.Terminated(share.Share{Party: self, Value: one.Sub(c.topBit.Value)})
}

// CompareOutput extracts the resulting boolean share (1 if a < b).
func CompareOutput(outputs sm.Outputs) (share.Share, bool) {
	s, ok := outputs.(share.Share)
	return s, ok
}
