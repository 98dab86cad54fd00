package protocol

import (
	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// PubMult multiplies a share by a public constant and publishes the
// result: it is MULT's public-output sibling, additionally masking the
// local product with a degree-2T zero-share before broadcasting so no
// single revealed value leaks more than the final public product (spec.md
// §4.3: "PUB-MULT additionally masks with a degree-2T zero share before
// broadcast").
type PubMult struct {
	participants Participants
	threshold    int
	own          share.Share
	public       field.Element

	maskedShares []share.Share
}

// NewPubMult builds a PUB-MULT instance for a·c where a is secret-shared
// and c is a public constant.
func NewPubMult(p Participants, threshold int, a share.Share, c field.Element) *PubMult {
	return &PubMult{participants: p, threshold: threshold, own: a, public: c}
}

const (
	statePubMultMasking  sm.StateTag = "masking"
	statePubMultRevealed sm.StateTag = "revealed"
)

func (pm *PubMult) CurrentState() sm.StateTag {
	if pm.maskedShares == nil {
		return statePubMultMasking
	}
	return statePubMultRevealed
}

func (pm *PubMult) Step(inbound *sm.Message) sm.StepResult {
	if inbound == nil {
		// Zero-share of degree 2T: a fresh random polynomial with constant
		// term 0 evaluated at 2T (via threshold*2), reshared so the
		// masked product a_i*c + zero_i still reconstructs a*c at degree 2T.
		zeroPoly, err := share.Random(field.Zero(pm.public.Modulus()), 2*pm.threshold)
		if err != nil {
			return sm.Failed(sm.ArithmeticFailure)
		}
		self := pm.participants.SelfParty()
		masked := pm.own.Value.Mul(pm.public).Add(zeroPoly.Eval(self))
		pm.maskedShares = append(pm.maskedShares, share.Share{Party: self, Value: masked})

		out := make([]sm.Outbound, 0, len(pm.participants.Peers()))
		for _, peer := range pm.participants.Peers() {
			out = append(out, sm.Outbound{To: peer, Body: encodeElement(masked)})
		}
		return sm.EmitMessages(out)
	}

	e := decodeElement(pm.public.Modulus(), inbound.Body)
	party, ok := pm.participants.Index[inbound.From]
	if !ok {
		return sm.Failed(sm.ProtocolViolation)
	}
	pm.maskedShares = append(pm.maskedShares, share.Share{Party: party, Value: e})

	if len(pm.maskedShares) < 2*pm.threshold+1 {
		return sm.WaitForMoreMessages()
	}

	result, err := share.Reconstruct(pm.maskedShares, 2*pm.threshold)
	if err != nil {
		return sm.Failed(sm.ArithmeticFailure)
	}
	return sm.Terminated(result)
}
