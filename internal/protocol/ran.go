package protocol

import (
	"crypto/rand"

	"github.com/pkg/errors"

	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// Ran generates a fresh secret-shared value that no party, nor any
// coalition of T or fewer, ever learns (spec.md §3's RandomInteger
// preprocessing element, and §4.3's RAN protocol that produces it): each
// party shares its own locally-sampled contribution through a degree-T
// polynomial, and every party sums the shares it receives — including the
// one it sent itself — into its final share of the joint sum.
type Ran struct {
	participants Participants
	threshold    int
	modulus      field.Modulus

	contributed bool
	received    map[share.PartyID]field.Element
}

// NewRan builds a RAN instance.
func NewRan(p Participants, threshold int, m field.Modulus) *Ran {
	return &Ran{
		participants: p,
		threshold:    threshold,
		modulus:      m,
		received:     make(map[share.PartyID]field.Element, len(p.Order)),
	}
}

const (
	stateRanContributing sm.StateTag = "contributing"
	stateRanAccumulating sm.StateTag = "accumulating"
)

func (r *Ran) CurrentState() sm.StateTag {
	if !r.contributed {
		return stateRanContributing
	}
	return stateRanAccumulating
}

func (r *Ran) Step(inbound *sm.Message) sm.StepResult {
	if inbound == nil {
		seed, err := randomElement(r.modulus)
		if err != nil {
			return sm.Failed(sm.ArithmeticFailure)
		}
		poly, err := share.Random(seed, r.threshold)
		if err != nil {
			return sm.Failed(sm.ArithmeticFailure)
		}
		self := r.participants.SelfParty()
		r.received[self] = poly.Eval(self)
		r.contributed = true

		out := make([]sm.Outbound, 0, len(r.participants.Peers()))
		for _, peer := range r.participants.Peers() {
			peerParty := r.participants.Index[peer]
			out = append(out, sm.Outbound{To: peer, Body: encodeElement(poly.Eval(peerParty))})
		}
		return sm.EmitMessages(out)
	}

	e := decodeElement(r.modulus, inbound.Body)
	senderParty, ok := r.participants.Index[inbound.From]
	if !ok {
		return sm.Failed(sm.ProtocolViolation)
	}
	if _, dup := r.received[senderParty]; dup {
		return sm.Failed(sm.ProtocolViolation)
	}
	r.received[senderParty] = e

	if len(r.received) < len(r.participants.Order) {
		return sm.WaitForMoreMessages()
	}

	self := r.participants.SelfParty()
	acc := field.Zero(r.modulus)
	for _, v := range r.received {
		acc = acc.Add(v)
	}
	return sm.Terminated(share.Share{Party: self, Value: acc})
}

// RanOutput extracts the resulting share.Share of the joint random value.
func RanOutput(outputs sm.Outputs) (share.Share, bool) {
	s, ok := outputs.(share.Share)
	return s, ok
}

// randomElement draws a uniform field.Element via crypto/rand, oversampling
// by eight bytes to keep the modular-reduction bias negligible.
func randomElement(m field.Modulus) (field.Element, error) {
	buf := make([]byte, m.BitLen()/8+8)
	if _, err := rand.Read(buf); err != nil {
		return field.Element{}, errors.Wrap(err, "protocol.randomElement: reading randomness")
	}
	return field.FromBytes(m, buf), nil
}
