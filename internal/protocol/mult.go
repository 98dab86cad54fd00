package protocol

import (
	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// Mult implements secret multiplication via GRR-style re-randomization
// (spec.md §4.3): each party locally squares — multiplies its own shares
// of a and b, landing on a degree-2T point of the product polynomial —
// then reshares that point through a fresh degree-T polynomial. Once
// every party's sub-share has arrived, each party locally recombines them
// with the public Lagrange coefficients that reconstruct the degree-2T
// polynomial's value at 0, producing a fresh degree-T share of a·b. This
// requires N ≥ 2T+1 participants, satisfied by every cluster shape named
// in spec.md §8 (N=3, T=1).
type Mult struct {
	participants Participants
	threshold    int

	ownProduct   field.Element
	subShares    map[share.PartyID]share.Share // sub-share received from each party i, addressed to me
	localSubShare share.Share                   // my own sub-share of my own product, kept without a network round-trip
}

// NewMult builds a Mult instance from this node's shares of a and b.
func NewMult(p Participants, threshold int, a, b share.Share) *Mult {
	product := a.Value.Mul(b.Value)
	return &Mult{
		participants: p,
		threshold:    threshold,
		ownProduct:   product,
		subShares:    make(map[share.PartyID]share.Share, len(p.Order)),
	}
}

const (
	stateMultResharing sm.StateTag = "resharing"
	stateMultCombining sm.StateTag = "combining"
)

func (m *Mult) CurrentState() sm.StateTag {
	if len(m.subShares) == 0 {
		return stateMultResharing
	}
	return stateMultCombining
}

func (m *Mult) Step(inbound *sm.Message) sm.StepResult {
	if inbound == nil {
		poly, err := share.Random(m.ownProduct, m.threshold)
		if err != nil {
			return sm.Failed(sm.ArithmeticFailure)
		}
		self := m.participants.SelfParty()
		m.localSubShare = share.Share{Party: self, Value: poly.Eval(self)}
		m.subShares[self] = m.localSubShare

		out := make([]sm.Outbound, 0, len(m.participants.Peers()))
		for _, peer := range m.participants.Peers() {
			peerParty := m.participants.Index[peer]
			sub := share.Share{Party: peerParty, Value: poly.Eval(peerParty)}
			out = append(out, sm.Outbound{To: peer, Body: encodeShare(sub)})
		}
		return sm.EmitMessages(out)
	}

	sub, err := decodeShare(m.ownProduct.Modulus(), inbound.Body)
	if err != nil {
		return sm.Failed(sm.ProtocolViolation)
	}
	senderParty, ok := m.participants.Index[inbound.From]
	if !ok {
		return sm.Failed(sm.ProtocolViolation)
	}
	m.subShares[senderParty] = sub

	if len(m.subShares) < len(m.participants.Order) {
		return sm.WaitForMoreMessages()
	}

	parties := m.participants.PartyIDs()
	coeffs, err := share.LagrangeCoefficients(m.ownProduct.Modulus(), parties, 0)
	if err != nil {
		return sm.Failed(sm.ArithmeticFailure)
	}

	self := m.participants.SelfParty()
	acc := field.Zero(m.ownProduct.Modulus())
	for _, party := range parties {
		sub := m.subShares[party]
		acc = acc.Add(sub.Value.Mul(coeffs[party]))
	}
	return sm.Terminated(share.Share{Party: self, Value: acc})
}

// MultOutput extracts the resulting share.Share from a terminal Mult result.
func MultOutput(outputs sm.Outputs) (share.Share, bool) {
	s, ok := outputs.(share.Share)
	return s, ok
}
