package protocol

import (
	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// Reveal is the generic "turn shares into a plaintext known by all nodes"
// protocol (spec.md GLOSSARY). It is algebra-agnostic — the same state
// machine shape is used both over F_P shares and, with a different
// field.Modulus, over F_{2^k} shares (spec.md §4.3: "REVEAL is generic
// over the algebra").
//
// Round 1: broadcast own share to every other participant.
// Terminal:  once T+1 shares (including the local one) are in hand,
// reconstruct and terminate.
type Reveal struct {
	participants Participants
	threshold    int
	own          share.Share
	collected    []share.Share
}

// NewReveal builds a Reveal instance for a share the local party holds.
func NewReveal(p Participants, threshold int, own share.Share) *Reveal {
	return &Reveal{participants: p, threshold: threshold, own: own, collected: []share.Share{own}}
}

const (
	stateRevealBroadcasting sm.StateTag = "broadcasting"
	stateRevealCollecting   sm.StateTag = "collecting"
)

func (r *Reveal) CurrentState() sm.StateTag {
	if len(r.collected) <= 1 {
		return stateRevealBroadcasting
	}
	return stateRevealCollecting
}

func (r *Reveal) Step(inbound *sm.Message) sm.StepResult {
	if inbound == nil {
		body := encodeShare(r.own)
		out := make([]sm.Outbound, 0, len(r.participants.Peers()))
		for _, peer := range r.participants.Peers() {
			out = append(out, sm.Outbound{To: peer, Body: body})
		}
		return sm.EmitMessages(out)
	}

	s, err := decodeShare(r.own.Value.Modulus(), inbound.Body)
	if err != nil {
		return sm.Failed(sm.ProtocolViolation)
	}
	r.collected = append(r.collected, s)

	if len(r.collected) < r.threshold+1 {
		return sm.WaitForMoreMessages()
	}

	secret, err := share.Reconstruct(r.collected, r.threshold)
	if err != nil {
		return sm.Failed(sm.ArithmeticFailure)
	}
	return sm.Terminated(secret)
}

// RevealOutput extracts the revealed field.Element from a terminal
// StepResult produced by a Reveal instance.
func RevealOutput(outputs sm.Outputs) (field.Element, bool) {
	e, ok := outputs.(field.Element)
	return e, ok
}
