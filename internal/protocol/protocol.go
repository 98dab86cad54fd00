////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package protocol is the concrete protocol library (spec.md §4.3): one
// sm.StateMachine implementation per protocol variant. Each file documents
// the protocol's public mathematical specification the way the teacher's
// cryptops/* and graphs/*/*.go files each carry a short doc comment on the
// math they perform, then implements Step as a tagged-sum dispatch over
// the protocol's own internal sub-states (spec.md §9: "avoid virtual-method
// trees").
package protocol

import (
	"github.com/NillionNetwork/nilvm/internal/cluster"
	"github.com/NillionNetwork/nilvm/internal/share"
)

// Kind enumerates every protocol and preprocessing-element generator the
// VM can instantiate (spec.md §2.3, §4.3).
type Kind int

const (
	KindReveal Kind = iota
	KindMult
	KindPubMult
	KindInvRan
	KindRan
	KindRanBit
	KindRandomBitwise
	KindCompare
	KindModulo2m
	KindModulo
	KindTrunc
	KindTruncPr
	KindDivPublic
	KindDivSecret
	KindEquals
	KindIfElse
	KindBitDecomposition
	KindShareToParticle
	KindECDSADKG
	KindECDSASign
)

func (k Kind) String() string {
	switch k {
	case KindReveal:
		return "REVEAL"
	case KindMult:
		return "MULT"
	case KindPubMult:
		return "PUB-MULT"
	case KindInvRan:
		return "INV-RAN"
	case KindRan:
		return "RAN"
	case KindRanBit:
		return "RAN-BIT"
	case KindRandomBitwise:
		return "RANDOM-BITWISE"
	case KindCompare:
		return "COMPARE"
	case KindModulo2m:
		return "MODULO2m"
	case KindModulo:
		return "MODULO"
	case KindTrunc:
		return "TRUNC"
	case KindTruncPr:
		return "TRUNCPR"
	case KindDivPublic:
		return "DIV-PUBLIC"
	case KindDivSecret:
		return "DIV-SECRET"
	case KindEquals:
		return "EQUALS"
	case KindIfElse:
		return "IF-ELSE"
	case KindBitDecomposition:
		return "BIT-DECOMPOSITION"
	case KindShareToParticle:
		return "SHARE-TO-PARTICLE"
	case KindECDSADKG:
		return "ECDSA-DKG"
	case KindECDSASign:
		return "ECDSA-SIGN"
	default:
		return "UNKNOWN"
	}
}

// Element is the preprocessing-element vocabulary from spec.md §3,
// duplicated here (rather than imported from internal/preprocessing) to
// keep the protocol library free of a dependency on the scheduler —
// internal/preprocessing imports protocol, not the other way around.
type Element int

const (
	ElementCompare Element = iota
	ElementDivisionIntegerSecret
	ElementModulo
	ElementPublicOutputEquality
	ElementEqualsIntegerSecret
	ElementTruncPr
	ElementTrunc
	ElementRandomInteger
	ElementRandomBoolean
)

// Consumption declares how many of each PreprocessingElement one
// invocation of a protocol needs, so the orchestrator can reserve the
// right number of offsets up front (spec.md §4.3, last paragraph).
func Consumption(k Kind) map[Element]int {
	switch k {
	case KindCompare:
		return map[Element]int{ElementCompare: 1}
	case KindModulo, KindModulo2m:
		return map[Element]int{ElementModulo: 1}
	case KindDivSecret:
		return map[Element]int{ElementDivisionIntegerSecret: 1}
	case KindEquals:
		return map[Element]int{ElementEqualsIntegerSecret: 1}
	case KindTrunc:
		return map[Element]int{ElementTrunc: 1}
	case KindTruncPr:
		return map[Element]int{ElementTruncPr: 1}
	case KindRanBit, KindRandomBitwise:
		return map[Element]int{ElementRandomBoolean: 1}
	case KindRan, KindInvRan:
		return map[Element]int{ElementRandomInteger: 1}
	default:
		return nil
	}
}

// Participants is the peer set (including self) a protocol instance runs
// over, ordered by share.PartyID so every node agrees on the ordering used
// for Lagrange interpolation.
type Participants struct {
	Self  cluster.NodeID
	Order []cluster.NodeID          // full participant set, stable order
	Index map[cluster.NodeID]share.PartyID
}

// PartyIDs returns every participant's PartyID in Order.
func (p Participants) PartyIDs() []share.PartyID {
	out := make([]share.PartyID, len(p.Order))
	for i, id := range p.Order {
		out[i] = p.Index[id]
	}
	return out
}

// Peers returns every participant except Self.
func (p Participants) Peers() []cluster.NodeID {
	out := make([]cluster.NodeID, 0, len(p.Order)-1)
	for _, id := range p.Order {
		if id != p.Self {
			out = append(out, id)
		}
	}
	return out
}

// SelfParty returns this node's own PartyID within the instance.
func (p Participants) SelfParty() share.PartyID {
	return p.Index[p.Self]
}

// ParticipantsFromCluster builds the Participants every protocol instance
// in c runs over: every member, 1-indexed into share.PartyID in c's own
// configured order, matching cluster.Cluster.PartyIndex's convention so
// every node in the cluster assigns the same PartyID to the same member
// without an out-of-band handshake.
func ParticipantsFromCluster(c *cluster.Cluster) Participants {
	order := make([]cluster.NodeID, len(c.Members))
	index := make(map[cluster.NodeID]share.PartyID, len(c.Members))
	for i, m := range c.Members {
		order[i] = m.ID
		index[m.ID] = share.PartyID(i + 1)
	}
	return Participants{Self: c.Self(), Order: order, Index: index}
}
