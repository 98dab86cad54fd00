////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package cluster holds the static membership model shared by every
// compute-core component: NodeID, the Cluster roster, and the
// configured polynomial degree / kappa / prime. Membership is fixed for
// the process lifetime (spec.md §1 Non-goals: dynamic membership,
// cross-cluster federation, leader failover are all out of scope).
package cluster

import (
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/NillionNetwork/nilvm/internal/field"
)

// NodeID is a content-addressed identifier derived from a node's
// authentication public key (spec.md §6). It is opaque outside this
// package: components pass it around as a map key and wire field, never
// interpret its bytes.
type NodeID [32]byte

// String renders the NodeID as lowercase hex, matching the teacher's
// id.ID.String() convention used throughout its logs.
func (n NodeID) String() string {
	return hex.EncodeToString(n[:])
}

// IsZero reports whether n is the zero value (used to detect an unset NodeID).
func (n NodeID) IsZero() bool {
	return n == NodeID{}
}

// Member is one cluster participant.
type Member struct {
	ID        NodeID
	PublicKey []byte
	Address   string // gRPC dial target, e.g. "node-2.cluster.local:14311"
}

// Cluster is the static set of cooperating nodes plus the shared
// cryptographic parameters (spec.md GLOSSARY: Cluster).
type Cluster struct {
	Members  []Member
	Leader   NodeID
	Degree   int // polynomial degree T (secrecy threshold)
	Kappa    int // statistical security parameter
	Modulus  field.Modulus
	selfID   NodeID
	memberOf map[NodeID]int
}

// New validates and builds a Cluster. leader must be one of members.
func New(members []Member, leader NodeID, degree, kappa int, modulus field.Modulus, self NodeID) (*Cluster, error) {
	if len(members) == 0 {
		return nil, errors.New("cluster: no members configured")
	}
	if degree < 0 || degree >= len(members) {
		return nil, errors.Errorf("cluster: degree %d invalid for %d members", degree, len(members))
	}
	idx := make(map[NodeID]int, len(members))
	leaderFound := false
	selfFound := false
	for i, m := range members {
		if _, dup := idx[m.ID]; dup {
			return nil, errors.Errorf("cluster: duplicate member %s", m.ID)
		}
		idx[m.ID] = i
		if m.ID == leader {
			leaderFound = true
		}
		if m.ID == self {
			selfFound = true
		}
	}
	if !leaderFound {
		return nil, errors.Errorf("cluster: leader %s is not a member", leader)
	}
	if !selfFound {
		return nil, errors.Errorf("cluster: self %s is not a member", self)
	}
	return &Cluster{
		Members:  members,
		Leader:   leader,
		Degree:   degree,
		Kappa:    kappa,
		Modulus:  modulus,
		selfID:   self,
		memberOf: idx,
	}, nil
}

// Self returns this process's own NodeID.
func (c *Cluster) Self() NodeID { return c.selfID }

// IsLeader reports whether this process is the statically configured leader.
func (c *Cluster) IsLeader() bool { return c.selfID == c.Leader }

// N returns the cluster size.
func (c *Cluster) N() int { return len(c.Members) }

// Threshold returns T, the maximum size of a coalition that learns nothing.
func (c *Cluster) Threshold() int { return c.Degree }

// Peers returns every member except self, in configured order.
func (c *Cluster) Peers() []NodeID {
	out := make([]NodeID, 0, len(c.Members)-1)
	for _, m := range c.Members {
		if m.ID != c.selfID {
			out = append(out, m.ID)
		}
	}
	return out
}

// PartyIndex maps a NodeID to its 1-indexed Shamir evaluation point,
// stable for the cluster's lifetime.
func (c *Cluster) PartyIndex(id NodeID) (int, bool) {
	i, ok := c.memberOf[id]
	if !ok {
		return 0, false
	}
	return i + 1, true
}

// MemberByID looks up a cluster member's full record.
func (c *Cluster) MemberByID(id NodeID) (Member, bool) {
	i, ok := c.memberOf[id]
	if !ok {
		return Member{}, false
	}
	return c.Members[i], true
}
