////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package identity is nilVM's node-identity and auth-token layer
// (SPEC_FULL.md §6 expansion): an ED25519 keypair generated and used
// through go.dedis.ch/kyber/v3, a NodeID derived from the public key,
// and AuthToken signing/verification with nonce replay rejection. It is
// grounded on drand's key.Pair (key/keys.go): a kyber scalar/point pair
// wrapping a suite, generalized from "pairing-based beacon identity" to
// "EdDSA node identity".
package identity

import (
	"crypto/sha256"

	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/sign/eddsa"

	"github.com/NillionNetwork/nilvm/internal/cluster"
)

// Suite is the curve every node's identity key lives on.
var Suite = edwards25519.NewBlakeSHA256Ed25519()

// KeyPair is a node's long-lived signing identity.
type KeyPair struct {
	eddsa *eddsa.EdDSA
}

// NewKeyPair generates a fresh keypair from the suite's randomness
// source, the same Pick/RandomStream idiom internal/protocol's ECDSADKG
// uses for its own per-round scalars.
func NewKeyPair() (*KeyPair, error) {
	e := eddsa.NewEdDSA(Suite.RandomStream())
	return &KeyPair{eddsa: e}, nil
}

// NodeID derives this keypair's cluster.NodeID by hashing the marshaled
// public key, matching cluster.NodeID's doc comment: "a content-addressed
// identifier derived from a node's authentication public key."
func (k *KeyPair) NodeID() (cluster.NodeID, error) {
	return NodeIDFromPublicKey(k.eddsa.Public)
}

// PublicKeyBytes marshals the public key for wire transmission or
// storage.
func (k *KeyPair) PublicKeyBytes() ([]byte, error) {
	return k.eddsa.Public.MarshalBinary()
}

// SignBytes produces a raw EdDSA signature over msg. AuthToken's own
// Sign (token.go) is the domain-level entry point most callers want;
// this is exposed for anything that needs to sign opaque bytes
// directly (e.g. a Receipt payload).
func (k *KeyPair) SignBytes(msg []byte) ([]byte, error) {
	return k.eddsa.Sign(msg)
}

// MarshalBinary serializes this keypair the way eddsa.EdDSA itself does
// (seed || public key, 64 bytes), so a node's identity survives a
// restart instead of re-minting (and changing) its NodeID every time it
// starts, the way a one-shot NewKeyPair call would.
func (k *KeyPair) MarshalBinary() ([]byte, error) {
	return k.eddsa.MarshalBinary()
}

// LoadKeyPair reconstructs a KeyPair from bytes produced by MarshalBinary.
func LoadKeyPair(b []byte) (*KeyPair, error) {
	e := &eddsa.EdDSA{}
	if err := e.UnmarshalBinary(b); err != nil {
		return nil, errors.Wrap(err, "identity: unmarshaling keypair")
	}
	return &KeyPair{eddsa: e}, nil
}

// NodeIDFromPublicKey derives a cluster.NodeID from a marshaled or
// in-memory public key the same way KeyPair.NodeID does, so peers can
// compute each other's NodeID from the public key they distribute out
// of band.
func NodeIDFromPublicKey(pub interface{ MarshalBinary() ([]byte, error) }) (cluster.NodeID, error) {
	b, err := pub.MarshalBinary()
	if err != nil {
		return cluster.NodeID{}, errors.Wrap(err, "identity: marshaling public key")
	}
	sum := sha256.Sum256(b)
	return cluster.NodeID(sum), nil
}

// NodeIDFromPublicKeyBytes derives a cluster.NodeID directly from an
// already-marshaled public key, for config loaders that only ever see
// the hex-encoded bytes distributed out of band and never reconstruct
// the kyber.Point itself.
func NodeIDFromPublicKeyBytes(pub []byte) cluster.NodeID {
	return cluster.NodeID(sha256.Sum256(pub))
}

// VerifyWithPublicKeyBytes checks an EdDSA signature against a
// marshaled public key, for verifying a peer's signature when only its
// wire-transmitted public key bytes are in hand.
func VerifyWithPublicKeyBytes(pubBytes, msg, sig []byte) error {
	pub := Suite.Point()
	if err := pub.UnmarshalBinary(pubBytes); err != nil {
		return errors.Wrap(err, "identity: unmarshaling public key")
	}
	return eddsa.Verify(pub, msg, sig)
}
