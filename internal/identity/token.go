////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package identity

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	"github.com/NillionNetwork/nilvm/internal/cluster"
)

// ErrTokenExpired and ErrNonceReused are the two ways AuthToken
// verification fails besides a bad signature.
var (
	ErrTokenExpired = errors.New("identity: auth token expired")
	ErrNonceReused  = errors.New("identity: nonce already used")
)

// AuthToken is a signed, single-use credential a client presents on
// InvokeCompute/RetrieveResults calls (spec.md §3's "Nonces used: per
// service, tagged {AuthToken, Receipt, ...}, stored with expires_at,
// keyed (nonce, kind)").
type AuthToken struct {
	Issuer    cluster.NodeID
	Nonce     [16]byte
	ExpiresAt time.Time
	Signature []byte
}

// NonceKind tags which nonce table a nonce belongs to, matching
// spec.md §3's "tagged {AuthToken, Receipt, ...}" nonce namespace.
type NonceKind string

const (
	NonceKindAuthToken NonceKind = "AuthToken"
	NonceKindReceipt   NonceKind = "Receipt"
)

// NonceStore records which (nonce, kind) pairs have already been spent,
// so a token cannot be replayed. internal/storage implements this over
// SQLite's used_nonces table; verification depends only on this
// interface to avoid a storage->identity import cycle.
type NonceStore interface {
	// MarkUsed records (kind, nonce) as spent, returning ErrNonceReused
	// if it was already recorded with an unexpired expiry.
	MarkUsed(kind NonceKind, nonce [16]byte, expiresAt time.Time) error
}

// signingPayload is the exact byte layout AuthToken.Sign/Verify compute
// the signature over: issuer || nonce || expires_at (unix nanos, big
// endian).
func signingPayload(issuer cluster.NodeID, nonce [16]byte, expiresAt time.Time) []byte {
	buf := make([]byte, 0, len(issuer)+len(nonce)+8)
	buf = append(buf, issuer[:]...)
	buf = append(buf, nonce[:]...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(expiresAt.UnixNano()))
	return append(buf, ts[:]...)
}

// Sign builds a fresh AuthToken for this keypair, valid until
// time.Now().Add(ttl).
func (k *KeyPair) Sign(issuer cluster.NodeID, nonce [16]byte, ttl time.Duration) (AuthToken, error) {
	expiresAt := time.Now().Add(ttl)
	sig, err := k.eddsa.Sign(signingPayload(issuer, nonce, expiresAt))
	if err != nil {
		return AuthToken{}, errors.Wrap(err, "identity: signing auth token")
	}
	return AuthToken{Issuer: issuer, Nonce: nonce, ExpiresAt: expiresAt, Signature: sig}, nil
}

// Verify checks t's signature against issuerPublicKey, rejects it if
// expired, and records its nonce in store under kind — returning
// ErrNonceReused if the nonce was already spent. kind lets the same
// token shape back both AuthToken (session-level auth) and Receipt
// (per-call payment proof) nonce namespaces without colliding. Order
// matters: the nonce is only marked used once the signature and expiry
// have both checked out, so a forged or stale token cannot burn a
// legitimate nonce slot.
func Verify(t AuthToken, issuerPublicKeyBytes []byte, kind NonceKind, store NonceStore) error {
	if time.Now().After(t.ExpiresAt) {
		return ErrTokenExpired
	}
	if err := VerifyWithPublicKeyBytes(issuerPublicKeyBytes, signingPayload(t.Issuer, t.Nonce, t.ExpiresAt), t.Signature); err != nil {
		return errors.Wrap(err, "identity: bad auth token signature")
	}
	if err := store.MarkUsed(kind, t.Nonce, t.ExpiresAt); err != nil {
		return err
	}
	return nil
}
