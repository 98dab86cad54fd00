////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryNonceStore struct {
	used map[[16]byte]time.Time
}

func newMemoryNonceStore() *memoryNonceStore {
	return &memoryNonceStore{used: make(map[[16]byte]time.Time)}
}

func (s *memoryNonceStore) MarkUsed(kind NonceKind, nonce [16]byte, expiresAt time.Time) error {
	if existing, ok := s.used[nonce]; ok && time.Now().Before(existing) {
		return ErrNonceReused
	}
	s.used[nonce] = expiresAt
	return nil
}

func TestSignAndVerifyAuthToken(t *testing.T) {
	kp, err := NewKeyPair()
	require.NoError(t, err)
	issuer, err := kp.NodeID()
	require.NoError(t, err)
	pubBytes, err := kp.PublicKeyBytes()
	require.NoError(t, err)

	token, err := kp.Sign(issuer, [16]byte{1, 2, 3}, time.Minute)
	require.NoError(t, err)

	store := newMemoryNonceStore()
	require.NoError(t, Verify(token, pubBytes, NonceKindAuthToken, store))
}

func TestVerifyRejectsReplayedNonce(t *testing.T) {
	kp, err := NewKeyPair()
	require.NoError(t, err)
	issuer, err := kp.NodeID()
	require.NoError(t, err)
	pubBytes, err := kp.PublicKeyBytes()
	require.NoError(t, err)

	token, err := kp.Sign(issuer, [16]byte{9}, time.Minute)
	require.NoError(t, err)

	store := newMemoryNonceStore()
	require.NoError(t, Verify(token, pubBytes, NonceKindAuthToken, store))
	require.ErrorIs(t, Verify(token, pubBytes, NonceKindAuthToken, store), ErrNonceReused)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	kp, err := NewKeyPair()
	require.NoError(t, err)
	issuer, err := kp.NodeID()
	require.NoError(t, err)
	pubBytes, err := kp.PublicKeyBytes()
	require.NoError(t, err)

	token, err := kp.Sign(issuer, [16]byte{4}, -time.Minute)
	require.NoError(t, err)

	store := newMemoryNonceStore()
	require.ErrorIs(t, Verify(token, pubBytes, NonceKindAuthToken, store), ErrTokenExpired)
}

func TestVerifyRejectsWrongPublicKey(t *testing.T) {
	kp, err := NewKeyPair()
	require.NoError(t, err)
	issuer, err := kp.NodeID()
	require.NoError(t, err)

	other, err := NewKeyPair()
	require.NoError(t, err)
	wrongPubBytes, err := other.PublicKeyBytes()
	require.NoError(t, err)

	token, err := kp.Sign(issuer, [16]byte{7}, time.Minute)
	require.NoError(t, err)

	store := newMemoryNonceStore()
	require.Error(t, Verify(token, wrongPubBytes, NonceKindAuthToken, store))
}
