////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NillionNetwork/nilvm/internal/identity"
	"github.com/NillionNetwork/nilvm/internal/preprocessing"
)

func newTestStore(t *testing.T) *Store {
	s, err := Open(":memory:")
	require.NoError(t, err)
	return s
}

func TestMarkUsedRejectsReplayWhileUnexpired(t *testing.T) {
	s := newTestStore(t)
	nonce := [16]byte{1, 2, 3}

	require.NoError(t, s.MarkUsed(identity.NonceKindAuthToken, nonce, time.Now().Add(time.Minute)))
	err := s.MarkUsed(identity.NonceKindAuthToken, nonce, time.Now().Add(time.Minute))
	require.ErrorIs(t, err, identity.ErrNonceReused)
}

func TestMarkUsedAllowsReuseOfExpiredNonce(t *testing.T) {
	s := newTestStore(t)
	nonce := [16]byte{4, 5, 6}

	require.NoError(t, s.MarkUsed(identity.NonceKindAuthToken, nonce, time.Now().Add(-time.Minute)))
	require.NoError(t, s.MarkUsed(identity.NonceKindAuthToken, nonce, time.Now().Add(time.Minute)))
}

func TestEvictExpiredNonces(t *testing.T) {
	s := newTestStore(t)
	expired := [16]byte{7}
	live := [16]byte{8}

	require.NoError(t, s.MarkUsed(identity.NonceKindAuthToken, expired, time.Now().Add(-time.Minute)))
	require.NoError(t, s.MarkUsed(identity.NonceKindAuthToken, live, time.Now().Add(time.Minute)))

	n, err := s.EvictExpiredNonces(time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestAddFundsAndBalance(t *testing.T) {
	s := newTestStore(t)
	account := []byte("account-1")

	require.NoError(t, s.AddFunds([]byte("transfer-1"), account, 100))
	balance, err := s.Balance(account)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)

	// replaying the same transfer ID must not double-credit.
	require.NoError(t, s.AddFunds([]byte("transfer-1"), account, 100))
	balance, err = s.Balance(account)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)
}

func TestDebitRejectsInsufficientFunds(t *testing.T) {
	s := newTestStore(t)
	account := []byte("account-2")

	require.ErrorIs(t, s.Debit(account, 10), ErrInsufficientFunds)

	require.NoError(t, s.AddFunds([]byte("transfer-2"), account, 50))
	require.NoError(t, s.Debit(account, 20))
	balance, err := s.Balance(account)
	require.NoError(t, err)
	require.Equal(t, int64(30), balance)

	require.ErrorIs(t, s.Debit(account, 1000), ErrInsufficientFunds)
}

func TestPreprocessingOffsetsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	empty, err := s.LoadOffsets(preprocessing.Compare)
	require.NoError(t, err)
	require.Equal(t, preprocessing.Snapshot{}, empty)

	want := preprocessing.Snapshot{Generated: 10, CandidateDelete: 3, Deleted: 2}
	require.NoError(t, s.SaveOffsets(preprocessing.Compare, want))

	got, err := s.LoadOffsets(preprocessing.Compare)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestBlobExpirationTracking(t *testing.T) {
	s := newTestStore(t)
	blob := []byte("blob-1")

	require.NoError(t, s.TrackBlob(blob, time.Now().Add(-time.Minute)))
	expired, err := s.ExpiredBlobs(time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, blob, expired[0])

	require.NoError(t, s.ForgetBlob(blob))
	expired, err = s.ExpiredBlobs(time.Now())
	require.NoError(t, err)
	require.Empty(t, expired)
}
