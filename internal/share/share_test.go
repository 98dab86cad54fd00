package share

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NillionNetwork/nilvm/internal/field"
)

func parties(n int) []PartyID {
	out := make([]PartyID, n)
	for i := range out {
		out[i] = PartyID(i + 1)
	}
	return out
}

func TestRevealCorrectness(t *testing.T) {
	m := field.Safe256Bits()
	secret := field.FromUint64(m, 42)
	const n, threshold = 5, 2

	shares, err := Shares(secret, threshold, parties(n))
	require.NoError(t, err)

	// Any T+1 shares reconstruct the secret.
	got, err := Reconstruct(shares[:threshold+1], threshold)
	require.NoError(t, err)
	require.True(t, got.Equal(secret))

	got2, err := Reconstruct(shares[1:threshold+2], threshold)
	require.NoError(t, err)
	require.True(t, got2.Equal(secret))
}

func TestAdditiveHomomorphism(t *testing.T) {
	m := field.Safe256Bits()
	a := field.FromUint64(m, 7)
	b := field.FromUint64(m, 35)
	const threshold = 1

	sharesA, _ := Shares(a, threshold, parties(3))
	sharesB, _ := Shares(b, threshold, parties(3))

	sum := make([]Share, 3)
	for i := range sum {
		sum[i] = sharesA[i].Add(sharesB[i])
	}

	got, err := Reconstruct(sum, threshold)
	require.NoError(t, err)
	require.Equal(t, a.Add(b).Int64(), got.Int64())
}

func TestReconstructInsufficientShares(t *testing.T) {
	m := field.Safe256Bits()
	secret := field.FromUint64(m, 1)
	shares, _ := Shares(secret, 3, parties(3))
	_, err := Reconstruct(shares, 3)
	require.ErrorIs(t, err, ErrInsufficientShares)
}
