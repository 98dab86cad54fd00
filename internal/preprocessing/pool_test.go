////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolReserveAndExhaustion(t *testing.T) {
	p := NewPool(10, 5)
	p.Grow() // generated = 10

	r, err := p.Reserve(7)
	require.NoError(t, err)
	require.Equal(t, Range{Start: 0, End: 7}, r)

	_, err = p.Reserve(4)
	require.ErrorIs(t, err, ErrExhausted)

	r2, err := p.Reserve(3)
	require.NoError(t, err)
	require.Equal(t, Range{Start: 7, End: 10}, r2)
}

func TestPoolReleaseNeverRollsBackReservation(t *testing.T) {
	p := NewPool(10, 5)
	p.Grow()
	r, err := p.Reserve(5)
	require.NoError(t, err)

	p.Release(r)
	snap := p.Observe()
	require.Equal(t, uint64(5), snap.Reserved, "reservation frontier never moves backward")
	require.Equal(t, uint64(5), snap.CandidateDelete)
}

func TestPoolReleaseOutOfOrderWaitsForContiguity(t *testing.T) {
	p := NewPool(30, 5)
	p.Grow()
	p.Grow()
	p.Grow()

	a, err := p.Reserve(10)
	require.NoError(t, err)
	b, err := p.Reserve(10)
	require.NoError(t, err)

	p.Release(b)
	require.Equal(t, uint64(0), p.Observe().CandidateDelete, "gap at offset 0 blocks advancement")

	p.Release(a)
	require.Equal(t, uint64(20), p.Observe().CandidateDelete, "both ranges now contiguous from zero")
}

func TestPoolCompactAdvancesDeletedToCandidateDelete(t *testing.T) {
	p := NewPool(10, 5)
	p.Grow()
	r, err := p.Reserve(10)
	require.NoError(t, err)
	p.Release(r)

	advanced := p.Compact()
	require.Equal(t, uint64(10), advanced)
	require.Equal(t, uint64(10), p.Observe().Deleted)
	require.Equal(t, uint64(0), p.Compact(), "second compact is a no-op")
}

func TestPoolNeedsGeneration(t *testing.T) {
	p := NewPool(10, 5)
	require.True(t, p.NeedsGeneration(), "nothing generated yet")
	p.Grow()
	require.False(t, p.NeedsGeneration())
	_, err := p.Reserve(8)
	require.NoError(t, err)
	require.True(t, p.NeedsGeneration(), "generated-reserved dropped under threshold")
}
