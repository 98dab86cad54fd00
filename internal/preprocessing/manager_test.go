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

func TestManagerReserveAllRollsBackOnPartialFailure(t *testing.T) {
	m := NewManager(Config{})
	comparePool, err := m.Pool(Compare)
	require.NoError(t, err)
	comparePool.Grow()

	// DivisionIntegerSecret has nothing generated yet, so the second
	// requirement fails and the first must be rolled back.
	_, err = m.ReserveAll([]Requirement{
		{Element: Compare, Count: 1},
		{Element: DivisionIntegerSecret, Count: 1},
	})
	require.ErrorIs(t, err, ErrExhausted)

	snap := comparePool.Observe()
	require.Equal(t, uint64(0), snap.Reserved, "a reservation that never ran is returned to the unreserved pool")
	require.Equal(t, uint64(0), snap.CandidateDelete)
}

func TestManagerReserveAllAndReleaseAll(t *testing.T) {
	m := NewManager(Config{})
	for _, e := range []Element{Compare, Trunc} {
		p, err := m.Pool(e)
		require.NoError(t, err)
		p.Grow()
	}

	res, err := m.ReserveAll([]Requirement{
		{Element: Compare, Count: 3},
		{Element: Trunc, Count: 2},
	})
	require.NoError(t, err)
	require.Equal(t, Range{0, 3}, res[Compare])
	require.Equal(t, Range{0, 2}, res[Trunc])

	m.ReleaseAll(res)
	comparePool, _ := m.Pool(Compare)
	require.Equal(t, uint64(3), comparePool.Observe().CandidateDelete)

	require.Equal(t, uint64(5), m.Compact(), "3 from Compare plus 2 from Trunc")
}

func TestManagerNeedsGeneration(t *testing.T) {
	m := NewManager(Config{GenerationThreshold: map[Element]uint64{Compare: 100}})
	needs := m.NeedsGeneration()
	require.Contains(t, needs, Compare)
}
