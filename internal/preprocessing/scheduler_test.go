////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package preprocessing

import (
	"context"
	"sync"
	"testing"
	"time"

	clockwork "github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/NillionNetwork/nilvm/internal/cluster"
	"github.com/NillionNetwork/nilvm/internal/field"
)

type fakeRunner struct {
	mu     sync.Mutex
	failN  int // fail the first failN calls, then succeed
	calls  int
	lastID uint64
}

func (f *fakeRunner) RunBatch(ctx context.Context, e Element, generationID, batchID, batchSize uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastID = generationID
	if f.calls <= f.failN {
		return errors.New("preprocessing_test: simulated batch failure")
	}
	return nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func leaderCluster(t *testing.T) *cluster.Cluster {
	t.Helper()
	self := cluster.NodeID{1}
	members := []cluster.Member{{ID: self, Address: "node-1:14311"}, {ID: cluster.NodeID{2}, Address: "node-2:14311"}}
	c, err := cluster.New(members, self, 1, 40, field.Safe64Bits(), self)
	require.NoError(t, err)
	return c
}

// fillAllBut grows every pool except e past its generation threshold, so
// a tick finds only e in need of a batch.
func fillAllBut(t *testing.T, m *Manager, e Element) {
	t.Helper()
	for _, other := range Elements() {
		if other == e {
			continue
		}
		pool, err := m.Pool(other)
		require.NoError(t, err)
		pool.Grow()
	}
}

func TestSchedulerStartsBatchWhenBelowThreshold(t *testing.T) {
	c := leaderCluster(t)
	m := NewManager(Config{BatchSize: map[Element]uint64{Compare: 10}, GenerationThreshold: map[Element]uint64{Compare: 5}})
	fillAllBut(t, m, Compare)
	runner := &fakeRunner{}
	clock := clockwork.NewFakeClock()
	s := NewScheduler(c, m, runner, clock)
	s.settled = make(chan Element, 1)

	s.tick(context.Background())
	<-s.settled

	pool, err := m.Pool(Compare)
	require.NoError(t, err)
	require.Equal(t, uint64(10), pool.Observe().Generated)
	require.Equal(t, 1, runner.callCount())
}

func TestSchedulerRetriesWithBackoffAfterFailure(t *testing.T) {
	c := leaderCluster(t)
	m := NewManager(Config{BatchSize: map[Element]uint64{Compare: 10}, GenerationThreshold: map[Element]uint64{Compare: 5}})
	fillAllBut(t, m, Compare)
	runner := &fakeRunner{failN: 1}
	clock := clockwork.NewFakeClock()
	s := NewScheduler(c, m, runner, clock)
	s.settled = make(chan Element, 1)

	s.tick(context.Background())
	<-s.settled

	pool, err := m.Pool(Compare)
	require.NoError(t, err)
	require.Equal(t, uint64(0), pool.Observe().Generated, "failed batch does not grow the pool")

	// A tick before the backoff elapses does nothing more.
	s.tick(context.Background())
	require.Equal(t, 1, runner.callCount())

	clock.Advance(backoffBase)
	s.tick(context.Background())
	<-s.settled
	require.Equal(t, 2, runner.callCount())
	require.Equal(t, uint64(10), pool.Observe().Generated)
}

func TestSchedulerNoOpOnFollower(t *testing.T) {
	self := cluster.NodeID{2}
	leader := cluster.NodeID{1}
	members := []cluster.Member{{ID: leader, Address: "node-1:14311"}, {ID: self, Address: "node-2:14311"}}
	c, err := cluster.New(members, leader, 1, 40, field.Safe64Bits(), self)
	require.NoError(t, err)

	m := NewManager(Config{})
	runner := &fakeRunner{}
	s := NewScheduler(c, m, runner, clockwork.NewFakeClock())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	s.Run(ctx, time.Millisecond)
	require.Equal(t, 0, runner.callCount())
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	require.Equal(t, backoffBase, backoffDelay(1))
	require.Equal(t, 2*backoffBase, backoffDelay(2))
	require.Equal(t, 4*backoffBase, backoffDelay(3))
	require.Equal(t, backoffCap, backoffDelay(20))
}
