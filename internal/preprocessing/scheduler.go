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
	"time"

	clockwork "github.com/jonboulle/clockwork"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/NillionNetwork/nilvm/internal/cluster"
	"github.com/NillionNetwork/nilvm/internal/metrics"
)

// backoffBase, backoffCap and backoffFactor are the exponential-backoff
// parameters for a failed batch (spec.md §4.5: "retried with a fresh
// generation_id after exponential backoff (base 500 ms, cap 30 s, factor
// 2)"), grounded on drand's chain/beacon ticker's use of a
// clockwork.Clock so tests can drive time deterministically rather than
// sleeping for real.
const (
	backoffBase   = 500 * time.Millisecond
	backoffCap    = 30 * time.Second
	backoffFactor = 2
)

// BatchRunner executes one GeneratePreprocessing round: every node starts
// a protocol instance for the element and contributes shares (spec.md
// §4.5). Scheduler only owns the accounting around when to start a
// round and how to react to its outcome; the actual protocol instances
// are internal/vm's concern, wired in by whatever constructs a
// Scheduler.
type BatchRunner interface {
	RunBatch(ctx context.Context, element Element, generationID uint64, batchID uint64, batchSize uint64) error
}

// inFlight tracks one outstanding or backed-off batch for an element.
// max_parallel is fixed at 1 here: a single running flag per element is
// sufficient since nothing in this scheduler benefits from overlapping
// generations of the same element.
type inFlight struct {
	generationID uint64
	batchID      uint64
	attempt      int
	nextAttempt  time.Time
	running      bool
}

// Scheduler is the leader-driven batch generation loop from spec.md
// §4.5. Only the configured cluster leader runs it; followers still run
// a BatchRunner that responds to the leader's broadcasts (that wiring
// lives in internal/transport, out of this package's scope).
type Scheduler struct {
	cluster *cluster.Cluster
	manager *Manager
	runner  BatchRunner
	clock   clockwork.Clock

	mu        sync.Mutex
	inFlight  map[Element]*inFlight
	nextGenID uint64

	// settled, when non-nil, receives the element a batch just finished
	// updating. Tests use it to observe RunBatch's outcome without
	// racing the goroutine in start.
	settled chan Element
}

// NewScheduler builds a Scheduler. It is inert until Run is called.
func NewScheduler(c *cluster.Cluster, m *Manager, runner BatchRunner, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		cluster:  c,
		manager:  m,
		runner:   runner,
		clock:    clock,
		inFlight: make(map[Element]*inFlight),
	}
}

// Run drives the scheduler loop until ctx is canceled. It is a no-op on
// a non-leader node (spec.md §4.5: "the leader selects the next
// batch_id ... and broadcasts").
func (s *Scheduler) Run(ctx context.Context, tick time.Duration) {
	if !s.cluster.IsLeader() {
		return
	}
	ticker := s.clock.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

// tick starts any batch whose element has fallen under threshold and is
// not already in flight, and retries any batch whose backoff has
// elapsed.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now()
	for _, e := range elements {
		pool, err := s.manager.Pool(e)
		if err != nil {
			continue
		}
		s.mu.Lock()
		f := s.inFlight[e]
		due := f == nil || (!f.running && now.After(f.nextAttempt) || now.Equal(f.nextAttempt))
		needs := pool.NeedsGeneration()
		s.mu.Unlock()
		if !needs || !due {
			continue
		}
		s.start(ctx, e, pool)
	}
}

func (s *Scheduler) start(ctx context.Context, e Element, pool *Pool) {
	s.mu.Lock()
	f, ok := s.inFlight[e]
	if !ok {
		f = &inFlight{}
		s.inFlight[e] = f
	}
	if f.running {
		s.mu.Unlock()
		return
	}
	s.nextGenID++
	f.generationID = s.nextGenID
	f.batchID = pool.NextBatchID()
	f.running = true
	generationID, batchID, batchSize := f.generationID, f.batchID, pool.BatchSize()
	s.mu.Unlock()

	go func() {
		err := s.runner.RunBatch(ctx, e, generationID, batchID, batchSize)
		s.mu.Lock()
		f, ok := s.inFlight[e]
		if !ok {
			s.mu.Unlock()
			return
		}
		f.running = false
		if err != nil {
			f.attempt++
			f.nextAttempt = s.clock.Now().Add(backoffDelay(f.attempt))
			jww.WARN.Printf("preprocessing: batch %d (generation %d) for %s failed, retrying: %+v",
				batchID, generationID, e, err)
			s.mu.Unlock()
			s.notifySettled(e)
			return
		}
		f.attempt = 0
		s.mu.Unlock()
		pool.Grow()
		metrics.PreprocessingGenerated.WithLabelValues(e.String()).Add(float64(batchSize))
		snap := pool.Observe()
		metrics.PreprocessingPoolSize.WithLabelValues(e.String()).Set(float64(snap.Generated - snap.Reserved))
		jww.INFO.Printf("preprocessing: batch %d (generation %d) for %s generated", batchID, generationID, e)
		s.notifySettled(e)
	}()
}

// notifySettled reports e on the settled test channel, if configured.
func (s *Scheduler) notifySettled(e Element) {
	if s.settled != nil {
		s.settled <- e
	}
}

// backoffDelay returns the exponential-backoff delay for the given
// 1-indexed attempt number, clamped to backoffCap.
func backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return backoffBase
	}
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= backoffFactor
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}
