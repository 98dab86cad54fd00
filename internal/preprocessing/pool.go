////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package preprocessing

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrExhausted is returned by Reserve when fewer than the requested
// number of offsets have been generated but not yet reserved.
var ErrExhausted = errors.New("preprocessing: pool exhausted")

// Range is a half-open interval [Start, End) of offsets into one
// Element's pool, exclusive to whoever holds it until Released.
type Range struct {
	Start, End uint64
}

// Len reports how many offsets r covers.
func (r Range) Len() uint64 { return r.End - r.Start }

// Pool is the per-element-type offset ledger from spec.md §3/§4.5:
// "{generated, candidate_delete, deleted, in_flight_batches}", with
// invariant deleted ≤ candidate_delete ≤ reserved ≤ generated, enforced
// by construction — every mutating method only ever moves its frontier
// forward.
type Pool struct {
	mu sync.Mutex

	batchSize           uint64
	generationThreshold uint64

	generated       uint64
	reserved        uint64
	candidateDelete uint64
	deleted         uint64

	// freed holds ranges handed back via Release that have not yet been
	// folded into candidateDelete because a lower-offset range is still
	// outstanding; keyed by Start.
	freed map[uint64]uint64
}

// NewPool builds an empty Pool. batchSize is the unit the scheduler
// generates in one round; generationThreshold is the low-water mark that
// triggers a new batch (spec.md §4.5).
func NewPool(batchSize, generationThreshold uint64) *Pool {
	return &Pool{
		batchSize:           batchSize,
		generationThreshold: generationThreshold,
		freed:               make(map[uint64]uint64),
	}
}

// Snapshot is a point-in-time read of a Pool's counters, safe to pass
// around after it's taken.
type Snapshot struct {
	Generated, Reserved, CandidateDelete, Deleted uint64
}

// Observe returns the Pool's current counters.
func (p *Pool) Observe() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Generated:       p.generated,
		Reserved:        p.reserved,
		CandidateDelete: p.candidateDelete,
		Deleted:         p.deleted,
	}
}

// NeedsGeneration reports whether generated-reserved has fallen below
// generationThreshold, the scheduler's trigger condition (spec.md §4.5).
func (p *Pool) NeedsGeneration() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generated-p.reserved < p.generationThreshold
}

// NextBatchID returns generated/batchSize, the deterministic id the
// leader assigns to the next batch it broadcasts (spec.md §4.5).
func (p *Pool) NextBatchID() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generated / p.batchSize
}

// BatchSize reports the configured per-batch element count.
func (p *Pool) BatchSize() uint64 { return p.batchSize }

// Grow advances generated by batchSize once a GeneratePreprocessing round
// for this element has succeeded on every node (spec.md §4.5: "On
// success, all nodes advance generated += batch_size atomically").
func (p *Pool) Grow() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generated += p.batchSize
}

// Reserve atomically carves out the next n offsets for an exclusive
// caller. It fails with ErrExhausted rather than blocking — callers
// (the compute orchestrator) treat Exhausted as fail-fast (spec.md
// §4.7 step 3).
func (p *Pool) Reserve(n uint64) (Range, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generated-p.reserved < n {
		return Range{}, ErrExhausted
	}
	r := Range{Start: p.reserved, End: p.reserved + n}
	p.reserved = r.End
	return r, nil
}

// unreserve undoes a Reserve that is known to have never been acted on
// (the dry-run-atomicity path in Manager.ReserveAll, rolled back before
// any protocol instance could have consumed the offsets). It only
// restores p.reserved when r is exactly the most recent reservation;
// callers must undo in strict LIFO order, which ReserveAll does.
func (p *Pool) unreserve(r Range) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reserved != r.End {
		return false
	}
	p.reserved = r.Start
	return true
}

// Release returns a previously reserved Range to the candidate-delete
// frontier. It NEVER moves offsets back into the unreserved pool — a
// failed ComputeInstance's reservation is considered consumed, not
// refunded, because spec.md §4.7 step 6 treats reserved-but-unused
// offsets as billed. If r does not immediately extend candidateDelete,
// it is parked in freed until the gap closes.
func (p *Pool) Release(r Range) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freed[r.Start] = r.End
	for {
		end, ok := p.freed[p.candidateDelete]
		if !ok {
			return
		}
		delete(p.freed, p.candidateDelete)
		p.candidateDelete = end
	}
}

// Compact advances deleted up to candidateDelete. Separating this from
// Release lets a caller delete the underlying generated shares (out of
// this package's scope) before the bookkeeping pointer moves, matching
// spec.md §4.5's "a periodic compactor advances deleted to the largest
// contiguous prefix".
func (p *Pool) Compact() (advanced uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	advanced = p.candidateDelete - p.deleted
	p.deleted = p.candidateDelete
	return advanced
}
