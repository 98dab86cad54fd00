////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package preprocessing

import (
	"github.com/pkg/errors"
)

// Manager owns one Pool per Element and is the compute orchestrator's
// entry point for reservations (spec.md §4.7 step 3: "call PM
// reservations atomically"). It is the generalization of the teacher's
// round.Manager — there, a sync.Map from round id to *Round mutated by
// one pacemaker loop and read by many comm handlers; here, a fixed set
// of per-element pools mutated by the Scheduler and read by the
// orchestrator.
type Manager struct {
	pools map[Element]*Pool
}

// Config supplies the per-element batch size and generation threshold;
// every Element not present gets DefaultBatchSize/DefaultThreshold.
type Config struct {
	BatchSize           map[Element]uint64
	GenerationThreshold map[Element]uint64
}

// DefaultBatchSize and DefaultThreshold seed any Element Config leaves
// unspecified.
const (
	DefaultBatchSize = 1024
	DefaultThreshold = 256
)

// NewManager builds a Manager with one Pool per known Element.
func NewManager(cfg Config) *Manager {
	m := &Manager{pools: make(map[Element]*Pool, len(elements))}
	for _, e := range elements {
		batchSize := cfg.BatchSize[e]
		if batchSize == 0 {
			batchSize = DefaultBatchSize
		}
		threshold := cfg.GenerationThreshold[e]
		if threshold == 0 {
			threshold = DefaultThreshold
		}
		m.pools[e] = NewPool(batchSize, threshold)
	}
	return m
}

// Pool returns the Pool backing the given Element, or an error if e is
// not one of the enumerated kinds.
func (m *Manager) Pool(e Element) (*Pool, error) {
	p, ok := m.pools[e]
	if !ok {
		return nil, errors.Errorf("preprocessing: unknown element %s", e)
	}
	return p, nil
}

// Requirement is one line of a protocol's declared preprocessing
// consumption (spec.md §4.3: "Each protocol declares its preprocessing
// consumption {Element → count}").
type Requirement struct {
	Element Element
	Count   uint64
}

// Reservation is the result of successfully reserving every Requirement
// in one ReserveAll call, keyed by Element for the VM to hand out to the
// protocol instances that asked for them.
type Reservation map[Element]Range

// ReserveAll reserves every requirement atomically with respect to each
// other's success: if any single Reserve fails, every Range already
// taken in this call is immediately undone in reverse order so no
// element's frontier advances for a compute that never started (spec.md
// §4.7 step 3: "if any reservation fails with Exhausted, fail fast").
// This is distinct from Release: nothing here was ever handed to a
// running ComputeInstance, so the offsets go back to the unreserved
// pool instead of to candidate_delete.
func (m *Manager) ReserveAll(reqs []Requirement) (Reservation, error) {
	type taken struct {
		element Element
		pool    *Pool
		r       Range
	}
	var acquired []taken

	rollback := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].pool.unreserve(acquired[i].r)
		}
	}

	out := make(Reservation, len(reqs))
	for _, req := range reqs {
		p, err := m.Pool(req.Element)
		if err != nil {
			rollback()
			return nil, err
		}
		r, err := p.Reserve(req.Count)
		if err != nil {
			rollback()
			return nil, errors.Wrapf(err, "preprocessing: reserving %s", req.Element)
		}
		acquired = append(acquired, taken{element: req.Element, pool: p, r: r})
		out[req.Element] = r
	}
	return out, nil
}

// ReleaseAll moves every Range in a Reservation to its Pool's
// candidate-delete frontier, called once by the orchestrator when a
// ComputeInstance reaches Succeeded or Failed (spec.md §4.7 step 6).
func (m *Manager) ReleaseAll(res Reservation) {
	for e, r := range res {
		if p, err := m.Pool(e); err == nil {
			p.Release(r)
		}
	}
}

// Compact runs Pool.Compact over every element, returning the total
// number of offsets newly marked deleted. Intended to be called by the
// Scheduler's periodic compaction tick.
func (m *Manager) Compact() uint64 {
	var total uint64
	for _, e := range elements {
		total += m.pools[e].Compact()
	}
	return total
}

// NeedsGeneration reports which elements have fallen under their
// generation threshold, in the stable Element order the leader uses to
// decide what to broadcast next.
func (m *Manager) NeedsGeneration() []Element {
	var out []Element
	for _, e := range elements {
		if m.pools[e].NeedsGeneration() {
			out = append(out, e)
		}
	}
	return out
}
