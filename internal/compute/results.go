////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package compute

import (
	"sync"
	"time"

	clockwork "github.com/jonboulle/clockwork"

	"github.com/NillionNetwork/nilvm/internal/vm"
)

// record is one terminal ComputeInstance's filed outcome, kept around
// for DefaultRetention (spec.md §4.7 expansion: "a results-retention
// grace period ... after which RetrieveResults returns NotFound").
type record struct {
	outcome        Outcome
	values         map[vm.OutputName]vm.Value
	errMsg         string
	outputBindings map[vm.OutputName][]string
	filedAt        time.Time
}

// userMayRetrieve reports whether user appears in any output binding
// filed with this record (spec.md §4.7: "the user invoking MUST appear
// in output_bindings").
func (r record) userMayRetrieve(user string) bool {
	for _, allowed := range r.outputBindings {
		for _, u := range allowed {
			if u == user {
				return true
			}
		}
	}
	return false
}

// resultStore holds filed records for retention, evicting anything
// older on read (and on sweep, for callers that run it periodically).
// It is grounded on internal/preprocessing's Scheduler's use of
// clockwork.Clock so tests can control expiry deterministically instead
// of sleeping for real.
type resultStore struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	retention time.Duration
	records   map[ID]record
}

func newResultStore(retention time.Duration) *resultStore {
	return &resultStore{
		clock:     clockwork.NewRealClock(),
		retention: retention,
		records:   make(map[ID]record),
	}
}

func (s *resultStore) put(id ID, rec record) {
	rec.filedAt = s.clock.Now()
	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()
}

// get returns id's record if it is both present and within its
// retention window, evicting it lazily once expired.
func (s *resultStore) get(id ID) (record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return record{}, false
	}
	if s.clock.Now().After(rec.filedAt.Add(s.retention)) {
		delete(s.records, id)
		return record{}, false
	}
	return rec, true
}

// sweep evicts every record whose retention window has elapsed,
// intended for a caller that runs it on a periodic tick rather than
// relying solely on get's lazy eviction.
func (s *resultStore) sweep() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		if now.After(rec.filedAt.Add(s.retention)) {
			delete(s.records, id)
		}
	}
}
