////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

// Package audit is the program auditor (spec.md §4.8): static checks a
// compiled Program must pass before the compute orchestrator reserves
// any preprocessing or starts a VM. It is grounded on the teacher's
// server/conf/params.go validation style — a config struct whose
// constructor rejects out-of-range values before anything downstream
// trusts them — generalized from "node config sanity checks" to
// "per-program resource-limit and well-formedness checks". Results are
// memoized by program content address with an `hashicorp/golang-lru`
// cache, the same dependency drand carries for its own beacon cache.
package audit

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/NillionNetwork/nilvm/internal/preprocessing"
	"github.com/NillionNetwork/nilvm/internal/protocol"
	"github.com/NillionNetwork/nilvm/internal/vm"
)

// DefaultCacheSize bounds the memoization cache when a caller does not
// specify one.
const DefaultCacheSize = 4096

// Config is a ProgramAuditorConfig (spec.md §4.8): per-resource limits a
// Program must stay within. A kind or element absent from the map is
// unbounded, matching spec.md's "kinds not listed are unbounded".
type Config struct {
	MaxMemorySize    uint64
	MaxInstructions  map[protocol.Kind]uint64
	MaxPreprocessing map[preprocessing.Element]uint64
}

// Result is AuditOk | AuditFailed{reason} (spec.md §4.8). It is returned
// to the client verbatim and is never retried, so Reason must be a
// complete, user-safe explanation.
type Result struct {
	ok     bool
	reason string
}

// Ok reports whether the Program passed every check.
func (r Result) Ok() bool { return r.ok }

// Reason explains a failed Result; empty for an Ok one.
func (r Result) Reason() string { return r.reason }

func ok() Result                   { return Result{ok: true} }
func failed(reason string) Result  { return Result{reason: reason} }
func failedf(f string, a ...interface{}) Result { return failed(fmt.Sprintf(f, a...)) }

// Auditor runs a Config's checks against compiled Programs, memoizing
// the verdict by content address (spec.md §4.8 expansion) so a program
// invoked repeatedly is only statically checked once.
type Auditor struct {
	cfg   Config
	cache *lru.Cache
}

// New builds an Auditor. cacheSize <= 0 uses DefaultCacheSize.
func New(cfg Config, cacheSize int) (*Auditor, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "audit: building memoization cache")
	}
	return &Auditor{cfg: cfg, cache: cache}, nil
}

// Audit checks prog against the Auditor's Config, returning a cached
// verdict if contentAddress was already audited. contentAddress is the
// program blob's content hash, the same identifier internal/storage's
// ObjectStore keys it by, so the compute orchestrator only ever has to
// compute it once per InvokeCompute.
func (a *Auditor) Audit(contentAddress string, prog vm.Program) Result {
	if v, hit := a.cache.Get(contentAddress); hit {
		return v.(Result)
	}
	r := a.check(prog)
	a.cache.Add(contentAddress, r)
	return r
}

// check runs every static check in spec.md §4.8's order, short-circuiting
// on the first failure since Failed is never retried and the reason for
// the first violation found is as actionable as any other.
func (a *Auditor) check(prog vm.Program) Result {
	if r := a.checkMemorySize(prog); !r.Ok() {
		return r
	}
	if r := a.checkInstructionCounts(prog); !r.Ok() {
		return r
	}
	if r := a.checkPreprocessing(prog); !r.Ok() {
		return r
	}
	return a.checkWellFormed(prog)
}

// checkMemorySize counts every distinct address the Program touches —
// its declared inputs, every instruction's output, and every
// instruction's inputs — against Config.MaxMemorySize.
func (a *Auditor) checkMemorySize(prog vm.Program) Result {
	if a.cfg.MaxMemorySize == 0 {
		return ok()
	}
	size := uint64(memorySize(prog))
	if size > a.cfg.MaxMemorySize {
		return failedf("program memory size %d exceeds limit %d", size, a.cfg.MaxMemorySize)
	}
	return ok()
}

func memorySize(prog vm.Program) int {
	seen := make(map[vm.Address]struct{}, len(prog.Inputs)+len(prog.Instructions))
	for _, addr := range prog.Inputs {
		seen[addr] = struct{}{}
	}
	for _, instr := range prog.Instructions {
		seen[instr.Output] = struct{}{}
		for _, in := range instr.Inputs {
			seen[in] = struct{}{}
		}
	}
	return len(seen)
}

// checkInstructionCounts enforces spec.md §4.8's "for each instruction
// kind listed in max_instructions, the program's instance count ≤
// configured limit".
func (a *Auditor) checkInstructionCounts(prog vm.Program) Result {
	if len(a.cfg.MaxInstructions) == 0 {
		return ok()
	}
	counts := make(map[protocol.Kind]uint64, len(a.cfg.MaxInstructions))
	for _, instr := range prog.Instructions {
		counts[instr.Kind]++
	}
	for kind, limit := range a.cfg.MaxInstructions {
		if counts[kind] > limit {
			return failedf("instruction kind %s count %d exceeds limit %d", kind, counts[kind], limit)
		}
	}
	return ok()
}

// checkPreprocessing enforces spec.md §4.8's per-element
// max_preprocessing.runtime_elements limits, translating the Program's
// protocol.Element consumption into preprocessing.Element via
// preprocessing.ElementFromProtocol, the same translation the
// orchestrator uses to build its Reservation.
func (a *Auditor) checkPreprocessing(prog vm.Program) Result {
	if len(a.cfg.MaxPreprocessing) == 0 {
		return ok()
	}
	for protoElem, count := range prog.Consumption() {
		elem, known := preprocessing.ElementFromProtocol(protoElem)
		if !known {
			continue
		}
		limit, listed := a.cfg.MaxPreprocessing[elem]
		if !listed {
			continue
		}
		if uint64(count) > limit {
			return failedf("preprocessing element %s requirement %d exceeds limit %d", elem, count, limit)
		}
	}
	return ok()
}

// checkWellFormed is the MIR-validity check: every instruction input
// address must resolve to either a declared program input or another
// instruction's output (spec.md §4.8: "no undefined references"), and
// every declared program output must resolve the same way. Well-typed
// checking beyond reference resolution has no type system to violate
// here — internal/protocol's factory rejects a malformed Params at
// construction time instead, which a well-formed but ill-typed Program
// would surface as a runtime vm.ErrInstructionFailed rather than an
// audit failure.
func (a *Auditor) checkWellFormed(prog vm.Program) Result {
	defined := make(map[vm.Address]struct{}, len(prog.Inputs)+len(prog.Instructions))
	for _, addr := range prog.Inputs {
		defined[addr] = struct{}{}
	}
	for _, instr := range prog.Instructions {
		if _, dup := defined[instr.Output]; dup {
			return failedf("address %s is produced more than once", instr.Output)
		}
		defined[instr.Output] = struct{}{}
	}
	for _, instr := range prog.Instructions {
		for _, in := range instr.Inputs {
			if _, known := defined[in]; !known {
				return failedf("instruction %s references undefined address %s", instr.Output, in)
			}
		}
	}
	for name, addr := range prog.Outputs {
		if _, known := defined[addr]; !known {
			return failedf("output %s references undefined address %s", name, addr)
		}
	}
	return ok()
}
