////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

// Package compute is the compute orchestrator (spec.md §4.7): one
// ComputeInstance per InvokeCompute, admitting it and reserving its
// preprocessing atomically before it is tracked, then carrying it through
// Running -> Finalizing -> a terminal state, starting the VM on its own fiber
// with a cancellation handle, and holding results for RetrieveResults
// within a retention window. It is grounded on the teacher's
// internal/round.Manager (a sync.Map from round id to *Round, mutated by
// one pacemaker and read by many comm handlers) generalized from
// "cMix round bookkeeping" to "compute instance lifecycle bookkeeping",
// the same generalization internal/preprocessing's Manager made for
// pool bookkeeping.
package compute

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/NillionNetwork/nilvm/internal/audit"
	"github.com/NillionNetwork/nilvm/internal/metrics"
	"github.com/NillionNetwork/nilvm/internal/preprocessing"
	"github.com/NillionNetwork/nilvm/internal/vm"
)

// ID identifies one ComputeInstance, matching sm.InstanceID's
// uuid-wrapped-as-a-named-type pattern.
type ID uuid.UUID

// NewID mints a fresh compute_id.
func NewID() ID { return ID(uuid.New()) }

func (id ID) String() string { return uuid.UUID(id).String() }

// State is one of a ComputeInstance's seven lifecycle states. The
// Orchestrator first records an instance as Running, once admission and
// reservation have succeeded; Succeeded, Failed and Canceled are terminal.
type State int

const (
	Admitted State = iota
	Reserving
	Running
	Finalizing
	Succeeded
	Failed
	Canceled
)

func (s State) String() string {
	switch s {
	case Admitted:
		return "Admitted"
	case Reserving:
		return "Reserving"
	case Running:
		return "Running"
	case Finalizing:
		return "Finalizing"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	case Canceled:
		return "Canceled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s is one of the three states a
// ComputeInstance never leaves.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Canceled
}

// Errors InvokeCompute/RetrieveResults return synchronously, matching
// spec.md §7's ResourceError/ClientError kinds.
var (
	// ErrTooManyConcurrentComputes is ResourceError.TooManyConcurrentComputes
	// (spec.md §5: "over the cap, InvokeCompute returns ResourceExhausted").
	ErrTooManyConcurrentComputes = errors.New("compute: too many concurrent computes")
	// ErrPreprocessingExhausted is ResourceError.PreprocessingExhausted,
	// recoverable across attempts but not within one (spec.md §7).
	ErrPreprocessingExhausted = errors.New("compute: preprocessing pool exhausted")
	// ErrAuditFailed wraps a ProtocolError.AuditFailed{reason}; the
	// reason is in the error text and must be surfaced verbatim.
	ErrAuditFailed = errors.New("compute: program failed audit")
	// ErrNotFound covers an unknown or retention-expired compute_id.
	ErrNotFound = errors.New("compute: unknown or expired compute id")
	// ErrForbidden is returned when the requesting user does not appear
	// in any output binding (spec.md §4.7: "the user invoking MUST
	// appear in output_bindings").
	ErrForbidden = errors.New("compute: requesting user not present in output_bindings")
)

// Runner executes one Program's DAG to completion; *vm.VM implements it.
// The indirection lets tests drive Orchestrator without the full
// fabric/sm wiring internal/vm's integration tests exercise separately.
type Runner interface {
	Run(ctx context.Context, prog vm.Program, memory *vm.Memory) (map[vm.OutputName]vm.Value, error)
}

// Request is one InvokeCompute call's admitted payload: by the time an
// Orchestrator sees a Request, receipt verification and value/program
// resolution (spec.md §4.7 steps 1) have already happened (external to
// this package, per its "external storage"/"external" callouts) and
// Memory has been seeded with every address Program.Inputs declares.
type Request struct {
	ContentAddress string
	Program        vm.Program
	Memory         *vm.Memory
	InvokingUser   string
	OutputBindings map[vm.OutputName][]string
	Deadline       time.Duration
}

// Outcome is what RetrieveResults currently knows about a compute_id
// (spec.md §4.7: "streams back {Waiting} messages until terminal, then
// a single Success|Error").
type Outcome int

const (
	OutcomeWaiting Outcome = iota
	OutcomeSuccess
	OutcomeError
)

// ResultView is one RetrieveResults observation.
type ResultView struct {
	Outcome Outcome
	Values  map[vm.OutputName]vm.Value
	Err     string
}

// DefaultDeadline is the per-compute budget (spec.md §5: "each compute
// has a max_duration (default configurable)") used when a Request
// leaves Deadline unset.
const DefaultDeadline = 5 * time.Minute

// DefaultRetention is how long a terminal result survives before
// RetrieveResults starts returning ErrNotFound (spec.md §4.7
// expansion).
const DefaultRetention = 5 * time.Minute

// instance is the Orchestrator's live bookkeeping for one
// ComputeInstance, discarded once its result has been filed in the
// resultStore.
type instance struct {
	state  State
	cancel context.CancelFunc
}

// Orchestrator drives ComputeInstances from admission to a terminal
// result (spec.md §4.7). One Orchestrator serves one node.
type Orchestrator struct {
	runner        Runner
	preprocessing *preprocessing.Manager
	auditor       *audit.Auditor
	admission     *semaphore.Weighted
	deadline      time.Duration

	mu        sync.Mutex
	instances map[ID]*instance

	results *resultStore
}

// New builds an Orchestrator. maxConcurrent bounds simultaneous Running
// ComputeInstances (spec.md §5's max_concurrent_actions admission
// control); deadline and retention fall back to DefaultDeadline and
// DefaultRetention when zero.
func New(runner Runner, pm *preprocessing.Manager, auditor *audit.Auditor, maxConcurrent int64, deadline, retention time.Duration) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Orchestrator{
		runner:        runner,
		preprocessing: pm,
		auditor:       auditor,
		admission:     semaphore.NewWeighted(maxConcurrent),
		deadline:      deadline,
		instances:     make(map[ID]*instance),
		results:       newResultStore(retention),
	}
}

// InvokeCompute admits req, following spec.md §4.7 steps 2-4 (receipt
// verification and value resolution, step 1, are the caller's job
// before Request is built). Admission, audit, and reservation are all
// rejected synchronously — the end-to-end preprocessing-exhaustion
// scenario (spec.md §8) is explicit that "InvokeCompute must be
// rejected by the auditor before reservation", not merely failed later
// through RetrieveResults. Only once a ComputeInstance is genuinely
// Running does a later failure surface through RetrieveResults instead
// (spec.md §7: "post-admission errors surface through RetrieveResults
// as Error{string}").
func (o *Orchestrator) InvokeCompute(ctx context.Context, req Request) (ID, error) {
	if !o.admission.TryAcquire(1) {
		metrics.ComputeInvocations.WithLabelValues("rejected_capacity").Inc()
		return ID{}, ErrTooManyConcurrentComputes
	}

	if r := o.auditor.Audit(req.ContentAddress, req.Program); !r.Ok() {
		o.admission.Release(1)
		metrics.ComputeInvocations.WithLabelValues("rejected_audit").Inc()
		return ID{}, errors.Wrap(ErrAuditFailed, r.Reason())
	}

	reservation, err := o.reserve(req.Program)
	if err != nil {
		o.admission.Release(1)
		metrics.ComputeInvocations.WithLabelValues("rejected_preprocessing").Inc()
		return ID{}, err
	}

	id := NewID()
	runCtx, cancel := context.WithTimeout(context.Background(), req.effectiveDeadline(o.deadline))
	o.setInstance(id, &instance{state: Running, cancel: cancel})
	metrics.ComputeInFlight.Inc()

	go o.run(runCtx, cancel, id, req, reservation)

	return id, nil
}

// effectiveDeadline returns r.Deadline, or fallback if unset.
func (r Request) effectiveDeadline(fallback time.Duration) time.Duration {
	if r.Deadline <= 0 {
		return fallback
	}
	return r.Deadline
}

// reserve turns req's Consumption into Requirements and reserves them
// atomically (spec.md §4.7 step 3). An Exhausted reservation fails the
// ComputeInstance fast, before the VM ever starts.
func (o *Orchestrator) reserve(prog vm.Program) (preprocessing.Reservation, error) {
	var reqs []preprocessing.Requirement
	for protoElem, count := range prog.Consumption() {
		elem, known := preprocessing.ElementFromProtocol(protoElem)
		if !known || count <= 0 {
			continue
		}
		reqs = append(reqs, preprocessing.Requirement{Element: elem, Count: uint64(count)})
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	res, err := o.preprocessing.ReserveAll(reqs)
	if err != nil {
		return nil, errors.Wrap(ErrPreprocessingExhausted, err.Error())
	}
	return res, nil
}

// run drives the VM to completion on its own fiber (spec.md §4.7 step
// 4), then finalizes the ComputeInstance exactly once regardless of
// which of success, error, or deadline expiry got there first.
// Reserved preprocessing is released (moved to candidate_delete, never
// back to the pool) on every path, since by this point it has been
// handed to protocol instances and is considered consumed whether or
// not the compute ultimately succeeded (spec.md §4.7 step 6).
func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, id ID, req Request, reservation preprocessing.Reservation) {
	defer cancel()
	defer o.admission.Release(1)
	defer o.preprocessing.ReleaseAll(reservation)

	outputs, err := o.runner.Run(ctx, req.Program, req.Memory)

	o.setState(id, Finalizing)
	o.finish(id, req, outputs, err)
}

// finish files id's terminal result and evicts its live instance entry.
// A nil err is Succeeded; ctx deadline/cancel
// errors are Canceled; everything else is Failed, matching spec.md §7's
// "ProtocolError fails the enclosing ProtocolInstance ... VM ... this
// fails the enclosing ComputeInstance" propagation and §5's "a
// cancellation is observable at the next suspension point ... no
// partial results".
func (o *Orchestrator) finish(id ID, req Request, outputs map[vm.OutputName]vm.Value, err error) {
	var rec record
	rec.outputBindings = req.OutputBindings

	switch {
	case err == nil:
		o.setState(id, Succeeded)
		rec.outcome = OutcomeSuccess
		rec.values = outputs
		metrics.ComputeInvocations.WithLabelValues("succeeded").Inc()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		o.setState(id, Canceled)
		rec.outcome = OutcomeError
		rec.errMsg = "Canceled: " + err.Error()
		metrics.ComputeInvocations.WithLabelValues("canceled").Inc()
	default:
		o.setState(id, Failed)
		rec.outcome = OutcomeError
		rec.errMsg = err.Error()
		jww.WARN.Printf("compute: instance %s failed: %+v", id, err)
		metrics.ComputeInvocations.WithLabelValues("failed").Inc()
	}

	o.results.put(id, rec)
	o.dropInstance(id)
	metrics.ComputeInFlight.Dec()
}

// Cancel cancels id's running VM, if it is still live. A ComputeInstance
// that has already reached a terminal state is a no-op.
func (o *Orchestrator) Cancel(id ID) error {
	o.mu.Lock()
	inst, ok := o.instances[id]
	var cancel context.CancelFunc
	if ok {
		cancel = inst.cancel
	}
	o.mu.Unlock()
	if !ok {
		if _, found := o.results.get(id); found {
			return nil
		}
		return ErrNotFound
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// RetrieveResults implements spec.md §4.7's RetrieveResults: Waiting
// while id is still live, then the filed terminal Outcome until the
// retention window elapses. Once a record is filed, requestingUser must
// appear in the Request's OutputBindings; while id is still live,
// Waiting is returned without checking requestingUser.
func (o *Orchestrator) RetrieveResults(id ID, requestingUser string) (ResultView, error) {
	o.mu.Lock()
	_, live := o.instances[id]
	o.mu.Unlock()
	if live {
		return ResultView{Outcome: OutcomeWaiting}, nil
	}

	rec, found := o.results.get(id)
	if !found {
		return ResultView{}, ErrNotFound
	}
	if !rec.userMayRetrieve(requestingUser) {
		return ResultView{}, ErrForbidden
	}
	return ResultView{Outcome: rec.outcome, Values: rec.values, Err: rec.errMsg}, nil
}

func (o *Orchestrator) setInstance(id ID, inst *instance) {
	o.mu.Lock()
	o.instances[id] = inst
	o.mu.Unlock()
}

func (o *Orchestrator) setState(id ID, s State) {
	o.mu.Lock()
	if inst, ok := o.instances[id]; ok {
		inst.state = s
	}
	o.mu.Unlock()
}

func (o *Orchestrator) dropInstance(id ID) {
	o.mu.Lock()
	delete(o.instances, id)
	o.mu.Unlock()
}

// State reports id's current state, for metrics/debugging; it does not
// distinguish "never existed" from "retention expired" (both return
// false), matching RetrieveResults' own NotFound handling.
func (o *Orchestrator) State(id ID) (State, bool) {
	o.mu.Lock()
	inst, ok := o.instances[id]
	o.mu.Unlock()
	if ok {
		return inst.state, true
	}
	if rec, found := o.results.get(id); found {
		switch rec.outcome {
		case OutcomeSuccess:
			return Succeeded, true
		default:
			return Failed, true
		}
	}
	return 0, false
}
