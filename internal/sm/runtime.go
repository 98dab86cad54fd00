package sm

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/NillionNetwork/nilvm/internal/cluster"
)

// ErrTerminated is returned by Deliver once the runtime has reached a
// terminal state; "once Terminated/Failed, further step calls are
// rejected" (spec.md §4.2).
var ErrTerminated = errors.New("sm: state machine already terminated")

// maxLookahead bounds how many unconsumed messages a single peer may have
// queued before the runtime treats the excess as a protocol violation: one
// message the current round hasn't consumed yet, plus at most one message
// genuinely destined for the next round. A third unconsumed message can only
// mean the peer sent twice within a round the runtime hasn't advanced past,
// which spec.md §4.2 calls a ProtocolViolation.
const maxLookahead = 2

// Runtime drives one StateMachine to termination, enforcing round
// discipline over messages arriving (via Deliver) in per-peer FIFO order.
// It is the only synchronization point between the transport (fabric) and
// the state machine (spec.md §9: "the mailbox is the ONLY point of
// synchronization between the transport and the SM").
type Runtime struct {
	mu sync.Mutex

	machine      StateMachine
	participants []cluster.NodeID

	mailbox       map[cluster.NodeID][]Message
	seenThisRound map[cluster.NodeID]bool

	terminal bool
	final    StepResult
}

// NewRuntime builds a Runtime around an already-constructed StateMachine.
// participants is every OTHER peer in this protocol instance (self excluded).
func NewRuntime(machine StateMachine, participants []cluster.NodeID) *Runtime {
	return &Runtime{
		machine:       machine,
		participants:  append([]cluster.NodeID(nil), participants...),
		mailbox:       make(map[cluster.NodeID][]Message, len(participants)),
		seenThisRound: make(map[cluster.NodeID]bool, len(participants)),
	}
}

// Start kicks off the machine (the "init → round 1" transition) and
// returns whatever it immediately produces — typically an EmitMessages.
func (r *Runtime) Start() ([]StepResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return nil, ErrTerminated
	}
	result := r.machine.Step(nil)
	results := []StepResult{result}
	r.absorb(result)
	if r.terminal {
		return results, nil
	}
	more := r.pumpLocked()
	return append(results, more...), nil
}

// Deliver feeds one inbound peer message into the runtime. It returns the
// sequence of StepResults the state machine produced as a consequence
// (zero or more — a single delivery can complete a round and immediately
// unblock an already-queued future-round message).
func (r *Runtime) Deliver(from cluster.NodeID, body []byte) ([]StepResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.terminal {
		return nil, ErrTerminated
	}

	r.mailbox[from] = append(r.mailbox[from], Message{From: from, Body: body})
	limit := maxLookahead
	if r.seenThisRound[from] {
		// This round's message from the peer is already consumed, so only
		// its next-round message may be waiting.
		limit--
	}
	if len(r.mailbox[from]) > limit {
		result := Failed(ProtocolViolation)
		r.absorb(result)
		return []StepResult{result}, nil
	}

	return r.pumpLocked(), nil
}

// Disconnect transitions the runtime to Failed(PeerDisconnected); called
// by the fabric when a peer's stream closes before termination.
func (r *Runtime) Disconnect(peer cluster.NodeID) []StepResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return nil
	}
	result := Failed(PeerDisconnected)
	r.absorb(result)
	return []StepResult{result}
}

// Cancel transitions the runtime to Failed(Canceled) without emitting any
// further messages (spec.md §4.4 cancellation contract).
func (r *Runtime) Cancel() []StepResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return nil
	}
	result := Failed(Canceled)
	r.absorb(result)
	return []StepResult{result}
}

// IsTerminal reports whether the runtime has reached Terminated or Failed.
func (r *Runtime) IsTerminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminal
}

// Final returns the terminal StepResult; ok is false until IsTerminal.
func (r *Runtime) Final() (StepResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final, r.terminal
}

// pumpLocked repeatedly dequeues one message per not-yet-seen participant
// and steps the machine, until no participant can be advanced or the
// machine terminates. Caller must hold r.mu.
func (r *Runtime) pumpLocked() []StepResult {
	var results []StepResult
	for {
		advanced := false
		for _, peer := range r.participants {
			if r.terminal {
				return results
			}
			if r.seenThisRound[peer] {
				continue
			}
			queue := r.mailbox[peer]
			if len(queue) == 0 {
				continue
			}
			msg := queue[0]
			r.mailbox[peer] = queue[1:]
			r.seenThisRound[peer] = true

			result := r.machine.Step(&msg)
			results = append(results, result)
			r.absorb(result)
			advanced = true
		}
		if !advanced || r.terminal {
			break
		}
	}
	return results
}

// absorb applies a StepResult's state-machine-visible side effect: a
// transition resets the round's seen-set, a terminal result latches the
// runtime permanently (spec.md §4.2: "Termination is monotonic").
func (r *Runtime) absorb(result StepResult) {
	if _, ok := result.NextState(); ok {
		r.seenThisRound = make(map[cluster.NodeID]bool, len(r.participants))
		return
	}
	if result.IsTerminal() {
		r.terminal = true
		r.final = result
	}
}
