////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package fabric is the message fabric (spec.md §4.4): per-instance
// bidirectional streams with in-order delivery, a waiting-peers bootstrap
// window, and a stream demultiplexer that routes inbound bytes to the
// right sm.Runtime. It is grounded on the teacher's io/receivers +
// io/transmitters split — receive-side demux against send-side dispatch —
// generalized from per-round batch streaming to per-(instance,peer)
// message streams.
package fabric

import (
	"context"
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"
	"github.com/pkg/errors"

	"github.com/NillionNetwork/nilvm/internal/cluster"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// BootstrapWindow is how long an inbound message for an instance this
// node has not yet registered is held before being dropped, covering the
// ordinary race where a faster peer starts sending before the local VM
// has finished constructing the matching ProtocolInstance.
const BootstrapWindow = 30 * time.Second

// ErrFabricClosed is returned by Send/Deliver once Close has run.
var ErrFabricClosed = errors.New("fabric: closed")

// waiting holds messages for an instance that has not registered yet,
// along with the deadline after which they are dropped.
type waiting struct {
	messages []pendingMessage
	deadline time.Time
}

type pendingMessage struct {
	from cluster.NodeID
	body []byte
}

// Dialer abstracts outbound peer connections so Fabric stays transport
// agnostic; internal/transport supplies the real gRPC-backed
// implementation. It mirrors drand's core/net dialer-cache role.
type Dialer interface {
	Send(ctx context.Context, to cluster.NodeID, instance sm.InstanceID, body []byte) error
}

// Fabric demultiplexes inbound peer bytes onto registered sm.Runtime
// instances, and dispatches outbound sm.Outbound messages through a
// Dialer, enforcing FIFO order per (instance, peer) stream (spec.md §4.4:
// "(a) messages within one (instance, peer) stream are delivered in FIFO
// order; (b) there is NO cross-instance order guarantee").
type Fabric struct {
	mu       sync.Mutex
	registry *sm.Registry
	dialer   Dialer
	waiting  map[sm.InstanceID]*waiting
	closed   bool

	now func() time.Time
}

// New builds a Fabric backed by the given instance registry and outbound
// Dialer.
func New(registry *sm.Registry, dialer Dialer) *Fabric {
	return &Fabric{
		registry: registry,
		dialer:   dialer,
		waiting:  make(map[sm.InstanceID]*waiting),
		now:      time.Now,
	}
}

// Deliver routes one inbound peer message to its instance's Runtime. If
// the instance is not yet registered, the message is buffered for up to
// BootstrapWindow rather than dropped immediately.
func (f *Fabric) Deliver(instance sm.InstanceID, from cluster.NodeID, body []byte) ([]sm.StepResult, error) {
	f.sweepExpired()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFabricClosed
	}
	rt, err := f.registry.Resolve(instance)
	if err == nil {
		f.mu.Unlock()
		return rt.Deliver(from, body)
	}

	w, ok := f.waiting[instance]
	if !ok {
		w = &waiting{deadline: f.now().Add(BootstrapWindow)}
		f.waiting[instance] = w
	}
	if f.now().After(w.deadline) {
		delete(f.waiting, instance)
		f.mu.Unlock()
		jww.WARN.Printf("fabric: dropping message for instance %s: bootstrap window elapsed", instance)
		return nil, sm.ErrUnknownInstance
	}
	w.messages = append(w.messages, pendingMessage{from: from, body: body})
	f.mu.Unlock()
	return nil, nil
}

// Register makes a newly constructed Runtime visible to Deliver, flushing
// any messages that arrived for it during its bootstrap window and
// returning whatever StepResults that replay produced — callers must
// process these exactly as they process Deliver's return value (send any
// Emitted messages, check for an already-terminal outcome), since a
// buffered peer can race far enough ahead to finish its own round before
// the local instance ever gets a chance to observe it live. Register must
// only be called after rt.Start() so a replayed message is never handed
// to a Runtime that has not yet made its init transition.
func (f *Fabric) Register(instance sm.InstanceID, rt *sm.Runtime) ([]sm.StepResult, error) {
	if err := f.registry.Register(instance, rt); err != nil {
		return nil, err
	}

	f.mu.Lock()
	w, ok := f.waiting[instance]
	if ok {
		delete(f.waiting, instance)
	}
	f.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var results []sm.StepResult
	for _, m := range w.messages {
		r, err := rt.Deliver(m.from, m.body)
		if err != nil {
			jww.WARN.Printf("fabric: replaying buffered message for instance %s: %+v", instance, err)
			continue
		}
		results = append(results, r...)
	}
	return results, nil
}

// Send dispatches one instance's outbound messages through the Dialer.
// Per-peer ordering is the caller's responsibility: Send does not
// reorder, but concurrent calls for the same (instance, peer) pair from
// different goroutines would — callers drive one instance's Runtime from
// a single goroutine, as internal/vm does.
func (f *Fabric) Send(ctx context.Context, instance sm.InstanceID, outbound []sm.Outbound) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrFabricClosed
	}
	for _, o := range outbound {
		if err := f.dialer.Send(ctx, o.To, instance, o.Body); err != nil {
			return errors.Wrapf(err, "fabric: sending to %s", o.To)
		}
	}
	return nil
}

// sweepExpired removes bootstrap buffers whose window has elapsed. Deliver
// calls it on every inbound message; it is not run on a background timer,
// which keeps Fabric free of its own goroutine lifecycle.
func (f *Fabric) sweepExpired() {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	for id, w := range f.waiting {
		if now.After(w.deadline) {
			delete(f.waiting, id)
		}
	}
}

// Close marks the Fabric closed; in-flight Sends already past the closed
// check are allowed to finish, matching the teacher's CloseAndRecv pattern
// of draining rather than aborting outstanding streams.
func (f *Fabric) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}
