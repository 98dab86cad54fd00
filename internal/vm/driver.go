////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package vm

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/NillionNetwork/nilvm/internal/cluster"
	"github.com/NillionNetwork/nilvm/internal/fabric"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// Directory routes StepResults produced by an inbound Fabric.Deliver call
// back to the Driver that owns that instance. Fabric itself only knows
// how to route raw bytes to a *sm.Runtime (so transport can call
// Deliver); it does not know what to do with the StepResults that come
// back out, since deciding that (send outbound, detect termination) is
// the Driver's job. Whatever wires internal/transport's DeliverMessage
// handler calls Directory.Feed with whatever Fabric.Deliver returned.
type Directory struct {
	mu      sync.Mutex
	drivers map[sm.InstanceID]*Driver
}

// NewDirectory builds an empty instance directory.
func NewDirectory() *Directory {
	return &Directory{drivers: make(map[sm.InstanceID]*Driver)}
}

func (d *Directory) register(id sm.InstanceID, drv *Driver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drivers[id] = drv
}

func (d *Directory) unregister(id sm.InstanceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.drivers, id)
}

// Feed hands inbound-triggered StepResults to instance id's Driver, if
// this node still has one registered (it may have already terminated and
// been evicted, in which case the results are a harmless straggler).
func (d *Directory) Feed(id sm.InstanceID, results []sm.StepResult) {
	d.mu.Lock()
	drv := d.drivers[id]
	d.mu.Unlock()
	if drv == nil {
		return
	}
	for _, r := range results {
		drv.feed <- r
	}
}

// Driver runs one ProtocolInstance to termination: register with Fabric,
// kick off the StateMachine, relay every Emitted batch through Fabric.Send,
// and return once a terminal StepResult arrives.
type Driver struct {
	id      sm.InstanceID
	rt      *sm.Runtime
	fabric  *fabric.Fabric
	dir     *Directory
	feed    chan sm.StepResult
	pending []sm.StepResult
}

// NewDriver starts machine's Runtime and registers it with the Fabric
// under a new InstanceID, returning a Driver ready to run it. peers is
// every other participant in this protocol instance (self excluded),
// matching sm.NewRuntime. Start runs before Register so any message that
// arrived before this call (buffered in the Fabric's bootstrap window)
// is only ever replayed into a Runtime that has already made its init
// transition; both Start's and the replay's results are queued for Run
// to process first.
func NewDriver(f *fabric.Fabric, dir *Directory, machine sm.StateMachine, peers []cluster.NodeID) (*Driver, error) {
	return NewDriverWithID(f, dir, sm.NewInstanceID(), machine, peers)
}

// NewDriverWithID is NewDriver for a caller that must agree on the
// instance id out of band rather than take the random one NewDriver
// mints with sm.NewInstanceID — internal/transport's preprocessing
// BatchRunner derives id from {element, generation_id, offset} so every
// cluster member resolves the same instance without a handshake.
func NewDriverWithID(f *fabric.Fabric, dir *Directory, id sm.InstanceID, machine sm.StateMachine, peers []cluster.NodeID) (*Driver, error) {
	rt := sm.NewRuntime(machine, peers)
	startResults, err := rt.Start()
	if err != nil {
		return nil, errors.Wrap(err, "vm: starting instance")
	}

	replayed, err := f.Register(id, rt)
	if err != nil {
		return nil, errors.Wrap(err, "vm: registering instance")
	}

	drv := &Driver{
		id:      id,
		rt:      rt,
		fabric:  f,
		dir:     dir,
		feed:    make(chan sm.StepResult, 8),
		pending: append(startResults, replayed...),
	}
	dir.register(id, drv)
	return drv, nil
}

// Run drives the instance to termination, returning its outcome. ctx
// cancellation surfaces as the runtime transitioning to Failed(Canceled)
// (spec.md §5: "observable at the next suspension point").
func (d *Driver) Run(ctx context.Context) (outputs sm.Outputs, failed bool, kind sm.FailureKind, err error) {
	defer d.dir.unregister(d.id)

	if out, f, k, ok, rerr := d.process(ctx, d.pending); rerr != nil || ok {
		return out, f, k, rerr
	}

	for {
		select {
		case <-ctx.Done():
			results := d.rt.Cancel()
			out, f, k, _, rerr := d.process(ctx, results)
			if rerr != nil {
				return nil, false, 0, rerr
			}
			return out, f, k, nil
		case r := <-d.feed:
			if out, f, k, ok, rerr := d.process(ctx, []sm.StepResult{r}); rerr != nil || ok {
				return out, f, k, rerr
			}
		}
	}
}

// process sends any emitted messages and checks for termination. ok is
// true once a terminal result has been observed, at which point the
// caller should return immediately with the extracted outcome.
func (d *Driver) process(ctx context.Context, results []sm.StepResult) (outputs sm.Outputs, failed bool, kind sm.FailureKind, ok bool, err error) {
	for _, r := range results {
		if out, isEmit := r.Emitted(); isEmit {
			if sendErr := d.fabric.Send(ctx, d.id, out); sendErr != nil {
				return nil, false, 0, false, errors.Wrap(sendErr, "vm: sending instance messages")
			}
		}
		if outs, isFailed, failureKind, terminal := r.Outcome(); terminal {
			return outs, isFailed, failureKind, true, nil
		}
	}
	return nil, false, 0, false, nil
}
