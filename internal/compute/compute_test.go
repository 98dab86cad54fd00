////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package compute

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/NillionNetwork/nilvm/internal/audit"
	"github.com/NillionNetwork/nilvm/internal/preprocessing"
	"github.com/NillionNetwork/nilvm/internal/protocol"
	"github.com/NillionNetwork/nilvm/internal/vm"
)

// fakeRunner stands in for *vm.VM so these tests exercise the
// orchestrator's lifecycle bookkeeping without the fabric/sm stack.
type fakeRunner struct {
	outputs map[vm.OutputName]vm.Value
	err     error
	delay   <-chan struct{} // if set, Run blocks until closed or ctx is done
}

func (f *fakeRunner) Run(ctx context.Context, prog vm.Program, memory *vm.Memory) (map[vm.OutputName]vm.Value, error) {
	if f.delay != nil {
		select {
		case <-f.delay:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.outputs, f.err
}

func simpleProgram() vm.Program {
	return vm.Program{
		Inputs: []vm.Address{"a", "b"},
		Instructions: []vm.Instruction{
			{Output: "result", Kind: protocol.KindMult, Inputs: []vm.Address{"a", "b"}},
		},
		Outputs: map[vm.OutputName]vm.Address{"out": "result"},
	}
}

func newTestOrchestrator(t *testing.T, runner Runner) *Orchestrator {
	t.Helper()
	a, err := audit.New(audit.Config{}, 0)
	require.NoError(t, err)
	pm := preprocessing.NewManager(preprocessing.Config{})
	return New(runner, pm, a, 4, time.Second, time.Minute)
}

func TestInvokeComputeSucceeds(t *testing.T) {
	runner := &fakeRunner{outputs: map[vm.OutputName]vm.Value{"out": "42"}}
	o := newTestOrchestrator(t, runner)

	id, err := o.InvokeCompute(context.Background(), Request{
		Program:        simpleProgram(),
		Memory:         vm.NewMemory(nil),
		OutputBindings: map[vm.OutputName][]string{"out": {"alice"}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := o.RetrieveResults(id, "alice")
		return v.Outcome != OutcomeWaiting
	}, time.Second, time.Millisecond)

	v, err := o.RetrieveResults(id, "alice")
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, v.Outcome)
	require.Equal(t, vm.Value("42"), v.Values["out"])
}

func TestInvokeComputeFailurePropagatesToRetrieveResults(t *testing.T) {
	runner := &fakeRunner{err: errors.New("boom")}
	o := newTestOrchestrator(t, runner)

	id, err := o.InvokeCompute(context.Background(), Request{
		Program:        simpleProgram(),
		Memory:         vm.NewMemory(nil),
		OutputBindings: map[vm.OutputName][]string{"out": {"alice"}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := o.RetrieveResults(id, "alice")
		return v.Outcome != OutcomeWaiting
	}, time.Second, time.Millisecond)

	v, err := o.RetrieveResults(id, "alice")
	require.NoError(t, err)
	require.Equal(t, OutcomeError, v.Outcome)
	require.Contains(t, v.Err, "boom")
}

func TestRetrieveResultsRejectsUserNotInOutputBindings(t *testing.T) {
	runner := &fakeRunner{outputs: map[vm.OutputName]vm.Value{"out": "42"}}
	o := newTestOrchestrator(t, runner)

	id, err := o.InvokeCompute(context.Background(), Request{
		Program:        simpleProgram(),
		Memory:         vm.NewMemory(nil),
		OutputBindings: map[vm.OutputName][]string{"out": {"alice"}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := o.RetrieveResults(id, "alice")
		return err == nil
	}, time.Second, time.Millisecond)

	_, err = o.RetrieveResults(id, "mallory")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestInvokeComputeRejectsAtAdmissionLimit(t *testing.T) {
	block := make(chan struct{})
	runner := &fakeRunner{delay: block}
	defer close(block)

	a, err := audit.New(audit.Config{}, 0)
	require.NoError(t, err)
	o := New(runner, preprocessing.NewManager(preprocessing.Config{}), a, 1, time.Minute, time.Minute)

	_, err = o.InvokeCompute(context.Background(), Request{Program: simpleProgram(), Memory: vm.NewMemory(nil)})
	require.NoError(t, err)

	_, err = o.InvokeCompute(context.Background(), Request{Program: simpleProgram(), Memory: vm.NewMemory(nil)})
	require.ErrorIs(t, err, ErrTooManyConcurrentComputes)
}

func TestInvokeComputeRejectedByAuditBeforeReservation(t *testing.T) {
	a, err := audit.New(audit.Config{MaxInstructions: map[protocol.Kind]uint64{protocol.KindCompare: 0}}, 0)
	require.NoError(t, err)
	pm := preprocessing.NewManager(preprocessing.Config{})
	o := New(&fakeRunner{}, pm, a, 4, time.Second, time.Minute)

	prog := vm.Program{
		Inputs:       []vm.Address{"a", "b"},
		Instructions: []vm.Instruction{{Output: "cmp", Kind: protocol.KindCompare, Inputs: []vm.Address{"a", "b"}}},
		Outputs:      map[vm.OutputName]vm.Address{"out": "cmp"},
	}
	_, err = o.InvokeCompute(context.Background(), Request{Program: prog, Memory: vm.NewMemory(nil)})
	require.ErrorIs(t, err, ErrAuditFailed)

	comparePool, err := pm.Pool(preprocessing.Compare)
	require.NoError(t, err)
	require.Equal(t, uint64(0), comparePool.Observe().Reserved, "rejected-by-audit program never reserves")
}

func TestInvokeComputeRejectedByPreprocessingExhaustion(t *testing.T) {
	a, err := audit.New(audit.Config{}, 0)
	require.NoError(t, err)
	pm := preprocessing.NewManager(preprocessing.Config{}) // nothing generated
	o := New(&fakeRunner{}, pm, a, 4, time.Second, time.Minute)

	prog := vm.Program{
		Inputs:       []vm.Address{"a", "b"},
		Instructions: []vm.Instruction{{Output: "cmp", Kind: protocol.KindCompare, Inputs: []vm.Address{"a", "b"}}},
		Outputs:      map[vm.OutputName]vm.Address{"out": "cmp"},
	}
	_, err = o.InvokeCompute(context.Background(), Request{Program: prog, Memory: vm.NewMemory(nil)})
	require.ErrorIs(t, err, ErrPreprocessingExhausted)
}

func TestCancelTransitionsToCanceled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	runner := &fakeRunner{delay: block}
	o := newTestOrchestrator(t, runner)

	id, err := o.InvokeCompute(context.Background(), Request{
		Program:        simpleProgram(),
		Memory:         vm.NewMemory(nil),
		OutputBindings: map[vm.OutputName][]string{"out": {"alice"}},
	})
	require.NoError(t, err)

	require.NoError(t, o.Cancel(id))

	require.Eventually(t, func() bool {
		v, _ := o.RetrieveResults(id, "alice")
		return v.Outcome != OutcomeWaiting
	}, time.Second, time.Millisecond)

	v, err := o.RetrieveResults(id, "alice")
	require.NoError(t, err)
	require.Equal(t, OutcomeError, v.Outcome)
	require.Contains(t, v.Err, "Canceled")
}
