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
	"golang.org/x/sync/semaphore"

	"github.com/NillionNetwork/nilvm/internal/fabric"
	"github.com/NillionNetwork/nilvm/internal/protocol"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// ErrInstructionFailed wraps the first instruction failure a VM run
// encounters; the underlying sm.FailureKind is recovered with
// errors.Cause for callers (internal/compute) that need to classify it.
type ErrInstructionFailed struct {
	Output Address
	Kind   sm.FailureKind
}

func (e *ErrInstructionFailed) Error() string {
	return "vm: instruction " + string(e.Output) + " failed: " + e.Kind.String()
}

// VM interprets one Program's DAG over a fixed participant set (spec.md
// §4.6). One VM instance runs one ComputeInstance's DAG to completion.
type VM struct {
	fabric       *fabric.Fabric
	directory    *Directory
	participants protocol.Participants
	threshold    int
	maxConcurrent int64
}

// New builds a VM over fabric/directory for the given Participants,
// bounding concurrent protocol instances at maxConcurrent (spec.md §4.6:
// "bounded by max_concurrent_actions").
func New(f *fabric.Fabric, dir *Directory, participants protocol.Participants, threshold int, maxConcurrent int64) *VM {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &VM{fabric: f, directory: dir, participants: participants, threshold: threshold, maxConcurrent: maxConcurrent}
}

// Run executes prog to completion, returning the externally named outputs
// (spec.md §4.6's "Map<OutputName, NadaValue<Encrypted<Encoded>>>" — this
// package stops at the raw Value, leaving encoding to the caller).
func (vm *VM) Run(ctx context.Context, prog Program, memory *Memory) (map[OutputName]Value, error) {
	ordered, err := topoSort(prog.Instructions)
	if err != nil {
		return nil, err
	}

	sem := semaphore.NewWeighted(vm.maxConcurrent)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		firstErr error
	)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for _, instr := range ordered {
		instr := instr
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if err := vm.runInstruction(ctx, instr, memory); err != nil {
				fail(err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if firstErr != nil {
		return nil, firstErr
	}

	outputs := make(map[OutputName]Value, len(prog.Outputs))
	for name, addr := range prog.Outputs {
		v, ok := memory.Get(addr)
		if !ok {
			return nil, errors.Errorf("vm: output %q address %s never populated", name, addr)
		}
		outputs[name] = v
	}
	return outputs, nil
}

// runInstruction waits for instr's operands, instantiates and drives its
// StateMachine, then writes the result to memory.
func (vm *VM) runInstruction(ctx context.Context, instr Instruction, memory *Memory) error {
	inputs := make([]share.Share, 0, len(instr.Inputs))
	for _, addr := range instr.Inputs {
		v, err := memory.Await(ctx, addr)
		if err != nil {
			return errors.Wrapf(err, "vm: awaiting operand %s for %s", addr, instr.Output)
		}
		s, ok := v.(share.Share)
		if !ok {
			return errors.Errorf("vm: operand %s for %s is not a share.Share (got %T)", addr, instr.Output, v)
		}
		inputs = append(inputs, s)
	}

	machine, err := protocol.New(instr.Kind, vm.participants, vm.threshold, inputs, instr.Params)
	if err != nil {
		return errors.Wrapf(err, "vm: building instruction %s", instr.Output)
	}

	drv, err := NewDriver(vm.fabric, vm.directory, machine, vm.participants.Peers())
	if err != nil {
		return errors.Wrapf(err, "vm: driving instruction %s", instr.Output)
	}

	outputs, failed, kind, err := drv.Run(ctx)
	if err != nil {
		return errors.Wrapf(err, "vm: running instruction %s", instr.Output)
	}
	if failed {
		return &ErrInstructionFailed{Output: instr.Output, Kind: kind}
	}

	memory.Set(instr.Output, outputs)
	return nil
}
