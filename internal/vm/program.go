////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

// Package vm interprets one compiled program's protocol DAG (spec.md
// §4.6): it topologically orders protocol instances, waits for each
// one's operand addresses, instantiates and drives its state machine
// with the right peer set and preprocessing offsets, and writes outputs
// back to memory. It generalizes the teacher's graphs/initializer.go
// (build a services.Graph DAG, run it end to end) from "batch of
// cryptop slots" to "DAG of ProtocolInstances over nilVM's SM runtime".
package vm

import (
	"github.com/pkg/errors"

	"github.com/NillionNetwork/nilvm/internal/protocol"
)

// Instruction is one DAG node: one protocol invocation consuming a fixed
// set of input addresses and producing exactly one output address
// (spec.md §4.6). Reduction to a single output address per instruction
// matches every protocol in internal/protocol except the composite ones
// (BitDecomposition, RandomBitwise, ECDSA*), whose Outputs struct is
// itself stored at Output and destructured by whoever names its fields
// in a later instruction's Params, rather than by the VM.
type Instruction struct {
	Output Address
	Kind   protocol.Kind
	Inputs []Address
	Params protocol.Params
}

// OutputName is a program's externally visible result name (spec.md
// §4.6's "Map<OutputName, NadaValue<Encrypted<Encoded>>>").
type OutputName string

// Program is a compiled Nada artifact's protocol DAG and IO contract
// (spec.md GLOSSARY: "compiled Nada artifact consisting of bytecode,
// protocol DAG, and IO contract" — the bytecode/type-checking concerns
// belong to internal/audit's static checks, not to this package, which
// only runs an already-validated DAG).
type Program struct {
	// Inputs declares the IO contract's external addresses: everything
	// the compute orchestrator must seed into Memory before Run, and
	// the only addresses an instruction may reference without another
	// instruction producing them first. internal/audit checks every
	// Instruction.Inputs entry resolves to either this set or another
	// instruction's Output.
	Inputs       []Address
	Instructions []Instruction
	Outputs      map[OutputName]Address
}

// Consumption sums every instruction's preprocessing requirement, for
// the orchestrator to reserve up front (spec.md §4.7 step 3).
func (p Program) Consumption() map[protocol.Element]int {
	total := make(map[protocol.Element]int)
	for _, instr := range p.Instructions {
		for elem, n := range protocol.Consumption(instr.Kind) {
			total[elem] += n
		}
	}
	return total
}

// topoSort orders instructions so every input address a later
// instruction depends on is produced by an earlier one (or is present in
// the Program's external inputs, which the caller seeds into Memory
// before running). It rejects a cycle or two instructions sharing an
// output address, both programming errors in whatever compiled the
// Program (spec.md §9: "the protocol DAG is acyclic by construction").
func topoSort(instrs []Instruction) ([]Instruction, error) {
	producedBy := make(map[Address]int, len(instrs))
	for i, instr := range instrs {
		if _, dup := producedBy[instr.Output]; dup {
			return nil, errors.Errorf("vm: address %s produced by two instructions", instr.Output)
		}
		producedBy[instr.Output] = i
	}

	deps := make([][]int, len(instrs))
	for i, instr := range instrs {
		for _, in := range instr.Inputs {
			if j, ok := producedBy[in]; ok {
				deps[i] = append(deps[i], j)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make([]int, len(instrs))
	var order []Instruction
	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case visited:
			return nil
		case visiting:
			return errors.Errorf("vm: cycle detected at address %s", instrs[i].Output)
		}
		state[i] = visiting
		for _, j := range deps[i] {
			if err := visit(j); err != nil {
				return err
			}
		}
		state[i] = visited
		order = append(order, instrs[i])
		return nil
	}
	for i := range instrs {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}
