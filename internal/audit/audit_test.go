////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package audit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NillionNetwork/nilvm/internal/preprocessing"
	"github.com/NillionNetwork/nilvm/internal/protocol"
	"github.com/NillionNetwork/nilvm/internal/vm"
)

func sampleProgram() vm.Program {
	return vm.Program{
		Inputs: []vm.Address{"a", "b"},
		Instructions: []vm.Instruction{
			{Output: "product", Kind: protocol.KindMult, Inputs: []vm.Address{"a", "b"}},
			{Output: "result", Kind: protocol.KindReveal, Inputs: []vm.Address{"product"}},
		},
		Outputs: map[vm.OutputName]vm.Address{"out": "result"},
	}
}

func TestAuditPassesWithinLimits(t *testing.T) {
	a, err := New(Config{MaxMemorySize: 10}, 0)
	require.NoError(t, err)
	r := a.Audit("addr-1", sampleProgram())
	require.True(t, r.Ok(), r.Reason())
}

func TestAuditFailsMemorySize(t *testing.T) {
	a, err := New(Config{MaxMemorySize: 1}, 0)
	require.NoError(t, err)
	r := a.Audit("addr-1", sampleProgram())
	require.False(t, r.Ok())
	require.Contains(t, r.Reason(), "memory size")
}

func TestAuditFailsInstructionCount(t *testing.T) {
	a, err := New(Config{MaxInstructions: map[protocol.Kind]uint64{protocol.KindMult: 0}}, 0)
	require.NoError(t, err)
	r := a.Audit("addr-1", sampleProgram())
	require.False(t, r.Ok())
	require.Contains(t, r.Reason(), "MULT")
}

func TestAuditFailsPreprocessingExhaustion(t *testing.T) {
	prog := vm.Program{
		Inputs: []vm.Address{"a", "b"},
		Instructions: []vm.Instruction{
			{Output: "cmp", Kind: protocol.KindCompare, Inputs: []vm.Address{"a", "b"}},
		},
		Outputs: map[vm.OutputName]vm.Address{"out": "cmp"},
	}
	a, err := New(Config{MaxPreprocessing: map[preprocessing.Element]uint64{preprocessing.Compare: 0}}, 0)
	require.NoError(t, err)
	r := a.Audit("addr-1", prog)
	require.False(t, r.Ok())
	require.Contains(t, r.Reason(), "Compare")
}

func TestAuditFailsUndefinedReference(t *testing.T) {
	prog := vm.Program{
		Instructions: []vm.Instruction{
			{Output: "result", Kind: protocol.KindReveal, Inputs: []vm.Address{"missing"}},
		},
		Outputs: map[vm.OutputName]vm.Address{"out": "result"},
	}
	a, err := New(Config{}, 0)
	require.NoError(t, err)
	r := a.Audit("addr-1", prog)
	require.False(t, r.Ok())
	require.Contains(t, r.Reason(), "undefined")
}

func TestAuditMemoizesByContentAddress(t *testing.T) {
	a, err := New(Config{MaxMemorySize: 1}, 0)
	require.NoError(t, err)

	first := a.Audit("addr-1", sampleProgram())
	require.False(t, first.Ok())

	// A different program under the same content address gets the
	// cached verdict rather than being re-checked — this is the
	// memoization contract, not a correctness statement about the
	// second program.
	trivial := vm.Program{Outputs: map[vm.OutputName]vm.Address{}}
	second := a.Audit("addr-1", trivial)
	require.Equal(t, first, second)
}
