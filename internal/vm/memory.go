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
)

// Address names one memory cell the DAG reads from or writes to: a
// stored-value/compute-time input, or a protocol instance's output
// (spec.md §4.6: "reads from memory[address]" / "writes protocol outputs
// back to memory at their output addresses").
type Address string

// Value is whatever one memory cell holds once populated: a share.Share
// for most protocol outputs, a field.Element for a REVEAL result, or one
// of the protocol package's composite Outputs structs (BitDecomposition,
// RandomBitwise, ECDSA). The VM itself never interprets Value — only the
// protocol.New factory (consuming it as an input) and the caller
// harvesting final outputs do.
type Value interface{}

// Memory is the DAG's shared address space: a set of cells that start
// empty and are populated exactly once, with readers blocking until their
// address is written (spec.md §4.6: "waits for all operand addresses to
// be populated"). It is nilVM's only shared mutable structure within one
// VM run besides the Pool and outputs store named in spec.md §9.
type Memory struct {
	mu     sync.Mutex
	cond   *sync.Cond
	values map[Address]Value
}

// NewMemory builds an empty address space, optionally seeded with the
// compute's initial inputs (stored shares, compute-time literals).
func NewMemory(initial map[Address]Value) *Memory {
	m := &Memory{values: make(map[Address]Value, len(initial))}
	m.cond = sync.NewCond(&m.mu)
	for addr, v := range initial {
		m.values[addr] = v
	}
	return m
}

// Set populates addr, waking every goroutine blocked in Await on it.
// Writing the same address twice is a programming error in the caller
// (the DAG guarantees each address has exactly one producer) and panics
// rather than silently overwriting.
func (m *Memory) Set(addr Address, v Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.values[addr]; exists {
		panic("vm: address " + string(addr) + " written twice")
	}
	m.values[addr] = v
	m.cond.Broadcast()
}

// Await blocks until addr is populated or ctx is canceled.
func (m *Memory) Await(ctx context.Context, addr Address) (Value, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		case <-stop:
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if v, ok := m.values[addr]; ok {
			return v, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.cond.Wait()
	}
}

// Get returns addr's value without blocking, for callers (output
// harvesting) that already know every address of interest is populated.
func (m *Memory) Get(addr Address) (Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[addr]
	return v, ok
}
