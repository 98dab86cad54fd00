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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NillionNetwork/nilvm/internal/cluster"
	"github.com/NillionNetwork/nilvm/internal/fabric"
	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/protocol"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// loopbackDialer connects a node's Fabric directly to its peers' Fabric
// and Directory in-process, standing in for internal/transport's real
// gRPC dialer so VM tests exercise the actual sm.Runtime/fabric.Fabric
// wiring without a network.
type loopbackDialer struct {
	self  cluster.NodeID
	peers map[cluster.NodeID]*nodeStack
}

func (d *loopbackDialer) Send(ctx context.Context, to cluster.NodeID, instance sm.InstanceID, body []byte) error {
	peer := d.peers[to]
	results, err := peer.fabric.Deliver(instance, d.self, body)
	if err != nil {
		return err
	}
	peer.directory.Feed(instance, results)
	return nil
}

type nodeStack struct {
	id        cluster.NodeID
	fabric    *fabric.Fabric
	directory *Directory
	vm        *VM
}

// buildNetwork wires N full VM stacks sharing one in-process loopback
// fabric, mirroring the 3-party threshold-1 shape protocol_test.go uses.
func buildNetwork(t *testing.T, threshold int, ids []cluster.NodeID, participants map[cluster.NodeID]protocol.Participants) map[cluster.NodeID]*nodeStack {
	t.Helper()
	stacks := make(map[cluster.NodeID]*nodeStack, len(ids))

	for _, id := range ids {
		registry := sm.NewRegistry()
		f := fabric.New(registry, &loopbackDialer{self: id, peers: stacks})
		dir := NewDirectory()
		stacks[id] = &nodeStack{
			id:        id,
			fabric:    f,
			directory: dir,
			vm:        New(f, dir, participants[id], threshold, 4),
		}
	}
	return stacks
}

func testCluster3(t *testing.T) (field.Modulus, []cluster.NodeID, map[cluster.NodeID]protocol.Participants) {
	t.Helper()
	m := field.Safe64Bits()
	ids := []cluster.NodeID{{1}, {2}, {3}}
	index := map[cluster.NodeID]share.PartyID{ids[0]: 1, ids[1]: 2, ids[2]: 3}
	participants := make(map[cluster.NodeID]protocol.Participants, 3)
	for _, id := range ids {
		participants[id] = protocol.Participants{Self: id, Order: ids, Index: index}
	}
	return m, ids, participants
}

func sharesOf(t *testing.T, m field.Modulus, ids []cluster.NodeID, secret uint64) map[cluster.NodeID]share.Share {
	t.Helper()
	parties := []share.PartyID{1, 2, 3}
	shares, err := share.Shares(field.FromUint64(m, secret), 1, parties)
	require.NoError(t, err)
	out := make(map[cluster.NodeID]share.Share, len(ids))
	for i, id := range ids {
		out[id] = shares[i]
	}
	return out
}

func TestVMRunsMultThenReveal(t *testing.T) {
	m, ids, participants := testCluster3(t)
	aShares := sharesOf(t, m, ids, 6)
	bShares := sharesOf(t, m, ids, 7)

	stacks := buildNetwork(t, 1, ids, participants)

	prog := Program{
		Inputs: []Address{"a", "b"},
		Instructions: []Instruction{
			{Output: "product", Kind: protocol.KindMult, Inputs: []Address{"a", "b"}},
			{Output: "result", Kind: protocol.KindReveal, Inputs: []Address{"product"}},
		},
		Outputs: map[OutputName]Address{"out": "result"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	outputs := make(map[cluster.NodeID]map[OutputName]Value, len(ids))
	var mu sync.Mutex
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			mem := NewMemory(map[Address]Value{
				"a": aShares[id],
				"b": bShares[id],
			})
			out, err := stacks[id].vm.Run(ctx, prog, mem)
			require.NoError(t, err)
			mu.Lock()
			outputs[id] = out
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, outputs, len(ids))
	for _, id := range ids {
		revealed, ok := protocol.RevealOutput(outputs[id]["out"])
		require.True(t, ok)
		require.Equal(t, int64(42), revealed.Int64())
	}
}

func TestVMDetectsCycle(t *testing.T) {
	prog := Program{
		Instructions: []Instruction{
			{Output: "x", Kind: protocol.KindReveal, Inputs: []Address{"y"}},
			{Output: "y", Kind: protocol.KindReveal, Inputs: []Address{"x"}},
		},
	}
	_, err := topoSort(prog.Instructions)
	require.Error(t, err)
}
