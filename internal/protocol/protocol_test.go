package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NillionNetwork/nilvm/internal/cluster"
	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/share"
	"github.com/NillionNetwork/nilvm/internal/sm"
)

// testCluster builds a 3-party, threshold-1 Participants view per node,
// the smallest shape satisfying MULT's N ≥ 2T+1 requirement.
func testCluster(t *testing.T) (field.Modulus, []cluster.NodeID, map[cluster.NodeID]Participants) {
	t.Helper()
	m := field.Safe64Bits()
	ids := []cluster.NodeID{{1}, {2}, {3}}
	index := map[cluster.NodeID]share.PartyID{ids[0]: 1, ids[1]: 2, ids[2]: 3}
	participants := make(map[cluster.NodeID]Participants, 3)
	for _, id := range ids {
		participants[id] = Participants{Self: id, Order: ids, Index: index}
	}
	return m, ids, participants
}

// driveToTermination synchronously simulates full-mesh message delivery
// between one sm.StateMachine per node until every machine reaches a
// terminal StepResult, returning each node's outcome.
func driveToTermination(t *testing.T, ids []cluster.NodeID, machines map[cluster.NodeID]sm.StateMachine) map[cluster.NodeID]sm.StepResult {
	t.Helper()
	type pending struct {
		to   cluster.NodeID
		from cluster.NodeID
		body []byte
	}

	final := make(map[cluster.NodeID]sm.StepResult)
	var queue []pending

	for _, id := range ids {
		r := machines[id].Step(nil)
		if out, ok := r.Emitted(); ok {
			for _, o := range out {
				queue = append(queue, pending{to: o.To, from: id, body: o.Body})
			}
		}
		if r.IsTerminal() {
			final[id] = r
		}
	}

	for steps := 0; len(final) < len(ids) && len(queue) > 0; steps++ {
		require.Less(t, steps, 10000, "protocol did not converge")
		next := queue[0]
		queue = queue[1:]
		if _, done := final[next.to]; done {
			continue
		}
		r := machines[next.to].Step(&sm.Message{From: next.from, Body: next.body})
		if out, ok := r.Emitted(); ok {
			for _, o := range out {
				queue = append(queue, pending{to: o.To, from: next.to, body: o.Body})
			}
		}
		if r.IsTerminal() {
			final[next.to] = r
		}
	}
	require.Len(t, final, len(ids), "not every participant terminated")
	return final
}

func makeShares(t *testing.T, m field.Modulus, secret uint64) map[cluster.NodeID]share.Share {
	t.Helper()
	_, ids, _ := testCluster(t)
	parties := []share.PartyID{1, 2, 3}
	shares, err := share.Shares(field.FromUint64(m, secret), 1, parties)
	require.NoError(t, err)
	out := make(map[cluster.NodeID]share.Share, 3)
	for i, id := range ids {
		out[id] = shares[i]
	}
	return out
}

func TestRevealReconstructsSecret(t *testing.T) {
	m, ids, participants := testCluster(t)
	shares := makeShares(t, m, 42)

	machines := make(map[cluster.NodeID]sm.StateMachine, 3)
	for _, id := range ids {
		machines[id] = NewReveal(participants[id], 1, shares[id])
	}
	results := driveToTermination(t, ids, machines)
	for _, id := range ids {
		outputs, failed, _, _ := results[id].Outcome()
		require.False(t, failed)
		got, ok := RevealOutput(outputs)
		require.True(t, ok)
		require.Equal(t, field.FromUint64(m, 42), got)
	}
}

func TestMultProducesProductShares(t *testing.T) {
	m, ids, participants := testCluster(t)
	a := makeShares(t, m, 6)
	b := makeShares(t, m, 7)

	machines := make(map[cluster.NodeID]sm.StateMachine, 3)
	for _, id := range ids {
		machines[id] = NewMult(participants[id], 1, a[id], b[id])
	}
	results := driveToTermination(t, ids, machines)

	product := make([]share.Share, 0, 3)
	for _, id := range ids {
		outputs, failed, _, _ := results[id].Outcome()
		require.False(t, failed)
		s, ok := MultOutput(outputs)
		require.True(t, ok)
		product = append(product, s)
	}
	got, err := share.Reconstruct(product, 1)
	require.NoError(t, err)
	require.Equal(t, field.FromUint64(m, 42), got)
}

func TestEqualsDetectsEquality(t *testing.T) {
	m, ids, participants := testCluster(t)
	a := makeShares(t, m, 9)
	b := makeShares(t, m, 9)
	r := makeShares(t, m, 1234) // nonzero mask; any value works as long as all parties hold consistent shares of it

	machines := make(map[cluster.NodeID]sm.StateMachine, 3)
	for _, id := range ids {
		machines[id] = NewEquals(participants[id], 1, a[id], b[id], r[id])
	}
	results := driveToTermination(t, ids, machines)

	out := make([]share.Share, 0, 3)
	for _, id := range ids {
		outputs, failed, _, _ := results[id].Outcome()
		require.False(t, failed)
		s, ok := EqualsOutput(outputs)
		require.True(t, ok)
		out = append(out, s)
	}
	got, err := share.Reconstruct(out, 0)
	require.NoError(t, err)
	require.Equal(t, field.One(m), got)
}

func TestEqualsDetectsInequality(t *testing.T) {
	m, ids, participants := testCluster(t)
	a := makeShares(t, m, 9)
	b := makeShares(t, m, 10)
	r := makeShares(t, m, 1234)

	machines := make(map[cluster.NodeID]sm.StateMachine, 3)
	for _, id := range ids {
		machines[id] = NewEquals(participants[id], 1, a[id], b[id], r[id])
	}
	results := driveToTermination(t, ids, machines)

	out := make([]share.Share, 0, 3)
	for _, id := range ids {
		outputs, _, _, _ := results[id].Outcome()
		s, _ := EqualsOutput(outputs)
		out = append(out, s)
	}
	got, err := share.Reconstruct(out, 0)
	require.NoError(t, err)
	require.Equal(t, field.Zero(m), got)
}

func TestInvRanProducesInverse(t *testing.T) {
	m, ids, participants := testCluster(t)
	a := makeShares(t, m, 5)
	r := makeShares(t, m, 11)

	machines := make(map[cluster.NodeID]sm.StateMachine, 3)
	for _, id := range ids {
		machines[id] = NewInvRan(participants[id], 1, a[id], r[id])
	}
	results := driveToTermination(t, ids, machines)

	out := make([]share.Share, 0, 3)
	for _, id := range ids {
		outputs, failed, _, _ := results[id].Outcome()
		require.False(t, failed)
		s, ok := InvRanOutput(outputs)
		require.True(t, ok)
		out = append(out, s)
	}
	got, err := share.Reconstruct(out, 1)
	require.NoError(t, err)

	expected, err := field.FromUint64(m, 5).Inv()
	require.NoError(t, err)
	require.Equal(t, expected, got)
}

func TestDivPublicFloorsQuotient(t *testing.T) {
	m, ids, participants := testCluster(t)
	a := makeShares(t, m, 100)
	rLow := makeShares(t, m, 3)
	rHigh := makeShares(t, m, 1)

	const fracBits = 16
	machines := make(map[cluster.NodeID]sm.StateMachine, 3)
	for _, id := range ids {
		d, err := NewDivPublic(participants[id], 1, a[id], 7, fracBits, rLow[id], rHigh[id])
		require.NoError(t, err)
		machines[id] = d
	}
	results := driveToTermination(t, ids, machines)

	out := make([]share.Share, 0, 3)
	for _, id := range ids {
		outputs, failed, _, _ := results[id].Outcome()
		require.False(t, failed)
		s, ok := DivPublicOutput(outputs)
		require.True(t, ok)
		out = append(out, s)
	}
	got, err := share.Reconstruct(out, 1)
	require.NoError(t, err)
	// 100 * floor(2^16/7) = 936200; masking with rLow=3, rHigh=1 reveals
	// 1001739, whose shift by 16 bits is 15, and 15 - rHigh = 14.
	require.True(t, got.Equal(field.FromUint64(m, 14)))
}

func TestDivPublicRejectsZeroDivisor(t *testing.T) {
	m, ids, participants := testCluster(t)
	a := makeShares(t, m, 100)
	rLow := makeShares(t, m, 3)
	rHigh := makeShares(t, m, 1)

	_, err := NewDivPublic(participants[ids[0]], 1, a[ids[0]], 0, 16, rLow[ids[0]], rHigh[ids[0]])
	require.ErrorIs(t, err, ErrPublicDivisorZero)
}
