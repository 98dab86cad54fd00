package sm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NillionNetwork/nilvm/internal/cluster"
)

// echoMachine is a trivial two-round test SM: round 1 it emits a ping to
// every peer and waits; once it has heard from every peer it transitions
// to round 2 and waits again, then terminates on the second full round of
// replies.
type echoMachine struct {
	peers     []cluster.NodeID
	round     int
	delivered int
}

func (m *echoMachine) CurrentState() StateTag {
	return StateTag([]byte{byte('0' + m.round)})
}

func (m *echoMachine) Step(inbound *Message) StepResult {
	if inbound == nil {
		m.round = 1
		return EmitMessages(m.broadcast([]byte("ping")))
	}
	m.delivered++
	if m.delivered < len(m.peers) {
		return WaitForMoreMessages()
	}
	m.delivered = 0
	if m.round == 1 {
		m.round = 2
		return TransitionTo(m.CurrentState())
	}
	return Terminated("done")
}

func (m *echoMachine) broadcast(body []byte) []Outbound {
	out := make([]Outbound, len(m.peers))
	for i, p := range m.peers {
		out[i] = Outbound{To: p, Body: body}
	}
	return out
}

func peerIDs(n int) []cluster.NodeID {
	out := make([]cluster.NodeID, n)
	for i := range out {
		out[i][0] = byte(i + 1)
	}
	return out
}

func TestRuntimeHappyPath(t *testing.T) {
	peers := peerIDs(3)
	m := &echoMachine{peers: peers}
	rt := NewRuntime(m, peers)

	results, err := rt.Start()
	require.NoError(t, err)
	require.Len(t, results, 1)
	_, isEmit := results[0].Emitted()
	require.True(t, isEmit)

	// Round 1: deliver from all three peers.
	for _, p := range peers[:2] {
		res, err := rt.Deliver(p, []byte("ping"))
		require.NoError(t, err)
		for _, r := range res {
			require.True(t, r.Waiting() || r.IsTerminal() == false)
		}
	}
	res, err := rt.Deliver(peers[2], []byte("ping"))
	require.NoError(t, err)
	// third delivery completes round 1 -> transition to round 2
	foundTransition := false
	for _, r := range res {
		if _, ok := r.NextState(); ok {
			foundTransition = true
		}
	}
	require.True(t, foundTransition)
	require.False(t, rt.IsTerminal())

	// Round 2: deliver again from all peers, completing the machine.
	for _, p := range peers[:2] {
		_, err := rt.Deliver(p, []byte("pong"))
		require.NoError(t, err)
	}
	res, err = rt.Deliver(peers[2], []byte("pong"))
	require.NoError(t, err)

	require.True(t, rt.IsTerminal())
	final, ok := rt.Final()
	require.True(t, ok)
	outputs, failed, _, terminal := final.Outcome()
	require.True(t, terminal)
	require.False(t, failed)
	require.Equal(t, "done", outputs)
	_ = res
}

func TestRuntimeProtocolViolation(t *testing.T) {
	peers := peerIDs(2)
	m := &echoMachine{peers: peers}
	rt := NewRuntime(m, peers)
	_, err := rt.Start()
	require.NoError(t, err)

	// peer 0 sends three messages before anyone else sends one: the third
	// exceeds maxLookahead and must be flagged as a violation.
	_, err = rt.Deliver(peers[0], []byte("a"))
	require.NoError(t, err)
	_, err = rt.Deliver(peers[0], []byte("b"))
	require.NoError(t, err)
	results, err := rt.Deliver(peers[0], []byte("c"))
	require.NoError(t, err)

	require.True(t, rt.IsTerminal())
	final, _ := rt.Final()
	_, failed, kind, _ := final.Outcome()
	require.True(t, failed)
	require.Equal(t, ProtocolViolation, kind)
	require.Len(t, results, 1)
}

func TestRuntimeRejectsAfterTerminal(t *testing.T) {
	peers := peerIDs(1)
	m := &echoMachine{peers: peers}
	rt := NewRuntime(m, peers)
	rt.Cancel()
	_, err := rt.Deliver(peers[0], []byte("x"))
	require.ErrorIs(t, err, ErrTerminated)
}

func TestRuntimeDisconnect(t *testing.T) {
	peers := peerIDs(2)
	m := &echoMachine{peers: peers}
	rt := NewRuntime(m, peers)
	_, _ = rt.Start()
	results := rt.Disconnect(peers[0])
	require.Len(t, results, 1)
	_, failed, kind, ok := results[0].Outcome()
	require.True(t, ok)
	require.True(t, failed)
	require.Equal(t, PeerDisconnected, kind)
}
