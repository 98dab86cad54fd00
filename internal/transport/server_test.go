////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package transport

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/NillionNetwork/nilvm/internal/audit"
	"github.com/NillionNetwork/nilvm/internal/cluster"
	"github.com/NillionNetwork/nilvm/internal/compute"
	"github.com/NillionNetwork/nilvm/internal/fabric"
	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/identity"
	"github.com/NillionNetwork/nilvm/internal/preprocessing"
	"github.com/NillionNetwork/nilvm/internal/protocol"
	"github.com/NillionNetwork/nilvm/internal/sm"
	"github.com/NillionNetwork/nilvm/internal/storage"
	"github.com/NillionNetwork/nilvm/internal/transport/rpc"
	"github.com/NillionNetwork/nilvm/internal/vm"
)

// memObjectStore is an in-memory storage.ObjectStore, standing in for
// the S3-backed one the same way sqlite's ":memory:" mode stands in for
// a real database in internal/storage's own tests.
type memObjectStore struct {
	mu   sync.Mutex
	blob map[string][]byte
}

func newMemObjectStore() *memObjectStore { return &memObjectStore{blob: make(map[string][]byte)} }

func (m *memObjectStore) Put(ctx context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob[key] = blob
	return nil
}

func (m *memObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blob[key]
	if !ok {
		return nil, errors.Errorf("transport: no object stored under %q", key)
	}
	return b, nil
}

func (m *memObjectStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blob, key)
	return nil
}

// fakeRunner stands in for *vm.VM, mirroring internal/compute's own test double.
type fakeRunner struct {
	outputs map[vm.OutputName]vm.Value
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, prog vm.Program, memory *vm.Memory) (map[vm.OutputName]vm.Value, error) {
	return f.outputs, f.err
}

func newTestServer(t *testing.T, runner compute.Runner) (*Server, *identity.KeyPair, *memObjectStore) {
	t.Helper()

	kp, err := identity.NewKeyPair()
	require.NoError(t, err)
	self, err := kp.NodeID()
	require.NoError(t, err)
	clus, err := cluster.New([]cluster.Member{{ID: self}}, self, 0, 0, field.Modulus{}, self)
	require.NoError(t, err)

	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	objects := newMemObjectStore()

	pm := preprocessing.NewManager(preprocessing.Config{})
	a, err := audit.New(audit.Config{}, 0)
	require.NoError(t, err)
	orch := compute.New(runner, pm, a, 4, time.Second, time.Minute)

	registry := sm.NewRegistry()
	fab := fabric.New(registry, noopDialer{})
	dir := vm.NewDirectory()
	preFab := fabric.New(sm.NewRegistry(), noopDialer{})
	preDir := vm.NewDirectory()

	return NewServer(fab, dir, preFab, preDir, orch, store, objects, kp, clus, pm), kp, objects
}

type noopDialer struct{}

func (noopDialer) Send(ctx context.Context, to cluster.NodeID, instance sm.InstanceID, body []byte) error {
	return nil
}

func signedReceipt(t *testing.T, kp *identity.KeyPair) []byte {
	t.Helper()
	issuer, err := kp.NodeID()
	require.NoError(t, err)
	token, err := kp.Sign(issuer, [16]byte{1, 2, 3}, time.Minute)
	require.NoError(t, err)
	blob, err := json.Marshal(token)
	require.NoError(t, err)
	return blob
}

func creditIssuer(t *testing.T, s *Server, kp *identity.KeyPair, amount int64) {
	t.Helper()
	issuer, err := kp.NodeID()
	require.NoError(t, err)
	require.NoError(t, s.store.AddFunds([]byte("fund-1"), issuer[:], amount))
}

func TestStoreValuesChargesAndFilesUnderContentAddress(t *testing.T) {
	s, kp, objects := newTestServer(t, &fakeRunner{})
	creditIssuer(t, s, kp, 100)

	resp, err := s.StoreValues(context.Background(), &rpc.StoreValuesRequest{
		SignedReceipt: signedReceipt(t, kp),
		Values:        map[string][]byte{"a": []byte("1")},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ValuesId)

	blob, err := objects.Get(context.Background(), resp.ValuesId)
	require.NoError(t, err)
	var got map[string][]byte
	require.NoError(t, json.Unmarshal(blob, &got))
	require.Equal(t, []byte("1"), got["a"])

	issuer, _ := kp.NodeID()
	balance, err := s.store.Balance(issuer[:])
	require.NoError(t, err)
	require.Equal(t, int64(90), balance)
}

func TestStoreValuesRejectsWithoutFunds(t *testing.T) {
	s, kp, _ := newTestServer(t, &fakeRunner{})

	_, err := s.StoreValues(context.Background(), &rpc.StoreValuesRequest{
		SignedReceipt: signedReceipt(t, kp),
		Values:        map[string][]byte{"a": []byte("1")},
	})
	require.ErrorIs(t, err, storage.ErrInsufficientFunds)
}

func TestPermissionsOverwriteRetrieveUpdate(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeRunner{})

	_, err := s.Overwrite(context.Background(), &rpc.PermissionsOverwriteRequest{
		ValuesId:    "v1",
		Permissions: rpc.Permissions{Owner: "alice", Retrieve: []string{"alice"}},
	})
	require.NoError(t, err)

	got, err := s.Retrieve(context.Background(), &rpc.PermissionsRetrieveRequest{ValuesId: "v1"})
	require.NoError(t, err)
	require.Equal(t, "alice", got.Owner)

	_, err = s.Update(context.Background(), &rpc.PermissionsUpdateRequest{
		ValuesId:    "v1",
		AddRetrieve: []string{"bob"},
	})
	require.NoError(t, err)

	got, err = s.Retrieve(context.Background(), &rpc.PermissionsRetrieveRequest{ValuesId: "v1"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob"}, got.Retrieve)
}

func TestInvokeComputeAndRetrieveResults(t *testing.T) {
	s, kp, objects := newTestServer(t, &fakeRunner{outputs: map[vm.OutputName]vm.Value{"out": []byte("42")}})
	creditIssuer(t, s, kp, 100)

	progBlob, err := json.Marshal(vm.Program{
		Inputs:       []vm.Address{"a", "b"},
		Instructions: []vm.Instruction{{Output: "r", Kind: protocol.KindMult, Inputs: []vm.Address{"a", "b"}}},
		Outputs:      map[vm.OutputName]vm.Address{"out": "r"},
	})
	require.NoError(t, err)
	require.NoError(t, objects.Put(context.Background(), "prog-1", progBlob))

	resp, err := s.InvokeCompute(context.Background(), &rpc.InvokeComputeRequest{
		SignedReceipt:  signedReceipt(t, kp),
		InvokingUser:   "alice",
		ProgramId:      "prog-1",
		Values:         map[string][]byte{"a": []byte("1"), "b": []byte("2")},
		OutputBindings: map[string][]string{"out": {"alice"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ComputeId)

	require.Eventually(t, func() bool {
		v, err := s.RetrieveResults(context.Background(), &rpc.RetrieveResultsRequest{
			ComputeId:      resp.ComputeId,
			RequestingUser: "alice",
		})
		return err == nil && !v.Waiting
	}, time.Second, time.Millisecond)

	view, err := s.RetrieveResults(context.Background(), &rpc.RetrieveResultsRequest{
		ComputeId:      resp.ComputeId,
		RequestingUser: "alice",
	})
	require.NoError(t, err)
	require.Equal(t, []byte("42"), view.Success["out"])
}

func TestPoolStatusReportsEveryElement(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeRunner{})

	resp, err := s.PoolStatus(context.Background(), &rpc.PoolStatusRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Elements, len(preprocessing.Elements()))
}

func TestClusterAndNodeId(t *testing.T) {
	s, kp, _ := newTestServer(t, &fakeRunner{})
	self, err := kp.NodeID()
	require.NoError(t, err)

	clusterResp, err := s.Cluster(context.Background(), &rpc.ClusterRequest{})
	require.NoError(t, err)
	require.Equal(t, self[:], clusterResp.Leader)
	require.Len(t, clusterResp.Members, 1)

	nodeResp, err := s.NodeId(context.Background(), &rpc.NodeIdRequest{})
	require.NoError(t, err)
	require.Equal(t, self[:], nodeResp.NodeId)
}

func TestGenerateMaterialBuffersOnUnknownInstance(t *testing.T) {
	s, kp, _ := newTestServer(t, &fakeRunner{})
	self, err := kp.NodeID()
	require.NoError(t, err)

	id := sm.NewInstanceID()
	_, err = s.GenerateMaterial(context.Background(), &rpc.PreprocessingMessage{
		InstanceId:     id[:],
		From:           self[:],
		BincodeMessage: []byte("body"),
		Element:        preprocessing.RandomInteger.String(),
		GenerationId:   1,
	})
	require.NoError(t, err)
}

func TestGenerateMaterialRejectsMalformedFrom(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeRunner{})
	id := sm.NewInstanceID()
	_, err := s.GenerateMaterial(context.Background(), &rpc.PreprocessingMessage{
		InstanceId: id[:],
		From:       []byte("short"),
	})
	require.Error(t, err)
}

func TestPriceQuoteFallsBackToDefault(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeRunner{})

	resp, err := s.PriceQuote(context.Background(), &rpc.PriceQuoteRequest{OperationKind: "unknown_kind"})
	require.NoError(t, err)
	require.Equal(t, int64(defaultPrice), resp.Amount)

	resp, err = s.PriceQuote(context.Background(), &rpc.PriceQuoteRequest{OperationKind: "store_values"})
	require.NoError(t, err)
	require.Equal(t, priceTable["store_values"], resp.Amount)
}
