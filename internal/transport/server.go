////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

// Package transport wires the rpc service stubs to the rest of the
// compute core: Server implements every *rpc.*Server interface against
// real internal/fabric, internal/vm, internal/compute, internal/storage,
// internal/identity, internal/cluster and internal/preprocessing state,
// replacing what would otherwise be hand-wired per-service glue the way
// the teacher's comms/mixmessages server does for cMix's own gRPC
// surface.
package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/NillionNetwork/nilvm/internal/cluster"
	"github.com/NillionNetwork/nilvm/internal/compute"
	"github.com/NillionNetwork/nilvm/internal/fabric"
	"github.com/NillionNetwork/nilvm/internal/identity"
	"github.com/NillionNetwork/nilvm/internal/preprocessing"
	"github.com/NillionNetwork/nilvm/internal/sm"
	"github.com/NillionNetwork/nilvm/internal/storage"
	"github.com/NillionNetwork/nilvm/internal/transport/rpc"
	"github.com/NillionNetwork/nilvm/internal/vm"
)

// priceTable is the static per-operation-kind price spec.md §6's
// Payments.PriceQuote serves; a production node would source this from
// the payments service spec.md §1 carves out as an external collaborator,
// but that service itself is out of scope, so a fixed table stands in.
var priceTable = map[string]int64{
	"store_values":   10,
	"invoke_compute": 50,
}

// defaultPrice covers any operation kind not listed in priceTable.
const defaultPrice = 25

// Server aggregates every collaborator one nilVM node needs to answer
// its gRPC surface (spec.md §6): the online-compute message fabric and
// its per-instance VM directory, a second fabric/directory pair
// dedicated to preprocessing traffic (spec.md §6's Preprocessing is its
// own RPC service, never multiplexed through ComputeMessages — two
// separate Fabrics keeps each traffic class's FIFO bookkeeping and
// bootstrap window independent), the compute orchestrator, SQLite
// bookkeeping, the content-addressed object store, this node's signing
// identity, the static cluster roster, and the preprocessing manager.
type Server struct {
	fabric        *fabric.Fabric
	directory     *vm.Directory
	preFabric     *fabric.Fabric
	preDirectory  *vm.Directory
	orchestrator  *compute.Orchestrator
	store         *storage.Store
	objects       storage.ObjectStore
	identity      *identity.KeyPair
	cluster       *cluster.Cluster
	preprocessing *preprocessing.Manager

	permMu      sync.Mutex
	permissions map[string]rpc.Permissions
}

// NewServer builds a Server over its already-constructed collaborators.
// preFabric/preDirectory must be a distinct pair from fabric/directory,
// wired to a Dialer that calls Preprocessing.GenerateMaterial (e.g.
// fabric.PreprocessingConnPool) rather than ComputeMessages.DeliverMessage
// — the same pair the node's preprocessing.BatchRunner runs its
// generation instances over.
func NewServer(
	f *fabric.Fabric,
	dir *vm.Directory,
	preFabric *fabric.Fabric,
	preDirectory *vm.Directory,
	orch *compute.Orchestrator,
	store *storage.Store,
	objects storage.ObjectStore,
	kp *identity.KeyPair,
	clus *cluster.Cluster,
	pm *preprocessing.Manager,
) *Server {
	return &Server{
		fabric:        f,
		directory:     dir,
		preFabric:     preFabric,
		preDirectory:  preDirectory,
		orchestrator:  orch,
		store:         store,
		objects:       objects,
		identity:      kp,
		cluster:       clus,
		preprocessing: pm,
		permissions:   make(map[string]rpc.Permissions),
	}
}

// --- ComputeMessages (inbound protocol-instance wire traffic) -----------

// DeliverMessage implements rpc.ComputeMessagesServer: route one inbound
// peer message to its instance's Runtime through Fabric, then feed
// whatever StepResults that produced back to the Directory so the
// owning Driver's Run loop observes them (internal/vm's driver.go doc
// comment: "whatever wires internal/transport's DeliverMessage handler
// calls Directory.Feed with whatever Fabric.Deliver returned").
func (s *Server) DeliverMessage(ctx context.Context, req *rpc.DeliverMessageRequest) (*rpc.DeliverMessageResponse, error) {
	instance, err := instanceIDFromBytes(req.InstanceId)
	if err != nil {
		return nil, err
	}
	from, err := nodeIDFromBytes(req.From)
	if err != nil {
		return nil, err
	}
	results, err := s.fabric.Deliver(instance, from, req.Body)
	if err != nil {
		return nil, errors.Wrap(err, "transport: delivering message")
	}
	s.directory.Feed(instance, results)
	return &rpc.DeliverMessageResponse{}, nil
}

// --- Values ---------------------------------------------------------------

// StoreValues implements rpc.ValuesServer: verify the payment receipt,
// debit the account for storage, then file the values blob in the
// content-addressed object store under its own hash (spec.md §6's
// Values.StoreValues). Encoding each value is out of this layer's scope
// (spec.md §1 carves the Nada DSL out entirely) so the already-encoded
// bytes the client sent are stored verbatim, keyed by address name.
func (s *Server) StoreValues(ctx context.Context, req *rpc.StoreValuesRequest) (*rpc.StoreValuesResponse, error) {
	if err := s.chargeReceipt(req.SignedReceipt, "store_values"); err != nil {
		return nil, err
	}

	blob, err := json.Marshal(req.Values)
	if err != nil {
		return nil, errors.Wrap(err, "transport: encoding values blob")
	}
	valuesID := contentAddress(blob)
	if err := s.objects.Put(ctx, valuesID, blob); err != nil {
		return nil, errors.Wrap(err, "transport: storing values blob")
	}

	if req.Permissions != nil {
		s.permMu.Lock()
		s.permissions[valuesID] = *req.Permissions
		s.permMu.Unlock()
	}

	return &rpc.StoreValuesResponse{ValuesId: valuesID}, nil
}

// --- Permissions ------------------------------------------------------

// Retrieve implements rpc.PermissionsServer. Permissions live in an
// in-memory map rather than SQLite: spec.md's storage expansion lists
// used_nonces/preprocessing_offsets/account_balances/add_funds_transfers/
// blob_expirations as the SQLite-backed tables and does not include a
// permissions table, so this stays process-local bookkeeping alongside
// the values it governs, the way the teacher keeps round state in
// sync.Map rather than a database.
func (s *Server) Retrieve(ctx context.Context, req *rpc.PermissionsRetrieveRequest) (*rpc.Permissions, error) {
	s.permMu.Lock()
	p, ok := s.permissions[req.ValuesId]
	s.permMu.Unlock()
	if !ok {
		return nil, errors.Errorf("transport: no permissions recorded for values id %q", req.ValuesId)
	}
	return &p, nil
}

// Overwrite implements rpc.PermissionsServer.
func (s *Server) Overwrite(ctx context.Context, req *rpc.PermissionsOverwriteRequest) (*rpc.PermissionsAck, error) {
	s.permMu.Lock()
	s.permissions[req.ValuesId] = req.Permissions
	s.permMu.Unlock()
	return &rpc.PermissionsAck{}, nil
}

// Update implements rpc.PermissionsServer, additively granting the
// listed access without touching any existing grant.
func (s *Server) Update(ctx context.Context, req *rpc.PermissionsUpdateRequest) (*rpc.PermissionsAck, error) {
	s.permMu.Lock()
	defer s.permMu.Unlock()
	p := s.permissions[req.ValuesId]
	p.Retrieve = append(p.Retrieve, req.AddRetrieve...)
	p.Update = append(p.Update, req.AddUpdate...)
	p.Delete = append(p.Delete, req.AddDelete...)
	p.Compute = append(p.Compute, req.AddCompute...)
	s.permissions[req.ValuesId] = p
	return &rpc.PermissionsAck{}, nil
}

// --- Compute (client-facing) -----------------------------------------------

// InvokeCompute implements rpc.ComputeServer: verify the receipt, debit
// the account, resolve the program and its input values from the
// object store, seed a vm.Memory, then hand the whole thing to
// internal/compute's Orchestrator (spec.md §4.7 steps 1-2).
//
// Program and value blobs are stored JSON-encoded rather than in the
// real Nada bytecode/value wire format: the Nada compiler frontend is
// explicitly out of scope (spec.md §1), so no real format exists for
// this layer to target, and JSON is the pragmatic stand-in.
func (s *Server) InvokeCompute(ctx context.Context, req *rpc.InvokeComputeRequest) (*rpc.InvokeComputeResponse, error) {
	if err := s.chargeReceipt(req.SignedReceipt, "invoke_compute"); err != nil {
		return nil, err
	}

	progBlob, err := s.objects.Get(ctx, req.ProgramId)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: fetching program %q", req.ProgramId)
	}
	var prog vm.Program
	if err := json.Unmarshal(progBlob, &prog); err != nil {
		return nil, errors.Wrap(err, "transport: decoding program")
	}

	memory := vm.NewMemory(nil)
	for _, valuesID := range req.ValueIds {
		blob, err := s.objects.Get(ctx, valuesID)
		if err != nil {
			return nil, errors.Wrapf(err, "transport: fetching values %q", valuesID)
		}
		var values map[string][]byte
		if err := json.Unmarshal(blob, &values); err != nil {
			return nil, errors.Wrap(err, "transport: decoding values")
		}
		for addr, encoded := range values {
			bound := addr
			if target, ok := req.InputBindings[addr]; ok {
				bound = target
			}
			memory.Set(vm.Address(bound), vm.Value(encoded))
		}
	}
	for addr, encoded := range req.Values {
		memory.Set(vm.Address(addr), vm.Value(encoded))
	}

	outputBindings := make(map[vm.OutputName][]string, len(req.OutputBindings))
	for name, users := range req.OutputBindings {
		outputBindings[vm.OutputName(name)] = users
	}

	id, err := s.orchestrator.InvokeCompute(ctx, compute.Request{
		ContentAddress: req.ProgramId,
		Program:        prog,
		Memory:         memory,
		InvokingUser:   req.InvokingUser,
		OutputBindings: outputBindings,
	})
	if err != nil {
		return nil, err
	}
	return &rpc.InvokeComputeResponse{ComputeId: id.String()}, nil
}

// RetrieveResults implements rpc.ComputeServer as a plain unary poll
// (messages.go's RetrieveResultsRequest doc comment records why this
// departs from spec.md §6's streaming description).
func (s *Server) RetrieveResults(ctx context.Context, req *rpc.RetrieveResultsRequest) (*rpc.RetrieveResultsMessage, error) {
	id, err := computeIDFromString(req.ComputeId)
	if err != nil {
		return nil, err
	}
	view, err := s.orchestrator.RetrieveResults(id, req.RequestingUser)
	if err != nil {
		return nil, err
	}
	switch view.Outcome {
	case compute.OutcomeWaiting:
		return &rpc.RetrieveResultsMessage{Waiting: true}, nil
	case compute.OutcomeError:
		return &rpc.RetrieveResultsMessage{Error: view.Err}, nil
	default:
		out := make(map[string][]byte, len(view.Values))
		for name, v := range view.Values {
			encoded, ok := v.([]byte)
			if !ok {
				encoded, err = json.Marshal(v)
				if err != nil {
					return nil, errors.Wrap(err, "transport: encoding output value")
				}
			}
			out[string(name)] = encoded
		}
		return &rpc.RetrieveResultsMessage{Success: out}, nil
	}
}

// --- Preprocessing (internal, leader<->follower) --------------------------

// GenerateMaterial implements rpc.PreprocessingServer: the receiving end
// of the leader's GeneratePreprocessing broadcast from spec.md §4.5. It
// routes the message into the preprocessing-dedicated fabric exactly the
// way DeliverMessage does for online compute traffic, keyed by the
// InstanceId the sender already assigned (internal/transport's
// BatchRunner derives it deterministically from {element, generation_id,
// offset} so every cluster member agrees on it before the first message
// ever goes out) — this handler never recomputes anything, it only
// trusts the wire field, same as DeliverMessage trusts req.InstanceId.
func (s *Server) GenerateMaterial(ctx context.Context, req *rpc.PreprocessingMessage) (*rpc.PreprocessingAck, error) {
	instance, err := instanceIDFromBytes(req.InstanceId)
	if err != nil {
		return nil, err
	}
	from, err := nodeIDFromBytes(req.From)
	if err != nil {
		return nil, err
	}
	results, err := s.preFabric.Deliver(instance, from, req.BincodeMessage)
	if err != nil {
		return nil, errors.Wrap(err, "transport: delivering preprocessing message")
	}
	s.preDirectory.Feed(instance, results)
	return &rpc.PreprocessingAck{}, nil
}

// --- LeaderQueries ----------------------------------------------------

// PoolStatus implements rpc.LeaderQueriesServer, reporting every
// element's current offsets (spec.md §6).
func (s *Server) PoolStatus(ctx context.Context, req *rpc.PoolStatusRequest) (*rpc.PoolStatusResponse, error) {
	resp := &rpc.PoolStatusResponse{Elements: make(map[string]rpc.ElementStatus)}
	active := false
	for _, e := range preprocessing.Elements() {
		pool, err := s.preprocessing.Pool(e)
		if err != nil {
			continue
		}
		snap := pool.Observe()
		resp.Elements[e.String()] = rpc.ElementStatus{Start: snap.Deleted, End: snap.Generated}
		if pool.NeedsGeneration() {
			active = true
		}
	}
	resp.PreprocessingActive = active
	resp.AuxiliaryMaterialAvailable = true
	return resp, nil
}

// --- Membership -------------------------------------------------------

// Cluster implements rpc.MembershipServer.
func (s *Server) Cluster(ctx context.Context, req *rpc.ClusterRequest) (*rpc.ClusterResponse, error) {
	resp := &rpc.ClusterResponse{
		Leader: s.cluster.Leader[:],
		Degree: int32(s.cluster.Degree),
		Kappa:  int32(s.cluster.Kappa),
	}
	for _, m := range s.cluster.Members {
		resp.Members = append(resp.Members, rpc.MemberInfo{NodeId: m.ID[:], Address: m.Address})
	}
	return resp, nil
}

// NodeId implements rpc.MembershipServer.
func (s *Server) NodeId(ctx context.Context, req *rpc.NodeIdRequest) (*rpc.NodeIdResponse, error) {
	id := s.cluster.Self()
	return &rpc.NodeIdResponse{NodeId: id[:]}, nil
}

// --- Payments -----------------------------------------------------------

// PriceQuote implements rpc.PaymentsServer.
func (s *Server) PriceQuote(ctx context.Context, req *rpc.PriceQuoteRequest) (*rpc.PriceQuoteResponse, error) {
	price, ok := priceTable[req.OperationKind]
	if !ok {
		price = defaultPrice
	}
	return &rpc.PriceQuoteResponse{Amount: price}, nil
}

// --- shared helpers -----------------------------------------------------

// chargeReceipt verifies a signed payment receipt as a Receipt-kind
// AuthToken (identity.NonceKindReceipt keeps this nonce namespace
// separate from session AuthTokens) and debits the quoted price from
// the issuer's account. Encoding the receipt as a JSON AuthToken rather
// than a bespoke receipt format is the same pragmatic simplification
// StoreValues/InvokeCompute make for program and value blobs.
func (s *Server) chargeReceipt(signed []byte, operationKind string) error {
	var token identity.AuthToken
	if err := json.Unmarshal(signed, &token); err != nil {
		return errors.Wrap(err, "transport: decoding signed receipt")
	}
	pub, err := s.identity.PublicKeyBytes()
	if err != nil {
		return errors.Wrap(err, "transport: reading node public key")
	}
	if err := identity.Verify(token, pub, identity.NonceKindReceipt, receiptNonceStore{s.store}); err != nil {
		return errors.Wrap(err, "transport: verifying receipt")
	}
	price := priceTable[operationKind]
	if price == 0 {
		price = defaultPrice
	}
	accountID := token.Issuer[:]
	if err := s.store.Debit(accountID, price); err != nil {
		return errors.Wrap(err, "transport: charging receipt")
	}
	return nil
}

// receiptNonceStore adapts *storage.Store to identity.NonceStore; it
// already implements MarkUsed directly, but chargeReceipt passes through
// a named type so call sites read as "store used for receipt nonces"
// rather than a bare pointer.
type receiptNonceStore struct{ *storage.Store }

func contentAddress(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// instanceIDFromBytes parses a wire instance id back into sm.InstanceID,
// the same uuid.UUID-backed shape sm.NewInstanceID mints.
func instanceIDFromBytes(b []byte) (sm.InstanceID, error) {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return sm.InstanceID{}, errors.Wrap(err, "transport: decoding instance id")
	}
	return sm.InstanceID(id), nil
}

// nodeIDFromBytes parses a wire node id back into cluster.NodeID.
func nodeIDFromBytes(b []byte) (cluster.NodeID, error) {
	if len(b) != 32 {
		return cluster.NodeID{}, errors.Errorf("transport: node id must be 32 bytes, got %d", len(b))
	}
	var id cluster.NodeID
	copy(id[:], b)
	return id, nil
}

// computeIDFromString parses a wire compute_id string back into
// compute.ID, the same uuid.UUID-backed shape compute.NewID mints.
func computeIDFromString(s string) (compute.ID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return compute.ID{}, errors.Wrap(err, "transport: decoding compute id")
	}
	return compute.ID(id), nil
}
