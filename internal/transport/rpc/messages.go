////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package rpc

import "fmt"

// base gives every wire message ProtoMessage by embedding; each concrete
// type still defines its own Reset and String, since base cannot reach a
// field set it does not know about.
type base struct{}

func (base) ProtoMessage() {}

func asString(v interface{}) string { return fmt.Sprintf("%+v", v) }

// --- Payments ---------------------------------------------------------

// PriceQuoteRequest asks the price of one operation kind (spec.md §6).
type PriceQuoteRequest struct {
	base
	OperationKind string
}

func (m *PriceQuoteRequest) Reset()        { *m = PriceQuoteRequest{} }
func (m *PriceQuoteRequest) String() string { return asString(*m) }

// PriceQuoteResponse is the quoted price, in the payment token's minor unit.
type PriceQuoteResponse struct {
	base
	Amount int64
}

func (m *PriceQuoteResponse) Reset()        { *m = PriceQuoteResponse{} }
func (m *PriceQuoteResponse) String() string { return asString(*m) }

// --- Permissions -------------------------------------------------------

// ComputePermission grants one user the right to invoke one set of
// programs (spec.md §6: "compute[ {user, program_ids[]} ]").
type ComputePermission struct {
	User       string
	ProgramIds []string
}

// Permissions is the full access-control record for one values_id
// (spec.md §6: "{owner, retrieve[], update[], delete[], compute[...]}").
type Permissions struct {
	base
	Owner    string
	Retrieve []string
	Update   []string
	Delete   []string
	Compute  []ComputePermission
}

func (m *Permissions) Reset()        { *m = Permissions{} }
func (m *Permissions) String() string { return asString(*m) }

// PermissionsRetrieveRequest asks for a values_id's current Permissions.
type PermissionsRetrieveRequest struct {
	base
	ValuesId string
}

func (m *PermissionsRetrieveRequest) Reset()        { *m = PermissionsRetrieveRequest{} }
func (m *PermissionsRetrieveRequest) String() string { return asString(*m) }

// PermissionsOverwriteRequest replaces a values_id's Permissions wholesale.
type PermissionsOverwriteRequest struct {
	base
	ValuesId    string
	Permissions Permissions
}

func (m *PermissionsOverwriteRequest) Reset()        { *m = PermissionsOverwriteRequest{} }
func (m *PermissionsOverwriteRequest) String() string { return asString(*m) }

// PermissionsUpdateRequest adds to (never removes from) a values_id's
// Permissions — one grant at a time, matching the teacher's additive
// ACL-update RPCs.
type PermissionsUpdateRequest struct {
	base
	ValuesId    string
	AddRetrieve []string
	AddUpdate   []string
	AddDelete   []string
	AddCompute  []ComputePermission
}

func (m *PermissionsUpdateRequest) Reset()        { *m = PermissionsUpdateRequest{} }
func (m *PermissionsUpdateRequest) String() string { return asString(*m) }

// PermissionsAck is the empty response every mutating Permissions RPC returns.
type PermissionsAck struct{ base }

func (m *PermissionsAck) Reset()        { *m = PermissionsAck{} }
func (m *PermissionsAck) String() string { return asString(*m) }

// --- Values --------------------------------------------------------------

// StoreValuesRequest is spec.md §6's Values.StoreValues payload.
// Values holds each named NadaValue already encoded (the Nada DSL's own
// encoding is out of scope per spec.md §1; this layer only moves bytes).
type StoreValuesRequest struct {
	base
	SignedReceipt    []byte
	Permissions      *Permissions
	UpdateIdentifier string
	Values           map[string][]byte
}

func (m *StoreValuesRequest) Reset()        { *m = StoreValuesRequest{} }
func (m *StoreValuesRequest) String() string { return asString(*m) }

// StoreValuesResponse returns the content-addressed values_id the
// ObjectStore filed the blob under.
type StoreValuesResponse struct {
	base
	ValuesId string
}

func (m *StoreValuesResponse) Reset()        { *m = StoreValuesResponse{} }
func (m *StoreValuesResponse) String() string { return asString(*m) }

// --- Compute (client-facing) ---------------------------------------------

// InvokeComputeRequest is spec.md §6's Compute.InvokeCompute payload.
type InvokeComputeRequest struct {
	base
	SignedReceipt  []byte
	InvokingUser   string
	ProgramId      string
	ValueIds       []string
	InputBindings  map[string]string
	OutputBindings map[string][]string
	Values         map[string][]byte
}

func (m *InvokeComputeRequest) Reset()        { *m = InvokeComputeRequest{} }
func (m *InvokeComputeRequest) String() string { return asString(*m) }

// InvokeComputeResponse returns the new compute_id.
type InvokeComputeResponse struct {
	base
	ComputeId string
}

func (m *InvokeComputeResponse) Reset()        { *m = InvokeComputeResponse{} }
func (m *InvokeComputeResponse) String() string { return asString(*m) }

// RetrieveResultsRequest asks for one compute_id's current outcome.
// spec.md §6 describes a stream of {Waiting} messages followed by one
// terminal Success/Error; this service implements it as a plain unary
// poll instead — a client repeats the call until Waiting is false. The
// simplification is recorded in DESIGN.md.
type RetrieveResultsRequest struct {
	base
	ComputeId      string
	RequestingUser string
}

func (m *RetrieveResultsRequest) Reset()        { *m = RetrieveResultsRequest{} }
func (m *RetrieveResultsRequest) String() string { return asString(*m) }

// RetrieveResultsMessage is one element of that stream: exactly one of
// Waiting, Success, or Error is meaningful, mirroring sm.StepResult's
// own "construct with the matching helper, check with Outcome" shape.
type RetrieveResultsMessage struct {
	base
	Waiting bool
	Success map[string][]byte
	Error   string
}

func (m *RetrieveResultsMessage) Reset()        { *m = RetrieveResultsMessage{} }
func (m *RetrieveResultsMessage) String() string { return asString(*m) }

// --- Preprocessing (internal, leader<->follower) --------------------------

// PreprocessingMessage is spec.md §6's internal GeneratePreprocessing /
// GenerateAuxiliaryMaterial stream element: "{generation_id,
// element|material, bincode_message}", plus the routing keys the first
// message of a stream additionally carries. InstanceId/From/BincodeMessage
// are the actual routing triple every hop needs (the same shape
// DeliverMessageRequest carries for online compute traffic, on its own
// service so preprocessing and compute traffic never share one
// demultiplexer); GenerationId/Element/Material/BatchId/BatchSize are the
// routing keys the leader only needs to set on a round's first message,
// carried on every message here for simplicity rather than split into a
// separate envelope.
type PreprocessingMessage struct {
	base
	InstanceId     []byte
	From           []byte
	BincodeMessage []byte
	GenerationId   uint64
	Element        string
	Material       string
	BatchId        uint64
	BatchSize      uint64
}

func (m *PreprocessingMessage) Reset()        { *m = PreprocessingMessage{} }
func (m *PreprocessingMessage) String() string { return asString(*m) }

// PreprocessingAck is the empty response to one PreprocessingMessage hop.
type PreprocessingAck struct{ base }

func (m *PreprocessingAck) Reset()        { *m = PreprocessingAck{} }
func (m *PreprocessingAck) String() string { return asString(*m) }

// --- LeaderQueries ---------------------------------------------------------

// PoolStatusRequest is empty: the caller always wants every element's status.
type PoolStatusRequest struct{ base }

func (m *PoolStatusRequest) Reset()        { *m = PoolStatusRequest{} }
func (m *PoolStatusRequest) String() string { return asString(*m) }

// ElementStatus is one element's pool offsets (spec.md §6:
// "per-element {start, end} offsets").
type ElementStatus struct {
	Start uint64
	End   uint64
}

// PoolStatusResponse is spec.md §6's LeaderQueries.PoolStatus response.
type PoolStatusResponse struct {
	base
	Elements                   map[string]ElementStatus
	PreprocessingActive        bool
	AuxiliaryMaterialAvailable bool
}

func (m *PoolStatusResponse) Reset()        { *m = PoolStatusResponse{} }
func (m *PoolStatusResponse) String() string { return asString(*m) }

// --- Membership -------------------------------------------------------------

// ClusterRequest is empty.
type ClusterRequest struct{ base }

func (m *ClusterRequest) Reset()        { *m = ClusterRequest{} }
func (m *ClusterRequest) String() string { return asString(*m) }

// MemberInfo is one cluster member as seen over the wire.
type MemberInfo struct {
	NodeId  []byte
	Address string
}

// ClusterResponse is spec.md §6's Membership.Cluster response.
type ClusterResponse struct {
	base
	Members []MemberInfo
	Leader  []byte
	Degree  int32
	Kappa   int32
}

func (m *ClusterResponse) Reset()        { *m = ClusterResponse{} }
func (m *ClusterResponse) String() string { return asString(*m) }

// NodeIdRequest is empty.
type NodeIdRequest struct{ base }

func (m *NodeIdRequest) Reset()        { *m = NodeIdRequest{} }
func (m *NodeIdRequest) String() string { return asString(*m) }

// NodeIdResponse is this node's content-addressed identifier (spec.md
// §6: "derived from the node's authentication public key").
type NodeIdResponse struct {
	base
	NodeId []byte
}

func (m *NodeIdResponse) Reset()        { *m = NodeIdResponse{} }
func (m *NodeIdResponse) String() string { return asString(*m) }
