////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package rpc holds the wire messages and gRPC service stubs nilVM talks
// over (spec.md §6's Payments/Permissions/Values/Compute/Preprocessing/
// LeaderQueries/Membership services). In a real deployment these are
// generated by protoc from an externally owned .proto package and
// consumed here already compiled (spec.md §1's scope boundary); this
// package hand-writes the minimal legacy proto.Message shape
// (Reset/String/ProtoMessage) that google.golang.org/protobuf's runtime
// still accepts from gRPC's default codec, rather than attempting to
// reproduce protoc's generated descriptor bytes by hand.
package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// DeliverMessageRequest carries one ProtocolInstance message hop:
// instance-addressed, opaque-bodied (internal/protocol's wire.go owns the
// body's contents; this layer only moves bytes). From is the sending
// peer's cluster.NodeID, needed by fabric.Fabric.Deliver's per-(instance,
// peer) FIFO bookkeeping.
type DeliverMessageRequest struct {
	InstanceId []byte
	From       []byte
	Body       []byte
}

func (m *DeliverMessageRequest) Reset()        { *m = DeliverMessageRequest{} }
func (m *DeliverMessageRequest) String() string { return fmt.Sprintf("%+v", *m) }
func (m *DeliverMessageRequest) ProtoMessage()  {}

// DeliverMessageResponse is empty: delivery is fire-and-forget at the
// transport layer, with ordering and acknowledgement handled by the
// sm.Runtime's own round discipline instead of an RPC-level ack.
type DeliverMessageResponse struct{}

func (m *DeliverMessageResponse) Reset()        { *m = DeliverMessageResponse{} }
func (m *DeliverMessageResponse) String() string { return fmt.Sprintf("%+v", *m) }
func (m *DeliverMessageResponse) ProtoMessage() {}

const computeMessagesDeliverMessageMethod = "/nilvm.rpc.ComputeMessages/DeliverMessage"

// ComputeMessagesClient is the client-side stub for the ComputeMessages
// service, in the shape protoc-gen-go-grpc would emit.
type ComputeMessagesClient interface {
	DeliverMessage(ctx context.Context, in *DeliverMessageRequest, opts ...grpc.CallOption) (*DeliverMessageResponse, error)
}

type computeMessagesClient struct {
	cc *grpc.ClientConn
}

// NewComputeMessagesClient wraps a *grpc.ClientConn with the
// ComputeMessages client stub.
func NewComputeMessagesClient(cc *grpc.ClientConn) ComputeMessagesClient {
	return &computeMessagesClient{cc: cc}
}

func (c *computeMessagesClient) DeliverMessage(ctx context.Context, in *DeliverMessageRequest, opts ...grpc.CallOption) (*DeliverMessageResponse, error) {
	out := new(DeliverMessageResponse)
	if err := c.cc.Invoke(ctx, computeMessagesDeliverMessageMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ComputeMessagesServer is the server-side contract internal/transport
// implements to receive these deliveries.
type ComputeMessagesServer interface {
	DeliverMessage(context.Context, *DeliverMessageRequest) (*DeliverMessageResponse, error)
}

// RegisterComputeMessagesServer wires srv into gRPC's handler table under
// the same method name the client stub above dials.
func RegisterComputeMessagesServer(s grpc.ServiceRegistrar, srv ComputeMessagesServer) {
	s.RegisterService(&computeMessagesServiceDesc, srv)
}

var computeMessagesServiceDesc = grpc.ServiceDesc{
	ServiceName: "nilvm.rpc.ComputeMessages",
	HandlerType: (*ComputeMessagesServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "DeliverMessage",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(DeliverMessageRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(ComputeMessagesServer).DeliverMessage(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: computeMessagesDeliverMessageMethod}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(ComputeMessagesServer).DeliverMessage(ctx, req.(*DeliverMessageRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Streams: []grpc.StreamDesc{},
}
