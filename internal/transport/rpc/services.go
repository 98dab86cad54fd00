////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                            //
////////////////////////////////////////////////////////////////////////////////

package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// --- Payments ---------------------------------------------------------

const paymentsServiceName = "nilvm.rpc.Payments"

type PaymentsClient interface {
	PriceQuote(ctx context.Context, in *PriceQuoteRequest, opts ...grpc.CallOption) (*PriceQuoteResponse, error)
}

type paymentsClient struct{ cc *grpc.ClientConn }

func NewPaymentsClient(cc *grpc.ClientConn) PaymentsClient { return &paymentsClient{cc: cc} }

func (c *paymentsClient) PriceQuote(ctx context.Context, in *PriceQuoteRequest, opts ...grpc.CallOption) (*PriceQuoteResponse, error) {
	out := new(PriceQuoteResponse)
	if err := invokeUnary(ctx, c.cc, paymentsServiceName+"/PriceQuote", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type PaymentsServer interface {
	PriceQuote(context.Context, *PriceQuoteRequest) (*PriceQuoteResponse, error)
}

func RegisterPaymentsServer(s grpc.ServiceRegistrar, srv PaymentsServer) {
	s.RegisterService(&paymentsServiceDesc, srv)
}

var paymentsServiceDesc = grpc.ServiceDesc{
	ServiceName: paymentsServiceName,
	HandlerType: (*PaymentsServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(paymentsServiceName+"/PriceQuote",
			func() message { return new(PriceQuoteRequest) },
			func(srv interface{}, ctx context.Context, req message) (message, error) {
				return srv.(PaymentsServer).PriceQuote(ctx, req.(*PriceQuoteRequest))
			}),
	},
}

// --- Permissions -------------------------------------------------------

const permissionsServiceName = "nilvm.rpc.Permissions"

type PermissionsClient interface {
	Retrieve(ctx context.Context, in *PermissionsRetrieveRequest, opts ...grpc.CallOption) (*Permissions, error)
	Overwrite(ctx context.Context, in *PermissionsOverwriteRequest, opts ...grpc.CallOption) (*PermissionsAck, error)
	Update(ctx context.Context, in *PermissionsUpdateRequest, opts ...grpc.CallOption) (*PermissionsAck, error)
}

type permissionsClient struct{ cc *grpc.ClientConn }

func NewPermissionsClient(cc *grpc.ClientConn) PermissionsClient { return &permissionsClient{cc: cc} }

func (c *permissionsClient) Retrieve(ctx context.Context, in *PermissionsRetrieveRequest, opts ...grpc.CallOption) (*Permissions, error) {
	out := new(Permissions)
	if err := invokeUnary(ctx, c.cc, permissionsServiceName+"/Retrieve", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *permissionsClient) Overwrite(ctx context.Context, in *PermissionsOverwriteRequest, opts ...grpc.CallOption) (*PermissionsAck, error) {
	out := new(PermissionsAck)
	if err := invokeUnary(ctx, c.cc, permissionsServiceName+"/Overwrite", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *permissionsClient) Update(ctx context.Context, in *PermissionsUpdateRequest, opts ...grpc.CallOption) (*PermissionsAck, error) {
	out := new(PermissionsAck)
	if err := invokeUnary(ctx, c.cc, permissionsServiceName+"/Update", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type PermissionsServer interface {
	Retrieve(context.Context, *PermissionsRetrieveRequest) (*Permissions, error)
	Overwrite(context.Context, *PermissionsOverwriteRequest) (*PermissionsAck, error)
	Update(context.Context, *PermissionsUpdateRequest) (*PermissionsAck, error)
}

func RegisterPermissionsServer(s grpc.ServiceRegistrar, srv PermissionsServer) {
	s.RegisterService(&permissionsServiceDesc, srv)
}

var permissionsServiceDesc = grpc.ServiceDesc{
	ServiceName: permissionsServiceName,
	HandlerType: (*PermissionsServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(permissionsServiceName+"/Retrieve",
			func() message { return new(PermissionsRetrieveRequest) },
			func(srv interface{}, ctx context.Context, req message) (message, error) {
				return srv.(PermissionsServer).Retrieve(ctx, req.(*PermissionsRetrieveRequest))
			}),
		unaryMethod(permissionsServiceName+"/Overwrite",
			func() message { return new(PermissionsOverwriteRequest) },
			func(srv interface{}, ctx context.Context, req message) (message, error) {
				return srv.(PermissionsServer).Overwrite(ctx, req.(*PermissionsOverwriteRequest))
			}),
		unaryMethod(permissionsServiceName+"/Update",
			func() message { return new(PermissionsUpdateRequest) },
			func(srv interface{}, ctx context.Context, req message) (message, error) {
				return srv.(PermissionsServer).Update(ctx, req.(*PermissionsUpdateRequest))
			}),
	},
}

// --- Values --------------------------------------------------------------

const valuesServiceName = "nilvm.rpc.Values"

type ValuesClient interface {
	StoreValues(ctx context.Context, in *StoreValuesRequest, opts ...grpc.CallOption) (*StoreValuesResponse, error)
}

type valuesClient struct{ cc *grpc.ClientConn }

func NewValuesClient(cc *grpc.ClientConn) ValuesClient { return &valuesClient{cc: cc} }

func (c *valuesClient) StoreValues(ctx context.Context, in *StoreValuesRequest, opts ...grpc.CallOption) (*StoreValuesResponse, error) {
	out := new(StoreValuesResponse)
	if err := invokeUnary(ctx, c.cc, valuesServiceName+"/StoreValues", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type ValuesServer interface {
	StoreValues(context.Context, *StoreValuesRequest) (*StoreValuesResponse, error)
}

func RegisterValuesServer(s grpc.ServiceRegistrar, srv ValuesServer) {
	s.RegisterService(&valuesServiceDesc, srv)
}

var valuesServiceDesc = grpc.ServiceDesc{
	ServiceName: valuesServiceName,
	HandlerType: (*ValuesServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(valuesServiceName+"/StoreValues",
			func() message { return new(StoreValuesRequest) },
			func(srv interface{}, ctx context.Context, req message) (message, error) {
				return srv.(ValuesServer).StoreValues(ctx, req.(*StoreValuesRequest))
			}),
	},
}

// --- Compute (client-facing) ---------------------------------------------

const computeServiceName = "nilvm.rpc.Compute"

type ComputeClient interface {
	InvokeCompute(ctx context.Context, in *InvokeComputeRequest, opts ...grpc.CallOption) (*InvokeComputeResponse, error)
	RetrieveResults(ctx context.Context, in *RetrieveResultsRequest, opts ...grpc.CallOption) (*RetrieveResultsMessage, error)
}

type computeClient struct{ cc *grpc.ClientConn }

func NewComputeClient(cc *grpc.ClientConn) ComputeClient { return &computeClient{cc: cc} }

func (c *computeClient) InvokeCompute(ctx context.Context, in *InvokeComputeRequest, opts ...grpc.CallOption) (*InvokeComputeResponse, error) {
	out := new(InvokeComputeResponse)
	if err := invokeUnary(ctx, c.cc, computeServiceName+"/InvokeCompute", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *computeClient) RetrieveResults(ctx context.Context, in *RetrieveResultsRequest, opts ...grpc.CallOption) (*RetrieveResultsMessage, error) {
	out := new(RetrieveResultsMessage)
	if err := invokeUnary(ctx, c.cc, computeServiceName+"/RetrieveResults", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type ComputeServer interface {
	InvokeCompute(context.Context, *InvokeComputeRequest) (*InvokeComputeResponse, error)
	RetrieveResults(context.Context, *RetrieveResultsRequest) (*RetrieveResultsMessage, error)
}

func RegisterComputeServer(s grpc.ServiceRegistrar, srv ComputeServer) {
	s.RegisterService(&computeServiceDesc, srv)
}

var computeServiceDesc = grpc.ServiceDesc{
	ServiceName: computeServiceName,
	HandlerType: (*ComputeServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(computeServiceName+"/InvokeCompute",
			func() message { return new(InvokeComputeRequest) },
			func(srv interface{}, ctx context.Context, req message) (message, error) {
				return srv.(ComputeServer).InvokeCompute(ctx, req.(*InvokeComputeRequest))
			}),
		unaryMethod(computeServiceName+"/RetrieveResults",
			func() message { return new(RetrieveResultsRequest) },
			func(srv interface{}, ctx context.Context, req message) (message, error) {
				return srv.(ComputeServer).RetrieveResults(ctx, req.(*RetrieveResultsRequest))
			}),
	},
}

// --- Preprocessing (internal, leader<->follower) --------------------------

const preprocessingServiceName = "nilvm.rpc.Preprocessing"

type PreprocessingClient interface {
	GenerateMaterial(ctx context.Context, in *PreprocessingMessage, opts ...grpc.CallOption) (*PreprocessingAck, error)
}

type preprocessingClient struct{ cc *grpc.ClientConn }

func NewPreprocessingClient(cc *grpc.ClientConn) PreprocessingClient {
	return &preprocessingClient{cc: cc}
}

func (c *preprocessingClient) GenerateMaterial(ctx context.Context, in *PreprocessingMessage, opts ...grpc.CallOption) (*PreprocessingAck, error) {
	out := new(PreprocessingAck)
	if err := invokeUnary(ctx, c.cc, preprocessingServiceName+"/GenerateMaterial", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type PreprocessingServer interface {
	GenerateMaterial(context.Context, *PreprocessingMessage) (*PreprocessingAck, error)
}

func RegisterPreprocessingServer(s grpc.ServiceRegistrar, srv PreprocessingServer) {
	s.RegisterService(&preprocessingServiceDesc, srv)
}

var preprocessingServiceDesc = grpc.ServiceDesc{
	ServiceName: preprocessingServiceName,
	HandlerType: (*PreprocessingServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(preprocessingServiceName+"/GenerateMaterial",
			func() message { return new(PreprocessingMessage) },
			func(srv interface{}, ctx context.Context, req message) (message, error) {
				return srv.(PreprocessingServer).GenerateMaterial(ctx, req.(*PreprocessingMessage))
			}),
	},
}

// --- LeaderQueries ---------------------------------------------------------

const leaderQueriesServiceName = "nilvm.rpc.LeaderQueries"

type LeaderQueriesClient interface {
	PoolStatus(ctx context.Context, in *PoolStatusRequest, opts ...grpc.CallOption) (*PoolStatusResponse, error)
}

type leaderQueriesClient struct{ cc *grpc.ClientConn }

func NewLeaderQueriesClient(cc *grpc.ClientConn) LeaderQueriesClient {
	return &leaderQueriesClient{cc: cc}
}

func (c *leaderQueriesClient) PoolStatus(ctx context.Context, in *PoolStatusRequest, opts ...grpc.CallOption) (*PoolStatusResponse, error) {
	out := new(PoolStatusResponse)
	if err := invokeUnary(ctx, c.cc, leaderQueriesServiceName+"/PoolStatus", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type LeaderQueriesServer interface {
	PoolStatus(context.Context, *PoolStatusRequest) (*PoolStatusResponse, error)
}

func RegisterLeaderQueriesServer(s grpc.ServiceRegistrar, srv LeaderQueriesServer) {
	s.RegisterService(&leaderQueriesServiceDesc, srv)
}

var leaderQueriesServiceDesc = grpc.ServiceDesc{
	ServiceName: leaderQueriesServiceName,
	HandlerType: (*LeaderQueriesServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(leaderQueriesServiceName+"/PoolStatus",
			func() message { return new(PoolStatusRequest) },
			func(srv interface{}, ctx context.Context, req message) (message, error) {
				return srv.(LeaderQueriesServer).PoolStatus(ctx, req.(*PoolStatusRequest))
			}),
	},
}

// --- Membership -------------------------------------------------------------

const membershipServiceName = "nilvm.rpc.Membership"

type MembershipClient interface {
	Cluster(ctx context.Context, in *ClusterRequest, opts ...grpc.CallOption) (*ClusterResponse, error)
	NodeId(ctx context.Context, in *NodeIdRequest, opts ...grpc.CallOption) (*NodeIdResponse, error)
}

type membershipClient struct{ cc *grpc.ClientConn }

func NewMembershipClient(cc *grpc.ClientConn) MembershipClient { return &membershipClient{cc: cc} }

func (c *membershipClient) Cluster(ctx context.Context, in *ClusterRequest, opts ...grpc.CallOption) (*ClusterResponse, error) {
	out := new(ClusterResponse)
	if err := invokeUnary(ctx, c.cc, membershipServiceName+"/Cluster", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *membershipClient) NodeId(ctx context.Context, in *NodeIdRequest, opts ...grpc.CallOption) (*NodeIdResponse, error) {
	out := new(NodeIdResponse)
	if err := invokeUnary(ctx, c.cc, membershipServiceName+"/NodeId", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type MembershipServer interface {
	Cluster(context.Context, *ClusterRequest) (*ClusterResponse, error)
	NodeId(context.Context, *NodeIdRequest) (*NodeIdResponse, error)
}

func RegisterMembershipServer(s grpc.ServiceRegistrar, srv MembershipServer) {
	s.RegisterService(&membershipServiceDesc, srv)
}

var membershipServiceDesc = grpc.ServiceDesc{
	ServiceName: membershipServiceName,
	HandlerType: (*MembershipServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(membershipServiceName+"/Cluster",
			func() message { return new(ClusterRequest) },
			func(srv interface{}, ctx context.Context, req message) (message, error) {
				return srv.(MembershipServer).Cluster(ctx, req.(*ClusterRequest))
			}),
		unaryMethod(membershipServiceName+"/NodeId",
			func() message { return new(NodeIdRequest) },
			func(srv interface{}, ctx context.Context, req message) (message, error) {
				return srv.(MembershipServer).NodeId(ctx, req.(*NodeIdRequest))
			}),
	},
}
