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

// message is the minimal legacy proto.Message shape compute.go's doc
// comment describes: the subset google.golang.org/protobuf's runtime
// still accepts from gRPC's default codec without a real protoc
// descriptor behind it.
type message interface {
	Reset()
	String() string
	ProtoMessage()
}

// unaryMethod builds one grpc.MethodDesc, factoring out the
// decode/intercept/dispatch boilerplate DeliverMessage's hand-written
// grpc.ServiceDesc spells out in full; every other service in this
// package has several unary methods, so repeating that block per method
// would dominate the file. newReq must return a fresh zero value each
// call since dec populates it in place.
func unaryMethod(name string, newReq func() message, call func(srv interface{}, ctx context.Context, req message) (message, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv, ctx, req.(message))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// invokeUnary is the client-side half matching unaryMethod: marshal in,
// call method, unmarshal into a fresh out.
func invokeUnary(ctx context.Context, cc *grpc.ClientConn, method string, in, out message, opts ...grpc.CallOption) error {
	return cc.Invoke(ctx, method, in, out, opts...)
}
