package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "xdao.calm.v1.Claims"

// ClaimsServer is the server API for the Claims gRPC service.
//
// Every method takes and returns a JSON document (see package model) wrapped
// in a protobuf BytesValue, so no protoc/codegen toolchain is needed.
type ClaimsServer interface {
	Info(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Claim(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Nonce(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	OwnerOf(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Balance(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	PutMetadata(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	GetMetadata(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Faucet(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// UnimplementedClaimsServer can be embedded to have forward compatible implementations.
type UnimplementedClaimsServer struct{}

func unimplemented(method string) error {
	return status.Error(codes.Unimplemented, "method "+method+" not implemented")
}

func (UnimplementedClaimsServer) Info(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented("Info")
}
func (UnimplementedClaimsServer) Claim(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented("Claim")
}
func (UnimplementedClaimsServer) Nonce(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented("Nonce")
}
func (UnimplementedClaimsServer) OwnerOf(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented("OwnerOf")
}
func (UnimplementedClaimsServer) Balance(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented("Balance")
}
func (UnimplementedClaimsServer) PutMetadata(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented("PutMetadata")
}
func (UnimplementedClaimsServer) GetMetadata(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented("GetMetadata")
}
func (UnimplementedClaimsServer) Faucet(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, unimplemented("Faucet")
}

// RegisterClaimsServer registers the Claims service on a gRPC server.
func RegisterClaimsServer(s grpc.ServiceRegistrar, srv ClaimsServer) {
	s.RegisterService(&Claims_ServiceDesc, srv)
}

// ClaimsClient is the raw client API for the Claims gRPC service.
type ClaimsClient interface {
	Call(ctx context.Context, method string, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type claimsClient struct{ cc grpc.ClientConnInterface }

func NewClaimsClient(cc grpc.ClientConnInterface) ClaimsClient { return &claimsClient{cc: cc} }

func (c *claimsClient) Call(ctx context.Context, method string, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type unaryMethod func(ClaimsServer, context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)

func handler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(wrapperspb.BytesValue)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ClaimsServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			h := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(ClaimsServer), ctx, req.(*wrapperspb.BytesValue))
			}
			return interceptor(ctx, in, info, h)
		},
	}
}

// Claims_ServiceDesc is the grpc.ServiceDesc for the Claims service.
var Claims_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ClaimsServer)(nil),
	Methods: []grpc.MethodDesc{
		handler("Info", ClaimsServer.Info),
		handler("Claim", ClaimsServer.Claim),
		handler("Nonce", ClaimsServer.Nonce),
		handler("OwnerOf", ClaimsServer.OwnerOf),
		handler("Balance", ClaimsServer.Balance),
		handler("PutMetadata", ClaimsServer.PutMetadata),
		handler("GetMetadata", ClaimsServer.GetMetadata),
		handler("Faucet", ClaimsServer.Faucet),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "claims.proto",
}
