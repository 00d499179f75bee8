// Package grpc exposes the PALS entry points as the pals.v1.EntryService
// gRPC service. Payloads and results travel as google.protobuf.Struct
// documents with the same shape as the HTTP JSON bodies.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "pals.v1.EntryService"

// Full method names.
const (
	ExecuteMethod  = "/" + ServiceName + "/Execute"
	ScheduleMethod = "/" + ServiceName + "/Schedule"
	HelloMethod    = "/" + ServiceName + "/Hello"
)

// EntryServiceServer is the server API for EntryService.
type EntryServiceServer interface {
	Execute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Schedule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Hello(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterEntryServiceServer registers srv on s.
func RegisterEntryServiceServer(s grpc.ServiceRegistrar, srv EntryServiceServer) {
	s.RegisterService(&EntryServiceDesc, srv)
}

func unaryHandler(method string, call func(EntryServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EntryServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(EntryServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// EntryServiceDesc is the grpc.ServiceDesc for EntryService.
var EntryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EntryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Execute",
			Handler: unaryHandler(ExecuteMethod, func(s EntryServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.Execute(ctx, in)
			}),
		},
		{
			MethodName: "Schedule",
			Handler: unaryHandler(ScheduleMethod, func(s EntryServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.Schedule(ctx, in)
			}),
		},
		{
			MethodName: "Hello",
			Handler: unaryHandler(HelloMethod, func(s EntryServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.Hello(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pals/v1/entry.proto",
}

// EntryServiceClient is the client API for EntryService.
type EntryServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewEntryServiceClient creates a client on cc.
func NewEntryServiceClient(cc grpc.ClientConnInterface) *EntryServiceClient {
	return &EntryServiceClient{cc: cc}
}

// Execute calls EntryService.Execute.
func (c *EntryServiceClient) Execute(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ExecuteMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Schedule calls EntryService.Schedule.
func (c *EntryServiceClient) Schedule(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ScheduleMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Hello calls EntryService.Hello.
func (c *EntryServiceClient) Hello(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, HelloMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
