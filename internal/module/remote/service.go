package remote

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// serviceName is the gRPC service path; no .proto file is compiled for it,
// but the wire format (protobuf BytesValue) and the RPC path are exactly
// what protoc-gen-go-grpc would emit for a one-method streaming-free
// service, so any protobuf-aware proxy or tool still interoperates with it.
const serviceName = "icd.module.v1.ModuleService"

// ModuleServer is implemented by a remote module host process.
type ModuleServer interface {
	InvokeLayer(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// ModuleServiceClient is the generated-shape client stub.
type ModuleServiceClient interface {
	InvokeLayer(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type moduleServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewModuleServiceClient wraps conn in the ModuleServiceClient stub.
func NewModuleServiceClient(conn grpc.ClientConnInterface) ModuleServiceClient {
	return &moduleServiceClient{cc: conn}
}

func (c *moduleServiceClient) InvokeLayer(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/InvokeLayer", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _ModuleService_InvokeLayer_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ModuleServer).InvokeLayer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/InvokeLayer"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ModuleServer).InvokeLayer(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc registers ModuleServer against a *grpc.Server the same way a
// generated _grpc.pb.go file would via RegisterModuleServiceServer.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ModuleServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "InvokeLayer",
			Handler:    _ModuleService_InvokeLayer_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "icd/module/v1/module.proto",
}

// RegisterModuleServiceServer registers srv on s.
func RegisterModuleServiceServer(s *grpc.Server, srv ModuleServer) {
	s.RegisterService(&ServiceDesc, srv)
}
