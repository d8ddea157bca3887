package grpc_control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TerminalControl is declared over protobuf well-known types only; there is
// no generated code.
const ServiceName = "gapperterminal.control.v1.TerminalControl"

// TerminalControlServer is implemented by ControlService.
type TerminalControlServer interface {
	Submit(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListChannels(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Watch(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Unwatch(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// -----------------------------------------------------------------------------

func unary[Req any](method string, newReq func() *Req, call func(TerminalControlServer, context.Context, *Req) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TerminalControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(TerminalControlServer), ctx, req.(*Req))
			})
		},
	}
}

func newString() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }
func newEmpty() *emptypb.Empty            { return &emptypb.Empty{} }

// ServiceDesc registers TerminalControl with a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TerminalControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Submit", newString, TerminalControlServer.Submit),
		unary("GetStatus", newEmpty, TerminalControlServer.GetStatus),
		unary("ListChannels", newEmpty, TerminalControlServer.ListChannels),
		unary("Watch", newString, TerminalControlServer.Watch),
		unary("Unwatch", newString, TerminalControlServer.Unwatch),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gapperterminal/control/v1/control.proto",
}

func RegisterTerminalControlServer(s grpc.ServiceRegistrar, srv TerminalControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// -----------------------------------------------------------------------------
// TerminalControlClient
// -----------------------------------------------------------------------------

type TerminalControlClient struct {
	cc grpc.ClientConnInterface
}

func NewTerminalControlClient(cc grpc.ClientConnInterface) *TerminalControlClient {
	return &TerminalControlClient{cc: cc}
}

func (c *TerminalControlClient) invoke(ctx context.Context, method string, in any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TerminalControlClient) Submit(ctx context.Context, text string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Submit", wrapperspb.String(text), opts...)
}

func (c *TerminalControlClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetStatus", &emptypb.Empty{}, opts...)
}

func (c *TerminalControlClient) ListChannels(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListChannels", &emptypb.Empty{}, opts...)
}

func (c *TerminalControlClient) Watch(ctx context.Context, ticker string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Watch", wrapperspb.String(ticker), opts...)
}

func (c *TerminalControlClient) Unwatch(ctx context.Context, ticker string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Unwatch", wrapperspb.String(ticker), opts...)
}
