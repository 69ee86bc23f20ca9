package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "footscan.v1.Scanner"

const (
	methodStartScan     = "/" + ServiceName + "/StartScan"
	methodStopScan      = "/" + ServiceName + "/StopScan"
	methodConfigure     = "/" + ServiceName + "/Configure"
	methodCapabilities  = "/" + ServiceName + "/Capabilities"
	methodStreamPoints  = "/" + ServiceName + "/StreamPoints"
	methodStreamPreview = "/" + ServiceName + "/StreamPreview"
)

// ScannerServer is the server API of the Scanner service. Messages are
// protobuf well-known types, so no generated code is needed.
type ScannerServer interface {
	StartScan(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	StopScan(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	// Configure takes a map of configuration fields and returns
	// {"applied": [keys], "errors": [messages]}.
	Configure(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Capabilities returns {"platform": string, "depthSupported": bool}.
	Capabilities(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// StreamPoints sends one encoded cloud per processed frame.
	StreamPoints(*emptypb.Empty, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
	// StreamPreview sends throttled JPEG preview frames.
	StreamPreview(*emptypb.Empty, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
}

// RegisterScannerServer registers srv on s.
func RegisterScannerServer(s grpc.ServiceRegistrar, srv ScannerServer) {
	s.RegisterService(&ScannerServiceDesc, srv)
}

// ScannerServiceDesc describes the Scanner service to grpc.
var ScannerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ScannerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartScan", Handler: startScanHandler},
		{MethodName: "StopScan", Handler: stopScanHandler},
		{MethodName: "Configure", Handler: configureHandler},
		{MethodName: "Capabilities", Handler: capabilitiesHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamPoints", Handler: streamPointsHandler, ServerStreams: true},
		{StreamName: "StreamPreview", Handler: streamPreviewHandler, ServerStreams: true},
	},
	Metadata: "footscan/v1/scanner.proto",
}

// unary adapts a typed unary method to grpc's handler signature.
func unary[Req any, Res any](method string, call func(ScannerServer, context.Context, *Req) (*Res, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ScannerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ScannerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	startScanHandler    = unary(methodStartScan, ScannerServer.StartScan)
	stopScanHandler     = unary(methodStopScan, ScannerServer.StopScan)
	configureHandler    = unary(methodConfigure, ScannerServer.Configure)
	capabilitiesHandler = unary(methodCapabilities, ScannerServer.Capabilities)
)

func streamPointsHandler(srv any, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ScannerServer).StreamPoints(m, &grpc.GenericServerStream[emptypb.Empty, wrapperspb.BytesValue]{ServerStream: stream})
}

func streamPreviewHandler(srv any, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ScannerServer).StreamPreview(m, &grpc.GenericServerStream[emptypb.Empty, wrapperspb.BytesValue]{ServerStream: stream})
}
