// Package grpc serves the advisor over gRPC. Requests and responses are
// google.protobuf.Struct messages so clients need no generated code beyond
// the well-known types.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "arkilian.advisor.v1.Advisor"

const (
	adviseMethod       = "/" + ServiceName + "/Advise"
	latestReportMethod = "/" + ServiceName + "/LatestReport"
)

// AdvisorServer is the server API for the Advisor service.
type AdvisorServer interface {
	// Advise runs the advisor for {"table": "..."} and answers
	// {"report": {...}, "report_key": "...", "request_id": "..."}.
	Advise(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// LatestReport answers {"report": {...}} for the latest archived report.
	LatestReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the Advisor service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdvisorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Advise", Handler: unaryHandler(adviseMethod, AdvisorServer.Advise)},
		{MethodName: "LatestReport", Handler: unaryHandler(latestReportMethod, AdvisorServer.LatestReport)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "arkilian/advisor/v1/advisor.proto",
}

// RegisterAdvisorServer registers srv on s.
func RegisterAdvisorServer(s grpc.ServiceRegistrar, srv AdvisorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler(
	fullMethod string,
	call func(AdvisorServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AdvisorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(AdvisorServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AdvisorClient calls the Advisor service.
type AdvisorClient struct {
	cc grpc.ClientConnInterface
}

// NewAdvisorClient creates a client on cc.
func NewAdvisorClient(cc grpc.ClientConnInterface) *AdvisorClient {
	return &AdvisorClient{cc: cc}
}

// Advise calls Advisor/Advise.
func (c *AdvisorClient) Advise(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, adviseMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// LatestReport calls Advisor/LatestReport.
func (c *AdvisorClient) LatestReport(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, latestReportMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
