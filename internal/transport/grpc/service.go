// Package grpcapi exposes availability and booking over gRPC. Messages are
// google.protobuf.Struct values, so the service is registered from a
// hand-written descriptor instead of generated stubs.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "vetclinic.v1.AvailabilityService"

const (
	methodGetAvailability = "/" + serviceName + "/GetAvailability"
	methodCheckSlot       = "/" + serviceName + "/CheckSlot"
	methodBookAppointment = "/" + serviceName + "/BookAppointment"
)

// AvailabilityServiceServer is the server side of vetclinic.v1.AvailabilityService.
type AvailabilityServiceServer interface {
	GetAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	BookAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func RegisterAvailabilityServiceServer(s grpc.ServiceRegistrar, srv AvailabilityServiceServer) {
	s.RegisterService(&AvailabilityServiceDesc, srv)
}

var AvailabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AvailabilityServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAvailability", Handler: unaryHandler(methodGetAvailability, AvailabilityServiceServer.GetAvailability)},
		{MethodName: "CheckSlot", Handler: unaryHandler(methodCheckSlot, AvailabilityServiceServer.CheckSlot)},
		{MethodName: "BookAppointment", Handler: unaryHandler(methodBookAppointment, AvailabilityServiceServer.BookAppointment)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vetclinic/v1/availability.proto",
}

type structMethod func(AvailabilityServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler returns a func matching grpc.MethodDesc.Handler.
func unaryHandler(fullMethod string, call structMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		impl := srv.(AvailabilityServiceServer)
		if interceptor == nil {
			return call(impl, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(impl, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
