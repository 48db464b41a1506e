package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "doctorcal.v1.SchedulingService"

// SchedulingServiceServer is the server API of doctorcal.v1.SchedulingService.
type SchedulingServiceServer interface {
	GetDay(context.Context, *GetDayRequest) (*GetDayResponse, error)
	GetWeek(context.Context, *GetWeekRequest) (*GetWeekResponse, error)
	ListFreeSlots(context.Context, *ListFreeSlotsRequest) (*ListFreeSlotsResponse, error)
	CreateAvailability(context.Context, *CreateAvailabilityRequest) (*CreateAvailabilityResponse, error)
	DeleteAvailability(context.Context, *DeleteAvailabilityRequest) (*DeleteAvailabilityResponse, error)
	CreateAbsence(context.Context, *CreateAbsenceRequest) (*CreateAbsenceResponse, error)
	DeleteAbsence(context.Context, *DeleteAbsenceRequest) (*DeleteAbsenceResponse, error)
	BookAppointment(context.Context, *BookAppointmentRequest) (*BookAppointmentResponse, error)
	CancelAppointment(context.Context, *CancelAppointmentRequest) (*CancelAppointmentResponse, error)
	DeleteAppointment(context.Context, *DeleteAppointmentRequest) (*DeleteAppointmentResponse, error)
	ListAppointments(context.Context, *ListAppointmentsRequest) (*ListAppointmentsResponse, error)
	WatchChanges(*WatchChangesRequest, grpc.ServerStreamingServer[ChangeEvent]) error
}

func RegisterSchedulingServiceServer(s grpc.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&SchedulingServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(SchedulingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SchedulingServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SchedulingServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchChangesHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchChangesRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SchedulingServiceServer).WatchChanges(in, &grpc.GenericServerStream[WatchChangesRequest, ChangeEvent]{ServerStream: stream})
}

var SchedulingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetDay", SchedulingServiceServer.GetDay),
		unary("GetWeek", SchedulingServiceServer.GetWeek),
		unary("ListFreeSlots", SchedulingServiceServer.ListFreeSlots),
		unary("CreateAvailability", SchedulingServiceServer.CreateAvailability),
		unary("DeleteAvailability", SchedulingServiceServer.DeleteAvailability),
		unary("CreateAbsence", SchedulingServiceServer.CreateAbsence),
		unary("DeleteAbsence", SchedulingServiceServer.DeleteAbsence),
		unary("BookAppointment", SchedulingServiceServer.BookAppointment),
		unary("CancelAppointment", SchedulingServiceServer.CancelAppointment),
		unary("DeleteAppointment", SchedulingServiceServer.DeleteAppointment),
		unary("ListAppointments", SchedulingServiceServer.ListAppointments),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchChanges",
			Handler:       watchChangesHandler,
			ServerStreams: true,
		},
	},
}
