package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Client calls doctorcal.v1.SchedulingService using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// Dial connects to target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("grpc: dial %s: %w", target, err)
	}
	return NewClient(conn), conn, nil
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithIdempotencyKey attaches the key BookAppointment deduplicates retries by.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "idempotency-key", key)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, fullMethod(method), req, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetDay(ctx context.Context, req *GetDayRequest) (*GetDayResponse, error) {
	return invoke[GetDayResponse](ctx, c.cc, "GetDay", req)
}

func (c *Client) GetWeek(ctx context.Context, req *GetWeekRequest) (*GetWeekResponse, error) {
	return invoke[GetWeekResponse](ctx, c.cc, "GetWeek", req)
}

func (c *Client) ListFreeSlots(ctx context.Context, req *ListFreeSlotsRequest) (*ListFreeSlotsResponse, error) {
	return invoke[ListFreeSlotsResponse](ctx, c.cc, "ListFreeSlots", req)
}

func (c *Client) CreateAvailability(ctx context.Context, req *CreateAvailabilityRequest) (*CreateAvailabilityResponse, error) {
	return invoke[CreateAvailabilityResponse](ctx, c.cc, "CreateAvailability", req)
}

func (c *Client) DeleteAvailability(ctx context.Context, req *DeleteAvailabilityRequest) (*DeleteAvailabilityResponse, error) {
	return invoke[DeleteAvailabilityResponse](ctx, c.cc, "DeleteAvailability", req)
}

func (c *Client) CreateAbsence(ctx context.Context, req *CreateAbsenceRequest) (*CreateAbsenceResponse, error) {
	return invoke[CreateAbsenceResponse](ctx, c.cc, "CreateAbsence", req)
}

func (c *Client) DeleteAbsence(ctx context.Context, req *DeleteAbsenceRequest) (*DeleteAbsenceResponse, error) {
	return invoke[DeleteAbsenceResponse](ctx, c.cc, "DeleteAbsence", req)
}

func (c *Client) BookAppointment(ctx context.Context, req *BookAppointmentRequest) (*BookAppointmentResponse, error) {
	return invoke[BookAppointmentResponse](ctx, c.cc, "BookAppointment", req)
}

func (c *Client) CancelAppointment(ctx context.Context, req *CancelAppointmentRequest) (*CancelAppointmentResponse, error) {
	return invoke[CancelAppointmentResponse](ctx, c.cc, "CancelAppointment", req)
}

func (c *Client) DeleteAppointment(ctx context.Context, req *DeleteAppointmentRequest) (*DeleteAppointmentResponse, error) {
	return invoke[DeleteAppointmentResponse](ctx, c.cc, "DeleteAppointment", req)
}

func (c *Client) ListAppointments(ctx context.Context, req *ListAppointmentsRequest) (*ListAppointmentsResponse, error) {
	return invoke[ListAppointmentsResponse](ctx, c.cc, "ListAppointments", req)
}

func (c *Client) WatchChanges(ctx context.Context, req *WatchChangesRequest) (grpc.ServerStreamingClient[ChangeEvent], error) {
	stream, err := c.cc.NewStream(ctx, &SchedulingServiceDesc.Streams[0], fullMethod("WatchChanges"), grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[WatchChangesRequest, ChangeEvent]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
