package bookingv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "barberq.booking.v1.BookingService"

const (
	BookingService_CreateBooking_FullMethodName          = "/" + ServiceName + "/CreateBooking"
	BookingService_CreatePublicBooking_FullMethodName    = "/" + ServiceName + "/CreatePublicBooking"
	BookingService_GetBooking_FullMethodName             = "/" + ServiceName + "/GetBooking"
	BookingService_AcceptBooking_FullMethodName          = "/" + ServiceName + "/AcceptBooking"
	BookingService_DeclineBooking_FullMethodName         = "/" + ServiceName + "/DeclineBooking"
	BookingService_CancelBooking_FullMethodName          = "/" + ServiceName + "/CancelBooking"
	BookingService_CancelPendingBooking_FullMethodName   = "/" + ServiceName + "/CancelPendingBooking"
	BookingService_StartAppointment_FullMethodName       = "/" + ServiceName + "/StartAppointment"
	BookingService_VerifyOtp_FullMethodName              = "/" + ServiceName + "/VerifyOtp"
	BookingService_CompleteAppointment_FullMethodName    = "/" + ServiceName + "/CompleteAppointment"
	BookingService_MarkPaid_FullMethodName               = "/" + ServiceName + "/MarkPaid"
	BookingService_CheckAvailability_FullMethodName      = "/" + ServiceName + "/CheckAvailability"
	BookingService_CheckAvailabilityBatch_FullMethodName = "/" + ServiceName + "/CheckAvailabilityBatch"
	BookingService_ProviderQueue_FullMethodName          = "/" + ServiceName + "/ProviderQueue"
	BookingService_DailyCounts_FullMethodName            = "/" + ServiceName + "/DailyCounts"
	BookingService_SetCapacity_FullMethodName            = "/" + ServiceName + "/SetCapacity"
)

// BookingServiceServer is implemented by the transport layer.
type BookingServiceServer interface {
	CreateBooking(context.Context, *CreateBookingRequest) (*BookingResponse, error)
	CreatePublicBooking(context.Context, *CreatePublicBookingRequest) (*BookingResponse, error)
	GetBooking(context.Context, *BookingRequest) (*BookingResponse, error)
	AcceptBooking(context.Context, *BookingRequest) (*BookingResponse, error)
	DeclineBooking(context.Context, *BookingRequest) (*BookingResponse, error)
	CancelBooking(context.Context, *BookingRequest) (*BookingResponse, error)
	CancelPendingBooking(context.Context, *BookingRequest) (*BookingResponse, error)
	StartAppointment(context.Context, *OtpRequest) (*BookingResponse, error)
	VerifyOtp(context.Context, *OtpRequest) (*VerifyOtpResponse, error)
	CompleteAppointment(context.Context, *BookingRequest) (*BookingResponse, error)
	MarkPaid(context.Context, *BookingRequest) (*BookingResponse, error)
	CheckAvailability(context.Context, *DayRequest) (*AvailabilityResponse, error)
	CheckAvailabilityBatch(context.Context, *AvailabilityBatchRequest) (*AvailabilityBatchResponse, error)
	ProviderQueue(context.Context, *DayRequest) (*QueueResponse, error)
	DailyCounts(context.Context, *DayRequest) (*DailyCountsResponse, error)
	SetCapacity(context.Context, *SetCapacityRequest) (*SetCapacityResponse, error)
}

// UnimplementedBookingServiceServer answers every RPC with codes.Unimplemented.
type UnimplementedBookingServiceServer struct{}

func (UnimplementedBookingServiceServer) CreateBooking(context.Context, *CreateBookingRequest) (*BookingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateBooking not implemented")
}
func (UnimplementedBookingServiceServer) CreatePublicBooking(context.Context, *CreatePublicBookingRequest) (*BookingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreatePublicBooking not implemented")
}
func (UnimplementedBookingServiceServer) GetBooking(context.Context, *BookingRequest) (*BookingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetBooking not implemented")
}
func (UnimplementedBookingServiceServer) AcceptBooking(context.Context, *BookingRequest) (*BookingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AcceptBooking not implemented")
}
func (UnimplementedBookingServiceServer) DeclineBooking(context.Context, *BookingRequest) (*BookingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DeclineBooking not implemented")
}
func (UnimplementedBookingServiceServer) CancelBooking(context.Context, *BookingRequest) (*BookingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelBooking not implemented")
}
func (UnimplementedBookingServiceServer) CancelPendingBooking(context.Context, *BookingRequest) (*BookingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelPendingBooking not implemented")
}
func (UnimplementedBookingServiceServer) StartAppointment(context.Context, *OtpRequest) (*BookingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StartAppointment not implemented")
}
func (UnimplementedBookingServiceServer) VerifyOtp(context.Context, *OtpRequest) (*VerifyOtpResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method VerifyOtp not implemented")
}
func (UnimplementedBookingServiceServer) CompleteAppointment(context.Context, *BookingRequest) (*BookingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CompleteAppointment not implemented")
}
func (UnimplementedBookingServiceServer) MarkPaid(context.Context, *BookingRequest) (*BookingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method MarkPaid not implemented")
}
func (UnimplementedBookingServiceServer) CheckAvailability(context.Context, *DayRequest) (*AvailabilityResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CheckAvailability not implemented")
}
func (UnimplementedBookingServiceServer) CheckAvailabilityBatch(context.Context, *AvailabilityBatchRequest) (*AvailabilityBatchResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CheckAvailabilityBatch not implemented")
}
func (UnimplementedBookingServiceServer) ProviderQueue(context.Context, *DayRequest) (*QueueResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ProviderQueue not implemented")
}
func (UnimplementedBookingServiceServer) DailyCounts(context.Context, *DayRequest) (*DailyCountsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DailyCounts not implemented")
}
func (UnimplementedBookingServiceServer) SetCapacity(context.Context, *SetCapacityRequest) (*SetCapacityResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SetCapacity not implemented")
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&BookingService_ServiceDesc, srv)
}

var BookingService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateBooking", BookingServiceServer.CreateBooking),
		unary("CreatePublicBooking", BookingServiceServer.CreatePublicBooking),
		unary("GetBooking", BookingServiceServer.GetBooking),
		unary("AcceptBooking", BookingServiceServer.AcceptBooking),
		unary("DeclineBooking", BookingServiceServer.DeclineBooking),
		unary("CancelBooking", BookingServiceServer.CancelBooking),
		unary("CancelPendingBooking", BookingServiceServer.CancelPendingBooking),
		unary("StartAppointment", BookingServiceServer.StartAppointment),
		unary("VerifyOtp", BookingServiceServer.VerifyOtp),
		unary("CompleteAppointment", BookingServiceServer.CompleteAppointment),
		unary("MarkPaid", BookingServiceServer.MarkPaid),
		unary("CheckAvailability", BookingServiceServer.CheckAvailability),
		unary("CheckAvailabilityBatch", BookingServiceServer.CheckAvailabilityBatch),
		unary("ProviderQueue", BookingServiceServer.ProviderQueue),
		unary("DailyCounts", BookingServiceServer.DailyCounts),
		unary("SetCapacity", BookingServiceServer.SetCapacity),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "barberq/booking/v1/booking.proto",
}

func unary[Req, Resp any](method string, call func(BookingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BookingServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BookingServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// BookingServiceClient calls the booking service using the JSON codec.
type BookingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingServiceClient(cc grpc.ClientConnInterface) *BookingServiceClient {
	return &BookingServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *BookingServiceClient, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingServiceClient) CreateBooking(ctx context.Context, in *CreateBookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingService_CreateBooking_FullMethodName, in, opts)
}

func (c *BookingServiceClient) CreatePublicBooking(ctx context.Context, in *CreatePublicBookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingService_CreatePublicBooking_FullMethodName, in, opts)
}

func (c *BookingServiceClient) GetBooking(ctx context.Context, in *BookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingService_GetBooking_FullMethodName, in, opts)
}

func (c *BookingServiceClient) AcceptBooking(ctx context.Context, in *BookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingService_AcceptBooking_FullMethodName, in, opts)
}

func (c *BookingServiceClient) DeclineBooking(ctx context.Context, in *BookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingService_DeclineBooking_FullMethodName, in, opts)
}

func (c *BookingServiceClient) CancelBooking(ctx context.Context, in *BookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingService_CancelBooking_FullMethodName, in, opts)
}

func (c *BookingServiceClient) CancelPendingBooking(ctx context.Context, in *BookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingService_CancelPendingBooking_FullMethodName, in, opts)
}

func (c *BookingServiceClient) StartAppointment(ctx context.Context, in *OtpRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingService_StartAppointment_FullMethodName, in, opts)
}

func (c *BookingServiceClient) VerifyOtp(ctx context.Context, in *OtpRequest, opts ...grpc.CallOption) (*VerifyOtpResponse, error) {
	return invoke[VerifyOtpResponse](ctx, c, BookingService_VerifyOtp_FullMethodName, in, opts)
}

func (c *BookingServiceClient) CompleteAppointment(ctx context.Context, in *BookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingService_CompleteAppointment_FullMethodName, in, opts)
}

func (c *BookingServiceClient) MarkPaid(ctx context.Context, in *BookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c, BookingService_MarkPaid_FullMethodName, in, opts)
}

func (c *BookingServiceClient) CheckAvailability(ctx context.Context, in *DayRequest, opts ...grpc.CallOption) (*AvailabilityResponse, error) {
	return invoke[AvailabilityResponse](ctx, c, BookingService_CheckAvailability_FullMethodName, in, opts)
}

func (c *BookingServiceClient) CheckAvailabilityBatch(ctx context.Context, in *AvailabilityBatchRequest, opts ...grpc.CallOption) (*AvailabilityBatchResponse, error) {
	return invoke[AvailabilityBatchResponse](ctx, c, BookingService_CheckAvailabilityBatch_FullMethodName, in, opts)
}

func (c *BookingServiceClient) ProviderQueue(ctx context.Context, in *DayRequest, opts ...grpc.CallOption) (*QueueResponse, error) {
	return invoke[QueueResponse](ctx, c, BookingService_ProviderQueue_FullMethodName, in, opts)
}

func (c *BookingServiceClient) DailyCounts(ctx context.Context, in *DayRequest, opts ...grpc.CallOption) (*DailyCountsResponse, error) {
	return invoke[DailyCountsResponse](ctx, c, BookingService_DailyCounts_FullMethodName, in, opts)
}

func (c *BookingServiceClient) SetCapacity(ctx context.Context, in *SetCapacityRequest, opts ...grpc.CallOption) (*SetCapacityResponse, error) {
	return invoke[SetCapacityResponse](ctx, c, BookingService_SetCapacity_FullMethodName, in, opts)
}
