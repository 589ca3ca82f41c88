package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	bookingv1 "barberq/backend/internal/api/bookingv1"
	"barberq/backend/internal/auth"
	"barberq/backend/internal/domain"
	"barberq/backend/internal/service/booking"
)

const errorDomain = "barberq"

type BookingServer struct {
	bookingv1.UnimplementedBookingServiceServer

	svc bookingService
	loc *time.Location
	log *slog.Logger
}

type bookingService interface {
	Create(ctx context.Context, actor domain.Actor, in booking.CreateInput) (domain.Appointment, error)
	CreatePublic(ctx context.Context, in booking.PublicInput) (domain.Appointment, error)
	Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Appointment, error)
	Accept(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Appointment, error)
	Decline(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Appointment, error)
	Cancel(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Appointment, error)
	CancelPending(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Appointment, error)
	Start(ctx context.Context, actor domain.Actor, id uuid.UUID, otp string) (domain.Appointment, error)
	VerifyOtp(ctx context.Context, actor domain.Actor, id uuid.UUID, otp string) error
	Complete(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Appointment, error)
	MarkPaid(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Appointment, error)
	Availability(ctx context.Context, providerID, date string) (domain.Availability, error)
	AvailabilityBatch(ctx context.Context, providerIDs []string, date string) (map[string]domain.Availability, error)
	Queue(ctx context.Context, providerID, date string) ([]domain.Appointment, error)
	DailyCounts(ctx context.Context, providerID, date string) (map[string]int, error)
	SetCapacity(ctx context.Context, actor domain.Actor, capacity int) (domain.Provider, error)
	Location() *time.Location
}

func NewBookingServer(svc bookingService, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		svc: svc,
		loc: svc.Location(),
		log: log.With(slog.String("component", "grpc.booking")),
	}
}

func (s *BookingServer) CreateBooking(ctx context.Context, req *bookingv1.CreateBookingRequest) (*bookingv1.BookingResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateBooking"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	actor := actorFrom(ctx)

	appt, err := s.svc.Create(ctx, actor, booking.CreateInput{
		ProviderID:     req.ProviderID,
		Date:           req.Date,
		Time:           req.Time,
		TierLabel:      req.Tier,
		Services:       fromProtoServices(req.Services),
		TotalPrice:     req.TotalPrice,
		IsOffline:      req.IsOffline,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.fail(ctx, log, err,
			slog.String("actor_id", actor.ID),
			slog.String("provider_id", req.ProviderID),
			slog.String("date", req.Date),
			slog.String("tier", req.Tier),
		)
	}

	log.InfoContext(ctx, "booking created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("provider_id", appt.ProviderID),
		slog.String("actor_id", actor.ID),
		slog.Bool("offline", appt.IsOffline),
	)
	return &bookingv1.BookingResponse{Booking: s.toProtoBooking(appt, true)}, nil
}

func (s *BookingServer) CreatePublicBooking(ctx context.Context, req *bookingv1.CreatePublicBookingRequest) (*bookingv1.BookingResponse, error) {
	log := s.log.With(slog.String("rpc", "CreatePublicBooking"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	appt, err := s.svc.CreatePublic(ctx, booking.PublicInput{
		ProviderID:    req.ProviderID,
		Date:          req.Date,
		Time:          req.Time,
		TierLabel:     req.Tier,
		Services:      fromProtoServices(req.Services),
		TotalPrice:    req.TotalPrice,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
	})
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("provider_id", req.ProviderID), slog.String("date", req.Date))
	}

	log.InfoContext(ctx, "public booking created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("provider_id", appt.ProviderID),
	)
	return &bookingv1.BookingResponse{Booking: s.toProtoBooking(appt, false)}, nil
}

func (s *BookingServer) GetBooking(ctx context.Context, req *bookingv1.BookingRequest) (*bookingv1.BookingResponse, error) {
	return s.transition(ctx, "GetBooking", req, s.svc.Get)
}

func (s *BookingServer) AcceptBooking(ctx context.Context, req *bookingv1.BookingRequest) (*bookingv1.BookingResponse, error) {
	return s.transition(ctx, "AcceptBooking", req, s.svc.Accept)
}

func (s *BookingServer) DeclineBooking(ctx context.Context, req *bookingv1.BookingRequest) (*bookingv1.BookingResponse, error) {
	return s.transition(ctx, "DeclineBooking", req, s.svc.Decline)
}

func (s *BookingServer) CancelBooking(ctx context.Context, req *bookingv1.BookingRequest) (*bookingv1.BookingResponse, error) {
	return s.transition(ctx, "CancelBooking", req, s.svc.Cancel)
}

func (s *BookingServer) CancelPendingBooking(ctx context.Context, req *bookingv1.BookingRequest) (*bookingv1.BookingResponse, error) {
	return s.transition(ctx, "CancelPendingBooking", req, s.svc.CancelPending)
}

func (s *BookingServer) CompleteAppointment(ctx context.Context, req *bookingv1.BookingRequest) (*bookingv1.BookingResponse, error) {
	return s.transition(ctx, "CompleteAppointment", req, s.svc.Complete)
}

func (s *BookingServer) MarkPaid(ctx context.Context, req *bookingv1.BookingRequest) (*bookingv1.BookingResponse, error) {
	return s.transition(ctx, "MarkPaid", req, s.svc.MarkPaid)
}

// transition runs a single-appointment operation and shapes its response.
func (s *BookingServer) transition(
	ctx context.Context,
	rpc string,
	req *bookingv1.BookingRequest,
	op func(context.Context, domain.Actor, uuid.UUID) (domain.Appointment, error),
) (*bookingv1.BookingResponse, error) {
	log := s.log.With(slog.String("rpc", rpc))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}
	actor := actorFrom(ctx)

	appt, err := op(ctx, actor, id)
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("appointment_id", id.String()), slog.String("actor_id", actor.ID))
	}

	log.DebugContext(ctx, "booking handled",
		slog.String("appointment_id", id.String()),
		slog.String("actor_id", actor.ID),
		slog.String("status", string(appt.Status)),
	)
	return &bookingv1.BookingResponse{Booking: s.toProtoBooking(appt, false)}, nil
}

func (s *BookingServer) StartAppointment(ctx context.Context, req *bookingv1.OtpRequest) (*bookingv1.BookingResponse, error) {
	log := s.log.With(slog.String("rpc", "StartAppointment"))

	id, err := parseOtpRequest(log, req)
	if err != nil {
		return nil, err
	}
	actor := actorFrom(ctx)

	appt, err := s.svc.Start(ctx, actor, id, req.Otp)
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("appointment_id", id.String()), slog.String("actor_id", actor.ID))
	}

	log.InfoContext(ctx, "appointment started", slog.String("appointment_id", id.String()))
	return &bookingv1.BookingResponse{Booking: s.toProtoBooking(appt, false)}, nil
}

func (s *BookingServer) VerifyOtp(ctx context.Context, req *bookingv1.OtpRequest) (*bookingv1.VerifyOtpResponse, error) {
	log := s.log.With(slog.String("rpc", "VerifyOtp"))

	id, err := parseOtpRequest(log, req)
	if err != nil {
		return nil, err
	}
	actor := actorFrom(ctx)

	if err := s.svc.VerifyOtp(ctx, actor, id, req.Otp); err != nil {
		return nil, s.fail(ctx, log, err, slog.String("appointment_id", id.String()), slog.String("actor_id", actor.ID))
	}
	return &bookingv1.VerifyOtpResponse{Verified: true}, nil
}

func parseOtpRequest(log *slog.Logger, req *bookingv1.OtpRequest) (uuid.UUID, error) {
	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return uuid.Nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return uuid.Nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}
	return id, nil
}

func (s *BookingServer) CheckAvailability(ctx context.Context, req *bookingv1.DayRequest) (*bookingv1.AvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "CheckAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	a, err := s.svc.Availability(ctx, req.ProviderID, req.Date)
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("provider_id", req.ProviderID), slog.String("date", req.Date))
	}
	return &bookingv1.AvailabilityResponse{Availability: toProtoAvailability(a)}, nil
}

func (s *BookingServer) CheckAvailabilityBatch(ctx context.Context, req *bookingv1.AvailabilityBatchRequest) (*bookingv1.AvailabilityBatchResponse, error) {
	log := s.log.With(slog.String("rpc", "CheckAvailabilityBatch"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	res, err := s.svc.AvailabilityBatch(ctx, req.ProviderIDs, req.Date)
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.Int("providers", len(req.ProviderIDs)), slog.String("date", req.Date))
	}

	out := make(map[string]*bookingv1.Availability, len(res))
	for id, a := range res {
		out[id] = toProtoAvailability(a)
	}
	return &bookingv1.AvailabilityBatchResponse{Availability: out}, nil
}

func (s *BookingServer) ProviderQueue(ctx context.Context, req *bookingv1.DayRequest) (*bookingv1.QueueResponse, error) {
	log := s.log.With(slog.String("rpc", "ProviderQueue"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	// The queue carries walk-in contact details, so only its provider may read it.
	if actor := actorFrom(ctx); !ownsProvider(actor, req.ProviderID) {
		log.Info("queue read denied", slog.String("actor_id", actor.ID), slog.String("provider_id", req.ProviderID))
		return nil, status.Error(codes.PermissionDenied, "User not authorized")
	}

	appts, err := s.svc.Queue(ctx, req.ProviderID, req.Date)
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("provider_id", req.ProviderID), slog.String("date", req.Date))
	}

	out := make([]*bookingv1.Booking, 0, len(appts))
	for _, a := range appts {
		out = append(out, s.toProtoBooking(a, false))
	}

	log.DebugContext(ctx, "queue listed",
		slog.String("provider_id", req.ProviderID),
		slog.String("date", req.Date),
		slog.Int("count", len(out)),
	)
	return &bookingv1.QueueResponse{Bookings: out}, nil
}

func (s *BookingServer) DailyCounts(ctx context.Context, req *bookingv1.DayRequest) (*bookingv1.DailyCountsResponse, error) {
	log := s.log.With(slog.String("rpc", "DailyCounts"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	counts, err := s.svc.DailyCounts(ctx, req.ProviderID, req.Date)
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("provider_id", req.ProviderID), slog.String("date", req.Date))
	}

	out := make(map[string]int32, len(counts))
	for tier, n := range counts {
		out[tier] = int32(n)
	}
	return &bookingv1.DailyCountsResponse{Counts: out}, nil
}

func (s *BookingServer) SetCapacity(ctx context.Context, req *bookingv1.SetCapacityRequest) (*bookingv1.SetCapacityResponse, error) {
	log := s.log.With(slog.String("rpc", "SetCapacity"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	actor := actorFrom(ctx)

	p, err := s.svc.SetCapacity(ctx, actor, int(req.Capacity))
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("actor_id", actor.ID), slog.Int("capacity", int(req.Capacity)))
	}
	return &bookingv1.SetCapacityResponse{ProviderID: p.ID, Capacity: int32(p.MaxAppointmentsPerDay)}, nil
}

// fail logs err at a level matching its class and converts it to a status.
func (s *BookingServer) fail(ctx context.Context, log *slog.Logger, err error, attrs ...any) error {
	var rej *booking.RejectionError
	if errors.As(err, &rej) {
		log.InfoContext(ctx, "request rejected", append(attrs, slog.String("kind", string(rej.Kind)))...)
		return rejectionStatus(rej)
	}
	var vErr *booking.ValidationError
	if errors.As(err, &vErr) {
		log.WarnContext(ctx, "invalid request", append(attrs, slog.Any("err", err))...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.WarnContext(ctx, "request timed out", attrs...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, "request canceled")
	}
	log.ErrorContext(ctx, "request failed", append(attrs, slog.Any("err", err))...)
	return status.Error(codes.Internal, "internal error")
}

func rejectionStatus(rej *booking.RejectionError) error {
	code := codes.FailedPrecondition
	switch rej.Kind {
	case booking.KindNotFound:
		code = codes.NotFound
	case booking.KindUnauthorized:
		code = codes.PermissionDenied
	case booking.KindIdempotencyConflict:
		code = codes.AlreadyExists
	}

	st := status.New(code, rej.Message)
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason: string(rej.Kind),
		Domain: errorDomain,
	})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

func actorFrom(ctx context.Context) domain.Actor {
	a, _ := auth.ActorFrom(ctx)
	return a
}

func ownsProvider(a domain.Actor, providerID string) bool {
	if a.Role == domain.RoleSystem {
		return true
	}
	return a.Role == domain.RoleProvider && a.ID != "" && a.ID == strings.TrimSpace(providerID)
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// toProtoBooking renders an appointment for the wire. The one-time code is
// included only when withOtp is set, which the create response does for the
// booking's creator.
func (s *BookingServer) toProtoBooking(a domain.Appointment, withOtp bool) *bookingv1.Booking {
	b := &bookingv1.Booking{
		ID:                 a.ID.String(),
		ProviderID:         a.ProviderID,
		IsOffline:          a.IsOffline,
		CustomerName:       a.CustomerName,
		CustomerPhone:      a.CustomerPhone,
		Date:               domain.DayOf(a.Date, s.loc).Key(),
		Time:               a.Time,
		Tier:               a.TierLabel,
		Services:           toProtoServices(a.Services),
		Status:             string(a.Status),
		PaymentStatus:      string(a.PaymentStatus),
		TotalPrice:         a.TotalPrice,
		CancellationReason: a.CancellationReason,
		CompensationCoins:  int32(a.CompensationCoins),
		CreatedAt:          a.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:          a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if a.CustomerID != nil {
		b.CustomerID = *a.CustomerID
	}
	if a.DisplacedBy != nil {
		b.DisplacedBy = a.DisplacedBy.String()
	}
	if withOtp {
		b.Otp = a.OTP
	}
	return b
}

func toProtoServices(in []domain.Service) []bookingv1.Service {
	if len(in) == 0 {
		return nil
	}
	out := make([]bookingv1.Service, 0, len(in))
	for _, svc := range in {
		out = append(out, bookingv1.Service{ID: svc.ID, Name: svc.Name, Price: svc.Price})
	}
	return out
}

func fromProtoServices(in []bookingv1.Service) []domain.Service {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Service, 0, len(in))
	for _, svc := range in {
		out = append(out, domain.Service{ID: svc.ID, Name: svc.Name, Price: svc.Price})
	}
	return out
}

func toProtoAvailability(a domain.Availability) *bookingv1.Availability {
	return &bookingv1.Availability{Type: string(a.Type), Count: int32(a.Count)}
}
