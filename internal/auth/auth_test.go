package auth

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"barberq/backend/internal/domain"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier("test-secret", "barberq")
	if err != nil {
		t.Fatalf("NewVerifier error: %v", err)
	}
	return v
}

func TestVerify_RoundTrip(t *testing.T) {
	v := newTestVerifier(t)
	want := domain.Actor{ID: "c1", Role: domain.RoleCustomer, Name: "Ravi"}

	token, err := v.Issue(want, time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	got, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if got != want {
		t.Fatalf("actor = %+v, want %+v", got, want)
	}
}

func TestVerify_Rejects(t *testing.T) {
	v := newTestVerifier(t)
	other, err := NewVerifier("other-secret", "barberq")
	if err != nil {
		t.Fatalf("NewVerifier error: %v", err)
	}

	expired, _ := v.Issue(domain.Actor{ID: "c1", Role: domain.RoleCustomer}, -time.Hour)
	foreign, _ := other.Issue(domain.Actor{ID: "c1", Role: domain.RoleCustomer}, time.Hour)
	badRole, _ := v.Issue(domain.Actor{ID: "c1", Role: "admin"}, time.Hour)
	noSubject, _ := v.Issue(domain.Actor{Role: domain.RoleProvider}, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: "customer"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"expired":        expired,
		"wrong secret":   foreign,
		"unknown role":   badRole,
		"missing sub":    noSubject,
		"unsigned token": none,
		"garbage":        "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("err = %v, want %v", err, ErrInvalidToken)
			}
		})
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	if _, err := NewVerifier("  ", ""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	v := newTestVerifier(t)
	const (
		private = "/barberq.booking.v1.BookingService/AcceptBooking"
		public  = "/barberq.booking.v1.BookingService/CheckAvailability"
	)
	intercept := UnaryServerInterceptor(v, slog.Default(), public)

	var seen domain.Actor
	var seenOK bool
	handler := func(ctx context.Context, req any) (any, error) {
		seen, seenOK = ActorFrom(ctx)
		return "ok", nil
	}
	call := func(ctx context.Context, method string) error {
		seen, seenOK = domain.Actor{}, false
		_, err := intercept(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, handler)
		return err
	}
	withToken := func(token string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
	}

	token, err := v.Issue(domain.Actor{ID: "p1", Role: domain.RoleProvider}, time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if err := call(context.Background(), private); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("no token: code = %s, want %s", status.Code(err), codes.Unauthenticated)
	}
	if err := call(withToken("junk"), private); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("bad token: code = %s, want %s", status.Code(err), codes.Unauthenticated)
	}

	if err := call(withToken(token), private); err != nil {
		t.Fatalf("valid token: %v", err)
	}
	if !seenOK || seen.ID != "p1" || seen.Role != domain.RoleProvider {
		t.Fatalf("actor = %+v (ok=%v), want provider p1", seen, seenOK)
	}

	if err := call(context.Background(), public); err != nil {
		t.Fatalf("public without token: %v", err)
	}
	if seenOK {
		t.Fatalf("public call without token got actor %+v", seen)
	}
	if err := call(withToken(token), public); err != nil {
		t.Fatalf("public with token: %v", err)
	}
	if !seenOK {
		t.Fatalf("public call with token lost its actor")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer   abc  ", "abc"},
		{"Basic abc", ""},
		{"abc", ""},
	}
	for _, tt := range tests {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", tt.header))
		if got := bearerToken(ctx); got != tt.want {
			t.Fatalf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
