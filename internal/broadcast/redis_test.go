package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"barberq/backend/internal/domain"
)

type published struct {
	channel string
	payload []byte
}

type fakePublisher struct {
	publishFn func(ctx context.Context, channel string, message any) (int64, error)
	sent      []published
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	if f.publishFn == nil {
		panic("Publish not configured")
	}
	n, err := f.publishFn(ctx, channel, message)
	if err == nil {
		f.sent = append(f.sent, published{channel: channel, payload: message.([]byte)})
	}
	return redis.NewIntResult(n, err)
}

func TestPublish_ProviderAndCustomerChannels(t *testing.T) {
	pub := &fakePublisher{publishFn: func(ctx context.Context, channel string, message any) (int64, error) {
		return 1, nil
	}}
	b := newRedisBroadcaster(pub, nil)

	customer := "c1"
	err := b.Publish(context.Background(), domain.AppointmentEvent{
		Type: domain.EventCancelled,
		Appointment: domain.Appointment{
			ID:         uuid.MustParse("00000000-0000-0000-0000-000000000001"),
			ProviderID: "p1",
			CustomerID: &customer,
			OTP:        "123456",
			Status:     domain.StatusCancelled,
		},
	})
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if len(pub.sent) != 2 {
		t.Fatalf("len(sent) = %d, want 2", len(pub.sent))
	}
	if pub.sent[0].channel != "barberq:provider:p1" || pub.sent[1].channel != "barberq:customer:c1" {
		t.Fatalf("channels = %q, %q", pub.sent[0].channel, pub.sent[1].channel)
	}
	if strings.Contains(string(pub.sent[0].payload), "123456") {
		t.Fatalf("payload leaks the one-time code: %s", pub.sent[0].payload)
	}

	var ev domain.AppointmentEvent
	if err := json.Unmarshal(pub.sent[1].payload, &ev); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if ev.Type != domain.EventCancelled || ev.OccurredAt.IsZero() {
		t.Fatalf("event = %+v", ev)
	}
}

func TestPublish_WalkInOnlyReachesProvider(t *testing.T) {
	pub := &fakePublisher{publishFn: func(ctx context.Context, channel string, message any) (int64, error) {
		return 0, nil
	}}
	b := newRedisBroadcaster(pub, nil)

	err := b.Publish(context.Background(), domain.AppointmentEvent{
		Type:        domain.EventReinstated,
		Appointment: domain.Appointment{ProviderID: "p1", IsOffline: true},
	})
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if len(pub.sent) != 1 || pub.sent[0].channel != ProviderChannel("p1") {
		t.Fatalf("sent = %+v", pub.sent)
	}
}

func TestPublish_ReportsFailuresButTriesEveryChannel(t *testing.T) {
	boom := errors.New("connection refused")
	calls := 0
	pub := &fakePublisher{publishFn: func(ctx context.Context, channel string, message any) (int64, error) {
		calls++
		if strings.Contains(channel, "provider") {
			return 0, boom
		}
		return 1, nil
	}}
	b := newRedisBroadcaster(pub, nil)

	customer := "c1"
	err := b.Publish(context.Background(), domain.AppointmentEvent{
		Type:        domain.EventDisplaced,
		Appointment: domain.Appointment{ProviderID: "p1", CustomerID: &customer},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}
