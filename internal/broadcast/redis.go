// Package broadcast pushes appointment events to real-time listeners over
// Redis pub/sub.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"barberq/backend/internal/domain"
)

const channelPrefix = "barberq:"

// ProviderChannel is the channel a provider's dashboard subscribes to.
func ProviderChannel(providerID string) string {
	return channelPrefix + "provider:" + providerID
}

// CustomerChannel is the channel a customer's app subscribes to.
func CustomerChannel(customerID string) string {
	return channelPrefix + "customer:" + customerID
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type RedisBroadcaster struct {
	client publisher
	log    *slog.Logger
}

func NewRedisBroadcaster(client redis.UniversalClient, log *slog.Logger) *RedisBroadcaster {
	return newRedisBroadcaster(client, log)
}

func newRedisBroadcaster(client publisher, log *slog.Logger) *RedisBroadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBroadcaster{client: client, log: log.With(slog.String("component", "broadcast.redis"))}
}

// Publish sends the event to the provider's channel and, for registered
// customers, to the customer's channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, ev domain.AppointmentEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	ev.Appointment = ev.Appointment.Redacted()
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	channels := []string{ProviderChannel(ev.Appointment.ProviderID)}
	if ev.Appointment.HasCustomer() {
		channels = append(channels, CustomerChannel(*ev.Appointment.CustomerID))
	}

	var errs []error
	for _, ch := range channels {
		receivers, err := b.client.Publish(ctx, ch, payload).Result()
		if err != nil {
			errs = append(errs, fmt.Errorf("publish to %s: %w", ch, err))
			continue
		}
		b.log.DebugContext(ctx, "event published",
			slog.String("channel", ch),
			slog.String("type", string(ev.Type)),
			slog.Int64("receivers", receivers),
		)
	}
	return errors.Join(errs...)
}
