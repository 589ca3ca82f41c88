// Package notify delivers user-facing booking notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"barberq/backend/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each notification as one JSON message keyed by recipient,
// so a consumer sees a recipient's notifications in order.
type KafkaSink struct {
	w     messageWriter
	topic string
	log   *slog.Logger
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

func NewKafkaSink(cfg KafkaConfig, log *slog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("notify: no kafka brokers configured")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("notify: kafka topic is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(w, cfg.Topic, log), nil
}

func newKafkaSink(w messageWriter, topic string, log *slog.Logger) *KafkaSink {
	if log == nil {
		log = slog.Default()
	}
	return &KafkaSink{w: w, topic: topic, log: log.With(slog.String("component", "notify.kafka"))}
}

func (s *KafkaSink) Notify(ctx context.Context, n domain.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(n.RecipientID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("notification.created")},
			{Key: "appointment_id", Value: []byte(n.AppointmentID.String())},
		},
	}
	msg.Headers = injectTrace(ctx, msg.Headers)
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write notification to %s: %w", s.topic, err)
	}
	s.log.DebugContext(ctx, "notification published",
		slog.String("recipient_id", n.RecipientID),
		slog.String("appointment_id", n.AppointmentID.String()),
	)
	return nil
}

func (s *KafkaSink) Close() error {
	return s.w.Close()
}

// LogSink writes notifications to the log. It is used when no broker is configured.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log.With(slog.String("component", "notify.log"))}
}

func (s *LogSink) Notify(ctx context.Context, n domain.Notification) error {
	s.log.InfoContext(ctx, "notification",
		slog.String("recipient_id", n.RecipientID),
		slog.String("title", n.Title),
		slog.String("message", n.Message),
		slog.String("appointment_id", n.AppointmentID.String()),
	)
	return nil
}

func injectTrace(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

type headerCarrier struct {
	headers []kafka.Header
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// SplitBrokers parses a comma separated broker list.
func SplitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
