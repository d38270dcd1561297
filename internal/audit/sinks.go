package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// LogSink writes events to the structured log.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) LogSink {
	return LogSink{log: log.With().Str("component", "audit").Logger()}
}

func (s LogSink) Write(_ context.Context, e Event) error {
	event := s.log.Info()
	if e.Outcome == OutcomeFailure {
		event = s.log.Warn()
	}
	event.
		Str("event_id", e.ID).
		Str("action", string(e.Action)).
		Str("outcome", string(e.Outcome)).
		Str("actor_id", e.ActorID).
		Str("session_id", e.SessionID).
		Str("client_ip", e.IPAddress).
		Str("endpoint", e.Endpoint).
		Str("code", e.Code).
		Time("occurred_at", e.OccurredAt).
		Msg("audit")
	return nil
}

// StreamSink appends events to a redis stream for the audit worker.
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamSink(client *redis.Client, stream string) StreamSink {
	return StreamSink{client: client, stream: stream, maxLen: 100000}
}

func (s StreamSink) Write(ctx context.Context, e Event) error {
	values, err := e.Values()
	if err != nil {
		return err
	}
	_, err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, e Event) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Write(ctx context.Context, e Event) error {
	return f(ctx, e)
}
