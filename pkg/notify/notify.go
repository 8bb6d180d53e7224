// Package notify hands events to the external notification workflow.
// Delivery happens elsewhere; this package only records what should be
// delivered and never lets a failure reach the operation that raised it.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Event types raised by the scoring pipeline.
const (
	EventCreditsIssued      = "credits.issued"
	EventGreenScoreImproved = "green_score.improved"
)

// Event is one notification for a user.
type Event struct {
	UserID  string
	Type    string
	Payload map[string]any
}

// Sink accepts events for delivery.
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Notify logs ev at Info level.
func (s LogSink) Notify(_ context.Context, ev Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "userID", ev.UserID, "type", ev.Type, "payload", ev.Payload)
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

// Notify calls every sink, even after one fails.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// emitTimeout bounds how long a caller waits on a slow sink.
const emitTimeout = 2 * time.Second

// Emit sends ev to sink and only logs a failure. The request context's
// cancellation is not inherited so an event raised just before the client
// disconnects is still recorded.
func Emit(ctx context.Context, sink Sink, logger *slog.Logger, ev Event) {
	if sink == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("notification sink panicked", "type", ev.Type, "userID", ev.UserID, "panic", r)
		}
	}()
	if err := sink.Notify(ctx, ev); err != nil {
		logger.Warn("notification dropped", "type", ev.Type, "userID", ev.UserID, "error", err)
	}
}
