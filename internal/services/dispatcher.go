package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSendTimeout bounds a single gateway call when none is configured.
const DefaultSendTimeout = 10 * time.Second

// Dispatcher is the single outbound send path. It applies a per-call timeout,
// records the outcome, and returns gateway failures to the caller without
// retrying or queueing.
type Dispatcher struct {
	gw      Gateway
	timeout time.Duration
	log     zerolog.Logger
}

// NewDispatcher wires a Dispatcher to gw. timeout <= 0 uses DefaultSendTimeout.
func NewDispatcher(gw Gateway, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Dispatcher{
		gw:      gw,
		timeout: timeout,
		log:     log.With().Str("component", "dispatcher").Logger(),
	}
}

// Send forwards text to the gateway. A timed-out call is reported as an
// ErrCollaborator failure.
func (d *Dispatcher) Send(ctx context.Context, to, text string) error {
	ctx, span := otel.Tracer("services/Dispatcher").Start(ctx, "Send",
		trace.WithAttributes(attribute.Int("text.len", len(text))),
	)
	defer span.End()

	if d.gw == nil {
		notificationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: no gateway configured", ErrCollaborator)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.gw.Send(ctx, to, text); err != nil {
		notificationsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway send failed")
		d.log.Warn().Err(err).Msg("notification failed")
		if ctx.Err() != nil {
			return fmt.Errorf("%w: gateway timeout: %v", ErrCollaborator, err)
		}
		return err
	}
	notificationsTotal.WithLabelValues("ok").Inc()
	return nil
}

// notify is the best-effort variant used by the machines: failures are
// already logged by the dispatcher and do not change the turn's outcome.
func notify(ctx context.Context, n Notifier, to, text string) {
	if n == nil {
		return
	}
	_ = n.Send(ctx, to, text)
}
