package modem

import (
	"context"
	"errors"
	"fmt"

	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/events"
	"github.com/compose-network/radiolink/x/executor"
	"github.com/compose-network/radiolink/x/pending"
	"github.com/compose-network/radiolink/x/protocol"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// requestHeaderSize is the code and serial ahead of the payload.
const requestHeaderSize = 8

// Issue sends a request and returns its serial. It fails synchronously only
// when the request cannot be encoded or the client is closed; every other
// outcome, including a missing transport, reaches cb exactly once. cb may be nil.
func (c *Client) Issue(
	ctx context.Context, code protocol.RequestCode, payload []byte, cb pending.Callback, opts ...DeliveryOption,
) (uint32, error) {
	if c.isClosed() {
		return 0, ErrClientClosed
	}
	if len(payload)+requestHeaderSize > c.maxFrame {
		return 0, fmt.Errorf("%w: %d bytes exceeds max frame %d", ErrPayloadTooLarge, len(payload)+requestHeaderSize, c.maxFrame)
	}

	o := deliveryOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	_, span := c.tracer.Start(ctx, "radiolink.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("radiolink.request.code", code.String())),
	)

	deliver := func(env pending.Envelope) {
		if env.Err != nil {
			span.RecordError(env.Err)
			span.SetStatus(otelcodes.Error, env.Err.Error())
		}
		span.SetAttributes(attribute.String("radiolink.request.outcome", pending.Outcome(env)))
		span.End()
		if cb != nil {
			cb(env)
		}
	}

	createOpts := []pending.CreateOption{pending.WithTimeout(o.timeout)}
	if o.exec != nil {
		createOpts = append(createOpts, pending.WithExecutor(o.exec))
	}

	entry, err := c.pending.Create(code, payload, deliver, createOpts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		span.End()
		return 0, err
	}
	serial := entry.Serial
	span.SetAttributes(attribute.Int64("radiolink.request.serial", int64(serial)))
	if c.metrics != nil {
		c.metrics.RecordIssued(code.String())
	}

	frame, err := protocol.EncodeRequest(code, serial, payload)
	if err != nil {
		// Serials from the registry are always in range; treat this as a transport failure.
		c.pending.Cancel(serial, fmt.Errorf("%w: %v", pending.ErrTransportUnavailable, err))
		return serial, nil
	}

	conn := c.currentConn()
	if conn == nil {
		c.log.Debug().Uint32("serial", serial).Str("code", code.String()).Msg("No transport attached, cancelling request")
		c.pending.Cancel(serial, pending.ErrTransportUnavailable)
		return serial, nil
	}

	if err := conn.WriteFrame(frame); err != nil {
		c.log.Warn().Err(err).Uint32("serial", serial).Str("code", code.String()).Msg("Failed to write request")
		c.pending.Cancel(serial, fmt.Errorf("%w: %v", pending.ErrTransportUnavailable, err))
		return serial, nil
	}
	c.framesOut.Add(1)
	c.pending.MarkSent(serial)

	c.log.Debug().Uint32("serial", serial).Str("code", code.String()).Int("payload_bytes", len(payload)).Msg("Request sent")
	return serial, nil
}

// IssueFields encodes fields with codec.Encode and issues the request.
func (c *Client) IssueFields(
	ctx context.Context, code protocol.RequestCode, cb pending.Callback, fields ...any,
) (uint32, error) {
	payload, err := codec.Encode(fields...)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s payload: %w", code, err)
	}
	return c.Issue(ctx, code, payload, cb)
}

// IssueAsync sends a fire-and-forget request off the calling goroutine. It is
// the decoder.Issuer used by overrides, so it must never block the reader loop.
func (c *Client) IssueAsync(code protocol.RequestCode, payload []byte) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	c.async.Post(func() {
		_, err := c.Issue(context.Background(), code, payload, func(env pending.Envelope) {
			if env.Err != nil {
				c.log.Warn().Err(env.Err).Str("code", code.String()).Msg("Side-effect request failed")
			}
		})
		if err != nil && !errors.Is(err, ErrClientClosed) {
			c.log.Warn().Err(err).Str("code", code.String()).Msg("Failed to issue side-effect request")
		}
	})
	return nil
}

// Cancel abandons a pending request. Its callback receives err.
func (c *Client) Cancel(serial uint32, err error) bool {
	return c.pending.Cancel(serial, err)
}

// Call issues a request and waits for its envelope. If ctx ends first the
// request is cancelled with ctx.Err(), unless its response already won.
func (c *Client) Call(ctx context.Context, code protocol.RequestCode, payload []byte, opts ...DeliveryOption) (any, error) {
	ch := make(chan pending.Envelope, 1)
	opts = append(opts, OnExecutor(executor.Inline{Log: c.log}))

	serial, err := c.Issue(ctx, code, payload, func(env pending.Envelope) { ch <- env }, opts...)
	if err != nil {
		return nil, err
	}

	select {
	case env := <-ch:
		return env.Value, env.Err
	case <-ctx.Done():
		c.pending.Cancel(serial, ctx.Err())
		env := <-ch
		return env.Value, env.Err
	}
}

// CallAs is Call with the decoded value asserted to T.
func CallAs[T any](ctx context.Context, c *Client, code protocol.RequestCode, payload []byte, opts ...DeliveryOption) (T, error) {
	var zero T
	v, err := c.Call(ctx, code, payload, opts...)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T, want %T", ErrUnexpectedType, code, v, zero)
	}
	return out, nil
}

// Subscribe registers cb for code. Buffered values of a replay code are
// delivered to cb before Subscribe returns.
func (c *Client) Subscribe(code protocol.EventCode, cb events.Callback, opts ...DeliveryOption) events.Token {
	o := deliveryOptions{exec: c.exec}
	for _, opt := range opts {
		opt(&o)
	}
	if o.exec == nil {
		o.exec = c.exec
	}
	return c.subs.Register(code, cb, o.exec)
}

// Watch observes code without taking buffered values away from Subscribe.
// cb gets a copy of anything buffered, then every later value. Remove it
// with Unsubscribe.
func (c *Client) Watch(code protocol.EventCode, cb events.Callback, opts ...DeliveryOption) events.Token {
	o := deliveryOptions{exec: c.exec}
	for _, opt := range opts {
		opt(&o)
	}
	if o.exec == nil {
		o.exec = c.exec
	}
	return c.subs.Watch(code, cb, o.exec)
}

// Unsubscribe removes a subscription or watch.
func (c *Client) Unsubscribe(token events.Token) bool {
	return c.subs.Unregister(token)
}
