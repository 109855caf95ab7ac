// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/pdiddy/pliegos/pkg/types"
)

// headerCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATS is a Bus over NATS request/reply on a single subject.
type NATS struct {
	conn    *nats.Conn
	subject string
	logger  *log.Logger
}

// DialNATS connects to the server named in cfg.
func DialNATS(cfg types.BusConfig, logger *log.Logger) (*NATS, error) {
	opts := []nats.Option{nats.Name("pliegos")}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.NATSURL, err)
	}
	return NewNATS(nc, cfg.Subject, logger), nil
}

// NewNATS wraps an existing connection.
func NewNATS(nc *nats.Conn, subject string, logger *log.Logger) *NATS {
	return &NATS{conn: nc, subject: subject, logger: logger}
}

// Send implements Bus. Trace context from ctx travels in the headers.
func (n *NATS) Send(ctx context.Context, msg Message) (Response, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return Response{}, fmt.Errorf("encoding %s: %w", msg.Action, err)
	}
	m := &nats.Msg{Subject: n.subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(m))

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nats.DefaultTimeout)
		defer cancel()
	}
	reply, err := n.conn.RequestMsgWithContext(ctx, m)
	if errors.Is(err, nats.ErrNoResponders) {
		return Response{}, fmt.Errorf("sending %s: %w", msg.Action, ErrNoReceiver)
	}
	if err != nil {
		return Response{}, fmt.Errorf("sending %s: %w", msg.Action, err)
	}

	var resp Response
	if err := json.Unmarshal(reply.Data, &resp); err != nil {
		return Response{}, fmt.Errorf("decoding reply to %s: %w", msg.Action, err)
	}
	return resp, nil
}

// Serve implements Bus. Malformed messages are answered with a failure.
func (n *NATS) Serve(h Handler) (func(), error) {
	sub, err := n.conn.Subscribe(n.subject, func(m *nats.Msg) {
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(m))

		var resp Response
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			resp = Fail(fmt.Errorf("malformed message: %w", err))
		} else {
			resp = h(ctx, msg)
		}

		data, err := json.Marshal(resp)
		if err != nil {
			n.logger.Error("encoding reply", "err", err)
			return
		}
		if err := m.Respond(data); err != nil {
			n.logger.Warn("sending reply", "action", msg.Action, "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", n.subject, err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			n.logger.Warn("unsubscribing", "subject", n.subject, "err", err)
		}
	}, nil
}

// Close drains the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
