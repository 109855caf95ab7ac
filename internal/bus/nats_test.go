// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bus

import (
	"context"
	"encoding/json"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/pdiddy/pliegos/internal/bus/natstest"
	"github.com/pdiddy/pliegos/pkg/types"
)

func newTestNATS(t *testing.T, subject string) *NATS {
	t.Helper()
	_, nc := natstest.Start(t)
	return NewNATS(nc, subject, log.New(io.Discard))
}

func withTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNATSRequestReply(t *testing.T) {
	b := newTestNATS(t, "pliegos.test")

	got := make(chan Message, 1)
	stop, err := b.Serve(func(_ context.Context, msg Message) Response {
		got <- msg
		return Response{Success: true, TabsOpened: len(msg.URLs), Message: msg.Query, RunID: "run-1"}
	})
	require.NoError(t, err)
	defer stop()

	resp, err := b.Send(withTimeout(t), Message{
		Action:  ActionSearch,
		Query:   "romance",
		URLs:    []string{"a", "b", "c"},
		Sources: []SourceInfo{{ID: types.SourceBNE, Name: "BNE Digital", URL: "a"}},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.TabsOpened)
	assert.Equal(t, "romance", resp.Message)
	assert.Equal(t, "run-1", resp.RunID)

	msg := <-got
	assert.Equal(t, ActionSearch, msg.Action)
	require.Len(t, msg.Sources, 1)
	assert.Equal(t, types.SourceBNE, msg.Sources[0].ID)
}

func TestNATSReportRoundTrip(t *testing.T) {
	b := newTestNATS(t, "pliegos.test")

	got := make(chan Message, 1)
	stop, err := b.Serve(func(_ context.Context, msg Message) Response {
		got <- msg
		return Response{Success: true}
	})
	require.NoError(t, err)
	defer stop()

	sent := Message{
		Action:     ActionCompleted,
		RunID:      "run-7",
		TabID:      4,
		SourceName: "Red Aracne",
		SourceID:   types.SourceAracne,
		Hostname:   "www.red-aracne.es",
		Records:    []types.Record{{ID: "aracne_1", Title: "Relación del año", Author: "Anónimo", Source: "Red Aracne"}},
		Timestamp:  1700000000000,
	}
	_, err = b.Send(withTimeout(t), sent)
	require.NoError(t, err)
	assert.Equal(t, sent, <-got)
}

func TestNATSNoResponders(t *testing.T) {
	b := newTestNATS(t, "pliegos.nobody")

	_, err := b.Send(withTimeout(t), Message{Action: ActionCompleted})
	assert.ErrorIs(t, err, ErrNoReceiver)
}

func TestNATSStopRemovesReceiver(t *testing.T) {
	b := newTestNATS(t, "pliegos.test")

	stop, err := b.Serve(func(context.Context, Message) Response { return Response{Success: true} })
	require.NoError(t, err)
	stop()
	require.NoError(t, b.conn.Flush())

	_, err = b.Send(withTimeout(t), Message{Action: ActionOpenTabs})
	assert.ErrorIs(t, err, ErrNoReceiver)
}

func TestNATSMalformedMessage(t *testing.T) {
	b := newTestNATS(t, "pliegos.test")

	var called atomic.Bool
	stop, err := b.Serve(func(context.Context, Message) Response {
		called.Store(true)
		return Response{Success: true}
	})
	require.NoError(t, err)
	defer stop()

	reply, err := b.conn.RequestWithContext(withTimeout(t), "pliegos.test", []byte("{not json"))
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(reply.Data, &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "malformed message")
	assert.False(t, called.Load())
}

func TestNATSPropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	b := newTestNATS(t, "pliegos.test")

	seen := make(chan trace.SpanContext, 1)
	stop, err := b.Serve(func(ctx context.Context, _ Message) Response {
		seen <- trace.SpanContextFromContext(ctx)
		return Response{Success: true}
	})
	require.NoError(t, err)
	defer stop()

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b, 0x0c},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(withTimeout(t), sc)

	_, err = b.Send(ctx, Message{Action: ActionFailed, Error: "x"})
	require.NoError(t, err)

	remote := <-seen
	assert.True(t, remote.IsRemote())
	assert.Equal(t, sc.TraceID(), remote.TraceID())
	assert.Equal(t, sc.SpanID(), remote.SpanID())
}

func TestDialNATS(t *testing.T) {
	srv, _ := natstest.Start(t)

	b, err := DialNATS(types.BusConfig{NATSURL: srv.ClientURL(), Subject: "pliegos.dial"}, log.New(io.Discard))
	require.NoError(t, err)
	defer b.Close()

	stop, err := b.Serve(func(context.Context, Message) Response { return Response{Success: true} })
	require.NoError(t, err)
	defer stop()

	resp, err := b.Send(withTimeout(t), Message{Action: ActionOpenTabs})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	_, err = DialNATS(types.BusConfig{NATSURL: "nats://127.0.0.1:1", Subject: "x"}, log.New(io.Discard))
	assert.Error(t, err)
}
