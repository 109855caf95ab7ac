// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package natstest runs an in-process NATS server for tests of the NATS
// bus and of anything served over it.
package natstest

import (
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Start launches a server on a random loopback port and returns a client
// connection to it. Both are shut down when the test ends.
func Start(tb testing.TB) (*natsserver.Server, *nats.Conn) {
	tb.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		tb.Fatalf("nats server: %v", err)
	}
	srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		tb.Fatal("nats server not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		tb.Fatalf("nats connect: %v", err)
	}
	tb.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return srv, nc
}
