// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond for up to two seconds.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestNewSupervisorTree_Defaults(t *testing.T) {
	t.Parallel()

	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{FailureBackoff: -time.Second})
	if err != nil {
		t.Fatalf("NewSupervisorTree() = %v", err)
	}
	if tree.Root() == nil {
		t.Fatal("root supervisor is nil")
	}
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want defaults %+v", tree.config, DefaultTreeConfig())
	}
}

func TestSupervisorTree_StartsEveryLayer(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	ingest := newMockService("transport-stations", 0)
	messaging := newMockService("websocket-hub", 0)
	api := newMockService("http-server", 0)
	tree.AddIngestService(ingest)
	tree.AddMessagingService(messaging)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for _, svc := range []*mockService{ingest, messaging, api} {
		if !waitFor(t, func() bool { return svc.Starts() >= 1 }) {
			t.Errorf("%s was not started", svc)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down")
	}
}

func TestSupervisorTree_RestartsFailingService(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	flaky := newMockService("refstore-stations", 2)
	stable := newMockService("http-server", 0)
	tree.AddIngestService(flaky)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	if !waitFor(t, func() bool { return flaky.Starts() >= 3 }) {
		t.Errorf("flaky service started %d times, want 3", flaky.Starts())
	}
	if stable.Starts() != 1 {
		t.Errorf("stable service started %d times, want 1", stable.Starts())
	}
	cancel()
	<-errCh
}

func TestSupervisorTree_RemoveIngestService(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	svc := newMockService("transport-bicycles", 0)
	token := tree.AddIngestService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	if !waitFor(t, func() bool { return svc.Starts() == 1 }) {
		t.Fatal("service not started")
	}
	if err := tree.RemoveIngestService(token); err != nil {
		t.Fatalf("RemoveIngestService() = %v", err)
	}
	if tree.Root().Remove(token) == nil {
		t.Error("ingest token removed from the root supervisor")
	}
	cancel()
	<-errCh
}

func TestLayer_String(t *testing.T) {
	t.Parallel()

	tests := map[Layer]string{
		LayerIngest:    "ingest-layer",
		LayerMessaging: "messaging-layer",
		LayerAPI:       "api-layer",
		Layer(7):       "layer(7)",
	}
	for layer, want := range tests {
		if got := layer.String(); got != want {
			t.Errorf("Layer(%d).String() = %q, want %q", int(layer), got, want)
		}
	}
}

func TestSupervisorTree_AddByLayer(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	svc := newMockService("sweeper", 0)
	token := tree.Add(LayerMessaging, svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	if !waitFor(t, func() bool { return svc.Starts() == 1 }) {
		t.Fatal("service not started")
	}
	if err := tree.Remove(LayerIngest, token); err == nil {
		t.Error("Remove() from the wrong layer succeeded")
	}
	if err := tree.Remove(LayerMessaging, token); err != nil {
		t.Errorf("Remove() = %v", err)
	}
	cancel()
	<-errCh
}
