// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return m
}

func TestSlogHandler_Levels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelInfo, "info"},
		{slog.LevelWarn, "warn"},
		{slog.LevelError, "error"},
		{slog.LevelError + 4, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			l := slog.New(NewSlogHandler(zerolog.New(&buf)))
			l.Log(context.Background(), tt.level, "msg")
			if got := decodeLine(t, &buf)["level"]; got != tt.want {
				t.Errorf("level = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestSlogHandler_Enabled(t *testing.T) {
	t.Parallel()
	h := NewSlogHandler(zerolog.New(&bytes.Buffer{}).Level(zerolog.WarnLevel))
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info enabled on warn logger")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error disabled on warn logger")
	}
}

func TestSlogHandler_AttrsAndGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := slog.New(NewSlogHandler(zerolog.New(&buf)))
	l = l.With("layer", "ingest").WithGroup("svc").With("name", "transport")
	l.Info("service restarted",
		"attempt", 3,
		"backoff", 15*time.Second,
		"err", errors.New("boom"),
		slog.Group("ctx", "kind", "stations"),
	)

	m := decodeLine(t, &buf)
	want := map[string]any{
		"layer":        "ingest",
		"svc.name":     "transport",
		"svc.attempt":  float64(3),
		"svc.err":      "boom",
		"svc.ctx.kind": "stations",
		"message":      "service restarted",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %v, want %v (line %s)", k, m[k], v, buf.String())
		}
	}
	if _, ok := m["svc.backoff"]; !ok {
		t.Errorf("duration attr missing: %s", buf.String())
	}
}

func TestSlogHandler_EmptyWithIsIdentity(t *testing.T) {
	t.Parallel()
	h := NewSlogHandler(zerolog.Nop())
	if h.WithGroup("") != slog.Handler(h) {
		t.Error("WithGroup(\"\") should return the receiver")
	}
	if h.WithAttrs(nil) != slog.Handler(h) {
		t.Error("WithAttrs(nil) should return the receiver")
	}
}

func TestNewSlogLogger(t *testing.T) {
	buf := useGlobal(t, Config{Level: "info"})

	NewSlogLogger("supervisor").Warn("tree stopped")
	out := buf.String()
	if !strings.Contains(out, `"component":"supervisor"`) || !strings.Contains(out, "tree stopped") {
		t.Errorf("output = %s", out)
	}
}
