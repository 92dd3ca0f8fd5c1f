package client

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"pool-server/internal/logger"
	"pool-server/internal/server"
	"pool-server/internal/threadpool"
)

func quietLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelError)
}

// startServer はテスト用サーバーを起動してアドレスを返す
func startServer(t *testing.T, workers int, slowDelay time.Duration) string {
	t.Helper()

	pool, err := threadpool.BuildWithConfig(threadpool.Config{Size: workers, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("build pool: %v", err)
	}
	srv := server.New(server.Config{
		Addr:      "127.0.0.1:0",
		SlowDelay: slowDelay,
		Logger:    quietLogger(),
	}, pool)

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Listen(ctx); err != nil {
		cancel()
		pool.Shutdown()
		t.Fatalf("listen: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		pool.Shutdown()
	})
	return srv.Addr().String()
}

func TestGet(t *testing.T) {
	addr := startServer(t, 2, 10*time.Millisecond)

	tests := []struct {
		path   string
		code   int
		status string
		body   string
	}{
		{"/", 200, "OK", "Hello!"},
		{"/sleep", 200, "OK", "Hello!"},
		{"/missing", 404, "NOT FOUND", "Oops!"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := Get(context.Background(), addr, tt.path)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if resp.StatusCode != tt.code {
				t.Errorf("expected %d, got %d", tt.code, resp.StatusCode)
			}
			if resp.Status != tt.status {
				t.Errorf("expected status %q, got %q", tt.status, resp.Status)
			}
			if resp.ContentLength != len(resp.Body) {
				t.Errorf("Content-Length %d does not match body length %d", resp.ContentLength, len(resp.Body))
			}
			if !strings.Contains(string(resp.Body), tt.body) {
				t.Errorf("expected body to contain %q", tt.body)
			}
			if resp.Latency <= 0 {
				t.Error("expected positive latency")
			}
		})
	}
}

func TestGetContextTimeout(t *testing.T) {
	addr := startServer(t, 1, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Get(ctx, addr, "/sleep")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Get ignored the context deadline: %v", time.Since(start))
	}
}

func TestGetDialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Get(context.Background(), addr, "/"); err == nil {
		t.Error("expected dial error")
	}
}

func TestParseResponse(t *testing.T) {
	resp, err := parseResponse([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.StatusCode != 200 || resp.Status != "OK" {
		t.Errorf("unexpected status %d %q", resp.StatusCode, resp.Status)
	}
	if string(resp.Body) != "hello" {
		t.Errorf("unexpected body %q", resp.Body)
	}
}

func TestParseResponseMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"no terminator", "HTTP/1.1 200 OK\r\nContent-Length: 5"},
		{"bad status line", "garbage\r\n\r\n"},
		{"bad code", "HTTP/1.1 abc OK\r\n\r\n"},
		{"bad length", "HTTP/1.1 200 OK\r\nContent-Length: x\r\n\r\n"},
		{"truncated", "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nshort"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseResponse([]byte(tt.raw))
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestLoadConfigValidate(t *testing.T) {
	if err := DefaultLoadConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*LoadConfig)
	}{
		{"empty addr", func(c *LoadConfig) { c.Addr = "" }},
		{"zero requests", func(c *LoadConfig) { c.Requests = 0 }},
		{"zero concurrency", func(c *LoadConfig) { c.Concurrency = 0 }},
		{"negative slow ratio", func(c *LoadConfig) { c.SlowRatio = -0.1 }},
		{"slow ratio over 1", func(c *LoadConfig) { c.SlowRatio = 1.5 }},
		{"negative timeout", func(c *LoadConfig) { c.Timeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLoadConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRunLoad(t *testing.T) {
	addr := startServer(t, 4, 20*time.Millisecond)

	cfg := DefaultLoadConfig()
	cfg.Addr = addr
	cfg.Requests = 40
	cfg.Concurrency = 4
	cfg.SlowRatio = 0.25
	cfg.Logger = quietLogger()

	snap, err := RunLoad(context.Background(), cfg)
	if err != nil {
		t.Fatalf("RunLoad: %v", err)
	}
	if snap.Submitted != 40 {
		t.Errorf("expected 40 submitted, got %d", snap.Submitted)
	}
	if snap.Completed != 40 {
		t.Errorf("expected all 40 to complete before RunLoad returns, got %d", snap.Completed)
	}
	if snap.Failed != 0 {
		t.Errorf("expected no failures, got %d", snap.Failed)
	}
	if snap.P99Latency <= 0 {
		t.Error("expected a positive P99 latency")
	}
}

func TestRunLoadCountsFailures(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := DefaultLoadConfig()
	cfg.Addr = addr
	cfg.Requests = 5
	cfg.Concurrency = 2
	cfg.Logger = quietLogger()

	snap, err := RunLoad(context.Background(), cfg)
	if err != nil {
		t.Fatalf("job failures should not fail RunLoad: %v", err)
	}
	if snap.Failed != 5 {
		t.Errorf("expected 5 failed requests, got %d", snap.Failed)
	}
	if snap.ErrorRate != 1 {
		t.Errorf("expected error rate 1, got %f", snap.ErrorRate)
	}
}

func TestRunLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultLoadConfig()
	cfg.Logger = quietLogger()

	snap, err := RunLoad(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if snap.Submitted != 0 {
		t.Errorf("expected nothing submitted, got %d", snap.Submitted)
	}
}

func TestRunLoadInvalidConfig(t *testing.T) {
	if _, err := RunLoad(context.Background(), LoadConfig{}); err == nil {
		t.Error("expected validation error")
	}
}
