package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pool-server/internal/events"
	"pool-server/internal/logger"
	"pool-server/internal/metrics"
	"pool-server/internal/threadpool"

	"golang.org/x/net/websocket"
)

func newTestServer(t *testing.T) (*Server, Sources) {
	t.Helper()

	log := logger.New(io.Discard, logger.LevelError)
	m := metrics.New()
	bus := events.NewBus()
	pool, err := threadpool.BuildWithConfig(threadpool.Config{
		Size:    3,
		Logger:  log,
		Metrics: m,
		Events:  bus,
	})
	if err != nil {
		t.Fatalf("build pool: %v", err)
	}
	t.Cleanup(pool.Shutdown)

	src := Sources{Pool: pool, Metrics: m, Events: bus, Logger: log}
	return NewServer("127.0.0.1:0", src), src
}

func TestHandleStatus(t *testing.T) {
	s, src := newTestServer(t)

	done := make(chan struct{})
	if err := src.Pool.Execute(func() error { close(done); return nil }); err != nil {
		t.Fatalf("execute: %v", err)
	}
	<-done

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %s", ct)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Size != 3 {
		t.Errorf("expected size 3, got %d", resp.Size)
	}
	if resp.Submitted != 1 {
		t.Errorf("expected 1 submitted, got %d", resp.Submitted)
	}
	if resp.Running != 3 {
		t.Errorf("expected 3 running workers, got %d", resp.Running)
	}
	if resp.Closed {
		t.Error("expected open pool")
	}
}

func TestHandleWorkers(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workers", nil))

	var workers []threadpool.WorkerStats
	if err := json.NewDecoder(rec.Body).Decode(&workers); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(workers) != 3 {
		t.Fatalf("expected 3 workers, got %d", len(workers))
	}
	for i, w := range workers {
		if w.ID != i {
			t.Errorf("expected worker %d, got %d", i, w.ID)
		}
		if w.State != "Running" {
			t.Errorf("expected Running, got %s", w.State)
		}
	}
}

func TestHandleMetrics(t *testing.T) {
	s, src := newTestServer(t)

	for iter := 0; iter < 4; iter++ {
		if err := src.Pool.Execute(func() error { return nil }); err != nil {
			t.Fatalf("execute: %v", err)
		}
	}
	src.Pool.Shutdown()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

	var snap metrics.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Submitted != 4 || snap.Completed != 4 {
		t.Errorf("expected 4 submitted and completed, got %d/%d", snap.Submitted, snap.Completed)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"/api/status", "/api/workers", "/api/metrics"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}")))
			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("expected 405, got %d", rec.Code)
			}
		})
	}
}

func TestNilSources(t *testing.T) {
	s := NewServer("127.0.0.1:0", Sources{Logger: logger.New(io.Discard, logger.LevelError)})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workers", nil))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty worker list, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

// dialWS はWebSocketで接続し、サーバー側に登録されるまで待つ
func dialWS(t *testing.T, s *Server, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, err := websocket.Dial(url, "", ts.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	deadline := time.After(time.Second)
	for s.clientCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("websocket client never registered")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	return ws
}

// receive は指定typeのメッセージが届くまで読む
func receive(t *testing.T, ws *websocket.Conn, msgType string) map[string]json.RawMessage {
	t.Helper()

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var raw string
		if err := websocket.Message.Receive(ws, &raw); err != nil {
			t.Fatalf("receive %s: %v", msgType, err)
		}
		var msg map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		var got string
		_ = json.Unmarshal(msg["type"], &got)
		if got == msgType {
			return msg
		}
	}
}

func TestWebSocketForwardsEvents(t *testing.T) {
	s, src := newTestServer(t)
	s.tickInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.startBroadcast(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	ws := dialWS(t, s, ts)

	src.Events.Publish(events.NewConnAcceptedEvent("abc", "127.0.0.1:5000"))

	msg := receive(t, ws, "event")
	var ev events.Event
	if err := json.Unmarshal(msg["event"], &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.Type != events.EventConnAccepted {
		t.Errorf("expected %s, got %s", events.EventConnAccepted, ev.Type)
	}
	if ev.Data.ConnID != "abc" {
		t.Errorf("expected conn id abc, got %s", ev.Data.ConnID)
	}
}

func TestWebSocketMetricsTick(t *testing.T) {
	s, _ := newTestServer(t)
	s.tickInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.startBroadcast(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	ws := dialWS(t, s, ts)

	msg := receive(t, ws, "metrics")
	var status StatusResponse
	if err := json.Unmarshal(msg["status"], &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.Size != 3 {
		t.Errorf("expected size 3, got %d", status.Size)
	}
	if _, ok := msg["metrics"]; !ok {
		t.Error("expected metrics in tick")
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil after cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
