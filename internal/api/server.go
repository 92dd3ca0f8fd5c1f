package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"pool-server/internal/events"
	"pool-server/internal/logger"
	"pool-server/internal/metrics"
	"pool-server/internal/threadpool"

	"golang.org/x/net/websocket"
)

// Sources は管理APIが参照する対象
type Sources struct {
	Pool    *threadpool.Pool
	Metrics *metrics.Metrics // nilでゼロ値を返す
	Events  *events.Bus      // nilでイベント配信なし
	Logger  *logger.Logger   // nilでlogger.Default
}

// Server は管理APIサーバー
type Server struct {
	addr         string
	src          Sources
	log          *logger.Logger
	tickInterval time.Duration

	mu        sync.RWMutex
	wsClients map[*websocket.Conn]bool

	server *http.Server
}

// NewServer は新しい管理APIサーバーを作成する
func NewServer(addr string, src Sources) *Server {
	log := src.Logger
	if log == nil {
		log = logger.Default
	}
	return &Server{
		addr:         addr,
		src:          src,
		log:          log,
		tickInterval: time.Second,
		wsClients:    make(map[*websocket.Conn]bool),
	}
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/workers", s.handleWorkers)
	mux.HandleFunc("/api/metrics", s.handleMetrics)

	// WebSocket
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return mux
}

// Start はサーバーを開始し、ctxがキャンセルされるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// バックグラウンドでイベントとメトリクスを配信
	s.startBroadcast(ctx)

	s.log.Info("api", "Admin API starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Size      int    `json:"size"`
	Submitted uint64 `json:"submitted"`
	Pending   int    `json:"pending"`
	Running   int    `json:"running_workers"`
	Closed    bool   `json:"closed"`
}

func (s *Server) status() StatusResponse {
	if s.src.Pool == nil {
		return StatusResponse{}
	}
	stats := s.src.Pool.Stats()
	return StatusResponse{
		Size:      stats.Size,
		Submitted: stats.Submitted,
		Pending:   stats.Pending,
		Running:   stats.Running,
		Closed:    stats.Closed,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.status())
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	workers := []threadpool.WorkerStats{}
	if s.src.Pool != nil {
		workers = s.src.Pool.Stats().Workers
	}
	s.writeJSON(w, workers)
}

func (s *Server) snapshot() metrics.Snapshot {
	if s.src.Metrics == nil {
		return metrics.Snapshot{}
	}
	return s.src.Metrics.Snapshot()
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.snapshot())
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// Keep connection alive
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		s.log.Error("api", "Failed to encode broadcast: %v", err)
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

// startBroadcast はイベント転送とメトリクス定期配信を開始する
func (s *Server) startBroadcast(ctx context.Context) {
	if s.src.Events != nil {
		go s.forwardEvents(ctx, s.src.Events.Subscribe())
	}
	go s.broadcastLoop(ctx)
}

func (s *Server) forwardEvents(ctx context.Context, ch <-chan events.Event) {
	defer s.src.Events.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(map[string]any{
				"type":  "event",
				"event": ev,
			})
		}
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcast(map[string]any{
				"type":    "metrics",
				"status":  s.status(),
				"metrics": s.snapshot(),
			})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("api", "Failed to encode JSON: %v", err)
	}
}
