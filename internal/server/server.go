package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pool-server/internal/events"
	"pool-server/internal/logger"
	"pool-server/internal/threadpool"
)

// Executor は接続ごとのジョブを受け取る実行器（通常は *threadpool.Pool）
type Executor interface {
	Execute(job threadpool.Job) error
}

// Config はサーバーの設定
type Config struct {
	Addr           string         // 待ち受けアドレス
	MaxConnections int            // 受け付ける接続数の上限（0で無制限）
	SlowDelay      time.Duration  // /sleep の応答遅延
	ReadBufferSize int            // リクエスト読み込みバッファ
	ReadTimeout    time.Duration  // 読み込みタイムアウト（0でなし）
	ReusePort      bool           // SO_REUSEPORT を設定する
	Logger         *logger.Logger // nilでlogger.Default
	Events         *events.Bus    // nilで発行しない
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:7878",
		SlowDelay:      5 * time.Second,
		ReadBufferSize: 1024,
	}
}

// Server は接続を受け付け、1接続につき1ジョブを実行器に投入する
type Server struct {
	cfg   Config
	exec  Executor
	sleep func(time.Duration)

	mu sync.Mutex
	ln net.Listener

	accepted atomic.Uint64
	served   atomic.Uint64
}

// New は新しいサーバーを作成する
func New(cfg Config, exec Executor) *Server {
	defaults := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaults.ReadBufferSize
	}
	if cfg.SlowDelay < 0 {
		cfg.SlowDelay = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default
	}
	return &Server{
		cfg:   cfg,
		exec:  exec,
		sleep: time.Sleep,
	}
}

// Listen はアドレスにバインドする
func (s *Server) Listen(ctx context.Context) error {
	lc := net.ListenConfig{Control: listenControl(s.cfg.ReusePort)}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.cfg.Logger.Info("acceptor", "Listening on %s", ln.Addr())
	return nil
}

// Addr はバインド済みのアドレスを返す（Listen前はnil）
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve は接続受付ループを実行する
// ctxのキャンセルかMaxConnections到達でnilを返す
// 実行器への投入に失敗した場合は致命的エラーとして返す
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()
	defer ln.Close()

	for {
		if limit := s.cfg.MaxConnections; limit > 0 && s.accepted.Load() >= uint64(limit) {
			s.cfg.Logger.Info("acceptor", "Accepted %d connections; stopping accept loop", limit)
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.cfg.Logger.Info("acceptor", "Accept loop stopped")
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.cfg.Logger.Warn("acceptor", "accept timeout: %v", err)
				continue
			}
			return fmt.Errorf("server: accept: %w", err)
		}

		s.accepted.Add(1)
		id := uuid.NewString()
		remote := conn.RemoteAddr().String()
		s.cfg.Logger.Debug("acceptor", "accepted %s as %s", remote, id)
		s.cfg.Events.Publish(events.NewConnAcceptedEvent(id, remote))

		if err := s.exec.Execute(s.connectionJob(conn, id)); err != nil {
			_ = conn.Close()
			return fmt.Errorf("server: dispatch connection %s: %w", id, err)
		}
	}
}

// ListenAndServe はListenしてからServeする
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Close はリスナーを閉じる
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Accepted は受け付けた接続数を返す
func (s *Server) Accepted() uint64 {
	return s.accepted.Load()
}

// Served は応答を書き終えた接続数を返す
func (s *Server) Served() uint64 {
	return s.served.Load()
}

// connectionJob は接続を処理するジョブを作る
func (s *Server) connectionJob(conn net.Conn, id string) threadpool.Job {
	return func() error {
		return s.handleConnection(conn, id)
	}
}

// handleConnection はリクエストを1回読み、応答を書いて接続を閉じる
func (s *Server) handleConnection(conn net.Conn, id string) error {
	defer conn.Close()

	component := "conn-" + id[:8]
	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}

	buf := make([]byte, s.cfg.ReadBufferSize)
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read request from %s: %w", conn.RemoteAddr(), err)
	}
	request := buf[:n]

	status, body := route(request, s.cfg.SlowDelay, s.sleep)
	if _, err := conn.Write(formatResponse(status, body)); err != nil {
		return fmt.Errorf("write response to %s: %w", conn.RemoteAddr(), err)
	}

	s.served.Add(1)
	s.cfg.Logger.Info(component, "%q -> %s", requestLine(request), status)
	return nil
}

// requestLine はログ用にリクエストの1行目を返す
func requestLine(request []byte) string {
	if i := bytes.Index(request, []byte("\r\n")); i >= 0 {
		return string(request[:i])
	}
	return string(request)
}
