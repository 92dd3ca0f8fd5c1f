package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"time"

	"pool-server/internal/logger"
	"pool-server/internal/metrics"
	"pool-server/internal/threadpool"
)

// ErrMalformedResponse は応答を解釈できないことを示す
var ErrMalformedResponse = errors.New("client: malformed response")

// Response はサーバーからの応答
type Response struct {
	StatusCode    int
	Status        string // "OK" や "NOT FOUND"
	ContentLength int
	Body          []byte
	Latency       time.Duration
}

// Get は1回リクエストを送り、接続が閉じられるまで応答を読む
func Get(ctx context.Context, addr, path string) (*Response, error) {
	start := time.Now()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	req := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\n\r\n", path, addr)
	if _, err := io.WriteString(conn, req); err != nil {
		return nil, fmt.Errorf("client: write request: %w", err)
	}

	raw, err := io.ReadAll(conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("client: read response: %w", err)
	}

	resp, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	resp.Latency = time.Since(start)
	return resp, nil
}

// parseResponse はステータス行・ヘッダ・本文を分解する
func parseResponse(raw []byte) (*Response, error) {
	head, body, ok := bytes.Cut(raw, []byte("\r\n\r\n"))
	if !ok {
		return nil, fmt.Errorf("%w: missing header terminator", ErrMalformedResponse)
	}

	sc := bufio.NewScanner(bytes.NewReader(head))
	if !sc.Scan() {
		return nil, fmt.Errorf("%w: empty status line", ErrMalformedResponse)
	}
	// "HTTP/1.1 200 OK"
	parts := strings.SplitN(sc.Text(), " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return nil, fmt.Errorf("%w: bad status line %q", ErrMalformedResponse, sc.Text())
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad status code %q", ErrMalformedResponse, parts[1])
	}

	resp := &Response{StatusCode: code, ContentLength: -1}
	if len(parts) == 3 {
		resp.Status = parts[2]
	}

	for sc.Scan() {
		name, value, ok := strings.Cut(sc.Text(), ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad Content-Length %q", ErrMalformedResponse, value)
		}
		resp.ContentLength = n
	}

	if resp.ContentLength >= 0 {
		if len(body) < resp.ContentLength {
			return nil, fmt.Errorf("%w: body truncated (%d of %d bytes)", ErrMalformedResponse, len(body), resp.ContentLength)
		}
		body = body[:resp.ContentLength]
	}
	resp.Body = body
	return resp, nil
}

// LoadConfig は負荷生成の設定
type LoadConfig struct {
	Addr        string        // 接続先
	Requests    int           // 総リクエスト数
	Concurrency int           // 並列数（プールのワーカー数）
	SlowRatio   float64       // /sleep の比率（0.0〜1.0）
	Timeout     time.Duration // 1リクエストあたりのタイムアウト（0でなし）
	Logger      *logger.Logger
}

// DefaultLoadConfig はデフォルト設定を返す
func DefaultLoadConfig() LoadConfig {
	return LoadConfig{
		Addr:        "127.0.0.1:7878",
		Requests:    100,
		Concurrency: 4,
		SlowRatio:   0,
		Timeout:     10 * time.Second,
	}
}

// Validate は設定を検証する
func (c LoadConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("client: addr is required")
	}
	if c.Requests < 1 {
		return fmt.Errorf("client: requests must be at least 1, got %d", c.Requests)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("client: concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.SlowRatio < 0 || c.SlowRatio > 1 {
		return fmt.Errorf("client: slow ratio must be between 0 and 1, got %f", c.SlowRatio)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("client: timeout must not be negative, got %v", c.Timeout)
	}
	return nil
}

// RunLoad はスレッドプール上でリクエストを並列に送り、完了後のメトリクスを返す
// ctxがキャンセルされると未投入分は送らず、投入済みのジョブは失敗として数えられる
func RunLoad(ctx context.Context, cfg LoadConfig) (metrics.Snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return metrics.Snapshot{}, err
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default
	}

	m := metrics.New()
	pool, err := threadpool.BuildWithConfig(threadpool.Config{
		Size:    cfg.Concurrency,
		Logger:  log,
		Metrics: m,
	})
	if err != nil {
		return metrics.Snapshot{}, fmt.Errorf("client: build pool: %w", err)
	}

	log.Info("bench", "Sending %d requests to %s (concurrency: %d, slow: %.1f%%)",
		cfg.Requests, cfg.Addr, cfg.Concurrency, cfg.SlowRatio*100)

	var submitErr error
	for iter := 0; iter < cfg.Requests; iter++ {
		if ctx.Err() != nil {
			submitErr = ctx.Err()
			break
		}
		path := "/"
		if cfg.SlowRatio > 0 && rand.Float64() < cfg.SlowRatio {
			path = "/sleep"
		}
		if err := pool.Execute(requestJob(ctx, cfg, path)); err != nil {
			submitErr = err
			break
		}
	}

	// 投入済みのジョブを流し切る
	pool.Shutdown()

	snap := m.Snapshot()
	log.Info("bench", "Completed %d/%d requests (failed: %d, avg: %v, p99: %v)",
		snap.Completed, snap.Submitted, snap.Failed, snap.AverageLatency, snap.P99Latency)

	if submitErr != nil {
		return snap, fmt.Errorf("client: load interrupted: %w", submitErr)
	}
	return snap, nil
}

// requestJob は1リクエスト分のジョブを作る
func requestJob(ctx context.Context, cfg LoadConfig, path string) threadpool.Job {
	return func() error {
		reqCtx := ctx
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}

		resp, err := Get(reqCtx, cfg.Addr, path)
		if err != nil {
			return err
		}
		if resp.StatusCode != 200 {
			return fmt.Errorf("client: GET %s: unexpected status %d %s", path, resp.StatusCode, resp.Status)
		}
		return nil
	}
}
