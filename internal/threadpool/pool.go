package threadpool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pool-server/internal/events"
	"pool-server/internal/logger"
	"pool-server/internal/metrics"
)

// Config はプールの設定
type Config struct {
	Size         int              // ワーカー数（1以上）
	LockOSThread bool             // 各ワーカーを専用のOSスレッドに固定する
	JoinTimeout  time.Duration    // ワーカー1つあたりの合流待ち上限（0で無期限）
	Spawn        SpawnFunc        // ワーカー起動関数（nilでgoステートメント）
	Logger       *logger.Logger   // nilでlogger.Default
	Metrics      *metrics.Metrics // nilで記録しない
	Events       *events.Bus      // nilで発行しない
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Size: 4,
	}
}

// Stats はプールの統計スナップショット
type Stats struct {
	Size      int           `json:"size"`
	Submitted uint64        `json:"submitted"`
	Pending   int           `json:"pending"`
	Running   int           `json:"running"`
	Closed    bool          `json:"closed"`
	Workers   []WorkerStats `json:"workers"`
}

// WorkerStats はワーカー単位の統計
type WorkerStats struct {
	ID       int    `json:"id"`
	State    string `json:"state"`
	Executed uint64 `json:"executed"`
	Failed   uint64 `json:"failed"`
}

// Pool は固定数のワーカーと送信ハンドルを所有する
type Pool struct {
	cfg      Config
	workers  []*Worker
	receiver *Receiver

	mu     sync.Mutex
	sender *Sender // シャットダウン中にnilになる

	submitted    atomic.Uint64
	shutdownOnce sync.Once
}

// Build は size 個のワーカーを持つプールを作成する
func Build(size int) (*Pool, error) {
	cfg := DefaultConfig()
	cfg.Size = size
	return BuildWithConfig(cfg)
}

// BuildWithConfig は設定を指定してプールを作成する
// 1つでもワーカーの起動に失敗した場合、起動済みのワーカーを停止してからエラーを返す
func BuildWithConfig(cfg Config) (*Pool, error) {
	if cfg.Size < 1 {
		return nil, &ConfigError{Field: "size", Err: fmt.Errorf("%w (got %d)", ErrInvalidSize, cfg.Size)}
	}
	if cfg.JoinTimeout < 0 {
		return nil, &ConfigError{Field: "join timeout", Err: fmt.Errorf("must be non-negative (got %v)", cfg.JoinTimeout)}
	}
	if cfg.Spawn == nil {
		cfg.Spawn = goSpawn
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default
	}

	sender, receiver := NewQueue()
	p := &Pool{
		cfg:      cfg,
		workers:  make([]*Worker, 0, cfg.Size),
		receiver: receiver,
		sender:   sender,
	}

	for i := 0; i < cfg.Size; i++ {
		w := newWorker(i, receiver, &p.cfg)
		if err := w.start(cfg.Spawn); err != nil {
			cfg.Logger.Error("pool", "failed to start %s: %v", w.Name(), err)
			p.Shutdown()
			return nil, err
		}
		p.workers = append(p.workers, w)
	}

	cfg.Logger.Info("pool", "ThreadPool started with %d workers", cfg.Size)
	return p, nil
}

// Execute はジョブをキューに投入する。実行完了は待たない
func (p *Pool) Execute(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.Lock()
	sender := p.sender
	p.mu.Unlock()

	if sender == nil {
		return ErrPoolClosed
	}
	if err := sender.Send(job); err != nil {
		return fmt.Errorf("threadpool: submit: %w", err)
	}

	p.submitted.Add(1)
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordSubmit()
	}
	return nil
}

// Shutdown はプールを停止する。複数回呼んでも安全
// 先に送信ハンドルを閉じてから各ワーカーと合流する。順序が逆だと
// Takeで待機中のワーカーが永遠に起きずハングする
// 実行中・キュー済みのジョブは全て完了してから戻る
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(func() {
		start := time.Now()

		p.mu.Lock()
		sender := p.sender
		p.sender = nil
		p.mu.Unlock()

		if sender != nil {
			sender.Close()
		}

		for _, w := range p.workers {
			p.cfg.Logger.Info("pool", "Shutting down %s", w.Name())
			if err := w.join(p.cfg.JoinTimeout); err != nil {
				p.cfg.Logger.Error("pool", "failed to join %s: %v", w.Name(), err)
				p.cfg.Events.Publish(events.NewJoinFailedEvent(w.ID(), err))
				continue
			}
			p.cfg.Logger.Debug("pool", "joined %s", w.Name())
		}

		took := time.Since(start)
		p.cfg.Logger.Info("pool", "ThreadPool stopped in %v", took)
		p.cfg.Events.Publish(events.NewPoolShutdownEvent(took))
	})
}

// Close はShutdownを呼ぶ。deferで使えるようにio.Closerを満たす
func (p *Pool) Close() error {
	p.Shutdown()
	return nil
}

// Size はワーカー数を返す
func (p *Pool) Size() int {
	return len(p.workers)
}

// Workers はワーカーの一覧を返す
func (p *Pool) Workers() []*Worker {
	workers := make([]*Worker, len(p.workers))
	copy(workers, p.workers)
	return workers
}

// Submitted は投入に成功したジョブ数を返す
func (p *Pool) Submitted() uint64 {
	return p.submitted.Load()
}

// Pending はキューに残っているジョブ数を返す
func (p *Pool) Pending() int {
	return p.receiver.Len()
}

// IsShutdown は送信ハンドルが解放済みかを返す
func (p *Pool) IsShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sender == nil
}

// Stats はプールの統計を返す
func (p *Pool) Stats() Stats {
	stats := Stats{
		Size:      len(p.workers),
		Submitted: p.submitted.Load(),
		Pending:   p.receiver.Len(),
		Closed:    p.IsShutdown(),
		Workers:   make([]WorkerStats, len(p.workers)),
	}

	for i, w := range p.workers {
		state := w.State()
		if state == StateRunning {
			stats.Running++
		}
		stats.Workers[i] = WorkerStats{
			ID:       w.ID(),
			State:    state.String(),
			Executed: w.Executed(),
			Failed:   w.Failed(),
		}
	}
	return stats
}
