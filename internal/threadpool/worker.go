package threadpool

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"pool-server/internal/events"
)

// WorkerState はワーカーの状態
type WorkerState int32

const (
	StateRunning WorkerState = iota
	StateStopped
)

func (s WorkerState) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// SpawnFunc はワーカーのループ run を別のゴルーチンで開始する
// 起動できなかった場合はエラーを返し、run は呼ばれない
type SpawnFunc func(id int, run func()) error

// goSpawn はデフォルトのSpawnFunc
func goSpawn(_ int, run func()) error {
	go run()
	return nil
}

// Worker はキューからジョブを1件ずつ取り出して実行する
type Worker struct {
	id   int
	name string
	jobs *Receiver
	cfg  *Config

	state    atomic.Int32
	executed atomic.Uint64
	failed   atomic.Uint64
	done     chan struct{}
}

// newWorker は未起動のワーカーを作成する
func newWorker(id int, jobs *Receiver, cfg *Config) *Worker {
	w := &Worker{
		id:   id,
		name: fmt.Sprintf("worker-%d", id),
		jobs: jobs,
		cfg:  cfg,
		done: make(chan struct{}),
	}
	w.state.Store(int32(StateStopped))
	return w
}

// start はワーカーのゴルーチンを起動する
// 失敗した場合は RUNNING に遷移せず SpawnError を返す
func (w *Worker) start(spawn SpawnFunc) error {
	w.state.Store(int32(StateRunning))
	if err := spawn(w.id, w.run); err != nil {
		w.state.Store(int32(StateStopped))
		close(w.done)
		return &SpawnError{WorkerID: w.id, Err: err}
	}
	return nil
}

// run はワーカーのメインループ
func (w *Worker) run() {
	defer close(w.done)
	defer w.state.Store(int32(StateStopped))

	if w.cfg.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	w.cfg.Logger.Debug(w.name, "started")
	w.cfg.Events.Publish(events.NewWorkerStartedEvent(w.id))

	for {
		job, err := w.jobs.Take()
		if err != nil {
			w.cfg.Logger.Info(w.name, "job queue closed; shutting down")
			w.cfg.Events.Publish(events.NewWorkerStoppedEvent(w.id))
			return
		}
		w.execute(job)
	}
}

// execute はジョブを1件実行し結果を記録する。失敗したジョブは再試行しない
func (w *Worker) execute(job Job) {
	w.cfg.Logger.Debug(w.name, "got a job; executing")

	start := time.Now()
	err := job.run()
	took := time.Since(start)

	w.executed.Add(1)
	if err == nil {
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.RecordSuccess(took)
		}
		w.cfg.Logger.Debug(w.name, "completed a job in %v", took)
		return
	}

	w.failed.Add(1)
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.RecordPanic(took)
		}
		w.cfg.Logger.Error(w.name, "job panicked: %v\n%s", panicErr.Value, panicErr.Stack)
		w.cfg.Events.Publish(events.NewJobPanickedEvent(w.id, err))
		return
	}

	if w.cfg.Metrics != nil {
		w.cfg.Metrics.RecordFailure(took)
	}
	w.cfg.Logger.Warn(w.name, "job failed: %v", err)
	w.cfg.Events.Publish(events.NewJobFailedEvent(w.id, err, took))
}

// join はワーカーの終了を待つ。timeout が0以下なら無期限に待つ
func (w *Worker) join(timeout time.Duration) error {
	if timeout <= 0 {
		<-w.done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return nil
	case <-timer.C:
		return &JoinError{WorkerID: w.id, Err: ErrJoinTimeout}
	}
}

// ID はワーカーIDを返す
func (w *Worker) ID() int {
	return w.id
}

// Name はログに使うワーカー名を返す
func (w *Worker) Name() string {
	return w.name
}

// State は現在の状態を返す
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Executed は実行したジョブ数を返す
func (w *Worker) Executed() uint64 {
	return w.executed.Load()
}

// Failed は失敗したジョブ数を返す
func (w *Worker) Failed() uint64 {
	return w.failed.Load()
}
