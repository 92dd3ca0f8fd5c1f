package threadpool

import (
	"errors"
	"fmt"
)

// よく使うエラー
var (
	// ErrInvalidSize はワーカー数が1未満のときに返る
	ErrInvalidSize = errors.New("pool size must be at least 1")
	// ErrPoolClosed は送信ハンドルが既に解放されたプールへの投入で返る
	ErrPoolClosed = errors.New("pool is shut down")
	// ErrChannelClosed は閉じた送信ハンドルへの送信で返る
	ErrChannelClosed = errors.New("channel closed")
	// ErrQueueClosed は全送信ハンドルが閉じられキューが空になったときTakeが返す
	ErrQueueClosed = errors.New("job queue closed")
	// ErrNilJob はnilのジョブを投入したときに返る
	ErrNilJob = errors.New("job is nil")
	// ErrJoinTimeout はワーカーがタイムアウト内に終了しなかったときに返る
	ErrJoinTimeout = errors.New("join timed out")
)

// ConfigError はプール構築前の設定エラー
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("threadpool: invalid config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// SpawnError はワーカーの起動失敗（リソース枯渇など）
type SpawnError struct {
	WorkerID int
	Err      error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("threadpool: spawn worker %d: %v", e.WorkerID, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// JoinError はワーカーの合流失敗
type JoinError struct {
	WorkerID int
	Err      error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("threadpool: join worker %d: %v", e.WorkerID, e.Err)
}

func (e *JoinError) Unwrap() error {
	return e.Err
}

// PanicError はジョブ内で回収されたpanicの値とスタック
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.Value)
}
