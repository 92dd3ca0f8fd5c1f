package threadpool

import (
	"sync"

	"github.com/eapache/queue"
)

// jobQueue は送信側と受信側が共有するジョブのFIFO
// ロックはジョブ1件の出し入れの間だけ保持する
type jobQueue struct {
	mu      sync.Mutex
	ready   *sync.Cond
	items   *queue.Queue
	senders int // 開いている送信ハンドル数
}

// NewQueue は送信ハンドルと受信ハンドルを作成する
func NewQueue() (*Sender, *Receiver) {
	q := &jobQueue{
		items:   queue.New(),
		senders: 1,
	}
	q.ready = sync.NewCond(&q.mu)
	return &Sender{q: q}, &Receiver{q: q}
}

// Sender はキューの送信ハンドル
// Cloneで複製でき、それぞれ独立にCloseできる
type Sender struct {
	q      *jobQueue
	closed bool // q.mu で保護
}

// Send はジョブをキューに追加する。ワーカーを待ってブロックすることはない
func (s *Sender) Send(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	s.q.mu.Lock()
	defer s.q.mu.Unlock()

	if s.closed {
		return ErrChannelClosed
	}
	s.q.items.Add(job)
	s.q.ready.Signal()
	return nil
}

// Clone は同じキューに繋がる新しい送信ハンドルを返す
func (s *Sender) Clone() (*Sender, error) {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()

	if s.closed {
		return nil, ErrChannelClosed
	}
	s.q.senders++
	return &Sender{q: s.q}, nil
}

// Close は送信ハンドルを閉じる。複数回呼んでも安全
// 最後の送信ハンドルが閉じられると待機中の受信側を全て起こす
func (s *Sender) Close() {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.q.senders--
	if s.q.senders == 0 {
		s.q.ready.Broadcast()
	}
}

// Receiver はワーカー間で共有される受信ハンドル
type Receiver struct {
	q *jobQueue
}

// Take は次のジョブを取り出す。ジョブが来るかキューが閉じるまでブロックする
// 閉じた後も残っているジョブは全て返し、空になってからErrQueueClosedを返す
func (r *Receiver) Take() (Job, error) {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()

	for r.q.items.Length() == 0 && r.q.senders > 0 {
		r.q.ready.Wait()
	}
	if r.q.items.Length() == 0 {
		return nil, ErrQueueClosed
	}
	return r.q.items.Remove().(Job), nil
}

// Len は未処理のジョブ数を返す
func (r *Receiver) Len() int {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return r.q.items.Length()
}

// Closed は全ての送信ハンドルが閉じられたかを返す
func (r *Receiver) Closed() bool {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return r.q.senders == 0
}
