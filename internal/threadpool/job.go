package threadpool

import "runtime/debug"

// Job はワーカーが一度だけ実行する作業単位
// 失敗した場合はエラーを返す
type Job func() error

// run はジョブを実行し、panicをPanicErrorに変換する
func (j Job) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return j()
}
