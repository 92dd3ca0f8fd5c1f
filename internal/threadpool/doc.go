// Package threadpool provides a fixed-size worker pool fed by a shared job queue.
//
// A Pool owns a fixed set of Workers and the sending half of an unbounded
// FIFO queue. Every Worker shares the receiving half; taking the next job is
// mutually exclusive, but jobs run outside the lock so workers execute in
// parallel.
//
// # Basic Usage
//
//	pool, err := threadpool.Build(4)
//	if err != nil {
//	    log.Fatal(err) // size 0, or a worker could not be spawned
//	}
//	defer pool.Close()
//
//	err = pool.Execute(func() error {
//	    return handle(conn)
//	})
//
// Execute returns once the job is queued, not once it has run. A job that
// returns an error or panics is logged by the worker that ran it and never
// retried; the worker moves on to the next job.
//
// # Configuration
//
//	pool, err := threadpool.BuildWithConfig(threadpool.Config{
//	    Size:         8,
//	    LockOSThread: true,            // one worker = one OS thread
//	    JoinTimeout:  10 * time.Second, // bound each join during shutdown
//	    Metrics:      metrics.New(),
//	    Events:       events.NewBus(),
//	})
//
// # Shutdown
//
// Shutdown closes the submission handle first, then joins each worker in
// turn. Workers drain the backlog before observing the closed queue, so every
// job accepted by Execute runs. Shutdown never fails: join timeouts are
// logged and published as events. Execute after Shutdown returns
// ErrPoolClosed.
//
// # Queue
//
// NewQueue exposes the queue on its own. Senders can be cloned and closed
// independently; the queue stays open while any sender is open.
package threadpool
