// Package client provides a minimal client and load generator for the pool server.
//
// Get sends a single request and parses the status line, the Content-Length
// header and the body. The server closes every connection after one response,
// so Get reads until EOF.
//
// RunLoad drives many requests through a threadpool.Pool of its own and
// reports the pool's job metrics once the backlog has drained.
//
// # Basic Usage
//
//	resp, err := client.Get(ctx, "127.0.0.1:7878", "/")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(resp.StatusCode, resp.ContentLength)
//
//	cfg := client.DefaultLoadConfig()
//	cfg.Requests = 1000
//	cfg.SlowRatio = 0.1 // 10% of requests hit /sleep
//	snap, err := client.RunLoad(ctx, cfg)
//	fmt.Printf("Completed: %d, P99: %v\n", snap.Completed, snap.P99Latency)
//
// # Configuration
//
// The LoadConfig struct allows tuning:
//   - Requests: total number of requests
//   - Concurrency: number of pool workers sending in parallel
//   - SlowRatio: fraction of requests sent to /sleep (0.0 to 1.0)
//   - Timeout: per-request deadline (0 = none)
package client
