// Package metrics provides job outcome collection and reporting.
//
// Metrics collects statistics about job latency, success/failure/panic counts,
// and throughput (jobs per second). It is thread-safe and cheap enough to be
// updated by every worker after every job.
//
// # Basic Usage
//
//	m := metrics.New()
//
//	m.RecordSubmit()
//	start := time.Now()
//	// ... run the job ...
//	m.RecordSuccess(time.Since(start))
//
//	fmt.Printf("Completed: %d, Failed: %d, P99: %v\n",
//	    m.Completed(), m.Failed(), m.P99Latency())
//
//	snap := m.Snapshot()
//
// # Configuration
//
// Use NewWithConfig for custom settings:
//
//	config := metrics.Config{
//	    MaxLatencySamples: 5000, // More samples for P99 accuracy
//	}
//	m := metrics.NewWithConfig(config)
//
// # Thread Safety
//
// Counters are atomic; the latency sample window is guarded by a RWMutex.
package metrics
