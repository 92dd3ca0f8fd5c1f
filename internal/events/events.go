// Package events provides an event system for worker pool and acceptor notifications.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventWorkerStarted is emitted when a worker goroutine begins taking jobs
	EventWorkerStarted EventType = "worker_started"
	// EventWorkerStopped is emitted when a worker observes queue closure and exits
	EventWorkerStopped EventType = "worker_stopped"
	// EventJobFailed is emitted when a job returns an error
	EventJobFailed EventType = "job_failed"
	// EventJobPanicked is emitted when a job panics and the worker recovers it
	EventJobPanicked EventType = "job_panicked"
	// EventJoinFailed is emitted when a worker does not exit within the join timeout
	EventJoinFailed EventType = "join_failed"
	// EventPoolShutdown is emitted once every worker has been joined
	EventPoolShutdown EventType = "pool_shutdown"
	// EventConnAccepted is emitted when the acceptor hands a connection to the pool
	EventConnAccepted EventType = "conn_accepted"
)

// Event represents a pool or acceptor event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	WorkerID  int       `json:"worker_id"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	ConnID   string `json:"conn_id,omitempty"`
	Remote   string `json:"remote,omitempty"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NoWorker is the WorkerID of events not tied to a single worker
const NoWorker = -1

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewWorkerStartedEvent creates a worker started event
func NewWorkerStartedEvent(workerID int) Event {
	return Event{
		Type:      EventWorkerStarted,
		Timestamp: time.Now(),
		WorkerID:  workerID,
	}
}

// NewWorkerStoppedEvent creates a worker stopped event
func NewWorkerStoppedEvent(workerID int) Event {
	return Event{
		Type:      EventWorkerStopped,
		Timestamp: time.Now(),
		WorkerID:  workerID,
	}
}

// NewJobFailedEvent creates a job failure event
func NewJobFailedEvent(workerID int, err error, took time.Duration) Event {
	return Event{
		Type:      EventJobFailed,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			Duration: took.String(),
			Error:    errString(err),
		},
	}
}

// NewJobPanickedEvent creates a job panic event
func NewJobPanickedEvent(workerID int, err error) Event {
	return Event{
		Type:      EventJobPanicked,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			Error: errString(err),
		},
	}
}

// NewJoinFailedEvent creates a join failure event
func NewJoinFailedEvent(workerID int, err error) Event {
	return Event{
		Type:      EventJoinFailed,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			Error: errString(err),
		},
	}
}

// NewPoolShutdownEvent creates a pool shutdown event
func NewPoolShutdownEvent(took time.Duration) Event {
	return Event{
		Type:      EventPoolShutdown,
		Timestamp: time.Now(),
		WorkerID:  NoWorker,
		Data: EventData{
			Duration: took.String(),
		},
	}
}

// NewConnAcceptedEvent creates a connection accepted event
func NewConnAcceptedEvent(connID, remote string) Event {
	return Event{
		Type:      EventConnAccepted,
		Timestamp: time.Now(),
		WorkerID:  NoWorker,
		Data: EventData{
			ConnID: connID,
			Remote: remote,
		},
	}
}
