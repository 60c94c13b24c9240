package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/josh-kwaku/payflow/internal/logging"
	"github.com/josh-kwaku/payflow/internal/metrics"
)

type WorkerState string

const (
	WorkerStarting   WorkerState = "starting"
	WorkerRunning    WorkerState = "running"
	WorkerRestarting WorkerState = "restarting"
	WorkerStopped    WorkerState = "stopped"
)

var errWorkerExited = errors.New("worker exited without error")

type WorkerStatus struct {
	State     WorkerState `json:"state"`
	Restarts  int         `json:"restarts"`
	LastError string      `json:"last_error,omitempty"`
	Since     time.Time   `json:"since"`
}

// Supervisor keeps a long-running worker alive, restarting it with
// exponential backoff each time it returns while ctx is still live.
type Supervisor struct {
	run        func(ctx context.Context) error
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu     sync.RWMutex
	status WorkerStatus
}

func NewSupervisor(run func(ctx context.Context) error, minBackoff, maxBackoff time.Duration, logger *slog.Logger, m *metrics.Metrics) *Supervisor {
	return &Supervisor{
		run:        run,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		logger:     logging.Component(logger, "supervisor"),
		metrics:    m,
		status:     WorkerStatus{State: WorkerStarting, Since: time.Now().UTC()},
	}
}

func (s *Supervisor) Status() WorkerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Start blocks until ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.minBackoff
	b.MaxInterval = s.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		s.setState(WorkerRunning)
		started := time.Now()
		err := s.run(ctx)

		if ctx.Err() != nil {
			s.setState(WorkerStopped)
			s.logger.Info("worker stopped")
			return
		}
		if err == nil {
			err = errWorkerExited
		}

		// A run that survived longer than the backoff cap counts as healthy.
		if time.Since(started) > s.maxBackoff {
			b.Reset()
		}
		wait := b.NextBackOff()
		restarts := s.recordRestart(err)
		s.metrics.ConsumerRestarted()
		s.logger.Error("worker failed, restarting",
			"error", err,
			"restarts", restarts,
			"retry_in", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setState(WorkerStopped)
			s.logger.Info("worker stopped")
			return
		case <-timer.C:
		}
	}
}

func (s *Supervisor) setState(state WorkerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = state
	s.status.Since = time.Now().UTC()
}

func (s *Supervisor) recordRestart(err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Restarts++
	s.status.State = WorkerRestarting
	s.status.Since = time.Now().UTC()
	s.status.LastError = err.Error()
	return s.status.Restarts
}
