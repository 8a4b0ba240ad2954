// Package sync writes periodic JSONL snapshots of the pipeline to object
// storage or a git repository.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Snapshot is one exported pipeline: the JSONL payload and what it holds.
type Snapshot struct {
	Summary
	Data []byte
}

// Destination is a snapshot target (S3, git, etc.).
type Destination interface {
	// Name identifies the destination in logs.
	Name() string
	// Write stores the snapshot.
	Write(ctx context.Context, snap Snapshot) error
}

// Status describes the most recent snapshot attempt.
type Status struct {
	At      time.Time
	Summary Summary
	Bytes   int
	Failed  []string // names of destinations whose write failed
	Err     error    // export error, or the joined destination errors
}

// Scheduler exports snapshots on a fixed interval.
type Scheduler struct {
	source       Source
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	mu   sync.Mutex
	last Status

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from src to the given
// destinations every interval.
func NewScheduler(src Source, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:       src,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start runs one snapshot immediately, then one per tick until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for an in-flight snapshot to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Last returns the outcome of the most recent snapshot.
func (s *Scheduler) Last() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) run(ctx context.Context) {
	_ = s.SyncNow(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.SyncNow(ctx)
		}
	}
}

// SyncNow exports one snapshot and writes it to every destination. A failing
// destination does not stop the others; their errors are joined.
func (s *Scheduler) SyncNow(ctx context.Context) error {
	st := Status{At: time.Now().UTC()}
	defer func() {
		s.mu.Lock()
		s.last = st
		s.mu.Unlock()
	}()

	var buf bytes.Buffer
	sum, err := ExportJSONL(ctx, s.source, &buf)
	if err != nil {
		s.logger.Error("snapshot export failed", "err", err)
		st.Err = err
		return err
	}
	snap := Snapshot{Summary: sum, Data: buf.Bytes()}
	st.Summary = sum
	st.Bytes = len(snap.Data)

	var errs []error
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, snap); err != nil {
			s.logger.Error("snapshot write failed", "destination", dest.Name(), "err", err)
			st.Failed = append(st.Failed, dest.Name())
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
		}
	}
	st.Err = errors.Join(errs...)

	s.logger.Info("snapshot completed",
		"companies", sum.Companies,
		"deals", sum.Deals,
		"stages", sum.Stages,
		"changes", sum.Changes,
		"destinations", len(s.destinations),
		"failed", len(st.Failed),
		"bytes", st.Bytes)
	return st.Err
}
