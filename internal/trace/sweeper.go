package trace

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Deleter removes traces older than a cutoff. *store.Store satisfies it.
type Deleter interface {
	DeleteOldTraces(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper deletes traces past the retention window, once at startup and then
// hourly. A non-positive retention disables it.
type Sweeper struct {
	deleter   Deleter
	retention time.Duration
	wg        sync.WaitGroup
	done      chan struct{}
}

func NewSweeper(d Deleter, retentionDays int) *Sweeper {
	s := &Sweeper{
		deleter: d,
		done:    make(chan struct{}),
	}
	if retentionDays <= 0 {
		return s
	}
	s.retention = time.Duration(retentionDays) * 24 * time.Hour
	s.wg.Add(1)
	go s.worker()
	return s
}

func (s *Sweeper) Close() {
	close(s.done)
	s.wg.Wait()
}

func (s *Sweeper) worker() {
	defer s.wg.Done()

	s.sweep()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.retention)
	deleted, err := s.deleter.DeleteOldTraces(ctx, cutoff)
	if err != nil {
		slog.Error("trace sweeper: delete failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("trace sweeper: removed expired traces", "deleted", deleted)
	}
}
