package cache

import (
	"context"
	"sync"
	"time"

	cacheerrors "github.com/objectfs/tiercache/pkg/errors"
	"github.com/objectfs/tiercache/pkg/types"
	"github.com/objectfs/tiercache/pkg/utils"
)

// DefaultSweepInterval is used when a sweeper is created without an interval
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically removes expired entries. The cache never starts it on
// its own; the host decides whether and how often to sweep.
type Sweeper struct {
	mu       sync.Mutex
	target   types.ExpiryCleaner
	interval time.Duration
	logger   *utils.StructuredLogger

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSweeper creates a sweeper for target
func NewSweeper(target types.ExpiryCleaner, interval time.Duration, logger *utils.StructuredLogger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Sweeper{
		target:   target,
		interval: interval,
		logger:   logger.WithComponent("sweeper"),
	}
}

// Start runs the sweep loop in the background until ctx is cancelled or Stop
// is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return cacheerrors.NewError(cacheerrors.ErrCodeInternalError, "sweeper already started").
			WithComponent("sweeper")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.started = true
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.Run(ctx)
	}()
	return nil
}

// Stop cancels the loop and waits for it to exit
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// Run sweeps every interval until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug("sweeper started", map[string]interface{}{
		"interval": s.interval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce performs a single sweep
func (s *Sweeper) RunOnce() types.CleanupResult {
	result := s.target.CleanupExpired()
	if result.TotalCleaned > 0 {
		s.logger.Debug("sweep removed expired entries", map[string]interface{}{
			"memory_cleaned": result.MemoryCleaned,
			"file_cleaned":   result.FileCleaned,
		})
	}
	return result
}
