package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Sweeper runs SweepExpired on a cron schedule. The lazy check on read keeps
// sessions correct without it; the sweeper only keeps stored state tidy.
type Sweeper struct {
	broker  *Broker
	cron    *cronlib.Cron
	logger  *slog.Logger
	timeout time.Duration
}

// NewSweeper schedules sweeps on spec, e.g. "@every 30s" or "*/5 * * * *".
func NewSweeper(broker *Broker, spec string, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		broker:  broker,
		cron:    cronlib.New(),
		logger:  logger,
		timeout: 30 * time.Second,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing on schedule in a background goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("session sweeper started")
}

// Stop stops the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("session sweeper stopped")
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.broker.SweepExpired(ctx)
	if err != nil {
		s.logger.Warn("session sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("session sweep", "expired", n)
	}
}
