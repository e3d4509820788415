package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

const DefaultSweepInterval = 60 * time.Second

// Sweeper periodically expires stale open transactions.
type Sweeper struct {
	engine    *Engine
	scheduler gocron.Scheduler
	interval  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewSweeper builds a sweeper on the given clock. A nil clock means the real clock.
func NewSweeper(engine *Engine, interval time.Duration, clock clockwork.Clock) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	scheduler, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{
		engine:    engine,
		scheduler: scheduler,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.run),
		gocron.WithName("expire-stale-transactions"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	return s, nil
}

// Start begins running sweeps in the background.
func (s *Sweeper) Start() {
	log.Printf("[Sweeper] expiring stale transactions every %s", s.interval)
	s.scheduler.Start()
}

// Stop cancels any running sweep and waits for the scheduler to exit.
func (s *Sweeper) Stop() error {
	s.cancel()
	return s.scheduler.Shutdown()
}

func (s *Sweeper) run() {
	ids, err := s.engine.ExpireStale(s.ctx)
	if err != nil {
		log.Printf("[Sweeper] sweep failed after expiring %d: %v", len(ids), err)
		return
	}
	if len(ids) > 0 {
		log.Printf("[Sweeper] expired %d transaction(s): %v", len(ids), ids)
	}
}
