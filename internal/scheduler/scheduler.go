// Package scheduler drives the publish cycle at a fixed cadence.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/radwatch/gmcbridge/internal/bridge"
)

// cycleTimeout bounds one cycle: a serial read plus two publishes should
// never take anywhere near this long.
const cycleTimeout = 5 * time.Second

// Scheduler runs one bridge cycle per second. SkipIfStillRunning
// guarantees cycles never overlap: if a cycle overruns its tick, the next
// tick is dropped rather than run concurrently.
type Scheduler struct {
	ctx    context.Context
	bridge *bridge.Bridge
	logger *logrus.Logger
	cron   *cron.Cron
}

func NewScheduler(ctx context.Context, b *bridge.Bridge, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		ctx:    ctx,
		bridge: b,
		logger: logger,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
	}
}

// Start the scheduler
func (s *Scheduler) Start() error {
	// Run one publish cycle every second
	_, err := s.cron.AddFunc("* * * * * *", s.runCycle)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// runCycle executes one poll-validate-publish pass. Cycle errors are
// already logged and counted inside the bridge; they never stop the loop.
func (s *Scheduler) runCycle() {
	ctx, cancel := context.WithTimeout(s.ctx, cycleTimeout)
	defer cancel()

	_ = s.bridge.RunCycle(ctx)
}

// Stop the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
