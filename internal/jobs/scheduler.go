// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mind-engage/mindengage-testgen/internal/session"
)

const DefaultSweepSchedule = "@every 1m"

// Sweeper finishes timed out instances; *session.Service implements it.
type Sweeper interface {
	SweepTimedOut(ctx context.Context) (session.SweepResult, error)
}

type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	timeout time.Duration
}

func NewScheduler(sweeper Sweeper) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		sweeper: sweeper,
		timeout: 30 * time.Second,
	}
}

// Start registers the sweep on spec and starts the cron loop. An empty spec
// falls back to DefaultSweepSchedule.
func (s *Scheduler) Start(spec string) error {
	if spec == "" {
		spec = DefaultSweepSchedule
	}
	if _, err := s.cron.AddFunc(spec, s.SweepOnce); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[jobs] timeout sweeper scheduled (%s)", spec)
	return nil
}

// Stop halts the schedule and waits for a running sweep to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) SweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.sweeper.SweepTimedOut(ctx)
	if err != nil {
		log.Printf("[jobs] sweep failed: %v", err)
		return
	}
	if res.Finished > 0 || res.Closed > 0 {
		log.Printf("[jobs] sweep: %d sessions checked, %d instances timed out, %d sessions completed",
			res.Sessions, res.Finished, res.Closed)
	}
}
