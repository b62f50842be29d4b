package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Trigger runs jobs on cron schedules evaluated in one timezone
type Trigger struct {
	cron *cron.Cron
	ctx  context.Context
	log  *zap.SugaredLogger
}

// cronLogger adapts zap to cron's logger
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "err", err)...)
}

// NewTrigger creates a stopped trigger. A job still running when its next tick
// arrives is skipped for that tick, and a panicking job is logged instead of
// crashing the process.
func NewTrigger(loc *time.Location, log *zap.SugaredLogger) *Trigger {
	log = log.With("component", "trigger")
	cl := cronLogger{log: log}
	return &Trigger{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx: context.Background(),
		log: log,
	}
}

// Schedule registers job under name to run on spec
func (t *Trigger) Schedule(name, spec string, job func(ctx context.Context)) error {
	_, err := t.cron.AddFunc(spec, func() {
		started := time.Now()
		t.log.Infow("job started", "job", name)
		job(t.ctx)
		t.log.Infow("job finished", "job", name, "took", time.Since(started))
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	t.log.Infow("job scheduled", "job", name, "spec", spec)
	return nil
}

// Start begins running jobs in the background; they receive ctx
func (t *Trigger) Start(ctx context.Context) {
	t.ctx = ctx
	t.cron.Start()
}

// Stop halts scheduling and returns a context that is done once running jobs finish
func (t *Trigger) Stop() context.Context {
	return t.cron.Stop()
}

// Next reports when each job fires next
func (t *Trigger) Next() []time.Time {
	entries := t.cron.Entries()
	next := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		next = append(next, e.Next)
	}
	return next
}

// SweepJob adapts a sweep pass to a trigger job. Errors are logged, never propagated.
func SweepJob(sweep *Sweep, log *zap.SugaredLogger) func(ctx context.Context) {
	return func(ctx context.Context) {
		if _, err := sweep.Run(ctx); err != nil {
			log.Errorw("scheduled sweep failed", "err", err)
		}
	}
}

// InviteExpirer removes stale partnership invitations
type InviteExpirer interface {
	ExpirePending(ctx context.Context) (int64, error)
}

// ExpiryJob adapts invitation expiry to a trigger job
func ExpiryJob(expirer InviteExpirer, log *zap.SugaredLogger) func(ctx context.Context) {
	return func(ctx context.Context) {
		removed, err := expirer.ExpirePending(ctx)
		if err != nil {
			log.Errorw("failed to expire invitations", "err", err)
			return
		}
		if removed > 0 {
			log.Infow("expired pending invitations", "count", removed)
		}
	}
}
