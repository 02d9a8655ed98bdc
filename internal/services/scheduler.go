package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper periodically sweeps the survey sessions.
type Reaper struct {
	log       *zap.Logger
	service   *SurveyService
	interval  time.Duration
	idleAfter time.Duration
	retention time.Duration
}

func NewReaper(log *zap.Logger, service *SurveyService, interval, idleAfter, retention time.Duration) *Reaper {
	return &Reaper{
		log:       log,
		service:   service,
		interval:  interval,
		idleAfter: idleAfter,
		retention: retention,
	}
}

// Start runs the reaper in a goroutine until ctx is done. The returned
// channel is closed once it has stopped.
func (r *Reaper) Start(ctx context.Context) <-chan struct{} {
	r.log.Info("Starting session reaper...", zap.Duration("interval", r.interval))
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.log.Info("Session reaper stopped")
				return
			case <-ticker.C:
				r.runSweep(ctx)
			}
		}
	}()
	return done
}

func (r *Reaper) runSweep(ctx context.Context) {
	r.log.Debug("Running session sweep", zap.Int("sessions", r.service.Len()))
	r.service.Sweep(ctx, r.idleAfter, r.retention)
}
