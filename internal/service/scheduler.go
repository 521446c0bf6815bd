package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/config"
	"github.com/promohub/promotions-api/internal/model"
)

type SessionSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

type DeviceMaintainer interface {
	SweepStale(ctx context.Context, maxAgeDays int) (int64, error)
	Stats(ctx context.Context, customerID string) (model.DeviceStats, error)
}

// Scheduler runs the periodic maintenance jobs: the refresh-token sweep,
// the stale-device sweep and the device report.
type Scheduler struct {
	sessions    SessionSweeper
	devices     DeviceMaintainer
	cfg         config.Scheduler
	cleanupDays int
	log         *zap.SugaredLogger
}

func NewScheduler(sessions SessionSweeper, devices DeviceMaintainer, cfg config.Scheduler, cleanupDays int, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{sessions: sessions, devices: devices, cfg: cfg, cleanupDays: cleanupDays, log: log}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Infow("scheduler disabled")
		return
	}
	var wg sync.WaitGroup
	s.every(ctx, &wg, "refresh_token_sweep", s.cfg.RefreshSweepEvery, s.SweepSessions)
	s.every(ctx, &wg, "stale_device_sweep", s.cfg.DeviceSweepEvery, s.SweepDevices)
	s.every(ctx, &wg, "device_report", s.cfg.DeviceReportEvery, s.ReportDevices)
	wg.Wait()
}

func (s *Scheduler) every(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, job func(context.Context) error) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.runJob(ctx, name, job)
			}
		}
	}()
}

func (s *Scheduler) runJob(ctx context.Context, name string, job func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("scheduled job panicked", "job", name, "panic", r)
		}
	}()
	timeout := s.cfg.JobTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	jctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := job(jctx); err != nil {
		s.log.Errorw("scheduled job failed", "job", name, "error", err)
	}
}

func (s *Scheduler) SweepSessions(ctx context.Context) error {
	n, err := s.sessions.Sweep(ctx)
	if err != nil {
		return err
	}
	s.log.Infow("refresh tokens purged", "count", n)
	return nil
}

func (s *Scheduler) SweepDevices(ctx context.Context) error {
	n, err := s.devices.SweepStale(ctx, s.cleanupDays)
	if err != nil {
		return err
	}
	s.log.Infow("stale devices purged", "count", n, "max_age_days", s.cleanupDays)
	return nil
}

func (s *Scheduler) ReportDevices(ctx context.Context) error {
	st, err := s.devices.Stats(ctx, "")
	if err != nil {
		return err
	}
	s.log.Infow("device token report", "total", st.Total, "valid", st.Valid, "invalid", st.Invalid,
		"ios", st.ByPlatform[model.PlatformIOS], "android", st.ByPlatform[model.PlatformAndroid])
	return nil
}
