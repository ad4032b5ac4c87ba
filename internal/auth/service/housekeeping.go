package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/store"
)

// Sweeper is a limiter backend that holds idle keys in process memory.
type Sweeper interface {
	Sweep() int
}

// HousekeepingService periodically purges expired sessions, MFA sessions,
// WebAuthn challenges and handshake states so the tables stay small.
type HousekeepingService struct {
	Store      store.Store
	Handshakes store.Handshakes
	Limiter    Sweeper
	Logger     *slog.Logger
	Interval   time.Duration
	Now        func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a worker. A non-positive interval defaults
// to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// CleanupReport counts what one pass removed.
type CleanupReport struct {
	Sessions    int64
	MFASessions int64
	Challenges  int64
	Handshakes  int64
	LimiterKeys int
}

// Cleanup runs one pass. Each purge is independent; a failure is logged
// and the rest still run.
func (s *HousekeepingService) Cleanup(ctx context.Context) CleanupReport {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	handshakes := s.Handshakes
	if handshakes == nil {
		handshakes = s.Store.Handshakes()
	}

	var r CleanupReport
	purge := func(what string, fn func() (int64, error), into *int64) {
		n, err := fn()
		if err != nil {
			s.Logger.Error("housekeeping purge failed", "what", what, "error", err)
			return
		}
		*into = n
	}

	purge("sessions", func() (int64, error) {
		return s.Store.Sessions().DeleteExpiredSessions(ctx, now)
	}, &r.Sessions)
	purge("mfa_sessions", func() (int64, error) {
		return s.Store.MFASessions().DeleteExpiredMFASessions(ctx, now)
	}, &r.MFASessions)
	purge("webauthn_challenges", func() (int64, error) {
		return s.Store.WebAuthn().DeleteExpiredChallenges(ctx, now)
	}, &r.Challenges)
	purge("handshake_states", func() (int64, error) {
		return handshakes.DeleteExpiredHandshakes(ctx, now.Add(-domain.HandshakeMaxAge))
	}, &r.Handshakes)

	if s.Limiter != nil {
		r.LimiterKeys = s.Limiter.Sweep()
	}

	s.Logger.Info("housekeeping cleanup completed",
		"sessions", r.Sessions,
		"mfa_sessions", r.MFASessions,
		"challenges", r.Challenges,
		"handshakes", r.Handshakes,
		"limiter_keys", r.LimiterKeys,
	)
	return r
}
