package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// IdleSessionDeleter is implemented by session stores that can purge sessions
// not refreshed since a cutoff.
type IdleSessionDeleter interface {
	DeleteIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionSweeper periodically deletes sessions idle for longer than MaxIdle.
// The engine already rejects idle refresh tokens; sweeping only reclaims rows.
type SessionSweeper struct {
	Store    IdleSessionDeleter
	MaxIdle  time.Duration
	Interval time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

// SweepOnce deletes idle sessions once.
func (s *SessionSweeper) SweepOnce(ctx context.Context) (int64, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.Store.DeleteIdle(ctx, now().Add(-s.MaxIdle))
}

// Run sweeps every Interval until ctx is cancelled.
func (s *SessionSweeper) Run(ctx context.Context) {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := s.SweepOnce(ctx)
		if err != nil {
			log.Warn("session sweep failed", zap.Error(err))
		} else if n > 0 {
			log.Info("swept idle oauth2 sessions", zap.Int64("deleted", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
