package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/tmackenzie/veridian/internal/config"
	"github.com/tmackenzie/veridian/internal/models"
)

// RateLimitRepository defines the database operations for the sliding
// window counter.
type RateLimitRepository interface {
	CountAndRecord(ctx context.Context, identifier, action string, since time.Time, max int) (allowed bool, count int, err error)
	Count(ctx context.Context, identifier, action string, since time.Time) (int, error)
}

// ActionClass is one configured (window, max) pair.
type ActionClass struct {
	Window time.Duration
	Max    int
}

// RateLimitService bounds how often an identifier may perform an action
// class. Admission counts and records in one transaction; rejected
// attempts are never recorded, so they cannot double-count.
type RateLimitService struct {
	repo    RateLimitRepository
	classes map[string]ActionClass
	logger  *slog.Logger
	now     func() time.Time
}

func NewRateLimitService(repo RateLimitRepository, cfg config.RateLimitConfig, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		repo: repo,
		classes: map[string]ActionClass{
			models.ActionLogin:  {Window: cfg.LoginWindow, Max: cfg.LoginMax},
			models.ActionVerify: {Window: cfg.VerifyWindow, Max: cfg.VerifyMax},
			models.ActionAPI:    {Window: cfg.APIWindow, Max: cfg.APIMax},
		},
		logger: logger,
		now:    time.Now,
	}
}

// Allow admits the attempt when fewer than max entries exist for
// (identifier, action) in the trailing window, recording it in the same
// transaction. Unknown action classes and database failures deny the
// attempt: the limiter fails closed.
func (s *RateLimitService) Allow(ctx context.Context, identifier, action string) (bool, error) {
	class, ok := s.classes[action]
	if !ok {
		s.logger.Error("unknown rate limit action class", slog.String("action", action))
		return false, models.ErrInternalServer
	}

	since := s.now().Add(-class.Window)

	allowed, count, err := s.repo.CountAndRecord(ctx, identifier, action, since, class.Max)
	if err != nil {
		s.logger.Error("rate limit check failed",
			slog.String("action", action),
			slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	if !allowed {
		s.logger.Warn("rate limit exceeded",
			slog.String("identifier", identifier),
			slog.String("action", action),
			slog.Int("attempts_in_window", count))
	}

	return allowed, nil
}

// Usage returns the current count for (identifier, action) without
// recording anything.
func (s *RateLimitService) Usage(ctx context.Context, identifier, action string) (int, error) {
	class, ok := s.classes[action]
	if !ok {
		return 0, models.ErrInternalServer
	}
	return s.repo.Count(ctx, identifier, action, s.now().Add(-class.Window))
}
