package service

import (
	"context"
	"log/slog"
	"time"
)

// TokenCleaner deletes dead refresh tokens.
type TokenCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// TokenJanitor periodically removes expired and revoked refresh tokens.
type TokenJanitor struct {
	tokens   TokenCleaner
	interval time.Duration
	logger   *slog.Logger
}

// NewTokenJanitor creates a janitor sweeping every interval (1h if unset).
func NewTokenJanitor(tokens TokenCleaner, interval time.Duration, logger *slog.Logger) *TokenJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &TokenJanitor{tokens: tokens, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled.
func (j *TokenJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass and returns how many tokens were deleted.
func (j *TokenJanitor) Sweep(ctx context.Context) int64 {
	n, err := j.tokens.CleanupExpired(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "refresh token cleanup error", slog.String("error", err.Error()))
		return 0
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "dead refresh tokens removed", slog.Int64("deleted", n))
	}
	return n
}
