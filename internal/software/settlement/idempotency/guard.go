// Package idempotency deduplicates payment commands by message id. The processed_messages
// table is authoritative; the cache only short-circuits repeats.
package idempotency

import (
	"context"
	"time"

	"ride-settlement/internal/general/logger"
	"ride-settlement/internal/ports"
)

type guard struct {
	logger *logger.Logger
	uow    ports.UnitOfWork
	repo   ports.ProcessedMessageRepository
	cache  ports.ProcessedCache // optional
	now    func() time.Time
}

// NewGuard builds the guard. cache may be nil.
func NewGuard(logger *logger.Logger, uow ports.UnitOfWork, repo ports.ProcessedMessageRepository, cache ports.ProcessedCache) ports.IdempotencyGuard {
	return &guard{
		logger: logger,
		uow:    uow,
		repo:   repo,
		cache:  cache,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// HasProcessed checks the cache first and falls back to the database. A cache error is
// logged and ignored.
func (g *guard) HasProcessed(ctx context.Context, messageID string) (bool, error) {
	if g.cache != nil {
		seen, err := g.cache.Seen(ctx, messageID)
		if err != nil {
			g.logger.Error(ctx, "idempotency_cache_read_failed", "Processed-message cache unavailable; using database", err, nil)
		} else if seen {
			return true, nil
		}
	}

	var exists bool
	err := g.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		exists, err = g.repo.Exists(ctx, messageID)
		return err
	})
	if err != nil {
		return false, err
	}

	if exists {
		// the cache was cold or missed the post-commit fill
		g.Remember(ctx, messageID)
	}
	return exists, nil
}

// MarkProcessed records messageID in the transaction carried by ctx.
func (g *guard) MarkProcessed(ctx context.Context, messageID string) error {
	return g.uow.WithinTx(ctx, func(ctx context.Context) error {
		return g.repo.Insert(ctx, messageID, g.now())
	})
}

// Remember fills the cache; failures only cost a database lookup later.
func (g *guard) Remember(ctx context.Context, messageID string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Remember(ctx, messageID); err != nil {
		g.logger.Error(ctx, "idempotency_cache_write_failed", "Failed to cache processed message id", err, nil)
	}
}
