package postgres

import (
	"context"
	"fmt"
	"time"

	"ride-settlement/internal/ports"
)

// ProcessedMessageRepo is the durable idempotency ledger.
type ProcessedMessageRepo struct{}

// NewProcessedMessageRepo constructs a new ProcessedMessageRepo.
func NewProcessedMessageRepo() ports.ProcessedMessageRepository {
	return &ProcessedMessageRepo{}
}

// Exists reports whether messageID has been recorded.
func (repo *ProcessedMessageRepo) Exists(ctx context.Context, messageID string) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM processed_messages WHERE message_id = $1)`, messageID).
		Scan(&exists); err != nil {
		return false, fmt.Errorf("check processed message %s: %w", messageID, err)
	}
	return exists, nil
}

// Insert records messageID; a second insert of the same id is a no-op.
func (repo *ProcessedMessageRepo) Insert(ctx context.Context, messageID string, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO processed_messages (message_id, processed_at)
		VALUES ($1, $2)
		ON CONFLICT (message_id) DO NOTHING`, messageID, at); err != nil {
		return fmt.Errorf("record processed message %s: %w", messageID, err)
	}
	return nil
}
