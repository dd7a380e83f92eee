package storage

import (
	"context"

	"rewardLedger/internal/model"
)

// Storage defines a sink for ledger event records.
type Storage interface {
	PutEventBatch(ctx context.Context, records []model.EventRecord) error
}
