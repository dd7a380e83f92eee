package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"rewardLedger/internal/ledger"
	"rewardLedger/internal/model"
)

// Journal buffers encoded emissions until they are drained to storage.
type Journal struct {
	mu      sync.Mutex
	pending []model.EventRecord
	logger  *zap.Logger
	now     func() time.Time
}

func NewJournal(logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{logger: logger, now: time.Now}
}

// Publish implements ledger.EventSink.
func (j *Journal) Publish(em ledger.Emission) {
	rec, err := Encode(em, j.now())
	if err != nil {
		j.logger.Error("encode event", zap.Uint64("seq", em.Seq), zap.String("event", em.Event.EventName()), zap.Error(err))
		return
	}

	j.mu.Lock()
	j.pending = append(j.pending, rec)
	j.mu.Unlock()

	j.logger.Debug("event", zap.Uint64("seq", rec.Seq), zap.String("event", rec.EventName))
}

// Drain returns buffered records in publication order and clears the buffer.
func (j *Journal) Drain() []model.EventRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.pending
	j.pending = nil
	return out
}
