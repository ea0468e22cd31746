// services/quota.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"data-bounty-system/models"
	"data-bounty-system/storage"

	"go.uber.org/zap"
)

// DailyValidationGoal is the per-day target shown next to the counter.
const DailyValidationGoal = 50

// DailyQuotaTracker keeps per-identity validation counters that reset
// lazily on the first read or write of a new UTC calendar day. The reset and
// the increment happen inside the store, so trackers in separate processes
// sharing one store never lose counts.
type DailyQuotaTracker struct {
	store storage.Gateway
	now   func() time.Time
	log   *zap.Logger
}

func NewDailyQuotaTracker(store storage.Gateway, log *zap.Logger) *DailyQuotaTracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &DailyQuotaTracker{
		store: store,
		now:   time.Now,
		log:   log,
	}
}

func (q *DailyQuotaTracker) today() string {
	return q.now().UTC().Format(models.DateLayout)
}

// GetStats returns the identity's stats for today, persisting a reset when
// the stored day is stale. Unknown identities get a fresh zeroed record.
func (q *DailyQuotaTracker) GetStats(ctx context.Context, identity string) (*models.DailyStats, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}
	today := q.today()

	stats, err := q.store.GetDailyStats(ctx, identity)
	switch {
	case err == nil && stats.LastLoginDate == today:
		return stats, nil
	case err == nil:
		q.log.Debug("daily stats rolled over",
			zap.String("identity", identity),
			zap.String("previous_date", stats.LastLoginDate),
			zap.Int64("previous_count", stats.DailyValidationCount),
		)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to load daily stats: %w", err)
	}

	stats, err = q.store.AddDailyValidations(ctx, identity, today, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to save daily stats: %w", err)
	}
	return stats, nil
}

// Increment adds one validation for today, auto-creating the record.
func (q *DailyQuotaTracker) Increment(ctx context.Context, identity string) (*models.DailyStats, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}

	stats, err := q.store.AddDailyValidations(ctx, identity, q.today(), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to save daily stats: %w", err)
	}

	q.log.Debug("daily validation counted",
		zap.String("identity", identity),
		zap.Int64("count", stats.DailyValidationCount),
	)
	return stats, nil
}
