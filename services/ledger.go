// services/ledger.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"data-bounty-system/models"
	"data-bounty-system/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

type BountyInput struct {
	Creator       string                `json:"creator"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Category      models.BountyCategory `json:"category"`
	RewardPool    decimal.Decimal       `json:"reward_pool"`
	RequiredCount int64                 `json:"required_count"`
	Tags          []string              `json:"tags"`
}

// BountyFilter narrows ListBounties. Zero values match everything.
type BountyFilter struct {
	Category models.BountyCategory
	Search   string
	Creator  string
}

// BountyLedger owns bounty records and is the only writer of CurrentCount.
type BountyLedger struct {
	store storage.Gateway
	log   *zap.Logger
}

func NewBountyLedger(store storage.Gateway, log *zap.Logger) *BountyLedger {
	if log == nil {
		log = zap.NewNop()
	}
	return &BountyLedger{store: store, log: log}
}

func (l *BountyLedger) CreateBounty(ctx context.Context, in BountyInput) (*models.Bounty, error) {
	creator := strings.TrimSpace(in.Creator)
	if creator == "" {
		return nil, ErrInvalidIdentity
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidBounty)
	}
	if !in.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidBounty, in.Category)
	}
	if in.RequiredCount <= 0 {
		return nil, fmt.Errorf("%w: required count must be positive", ErrInvalidBounty)
	}
	if in.RewardPool.IsNegative() {
		return nil, fmt.Errorf("%w: reward pool cannot be negative", ErrInvalidBounty)
	}

	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	bounty := &models.Bounty{
		ID:            uuid.NewString(),
		Creator:       creator,
		Title:         title,
		Description:   strings.TrimSpace(in.Description),
		Category:      in.Category,
		RewardPool:    in.RewardPool,
		RequiredCount: in.RequiredCount,
		CurrentCount:  0,
		Status:        models.BountyStatusActive,
		CreatedAt:     time.Now().UTC(),
		Tags:          tags,
	}
	if err := l.store.CreateBounty(ctx, bounty); err != nil {
		return nil, fmt.Errorf("failed to create bounty: %w", err)
	}

	l.log.Info("bounty created",
		zap.String("bounty_id", bounty.ID),
		zap.String("creator", creator),
		zap.Int64("required_count", bounty.RequiredCount),
	)
	return bounty, nil
}

func (l *BountyLedger) GetBounty(ctx context.Context, id string) (*models.Bounty, error) {
	bounty, err := l.store.GetBounty(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return bounty, nil
}

// ListBounties returns bounties most recent first. Search is a case-folded
// substring match over title, description and tags.
func (l *BountyLedger) ListBounties(ctx context.Context, filter BountyFilter) ([]models.Bounty, error) {
	all, err := l.store.ListBounties(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list bounties: %w", err)
	}

	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(filter.Search))

	out := make([]models.Bounty, 0, len(all))
	for _, b := range all {
		if filter.Category != "" && b.Category != filter.Category {
			continue
		}
		if filter.Creator != "" && b.Creator != filter.Creator {
			continue
		}
		if needle != "" && !matchesSearch(fold, b, needle) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func matchesSearch(fold cases.Caser, b models.Bounty, needle string) bool {
	if strings.Contains(fold.String(b.Title), needle) ||
		strings.Contains(fold.String(b.Description), needle) {
		return true
	}
	for _, t := range b.Tags {
		if strings.Contains(fold.String(t), needle) {
			return true
		}
	}
	return false
}

// IncrementCount adds exactly one to CurrentCount. It never caps at
// RequiredCount and never changes Status. Callers guarantee it runs once per
// accepted submission.
func (l *BountyLedger) IncrementCount(ctx context.Context, id string) error {
	return l.increment(ctx, l.store, id)
}

// increment runs against gw so finalization can use its transaction.
func (l *BountyLedger) increment(ctx context.Context, gw storage.Gateway, id string) error {
	if err := gw.IncrementBountyCount(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: bounty %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to increment bounty %s: %w", id, err)
	}
	l.log.Info("bounty progress incremented", zap.String("bounty_id", id))
	return nil
}

// translate maps gateway sentinels onto the engine's error kinds.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrNotPending):
		return ErrAlreadyFinalized
	case errors.Is(err, storage.ErrDuplicateVote):
		return ErrDuplicateVote
	}
	return err
}
