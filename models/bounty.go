package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BountyCategory is open-ended through BountyCategoryOther.
type BountyCategory string

const (
	BountyCategoryImageLabelVerification BountyCategory = "Image Label Verification"
	BountyCategoryHandwritingRecognition BountyCategory = "Handwriting Recognition"
	BountyCategoryTranslation            BountyCategory = "Translation"
	BountyCategoryTranslationValidation  BountyCategory = "Translation Validation"
	BountyCategorySentimentEvaluation    BountyCategory = "Sentiment Evaluation"
	BountyCategoryAudioValidation        BountyCategory = "Audio Validation"
	BountyCategoryAudioDonation          BountyCategory = "Audio Donation"
	BountyCategoryImageCapture           BountyCategory = "Image Capture"
	BountyCategorySmartCamera            BountyCategory = "Smart Camera"
	BountyCategoryFoodTasks              BountyCategory = "Food Tasks"
	BountyCategoryImageCaption           BountyCategory = "Image Caption"
	BountyCategorySemanticSimilarity     BountyCategory = "Semantic Similarity"
	BountyCategoryGlideType              BountyCategory = "Glide Type"
	BountyCategoryOther                  BountyCategory = "Other"
)

var bountyCategories = map[BountyCategory]struct{}{
	BountyCategoryImageLabelVerification: {},
	BountyCategoryHandwritingRecognition: {},
	BountyCategoryTranslation:            {},
	BountyCategoryTranslationValidation:  {},
	BountyCategorySentimentEvaluation:    {},
	BountyCategoryAudioValidation:        {},
	BountyCategoryAudioDonation:          {},
	BountyCategoryImageCapture:           {},
	BountyCategorySmartCamera:            {},
	BountyCategoryFoodTasks:              {},
	BountyCategoryImageCaption:           {},
	BountyCategorySemanticSimilarity:     {},
	BountyCategoryGlideType:              {},
	BountyCategoryOther:                  {},
}

// Valid reports whether c is one of the known categories.
func (c BountyCategory) Valid() bool {
	_, ok := bountyCategories[c]
	return ok
}

type BountyStatus string

const (
	BountyStatusActive    BountyStatus = "active"
	BountyStatusCompleted BountyStatus = "completed"
)

// Bounty is a funded request for a quantity of labeled data.
// CurrentCount is only ever changed by the progress ledger.
type Bounty struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	Creator       string          `gorm:"index;not null" json:"creator"`
	Title         string          `gorm:"not null" json:"title"`
	Description   string          `gorm:"type:text" json:"description"`
	Category      BountyCategory  `gorm:"index;not null" json:"category"`
	RewardPool    decimal.Decimal `gorm:"type:numeric(20,9);not null;default:0" json:"reward_pool"`
	RequiredCount int64           `gorm:"not null" json:"required_count"`
	CurrentCount  int64           `gorm:"not null;default:0" json:"current_count"`
	Status        BountyStatus    `gorm:"not null;default:'active'" json:"status"`
	CreatedAt     time.Time       `gorm:"index" json:"created_at"`
	Tags          []string        `gorm:"serializer:json" json:"tags"`
}

// ProgressPercent is current/required capped at 100.
func (b *Bounty) ProgressPercent() float64 {
	if b.RequiredCount <= 0 {
		return 0
	}
	p := float64(b.CurrentCount) / float64(b.RequiredCount) * 100
	if p > 100 {
		return 100
	}
	return p
}

// TargetReached is derived at read time; it never changes Status.
func (b *Bounty) TargetReached() bool {
	return b.RequiredCount > 0 && b.CurrentCount >= b.RequiredCount
}
