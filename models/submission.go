package models

import "time"

type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "pending"
	SubmissionStatusAccepted SubmissionStatus = "accepted"
	SubmissionStatusRejected SubmissionStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionStatusAccepted || s == SubmissionStatusRejected
}

type DataType string

const (
	DataTypeImage DataType = "image"
	DataTypeText  DataType = "text"
)

type Verdict string

const (
	VerdictValid   Verdict = "valid"
	VerdictInvalid Verdict = "invalid"
)

func (v Verdict) Valid() bool {
	return v == VerdictValid || v == VerdictInvalid
}

// Submission is one contributor batch that passed the sample pre-check.
type Submission struct {
	ID             string           `gorm:"primaryKey;size:36" json:"id"`
	BountyID       string           `gorm:"index;not null;size:36" json:"bounty_id"`
	Contributor    string           `gorm:"index;not null" json:"contributor"`
	DataPreview    string           `gorm:"type:text" json:"data_preview"`
	DataType       DataType         `gorm:"not null" json:"data_type"`
	Status         SubmissionStatus `gorm:"index;not null;default:'pending'" json:"status"`
	AIScore        *int             `json:"ai_score,omitempty"`
	AIFeedback     *string          `gorm:"type:text" json:"ai_feedback,omitempty"`
	CommunityVotes []Vote           `gorm:"foreignKey:SubmissionID;references:ID" json:"community_votes"`
	Timestamp      time.Time        `gorm:"column:submitted_at;index" json:"timestamp"`
}

// Vote is append-only; the (submission, validator) pair is unique.
type Vote struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	SubmissionID string    `gorm:"not null;size:36;uniqueIndex:idx_vote_submission_validator" json:"-"`
	Validator    string    `gorm:"not null;uniqueIndex:idx_vote_submission_validator" json:"validator"`
	Verdict      Verdict   `gorm:"not null" json:"verdict"`
	Timestamp    time.Time `gorm:"column:cast_at" json:"timestamp"`
}

// HasVoted reports whether identity already appears among the validators.
func (s *Submission) HasVoted(identity string) bool {
	for _, v := range s.CommunityVotes {
		if v.Validator == identity {
			return true
		}
	}
	return false
}
