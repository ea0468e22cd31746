// Package storage is the persistence gateway for bounties, submissions and
// daily stats. Two interchangeable implementations exist: GormStore (Postgres
// for the networked service, SQLite for the local fallback) and RemoteStore,
// which talks to a networked GormStore over HTTP.
package storage

import (
	"context"
	"errors"
	"time"

	"data-bounty-system/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrNotPending    = errors.New("submission is not pending")
	ErrDuplicateVote = errors.New("validator already voted on submission")
)

// Gateway is the read/write contract the engine depends on. It carries no
// business rules beyond the guards needed to keep single-row updates safe:
// SetSubmissionStatus and AppendVote only apply to pending submissions.
type Gateway interface {
	ListBounties(ctx context.Context) ([]models.Bounty, error)
	GetBounty(ctx context.Context, id string) (*models.Bounty, error)
	CreateBounty(ctx context.Context, bounty *models.Bounty) error
	IncrementBountyCount(ctx context.Context, id string) error

	ListSubmissions(ctx context.Context) ([]models.Submission, error)
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	CreateSubmission(ctx context.Context, submission *models.Submission) error
	SetSubmissionStatus(ctx context.Context, id string, status models.SubmissionStatus) error
	AppendVote(ctx context.Context, id string, vote models.Vote) error

	GetDailyStats(ctx context.Context, identity string) (*models.DailyStats, error)
	// AddDailyValidations moves the identity's counter to day in one atomic
	// step: a stored counter for another day restarts at zero, then delta is
	// added. Missing records are created.
	AddDailyValidations(ctx context.Context, identity, day string, delta int64) (*models.DailyStats, error)

	// Atomically runs fn as one unit of work. Implementations without
	// transactions run fn directly against themselves.
	Atomically(ctx context.Context, fn func(tx Gateway) error) error

	Ping(ctx context.Context) error
}

// StatsPruner is implemented by stores that can drop idle daily-stats rows.
type StatsPruner interface {
	PruneDailyStats(ctx context.Context, idleSince time.Time) (int64, error)
}
