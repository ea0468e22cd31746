package services

import (
	"errors"
	"fmt"
)

// Lifecycle and policy errors surfaced to callers. ErrAlreadyFinalized wraps
// ErrInvalidState so either can be matched with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyFinalized = fmt.Errorf("%w: submission already finalized", ErrInvalidState)
	ErrSelfVote         = errors.New("contributors cannot vote on their own submission")
	ErrDuplicateVote    = errors.New("validator already voted on this submission")
	ErrPrecheckFailed   = errors.New("batch did not pass the sample pre-check")
	ErrEmptyBatch       = errors.New("batch contains no files")
	ErrInvalidVerdict   = errors.New("verdict must be valid or invalid")
	ErrInvalidDecision  = errors.New("decision must be accepted or rejected")
	ErrInvalidIdentity  = errors.New("identity is required")
	ErrInvalidBounty    = errors.New("invalid bounty")
	ErrNotBountyOwner   = errors.New("only the bounty creator can finalize submissions")

	// ErrOracleUnavailable is never returned to callers; it tags degraded
	// per-file verdicts in logs and metrics.
	ErrOracleUnavailable = errors.New("quality oracle unavailable")
)
