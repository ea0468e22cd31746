// services/coordinator.go
package services

import (
	"context"
	"strings"

	"data-bounty-system/models"
	"data-bounty-system/oracle"

	"go.uber.org/zap"
)

// Engine ties the sampler, state machine, ledger and quota tracker into the
// flows the API exposes.
type Engine struct {
	Ledger      *BountyLedger
	Submissions *SubmissionService
	Quota       *DailyQuotaTracker
	Sampler     *BatchSampler
	Previews    *PreviewBuilder
	log         *zap.Logger
}

func NewEngine(
	ledger *BountyLedger,
	submissions *SubmissionService,
	quota *DailyQuotaTracker,
	sampler *BatchSampler,
	previews *PreviewBuilder,
	log *zap.Logger,
) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if previews == nil {
		previews = NewPreviewBuilder(nil, log)
	}
	return &Engine{
		Ledger:      ledger,
		Submissions: submissions,
		Quota:       quota,
		Sampler:     sampler,
		Previews:    previews,
		log:         log,
	}
}

// BatchResult carries the pre-check verdict and, when it passed, the
// submission created from the batch.
type BatchResult struct {
	Verdict    BatchVerdict       `json:"verdict"`
	Submission *models.Submission `json:"submission,omitempty"`
}

// SubmitBatch samples the batch and creates a pending submission when the
// sample passes. A failing sample returns the verdict with ErrPrecheckFailed
// so callers can show the oracle feedback.
func (e *Engine) SubmitBatch(ctx context.Context, bountyID, contributor string, files []oracle.File) (*BatchResult, error) {
	if strings.TrimSpace(contributor) == "" {
		return nil, ErrInvalidIdentity
	}
	if len(files) == 0 {
		return nil, ErrEmptyBatch
	}
	bounty, err := e.Ledger.GetBounty(ctx, bountyID)
	if err != nil {
		return nil, err
	}

	verdict, err := e.Sampler.Sample(ctx, files, bounty)
	if err != nil {
		return nil, err
	}
	result := &BatchResult{Verdict: verdict}
	if !verdict.Passed {
		e.log.Info("batch rejected by pre-check",
			zap.String("bounty_id", bounty.ID),
			zap.String("contributor", contributor),
			zap.Int("avg_score", verdict.AvgScore),
		)
		return result, ErrPrecheckFailed
	}

	preview, dataType := e.Previews.Build(ctx, bounty, files[0])
	sub, err := e.Submissions.CreateSubmission(ctx, bounty, contributor, verdict, preview, dataType)
	if err != nil {
		return nil, err
	}
	result.Submission = sub
	return result, nil
}

// CastVote records the vote and then counts it toward the validator's daily
// total. Every recorded vote counts, whatever its verdict. A quota failure
// is logged and does not undo the vote.
func (e *Engine) CastVote(ctx context.Context, submissionID, validator string, verdict models.Verdict) (*models.Submission, *models.DailyStats, error) {
	sub, err := e.Submissions.RecordVote(ctx, submissionID, validator, verdict)
	if err != nil {
		return nil, nil, err
	}
	stats, err := e.Quota.Increment(ctx, validator)
	if err != nil {
		e.log.Warn("failed to count daily validation",
			zap.String("validator", validator),
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
		return sub, nil, nil
	}
	return sub, stats, nil
}

// FinalizeAsOwner checks that identity created the submission's bounty
// before applying the decision.
func (e *Engine) FinalizeAsOwner(ctx context.Context, submissionID, identity string, decision models.SubmissionStatus) (*models.Submission, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, ErrInvalidIdentity
	}
	sub, err := e.Submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	bounty, err := e.Ledger.GetBounty(ctx, sub.BountyID)
	if err != nil {
		return nil, err
	}
	if bounty.Creator != identity {
		return nil, ErrNotBountyOwner
	}
	return e.Submissions.Finalize(ctx, submissionID, decision)
}
