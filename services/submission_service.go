// services/submission_service.go
package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"data-bounty-system/metrics"
	"data-bounty-system/models"
	"data-bounty-system/storage"
	"data-bounty-system/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmissionService owns the pending -> accepted|rejected lifecycle and the
// community vote list. Work on one submission is serialized in-process by a
// keyed lock; the store's pending guard and unique vote index cover other
// processes sharing the same backend.
type SubmissionService struct {
	store   storage.Gateway
	ledger  *BountyLedger
	locks   *utils.KeyedMutex
	now     func() time.Time
	metrics *metrics.EngineMetrics
	log     *zap.Logger
}

func NewSubmissionService(store storage.Gateway, ledger *BountyLedger, m *metrics.EngineMetrics, log *zap.Logger) *SubmissionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SubmissionService{
		store:   store,
		ledger:  ledger,
		locks:   utils.NewKeyedMutex(),
		now:     time.Now,
		metrics: m,
		log:     log,
	}
}

// CreateSubmission records a batch that passed the sample pre-check.
func (s *SubmissionService) CreateSubmission(
	ctx context.Context,
	bounty *models.Bounty,
	contributor string,
	verdict BatchVerdict,
	preview string,
	dataType models.DataType,
) (*models.Submission, error) {
	if !verdict.Passed {
		return nil, ErrPrecheckFailed
	}
	if bounty == nil || bounty.ID == "" {
		return nil, ErrInvalidBounty
	}
	contributor = strings.TrimSpace(contributor)
	if contributor == "" {
		return nil, ErrInvalidIdentity
	}
	if dataType != models.DataTypeImage {
		dataType = models.DataTypeText
	}

	score := verdict.AvgScore
	feedback := verdict.Feedback
	if verdict.BatchSize > 0 {
		feedback = fmt.Sprintf("Batch of %d files. %s", verdict.BatchSize, verdict.Feedback)
	}

	sub := &models.Submission{
		ID:             uuid.NewString(),
		BountyID:       bounty.ID,
		Contributor:    contributor,
		DataPreview:    preview,
		DataType:       dataType,
		Status:         models.SubmissionStatusPending,
		AIScore:        &score,
		AIFeedback:     &feedback,
		CommunityVotes: []models.Vote{},
		Timestamp:      s.now().UTC(),
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	s.log.Info("submission created",
		zap.String("submission_id", sub.ID),
		zap.String("bounty_id", bounty.ID),
		zap.String("contributor", contributor),
		zap.Int("ai_score", score),
	)
	return sub, nil
}

func (s *SubmissionService) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return sub, nil
}

// RecordVote appends one community vote. Votes never change status.
func (s *SubmissionService) RecordVote(ctx context.Context, id, validator string, verdict models.Verdict) (sub *models.Submission, err error) {
	defer func() { s.metrics.ObserveVote(string(verdict), err) }()

	if !verdict.Valid() {
		return nil, ErrInvalidVerdict
	}
	validator = strings.TrimSpace(validator)
	if validator == "" {
		return nil, ErrInvalidIdentity
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	sub, err = s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if sub.Status != models.SubmissionStatusPending {
		return nil, fmt.Errorf("%w: submission is %s", ErrInvalidState, sub.Status)
	}
	if sub.Contributor == validator {
		return nil, ErrSelfVote
	}
	if sub.HasVoted(validator) {
		return nil, ErrDuplicateVote
	}

	vote := models.Vote{
		Validator: validator,
		Verdict:   verdict,
		Timestamp: s.now().UTC(),
	}
	if err = s.store.AppendVote(ctx, id, vote); err != nil {
		return nil, translate(err)
	}

	s.log.Info("vote recorded",
		zap.String("submission_id", id),
		zap.String("validator", validator),
		zap.String("verdict", string(verdict)),
	)

	sub, err = s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return sub, nil
}

// Finalize applies the owner's terminal decision. Acceptance increments the
// bounty's progress inside the same unit of work; a second call on the same
// submission fails with ErrAlreadyFinalized and leaves progress untouched.
func (s *SubmissionService) Finalize(ctx context.Context, id string, decision models.SubmissionStatus) (final *models.Submission, err error) {
	defer func() { s.metrics.ObserveFinalize(string(decision), err) }()

	if !decision.Terminal() {
		return nil, ErrInvalidDecision
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	err = s.store.Atomically(ctx, func(tx storage.Gateway) error {
		sub, err := tx.GetSubmission(ctx, id)
		if err != nil {
			return translate(err)
		}
		if sub.Status != models.SubmissionStatusPending {
			return ErrAlreadyFinalized
		}
		if err := tx.SetSubmissionStatus(ctx, id, decision); err != nil {
			return translate(err)
		}
		if decision == models.SubmissionStatusAccepted {
			if err := s.ledger.increment(ctx, tx, sub.BountyID); err != nil {
				return err
			}
		}
		sub.Status = decision
		final = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("submission finalized",
		zap.String("submission_id", id),
		zap.String("bounty_id", final.BountyID),
		zap.String("decision", string(decision)),
	)
	return final, nil
}

// ConsensusPercent is round(100 * valid / total), or 0 without votes.
func ConsensusPercent(sub *models.Submission) int {
	if sub == nil || len(sub.CommunityVotes) == 0 {
		return 0
	}
	valid := 0
	for _, v := range sub.CommunityVotes {
		if v.Verdict == models.VerdictValid {
			valid++
		}
	}
	return int(math.Round(100 * float64(valid) / float64(len(sub.CommunityVotes))))
}

// EligibleForVoter is a pending submission the identity neither contributed
// nor already voted on.
func EligibleForVoter(sub *models.Submission, identity string) bool {
	return sub.Status == models.SubmissionStatusPending &&
		sub.Contributor != identity &&
		!sub.HasVoted(identity)
}

// CommunityQueue lists submissions identity may vote on, recomputed from
// the store on every call.
func (s *SubmissionService) CommunityQueue(ctx context.Context, identity string) ([]models.Submission, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}
	all, err := s.store.ListSubmissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	out := make([]models.Submission, 0, len(all))
	for i := range all {
		if EligibleForVoter(&all[i], identity) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// OwnerQueue lists pending submissions on bounties created by identity.
func (s *SubmissionService) OwnerQueue(ctx context.Context, identity string) ([]models.Submission, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}
	owned, err := s.ledger.ListBounties(ctx, BountyFilter{Creator: identity})
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return []models.Submission{}, nil
	}
	ids := make(map[string]struct{}, len(owned))
	for _, b := range owned {
		ids[b.ID] = struct{}{}
	}

	all, err := s.store.ListSubmissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	out := make([]models.Submission, 0)
	for _, sub := range all {
		if _, ok := ids[sub.BountyID]; ok && sub.Status == models.SubmissionStatusPending {
			out = append(out, sub)
		}
	}
	return out, nil
}
