package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"data-bounty-system/models"
	"data-bounty-system/oracle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine *Engine
	oracle *fakeOracle
	rng    *scriptedRand
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	store := newTestStore(t)
	ev := &fakeOracle{verdicts: map[string]oracle.Verdict{}}
	rng := &scriptedRand{seq: []int{0, 1, 2}}

	ledger := NewBountyLedger(store, nil)
	engine := NewEngine(
		ledger,
		NewSubmissionService(store, ledger, nil, nil),
		NewDailyQuotaTracker(store, nil),
		NewBatchSampler(ev, WithRandomSource(rng)),
		nil,
		nil,
	)
	return &engineFixture{engine: engine, oracle: ev, rng: rng}
}

func TestEndToEndSubmissionLifecycle(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	store := f.engine.Submissions.store

	bounty := seedBounty(t, store, "owner", 10, 3)

	f.rng.seq = []int{0, 2, 4}
	f.oracle.verdicts["f0.txt"] = oracle.Verdict{IsValid: true, Score: 90, Feedback: "clear"}
	f.oracle.verdicts["f2.txt"] = oracle.Verdict{IsValid: false, Score: 40, Feedback: "blurry"}
	f.oracle.verdicts["f4.txt"] = oracle.Verdict{IsValid: true, Score: 85, Feedback: "ok"}

	files := textFiles("f0.txt", "f1.txt", "f2.txt", "f3.txt", "f4.txt")
	result, err := f.engine.SubmitBatch(ctx, bounty.ID, "contributor", files)
	require.NoError(t, err)

	assert.True(t, result.Verdict.Passed)
	assert.Equal(t, 72, result.Verdict.AvgScore)
	assert.Equal(t, "Batch Sample Check Passed. File f0.txt: clear", result.Verdict.Feedback)

	sub := result.Submission
	require.NotNil(t, sub)
	assert.Equal(t, models.SubmissionStatusPending, sub.Status)
	assert.Equal(t, models.DataTypeText, sub.DataType)
	assert.Equal(t, "content of f0.txt...", sub.DataPreview)
	require.NotNil(t, sub.AIScore)
	assert.Equal(t, 72, *sub.AIScore)

	_, statsA, err := f.engine.CastVote(ctx, sub.ID, "validator-a", models.VerdictValid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), statsA.DailyValidationCount)

	voted, statsB, err := f.engine.CastVote(ctx, sub.ID, "validator-b", models.VerdictInvalid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), statsB.DailyValidationCount)
	assert.Equal(t, 50, ConsensusPercent(voted))

	final, err := f.engine.FinalizeAsOwner(ctx, sub.ID, "owner", models.SubmissionStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusAccepted, final.Status)

	got, err := f.engine.Ledger.GetBounty(ctx, bounty.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.CurrentCount)
}

func TestSubmitBatchFailingSampleCreatesNothing(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	bounty := seedBounty(t, f.engine.Submissions.store, "owner", 10, 0)

	f.oracle.errs = map[string]error{"a": errors.New("timeout")}
	f.oracle.verdicts["b"] = oracle.Verdict{IsValid: false, Score: 20, Feedback: "off topic"}

	result, err := f.engine.SubmitBatch(ctx, bounty.ID, "contributor", textFiles("a", "b"))
	assert.ErrorIs(t, err, ErrPrecheckFailed)
	require.NotNil(t, result)
	assert.False(t, result.Verdict.Passed)
	assert.Nil(t, result.Submission)
	assert.True(t, strings.HasPrefix(result.Verdict.Feedback, "Batch Sample Check Failed. File a: AI Error: timeout | File b: off topic"))

	subs, err := f.engine.Submissions.store.ListSubmissions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSubmitBatchErrors(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.SubmitBatch(ctx, "missing", "contributor", textFiles("a"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.SubmitBatch(ctx, "missing", "contributor", nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = f.engine.SubmitBatch(ctx, "missing", "", textFiles("a"))
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	assert.Equal(t, 0, f.oracle.callCount())
}

func TestSubmitBatchImagePreview(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	bounty := seedBounty(t, f.engine.Submissions.store, "owner", 10, 0)

	f.oracle.verdicts["cat.png"] = oracle.Verdict{IsValid: true, Score: 95}
	files := []oracle.File{{Name: "cat.png", MimeType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}}

	result, err := f.engine.SubmitBatch(ctx, bounty.ID, "contributor", files)
	require.NoError(t, err)
	assert.Equal(t, models.DataTypeImage, result.Submission.DataType)
	assert.Equal(t, "data:image/png;base64,iVBORw==", result.Submission.DataPreview)
}

func TestCastVoteCountsEveryVerdict(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	store := f.engine.Submissions.store
	bounty := seedBounty(t, store, "owner", 10, 0)

	for _, contributor := range []string{"c1", "c2"} {
		sub, err := f.engine.Submissions.CreateSubmission(ctx, bounty, contributor, passingVerdict(), "", models.DataTypeText)
		require.NoError(t, err)
		verdict := models.VerdictValid
		if contributor == "c2" {
			verdict = models.VerdictInvalid
		}
		_, _, err = f.engine.CastVote(ctx, sub.ID, "alice", verdict)
		require.NoError(t, err)
	}

	stats, err := f.engine.Quota.GetStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.DailyValidationCount)
	assert.Equal(t, time.Now().UTC().Format(models.DateLayout), stats.LastLoginDate)
}

func TestCastVoteFailureDoesNotCount(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	bounty := seedBounty(t, f.engine.Submissions.store, "owner", 10, 0)
	sub, err := f.engine.Submissions.CreateSubmission(ctx, bounty, "contributor", passingVerdict(), "", models.DataTypeText)
	require.NoError(t, err)

	_, _, err = f.engine.CastVote(ctx, sub.ID, "contributor", models.VerdictValid)
	assert.ErrorIs(t, err, ErrSelfVote)

	stats, err := f.engine.Quota.GetStats(ctx, "contributor")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.DailyValidationCount)
}

func TestFinalizeAsOwnerRequiresCreator(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	bounty := seedBounty(t, f.engine.Submissions.store, "owner", 10, 0)
	sub, err := f.engine.Submissions.CreateSubmission(ctx, bounty, "contributor", passingVerdict(), "", models.DataTypeText)
	require.NoError(t, err)

	_, err = f.engine.FinalizeAsOwner(ctx, sub.ID, "mallory", models.SubmissionStatusAccepted)
	assert.ErrorIs(t, err, ErrNotBountyOwner)

	_, err = f.engine.FinalizeAsOwner(ctx, "missing", "owner", models.SubmissionStatusAccepted)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.engine.Ledger.GetBounty(ctx, bounty.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.CurrentCount)
}
