package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"data-bounty-system/models"
	"data-bounty-system/oracle"
	"data-bounty-system/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *storage.GormStore {
	t.Helper()
	store, err := storage.NewSQLiteStore("file:"+uuid.NewString()+"?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if db, err := store.DB.DB(); err == nil {
			_ = db.Close()
		}
	})
	return store
}

func seedBounty(t *testing.T, store storage.Gateway, creator string, required, current int64) *models.Bounty {
	t.Helper()
	b := &models.Bounty{
		ID:            uuid.NewString(),
		Creator:       creator,
		Title:         "Street cats",
		Description:   "Photos of cats outdoors",
		Category:      models.BountyCategoryImageCapture,
		RewardPool:    decimal.RequireFromString("12.5"),
		RequiredCount: required,
		CurrentCount:  current,
		Status:        models.BountyStatusActive,
		CreatedAt:     time.Now().UTC(),
		Tags:          []string{"cats", "outdoor"},
	}
	require.NoError(t, store.CreateBounty(context.Background(), b))
	return b
}

func passingVerdict() BatchVerdict {
	return BatchVerdict{Passed: true, AvgScore: 80, Feedback: "Batch Sample Check Passed. File a.png: ok", SampleCount: 1, BatchSize: 1}
}

// scriptedRand replays seq, wrapping around.
type scriptedRand struct {
	mu  sync.Mutex
	seq []int
	i   int
}

func (r *scriptedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.seq[r.i%len(r.seq)] % n
	r.i++
	return v
}

// fakeOracle answers by file name.
type fakeOracle struct {
	mu       sync.Mutex
	verdicts map[string]oracle.Verdict
	errs     map[string]error
	delays   map[string]time.Duration
	calls    []string
	contexts []oracle.Context
}

func (f *fakeOracle) Evaluate(ctx context.Context, file oracle.File, bounty oracle.Context) (oracle.Verdict, error) {
	f.mu.Lock()
	f.calls = append(f.calls, file.Name)
	f.contexts = append(f.contexts, bounty)
	delay := f.delays[file.Name]
	err := f.errs[file.Name]
	v := f.verdicts[file.Name]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return oracle.Verdict{}, err
	}
	return v, nil
}

func (f *fakeOracle) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func textFiles(names ...string) []oracle.File {
	files := make([]oracle.File, 0, len(names))
	for _, n := range names {
		files = append(files, oracle.File{Name: n, MimeType: "text/plain", Data: []byte("content of " + n)})
	}
	return files
}
