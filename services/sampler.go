package services

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"

	"data-bounty-system/metrics"
	"data-bounty-system/models"
	"data-bounty-system/oracle"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// SampleSize is the maximum number of files checked per batch.
const SampleSize = 3

// RandomSource picks sample indices. *rand.Rand satisfies it.
type RandomSource interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// FileResult is the oracle outcome for one sampled file.
type FileResult struct {
	Name     string         `json:"name"`
	Verdict  oracle.Verdict `json:"verdict"`
	Degraded bool           `json:"degraded,omitempty"`
}

// BatchVerdict aggregates the sampled results into a single pass/fail.
type BatchVerdict struct {
	Passed      bool         `json:"passed"`
	AvgScore    int          `json:"avg_score"`
	Feedback    string       `json:"feedback"`
	SampleCount int          `json:"sample_count"`
	BatchSize   int          `json:"batch_size"`
	Results     []FileResult `json:"results"`
}

type BatchSampler struct {
	oracle  oracle.Evaluator
	pool    *ants.Pool
	metrics *metrics.EngineMetrics
	log     *zap.Logger

	mu  sync.Mutex
	rng RandomSource
}

type SamplerOption func(*BatchSampler)

// WithRandomSource replaces the index picker, mainly for tests.
func WithRandomSource(r RandomSource) SamplerOption {
	return func(s *BatchSampler) { s.rng = r }
}

// WithPool runs oracle calls on a shared worker pool instead of bare goroutines.
func WithPool(p *ants.Pool) SamplerOption {
	return func(s *BatchSampler) { s.pool = p }
}

func WithSamplerLogger(l *zap.Logger) SamplerOption {
	return func(s *BatchSampler) { s.log = l }
}

func WithSamplerMetrics(m *metrics.EngineMetrics) SamplerOption {
	return func(s *BatchSampler) { s.metrics = m }
}

func NewBatchSampler(ev oracle.Evaluator, opts ...SamplerOption) *BatchSampler {
	s := &BatchSampler{
		oracle: ev,
		rng:    globalRand{},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// pickIndices returns every index in order for small batches, otherwise
// SampleSize distinct indices in the order they were drawn.
func (s *BatchSampler) pickIndices(n int) []int {
	if n <= SampleSize {
		indices := make([]int, n)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int]struct{}, SampleSize)
	indices := make([]int, 0, SampleSize)
	for len(indices) < SampleSize {
		i := s.rng.IntN(n)
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		indices = append(indices, i)
	}
	return indices
}

// Sample runs the oracle over a random subset of files and decides whether
// the batch may become a submission. Oracle failures never abort the sample;
// they count as failing files.
func (s *BatchSampler) Sample(ctx context.Context, files []oracle.File, bounty *models.Bounty) (BatchVerdict, error) {
	if len(files) == 0 {
		return BatchVerdict{}, ErrEmptyBatch
	}
	if bounty == nil {
		return BatchVerdict{}, ErrInvalidBounty
	}

	indices := s.pickIndices(len(files))
	bctx := oracle.Context{
		Title:       bounty.Title,
		Description: bounty.Description,
		Tags:        bounty.Tags,
	}
	s.log.Info("analyzing batch sample",
		zap.String("bounty_id", bounty.ID),
		zap.Int("batch_size", len(files)),
		zap.Ints("sample", indices),
	)

	results := make([]FileResult, len(indices))
	var wg sync.WaitGroup
	for slot, idx := range indices {
		file := files[idx]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[slot] = s.degraded(file, fmt.Errorf("oracle panic: %v", r))
				}
			}()
			results[slot] = s.evaluate(ctx, file, bctx)
		}

		if s.pool == nil {
			go task()
			continue
		}
		if err := s.pool.Submit(task); err != nil {
			results[slot] = s.degraded(file, err)
			wg.Done()
		}
	}
	wg.Wait()

	verdict := aggregate(len(files), results)
	s.metrics.ObserveBatch(verdict.Passed)
	s.log.Info("batch sample checked",
		zap.String("bounty_id", bounty.ID),
		zap.Bool("passed", verdict.Passed),
		zap.Int("avg_score", verdict.AvgScore),
	)
	return verdict, nil
}

func (s *BatchSampler) evaluate(ctx context.Context, file oracle.File, bctx oracle.Context) FileResult {
	v, err := s.oracle.Evaluate(ctx, file, bctx)
	s.metrics.ObserveOracle(err)
	if err != nil {
		return s.degraded(file, err)
	}
	if v.Score < 0 {
		v.Score = 0
	} else if v.Score > 100 {
		v.Score = 100
	}
	return FileResult{Name: file.Name, Verdict: v}
}

func (s *BatchSampler) degraded(file oracle.File, err error) FileResult {
	s.log.Warn("oracle evaluation failed",
		zap.String("file", file.Name),
		zap.NamedError("kind", ErrOracleUnavailable),
		zap.Error(err),
	)
	return FileResult{
		Name:     file.Name,
		Verdict:  oracle.Verdict{IsValid: false, Score: 0, Feedback: "AI Error: " + err.Error()},
		Degraded: true,
	}
}

// RequiredPasses is the simple-majority threshold ceil(n/2).
func RequiredPasses(sampleCount int) int {
	return (sampleCount + 1) / 2
}

func aggregate(batchSize int, results []FileResult) BatchVerdict {
	sampleCount := len(results)
	total, passCount := 0, 0
	messages := make([]string, 0, sampleCount)
	for _, r := range results {
		total += r.Verdict.Score
		if r.Verdict.IsValid {
			passCount++
		}
		messages = append(messages, fmt.Sprintf("File %s: %s", r.Name, r.Verdict.Feedback))
	}

	avg := 0
	if sampleCount > 0 {
		avg = int(math.Round(float64(total) / float64(sampleCount)))
	}
	passed := sampleCount > 0 && passCount >= RequiredPasses(sampleCount)

	feedback := "Batch Sample Check Failed. " + strings.Join(messages, " | ")
	if passed {
		feedback = "Batch Sample Check Passed. " + messages[0]
	}

	return BatchVerdict{
		Passed:      passed,
		AvgScore:    avg,
		Feedback:    feedback,
		SampleCount: sampleCount,
		BatchSize:   batchSize,
		Results:     results,
	}
}
