package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"data-bounty-system/models"

	"go.uber.org/zap"
)

// Error codes carried in store API error bodies.
const (
	CodeNotFound      = "not_found"
	CodeNotPending    = "not_pending"
	CodeDuplicateVote = "duplicate_vote"
)

// ErrorBody is the JSON shape returned by the store API on failure.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// StatusUpdate is the body of PUT /submissions/:id/status.
type StatusUpdate struct {
	Status models.SubmissionStatus `json:"status"`
}

// DailyValidations is the body of POST /stats/:identity/validations.
type DailyValidations struct {
	Day   string `json:"day"`
	Delta int64  `json:"delta"`
}

// RemoteStore implements Gateway against the networked store API served by
// handlers.SetupStoreRoutes.
type RemoteStore struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	log        *zap.Logger
}

func NewRemoteStore(baseURL, token string, timeout time.Duration, log *zap.Logger) *RemoteStore {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (r *RemoteStore) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return r.BaseURL + "/api/store/" + strings.Join(escaped, "/")
}

// do sends body (if any) as JSON and decodes a 2xx response into out.
func (r *RemoteStore) do(ctx context.Context, method, u string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call store service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return r.decodeError(resp)
	}
	if out == nil || method == http.MethodHead {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode store response: %w", err)
	}
	return nil
}

func (r *RemoteStore) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	var body ErrorBody
	_ = json.Unmarshal(raw, &body)

	switch body.Code {
	case CodeNotFound:
		return ErrNotFound
	case CodeNotPending:
		return ErrNotPending
	case CodeDuplicateVote:
		return ErrDuplicateVote
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return fmt.Errorf("store service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

// Atomically runs fn directly: each store API call is atomic on the server,
// and the pending guard on status updates keeps finalization single-shot.
func (r *RemoteStore) Atomically(ctx context.Context, fn func(tx Gateway) error) error {
	return fn(r)
}

func (r *RemoteStore) Ping(ctx context.Context) error {
	return r.do(ctx, http.MethodHead, r.endpoint("bounties"), nil, nil)
}

func (r *RemoteStore) ListBounties(ctx context.Context) ([]models.Bounty, error) {
	var out []models.Bounty
	if err := r.do(ctx, http.MethodGet, r.endpoint("bounties"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RemoteStore) GetBounty(ctx context.Context, id string) (*models.Bounty, error) {
	var out models.Bounty
	if err := r.do(ctx, http.MethodGet, r.endpoint("bounties", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *RemoteStore) CreateBounty(ctx context.Context, bounty *models.Bounty) error {
	return r.do(ctx, http.MethodPost, r.endpoint("bounties"), bounty, nil)
}

func (r *RemoteStore) IncrementBountyCount(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodPost, r.endpoint("bounties", id, "increment"), nil, nil)
}

func (r *RemoteStore) ListSubmissions(ctx context.Context) ([]models.Submission, error) {
	var out []models.Submission
	if err := r.do(ctx, http.MethodGet, r.endpoint("submissions"), nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].CommunityVotes == nil {
			out[i].CommunityVotes = []models.Vote{}
		}
	}
	return out, nil
}

func (r *RemoteStore) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	var out models.Submission
	if err := r.do(ctx, http.MethodGet, r.endpoint("submissions", id), nil, &out); err != nil {
		return nil, err
	}
	if out.CommunityVotes == nil {
		out.CommunityVotes = []models.Vote{}
	}
	return &out, nil
}

func (r *RemoteStore) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	return r.do(ctx, http.MethodPost, r.endpoint("submissions"), submission, nil)
}

func (r *RemoteStore) SetSubmissionStatus(ctx context.Context, id string, status models.SubmissionStatus) error {
	return r.do(ctx, http.MethodPut, r.endpoint("submissions", id, "status"), StatusUpdate{Status: status}, nil)
}

func (r *RemoteStore) AppendVote(ctx context.Context, id string, vote models.Vote) error {
	return r.do(ctx, http.MethodPut, r.endpoint("submissions", id, "vote"), vote, nil)
}

func (r *RemoteStore) GetDailyStats(ctx context.Context, identity string) (*models.DailyStats, error) {
	var out models.DailyStats
	if err := r.do(ctx, http.MethodGet, r.endpoint("stats", identity), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *RemoteStore) AddDailyValidations(ctx context.Context, identity, day string, delta int64) (*models.DailyStats, error) {
	var out models.DailyStats
	body := DailyValidations{Day: day, Delta: delta}
	if err := r.do(ctx, http.MethodPost, r.endpoint("stats", identity, "validations"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
