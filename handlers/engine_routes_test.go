package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"data-bounty-system/middleware"
	"data-bounty-system/models"
	"data-bounty-system/oracle"
	"data-bounty-system/services"
	"data-bounty-system/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubOracle passes every file whose name does not start with "bad".
type stubOracle struct{}

func (stubOracle) Evaluate(ctx context.Context, file oracle.File, bounty oracle.Context) (oracle.Verdict, error) {
	if len(file.Name) >= 3 && file.Name[:3] == "bad" {
		return oracle.Verdict{IsValid: false, Score: 10, Feedback: "does not match"}, nil
	}
	return oracle.Verdict{IsValid: true, Score: 88, Feedback: "matches"}, nil
}

func newEngineApp(t *testing.T) *fiber.App {
	t.Helper()
	store, err := storage.NewSQLiteStore("file:"+uuid.NewString()+"?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if db, err := store.DB.DB(); err == nil {
			_ = db.Close()
		}
	})

	ledger := services.NewBountyLedger(store, nil)
	engine := services.NewEngine(
		ledger,
		services.NewSubmissionService(store, ledger, nil, nil),
		services.NewDailyQuotaTracker(store, nil),
		services.NewBatchSampler(stubOracle{}),
		nil,
		nil,
	)

	app := fiber.New()
	SetupEngineRoutes(app, engine, zap.NewNop())
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, identity string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if identity != "" {
		req.Header.Set(middleware.IdentityHeader, identity)
	}
	return send(t, app, req)
}

func send(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func uploadBatch(t *testing.T, app *fiber.App, bountyID, identity string, names ...string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range names {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("label for " + name))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bounties/"+bountyID+"/batches", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	req.Header.Set(middleware.IdentityHeader, identity)
	return send(t, app, req)
}

func createBounty(t *testing.T, app *fiber.App, owner string) string {
	t.Helper()
	status, body := doJSON(t, app, http.MethodPost, "/api/v1/bounties", owner, map[string]any{
		"title":          "Sentiment of reviews",
		"description":    "Label product reviews",
		"category":       string(models.BountyCategorySentimentEvaluation),
		"reward_pool":    "10",
		"required_count": 2,
		"tags":           []string{"reviews"},
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, owner, body["creator"])
	assert.Equal(t, float64(0), body["progress_percent"])
	return body["id"].(string)
}

func TestCreateBountyRequiresIdentity(t *testing.T) {
	app := newEngineApp(t)
	status, body := doJSON(t, app, http.MethodPost, "/api/v1/bounties", "", map[string]any{"title": "x"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Contains(t, body["error"], middleware.IdentityHeader)
}

func TestCreateBountyValidation(t *testing.T) {
	app := newEngineApp(t)
	status, _ := doJSON(t, app, http.MethodPost, "/api/v1/bounties", "0xowner", map[string]any{
		"title":          "No category",
		"required_count": 1,
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestBountyListingAndLookup(t *testing.T) {
	app := newEngineApp(t)
	id := createBounty(t, app, "0xowner")

	status, body := doJSON(t, app, http.MethodGet, "/api/v1/bounties/"+id, "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["target_reached"])

	status, _ = doJSON(t, app, http.MethodGet, "/api/v1/bounties/missing", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bounties?q=REVIEWS", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0]["id"])
}

func TestBatchVoteFinalizeFlow(t *testing.T) {
	app := newEngineApp(t)
	bountyID := createBounty(t, app, "0xowner")

	status, body := uploadBatch(t, app, bountyID, "0xcontrib", "a.txt", "b.txt")
	require.Equal(t, fiber.StatusCreated, status, body)
	sub := body["submission"].(map[string]any)
	subID := sub["id"].(string)
	assert.Equal(t, "pending", sub["status"])
	assert.Equal(t, "text", sub["data_type"])

	// Contributor cannot vote on their own batch.
	status, _ = doJSON(t, app, http.MethodPost, "/api/v1/submissions/"+subID+"/votes", "0xcontrib", map[string]any{"verdict": "valid"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = doJSON(t, app, http.MethodPost, "/api/v1/submissions/"+subID+"/votes", "0xvoter", map[string]any{"verdict": "valid"})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, float64(100), body["submission"].(map[string]any)["consensus_percent"])
	assert.Equal(t, float64(1), body["stats"].(map[string]any)["daily_validation_count"])

	status, _ = doJSON(t, app, http.MethodPost, "/api/v1/submissions/"+subID+"/votes", "0xvoter", map[string]any{"verdict": "invalid"})
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = doJSON(t, app, http.MethodPost, "/api/v1/submissions/"+subID+"/finalize", "0xvoter", map[string]any{"decision": "accepted"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = doJSON(t, app, http.MethodPost, "/api/v1/submissions/"+subID+"/finalize", "0xowner", map[string]any{"decision": "accepted"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "accepted", body["status"])

	status, _ = doJSON(t, app, http.MethodPost, "/api/v1/submissions/"+subID+"/finalize", "0xowner", map[string]any{"decision": "accepted"})
	assert.Equal(t, fiber.StatusConflict, status)

	status, body = doJSON(t, app, http.MethodGet, "/api/v1/bounties/"+bountyID, "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["current_count"])
	assert.Equal(t, float64(50), body["progress_percent"])

	status, body = doJSON(t, app, http.MethodGet, "/api/v1/me/stats", "0xvoter", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(services.DailyValidationGoal), body["goal"])
}

func TestBatchFailingPrecheck(t *testing.T) {
	app := newEngineApp(t)
	bountyID := createBounty(t, app, "0xowner")

	status, body := uploadBatch(t, app, bountyID, "0xcontrib", "bad-1.txt", "bad-2.txt", "ok.txt")
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	verdict := body["verdict"].(map[string]any)
	assert.Equal(t, false, verdict["passed"])

	status, _ = uploadBatch(t, app, bountyID, "0xcontrib")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestQueues(t *testing.T) {
	app := newEngineApp(t)
	bountyID := createBounty(t, app, "0xowner")
	status, _ := uploadBatch(t, app, bountyID, "0xcontrib", "a.txt")
	require.Equal(t, fiber.StatusCreated, status)

	queue := func(path, identity string) []map[string]any {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(middleware.IdentityHeader, identity)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		var out []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	assert.Len(t, queue("/api/v1/queue/community", "0xvoter"), 1)
	assert.Len(t, queue("/api/v1/queue/community", "0xcontrib"), 0)
	assert.Len(t, queue("/api/v1/queue/owner", "0xowner"), 1)
	assert.Len(t, queue("/api/v1/queue/owner", "0xvoter"), 0)
}
