// handlers/store_routes.go
package handlers

import (
	"errors"
	"strings"
	"time"

	"data-bounty-system/middleware"
	"data-bounty-system/models"
	"data-bounty-system/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StoreHandler exposes a Gateway over HTTP for storage.RemoteStore clients.
type StoreHandler struct {
	store storage.Gateway
	log   *zap.Logger
}

func SetupStoreRoutes(app *fiber.App, store storage.Gateway, token string, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	h := &StoreHandler{store: store, log: log}

	// 🔐 Engine instances only
	api := app.Group("/api/store", middleware.ServiceTokenMiddleware(token, log))

	// Get also answers HEAD, which is the availability probe.
	api.Get("/bounties", h.ListBounties)
	api.Post("/bounties", h.CreateBounty)
	api.Get("/bounties/:id", h.GetBounty)
	api.Post("/bounties/:id/increment", h.IncrementBounty)

	api.Get("/submissions", h.ListSubmissions)
	api.Post("/submissions", h.CreateSubmission)
	api.Get("/submissions/:id", h.GetSubmission)
	api.Put("/submissions/:id/status", h.SetSubmissionStatus)
	api.Put("/submissions/:id/vote", h.AppendVote)

	api.Get("/stats/:identity", h.GetDailyStats)
	api.Post("/stats/:identity/validations", h.AddDailyValidations)
}

func (h *StoreHandler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(storage.ErrorBody{Error: err.Error(), Code: storage.CodeNotFound})
	case errors.Is(err, storage.ErrNotPending):
		return c.Status(fiber.StatusConflict).JSON(storage.ErrorBody{Error: err.Error(), Code: storage.CodeNotPending})
	case errors.Is(err, storage.ErrDuplicateVote):
		return c.Status(fiber.StatusConflict).JSON(storage.ErrorBody{Error: err.Error(), Code: storage.CodeDuplicateVote})
	}
	h.log.Error("store request failed", zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(storage.ErrorBody{Error: "internal store error"})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// --- Bounties ---

func (h *StoreHandler) ListBounties(c *fiber.Ctx) error {
	bounties, err := h.store.ListBounties(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(bounties)
}

func (h *StoreHandler) CreateBounty(c *fiber.Ctx) error {
	var bounty models.Bounty
	if err := c.BodyParser(&bounty); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if bounty.ID == "" {
		bounty.ID = uuid.NewString()
	}
	if err := h.store.CreateBounty(c.UserContext(), &bounty); err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(bounty)
}

func (h *StoreHandler) GetBounty(c *fiber.Ctx) error {
	bounty, err := h.store.GetBounty(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(bounty)
}

func (h *StoreHandler) IncrementBounty(c *fiber.Ctx) error {
	if err := h.store.IncrementBountyCount(c.UserContext(), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// --- Submissions ---

func (h *StoreHandler) ListSubmissions(c *fiber.Ctx) error {
	subs, err := h.store.ListSubmissions(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(subs)
}

func (h *StoreHandler) CreateSubmission(c *fiber.Ctx) error {
	var sub models.Submission
	if err := c.BodyParser(&sub); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if sub.ID == "" || sub.BountyID == "" {
		return badRequest(c, "id and bounty_id are required")
	}
	if sub.Status == "" {
		sub.Status = models.SubmissionStatusPending
	}
	if err := h.store.CreateSubmission(c.UserContext(), &sub); err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

func (h *StoreHandler) GetSubmission(c *fiber.Ctx) error {
	sub, err := h.store.GetSubmission(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(sub)
}

func (h *StoreHandler) SetSubmissionStatus(c *fiber.Ctx) error {
	var req storage.StatusUpdate
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if !req.Status.Terminal() {
		return badRequest(c, "status must be accepted or rejected")
	}
	if err := h.store.SetSubmissionStatus(c.UserContext(), c.Params("id"), req.Status); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *StoreHandler) AppendVote(c *fiber.Ctx) error {
	var vote models.Vote
	if err := c.BodyParser(&vote); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if strings.TrimSpace(vote.Validator) == "" || !vote.Verdict.Valid() {
		return badRequest(c, "validator and a valid verdict are required")
	}
	if err := h.store.AppendVote(c.UserContext(), c.Params("id"), vote); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// --- Daily stats ---

func (h *StoreHandler) GetDailyStats(c *fiber.Ctx) error {
	stats, err := h.store.GetDailyStats(c.UserContext(), c.Params("identity"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(stats)
}

func (h *StoreHandler) AddDailyValidations(c *fiber.Ctx) error {
	var req storage.DailyValidations
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if _, err := time.Parse(models.DateLayout, req.Day); err != nil {
		return badRequest(c, "day must be formatted as "+models.DateLayout)
	}
	if req.Delta < 0 {
		return badRequest(c, "delta must not be negative")
	}
	stats, err := h.store.AddDailyValidations(c.UserContext(), c.Params("identity"), req.Day, req.Delta)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(stats)
}
