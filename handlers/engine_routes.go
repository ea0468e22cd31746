// handlers/engine_routes.go
package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"data-bounty-system/middleware"
	"data-bounty-system/models"
	"data-bounty-system/oracle"
	"data-bounty-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// EngineHandler serves the presentation-facing API.
type EngineHandler struct {
	engine *services.Engine
	log    *zap.Logger
}

type bountyView struct {
	models.Bounty
	ProgressPercent float64 `json:"progress_percent"`
	TargetReached   bool    `json:"target_reached"`
}

func newBountyView(b models.Bounty) bountyView {
	return bountyView{Bounty: b, ProgressPercent: b.ProgressPercent(), TargetReached: b.TargetReached()}
}

type submissionView struct {
	models.Submission
	ConsensusPercent int `json:"consensus_percent"`
}

func newSubmissionView(s models.Submission) submissionView {
	return submissionView{Submission: s, ConsensusPercent: services.ConsensusPercent(&s)}
}

func newSubmissionViews(subs []models.Submission) []submissionView {
	out := make([]submissionView, 0, len(subs))
	for _, s := range subs {
		out = append(out, newSubmissionView(s))
	}
	return out
}

func SetupEngineRoutes(app *fiber.App, engine *services.Engine, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	h := &EngineHandler{engine: engine, log: log}
	identity := middleware.IdentityMiddleware(log)

	v1 := app.Group("/api/v1")

	// 🔓 Public reads
	v1.Get("/bounties", h.ListBounties)
	v1.Get("/bounties/:id", h.GetBounty)
	v1.Get("/submissions/:id", h.GetSubmission)

	// 🔐 Identity required
	v1.Post("/bounties", identity, h.CreateBounty)
	v1.Post("/bounties/:id/batches", identity, h.SubmitBatch)
	v1.Get("/queue/community", identity, h.CommunityQueue)
	v1.Get("/queue/owner", identity, h.OwnerQueue)
	v1.Post("/submissions/:id/votes", identity, h.CastVote)
	v1.Post("/submissions/:id/finalize", identity, h.Finalize)
	v1.Get("/me/stats", identity, h.MyStats)
}

// fail maps engine errors onto HTTP statuses.
func (h *EngineHandler) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrNotBountyOwner), errors.Is(err, services.ErrSelfVote):
		status = fiber.StatusForbidden
	case errors.Is(err, services.ErrInvalidState), errors.Is(err, services.ErrDuplicateVote):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrPrecheckFailed):
		status = fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrEmptyBatch),
		errors.Is(err, services.ErrInvalidVerdict),
		errors.Is(err, services.ErrInvalidDecision),
		errors.Is(err, services.ErrInvalidIdentity),
		errors.Is(err, services.ErrInvalidBounty):
		status = fiber.StatusBadRequest
	}

	if status == fiber.StatusInternalServerError {
		h.log.Error("request failed", zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// --- Bounties ---

func (h *EngineHandler) ListBounties(c *fiber.Ctx) error {
	bounties, err := h.engine.Ledger.ListBounties(c.UserContext(), services.BountyFilter{
		Category: models.BountyCategory(c.Query("category")),
		Search:   c.Query("q"),
		Creator:  c.Query("creator"),
	})
	if err != nil {
		return h.fail(c, err)
	}
	out := make([]bountyView, 0, len(bounties))
	for _, b := range bounties {
		out = append(out, newBountyView(b))
	}
	return c.JSON(out)
}

func (h *EngineHandler) GetBounty(c *fiber.Ctx) error {
	bounty, err := h.engine.Ledger.GetBounty(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(newBountyView(*bounty))
}

func (h *EngineHandler) CreateBounty(c *fiber.Ctx) error {
	var req services.BountyInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	req.Creator = middleware.Identity(c)

	bounty, err := h.engine.Ledger.CreateBounty(c.UserContext(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(newBountyView(*bounty))
}

// --- Submissions ---

func (h *EngineHandler) SubmitBatch(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return badRequest(c, "expected multipart form with files")
	}

	headers := form.File["files"]
	files := make([]oracle.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return h.fail(c, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return h.fail(c, err)
		}
		files = append(files, oracle.File{
			Name:     fh.Filename,
			MimeType: detectMimeType(fh.Filename, fh.Header.Get(fiber.HeaderContentType), data),
			Data:     data,
		})
	}

	result, err := h.engine.SubmitBatch(c.UserContext(), c.Params("id"), middleware.Identity(c), files)
	if errors.Is(err, services.ErrPrecheckFailed) && result != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   err.Error(),
			"verdict": result.Verdict,
		})
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"verdict":    result.Verdict,
		"submission": newSubmissionView(*result.Submission),
	})
}

func detectMimeType(name, declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}

func (h *EngineHandler) GetSubmission(c *fiber.Ctx) error {
	sub, err := h.engine.Submissions.GetSubmission(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(newSubmissionView(*sub))
}

func (h *EngineHandler) CommunityQueue(c *fiber.Ctx) error {
	subs, err := h.engine.Submissions.CommunityQueue(c.UserContext(), middleware.Identity(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(newSubmissionViews(subs))
}

func (h *EngineHandler) OwnerQueue(c *fiber.Ctx) error {
	subs, err := h.engine.Submissions.OwnerQueue(c.UserContext(), middleware.Identity(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(newSubmissionViews(subs))
}

func (h *EngineHandler) CastVote(c *fiber.Ctx) error {
	var req struct {
		Verdict models.Verdict `json:"verdict"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	sub, stats, err := h.engine.CastVote(c.UserContext(), c.Params("id"), middleware.Identity(c), req.Verdict)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"submission": newSubmissionView(*sub),
		"stats":      stats,
	})
}

func (h *EngineHandler) Finalize(c *fiber.Ctx) error {
	var req struct {
		Decision models.SubmissionStatus `json:"decision"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	sub, err := h.engine.FinalizeAsOwner(c.UserContext(), c.Params("id"), middleware.Identity(c), req.Decision)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(newSubmissionView(*sub))
}

// --- Stats ---

func (h *EngineHandler) MyStats(c *fiber.Ctx) error {
	stats, err := h.engine.Quota.GetStats(c.UserContext(), middleware.Identity(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"stats": stats,
		"goal":  services.DailyValidationGoal,
	})
}
