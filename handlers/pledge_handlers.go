package handlers

import (
	"bytes"
	"commitment-wall/annotator"
	"commitment-wall/export"
	"commitment-wall/models"
	"commitment-wall/repository"
	"commitment-wall/storage"
	"commitment-wall/wall"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Options are the request-level limits the handlers enforce.
type Options struct {
	MaxVideoBytes int64
	ExportPrefix  string
}

// Handler serves the wall's API and HTML pages.
type Handler struct {
	repo      *repository.Repository
	loop      *wall.Loop
	annotator annotator.Annotator
	opts      Options
	now       func() time.Time
	log       *zap.Logger
}

// New wires a Handler to its collaborators.
func New(repo *repository.Repository, loop *wall.Loop, a annotator.Annotator, opts Options, log *zap.Logger) *Handler {
	if opts.MaxVideoBytes <= 0 {
		opts.MaxVideoBytes = storage.MaxVideoBytes
	}
	if opts.ExportPrefix == "" {
		opts.ExportPrefix = export.DefaultPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{repo: repo, loop: loop, annotator: a, opts: opts, now: time.Now, log: log}
}

// CreatePledgePayload is the JSON or form body of a new pledge. The AI
// fields carry an earlier /api/analyze preview, if the client ran one.
type CreatePledgePayload struct {
	Name          string `json:"name" form:"name"`
	Company       string `json:"company" form:"company"`
	Email         string `json:"email" form:"email"`
	Message       string `json:"message" form:"message"`
	Category      string `json:"category" form:"category"`
	InputMethod   string `json:"inputMethod" form:"inputMethod"`
	VideoName     string `json:"videoName" form:"videoName"`
	VideoData     string `json:"videoData" form:"-"`
	AICategory    string `json:"aiCategory" form:"aiCategory"`
	AISentiment   string `json:"aiSentiment" form:"aiSentiment"`
	AIImpactScore string `json:"aiImpactScore" form:"aiImpactScore"`
}

// UpdatePledgePayload is the body of an edit.
type UpdatePledgePayload struct {
	Passcode string `json:"passcode" form:"passcode"`
	Name     string `json:"name" form:"name"`
	Company  string `json:"company" form:"company"`
	Email    string `json:"email" form:"email"`
	Message  string `json:"message" form:"message"`
	Category string `json:"category" form:"category"`
}

// PasscodePayload is the body of a delete.
type PasscodePayload struct {
	Passcode string `json:"passcode" form:"passcode"`
}

// AnalyzePayload is the body of an analysis preview.
type AnalyzePayload struct {
	Message string `json:"message" form:"message"`
}

// AnalyzeResponse is an annotation as shown in the form preview.
type AnalyzeResponse struct {
	Category    models.Category `json:"category"`
	Sentiment   string          `json:"sentiment"`
	ImpactScore int             `json:"impactScore"`
	ImpactLabel string          `json:"aiImpactScore"`
}

var errBadPayload = errors.New("cannot parse request payload")

// draftFromRequest turns a create request into a Draft, inlining an
// uploaded video when the pledge is a video pledge.
func (h *Handler) draftFromRequest(c *fiber.Ctx) (repository.Draft, CreatePledgePayload, error) {
	payload := CreatePledgePayload{}
	if err := c.BodyParser(&payload); err != nil {
		return repository.Draft{}, payload, errBadPayload
	}

	draft := repository.Draft{
		Name:          payload.Name,
		Company:       payload.Company,
		Email:         payload.Email,
		Message:       payload.Message,
		Category:      models.Category(strings.TrimSpace(payload.Category)),
		InputMethod:   models.ParseInputMethod(payload.InputMethod),
		VideoName:     payload.VideoName,
		AICategory:    payload.AICategory,
		AISentiment:   payload.AISentiment,
		AIImpactScore: payload.AIImpactScore,
	}
	if draft.InputMethod != models.InputMethodVideo {
		return draft, payload, nil
	}

	if fh, err := c.FormFile("video"); err == nil && fh != nil {
		data, err := storage.InlineVideo(fh, h.opts.MaxVideoBytes)
		if err != nil {
			return repository.Draft{}, payload, err
		}
		draft.VideoData = data
		if draft.VideoName == "" {
			draft.VideoName = fh.Filename
		}
		return draft, payload, nil
	}

	if payload.VideoData != "" {
		if !strings.HasPrefix(payload.VideoData, "data:video/") {
			return repository.Draft{}, payload, &repository.ValidationError{Problems: []string{"videoData must be a video data URI."}}
		}
		if storage.DataURISize(payload.VideoData) > h.opts.MaxVideoBytes {
			return repository.Draft{}, payload, storage.ErrVideoTooLarge
		}
		draft.VideoData = payload.VideoData
	}
	return draft, payload, nil
}

// errorResponse maps an error onto a status code and a user-facing message.
func (h *Handler) errorResponse(err error) (int, string) {
	var ve *repository.ValidationError
	switch {
	case errors.Is(err, errBadPayload):
		return fiber.StatusBadRequest, "Cannot parse request payload"
	case errors.As(err, &ve):
		return fiber.StatusBadRequest, ve.Error()
	case errors.Is(err, storage.ErrVideoTooLarge):
		return fiber.StatusBadRequest, fmt.Sprintf("Video file is too large. Please upload a video under %dMB.", h.opts.MaxVideoBytes/(1024*1024))
	case errors.Is(err, repository.ErrUnauthorized):
		return fiber.StatusForbidden, "Invalid passcode! You cannot change this pledge."
	case errors.Is(err, repository.ErrNotFound):
		return fiber.StatusNotFound, "Pledge not found"
	case errors.Is(err, export.ErrNoPledges):
		return fiber.StatusNotFound, "No pledges to export yet! Please add some commitments first."
	default:
		h.log.Error("Request failed", zap.Error(err))
		return fiber.StatusInternalServerError, fmt.Sprintf("Failed to process request: %s", err.Error())
	}
}

func (h *Handler) jsonError(c *fiber.Ctx, err error) error {
	code, msg := h.errorResponse(err)
	return c.Status(code).JSON(fiber.Map{
		"error": msg,
	})
}

// CreatePledge handles the request to submit a new pledge. The response is
// the only place the passcode is ever returned.
func (h *Handler) CreatePledge(c *fiber.Ctx) error {
	draft, _, err := h.draftFromRequest(c)
	if err != nil {
		return h.jsonError(c, err)
	}

	pledge, err := h.loop.Submit(c.UserContext(), draft)
	if err != nil {
		return h.jsonError(c, err)
	}
	h.log.Info("Pledge created", zap.String("id", pledge.ID), zap.String("inputMethod", string(pledge.InputMethod)))
	return c.Status(fiber.StatusCreated).JSON(pledge)
}

// ListPledges handles the request to list all pledges, newest first.
func (h *Handler) ListPledges(c *fiber.Ctx) error {
	pledges, err := h.repo.List(c.UserContext())
	if err != nil {
		return h.jsonError(c, err)
	}
	out := make([]models.Pledge, len(pledges))
	for i, p := range pledges {
		out[i] = p.Public()
	}
	return c.JSON(out)
}

// GetPledge handles the request to get a single pledge.
func (h *Handler) GetPledge(c *fiber.Ctx) error {
	pledge, err := h.repo.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.jsonError(c, err)
	}
	return c.JSON(pledge.Public())
}

// UpdatePledge handles the request to edit a pledge.
func (h *Handler) UpdatePledge(c *fiber.Ctx) error {
	payload := UpdatePledgePayload{}
	if err := c.BodyParser(&payload); err != nil {
		return h.jsonError(c, errBadPayload)
	}
	if payload.Passcode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Passcode cannot be empty",
		})
	}

	pledge, err := h.loop.Edit(c.UserContext(), c.Params("id"), payload.Passcode, repository.Patch{
		Name:     payload.Name,
		Company:  payload.Company,
		Email:    payload.Email,
		Message:  payload.Message,
		Category: models.Category(payload.Category),
	})
	if err != nil {
		return h.jsonError(c, err)
	}
	return c.JSON(pledge.Public())
}

// DeletePledge handles the request to delete a pledge. The passcode comes
// from the body or the X-Passcode header.
func (h *Handler) DeletePledge(c *fiber.Ctx) error {
	passcode := c.Get("X-Passcode")
	if passcode == "" && len(c.Body()) > 0 {
		payload := PasscodePayload{}
		if err := c.BodyParser(&payload); err != nil {
			return h.jsonError(c, errBadPayload)
		}
		passcode = payload.Passcode
	}
	if passcode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Passcode cannot be empty",
		})
	}

	if err := h.loop.Remove(c.UserContext(), c.Params("id"), passcode); err != nil {
		return h.jsonError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetStats handles the request for the wall's counters.
func (h *Handler) GetStats(c *fiber.Ctx) error {
	stats, err := h.repo.Stats(c.UserContext())
	if err != nil {
		return h.jsonError(c, err)
	}
	return c.JSON(stats)
}

// AnalyzeMessage runs the annotator over a draft message. 204 means the
// message is too short and any earlier preview should be hidden.
func (h *Handler) AnalyzeMessage(c *fiber.Ctx) error {
	payload := AnalyzePayload{}
	if err := c.BodyParser(&payload); err != nil {
		return h.jsonError(c, errBadPayload)
	}

	a, ok, err := h.annotator.Annotate(c.UserContext(), payload.Message)
	if err != nil {
		return h.jsonError(c, err)
	}
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(AnalyzeResponse{
		Category:    a.Category,
		Sentiment:   a.Sentiment,
		ImpactScore: a.ImpactScore,
		ImpactLabel: a.ImpactLabel(),
	})
}

// writeExport renders the CSV for the current wall into buf.
func (h *Handler) writeExport(c *fiber.Ctx) (*bytes.Buffer, error) {
	pledges, err := h.repo.List(c.UserContext())
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := export.WriteCSV(buf, pledges); err != nil {
		return nil, err
	}
	return buf, nil
}

func (h *Handler) sendExport(c *fiber.Ctx, buf *bytes.Buffer) error {
	c.Attachment(export.FileName(h.opts.ExportPrefix, h.now()))
	c.Set(fiber.HeaderContentType, export.ContentType)
	return c.Send(buf.Bytes())
}

// ExportPledges handles the request to download every pledge as CSV.
func (h *Handler) ExportPledges(c *fiber.Ctx) error {
	buf, err := h.writeExport(c)
	if err != nil {
		return h.jsonError(c, err)
	}
	return h.sendExport(c, buf)
}

// SetupRoutes configures the API and page routes for the application
func (h *Handler) SetupRoutes(app *fiber.App) {
	app.Get("/", h.ShowWall)
	app.Post("/", h.SubmitPledgeForm)
	app.Post("/pledges/:id/edit", h.EditPledgeForm)
	app.Post("/pledges/:id/delete", h.DeletePledgeForm)
	app.Get("/export", h.ExportPledgesPage)

	api := app.Group("/api") // Base path for API routes

	pledgeRoutes := api.Group("/pledges")
	pledgeRoutes.Post("/", h.CreatePledge)
	pledgeRoutes.Get("/", h.ListPledges)
	pledgeRoutes.Get("/:id", h.GetPledge)
	pledgeRoutes.Put("/:id", h.UpdatePledge)
	pledgeRoutes.Delete("/:id", h.DeletePledge)

	api.Get("/stats", h.GetStats)
	api.Post("/analyze", h.AnalyzeMessage)
	api.Get("/export", h.ExportPledges)
}
