package handlers

import (
	"commitment-wall/models"
	"commitment-wall/repository"
	"commitment-wall/views"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// wallPage loads the current wall into a page model.
func (h *Handler) wallPage(c *fiber.Ctx) (views.WallPage, error) {
	pledges, err := h.repo.List(c.UserContext())
	if err != nil {
		return views.WallPage{}, err
	}
	stats := repository.Summarize(pledges)
	return views.WallPage{
		Pledges:    pledges,
		Counters:   views.Counters{Count: stats.Count, TotalImpact: stats.TotalImpact},
		Categories: models.Categories,
	}, nil
}

// renderWall renders the wall with status code and an optional notice.
func (h *Handler) renderWall(c *fiber.Ctx, code int, edit func(*views.WallPage)) error {
	page, err := h.wallPage(c)
	if err != nil {
		h.log.Error("Failed to load wall", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to load pledges")
	}
	if edit != nil {
		edit(&page)
	}
	return c.Status(code).Render("wall", page)
}

func (h *Handler) renderNotice(c *fiber.Ctx, err error) error {
	code, msg := h.errorResponse(err)
	return h.renderWall(c, code, func(p *views.WallPage) {
		p.Notice = msg
		p.NoticeError = true
	})
}

// ShowWall renders the form, the cards and the counters.
func (h *Handler) ShowWall(c *fiber.Ctx) error {
	return h.renderWall(c, fiber.StatusOK, nil)
}

// SubmitPledgeForm handles the HTML form. On success the page shows the
// new passcode; on a validation problem the form is refilled.
func (h *Handler) SubmitPledgeForm(c *fiber.Ctx) error {
	draft, payload, err := h.draftFromRequest(c)
	if err == nil {
		var pledge models.Pledge
		pledge, err = h.loop.Submit(c.UserContext(), draft)
		if err == nil {
			h.log.Info("Pledge created", zap.String("id", pledge.ID), zap.String("inputMethod", string(pledge.InputMethod)))
			return h.renderWall(c, fiber.StatusCreated, func(p *views.WallPage) {
				p.Notice = "Pledge submitted successfully!"
				p.NewPasscode = pledge.Passcode
				p.NewName = pledge.Name
			})
		}
	}

	code, msg := h.errorResponse(err)
	return h.renderWall(c, code, func(p *views.WallPage) {
		p.Notice = msg
		p.NoticeError = true
		p.Form = views.FormValues{
			Name:        payload.Name,
			Company:     payload.Company,
			Email:       payload.Email,
			Message:     payload.Message,
			Category:    payload.Category,
			InputMethod: string(models.ParseInputMethod(payload.InputMethod)),
		}
	})
}

// EditPledgeForm handles the per-card edit form. An id that is gone is
// ignored and the wall is shown as it is.
func (h *Handler) EditPledgeForm(c *fiber.Ctx) error {
	payload := UpdatePledgePayload{}
	if err := c.BodyParser(&payload); err != nil {
		return h.renderNotice(c, errBadPayload)
	}

	_, err := h.loop.Edit(c.UserContext(), c.Params("id"), payload.Passcode, repository.Patch{
		Name:     payload.Name,
		Company:  payload.Company,
		Email:    payload.Email,
		Message:  payload.Message,
		Category: models.Category(payload.Category),
	})
	switch {
	case err == nil:
		return h.renderWall(c, fiber.StatusOK, func(p *views.WallPage) {
			p.Notice = "Pledge updated successfully!"
		})
	case errors.Is(err, repository.ErrNotFound):
		return h.renderWall(c, fiber.StatusOK, nil)
	default:
		return h.renderNotice(c, err)
	}
}

// DeletePledgeForm handles the per-card delete form.
func (h *Handler) DeletePledgeForm(c *fiber.Ctx) error {
	payload := PasscodePayload{}
	if err := c.BodyParser(&payload); err != nil {
		return h.renderNotice(c, errBadPayload)
	}

	err := h.loop.Remove(c.UserContext(), c.Params("id"), payload.Passcode)
	switch {
	case err == nil:
		return h.renderWall(c, fiber.StatusOK, func(p *views.WallPage) {
			p.Notice = "Pledge deleted successfully!"
		})
	case errors.Is(err, repository.ErrNotFound):
		return h.renderWall(c, fiber.StatusOK, nil)
	default:
		return h.renderNotice(c, err)
	}
}

// ExportPledgesPage downloads the CSV, or shows the wall with a notice
// when there is nothing to export.
func (h *Handler) ExportPledgesPage(c *fiber.Ctx) error {
	buf, err := h.writeExport(c)
	if err != nil {
		return h.renderNotice(c, err)
	}
	return h.sendExport(c, buf)
}
