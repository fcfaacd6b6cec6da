package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/assistant"
)

type AssistantController struct {
	svc      *assistant.Service
	profiles repository.ProfileRepository
}

func NewAssistantController(svc *assistant.Service, profiles repository.ProfileRepository) *AssistantController {
	return &AssistantController{svc: svc, profiles: profiles}
}

func (ac *AssistantController) HandleAsk(c *fiber.Ctx) error {
	if ac.svc == nil {
		return respondError(c, assistant.ErrNotConfigured)
	}
	user := currentUser(c)
	var q assistant.Question
	if err := parseBody(c, &q); err != nil {
		return respondError(c, err)
	}
	profile, err := ac.profiles.GetOrCreate(user.UserID, user.Email)
	if err != nil {
		return respondError(c, err)
	}
	answer, err := ac.svc.Ask(c.UserContext(), user.UserID, user.Plan, profile, q)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(answer)
}
