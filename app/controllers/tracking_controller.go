package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/attribution"
)

// VisitorCookie carries the anonymous visitor id between visits.
const VisitorCookie = "cz_vid"

const visitorCookieTTL = 180 * 24 * time.Hour

type identifyBody struct {
	VisitorID string `json:"visitor_id"`
}

// TrackingController records marketing touches.
type TrackingController struct {
	svc    *attribution.Service
	secure bool
}

func NewTrackingController(svc *attribution.Service, secureCookies bool) *TrackingController {
	return &TrackingController{svc: svc, secure: secureCookies}
}

// HandleTrack is public. The visitor id comes from the body, then the cookie,
// and is generated for first visits.
func (tc *TrackingController) HandleTrack(c *fiber.Ctx) error {
	var in attribution.TouchInput
	if err := parseBody(c, &in); err != nil {
		return respondError(c, err)
	}
	if strings.TrimSpace(in.VisitorID) == "" {
		in.VisitorID = c.Cookies(VisitorCookie)
	}
	if in.Referrer == "" {
		in.Referrer = c.Get(fiber.HeaderReferer)
	}
	touch, err := tc.svc.Track(c.UserContext(), currentUser(c).UserID, in)
	if err != nil {
		return respondError(c, err)
	}
	c.Cookie(&fiber.Cookie{
		Name:     VisitorCookie,
		Value:    touch.VisitorID,
		Path:     "/",
		Expires:  time.Now().Add(visitorCookieTTL),
		Secure:   tc.secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"visitor_id": touch.VisitorID, "source": touch.Source})
}

// HandleIdentify links the visitor to the logged-in user after signup or login.
func (tc *TrackingController) HandleIdentify(c *fiber.Ctx) error {
	var body identifyBody
	if len(c.Body()) > 0 {
		if err := parseBody(c, &body); err != nil {
			return respondError(c, err)
		}
	}
	if body.VisitorID == "" {
		body.VisitorID = c.Cookies(VisitorCookie)
	}
	linked, first, err := tc.svc.Identify(c.UserContext(), currentUser(c).UserID, body.VisitorID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"linked": linked, "first_touch": first})
}
