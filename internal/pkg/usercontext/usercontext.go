// Package usercontext carries the authenticated caller through a Fiber
// request.
package usercontext

import "github.com/gofiber/fiber/v2"

// localsKey is unexported so no other package can overwrite the value.
type localsKey struct{}

// UserContext is the caller as established by the auth middleware. The zero
// value with Plan "free" stands for an anonymous visitor.
type UserContext struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
	Plan       string `json:"plan"`
}

func Set(c *fiber.Ctx, uc UserContext) {
	c.Locals(localsKey{}, uc)
}

// GetUserContext returns the caller, anonymous when the auth middleware did
// not run.
func GetUserContext(c *fiber.Ctx) UserContext {
	if uc, ok := c.Locals(localsKey{}).(UserContext); ok {
		return uc
	}
	return UserContext{Plan: "free"}
}

func IsLoggedIn(c *fiber.Ctx) bool { return GetUserContext(c).IsLoggedIn }

func GetUserID(c *fiber.Ctx) string { return GetUserContext(c).UserID }

// GetPlan returns the effective plan, as cached or read by the middleware.
func GetPlan(c *fiber.Ctx) string { return GetUserContext(c).Plan }
