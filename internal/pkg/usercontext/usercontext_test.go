package usercontext

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymousByDefault(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		assert.False(t, IsLoggedIn(c))
		assert.Empty(t, GetUserID(c))
		assert.Equal(t, "free", GetPlan(c))
		// a string key with the same text must not leak in
		c.Locals("localsKey", UserContext{UserID: "spoofed"})
		assert.Empty(t, GetUserID(c))
		return nil
	})
	_, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
}

func TestSetAndGet(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		Set(c, UserContext{UserID: "user-1", Email: "marie@example.com", IsLoggedIn: true, Plan: "pro"})
		assert.True(t, IsLoggedIn(c))
		assert.Equal(t, "user-1", GetUserID(c))
		assert.Equal(t, "pro", GetPlan(c))
		assert.False(t, GetUserContext(c).IsAdmin)
		return nil
	})
	_, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
}
