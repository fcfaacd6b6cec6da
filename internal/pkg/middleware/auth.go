package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"

	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/cache"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/usercontext"
)

// AccessTokenCookie is read when no Authorization header is present.
const AccessTokenCookie = "sb-access-token"

var errNoToken = errors.New("missing bearer token")

// SupabaseClaims are the claims of a Supabase Auth access token.
type SupabaseClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// PlanLookup resolves the stored plan of a user, creating the profile on first sight.
type PlanLookup func(userID, email string) (string, error)

type AuthConfig struct {
	Secret      string
	Audience    string
	AdminEmails []string
	Plans       PlanLookup
}

// ProfilePlans adapts the profile repository to a PlanLookup.
func ProfilePlans(profiles repository.ProfileRepository) PlanLookup {
	return func(userID, email string) (string, error) {
		p, err := profiles.GetOrCreate(userID, email)
		if err != nil {
			return "", err
		}
		return p.Plan, nil
	}
}

func NewAuthConfigFromEnv(profiles repository.ProfileRepository) AuthConfig {
	return AuthConfig{
		Secret:      env.GetEnv("SUPABASE_JWT_SECRET", ""),
		Audience:    env.GetEnv("SUPABASE_JWT_AUDIENCE", "authenticated"),
		AdminEmails: env.GetEnvList("ADMIN_EMAILS"),
		Plans:       ProfilePlans(profiles),
	}
}

func bearerToken(c *fiber.Ctx) (string, error) {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		if t := strings.TrimSpace(auth[7:]); t != "" {
			return t, nil
		}
	}
	if t := strings.TrimSpace(c.Cookies(AccessTokenCookie)); t != "" {
		return t, nil
	}
	return "", errNoToken
}

// ParseToken verifies an HS256 Supabase access token.
func (cfg AuthConfig) ParseToken(raw string) (*SupabaseClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	claims := &SupabaseClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func (cfg AuthConfig) isAdmin(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, a := range cfg.AdminEmails {
		if strings.ToLower(strings.TrimSpace(a)) == email {
			return true
		}
	}
	return false
}

// resolvePlan prefers the cached plan and falls back to Plans. Lookup
// failures degrade to the free plan rather than failing the request.
func (cfg AuthConfig) resolvePlan(ctx context.Context, userID, email string) string {
	if plan := cache.CachedPlan(ctx, userID); plan != "" {
		return plan
	}
	if cfg.Plans == nil {
		return string(entitlements.PlanFree)
	}
	plan, err := cfg.Plans(userID, email)
	if err != nil {
		log.Errorf("[Auth] Failed to resolve plan of %s: %v", userID, err)
		return string(entitlements.PlanFree)
	}
	plan = string(entitlements.NormalizePlan(plan))
	cache.CachePlan(ctx, userID, plan)
	return plan
}

// Authenticate sets the user context from a Supabase access token. Requests
// without a token continue anonymously; an invalid token is rejected.
func Authenticate(cfg AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := bearerToken(c)
		if err != nil {
			usercontext.Set(c, usercontext.UserContext{Plan: string(entitlements.PlanFree)})
			return c.Next()
		}
		if cfg.Secret == "" {
			log.Error("[Auth] SUPABASE_JWT_SECRET is not configured")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Authentication unavailable"})
		}
		claims, err := cfg.ParseToken(raw)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid access token"})
		}
		usercontext.Set(c, usercontext.UserContext{
			UserID:     claims.Subject,
			Email:      claims.Email,
			IsLoggedIn: true,
			IsAdmin:    cfg.isAdmin(claims.Email),
			Plan:       cfg.resolvePlan(c.UserContext(), claims.Subject, claims.Email),
		})
		return c.Next()
	}
}

// RequireAuth rejects anonymous API calls with 401.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// RequireAdmin ensures a logged-in admin.
func RequireAdmin(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}
	if !uc.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "admin only"})
	}
	return c.Next()
}

// RequireFeature answers 402 when the caller's plan lacks the feature.
func RequireFeature(feature entitlements.Feature) fiber.Handler {
	return func(c *fiber.Ctx) error {
		plan := entitlements.NormalizePlan(usercontext.GetPlan(c))
		if !entitlements.Allows(plan, feature) {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":         "plan_required",
				"message":       "Your plan does not include this feature",
				"feature":       feature,
				"required_plan": entitlements.RequiredPlan(feature),
			})
		}
		return c.Next()
	}
}
