// Package assistant answers micro-entrepreneur questions with an OpenAI chat
// model. It is reserved to the premium plan and limited per user and day.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/otiai10/openaigo"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics/counter"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/ratelimit"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/validation"
)

const systemPrompt = `Tu es l'assistant de Comptalyze, spécialiste du régime micro-entrepreneur en France.
Tu réponds en français, de façon claire et concise, aux questions sur les cotisations URSSAF,
les déclarations de chiffre d'affaires, la franchise de TVA, le versement libératoire,
l'ACRE, les plafonds du régime et la facturation. Quand une règle dépend de la situation
de l'utilisateur, dis-le et indique ce qu'il faut vérifier. Tu ne donnes pas de conseil
juridique personnalisé et tu recommandes un expert-comptable pour les cas complexes.`

var (
	ErrNotConfigured = errors.New("assistant is not configured")
	ErrDailyLimit    = errors.New("daily assistant limit reached")
	ErrEmptyAnswer   = errors.New("assistant returned no answer")
)

// Completer sends a system prompt and a question to a chat model.
type Completer interface {
	Complete(ctx context.Context, system, question string) (string, error)
}

// OpenAICompleter calls the chat completion API through openaigo.
type OpenAICompleter struct {
	client    *openaigo.Client
	model     string
	maxTokens int
}

func NewOpenAICompleter(apiKey, baseURL, model string) *OpenAICompleter {
	client := openaigo.NewClient(apiKey)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &OpenAICompleter{client: client, model: model, maxTokens: 700}
}

// NewOpenAICompleterFromEnv returns nil when OPENAI_API_KEY is unset.
func NewOpenAICompleterFromEnv() *OpenAICompleter {
	key := env.GetEnv("OPENAI_API_KEY", "")
	if key == "" {
		return nil
	}
	return NewOpenAICompleter(key, env.GetEnv("OPENAI_BASE_URL", ""), env.GetEnv("OPENAI_MODEL", "gpt-4o-mini"))
}

func (c *OpenAICompleter) Complete(ctx context.Context, system, question string) (string, error) {
	resp, err := c.client.Chat(ctx, openaigo.ChatRequest{
		Model: c.model,
		Messages: []openaigo.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: question},
		},
		MaxTokens:   c.maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyAnswer
	}
	return resp.Choices[0].Message.Content, nil
}

// Question is the body of an assistant request.
type Question struct {
	Question string `json:"question" validate:"required,min=3,max=2000"`
}

// Answer is returned to the user with their remaining daily budget.
type Answer struct {
	Answer    string    `json:"answer"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

type Service struct {
	completer Completer
	limiter   ratelimit.Limiter
	validate  *validator.Validate
}

// DailyRule returns the per-user daily quota from ASSISTANT_DAILY_LIMIT.
func DailyRule() ratelimit.Rule {
	return ratelimit.Rule{Limit: env.GetEnvInt("ASSISTANT_DAILY_LIMIT", 20), Window: 24 * time.Hour}
}

// NewService wires the assistant. A nil limiter disables the quota.
func NewService(completer Completer, limiter ratelimit.Limiter) *Service {
	return &Service{completer: completer, limiter: limiter, validate: validation.New()}
}

// profileContext describes the user's situation to the model.
func profileContext(p *models.Profile) string {
	if p == nil {
		return ""
	}
	var parts []string
	if p.Activity != "" {
		parts = append(parts, "activité "+p.Activity)
	}
	if p.ACRE {
		parts = append(parts, "bénéficiaire de l'ACRE")
	}
	if p.VersementLiberatoire {
		parts = append(parts, "a opté pour le versement libératoire")
	}
	if p.VATFranchise {
		parts = append(parts, "en franchise de TVA")
	}
	if p.DeclarationFrequency != "" {
		parts = append(parts, "déclaration "+map[string]string{
			models.DeclarationMonthly:   "mensuelle",
			models.DeclarationQuarterly: "trimestrielle",
		}[p.DeclarationFrequency])
	}
	if len(parts) == 0 {
		return ""
	}
	return "\nSituation de l'utilisateur : " + strings.Join(parts, ", ") + "."
}

// Ask answers a question for a premium user.
func (s *Service) Ask(ctx context.Context, userID, plan string, profile *models.Profile, q Question) (*Answer, error) {
	if err := entitlements.Require(plan, entitlements.FeatureAssistant); err != nil {
		return nil, err
	}
	if s.completer == nil {
		return nil, ErrNotConfigured
	}
	if err := s.validate.Struct(q); err != nil {
		return nil, err
	}

	out := &Answer{Remaining: -1}
	if s.limiter != nil {
		res, err := s.limiter.Allow(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !res.Allowed {
			metrics.RateLimited.WithLabelValues("assistant").Inc()
			return nil, fmt.Errorf("%w: %d questions per day", ErrDailyLimit, res.Limit)
		}
		out.Remaining = res.Remaining
		out.ResetAt = res.ResetAt
	}

	timer := prometheus.NewTimer(metrics.AssistantLatency)
	answer, err := s.completer.Complete(ctx, systemPrompt+profileContext(profile), strings.TrimSpace(q.Question))
	timer.ObserveDuration()
	if err != nil {
		log.Errorf("[Assistant] Completion failed for user %s: %v", userID, err)
		return nil, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, ErrEmptyAnswer
	}
	if err := counter.Add(ctx, counter.KindAssistant); err != nil {
		log.Warnf("[Assistant] Failed to count usage: %v", err)
	}
	out.Answer = answer
	return out, nil
}
