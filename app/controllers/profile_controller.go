package controllers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"github.com/aarontmr/comptalyze-sub003/app/repository"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/entitlements"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/records"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/security"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/validation"
)

// ProfileUpdate is a partial update; absent fields keep their value. An empty
// iban removes the stored one.
type ProfileUpdate struct {
	CompanyName          *string `json:"company_name" validate:"omitempty,max=200"`
	SIRET                *string `json:"siret" validate:"omitempty,numeric,len=14"`
	Address              *string `json:"address" validate:"omitempty,max=500"`
	Activity             *string `json:"activity" validate:"omitempty,oneof=vente services_bic liberal_bnc liberal_cipav"`
	Artisan              *bool   `json:"artisan"`
	ACRE                 *bool   `json:"acre"`
	VersementLiberatoire *bool   `json:"versement_liberatoire"`
	VATFranchise         *bool   `json:"vat_franchise"`
	IBAN                 *string `json:"iban" validate:"omitempty,min=15,max=42"`
	DeclarationFrequency *string `json:"declaration_frequency" validate:"omitempty,oneof=monthly quarterly"`
	RemindersEnabled     *bool   `json:"reminders_enabled"`
}

// ProfileController reads and edits the caller's profile.
type ProfileController struct {
	profiles repository.ProfileRepository
	cipher   *security.FieldCipher
	records  *records.Service
	validate *validator.Validate
	now      func() time.Time
}

func NewProfileController(profiles repository.ProfileRepository, cipher *security.FieldCipher, recs *records.Service) *ProfileController {
	return &ProfileController{profiles: profiles, cipher: cipher, records: recs, validate: validation.New(), now: time.Now}
}

func (pc *ProfileController) response(p *models.Profile) fiber.Map {
	masked := ""
	if p.IBANEnc != "" && pc.cipher != nil {
		if iban, err := pc.cipher.Decrypt(p.IBANEnc); err == nil {
			masked = security.MaskIBAN(iban)
		} else {
			log.Warnf("[Profile] Failed to decrypt IBAN of %s: %v", p.UserID, err)
		}
	}
	plan := entitlements.NormalizePlan(p.Plan)
	return fiber.Map{
		"profile":       p,
		"iban_masked":   masked,
		"features":      entitlements.Features(plan),
		"monthly_quota": entitlements.MonthlyRecordQuota(plan),
		"trial_used_at": formatTimePtr(p.TrialUsedAt),
	}
}

func (pc *ProfileController) HandleGet(c *fiber.Ctx) error {
	user := currentUser(c)
	p, err := pc.profiles.GetOrCreate(user.UserID, user.Email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(pc.response(p))
}

// HandleUpdate saves the profile. When URSSAF options change, the current
// year's records are recomputed.
func (pc *ProfileController) HandleUpdate(c *fiber.Ctx) error {
	user := currentUser(c)
	var req ProfileUpdate
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := pc.validate.Struct(req); err != nil {
		return respondError(c, err)
	}
	p, err := pc.profiles.GetOrCreate(user.UserID, user.Email)
	if err != nil {
		return respondError(c, err)
	}
	before := [4]any{p.Activity, p.Artisan, p.ACRE, p.VersementLiberatoire}

	setString(&p.CompanyName, req.CompanyName)
	setString(&p.SIRET, req.SIRET)
	setString(&p.Address, req.Address)
	setString(&p.Activity, req.Activity)
	setString(&p.DeclarationFrequency, req.DeclarationFrequency)
	setBool(&p.Artisan, req.Artisan)
	setBool(&p.ACRE, req.ACRE)
	setBool(&p.VersementLiberatoire, req.VersementLiberatoire)
	setBool(&p.VATFranchise, req.VATFranchise)
	setBool(&p.RemindersEnabled, req.RemindersEnabled)

	if req.IBAN != nil {
		iban := security.NormalizeIBAN(*req.IBAN)
		switch {
		case iban == "":
			p.IBANEnc = ""
		case pc.cipher == nil:
			return jsonError(c, fiber.StatusServiceUnavailable, "unavailable", "Encryption is not configured")
		default:
			enc, err := pc.cipher.Encrypt(iban)
			if err != nil {
				return respondError(c, err)
			}
			p.IBANEnc = enc
		}
	}

	if err := p.Validate(); err != nil {
		return respondError(c, err)
	}
	if err := pc.profiles.Update(p); err != nil {
		return respondError(c, err)
	}

	after := [4]any{p.Activity, p.Artisan, p.ACRE, p.VersementLiberatoire}
	if before != after && pc.records != nil {
		if n, err := pc.records.RecomputeYear(c.UserContext(), p.UserID, pc.now().Year()); err != nil {
			log.Errorf("[Profile] Failed to recompute records of %s: %v", p.UserID, err)
		} else if n > 0 {
			log.Infof("[Profile] Recomputed %d records of %s", n, p.UserID)
		}
	}
	return c.JSON(pc.response(p))
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
