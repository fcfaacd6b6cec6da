package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	PlanFree    = "free"
	PlanPro     = "pro"
	PlanPremium = "premium"
)

const (
	DeclarationMonthly   = "monthly"
	DeclarationQuarterly = "quarterly"
)

// Profile holds the application-side data of a Supabase user: plan, company
// identity used on invoices, URSSAF preferences and first-touch attribution.
type Profile struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	UserID               string         `gorm:"type:varchar(64);uniqueIndex" json:"user_id"`
	Email                string         `gorm:"type:varchar(200);default:''" json:"email" validate:"omitempty,email,max=200"`
	Plan                 string         `gorm:"type:varchar(50);default:'free';index" json:"plan"`
	TrialUsedAt          *time.Time     `gorm:"type:timestamp;default:null" json:"trial_used_at,omitempty"`
	CompanyName          string         `gorm:"type:varchar(200);default:''" json:"company_name" validate:"max=200"`
	SIRET                string         `gorm:"column:siret;type:varchar(14);default:''" json:"siret" validate:"omitempty,numeric,len=14"`
	Address              string         `gorm:"type:text" json:"address" validate:"max=500"`
	Activity             string         `gorm:"type:varchar(20);default:'services_bic'" json:"activity" validate:"omitempty,oneof=vente services_bic liberal_bnc liberal_cipav"`
	Artisan              bool           `gorm:"default:false" json:"artisan"`
	ACRE                 bool           `gorm:"column:acre;default:false" json:"acre"`
	VersementLiberatoire bool           `gorm:"default:false" json:"versement_liberatoire"`
	VATFranchise         bool           `gorm:"column:vat_franchise;default:true" json:"vat_franchise"`
	IBANEnc              string         `gorm:"column:iban_enc;type:text" json:"-"`
	DeclarationFrequency string         `gorm:"type:varchar(16);default:'monthly'" json:"declaration_frequency" validate:"omitempty,oneof=monthly quarterly"`
	RemindersEnabled     bool           `gorm:"default:true" json:"reminders_enabled"`
	LastReminderPeriod   string         `gorm:"type:varchar(7);default:''" json:"-"`
	FirstTouchSource     string         `gorm:"type:varchar(100);default:''" json:"first_touch_source"`
	FirstTouchMedium     string         `gorm:"type:varchar(100);default:''" json:"first_touch_medium"`
	FirstTouchCampaign   string         `gorm:"type:varchar(150);default:''" json:"first_touch_campaign"`
	FirstTouchAt         *time.Time     `gorm:"type:timestamp;default:null" json:"first_touch_at,omitempty"`
	CreatedAt            time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Profile) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// TrialAvailable reports whether the user may still start a trial.
func (p *Profile) TrialAvailable() bool {
	return p != nil && p.TrialUsedAt == nil
}

// HasFirstTouch reports whether first-touch attribution is already recorded.
func (p *Profile) HasFirstTouch() bool {
	return p != nil && p.FirstTouchAt != nil
}

// GetOrCreateProfile returns the existing profile or creates one on the free plan.
func GetOrCreateProfile(db *gorm.DB, userID, email string) (*Profile, error) {
	var p Profile
	err := db.Where("user_id = ?", userID).First(&p).Error
	if err == nil {
		if email != "" && p.Email != email {
			p.Email = email
			if err := db.Model(&p).Update("email", email).Error; err != nil {
				return nil, err
			}
		}
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	p = Profile{
		UserID:               userID,
		Email:                email,
		Plan:                 PlanFree,
		Activity:             "services_bic",
		VATFranchise:         true,
		DeclarationFrequency: DeclarationMonthly,
		RemindersEnabled:     true,
	}
	if err := db.Create(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
