package repository

import (
	"time"

	"github.com/aarontmr/comptalyze-sub003/app/models"
	"gorm.io/gorm"
)

// profileRepository implements the ProfileRepository interface
type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new profile repository instance
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

// GetByUserID retrieves a profile by its Supabase user id
func (r *profileRepository) GetByUserID(userID string) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrCreate returns the profile, creating a free one on first access
func (r *profileRepository) GetOrCreate(userID, email string) (*models.Profile, error) {
	return models.GetOrCreateProfile(r.db, userID, email)
}

// profileSettings are the columns a user edits. Plan, trial, attribution and
// reminder bookkeeping are owned by their own writers.
var profileSettings = []string{
	"company_name", "siret", "address", "activity", "artisan", "acre",
	"versement_liberatoire", "vat_franchise", "iban_enc",
	"declaration_frequency", "reminders_enabled", "updated_at",
}

// Update saves the user-editable settings of the profile
func (r *profileRepository) Update(profile *models.Profile) error {
	res := r.db.Model(profile).Select(profileSettings).Updates(profile)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdatePlan writes the plan column only
func (r *profileRepository) UpdatePlan(userID, plan string) error {
	return r.db.Model(&models.Profile{}).Where("user_id = ?", userID).Update("plan", plan).Error
}

// MarkTrialUsed records the first trial start; later calls keep the original date
func (r *profileRepository) MarkTrialUsed(userID string, at time.Time) error {
	return r.db.Model(&models.Profile{}).
		Where("user_id = ? AND trial_used_at IS NULL", userID).
		Update("trial_used_at", at).Error
}

// SetFirstTouch stores first-touch attribution when none is recorded yet
func (r *profileRepository) SetFirstTouch(userID string, touch *models.AttributionTouch) (bool, error) {
	res := r.db.Model(&models.Profile{}).
		Where("user_id = ? AND first_touch_at IS NULL", userID).
		Updates(map[string]any{
			"first_touch_source":   touch.Source,
			"first_touch_medium":   touch.Medium,
			"first_touch_campaign": touch.Campaign,
			"first_touch_at":       touch.CreatedAt,
		})
	return res.RowsAffected > 0, res.Error
}

// SetLastReminderPeriod remembers which declaration was last reminded
func (r *profileRepository) SetLastReminderPeriod(userID, label string) error {
	return r.db.Model(&models.Profile{}).Where("user_id = ?", userID).Update("last_reminder_period", label).Error
}

// ListReminderCandidates returns profiles with reminders on and one of the given plans
func (r *profileRepository) ListReminderCandidates(plans []string) ([]models.Profile, error) {
	var out []models.Profile
	err := r.db.Where("reminders_enabled = ? AND plan IN ? AND email <> ''", true, plans).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// CountByPlan returns the number of profiles per plan
func (r *profileRepository) CountByPlan() (map[string]int64, error) {
	var rows []struct {
		Plan  string
		Total int64
	}
	if err := r.db.Model(&models.Profile{}).Select("plan, COUNT(*) AS total").Group("plan").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Plan] = row.Total
	}
	return out, nil
}
