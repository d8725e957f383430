package model

import "time"

const (
	// NotFound marks image and link fields no stage could fill.
	NotFound = "not found"
	// InfoNotAvailable is the placeholder for narrative fields.
	InfoNotAvailable = "Information not available"
)

// ProfileRecord is the synthesized profile for one entity.
type ProfileRecord struct {
	Name                   string            `json:"name"`
	ProfilePhoto           string            `json:"profile_photo"`
	ProfileImageOptions    []string          `json:"profile_image_options"`
	LinkedInURL            string            `json:"linkedin_url"`
	CurrentRole            string            `json:"current_role"`
	ConciseRole            string            `json:"concise_role"`
	KeyAchievements        []string          `json:"key_achievements"`
	ProfessionalBackground string            `json:"professional_background"`
	CareerHistory          []CareerEntry     `json:"career_history"`
	ExpertiseAreas         []string          `json:"expertise_areas"`
	Citations              map[string]string `json:"citations"`
}

// ProfileCard is a persisted profile row.
type ProfileCard struct {
	ID        string        `json:"id,omitempty"`
	Key       EntityKey     `json:"key"`
	Company   string        `json:"entity_company"`
	Record    ProfileRecord `json:"record"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewProfileCard builds the card persisted for a request.
func NewProfileCard(req EnrichmentRequest, record ProfileRecord) ProfileCard {
	return ProfileCard{
		Key:     req.Key(),
		Company: req.Company,
		Record:  record,
	}
}
