// Package synth merges an entity's stage results into one ProfileRecord.
package synth

import (
	"fmt"
	"strings"

	"github.com/sells-group/profile-cli/internal/model"
)

// LinkCitationKey is the citation key for the discovered profile link.
const LinkCitationKey = "linkedin"

// Synthesize builds the record for req from whatever stage results are
// available. It never fails: missing, failed or degraded stages fall back to
// sentinels and a stand-in narrative derived from the name and company.
func Synthesize(req model.EnrichmentRequest, results map[model.Stage]model.StageResult) model.ProfileRecord {
	rec := model.ProfileRecord{
		Name:                req.Name,
		ProfilePhoto:        model.NotFound,
		ProfileImageOptions: []string{},
		LinkedInURL:         model.NotFound,
		Citations:           map[string]string{},
	}

	images := payloadImages(results)
	if images != nil {
		rec.ProfileImageOptions = append(rec.ProfileImageOptions, images.URLs...)
	}
	switch {
	case strings.TrimSpace(req.SelectedImage) != "":
		rec.ProfilePhoto = strings.TrimSpace(req.SelectedImage)
		if !contains(rec.ProfileImageOptions, rec.ProfilePhoto) {
			rec.ProfileImageOptions = append([]string{rec.ProfilePhoto}, rec.ProfileImageOptions...)
		}
	case images.Primary() != "":
		rec.ProfilePhoto = images.Primary()
	}

	if r, ok := results[model.StageLink]; ok && r.OK() && r.Link != nil && r.Link.URL != "" {
		rec.LinkedInURL = r.Link.URL
	}

	bg := narrative(req, results)
	rec.CurrentRole = bg.CurrentRole
	rec.ConciseRole = bg.ConciseRole
	if rec.ConciseRole == "" {
		rec.ConciseRole = rec.CurrentRole
	}
	rec.KeyAchievements = bg.KeyAchievements
	rec.ProfessionalBackground = bg.ProfessionalBackground
	rec.CareerHistory = bg.CareerHistory
	rec.ExpertiseAreas = bg.ExpertiseAreas

	mergeCitations(rec.Citations, results)
	return rec
}

func payloadImages(results map[model.Stage]model.StageResult) *model.ImagePayload {
	r, ok := results[model.StageImage]
	if !ok || !r.OK() {
		return nil
	}
	return r.Images
}

// narrative returns the background payload when it is usable, otherwise the
// stand-in.
func narrative(req model.EnrichmentRequest, results map[model.Stage]model.StageResult) model.BackgroundPayload {
	r, ok := results[model.StageBackground]
	if ok && r.OK() && r.Background != nil && !r.Background.Degraded {
		bg := *r.Background
		fill := StandIn(req)
		if strings.TrimSpace(bg.CurrentRole) == "" {
			bg.CurrentRole = fill.CurrentRole
		}
		if strings.TrimSpace(bg.ProfessionalBackground) == "" {
			bg.ProfessionalBackground = fill.ProfessionalBackground
		}
		if len(bg.KeyAchievements) == 0 {
			bg.KeyAchievements = fill.KeyAchievements
		}
		if len(bg.CareerHistory) == 0 {
			bg.CareerHistory = fill.CareerHistory
		}
		if len(bg.ExpertiseAreas) == 0 {
			bg.ExpertiseAreas = fill.ExpertiseAreas
		}
		return bg
	}
	return StandIn(req)
}

// StandIn is the minimal narrative used when no usable background exists. It
// says nothing beyond the entity's name and company.
func StandIn(req model.EnrichmentRequest) model.BackgroundPayload {
	return model.BackgroundPayload{
		CurrentRole:            fmt.Sprintf("Professional at %s", req.Company),
		KeyAchievements:        []string{model.InfoNotAvailable},
		ProfessionalBackground: fmt.Sprintf("%s is associated with %s. %s.", req.Name, req.Company, model.InfoNotAvailable),
		CareerHistory: []model.CareerEntry{{
			Title:      model.InfoNotAvailable,
			Company:    req.Company,
			Duration:   model.InfoNotAvailable,
			Highlights: []string{},
		}},
		ExpertiseAreas: []string{model.InfoNotAvailable},
	}
}

// mergeCitations unions citations in a fixed order; later stages overwrite
// earlier ones on key collision, and background goes last.
func mergeCitations(dst map[string]string, results map[model.Stage]model.StageResult) {
	if r, ok := results[model.StageIdentity]; ok && r.OK() && r.Identity != nil {
		for i, src := range r.Identity.Sources {
			if src.URL != "" {
				dst[fmt.Sprintf("identity_%d", i+1)] = src.URL
			}
		}
	}
	if images := payloadImages(results); images != nil {
		for i, u := range images.URLs {
			if page := images.Sources[u]; page != "" {
				dst[fmt.Sprintf("image_%d", i+1)] = page
			}
		}
	}
	if r, ok := results[model.StageLink]; ok && r.OK() && r.Link != nil && r.Link.URL != "" {
		dst[LinkCitationKey] = r.Link.URL
	}
	if r, ok := results[model.StageBackground]; ok && r.OK() && r.Background != nil {
		for k, v := range r.Background.Citations {
			dst[k] = v
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
