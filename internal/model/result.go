package model

// CareerEntry is one position in a career history.
type CareerEntry struct {
	Title      string   `json:"title"`
	Company    string   `json:"company"`
	Duration   string   `json:"duration"`
	Highlights []string `json:"highlights"`
}

// BackgroundPayload is the normalized output of the background-search stage.
type BackgroundPayload struct {
	CurrentRole            string            `json:"current_role"`
	ConciseRole            string            `json:"concise_role,omitempty"`
	KeyAchievements        []string          `json:"key_achievements"`
	ProfessionalBackground string            `json:"professional_background"`
	CareerHistory          []CareerEntry     `json:"career_history"`
	ExpertiseAreas         []string          `json:"expertise_areas"`
	Citations              map[string]string `json:"citations,omitempty"`

	// Degraded is set when the provider text could not be parsed and the
	// payload holds placeholders.
	Degraded bool `json:"degraded,omitempty"`
	// Strategy names the parse strategy that produced the payload.
	Strategy string `json:"strategy,omitempty"`
}

// Source is a search hit kept for citation purposes.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// IdentityPayload is the normalized output of the identity-search stage.
type IdentityPayload struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources,omitempty"`
	Found   bool     `json:"found"`
}

// ImagePayload is the ranked output of the image-search stage. The first
// URL is the default primary image.
type ImagePayload struct {
	URLs []string `json:"urls"`
	// Sources maps an image URL to the page it was found on.
	Sources map[string]string `json:"sources,omitempty"`
}

// Primary returns the default image, or "" when none was found.
func (p *ImagePayload) Primary() string {
	if p == nil || len(p.URLs) == 0 {
		return ""
	}
	return p.URLs[0]
}

// LinkPayload is the output of the link-discovery stage. An empty URL is the
// benign "no match" result.
type LinkPayload struct {
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Failure describes why a stage produced no payload.
type Failure struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	// Kind is "transient" or "permanent".
	Kind string `json:"kind,omitempty"`
}

// StageResult is the tagged union produced by exactly one adapter for one
// (entity, stage) pair. Exactly one payload pointer or Failure is set.
type StageResult struct {
	Stage      Stage              `json:"stage"`
	Background *BackgroundPayload `json:"background,omitempty"`
	Identity   *IdentityPayload   `json:"identity,omitempty"`
	Images     *ImagePayload      `json:"images,omitempty"`
	Link       *LinkPayload       `json:"link,omitempty"`
	Failure    *Failure           `json:"failure,omitempty"`
}

// OK reports whether the stage produced a payload.
func (r StageResult) OK() bool {
	return r.Failure == nil
}

// Status maps the result onto its terminal stage status.
func (r StageResult) Status() StageStatus {
	if r.OK() {
		return StatusCompleted
	}
	return StatusError
}

// Message returns the failure message, if any.
func (r StageResult) Message() string {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Message
}

// BackgroundResult wraps a background payload.
func BackgroundResult(p BackgroundPayload) StageResult {
	return StageResult{Stage: StageBackground, Background: &p}
}

// IdentityResult wraps an identity payload.
func IdentityResult(p IdentityPayload) StageResult {
	return StageResult{Stage: StageIdentity, Identity: &p}
}

// ImageResult wraps an image payload.
func ImageResult(p ImagePayload) StageResult {
	return StageResult{Stage: StageImage, Images: &p}
}

// LinkResult wraps a link payload.
func LinkResult(p LinkPayload) StageResult {
	return StageResult{Stage: StageLink, Link: &p}
}

// Failed builds a failure result for the stage.
func Failed(stage Stage, kind, message string) StageResult {
	return StageResult{
		Stage:   stage,
		Failure: &Failure{Stage: stage, Message: message, Kind: kind},
	}
}
