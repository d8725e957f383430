package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/profile-cli/internal/model"
)

// ParseStrategy pulls a JSON candidate out of provider text.
type ParseStrategy struct {
	Name    string
	Extract func(text string) (string, bool)
}

// DefaultStrategies are tried in order; the first candidate that decodes
// into a well-shaped payload wins.
var DefaultStrategies = []ParseStrategy{
	{Name: "direct", Extract: extractDirect},
	{Name: "fenced", Extract: extractFenced},
	{Name: "braces", Extract: extractBraces},
}

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

func extractDirect(text string) (string, bool) {
	text = strings.TrimSpace(text)
	return text, text != ""
}

func extractFenced(text string) (string, bool) {
	m := fencePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	body := strings.TrimSpace(m[1])
	return body, body != ""
}

func extractBraces(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// rawBackground tolerates the loose shapes providers return.
type rawBackground struct {
	CurrentRole            *string          `json:"current_role"`
	ConciseRole            string           `json:"concise_role"`
	KeyAchievements        stringList       `json:"key_achievements"`
	ProfessionalBackground *string          `json:"professional_background"`
	CareerHistory          []rawCareerEntry `json:"career_history"`
	ExpertiseAreas         stringList       `json:"expertise_areas"`
	Citations              citationSet      `json:"citations"`
}

type rawCareerEntry struct {
	Title      string     `json:"title"`
	Company    string     `json:"company"`
	Duration   string     `json:"duration"`
	Highlights stringList `json:"highlights"`
}

// stringList accepts a JSON array of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s = strings.TrimSpace(s); s != "" {
			*l = stringList{s}
		}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(stringList, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	*l = out
	return nil
}

// citationSet accepts an object of key to URL or an array of URLs, which is
// keyed by citation marker "[n]".
type citationSet map[string]string

func (c *citationSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var urls []string
		if err := json.Unmarshal(data, &urls); err != nil {
			return err
		}
		*c = markerCitations(urls)
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*c = m
	return nil
}

func markerCitations(urls []string) map[string]string {
	if len(urls) == 0 {
		return nil
	}
	out := make(map[string]string, len(urls))
	for i, u := range urls {
		out[fmt.Sprintf("[%d]", i+1)] = u
	}
	return out
}

// ParseBackground runs the strategies in order and returns the first
// well-shaped payload with the name of the strategy that produced it.
func ParseBackground(text string, strategies []ParseStrategy) (model.BackgroundPayload, string, bool) {
	for _, s := range strategies {
		candidate, ok := s.Extract(text)
		if !ok {
			continue
		}
		payload, ok := decodeBackground(candidate)
		if !ok {
			continue
		}
		payload.Strategy = s.Name
		return payload, s.Name, true
	}
	return model.BackgroundPayload{}, "", false
}

// decodeBackground requires a JSON object with a non-empty current_role or
// professional_background.
func decodeBackground(candidate string) (model.BackgroundPayload, bool) {
	var raw rawBackground
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return model.BackgroundPayload{}, false
	}

	role := trimPtr(raw.CurrentRole)
	background := trimPtr(raw.ProfessionalBackground)
	if role == "" && background == "" {
		return model.BackgroundPayload{}, false
	}

	payload := model.BackgroundPayload{
		CurrentRole:            role,
		ConciseRole:            strings.TrimSpace(raw.ConciseRole),
		KeyAchievements:        []string(raw.KeyAchievements),
		ProfessionalBackground: background,
		ExpertiseAreas:         []string(raw.ExpertiseAreas),
		Citations:              map[string]string(raw.Citations),
	}
	for _, e := range raw.CareerHistory {
		payload.CareerHistory = append(payload.CareerHistory, model.CareerEntry{
			Title:      strings.TrimSpace(e.Title),
			Company:    strings.TrimSpace(e.Company),
			Duration:   strings.TrimSpace(e.Duration),
			Highlights: []string(e.Highlights),
		})
	}
	return payload, true
}

func trimPtr(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// DefaultBackground is the placeholder payload used when no strategy yields
// a usable object.
func DefaultBackground() model.BackgroundPayload {
	return model.BackgroundPayload{
		CurrentRole:            model.InfoNotAvailable,
		KeyAchievements:        []string{model.InfoNotAvailable},
		ProfessionalBackground: model.InfoNotAvailable,
		CareerHistory:          []model.CareerEntry{},
		ExpertiseAreas:         []string{model.InfoNotAvailable},
		Degraded:               true,
	}
}
