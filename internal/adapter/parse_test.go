package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-cli/internal/model"
)

const validBackground = `{
  "current_role": "CEO at Acme",
  "concise_role": "CEO",
  "key_achievements": ["Grew revenue 3x", "Led IPO"],
  "professional_background": "Jane Doe has led Acme since 2015.",
  "career_history": [
    {"title": "CEO", "company": "Acme", "duration": "2015-present", "highlights": ["IPO"]},
    {"title": "VP Sales", "company": "Globex", "duration": "2010-2015", "highlights": "Built the team"}
  ],
  "expertise_areas": ["Leadership", "SaaS"],
  "citations": {"[1]": "https://acme.example/about"}
}`

func TestParseBackground_Strategies(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		text     string
		strategy string
	}{
		{name: "direct", text: validBackground, strategy: "direct"},
		{name: "fenced", text: "Here you go:\n```json\n" + validBackground + "\n```\nHope that helps.", strategy: "fenced"},
		{name: "fenced_no_lang", text: "```\n" + validBackground + "\n```", strategy: "fenced"},
		{name: "braces", text: "Sure! " + validBackground + " Let me know.", strategy: "braces"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			payload, strategy, ok := ParseBackground(tc.text, DefaultStrategies)
			require.True(t, ok)
			assert.Equal(t, tc.strategy, strategy)
			assert.Equal(t, "CEO at Acme", payload.CurrentRole)
			assert.Len(t, payload.KeyAchievements, 2)
			require.Len(t, payload.CareerHistory, 2)
			assert.Equal(t, []string{"Built the team"}, payload.CareerHistory[1].Highlights)
			assert.Equal(t, "https://acme.example/about", payload.Citations["[1]"])
			assert.False(t, payload.Degraded)
		})
	}
}

func TestParseBackground_Rejects(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"empty":          "",
		"prose":          "I could not find anything about this person.",
		"array":          `["not", "an", "object"]`,
		"missing_fields": `{"expertise_areas": ["x"]}`,
		"blank_fields":   `{"current_role": "  ", "professional_background": ""}`,
		"truncated":      `{"current_role": "CEO"`,
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, _, ok := ParseBackground(text, DefaultStrategies)
			assert.False(t, ok)
		})
	}
}

func TestParseBackground_CitationArray(t *testing.T) {
	t.Parallel()
	text := `{"current_role": "CTO", "citations": ["https://a.example", "https://b.example"]}`
	payload, _, ok := ParseBackground(text, DefaultStrategies)
	require.True(t, ok)
	assert.Equal(t, map[string]string{
		"[1]": "https://a.example",
		"[2]": "https://b.example",
	}, payload.Citations)
}

func TestParseBackground_CustomStrategies(t *testing.T) {
	t.Parallel()
	only := []ParseStrategy{{Name: "direct", Extract: extractDirect}}
	_, _, ok := ParseBackground("```json\n"+validBackground+"\n```", only)
	assert.False(t, ok)
}

func TestDefaultBackground(t *testing.T) {
	t.Parallel()
	p := DefaultBackground()
	assert.True(t, p.Degraded)
	assert.Equal(t, model.InfoNotAvailable, p.CurrentRole)
	assert.Equal(t, model.InfoNotAvailable, p.ProfessionalBackground)
	assert.Equal(t, []string{model.InfoNotAvailable}, p.KeyAchievements)
	assert.NotNil(t, p.CareerHistory)
}
