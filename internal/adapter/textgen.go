package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/profile-cli/pkg/anthropic"
	"github.com/sells-group/profile-cli/pkg/perplexity"
)

// Generation is raw provider text plus the URLs the provider cited, in
// citation-marker order.
type Generation struct {
	Text      string
	Citations []string
}

// TextGenerator answers a research prompt with free text.
type TextGenerator interface {
	Provider() string
	Generate(ctx context.Context, system, prompt string) (Generation, error)
}

// PerplexityGenerator generates with Perplexity's search-backed models.
type PerplexityGenerator struct {
	client perplexity.Client
}

// NewPerplexityGenerator wraps a Perplexity client.
func NewPerplexityGenerator(client perplexity.Client) *PerplexityGenerator {
	return &PerplexityGenerator{client: client}
}

func (g *PerplexityGenerator) Provider() string { return "perplexity" }

func (g *PerplexityGenerator) Generate(ctx context.Context, system, prompt string) (Generation, error) {
	temp := 0.2
	resp, err := g.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: &temp,
	})
	if err != nil {
		return Generation{}, err
	}
	if len(resp.Choices) == 0 {
		return Generation{}, eris.New("perplexity: no choices in response")
	}
	return Generation{Text: resp.Content(), Citations: resp.Citations}, nil
}

// AnthropicGenerator generates with a Claude model. It has no web access, so
// answers rely on model knowledge and carry no citations.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicGenerator wraps an Anthropic client.
func NewAnthropicGenerator(client anthropic.Client, model string, maxTokens int64) *AnthropicGenerator {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &AnthropicGenerator{client: client, model: model, maxTokens: maxTokens}
}

func (g *AnthropicGenerator) Provider() string { return "anthropic" }

func (g *AnthropicGenerator) Generate(ctx context.Context, system, prompt string) (Generation, error) {
	temp := 0.2
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return Generation{}, err
	}
	return Generation{Text: resp.Text()}, nil
}

// geminiModels is the subset of *genai.Models used here.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator generates with Gemini grounded on Google Search. Grounding
// chunks become citations.
type GeminiGenerator struct {
	models geminiModels
	model  string
}

// NewGeminiGenerator creates a Gemini API client.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, eris.New("gemini: api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, eris.New("gemini: model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &GeminiGenerator{models: client.Models, model: strings.TrimSpace(model)}, nil
}

func (g *GeminiGenerator) Provider() string { return "gemini" }

func (g *GeminiGenerator) Generate(ctx context.Context, system, prompt string) (Generation, error) {
	// Search grounding cannot be combined with a JSON response schema, so the
	// schema lives in the prompt and the text goes through the parse strategies.
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		CandidateCount:    1,
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return Generation{}, &statusError{provider: "gemini", code: apiErr.Code, msg: apiErr.Message}
		}
		return Generation{}, eris.Wrap(err, "gemini: generate content")
	}
	return Generation{Text: resp.Text(), Citations: groundingSources(resp)}, nil
}

func groundingSources(resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	gm := resp.Candidates[0].GroundingMetadata
	if gm == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, chunk := range gm.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		uri := strings.TrimSpace(chunk.Web.URI)
		if uri == "" {
			continue
		}
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		out = append(out, uri)
	}
	return out
}

// statusError carries an HTTP status from SDKs whose error types do not.
type statusError struct {
	provider string
	code     int
	msg      string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.provider, e.code, e.msg)
}

func (e *statusError) HTTPStatus() int { return e.code }
