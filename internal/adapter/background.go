package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/profile-cli/internal/model"
)

const backgroundSystemPrompt = `You are a research assistant that compiles factual professional profiles from public sources.
Answer with a single JSON object and nothing else.`

const backgroundPrompt = `Research the professional background of %s, who works at %s.

Return a JSON object with exactly these keys:
- current_role: string, their current title and employer
- concise_role: string, the title alone in at most five words
- key_achievements: array of strings
- professional_background: string, a short narrative paragraph
- career_history: array of objects with title, company, duration and highlights (array of strings)
- expertise_areas: array of short tag strings
- citations: object mapping citation markers such as "[1]" to source URLs

Use "Information not available" for any field you cannot support with a source.`

// Background researches an entity's career with a text generator and parses
// the answer into a BackgroundPayload. Unparseable answers degrade to
// placeholders; provider errors fail the stage.
type Background struct {
	gen        TextGenerator
	caller     *Caller
	timeout    time.Duration
	strategies []ParseStrategy
}

// NewBackground builds the background adapter.
func NewBackground(gen TextGenerator, caller *Caller, timeout time.Duration) *Background {
	return &Background{
		gen:        gen,
		caller:     caller,
		timeout:    timeout,
		strategies: DefaultStrategies,
	}
}

func (a *Background) Stage() model.Stage { return model.StageBackground }

func (a *Background) Provider() string { return a.gen.Provider() }

func (a *Background) Run(ctx context.Context, req model.EnrichmentRequest) model.StageResult {
	log := logger(req, model.StageBackground, a.Provider())
	start := time.Now()

	prompt := fmt.Sprintf(backgroundPrompt, req.Name, req.Company)
	gen, err := call(ctx, a.caller, a.Provider(), model.StageBackground, a.timeout, func(ctx context.Context) (Generation, error) {
		return a.gen.Generate(ctx, backgroundSystemPrompt, prompt)
	})
	if err != nil {
		log.Error("background: provider call failed", zap.Error(err))
		return failure(ctx, model.StageBackground, a.Provider(), a.timeout, err)
	}

	payload, strategy, ok := ParseBackground(gen.Text, a.strategies)
	if !ok {
		log.Warn("background: unparseable provider text, using placeholders",
			zap.Int("text_len", len(gen.Text)),
			zap.String("text_head", head(gen.Text, 120)),
		)
		payload = DefaultBackground()
	}
	if len(payload.Citations) == 0 {
		payload.Citations = markerCitations(gen.Citations)
	}

	log.Info("background: completed",
		zap.String("strategy", strategy),
		zap.Bool("degraded", payload.Degraded),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return model.BackgroundResult(payload)
}

func head(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
