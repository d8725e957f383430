package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/profile-cli/internal/model"
	"github.com/sells-group/profile-cli/pkg/google"
)

const (
	googleProvider = "google"
	noIdentityData = "No data found"
	identityHits   = 5
)

// Identity runs a web search for "<name>" "<company>" and keeps the snippets
// and their pages as raw identity text. An empty search or a failing provider
// yields the benign "No data found" payload; only cancellation fails the stage.
type Identity struct {
	client  google.Client
	caller  *Caller
	timeout time.Duration
}

// NewIdentity builds the identity adapter.
func NewIdentity(client google.Client, caller *Caller, timeout time.Duration) *Identity {
	return &Identity{client: client, caller: caller, timeout: timeout}
}

func (a *Identity) Stage() model.Stage { return model.StageIdentity }

func (a *Identity) Provider() string { return googleProvider }

func (a *Identity) Run(ctx context.Context, req model.EnrichmentRequest) model.StageResult {
	log := logger(req, model.StageIdentity, googleProvider)

	query := fmt.Sprintf("%q %q", req.Name, req.Company)
	resp, err := call(ctx, a.caller, googleProvider, model.StageIdentity, a.timeout, func(ctx context.Context) (*google.SearchResponse, error) {
		return a.client.Search(ctx, query, google.WithNum(identityHits))
	})
	if err != nil {
		if ctx.Err() != nil {
			return failure(ctx, model.StageIdentity, googleProvider, a.timeout, err)
		}
		log.Warn("identity: search failed, recording no data", zap.Error(err))
		return model.IdentityResult(model.IdentityPayload{Text: noIdentityData})
	}

	payload := identityFromItems(resp.Items)
	log.Info("identity: completed", zap.Int("sources", len(payload.Sources)), zap.Bool("found", payload.Found))
	return model.IdentityResult(payload)
}

func identityFromItems(items []google.Item) model.IdentityPayload {
	var (
		b       strings.Builder
		sources []model.Source
	)
	for _, it := range items {
		snippet := strings.TrimSpace(it.Snippet)
		if snippet == "" && strings.TrimSpace(it.Title) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimSpace(it.Title))
		if snippet != "" {
			b.WriteString("\n")
			b.WriteString(snippet)
		}
		if it.Link != "" {
			sources = append(sources, model.Source{Title: strings.TrimSpace(it.Title), URL: it.Link})
		}
	}
	if b.Len() == 0 {
		return model.IdentityPayload{Text: noIdentityData}
	}
	return model.IdentityPayload{Text: b.String(), Sources: sources, Found: true}
}
