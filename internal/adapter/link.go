package adapter

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/profile-cli/internal/model"
	"github.com/sells-group/profile-cli/pkg/jina"
)

const (
	jinaProvider = "jina"
	linkSite     = "linkedin.com"
	linkHits     = 10
)

var profileURLPattern = regexp.MustCompile(`(?i)^https?://([a-z]{2,3}\.)?(www\.)?linkedin\.com/in/[^/?#\s]+/?`)

// Link looks for the entity's public LinkedIn profile. A search without a
// matching profile is a benign empty result, not a failure.
type Link struct {
	client  jina.Client
	caller  *Caller
	timeout time.Duration
}

// NewLink builds the link-discovery adapter.
func NewLink(client jina.Client, caller *Caller, timeout time.Duration) *Link {
	return &Link{client: client, caller: caller, timeout: timeout}
}

func (a *Link) Stage() model.Stage { return model.StageLink }

func (a *Link) Provider() string { return jinaProvider }

func (a *Link) Run(ctx context.Context, req model.EnrichmentRequest) model.StageResult {
	log := logger(req, model.StageLink, jinaProvider)

	query := req.Name + " " + req.Company
	resp, err := call(ctx, a.caller, jinaProvider, model.StageLink, a.timeout, func(ctx context.Context) (*jina.SearchResponse, error) {
		return a.client.Search(ctx, query, jina.WithSiteFilter(linkSite), jina.WithNum(linkHits))
	})
	if err != nil {
		log.Error("link: search failed", zap.Error(err))
		return failure(ctx, model.StageLink, jinaProvider, a.timeout, err)
	}

	payload, ok := MatchProfile(resp.Data, req.Name, req.Company)
	log.Info("link: completed", zap.Int("results", len(resp.Data)), zap.Bool("matched", ok))
	return model.LinkResult(payload)
}

// MatchProfile returns the first result that is a LinkedIn profile URL and
// whose text mentions both name and company, compared case-folded.
func MatchProfile(results []jina.SearchResult, name, company string) (model.LinkPayload, bool) {
	fold := cases.Fold()
	wantName := fold.String(strings.TrimSpace(name))
	wantCompany := fold.String(strings.TrimSpace(company))
	if wantName == "" || wantCompany == "" {
		return model.LinkPayload{}, false
	}

	for _, r := range results {
		m := profileURLPattern.FindString(strings.TrimSpace(r.URL))
		if m == "" {
			continue
		}
		text := fold.String(r.Snippet())
		if strings.Contains(text, wantName) && strings.Contains(text, wantCompany) {
			return model.LinkPayload{URL: strings.TrimSuffix(m, "/"), Snippet: strings.TrimSpace(r.Title)}, true
		}
	}
	return model.LinkPayload{}, false
}
