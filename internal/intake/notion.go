package intake

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-cli/internal/model"
	"github.com/sells-group/profile-cli/pkg/notion"
)

// Queue page property names.
const (
	propName    = "Name"
	propCompany = "Company"
	propProject = "Project"
	propStages  = "Stages"
)

// FromNotion reads every Queued page of the queue database. Pages missing a
// name or company are skipped with a warning.
func FromNotion(ctx context.Context, c notion.Client, dbID string, d Defaults) ([]model.EnrichmentRequest, error) {
	pages, err := notion.QueryQueued(ctx, c, dbID)
	if err != nil {
		return nil, eris.Wrap(err, "intake: notion queue")
	}

	reqs := make([]model.EnrichmentRequest, 0, len(pages))
	for _, page := range pages {
		name := notion.PlainText(page, propName)
		company := notion.PlainText(page, propCompany)
		if name == "" || company == "" {
			zap.L().Warn("intake: skipping incomplete notion page", zap.String("page_id", string(page.ID)))
			continue
		}
		req, err := build(name, company, notion.PlainText(page, propProject),
			strings.Join(notion.MultiSelect(page, propStages), ","), d)
		if err != nil {
			zap.L().Warn("intake: skipping notion page", zap.String("page_id", string(page.ID)), zap.Error(err))
			continue
		}
		req.NotionPageID = string(page.ID)
		reqs = append(reqs, req)
	}
	return reqs, nil
}
