package intake

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-cli/internal/model"
)

// ExistingPolicy decides what happens to a request whose person already has
// a persisted profile in the project.
type ExistingPolicy string

const (
	ExistingOff  ExistingPolicy = "off"
	ExistingWarn ExistingPolicy = "warn"
	ExistingSkip ExistingPolicy = "skip"
)

// ParseExistingPolicy validates a --existing flag value.
func ParseExistingPolicy(s string) (ExistingPolicy, error) {
	switch p := ExistingPolicy(s); p {
	case ExistingOff, ExistingWarn, ExistingSkip:
		return p, nil
	case "":
		return ExistingOff, nil
	default:
		return "", eris.Errorf("intake: unknown existing policy %q (want off, warn or skip)", s)
	}
}

// Finder looks up a persisted profile by case-insensitive name and company.
type Finder interface {
	FindByIdentity(ctx context.Context, projectID, name, company string) (*model.ProfileCard, error)
}

// Skipped is a request dropped by the skip policy.
type Skipped struct {
	Request  model.EnrichmentRequest
	Existing model.ProfileCard
}

func (s Skipped) String() string {
	return fmt.Sprintf("%s (matches %s)", s.Request.Key(), s.Existing.Key)
}

// ApplyExistingPolicy filters reqs against persisted profiles. Off returns
// reqs untouched without querying.
func ApplyExistingPolicy(ctx context.Context, f Finder, reqs []model.EnrichmentRequest, p ExistingPolicy) ([]model.EnrichmentRequest, []Skipped, error) {
	if p == ExistingOff || p == "" {
		return reqs, nil, nil
	}

	kept := make([]model.EnrichmentRequest, 0, len(reqs))
	var skipped []Skipped
	for _, req := range reqs {
		card, err := f.FindByIdentity(ctx, req.ProjectID, req.Name, req.Company)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "intake: check existing %s", req.Key())
		}
		if card == nil {
			kept = append(kept, req)
			continue
		}

		zap.L().Warn("intake: profile already exists",
			zap.String("project", req.ProjectID),
			zap.String("entity", req.Name),
			zap.String("existing", card.Key.Name),
			zap.String("policy", string(p)),
		)
		if p == ExistingSkip {
			skipped = append(skipped, Skipped{Request: req, Existing: *card})
			continue
		}
		kept = append(kept, req)
	}
	return kept, skipped, nil
}
