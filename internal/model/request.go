package model

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

// EntityKey identifies at most one persisted profile.
type EntityKey struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"entity_name"`
}

func (k EntityKey) String() string {
	return k.ProjectID + "/" + k.Name
}

// EnrichmentRequest is one entity submitted in a batch. It is immutable once
// submitted.
type EnrichmentRequest struct {
	ProjectID string    `json:"project_id" yaml:"project_id"`
	Name      string    `json:"entity_name" yaml:"name"`
	Company   string    `json:"entity_company" yaml:"company"`
	Mask      StageMask `json:"stages" yaml:"-"`

	// SelectedImage is an explicit, previously chosen profile image. It takes
	// precedence over image search results during synthesis.
	SelectedImage string `json:"selected_image,omitempty" yaml:"selected_image,omitempty"`

	// NotionPageID is set when the request was read from a Notion queue.
	NotionPageID string `json:"notion_page_id,omitempty" yaml:"-"`
}

// Key returns the upsert key for this request.
func (r EnrichmentRequest) Key() EntityKey {
	return EntityKey{ProjectID: r.ProjectID, Name: r.Name}
}

// Validate checks that the identity fields and stage mask are usable.
func (r EnrichmentRequest) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return eris.New("model: project_id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return eris.New("model: entity_name is required")
	}
	if strings.TrimSpace(r.Company) == "" {
		return eris.Errorf("model: entity_company is required for %q", r.Name)
	}
	if r.Mask.Empty() {
		return eris.Errorf("model: no stages enabled for %q", r.Name)
	}
	return nil
}

// MatchKey folds name and company into the key used to find an existing
// profile for the same person regardless of case or surrounding space.
func MatchKey(name, company string) string {
	fold := cases.Fold()
	return fold.String(strings.Join(strings.Fields(name), " ")) + "|" +
		fold.String(strings.Join(strings.Fields(company), " "))
}
