// Package store persists synthesized profile cards.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-cli/internal/db"
	"github.com/sells-group/profile-cli/internal/model"
)

// ErrNotFound is returned when no card exists for a key.
var ErrNotFound = eris.New("store: profile not found")

// Gateway is the persistence boundary the orchestrator writes through.
// Upsert is keyed by (project_id, entity_name) with overwrite semantics, so
// repeating it with the same card leaves exactly one row.
type Gateway interface {
	Upsert(ctx context.Context, card model.ProfileCard) error
}

// Store is the full persistence interface used by the CLI and HTTP API.
type Store interface {
	Gateway

	GetProfile(ctx context.Context, key model.EntityKey) (*model.ProfileCard, error)
	// FindByIdentity looks up a card by project and case-folded name and
	// company. It returns nil when there is none.
	FindByIdentity(ctx context.Context, projectID, name, company string) (*model.ProfileCard, error)
	ListProfiles(ctx context.Context, projectID string) ([]model.ProfileCard, error)
	// SelectImage sets the profile photo of an existing card, adding it to
	// the image options when absent.
	SelectImage(ctx context.Context, key model.EntityKey, imageURL string) (*model.ProfileCard, error)

	Migrate(ctx context.Context) error
	Close() error
}

const cardsTable = "profile_cards"

var cardColumns = []string{"id", "project_id", "entity_name", "entity_company", "match_key", "profile_photo", "record", "updated_at"}

func upsertSQL(p db.Placeholder) string {
	sql, err := db.BuildUpsert(db.UpsertConfig{
		Table:        cardsTable,
		Columns:      cardColumns,
		ConflictKeys: []string{"project_id", "entity_name"},
		UpdateCols:   []string{"entity_company", "match_key", "profile_photo", "record", "updated_at"},
		Placeholder:  p,
	})
	if err != nil {
		panic(err)
	}
	return sql
}

// cardRow is the column view of a card.
type cardRow struct {
	id, projectID, name, company, matchKey, photo string
	record                                        []byte
	updatedAt                                     time.Time
}

func toRow(card model.ProfileCard, now time.Time) (cardRow, error) {
	if strings.TrimSpace(card.Key.ProjectID) == "" || strings.TrimSpace(card.Key.Name) == "" {
		return cardRow{}, eris.New("store: project_id and entity_name are required")
	}
	record, err := json.Marshal(card.Record)
	if err != nil {
		return cardRow{}, eris.Wrap(err, "store: marshal record")
	}
	id := card.ID
	if id == "" {
		id = uuid.New().String()
	}
	return cardRow{
		id:        id,
		projectID: card.Key.ProjectID,
		name:      card.Key.Name,
		company:   card.Company,
		matchKey:  model.MatchKey(card.Key.Name, card.Company),
		photo:     card.Record.ProfilePhoto,
		record:    record,
		updatedAt: now,
	}, nil
}

func (r cardRow) args() []any {
	return []any{r.id, r.projectID, r.name, r.company, r.matchKey, r.photo, string(r.record), r.updatedAt}
}

func fromRow(id, projectID, name, company string, record []byte, updatedAt time.Time) (*model.ProfileCard, error) {
	card := &model.ProfileCard{
		ID:        id,
		Key:       model.EntityKey{ProjectID: projectID, Name: name},
		Company:   company,
		UpdatedAt: updatedAt.UTC(),
	}
	if err := json.Unmarshal(record, &card.Record); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal record for %s/%s", projectID, name)
	}
	return card, nil
}

// withSelectedImage applies the image selection to a record.
func withSelectedImage(rec model.ProfileRecord, imageURL string) model.ProfileRecord {
	rec.ProfilePhoto = imageURL
	for _, u := range rec.ProfileImageOptions {
		if u == imageURL {
			return rec
		}
	}
	rec.ProfileImageOptions = append([]string{imageURL}, rec.ProfileImageOptions...)
	return rec
}
