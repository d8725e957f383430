package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/profile-cli/internal/db"
	"github.com/sells-group/profile-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas below are per connection; one connection keeps them in force
	// and serializes writers.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn, nowFunc: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS profile_cards (
	id             TEXT PRIMARY KEY,
	project_id     TEXT NOT NULL,
	entity_name    TEXT NOT NULL,
	entity_company TEXT NOT NULL,
	match_key      TEXT NOT NULL,
	profile_photo  TEXT NOT NULL DEFAULT '',
	record         TEXT NOT NULL,
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (project_id, entity_name)
);

CREATE INDEX IF NOT EXISTS idx_profile_cards_match ON profile_cards(project_id, match_key);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var sqliteUpsert = upsertSQL(db.Question)

func (s *SQLiteStore) Upsert(ctx context.Context, card model.ProfileCard) error {
	row, err := toRow(card, s.nowFunc().UTC())
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsert, row.args()...); err != nil {
		return eris.Wrapf(err, "sqlite: upsert profile %s", card.Key)
	}
	return nil
}

const sqliteSelectCard = `SELECT id, project_id, entity_name, entity_company, record, updated_at FROM profile_cards`

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteCard(row scanner) (*model.ProfileCard, error) {
	var (
		id, projectID, name, company, record string
		updatedAt                            time.Time
	)
	if err := row.Scan(&id, &projectID, &name, &company, &record, &updatedAt); err != nil {
		return nil, err
	}
	return fromRow(id, projectID, name, company, []byte(record), updatedAt)
}

func (s *SQLiteStore) GetProfile(ctx context.Context, key model.EntityKey) (*model.ProfileCard, error) {
	card, err := scanSQLiteCard(s.db.QueryRowContext(ctx,
		sqliteSelectCard+` WHERE project_id = ? AND entity_name = ?`, key.ProjectID, key.Name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get profile %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s", key)
	}
	return card, nil
}

func (s *SQLiteStore) FindByIdentity(ctx context.Context, projectID, name, company string) (*model.ProfileCard, error) {
	card, err := scanSQLiteCard(s.db.QueryRowContext(ctx,
		sqliteSelectCard+` WHERE project_id = ? AND match_key = ? ORDER BY updated_at DESC LIMIT 1`,
		projectID, model.MatchKey(name, company)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find profile %s/%s", projectID, name)
	}
	return card, nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context, projectID string) ([]model.ProfileCard, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectCard+` WHERE project_id = ? ORDER BY entity_name`, projectID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list profiles %s", projectID)
	}
	defer rows.Close() //nolint:errcheck

	var cards []model.ProfileCard
	for rows.Next() {
		card, err := scanSQLiteCard(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan profile %s", projectID)
		}
		cards = append(cards, *card)
	}
	return cards, eris.Wrap(rows.Err(), "sqlite: iterate profiles")
}

func (s *SQLiteStore) SelectImage(ctx context.Context, key model.EntityKey, imageURL string) (*model.ProfileCard, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select image: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	card, err := scanSQLiteCard(tx.QueryRowContext(ctx,
		sqliteSelectCard+` WHERE project_id = ? AND entity_name = ?`, key.ProjectID, key.Name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: select image %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: select image %s", key)
	}

	card.Record = withSelectedImage(card.Record, imageURL)
	row, err := toRow(*card, s.nowFunc().UTC())
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE profile_cards SET profile_photo = ?, record = ?, updated_at = ? WHERE id = ?`,
		row.photo, string(row.record), row.updatedAt, row.id,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: select image %s", key)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: select image: commit tx")
	}
	card.UpdatedAt = row.updatedAt
	return card, nil
}
