package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-cli/internal/db"
	"github.com/sells-group/profile-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	nowFunc func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool), nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, nowFunc: time.Now}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS profile_cards (
	id             TEXT PRIMARY KEY,
	project_id     TEXT NOT NULL,
	entity_name    TEXT NOT NULL,
	entity_company TEXT NOT NULL,
	match_key      TEXT NOT NULL,
	profile_photo  TEXT NOT NULL DEFAULT '',
	record         JSONB NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (project_id, entity_name)
);

CREATE INDEX IF NOT EXISTS idx_profile_cards_match ON profile_cards(project_id, match_key);
`

// migrationLockID serializes concurrent migrations from overlapping deploys.
const migrationLockID = 7302114

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			zap.L().Warn("postgres: release migration lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var postgresUpsert = upsertSQL(db.Dollar)

func (s *PostgresStore) Upsert(ctx context.Context, card model.ProfileCard) error {
	row, err := toRow(card, s.nowFunc().UTC())
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, postgresUpsert, row.args()...); err != nil {
		return eris.Wrapf(err, "postgres: upsert profile %s", card.Key)
	}
	return nil
}

const selectCard = `SELECT id, project_id, entity_name, entity_company, record, updated_at FROM profile_cards`

func (s *PostgresStore) GetProfile(ctx context.Context, key model.EntityKey) (*model.ProfileCard, error) {
	card, err := scanCard(s.pool.QueryRow(ctx, selectCard+` WHERE project_id = $1 AND entity_name = $2`, key.ProjectID, key.Name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get profile %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile %s", key)
	}
	return card, nil
}

func (s *PostgresStore) FindByIdentity(ctx context.Context, projectID, name, company string) (*model.ProfileCard, error) {
	card, err := scanCard(s.pool.QueryRow(ctx,
		selectCard+` WHERE project_id = $1 AND match_key = $2 ORDER BY updated_at DESC LIMIT 1`,
		projectID, model.MatchKey(name, company),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find profile %s/%s", projectID, name)
	}
	return card, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context, projectID string) ([]model.ProfileCard, error) {
	rows, err := s.pool.Query(ctx, selectCard+` WHERE project_id = $1 ORDER BY entity_name`, projectID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list profiles %s", projectID)
	}
	defer rows.Close()

	var cards []model.ProfileCard
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan profile %s", projectID)
		}
		cards = append(cards, *card)
	}
	return cards, eris.Wrap(rows.Err(), "postgres: iterate profiles")
}

func (s *PostgresStore) SelectImage(ctx context.Context, key model.EntityKey, imageURL string) (*model.ProfileCard, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select image: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	card, err := scanCard(tx.QueryRow(ctx,
		selectCard+` WHERE project_id = $1 AND entity_name = $2 FOR UPDATE`, key.ProjectID, key.Name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: select image %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: select image %s", key)
	}

	card.Record = withSelectedImage(card.Record, imageURL)
	row, err := toRow(*card, s.nowFunc().UTC())
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE profile_cards SET profile_photo = $1, record = $2, updated_at = $3 WHERE id = $4`,
		row.photo, string(row.record), row.updatedAt, row.id,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: select image %s", key)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: select image: commit tx")
	}
	card.UpdatedAt = row.updatedAt
	return card, nil
}

func scanCard(row pgx.Row) (*model.ProfileCard, error) {
	var (
		id, projectID, name, company string
		record                       []byte
		updatedAt                    time.Time
	)
	if err := row.Scan(&id, &projectID, &name, &company, &record, &updatedAt); err != nil {
		return nil, err
	}
	return fromRow(id, projectID, name, company, record, updatedAt)
}
