package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/climate-studio/atlas/internal/backend"
	"github.com/climate-studio/atlas/internal/db"
	"github.com/climate-studio/atlas/internal/projection"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_view": `INSERT INTO views (id, name, year, scenario, style_id, camera, layers, ruleset_versions, created_at, updated_at)
	                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"update_view": `UPDATE views SET name = $1, year = $2, scenario = $3, style_id = $4, camera = $5, layers = $6, ruleset_versions = $7, updated_at = $8
	                WHERE id = $9`,
	"get_view": `SELECT id, name, year, scenario, style_id, camera, layers, ruleset_versions, created_at, updated_at
	             FROM views WHERE id = $1`,
	"delete_view": `DELETE FROM views WHERE id = $1`,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests and by the
// import command, which shares one pool between the store and the
// hydrography loader.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., the hydrography import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS views (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name             TEXT NOT NULL,
	year             INTEGER NOT NULL,
	scenario         TEXT NOT NULL,
	style_id         TEXT NOT NULL DEFAULT '',
	camera           JSONB NOT NULL,
	layers           JSONB NOT NULL,
	ruleset_versions JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_views_name ON views(name);
CREATE INDEX IF NOT EXISTS idx_views_updated_at ON views(updated_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveView(ctx context.Context, v View) (*View, error) {
	now := time.Now().UTC()

	cameraJSON, layersJSON, versionsJSON, err := marshalView(v)
	if err != nil {
		return nil, err
	}
	var versions any
	if versionsJSON.Valid {
		versions = versionsJSON.String
	}

	if v.ID == "" {
		v.ID = uuid.New().String()
		v.CreatedAt = now
		v.UpdatedAt = now
		_, err = s.pool.Exec(ctx,
			`INSERT INTO views (id, name, year, scenario, style_id, camera, layers, ruleset_versions, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			v.ID, v.Name, v.Year, string(v.Scenario), v.StyleID, cameraJSON, layersJSON, versions, now, now,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: insert view")
		}
		return &v, nil
	}

	v.UpdatedAt = now
	tag, err := s.pool.Exec(ctx,
		`UPDATE views SET name = $1, year = $2, scenario = $3, style_id = $4, camera = $5, layers = $6, ruleset_versions = $7, updated_at = $8
		 WHERE id = $9`,
		v.Name, v.Year, string(v.Scenario), v.StyleID, cameraJSON, layersJSON, versions, now, v.ID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update view %s", v.ID)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrViewNotFound
	}
	return &v, nil
}

func (s *PostgresStore) GetView(ctx context.Context, id string) (*View, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, year, scenario, style_id, camera, layers, ruleset_versions, created_at, updated_at
		 FROM views WHERE id = $1`,
		id,
	)
	return scanPostgresView(row)
}

func (s *PostgresStore) ListViews(ctx context.Context, filter ViewFilter) ([]View, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, year, scenario, style_id, camera, layers, ruleset_versions, created_at, updated_at
		 FROM views ORDER BY updated_at DESC LIMIT $1 OFFSET $2`,
		limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list views")
	}
	defer rows.Close()

	var views []View
	for rows.Next() {
		v, err := scanPostgresView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, eris.Wrap(rows.Err(), "postgres: list views iterate")
}

func (s *PostgresStore) DeleteView(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM views WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete view %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrViewNotFound
	}
	return nil
}

func scanPostgresView(row pgx.Row) (*View, error) {
	var v View
	var scenario, cameraJSON, layersJSON string
	var versionsJSON *string

	err := row.Scan(&v.ID, &v.Name, &v.Year, &scenario, &v.StyleID, &cameraJSON, &layersJSON, &versionsJSON, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrViewNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan view")
	}

	v.Scenario = projection.ParseScenario(scenario)
	v.Camera = backend.Camera{}
	if err := json.Unmarshal([]byte(cameraJSON), &v.Camera); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal camera")
	}
	if err := json.Unmarshal([]byte(layersJSON), &v.Layers); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal layers")
	}
	if versionsJSON != nil {
		if err := json.Unmarshal([]byte(*versionsJSON), &v.RulesetVersions); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal ruleset versions")
		}
	}
	return &v, nil
}
