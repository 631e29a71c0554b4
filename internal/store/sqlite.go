package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/climate-studio/atlas/internal/backend"
	"github.com/climate-studio/atlas/internal/projection"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS views (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	year             INTEGER NOT NULL,
	scenario         TEXT NOT NULL,
	style_id         TEXT NOT NULL DEFAULT '',
	camera           TEXT NOT NULL,
	layers           TEXT NOT NULL,
	ruleset_versions TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_views_name ON views(name);
CREATE INDEX IF NOT EXISTS idx_views_updated_at ON views(updated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveView inserts a new view when v.ID is empty, otherwise updates in
// place. Timestamps and IDs are assigned here, not by the caller.
func (s *SQLiteStore) SaveView(ctx context.Context, v View) (*View, error) {
	now := time.Now().UTC()

	cameraJSON, layersJSON, versionsJSON, err := marshalView(v)
	if err != nil {
		return nil, err
	}

	if v.ID == "" {
		v.ID = uuid.New().String()
		v.CreatedAt = now
		v.UpdatedAt = now
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO views (id, name, year, scenario, style_id, camera, layers, ruleset_versions, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.Name, v.Year, string(v.Scenario), v.StyleID, cameraJSON, layersJSON, versionsJSON, now, now,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: insert view")
		}
		return &v, nil
	}

	v.UpdatedAt = now
	res, err := s.db.ExecContext(ctx,
		`UPDATE views SET name = ?, year = ?, scenario = ?, style_id = ?, camera = ?, layers = ?, ruleset_versions = ?, updated_at = ?
		 WHERE id = ?`,
		v.Name, v.Year, string(v.Scenario), v.StyleID, cameraJSON, layersJSON, versionsJSON, now, v.ID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update view %s", v.ID)
	}
	if err := checkRowsAffected(res, v.ID); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *SQLiteStore) GetView(ctx context.Context, id string) (*View, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, year, scenario, style_id, camera, layers, ruleset_versions, created_at, updated_at
		 FROM views WHERE id = ?`,
		id,
	)
	return scanView(row)
}

func (s *SQLiteStore) ListViews(ctx context.Context, filter ViewFilter) ([]View, error) {
	query := `SELECT id, name, year, scenario, style_id, camera, layers, ruleset_versions, created_at, updated_at
	          FROM views ORDER BY updated_at DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args := []any{limit}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list views")
	}
	defer rows.Close()

	var views []View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, eris.Wrap(rows.Err(), "sqlite: list views iterate")
}

func (s *SQLiteStore) DeleteView(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM views WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete view %s", id)
	}
	return checkRowsAffected(res, id)
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrViewNotFound
	}
	return nil
}

func marshalView(v View) (camera, layers string, versions sql.NullString, err error) {
	cameraBytes, err := json.Marshal(v.Camera)
	if err != nil {
		return "", "", versions, eris.Wrap(err, "store: marshal camera")
	}
	if v.Layers == nil {
		v.Layers = []LayerState{}
	}
	layerBytes, err := json.Marshal(v.Layers)
	if err != nil {
		return "", "", versions, eris.Wrap(err, "store: marshal layers")
	}
	if len(v.RulesetVersions) > 0 {
		versionBytes, err := json.Marshal(v.RulesetVersions)
		if err != nil {
			return "", "", versions, eris.Wrap(err, "store: marshal ruleset versions")
		}
		versions = sql.NullString{String: string(versionBytes), Valid: true}
	}
	return string(cameraBytes), string(layerBytes), versions, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanView(row scannable) (*View, error) {
	var v View
	var scenario, cameraJSON, layersJSON string
	var versionsJSON sql.NullString

	err := row.Scan(&v.ID, &v.Name, &v.Year, &scenario, &v.StyleID, &cameraJSON, &layersJSON, &versionsJSON, &v.CreatedAt, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrViewNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan view")
	}

	v.Scenario = projection.ParseScenario(scenario)
	v.Camera = backend.Camera{}
	if err := json.Unmarshal([]byte(cameraJSON), &v.Camera); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal camera")
	}
	if err := json.Unmarshal([]byte(layersJSON), &v.Layers); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal layers")
	}
	if versionsJSON.Valid {
		if err := json.Unmarshal([]byte(versionsJSON.String), &v.RulesetVersions); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal ruleset versions")
		}
	}
	return &v, nil
}
