// Package sqlite implements store.Store and store.LabelCache on a single
// SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/cognicore/histoscope/pkg/histoscope/dataset"
	"github.com/cognicore/histoscope/pkg/histoscope/index"
)

// Store is the SQLite-backed session store.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite database with WAL mode enabled and the schema applied.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS rows (
	id INTEGER PRIMARY KEY,
	text TEXT NOT NULL,
	entities TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS entities (
	entity TEXT PRIMARY KEY,
	seq INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_rows (
	entity TEXT NOT NULL,
	row_id INTEGER NOT NULL,
	PRIMARY KEY(entity, row_id),
	FOREIGN KEY(entity) REFERENCES entities(entity) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS categories (
	key TEXT PRIMARY KEY,
	pos INTEGER NOT NULL,
	user_created INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS category_entities (
	key TEXT NOT NULL,
	pos INTEGER NOT NULL,
	entity TEXT NOT NULL,
	PRIMARY KEY(key, pos),
	FOREIGN KEY(key) REFERENCES categories(key) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS label_cache (
	prompt TEXT PRIMARY KEY,
	label TEXT NOT NULL
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// SaveRows replaces the stored dataset.
func (s *Store) SaveRows(ctx context.Context, rows []dataset.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM rows"); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rows (id, text, entities) VALUES (?, ?, ?)",
			row.ID, row.Text, strings.Join(row.Entities, "|")); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadRows returns the stored dataset in row-id order.
func (s *Store) LoadRows(ctx context.Context) ([]dataset.Row, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, text, entities FROM rows ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dataset.Row
	for rows.Next() {
		var row dataset.Row
		var entities string
		if err := rows.Scan(&row.ID, &row.Text, &entities); err != nil {
			return nil, err
		}
		row.Entities = dataset.ParseEntities(entities)
		out = append(out, row)
	}
	return out, rows.Err()
}

// SaveIndex replaces the stored snapshot.
func (s *Store) SaveIndex(ctx context.Context, snap index.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"category_entities", "categories", "entity_rows", "entities"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}

	for seq, ev := range snap.Entities {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO entities (entity, seq) VALUES (?, ?)", ev.Entity, seq); err != nil {
			return err
		}
		for _, id := range ev.Rows {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO entity_rows (entity, row_id) VALUES (?, ?)", ev.Entity, id); err != nil {
				return err
			}
		}
	}

	for pos, cat := range snap.Categories {
		userMade := 0
		if cat.UserCreated {
			userMade = 1
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO categories (key, pos, user_created) VALUES (?, ?, ?)",
			cat.Key, pos, userMade); err != nil {
			return err
		}
		for i, e := range cat.Entities {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO category_entities (key, pos, entity) VALUES (?, ?, ?)",
				cat.Key, i, e); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// LoadIndex reads the stored snapshot. The bool is false when the store has
// never been written.
func (s *Store) LoadIndex(ctx context.Context) (index.Snapshot, bool, error) {
	var snap index.Snapshot

	entityRows, err := s.db.QueryContext(ctx, "SELECT entity FROM entities ORDER BY seq")
	if err != nil {
		return snap, false, err
	}
	defer entityRows.Close()
	for entityRows.Next() {
		var e string
		if err := entityRows.Scan(&e); err != nil {
			return snap, false, err
		}
		snap.Entities = append(snap.Entities, index.EntityEvidence{Entity: e})
	}
	if err := entityRows.Err(); err != nil {
		return snap, false, err
	}
	if len(snap.Entities) == 0 {
		return index.Snapshot{}, false, nil
	}

	for i := range snap.Entities {
		ids, err := s.loadEntityRows(ctx, snap.Entities[i].Entity)
		if err != nil {
			return index.Snapshot{}, false, err
		}
		snap.Entities[i].Rows = ids
	}

	catRows, err := s.db.QueryContext(ctx,
		"SELECT key, user_created FROM categories ORDER BY pos")
	if err != nil {
		return index.Snapshot{}, false, err
	}
	defer catRows.Close()
	for catRows.Next() {
		var cat index.CategorySnapshot
		var userMade int
		if err := catRows.Scan(&cat.Key, &userMade); err != nil {
			return index.Snapshot{}, false, err
		}
		cat.UserCreated = userMade != 0
		snap.Categories = append(snap.Categories, cat)
	}
	if err := catRows.Err(); err != nil {
		return index.Snapshot{}, false, err
	}

	for i := range snap.Categories {
		members, err := s.loadCategoryEntities(ctx, snap.Categories[i].Key)
		if err != nil {
			return index.Snapshot{}, false, err
		}
		snap.Categories[i].Entities = members
	}

	return snap, true, nil
}

func (s *Store) loadEntityRows(ctx context.Context, entity string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT row_id FROM entity_rows WHERE entity = ? ORDER BY row_id", entity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) loadCategoryEntities(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT entity FROM category_entities WHERE key = ? ORDER BY pos", key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		members = append(members, e)
	}
	return members, rows.Err()
}

// GetLabel implements store.LabelCache.
func (s *Store) GetLabel(ctx context.Context, prompt string) (string, bool, error) {
	var label string
	err := s.db.QueryRowContext(ctx,
		"SELECT label FROM label_cache WHERE prompt = ?", prompt).Scan(&label)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return label, true, nil
}

// PutLabel implements store.LabelCache.
func (s *Store) PutLabel(ctx context.Context, prompt, label string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO label_cache (prompt, label) VALUES (?, ?)
ON CONFLICT(prompt) DO UPDATE SET label=excluded.label`, prompt, label)
	return err
}
