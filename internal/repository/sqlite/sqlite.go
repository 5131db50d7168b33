package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vouchgraph/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository implements repository.TokenStore using SQLite
type Repository struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath. ":memory:" gives a private
// in-memory database.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases intact and serializes writers
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.pragmas(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) pragmas(dbPath string) error {
	if _, err := r.db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		return err
	}
	if dbPath == ":memory:" {
		return nil
	}
	_, err := r.db.Exec(`PRAGMA journal_mode = WAL`)
	return err
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS notification_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fid TEXT NOT NULL UNIQUE,
		token TEXT NOT NULL,
		url TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Save upserts the token for fid. Replacing a token keeps the original
// registration position.
func (r *Repository) Save(ctx context.Context, fid string, info domain.NotificationInfo) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_tokens (fid, token, url, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fid) DO UPDATE SET
			token = excluded.token,
			url = excluded.url,
			updated_at = excluded.updated_at
	`, fid, info.Token, info.URL, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save token for fid %s: %w", fid, err)
	}
	return nil
}

// Get returns the token for fid, or nil if none is stored
func (r *Repository) Get(ctx context.Context, fid string) (*domain.NotificationInfo, error) {
	var info domain.NotificationInfo
	err := r.db.QueryRowContext(ctx,
		`SELECT token, url FROM notification_tokens WHERE fid = ?`, fid,
	).Scan(&info.Token, &info.URL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token for fid %s: %w", fid, err)
	}
	return &info, nil
}

// Remove deletes the token for fid
func (r *Repository) Remove(ctx context.Context, fid string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notification_tokens WHERE fid = ?`, fid)
	if err != nil {
		return false, fmt.Errorf("failed to remove token for fid %s: %w", fid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListFIDs returns all FIDs in registration order
func (r *Repository) ListFIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT fid FROM notification_tokens ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fids: %w", err)
	}
	defer rows.Close()

	var fids []string
	for rows.Next() {
		var fid string
		if err := rows.Scan(&fid); err != nil {
			return nil, err
		}
		fids = append(fids, fid)
	}
	return fids, rows.Err()
}
