package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/filmclub/cinema-service/internal/storage"
)

// Backend keeps the whole snapshot in a single JSONB row. The store model
// stays identical to the file backend: one document, rewritten in full on
// every mutation.
type Backend struct {
	db *sql.DB
}

func New(dsn string) (*Backend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY,
		data JSONB NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`)
	if err != nil {
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}

	return &Backend{db: db}, nil
}

func (b *Backend) Load() ([]byte, error) {
	var data []byte
	err := b.db.QueryRow(`SELECT data FROM snapshots WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot row: %w", err)
	}
	return data, nil
}

func (b *Backend) Save(data []byte) error {
	_, err := b.db.Exec(`
	INSERT INTO snapshots (id, data, updated_at)
	VALUES (1, $1, CURRENT_TIMESTAMP)
	ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = CURRENT_TIMESTAMP
	`, data)
	if err != nil {
		return fmt.Errorf("save snapshot row: %w", err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}
