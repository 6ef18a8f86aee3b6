package sqlite

import (
	"context"
	"database/sql"

	"github.com/flemzord/cvchat/internal/memory"
)

// OpenHistoryStore opens a SQLite database at the given path and returns
// a HistoryStore backed by it. The caller is responsible for closing the
// returned *sql.DB when done.
//
// The database is created with WAL mode, a 5 s busy timeout, and a single
// connection (SQLite serialises writes). The schema is migrated automatically.
func OpenHistoryStore(path string) (memory.HistoryStore, *sql.DB, error) {
	cfg := Config{Path: path}
	if err := cfg.resolve(""); err != nil {
		return nil, nil, err
	}

	db, err := open(context.TODO(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return &historyStore{db: db}, db, nil
}
