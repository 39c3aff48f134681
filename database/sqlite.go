package database

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// OpenSqlite opens (or creates) the sqlite file at path. WAL mode lets the
// http reporter read while workers write.
func OpenSqlite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
