package store

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres persists jobs, matrix sets and webhook deliveries in PostgreSQL
// through the pgx stdlib driver.
type Postgres struct {
	*sqlStore
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{&sqlStore{db: db, d: postgresDialect}}, nil
}
