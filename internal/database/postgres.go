package database

import (
	"database/sql"
)

type PgConverseRepository struct {
	conn *sql.DB
}

func NewPgConverseRepository(dsn string) (*PgConverseRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgConverseRepository{conn: db}, nil
}

func (db *PgConverseRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgConverseRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
