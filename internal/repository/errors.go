package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrActiveSessionExists = errors.New("active session already exists for user and exam")
)

const pgUniqueViolation = "23505"

// translateWriteErr maps a violation of the one-active-session index.
func translateWriteErr(err error, activeIndex string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == activeIndex {
		return ErrActiveSessionExists
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
