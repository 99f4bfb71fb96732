package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// repoError matches both the storage sentinel and the domain one, printing the latter.
type repoError struct {
	storage error
	domain  error
}

func (e *repoError) Error() string   { return e.domain.Error() }
func (e *repoError) Unwrap() []error { return []error{e.storage, e.domain} }

func notFound(domain error) error { return &repoError{storage: ErrNotFound, domain: domain} }

func conflict(domain error) error { return &repoError{storage: ErrConflict, domain: domain} }

const codeUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
