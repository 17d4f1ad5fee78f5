package domain

import "errors"

// Ошибки доступа к источнику.
var (
	ErrAccessDenied     = errors.New("access denied")
	ErrNotFound         = errors.New("not found")
	ErrMalformedRequest = errors.New("malformed request")
	ErrUnreachable      = errors.New("unreachable")
	ErrRateLimited      = errors.New("rate limited")
)

// Нарушения контракта хранилища.
var (
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrForeignKeyViolation = errors.New("foreign key violation")
)
