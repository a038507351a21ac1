package util

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"creatorreminder/pkg/circuitbreaker"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// IsRetryableError reports whether err is worth another attempt on a later run,
// and a short label for logs and metrics.
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	switch {
	case errors.Is(err, context.Canceled):
		return false, "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return true, "timeout"
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		return true, "circuit_open"
	case errors.Is(err, pgx.ErrNoRows):
		return false, "not_found"
	case IsUniqueViolation(err):
		return false, "duplicate_key"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception, class 53: insufficient resources
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "53") {
			return true, "db_connection_error"
		}
		return false, "db_error"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	return false, "unknown_error"
}
