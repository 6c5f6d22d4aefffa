package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func mapPgErrorToServiceError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return newServiceError(http.StatusNotFound, CodeNotFound, "not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		switch {
		case strings.HasPrefix(pgErr.ConstraintName, "payroll_runs_"):
			return newServiceError(http.StatusConflict, CodeRunConflict, "payroll run already exists", err)
		case strings.HasPrefix(pgErr.ConstraintName, "payroll_component_mappings_"):
			return newServiceError(http.StatusConflict, CodeMappingOverlap, "an open mapping already exists", err)
		case strings.HasPrefix(pgErr.ConstraintName, "payroll_run_lines_"):
			return newServiceError(http.StatusUnprocessableEntity, CodeDuplicateRow, "duplicate run line", err)
		case strings.HasPrefix(pgErr.ConstraintName, "payroll_run_corrections_"):
			return newServiceError(http.StatusConflict, CodeIdempotencyConflict, "correction already exists", err)
		default:
			return newServiceError(http.StatusConflict, CodeRunConflict, "unique constraint violated", err)
		}
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return newServiceError(http.StatusUnprocessableEntity, CodeInvalidArgument, "referenced record not found", err)
	case "23514": // check_violation
		recordWriteConflict("check")
		return newServiceError(http.StatusConflict, CodeRunConflict, "check constraint violated", err)
	case "40001", "40P01": // serialization_failure, deadlock_detected
		recordWriteConflict("serialization")
		return newServiceError(http.StatusConflict, CodeRunConflict, "concurrent update, retry", err)
	case "55P03": // lock_not_available (lock timeout)
		recordWriteConflict("lock_timeout")
		return newServiceError(http.StatusConflict, CodeRunConflict, "payroll rows are locked by another operation, retry", err)
	case "57014": // query_canceled (statement timeout)
		return newServiceError(http.StatusServiceUnavailable, CodeInternal, "statement timeout", err)
	default:
		return newServiceError(http.StatusInternalServerError, CodeInternal, fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
