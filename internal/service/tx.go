package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// Postgres error codes raised by the scheduling constraints.
const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

// constraintError maps constraint violations raised at write time onto the same
// conflicts the pre-checks report. ok is false for any other error.
func constraintError(err error) (*appErrors.Error, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil, false
	}
	switch pqErr.Code {
	case pgExclusionViolation:
		return appErrors.Clone(appErrors.ErrDoctorUnavailable, ""), true
	case pgUniqueViolation:
		if pqErr.Constraint == "appointments_patient_open_key" {
			return appErrors.Clone(appErrors.ErrPatientHasOpen, ""), true
		}
		return appErrors.Clone(appErrors.ErrConflict, "record already exists"), true
	}
	return nil, false
}

func internalError(err error, message string) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// runInTx executes fn in a transaction, rolling back when fn or the commit fails.
func runInTx(ctx context.Context, provider txProvider, fn func(tx *sqlx.Tx) error) (err error) {
	if provider == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
	}
	tx, err := provider.BeginTxx(ctx, nil)
	if err != nil {
		return internalError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return internalError(err, "failed to commit transaction")
	}
	return nil
}
