package storage

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
)

const (
	sqlstateUniqueViolation    = "23505"
	sqlstateCheckViolation     = "23514"
	sqlstateExclusionViolation = "23P01"
)

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateExclusionViolation
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateUniqueViolation
}

func isCheckViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateCheckViolation && pgErr.ConstraintName == constraint
}

// translate maps driver errors onto the domain sentinels. what names the row
// for not-found messages.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case IsNotFound(err):
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	case IsConflict(err):
		return fmt.Errorf("%w: %v", model.ErrOverlapConflict, err)
	case isCheckViolation(err, "products_available_stock_check"),
		isCheckViolation(err, "services_stock_quantity_check"):
		return fmt.Errorf("%w: %v", model.ErrInsufficientStock, err)
	}
	return err
}
