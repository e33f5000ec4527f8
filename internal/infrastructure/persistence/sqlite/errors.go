package sqlite

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/mastdeals10/sapj/internal/domain/entity"
)

// TranslateError maps driver constraint failures onto the domain taxonomy.
// Other errors are returned as is.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %v", entity.ErrReferentialIntegrity, err)
	case sqlite3.ErrConstraintCheck,
		sqlite3.ErrConstraintNotNull,
		sqlite3.ErrConstraintUnique,
		sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %v", entity.ErrConstraintViolation, err)
	}

	if sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", entity.ErrConstraintViolation, err)
	}

	return err
}
