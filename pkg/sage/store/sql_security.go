package store

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
)

// SQL identifier validation
//
// Table and column names are interpolated into statement text, so they must
// come from the checked program and pass this check. Values never are: they
// always travel as bound parameters.

var sqlIdentifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// maxSQLIdentifierLength is the maximum length for a SQL identifier.
// MySQL caps identifiers at 64 characters; the other drivers allow more.
const maxSQLIdentifierLength = 64

// IsValidIdentifier checks if a name is safe to interpolate as a SQL identifier.
//
// Valid identifiers start with a letter or underscore, contain only letters,
// digits and underscores, and are 1-64 characters long. Anything else
// ("user; DROP TABLE users--", "table' OR '1'='1", "col`name", "table name")
// is rejected.
func IsValidIdentifier(name string) bool {
	if name == "" || len(name) > maxSQLIdentifierLength {
		return false
	}
	return sqlIdentifierRegex.MatchString(name)
}

// ValidateIdentifier returns a DB-0005 error if the identifier is invalid.
func ValidateIdentifier(name string) error {
	if !IsValidIdentifier(name) {
		return serrors.New("DB-0005", map[string]any{"Name": fmt.Sprintf("%q", name)})
	}
	return nil
}

// validateIdentifiers validates multiple identifiers at once.
// Returns an error listing all invalid identifiers found.
func validateIdentifiers(names []string) error {
	var invalid []string
	for _, name := range names {
		if !IsValidIdentifier(name) {
			invalid = append(invalid, fmt.Sprintf("%q", name))
		}
	}
	if len(invalid) > 0 {
		return serrors.New("DB-0005", map[string]any{"Name": strings.Join(invalid, ", ")})
	}
	return nil
}

// validateOperator checks a condition operator against the allowed set.
func validateOperator(op string) error {
	if !slices.Contains(conditionOperators, op) {
		return serrors.New("DB-0005", map[string]any{"Name": fmt.Sprintf("operator %q", op)})
	}
	return nil
}

var conditionOperators = []string{"=", "!=", "<", "<=", ">", ">="}
