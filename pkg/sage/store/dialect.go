package store

import (
	"database/sql"
	"strconv"
)

// dialect captures the per-driver differences in statement text.
type dialect struct {
	name        string
	quote       func(ident string) string
	placeholder func(pos int, name string) string
	named       bool // parameters are passed as sql.Named
}

// bind wraps a value for the placeholder produced for the same position/name.
func (d dialect) bind(name string, v any) any {
	if d.named {
		return sql.Named(name, v)
	}
	return v
}

func doubleQuote(ident string) string { return `"` + ident + `"` }

var dialects = map[string]dialect{
	"sqlite": {
		name:        "sqlite",
		quote:       doubleQuote,
		placeholder: func(_ int, name string) string { return ":" + name },
		named:       true,
	},
	"postgres": {
		name:        "postgres",
		quote:       doubleQuote,
		placeholder: func(pos int, _ string) string { return "$" + strconv.Itoa(pos) },
	},
	"mysql": {
		name:        "mysql",
		quote:       func(ident string) string { return "`" + ident + "`" },
		placeholder: func(int, string) string { return "?" },
	},
}
