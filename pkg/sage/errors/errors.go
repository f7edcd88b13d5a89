// Package errors provides structured error types for the sage runtime.
//
// Every failure raised while loading a program or evaluating a request is a
// SageError: a catalog code, a class and a rendered message. The class decides
// how the server reacts. Contract and decode errors mean the type checker let
// something through that it should not have; form errors are the only errors a
// client can cause.
package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// ErrorClass categorizes errors for logging and response mapping.
type ErrorClass string

const (
	ClassContract ErrorClass = "contract" // States a correct type checker excludes
	ClassDecode   ErrorClass = "decode"   // Stored value cannot be decoded for its column
	ClassOperator ErrorClass = "operator" // Runtime arithmetic failures
	ClassDatabase ErrorClass = "database" // Store operations
	ClassForm     ErrorClass = "form"     // Submitted form input
	ClassProgram  ErrorClass = "program"  // Malformed program file
)

// SageError represents any error from loading or evaluation.
type SageError struct {
	Class   ErrorClass     `json:"class"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hints   []string       `json:"hints,omitempty"`
	Line    int            `json:"line,omitempty"` // 1-based line in the program file (0 if unknown)
	File    string         `json:"file,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Err     error          `json:"-"` // Underlying cause (driver errors etc.)
}

// Error implements the error interface.
func (e *SageError) Error() string {
	var sb strings.Builder

	if e.File != "" {
		sb.WriteString(e.File)
		sb.WriteString(": ")
	}
	if e.Line > 0 {
		sb.WriteString(fmt.Sprintf("line %d: ", e.Line))
	}
	sb.WriteString(e.Message)

	for _, hint := range e.Hints {
		sb.WriteString("\n  ")
		sb.WriteString(hint)
	}

	return sb.String()
}

// Unwrap returns the underlying cause, if any.
func (e *SageError) Unwrap() error {
	return e.Err
}

// ToJSON returns the error as JSON bytes.
func (e *SageError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WithFile returns a copy of the error with the file path set.
func (e *SageError) WithFile(file string) *SageError {
	copy := *e
	copy.File = file
	return &copy
}

// WithLine returns a copy of the error with the line set.
func (e *SageError) WithLine(line int) *SageError {
	copy := *e
	copy.Line = line
	return &copy
}

// ErrorDef defines an error in the catalog.
type ErrorDef struct {
	Class    ErrorClass
	Template string   // Message template with {{.placeholders}}
	Hints    []string // Hint templates
}

// ErrorCatalog maps error codes to their definitions.
var ErrorCatalog = map[string]ErrorDef{
	// ========================================
	// Contract violations (CONTRACT-0xxx)
	// ========================================
	"CONTRACT-0001": {
		Class:    ClassContract,
		Template: "identifier not bound: {{.Name}}",
	},
	"CONTRACT-0002": {
		Class:    ClassContract,
		Template: "cannot apply {{.Got}} as a function",
	},
	"CONTRACT-0003": {
		Class:    ClassContract,
		Template: "operator {{.Operator}} not defined for {{.Left}} and {{.Right}}",
	},
	"CONTRACT-0004": {
		Class:    ClassContract,
		Template: "field access on {{.Got}}, expected a record",
	},
	"CONTRACT-0005": {
		Class:    ClassContract,
		Template: "record has no field '{{.Field}}'",
	},
	"CONTRACT-0006": {
		Class:    ClassContract,
		Template: "cannot emit {{.Got}} as HTML",
	},
	"CONTRACT-0007": {
		Class:    ClassContract,
		Template: "attribute '{{.Attribute}}' of <{{.Tag}}> cannot be coerced to text, got {{.Got}}",
	},
	"CONTRACT-0008": {
		Class:    ClassContract,
		Template: "yield source must be a table query, got {{.Got}}",
	},
	"CONTRACT-0009": {
		Class:    ClassContract,
		Template: "insert into {{.Table}} expects a record, got {{.Got}}",
	},
	"CONTRACT-0010": {
		Class:    ClassContract,
		Template: "table {{.Table}} has no column '{{.Column}}'",
	},
	"CONTRACT-0011": {
		Class:    ClassContract,
		Template: "unknown table: {{.Table}}",
	},
	"CONTRACT-0012": {
		Class:    ClassContract,
		Template: "{{.Function}} expected {{.Expected}}, got {{.Got}}",
	},
	"CONTRACT-0013": {
		Class:    ClassContract,
		Template: "unknown expression node {{.Node}}",
	},
	"CONTRACT-0014": {
		Class:    ClassContract,
		Template: "cannot bind {{.Got}} as a query parameter",
	},

	// ========================================
	// Decode errors (DECODE-0xxx)
	// ========================================
	"DECODE-0001": {
		Class:    ClassDecode,
		Template: "cannot decode {{.Table}}.{{.Column}} as {{.Type}}: stored value is {{.Got}}",
	},
	"DECODE-0002": {
		Class:    ClassDecode,
		Template: "query on {{.Table}} returned unknown column '{{.Column}}'",
	},

	// ========================================
	// Operator errors (OPERATOR-0xxx)
	// ========================================
	"OPERATOR-0001": {
		Class:    ClassOperator,
		Template: "division by zero",
	},
	"OPERATOR-0002": {
		Class:    ClassOperator,
		Template: "formatDate: cannot parse date {{.Value}}: {{.GoError}}",
	},
	"OPERATOR-0003": {
		Class:    ClassOperator,
		Template: "status: {{.Code}} is not a final HTTP status code",
		Hints:    []string{"use a code from 200 to 599"},
	},

	// ========================================
	// Database errors (DB-0xxx)
	// ========================================
	"DB-0001": {
		Class:    ClassDatabase,
		Template: "failed to open {{.Driver}} database: {{.GoError}}",
	},
	"DB-0002": {
		Class:    ClassDatabase,
		Template: "query on {{.Table}} failed: {{.GoError}}",
	},
	"DB-0003": {
		Class:    ClassDatabase,
		Template: "insert into {{.Table}} failed: {{.GoError}}",
	},
	"DB-0004": {
		Class:    ClassDatabase,
		Template: "unsupported database driver: {{.Driver}}",
		Hints:    []string{"supported drivers: sqlite, postgres, mysql"},
	},
	"DB-0005": {
		Class:    ClassDatabase,
		Template: "invalid SQL identifier: {{.Name}}",
	},
	"DB-0006": {
		Class:    ClassDatabase,
		Template: "failed to create table {{.Table}}: {{.GoError}}",
		Hints:    []string{"set database.migrate: false to manage the schema yourself"},
	},

	// ========================================
	// Form errors (FORM-0xxx)
	// ========================================
	"FORM-0001": {
		Class:    ClassForm,
		Template: "Invalid form input: missing '{{.Field}}'",
	},
	"FORM-0002": {
		Class:    ClassForm,
		Template: "Invalid form input: {{.GoError}}",
	},

	// ========================================
	// Program errors (PROGRAM-0xxx)
	// ========================================
	"PROGRAM-0001": {
		Class:    ClassProgram,
		Template: "failed to read program '{{.Path}}': {{.GoError}}",
	},
	"PROGRAM-0002": {
		Class:    ClassProgram,
		Template: "invalid {{.What}}: {{.Detail}}",
	},
	"PROGRAM-0003": {
		Class:    ClassProgram,
		Template: "unknown expression form '{{.Form}}'",
		Hints:    []string{"expression forms: text, int, var, app, lam, list, record, field, op, yield, insert"},
	},
	"PROGRAM-0004": {
		Class:    ClassProgram,
		Template: "unknown type '{{.Type}}'",
		Hints:    []string{"types: text, int, bool, html, response, {list: t}, {record: {...}}, {fn: [param, result]}"},
	},
	"PROGRAM-0005": {
		Class:    ClassProgram,
		Template: "duplicate {{.What}} '{{.Name}}'",
	},
}

// New creates a SageError from the catalog.
// If the code is not found, creates a generic contract error with the message.
func New(code string, data map[string]any) *SageError {
	def, ok := ErrorCatalog[code]
	if !ok {
		msg := code
		if data != nil {
			if m, ok := data["message"].(string); ok {
				msg = m
			}
		}
		return &SageError{
			Class:   ClassContract,
			Code:    code,
			Message: msg,
			Data:    data,
		}
	}

	msg := renderTemplate(def.Template, data)

	var hints []string
	for _, hintTmpl := range def.Hints {
		rendered := renderTemplate(hintTmpl, data)
		if rendered != "" {
			hints = append(hints, rendered)
		}
	}

	return &SageError{
		Class:   def.Class,
		Code:    code,
		Message: msg,
		Hints:   hints,
		Data:    data,
	}
}

// Wrap creates a catalog error carrying cause as its underlying error.
// The cause's text is available to the template as {{.GoError}}.
func Wrap(code string, cause error, data map[string]any) *SageError {
	if data == nil {
		data = map[string]any{}
	}
	data["GoError"] = cause.Error()
	err := New(code, data)
	err.Err = cause
	return err
}

// renderTemplate renders a Go template with the given data.
func renderTemplate(tmplStr string, data map[string]any) string {
	if data == nil {
		return tmplStr
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return tmplStr
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return tmplStr
	}

	return buf.String()
}

// ClassOf returns the class of the first SageError in err's chain, or "" if none.
func ClassOf(err error) ErrorClass {
	var serr *SageError
	if errors.As(err, &serr) {
		return serr.Class
	}
	return ""
}

// IsContractViolation reports whether err signals a state the type checker
// should have made impossible. Such errors abort the request and are logged
// as defects, never shown to the client.
func IsContractViolation(err error) bool {
	switch ClassOf(err) {
	case ClassContract, ClassDecode:
		return true
	}
	return false
}

// IsUserError reports whether err was caused by client input.
func IsUserError(err error) bool {
	return ClassOf(err) == ClassForm
}

// ============================================================================
// Fuzzy Matching - "Did you mean?" suggestions
// ============================================================================

// levenshteinDistance computes the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// FindClosestMatch finds the closest match to input among candidates.
// Returns "" when nothing is close enough to be a plausible typo.
func FindClosestMatch(input string, candidates []string) string {
	if len(input) == 0 || len(candidates) == 0 {
		return ""
	}

	// Allow roughly one edit per three characters, at least two
	threshold := max(2, len(input)/3)

	var bestMatch string
	bestDistance := -1
	for _, candidate := range candidates {
		if candidate == input {
			continue
		}
		d := levenshteinDistance(input, candidate)
		if d > threshold {
			continue
		}
		if bestDistance == -1 || d < bestDistance || (d == bestDistance && candidate < bestMatch) {
			bestMatch = candidate
			bestDistance = d
		}
	}
	return bestMatch
}

// NewUnboundIdentifier creates a CONTRACT-0001 error with a "did you mean" hint
// when one of the bound names is a likely typo target.
func NewUnboundIdentifier(name string, bound []string) *SageError {
	err := New("CONTRACT-0001", map[string]any{"Name": name})
	if match := FindClosestMatch(name, bound); match != "" {
		err.Hints = append(err.Hints, fmt.Sprintf("Did you mean `%s`?", match))
	}
	return err
}
