// Package repl is an interactive prompt for trying expressions against a
// loaded program and its database.
//
// Input is an expression in the program file's YAML form, written inline:
//
//	>> {op: "*", left: {int: 6}, right: {int: 7}}
//	42
//	>> :let title {text: "Hello"}
//	>> {app: [{var: h1}, {var: title}]}
//	<h1>Hello</h1>
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/peterh/liner"

	"github.com/sambeau/sage/pkg/sage/ast"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/program"
)

const (
	PROMPT              = ">> "
	PROMPT_HTML         = "h> "
	CONTINUATION_PROMPT = ".. "
)

// Expression form keys, offered alongside bound names for completion
var formWords = []string{
	"text:", "int:", "var:", "app:", "lam:", "param:", "body:", "list:", "record:",
	"field:", "of:", "name:", "op:", "left:", "right:", "yield:", "query:", "where:",
	"order_by:", "column:", "arg:", "desc:", "insert:", "table:", "value:", "then:",
}

var commands = []string{":help", ":env", ":tables", ":html", ":let"}

// Session holds the state of one prompt: the environment built up by :let
// and the output mode.
type Session struct {
	interp  *evaluator.Interpreter
	program *ast.Program
	env     *evaluator.Environment
	html    bool // Emit results as HTML instead of inspecting them
}

// NewSession starts a session with the environment a request to a route
// without path variables would see.
func NewSession(interp *evaluator.Interpreter, builder *evaluator.Builder, p *ast.Program) *Session {
	return &Session{interp: interp, program: p, env: builder.Build(nil)}
}

// Prompt returns the prompt for the current mode
func (s *Session) Prompt() string {
	if s.html {
		return PROMPT_HTML
	}
	return PROMPT
}

// Eval runs one complete input, a command or an expression, and returns the
// text to print.
func (s *Session) Eval(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, ":") {
		return s.command(ctx, input)
	}

	v, err := s.evalExpression(ctx, input)
	if err != nil {
		return "", err
	}
	return s.render(v)
}

func (s *Session) evalExpression(ctx context.Context, src string) (evaluator.Value, error) {
	expr, err := program.ParseExpression([]byte(src))
	if err != nil {
		return nil, err
	}
	return s.interp.Eval(ctx, s.env, expr)
}

func (s *Session) render(v evaluator.Value) (string, error) {
	if !s.html {
		return v.Inspect(), nil
	}
	if resp, ok := v.(*evaluator.Response); ok {
		return renderResponse(resp), nil
	}
	return evaluator.Emit(v)
}

func renderResponse(resp *evaluator.Response) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d\n", resp.Status)
	for _, h := range resp.Headers {
		fmt.Fprintf(&sb, "%s: %s\n", h.Name, h.Value)
	}
	sb.WriteString("\n")
	sb.Write(resp.Body)
	return sb.String()
}

func (s *Session) command(ctx context.Context, input string) (string, error) {
	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case ":help":
		return `Commands:
  :env              List bound names
  :tables           List the program's tables
  :html             Toggle HTML output (emit results instead of inspecting them)
  :let NAME EXPR    Bind the value of EXPR to NAME
  exit, quit        Leave`, nil

	case ":env":
		return strings.Join(s.env.Names(), " "), nil

	case ":tables":
		if s.program == nil || len(s.program.Tables) == 0 {
			return "(no tables)", nil
		}
		lines := make([]string, len(s.program.Tables))
		for i, t := range s.program.Tables {
			lines[i] = t.Name + (&ast.RecordType{Fields: t.Fields}).String()
		}
		return strings.Join(lines, "\n"), nil

	case ":html":
		s.html = !s.html
		if s.html {
			return "HTML output on", nil
		}
		return "HTML output off", nil

	case ":let":
		ident, src, ok := strings.Cut(rest, " ")
		if !ok || ident == "" {
			return "", fmt.Errorf("usage: :let NAME EXPR")
		}
		v, err := s.evalExpression(ctx, src)
		if err != nil {
			return "", err
		}
		s.env = s.env.Extend(ident, v)
		return "", nil
	}

	return "", fmt.Errorf("unknown command %s (try :help)", name)
}

// completions returns candidates for the last word of line
func (s *Session) completions(line string) []string {
	if strings.TrimSpace(line) == "" || strings.HasSuffix(line, " ") || strings.HasSuffix(line, "\t") {
		return nil
	}

	// A lone word starting with ':' is a command
	if trimmed := strings.TrimLeft(line, " "); strings.HasPrefix(trimmed, ":") && !strings.Contains(trimmed, " ") {
		return filterCompletions(commands, line[:len(line)-len(trimmed)], trimmed)
	}

	cut := strings.LastIndexAny(line, " {[,:") + 1
	candidates := append(slices.Clone(formWords), s.env.Names()...)
	return filterCompletions(candidates, line[:cut], line[cut:])
}

// filterCompletions returns prefix+c for every candidate c starting with word
func filterCompletions(candidates []string, prefix, word string) []string {
	if word == "" {
		return nil
	}
	var matches []string
	for _, c := range candidates {
		if strings.HasPrefix(c, word) {
			matches = append(matches, prefix+c)
		}
	}
	return matches
}

// needsMoreInput reports whether input has unclosed braces, brackets or quotes
func needsMoreInput(input string) bool {
	depth := 0
	var quote byte
	escapeNext := false

	for i := 0; i < len(input); i++ {
		ch := input[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if quote != 0 {
			switch {
			case ch == '\\' && quote == '"':
				escapeNext = true
			case ch == quote:
				quote = 0
			}
			continue
		}

		switch ch {
		case '"', '\'':
			quote = ch
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
	}

	return depth > 0 || quote != 0
}

// formatError renders an evaluation error for the prompt
func formatError(err error) string {
	var serr *serrors.SageError
	if !errors.As(err, &serr) {
		return "ERROR: " + err.Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "ERROR [%s]: %s", serr.Code, serr.Message)
	for _, hint := range serr.Hints {
		sb.WriteString("\n  " + hint)
	}
	return sb.String()
}

// Start runs the prompt with line editing, history and tab completion until
// the user leaves.
func Start(ctx context.Context, out io.Writer, s *Session, version string) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(s.completions)

	historyFile := filepath.Join(os.TempDir(), ".sage_history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintf(out, "sage %s\n", version)
	fmt.Fprintln(out, "Type ':help' for commands, 'exit' or Ctrl+D to quit")
	fmt.Fprintln(out, "")

	var buffer strings.Builder
	for {
		prompt := s.Prompt()
		if buffer.Len() > 0 {
			prompt = CONTINUATION_PROMPT
		}

		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted {
				fmt.Fprintln(out, "^C")
				buffer.Reset()
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(out)
			} else {
				fmt.Fprintf(out, "Error reading input: %v\n", err)
			}
			return
		}

		trimmed := strings.TrimSpace(input)
		if buffer.Len() == 0 {
			if trimmed == "exit" || trimmed == "quit" {
				return
			}
			if trimmed == "" {
				continue
			}
		}

		if buffer.Len() > 0 {
			buffer.WriteString("\n")
		}
		buffer.WriteString(input)

		full := buffer.String()
		if needsMoreInput(full) {
			continue
		}
		buffer.Reset()
		line.AppendHistory(full)

		result, err := s.Eval(ctx, full)
		if err != nil {
			fmt.Fprintln(out, formatError(err))
			continue
		}
		if result != "" {
			fmt.Fprintln(out, result)
		}
	}
}
