package server

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sambeau/sage/pkg/sage/ast"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/evaluator"
)

// DevError holds information about a failed request to display in dev mode.
type DevError struct {
	Class    string   // Error class: contract, decode, database, ...
	Code     string   // Catalog code, empty for errors from outside the catalog
	Route    string   // "METHOD /path" of the endpoint
	File     string   // Program file
	Line     int      // Line of the endpoint in the program file (0 if unknown)
	Message  string   // Error message
	Hints    []string // Suggestions for fixing the error
	Body     string   // The endpoint body as an expression
	BasePath string   // Base path for making paths relative (project root)
}

// newDevError describes err raised while serving ep.
func newDevError(err error, ep *ast.Endpoint, programPath, basePath string) *DevError {
	d := &DevError{
		Class:    "runtime",
		Route:    ep.Method + " " + ep.Path,
		File:     programPath,
		Line:     ep.Line,
		Message:  err.Error(),
		Body:     ep.Body.String(),
		BasePath: basePath,
	}

	var serr *serrors.SageError
	if errors.As(err, &serr) {
		d.Class = string(serr.Class)
		d.Code = serr.Code
		d.Message = serr.Message
		d.Hints = append([]string(nil), serr.Hints...)
	}
	if serrors.IsContractViolation(err) {
		d.Hints = append(d.Hints, "the program passed type checking, so this is a checker defect")
	}
	return d
}

// SourceLine represents a line of the program file for display.
type SourceLine struct {
	Number  int
	Content string
	IsError bool
}

// errorPageStyles contains the inline CSS for the error page.
const errorPageStyles = `
<style>
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
         background: #1a1a2e; color: #eee; padding: 2rem; }
  .error-container { max-width: 900px; margin: 0 auto; }
  h1 { font-size: 1.5rem; margin-bottom: 1.5rem; color: #ff6b6b; }
  .panel { background: #16213e; border-radius: 8px; padding: 1rem 1.25rem; margin-bottom: 1rem; }
  .error-location { border-left: 4px solid #ff6b6b; }
  .error-class { display: inline-block; background: #ff6b6b; color: #1a1a2e; padding: 0.2rem 0.5rem;
                 border-radius: 4px; font-size: 0.75rem; font-weight: 600; text-transform: uppercase;
                 margin-right: 0.5rem; }
  .mono { font-family: 'SF Mono', Monaco, 'Courier New', monospace; font-size: 0.875rem; }
  .file-path { color: #7f8c8d; word-break: break-all; }
  .line-info { color: #f39c12; font-weight: 600; }
  .error-message { color: #ff6b6b; line-height: 1.6; white-space: pre-wrap; word-break: break-word; }
  .error-hint { border-left: 4px solid #4ecdc4; }
  .hint-header { color: #4ecdc4; font-weight: 600; margin-bottom: 0.5rem; }
  .expression { color: #a8dadc; white-space: pre-wrap; word-break: break-word; }
  .source-line { display: flex; }
  .source-line.error-line { background: rgba(255, 107, 107, 0.15); }
  .line-number { color: #555; width: 3rem; text-align: right; padding-right: 1rem; user-select: none; }
  .line-content { white-space: pre; }
</style>
`

// renderDevErrorPage writes an HTML error page for dev mode.
func renderDevErrorPage(w http.ResponseWriter, devErr *DevError) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)

	var sourceLines []SourceLine
	if devErr.File != "" && devErr.Line > 0 {
		sourceLines = getSourceContext(devErr.File, devErr.Line, 5)
	}
	displayFile := makeRelativePath(devErr.File, devErr.BasePath)

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	sb.WriteString("<meta charset=\"utf-8\">\n")
	sb.WriteString("<title>Error - sage dev</title>\n")
	sb.WriteString(errorPageStyles)
	sb.WriteString("</head>\n<body>\n<div class=\"error-container\">\n")
	sb.WriteString(fmt.Sprintf("<h1>%s failed</h1>\n", evaluator.EscapeText(devErr.Route)))

	// Class, code and location
	sb.WriteString("<div class=\"panel error-location\">\n")
	sb.WriteString(fmt.Sprintf("<span class=\"error-class\">%s</span>", evaluator.EscapeText(devErr.Class)))
	if devErr.Code != "" {
		sb.WriteString(fmt.Sprintf("<span class=\"mono\">%s</span> ", evaluator.EscapeText(devErr.Code)))
	}
	if displayFile != "" {
		sb.WriteString("<span class=\"mono file-path\">")
		sb.WriteString(evaluator.EscapeText(displayFile))
		if devErr.Line > 0 {
			sb.WriteString(fmt.Sprintf(" : <span class=\"line-info\">%d</span>", devErr.Line))
		}
		sb.WriteString("</span>")
	}
	sb.WriteString("\n</div>\n")

	sb.WriteString("<div class=\"panel mono error-message\">")
	sb.WriteString(evaluator.EscapeText(devErr.Message))
	sb.WriteString("</div>\n")

	if len(devErr.Hints) > 0 {
		sb.WriteString("<div class=\"panel error-hint\">\n<div class=\"hint-header\">Hints</div>\n")
		for _, h := range devErr.Hints {
			sb.WriteString("<div class=\"mono\">")
			sb.WriteString(evaluator.EscapeText(h))
			sb.WriteString("</div>\n")
		}
		sb.WriteString("</div>\n")
	}

	if devErr.Body != "" {
		sb.WriteString("<div class=\"panel\">\n<div class=\"hint-header\">Endpoint body</div>\n")
		sb.WriteString("<div class=\"mono expression\">")
		sb.WriteString(evaluator.EscapeText(devErr.Body))
		sb.WriteString("</div>\n</div>\n")
	}

	if len(sourceLines) > 0 {
		sb.WriteString("<div class=\"panel mono\">\n")
		for _, line := range sourceLines {
			class := "source-line"
			if line.IsError {
				class += " error-line"
			}
			sb.WriteString(fmt.Sprintf("<div class=\"%s\"><span class=\"line-number\">%d</span>", class, line.Number))
			sb.WriteString("<span class=\"line-content\">")
			sb.WriteString(evaluator.EscapeText(line.Content))
			sb.WriteString("</span></div>\n")
		}
		sb.WriteString("</div>\n")
	}

	sb.WriteString("</div>\n</body>\n</html>")

	w.Write([]byte(sb.String()))
}

// getSourceContext reads a file and returns lines around the error line.
func getSourceContext(filePath string, errorLine, contextLines int) []SourceLine {
	file, err := os.Open(filePath)
	if err != nil {
		return nil
	}
	defer file.Close()

	startLine := max(errorLine-contextLines, 1)
	endLine := errorLine + contextLines

	var lines []SourceLine
	scanner := bufio.NewScanner(file)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		if lineNum < startLine {
			continue
		}
		if lineNum > endLine {
			break
		}
		lines = append(lines, SourceLine{
			Number:  lineNum,
			Content: scanner.Text(),
			IsError: lineNum == errorLine,
		})
	}

	return lines
}

// makeRelativePath converts an absolute path to one relative to basePath.
// If the path cannot be made relative, it returns the original path.
func makeRelativePath(path, basePath string) string {
	if basePath == "" || path == "" {
		return path
	}
	rel, err := filepath.Rel(basePath, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return "./" + rel
}
