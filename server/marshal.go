package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/sambeau/sage/pkg/sage/ast"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/evaluator"
)

// marshalForm builds the record a form endpoint is applied to.
//
// The record holds exactly the declared fields, in declared order, each as
// text. Submitted fields that are not declared are dropped. The first declared
// field missing from the form is reported. A field submitted with an empty
// value is present.
func marshalForm(rec *ast.RecordType, form url.Values) (*evaluator.Record, error) {
	entries := make([]evaluator.RecordEntry, 0, len(rec.Fields))
	for _, f := range rec.Fields {
		values, ok := form[f.Name]
		if !ok || len(values) == 0 {
			return nil, serrors.New("FORM-0001", map[string]any{"Field": f.Name})
		}
		entries = append(entries, evaluator.RecordEntry{Key: f.Name, Value: &evaluator.Text{Value: values[0]}})
	}
	return evaluator.NewRecord(entries...), nil
}

// maxFormMemory is how much of a multipart body is held in memory; the rest
// goes to temp files
const maxFormMemory = 32 << 20

// formValues parses the submitted form fields of r. Multipart bodies are
// parsed as such; query string parameters are never form fields.
func formValues(r *http.Request) (url.Values, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, err
		}
		return r.MultipartForm.Value, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return r.PostForm, nil
}
