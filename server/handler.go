package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sambeau/sage/pkg/sage/ast"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/evaluator"
)

// endpointHandler serves one endpoint of a.
//
// The flow is: environment for the matched path, body evaluation, form
// application for record-typed POST endpoints, then the response.
func (s *Server) endpointHandler(a *app, ep *ast.Endpoint) http.HandlerFunc {
	form, takesForm := ep.FormRecord()

	return func(w http.ResponseWriter, r *http.Request) {
		// Store work is not cancelled when the client goes away
		ctx := context.WithoutCancel(r.Context())

		env := a.builder.Build(pathVars(r))

		result, err := a.interp.Eval(ctx, env, ep.Body)
		if err != nil {
			s.handleError(w, r, ep, err)
			return
		}

		if takesForm {
			values, err := formValues(r)
			if err != nil {
				s.handleError(w, r, ep, serrors.Wrap("FORM-0002", err, nil))
				return
			}
			rec, err := marshalForm(form, values)
			if err != nil {
				s.handleError(w, r, ep, err)
				return
			}
			result, err = a.interp.Apply(ctx, result, rec)
			if err != nil {
				s.handleError(w, r, ep, err)
				return
			}
		}

		resp, err := buildResponse(result)
		if err != nil {
			s.handleError(w, r, ep, err)
			return
		}
		writeResponse(w, resp)
	}
}

// pathVars returns the variables matched by the route pattern.
func pathVars(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	vars := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		// The catch-all "*" is not an identifier
		if key == "*" {
			continue
		}
		vars[key] = rctx.URLParams.Values[i]
	}
	return vars
}

// handleError maps an evaluation failure to a response.
// Form errors go back to the client; everything else is a 500 that is only
// described in the log (and on the dev error page).
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, ep *ast.Endpoint, err error) {
	if serrors.IsUserError(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if serrors.IsContractViolation(err) {
		s.logDefect("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		s.logError("%s %s: %v", r.Method, r.URL.Path, err)
	}

	if s.config.Server.Dev {
		renderDevErrorPage(w, newDevError(err, ep, s.config.Program, s.config.BaseDir))
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// writeResponse writes status, headers in order, then the body.
func writeResponse(w http.ResponseWriter, resp *evaluator.Response) {
	h := w.Header()
	for _, hdr := range resp.Headers {
		h.Add(hdr.Name, hdr.Value)
	}
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}
