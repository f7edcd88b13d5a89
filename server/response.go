package server

import (
	"net/http"

	"github.com/sambeau/sage/pkg/sage/evaluator"
)

// buildResponse turns an endpoint result into a response. A response value
// is used as is; anything else is emitted as HTML with status 200 and no
// headers of its own.
func buildResponse(result evaluator.Value) (*evaluator.Response, error) {
	if resp, ok := result.(*evaluator.Response); ok {
		return resp, nil
	}

	body, err := evaluator.Emit(result)
	if err != nil {
		return nil, err
	}
	return &evaluator.Response{Status: http.StatusOK, Body: []byte(body)}, nil
}
