package server

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/sambeau/sage/pkg/sage/ast"
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/store"
)

// app is everything derived from one loaded program. It is immutable once
// built; reloading builds a new app and swaps it in.
type app struct {
	program *ast.Program
	interp  *evaluator.Interpreter
	builder *evaluator.Builder
	router  chi.Router
}

func newApp(s *Server, p *ast.Program, opts evaluator.StdlibOptions) *app {
	a := &app{
		program: p,
		interp:  evaluator.New(s.store, p),
		builder: evaluator.NewBuilder(p, opts),
	}

	r := chi.NewRouter()
	for _, ep := range p.Endpoints {
		r.Method(ep.Method, ep.Path, s.endpointHandler(a, ep))
	}
	a.router = r

	return a
}

// migrate creates any program table the database does not have yet.
// Existing tables are never altered.
func migrate(ctx context.Context, st *store.Store, p *ast.Program) error {
	for _, t := range p.Tables {
		columns := make([]store.ColumnDef, len(t.Fields))
		for i, f := range t.Fields {
			columns[i] = store.ColumnDef{Name: f.Name, Kind: f.Type.String()}
		}
		if err := st.CreateTable(ctx, t.Name, columns); err != nil {
			return err
		}
	}
	return nil
}
