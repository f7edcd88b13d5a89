package evaluator

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/goodsign/monday"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/sambeau/sage/pkg/sage/ast"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
)

// nativeFunc implements a standard library function over already evaluated
// arguments.
type nativeFunc func(ctx context.Context, in *Interpreter, args []Value) (Value, error)

// nativeCall is the innermost body of a standard library closure. Library
// functions are ordinary curried closures whose last body is a nativeCall
// reading its arguments back out of the environment, so they need no
// separate value kind.
type nativeCall struct {
	name   string
	params []string
	fn     nativeFunc
}

func (nc *nativeCall) ExpressionNode() {}
func (nc *nativeCall) String() string  { return "<native " + nc.name + ">" }

func (nc *nativeCall) call(ctx context.Context, in *Interpreter, env *Environment) (Value, error) {
	args := make([]Value, len(nc.params))
	for i, p := range nc.params {
		v, ok := env.Get(p)
		if !ok {
			return nil, serrors.NewUnboundIdentifier(p, nil)
		}
		args[i] = v
	}
	return nc.fn(ctx, in, args)
}

// native builds a curried closure of the given arity around fn.
// Parameter names start with '$' so they can never collide with program names.
func native(name string, arity int, fn nativeFunc) *Closure {
	params := make([]string, arity)
	for i := range params {
		params[i] = fmt.Sprintf("$%s%d", name, i)
	}

	var body ast.Expression = &nativeCall{name: name, params: params, fn: fn}
	for i := arity - 1; i >= 1; i-- {
		body = &ast.Lambda{Param: params[i], Body: body}
	}
	return &Closure{Env: NewEnvironment(), Param: params[0], Body: body}
}

// StdlibOptions configures the standard library layer.
type StdlibOptions struct {
	Locale string           // monday locale for formatDate, e.g. "en_US"
	Now    func() time.Time // clock for `now`; defaults to time.Now
	NewID  func() string    // generator for `newId`; defaults to random UUIDs
}

// Stdlib returns the standard library bindings.
func Stdlib(opts StdlibOptions) map[string]Value {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	locale := monday.Locale(opts.Locale)
	if opts.Locale == "" {
		locale = monday.LocaleEnUS
	}

	return map[string]Value{
		"true":  TRUE,
		"false": FALSE,

		// Deferred actions: evaluated anew on every reference
		"now": &Action{Name: "now", Run: func(context.Context, Store) (Value, error) {
			return &Text{Value: now().UTC().Format(time.RFC3339)}, nil
		}},
		"newId": &Action{Name: "newId", Run: func(context.Context, Store) (Value, error) {
			return &Text{Value: newID()}, nil
		}},

		"show": native("show", 1, func(_ context.Context, _ *Interpreter, args []Value) (Value, error) {
			switch v := args[0].(type) {
			case *Integer:
				return &Text{Value: v.Value.String()}, nil
			case *Boolean:
				return &Text{Value: v.Inspect()}, nil
			case *Text:
				return v, nil
			}
			return nil, expectedArg("show", "a scalar", args[0])
		}),

		"concat": native("concat", 1, func(_ context.Context, _ *Interpreter, args []Value) (Value, error) {
			list, ok := args[0].(*List)
			if !ok {
				return nil, expectedArg("concat", "a list of text", args[0])
			}
			var sb strings.Builder
			for _, elem := range list.Elements {
				t, ok := elem.(*Text)
				if !ok {
					return nil, expectedArg("concat", "a list of text", elem)
				}
				sb.WriteString(t.Value)
			}
			return &Text{Value: sb.String()}, nil
		}),

		"length": native("length", 1, func(_ context.Context, _ *Interpreter, args []Value) (Value, error) {
			list, ok := args[0].(*List)
			if !ok {
				return nil, expectedArg("length", "a list", args[0])
			}
			return NewInteger(int64(len(list.Elements))), nil
		}),

		"not": native("not", 1, func(_ context.Context, _ *Interpreter, args []Value) (Value, error) {
			b, ok := args[0].(*Boolean)
			if !ok {
				return nil, expectedArg("not", "a boolean", args[0])
			}
			return nativeBoolToBoolean(!b.Value), nil
		}),

		"raw": native("raw", 1, func(_ context.Context, _ *Interpreter, args []Value) (Value, error) {
			t, ok := args[0].(*Text)
			if !ok {
				return nil, expectedArg("raw", "text", args[0])
			}
			return &RawHTML{Markup: t.Value}, nil
		}),

		"markdown": native("markdown", 1, func(_ context.Context, _ *Interpreter, args []Value) (Value, error) {
			t, ok := args[0].(*Text)
			if !ok {
				return nil, expectedArg("markdown", "text", args[0])
			}
			// goldmark omits raw HTML from the source unless configured otherwise
			var buf bytes.Buffer
			if err := goldmark.Convert([]byte(t.Value), &buf); err != nil {
				return nil, fmt.Errorf("markdown: %w", err)
			}
			return &RawHTML{Markup: buf.String()}, nil
		}),

		"formatDate": native("formatDate", 2, func(_ context.Context, _ *Interpreter, args []Value) (Value, error) {
			layout, ok := args[0].(*Text)
			if !ok {
				return nil, expectedArg("formatDate", "a layout", args[0])
			}
			date, ok := args[1].(*Text)
			if !ok {
				return nil, expectedArg("formatDate", "a date", args[1])
			}
			t, err := dateparse.ParseAny(date.Value)
			if err != nil {
				return nil, serrors.Wrap("OPERATOR-0002", err, map[string]any{"Value": date.Value})
			}
			return &Text{Value: monday.Format(t, layout.Value, locale)}, nil
		}),

		"redirect": native("redirect", 1, func(_ context.Context, _ *Interpreter, args []Value) (Value, error) {
			url, ok := args[0].(*Text)
			if !ok {
				return nil, expectedArg("redirect", "a URL", args[0])
			}
			return &Response{
				Status:  http.StatusSeeOther,
				Headers: []Header{{Name: "Location", Value: url.Value}},
			}, nil
		}),

		"status": native("status", 2, func(_ context.Context, _ *Interpreter, args []Value) (Value, error) {
			code, ok := args[0].(*Integer)
			if !ok {
				return nil, expectedArg("status", "an HTTP status code", args[0])
			}
			// 1xx codes are interim responses and cannot carry the body
			if !code.Value.IsInt64() || code.Value.Int64() < 200 || code.Value.Int64() > 599 {
				return nil, serrors.New("OPERATOR-0003", map[string]any{"Code": code.Value.String()})
			}
			body, err := Emit(args[1])
			if err != nil {
				return nil, err
			}
			return &Response{
				Status:  int(code.Value.Int64()),
				Headers: []Header{{Name: "Content-Type", Value: "text/html; charset=utf-8"}},
				Body:    []byte(body),
			}, nil
		}),
	}
}

func expectedArg(function, expected string, got Value) error {
	return serrors.New("CONTRACT-0012", map[string]any{
		"Function": function, "Expected": expected, "Got": typeName(got),
	})
}
