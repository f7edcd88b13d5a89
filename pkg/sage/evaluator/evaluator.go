// Package evaluator is the sage expression interpreter: a tree-walking
// evaluator that reduces a checked endpoint body, under an environment and a
// store, to a Value, and renders values as HTML.
package evaluator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/sambeau/sage/pkg/sage/ast"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/store"
)

// Store is what the interpreter needs from the relational store.
// *store.Store implements it.
type Store interface {
	Query(ctx context.Context, q store.QueryDescriptor, args []any) ([]store.Row, error)
	Insert(ctx context.Context, table string, columns []string, values []any) error
}

// Interpreter evaluates expressions of one program against one store.
// It holds no per-request state; a single Interpreter serves all requests.
type Interpreter struct {
	store   Store
	program *ast.Program
}

// New creates an interpreter for program backed by st
func New(st Store, program *ast.Program) *Interpreter {
	return &Interpreter{store: st, program: program}
}

// Eval reduces expr under env. Evaluation is sequential and touches the store
// only at yield and insert nodes and when a deferred action runs.
func (in *Interpreter) Eval(ctx context.Context, env *Environment, expr ast.Expression) (Value, error) {
	switch node := expr.(type) {
	case *ast.TextLiteral:
		return &Text{Value: node.Value}, nil

	case *ast.IntegerLiteral:
		n, ok := new(big.Int).SetString(node.Value, 10)
		if !ok {
			return nil, serrors.New("CONTRACT-0012", map[string]any{
				"Function": "integer literal", "Expected": "decimal digits", "Got": fmt.Sprintf("%q", node.Value),
			})
		}
		return &Integer{Value: n}, nil

	case *ast.Identifier:
		return in.evalIdentifier(ctx, env, node)

	case *ast.Application:
		fn, err := in.Eval(ctx, env, node.Function)
		if err != nil {
			return nil, err
		}
		arg, err := in.Eval(ctx, env, node.Argument)
		if err != nil {
			return nil, err
		}
		return in.Apply(ctx, fn, arg)

	case *ast.Lambda:
		return &Closure{Env: env, Param: node.Param, Body: node.Body}, nil

	case *ast.ListLiteral:
		elems := make([]Value, 0, len(node.Elements))
		for _, e := range node.Elements {
			v, err := in.Eval(ctx, env, e)
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		return &List{Elements: elems}, nil

	case *ast.RecordLiteral:
		entries := make([]RecordEntry, 0, len(node.Fields))
		for _, f := range node.Fields {
			v, err := in.Eval(ctx, env, f.Value)
			if err != nil {
				return nil, err
			}
			entries = append(entries, RecordEntry{Key: f.Key, Value: v})
		}
		return NewRecord(entries...), nil

	case *ast.FieldAccess:
		recv, err := in.Eval(ctx, env, node.Receiver)
		if err != nil {
			return nil, err
		}
		rec, ok := recv.(*Record)
		if !ok {
			return nil, serrors.New("CONTRACT-0004", map[string]any{"Got": typeName(recv)})
		}
		v, ok := rec.Get(node.Field)
		if !ok {
			return nil, serrors.New("CONTRACT-0005", map[string]any{"Field": node.Field})
		}
		return v, nil

	case *ast.BinaryExpression:
		// Both operands are always evaluated, && and || included
		left, err := in.Eval(ctx, env, node.Left)
		if err != nil {
			return nil, err
		}
		right, err := in.Eval(ctx, env, node.Right)
		if err != nil {
			return nil, err
		}
		return evalBinary(node.Operator, left, right)

	case *ast.Yield:
		return in.evalYield(ctx, env, node)

	case *ast.Insert:
		return in.evalInsert(ctx, env, node)

	case *nativeCall:
		return node.call(ctx, in, env)
	}

	return nil, serrors.New("CONTRACT-0013", map[string]any{"Node": fmt.Sprintf("%T", expr)})
}

// evalIdentifier looks a name up, running it if it is bound to a deferred action.
func (in *Interpreter) evalIdentifier(ctx context.Context, env *Environment, node *ast.Identifier) (Value, error) {
	v, ok := env.Get(node.Name)
	if !ok {
		return nil, serrors.NewUnboundIdentifier(node.Name, env.Names())
	}
	if action, ok := v.(*Action); ok {
		return action.Run(ctx, in.store)
	}
	return v, nil
}

// Apply applies a function value to an argument: tags take attributes or a
// body, closures evaluate their body with the parameter bound.
func (in *Interpreter) Apply(ctx context.Context, fn Value, arg Value) (Value, error) {
	switch f := fn.(type) {
	case *Tag:
		if attrs, ok := arg.(*Record); ok {
			return &TagWithAttrs{Name: f.Name, Attrs: attrs}, nil
		}
		return finalizeElement(f.Name, nil, arg)

	case *TagWithAttrs:
		return finalizeElement(f.Name, f.Attrs, arg)

	case *Closure:
		return in.Eval(ctx, f.Env.Extend(f.Param, arg), f.Body)
	}

	return nil, serrors.New("CONTRACT-0002", map[string]any{"Got": typeName(fn)})
}
