package evaluator

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/sambeau/sage/pkg/sage/ast"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/store"
)

// Query and insert evaluation, parameter binding and row decoding

// evalYield runs a query and evaluates the body once per row, collecting
// the results in row order.
func (in *Interpreter) evalYield(ctx context.Context, env *Environment, node *ast.Yield) (Value, error) {
	src, err := in.Eval(ctx, env, node.Source)
	if err != nil {
		return nil, err
	}
	query, ok := src.(*Query)
	if !ok {
		return nil, serrors.New("CONTRACT-0008", map[string]any{"Got": typeName(src)})
	}
	table := query.Table

	desc := store.QueryDescriptor{
		Table:   table.Name,
		Columns: table.Columns(),
	}

	args := make([]any, 0, len(node.Where))
	for _, cond := range node.Where {
		field, ok := table.Field(cond.Column)
		if !ok {
			return nil, serrors.New("CONTRACT-0010", map[string]any{"Table": table.Name, "Column": cond.Column})
		}
		v, err := in.Eval(ctx, env, cond.Argument)
		if err != nil {
			return nil, err
		}
		param, err := toParam(v, field.Type)
		if err != nil {
			return nil, err
		}
		desc.Where = append(desc.Where, store.Condition{Column: cond.Column, Operator: cond.Operator})
		args = append(args, param)
	}

	for _, o := range node.OrderBy {
		if _, ok := table.Field(o.Column); !ok {
			return nil, serrors.New("CONTRACT-0010", map[string]any{"Table": table.Name, "Column": o.Column})
		}
		desc.OrderBy = append(desc.OrderBy, store.Ordering{Column: o.Column, Descending: o.Descending})
	}

	rows, err := in.store.Query(ctx, desc, args)
	if err != nil {
		return nil, err
	}

	results := make([]Value, 0, len(rows))
	for _, row := range rows {
		bindings, err := decodeRow(table, row)
		if err != nil {
			return nil, err
		}
		v, err := in.Eval(ctx, env.ExtendAll(bindings), node.Body)
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}

	return &List{Elements: results}, nil
}

// evalInsert stores a record, then evaluates the trailing expression in the
// unchanged environment.
func (in *Interpreter) evalInsert(ctx context.Context, env *Environment, node *ast.Insert) (Value, error) {
	v, err := in.Eval(ctx, env, node.Value)
	if err != nil {
		return nil, err
	}
	rec, ok := v.(*Record)
	if !ok {
		return nil, serrors.New("CONTRACT-0009", map[string]any{"Table": node.Table, "Got": typeName(v)})
	}

	var table *ast.Table
	if in.program != nil {
		table = in.program.Table(node.Table)
	}
	if table == nil {
		return nil, serrors.New("CONTRACT-0011", map[string]any{"Table": node.Table})
	}

	columns := rec.Keys()
	values := make([]any, len(columns))
	for i, col := range columns {
		field, ok := table.Field(col)
		if !ok {
			return nil, serrors.New("CONTRACT-0010", map[string]any{"Table": table.Name, "Column": col})
		}
		fv, _ := rec.Get(col)
		param, err := toParam(fv, field.Type)
		if err != nil {
			return nil, err
		}
		values[i] = param
	}

	if err := in.store.Insert(ctx, table.Name, columns, values); err != nil {
		return nil, err
	}

	return in.Eval(ctx, env, node.Then)
}

// toParam converts a value into a driver argument. Integers outside the
// int64 range are sent as decimal text.
func toParam(v Value, declared ast.Type) (any, error) {
	switch val := v.(type) {
	case *Text:
		return val.Value, nil
	case *Integer:
		if val.Value.IsInt64() {
			return val.Value.Int64(), nil
		}
		return val.Value.String(), nil
	case *Boolean:
		return val.Value, nil
	}
	return nil, serrors.New("CONTRACT-0014", map[string]any{"Got": typeName(v) + " for column of type " + declared.String()})
}

// decodeRow turns a stored row into bindings, decoding each column by the
// type the table declares for it.
func decodeRow(table *ast.Table, row store.Row) ([]Binding, error) {
	bindings := make([]Binding, 0, len(row))
	for _, col := range row {
		field, ok := table.Field(col.Name)
		if !ok {
			return nil, serrors.New("DECODE-0002", map[string]any{"Table": table.Name, "Column": col.Name})
		}
		v, ok := decodeColumn(field.Type, col.Value)
		if !ok {
			return nil, serrors.New("DECODE-0001", map[string]any{
				"Table":  table.Name,
				"Column": col.Name,
				"Type":   field.Type.String(),
				"Got":    storedKind(col.Value),
			})
		}
		bindings = append(bindings, Binding{Name: col.Name, Value: v})
	}
	return bindings, nil
}

// decodeColumn decodes one stored value for a declared field type.
// Anything it does not recognise is rejected rather than guessed at.
func decodeColumn(declared ast.Type, stored any) (Value, bool) {
	bt, ok := declared.(*ast.BasicType)
	if !ok {
		return nil, false
	}

	switch bt.Kind {
	case ast.TextKind:
		switch s := stored.(type) {
		case string:
			return &Text{Value: s}, true
		case []byte:
			return &Text{Value: string(s)}, true
		}

	case ast.IntKind:
		switch n := stored.(type) {
		case int64:
			return NewInteger(n), true
		case string:
			return parseStoredInteger(n)
		case []byte:
			// NUMERIC and DECIMAL columns arrive as text from some drivers
			return parseStoredInteger(string(n))
		}

	case ast.BoolKind:
		switch b := stored.(type) {
		case bool:
			return nativeBoolToBoolean(b), true
		case int64:
			// SQLite and MySQL store booleans as 0/1
			if b == 0 || b == 1 {
				return nativeBoolToBoolean(b == 1), true
			}
		}
	}

	return nil, false
}

func parseStoredInteger(s string) (Value, bool) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, false
	}
	return &Integer{Value: n}, true
}

// storedKind describes a stored value for decode errors
func storedKind(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%T", v)
}
