package program

import (
	"fmt"
	"math/big"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/sambeau/sage/pkg/sage/ast"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
)

// Expression forms
//
// Every expression is a mapping keyed by its form. Operators carry three
// keys; every other form has exactly one:
//
//	{text: "hello"}                      text literal
//	{int: 42}                            integer literal (any size)
//	{var: name}                          variable reference
//	{app: [f, a, b]}                     curried application ((f a) b)
//	{lam: {param: x, body: e}}           abstraction
//	{list: [e, ...]}                     list construction
//	{record: {k: e, ...}}                record construction, in source order
//	{field: {of: e, name: k}}            field access
//	{op: "+", left: e, right: e}         binary operator
//	{yield: {query, where, order_by, body}}
//	{insert: {table, value, then}}

// ParseExpression decodes a single expression from its YAML form, e.g.
// {op: "+", left: {int: 1}, right: {int: 2}}.
func ParseExpression(data []byte) (ast.Expression, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, invalid(0, "expression", err.Error())
	}
	if len(root.Content) == 0 {
		return nil, invalid(0, "expression", "empty input")
	}
	return decodeExpr(root.Content[0])
}

// decodeExpr converts one expression node
func decodeExpr(node *yaml.Node) (ast.Expression, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode || len(node.Content) == 0 {
		return nil, invalid(node.Line, "expression", "expected a mapping such as {var: name}")
	}

	for i := 0; i < len(node.Content); i += 2 {
		if node.Content[i].Value == "op" {
			return decodeBinary(node)
		}
	}
	form := node.Content[0].Value
	if len(node.Content) != 2 {
		return nil, invalid(node.Line, form+" expression", "expected exactly one key")
	}
	arg := node.Content[1]

	switch form {
	case "text":
		if arg.Kind != yaml.ScalarNode {
			return nil, invalid(arg.Line, "text literal", "expected a scalar")
		}
		return &ast.TextLiteral{Value: arg.Value}, nil

	case "int":
		if arg.Kind != yaml.ScalarNode {
			return nil, invalid(arg.Line, "integer literal", "expected a number")
		}
		if _, ok := new(big.Int).SetString(arg.Value, 10); !ok {
			return nil, invalid(arg.Line, "integer literal", fmt.Sprintf("%q", arg.Value))
		}
		return &ast.IntegerLiteral{Value: arg.Value}, nil

	case "var":
		name, err := identifier(arg, "variable")
		if err != nil {
			return nil, err
		}
		return &ast.Identifier{Name: name}, nil

	case "app":
		if arg.Kind != yaml.SequenceNode || len(arg.Content) < 2 {
			return nil, invalid(arg.Line, "application", "expected [function, argument, ...]")
		}
		exprs, err := decodeExprs(arg.Content)
		if err != nil {
			return nil, err
		}
		fn := exprs[0]
		for _, a := range exprs[1:] {
			fn = &ast.Application{Function: fn, Argument: a}
		}
		return fn, nil

	case "lam":
		fields, err := keyed(arg, "lambda", "param", "body")
		if err != nil {
			return nil, err
		}
		param, err := identifier(fields["param"], "lambda parameter")
		if err != nil {
			return nil, err
		}
		body, err := decodeExpr(fields["body"])
		if err != nil {
			return nil, err
		}
		return &ast.Lambda{Param: param, Body: body}, nil

	case "list":
		if arg.Kind != yaml.SequenceNode {
			return nil, invalid(arg.Line, "list", "expected a sequence")
		}
		elems, err := decodeExprs(arg.Content)
		if err != nil {
			return nil, err
		}
		return &ast.ListLiteral{Elements: elems}, nil

	case "record":
		if arg.Kind != yaml.MappingNode {
			return nil, invalid(arg.Line, "record", "expected a mapping")
		}
		rec := &ast.RecordLiteral{}
		for i := 0; i+1 < len(arg.Content); i += 2 {
			key, err := identifier(arg.Content[i], "record key")
			if err != nil {
				return nil, err
			}
			v, err := decodeExpr(arg.Content[i+1])
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, ast.RecordField{Key: key, Value: v})
		}
		return rec, nil

	case "field":
		fields, err := keyed(arg, "field access", "of", "name")
		if err != nil {
			return nil, err
		}
		recv, err := decodeExpr(fields["of"])
		if err != nil {
			return nil, err
		}
		name, err := identifier(fields["name"], "field name")
		if err != nil {
			return nil, err
		}
		return &ast.FieldAccess{Receiver: recv, Field: name}, nil

	case "yield":
		return decodeYield(arg)

	case "insert":
		fields, err := keyed(arg, "insert", "table", "value", "then")
		if err != nil {
			return nil, err
		}
		table, err := identifier(fields["table"], "insert table")
		if err != nil {
			return nil, err
		}
		value, err := decodeExpr(fields["value"])
		if err != nil {
			return nil, err
		}
		then, err := decodeExpr(fields["then"])
		if err != nil {
			return nil, err
		}
		return &ast.Insert{Table: table, Value: value, Then: then}, nil
	}

	return nil, serrors.New("PROGRAM-0003", map[string]any{"Form": form}).WithLine(node.Line)
}

func decodeExprs(nodes []*yaml.Node) ([]ast.Expression, error) {
	exprs := make([]ast.Expression, 0, len(nodes))
	for _, n := range nodes {
		e, err := decodeExpr(n)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

func decodeBinary(node *yaml.Node) (ast.Expression, error) {
	fields, err := keyed(node, "operator", "op", "left", "right")
	if err != nil {
		return nil, err
	}
	op := fields["op"].Value
	if !slices.Contains(ast.Operators, op) {
		return nil, invalid(fields["op"].Line, "operator", fmt.Sprintf("%q", op))
	}
	left, err := decodeExpr(fields["left"])
	if err != nil {
		return nil, err
	}
	right, err := decodeExpr(fields["right"])
	if err != nil {
		return nil, err
	}
	return &ast.BinaryExpression{Operator: op, Left: left, Right: right}, nil
}

func decodeYield(node *yaml.Node) (ast.Expression, error) {
	fields, err := keyed(node, "yield", "query", "body", "where?", "order_by?")
	if err != nil {
		return nil, err
	}
	source, err := decodeExpr(fields["query"])
	if err != nil {
		return nil, err
	}
	body, err := decodeExpr(fields["body"])
	if err != nil {
		return nil, err
	}
	y := &ast.Yield{Source: source, Body: body}

	if where := fields["where"]; where != nil {
		if where.Kind != yaml.SequenceNode {
			return nil, invalid(where.Line, "where", "expected a sequence of conditions")
		}
		for _, c := range where.Content {
			cf, err := keyed(c, "condition", "column", "op", "arg")
			if err != nil {
				return nil, err
			}
			column, err := identifier(cf["column"], "condition column")
			if err != nil {
				return nil, err
			}
			op := cf["op"].Value
			if !slices.Contains(ast.ConditionOperators, op) {
				return nil, invalid(cf["op"].Line, "condition operator", fmt.Sprintf("%q", op))
			}
			arg, err := decodeExpr(cf["arg"])
			if err != nil {
				return nil, err
			}
			y.Where = append(y.Where, ast.Condition{Column: column, Operator: op, Argument: arg})
		}
	}

	if order := fields["order_by"]; order != nil {
		if order.Kind != yaml.SequenceNode {
			return nil, invalid(order.Line, "order_by", "expected a sequence")
		}
		for _, o := range order.Content {
			var ord struct {
				Column string `yaml:"column"`
				Desc   bool   `yaml:"desc"`
			}
			if o.Kind == yaml.ScalarNode {
				ord.Column = o.Value
			} else if err := o.Decode(&ord); err != nil {
				return nil, invalid(o.Line, "order_by", err.Error())
			}
			if ord.Column == "" {
				return nil, invalid(o.Line, "order_by", "missing column")
			}
			y.OrderBy = append(y.OrderBy, ast.Ordering{Column: ord.Column, Descending: ord.Desc})
		}
	}

	return y, nil
}

// keyed checks that node is a mapping with exactly the given keys and returns
// their values. A trailing '?' marks a key as optional.
func keyed(node *yaml.Node, what string, keys ...string) (map[string]*yaml.Node, error) {
	if node.Kind != yaml.MappingNode {
		return nil, invalid(node.Line, what, "expected a mapping")
	}

	allowed := map[string]bool{}
	for _, k := range keys {
		name, optional := k, false
		if k[len(k)-1] == '?' {
			name, optional = k[:len(k)-1], true
		}
		allowed[name] = optional
	}

	result := map[string]*yaml.Node{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if _, ok := allowed[key]; !ok {
			return nil, invalid(node.Content[i].Line, what, fmt.Sprintf("unexpected key %q", key))
		}
		if _, dup := result[key]; dup {
			return nil, duplicate(node.Content[i].Line, what+" key", key)
		}
		result[key] = node.Content[i+1]
	}

	for name, optional := range allowed {
		if _, ok := result[name]; !ok && !optional {
			return nil, invalid(node.Line, what, fmt.Sprintf("missing key %q", name))
		}
	}
	return result, nil
}

func identifier(node *yaml.Node, what string) (string, error) {
	if node.Kind != yaml.ScalarNode || node.Value == "" {
		return "", invalid(node.Line, what, "expected a name")
	}
	return node.Value, nil
}

// decodeType converts a type node
func decodeType(node *yaml.Node) (ast.Type, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		switch ast.BasicKind(node.Value) {
		case ast.TextKind:
			return ast.Text, nil
		case ast.IntKind:
			return ast.Int, nil
		case ast.BoolKind:
			return ast.Bool, nil
		case ast.HTMLKind:
			return ast.HTML, nil
		case ast.ResponseKind:
			return ast.Response, nil
		}

	case yaml.MappingNode:
		if len(node.Content) != 2 {
			break
		}
		arg := node.Content[1]
		switch node.Content[0].Value {
		case "list":
			elem, err := decodeType(arg)
			if err != nil {
				return nil, err
			}
			return &ast.ListType{Element: elem}, nil

		case "record":
			if arg.Kind != yaml.MappingNode {
				return nil, invalid(arg.Line, "record type", "expected a mapping of field to type")
			}
			fields, err := decodeFields(arg)
			if err != nil {
				return nil, err
			}
			return &ast.RecordType{Fields: fields}, nil

		case "fn":
			if arg.Kind != yaml.SequenceNode || len(arg.Content) != 2 {
				return nil, invalid(arg.Line, "function type", "expected [param, result]")
			}
			param, err := decodeType(arg.Content[0])
			if err != nil {
				return nil, err
			}
			result, err := decodeType(arg.Content[1])
			if err != nil {
				return nil, err
			}
			return &ast.FuncType{Param: param, Result: result}, nil
		}
	}

	name := node.Value
	if node.Kind == yaml.MappingNode && len(node.Content) > 0 {
		name = node.Content[0].Value
	}
	return nil, serrors.New("PROGRAM-0004", map[string]any{"Type": name}).WithLine(node.Line)
}
