package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sambeau/sage/pkg/sage/ast"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/store"
)

// fakeStore records every call and replays canned rows.
type fakeStore struct {
	rows      []store.Row
	queryErr  error
	insertErr error

	queries []store.QueryDescriptor
	args    [][]any
	inserts []insertCall
}

type insertCall struct {
	table   string
	columns []string
	values  []any
}

func (f *fakeStore) Query(_ context.Context, q store.QueryDescriptor, args []any) ([]store.Row, error) {
	f.queries = append(f.queries, q)
	f.args = append(f.args, args)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, nil
}

func (f *fakeStore) Insert(_ context.Context, table string, columns []string, values []any) error {
	f.inserts = append(f.inserts, insertCall{table: table, columns: columns, values: values})
	return f.insertErr
}

func (f *fakeStore) calls() int { return len(f.queries) + len(f.inserts) }

var postsTable = &ast.Table{
	Name: "posts",
	Fields: []ast.Field{
		{Name: "id", Type: ast.Int},
		{Name: "title", Type: ast.Text},
		{Name: "published", Type: ast.Bool},
	},
}

var testProgram = &ast.Program{Tables: []*ast.Table{postsTable}}

// Expression helpers

func text(s string) ast.Expression  { return &ast.TextLiteral{Value: s} }
func num(s string) ast.Expression   { return &ast.IntegerLiteral{Value: s} }
func ident(n string) ast.Expression { return &ast.Identifier{Name: n} }
func lam(p string, body ast.Expression) ast.Expression {
	return &ast.Lambda{Param: p, Body: body}
}

func app(fn ast.Expression, args ...ast.Expression) ast.Expression {
	for _, a := range args {
		fn = &ast.Application{Function: fn, Argument: a}
	}
	return fn
}

func bin(op string, left, right ast.Expression) ast.Expression {
	return &ast.BinaryExpression{Operator: op, Left: left, Right: right}
}

func list(elems ...ast.Expression) ast.Expression {
	return &ast.ListLiteral{Elements: elems}
}

// rec builds a record literal from alternating keys and values
func rec(kv ...any) ast.Expression {
	r := &ast.RecordLiteral{}
	for i := 0; i < len(kv); i += 2 {
		r.Fields = append(r.Fields, ast.RecordField{Key: kv[i].(string), Value: kv[i+1].(ast.Expression)})
	}
	return r
}

// testEval evaluates expr in the standard request environment plus extra
func testEval(t *testing.T, st Store, expr ast.Expression, extra ...Binding) (Value, error) {
	t.Helper()
	env := NewBuilder(testProgram, StdlibOptions{}).Build(nil).ExtendAll(extra)
	return New(st, testProgram).Eval(context.Background(), env, expr)
}

func mustEval(t *testing.T, expr ast.Expression, extra ...Binding) Value {
	t.Helper()
	v, err := testEval(t, &fakeStore{}, expr, extra...)
	if err != nil {
		t.Fatalf("eval %s: unexpected error: %v", expr, err)
	}
	return v
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %s, got nil", code)
	}
	var serr *serrors.SageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SageError %s, got %T: %v", code, err, err)
	}
	if serr.Code != code {
		t.Fatalf("expected error %s, got %s: %v", code, serr.Code, err)
	}
}

// counter returns an action that yields 1, 2, 3... on successive runs
func counter() (*Action, *int) {
	n := 0
	return &Action{Name: "tick", Run: func(context.Context, Store) (Value, error) {
		n++
		return NewInteger(int64(n)), nil
	}}, &n
}

func TestEvalLiteralsArePure(t *testing.T) {
	tests := []struct {
		expr     ast.Expression
		expected string
	}{
		{text("hello"), `"hello"`},
		{text(""), `""`},
		{num("42"), "42"},
		{num("-7"), "-7"},
		{num("123456789012345678901234567890"), "123456789012345678901234567890"},
	}

	for _, tt := range tests {
		st := &fakeStore{}
		v, err := testEval(t, st, tt.expr)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.expr, err)
		}
		if v.Inspect() != tt.expected {
			t.Errorf("%s: expected %s, got %s", tt.expr, tt.expected, v.Inspect())
		}
		if st.calls() != 0 {
			t.Errorf("%s: literal touched the store %d times", tt.expr, st.calls())
		}
	}
}

func TestEvalUnboundIdentifier(t *testing.T) {
	_, err := testEval(t, &fakeStore{}, ident("postz"))
	expectCode(t, err, "CONTRACT-0001")
	if !serrors.IsContractViolation(err) {
		t.Error("unbound identifier should be a contract violation")
	}
	if !strings.Contains(err.Error(), "Did you mean `posts`?") {
		t.Errorf("expected a did-you-mean hint, got %q", err.Error())
	}
}

func TestEvalActionsRunOnEveryReference(t *testing.T) {
	tick, n := counter()
	v := mustEval(t, list(ident("tick"), ident("tick"), ident("tick")), Binding{Name: "tick", Value: tick})

	if v.Inspect() != "[1, 2, 3]" {
		t.Errorf("expected [1, 2, 3], got %s", v.Inspect())
	}
	if *n != 3 {
		t.Errorf("expected 3 runs, got %d", *n)
	}
}

func TestEvalClosures(t *testing.T) {
	tests := []struct {
		name     string
		expr     ast.Expression
		expected string
	}{
		{"identity", app(lam("x", ident("x")), num("5")), "5"},
		{"arithmetic", app(lam("x", bin("+", ident("x"), num("1"))), num("41")), "42"},
		{"curried capture", app(lam("x", lam("y", ident("x"))), text("outer"), text("ignored")), `"outer"`},
		{"inner shadows", app(lam("x", app(lam("x", ident("x")), text("inner"))), text("outer")), `"inner"`},
		{"outer restored", app(lam("x", list(app(lam("x", ident("x")), text("inner")), ident("x"))), text("outer")), `["inner", "outer"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := mustEval(t, tt.expr)
			if v.Inspect() != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, v.Inspect())
			}
		})
	}
}

func TestEvalClosureCapturesDefiningEnvironment(t *testing.T) {
	// \x -> \y -> x applied once, then called where x means something else
	partial := mustEval(t, app(lam("x", lam("y", ident("x"))), text("captured")))
	closure, ok := partial.(*Closure)
	if !ok {
		t.Fatalf("expected closure, got %T", partial)
	}

	in := New(&fakeStore{}, testProgram)
	v, err := in.Apply(context.Background(), closure, &Text{Value: "y"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Inspect() != `"captured"` {
		t.Errorf("expected captured binding, got %s", v.Inspect())
	}
}

func TestEvalApplyNonFunction(t *testing.T) {
	_, err := testEval(t, &fakeStore{}, app(num("1"), num("2")))
	expectCode(t, err, "CONTRACT-0002")
	if !serrors.IsContractViolation(err) {
		t.Error("expected contract violation")
	}
}

func TestEvalApplicationOrder(t *testing.T) {
	// Function position is evaluated before the argument
	tick, _ := counter()
	v := mustEval(t,
		app(app(lam("f", lam("a", list(ident("f"), ident("a")))), ident("tick")), ident("tick")),
		Binding{Name: "tick", Value: tick})
	if v.Inspect() != "[1, 2]" {
		t.Errorf("expected [1, 2], got %s", v.Inspect())
	}
}

func TestEvalRecords(t *testing.T) {
	v := mustEval(t, rec("b", num("1"), "a", num("2"), "b", num("3")))
	r, ok := v.(*Record)
	if !ok {
		t.Fatalf("expected record, got %T", v)
	}
	if got := strings.Join(r.Keys(), ","); got != "b,a" {
		t.Errorf("expected keys b,a, got %s", got)
	}
	if b, _ := r.Get("b"); b.Inspect() != "3" {
		t.Errorf("expected last write to win, got b = %s", b.Inspect())
	}
}

func TestEvalFieldAccess(t *testing.T) {
	v := mustEval(t, &ast.FieldAccess{Receiver: rec("name", text("Ada")), Field: "name"})
	if v.Inspect() != `"Ada"` {
		t.Errorf("expected \"Ada\", got %s", v.Inspect())
	}

	_, err := testEval(t, &fakeStore{}, &ast.FieldAccess{Receiver: rec("name", text("Ada")), Field: "age"})
	expectCode(t, err, "CONTRACT-0005")

	_, err = testEval(t, &fakeStore{}, &ast.FieldAccess{Receiver: text("Ada"), Field: "name"})
	expectCode(t, err, "CONTRACT-0004")
}

func TestEvalBinaryOperators(t *testing.T) {
	tests := []struct {
		expr     ast.Expression
		expected string
	}{
		{bin("+", num("2"), num("3")), "5"},
		{bin("-", num("2"), num("3")), "-1"},
		{bin("*", num("6"), num("7")), "42"},
		{bin("/", num("7"), num("2")), "3"},
		{bin("/", num("-7"), num("2")), "-3"},
		{bin("+", num("99999999999999999999"), num("1")), "100000000000000000000"},
		{bin("==", text("a"), text("a")), "true"},
		{bin("!=", num("1"), num("2")), "true"},
		{bin("<", text("apple"), text("banana")), "true"},
		{bin(">=", num("3"), num("3")), "true"},
		{bin("<", ident("false"), ident("true")), "true"},
		{bin("<", list(num("1"), num("2")), list(num("1"), num("3"))), "true"},
		{bin("<", list(num("1")), list(num("1"), num("0"))), "true"},
		{bin("==", list(num("1"), text("x")), list(num("1"), text("x"))), "true"},
		{bin("==", rec("a", num("1"), "b", num("2")), rec("b", num("2"), "a", num("1"))), "true"},
		{bin("==", rec("a", num("1")), rec("a", num("2"))), "false"},
		{bin("&&", ident("true"), ident("false")), "false"},
		{bin("||", ident("false"), ident("true")), "true"},
	}

	for _, tt := range tests {
		v := mustEval(t, tt.expr)
		if v.Inspect() != tt.expected {
			t.Errorf("%s: expected %s, got %s", tt.expr, tt.expected, v.Inspect())
		}
	}
}

func TestEvalOperatorKindMismatch(t *testing.T) {
	tests := []ast.Expression{
		bin("+", text("1"), num("1")),
		bin("*", ident("true"), num("2")),
		bin("<", text("a"), num("1")),
		bin("==", num("1"), text("1")),
		bin("&&", num("1"), ident("true")),
		bin("<", rec("a", num("1")), rec("a", num("2"))),
	}

	for _, expr := range tests {
		_, err := testEval(t, &fakeStore{}, expr)
		expectCode(t, err, "CONTRACT-0003")
		if !serrors.IsContractViolation(err) {
			t.Errorf("%s: expected contract violation", expr)
		}
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	_, err := testEval(t, &fakeStore{}, bin("/", num("1"), num("0")))
	expectCode(t, err, "OPERATOR-0001")
	if serrors.IsContractViolation(err) {
		t.Error("division by zero is a runtime error, not a contract violation")
	}
}

func TestEvalLogicalOperatorsEvaluateBothSides(t *testing.T) {
	t.Run("effect still happens", func(t *testing.T) {
		tick, n := counter()
		expr := bin("&&", ident("false"), bin("==", ident("tick"), num("1")))
		v := mustEval(t, expr, Binding{Name: "tick", Value: tick})
		if v.Inspect() != "false" {
			t.Errorf("expected false, got %s", v.Inspect())
		}
		if *n != 1 {
			t.Errorf("right operand of && not evaluated")
		}

		expr = bin("||", ident("true"), bin("==", ident("tick"), num("1")))
		mustEval(t, expr, Binding{Name: "tick", Value: tick})
		if *n != 2 {
			t.Errorf("right operand of || not evaluated")
		}
	})

	t.Run("failure still fails", func(t *testing.T) {
		_, err := testEval(t, &fakeStore{}, bin("&&", ident("false"), bin("+", text("x"), num("1"))))
		expectCode(t, err, "CONTRACT-0003")

		_, err = testEval(t, &fakeStore{}, bin("||", ident("true"), ident("nope")))
		expectCode(t, err, "CONTRACT-0001")
	})
}

func TestEvalUnknownNode(t *testing.T) {
	_, err := New(&fakeStore{}, testProgram).Eval(context.Background(), NewEnvironment(), nil)
	expectCode(t, err, "CONTRACT-0013")
}
