package evaluator

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/sambeau/sage/pkg/sage/ast"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/store"
)

func postRow(id int64, title string, published bool) store.Row {
	return store.Row{
		{Name: "id", Value: id},
		{Name: "title", Value: title},
		{Name: "published", Value: published},
	}
}

func TestYieldRowsInStoreOrder(t *testing.T) {
	st := &fakeStore{rows: []store.Row{
		postRow(2, "Second", true),
		postRow(1, "First", false),
		postRow(3, "Third", true),
	}}

	// Row columns shadow the outer title only inside the body
	expr := list(
		&ast.Yield{Source: ident("posts"), Body: ident("title")},
		ident("title"),
	)
	v, err := testEval(t, st, expr, Binding{Name: "title", Value: &Text{Value: "outer"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `[["Second", "First", "Third"], "outer"]`
	if v.Inspect() != expected {
		t.Errorf("expected %s, got %s", expected, v.Inspect())
	}
	if len(st.queries) != 1 {
		t.Fatalf("expected one query, got %d", len(st.queries))
	}
	if got := strings.Join(st.queries[0].Columns, ","); got != "id,title,published" {
		t.Errorf("expected every declared column selected, got %s", got)
	}
}

func TestYieldNoRows(t *testing.T) {
	v, err := testEval(t, &fakeStore{}, &ast.Yield{Source: ident("posts"), Body: ident("title")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Inspect() != "[]" {
		t.Errorf("expected empty list, got %s", v.Inspect())
	}
}

func TestYieldBindsArgumentsInOrder(t *testing.T) {
	st := &fakeStore{}
	expr := &ast.Yield{
		Source: ident("posts"),
		Where: []ast.Condition{
			{Column: "id", Operator: ">", Argument: bin("+", num("1"), num("1"))},
			{Column: "title", Operator: "!=", Argument: ident("q")},
			{Column: "published", Operator: "=", Argument: ident("true")},
		},
		OrderBy: []ast.Ordering{{Column: "id", Descending: true}},
		Body:    ident("id"),
	}
	if _, err := testEval(t, st, expr, Binding{Name: "q", Value: &Text{Value: "x' OR 1=1"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedArgs := []any{int64(2), "x' OR 1=1", true}
	if !reflect.DeepEqual(st.args[0], expectedArgs) {
		t.Errorf("expected args %v, got %v", expectedArgs, st.args[0])
	}
	q := st.queries[0]
	if len(q.Where) != 3 || q.Where[0].Column != "id" || q.Where[0].Operator != ">" {
		t.Errorf("unexpected conditions %+v", q.Where)
	}
	if len(q.OrderBy) != 1 || !q.OrderBy[0].Descending {
		t.Errorf("unexpected ordering %+v", q.OrderBy)
	}
}

func TestYieldContractViolations(t *testing.T) {
	tests := []struct {
		name string
		expr ast.Expression
		code string
	}{
		{"source not a query", &ast.Yield{Source: text("posts"), Body: num("1")}, "CONTRACT-0008"},
		{"unknown where column", &ast.Yield{
			Source: ident("posts"),
			Where:  []ast.Condition{{Column: "author", Operator: "=", Argument: text("x")}},
			Body:   num("1"),
		}, "CONTRACT-0010"},
		{"unknown order column", &ast.Yield{
			Source:  ident("posts"),
			OrderBy: []ast.Ordering{{Column: "author"}},
			Body:    num("1"),
		}, "CONTRACT-0010"},
		{"unbindable argument", &ast.Yield{
			Source: ident("posts"),
			Where:  []ast.Condition{{Column: "title", Operator: "=", Argument: list()}},
			Body:   num("1"),
		}, "CONTRACT-0014"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{}
			_, err := testEval(t, st, tt.expr)
			expectCode(t, err, tt.code)
			if len(st.queries) != 0 {
				t.Error("store should not be queried")
			}
		})
	}
}

func TestYieldDecoding(t *testing.T) {
	tests := []struct {
		name     string
		row      store.Row
		expected string
	}{
		{"native kinds", postRow(1, "a", true), `[[1, "a", true]]`},
		{"integer as text", store.Row{{Name: "id", Value: "123456789012345678901234567890"}}, `[[123456789012345678901234567890]]`},
		{"integer as bytes", store.Row{{Name: "id", Value: []byte("42")}}, "[[42]]"},
		{"text as bytes", store.Row{{Name: "title", Value: []byte("hi")}}, `[["hi"]]`},
		{"bool as 0/1", store.Row{{Name: "published", Value: int64(0)}}, "[[false]]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body []ast.Expression
			for _, col := range tt.row {
				body = append(body, ident(col.Name))
			}
			st := &fakeStore{rows: []store.Row{tt.row}}
			v, err := testEval(t, st, &ast.Yield{Source: ident("posts"), Body: list(body...)})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Inspect() != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, v.Inspect())
			}
		})
	}
}

func TestYieldDecodeFailures(t *testing.T) {
	tests := []struct {
		name string
		col  store.Column
		code string
	}{
		{"null", store.Column{Name: "title", Value: nil}, "DECODE-0001"},
		{"float for int", store.Column{Name: "id", Value: 1.5}, "DECODE-0001"},
		{"int for text", store.Column{Name: "title", Value: int64(1)}, "DECODE-0001"},
		{"non-numeric text for int", store.Column{Name: "id", Value: "12abc"}, "DECODE-0001"},
		{"bool out of range", store.Column{Name: "published", Value: int64(2)}, "DECODE-0001"},
		{"unknown column", store.Column{Name: "author", Value: "x"}, "DECODE-0002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{rows: []store.Row{{tt.col}}}
			_, err := testEval(t, st, &ast.Yield{Source: ident("posts"), Body: num("1")})
			expectCode(t, err, tt.code)
			if !serrors.IsContractViolation(err) {
				t.Error("decode failures are contract violations")
			}
		})
	}
}

func TestYieldStoreFailurePropagates(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := testEval(t, &fakeStore{queryErr: boom}, &ast.Yield{Source: ident("posts"), Body: num("1")})
	if !errors.Is(err, boom) {
		t.Errorf("expected store error to propagate, got %v", err)
	}
}

func TestInsert(t *testing.T) {
	st := &fakeStore{}
	expr := &ast.Insert{
		Table: "posts",
		Value: rec("title", text("Hello"), "id", num("7"), "published", ident("false")),
		Then:  ident("title"),
	}
	v, err := testEval(t, st, expr, Binding{Name: "title", Value: &Text{Value: "outer"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The inserted record's fields are not in scope afterwards
	if v.Inspect() != `"outer"` {
		t.Errorf("expected the outer binding, got %s", v.Inspect())
	}

	if len(st.inserts) != 1 {
		t.Fatalf("expected exactly one insert, got %d", len(st.inserts))
	}
	call := st.inserts[0]
	if call.table != "posts" {
		t.Errorf("expected table posts, got %s", call.table)
	}
	if !reflect.DeepEqual(call.columns, []string{"title", "id", "published"}) {
		t.Errorf("expected columns in record order, got %v", call.columns)
	}
	if !reflect.DeepEqual(call.values, []any{"Hello", int64(7), false}) {
		t.Errorf("unexpected values %v", call.values)
	}
}

func TestInsertIntroducesNoBindings(t *testing.T) {
	// published is bound in no layer, so it stays unbound after the insert
	expr := &ast.Insert{Table: "posts", Value: rec("published", ident("true")), Then: ident("published")}
	st := &fakeStore{}
	_, err := testEval(t, st, expr)
	expectCode(t, err, "CONTRACT-0001")
	if len(st.inserts) != 1 {
		t.Errorf("expected the insert to run before the trailing expression, got %d inserts", len(st.inserts))
	}

	// title names an HTML element and keeps meaning the tag
	expr = &ast.Insert{Table: "posts", Value: rec("title", text("Hello")), Then: ident("title")}
	v, err := testEval(t, &fakeStore{}, expr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tag, ok := v.(*Tag); !ok || tag.Name != "title" {
		t.Errorf("expected the title tag, got %s", v.Inspect())
	}
}

func TestInsertContractViolations(t *testing.T) {
	tests := []struct {
		name string
		expr ast.Expression
		code string
	}{
		{"not a record", &ast.Insert{Table: "posts", Value: text("x"), Then: num("1")}, "CONTRACT-0009"},
		{"unknown table", &ast.Insert{Table: "comments", Value: rec(), Then: num("1")}, "CONTRACT-0011"},
		{"unknown column", &ast.Insert{Table: "posts", Value: rec("author", text("x")), Then: num("1")}, "CONTRACT-0010"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{}
			_, err := testEval(t, st, tt.expr)
			expectCode(t, err, tt.code)
			if len(st.inserts) != 0 {
				t.Error("nothing should be inserted")
			}
		})
	}
}

func TestInsertStoreFailureSkipsTrailingExpression(t *testing.T) {
	tick, n := counter()
	boom := errors.New("disk full")
	expr := &ast.Insert{Table: "posts", Value: rec("title", text("x")), Then: ident("tick")}
	_, err := testEval(t, &fakeStore{insertErr: boom}, expr, Binding{Name: "tick", Value: tick})
	if !errors.Is(err, boom) {
		t.Errorf("expected store error, got %v", err)
	}
	if *n != 0 {
		t.Error("trailing expression ran after a failed insert")
	}
}

// Insert then query through a real SQLite store
func TestDatabaseRoundTrip(t *testing.T) {
	st, err := store.Open("sqlite", ":memory:", store.Options{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.Exec(ctx, `CREATE TABLE posts (id INTEGER, title TEXT, published INTEGER)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	insert := func(id, title string) ast.Expression {
		return &ast.Insert{
			Table: "posts",
			Value: rec("id", num(id), "title", text(title), "published", ident("true")),
			Then:  text("ok"),
		}
	}
	for _, p := range [][2]string{{"1", "A"}, {"2", "B"}, {"3", "'); DROP TABLE posts; --"}} {
		if _, err := testEval(t, st, insert(p[0], p[1])); err != nil {
			t.Fatalf("insert %s: %v", p[0], err)
		}
	}

	expr := app(ident("ul"), &ast.Yield{
		Source:  ident("posts"),
		Where:   []ast.Condition{{Column: "published", Operator: "=", Argument: ident("true")}},
		OrderBy: []ast.Ordering{{Column: "id", Descending: true}},
		Body:    app(ident("li"), rec("data-id", ident("id")), ident("title")),
	})
	v, err := testEval(t, st, expr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := Emit(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `<ul><li data-id="3">'); DROP TABLE posts; --</li><li data-id="2">B</li><li data-id="1">A</li></ul>`
	if got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}
