package program

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sambeau/sage/pkg/sage/ast"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
)

const blogProgram = `
tables:
  - name: posts
    fields:
      id: int
      title: text
      published: bool

endpoints:
  - method: GET
    path: /posts
    type: html
    body:
      app:
        - {var: ul}
        - yield:
            query: {var: posts}
            where:
              - {column: published, op: "=", arg: {var: "true"}}
            order_by:
              - {column: id, desc: true}
              - title
            body:
              app: [{var: li}, {record: {class: {text: post}, id: {var: id}}}, {var: title}]

  - method: post
    path: /posts
    type: {fn: [{record: {title: text, body: text}}, response]}
    body:
      lam:
        param: form
        body:
          insert:
            table: posts
            value: {record: {title: {field: {of: {var: form}, name: title}}}}
            then: {app: [{var: redirect}, {text: /posts}]}

  - method: GET
    path: /answer
    type: int
    body: {op: "*", left: {int: 6}, right: {int: 7}}
`

func TestParseProgram(t *testing.T) {
	p, err := Parse([]byte(blogProgram))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(p.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(p.Tables))
	}
	posts := p.Tables[0]
	if got := strings.Join(posts.Columns(), ","); got != "id,title,published" {
		t.Errorf("expected fields in declared order, got %s", got)
	}
	if f, _ := posts.Field("published"); f.Type != ast.Bool {
		t.Errorf("expected published to be bool, got %v", f.Type)
	}

	if len(p.Endpoints) != 3 {
		t.Fatalf("expected 3 endpoints, got %d", len(p.Endpoints))
	}

	list := p.Endpoints[0]
	if list.Method != "GET" || list.Path != "/posts" || list.Type != ast.HTML {
		t.Errorf("unexpected endpoint %s %s : %v", list.Method, list.Path, list.Type)
	}
	expected := `(ul for posts where published = true order by id desc, title yield ((li {class: "post", id: id}) title))`
	if list.Body.String() != expected {
		t.Errorf("unexpected body\nexpected %s\n     got %s", expected, list.Body.String())
	}

	create := p.Endpoints[1]
	if create.Method != "POST" {
		t.Errorf("method should be upper-cased, got %s", create.Method)
	}
	rec, ok := create.FormRecord()
	if !ok {
		t.Fatal("expected POST endpoint to take a form record")
	}
	if len(rec.Fields) != 2 || rec.Fields[0].Name != "title" || rec.Fields[1].Name != "body" {
		t.Errorf("unexpected form fields %v", rec)
	}
	if _, ok := create.Body.(*ast.Lambda); !ok {
		t.Errorf("expected lambda body, got %T", create.Body)
	}

	answer := p.Endpoints[2]
	if answer.Body.String() != "(6 * 7)" {
		t.Errorf("unexpected body %s", answer.Body.String())
	}
}

func TestParseRecordKeepsSourceOrderAndDuplicates(t *testing.T) {
	src := `
endpoints:
  - method: GET
    path: /r
    type: {record: {b: int, a: int}}
    body: {record: {b: {int: 1}, a: {int: 2}, b: {int: 3}}}
`
	p, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := p.Endpoints[0].Body.(*ast.RecordLiteral)
	var keys []string
	for _, f := range rec.Fields {
		keys = append(keys, f.Key)
	}
	if strings.Join(keys, ",") != "b,a,b" {
		t.Errorf("expected source order with duplicates kept, got %v", keys)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
		msg  string
	}{
		{
			"bad yaml",
			"tables: [",
			"PROGRAM-0002", "invalid program",
		},
		{
			"unsafe table name",
			"tables:\n  - name: \"posts; DROP TABLE x\"\n    fields: {id: int}\n",
			"PROGRAM-0002", "not a valid SQL identifier",
		},
		{
			"unsafe column name",
			"tables:\n  - name: posts\n    fields: {\"id--\": int}\n",
			"PROGRAM-0002", "not a valid SQL identifier",
		},
		{
			"column of composite type",
			"tables:\n  - name: posts\n    fields: {tags: {list: text}}\n",
			"PROGRAM-0002", "columns must be text, int or bool",
		},
		{
			"duplicate table",
			"tables:\n  - name: posts\n    fields: {id: int}\n  - name: posts\n    fields: {id: int}\n",
			"PROGRAM-0005", "duplicate table 'posts'",
		},
		{
			"duplicate field",
			"tables:\n  - name: posts\n    fields:\n      id: int\n      id: text\n",
			"PROGRAM-0005", "duplicate field 'id'",
		},
		{
			"unknown type",
			"endpoints:\n  - method: GET\n    path: /\n    type: float\n    body: {int: 1}\n",
			"PROGRAM-0004", "unknown type 'float'",
		},
		{
			"unknown form",
			"endpoints:\n  - method: GET\n    path: /\n    type: int\n    body: {call: x}\n",
			"PROGRAM-0003", "unknown expression form 'call'",
		},
		{
			"bad method",
			"endpoints:\n  - method: FETCH\n    path: /\n    type: int\n    body: {int: 1}\n",
			"PROGRAM-0002", "invalid endpoint method",
		},
		{
			"relative path",
			"endpoints:\n  - method: GET\n    path: posts\n    type: int\n    body: {int: 1}\n",
			"PROGRAM-0002", "must start with /",
		},
		{
			"duplicate route",
			"endpoints:\n  - {method: GET, path: /, type: int, body: {int: 1}}\n  - {method: get, path: /, type: int, body: {int: 2}}\n",
			"PROGRAM-0005", "duplicate endpoint 'GET /'",
		},
		{
			"bad integer",
			"endpoints:\n  - {method: GET, path: /, type: int, body: {int: 1.5}}\n",
			"PROGRAM-0002", "invalid integer literal",
		},
		{
			"bad operator",
			"endpoints:\n  - {method: GET, path: /, type: int, body: {op: \"%\", left: {int: 1}, right: {int: 2}}}\n",
			"PROGRAM-0002", "invalid operator",
		},
		{
			"missing lambda body",
			"endpoints:\n  - {method: GET, path: /, type: int, body: {lam: {param: x}}}\n",
			"PROGRAM-0002", `missing key "body"`,
		},
		{
			"unexpected insert key",
			"endpoints:\n  - {method: GET, path: /, type: int, body: {insert: {table: t, value: {record: {}}, then: {int: 1}, into: x}}}\n",
			"PROGRAM-0002", `unexpected key "into"`,
		},
		{
			"bad condition operator",
			"endpoints:\n  - {method: GET, path: /, type: int, body: {yield: {query: {var: t}, where: [{column: a, op: LIKE, arg: {text: x}}], body: {int: 1}}}}\n",
			"PROGRAM-0002", "invalid condition operator",
		},
		{
			"missing body",
			"endpoints:\n  - {method: GET, path: /, type: int}\n",
			"PROGRAM-0002", "missing body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var serr *serrors.SageError
			if !errors.As(err, &serr) {
				t.Fatalf("expected *SageError, got %T", err)
			}
			if serr.Code != tt.code {
				t.Errorf("expected %s, got %s: %v", tt.code, serr.Code, err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("expected message containing %q, got %q", tt.msg, err.Error())
			}
		})
	}
}

func TestParseErrorLine(t *testing.T) {
	src := "endpoints:\n  - method: GET\n    path: /\n    type: int\n    body: {nope: 1}\n"
	_, err := Parse([]byte(src))
	var serr *serrors.SageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SageError, got %v", err)
	}
	if serr.Line != 5 {
		t.Errorf("expected line 5, got %d", serr.Line)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	if err := os.WriteFile(path, []byte(blogProgram), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Endpoints) != 3 {
		t.Errorf("expected 3 endpoints, got %d", len(p.Endpoints))
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("endpoints:\n  - {method: GET, path: /, type: nope, body: {int: 1}}\n"), 0644)
	_, err = Load(bad)
	if err == nil || !strings.HasPrefix(err.Error(), bad+": line 2: ") {
		t.Errorf("expected error prefixed with file and line, got %v", err)
	}

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	if serrors.ClassOf(err) != serrors.ClassProgram {
		t.Errorf("expected program error for missing file, got %v", err)
	}
}

func TestParseExpression(t *testing.T) {
	e, err := ParseExpression([]byte(`{op: "+", left: {int: 1}, right: {var: x}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.String() != "(1 + x)" {
		t.Errorf("unexpected expression %s", e.String())
	}

	for _, src := range []string{"", "{nope: 1}", "[1, 2]", "{int: "} {
		if _, err := ParseExpression([]byte(src)); err == nil {
			t.Errorf("expected error parsing %q", src)
		}
	}
}
