// Package program loads a checked sage program from its YAML interchange form.
//
// The file is what the type checker hands to the runtime: tables with their
// ordered, typed fields and endpoints with their body expressions and declared
// types. Loading checks shape only; well-typedness is the checker's job.
//
//	tables:
//	  - name: posts
//	    fields:
//	      id: int
//	      title: text
//	endpoints:
//	  - method: GET
//	    path: /posts/{id}
//	    type: html
//	    body:
//	      yield:
//	        query: {var: posts}
//	        where: [{column: id, op: "=", arg: {var: id}}]
//	        body: {app: [{var: h1}, {var: title}]}
package program

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sambeau/sage/pkg/sage/ast"
	serrors "github.com/sambeau/sage/pkg/sage/errors"
	"github.com/sambeau/sage/pkg/sage/store"
)

// Methods an endpoint may declare
var Methods = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}

type programFile struct {
	Tables    []tableFile    `yaml:"tables"`
	Endpoints []endpointFile `yaml:"endpoints"`
}

type tableFile struct {
	Name   string    `yaml:"name"`
	Fields yaml.Node `yaml:"fields"`
}

type endpointFile struct {
	Method string    `yaml:"method"`
	Path   string    `yaml:"path"`
	Type   yaml.Node `yaml:"type"`
	Body   yaml.Node `yaml:"body"`
}

// Load reads and parses the program file at path.
func Load(path string) (*ast.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, serrors.Wrap("PROGRAM-0001", err, map[string]any{"Path": path})
	}

	p, err := Parse(data)
	if err != nil {
		if serr, ok := err.(*serrors.SageError); ok {
			return nil, serr.WithFile(path)
		}
		return nil, err
	}
	return p, nil
}

// Parse decodes a program from YAML.
func Parse(data []byte) (*ast.Program, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, invalid(0, "program", err.Error())
	}
	if len(root.Content) == 0 {
		return nil, invalid(0, "program", "empty document")
	}

	var file programFile
	if err := root.Content[0].Decode(&file); err != nil {
		return nil, invalid(root.Content[0].Line, "program", err.Error())
	}

	program := &ast.Program{}
	seen := map[string]bool{}
	for _, tf := range file.Tables {
		table, err := decodeTable(tf)
		if err != nil {
			return nil, err
		}
		if seen[table.Name] {
			return nil, duplicate(tf.Fields.Line, "table", table.Name)
		}
		seen[table.Name] = true
		program.Tables = append(program.Tables, table)
	}

	routes := map[string]bool{}
	for _, ef := range file.Endpoints {
		ep, err := decodeEndpoint(ef)
		if err != nil {
			return nil, err
		}
		route := ep.Method + " " + ep.Path
		if routes[route] {
			return nil, duplicate(ep.Line, "endpoint", route)
		}
		routes[route] = true
		program.Endpoints = append(program.Endpoints, ep)
	}

	return program, nil
}

func decodeTable(tf tableFile) (*ast.Table, error) {
	line := tf.Fields.Line
	if !store.IsValidIdentifier(tf.Name) {
		return nil, invalid(line, "table name", fmt.Sprintf("%q is not a valid SQL identifier", tf.Name))
	}
	if tf.Fields.Kind != yaml.MappingNode || len(tf.Fields.Content) == 0 {
		return nil, invalid(line, "table "+tf.Name, "fields must be a non-empty mapping of name to type")
	}

	fields, err := decodeFields(&tf.Fields)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if !store.IsValidIdentifier(f.Name) {
			return nil, invalid(line, "column name", fmt.Sprintf("%q is not a valid SQL identifier", f.Name))
		}
		bt, ok := f.Type.(*ast.BasicType)
		if !ok || (bt.Kind != ast.TextKind && bt.Kind != ast.IntKind && bt.Kind != ast.BoolKind) {
			return nil, invalid(line, "column "+tf.Name+"."+f.Name, "columns must be text, int or bool")
		}
	}
	return &ast.Table{Name: tf.Name, Fields: fields}, nil
}

// decodeFields reads an ordered name: type mapping
func decodeFields(node *yaml.Node) ([]ast.Field, error) {
	var fields []ast.Field
	seen := map[string]bool{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if seen[key.Value] {
			return nil, duplicate(key.Line, "field", key.Value)
		}
		seen[key.Value] = true

		t, err := decodeType(node.Content[i+1])
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.Field{Name: key.Value, Type: t})
	}
	return fields, nil
}

func decodeEndpoint(ef endpointFile) (*ast.Endpoint, error) {
	line := ef.Body.Line
	method := strings.ToUpper(ef.Method)
	if !slices.Contains(Methods, method) {
		return nil, invalid(line, "endpoint method", fmt.Sprintf("%q", ef.Method))
	}
	if !strings.HasPrefix(ef.Path, "/") {
		return nil, invalid(line, "endpoint path", fmt.Sprintf("%q must start with /", ef.Path))
	}
	if ef.Body.Kind == 0 {
		return nil, invalid(line, "endpoint "+method+" "+ef.Path, "missing body")
	}
	if ef.Type.Kind == 0 {
		return nil, invalid(line, "endpoint "+method+" "+ef.Path, "missing type")
	}

	t, err := decodeType(&ef.Type)
	if err != nil {
		return nil, err
	}
	body, err := decodeExpr(&ef.Body)
	if err != nil {
		return nil, err
	}
	return &ast.Endpoint{Method: method, Path: ef.Path, Body: body, Type: t, Line: line}, nil
}

func invalid(line int, what, detail string) *serrors.SageError {
	return serrors.New("PROGRAM-0002", map[string]any{"What": what, "Detail": detail}).WithLine(line)
}

func duplicate(line int, what, name string) *serrors.SageError {
	return serrors.New("PROGRAM-0005", map[string]any{"What": what, "Name": name}).WithLine(line)
}
