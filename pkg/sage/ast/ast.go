// Package ast defines the checked program the sage runtime executes: tables,
// endpoints and the expression tree of each endpoint body.
//
// A Program reaching this package has already been through the type checker.
// The evaluator relies on that and treats any ill-typed shape it meets as a
// contract violation rather than a user error.
package ast

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Node represents any node in the AST
type Node interface {
	String() string
}

// Expression represents expression nodes.
// The marker method is exported so that runtimes embedding native code
// (standard library bodies) can supply their own expression nodes.
type Expression interface {
	Node
	ExpressionNode()
}

// Program is the unit handed over by the type checker.
type Program struct {
	Tables    []*Table
	Endpoints []*Endpoint
}

// Table returns the table with the given name, or nil.
func (p *Program) Table(name string) *Table {
	for _, t := range p.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Table describes a relational table: a name and its ordered, typed fields.
type Table struct {
	Name   string
	Fields []Field
}

// Field returns the declared field with the given name.
func (t *Table) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Columns returns the field names in declared order.
func (t *Table) Columns() []string {
	cols := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		cols[i] = f.Name
	}
	return cols
}

// Field is a named, typed slot of a record or table.
type Field struct {
	Name string
	Type Type
}

// Endpoint pairs an HTTP method and path pattern with its body expression
// and the body's declared type.
type Endpoint struct {
	Method string
	Path   string
	Body   Expression
	Type   Type
	Line   int // Line in the program file, for diagnostics
}

// FormRecord reports whether the endpoint takes its input from a submitted
// form: a POST whose body is a function from a record type. It returns the
// record type whose fields the form must supply.
func (e *Endpoint) FormRecord() (*RecordType, bool) {
	if e.Method != "POST" {
		return nil, false
	}
	fn, ok := e.Type.(*FuncType)
	if !ok {
		return nil, false
	}
	rec, ok := fn.Param.(*RecordType)
	return rec, ok
}

// ============================================================================
// Expressions
// ============================================================================

// TextLiteral represents a string literal
type TextLiteral struct {
	Value string
}

func (tl *TextLiteral) ExpressionNode() {}
func (tl *TextLiteral) String() string  { return strconv.Quote(tl.Value) }

// IntegerLiteral holds the decimal text of an arbitrary-precision integer.
type IntegerLiteral struct {
	Value string
}

func (il *IntegerLiteral) ExpressionNode() {}
func (il *IntegerLiteral) String() string  { return il.Value }

// Identifier is a variable reference
type Identifier struct {
	Name string
}

func (i *Identifier) ExpressionNode() {}
func (i *Identifier) String() string  { return i.Name }

// Application applies Function to a single Argument (functions are curried).
type Application struct {
	Function Expression
	Argument Expression
}

func (a *Application) ExpressionNode() {}
func (a *Application) String() string {
	return "(" + a.Function.String() + " " + a.Argument.String() + ")"
}

// Lambda is a one-parameter function literal
type Lambda struct {
	Param string
	Body  Expression
}

func (l *Lambda) ExpressionNode() {}
func (l *Lambda) String() string  { return "(\\" + l.Param + " -> " + l.Body.String() + ")" }

// ListLiteral builds an ordered sequence
type ListLiteral struct {
	Elements []Expression
}

func (ll *ListLiteral) ExpressionNode() {}
func (ll *ListLiteral) String() string {
	elems := make([]string, len(ll.Elements))
	for i, e := range ll.Elements {
		elems[i] = e.String()
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

// RecordField is one `key: value` entry of a record literal
type RecordField struct {
	Key   string
	Value Expression
}

// RecordLiteral builds a record. Fields keep source order; a key may appear
// more than once.
type RecordLiteral struct {
	Fields []RecordField
}

func (rl *RecordLiteral) ExpressionNode() {}
func (rl *RecordLiteral) String() string {
	var out bytes.Buffer
	out.WriteString("{")
	for i, f := range rl.Fields {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(f.Key + ": " + f.Value.String())
	}
	out.WriteString("}")
	return out.String()
}

// FieldAccess reads Field from the record Receiver evaluates to
type FieldAccess struct {
	Receiver Expression
	Field    string
}

func (fa *FieldAccess) ExpressionNode() {}
func (fa *FieldAccess) String() string  { return fa.Receiver.String() + "." + fa.Field }

// BinaryExpression is `Left Operator Right`
type BinaryExpression struct {
	Operator string
	Left     Expression
	Right    Expression
}

func (be *BinaryExpression) ExpressionNode() {}
func (be *BinaryExpression) String() string {
	return "(" + be.Left.String() + " " + be.Operator + " " + be.Right.String() + ")"
}

// Operators accepted by BinaryExpression
var Operators = []string{"+", "-", "*", "/", "==", "!=", "<", "<=", ">", ">=", "&&", "||"}

// Condition restricts a query: `Column Operator Argument`.
// Column and Operator come from the program; Argument is evaluated per request
// and bound as a parameter.
type Condition struct {
	Column   string
	Operator string
	Argument Expression
}

// ConditionOperators are the comparison operators a Condition may use
var ConditionOperators = []string{"=", "!=", "<", "<=", ">", ">="}

// Ordering sorts query results by Column
type Ordering struct {
	Column     string
	Descending bool
}

// Yield runs the query Source evaluates to and evaluates Body once per row,
// with the row's columns bound as variables.
type Yield struct {
	Source  Expression
	Where   []Condition
	OrderBy []Ordering
	Body    Expression
}

func (y *Yield) ExpressionNode() {}
func (y *Yield) String() string {
	var out bytes.Buffer
	out.WriteString("for " + y.Source.String())
	for i, c := range y.Where {
		if i == 0 {
			out.WriteString(" where ")
		} else {
			out.WriteString(" and ")
		}
		out.WriteString(fmt.Sprintf("%s %s %s", c.Column, c.Operator, c.Argument.String()))
	}
	for i, o := range y.OrderBy {
		if i == 0 {
			out.WriteString(" order by ")
		} else {
			out.WriteString(", ")
		}
		out.WriteString(o.Column)
		if o.Descending {
			out.WriteString(" desc")
		}
	}
	out.WriteString(" yield " + y.Body.String())
	return out.String()
}

// Insert stores the record Value evaluates to in Table, then evaluates Then.
type Insert struct {
	Table string
	Value Expression
	Then  Expression
}

func (in *Insert) ExpressionNode() {}
func (in *Insert) String() string {
	return "insert " + in.Table + " " + in.Value.String() + " then " + in.Then.String()
}
