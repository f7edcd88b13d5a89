package evaluator

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/sambeau/sage/pkg/sage/ast"
)

// Kind names the variant of a Value
type Kind string

const (
	TEXT_KIND     Kind = "text"
	INTEGER_KIND  Kind = "integer"
	BOOLEAN_KIND  Kind = "boolean"
	LIST_KIND     Kind = "list"
	RECORD_KIND   Kind = "record"
	CLOSURE_KIND  Kind = "closure"
	ACTION_KIND   Kind = "action"
	QUERY_KIND    Kind = "query"
	HTML_KIND     Kind = "html"
	RESPONSE_KIND Kind = "response"
)

// Value is the closed set of runtime values. The unexported method seals the
// interface: only this package can add variants, and every switch over
// values ends in a contract violation for anything it does not handle.
// Values are immutable once produced.
type Value interface {
	Kind() Kind
	Inspect() string
	value()
}

// Text is a string value
type Text struct {
	Value string
}

func (t *Text) Kind() Kind      { return TEXT_KIND }
func (t *Text) Inspect() string { return strconv.Quote(t.Value) }
func (t *Text) value()          {}

// Integer is an arbitrary-precision integer. The wrapped big.Int is never
// mutated after construction.
type Integer struct {
	Value *big.Int
}

// NewInteger returns an Integer holding n
func NewInteger(n int64) *Integer {
	return &Integer{Value: big.NewInt(n)}
}

func (i *Integer) Kind() Kind      { return INTEGER_KIND }
func (i *Integer) Inspect() string { return i.Value.String() }
func (i *Integer) value()          {}

// Boolean is a truth value
type Boolean struct {
	Value bool
}

var (
	TRUE  = &Boolean{Value: true}
	FALSE = &Boolean{Value: false}
)

func nativeBoolToBoolean(b bool) *Boolean {
	if b {
		return TRUE
	}
	return FALSE
}

func (b *Boolean) Kind() Kind      { return BOOLEAN_KIND }
func (b *Boolean) Inspect() string { return strconv.FormatBool(b.Value) }
func (b *Boolean) value()          {}

// List is an ordered sequence
type List struct {
	Elements []Value
}

func (l *List) Kind() Kind { return LIST_KIND }
func (l *List) Inspect() string {
	elems := make([]string, len(l.Elements))
	for i, e := range l.Elements {
		elems[i] = e.Inspect()
	}
	return "[" + strings.Join(elems, ", ") + "]"
}
func (l *List) value() {}

// RecordEntry is one key/value pair used to construct a Record
type RecordEntry struct {
	Key   string
	Value Value
}

// Record maps identifiers to values. Keys are unique and iterate in
// construction order.
type Record struct {
	keys   []string
	values map[string]Value
}

// NewRecord builds a record from entries in order. A repeated key replaces
// the earlier value but keeps the position of its first occurrence.
func NewRecord(entries ...RecordEntry) *Record {
	r := &Record{values: make(map[string]Value, len(entries))}
	for _, e := range entries {
		if _, exists := r.values[e.Key]; !exists {
			r.keys = append(r.keys, e.Key)
		}
		r.values[e.Key] = e.Value
	}
	return r
}

// Get returns the value of a field
func (r *Record) Get(key string) (Value, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field names in construction order
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of fields
func (r *Record) Len() int { return len(r.keys) }

func (r *Record) Kind() Kind { return RECORD_KIND }
func (r *Record) Inspect() string {
	parts := make([]string, len(r.keys))
	for i, k := range r.keys {
		parts[i] = k + ": " + r.values[k].Inspect()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (r *Record) value() {}

// Closure is a function value: a parameter, a body and the environment it
// was created in.
type Closure struct {
	Env   *Environment
	Param string
	Body  ast.Expression
}

func (c *Closure) Kind() Kind      { return CLOSURE_KIND }
func (c *Closure) Inspect() string { return "\\" + c.Param + " -> " + c.Body.String() }
func (c *Closure) value()          {}

// Action is a deferred computation bound to a plain name. It runs every time
// the name is referenced; results are never cached.
type Action struct {
	Name string
	Run  func(ctx context.Context, st Store) (Value, error)
}

func (a *Action) Kind() Kind      { return ACTION_KIND }
func (a *Action) Inspect() string { return "<action " + a.Name + ">" }
func (a *Action) value()          {}

// Query is a table ready to be queried: its name and declared columns.
type Query struct {
	Table *ast.Table
}

func (q *Query) Kind() Kind      { return QUERY_KIND }
func (q *Query) Inspect() string { return "<query " + q.Table.Name + ">" }
func (q *Query) value()          {}

// HTML fragments. A Tag is a curried element constructor: applying it to a
// record supplies attributes (TagWithAttrs, still awaiting a body); applying
// either to anything else supplies the body and yields RawHTML.

// RawHTML is markup emitted verbatim. Whoever builds one vouches for its safety.
type RawHTML struct {
	Markup string
}

func (h *RawHTML) Kind() Kind      { return HTML_KIND }
func (h *RawHTML) Inspect() string { return h.Markup }
func (h *RawHTML) value()          {}

// Tag is a bare element name
type Tag struct {
	Name string
}

func (t *Tag) Kind() Kind      { return HTML_KIND }
func (t *Tag) Inspect() string { return "<" + t.Name + ">" }
func (t *Tag) value()          {}

// TagWithAttrs is an element name with its attributes, awaiting a body
type TagWithAttrs struct {
	Name  string
	Attrs *Record
}

func (t *TagWithAttrs) Kind() Kind      { return HTML_KIND }
func (t *TagWithAttrs) Inspect() string { return "<" + t.Name + " " + t.Attrs.Inspect() + ">" }
func (t *TagWithAttrs) value()          {}

// Header is a single response header
type Header struct {
	Name  string
	Value string
}

// Response is a complete HTTP response produced by a program
type Response struct {
	Status  int
	Headers []Header
	Body    []byte
}

func (r *Response) Kind() Kind { return RESPONSE_KIND }
func (r *Response) Inspect() string {
	return fmt.Sprintf("<response %d, %d headers, %d bytes>", r.Status, len(r.Headers), len(r.Body))
}
func (r *Response) value() {}

// typeName describes a value for error messages. HTML variants are told apart
// since tag application depends on which one is present.
func typeName(v Value) string {
	switch v.(type) {
	case *Tag:
		return "tag"
	case *TagWithAttrs:
		return "tag with attributes"
	case *RawHTML:
		return "html"
	case nil:
		return "nothing"
	}
	return string(v.Kind())
}
