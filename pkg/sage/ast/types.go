package ast

import "strings"

// Type is a checked type of the endpoint language
type Type interface {
	String() string
	typeNode()
}

// BasicKind names the non-composite types
type BasicKind string

const (
	TextKind     BasicKind = "text"
	IntKind      BasicKind = "int"
	BoolKind     BasicKind = "bool"
	HTMLKind     BasicKind = "html"
	ResponseKind BasicKind = "response"
)

// BasicType is one of the non-composite types
type BasicType struct {
	Kind BasicKind
}

func (bt *BasicType) typeNode()      {}
func (bt *BasicType) String() string { return string(bt.Kind) }

// Shared instances of the basic types
var (
	Text     = &BasicType{Kind: TextKind}
	Int      = &BasicType{Kind: IntKind}
	Bool     = &BasicType{Kind: BoolKind}
	HTML     = &BasicType{Kind: HTMLKind}
	Response = &BasicType{Kind: ResponseKind}
)

// ListType is a homogeneous sequence type
type ListType struct {
	Element Type
}

func (lt *ListType) typeNode()      {}
func (lt *ListType) String() string { return "[" + lt.Element.String() + "]" }

// RecordType has ordered, uniquely named fields
type RecordType struct {
	Fields []Field
}

func (rt *RecordType) typeNode() {}
func (rt *RecordType) String() string {
	parts := make([]string, len(rt.Fields))
	for i, f := range rt.Fields {
		parts[i] = f.Name + ": " + f.Type.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FuncType is a one-parameter function type
type FuncType struct {
	Param  Type
	Result Type
}

func (ft *FuncType) typeNode()      {}
func (ft *FuncType) String() string { return ft.Param.String() + " -> " + ft.Result.String() }

// IsBasic reports whether t is the basic type of the given kind.
func IsBasic(t Type, kind BasicKind) bool {
	bt, ok := t.(*BasicType)
	return ok && bt.Kind == kind
}
