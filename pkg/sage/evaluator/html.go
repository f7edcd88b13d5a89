package evaluator

import (
	"strings"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
)

// Emit renders a value as HTML.
//
// Raw fragments pass through unchanged, tags become empty elements, text is
// escaped, integers print in decimal and lists concatenate their elements'
// emissions. Any other kind is a contract violation.
func Emit(v Value) (string, error) {
	var sb strings.Builder
	if err := emitTo(&sb, v); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func emitTo(sb *strings.Builder, v Value) error {
	switch val := v.(type) {
	case *RawHTML:
		sb.WriteString(val.Markup)
	case *Tag:
		writeElement(sb, val.Name, "", "")
	case *TagWithAttrs:
		attrs, err := serializeAttrs(val.Name, val.Attrs)
		if err != nil {
			return err
		}
		writeElement(sb, val.Name, attrs, "")
	case *Text:
		sb.WriteString(EscapeText(val.Value))
	case *Integer:
		sb.WriteString(val.Value.String())
	case *List:
		for _, elem := range val.Elements {
			if err := emitTo(sb, elem); err != nil {
				return err
			}
		}
	default:
		return serrors.New("CONTRACT-0006", map[string]any{"Got": typeName(v)})
	}
	return nil
}

// EscapeText replaces &, <, > and " with their entities in a single pass.
// No other character is touched; in particular ' is left as is.
func EscapeText(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, c := range s {
		switch c {
		case '&':
			result.WriteString("&amp;")
		case '<':
			result.WriteString("&lt;")
		case '>':
			result.WriteString("&gt;")
		case '"':
			result.WriteString("&quot;")
		default:
			result.WriteRune(c)
		}
	}
	return result.String()
}

// finalizeElement closes a curried tag over its body.
func finalizeElement(name string, attrs *Record, body Value) (Value, error) {
	var serialized string
	if attrs != nil {
		var err error
		serialized, err = serializeAttrs(name, attrs)
		if err != nil {
			return nil, err
		}
	}

	inner, err := Emit(body)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	writeElement(&sb, name, serialized, inner)
	return &RawHTML{Markup: sb.String()}, nil
}

func writeElement(sb *strings.Builder, name, attrs, inner string) {
	sb.WriteString("<")
	sb.WriteString(name)
	if attrs != "" {
		sb.WriteString(" ")
		sb.WriteString(attrs)
	}
	sb.WriteString(">")
	sb.WriteString(inner)
	sb.WriteString("</")
	sb.WriteString(name)
	sb.WriteString(">")
}

// serializeAttrs renders `k="v"` pairs, space separated, in record order.
func serializeAttrs(tag string, attrs *Record) (string, error) {
	parts := make([]string, 0, attrs.Len())
	for _, key := range attrs.Keys() {
		v, _ := attrs.Get(key)
		text, ok := coerceText(v)
		if !ok {
			return "", serrors.New("CONTRACT-0007", map[string]any{
				"Attribute": key, "Tag": tag, "Got": typeName(v),
			})
		}
		parts = append(parts, key+`="`+EscapeText(text)+`"`)
	}
	return strings.Join(parts, " "), nil
}

// coerceText converts scalar values to their text form for attributes.
func coerceText(v Value) (string, bool) {
	switch val := v.(type) {
	case *Text:
		return val.Value, true
	case *Integer:
		return val.Value.String(), true
	case *Boolean:
		return val.Inspect(), true
	}
	return "", false
}
