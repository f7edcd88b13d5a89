package evaluator

import (
	"bytes"
	"math/big"
	"strings"

	serrors "github.com/sambeau/sage/pkg/sage/errors"
)

// evalBinary applies an operator to two already evaluated operands.
// Operand kinds are never coerced; a mismatch is a contract violation.
func evalBinary(op string, left, right Value) (Value, error) {
	switch op {
	case "+", "-", "*", "/":
		return evalArithmetic(op, left, right)

	case "==", "!=":
		eq, err := valuesEqual(op, left, right)
		if err != nil {
			return nil, err
		}
		if op == "!=" {
			eq = !eq
		}
		return nativeBoolToBoolean(eq), nil

	case "<", "<=", ">", ">=":
		cmp, err := compareValues(op, left, right)
		if err != nil {
			return nil, err
		}
		switch op {
		case "<":
			return nativeBoolToBoolean(cmp < 0), nil
		case "<=":
			return nativeBoolToBoolean(cmp <= 0), nil
		case ">":
			return nativeBoolToBoolean(cmp > 0), nil
		default:
			return nativeBoolToBoolean(cmp >= 0), nil
		}

	case "&&", "||":
		l, lok := left.(*Boolean)
		r, rok := right.(*Boolean)
		if !lok || !rok {
			return nil, operatorMismatch(op, left, right)
		}
		if op == "&&" {
			return nativeBoolToBoolean(l.Value && r.Value), nil
		}
		return nativeBoolToBoolean(l.Value || r.Value), nil
	}

	return nil, operatorMismatch(op, left, right)
}

func operatorMismatch(op string, left, right Value) error {
	return serrors.New("CONTRACT-0003", map[string]any{
		"Operator": op, "Left": typeName(left), "Right": typeName(right),
	})
}

// evalArithmetic handles + - * / over integers. Division truncates toward zero.
func evalArithmetic(op string, left, right Value) (Value, error) {
	l, lok := left.(*Integer)
	r, rok := right.(*Integer)
	if !lok || !rok {
		return nil, operatorMismatch(op, left, right)
	}

	result := new(big.Int)
	switch op {
	case "+":
		result.Add(l.Value, r.Value)
	case "-":
		result.Sub(l.Value, r.Value)
	case "*":
		result.Mul(l.Value, r.Value)
	case "/":
		if r.Value.Sign() == 0 {
			return nil, serrors.New("OPERATOR-0001", nil)
		}
		result.Quo(l.Value, r.Value)
	}
	return &Integer{Value: result}, nil
}

// valuesEqual compares two values of the same shape structurally.
func valuesEqual(op string, left, right Value) (bool, error) {
	switch l := left.(type) {
	case *Text:
		if r, ok := right.(*Text); ok {
			return l.Value == r.Value, nil
		}
	case *Integer:
		if r, ok := right.(*Integer); ok {
			return l.Value.Cmp(r.Value) == 0, nil
		}
	case *Boolean:
		if r, ok := right.(*Boolean); ok {
			return l.Value == r.Value, nil
		}
	case *List:
		if r, ok := right.(*List); ok {
			if len(l.Elements) != len(r.Elements) {
				return false, nil
			}
			for i := range l.Elements {
				eq, err := valuesEqual(op, l.Elements[i], r.Elements[i])
				if err != nil || !eq {
					return false, err
				}
			}
			return true, nil
		}
	case *Record:
		if r, ok := right.(*Record); ok {
			if l.Len() != r.Len() {
				return false, nil
			}
			for _, key := range l.keys {
				rv, exists := r.values[key]
				if !exists {
					return false, nil
				}
				eq, err := valuesEqual(op, l.values[key], rv)
				if err != nil || !eq {
					return false, err
				}
			}
			return true, nil
		}
	case *RawHTML:
		if r, ok := right.(*RawHTML); ok {
			return l.Markup == r.Markup, nil
		}
	case *Response:
		if r, ok := right.(*Response); ok {
			return responsesEqual(l, r), nil
		}
	}
	return false, operatorMismatch(op, left, right)
}

func responsesEqual(l, r *Response) bool {
	if l.Status != r.Status || len(l.Headers) != len(r.Headers) || !bytes.Equal(l.Body, r.Body) {
		return false
	}
	for i := range l.Headers {
		if l.Headers[i] != r.Headers[i] {
			return false
		}
	}
	return true
}

// compareValues orders two values of the same kind: text lexicographically,
// integers numerically, false before true, lists element by element.
func compareValues(op string, left, right Value) (int, error) {
	switch l := left.(type) {
	case *Text:
		if r, ok := right.(*Text); ok {
			return strings.Compare(l.Value, r.Value), nil
		}
	case *Integer:
		if r, ok := right.(*Integer); ok {
			return l.Value.Cmp(r.Value), nil
		}
	case *Boolean:
		if r, ok := right.(*Boolean); ok {
			switch {
			case l.Value == r.Value:
				return 0, nil
			case !l.Value:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case *List:
		if r, ok := right.(*List); ok {
			for i := 0; i < len(l.Elements) && i < len(r.Elements); i++ {
				c, err := compareValues(op, l.Elements[i], r.Elements[i])
				if err != nil || c != 0 {
					return c, err
				}
			}
			switch {
			case len(l.Elements) < len(r.Elements):
				return -1, nil
			case len(l.Elements) > len(r.Elements):
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, operatorMismatch(op, left, right)
}
