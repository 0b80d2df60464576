package builtin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"polehammer/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

// ErrDivisionByZero is reported when division is asked to divide by zero.
var ErrDivisionByZero = errors.New("division by zero")

func operands() []tools.Param {
	return []tools.Param{
		{Name: "a", Type: tools.TypeInteger, Required: true},
		{Name: "b", Type: tools.TypeInteger, Required: true},
	}
}

// Arithmetic returns the addition, subtraction, multiplication and division tools.
func Arithmetic() []tools.Declaration {
	return []tools.Declaration{
		tools.MustDeclaration("addition", "Add two numbers", binary(func(a, b float64) (float64, error) {
			return a + b, nil
		}), operands()...),
		tools.MustDeclaration("subtraction", "Subtract two numbers", binary(func(a, b float64) (float64, error) {
			return a - b, nil
		}), operands()...),
		tools.MustDeclaration("multiplication", "Multiply two numbers", binary(func(a, b float64) (float64, error) {
			return a * b, nil
		}), operands()...),
		tools.MustDeclaration("division", "Divide two numbers", binary(func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, ErrDivisionByZero
			}
			return a / b, nil
		}), operands()...),
	}
}

func binary(op func(a, b float64) (float64, error)) tools.HandlerFunc {
	return func(_ context.Context, args map[string]any) (string, error) {
		a, err := toFloat(args, "a")
		if err != nil {
			return "", err
		}
		b, err := toFloat(args, "b")
		if err != nil {
			return "", err
		}
		res, err := op(a, b)
		if err != nil {
			return "", err
		}
		return formatFloat(res), nil
	}
}

// toFloat accepts JSON numbers and numeric strings, since models send both.
func toFloat(args map[string]any, key string) (float64, error) {
	switch v := args[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case jsoniter.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("argument %q is not a number: %q", key, v)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("missing argument %q", key)
	default:
		return 0, fmt.Errorf("argument %q is not a number: %v", key, v)
	}
}

// formatFloat renders results the way the tools always have: integral values keep a
// trailing ".0" so the model can tell a computed result from an echoed input.
func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
