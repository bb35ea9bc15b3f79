// Package expr implements the minimal, side-effect-free expression language
// used for edge guards and custom idempotency keys: field lookups, string
// concatenation with '+', and equality comparison. No arithmetic, no
// function calls, no external state, so evaluation is deterministic and
// auditable.
package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// LookupFunc resolves a dotted field path against the execution context.
type LookupFunc func(path string) (any, bool)

// ErrMissingField is returned when an expression references a field absent
// from the context.
var ErrMissingField = errors.New("missing context field")

// ErrSyntax is returned for malformed expressions.
var ErrSyntax = errors.New("invalid expression")

// MissingFieldError carries the field path that failed to resolve.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing context field %q", e.Field)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// EvalString evaluates a concatenation expression to its string value.
// Comparison operators are rejected here; keys are plain strings.
func EvalString(expression string, lookup LookupFunc) (string, error) {
	tokens, err := tokenize(expression)
	if err != nil {
		return "", err
	}

	value, rest, err := evalTerm(tokens, lookup)
	if err != nil {
		return "", err
	}

	if len(rest) != 0 {
		return "", fmt.Errorf("%w: unexpected %q", ErrSyntax, rest[0].text)
	}

	return value, nil
}

// EvalBool evaluates a guard expression. A comparison yields its result; a
// bare term is truthy when non-empty and not "false" or "0". An empty
// expression is an unguarded edge and always passes.
func EvalBool(expression string, lookup LookupFunc) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}

	tokens, err := tokenize(expression)
	if err != nil {
		return false, err
	}

	left, rest, err := evalTerm(tokens, lookup)
	if err != nil {
		return false, err
	}

	if len(rest) == 0 {
		return truthy(left), nil
	}

	op := rest[0]
	if op.kind != tokenOp || (op.text != "==" && op.text != "!=") {
		return false, fmt.Errorf("%w: unexpected %q", ErrSyntax, op.text)
	}

	right, rest, err := evalTerm(rest[1:], lookup)
	if err != nil {
		return false, err
	}

	if len(rest) != 0 {
		return false, fmt.Errorf("%w: unexpected %q", ErrSyntax, rest[0].text)
	}

	if op.text == "==" {
		return left == right, nil
	}

	return left != right, nil
}

func truthy(value string) bool {
	return value != "" && value != "false" && value != "0"
}

// evalTerm evaluates operand ('+' operand)* and returns unconsumed tokens.
func evalTerm(tokens []token, lookup LookupFunc) (string, []token, error) {
	if len(tokens) == 0 {
		return "", nil, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	}

	value, err := evalOperand(tokens[0], lookup)
	if err != nil {
		return "", nil, err
	}

	rest := tokens[1:]

	for len(rest) >= 2 && rest[0].kind == tokenOp && rest[0].text == "+" {
		next, err := evalOperand(rest[1], lookup)
		if err != nil {
			return "", nil, err
		}

		value += next
		rest = rest[2:]
	}

	return value, rest, nil
}

func evalOperand(tok token, lookup LookupFunc) (string, error) {
	switch tok.kind {
	case tokenString:
		return tok.text, nil
	case tokenIdent:
		// Numeric and boolean literals never hit the context.
		if _, err := strconv.ParseFloat(tok.text, 64); err == nil {
			return tok.text, nil
		}

		if tok.text == "true" || tok.text == "false" {
			return tok.text, nil
		}

		value, ok := lookup(tok.text)
		if !ok {
			return "", &MissingFieldError{Field: tok.text}
		}

		return Stringify(value), nil
	default:
		return "", fmt.Errorf("%w: unexpected %q", ErrSyntax, tok.text)
	}
}

// Stringify renders a context value the way keys and guards compare it.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenString
	tokenOp
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(expression string) ([]token, error) {
	tokens := make([]token, 0, 4)
	runes := []rune(expression)

	for i := 0; i < len(runes); {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'' || r == '"':
			literal, next, err := scanString(runes, i)
			if err != nil {
				return nil, err
			}

			tokens = append(tokens, token{kind: tokenString, text: literal})
			i = next
		case r == '+':
			tokens = append(tokens, token{kind: tokenOp, text: "+"})
			i++
		case r == '=' || r == '!':
			if i+1 >= len(runes) || runes[i+1] != '=' {
				return nil, fmt.Errorf("%w: unexpected %q", ErrSyntax, string(r))
			}

			tokens = append(tokens, token{kind: tokenOp, text: string(r) + "="})
			i += 2
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			start := i
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}

			tokens = append(tokens, token{kind: tokenIdent, text: string(runes[start:i])})
		default:
			return nil, fmt.Errorf("%w: unexpected %q", ErrSyntax, string(r))
		}
	}

	return tokens, nil
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-'
}

func scanString(runes []rune, start int) (string, int, error) {
	quote := runes[start]

	for i := start + 1; i < len(runes); i++ {
		if runes[i] == quote {
			return string(runes[start+1 : i]), i + 1, nil
		}
	}

	return "", 0, fmt.Errorf("%w: unterminated string", ErrSyntax)
}
