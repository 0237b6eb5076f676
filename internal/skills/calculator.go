package skills

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var calcTriggers = regexp.MustCompile(`(?i)^\s*(?:calculate|calc|compute|what is|what's|计算|算一下|算)\s+(.+)$`)

// calcExpression validates that the extracted text is pure arithmetic.
var calcExpression = regexp.MustCompile(`^[\d\s+\-*/^().%]+$`)

// Calculator evaluates arithmetic expressions with a shunting-yard parser.
type Calculator struct{}

func NewCalculator() *Calculator { return &Calculator{} }

func (*Calculator) Name() string           { return "calculator" }
func (*Calculator) Description() string    { return "evaluate arithmetic expressions" }
func (*Calculator) Permission() Permission { return PermCompute }

func (*Calculator) Match(prompt string) (map[string]string, bool) {
	m := calcTriggers.FindStringSubmatch(prompt)
	if m == nil {
		return nil, false
	}
	expr := strings.TrimRight(strings.TrimSpace(m[1]), "?？=")
	if !calcExpression.MatchString(expr) {
		return nil, false
	}
	return map[string]string{"expression": expr}, true
}

func (*Calculator) Execute(_ context.Context, args map[string]string) (string, error) {
	expr := args["expression"]
	value, err := Evaluate(expr)
	if err != nil {
		return "", fmt.Errorf("calculator: %w", err)
	}
	return fmt.Sprintf("%s = %s", strings.TrimSpace(expr), formatNumber(value)), nil
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', 12, 64)
}

type operator struct {
	precedence int
	rightAssoc bool
	apply      func(a, b float64) (float64, error)
}

var operators = map[string]operator{
	"+": {2, false, func(a, b float64) (float64, error) { return a + b, nil }},
	"-": {2, false, func(a, b float64) (float64, error) { return a - b, nil }},
	"*": {3, false, func(a, b float64) (float64, error) { return a * b, nil }},
	"/": {3, false, func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	}},
	"%": {3, false, func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, fmt.Errorf("modulo by zero")
		}
		return math.Mod(a, b), nil
	}},
	"^": {4, true, func(a, b float64) (float64, error) { return math.Pow(a, b), nil }},
}

// Evaluate computes an arithmetic expression via shunting-yard into RPN,
// then folds the RPN stack. Supports + - * / % ^, parentheses, and unary
// minus.
func Evaluate(expr string) (float64, error) {
	tokens, err := tokenizeExpr(expr)
	if err != nil {
		return 0, err
	}
	rpn, err := toRPN(tokens)
	if err != nil {
		return 0, err
	}
	return evalRPN(rpn)
}

func tokenizeExpr(expr string) ([]string, error) {
	var tokens []string
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(expr) && (expr[j] >= '0' && expr[j] <= '9' || expr[j] == '.') {
				j++
			}
			tokens = append(tokens, expr[i:j])
			i = j
		case strings.ContainsRune("+-*/%^()", rune(c)):
			tok := string(c)
			// Unary minus: at start or after an operator or open paren.
			if tok == "-" && (len(tokens) == 0 || isOperatorToken(tokens[len(tokens)-1]) || tokens[len(tokens)-1] == "(") {
				tok = "u-"
			}
			tokens = append(tokens, tok)
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", c)
		}
	}
	return tokens, nil
}

func isOperatorToken(tok string) bool {
	_, ok := operators[tok]
	return ok || tok == "u-"
}

func toRPN(tokens []string) ([]string, error) {
	var output, stack []string
	for _, tok := range tokens {
		switch {
		case tok == "(":
			stack = append(stack, tok)
		case tok == ")":
			for len(stack) > 0 && stack[len(stack)-1] != "(" {
				output = append(output, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
			stack = stack[:len(stack)-1]
		case tok == "u-":
			stack = append(stack, tok)
		case isOperatorToken(tok):
			op := operators[tok]
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				if top == "(" {
					break
				}
				if top == "u-" {
					output = append(output, top)
					stack = stack[:len(stack)-1]
					continue
				}
				topOp := operators[top]
				if topOp.precedence > op.precedence || (topOp.precedence == op.precedence && !op.rightAssoc) {
					output = append(output, top)
					stack = stack[:len(stack)-1]
					continue
				}
				break
			}
			stack = append(stack, tok)
		default:
			output = append(output, tok)
		}
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top == "(" {
			return nil, fmt.Errorf("unbalanced parentheses")
		}
		output = append(output, top)
		stack = stack[:len(stack)-1]
	}
	return output, nil
}

func evalRPN(rpn []string) (float64, error) {
	var stack []float64
	pop := func() (float64, bool) {
		if len(stack) == 0 {
			return 0, false
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, true
	}
	for _, tok := range rpn {
		switch {
		case tok == "u-":
			v, ok := pop()
			if !ok {
				return 0, fmt.Errorf("malformed expression")
			}
			stack = append(stack, -v)
		case isOperatorToken(tok):
			b, okB := pop()
			a, okA := pop()
			if !okA || !okB {
				return 0, fmt.Errorf("malformed expression")
			}
			v, err := operators[tok].apply(a, b)
			if err != nil {
				return 0, err
			}
			stack = append(stack, v)
		default:
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return 0, fmt.Errorf("bad number %q", tok)
			}
			stack = append(stack, v)
		}
	}
	if len(stack) != 1 {
		return 0, fmt.Errorf("malformed expression")
	}
	return stack[0], nil
}
