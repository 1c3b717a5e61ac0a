// Package conditions evaluates task destination conditions such as
//
//	{{ context.executions.router.result.modality }} == 'CT' AND {{ context.executions.router.status }} == 'Succeeded'
//
// Placeholders are resolved against the workflow instance, the keywords AND,
// OR and NULL are rewritten, and the result is evaluated with govaluate.
package conditions

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/dukex/workflow-manager/pkg/models"
)

var (
	ErrInvalidExpression = errors.New("invalid condition expression")
	ErrNotBoolean        = errors.New("condition did not evaluate to a boolean")
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

const nullParameter = "placeholderNull"

var functions = map[string]govaluate.ExpressionFunction{
	"contains": func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("contains expects 2 arguments, got %d", len(args))
		}

		return strings.Contains(fmt.Sprint(args[0]), fmt.Sprint(args[1])), nil
	},
	"lower": func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("lower expects 1 argument, got %d", len(args))
		}

		return strings.ToLower(fmt.Sprint(args[0])), nil
	},
}

// EvaluateAll reports whether every condition holds for instance. An empty
// list is true.
func EvaluateAll(conditions []string, instance *models.WorkflowInstance) (bool, error) {
	for _, condition := range conditions {
		ok, err := Evaluate(condition, instance)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// Evaluate evaluates a single condition against instance. An empty condition is true.
func Evaluate(condition string, instance *models.WorkflowInstance) (bool, error) {
	if strings.TrimSpace(condition) == "" {
		return true, nil
	}

	expression, parameters, err := compile(condition, instance)
	if err != nil {
		return false, err
	}

	result, err := expression.Evaluate(parameters)
	if err != nil {
		return false, fmt.Errorf("%w %q: %v", ErrInvalidExpression, condition, err)
	}

	return asBool(result)
}

// Validate reports whether condition parses, without resolving placeholders.
func Validate(condition string) error {
	if strings.TrimSpace(condition) == "" {
		return nil
	}

	_, _, err := compile(condition, nil)

	return err
}

func compile(condition string, instance *models.WorkflowInstance) (*govaluate.EvaluableExpression, map[string]any, error) {
	parameters := map[string]any{nullParameter: nil}
	index := 0

	substituted := placeholderPattern.ReplaceAllStringFunc(condition, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		name := "placeholder" + strconv.Itoa(index)
		index++

		parameters[name] = Resolve(path, instance)

		return name
	})

	expression, err := govaluate.NewEvaluableExpressionWithFunctions(rewriteKeywords(substituted), functions)
	if err != nil {
		return nil, nil, fmt.Errorf("%w %q: %v", ErrInvalidExpression, condition, err)
	}

	return expression, parameters, nil
}

// rewriteKeywords maps AND, OR and NULL to govaluate syntax outside quoted strings.
func rewriteKeywords(expression string) string {
	var (
		out   strings.Builder
		word  strings.Builder
		quote rune
	)

	flush := func() {
		switch strings.ToUpper(word.String()) {
		case "AND":
			out.WriteString("&&")
		case "OR":
			out.WriteString("||")
		case "NULL":
			out.WriteString(nullParameter)
		default:
			out.WriteString(word.String())
		}

		word.Reset()
	}

	for _, r := range expression {
		switch {
		case quote != 0:
			out.WriteRune(r)

			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			flush()
			out.WriteRune(r)

			quote = r
		case r == '_' || r == '.' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9'):
			word.WriteRune(r)
		default:
			flush()
			out.WriteRune(r)
		}
	}

	flush()

	return out.String()
}

func asBool(value any) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		result, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%w: cannot convert string %q", ErrNotBoolean, v)
		}

		return result, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("%w: cannot convert %T", ErrNotBoolean, value)
	}
}
