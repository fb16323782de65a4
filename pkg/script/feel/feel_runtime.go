package feel

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbinitiative/feel"
	"github.com/pbinitiative/zentask/pkg/script"
)

// FeelRuntime evaluates expressions with the native FEEL interpreter. The interpreter keeps no
// state between calls so no runner pool is needed.
type FeelRuntime struct{}

var _ script.FeelRuntime = &FeelRuntime{}

func NewFeelRuntime() *FeelRuntime {
	return &FeelRuntime{}
}

// Evaluate evaluates expression. A leading "=" marks an expression in BPMN attributes and is
// stripped, an empty expression evaluates to nil.
func (r *FeelRuntime) Evaluate(ctx context.Context, expression string, variableContext map[string]any) (any, error) {
	expression = strings.TrimPrefix(strings.TrimSpace(expression), "=")
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if variableContext == nil {
		variableContext = map[string]any{}
	}
	res, err := feel.EvalStringWithScope(expression, variableContext)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %s: %w", expression, err)
	}
	return res, nil
}

// UnaryTest evaluates a condition, anything but a boolean result is an error.
func (r *FeelRuntime) UnaryTest(ctx context.Context, expression string, variableContext map[string]any) (bool, error) {
	res, err := r.Evaluate(ctx, expression, variableContext)
	if err != nil {
		return false, err
	}
	b, ok := res.(bool)
	if !ok {
		return false, fmt.Errorf("expression %s evaluated to %v, expected a boolean", expression, res)
	}
	return b, nil
}
