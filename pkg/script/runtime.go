package script

import "context"

// FeelRuntime evaluates FEEL expressions such as gateway conditions.
type FeelRuntime interface {
	UnaryTest(ctx context.Context, expression string, variableContext map[string]any) (bool, error)
	Evaluate(ctx context.Context, expression string, variableContext map[string]any) (any, error)
}

// JsRuntime runs script task bodies. The script sees a copy of the task data as `data`
// and the returned map is the new task data.
type JsRuntime interface {
	RunScript(ctx context.Context, script string, data map[string]any) (map[string]any, error)
}
