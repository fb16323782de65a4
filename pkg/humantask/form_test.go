package humantask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormSchemaWithAnyOf(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"fruit": map[string]any{
				"type":  "string",
				"anyOf": "options_from_task_data_var:fruits",
			},
			"tags": map[string]any{
				"type":  "array",
				"items": []any{map[string]any{"anyOf": "options_from_task_data_var:tags"}},
			},
			"other": map[string]any{"anyOf": []any{"kept"}},
		},
	}
	data := map[string]any{
		"fruits": []any{map[string]any{"value": "apple", "label": "Apple"}, map[string]any{"value": "pear"}},
		"tags":   []any{"a"},
	}

	res := FormSchemaWithAnyOf(schema, data).(map[string]any)
	props := res["properties"].(map[string]any)

	assert.Equal(t, []any{
		map[string]any{"type": "string", "title": "Apple", "enum": []any{"apple"}},
		map[string]any{"type": "string", "title": "pear", "enum": []any{"pear"}},
	}, props["fruit"].(map[string]any)["anyOf"])
	items := props["tags"].(map[string]any)["items"].([]any)
	assert.Equal(t, []any{map[string]any{"type": "string", "title": "a", "enum": []any{"a"}}}, items[0].(map[string]any)["anyOf"])
	assert.Equal(t, []any{"kept"}, props["other"].(map[string]any)["anyOf"])

	// the input stays untouched
	assert.Equal(t, "options_from_task_data_var:fruits", schema["properties"].(map[string]any)["fruit"].(map[string]any)["anyOf"])
}

func TestFormSchemaWithMissingVariable(t *testing.T) {
	res := FormSchemaWithAnyOf(map[string]any{"anyOf": "options_from_task_data_var:missing"}, map[string]any{})
	assert.Equal(t, map[string]any{"anyOf": []any{}}, res)
}
