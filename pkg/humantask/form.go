package humantask

import (
	"strings"
)

const optionsFromTaskDataPrefix = "options_from_task_data_var:"

// FormSchemaWithAnyOf returns a copy of schema where every `anyOf` given as
// "options_from_task_data_var:<name>" is replaced by the options listed in taskData[name].
// Each option of the list becomes {"type": "string", "title": label, "enum": [value]}; list items
// may be plain values or objects with "value" and "label".
func FormSchemaWithAnyOf(schema any, taskData map[string]any) any {
	switch v := schema.(type) {
	case map[string]any:
		res := make(map[string]any, len(v))
		for key, value := range v {
			if key == "anyOf" {
				if ref, ok := value.(string); ok && strings.HasPrefix(ref, optionsFromTaskDataPrefix) {
					res[key] = optionsFromTaskData(strings.TrimPrefix(ref, optionsFromTaskDataPrefix), taskData)
					continue
				}
			}
			res[key] = FormSchemaWithAnyOf(value, taskData)
		}
		return res
	case []any:
		res := make([]any, len(v))
		for i, item := range v {
			res[i] = FormSchemaWithAnyOf(item, taskData)
		}
		return res
	default:
		return v
	}
}

func optionsFromTaskData(name string, taskData map[string]any) []any {
	items, _ := taskData[name].([]any)
	res := make([]any, 0, len(items))
	for _, item := range items {
		value, label := item, item
		if obj, ok := item.(map[string]any); ok {
			value = obj["value"]
			label = obj["label"]
			if label == nil {
				label = value
			}
		}
		res = append(res, map[string]any{
			"type":  "string",
			"title": label,
			"enum":  []any{value},
		})
	}
	return res
}
