package models

import (
	"encoding/json"
)

// DecisionSchema returns the JSON Schema a manager decision must satisfy.
// reason is required on every action; run_agent additionally requires a role
// from DecisionRoles.
func DecisionSchema() string {
	schema := map[string]interface{}{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"title":       "Manager Decision",
		"description": "Next action recommended for the orchestration loop",
		"type":        "object",
		"required":    []string{"action", "reason"},
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{string(ActionRunAgent), string(ActionWait), string(ActionAskUser)},
			},
			"role": map[string]interface{}{
				"type": "string",
			},
			"reason": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
				"pattern":   "\\S",
			},
			"priority": map[string]interface{}{
				"type": "string",
			},
			"targetTask": map[string]interface{}{
				"type": []string{"string", "null"},
			},
		},
		"if": map[string]interface{}{
			"properties": map[string]interface{}{
				"action": map[string]interface{}{"const": string(ActionRunAgent)},
			},
		},
		"then": map[string]interface{}{
			"required": []string{"role"},
			"properties": map[string]interface{}{
				"role": map[string]interface{}{
					"enum": DecisionRoles,
				},
			},
		},
	}

	data, _ := json.MarshalIndent(schema, "", "  ")
	return string(data)
}
