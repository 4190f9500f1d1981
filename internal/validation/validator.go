// Package validation checks workflow definitions before they enter the
// store: JSON Schema for shape, plus the structural rules a schema cannot
// express.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/automat-dev/automat/pkg/schema"
)

// workflowSchemaJSON is the JSON Schema for workflow validation.
// Embedded as a constant to avoid filesystem dependencies.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://automat.dev/schemas/workflow.json",
  "type": "object",
  "required": ["trigger"],
  "properties": {
    "id": { "type": "string" },
    "name": { "type": "string" },
    "description": { "type": "string" },
    "enabled": { "type": "boolean" },
    "trigger": { "$ref": "#/$defs/trigger" },
    "actions": {
      "type": "array",
      "items": { "$ref": "#/$defs/action" }
    },
    "created_at": { "type": "string" },
    "updated_at": { "type": "string" }
  },
  "$defs": {
    "trigger": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["manual", "keyword", "intent", "schedule"]
        },
        "keywords": {
          "type": "array",
          "items": { "type": "string", "minLength": 1 }
        },
        "intents": {
          "type": "array",
          "items": { "type": "string", "minLength": 1 }
        },
        "schedule_spec": { "type": "string" }
      }
    },
    "action": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["mcp_tool", "ai_prompt", "notification", "clipboard", "http_request"]
        },
        "server": { "type": "string" },
        "tool": { "type": "string" },
        "parameters": { "type": "object" },
        "prompt": { "type": "string" },
        "model": { "type": "string" },
        "title": { "type": "string" },
        "message": { "type": "string" },
        "operation": { "type": "string", "enum": ["copy", "paste"] },
        "content": { "type": "string" },
        "method": { "type": "string" },
        "url": { "type": "string" },
        "headers": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "body": {}
      },
      "allOf": [
        {
          "if": { "properties": { "type": { "const": "mcp_tool" } } },
          "then": { "required": ["server", "tool"] }
        },
        {
          "if": { "properties": { "type": { "const": "ai_prompt" } } },
          "then": { "required": ["prompt"] }
        },
        {
          "if": { "properties": { "type": { "const": "http_request" } } },
          "then": { "required": ["url"] }
        }
      ]
    }
  }
}`

// Validator checks workflows against the embedded JSON Schema. It is safe
// for concurrent use.
type Validator struct {
	workflowSchema *jsonschema.Schema
	cronParser     cron.Parser
}

// NewValidator creates a Validator with the workflow schema pre-compiled.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource("https://automat.dev/schemas/workflow.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}
	wfSchema, err := c.Compile("https://automat.dev/schemas/workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &Validator{
		workflowSchema: wfSchema,
		cronParser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}, nil
}

// ValidateWorkflow validates a workflow against the schema plus the
// structural rules the schema cannot express: trigger payloads matching
// the trigger type and schedule specs that actually parse as cron.
func (v *Validator) ValidateWorkflow(wf *schema.Workflow) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}

	doc, err := toJSONValue(wf)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow").WithCause(err)
	}
	if err := v.workflowSchema.Validate(doc); err != nil {
		return toAutomatError(err)
	}

	switch wf.Trigger.Type {
	case schema.TriggerKeyword:
		if len(wf.Trigger.Keywords) == 0 {
			return schema.NewError(schema.ErrCodeValidation, "keyword trigger requires at least one keyword")
		}
	case schema.TriggerIntent:
		if len(wf.Trigger.Intents) == 0 {
			return schema.NewError(schema.ErrCodeValidation, "intent trigger requires at least one intent")
		}
	case schema.TriggerSchedule:
		if wf.Trigger.ScheduleSpec == "" {
			return schema.NewError(schema.ErrCodeValidation, "schedule trigger requires a schedule_spec")
		}
		if _, err := v.cronParser.Parse(wf.Trigger.ScheduleSpec); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"invalid schedule_spec %q: %v", wf.Trigger.ScheduleSpec, err)
		}
	}

	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toAutomatError converts a jsonschema.ValidationError into an AutomatError
// with clear, actionable messages.
func toAutomatError(err error) *schema.AutomatError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
