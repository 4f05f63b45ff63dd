package validation

import (
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/agentboard/pkg/schema"
)

// Per-event-type structural schemas. They check presence and gross shape
// only; the universal field rules (agent id set, progress range, timestamp
// instant, positive issue number) live in the semantic pass so each
// violation is reported against its exact field. additionalProperties is
// deliberately left open: unrecognized extra fields never cause failure.
var eventSchemaJSON = map[schema.EventType]string{
	schema.EventTaskDiscovered: `{
	  "type": "object",
	  "required": ["eventType", "timestamp", "tasks"],
	  "properties": {
	    "timestamp": { "type": "string" },
	    "tasks": {
	      "type": "array",
	      "items": {
	        "type": "object",
	        "required": ["issueNumber", "title", "priority"],
	        "properties": {
	          "issueNumber": { "type": "number" },
	          "title": { "type": "string" },
	          "priority": { "type": "string" },
	          "labels": { "type": "array", "items": { "type": "string" } }
	        }
	      }
	    }
	  }
	}`,
	schema.EventCoordinatorAnalyzing: `{
	  "type": "object",
	  "required": ["eventType", "timestamp", "issueNumber", "analysis"],
	  "properties": {
	    "timestamp": { "type": "string" },
	    "issueNumber": { "type": "number" },
	    "analysis": {
	      "type": "object",
	      "required": ["type", "priority", "complexity"],
	      "properties": {
	        "type": { "type": "string" },
	        "priority": { "type": "string" },
	        "complexity": { "type": "string" },
	        "estimatedTime": { "type": "string" }
	      }
	    }
	  }
	}`,
	schema.EventCoordinatorDecomposing: `{
	  "type": "object",
	  "required": ["eventType", "timestamp", "issueNumber", "subtasks"],
	  "properties": {
	    "timestamp": { "type": "string" },
	    "issueNumber": { "type": "number" },
	    "subtasks": {
	      "type": "array",
	      "items": {
	        "type": "object",
	        "required": ["id", "title", "type", "dependencies"],
	        "properties": {
	          "id": { "type": "string" },
	          "title": { "type": "string" },
	          "type": { "type": "string" },
	          "dependencies": { "type": "array", "items": { "type": "string" } }
	        }
	      }
	    }
	  }
	}`,
	schema.EventCoordinatorAssigning: `{
	  "type": "object",
	  "required": ["eventType", "timestamp", "issueNumber", "assignments"],
	  "properties": {
	    "timestamp": { "type": "string" },
	    "issueNumber": { "type": "number" },
	    "assignments": {
	      "type": "array",
	      "items": {
	        "type": "object",
	        "required": ["agentId", "reason"],
	        "properties": {
	          "agentId": { "type": "string" },
	          "taskId": { "type": "string" },
	          "reason": { "type": "string" }
	        }
	      }
	    }
	  }
	}`,
	schema.EventAgentStarted: `{
	  "type": "object",
	  "required": ["eventType", "timestamp", "agentId", "issueNumber"],
	  "properties": {
	    "timestamp": { "type": "string" },
	    "agentId": { "type": "string" },
	    "issueNumber": { "type": "number" },
	    "parameters": { "type": "object" }
	  }
	}`,
	schema.EventAgentProgress: `{
	  "type": "object",
	  "required": ["eventType", "timestamp", "agentId", "issueNumber", "progress"],
	  "properties": {
	    "timestamp": { "type": "string" },
	    "agentId": { "type": "string" },
	    "issueNumber": { "type": "number" },
	    "progress": { "type": "number" },
	    "message": { "type": "string" }
	  }
	}`,
	schema.EventAgentCompleted: `{
	  "type": "object",
	  "required": ["eventType", "timestamp", "agentId", "issueNumber", "result"],
	  "properties": {
	    "timestamp": { "type": "string" },
	    "agentId": { "type": "string" },
	    "issueNumber": { "type": "number" },
	    "result": {
	      "type": "object",
	      "required": ["success"],
	      "properties": {
	        "success": { "type": "boolean" }
	      }
	    }
	  }
	}`,
	schema.EventAgentError: `{
	  "type": "object",
	  "required": ["eventType", "timestamp", "agentId", "issueNumber", "error"],
	  "properties": {
	    "timestamp": { "type": "string" },
	    "agentId": { "type": "string" },
	    "issueNumber": { "type": "number" },
	    "error": {
	      "type": "object",
	      "required": ["code", "message", "severity", "recoverable"],
	      "properties": {
	        "code": { "type": "string" },
	        "message": { "type": "string" },
	        "severity": { "type": "string" },
	        "recoverable": { "type": "boolean" },
	        "suggestedAction": { "type": "string" }
	      }
	    }
	  }
	}`,
	schema.EventStateTransition: `{
	  "type": "object",
	  "required": ["eventType", "timestamp", "issueNumber", "fromState", "toState"],
	  "properties": {
	    "timestamp": { "type": "string" },
	    "issueNumber": { "type": "number" },
	    "fromState": { "type": "string" },
	    "toState": { "type": "string" }
	  }
	}`,
	schema.EventGraphUpdate: `{
	  "type": "object",
	  "required": ["eventType", "timestamp", "nodes", "edges"],
	  "properties": {
	    "timestamp": { "type": "string" },
	    "nodes": {
	      "type": "array",
	      "items": {
	        "type": "object",
	        "required": ["id", "kind"],
	        "properties": {
	          "id": { "type": "string" },
	          "kind": { "type": "string" }
	        }
	      }
	    },
	    "edges": {
	      "type": "array",
	      "items": {
	        "type": "object",
	        "required": ["source", "target", "kind"],
	        "properties": {
	          "source": { "type": "string" },
	          "target": { "type": "string" },
	          "kind": { "type": "string" }
	        }
	      }
	    }
	  }
	}`,
}

// EventValidator implements Validator using JSON Schema Draft 2020-12 for
// the structural pass and a semantic pass for the universal field rules.
// Safe for concurrent use; all schemas are compiled once at construction.
type EventValidator struct {
	schemas map[schema.EventType]*jsonschema.Schema
}

// NewEventValidator compiles the per-event-type schemas.
func NewEventValidator() (*EventValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	compiled := make(map[schema.EventType]*jsonschema.Schema, len(eventSchemaJSON))
	for et, raw := range eventSchemaJSON {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema for %s: %w", et, err)
		}
		url := fmt.Sprintf("agentboard://events/%s.json", et)
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema resource for %s: %w", et, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", et, err)
		}
		compiled[et] = s
	}

	return &EventValidator{schemas: compiled}, nil
}

// Validate parses raw against the closed event set. On success it returns
// the typed event and a result that may still carry warnings; on failure it
// returns a nil event and a result with at least one error. It never panics
// on arbitrary input.
func (v *EventValidator) Validate(raw []byte) (schema.Event, *schema.ValidationResult) {
	result := &schema.ValidationResult{}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		result.AddError("$", schema.ErrCodeValidation, "payload is not valid JSON: "+err.Error())
		return nil, result
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		result.AddError("$", schema.ErrCodeValidation, "payload must be a JSON object")
		return nil, result
	}

	et, ok := discriminator(obj, result)
	if !ok {
		return nil, result
	}

	if serr := v.schemas[et].Validate(doc); serr != nil {
		collectSchemaIssues(serr, result)
	}

	validateSemantic(et, obj, result)

	if !result.Valid() {
		return nil, result
	}

	event, err := decodeEvent(et, raw)
	if err != nil {
		// Structure already validated; a decode failure here means a field
		// held an unexpected type the schema could not pin down.
		result.AddError("$", schema.ErrCodeValidation, "decode event: "+err.Error())
		return nil, result
	}
	return event, result
}

// discriminator extracts and checks the eventType field. An unrecognized or
// missing discriminator fails with a single error identifying the field.
func discriminator(obj map[string]any, result *schema.ValidationResult) (schema.EventType, bool) {
	rawType, present := obj["eventType"]
	if !present {
		result.AddError("eventType", schema.ErrCodeUnknownEvent, "missing eventType field")
		return "", false
	}
	s, ok := rawType.(string)
	if !ok {
		result.AddError("eventType", schema.ErrCodeUnknownEvent, "eventType must be a string")
		return "", false
	}
	et := schema.EventType(s)
	if _, known := eventSchemaJSON[et]; !known {
		result.AddError("eventType", schema.ErrCodeUnknownEvent,
			fmt.Sprintf("unknown event type %q", s))
		return "", false
	}
	return et, true
}

// collectSchemaIssues walks a ValidationError tree and records each leaf
// violation against its instance location.
func collectSchemaIssues(err error, result *schema.ValidationResult) {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		result.AddError("$", schema.ErrCodeValidation, err.Error())
		return
	}
	collectLeaves(verr, result)
}

func collectLeaves(verr *jsonschema.ValidationError, result *schema.ValidationResult) {
	if len(verr.Causes) == 0 {
		result.AddError(fieldPath(verr.InstanceLocation), schema.ErrCodeValidation, verr.Error())
		return
	}
	for _, cause := range verr.Causes {
		collectLeaves(cause, result)
	}
}

// fieldPath renders an instance location as a dotted field path.
func fieldPath(location []string) string {
	if len(location) == 0 {
		return "$"
	}
	return strings.Join(location, ".")
}
