package validation

import (
	"encoding/json"
	"fmt"

	"github.com/rendis/agentboard/pkg/schema"
)

// decodeEvent unmarshals a structurally and semantically valid payload into
// its concrete event type.
func decodeEvent(et schema.EventType, raw []byte) (schema.Event, error) {
	switch et {
	case schema.EventTaskDiscovered:
		var e schema.TaskDiscoveredEvent
		return &e, json.Unmarshal(raw, &e)
	case schema.EventCoordinatorAnalyzing:
		var e schema.CoordinatorAnalyzingEvent
		return &e, json.Unmarshal(raw, &e)
	case schema.EventCoordinatorDecomposing:
		var e schema.CoordinatorDecomposingEvent
		return &e, json.Unmarshal(raw, &e)
	case schema.EventCoordinatorAssigning:
		var e schema.CoordinatorAssigningEvent
		return &e, json.Unmarshal(raw, &e)
	case schema.EventAgentStarted:
		var e schema.AgentStartedEvent
		return &e, json.Unmarshal(raw, &e)
	case schema.EventAgentProgress:
		var e schema.AgentProgressEvent
		return &e, json.Unmarshal(raw, &e)
	case schema.EventAgentCompleted:
		var e schema.AgentCompletedEvent
		return &e, json.Unmarshal(raw, &e)
	case schema.EventAgentError:
		var e schema.AgentErrorEvent
		return &e, json.Unmarshal(raw, &e)
	case schema.EventStateTransition:
		var e schema.StateTransitionEvent
		return &e, json.Unmarshal(raw, &e)
	case schema.EventGraphUpdate:
		var e schema.GraphUpdateEvent
		return &e, json.Unmarshal(raw, &e)
	default:
		return nil, fmt.Errorf("no decoder for event type %q", et)
	}
}
