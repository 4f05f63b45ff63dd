package graph

import "github.com/rendis/agentboard/pkg/schema"

// stageIndex returns the position of a stage in the fixed pipeline order,
// or -1 for the null stage.
func stageIndex(s schema.WorkflowStage) int {
	for i, stage := range schema.StageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// resetStage starts a new discovery cycle: current pointer back to
// discovery, completed markers cleared. This is the only rewind the stage
// machine permits.
func resetStage() schema.StageState {
	return schema.StageState{
		Current:   schema.StageDiscovery,
		Completed: make(map[schema.WorkflowStage]bool),
	}
}

// advanceStage moves the forward-only stage pointer to target, implicitly
// marking every prior stage complete. Advancing to the current stage or an
// earlier one is a no-op: the machine never rewinds except via resetStage.
// The returned bool reports whether the pointer moved.
func advanceStage(s schema.StageState, target schema.WorkflowStage) (schema.StageState, bool) {
	ti := stageIndex(target)
	if ti < 0 {
		return s, false
	}
	if ci := stageIndex(s.Current); ci >= ti {
		return s, false
	}

	next := s.Clone()
	if next.Completed == nil {
		next.Completed = make(map[schema.WorkflowStage]bool)
	}
	for i := 0; i < ti; i++ {
		next.Completed[schema.StageOrder[i]] = true
	}
	next.Current = target
	return next, true
}

// completeStage marks a stage done without moving the pointer.
func completeStage(s schema.StageState, stage schema.WorkflowStage) schema.StageState {
	next := s.Clone()
	if next.Completed == nil {
		next.Completed = make(map[schema.WorkflowStage]bool)
	}
	next.Completed[stage] = true
	return next
}
