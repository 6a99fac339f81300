package streaming

import "fmt"

// Stage is a value object describing one step of the diagnostic workflow
// whose stream a caller subscribes to.
type Stage struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	TargetPanel string `json:"target_panel"` // "reasoning" or "chat"
}

// NewStage creates a Stage with validation
func NewStage(key, name, targetPanel string) (Stage, error) {
	if key == "" {
		return Stage{}, fmt.Errorf("stage key cannot be empty")
	}
	if targetPanel != "reasoning" && targetPanel != "chat" {
		return Stage{}, fmt.Errorf("invalid target panel: %s", targetPanel)
	}
	return Stage{Key: key, Name: name, TargetPanel: targetPanel}, nil
}

// String implements the Stringer interface
func (s Stage) String() string {
	return s.Key
}

// WorkflowStages returns the fixed stage sequence of the diagnostic
// workflow, in execution order.
func WorkflowStages() []Stage {
	return []Stage{
		{Key: "initial", Name: "Initial Assessment", TargetPanel: "chat"},
		{Key: "extraction", Name: "Symptom Extraction", TargetPanel: "reasoning"},
		{Key: "causal_analysis", Name: "Causal Analysis", TargetPanel: "reasoning"},
		{Key: "validation", Name: "Validation", TargetPanel: "reasoning"},
		{Key: "counterfactual", Name: "Counterfactual Review", TargetPanel: "reasoning"},
		{Key: "diagnosis", Name: "Diagnosis", TargetPanel: "chat"},
		{Key: "treatment_planning", Name: "Treatment Planning", TargetPanel: "reasoning"},
		{Key: "patient_specific", Name: "Patient-Specific Factors", TargetPanel: "reasoning"},
		{Key: "final_plan", Name: "Final Plan", TargetPanel: "chat"},
	}
}

// FindStage looks up a workflow stage by key
func FindStage(key string) (Stage, bool) {
	for _, s := range WorkflowStages() {
		if s.Key == key {
			return s, true
		}
	}
	return Stage{}, false
}
