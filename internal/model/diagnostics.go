package model

import "encoding/json"

// StepResult is one pipeline step's diagnostic output
type StepResult struct {
	Success bool            `json:"success"`
	Timing  float64         `json:"timing"` // milliseconds
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ValidationResult aggregates cross-step consistency checks
type ValidationResult struct {
	Flags  map[string]bool `json:"flags,omitempty"`
	Errors []string        `json:"errors,omitempty"`
}

// DiagnosticBundle mirrors the backend pipeline; every slot is optional
type DiagnosticBundle struct {
	DocumentOverview *StepResult       `json:"step1,omitempty"`
	ContentMapping   *StepResult       `json:"step2,omitempty"`
	Outline          *StepResult       `json:"step3,omitempty"`
	Script           *StepResult       `json:"step4,omitempty"`
	Validation       *ValidationResult `json:"validation,omitempty"`
}

// Step returns the slot for a pipeline step, nil when unpopulated.
func (b *DiagnosticBundle) Step(step PipelineStep) *StepResult {
	if b == nil {
		return nil
	}
	switch step {
	case StepDocumentOverview:
		return b.DocumentOverview
	case StepContentMapping:
		return b.ContentMapping
	case StepOutline:
		return b.Outline
	case StepScript:
		return b.Script
	}
	return nil
}

// SetStep replaces the slot for a pipeline step.
func (b *DiagnosticBundle) SetStep(step PipelineStep, r *StepResult) {
	switch step {
	case StepDocumentOverview:
		b.DocumentOverview = r
	case StepContentMapping:
		b.ContentMapping = r
	case StepOutline:
		b.Outline = r
	case StepScript:
		b.Script = r
	}
}

// IsEmpty reports whether no slot is populated.
func (b *DiagnosticBundle) IsEmpty() bool {
	if b == nil {
		return true
	}
	for _, s := range PipelineSteps {
		if b.Step(s) != nil {
			return false
		}
	}
	return b.Validation == nil
}

// LatestStep returns the highest populated pipeline step, 0 when none.
func (b *DiagnosticBundle) LatestStep() PipelineStep {
	var latest PipelineStep
	for _, s := range PipelineSteps {
		if b.Step(s) != nil {
			latest = s
		}
	}
	return latest
}

// Clone returns a deep copy.
func (b *DiagnosticBundle) Clone() *DiagnosticBundle {
	if b == nil {
		return nil
	}
	out := &DiagnosticBundle{}
	for _, s := range PipelineSteps {
		if r := b.Step(s); r != nil {
			c := *r
			c.Payload = append(json.RawMessage(nil), r.Payload...)
			out.SetStep(s, &c)
		}
	}
	if b.Validation != nil {
		v := &ValidationResult{Errors: append([]string(nil), b.Validation.Errors...)}
		if b.Validation.Flags != nil {
			v.Flags = make(map[string]bool, len(b.Validation.Flags))
			for k, f := range b.Validation.Flags {
				v.Flags[k] = f
			}
		}
		out.Validation = v
	}
	return out
}
