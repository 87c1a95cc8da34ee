package tracker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/medcast/podcast-tracker/internal/model"
)

var stepKeys = map[string]model.PipelineStep{
	"step1": model.StepDocumentOverview,
	"step2": model.StepContentMapping,
	"step3": model.StepOutline,
	"step4": model.StepScript,
}

const (
	validationKey   = "validation"
	legacyScriptKey = "script"
)

var errUnknownShape = errors.New("unrecognized diagnostic payload shape")

// MergeDiagnostics overlays incoming onto existing slot by slot. A slot is
// replaced only when incoming populates it. Neither argument is modified.
func MergeDiagnostics(existing, incoming *model.DiagnosticBundle) *model.DiagnosticBundle {
	merged := existing.Clone()
	if merged == nil {
		merged = &model.DiagnosticBundle{}
	}
	if incoming == nil {
		return merged
	}
	src := incoming.Clone()
	for _, step := range model.PipelineSteps {
		if r := src.Step(step); r != nil {
			merged.SetStep(step, r)
		}
	}
	if src.Validation != nil {
		merged.Validation = src.Validation
	}
	return merged
}

// NormalizeDiagnostics maps both known wire shapes onto a DiagnosticBundle.
// Slots that fail to decode are skipped and reported; the rest are kept.
// An empty or null payload yields (nil, nil).
func NormalizeDiagnostics(raw json.RawMessage) (*model.DiagnosticBundle, []error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, []error{&DiagnosticParseError{Err: err}}
	}

	if isStepKeyed(fields) {
		return decodeStepKeyed(fields)
	}
	if script, ok := fields[legacyScriptKey]; ok && !isNull(script) {
		step, err := decodeStep(script)
		if err != nil {
			return nil, []error{&DiagnosticParseError{Slot: legacyScriptKey, Err: err}}
		}
		return &model.DiagnosticBundle{Script: step}, nil
	}
	return nil, []error{&DiagnosticParseError{Err: errUnknownShape}}
}

func isStepKeyed(fields map[string]json.RawMessage) bool {
	for key := range stepKeys {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	_, ok := fields[validationKey]
	return ok
}

func decodeStepKeyed(fields map[string]json.RawMessage) (*model.DiagnosticBundle, []error) {
	bundle := &model.DiagnosticBundle{}
	var errs []error
	for _, key := range []string{"step1", "step2", "step3", "step4"} {
		raw, ok := fields[key]
		if !ok || isNull(raw) {
			continue
		}
		step, err := decodeStep(raw)
		if err != nil {
			errs = append(errs, &DiagnosticParseError{Slot: key, Err: err})
			continue
		}
		bundle.SetStep(stepKeys[key], step)
	}
	if raw, ok := fields[validationKey]; ok && !isNull(raw) {
		var v model.ValidationResult
		if err := json.Unmarshal(raw, &v); err != nil {
			errs = append(errs, &DiagnosticParseError{Slot: validationKey, Err: err})
		} else {
			bundle.Validation = &v
		}
	}
	if bundle.IsEmpty() {
		return nil, errs
	}
	return bundle, errs
}

// wireStep accepts the documented slot shape as well as flat step objects
// that carry their data next to the bookkeeping fields.
type wireStep struct {
	Success        *bool           `json:"success"`
	Timing         *float64        `json:"timing"`
	ProcessingTime *float64        `json:"processingTime"`
	Error          json.RawMessage `json:"error"`
	Payload        json.RawMessage `json:"payload"`
}

func decodeStep(raw json.RawMessage) (*model.StepResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("expected an object, got %s", preview(trimmed))
	}
	var w wireStep
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return nil, err
	}

	step := &model.StepResult{Success: !hasError(w.Error)}
	if w.Success != nil {
		step.Success = *w.Success
	}
	switch {
	case w.Timing != nil:
		step.Timing = *w.Timing
	case w.ProcessingTime != nil:
		step.Timing = *w.ProcessingTime
	}
	if len(w.Payload) > 0 && !isNull(w.Payload) {
		step.Payload = append(json.RawMessage(nil), w.Payload...)
	} else {
		step.Payload = append(json.RawMessage(nil), trimmed...)
	}
	return step, nil
}

func hasError(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !isNull(trimmed) && !bytes.Equal(trimmed, []byte(`""`)) && !bytes.Equal(trimmed, []byte("false"))
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func preview(b []byte) string {
	const limit = 32
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

// Aggregator accumulates diagnostic bundles for the tracked job. Parse
// problems are logged as warnings and never escalate.
type Aggregator struct {
	mu       sync.RWMutex
	bundle   *model.DiagnosticBundle
	recorder *LogRecorder
}

// NewAggregator creates an empty aggregator. recorder may be nil.
func NewAggregator(recorder *LogRecorder) *Aggregator {
	return &Aggregator{recorder: recorder}
}

// Ingest normalizes raw and merges it into the aggregate. It reports
// whether raw populated at least one slot.
func (a *Aggregator) Ingest(raw json.RawMessage) bool {
	incoming, errs := NormalizeDiagnostics(raw)
	for _, err := range errs {
		if a.recorder != nil {
			a.recorder.Warning("Ignored malformed diagnostic data", err.Error())
		}
	}
	if incoming == nil {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.bundle = MergeDiagnostics(a.bundle, incoming)
	return true
}

// Bundle returns a copy of the aggregate, nil before any diagnostics arrived.
func (a *Aggregator) Bundle() *model.DiagnosticBundle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bundle.Clone()
}

// Reset discards the aggregate.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.bundle = nil
	a.mu.Unlock()
}
