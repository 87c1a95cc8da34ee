package tracker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcast/podcast-tracker/internal/model"
)

func step(success bool, timing float64, payload string) *model.StepResult {
	return &model.StepResult{Success: success, Timing: timing, Payload: json.RawMessage(payload)}
}

func TestMergeDiagnostics_SlotwiseLastWriteWins(t *testing.T) {
	first := &model.DiagnosticBundle{DocumentOverview: step(true, 120, `{"documents":1}`)}
	second := &model.DiagnosticBundle{ContentMapping: step(true, 340, `{"topics":4}`)}
	third := &model.DiagnosticBundle{
		DocumentOverview: step(false, 90, `{"documents":0}`),
		Outline:          step(true, 510, `{"sections":6}`),
	}

	merged := MergeDiagnostics(MergeDiagnostics(MergeDiagnostics(nil, first), second), third)

	assert.Equal(t, third.DocumentOverview, merged.DocumentOverview)
	assert.Equal(t, second.ContentMapping, merged.ContentMapping)
	assert.Equal(t, third.Outline, merged.Outline)
	assert.Nil(t, merged.Script)
	assert.Nil(t, merged.Validation)
	assert.Equal(t, model.StepOutline, merged.LatestStep())
}

func TestMergeDiagnostics_DoesNotMutateInputs(t *testing.T) {
	existing := &model.DiagnosticBundle{DocumentOverview: step(true, 1, `{}`)}
	incoming := &model.DiagnosticBundle{DocumentOverview: step(false, 2, `{}`)}

	merged := MergeDiagnostics(existing, incoming)
	merged.DocumentOverview.Timing = 99

	assert.Equal(t, float64(1), existing.DocumentOverview.Timing)
	assert.Equal(t, float64(2), incoming.DocumentOverview.Timing)
}

func TestMergeDiagnostics_Laws(t *testing.T) {
	a := &model.DiagnosticBundle{
		DocumentOverview: step(true, 1, `{"a":1}`),
		Validation:       &model.ValidationResult{Flags: map[string]bool{"consistent": true}},
	}
	b := &model.DiagnosticBundle{
		ContentMapping: step(true, 2, `{"b":2}`),
		Script:         step(true, 3, `{"b":3}`),
	}
	c := &model.DiagnosticBundle{
		DocumentOverview: step(false, 4, `{"c":4}`),
		Validation:       &model.ValidationResult{Errors: []string{"duration mismatch"}},
	}

	t.Run("idempotent", func(t *testing.T) {
		assert.Equal(t, MergeDiagnostics(nil, a), MergeDiagnostics(a, a))
	})

	t.Run("associative", func(t *testing.T) {
		left := MergeDiagnostics(MergeDiagnostics(a, b), c)
		right := MergeDiagnostics(a, MergeDiagnostics(b, c))
		assert.Equal(t, left, right)
	})

	t.Run("empty incoming is identity", func(t *testing.T) {
		assert.Equal(t, MergeDiagnostics(nil, a), MergeDiagnostics(a, &model.DiagnosticBundle{}))
		assert.Equal(t, MergeDiagnostics(nil, a), MergeDiagnostics(a, nil))
	})
}

func TestNormalizeDiagnostics_StepKeyed(t *testing.T) {
	raw := json.RawMessage(`{
		"step1": {"success": true, "timing": 120.5, "payload": {"documents": 2}},
		"step3": {"processingTime": 42, "sections": ["intro", "outro"]},
		"validation": {"flags": {"coversAllDocuments": true}, "errors": []}
	}`)

	bundle, errs := NormalizeDiagnostics(raw)
	require.Empty(t, errs)
	require.NotNil(t, bundle)

	require.NotNil(t, bundle.DocumentOverview)
	assert.True(t, bundle.DocumentOverview.Success)
	assert.Equal(t, 120.5, bundle.DocumentOverview.Timing)
	assert.JSONEq(t, `{"documents": 2}`, string(bundle.DocumentOverview.Payload))

	require.NotNil(t, bundle.Outline)
	assert.True(t, bundle.Outline.Success)
	assert.Equal(t, float64(42), bundle.Outline.Timing)
	assert.Contains(t, string(bundle.Outline.Payload), "sections")

	assert.Nil(t, bundle.ContentMapping)
	require.NotNil(t, bundle.Validation)
	assert.True(t, bundle.Validation.Flags["coversAllDocuments"])
}

func TestNormalizeDiagnostics_LegacyScriptShape(t *testing.T) {
	raw := json.RawMessage(`{"script": {"success": true, "timing": 800, "payload": {"turns": 24}}}`)

	bundle, errs := NormalizeDiagnostics(raw)
	require.Empty(t, errs)
	require.NotNil(t, bundle)

	require.NotNil(t, bundle.Script)
	assert.Equal(t, float64(800), bundle.Script.Timing)
	assert.Nil(t, bundle.DocumentOverview)
	assert.Equal(t, model.StepScript, bundle.LatestStep())
}

func TestNormalizeDiagnostics_ErrorFieldMarksFailure(t *testing.T) {
	bundle, errs := NormalizeDiagnostics(json.RawMessage(`{"step2": {"error": "mapping timed out"}}`))
	require.Empty(t, errs)
	require.NotNil(t, bundle.ContentMapping)
	assert.False(t, bundle.ContentMapping.Success)
}

func TestNormalizeDiagnostics_MalformedSlotIsSkipped(t *testing.T) {
	raw := json.RawMessage(`{"step1": "not an object", "step2": {"success": true, "timing": 5}}`)

	bundle, errs := NormalizeDiagnostics(raw)
	require.Len(t, errs, 1)

	var perr *DiagnosticParseError
	require.ErrorAs(t, errs[0], &perr)
	assert.Equal(t, "step1", perr.Slot)

	require.NotNil(t, bundle)
	assert.Nil(t, bundle.DocumentOverview)
	require.NotNil(t, bundle.ContentMapping)
}

func TestNormalizeDiagnostics_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"empty", ``, false},
		{"null", `null`, false},
		{"array", `[1,2,3]`, true},
		{"unknown shape", `{"foo": {"bar": 1}}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle, errs := NormalizeDiagnostics(json.RawMessage(tt.raw))
			assert.Nil(t, bundle)
			assert.Equal(t, tt.wantErr, len(errs) > 0)
		})
	}
}

func TestAggregator_IngestAndWarn(t *testing.T) {
	rec := NewLogRecorder(10, nil)
	agg := NewAggregator(rec)

	assert.Nil(t, agg.Bundle())
	assert.True(t, agg.Ingest(json.RawMessage(`{"step1": {"success": true}}`)))
	assert.True(t, agg.Ingest(json.RawMessage(`{"step2": {"success": true}}`)))
	assert.False(t, agg.Ingest(json.RawMessage(`{"garbage": true}`)))

	bundle := agg.Bundle()
	require.NotNil(t, bundle)
	assert.NotNil(t, bundle.DocumentOverview)
	assert.NotNil(t, bundle.ContentMapping)

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.LogLevelWarning, entries[0].Level)

	agg.Reset()
	assert.Nil(t, agg.Bundle())
}
