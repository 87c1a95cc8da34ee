package tracker

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcast/podcast-tracker/internal/model"
)

func TestRegisterRules_PlainValidator(t *testing.T) {
	v := RegisterRules(validator.New())

	req := &model.GenerationRequest{
		Title:          "Cardiology Review",
		DocumentIDs:    []string{"doc-1"},
		SynthesisStyle: model.SynthesisStylePodcast,
	}
	assert.NotPanics(t, func() {
		assert.NoError(t, ValidateRequest(v, req))
	})

	req.Title = "   "
	err := ValidateRequest(v, req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)
}

func TestNewController_RegistersRulesOnSuppliedValidator(t *testing.T) {
	opts := DefaultOptions()
	opts.Validator = validator.New()
	c := NewController(&fakeBackend{}, opts)
	defer c.Close()

	assert.NotPanics(t, func() {
		assert.NoError(t, ValidateRequest(opts.Validator, &model.GenerationRequest{
			Title:          "Cardiology Review",
			DocumentIDs:    []string{"doc-1"},
			SynthesisStyle: model.SynthesisStyleLecture,
		}))
	})
}
