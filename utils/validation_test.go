package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type submitForm struct {
	DocumentText string `validate:"required,min=1"`
	Priority     int    `validate:"max=10"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := submitForm{
			DocumentText: "review this contract",
			Priority:     5,
		}

		err := ValidateStruct(&s)
		assert.NoError(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		s := submitForm{Priority: 5}

		err := ValidateStruct(&s)
		require.Error(t, err)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "Validation failed", verr.Message)
		assert.Contains(t, verr.Fields, "DocumentText")
		assert.Equal(t, "DocumentText is required", verr.Fields["DocumentText"])
	})

	t.Run("max exceeded", func(t *testing.T) {
		s := submitForm{
			DocumentText: "text",
			Priority:     11,
		}

		err := ValidateStruct(&s)
		require.Error(t, err)

		fields := GetValidationFields(err)
		require.Contains(t, fields, "Priority")
		assert.Equal(t, "Priority must be at most 10", fields["Priority"])
	})
}

func TestGetValidationFields(t *testing.T) {
	t.Run("non-validation error yields nil", func(t *testing.T) {
		assert.Nil(t, GetValidationFields(errors.New("boom")))
	})

	t.Run("nil error yields nil", func(t *testing.T) {
		assert.Nil(t, GetValidationFields(nil))
	})
}
