package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type createRoom struct {
	Name   string `json:"name" validate:"required,max=40"`
	Repeat string `json:"repeat" validate:"omitempty,oneof=all one"`
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	errs, ok := v.Validate(createRoom{Name: "Office"})
	assert.True(t, ok)
	assert.Empty(t, errs)

	errs, ok = v.Validate(createRoom{Repeat: "shuffle"})
	assert.False(t, ok)
	if assert.Len(t, errs, 2) {
		assert.Equal(t, "name", errs[0].Field)
		assert.Equal(t, "REQUIRED", errs[0].Code)
		assert.Equal(t, "repeat must be one of: all one", errs[1].Message)
	}

	assert.EqualError(t, v.Err(createRoom{}), "name is required")
}
