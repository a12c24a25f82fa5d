package rest

import (
	"github.com/go-playground/validator/v10"
)

// requestValidator plugs go-playground/validator into echo's Validate.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	return &requestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate validates the struct tags of i.
func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}
