package validators

import "github.com/go-playground/validator/v10"

var v = validator.New()

// New returns the shared request validator.
func New() *validator.Validate { return v }
