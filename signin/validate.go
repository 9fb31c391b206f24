package signin

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type loginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type signUpInput struct {
	Name     string `validate:"required,min=3"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
	PhotoURL string
}

var structFields = map[string]Field{
	"Name":     FieldName,
	"Email":    FieldEmail,
	"Password": FieldPassword,
	"PhotoURL": FieldPhotoURL,
}

// ValidationError is a local rejection of the form input. It never reaches
// the provider.
type ValidationError struct {
	Field Field
	Rule  string
	Param string
}

func (e *ValidationError) Error() string {
	switch e.Rule {
	case "required":
		return fmt.Sprintf("%s is required", e.Field.Label())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", e.Field.Label(), e.Param)
	case "email":
		return "Enter a valid email address"
	default:
		return fmt.Sprintf("%s is invalid", e.Field.Label())
	}
}

// AsValidationError reports whether err is a ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// validateFields checks values against the rules of mode and reports the
// first failing field in display order.
func validateFields(v *validator.Validate, mode Mode, values Fields) error {
	var input any
	switch mode {
	case ModeLogin:
		input = loginInput{
			Email:    values[FieldEmail],
			Password: values[FieldPassword],
		}
	case ModeSignUp:
		input = signUpInput{
			Name:     values[FieldName],
			Email:    values[FieldEmail],
			Password: values[FieldPassword],
			PhotoURL: values[FieldPhotoURL],
		}
	default:
		return ErrUnknownMode
	}

	err := v.Struct(input)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: structFields[fe.StructField()], Rule: fe.Tag(), Param: fe.Param()}
	}
	return err
}
