package signin

import "strings"

// Mode is the kind of input the form collects.
type Mode int

const (
	ModeLogin Mode = iota
	ModeSignUp
)

func (m Mode) String() string {
	switch m {
	case ModeLogin:
		return "login"
	case ModeSignUp:
		return "signup"
	default:
		return "unknown"
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeLogin || m == ModeSignUp
}

// Field names a form input.
type Field string

const (
	FieldName     Field = "name"
	FieldEmail    Field = "email"
	FieldPassword Field = "password"
	FieldPhotoURL Field = "photoURL"
)

// Label is the human name of the field.
func (f Field) Label() string {
	switch f {
	case FieldName:
		return "Name"
	case FieldEmail:
		return "Email"
	case FieldPassword:
		return "Password"
	case FieldPhotoURL:
		return "Profile picture URL"
	default:
		return string(f)
	}
}

// Fields maps field names to their current values.
type Fields map[Field]string

var (
	loginFields  = []Field{FieldEmail, FieldPassword}
	signUpFields = []Field{FieldName, FieldEmail, FieldPassword, FieldPhotoURL}
)

// Fields returns the inputs of mode m in display order.
func (m Mode) Fields() []Field {
	switch m {
	case ModeLogin:
		return append([]Field(nil), loginFields...)
	case ModeSignUp:
		return append([]Field(nil), signUpFields...)
	default:
		return nil
	}
}

// Has reports whether f belongs to mode m.
func (m Mode) Has(f Field) bool {
	for _, mf := range m.Fields() {
		if mf == f {
			return true
		}
	}
	return false
}

// emptyFields returns the blank field set of mode m.
func emptyFields(m Mode) Fields {
	out := make(Fields, len(m.Fields()))
	for _, f := range m.Fields() {
		out[f] = ""
	}
	return out
}

// normalize trims everything but the password, which is taken verbatim.
func normalize(f Field, v string) string {
	if f == FieldPassword {
		return v
	}
	return strings.TrimSpace(v)
}
