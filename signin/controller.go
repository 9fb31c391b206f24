// Package signin holds the state of the combined sign-in/sign-up form: the
// active mode, the field values and the last submission error.
//
// A Controller is owned by one event loop and is not safe for concurrent
// use. Outward provider calls are packaged as Attempts so they can run
// elsewhere; their outcome is handed back through Resolve.
package signin

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"octave/identity"
)

var (
	ErrUnknownMode        = errors.New("unknown form mode")
	ErrInactiveField      = errors.New("field is not part of the active form")
	ErrSubmissionPending  = errors.New("a submission is already in progress")
	ErrFederatedLoginOnly = errors.New("federated sign-in is only available when logging in")
	ErrProfileIncomplete  = errors.New("your account was created, but your profile could not be saved")
)

// SubmissionError is the failure of the last submission, as shown to the user.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string { return e.Message }

func (e *SubmissionError) Unwrap() error { return e.Err }

func newSubmissionError(err error) *SubmissionError {
	if errors.Is(err, ErrProfileIncomplete) {
		return &SubmissionError{
			Message: "Your account was created, but your profile could not be saved. Please try again later.",
			Err:     err,
		}
	}
	if perr, ok := identity.AsError(err); ok {
		return &SubmissionError{Message: perr.Message, Err: err}
	}
	return &SubmissionError{Message: err.Error(), Err: err}
}

// Controller owns the form state.
type Controller struct {
	provider identity.Provider
	logger   *zap.Logger
	validate *validator.Validate

	mode      Mode
	values    Fields
	err       *SubmissionError
	pending   bool
	dialog    bool
	gen       uint64
	observers []func([]Field)
}

// NewController returns a controller in login mode with empty fields.
func NewController(provider identity.Provider, logger *zap.Logger) *Controller {
	return &Controller{
		provider: provider,
		logger:   logger,
		validate: validator.New(),
		mode:     ModeLogin,
		values:   emptyFields(ModeLogin),
	}
}

// OnFieldsCleared registers fn to be told which fields a state change wiped.
func (c *Controller) OnFieldsCleared(fn func([]Field)) {
	c.observers = append(c.observers, fn)
}

func (c *Controller) clear(fields ...Field) {
	for _, f := range fields {
		if _, ok := c.values[f]; ok {
			c.values[f] = ""
		}
	}
	for _, fn := range c.observers {
		fn(fields)
	}
}

func (c *Controller) Mode() Mode { return c.mode }

// Value returns the value of field f, or "" if f is not active.
func (c *Controller) Value(f Field) string { return c.values[f] }

// Values returns a copy of the active field values.
func (c *Controller) Values() Fields {
	out := make(Fields, len(c.values))
	for f, v := range c.values {
		out[f] = v
	}
	return out
}

// Err returns the last submission error, or nil.
func (c *Controller) Err() *SubmissionError { return c.err }

// Pending reports whether an attempt is awaiting its outcome.
func (c *Controller) Pending() bool { return c.pending }

func (c *Controller) DialogVisible() bool { return c.dialog }

func (c *Controller) SetDialogVisible(visible bool) { c.dialog = visible }

// SetMode switches the form. Every field and any error is cleared.
func (c *Controller) SetMode(m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	previous := c.values
	c.mode = m
	c.err = nil
	c.gen++
	c.values = emptyFields(m)

	cleared := m.Fields()
	for f := range previous {
		if !m.Has(f) {
			cleared = append(cleared, f)
		}
	}
	c.clear(cleared...)
	c.logger.Debug("Form mode changed", zap.Stringer("mode", m))
	return nil
}

// Set updates one field of the active mode.
func (c *Controller) Set(f Field, value string) error {
	if !c.mode.Has(f) {
		return fmt.Errorf("%w: %s", ErrInactiveField, f)
	}
	c.values[f] = value
	return nil
}

// setError records a failed submission and wipes the password.
func (c *Controller) setError(err *SubmissionError) {
	c.err = err
	c.clear(FieldPassword)
}

// Submit validates fields for the active mode and returns the attempt to
// run. Invalid input yields a *ValidationError and no attempt; the
// submission error is left alone.
func (c *Controller) Submit(fields Fields) (*Attempt, error) {
	if c.pending {
		return nil, ErrSubmissionPending
	}
	for f := range fields {
		if !c.mode.Has(f) {
			return nil, fmt.Errorf("%w: %s", ErrInactiveField, f)
		}
	}

	values := emptyFields(c.mode)
	for f, v := range fields {
		values[f] = v
	}
	c.values = values

	normalized := make(Fields, len(values))
	for f, v := range values {
		normalized[f] = normalize(f, v)
	}
	if err := validateFields(c.validate, c.mode, normalized); err != nil {
		c.logger.Debug("Form input rejected", zap.Error(err))
		return nil, err
	}

	c.pending = true
	c.logger.Debug("Submitting form", zap.Stringer("mode", c.mode))
	return &Attempt{
		provider: c.provider,
		mode:     c.mode,
		gen:      c.gen,
		name:     normalized[FieldName],
		email:    normalized[FieldEmail],
		password: normalized[FieldPassword],
		photoURL: normalized[FieldPhotoURL],
	}, nil
}

// SubmitWithExternalProvider returns an attempt that signs in through the
// federated provider. Only available in login mode.
func (c *Controller) SubmitWithExternalProvider() (*Attempt, error) {
	if c.mode != ModeLogin {
		return nil, ErrFederatedLoginOnly
	}
	if c.pending {
		return nil, ErrSubmissionPending
	}
	c.pending = true
	c.logger.Debug("Starting federated sign-in")
	return &Attempt{provider: c.provider, mode: c.mode, gen: c.gen, federated: true}, nil
}

// Resolve applies the outcome of a. A failed credential attempt becomes the
// submission error; federated failures and outcomes of attempts made before
// a mode switch are only logged. Success changes nothing here: the session
// arrives through the provider's subscription.
func (c *Controller) Resolve(a *Attempt, err error) {
	if a == nil {
		return
	}
	c.pending = false

	switch {
	case err == nil:
		c.logger.Debug("Submission succeeded", zap.Stringer("mode", a.mode), zap.Bool("federated", a.federated))
	case a.federated:
		c.logger.Info("Federated sign-in failed", zap.Error(err))
	case a.gen != c.gen:
		c.logger.Debug("Dropping outcome of a superseded submission", zap.Error(err))
	default:
		c.logger.Info("Submission failed", zap.Stringer("mode", a.mode), zap.Error(err))
		c.setError(newSubmissionError(err))
	}
}

// Attempt is one outward submission. It carries a snapshot of the input and
// touches no controller state, so Run may execute off the event loop.
type Attempt struct {
	provider  identity.Provider
	mode      Mode
	federated bool
	gen       uint64

	name, email, password, photoURL string

	// user is written by Run and read on the loop after its outcome arrives.
	user *identity.Identity
}

func (a *Attempt) Mode() Mode { return a.mode }

func (a *Attempt) Federated() bool { return a.federated }

// User returns the identity Run signed in, with any saved profile applied.
// It is nil until Run returns, and after a failed credential check.
func (a *Attempt) User() *identity.Identity { return a.user }

// Run performs the provider calls. In sign-up mode a profile failure after
// the account was created is reported as ErrProfileIncomplete; the account
// is kept.
func (a *Attempt) Run(ctx context.Context) error {
	if a.federated {
		id, err := a.provider.SignInWithFederatedProvider(ctx)
		a.user = id
		return err
	}

	switch a.mode {
	case ModeLogin:
		id, err := a.provider.VerifyCredentials(ctx, a.email, a.password)
		a.user = id
		return err
	case ModeSignUp:
		id, err := a.provider.CreateAccount(ctx, a.email, a.password)
		if err != nil {
			return err
		}
		a.user = id
		if err := a.provider.SetProfileAttributes(ctx, id, a.name, a.photoURL); err != nil {
			return fmt.Errorf("%w: %w", ErrProfileIncomplete, err)
		}
		if id != nil {
			profiled := *id
			profiled.DisplayName = a.name
			profiled.PhotoURL = a.photoURL
			a.user = &profiled
		}
		return nil
	default:
		return ErrUnknownMode
	}
}
