package ui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"octave/identity"
	"octave/session"
	"octave/signin"
)

// SignInScreen shows a spinner until the session is known, then the login
// or sign-up form.
type SignInScreen struct {
	ctx        *Context
	boot       *session.Bootstrapper
	events     <-chan session.Resolution
	controller *signin.Controller
	state      session.State

	spinner spinner.Model
	fields  []signin.Field
	inputs  []textinput.Model
	cursor  int
	hint    string

	deviceCode *identity.DeviceCode
	copied     bool
	dialog     *ForgotPasswordDialog

	// held is a sign-in reported while an attempt was still running or
	// after a sign-up whose profile was not saved.
	held       *identity.Identity
	latest     *identity.Identity
	incomplete bool

	cancel context.CancelFunc
}

// NewSignInScreen creates the screen. The bootstrapper starts in Init.
func NewSignInScreen(ctx *Context) *SignInScreen {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = HighlightStyle

	s := &SignInScreen{
		ctx:        ctx,
		boot:       session.NewBootstrapper(ctx.Provider, ctx.Store, ctx.Config.BootstrapTimeout, ctx.Logger),
		controller: signin.NewController(ctx.Provider, ctx.Logger),
		state:      session.Loading,
		spinner:    sp,
	}
	s.controller.OnFieldsCleared(func(cleared []signin.Field) {
		ClearInputs(s.inputs, s.fields, cleared)
	})
	s.buildInputs()
	return s
}

// buildInputs creates one input per field of the active mode.
func (s *SignInScreen) buildInputs() {
	s.fields = s.controller.Mode().Fields()
	s.inputs = make([]textinput.Model, len(s.fields))
	for i, f := range s.fields {
		in := textinput.New()
		in.Placeholder = placeholder(f)
		in.CharLimit = 256
		if f == signin.FieldPassword {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		in.SetValue(s.controller.Value(f))
		s.inputs[i] = in
	}
	s.cursor = 0
	FocusInput(s.inputs, s.cursor)
}

func placeholder(f signin.Field) string {
	switch f {
	case signin.FieldEmail:
		return "you@example.com"
	case signin.FieldPassword:
		return "At least 8 characters"
	case signin.FieldName:
		return "Your name"
	case signin.FieldPhotoURL:
		return "https://... (optional)"
	default:
		return f.Label()
	}
}

// Init starts the session bootstrap.
func (s *SignInScreen) Init() tea.Cmd {
	s.events = s.boot.Start()
	return tea.Batch(s.spinner.Tick, s.waitForSession())
}

// waitForSession delivers the next bootstrapper resolution, or nothing once
// the bootstrapper is stopped.
func (s *SignInScreen) waitForSession() tea.Cmd {
	events, done := s.events, s.boot.Done()
	return func() tea.Msg {
		select {
		case res := <-events:
			return sessionMsg{resolution: res}
		case <-done:
			return nil
		}
	}
}

// State returns the session state the screen is showing.
func (s *SignInScreen) State() session.State {
	return s.state
}

// Controller exposes the form state.
func (s *SignInScreen) Controller() *signin.Controller {
	return s.controller
}

func (s *SignInScreen) Update(msg tea.Msg) (Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case sessionMsg:
		return s.handleSession(msg.resolution)

	case attemptDoneMsg:
		return s.handleOutcome(msg)

	case DeviceCodeMsg:
		code := identity.DeviceCode(msg)
		s.deviceCode = &code
		s.copied = false
		if s.ctx.ClipboardManager != nil {
			if err := s.ctx.ClipboardManager.Copy(code.UserCode, s.ctx.Config.ClipboardTimeout); err != nil {
				s.ctx.Logger.Debug("Device code not copied", zap.Error(err))
			} else {
				s.copied = true
			}
		}
		return s, nil

	case spinner.TickMsg:
		if s.state != session.Loading && !s.controller.Pending() {
			return s, nil
		}
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd

	case tea.KeyMsg:
		if s.state != session.Unauthenticated {
			return s, nil
		}
		if s.held != nil {
			if msg.String() == "enter" && !s.controller.Pending() {
				return s.finish(*s.held)
			}
			return s, nil
		}
		if s.controller.DialogVisible() {
			if s.dialog.Update(msg) {
				s.controller.SetDialogVisible(false)
				s.dialog = nil
			}
			return s, nil
		}
		return s.handleKey(msg)
	}

	return s, nil
}

func (s *SignInScreen) handleSession(res session.Resolution) (Screen, tea.Cmd) {
	switch res.State {
	case session.Authenticated:
		if s.controller.Pending() || s.incomplete {
			// Leaving now would cancel the rest of the attempt.
			user := res.User
			s.held = &user
			s.ctx.Logger.Debug("Sign-in held until the submission finishes", zap.String("uid", user.UID))
			return s, nil
		}
		return s.finish(res.User)
	case session.Unauthenticated:
		s.state = session.Unauthenticated
		if res.TimedOut {
			s.ctx.Logger.Info("No session reported in time, showing the form")
		}
		FocusInput(s.inputs, s.cursor)
		// A later sign-in still arrives through the bootstrapper.
		return s, s.waitForSession()
	}
	return s, nil
}

func (s *SignInScreen) handleOutcome(msg attemptDoneMsg) (Screen, tea.Cmd) {
	if msg.attempt.Federated() {
		s.deviceCode = nil
		s.copied = false
	}
	s.controller.Resolve(msg.attempt, msg.err)

	if u := msg.attempt.User(); u != nil && (msg.err == nil || errors.Is(msg.err, signin.ErrProfileIncomplete)) {
		user := *u
		s.latest = &user
	}
	if errors.Is(msg.err, signin.ErrProfileIncomplete) && s.controller.Mode() == msg.attempt.Mode() {
		s.incomplete = true
		return s, nil
	}
	if s.held != nil && !s.controller.Pending() {
		return s.finish(*s.held)
	}
	return s, nil
}

// finish hands the signed-in user to the store and shows the home screen.
// A profile saved after the provider first reported the user wins.
func (s *SignInScreen) finish(user identity.Identity) (Screen, tea.Cmd) {
	if s.latest != nil && s.latest.UID == user.UID {
		user = *s.latest
	}
	if current, ok := s.ctx.Store.Current(); !ok || current != user {
		s.ctx.Store.Publish(user)
	}
	s.state = session.Authenticated
	s.held = nil
	s.ctx.Logger.Info("Signed in", zap.String("uid", user.UID))
	return NewHomeScreen(s.ctx), nil
}

func (s *SignInScreen) handleKey(msg tea.KeyMsg) (Screen, tea.Cmd) {
	switch msg.String() {
	case "ctrl+n":
		return s.toggleMode()

	case "ctrl+g":
		attempt, err := s.controller.SubmitWithExternalProvider()
		if err != nil {
			s.hint = hintFor(err)
			return s, nil
		}
		s.hint = ""
		return s, tea.Batch(s.run(attempt), s.spinner.Tick)

	case "ctrl+r":
		if s.controller.Mode() != signin.ModeLogin {
			return s, nil
		}
		s.dialog = NewForgotPasswordDialog(s.ctx, s.inputValue(signin.FieldEmail))
		s.controller.SetDialogVisible(true)
		return s, nil
	}

	newCursor, submit := NavigateInputs(msg, s.cursor, len(s.inputs))
	if newCursor != s.cursor {
		s.cursor = newCursor
		FocusInput(s.inputs, s.cursor)
		return s, nil
	}
	if submit {
		return s.submit()
	}

	var cmd tea.Cmd
	s.inputs[s.cursor], cmd = s.inputs[s.cursor].Update(msg)
	if err := s.controller.Set(s.fields[s.cursor], s.inputs[s.cursor].Value()); err != nil {
		s.ctx.Logger.Warn("Input out of sync with form", zap.Error(err))
	}
	return s, cmd
}

func (s *SignInScreen) toggleMode() (Screen, tea.Cmd) {
	next := signin.ModeSignUp
	if s.controller.Mode() == signin.ModeSignUp {
		next = signin.ModeLogin
	}
	if err := s.controller.SetMode(next); err != nil {
		s.hint = hintFor(err)
		return s, nil
	}
	s.hint = ""
	s.buildInputs()
	return s, nil
}

func (s *SignInScreen) submit() (Screen, tea.Cmd) {
	values := make(signin.Fields, len(s.fields))
	for i, f := range s.fields {
		values[f] = s.inputs[i].Value()
	}

	attempt, err := s.controller.Submit(values)
	if err != nil {
		s.hint = hintFor(err)
		if verr, ok := signin.AsValidationError(err); ok {
			if i := indexOf(s.fields, verr.Field); i >= 0 {
				s.cursor = i
				FocusInput(s.inputs, s.cursor)
			}
		}
		return s, nil
	}
	s.hint = ""
	return s, tea.Batch(s.run(attempt), s.spinner.Tick)
}

// run executes attempt off the event loop. Federated attempts are bounded
// by the device code's expiry rather than the submit timeout.
func (s *SignInScreen) run(attempt *signin.Attempt) tea.Cmd {
	var ctx context.Context
	var cancel context.CancelFunc
	if attempt.Federated() {
		ctx, cancel = context.WithCancel(s.ctx.base())
	} else {
		ctx, cancel = context.WithTimeout(s.ctx.base(), s.ctx.Config.SubmitTimeout)
	}
	s.cancel = cancel

	return func() tea.Msg {
		defer cancel()
		return attemptDoneMsg{attempt: attempt, err: attempt.Run(ctx)}
	}
}

func (s *SignInScreen) inputValue(f signin.Field) string {
	if i := indexOf(s.fields, f); i >= 0 {
		return s.inputs[i].Value()
	}
	return ""
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, signin.ErrSubmissionPending):
		return "Please wait for the current request to finish."
	case errors.Is(err, signin.ErrFederatedLoginOnly):
		return "Google sign-in is available from the login form."
	default:
		return err.Error()
	}
}

// Close stops the bootstrapper and cancels any request in flight.
func (s *SignInScreen) Close() {
	s.boot.Stop()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *SignInScreen) View() string {
	var b strings.Builder

	if s.state == session.Loading {
		b.WriteString(TitleStyle.Render("Octave"))
		b.WriteString("\n\n")
		b.WriteString(s.spinner.View() + " Checking your session...")
		return b.String()
	}

	if s.controller.DialogVisible() && s.dialog != nil {
		return s.dialog.View()
	}

	login := s.controller.Mode() == signin.ModeLogin
	if login {
		b.WriteString(TitleStyle.Render("Octave - Log in"))
	} else {
		b.WriteString(TitleStyle.Render("Octave - Create account"))
	}
	b.WriteString("\n\n")

	for i, f := range s.fields {
		b.WriteString(LabelStyle.Render(f.Label()))
		b.WriteString(s.inputs[i].View())
		b.WriteString("\n")
	}

	if s.controller.Pending() {
		b.WriteString("\n")
		switch {
		case s.deviceCode != nil:
			b.WriteString(s.spinner.View() + " Waiting for Google...")
		case login:
			b.WriteString(s.spinner.View() + " Logging in...")
		default:
			b.WriteString(s.spinner.View() + " Creating your account...")
		}
		b.WriteString("\n")
	}

	if s.deviceCode != nil {
		b.WriteString("\n")
		b.WriteString("Visit " + HighlightStyle.Render(s.deviceCode.VerificationURL))
		b.WriteString(" and enter " + HighlightStyle.Render(s.deviceCode.UserCode))
		if s.copied {
			b.WriteString(SuccessStyle.Render(" (copied)"))
		}
		b.WriteString("\n")
	}

	if err := s.controller.Err(); err != nil {
		b.WriteString("\n")
		b.WriteString(ErrorBannerStyle.Render("✗ " + err.Message))
		b.WriteString("\n")
	}
	if s.held != nil && !s.controller.Pending() {
		b.WriteString("\n")
		b.WriteString(SuccessStyle.Render("Your account is ready. Press Enter to continue."))
		b.WriteString("\n")
	}
	if s.hint != "" {
		b.WriteString("\n")
		b.WriteString(HintStyle.Render(s.hint))
		b.WriteString("\n")
	}

	if login {
		b.WriteString(HelpStyle.Render("Enter: log in • Tab: next field • Ctrl+G: sign in with Google • Ctrl+R: forgot password"))
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("Don't have an account? Ctrl+N to sign up • Ctrl+C to quit"))
	} else {
		b.WriteString(HelpStyle.Render("Enter: create account • Tab: next field"))
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("Already have an account? Ctrl+N to log in • Ctrl+C to quit"))
	}

	return b.String()
}
