package ui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"octave/identity"
	"octave/session"
	"octave/signin"
)

// stubProvider records calls and reports sign-ins through the subscription,
// the way the real providers do.
type stubProvider struct {
	mu           sync.Mutex
	listener     identity.Listener
	unsubscribes int

	user       *identity.Identity
	verifyErr  error
	profileErr error
	// release, when set, blocks SetProfileAttributes until closed.
	release    chan struct{}
	profileCtx error
	calls      []string
}

func (p *stubProvider) Subscribe(fn identity.Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.listener = nil
		p.unsubscribes++
	}
}

func (p *stubProvider) emit(id *identity.Identity) {
	p.mu.Lock()
	fn := p.listener
	p.mu.Unlock()
	if fn != nil {
		fn(id)
	}
}

func (p *stubProvider) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *stubProvider) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *stubProvider) profileContextErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profileCtx
}

func (p *stubProvider) VerifyCredentials(ctx context.Context, email, password string) (*identity.Identity, error) {
	p.record("verify " + email)
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	p.emit(p.user)
	return p.user, nil
}

func (p *stubProvider) CreateAccount(ctx context.Context, email, password string) (*identity.Identity, error) {
	p.record("create " + email)
	id := &identity.Identity{UID: "new", Email: email}
	p.emit(id)
	return id, nil
}

func (p *stubProvider) SetProfileAttributes(ctx context.Context, id *identity.Identity, name, photoURL string) error {
	p.record("profile " + name)
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	p.profileCtx = ctx.Err()
	p.mu.Unlock()
	if p.profileErr != nil {
		return p.profileErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.emit(&identity.Identity{UID: id.UID, Email: id.Email, DisplayName: name, PhotoURL: photoURL})
	return nil
}

func (p *stubProvider) SignInWithFederatedProvider(ctx context.Context) (*identity.Identity, error) {
	p.record("federated")
	return nil, identity.NewError(identity.CodeOperationNotAllowed, "Google sign-in is not configured.")
}

func newTestContext(p *stubProvider) *Context {
	return &Context{
		Provider: p,
		Store:    session.NewStore(zap.NewNop()),
		Config: &Config{
			BootstrapTimeout: time.Minute,
			SubmitTimeout:    time.Second,
			ClipboardTimeout: time.Second,
			RecoveryURL:      "https://octave.example.com/recover",
		},
		Logger: zap.NewNop(),
	}
}

// startScreen starts the bootstrapper and delivers the provider's first report.
func startScreen(t *testing.T, p *stubProvider, first *identity.Identity) (*SignInScreen, Screen) {
	t.Helper()
	s := NewSignInScreen(newTestContext(p))
	t.Cleanup(s.Close)
	s.Init()
	p.emit(first)
	next, _ := s.Update(s.waitForSession()())
	return s, next
}

// startApp runs the app up to the empty login form.
func startApp(t *testing.T, p *stubProvider) (*App, *SignInScreen) {
	t.Helper()
	app := NewApp(newTestContext(p))
	t.Cleanup(app.Close)
	app.Init()
	s := app.Screen().(*SignInScreen)
	p.emit(nil)
	app.Update(s.waitForSession()())
	require.Equal(t, session.Unauthenticated, s.State())
	return app, s
}

// runCmd executes cmd and flattens batches into the resulting messages.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, runCmd(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

// attemptOutcome runs cmd and returns the attempt outcome it produced.
func attemptOutcome(t *testing.T, cmd tea.Cmd) attemptDoneMsg {
	t.Helper()
	return findOutcome(t, runCmd(cmd))
}

func findOutcome(t *testing.T, msgs []tea.Msg) attemptDoneMsg {
	t.Helper()
	for _, msg := range msgs {
		if done, ok := msg.(attemptDoneMsg); ok {
			return done
		}
	}
	t.Fatal("command produced no attempt outcome")
	return attemptDoneMsg{}
}

func typeText(s Screen, text string) Screen {
	next, _ := s.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next
}

func press(s Screen, key tea.KeyType) (Screen, tea.Cmd) {
	return s.Update(tea.KeyMsg{Type: key})
}

// fillSignUp switches to sign-up, fills the form and submits it.
func fillSignUp(t *testing.T, s *SignInScreen, name, email, password string) tea.Cmd {
	t.Helper()
	press(s, tea.KeyCtrlN)
	require.Equal(t, signin.ModeSignUp, s.Controller().Mode())

	values := map[signin.Field]string{
		signin.FieldName:     name,
		signin.FieldEmail:    email,
		signin.FieldPassword: password,
	}
	for i, f := range s.fields {
		if v := values[f]; v != "" {
			typeText(s, v)
		}
		if i < len(s.fields)-1 {
			press(s, tea.KeyTab)
		}
	}
	_, cmd := press(s, tea.KeyEnter)
	require.NotNil(t, cmd, "valid sign-up should start an attempt")
	return cmd
}

func TestSignInLoadingIgnoresKeys(t *testing.T) {
	s := NewSignInScreen(newTestContext(&stubProvider{}))
	defer s.Close()
	s.Init()

	assert.Contains(t, s.View(), "Checking your session")
	typeText(s, "ada@example.com")
	assert.Empty(t, s.Controller().Value(signin.FieldEmail))
}

func TestSignInShowsFormWithoutSession(t *testing.T) {
	s, next := startScreen(t, &stubProvider{}, nil)

	assert.Same(t, s, next)
	assert.Equal(t, session.Unauthenticated, s.State())
	assert.Contains(t, s.View(), "Log in")
	assert.Contains(t, s.View(), "Email")
}

func TestSignInRestoredSessionShowsHome(t *testing.T) {
	p := &stubProvider{}
	s := NewSignInScreen(newTestContext(p))
	defer s.Close()
	s.Init()
	p.emit(&identity.Identity{UID: "u1", Email: "ada@example.com", DisplayName: "Ada"})

	next, _ := s.Update(s.waitForSession()())
	home, ok := next.(*HomeScreen)
	require.True(t, ok, "screen = %T, want *HomeScreen", next)

	assert.Equal(t, "u1", home.User().UID)
	current, ok := s.ctx.Store.Current()
	require.True(t, ok)
	assert.Equal(t, "u1", current.UID)
	assert.Contains(t, home.View(), "Welcome, Ada")
}

func TestSignInValidationShowsHint(t *testing.T) {
	p := &stubProvider{}
	s, _ := startScreen(t, p, nil)

	typeText(s, "ada@example.com")
	press(s, tea.KeyTab)
	typeText(s, "short")
	_, cmd := press(s, tea.KeyEnter)

	assert.Nil(t, cmd, "invalid input should not start an attempt")
	assert.Empty(t, p.recorded())
	assert.Nil(t, s.Controller().Err())
	assert.Contains(t, s.View(), "at least 8 characters")
}

func TestSignInProviderErrorShowsBannerAndClearsPassword(t *testing.T) {
	p := &stubProvider{verifyErr: identity.NewError(identity.CodeWrongPassword, "The password is invalid.")}
	s, _ := startScreen(t, p, nil)

	typeText(s, "ada@example.com")
	press(s, tea.KeyTab)
	typeText(s, "password123")
	_, cmd := press(s, tea.KeyEnter)
	require.True(t, s.Controller().Pending())

	s.Update(attemptOutcome(t, cmd))

	assert.False(t, s.Controller().Pending())
	err := s.Controller().Err()
	require.NotNil(t, err)
	assert.Equal(t, "The password is invalid.", err.Message)
	assert.Empty(t, s.inputValue(signin.FieldPassword))
	assert.Equal(t, "ada@example.com", s.inputValue(signin.FieldEmail))
	assert.Contains(t, s.View(), "The password is invalid.")
}

func TestSignInLoginArrivesThroughSession(t *testing.T) {
	p := &stubProvider{user: &identity.Identity{UID: "u2", Email: "ada@example.com"}}
	s, _ := startScreen(t, p, nil)

	typeText(s, "ada@example.com")
	press(s, tea.KeyTab)
	typeText(s, "password123")
	_, cmd := press(s, tea.KeyEnter)

	next, _ := s.Update(attemptOutcome(t, cmd))
	assert.Same(t, s, next, "the outcome alone should not leave the screen")

	next, _ = s.Update(s.waitForSession()())
	_, ok := next.(*HomeScreen)
	assert.True(t, ok, "screen = %T, want *HomeScreen", next)
}

func TestSignInModeToggleClearsInputs(t *testing.T) {
	s, _ := startScreen(t, &stubProvider{}, nil)

	typeText(s, "ada@example.com")
	press(s, tea.KeyCtrlN)

	assert.Equal(t, signin.ModeSignUp, s.Controller().Mode())
	require.Len(t, s.inputs, len(signin.ModeSignUp.Fields()))
	for i, in := range s.inputs {
		assert.Empty(t, in.Value(), "input %s after mode switch", s.fields[i])
	}
	assert.Contains(t, s.View(), "Create account")

	press(s, tea.KeyCtrlN)
	assert.Equal(t, signin.ModeLogin, s.Controller().Mode())
}

func TestSignInSignUpRunsBothCalls(t *testing.T) {
	p := &stubProvider{}
	s, _ := startScreen(t, p, nil)

	cmd := fillSignUp(t, s, "Ada Lovelace", "ada@example.com", "password123")
	s.Update(attemptOutcome(t, cmd))

	assert.Equal(t, []string{"create ada@example.com", "profile Ada Lovelace"}, p.recorded())
	assert.Nil(t, s.Controller().Err())
}

func TestSignUpProfileSavedWhenSessionArrivesFirst(t *testing.T) {
	p := &stubProvider{release: make(chan struct{})}
	app, s := startApp(t, p)

	cmd := fillSignUp(t, s, "Ada Lovelace", "ada@example.com", "password123")
	outcome := make(chan []tea.Msg, 1)
	go func() { outcome <- runCmd(cmd) }()

	// The new account is reported while its profile is still being saved.
	app.Update(s.waitForSession()())
	require.IsType(t, &SignInScreen{}, app.Screen(), "screen left before the profile was saved")
	assert.True(t, s.Controller().Pending())

	close(p.release)
	app.Update(findOutcome(t, <-outcome))

	assert.NoError(t, p.profileContextErr(), "profile request was cancelled")
	home, ok := app.Screen().(*HomeScreen)
	require.True(t, ok, "screen = %T, want *HomeScreen", app.Screen())
	assert.Equal(t, "Ada Lovelace", home.User().DisplayName)

	current, ok := s.ctx.Store.Current()
	require.True(t, ok)
	assert.Equal(t, "new", current.UID)
	assert.Equal(t, "Ada Lovelace", current.DisplayName)
	assert.Contains(t, home.View(), "Welcome, Ada Lovelace")
}

func TestSignUpProfileFailureStaysOnForm(t *testing.T) {
	p := &stubProvider{profileErr: identity.NewError(identity.CodeInternal, "profile backend down")}
	app, s := startApp(t, p)

	cmd := fillSignUp(t, s, "Ada Lovelace", "ada@example.com", "password123")
	app.Update(attemptOutcome(t, cmd))

	require.IsType(t, &SignInScreen{}, app.Screen())
	err := s.Controller().Err()
	require.NotNil(t, err)
	assert.ErrorIs(t, err, signin.ErrProfileIncomplete)
	assert.NotContains(t, err.Message, "profile backend down")
	assert.Equal(t, signin.ModeSignUp, s.Controller().Mode())
	assert.Empty(t, s.inputValue(signin.FieldPassword))

	// The account exists and its sign-in is reported, but the error stays up.
	app.Update(s.waitForSession()())
	require.IsType(t, &SignInScreen{}, app.Screen(), "error hidden by the sign-in")
	assert.Contains(t, s.View(), err.Message)
	assert.Contains(t, s.View(), "Press Enter to continue")
	assert.Equal(t, []string{"create ada@example.com", "profile Ada Lovelace"}, p.recorded(), "account is not rolled back")

	app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	home, ok := app.Screen().(*HomeScreen)
	require.True(t, ok, "screen = %T, want *HomeScreen", app.Screen())
	assert.Equal(t, "new", home.User().UID)
	assert.Empty(t, home.User().DisplayName)
}

func TestSignInGoogleOnlyFromLogin(t *testing.T) {
	p := &stubProvider{}
	s, _ := startScreen(t, p, nil)

	press(s, tea.KeyCtrlN)
	_, cmd := press(s, tea.KeyCtrlG)

	assert.Nil(t, cmd)
	assert.Empty(t, p.recorded())
	assert.Contains(t, s.View(), "available from the login form")
}

func TestSignInGoogleFailureLeavesNoBanner(t *testing.T) {
	s, _ := startScreen(t, &stubProvider{}, nil)

	_, cmd := press(s, tea.KeyCtrlG)
	s.Update(DeviceCodeMsg{VerificationURL: "https://google.com/device", UserCode: "ABCD-EFGH"})
	assert.Contains(t, s.View(), "ABCD-EFGH")

	s.Update(attemptOutcome(t, cmd))
	assert.Nil(t, s.Controller().Err())
	assert.False(t, s.Controller().Pending())
	assert.NotContains(t, s.View(), "ABCD-EFGH")
}

func TestSignInForgotPasswordDialog(t *testing.T) {
	s, _ := startScreen(t, &stubProvider{}, nil)

	typeText(s, "ada@example.com")
	press(s, tea.KeyCtrlR)
	require.True(t, s.Controller().DialogVisible())
	assert.Contains(t, s.View(), "octave.example.com/recover")
	assert.Contains(t, s.View(), "ada@example.com")

	// Keys go to the dialog, not the form.
	typeText(s, "x")
	assert.Equal(t, "ada@example.com", s.inputValue(signin.FieldEmail))

	press(s, tea.KeyEsc)
	assert.False(t, s.Controller().DialogVisible())
}

func TestAppReplacesScreenAndStopsBootstrap(t *testing.T) {
	p := &stubProvider{}
	app := NewApp(newTestContext(p))
	defer app.Close()

	app.Init()
	s := app.Screen().(*SignInScreen)
	p.emit(&identity.Identity{UID: "u3", Email: "ada@example.com"})
	app.Update(s.waitForSession()())

	require.IsType(t, &HomeScreen{}, app.Screen())
	app.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, 1, p.unsubscribes)
}

func TestAppQuitKeys(t *testing.T) {
	app := NewApp(newTestContext(&stubProvider{}))
	defer app.Close()

	for _, key := range []tea.KeyType{tea.KeyCtrlC, tea.KeyCtrlQ} {
		_, cmd := app.Update(tea.KeyMsg{Type: key})
		require.NotNil(t, cmd, "%v: no command", key)
		assert.IsType(t, tea.QuitMsg{}, cmd(), "%v: command is not quit", key)
	}
}
