package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

const (
	// SecureTokenURL exchanges Firebase refresh tokens for fresh ID tokens.
	SecureTokenURL = "https://securetoken.googleapis.com/v1/token"

	googleProviderID = "google.com"
	restoreTimeout   = 30 * time.Second
)

// DeviceCode is what the user needs to finish a federated sign-in on
// another device.
type DeviceCode struct {
	VerificationURL string
	UserCode        string
	ExpiresAt       time.Time
}

// TokenVerifier checks a Firebase ID token and returns the uid it was issued to.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (uid string, err error)
}

// ToolkitConfig configures a ToolkitProvider.
type ToolkitConfig struct {
	APIKey             string
	GoogleClientID     string
	GoogleClientSecret string

	// Session persists the signed-in session; nil or disabled means every
	// launch starts signed out.
	Session *SessionFile
	// Verifier, when set, must accept every ID token before its identity
	// is reported.
	Verifier TokenVerifier
	// DevicePrompt shows the device code of a federated sign-in.
	DevicePrompt func(DeviceCode)

	// Overrides, mostly for tests.
	ClientOptions  []option.ClientOption
	TokenURL       string
	GoogleEndpoint *oauth2.Endpoint
	HTTPClient     *http.Client
}

// ToolkitProvider signs users in with Firebase Authentication through the
// Identity Toolkit API.
type ToolkitProvider struct {
	*broadcaster

	svc    *identitytoolkit.Service
	cfg    ToolkitConfig
	logger *zap.Logger

	mu           sync.Mutex
	uid          string
	idToken      string
	refreshToken string
}

// NewToolkitProvider creates the provider and starts restoring any stored
// session in the background; subscribers hear the outcome.
func NewToolkitProvider(ctx context.Context, cfg ToolkitConfig, logger *zap.Logger) (*ToolkitProvider, error) {
	if cfg.APIKey == "" {
		logger.Error("Firebase API key is not configured.")
		return nil, fmt.Errorf("firebase API key is required")
	}

	opts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, cfg.ClientOptions...)
	svc, err := identitytoolkit.NewService(ctx, opts...)
	if err != nil {
		logger.Error("Failed to create Identity Toolkit client", zap.Error(err))
		return nil, fmt.Errorf("error creating identity toolkit client: %w", err)
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = SecureTokenURL
	}

	p := &ToolkitProvider{
		broadcaster: newBroadcaster(),
		svc:         svc,
		cfg:         cfg,
		logger:      logger,
	}

	go func() {
		rctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
		defer cancel()
		p.set(p.restore(rctx))
	}()

	logger.Info("Identity Toolkit provider initialized", zap.Bool("persistence", cfg.Session.Enabled()))
	return p, nil
}

// restore returns the identity of the stored session, or nil.
func (p *ToolkitProvider) restore(ctx context.Context) *Identity {
	if !p.cfg.Session.Enabled() {
		return nil
	}
	stored, err := p.cfg.Session.Load()
	if errors.Is(err, ErrNoSession) {
		p.logger.Debug("No stored session")
		return nil
	}
	if err != nil {
		p.logger.Warn("Stored session unreadable", zap.Error(err))
		return nil
	}

	tok, err := p.refresh(ctx, stored.RefreshToken)
	if err != nil {
		p.logger.Warn("Session refresh failed", zap.Error(err), zap.String("uid", stored.Identity.UID))
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			p.forgetSession()
		}
		return nil
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		idToken = tok.AccessToken
	}
	resp, err := p.svc.Relyingparty.GetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartyGetAccountInfoRequest{
		IdToken: idToken,
	}).Context(ctx).Do()
	if err != nil {
		p.logger.Warn("Failed to read account for stored session", zap.Error(err))
		return nil
	}
	if len(resp.Users) == 0 {
		p.logger.Warn("Stored session has no account", zap.String("uid", stored.Identity.UID))
		p.forgetSession()
		return nil
	}

	u := resp.Users[0]
	id := &Identity{UID: u.LocalId, Email: u.Email, DisplayName: u.DisplayName, PhotoURL: u.PhotoUrl}
	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = stored.RefreshToken
	}
	if err := p.establish(ctx, id, idToken, refreshToken); err != nil {
		p.logger.Warn("Restored session rejected", zap.Error(err))
		return nil
	}
	p.logger.Info("Session restored", zap.String("uid", id.UID))
	return id
}

func (p *ToolkitProvider) oauthContext(ctx context.Context) context.Context {
	if p.cfg.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
	}
	return ctx
}

// refresh trades a refresh token for a new ID token at the Secure Token endpoint.
func (p *ToolkitProvider) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	conf := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.cfg.TokenURL + "?key=" + url.QueryEscape(p.cfg.APIKey),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return conf.TokenSource(p.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
}

// establish records a signed-in session and persists it. It does not notify
// subscribers.
func (p *ToolkitProvider) establish(ctx context.Context, id *Identity, idToken, refreshToken string) error {
	if p.cfg.Verifier != nil {
		uid, err := p.cfg.Verifier.VerifyIDToken(ctx, idToken)
		if err != nil {
			return &Error{Code: CodeInvalidToken, Message: "The user's credential is no longer valid. The user must sign in again.", Err: err}
		}
		if uid != id.UID {
			return NewError(CodeInvalidToken, "The user's credential does not match the signed-in account.")
		}
	}

	p.mu.Lock()
	p.uid = id.UID
	p.idToken = idToken
	if refreshToken != "" {
		p.refreshToken = refreshToken
	}
	refreshToken = p.refreshToken
	p.mu.Unlock()

	if p.cfg.Session.Enabled() {
		err := p.cfg.Session.Save(StoredSession{Identity: *id, RefreshToken: refreshToken, SavedAt: time.Now().UTC()})
		if err != nil {
			p.logger.Warn("Failed to persist session", zap.Error(err), zap.String("uid", id.UID))
		}
	}
	return nil
}

func (p *ToolkitProvider) forgetSession() {
	if err := p.cfg.Session.Clear(); err != nil {
		p.logger.Warn("Failed to clear stored session", zap.Error(err))
	}
}

// signedIn finishes a successful sign-in and reports it to subscribers.
func (p *ToolkitProvider) signedIn(ctx context.Context, id *Identity, idToken, refreshToken string) (*Identity, error) {
	if err := p.establish(ctx, id, idToken, refreshToken); err != nil {
		return nil, err
	}
	p.logger.Info("User signed in", zap.String("uid", id.UID))
	p.set(id)
	return cloneIdentity(id), nil
}

// VerifyCredentials implements Provider.
func (p *ToolkitProvider) VerifyCredentials(ctx context.Context, email, password string) (*Identity, error) {
	resp, err := p.svc.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		p.logger.Debug("Password sign-in rejected", zap.Error(err))
		return nil, mapToolkitError(err)
	}
	id := &Identity{UID: resp.LocalId, Email: resp.Email, DisplayName: resp.DisplayName, PhotoURL: resp.PhotoUrl}
	return p.signedIn(ctx, id, resp.IdToken, resp.RefreshToken)
}

// CreateAccount implements Provider. The new account is signed in.
func (p *ToolkitProvider) CreateAccount(ctx context.Context, email, password string) (*Identity, error) {
	resp, err := p.svc.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		p.logger.Debug("Sign-up rejected", zap.Error(err))
		return nil, mapToolkitError(err)
	}
	p.logger.Info("Account created", zap.String("uid", resp.LocalId))
	id := &Identity{UID: resp.LocalId, Email: resp.Email, DisplayName: resp.DisplayName}
	return p.signedIn(ctx, id, resp.IdToken, resp.RefreshToken)
}

// SetProfileAttributes implements Provider. Only the signed-in identity can
// be updated.
func (p *ToolkitProvider) SetProfileAttributes(ctx context.Context, id *Identity, name, photoURL string) error {
	p.mu.Lock()
	uid, idToken := p.uid, p.idToken
	p.mu.Unlock()

	if id == nil || id.UID != uid || idToken == "" {
		return NewError(CodeInvalidToken, "The user's credential is no longer valid. The user must sign in again.")
	}

	resp, err := p.svc.Relyingparty.SetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartySetAccountInfoRequest{
		IdToken:           idToken,
		DisplayName:       name,
		PhotoUrl:          photoURL,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		p.logger.Warn("Profile update rejected", zap.Error(err), zap.String("uid", uid))
		return mapToolkitError(err)
	}

	updated := &Identity{UID: uid, Email: id.Email, DisplayName: resp.DisplayName, PhotoURL: resp.PhotoUrl}
	if resp.Email != "" {
		updated.Email = resp.Email
	}
	if resp.IdToken != "" {
		idToken = resp.IdToken
	}
	if _, err := p.signedIn(ctx, updated, idToken, resp.RefreshToken); err != nil {
		return err
	}
	return nil
}

// SignInWithFederatedProvider implements Provider with Google's device
// authorization flow: the user approves on another device while this call
// polls for the grant.
func (p *ToolkitProvider) SignInWithFederatedProvider(ctx context.Context) (*Identity, error) {
	if p.cfg.GoogleClientID == "" {
		return nil, NewError(CodeOperationNotAllowed, "Google sign-in is not configured.")
	}

	endpoint := google.Endpoint
	if p.cfg.GoogleEndpoint != nil {
		endpoint = *p.cfg.GoogleEndpoint
	}
	conf := &oauth2.Config{
		ClientID:     p.cfg.GoogleClientID,
		ClientSecret: p.cfg.GoogleClientSecret,
		Endpoint:     endpoint,
		Scopes:       []string{"openid", "email", "profile"},
	}

	octx := p.oauthContext(ctx)
	da, err := conf.DeviceAuth(octx)
	if err != nil {
		p.logger.Warn("Device authorization failed", zap.Error(err))
		return nil, &Error{Code: CodeNetworkRequestFailed, Message: "Could not start Google sign-in.", Err: err}
	}

	verifyURL := da.VerificationURIComplete
	if verifyURL == "" {
		verifyURL = da.VerificationURI
	}
	if p.cfg.DevicePrompt != nil {
		p.cfg.DevicePrompt(DeviceCode{VerificationURL: verifyURL, UserCode: da.UserCode, ExpiresAt: da.Expiry})
	}

	tok, err := conf.DeviceAccessToken(octx, da)
	if err != nil {
		p.logger.Info("Google sign-in not completed", zap.Error(err))
		return nil, &Error{Code: CodeOperationNotAllowed, Message: "Google sign-in was not completed.", Err: err}
	}
	googleIDToken, _ := tok.Extra("id_token").(string)
	if googleIDToken == "" {
		return nil, NewError(CodeInternal, "Google did not return an ID token.")
	}

	resp, err := p.svc.Relyingparty.VerifyAssertion(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		PostBody:          url.Values{"id_token": {googleIDToken}, "providerId": {googleProviderID}}.Encode(),
		RequestUri:        "http://localhost",
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		p.logger.Warn("Federated assertion rejected", zap.Error(err))
		return nil, mapToolkitError(err)
	}
	if resp.ErrorMessage != "" {
		return nil, toolkitError(resp.ErrorMessage, nil)
	}

	id := &Identity{UID: resp.LocalId, Email: resp.Email, DisplayName: resp.DisplayName, PhotoURL: resp.PhotoUrl}
	return p.signedIn(ctx, id, resp.IdToken, resp.RefreshToken)
}

type toolkitReason struct {
	code, message string
}

var toolkitReasons = map[string]toolkitReason{
	"EMAIL_NOT_FOUND":             {CodeUserNotFound, "There is no user record corresponding to this identifier. The user may have been deleted."},
	"INVALID_PASSWORD":            {CodeWrongPassword, "The password is invalid or the user does not have a password."},
	"INVALID_LOGIN_CREDENTIALS":   {CodeWrongPassword, "The email or password is incorrect."},
	"USER_DISABLED":               {CodeUserDisabled, "The user account has been disabled by an administrator."},
	"EMAIL_EXISTS":                {CodeEmailExists, "The email address is already in use by another account."},
	"INVALID_EMAIL":               {CodeInvalidEmail, "The email address is badly formatted."},
	"WEAK_PASSWORD":               {CodeWeakPassword, "Password should be at least 6 characters."},
	"TOO_MANY_ATTEMPTS_TRY_LATER": {CodeTooManyRequests, "Access to this account has been temporarily disabled due to many failed login attempts."},
	"OPERATION_NOT_ALLOWED":       {CodeOperationNotAllowed, "This sign-in method is disabled for this project."},
	"INVALID_ID_TOKEN":            {CodeInvalidToken, "The user's credential is no longer valid. The user must sign in again."},
	"TOKEN_EXPIRED":               {CodeInvalidToken, "The user's credential is no longer valid. The user must sign in again."},
	"USER_NOT_FOUND":              {CodeUserNotFound, "There is no user record corresponding to this identifier. The user may have been deleted."},
}

// toolkitError translates an Identity Toolkit reason such as
// "WEAK_PASSWORD : Password should be at least 6 characters".
func toolkitError(reason string, cause error) *Error {
	key := reason
	if i := strings.IndexAny(key, " :"); i > 0 {
		key = key[:i]
	}
	if r, ok := toolkitReasons[key]; ok {
		return &Error{Code: r.code, Message: r.message, Err: cause}
	}
	return &Error{Code: CodeInternal, Message: reason, Err: cause}
}

func mapToolkitError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return toolkitError(gerr.Message, err)
	}
	return &Error{Code: CodeNetworkRequestFailed, Message: "A network error has occurred. Check your connection and try again.", Err: err}
}
