package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type memoryAccount struct {
	identity Identity
	hash     []byte
}

// MemoryProvider keeps accounts in process memory. It backs offline mode
// and demos; nothing survives a restart.
type MemoryProvider struct {
	*broadcaster

	mu       sync.Mutex
	accounts map[string]*memoryAccount
	logger   *zap.Logger

	hashCost     int
	restoreDelay time.Duration
	seeds        []memorySeed
	signedIn     string
}

type memorySeed struct {
	email, password, name string
}

// MemoryOption configures a MemoryProvider.
type MemoryOption func(*MemoryProvider)

// WithAccount pre-registers an account.
func WithAccount(email, password, name string) MemoryOption {
	return func(p *MemoryProvider) {
		p.seeds = append(p.seeds, memorySeed{email: email, password: password, name: name})
	}
}

// WithSignedIn restores a session for the given pre-registered email.
func WithSignedIn(email string) MemoryOption {
	return func(p *MemoryProvider) { p.signedIn = normalizeEmail(email) }
}

// WithRestoreDelay postpones the first session report, like a slow network.
func WithRestoreDelay(d time.Duration) MemoryOption {
	return func(p *MemoryProvider) { p.restoreDelay = d }
}

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) MemoryOption {
	return func(p *MemoryProvider) { p.hashCost = cost }
}

// NewMemoryProvider creates an in-memory provider.
func NewMemoryProvider(logger *zap.Logger, opts ...MemoryOption) (*MemoryProvider, error) {
	p := &MemoryProvider{
		broadcaster: newBroadcaster(),
		accounts:    make(map[string]*memoryAccount),
		logger:      logger,
		hashCost:    bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, seed := range p.seeds {
		acct, err := p.register(seed.email, seed.password)
		if err != nil {
			return nil, fmt.Errorf("failed to seed account %s: %w", seed.email, err)
		}
		acct.identity.DisplayName = seed.name
	}

	var restored *Identity
	if p.signedIn != "" {
		acct, ok := p.accounts[p.signedIn]
		if !ok {
			return nil, fmt.Errorf("cannot restore session for unknown account %s", p.signedIn)
		}
		restored = cloneIdentity(&acct.identity)
	}

	if p.restoreDelay > 0 {
		time.AfterFunc(p.restoreDelay, func() { p.set(restored) })
	} else {
		p.set(restored)
	}

	logger.Info("In-memory identity provider ready", zap.Int("accounts", len(p.accounts)))
	return p, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// register creates an account. Callers other than the constructor hold p.mu.
func (p *MemoryProvider) register(email, password string) (*memoryAccount, error) {
	key := normalizeEmail(email)
	if key == "" || !strings.Contains(key, "@") {
		return nil, NewError(CodeInvalidEmail, "The email address is badly formatted.")
	}
	if _, exists := p.accounts[key]; exists {
		return nil, NewError(CodeEmailExists, "The email address is already in use by another account.")
	}
	if len(password) < 6 {
		return nil, NewError(CodeWeakPassword, "Password should be at least 6 characters.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.hashCost)
	if err != nil {
		return nil, &Error{Code: CodeInternal, Message: "Could not store the password.", Err: err}
	}
	acct := &memoryAccount{
		identity: Identity{UID: uuid.NewString(), Email: key},
		hash:     hash,
	}
	p.accounts[key] = acct
	return acct, nil
}

// VerifyCredentials implements Provider.
func (p *MemoryProvider) VerifyCredentials(ctx context.Context, email, password string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	acct, ok := p.accounts[normalizeEmail(email)]
	var id Identity
	if ok {
		id = acct.identity
	}
	p.mu.Unlock()

	if !ok {
		return nil, NewError(CodeUserNotFound, "There is no user record corresponding to this identifier. The user may have been deleted.")
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		p.logger.Debug("Password mismatch", zap.String("uid", id.UID))
		return nil, NewError(CodeWrongPassword, "The password is invalid or the user does not have a password.")
	}

	p.set(&id)
	return cloneIdentity(&id), nil
}

// CreateAccount implements Provider. A new account is signed in immediately.
func (p *MemoryProvider) CreateAccount(ctx context.Context, email, password string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	acct, err := p.register(email, password)
	var id Identity
	if err == nil {
		id = acct.identity
	}
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p.logger.Info("Account created", zap.String("uid", id.UID))
	p.set(&id)
	return cloneIdentity(&id), nil
}

// SetProfileAttributes implements Provider.
func (p *MemoryProvider) SetProfileAttributes(ctx context.Context, id *Identity, name, photoURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == nil {
		return NewError(CodeInvalidToken, "The user's credential is no longer valid. The user must sign in again.")
	}

	p.mu.Lock()
	acct, ok := p.accounts[normalizeEmail(id.Email)]
	if ok && acct.identity.UID == id.UID {
		acct.identity.DisplayName = name
		acct.identity.PhotoURL = photoURL
	}
	var updated Identity
	if ok {
		updated = acct.identity
	}
	p.mu.Unlock()

	if !ok || updated.UID != id.UID {
		return NewError(CodeUserNotFound, "There is no user record corresponding to this identifier. The user may have been deleted.")
	}

	if current := p.snapshot(); current != nil && current.UID == updated.UID {
		p.set(&updated)
	}
	return nil
}

// SignInWithFederatedProvider implements Provider. Offline mode has no
// federated provider.
func (p *MemoryProvider) SignInWithFederatedProvider(ctx context.Context) (*Identity, error) {
	return nil, NewError(CodeOperationNotAllowed, "Google sign-in is not available in offline mode.")
}
