package httpapi

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/domain"
)

const (
	tokenIssuer     = "pharmapos"
	defaultTokenTTL = 8 * time.Hour

	minUsernameLen = 4
	minPasswordLen = 6
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidCashier     = errors.New("invalid cashier")
)

// UserStore persists staff accounts. Passwords are bcrypt hashes, except for
// legacy rows which are rehashed on the next refresh.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager issues staff tokens and approves manager-gated actions such as
// returns by a cashier.
type AuthManager struct {
	signingKey []byte
	tokenTTL   time.Duration
	pinHash    []byte
	store      UserStore

	mu       sync.RWMutex
	accounts map[string]domain.UserAccount
}

type staffClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// dummyHash is compared against on unknown usernames so both branches of a
// failed login cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("pharmapos-unknown-user"), bcrypt.DefaultCost)

func NewAuthManager(ctx context.Context, secret string, tokenTTL time.Duration, managerPIN string, users UserStore) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	m := &AuthManager{
		signingKey: []byte(secret),
		tokenTTL:   tokenTTL,
		store:      users,
		accounts:   make(map[string]domain.UserAccount),
	}
	if pin := strings.TrimSpace(managerPIN); pin != "" {
		if hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost); err == nil {
			m.pinHash = hash
		}
	}
	m.refresh(ctx)
	return m
}

func (m *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	m.refresh(ctx)

	username := normalizeUsername(req.Username)
	account, known := m.account(username)
	if !known {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !passwordMatches(account.Password, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !account.Active {
		return domain.LoginResponse{}, ErrInactiveAccount
	}

	expiresAt := time.Now().UTC().Add(m.tokenTTL)
	token, err := m.sign(username, account.Role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        account.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (m *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	var claims staffClaims
	_, err := jwtlib.ParseWithClaims(raw, &claims,
		func(*jwtlib.Token) (any, error) { return m.signingKey, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.Role == "" {
		return domain.Actor{}, fmt.Errorf("%w: missing subject or role", ErrInvalidToken)
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

func (m *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	claims := staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.signingKey)
}

// ApproveReturn reports whether pin is the manager PIN. Without a configured
// PIN nothing is approved and only admins can process returns.
func (m *AuthManager) ApproveReturn(pin string) bool {
	pin = strings.TrimSpace(pin)
	if len(m.pinHash) == 0 || pin == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(m.pinHash, []byte(pin)) == nil
}

func (m *AuthManager) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	m.refresh(ctx)

	username := normalizeUsername(req.Username)
	if err := checkCashierInput(username, req.Password); err != nil {
		return domain.CashierUser{}, err
	}
	if _, taken := m.account(username); taken {
		return domain.CashierUser{}, fmt.Errorf("%w: username %q is taken", ErrInvalidCashier, username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.CashierUser{}, fmt.Errorf("hash password: %w", err)
	}
	account := domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      domain.RoleCashier,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if m.store != nil {
		if err := m.store.CreateUser(ctx, account); err != nil {
			return domain.CashierUser{}, err
		}
	}

	m.mu.Lock()
	m.accounts[username] = account
	m.mu.Unlock()
	return cashierView(account), nil
}

func (m *AuthManager) ListCashiers(ctx context.Context) []domain.CashierUser {
	m.refresh(ctx)

	m.mu.RLock()
	cashiers := make([]domain.CashierUser, 0, len(m.accounts))
	for _, account := range m.accounts {
		if account.Role == domain.RoleCashier {
			cashiers = append(cashiers, cashierView(account))
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(cashiers, func(a, b domain.CashierUser) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return cashiers
}

func (m *AuthManager) account(username string) (domain.UserAccount, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[username]
	return account, ok
}

// refresh reloads accounts from the store so users created by another
// instance can log in. Plain-text passwords are rehashed and written back.
// A failing store leaves the current cache in place.
func (m *AuthManager) refresh(ctx context.Context) {
	if m.store == nil {
		return
	}
	stored, err := m.store.ListUsers(ctx)
	if err != nil {
		return
	}

	loaded := make(map[string]domain.UserAccount, len(stored))
	for _, account := range stored {
		account.Username = normalizeUsername(account.Username)
		if account.Username == "" {
			continue
		}
		if !isBcryptHash(account.Password) {
			hash, err := bcrypt.GenerateFromPassword([]byte(account.Password), bcrypt.DefaultCost)
			if err != nil {
				continue
			}
			account.Password = string(hash)
			_ = m.store.UpdateUserPassword(ctx, account.Username, account.Password)
		}
		loaded[account.Username] = account
	}

	m.mu.Lock()
	for username, account := range loaded {
		m.accounts[username] = account
	}
	m.mu.Unlock()
}

func checkCashierInput(username, password string) error {
	switch {
	case len(username) < minUsernameLen:
		return fmt.Errorf("%w: username needs at least %d characters", ErrInvalidCashier, minUsernameLen)
	case strings.ContainsAny(username, " \t\r\n"):
		return fmt.Errorf("%w: username must not contain spaces", ErrInvalidCashier)
	case len(strings.TrimSpace(password)) < minPasswordLen:
		return fmt.Errorf("%w: password needs at least %d characters", ErrInvalidCashier, minPasswordLen)
	}
	return nil
}

func cashierView(account domain.UserAccount) domain.CashierUser {
	return domain.CashierUser{
		Username:  account.Username,
		Role:      account.Role,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func passwordMatches(hash, password string) bool {
	if password == "" || !isBcryptHash(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func isBcryptHash(value string) bool {
	_, err := bcrypt.Cost([]byte(value))
	return err == nil
}
