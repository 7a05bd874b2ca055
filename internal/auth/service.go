// Package auth implements accounts and sessions: password and Google sign-in,
// stateless JWT session tokens, password recovery and email verification.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"golang.org/x/oauth2"

	"mdpreview/internal/model"
	"mdpreview/internal/store"
)

// UserStore is the account persistence the Service needs; *store.Users implements it.
type UserStore interface {
	Create(ctx context.Context, u model.User) (model.User, error)
	Get(ctx context.Context, id string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	Save(ctx context.Context, u model.User) (model.User, error)
}

type Config struct {
	Secret          []byte
	SessionTTL      time.Duration
	RecoveryTTL     time.Duration
	VerificationTTL time.Duration
	BcryptCost      int

	MaxLoginAttempts int
	AttemptWindow    time.Duration

	Google GoogleConfig
	Outbox Outbox
}

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * 24 * time.Hour
	}
	if c.RecoveryTTL <= 0 {
		c.RecoveryTTL = time.Hour
	}
	if c.VerificationTTL <= 0 {
		c.VerificationTTL = 24 * time.Hour
	}
	if c.MaxLoginAttempts == 0 {
		c.MaxLoginAttempts = 10
	}
	if c.AttemptWindow <= 0 {
		c.AttemptWindow = 15 * time.Minute
	}
	return c
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithHTTPClient sets the client used for the OAuth exchange and profile fetch.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

type Service struct {
	users      UserStore
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
	httpClient *http.Client
	limiter    *attemptLimiter

	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewService(users UserStore, cfg Config, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: nil user store")
	}
	if len(cfg.Secret) < 16 {
		return nil, errors.New("auth: secret must be at least 16 bytes")
	}
	cfg = cfg.withDefaults()
	s := &Service{
		users:   users,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
		revoked: map[string]time.Time{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = newAttemptLimiter(cfg.MaxLoginAttempts, cfg.AttemptWindow)
	return s, nil
}

func (s *Service) tokens() tokens { return tokens{secret: s.cfg.Secret, now: s.now} }

func (s *Service) SessionTTL() time.Duration { return s.cfg.SessionTTL }

func (s *Service) GoogleEnabled() bool { return s.cfg.Google.Configured() }

func (s *Service) Outbox() Outbox { return s.cfg.Outbox }

func (s *Service) newSession(u model.User) (string, error) {
	return s.tokens().mint(tokenClaims{
		Purpose:          purposeSession,
		Generation:       u.TokenGeneration,
		RegisteredClaims: jwtSubject(u.ID),
	}, s.cfg.SessionTTL)
}

// CurrentUser resolves a session token. A nil user with a nil error means the
// caller is not signed in.
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	claims, err := s.tokens().parse(token, purposeSession)
	if err != nil {
		return nil, nil
	}
	if s.isRevoked(claims.ID) {
		return nil, nil
	}
	u, err := s.users.Get(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.TokenGeneration != claims.Generation {
		return nil, nil
	}
	return &u, nil
}

type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

func (in RegisterInput) Name() string {
	return strings.TrimSpace(strings.TrimSpace(in.FirstName) + " " + strings.TrimSpace(in.LastName))
}

func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.LastName, validation.Length(0, 100)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Password, passwordRules...),
	)
}

var passwordRules = []validation.Rule{validation.Required, validation.Length(8, 256)}

// Register creates a password account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.User, string, error) {
	in.Email = model.NormalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return model.User{}, "", err
	}
	hash, err := HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, "", err
	}
	u, err := s.users.Create(ctx, model.User{
		Name:         in.Name(),
		Email:        in.Email,
		Provider:     model.ProviderPassword,
		PasswordHash: hash,
	})
	if errors.Is(err, store.ErrEmailTaken) {
		return model.User{}, "", ErrAlreadyRegistered
	}
	if err != nil {
		return model.User{}, "", err
	}
	token, err := s.newSession(u)
	if err != nil {
		return model.User{}, "", err
	}
	s.logger.Info("user registered", slog.String("user_id", u.ID))
	return u, token, nil
}

type loginInput struct {
	Email    string
	Password string
}

func (s *Service) Login(ctx context.Context, email, password string) (model.User, string, error) {
	in := loginInput{Email: model.NormalizeEmail(email), Password: password}
	if err := validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, validation.Required),
	); err != nil {
		return model.User{}, "", err
	}
	now := s.now()
	if !s.limiter.allow(in.Email, now) {
		return model.User{}, "", ErrTooManyAttempts
	}
	u, err := s.users.GetByEmail(ctx, in.Email)
	if errors.Is(err, store.ErrNotFound) {
		s.limiter.fail(in.Email, now)
		return model.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, "", err
	}
	if err := ComparePassword(in.Password, u.PasswordHash); err != nil {
		s.limiter.fail(in.Email, now)
		if errors.Is(err, ErrInvalidCredentials) {
			return model.User{}, "", ErrInvalidCredentials
		}
		return model.User{}, "", err
	}
	s.limiter.reset(in.Email)
	token, err := s.newSession(u)
	if err != nil {
		return model.User{}, "", err
	}
	return u, token, nil
}

// Logout revokes one session token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens().parse(token, purposeSession)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	if claims.ExpiresAt != nil {
		s.revoked[claims.ID] = claims.ExpiresAt.Time
	}
	return nil
}

func (s *Service) isRevoked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[id]
	return ok
}

// LogoutAll invalidates every session of the user.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	u.TokenGeneration++
	_, err = s.users.Save(ctx, u)
	return err
}

// ForgotPassword mails a recovery link. Unknown addresses succeed silently.
func (s *Service) ForgotPassword(ctx context.Context, email, resetURL string) error {
	email = model.NormalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return validation.Errors{"email": err}
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	token, err := s.tokens().mint(tokenClaims{
		Purpose:          purposeRecovery,
		Generation:       u.TokenGeneration,
		Email:            u.Email,
		RegisteredClaims: jwtSubject(u.ID),
	}, s.cfg.RecoveryTTL)
	if err != nil {
		return err
	}
	link, err := withToken(resetURL, token)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Hi %s,\n\nUse the link below to choose a new password. It expires in %s.\n\n%s\n\nIf you did not ask for this, ignore this email.",
		displayName(u), s.cfg.RecoveryTTL, link)
	return s.cfg.Outbox.Send(u.Email, "Reset your password", body, s.now())
}

type resetInput struct {
	Password string
	Confirm  string
}

// ResetPassword sets a new password from a recovery token. The token is
// single-use: the reset bumps the token generation it was minted for.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirm string) error {
	in := resetInput{Password: password, Confirm: confirm}
	if err := validation.ValidateStruct(&in,
		validation.Field(&in.Password, passwordRules...),
		validation.Field(&in.Confirm, validation.Required, validation.In(password).Error("passwords do not match")),
	); err != nil {
		return err
	}
	claims, err := s.tokens().parse(token, purposeRecovery)
	if err != nil {
		return err
	}
	u, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		return ErrInvalidToken
	}
	if u.TokenGeneration != claims.Generation || u.Email != claims.Email {
		return ErrInvalidToken
	}
	hash, err := HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.Provider = model.ProviderPassword
	u.TokenGeneration++
	_, err = s.users.Save(ctx, u)
	return err
}

func (s *Service) UpdatePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if err := validation.Validate(newPassword, passwordRules...); err != nil {
		return validation.Errors{"password": err}
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := ComparePassword(oldPassword, u.PasswordHash); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	_, err = s.users.Save(ctx, u)
	return err
}

// UpdateEmail requires the current password and clears verification.
func (s *Service) UpdateEmail(ctx context.Context, userID, email, password string) (model.User, error) {
	email = model.NormalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return model.User{}, validation.Errors{"email": err}
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	if u.Provider != model.ProviderPassword {
		return model.User{}, ErrPasswordProvider
	}
	if err := ComparePassword(password, u.PasswordHash); err != nil {
		return model.User{}, err
	}
	if u.Email == email {
		return u, nil
	}
	u.Email = email
	u.EmailVerified = false
	u, err = s.users.Save(ctx, u)
	if errors.Is(err, store.ErrEmailTaken) {
		return model.User{}, ErrAlreadyRegistered
	}
	return u, err
}

func (s *Service) UpdateName(ctx context.Context, userID, name string) (model.User, error) {
	name = strings.TrimSpace(name)
	if err := validation.Validate(name, validation.Required, validation.Length(1, 128)); err != nil {
		return model.User{}, validation.Errors{"name": err}
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	u.Name = name
	return s.users.Save(ctx, u)
}

func (s *Service) SendVerification(ctx context.Context, userID, verifyURL string) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.EmailVerified {
		return nil
	}
	token, err := s.tokens().mint(tokenClaims{
		Purpose:          purposeVerify,
		Email:            u.Email,
		RegisteredClaims: jwtSubject(u.ID),
	}, s.cfg.VerificationTTL)
	if err != nil {
		return err
	}
	link, err := withToken(verifyURL, token)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Hi %s,\n\nConfirm your email address:\n\n%s\n", displayName(u), link)
	return s.cfg.Outbox.Send(u.Email, "Verify your email", body, s.now())
}

// Verify marks the address in the token as verified if it is still the
// account's address.
func (s *Service) Verify(ctx context.Context, token string) (model.User, error) {
	claims, err := s.tokens().parse(token, purposeVerify)
	if err != nil {
		return model.User{}, err
	}
	u, err := s.users.Get(ctx, claims.Subject)
	if err != nil || u.Email != claims.Email {
		return model.User{}, ErrInvalidToken
	}
	if u.EmailVerified {
		return u, nil
	}
	u.EmailVerified = true
	return s.users.Save(ctx, u)
}

// GoogleAuthURL returns the consent URL. next is carried through the signed
// state and handed back by CompleteGoogle.
func (s *Service) GoogleAuthURL(next string) (string, error) {
	if !s.cfg.Google.Configured() {
		return "", ErrNotConfigured
	}
	state, err := s.tokens().mint(tokenClaims{
		Purpose:          purposeState,
		Next:             next,
		RegisteredClaims: jwtSubject("google"),
	}, 10*time.Minute)
	if err != nil {
		return "", err
	}
	return s.cfg.Google.oauth().AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// CompleteGoogle exchanges the callback code, finds or creates the account
// by email and signs it in.
func (s *Service) CompleteGoogle(ctx context.Context, code, state string) (model.User, string, string, error) {
	if !s.cfg.Google.Configured() {
		return model.User{}, "", "", ErrNotConfigured
	}
	st, err := s.tokens().parse(state, purposeState)
	if err != nil {
		return model.User{}, "", "", err
	}
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	oc := s.cfg.Google.oauth()
	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return model.User{}, "", "", fmt.Errorf("google exchange: %w", err)
	}
	profile, err := fetchGoogleProfile(ctx, oc, tok, s.cfg.Google.userInfoURL())
	if err != nil {
		return model.User{}, "", "", err
	}

	u, err := s.users.GetByEmail(ctx, profile.Email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		hash, herr := randomPasswordHash(s.cfg.BcryptCost)
		if herr != nil {
			return model.User{}, "", "", herr
		}
		u, err = s.users.Create(ctx, model.User{
			Name:          profile.Name,
			Email:         profile.Email,
			EmailVerified: profile.EmailVerified,
			Provider:      model.ProviderGoogle,
			PasswordHash:  hash,
		})
		if err != nil {
			return model.User{}, "", "", err
		}
		s.logger.Info("user registered", slog.String("user_id", u.ID), slog.String("provider", "google"))
	case err != nil:
		return model.User{}, "", "", err
	case profile.EmailVerified && !u.EmailVerified:
		u.EmailVerified = true
		if u, err = s.users.Save(ctx, u); err != nil {
			return model.User{}, "", "", err
		}
	}
	token, err := s.newSession(u)
	if err != nil {
		return model.User{}, "", "", err
	}
	return u, token, st.Next, nil
}

func displayName(u model.User) string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.Email
}

func withToken(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
