package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/shared"
)

// IdentityProvider is the subset of GoTrue used by the service.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (Tokens, error)
	SignUp(ctx context.Context, email, password, name, redirectTo string) (Tokens, error)
	Recover(ctx context.Context, email, redirectTo, challenge string) error
	UpdatePassword(ctx context.Context, accessToken, password string) error
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
	ExchangeCode(ctx context.Context, code, verifier string) (Tokens, error)
	SignOut(ctx context.Context, accessToken string) error
	AuthorizeURL(provider, redirectTo, challenge string) string
}

// AccountStore resolves and creates backend accounts.
type AccountStore interface {
	CurrentAccount(ctx context.Context) (backend.Account, error)
	Register(ctx context.Context, in backend.Registration) (backend.Account, error)
}

// Auditor records sign-in activity.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ErrConfirmationPending is returned by SignUp when the email must be
// confirmed before a session exists.
var ErrConfirmationPending = errors.New("auth: email confirmation pending")

// Service wraps authentication business rules.
type Service struct {
	idp      IdentityProvider
	accounts AccountStore
	tokens   *TokenValidator
	audit    Auditor
	logger   *slog.Logger
}

// NewService constructs a new Service. audit may be nil.
func NewService(idp IdentityProvider, accounts AccountStore, tokens *TokenValidator, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{idp: idp, accounts: accounts, tokens: tokens, audit: audit, logger: logger}
}

// SignIn authenticates email/password credentials.
func (s *Service) SignIn(ctx context.Context, email, password string) (Login, error) {
	tokens, err := s.idp.SignInWithPassword(ctx, email, password)
	if err != nil {
		return Login{}, err
	}
	return s.complete(ctx, tokens, "")
}

// SignUp creates the identity and its backend account.
func (s *Service) SignUp(ctx context.Context, name, email, password, redirectTo string) (Login, error) {
	tokens, err := s.idp.SignUp(ctx, email, password, name, redirectTo)
	if err != nil {
		return Login{}, err
	}
	if tokens.AccessToken == "" {
		return Login{Tokens: tokens}, ErrConfirmationPending
	}
	return s.complete(ctx, tokens, name)
}

// Callback completes an OAuth sign-in.
func (s *Service) Callback(ctx context.Context, code, verifier string) (Login, error) {
	if code == "" || verifier == "" {
		return Login{}, ErrMissingToken
	}
	tokens, err := s.idp.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return Login{}, err
	}
	return s.complete(ctx, tokens, tokens.User.Name())
}

// AuthorizeURL starts an OAuth flow. The verifier must be kept in the session.
func (s *Service) AuthorizeURL(provider, redirectTo string) (authorizeURL, verifier string, err error) {
	verifier, challenge, err := NewPKCE()
	if err != nil {
		return "", "", err
	}
	return s.idp.AuthorizeURL(provider, redirectTo, challenge), verifier, nil
}

// Refresh renews an expired session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Login, error) {
	if refreshToken == "" {
		return Login{}, ErrMissingToken
	}
	tokens, err := s.idp.Refresh(ctx, refreshToken)
	if err != nil {
		return Login{}, err
	}
	return s.complete(ctx, tokens, "")
}

// Recover sends the password reset email and returns the PKCE verifier that
// completes the emailed link. Unknown emails are not reported.
func (s *Service) Recover(ctx context.Context, email, redirectTo string) (string, error) {
	verifier, challenge, err := NewPKCE()
	if err != nil {
		return "", err
	}
	err = s.idp.Recover(ctx, email, redirectTo, challenge)
	var gerr *GoTrueError
	if errors.As(err, &gerr) && gerr.Status == 404 {
		return verifier, nil
	}
	return verifier, err
}

// ResetPassword sets a new password using the recovery access token.
func (s *Service) ResetPassword(ctx context.Context, accessToken, password string) error {
	if _, err := s.tokens.Validate(accessToken); err != nil {
		return err
	}
	return s.idp.UpdatePassword(ctx, accessToken, password)
}

// SignOut revokes the session upstream. Failures are logged only.
func (s *Service) SignOut(ctx context.Context, accessToken string) {
	if accessToken == "" {
		return
	}
	if err := s.idp.SignOut(ctx, accessToken); err != nil {
		s.logger.Warn("gotrue sign out", slog.Any("error", err))
	}
}

// Validate verifies an access token.
func (s *Service) Validate(token string) (*Claims, error) {
	return s.tokens.Validate(token)
}

// Account loads the backend account for token.
func (s *Service) Account(ctx context.Context, token string) (backend.Account, error) {
	return s.accounts.CurrentAccount(backend.ContextWithToken(ctx, token))
}

func (s *Service) complete(ctx context.Context, tokens Tokens, name string) (Login, error) {
	claims, err := s.tokens.Validate(tokens.AccessToken)
	if err != nil {
		return Login{}, err
	}
	userCtx := backend.ContextWithToken(ctx, tokens.AccessToken)
	acc, err := s.accounts.CurrentAccount(userCtx)
	if errors.Is(err, backend.ErrNotFound) {
		acc, err = s.accounts.Register(userCtx, backend.Registration{ExternalID: claims.Subject, Email: claims.Email, Name: name})
	}
	if err != nil {
		return Login{}, fmt.Errorf("load account: %w", err)
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{ActorID: claims.Subject, Action: "auth.sign_in", Entity: "account", EntityID: acc.ID.String()}); err != nil {
			s.logger.Warn("audit sign in", slog.Any("error", err))
		}
	}
	return Login{Tokens: tokens, Claims: claims, Account: acc}, nil
}
