package auth

import (
	"context"
	"time"

	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/view"
)

// Identity is the Supabase user behind a session.
type Identity struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata"`
}

// Name returns the display name from user metadata.
func (i Identity) Name() string {
	for _, key := range []string{"full_name", "name"} {
		if v, ok := i.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Tokens is a GoTrue token response.
type Tokens struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	User         Identity `json:"user"`
}

// Login is the outcome of a successful sign-in.
type Login struct {
	Tokens  Tokens
	Claims  *Claims
	Account backend.Account
}

// Principal is the signed-in user attached to request contexts.
type Principal struct {
	UserID  string
	Email   string
	Role    string
	Status  string
	Plan    string
	Token   string
	Checked time.Time
}

// Approved reports whether the principal may use the directory.
func (p Principal) Approved() bool {
	return p.Status == backend.StatusApproved && !p.limited()
}

func (p Principal) limited() bool {
	return p.Status == backend.StatusBlocked || p.Plan == backend.PlanExpired
}

// Screens users are sent to.
const (
	PathAuth            = "/auth"
	PathWaitingApproval = "/waiting-approval"
	PathAccessLimited   = "/access-limited"
	PathHome            = "/familyoffices"
)

// Destination picks the screen for an account state.
func Destination(acc backend.Account) string {
	switch {
	case acc.Limited():
		return PathAccessLimited
	case !acc.Approved():
		return PathWaitingApproval
	}
	return PathHome
}

type principalKey struct{}

// ContextWithPrincipal stores p in ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored in ctx.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ViewUser returns the navigation user for the principal in ctx, if any.
func ViewUser(ctx context.Context) *view.UserInfo {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil
	}
	return &view.UserInfo{Email: p.Email, Role: p.Role}
}
