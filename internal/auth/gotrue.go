package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/altss/altss/internal/shared"
)

// GoTrueError is an error response from the Supabase auth API.
type GoTrueError struct {
	Status  int
	Code    string
	Message string
}

func (e *GoTrueError) Error() string {
	return fmt.Sprintf("gotrue: %d %s: %s", e.Status, e.Code, e.Message)
}

// SafeMessage returns the message reported by GoTrue, which is user facing.
func (e *GoTrueError) SafeMessage() string {
	if e.Message == "" {
		return "Authentication failed. Please try again."
	}
	return e.Message
}

// GoTrue talks to the Supabase auth REST API.
type GoTrue struct {
	baseURL string
	anonKey string
	client  *http.Client
}

// NewGoTrue builds a client for the project at projectURL.
func NewGoTrue(projectURL, anonKey string, timeout time.Duration) *GoTrue {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GoTrue{
		baseURL: strings.TrimRight(projectURL, "/") + "/auth/v1",
		anonKey: anonKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// SignInWithPassword exchanges email and password for tokens.
func (g *GoTrue) SignInWithPassword(ctx context.Context, email, password string) (Tokens, error) {
	var out Tokens
	err := g.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"password"}}, "",
		map[string]string{"email": email, "password": password}, &out)
	var gerr *GoTrueError
	if errors.As(err, &gerr) && (gerr.Status == http.StatusBadRequest || gerr.Status == http.StatusUnauthorized) {
		return Tokens{}, shared.ErrInvalidCredentials
	}
	return out, err
}

// SignUp registers a new identity. Tokens are empty when the project requires
// email confirmation.
func (g *GoTrue) SignUp(ctx context.Context, email, password, name, redirectTo string) (Tokens, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"full_name": name},
	}
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	raw := json.RawMessage{}
	if err := g.do(ctx, http.MethodPost, "/signup", query, "", body, &raw); err != nil {
		return Tokens{}, err
	}
	var out Tokens
	if err := json.Unmarshal(raw, &out); err != nil {
		return Tokens{}, err
	}
	if out.AccessToken == "" {
		// Confirmation pending: the body is the bare user.
		if err := json.Unmarshal(raw, &out.User); err != nil {
			return Tokens{}, err
		}
	}
	return out, nil
}

// Recover sends a password reset email. The link in the email carries a PKCE
// code bound to challenge.
func (g *GoTrue) Recover(ctx context.Context, email, redirectTo, challenge string) error {
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	body := map[string]string{"email": email}
	if challenge != "" {
		body["code_challenge"] = challenge
		body["code_challenge_method"] = "s256"
	}
	return g.do(ctx, http.MethodPost, "/recover", query, "", body, nil)
}

// UpdatePassword sets a new password for the token owner.
func (g *GoTrue) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return g.do(ctx, http.MethodPut, "/user", nil, accessToken, map[string]string{"password": password}, nil)
}

// Refresh exchanges a refresh token for new tokens.
func (g *GoTrue) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	var out Tokens
	err := g.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"refresh_token"}}, "",
		map[string]string{"refresh_token": refreshToken}, &out)
	return out, err
}

// ExchangeCode completes an OAuth PKCE flow.
func (g *GoTrue) ExchangeCode(ctx context.Context, code, verifier string) (Tokens, error) {
	var out Tokens
	err := g.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"pkce"}}, "",
		map[string]string{"auth_code": code, "code_verifier": verifier}, &out)
	return out, err
}

// SignOut revokes the refresh tokens of the session.
func (g *GoTrue) SignOut(ctx context.Context, accessToken string) error {
	return g.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil, nil)
}

// AuthorizeURL is where the browser starts an OAuth sign-in with provider.
func (g *GoTrue) AuthorizeURL(provider, redirectTo, challenge string) string {
	q := url.Values{
		"provider":              {provider},
		"redirect_to":           {redirectTo},
		"code_challenge":        {challenge},
		"code_challenge_method": {"s256"},
	}
	return g.baseURL + "/authorize?" + q.Encode()
}

func (g *GoTrue) do(ctx context.Context, method, endpoint string, query url.Values, bearer string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	target := g.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", g.anonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = g.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	res, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gotrue: %s %s: %w", method, endpoint, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		return decodeGoTrueError(res)
	}
	if dest == nil || res.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	return json.NewDecoder(res.Body).Decode(dest)
}

func decodeGoTrueError(res *http.Response) error {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
		Code             any    `json:"code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	_ = json.Unmarshal(raw, &payload)
	out := &GoTrueError{Status: res.StatusCode, Code: payload.ErrorCode}
	if out.Code == "" {
		out.Code = payload.Error
	}
	for _, msg := range []string{payload.ErrorDescription, payload.Msg, payload.Message} {
		if msg != "" {
			out.Message = msg
			break
		}
	}
	return out
}

// NewPKCE returns a code verifier and its S256 challenge.
func NewPKCE() (verifier, challenge string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	verifier = base64.RawURLEncoding.EncodeToString(buf)
	return verifier, pkceChallenge(verifier), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
