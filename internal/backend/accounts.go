package backend

import (
	"context"
	"net/http"
	"net/url"
	"path"

	"github.com/altss/altss/internal/listview"
)

// AccountsEndpoint lists dashboard users for administrators.
var AccountsEndpoint = ListEndpoint{
	Path:     "/users",
	Encoding: listview.Encoding{SearchKey: "search"},
}

// AccountPatch carries mutable account fields. Empty fields are left unchanged.
type AccountPatch struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// Registration is sent after a Supabase sign-up to create the backend account.
type Registration struct {
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
}

// Accounts returns a fetcher over users.
func (c *Client) Accounts() *ListFetcher[Account] {
	return NewListFetcher(c, AccountsEndpoint, func(v Account) string { return v.ID.String() })
}

// UpdateAccount patches name or role.
func (c *Client) UpdateAccount(ctx context.Context, id string, patch AccountPatch) (Account, error) {
	var out Account
	err := c.Do(ctx, http.MethodPatch, path.Join("/users", url.PathEscape(id)), nil, patch, &out)
	return out, err
}

// SetPlan changes the subscription plan of an account.
func (c *Client) SetPlan(ctx context.Context, id, plan string) (Account, error) {
	var out Account
	err := c.Do(ctx, http.MethodPatch, path.Join("/users", url.PathEscape(id), "plan"), nil, map[string]string{"plan": plan}, &out)
	return out, err
}

// SetStatus approves or blocks an account.
func (c *Client) SetStatus(ctx context.Context, id, status string) (Account, error) {
	var out Account
	err := c.Do(ctx, http.MethodPatch, path.Join("/users", url.PathEscape(id), "status"), nil, map[string]string{"status": status}, &out)
	return out, err
}

// Register creates the backend account for a freshly signed-up user.
func (c *Client) Register(ctx context.Context, in Registration) (Account, error) {
	var out Account
	err := c.Do(ctx, http.MethodPost, "/users/register", nil, in, &out)
	return out, err
}

// CurrentAccount resolves the account of the token carried by ctx.
func (c *Client) CurrentAccount(ctx context.Context) (Account, error) {
	var out Account
	err := c.Get(ctx, "/users/status", nil, &out)
	return out, err
}
