package backend

import (
	"context"
	"net/http"
	"net/url"
	"path"
)

// Favorites lists favorites of the user carried by ctx.
func (c *Client) Favorites(ctx context.Context) ([]Favorite, error) {
	var out page[Favorite]
	if err := c.Get(ctx, "/favorites", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// AddFavorite marks a record as favorite.
func (c *Client) AddFavorite(ctx context.Context, kind FavoriteKind, id string) error {
	body := map[string]string{"kind": string(kind), "entity_id": id}
	return c.Do(ctx, http.MethodPost, "/favorites", nil, body, nil)
}

// RemoveFavorite unmarks a record.
func (c *Client) RemoveFavorite(ctx context.Context, kind FavoriteKind, id string) error {
	return c.Do(ctx, http.MethodDelete, path.Join("/favorites", string(kind), url.PathEscape(id)), nil, nil, nil)
}
