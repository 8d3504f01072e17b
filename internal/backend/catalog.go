package backend

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/altss/altss/internal/listview"
)

// FamilyOfficeProfile bundles every tab of a family office profile.
type FamilyOfficeProfile struct {
	Office FamilyOffice    `json:"office"`
	Team   []TeamMember    `json:"team"`
	Focus  InvestmentFocus `json:"focus"`
	Deals  []Deal          `json:"deals"`
}

// Catalog layers caching and request collapsing over Client for data that
// is read far more often than it changes.
type Catalog struct {
	client *Client
	cache  *Cache
	group  singleflight.Group
}

// NewCatalog constructs a Catalog.
func NewCatalog(client *Client, cache *Cache) *Catalog {
	return &Catalog{client: client, cache: cache}
}

// Client exposes the underlying client.
func (c *Catalog) Client() *Client { return c.client }

// Cache exposes the underlying cache.
func (c *Catalog) Cache() *Cache { return c.cache }

// ContactsCount returns the cached directory contact total.
func (c *Catalog) ContactsCount(ctx context.Context) (int, error) {
	key, err := c.cache.BuildKey(ctx, "directory", "contacts_count")
	if err != nil {
		return 0, err
	}
	var count int
	err = c.cache.FetchJSON(ctx, key, &count, func(ctx context.Context) (any, error) {
		return c.client.ContactsCount(ctx)
	})
	return count, err
}

// FamilyOfficesCount returns the cached number of family offices.
func (c *Catalog) FamilyOfficesCount(ctx context.Context) (int, error) {
	key, err := c.cache.BuildKey(ctx, "directory", "family_offices_count")
	if err != nil {
		return 0, err
	}
	var count int
	err = c.cache.FetchJSON(ctx, key, &count, func(ctx context.Context) (any, error) {
		res, err := c.client.FamilyOffices().Fetch(ctx, listview.Query{Page: 1, PerPage: 1})
		if err != nil {
			return nil, err
		}
		return res.Total, nil
	})
	return count, err
}

// Company loads one company.
func (c *Catalog) Company(ctx context.Context, id string) (Company, error) {
	return c.client.Company(ctx, id)
}

// Contact loads one contact.
func (c *Catalog) Contact(ctx context.Context, id string) (Contact, error) {
	return c.client.Contact(ctx, id)
}

// CompanyNames returns the cached company name list.
func (c *Catalog) CompanyNames(ctx context.Context) ([]CompanyName, error) {
	key, err := c.cache.BuildKey(ctx, "directory", "company_names")
	if err != nil {
		return nil, err
	}
	var names []CompanyName
	err = c.cache.FetchJSON(ctx, key, &names, func(ctx context.Context) (any, error) {
		return c.client.CompanyNames(ctx)
	})
	return names, err
}

// FamilyOfficeProfile loads the office and its tabs in parallel. Concurrent
// loads of the same office share one set of upstream requests.
func (c *Catalog) FamilyOfficeProfile(ctx context.Context, id string) (FamilyOfficeProfile, error) {
	v, err, _ := c.group.Do("family_office:"+id, func() (any, error) {
		return c.loadProfile(ctx, id)
	})
	if err != nil {
		return FamilyOfficeProfile{}, err
	}
	return v.(FamilyOfficeProfile), nil
}

func (c *Catalog) loadProfile(ctx context.Context, id string) (FamilyOfficeProfile, error) {
	var profile FamilyOfficeProfile
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		office, err := c.client.FamilyOffice(gctx, id)
		if err != nil {
			return fmt.Errorf("family office %s: %w", id, err)
		}
		profile.Office = office
		return nil
	})
	g.Go(func() error {
		team, err := c.client.FamilyOfficeTeam(gctx, id)
		if err != nil {
			return fmt.Errorf("family office %s team: %w", id, err)
		}
		profile.Team = team
		return nil
	})
	g.Go(func() error {
		focus, err := c.client.FamilyOfficeFocus(gctx, id)
		if err != nil {
			return fmt.Errorf("family office %s focus: %w", id, err)
		}
		profile.Focus = focus
		return nil
	})
	g.Go(func() error {
		deals, err := c.client.FamilyOfficeDeals(gctx, id)
		if err != nil {
			return fmt.Errorf("family office %s deals: %w", id, err)
		}
		profile.Deals = deals
		return nil
	})
	if err := g.Wait(); err != nil {
		return FamilyOfficeProfile{}, err
	}
	return profile, nil
}
