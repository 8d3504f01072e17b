package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"

	"github.com/altss/altss/internal/listview"
)

// Collection endpoints and their query conventions.
var (
	CompaniesEndpoint = ListEndpoint{
		Path:     "/companies",
		Encoding: listview.Encoding{SearchKey: "name", Aliases: map[string]string{"firm_type": "firm_types"}},
	}
	FamilyOfficesEndpoint = ListEndpoint{
		Path:     "/family-offices",
		Encoding: listview.Encoding{SearchKey: "firm_name", Aliases: map[string]string{"firm_type": "firm_types"}},
	}
	ContactsEndpoint = ListEndpoint{
		Path:     "/contacts",
		Encoding: listview.Encoding{SearchKey: "search"},
	}
	// LegacyContactsEndpoint is the older POST based contact search.
	LegacyContactsEndpoint = ListEndpoint{
		Path:     "/contacts_0",
		Method:   http.MethodPost,
		Encoding: listview.Encoding{SearchKey: "search"},
	}
	FamilyOfficeContactsEndpoint = ListEndpoint{
		Path:     "/family-offices-contacts",
		Encoding: listview.Encoding{SearchKey: "name", Aliases: map[string]string{"firm_type": "firm_types"}},
	}
	PersonsEndpoint = ListEndpoint{
		Path:     "/persons",
		Encoding: listview.Encoding{SearchKey: "investor"},
	}
)

// Companies returns a fetcher over the company directory.
func (c *Client) Companies() *ListFetcher[Company] {
	return NewListFetcher(c, CompaniesEndpoint, func(v Company) string { return v.ID.String() })
}

// FamilyOffices returns a fetcher over family offices.
func (c *Client) FamilyOffices() *ListFetcher[FamilyOffice] {
	return NewListFetcher(c, FamilyOfficesEndpoint, func(v FamilyOffice) string { return v.ID.String() })
}

// Contacts returns a fetcher over contacts. legacy selects the POST search.
func (c *Client) Contacts(legacy bool) *ListFetcher[Contact] {
	endpoint := ContactsEndpoint
	if legacy {
		endpoint = LegacyContactsEndpoint
	}
	return NewListFetcher(c, endpoint, func(v Contact) string { return v.ID.String() })
}

// FamilyOfficeContacts returns a fetcher over contacts attached to family offices.
func (c *Client) FamilyOfficeContacts() *ListFetcher[Contact] {
	return NewListFetcher(c, FamilyOfficeContactsEndpoint, func(v Contact) string { return v.ID.String() })
}

// Persons returns a fetcher over individual investors.
func (c *Client) Persons() *ListFetcher[Person] {
	return NewListFetcher(c, PersonsEndpoint, func(v Person) string { return v.ID.String() })
}

// Company loads one company.
func (c *Client) Company(ctx context.Context, id string) (Company, error) {
	var out Company
	err := c.Get(ctx, path.Join("/companies", url.PathEscape(id)), nil, &out)
	return out, err
}

// CreateCompany inserts a company.
func (c *Client) CreateCompany(ctx context.Context, in Company) (Company, error) {
	var out Company
	err := c.Do(ctx, http.MethodPost, "/companies", nil, in, &out)
	return out, err
}

// UpdateCompany patches a company.
func (c *Client) UpdateCompany(ctx context.Context, id string, in Company) (Company, error) {
	var out Company
	err := c.Do(ctx, http.MethodPatch, path.Join("/companies", url.PathEscape(id)), nil, in, &out)
	return out, err
}

// DeleteCompany removes a company.
func (c *Client) DeleteCompany(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodDelete, path.Join("/companies", url.PathEscape(id)), nil, nil, nil)
}

// CompanyNames lists every company name for pickers.
func (c *Client) CompanyNames(ctx context.Context) ([]CompanyName, error) {
	var out page[CompanyName]
	if err := c.Get(ctx, "/companies/list", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// FamilyOffice loads one family office.
func (c *Client) FamilyOffice(ctx context.Context, id string) (FamilyOffice, error) {
	var out FamilyOffice
	err := c.Get(ctx, path.Join("/family-offices", url.PathEscape(id)), nil, &out)
	return out, err
}

// FamilyOfficeTeam lists the team of a family office.
func (c *Client) FamilyOfficeTeam(ctx context.Context, id string) ([]TeamMember, error) {
	var out page[TeamMember]
	if err := c.Get(ctx, path.Join("/family-offices", url.PathEscape(id), "team"), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// FamilyOfficeFocus loads the investment focus of a family office.
func (c *Client) FamilyOfficeFocus(ctx context.Context, id string) (InvestmentFocus, error) {
	var out InvestmentFocus
	err := c.Get(ctx, path.Join("/family-offices", url.PathEscape(id), "investment-focus"), nil, &out)
	return out, err
}

// FamilyOfficeDeals lists past deals of a family office.
func (c *Client) FamilyOfficeDeals(ctx context.Context, id string) ([]Deal, error) {
	var out page[Deal]
	if err := c.Get(ctx, path.Join("/family-offices", url.PathEscape(id), "deals"), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Contact loads one contact.
func (c *Client) Contact(ctx context.Context, id string) (Contact, error) {
	var out Contact
	err := c.Get(ctx, path.Join("/contacts", url.PathEscape(id)), nil, &out)
	return out, err
}

// ContactsCount returns the total number of contacts in the directory.
func (c *Client) ContactsCount(ctx context.Context) (int, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, "/contacts_count", nil, &raw); err != nil {
		return 0, err
	}
	return decodeCount(raw)
}

func decodeCount(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] != '{' {
		var n int
		err := json.Unmarshal(raw, &n)
		return n, err
	}
	var envelope struct {
		Count *int `json:"count"`
		Total *int `json:"total"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return 0, err
	}
	if envelope.Count != nil {
		return *envelope.Count, nil
	}
	if envelope.Total != nil {
		return *envelope.Total, nil
	}
	return 0, nil
}
