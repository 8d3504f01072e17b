package backend

import (
	"context"
	"net/http"
	"net/url"
)

// Enrichment channels.
const (
	ChannelWorkEmail     = "work_email"
	ChannelWorkPhone     = "work_phone"
	ChannelPersonalEmail = "personal_email"
	ChannelPersonalPhone = "personal_phone"
)

// Enrich resolves work channels of a contact. A quota violation is returned
// as *LimitError.
func (c *Client) Enrich(ctx context.Context, contactID string, channels []string) (EnrichResult, error) {
	if len(channels) == 0 {
		channels = []string{ChannelWorkEmail, ChannelWorkPhone}
	}
	body := map[string]any{"contact_id": contactID, "enrich_fields": channels}
	var out EnrichResult
	if err := c.Do(ctx, http.MethodPost, "/fullenrich/enrich", nil, body, &out); err != nil {
		return EnrichResult{}, err
	}
	if out.ContactID == "" {
		out.ContactID = ID(contactID)
	}
	return out, nil
}

// PersonalContacts resolves personal email and phone of a contact.
func (c *Client) PersonalContacts(ctx context.Context, contactID string) (EnrichResult, error) {
	var out EnrichResult
	if err := c.Get(ctx, "/forager/personal-contacts", url.Values{"contact_id": {contactID}}, &out); err != nil {
		return EnrichResult{}, err
	}
	if out.ContactID == "" {
		out.ContactID = ID(contactID)
	}
	return out, nil
}
