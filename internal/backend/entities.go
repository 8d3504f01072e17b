package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ID is a record identifier. The backend emits both numeric and string ids.
type ID string

// UnmarshalJSON accepts numbers and strings.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Int64 parses a numeric id.
func (id ID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

// Company is a directory company and the record edited by the integration tool.
type Company struct {
	ID          ID        `json:"id"`
	Name        string    `json:"name" validate:"required,max=200"`
	FirmType    string    `json:"firm_type" validate:"required"`
	Country     string    `json:"country" validate:"omitempty,max=80"`
	City        string    `json:"city" validate:"omitempty,max=80"`
	Website     string    `json:"website" validate:"omitempty,url"`
	AUM         float64   `json:"aum" validate:"gte=0"`
	Description string    `json:"description" validate:"omitempty,max=4000"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	Favorite    bool      `json:"-"`
}

// CompanyName is one entry of the lightweight company name list.
type CompanyName struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// FamilyOffice is a private wealth-management entity.
type FamilyOffice struct {
	ID              ID      `json:"id"`
	FirmName        string  `json:"firm_name"`
	FirmType        string  `json:"firm_type"`
	Country         string  `json:"country"`
	City            string  `json:"city"`
	Website         string  `json:"website"`
	AUM             float64 `json:"aum"`
	Founded         int     `json:"founded"`
	Description     string  `json:"description"`
	InvestmentStage string  `json:"investment_stage"`
	Favorite        bool    `json:"-"`
}

// TeamMember belongs to a family office.
type TeamMember struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Email    string `json:"email"`
	LinkedIn string `json:"linkedin"`
}

// InvestmentFocus describes what a family office invests in.
type InvestmentFocus struct {
	Sectors   []string `json:"sectors"`
	Regions   []string `json:"regions"`
	Stages    []string `json:"stages"`
	TicketMin float64  `json:"ticket_min"`
	TicketMax float64  `json:"ticket_max"`
}

// Deal is a past investment of a family office.
type Deal struct {
	ID      ID      `json:"id"`
	Company string  `json:"company"`
	Round   string  `json:"round"`
	Amount  float64 `json:"amount"`
	Date    string  `json:"date"`
}

// Contact is a person reachable at an investor firm.
type Contact struct {
	ID            ID     `json:"id"`
	Name          string `json:"name"`
	Title         string `json:"title"`
	FirmName      string `json:"firm_name"`
	FirmType      string `json:"firm_type"`
	Country       string `json:"country"`
	LinkedIn      string `json:"linkedin"`
	WorkEmail     string `json:"work_email"`
	PersonalEmail string `json:"personal_email"`
	WorkPhone     string `json:"work_phone"`
	PersonalPhone string `json:"personal_phone"`
	Favorite      bool   `json:"-"`
}

// Enriched reports whether any contact channel has been resolved.
func (c Contact) Enriched() bool {
	return c.WorkEmail != "" || c.PersonalEmail != "" || c.WorkPhone != "" || c.PersonalPhone != ""
}

// Person is an individual investor.
type Person struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Country  string `json:"country"`
	Investor string `json:"investor"`
	Favorite bool   `json:"-"`
}

// Account statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusBlocked  = "blocked"
)

// Plans.
const (
	PlanTrial   = "trial"
	PlanPro     = "pro"
	PlanExpired = "expired"
)

// Account is a dashboard user as stored by the backend.
type Account struct {
	ID        ID        `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Plan      string    `json:"plan"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Approved reports whether the account may use the dashboard.
func (a Account) Approved() bool { return a.Status == StatusApproved }

// Limited reports whether access is blocked by status or plan.
func (a Account) Limited() bool { return a.Status == StatusBlocked || a.Plan == PlanExpired }

// FavoriteKind names the entity type a favorite points at.
type FavoriteKind string

const (
	KindCompany      FavoriteKind = "company"
	KindFamilyOffice FavoriteKind = "family_office"
	KindContact      FavoriteKind = "contact"
	KindPerson       FavoriteKind = "person"
)

// Valid reports whether k is a known kind.
func (k FavoriteKind) Valid() bool {
	switch k {
	case KindCompany, KindFamilyOffice, KindContact, KindPerson:
		return true
	}
	return false
}

// Favorite is one favorited record of the signed-in user.
type Favorite struct {
	Kind      FavoriteKind `json:"kind"`
	EntityID  ID           `json:"entity_id"`
	Label     string       `json:"label"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// EnrichResult carries contact channels resolved by enrichment.
type EnrichResult struct {
	ContactID     ID     `json:"contact_id"`
	WorkEmail     string `json:"work_email"`
	PersonalEmail string `json:"personal_email"`
	WorkPhone     string `json:"work_phone"`
	PersonalPhone string `json:"personal_phone"`
}
