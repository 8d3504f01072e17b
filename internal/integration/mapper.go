package integration

import (
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/altss/altss/internal/backend"
)

var errAUM = errors.New("integration: invalid aum")

// CompanyForm is the raw form state, kept as strings so a rejected
// submission re-renders exactly what was typed.
type CompanyForm struct {
	Name        string
	FirmType    string
	Country     string
	City        string
	Website     string
	AUM         string
	Description string
}

// FormFromValues reads the posted form.
func FormFromValues(v url.Values) CompanyForm {
	get := func(k string) string { return strings.TrimSpace(v.Get(k)) }
	return CompanyForm{
		Name:        get("name"),
		FirmType:    get("firm_type"),
		Country:     get("country"),
		City:        get("city"),
		Website:     get("website"),
		AUM:         get("aum"),
		Description: get("description"),
	}
}

// FormFromCompany prepares the edit form.
func FormFromCompany(c backend.Company) CompanyForm {
	f := CompanyForm{
		Name:        c.Name,
		FirmType:    c.FirmType,
		Country:     c.Country,
		City:        c.City,
		Website:     c.Website,
		Description: c.Description,
	}
	if c.AUM > 0 {
		f.AUM = strconv.FormatFloat(c.AUM, 'f', -1, 64)
	}
	return f
}

// Company converts the form. Only AUM can fail to parse; everything else is
// left to struct validation.
func (f CompanyForm) Company() (backend.Company, error) {
	aum, err := ParseAUM(f.AUM)
	if err != nil {
		return backend.Company{}, err
	}
	return backend.Company{
		Name:        f.Name,
		FirmType:    strings.ToLower(strings.ReplaceAll(f.FirmType, " ", "_")),
		Country:     f.Country,
		City:        f.City,
		Website:     f.Website,
		AUM:         aum,
		Description: f.Description,
	}, nil
}

// ParseAUM accepts plain numbers and the abbreviated forms shown in lists,
// e.g. "$2.5B", "120M" or "1,500,000".
func ParseAUM(raw string) (float64, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "-" {
		return 0, nil
	}
	mult := 1.0
	switch s[len(s)-1] {
	case 'K':
		mult = 1e3
	case 'M':
		mult = 1e6
	case 'B':
		mult = 1e9
	case 'T':
		mult = 1e12
	}
	if mult != 1 {
		s = strings.TrimSpace(s[:len(s)-1])
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, errAUM
	}
	return math.Round(v*mult*100) / 100, nil
}
