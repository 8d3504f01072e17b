package directory

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// FirmTypes are the firm type facet values accepted by the backend.
var FirmTypes = []string{
	"single_family_office",
	"multi_family_office",
	"private_equity",
	"venture_capital",
	"hedge_fund",
	"pension_fund",
	"endowment",
	"foundation",
	"sovereign_wealth_fund",
	"fund_of_funds",
	"insurance_company",
	"bank",
	"corporate_investor",
	"asset_manager",
	"wealth_manager",
}

// FacetOption is one selectable facet value.
type FacetOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// RankFacets returns the options whose label fuzzily matches q, best match
// first. An empty q returns every option in its declared order.
func RankFacets(q string, values []string, label func(string) string) []FacetOption {
	q = strings.TrimSpace(q)
	labels := make([]string, len(values))
	for i, v := range values {
		labels[i] = label(v)
	}
	if q == "" {
		out := make([]FacetOption, len(values))
		for i, v := range values {
			out[i] = FacetOption{Value: v, Label: labels[i]}
		}
		return out
	}
	ranks := fuzzy.RankFindNormalizedFold(q, labels)
	sort.Sort(ranks)
	out := make([]FacetOption, 0, len(ranks))
	for _, rank := range ranks {
		out = append(out, FacetOption{Value: values[rank.OriginalIndex], Label: labels[rank.OriginalIndex]})
	}
	return out
}
