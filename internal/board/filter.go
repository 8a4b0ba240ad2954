package board

import (
	"strings"

	"github.com/alfredjeanlab/dealboard/internal/model"
)

// FilterDeals returns the deals whose name, contact, email or industry contain
// query (case-insensitive). An empty query returns deals unchanged. The
// returned slice shares deal pointers with the input; nothing is mutated.
func FilterDeals(deals []*model.Deal, query string) []*model.Deal {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return deals
	}
	out := make([]*model.Deal, 0, len(deals))
	for _, d := range deals {
		if d != nil && Matches(d, q) {
			out = append(out, d)
		}
	}
	return out
}

// Matches reports whether a deal matches an already lower-cased query.
func Matches(d *model.Deal, q string) bool {
	for _, field := range []string{d.Name, d.Contact, d.Email, d.Industry} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
