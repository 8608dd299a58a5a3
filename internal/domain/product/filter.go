package product

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Query narrows a product list. Zero fields match everything.
type Query struct {
	// Search matches a case-insensitive substring of the name or description.
	Search string
	// Category matches the category exactly, ignoring case.
	Category string
}

// Filter returns the products matching q, preserving input order.
func Filter(products []Product, q Query) []Product {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	category := strings.TrimSpace(q.Category)

	out := make([]Product, 0, len(products))
	for _, p := range products {
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Search matches inventory by name (case-insensitive) or by id substring.
func Search(products []Product, term string) []Product {
	term = strings.TrimSpace(term)
	if term == "" {
		return products
	}
	lower := strings.ToLower(term)

	out := make([]Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), lower) || strings.Contains(p.ID, term) {
			out = append(out, p)
		}
	}
	return out
}

// Stats summarizes an inventory listing.
type Stats struct {
	Count int
	Value decimal.Decimal
}

// Summarize counts products and sums their unit prices.
func Summarize(products []Product) Stats {
	value := decimal.Zero
	for _, p := range products {
		value = value.Add(p.Price)
	}
	return Stats{Count: len(products), Value: value}
}
