package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func testCatalog() []Product {
	return []Product{
		{ID: "101", Name: "Razer Mouse Pro", Description: "Wireless gaming mouse", Category: "Mouse", Price: decimal.NewFromInt(4500)},
		{ID: "102", Name: "ASUS GPU Pro", Description: "High-performance graphics", Category: "GPU", Price: decimal.NewFromInt(52000)},
		{ID: "203", Name: "Corsair Keyboard", Description: "Mechanical, wireless", Category: "Keyboard", Price: decimal.NewFromInt(7000)},
		{ID: "204", Name: "Logitech Headset", Category: "Headset", Price: decimal.RequireFromString("3999.50")},
	}
}

func ids(products []Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{name: "empty query keeps everything", query: Query{}, want: []string{"101", "102", "203", "204"}},
		{name: "name match ignores case", query: Query{Search: "gpu"}, want: []string{"102"}},
		{name: "description match", query: Query{Search: "WIRELESS"}, want: []string{"101", "203"}},
		{name: "category only", query: Query{Category: "keyboard"}, want: []string{"203"}},
		{name: "category and search", query: Query{Search: "wireless", Category: "Mouse"}, want: []string{"101"}},
		{name: "no match", query: Query{Search: "monitor"}, want: []string{}},
		{name: "whitespace search ignored", query: Query{Search: "   "}, want: []string{"101", "102", "203", "204"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Filter(testCatalog(), tt.query)))
		})
	}
}

func TestSearch(t *testing.T) {
	assert.Equal(t, []string{"203", "204"}, ids(Search(testCatalog(), "20")))
	assert.Equal(t, []string{"101"}, ids(Search(testCatalog(), "razer")))
	assert.Len(t, Search(testCatalog(), ""), 4)
}

func TestSummarize(t *testing.T) {
	stats := Summarize(testCatalog())
	assert.Equal(t, 4, stats.Count)
	assert.True(t, decimal.RequireFromString("67499.50").Equal(stats.Value), "got %s", stats.Value)

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.Count)
	assert.True(t, empty.Value.IsZero())
}
