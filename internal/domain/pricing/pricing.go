// Package pricing derives cart totals. Every function is pure and is
// recomputed on each read.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/metagear/storefront/internal/domain/cart"
)

// Policy holds the shipping and tax parameters.
type Policy struct {
	// FreeShippingThreshold is the subtotal above which shipping is free.
	FreeShippingThreshold decimal.Decimal
	// FlatShippingFee applies when the subtotal is at or below the threshold.
	FlatShippingFee decimal.Decimal
	// TaxRate is the fraction of the subtotal charged as tax.
	TaxRate decimal.Decimal
}

// DefaultPolicy returns the storefront's standard policy: free shipping above
// 50000, otherwise a 250 flat fee, and 12% tax.
func DefaultPolicy() Policy {
	return Policy{
		FreeShippingThreshold: decimal.NewFromInt(50000),
		FlatShippingFee:       decimal.NewFromInt(250),
		TaxRate:               decimal.RequireFromString("0.12"),
	}
}

// Validate rejects negative policy values.
func (p Policy) Validate() error {
	switch {
	case p.FreeShippingThreshold.IsNegative():
		return errors.New("free shipping threshold must not be negative")
	case p.FlatShippingFee.IsNegative():
		return errors.New("flat shipping fee must not be negative")
	case p.TaxRate.IsNegative():
		return errors.New("tax rate must not be negative")
	}
	return nil
}

// Summary is the derived view of a cart's cost.
type Summary struct {
	Units       int
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
}

// Summarize computes subtotal, shipping, tax and total for the given lines.
// Shipping is the flat fee while the subtotal is at or below the threshold.
// An empty cart ships nothing, so its summary is all zero, fee included.
func (p Policy) Summarize(lines []cart.Line) Summary {
	if len(lines) == 0 {
		return Summary{
			Subtotal:    decimal.Zero,
			ShippingFee: decimal.Zero,
			Tax:         decimal.Zero,
			Total:       decimal.Zero,
		}
	}

	units := 0
	subtotal := decimal.Zero
	for _, l := range lines {
		units += l.Quantity
		subtotal = subtotal.Add(l.Total())
	}

	shipping := p.FlatShippingFee
	if subtotal.GreaterThan(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := subtotal.Mul(p.TaxRate).Round(2)

	return Summary{
		Units:       units,
		Subtotal:    subtotal,
		ShippingFee: shipping,
		Tax:         tax,
		Total:       subtotal.Add(shipping).Add(tax),
	}
}
