// Package pricing applies order-level discounts to a cart subtotal.
package pricing

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

// Discount describes a discount requested at checkout. It is never persisted;
// only its effect on the order total is.
type Discount struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// Result is the outcome of applying a discount to a cart total.
type Result struct {
	NewTotal       float64
	DiscountAmount float64
}

// Apply returns the cart total after the discount. An unknown discount type
// applies no discount. The result is not floored at zero, so a fixed discount
// above the cart total or a percentage above 100 yields a negative total.
func Apply(cartTotal float64, d Discount) Result {
	var amount float64

	switch d.Type {
	case DiscountPercentage:
		amount = cartTotal * (d.Value / 100)
	case DiscountFixed:
		amount = d.Value
	}

	return Result{
		NewTotal:       cartTotal - amount,
		DiscountAmount: amount,
	}
}
