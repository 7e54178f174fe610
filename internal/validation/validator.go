package validation

import (
	"fmt"
	"math"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation
// registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// The discount may not exceed what the order is worth; accepting more
	// would persist a negative total.
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

// createOrderStructValidation rejects discounts larger than subtotal plus tax
// (compared in cents to avoid float noise).
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	var subtotal float64
	for _, it := range req.Items {
		subtotal += float64(it.Quantity) * it.UnitPrice
	}
	gross := subtotal * 1.10

	grossCents := int(math.Round(gross * 100))
	discountCents := int(math.Round(req.DiscountAmount * 100))
	if discountCents > grossCents {
		sl.ReportError(req.DiscountAmount, "discount_amount", "DiscountAmount", "discount_exceeds_total",
			fmt.Sprintf("discount %.2f > order total %.2f", req.DiscountAmount, gross))
	}
}
