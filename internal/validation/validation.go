package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kisan-choice-api/internal/models"
)

// Farmer-settable order statuses.
var farmerOrderStatuses = map[string]bool{
	models.OrderProcessing:        true,
	models.OrderShipped:           true,
	models.OrderDelivered:         true,
	models.OrderCancelledByFarmer: true,
}

const (
	maxReasonLength  = 500
	maxAddressLength = 1000
	maxQuantity      = 1_000_000
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateSubmitOffer checks the shape of an offer before any store lookups.
func ValidateSubmitOffer(req models.SubmitOfferRequest) error {
	if err := ValidateID(req.ProductID, "productId"); err != nil {
		return err
	}

	if !req.OfferedPricePerUnit.GreaterThan(decimal.Zero) || req.Quantity <= 0 {
		return &ValidationError{
			Field:   "offeredPricePerUnit",
			Message: "Price and quantity must be positive values.",
		}
	}

	if req.OfferedPricePerUnit.Exponent() < -2 {
		return &ValidationError{
			Field:   "offeredPricePerUnit",
			Message: "must have at most 2 decimal places",
		}
	}

	if req.Quantity > maxQuantity {
		return &ValidationError{
			Field:   "quantity",
			Message: "exceeds maximum allowed quantity",
		}
	}

	return nil
}

func ValidateReason(reason string) error {
	if len(reason) > maxReasonLength {
		return &ValidationError{
			Field:   "reason",
			Message: fmt.Sprintf("cannot exceed %d characters", maxReasonLength),
		}
	}
	return nil
}

// ValidateQuantity checks a standard cart line quantity.
func ValidateQuantity(qty int) error {
	if qty <= 0 {
		return &ValidationError{
			Field:   "quantity",
			Message: "Quantity must be a positive number.",
		}
	}
	if qty > maxQuantity {
		return &ValidationError{
			Field:   "quantity",
			Message: "exceeds maximum allowed quantity",
		}
	}
	return nil
}

func ValidateDeliveryAddress(address string) error {
	if strings.TrimSpace(address) == "" {
		return &ValidationError{
			Field:   "delivery_address",
			Message: "Delivery address is required.",
		}
	}
	if len(address) > maxAddressLength {
		return &ValidationError{
			Field:   "delivery_address",
			Message: fmt.Sprintf("cannot exceed %d characters", maxAddressLength),
		}
	}
	return nil
}

func ValidateFarmerOrderStatus(status string) error {
	if !farmerOrderStatuses[status] {
		return &ValidationError{
			Field:   "new_status",
			Message: "Invalid or missing new_status.",
		}
	}
	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// ValidateID requires a well-formed UUID in any version.
func ValidateID(id, fieldName string) error {
	id = SanitizeString(id)
	if id == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	if _, err := uuid.Parse(id); err != nil {
		return &ValidationError{
			Field:   fieldName,
			Message: "must be a valid UUID",
		}
	}

	return nil
}
