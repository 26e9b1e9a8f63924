package policy

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Terms are the caller-supplied creation arguments. Amounts are in the
// smallest unit of Currency.
type Terms struct {
	CoverageAmount     int64  `json:"coverage_amount"      validate:"gt=0"`
	InitialPremiumFee  int64  `json:"initial_premium_fee"  validate:"gt=0"`
	PremiumRate        int64  `json:"premium_rate"         validate:"gt=0"`
	DurationDays       int64  `json:"duration_days"        validate:"gt=0"`
	PenaltyRatePercent int64  `json:"penalty_rate_percent" validate:"gte=0"`
	GracePeriodMonths  int64  `json:"grace_period_months"  validate:"gte=0"`
	Currency           string `json:"currency"             validate:"omitempty,len=3,alpha"`
}

// Violation describes one rejected term.
type Violation struct {
	Field   string
	Message string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateCurrency checks that code is a three-letter ISO 4217 code, the
// same rule Terms applies to its currency.
func ValidateCurrency(code string) error {
	if err := validate.Var(strings.TrimSpace(code), "len=3,alpha"); err != nil {
		return fmt.Errorf("policy: currency %q must be a three-letter ISO 4217 code", code)
	}
	return nil
}

// Validate checks every term and returns the violations in field order.
// An empty result means the terms are acceptable.
func (t Terms) Validate() []Violation {
	t.Currency = strings.TrimSpace(t.Currency)
	err := validate.Struct(t)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Violation{{Field: "terms", Message: err.Error()}}
	}

	out := make([]Violation, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, Violation{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must not be negative"
	case "len", "alpha":
		return "must be a three-letter ISO 4217 code"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
