package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"distribution-service/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// money columns are NUMERIC(12,2)
const moneyScale = 2

var (
	validate     *validator.Validate
	phonePattern = regexp.MustCompile(`^\d{10}$`)
)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = validate.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
}

// validateStruct checks s against its validate tags and wraps failures as ErrValidation
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", models.ErrValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "gte":
		return field + " must be at least " + fe.Param()
	case "min":
		return field + " must have at least " + fe.Param() + " entries"
	case "max":
		return field + " is too long"
	case "phone10":
		return field + " must be exactly 10 digits"
	case "datetime":
		return field + " must be a date formatted " + fe.Param()
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "email":
		return field + " must be a valid email"
	default:
		return field + " is invalid"
	}
}

// checkMoney rejects negative amounts and amounts finer than a cent, which
// the store would round
func checkMoney(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", models.ErrValidation, field)
	}
	if !v.Equal(v.Round(moneyScale)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", models.ErrValidation, field, moneyScale)
	}
	return nil
}
