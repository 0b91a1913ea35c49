package validate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/pesapay/infra/config"
)

var (
	decimalPattern      = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)
	currencyPattern     = regexp.MustCompile(`^[A-Z]{3}$`)
	merchantCodePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]*$`)
	phonePattern        = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// CustomValidate registers domain validation rules on the application
// validator. Handler request DTOs reference these tags.
func CustomValidate() {
	v := config.App().Validator

	_ = v.RegisterValidation("decimal", validateDecimal)
	_ = v.RegisterValidation("currency", validateCurrency)
	_ = v.RegisterValidation("merchant_code", validateMerchantCode)
	_ = v.RegisterValidation("phone", validatePhone)
}

// validateDecimal accepts positive decimal amount strings like "100" or
// "1500.50" with at most two fraction digits. Amounts ride as strings so
// input like "abc" is rejected here instead of silently becoming zero.
func validateDecimal(fl validator.FieldLevel) bool {
	value := strings.TrimSpace(fl.Field().String())
	if !decimalPattern.MatchString(value) {
		return false
	}

	parsed, err := strconv.ParseFloat(value, 64)
	return err == nil && parsed > 0
}

// validateCurrency accepts three-letter upper case currency codes (KES,
// UGX, TZS, USD, ...)
func validateCurrency(fl validator.FieldLevel) bool {
	return currencyPattern.MatchString(fl.Field().String())
}

// validateMerchantCode accepts normalized merchant codes: upper case
// alphanumerics with dashes or underscores
func validateMerchantCode(fl validator.FieldLevel) bool {
	return merchantCodePattern.MatchString(fl.Field().String())
}

// validatePhone accepts international phone numbers with an optional
// leading plus sign
func validatePhone(fl validator.FieldLevel) bool {
	return phonePattern.MatchString(fl.Field().String())
}
