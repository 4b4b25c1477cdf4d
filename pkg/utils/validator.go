package utils

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	countryCodeRe = regexp.MustCompile(`^\+\d{1,3}$`)
	phoneDigitsRe = regexp.MustCompile(`^\d{7,15}$`)
	fullPhoneRe   = regexp.MustCompile(`^\+\d{1,3}\d{7,15}$`)
	otpCodeRe     = regexp.MustCompile(`^\d{6}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	// tag names must not shadow validator's baked-in aliases (country_code is one)
	mustRegisterPattern(v, "e164_cc", countryCodeRe)
	mustRegisterPattern(v, "phone_digits", phoneDigitsRe)
	mustRegisterPattern(v, "e164_full", fullPhoneRe)
	mustRegisterPattern(v, "otp6", otpCodeRe)
	return v
}

func mustRegisterPattern(v *validator.Validate, tag string, re *regexp.Regexp) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

func ValidateStruct(data interface{}) map[string]string {
	err := validate.Struct(data)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, err := range validationErrors {
			errors[err.Field()] = getErrorMessage(err)
		}
	}

	return errors
}

// converts validator errors to human-readable messages
func getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return fmt.Sprintf("Minimum length is %s", err.Param())
	case "max":
		return fmt.Sprintf("Maximum length is %s", err.Param())
	case "len":
		return fmt.Sprintf("Must be exactly %s characters", err.Param())
	case "oneof":
		options := strings.ReplaceAll(err.Param(), " ", ", ")
		return fmt.Sprintf("Must be one of: %s", options)
	case "e164_cc":
		return "Country code must look like +1 to +999"
	case "phone_digits":
		return "Phone number must be 7-15 digits"
	case "e164_full":
		return "Phone number must be +<country code><7-15 digits>"
	case "otp6":
		return "Verification code must be 6 digits"
	default:
		return fmt.Sprintf("Invalid %s field", err.Field())
	}
}

// formats validation errors map into single string
func FormatValidationErrors(errors map[string]string) string {
	var msgs []string
	for field, msg := range errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
