// Package validation checks request payloads and contact details.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"

	"github.com/ecomjrm/fulfillment-sync/internal/apperr"
)

const DateLayout = "2006-01-02"

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
		return IsHTTPURL(fl.Field().String())
	})
	return &Validator{v: v}
}

// Struct validates s and reports failures as a validation error listing
// each field and the rule it broke.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(err.Error())
	}
	fields := make(map[string]string, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
		names = append(names, fe.Field())
	}
	return apperr.ValidationFields("invalid "+strings.Join(names, ", "), fields)
}

// IsHTTPURL accepts absolute http and https URLs with a host.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Phone parses a phone number for the given region and returns it in E.164
// form.
func Phone(number, region string) (string, error) {
	p, err := libphonenumber.Parse(number, region)
	if err != nil {
		return "", apperr.ValidationFields(fmt.Sprintf("invalid phone number %q", number), map[string]string{"phone": "parse"})
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", apperr.ValidationFields(fmt.Sprintf("invalid phone number %q", number), map[string]string{"phone": "invalid"})
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}

// PickupDate parses a YYYY-MM-DD date. An empty value or a date before
// today (in loc) becomes today.
func PickupDate(raw string, now time.Time, loc *time.Location) (string, error) {
	today := now.In(loc).Format(DateLayout)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return today, nil
	}
	d, err := time.ParseInLocation(DateLayout, raw, loc)
	if err != nil {
		return "", apperr.ValidationFields("pickupDate must be YYYY-MM-DD", map[string]string{"pickupDate": "date"})
	}
	if d.Format(DateLayout) < today {
		return today, nil
	}
	return d.Format(DateLayout), nil
}
