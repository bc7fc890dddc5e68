// Package validation maps raw rows onto lead fields, normalizes them and
// reports per-field errors. It holds no state between rows.
package validation

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/mohammadpnp/lead-import/internal/application/parser"
	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

const (
	ContactErrorKey     = "contact"
	ContactErrorMessage = "no contact field (email, phone or external id) provided"

	maxEmailLength = 255
	maxPhoneLength = 50
	maxTextLength  = 255
)

// FieldErrors maps a field name to a message. Empty means valid.
type FieldErrors map[string]string

type Result struct {
	Values map[domain.Field]string
	Errors FieldErrors
}

func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	return &Validator{validate: validator.New()}
}

var boundedText = []domain.Field{
	domain.FieldExternalID, domain.FieldFirstName, domain.FieldLastName, domain.FieldCompany,
	domain.FieldJobTitle, domain.FieldCity, domain.FieldCountry, domain.FieldWebsite,
	domain.FieldStatus, domain.FieldSource, domain.FieldAssignedTo,
}

// Validate applies mapping to row. It is safe for concurrent use.
func (v *Validator) Validate(row parser.RawRow, mapping domain.ColumnMapping) Result {
	values := make(map[domain.Field]string, len(mapping))
	for _, entry := range mapping {
		if !entry.Mapped() || entry.SourceIndex < 0 || entry.SourceIndex >= len(row.Values) {
			continue
		}
		if value := strings.TrimSpace(row.Values[entry.SourceIndex]); value != "" {
			values[*entry.TargetField] = value
		}
	}

	if full, ok := values[domain.FieldFullName]; ok {
		first, last := SplitFullName(full)
		if values[domain.FieldFirstName] == "" && first != "" {
			values[domain.FieldFirstName] = first
		}
		if values[domain.FieldLastName] == "" && last != "" {
			values[domain.FieldLastName] = last
		}
		delete(values, domain.FieldFullName)
	}

	errs := FieldErrors{}

	if email, ok := values[domain.FieldEmail]; ok {
		email = NormalizeEmail(email)
		values[domain.FieldEmail] = email
		switch {
		case utf8.RuneCountInString(email) > maxEmailLength:
			errs[string(domain.FieldEmail)] = fmt.Sprintf("must be at most %d characters", maxEmailLength)
		case v.validate.Var(email, "email") != nil:
			errs[string(domain.FieldEmail)] = "invalid email format"
		}
	}

	if phone, ok := values[domain.FieldPhone]; ok {
		phone = NormalizePhone(phone)
		switch {
		case phone == "":
			delete(values, domain.FieldPhone)
		case utf8.RuneCountInString(phone) > maxPhoneLength:
			values[domain.FieldPhone] = phone
			errs[string(domain.FieldPhone)] = fmt.Sprintf("must be at most %d characters", maxPhoneLength)
		case !hasDigit(phone):
			values[domain.FieldPhone] = phone
			errs[string(domain.FieldPhone)] = "invalid phone number"
		default:
			values[domain.FieldPhone] = phone
		}
	}

	if code, ok := values[domain.FieldPostalCode]; ok {
		code = NormalizePostalCode(code)
		values[domain.FieldPostalCode] = code
		if !ValidPostalCode(code) {
			errs[string(domain.FieldPostalCode)] = "invalid postal code"
		}
	}

	if site, ok := values[domain.FieldWebsite]; ok {
		values[domain.FieldWebsite] = NormalizeWebsite(site)
	}

	for _, field := range boundedText {
		if value, ok := values[field]; ok && utf8.RuneCountInString(value) > maxTextLength {
			if _, already := errs[string(field)]; !already {
				errs[string(field)] = fmt.Sprintf("must be at most %d characters", maxTextLength)
			}
		}
	}

	if values[domain.FieldEmail] == "" && values[domain.FieldPhone] == "" && values[domain.FieldExternalID] == "" {
		errs[ContactErrorKey] = ContactErrorMessage
	}

	if len(errs) == 0 {
		errs = nil
	}
	return Result{Values: values, Errors: errs}
}

// Format renders errors as "field: message" pairs joined by "; ", sorted by
// field name.
func (e FieldErrors) Format() string {
	if len(e) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e))
	for key := range e {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e[key])
	}
	return strings.Join(parts, "; ")
}
