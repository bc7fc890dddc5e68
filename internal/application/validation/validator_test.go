package validation_test

import (
	"strings"
	"testing"

	"github.com/mohammadpnp/lead-import/internal/application/parser"
	"github.com/mohammadpnp/lead-import/internal/application/validation"
	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

func mappingFor(fields ...domain.Field) domain.ColumnMapping {
	m := make(domain.ColumnMapping, len(fields))
	for i, field := range fields {
		m[i] = domain.MappingEntry{SourceColumn: string(field), SourceIndex: i, TargetField: domain.FieldPtr(field)}
	}
	return m
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"06 12 34 56 78":     "+33612345678",
		"06.12.34.56.78":     "+33612345678",
		"(01) 23-45-67-89":   "+33123456789",
		"0033 6 12 34 56 78": "+33612345678",
		"+44 20 7946 0958":   "+442079460958",
		"612345678":          "612345678",
		"  ":                 "",
	}
	for in, want := range tests {
		if got := validation.NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPostalCode(t *testing.T) {
	t.Parallel()

	valid := []string{"75001", "1000", "1234567890", "75 001"}
	for _, code := range valid {
		if !validation.ValidPostalCode(validation.NormalizePostalCode(code)) {
			t.Fatalf("expected %q valid", code)
		}
	}
	invalid := []string{"123", "12345678901", "SW1A1AA", "75O01"}
	for _, code := range invalid {
		if validation.ValidPostalCode(validation.NormalizePostalCode(code)) {
			t.Fatalf("expected %q invalid", code)
		}
	}
}

func TestValidateNormalizesValidRow(t *testing.T) {
	t.Parallel()

	v := validation.New()
	m := mappingFor(domain.FieldFullName, domain.FieldEmail, domain.FieldPhone, domain.FieldPostalCode, domain.FieldWebsite, domain.FieldCity)
	res := v.Validate(parser.RawRow{Number: 1, Values: []string{
		"  Jean Pierre Dupont ", " Jean.Dupont@Example.COM ", "06 12 34 56 78", "75 008", "example.fr", "  Paris  ",
	}}, m)

	if !res.Valid() {
		t.Fatalf("expected valid row, got errors %v", res.Errors)
	}
	want := map[domain.Field]string{
		domain.FieldFirstName:  "Jean",
		domain.FieldLastName:   "Pierre Dupont",
		domain.FieldEmail:      "jean.dupont@example.com",
		domain.FieldPhone:      "+33612345678",
		domain.FieldPostalCode: "75008",
		domain.FieldWebsite:    "https://example.fr",
		domain.FieldCity:       "Paris",
	}
	for field, value := range want {
		if res.Values[field] != value {
			t.Fatalf("field %s: expected %q, got %q", field, value, res.Values[field])
		}
	}
	if _, ok := res.Values[domain.FieldFullName]; ok {
		t.Fatal("expected full_name to be split")
	}
}

func TestValidateMissingContact(t *testing.T) {
	t.Parallel()

	v := validation.New()
	res := v.Validate(parser.RawRow{Number: 3, Values: []string{"Alice", "", ""}},
		mappingFor(domain.FieldFirstName, domain.FieldEmail, domain.FieldPhone))

	if res.Valid() {
		t.Fatal("expected invalid row")
	}
	if res.Errors[validation.ContactErrorKey] != validation.ContactErrorMessage {
		t.Fatalf("expected contact error, got %v", res.Errors)
	}
	if !strings.Contains(res.Errors.Format(), "no contact field") {
		t.Fatalf("unexpected formatted errors %q", res.Errors.Format())
	}
}

func TestValidateFieldErrors(t *testing.T) {
	t.Parallel()

	v := validation.New()
	m := mappingFor(domain.FieldEmail, domain.FieldPhone, domain.FieldPostalCode, domain.FieldExternalID)

	res := v.Validate(parser.RawRow{Values: []string{
		"not-an-email", strings.Repeat("1", 51), "12", "CRM-1",
	}}, m)

	if res.Valid() {
		t.Fatal("expected invalid row")
	}
	for _, key := range []string{"email", "phone", "postal_code"} {
		if res.Errors[key] == "" {
			t.Fatalf("expected error for %s, got %v", key, res.Errors)
		}
	}
	if _, ok := res.Errors[validation.ContactErrorKey]; ok {
		t.Fatal("external id is a contact field")
	}
	if got := res.Errors.Format(); !strings.HasPrefix(got, "email: invalid email format; phone: ") {
		t.Fatalf("unexpected format %q", got)
	}

	long := strings.Repeat("a", 250) + "@example.com"
	res = v.Validate(parser.RawRow{Values: []string{long}}, mappingFor(domain.FieldEmail))
	if res.Errors["email"] != "must be at most 255 characters" {
		t.Fatalf("expected email length error, got %v", res.Errors)
	}
}

func TestValidateShortRowAndUnmappedColumns(t *testing.T) {
	t.Parallel()

	v := validation.New()
	m := domain.ColumnMapping{
		{SourceIndex: 0},
		{SourceIndex: 1, TargetField: domain.FieldPtr(domain.FieldEmail)},
		{SourceIndex: 2, TargetField: domain.FieldPtr(domain.FieldCity)},
	}
	res := v.Validate(parser.RawRow{Values: []string{"ignored", "a@b.io"}}, m)
	if !res.Valid() {
		t.Fatalf("expected valid row, got %v", res.Errors)
	}
	if len(res.Values) != 1 {
		t.Fatalf("expected only email value, got %v", res.Values)
	}
}
