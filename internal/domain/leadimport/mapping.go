package leadimport

import "fmt"

// Field is a target field of a lead record.
type Field string

const (
	FieldExternalID Field = "external_id"
	FieldFirstName  Field = "first_name"
	FieldLastName   Field = "last_name"
	FieldFullName   Field = "full_name"
	FieldEmail      Field = "email"
	FieldPhone      Field = "phone"
	FieldCompany    Field = "company"
	FieldJobTitle   Field = "job_title"
	FieldAddress    Field = "address"
	FieldPostalCode Field = "postal_code"
	FieldCity       Field = "city"
	FieldCountry    Field = "country"
	FieldWebsite    Field = "website"
	FieldNotes      Field = "notes"
	FieldStatus     Field = "status"
	FieldSource     Field = "source"
	FieldAssignedTo Field = "assigned_to"
)

var allFields = []Field{
	FieldExternalID, FieldFirstName, FieldLastName, FieldFullName, FieldEmail, FieldPhone,
	FieldCompany, FieldJobTitle, FieldAddress, FieldPostalCode, FieldCity, FieldCountry,
	FieldWebsite, FieldNotes, FieldStatus, FieldSource, FieldAssignedTo,
}

// ContactFields are the fields that can identify a lead, in duplicate-key
// priority order.
var ContactFields = []Field{FieldExternalID, FieldEmail, FieldPhone}

func AllFields() []Field {
	out := make([]Field, len(allFields))
	copy(out, allFields)
	return out
}

func (f Field) Valid() bool {
	for _, candidate := range allFields {
		if candidate == f {
			return true
		}
	}
	return false
}

func (f Field) IsContact() bool {
	for _, candidate := range ContactFields {
		if candidate == f {
			return true
		}
	}
	return false
}

func FieldPtr(f Field) *Field {
	return &f
}

type MappingEntry struct {
	SourceColumn string   `json:"sourceColumn"`
	SourceIndex  int      `json:"sourceIndex"`
	TargetField  *Field   `json:"targetField"`
	Confidence   float64  `json:"confidence"`
	Manual       bool     `json:"manual"`
	Samples      []string `json:"samples,omitempty"`
}

func (e MappingEntry) Mapped() bool {
	return e.TargetField != nil && *e.TargetField != ""
}

type ColumnMapping []MappingEntry

// Validate checks that targets are known fields claimed by at most one column.
func (m ColumnMapping) Validate() error {
	claimed := make(map[Field]int, len(m))
	indexes := make(map[int]struct{}, len(m))
	for _, entry := range m {
		if _, seen := indexes[entry.SourceIndex]; seen {
			return fmt.Errorf("%w: column index %d mapped twice", ErrInvalidMapping, entry.SourceIndex)
		}
		indexes[entry.SourceIndex] = struct{}{}

		if !entry.Mapped() {
			continue
		}
		field := *entry.TargetField
		if !field.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
		if other, taken := claimed[field]; taken {
			return fmt.Errorf("%w: %q claimed by columns %d and %d", ErrDuplicateTarget, field, other, entry.SourceIndex)
		}
		claimed[field] = entry.SourceIndex
	}
	return nil
}

// IndexOf returns the source index mapped to field, or -1.
func (m ColumnMapping) IndexOf(field Field) int {
	for _, entry := range m {
		if entry.Mapped() && *entry.TargetField == field {
			return entry.SourceIndex
		}
	}
	return -1
}

func (m ColumnMapping) HasContactField() bool {
	for _, field := range ContactFields {
		if m.IndexOf(field) >= 0 {
			return true
		}
	}
	return false
}

// MissingContactFields lists contact fields no column targets. Commit may
// start as long as at least one contact field is mapped.
func (m ColumnMapping) MissingContactFields() []Field {
	missing := make([]Field, 0, len(ContactFields))
	for _, field := range ContactFields {
		if m.IndexOf(field) < 0 {
			missing = append(missing, field)
		}
	}
	return missing
}

// Clone returns a deep copy so overrides never alias persisted state.
func (m ColumnMapping) Clone() ColumnMapping {
	if m == nil {
		return nil
	}
	out := make(ColumnMapping, len(m))
	for i, entry := range m {
		out[i] = entry
		if entry.TargetField != nil {
			out[i].TargetField = FieldPtr(*entry.TargetField)
		}
		if entry.Samples != nil {
			out[i].Samples = append([]string(nil), entry.Samples...)
		}
	}
	return out
}
