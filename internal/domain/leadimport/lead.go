package leadimport

import (
	"strings"
	"time"
)

const EventTypeImported = "imported"

type HistoryAction string

const (
	HistoryCreated HistoryAction = "created"
	HistoryUpdated HistoryAction = "updated"
)

// Lead is the subset of the CRM lead record the import writes.
type Lead struct {
	ID          string
	ExternalID  string
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Company     string
	JobTitle    string
	Address     string
	PostalCode  string
	City        string
	Country     string
	Website     string
	Notes       string
	Status      string
	Source      string
	AssignedTo  *string
	ImportJobID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LeadHistory is the audit entry written for every created or updated lead.
type LeadHistory struct {
	LeadID      string
	EventType   string
	ImportJobID string
	Action      HistoryAction
	RowNumber   int
	CreatedAt   time.Time
}

// NewLeadFromValues builds a lead from normalized values, applying the
// job defaults when the row carries no status or source.
func NewLeadFromValues(values map[Field]string, defaultStatus, defaultSource string) Lead {
	lead := Lead{}
	lead.Apply(values)
	if lead.Status == "" {
		lead.Status = defaultStatus
	}
	if lead.Source == "" {
		lead.Source = defaultSource
	}
	return lead
}

// Apply overwrites the lead fields that are present and non-empty in values.
func (l *Lead) Apply(values map[Field]string) {
	for field, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if target := l.fieldRef(field); target != nil {
			*target = value
		}
	}
}

func (l *Lead) fieldRef(field Field) *string {
	switch field {
	case FieldExternalID:
		return &l.ExternalID
	case FieldFirstName:
		return &l.FirstName
	case FieldLastName:
		return &l.LastName
	case FieldEmail:
		return &l.Email
	case FieldPhone:
		return &l.Phone
	case FieldCompany:
		return &l.Company
	case FieldJobTitle:
		return &l.JobTitle
	case FieldAddress:
		return &l.Address
	case FieldPostalCode:
		return &l.PostalCode
	case FieldCity:
		return &l.City
	case FieldCountry:
		return &l.Country
	case FieldWebsite:
		return &l.Website
	case FieldNotes:
		return &l.Notes
	case FieldStatus:
		return &l.Status
	case FieldSource:
		return &l.Source
	}
	return nil
}

// DedupKey identifies a lead by one contact field value.
type DedupKey struct {
	Field Field
	Value string
}

func (k DedupKey) IsZero() bool {
	return k.Field == "" || k.Value == ""
}

func (k DedupKey) String() string {
	if k.IsZero() {
		return ""
	}
	return string(k.Field) + ":" + k.Value
}

// KeyFor returns the first non-empty value among fields, in order.
func KeyFor(values map[Field]string, fields []Field) DedupKey {
	for _, field := range fields {
		if value := strings.TrimSpace(values[field]); value != "" {
			return DedupKey{Field: field, Value: value}
		}
	}
	return DedupKey{}
}
