package leadimport_test

import (
	"errors"
	"testing"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from domain.Status
		to   domain.Status
		want bool
	}{
		{domain.StatusPending, domain.StatusParsing, true},
		{domain.StatusParsing, domain.StatusImporting, true},
		{domain.StatusParsing, domain.StatusCompleted, true},
		{domain.StatusImporting, domain.StatusCompleted, true},
		{domain.StatusImporting, domain.StatusCancelled, true},
		{domain.StatusFailed, domain.StatusImporting, true},
		{domain.StatusPending, domain.StatusImporting, false},
		{domain.StatusImporting, domain.StatusParsing, false},
		{domain.StatusCompleted, domain.StatusFailed, false},
		{domain.StatusCancelled, domain.StatusParsing, false},
		{domain.StatusFailed, domain.StatusCancelled, false},
	}

	for _, tc := range tests {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestStatusCancelAndDeleteRules(t *testing.T) {
	t.Parallel()

	for _, status := range []domain.Status{domain.StatusPending, domain.StatusParsing, domain.StatusImporting} {
		if !status.CanCancel() {
			t.Fatalf("expected %s to be cancellable", status)
		}
	}
	for _, status := range []domain.Status{domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled} {
		if status.CanCancel() {
			t.Fatalf("expected %s not to be cancellable", status)
		}
		if !status.CanDelete() {
			t.Fatalf("expected %s to be deletable", status)
		}
	}
	if domain.StatusParsing.CanDelete() || domain.StatusImporting.CanDelete() {
		t.Fatal("active jobs must not be deletable")
	}
}

func TestParseFileType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		declared string
		name     string
		want     domain.FileType
		ok       bool
	}{
		{"", "leads.CSV", domain.FileTypeCSV, true},
		{"xlsx", "whatever.bin", domain.FileTypeXLSX, true},
		{"", "export.tsv", domain.FileTypeCSV, true},
		{"", "old.xls", domain.FileTypeXLS, true},
		{"", "notes.pdf", "", false},
	}
	for _, tc := range tests {
		got, ok := domain.ParseFileType(tc.declared, tc.name)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseFileType(%q, %q) = %q, %v", tc.declared, tc.name, got, ok)
		}
	}
}

func TestChunkCount(t *testing.T) {
	t.Parallel()

	if got := domain.ChunkCount(0, 500); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := domain.ChunkCount(500, 500); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := domain.ChunkCount(501, 500); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestColumnMappingValidate(t *testing.T) {
	t.Parallel()

	ok := domain.ColumnMapping{
		{SourceColumn: "Email", SourceIndex: 0, TargetField: domain.FieldPtr(domain.FieldEmail)},
		{SourceColumn: "Misc", SourceIndex: 1},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid mapping, got %v", err)
	}
	if !ok.HasContactField() {
		t.Fatal("expected contact field")
	}
	if missing := ok.MissingContactFields(); len(missing) != 2 {
		t.Fatalf("expected 2 missing contact fields, got %v", missing)
	}

	dup := domain.ColumnMapping{
		{SourceIndex: 0, TargetField: domain.FieldPtr(domain.FieldEmail)},
		{SourceIndex: 1, TargetField: domain.FieldPtr(domain.FieldEmail)},
	}
	if err := dup.Validate(); !errors.Is(err, domain.ErrDuplicateTarget) {
		t.Fatalf("expected ErrDuplicateTarget, got %v", err)
	}

	unknown := domain.ColumnMapping{{SourceIndex: 0, TargetField: domain.FieldPtr("shoe_size")}}
	if err := unknown.Validate(); !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}

	none := domain.ColumnMapping{{SourceIndex: 0, TargetField: domain.FieldPtr(domain.FieldCity)}}
	if none.HasContactField() {
		t.Fatal("expected no contact field")
	}
}

func TestCommitOptionsNormalizeAndValidate(t *testing.T) {
	t.Parallel()

	opts := domain.CommitOptions{
		Duplicates: domain.DuplicateConfig{
			Strategy:    domain.DuplicateSkip,
			CheckFields: []domain.Field{domain.FieldPhone, domain.FieldExternalID},
		},
	}.Normalize()

	if opts.Assignment.Mode != domain.AssignmentNone {
		t.Fatalf("expected mode none, got %q", opts.Assignment.Mode)
	}
	if len(opts.Duplicates.CheckFields) != 2 || opts.Duplicates.CheckFields[0] != domain.FieldExternalID {
		t.Fatalf("expected priority ordered check fields, got %v", opts.Duplicates.CheckFields)
	}
	if err := opts.Validate(); err != nil {
		t.Fatalf("expected valid options, got %v", err)
	}

	all := domain.CommitOptions{Duplicates: domain.DuplicateConfig{Strategy: domain.DuplicateUpdate}}.Normalize()
	if len(all.Duplicates.CheckFields) != 3 {
		t.Fatalf("expected all contact fields by default, got %v", all.Duplicates.CheckFields)
	}

	invalid := []domain.CommitOptions{
		{Assignment: domain.AssignmentConfig{Mode: domain.AssignmentRoundRobin}, Duplicates: domain.DuplicateConfig{Strategy: domain.DuplicateSkip}},
		{Assignment: domain.AssignmentConfig{Mode: domain.AssignmentByColumn}, Duplicates: domain.DuplicateConfig{Strategy: domain.DuplicateSkip}},
		{Assignment: domain.AssignmentConfig{Mode: "random"}, Duplicates: domain.DuplicateConfig{Strategy: domain.DuplicateSkip}},
		{Duplicates: domain.DuplicateConfig{Strategy: "merge"}},
		{Duplicates: domain.DuplicateConfig{Strategy: domain.DuplicateSkip, CheckFields: []domain.Field{domain.FieldCity}}},
	}
	for i, candidate := range invalid {
		err := candidate.Normalize().Validate()
		if !errors.Is(err, domain.ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

func TestKeyForUsesPriorityOrder(t *testing.T) {
	t.Parallel()

	values := map[domain.Field]string{
		domain.FieldEmail: "a@example.com",
		domain.FieldPhone: "+33600000000",
	}
	key := domain.KeyFor(values, domain.ContactFields)
	if key.Field != domain.FieldEmail || key.Value != "a@example.com" {
		t.Fatalf("unexpected key %+v", key)
	}

	values[domain.FieldExternalID] = "CRM-1"
	if key := domain.KeyFor(values, domain.ContactFields); key.Field != domain.FieldExternalID {
		t.Fatalf("expected external id key, got %+v", key)
	}

	if key := domain.KeyFor(values, []domain.Field{domain.FieldPhone}); key.Field != domain.FieldPhone {
		t.Fatalf("expected phone key, got %+v", key)
	}
	if key := domain.KeyFor(map[domain.Field]string{}, domain.ContactFields); !key.IsZero() {
		t.Fatalf("expected zero key, got %+v", key)
	}
}
