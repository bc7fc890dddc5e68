package leadimport

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

type matchSource int

const (
	matchNone matchSource = iota
	matchDatabase
	matchFile
)

// match is the duplicate decision for one row.
type match struct {
	source matchSource
	// leadID is set for database matches. File matches read the lead of
	// their canonical row when the row is written, since that lead may be
	// created earlier in the same batch.
	leadID    string
	canonical *canonicalRow
	// ref is "lead:<id>" for database matches and "row:<n>" for file matches.
	ref string
	key string
}

type canonicalRow struct {
	rowNumber int
	leadID    string
}

// DuplicateResolver classifies rows of one job as new or duplicate. The
// within-file index keeps the first occurrence of every key in row order;
// it survives across batches of one invocation and is rebuilt from
// already-committed rows when a commit resumes.
type DuplicateResolver struct {
	jobID  string
	cfg    domain.DuplicateConfig
	index  map[string]*canonicalRow
	staged []string
}

func NewDuplicateResolver(jobID string, cfg domain.DuplicateConfig) *DuplicateResolver {
	return &DuplicateResolver{
		jobID: jobID,
		cfg:   cfg,
		index: make(map[string]*canonicalRow),
	}
}

// Seed registers rows committed by an earlier invocation. rows must be in
// row order.
func (r *DuplicateResolver) Seed(rows []domain.ImportRow) {
	if !r.cfg.Enabled() || !r.cfg.CheckWithinFile {
		return
	}
	for _, row := range rows {
		key := r.keyOf(row.Values)
		if key == "" {
			continue
		}
		if _, seen := r.index[key]; seen {
			continue
		}
		canonical := &canonicalRow{rowNumber: row.RowNumber}
		if row.LeadID != nil {
			canonical.leadID = *row.LeadID
		}
		r.index[key] = canonical
	}
}

// Resolve classifies rows, which must be the next rows in row order. A
// database match takes precedence over a within-file match.
func (r *DuplicateResolver) Resolve(ctx context.Context, tx domain.CommitTx, rows []domain.ImportRow) ([]match, error) {
	matches := make([]match, len(rows))
	if !r.cfg.Enabled() {
		return matches, nil
	}

	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = r.keyOf(row.Values)
	}

	var existing map[string]string
	if r.cfg.CheckDatabase {
		var err error
		existing, err = r.lookupDatabase(ctx, tx, rows)
		if err != nil {
			return nil, err
		}
	}

	for i, row := range rows {
		key := keys[i]
		if key == "" {
			continue
		}
		matches[i].key = key

		if leadID, ok := existing[key]; ok {
			matches[i].source = matchDatabase
			matches[i].leadID = leadID
			matches[i].ref = "lead:" + leadID
		} else if r.cfg.CheckWithinFile {
			if canonical, ok := r.index[key]; ok {
				matches[i].source = matchFile
				matches[i].canonical = canonical
				matches[i].ref = "row:" + strconv.Itoa(canonical.rowNumber)
				continue
			}
		}

		if r.cfg.CheckWithinFile {
			if _, ok := r.index[key]; !ok {
				r.index[key] = &canonicalRow{rowNumber: row.RowNumber, leadID: matches[i].leadID}
				r.staged = append(r.staged, key)
			}
		}
	}
	return matches, nil
}

// target returns the lead a duplicate row refers to, or "" when its
// canonical row produced none.
func (m match) target() string {
	if m.canonical != nil {
		return m.canonical.leadID
	}
	return m.leadID
}

// Bind records the lead a canonical row produced so later duplicates can
// update it.
func (r *DuplicateResolver) Bind(m match, rowNumber int, leadID string) {
	if m.key == "" {
		return
	}
	if canonical, ok := r.index[m.key]; ok && canonical.rowNumber == rowNumber {
		canonical.leadID = leadID
	}
}

// Commit keeps index entries added since the last Commit or Rollback.
func (r *DuplicateResolver) Commit() {
	r.staged = r.staged[:0]
}

// Rollback forgets index entries added by a batch whose transaction failed.
func (r *DuplicateResolver) Rollback() {
	for _, key := range r.staged {
		delete(r.index, key)
	}
	r.staged = r.staged[:0]
}

func (r *DuplicateResolver) lookupDatabase(ctx context.Context, tx domain.CommitTx, rows []domain.ImportRow) (map[string]string, error) {
	seen := make(map[string]struct{}, len(rows))
	lookup := make([]domain.DedupKey, 0, len(rows))
	for _, row := range rows {
		key := domain.KeyFor(row.Values, r.cfg.CheckFields)
		if key.IsZero() {
			continue
		}
		key.Value = normalizeKeyValue(key.Field, key.Value)
		if _, dup := seen[key.String()]; dup {
			continue
		}
		seen[key.String()] = struct{}{}
		lookup = append(lookup, key)
	}
	if len(lookup) == 0 {
		return nil, nil
	}

	leads, err := tx.FindLeadsByKeys(ctx, lookup, r.jobID)
	if err != nil {
		return nil, fmt.Errorf("find existing leads: %w", err)
	}

	existing := make(map[string]string, len(leads))
	for _, lead := range leads {
		for _, field := range r.cfg.CheckFields {
			value := leadKeyValue(lead, field)
			if value == "" {
				continue
			}
			key := domain.DedupKey{Field: field, Value: normalizeKeyValue(field, value)}.String()
			if _, taken := existing[key]; !taken {
				existing[key] = lead.ID
			}
		}
	}
	return existing, nil
}

func (r *DuplicateResolver) keyOf(values map[domain.Field]string) string {
	key := domain.KeyFor(values, r.cfg.CheckFields)
	if key.IsZero() {
		return ""
	}
	key.Value = normalizeKeyValue(key.Field, key.Value)
	return key.String()
}

func normalizeKeyValue(field domain.Field, value string) string {
	value = strings.TrimSpace(value)
	if field == domain.FieldEmail {
		return strings.ToLower(value)
	}
	return value
}

func leadKeyValue(lead domain.Lead, field domain.Field) string {
	switch field {
	case domain.FieldExternalID:
		return lead.ExternalID
	case domain.FieldEmail:
		return lead.Email
	case domain.FieldPhone:
		return lead.Phone
	}
	return ""
}
