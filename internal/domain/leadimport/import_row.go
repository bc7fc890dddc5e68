package leadimport

type RowStatus string

const (
	RowValid   RowStatus = "valid"
	RowInvalid RowStatus = "invalid"
)

type RowOutcome string

const (
	OutcomePending  RowOutcome = ""
	OutcomeImported RowOutcome = "imported"
	OutcomeUpdated  RowOutcome = "updated"
	OutcomeSkipped  RowOutcome = "skipped"
)

// ImportRow is one staged input line. Status is decided at parse time and
// never revisited; Outcome and LeadID are set once during commit.
type ImportRow struct {
	JobID       string
	RowNumber   int
	ChunkNumber int
	Status      RowStatus
	Raw         []string
	Values      map[Field]string
	Errors      map[string]string

	Outcome     RowOutcome
	LeadID      *string
	DuplicateOf string
}

func (r ImportRow) Handled() bool {
	return r.Outcome != OutcomePending
}

// RawValue returns the raw cell at index, or "" when the row is shorter.
func (r ImportRow) RawValue(index int) string {
	if index < 0 || index >= len(r.Raw) {
		return ""
	}
	return r.Raw[index]
}
