package leadimport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mohammadpnp/lead-import/internal/application/validation"
	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

const (
	reportRowNumberColumn = "row_number"
	reportErrorsColumn    = "errors"
)

// WriteErrorReport renders the job's invalid rows as delimited text: the row
// number, the original columns, then the formatted field errors. Rows wider
// than the header keep their extra cells under generated column names.
func (o *Orchestrator) WriteErrorReport(ctx context.Context, jobID string, w io.Writer) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	delimiter := ','
	if r, _ := utf8.DecodeRuneInString(job.Delimiter); r != utf8.RuneError {
		delimiter = r
	}

	width := len(job.Headers)
	err = o.eachInvalidRow(ctx, jobID, func(row domain.ImportRow) error {
		width = max(width, len(row.Raw))
		return nil
	})
	if err != nil {
		return err
	}

	out := bufio.NewWriter(w)
	header := make([]string, 0, width+2)
	header = append(header, reportRowNumberColumn)
	header = append(header, job.Headers...)
	for i := len(job.Headers); i < width; i++ {
		header = append(header, "column_"+strconv.Itoa(i+1))
	}
	header = append(header, reportErrorsColumn)
	if err := writeReportLine(out, header, delimiter); err != nil {
		return err
	}

	err = o.eachInvalidRow(ctx, jobID, func(row domain.ImportRow) error {
		record := make([]string, 0, width+2)
		record = append(record, strconv.Itoa(row.RowNumber))
		for i := 0; i < width; i++ {
			record = append(record, row.RawValue(i))
		}
		record = append(record, validation.FieldErrors(row.Errors).Format())
		return writeReportLine(out, record, delimiter)
	})
	if err != nil {
		return err
	}
	return out.Flush()
}

// eachInvalidRow pages through the job's invalid rows in row order.
func (o *Orchestrator) eachInvalidRow(ctx context.Context, jobID string, fn func(domain.ImportRow) error) error {
	after := 0
	for {
		rows, err := o.rows.ListInvalid(ctx, jobID, after, o.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("list invalid rows: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		for _, row := range rows {
			if err := fn(row); err != nil {
				return err
			}
			after = row.RowNumber
		}
	}
}

func writeReportLine(w *bufio.Writer, values []string, delimiter rune) error {
	for i, value := range values {
		if i > 0 {
			if _, err := w.WriteRune(delimiter); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(EscapeValue(value, delimiter)); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}

// EscapeValue quotes value when it contains the delimiter, a quote or a line
// break, doubling embedded quotes.
func EscapeValue(value string, delimiter rune) string {
	if !strings.ContainsRune(value, delimiter) && !strings.ContainsAny(value, "\"\r\n") {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
