// Package parser streams CSV and XLSX files row by row in bounded batches.
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

const (
	DefaultBatchSize  = 500
	DefaultSampleRows = 5
)

var (
	ErrEmptyFile         = errors.New("file has no header row")
	ErrCorruptFile       = errors.New("file is corrupt or unreadable")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// RawRow is one data row as read from the file. Number is 1-based and
// counts non-blank data rows only; the header is never a RawRow.
type RawRow struct {
	Number int
	Values []string
}

type Options struct {
	FileType  domain.FileType
	SheetName string
	BatchSize int
	// StartAfterRow skips data rows numbered <= StartAfterRow without
	// emitting them.
	StartAfterRow int
	SampleRows    int
}

type Preview struct {
	Headers   []string
	Samples   [][]string
	Delimiter string
	SheetName string
}

type Result struct {
	Headers   []string
	Delimiter string
	SheetName string
	// Rows is the number of data rows in the file, skipped ones included.
	Rows int
}

// BatchFunc receives rows in file order. The slice is owned by the callee.
type BatchFunc func(ctx context.Context, batch []RawRow) error

type rowSource interface {
	// next returns io.EOF after the last row.
	next() ([]string, error)
	close() error
}

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

// Preview reads the header row and the first few data rows.
func (p *Parser) Preview(ctx context.Context, r io.Reader, opts Options) (Preview, error) {
	if opts.SampleRows <= 0 {
		opts.SampleRows = DefaultSampleRows
	}

	src, meta, err := open(r, opts)
	if err != nil {
		return Preview{}, err
	}
	defer src.close()

	preview := Preview{Headers: meta.headers, Delimiter: meta.delimiter, SheetName: meta.sheet}
	for len(preview.Samples) < opts.SampleRows {
		if err := ctx.Err(); err != nil {
			return Preview{}, err
		}
		values, err := nextDataRow(src)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Preview{}, err
		}
		preview.Samples = append(preview.Samples, values)
	}
	return preview, nil
}

// Parse streams every data row to fn in batches of opts.BatchSize.
func (p *Parser) Parse(ctx context.Context, r io.Reader, opts Options, fn BatchFunc) (Result, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	src, meta, err := open(r, opts)
	if err != nil {
		return Result{}, err
	}
	defer src.close()

	result := Result{Headers: meta.headers, Delimiter: meta.delimiter, SheetName: meta.sheet}
	batch := make([]RawRow, 0, opts.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := fn(ctx, batch); err != nil {
			return err
		}
		batch = make([]RawRow, 0, opts.BatchSize)
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		values, err := nextDataRow(src)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, err
		}

		result.Rows++
		if result.Rows <= opts.StartAfterRow {
			continue
		}

		batch = append(batch, RawRow{Number: result.Rows, Values: values})
		if len(batch) >= opts.BatchSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}

	if err := flush(); err != nil {
		return result, err
	}
	return result, nil
}

type sourceMeta struct {
	headers   []string
	delimiter string
	sheet     string
}

func open(r io.Reader, opts Options) (rowSource, sourceMeta, error) {
	var (
		src  rowSource
		meta sourceMeta
		err  error
	)

	switch opts.FileType {
	case domain.FileTypeCSV, "":
		src, meta.delimiter, err = newCSVSource(r)
	case domain.FileTypeXLSX:
		src, meta.sheet, err = newXLSXSource(r, opts.SheetName)
	case domain.FileTypeXLS:
		return nil, sourceMeta{}, fmt.Errorf("%w: legacy xls workbooks must be saved as xlsx", ErrUnsupportedFormat)
	default:
		return nil, sourceMeta{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.FileType)
	}
	if err != nil {
		return nil, sourceMeta{}, err
	}

	header, err := nextDataRow(src)
	if errors.Is(err, io.EOF) {
		src.close()
		return nil, sourceMeta{}, ErrEmptyFile
	}
	if err != nil {
		src.close()
		return nil, sourceMeta{}, err
	}

	meta.headers = make([]string, len(header))
	for i, h := range header {
		meta.headers[i] = strings.TrimSpace(h)
	}
	return src, meta, nil
}

// nextDataRow returns the next row that has at least one non-blank cell.
func nextDataRow(src rowSource) ([]string, error) {
	for {
		values, err := src.next()
		if err != nil {
			return nil, err
		}
		if !isBlank(values) {
			return values, nil
		}
	}
}

func isBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
