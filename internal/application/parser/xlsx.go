package parser

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

type xlsxSource struct {
	file *excelize.File
	rows *excelize.Rows
}

// newXLSXSource opens sheet, or the first sheet when sheet is empty.
func newXLSXSource(r io.Reader, sheet string) (*xlsxSource, string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, "", ErrEmptyFile
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		f.Close()
		return nil, "", fmt.Errorf("%w: sheet %q not found", ErrCorruptFile, sheet)
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, "", fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	return &xlsxSource{file: f, rows: rows}, sheet, nil
}

func (s *xlsxSource) next() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
		}
		return nil, io.EOF
	}
	values, err := s.rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	return values, nil
}

func (s *xlsxSource) close() error {
	rowsErr := s.rows.Close()
	if err := s.file.Close(); err != nil {
		return err
	}
	return rowsErr
}
