package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var candidateDelimiters = []rune{',', ';', '\t'}

type csvSource struct {
	reader *csv.Reader
}

func newCSVSource(r io.Reader) (*csvSource, string, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrCorruptFile, err)
		}
	}

	// Buffer leading lines up to the first non-empty one, then replay them.
	var consumed strings.Builder
	delimiter := ','
	for {
		line, err := br.ReadString('\n')
		consumed.WriteString(line)
		if strings.TrimSpace(line) != "" {
			delimiter = DetectDelimiter(line)
			break
		}
		if errors.Is(err, io.EOF) {
			return nil, "", ErrEmptyFile
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrCorruptFile, err)
		}
	}

	reader := csv.NewReader(io.MultiReader(strings.NewReader(consumed.String()), br))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	return &csvSource{reader: reader}, string(delimiter), nil
}

func (s *csvSource) next() ([]string, error) {
	record, err := s.reader.Read()
	if err == nil {
		return record, nil
	}
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return nil, fmt.Errorf("%w: line %d: %v", ErrCorruptFile, parseErr.Line, parseErr.Err)
	}
	return nil, fmt.Errorf("%w: %v", ErrCorruptFile, err)
}

func (s *csvSource) close() error {
	return nil
}

// DetectDelimiter picks the most frequent of comma, semicolon and tab outside
// quoted sections of line. Comma wins ties.
func DetectDelimiter(line string) rune {
	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case inQuotes:
		default:
			counts[r]++
		}
	}

	best := candidateDelimiters[0]
	for _, candidate := range candidateDelimiters[1:] {
		if counts[candidate] > counts[best] {
			best = candidate
		}
	}
	return best
}
