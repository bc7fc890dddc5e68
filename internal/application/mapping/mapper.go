// Package mapping guesses which lead field each file column holds.
package mapping

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

const (
	DefaultFuzzyThreshold = 0.8
	maxSamplesPerColumn   = 5
)

type Config struct {
	FuzzyThreshold float64
}

type aliasEntry struct {
	alias string
	field domain.Field
}

type Mapper struct {
	threshold float64
	exact     map[string]domain.Field
	ordered   []aliasEntry
}

func New(cfg Config) *Mapper {
	if cfg.FuzzyThreshold <= 0 || cfg.FuzzyThreshold > 1 {
		cfg.FuzzyThreshold = DefaultFuzzyThreshold
	}

	m := &Mapper{
		threshold: cfg.FuzzyThreshold,
		exact:     make(map[string]domain.Field),
	}
	for _, field := range domain.AllFields() {
		for _, alias := range aliases[field] {
			normalized := NormalizeHeader(alias)
			if _, taken := m.exact[normalized]; taken {
				continue
			}
			m.exact[normalized] = field
			m.ordered = append(m.ordered, aliasEntry{alias: normalized, field: field})
		}
	}
	return m
}

type candidate struct {
	index      int
	field      domain.Field
	confidence float64
}

// Suggest returns one entry per header. Each field is claimed by at most one
// column: the highest confidence wins, then the leftmost column.
func (m *Mapper) Suggest(headers []string, samples [][]string) domain.ColumnMapping {
	mapping := make(domain.ColumnMapping, len(headers))
	candidates := make([]candidate, 0, len(headers))

	for i, header := range headers {
		mapping[i] = domain.MappingEntry{
			SourceColumn: header,
			SourceIndex:  i,
			Samples:      columnSamples(samples, i),
		}
		if field, confidence, ok := m.Match(header); ok {
			candidates = append(candidates, candidate{index: i, field: field, confidence: confidence})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].confidence != candidates[b].confidence {
			return candidates[a].confidence > candidates[b].confidence
		}
		return candidates[a].index < candidates[b].index
	})

	claimed := make(map[domain.Field]bool, len(candidates))
	for _, c := range candidates {
		if claimed[c.field] {
			continue
		}
		claimed[c.field] = true
		mapping[c.index].TargetField = domain.FieldPtr(c.field)
		mapping[c.index].Confidence = c.confidence
	}
	return mapping
}

// Match resolves one header: exact alias first, then the closest alias by
// edit distance if its similarity reaches the threshold.
func (m *Mapper) Match(header string) (domain.Field, float64, bool) {
	normalized := NormalizeHeader(header)
	if normalized == "" {
		return "", 0, false
	}
	if field, ok := m.exact[normalized]; ok {
		return field, 1, true
	}

	var (
		best      domain.Field
		bestScore float64
	)
	for _, entry := range m.ordered {
		score := similarity(normalized, entry.alias)
		if score > bestScore {
			best, bestScore = entry.field, score
		}
	}
	if bestScore >= m.threshold {
		return best, bestScore, true
	}
	return "", 0, false
}

// Override is a user decision for one column. A nil TargetField unmaps it.
type Override struct {
	SourceIndex int           `json:"sourceIndex"`
	TargetField *domain.Field `json:"targetField"`
}

// ApplyOverrides returns a copy of mapping with overrides applied. A field
// chosen manually is released from every other column.
func ApplyOverrides(mapping domain.ColumnMapping, overrides []Override) (domain.ColumnMapping, error) {
	out := mapping.Clone()
	position := make(map[int]int, len(out))
	for i, entry := range out {
		position[entry.SourceIndex] = i
	}

	manual := make(map[domain.Field]int, len(overrides))
	for _, override := range overrides {
		i, ok := position[override.SourceIndex]
		if !ok {
			return nil, fmt.Errorf("%w: no column at index %d", domain.ErrInvalidMapping, override.SourceIndex)
		}

		if override.TargetField == nil || *override.TargetField == "" {
			out[i].TargetField = nil
			out[i].Confidence = 0
			out[i].Manual = true
			continue
		}

		field := *override.TargetField
		if !field.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownField, field)
		}
		if other, taken := manual[field]; taken && other != override.SourceIndex {
			return nil, fmt.Errorf("%w: %q chosen for columns %d and %d", domain.ErrDuplicateTarget, field, other, override.SourceIndex)
		}
		manual[field] = override.SourceIndex

		for j := range out {
			if j != i && out[j].Mapped() && *out[j].TargetField == field {
				out[j].TargetField = nil
				out[j].Confidence = 0
			}
		}
		out[i].TargetField = domain.FieldPtr(field)
		out[i].Confidence = 1
		out[i].Manual = true
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeHeader folds case, strips accents and collapses punctuation and
// separators into single spaces.
func NormalizeHeader(header string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, header)
	if err != nil {
		folded = header
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

func similarity(a, b string) float64 {
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)
}

func columnSamples(samples [][]string, index int) []string {
	out := make([]string, 0, maxSamplesPerColumn)
	for _, row := range samples {
		if len(out) == maxSamplesPerColumn {
			break
		}
		if index < len(row) {
			if value := strings.TrimSpace(row[index]); value != "" {
				out = append(out, value)
			}
		}
	}
	return out
}
