package leadimport

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammadpnp/lead-import/internal/application/mapping"
	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

// AssignmentResolver picks the assignee of newly created leads.
type AssignmentResolver struct {
	cfg   domain.AssignmentConfig
	users domain.UserDirectory

	// columnIndex is the raw column holding the assignee in by_column mode,
	// or -1 to read the mapped assigned_to value instead.
	columnIndex int
	cache       map[string]*string
}

func NewAssignmentResolver(cfg domain.AssignmentConfig, headers []string, users domain.UserDirectory) *AssignmentResolver {
	return &AssignmentResolver{
		cfg:         cfg,
		users:       users,
		columnIndex: findColumn(headers, cfg.AssignmentColumn),
		cache:       make(map[string]*string),
	}
}

// Counts reports whether Assign consumes a round-robin slot for every
// created lead.
func (a *AssignmentResolver) Counts() bool {
	return a.cfg.Mode == domain.AssignmentRoundRobin && len(a.cfg.RoundRobinUserIDs) > 0
}

// Assign returns the assignee of a row about to be created. assignedSoFar is
// the number of round-robin slots the job has consumed before this row.
func (a *AssignmentResolver) Assign(ctx context.Context, row domain.ImportRow, assignedSoFar int64) (*string, error) {
	switch a.cfg.Mode {
	case domain.AssignmentRoundRobin:
		ids := a.cfg.RoundRobinUserIDs
		if len(ids) == 0 {
			return nil, nil
		}
		userID := ids[int(assignedSoFar%int64(len(ids)))]
		return &userID, nil
	case domain.AssignmentByColumn:
		return a.byColumn(ctx, row)
	}
	return nil, nil
}

func (a *AssignmentResolver) byColumn(ctx context.Context, row domain.ImportRow) (*string, error) {
	var ident string
	if a.columnIndex >= 0 {
		ident = strings.TrimSpace(row.RawValue(a.columnIndex))
	} else {
		ident = strings.TrimSpace(row.Values[domain.FieldAssignedTo])
	}
	if ident == "" {
		return nil, nil
	}

	cacheKey := strings.ToLower(ident)
	if userID, ok := a.cache[cacheKey]; ok {
		return userID, nil
	}

	userID, found, err := a.users.Resolve(ctx, ident)
	if err != nil {
		return nil, fmt.Errorf("resolve assignee %q: %w", ident, err)
	}
	var resolved *string
	if found {
		resolved = &userID
	}
	a.cache[cacheKey] = resolved
	return resolved, nil
}

// findColumn matches name against headers exactly, then by normalized form.
func findColumn(headers []string, name string) int {
	name = strings.TrimSpace(name)
	if name == "" {
		return -1
	}
	for i, header := range headers {
		if header == name {
			return i
		}
	}
	normalized := mapping.NormalizeHeader(name)
	for i, header := range headers {
		if mapping.NormalizeHeader(header) == normalized {
			return i
		}
	}
	return -1
}
