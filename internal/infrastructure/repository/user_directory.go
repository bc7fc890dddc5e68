package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mohammadpnp/lead-import/internal/infrastructure/db/models"
)

// UserDirectory resolves assignees against the users table.
type UserDirectory struct {
	db *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

// Resolve accepts a user id or an email address and returns the id of the
// matching active user.
func (r *UserDirectory) Resolve(ctx context.Context, ident string) (string, bool, error) {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return "", false, nil
	}

	var row models.User
	query := r.db.WithContext(ctx).Select("id").Where("active = ?", true)
	if strings.Contains(ident, "@") {
		query = query.Where("LOWER(email) = ?", strings.ToLower(ident))
	} else {
		query = query.Where("id = ?", ident)
	}
	err := query.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve user: %w", err)
	}
	return row.ID, true, nil
}
