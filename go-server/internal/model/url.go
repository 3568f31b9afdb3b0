package model

import (
	"time"

	"github.com/google/uuid"
)

// URL represents a shortened URL entry in the system
type URL struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	OriginalURL string     `json:"originalUrl" db:"original_url"`
	Slug        string     `json:"slug" db:"slug"`
	Visits      int64      `json:"visits" db:"visits"`
	UserID      *uuid.UUID `json:"-" db:"user_id"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"-" db:"updated_at"`
}

// IsOwnedBy reports whether the URL belongs to the given user.
func (u *URL) IsOwnedBy(userID uuid.UUID) bool {
	return u.UserID != nil && *u.UserID == userID
}
