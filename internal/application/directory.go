package application

import (
	"context"
	"time"

	"github.com/oksasatya/chambitas-auth/internal/domain/entity"
)

// UserDirectory is a searchable index of verified users.
type UserDirectory interface {
	IndexUser(ctx context.Context, u *entity.User) error
	Search(ctx context.Context, q string, size int) ([]DirectoryEntry, error)
}

type DirectoryEntry struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Roles      []string  `json:"roles"`
	VerifiedAt time.Time `json:"verified_at"`
}

// index is best effort: the verification already succeeded.
func (s *Service) index(ctx context.Context, u *entity.User) {
	if s.Directory == nil {
		return
	}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.Directory.IndexUser(c, u); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("directory index failed")
	}
}

// SearchUsers queries the directory; with no directory configured it returns nothing.
func (s *Service) SearchUsers(ctx context.Context, q string, size int) ([]DirectoryEntry, error) {
	if s.Directory == nil {
		return []DirectoryEntry{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	entries, err := s.Directory.Search(ctx, q, size)
	if err != nil {
		return nil, s.internal(s.Logger.WithField("q", q), "search users", err)
	}
	return entries, nil
}
