package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/chambitas-auth/internal/domain/entity"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrNotPending is returned by MarkVerified when the user is missing or already verified.
	ErrNotPending = errors.New("user not pending verification")
)

// UserRepository is the authoritative store of user records.
// Implementations must make Create's email check-and-insert and MarkVerified's
// pending-to-verified transition atomic with respect to concurrent callers.
// Returned users are copies; mutating them does not affect stored state.
type UserRepository interface {
	// Create assigns ID and timestamps on u. Returns ErrDuplicateEmail if the email is taken.
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	// GetByVerificationToken matches only pending users holding exactly this token.
	GetByVerificationToken(ctx context.Context, token string) (*entity.User, error)
	MarkVerified(ctx context.Context, id int64) (*entity.User, error)
}
