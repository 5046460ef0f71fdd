package entity

import (
	"slices"
	"time"
)

// VerificationState tracks whether a user has proven control of their email.
type VerificationState string

const (
	StatePending  VerificationState = "pending"
	StateVerified VerificationState = "verified"
)

// User is the aggregate root for the identity domain.
// PasswordHash holds a bcrypt digest, never the plaintext.
//
// VerificationToken is non-empty if and only if State is StatePending.
type User struct {
	ID                int64
	Name              string
	Email             string
	PasswordHash      string
	Roles             []string
	State             VerificationState
	VerificationToken string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	VerifiedAt        *time.Time
}

// NewPendingUser builds a user awaiting email verification.
func NewPendingUser(name, email, passwordHash, verificationToken string, roles []string) *User {
	if len(roles) == 0 {
		roles = DefaultRoles()
	}
	return &User{
		Name:              name,
		Email:             email,
		PasswordHash:      passwordHash,
		Roles:             slices.Clone(roles),
		State:             StatePending,
		VerificationToken: verificationToken,
	}
}

func (u *User) IsVerified() bool { return u.State == StateVerified }

// Verify moves a pending user to verified and consumes the token.
// It reports false when the user was not pending.
func (u *User) Verify(at time.Time) bool {
	if u.State != StatePending {
		return false
	}
	u.State = StateVerified
	u.VerificationToken = ""
	u.UpdatedAt = at
	u.VerifiedAt = &at
	return true
}

// Clone returns a deep copy so stored records are never shared with callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = slices.Clone(u.Roles)
	if u.VerifiedAt != nil {
		t := *u.VerifiedAt
		c.VerifiedAt = &t
	}
	return &c
}
