package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"github.com/oksasatya/chambitas-auth/internal/domain/entity"
	"github.com/oksasatya/chambitas-auth/internal/domain/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type UserRepositorySuite struct {
	suite.Suite
	repo *UserRepository
	ctx  context.Context
}

func (s *UserRepositorySuite) SetupTest() {
	s.repo = NewUserRepository()
	s.ctx = context.Background()
}

func TestUserRepositorySuite(t *testing.T) {
	suite.Run(t, new(UserRepositorySuite))
}

func (s *UserRepositorySuite) pending(email, token string) *entity.User {
	return entity.NewPendingUser("Alice", email, "hash", token, nil)
}

func (s *UserRepositorySuite) TestCreate() {
	s.Run("assigns monotonic ids", func() {
		a := s.pending("a@example.com", "tok-a")
		b := s.pending("b@example.com", "tok-b")
		s.Require().NoError(s.repo.Create(s.ctx, a))
		s.Require().NoError(s.repo.Create(s.ctx, b))
		s.Greater(b.ID, a.ID)
		s.False(a.CreatedAt.IsZero())
	})

	s.Run("rejects duplicate email", func() {
		err := s.repo.Create(s.ctx, s.pending("a@example.com", "tok-other"))
		s.Require().ErrorIs(err, repository.ErrDuplicateEmail)
	})

	s.Run("email match is case sensitive", func() {
		s.Require().NoError(s.repo.Create(s.ctx, s.pending("A@example.com", "tok-upper")))
	})
}

func (s *UserRepositorySuite) TestLookups() {
	u := s.pending("lookup@example.com", "tok-lookup")
	s.Require().NoError(s.repo.Create(s.ctx, u))

	byEmail, err := s.repo.GetByEmail(s.ctx, "lookup@example.com")
	s.Require().NoError(err)
	s.Equal(u.ID, byEmail.ID)
	s.Equal([]string{entity.RoleUser}, byEmail.Roles)

	byID, err := s.repo.GetByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("lookup@example.com", byID.Email)

	byToken, err := s.repo.GetByVerificationToken(s.ctx, "tok-lookup")
	s.Require().NoError(err)
	s.Equal(u.ID, byToken.ID)

	_, err = s.repo.GetByEmail(s.ctx, "missing@example.com")
	s.ErrorIs(err, repository.ErrNotFound)
	_, err = s.repo.GetByID(s.ctx, 999)
	s.ErrorIs(err, repository.ErrNotFound)
	_, err = s.repo.GetByVerificationToken(s.ctx, "")
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *UserRepositorySuite) TestReturnedUsersAreCopies() {
	u := s.pending("copy@example.com", "tok-copy")
	s.Require().NoError(s.repo.Create(s.ctx, u))

	got, err := s.repo.GetByEmail(s.ctx, "copy@example.com")
	s.Require().NoError(err)
	got.State = entity.StateVerified
	got.Roles[0] = entity.RoleAdmin

	again, err := s.repo.GetByEmail(s.ctx, "copy@example.com")
	s.Require().NoError(err)
	s.Equal(entity.StatePending, again.State)
	s.Equal(entity.RoleUser, again.Roles[0])
}

func (s *UserRepositorySuite) TestMarkVerified() {
	u := s.pending("verify@example.com", "tok-verify")
	s.Require().NoError(s.repo.Create(s.ctx, u))

	verified, err := s.repo.MarkVerified(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(entity.StateVerified, verified.State)
	s.Empty(verified.VerificationToken)
	s.NotNil(verified.VerifiedAt)

	_, err = s.repo.GetByVerificationToken(s.ctx, "tok-verify")
	s.ErrorIs(err, repository.ErrNotFound)

	_, err = s.repo.MarkVerified(s.ctx, u.ID)
	s.ErrorIs(err, repository.ErrNotPending)

	_, err = s.repo.MarkVerified(s.ctx, 12345)
	s.ErrorIs(err, repository.ErrNotPending)
}

func (s *UserRepositorySuite) TestConcurrentCreateSameEmail() {
	const workers = 32
	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.repo.Create(s.ctx, s.pending("bob@example.com", fmt.Sprintf("tok-%d", i)))
			switch {
			case err == nil:
				ok.Add(1)
			case err == repository.ErrDuplicateEmail:
				dup.Add(1)
			}
		}(i)
	}
	wg.Wait()
	s.Equal(int32(1), ok.Load())
	s.Equal(int32(workers-1), dup.Load())
}

func (s *UserRepositorySuite) TestConcurrentMarkVerified() {
	u := s.pending("race@example.com", "tok-race")
	s.Require().NoError(s.repo.Create(s.ctx, u))

	const workers = 16
	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.repo.MarkVerified(s.ctx, u.ID); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), ok.Load())
}
