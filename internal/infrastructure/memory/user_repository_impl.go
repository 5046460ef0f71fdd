package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oksasatya/chambitas-auth/internal/domain/entity"
	"github.com/oksasatya/chambitas-auth/internal/domain/repository"
)

// UserRepository keeps users in process memory. A single mutex guards every
// mutation so email uniqueness and the verify transition are serialized.
type UserRepository struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*entity.User
	byEmail map[string]int64
	byToken map[string]int64
	now     func() time.Time
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[int64]*entity.User),
		byEmail: make(map[string]int64),
		byToken: make(map[string]int64),
		now:     time.Now,
	}
}

func (r *UserRepository) Create(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[u.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	r.nextID++
	now := r.now().UTC()
	u.ID = r.nextID
	u.CreatedAt = now
	u.UpdatedAt = now

	stored := u.Clone()
	r.byID[stored.ID] = stored
	r.byEmail[stored.Email] = stored.ID
	if stored.State == entity.StatePending && stored.VerificationToken != "" {
		r.byToken[stored.VerificationToken] = stored.ID
	}
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id int64) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.byID[id]; ok {
		return u.Clone(), nil
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byEmail[email]; ok {
		return r.byID[id].Clone(), nil
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) GetByVerificationToken(_ context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, repository.ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := r.byID[id]
	if u.State != entity.StatePending || u.VerificationToken != token {
		return nil, repository.ErrNotFound
	}
	return u.Clone(), nil
}

func (r *UserRepository) MarkVerified(_ context.Context, id int64) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotPending
	}
	token := u.VerificationToken
	if !u.Verify(r.now().UTC()) {
		return nil, repository.ErrNotPending
	}
	delete(r.byToken, token)
	return u.Clone(), nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
