package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/oksasatya/chambitas-auth/internal/domain/entity"
	"github.com/oksasatya/chambitas-auth/internal/domain/repository"
)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepository struct {
	db DB
}

func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, email, password_hash, roles, verification_state, verification_token, created_at, updated_at, verified_at`

// Create relies on the unique email index; ON CONFLICT DO NOTHING makes the
// check-and-insert a single statement.
func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, roles, verification_state, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, created_at, updated_at
	`, u.Name, u.Email, u.PasswordHash, u.Roles, string(u.State), nullable(u.VerificationToken))

	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return repository.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return r.scanOne(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id), repository.ErrNotFound)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.scanOne(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email), repository.ErrNotFound)
}

func (r *UserRepository) GetByVerificationToken(ctx context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, repository.ErrNotFound
	}
	return r.scanOne(r.db.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE verification_token = $1 AND verification_state = 'pending'
	`, token), repository.ErrNotFound)
}

// MarkVerified is a conditional update: only a pending row transitions, so
// concurrent callers observe exactly one success.
func (r *UserRepository) MarkVerified(ctx context.Context, id int64) (*entity.User, error) {
	return r.scanOne(r.db.QueryRow(ctx, `
		UPDATE users
		SET verification_state = 'verified', verification_token = NULL, updated_at = now(), verified_at = now()
		WHERE id = $1 AND verification_state = 'pending'
		RETURNING `+userColumns, id), repository.ErrNotPending)
}

func (r *UserRepository) scanOne(row pgx.Row, notFound error) (*entity.User, error) {
	u := &entity.User{}
	var (
		state      string
		token      pgtype.Text
		verifiedAt pgtype.Timestamptz
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Roles, &state, &token,
		&u.CreatedAt, &u.UpdatedAt, &verifiedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, err
	}
	u.State = entity.VerificationState(state)
	if token.Valid {
		u.VerificationToken = token.String
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		u.VerifiedAt = &t
	}
	return u, nil
}

func nullable(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ repository.UserRepository = (*UserRepository)(nil)
