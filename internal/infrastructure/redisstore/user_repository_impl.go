package redisstore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/chambitas-auth/internal/domain/entity"
	"github.com/oksasatya/chambitas-auth/internal/domain/repository"
)

// Key layout:
//
//	user:seq               INCR counter for ids
//	user:{id}              hash with the user record
//	user:email:{email}     -> id
//	user:vtoken:{token}    -> id, only while pending
//
// The user hash key is built inside the scripts, so this layout assumes a
// single-node Redis rather than Cluster.
const (
	keySeq         = "user:seq"
	keyUserPrefix  = "user:"
	keyEmailPrefix = "user:email:"
	keyTokenPrefix = "user:vtoken:"
)

func keyUser(id int64) string      { return keyUserPrefix + strconv.FormatInt(id, 10) }
func keyEmail(email string) string { return keyEmailPrefix + email }
func keyToken(token string) string { return keyTokenPrefix + token }

// KEYS: email index, sequence, token index. ARGV: user prefix, name, email, hash, roles, state, token, now.
var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
local id = redis.call("INCR", KEYS[2])
local key = ARGV[1] .. id
redis.call("HSET", key,
  "id", id, "name", ARGV[2], "email", ARGV[3], "password_hash", ARGV[4],
  "roles", ARGV[5], "state", ARGV[6], "created_at", ARGV[8], "updated_at", ARGV[8])
redis.call("SET", KEYS[1], id)
if ARGV[7] ~= "" then
  redis.call("HSET", key, "verification_token", ARGV[7])
  redis.call("SET", KEYS[3], id)
end
return id
`)

// KEYS: user hash. ARGV: token index prefix, now.
var markVerifiedScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "state") ~= "pending" then
  return 0
end
local tok = redis.call("HGET", KEYS[1], "verification_token")
if tok then
  redis.call("DEL", ARGV[1] .. tok)
end
redis.call("HDEL", KEYS[1], "verification_token")
redis.call("HSET", KEYS[1], "state", "verified", "updated_at", ARGV[2], "verified_at", ARGV[2])
return 1
`)

type UserRepository struct {
	rdb redis.UniversalClient
	now func() time.Time
}

func NewUserRepository(rdb redis.UniversalClient) *UserRepository {
	return &UserRepository{rdb: rdb, now: time.Now}
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	now := r.now().UTC()
	id, err := createScript.Run(ctx, r.rdb,
		[]string{keyEmail(u.Email), keySeq, keyToken(u.VerificationToken)},
		keyUserPrefix, u.Name, u.Email, u.PasswordHash, strings.Join(u.Roles, ","),
		string(u.State), u.VerificationToken, now.Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		return err
	}
	if id == 0 {
		return repository.ErrDuplicateEmail
	}
	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	data, err := r.rdb.HGetAll(ctx, keyUser(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, repository.ErrNotFound
	}
	return decodeUser(data)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getByIndex(ctx, keyEmail(email))
}

func (r *UserRepository) GetByVerificationToken(ctx context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, repository.ErrNotFound
	}
	u, err := r.getByIndex(ctx, keyToken(token))
	if err != nil {
		return nil, err
	}
	if u.State != entity.StatePending || u.VerificationToken != token {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (r *UserRepository) MarkVerified(ctx context.Context, id int64) (*entity.User, error) {
	ok, err := markVerifiedScript.Run(ctx, r.rdb, []string{keyUser(id)},
		keyTokenPrefix, r.now().UTC().Format(time.RFC3339Nano)).Int64()
	if err != nil {
		return nil, err
	}
	if ok == 0 {
		return nil, repository.ErrNotPending
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) getByIndex(ctx context.Context, key string) (*entity.User, error) {
	id, err := r.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func decodeUser(data map[string]string) (*entity.User, error) {
	id, err := strconv.ParseInt(data["id"], 10, 64)
	if err != nil {
		return nil, err
	}
	u := &entity.User{
		ID:                id,
		Name:              data["name"],
		Email:             data["email"],
		PasswordHash:      data["password_hash"],
		State:             entity.VerificationState(data["state"]),
		VerificationToken: data["verification_token"],
	}
	if roles := data["roles"]; roles != "" {
		u.Roles = strings.Split(roles, ",")
	}
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, data["created_at"]); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = time.Parse(time.RFC3339Nano, data["updated_at"]); err != nil {
		return nil, err
	}
	if v := data["verified_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, err
		}
		u.VerifiedAt = &t
	}
	return u, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
