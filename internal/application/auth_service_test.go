package application

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/chambitas-auth/internal/domain/entity"
	"github.com/oksasatya/chambitas-auth/internal/infrastructure/memory"
	"github.com/oksasatya/chambitas-auth/pkg/helpers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sentEmail struct {
	to, subject, link string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentEmail
	err   error
	block bool
}

func (f *fakeSender) SendVerification(ctx context.Context, to, subject, link string) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{to, subject, link})
	return nil
}

func (f *fakeSender) lastToken(t require.TestingT) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	u, err := url.Parse(f.sent[len(f.sent)-1].link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

type fakeDirectory struct {
	mu      sync.Mutex
	indexed []int64
	err     error
}

func (d *fakeDirectory) IndexUser(_ context.Context, u *entity.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.indexed = append(d.indexed, u.ID)
	return d.err
}

func (d *fakeDirectory) Search(_ context.Context, q string, size int) ([]DirectoryEntry, error) {
	return []DirectoryEntry{{ID: 1, Name: q}}, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type AuthServiceSuite struct {
	suite.Suite
	ctx    context.Context
	repo   *memory.UserRepository
	sender *fakeSender
	dir    *fakeDirectory
	clock  *clock
	svc    *Service
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = memory.NewUserRepository()
	s.sender = &fakeSender{}
	s.dir = &fakeDirectory{}
	s.clock = &clock{t: time.Now()}
	jwtm := helpers.NewJWTManager("test-secret", "chambitas", time.Hour).WithClock(s.clock.now)
	s.svc = NewService(s.repo, helpers.NewBcryptHasher(bcrypt.MinCost), helpers.NewTokenCodec(jwtm), s.sender, s.dir, nil, Options{
		VerifyEmailURL:  "http://localhost:5173/verify-email",
		VerifySubject:   "Activa tu cuenta en Chambitas",
		MailSendTimeout: 50 * time.Millisecond,
	})
}

func (s *AuthServiceSuite) register(email, password string) *entity.User {
	u, err := s.svc.Register(s.ctx, RegisterInput{Name: "Alice", Email: email, Password: password})
	s.Require().NoError(err)
	return u
}

func (s *AuthServiceSuite) TestRegisterCreatesPendingUserAndSendsLink() {
	u := s.register("alice@example.com", "s3cret-pass")

	s.Equal(entity.StatePending, u.State)
	s.NotEmpty(u.VerificationToken)
	s.NotEqual("s3cret-pass", u.PasswordHash)
	s.Equal([]string{entity.RoleUser}, u.Roles)

	s.Require().Len(s.sender.sent, 1)
	sent := s.sender.sent[0]
	s.Equal("alice@example.com", sent.to)
	s.Equal("Activa tu cuenta en Chambitas", sent.subject)
	s.Contains(sent.link, "http://localhost:5173/verify-email?token=")
	s.Equal(u.VerificationToken, s.sender.lastToken(s.T()))
}

func (s *AuthServiceSuite) TestRegisterValidation() {
	cases := map[string]RegisterInput{
		"name":     {Name: "  ", Email: "a@example.com", Password: "pw"},
		"email":    {Name: "A", Email: "", Password: "pw"},
		"password": {Name: "A", Email: "a@example.com", Password: ""},
	}
	for field, in := range cases {
		s.Run(field, func() {
			_, err := s.svc.Register(s.ctx, in)
			s.Require().ErrorIs(err, ErrValidation)
			var verr *ValidationError
			s.Require().ErrorAs(err, &verr)
			s.Contains(verr.Fields, field)
		})
	}
	_, err := s.svc.Register(s.ctx, RegisterInput{Name: "A", Email: "not-an-email", Password: "pw"})
	s.ErrorIs(err, ErrValidation)
	s.Empty(s.sender.sent)
}

func (s *AuthServiceSuite) TestRegisterDuplicate() {
	s.register("dup@example.com", "pw-one")
	_, err := s.svc.Register(s.ctx, RegisterInput{Name: "B", Email: "dup@example.com", Password: "pw-two"})
	s.ErrorIs(err, ErrDuplicateEmail)
	s.Len(s.sender.sent, 1)
}

func (s *AuthServiceSuite) TestConcurrentRegisterSameEmail() {
	const workers = 10
	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.Register(s.ctx, RegisterInput{Name: "Bob", Email: "bob@example.com", Password: "pw"})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrDuplicateEmail):
				dup.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), ok.Load())
	s.Equal(int32(workers-1), dup.Load())
}

func (s *AuthServiceSuite) TestLoginBeforeVerificationIsRejected() {
	s.register("pending@example.com", "right-pass")

	_, err := s.svc.Login(s.ctx, "pending@example.com", "right-pass")
	s.ErrorIs(err, ErrUnverifiedAccount)
	_, err = s.svc.Login(s.ctx, "pending@example.com", "wrong-pass")
	s.ErrorIs(err, ErrUnverifiedAccount)
}

func (s *AuthServiceSuite) TestFullLifecycle() {
	s.register("alice@example.com", "right-pass")
	token := s.sender.lastToken(s.T())

	verified, err := s.svc.VerifyEmail(s.ctx, token)
	s.Require().NoError(err)
	s.True(verified.IsVerified())
	s.Empty(verified.VerificationToken)
	s.Equal([]int64{verified.ID}, s.dir.indexed)

	res, err := s.svc.Login(s.ctx, "alice@example.com", "right-pass")
	s.Require().NoError(err)
	s.NotEmpty(res.Token)

	claims, err := s.svc.Authenticate(res.Token)
	s.Require().NoError(err)
	s.Equal(verified.ID, claims.UserID)
	s.Equal("alice@example.com", claims.Email)
	s.Equal([]string{entity.RoleUser}, claims.Roles)

	_, err = s.svc.Login(s.ctx, "alice@example.com", "wrong-pass")
	s.ErrorIs(err, ErrInvalidCredentials)

	_, err = s.svc.VerifyEmail(s.ctx, token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *AuthServiceSuite) TestLoginUnknownEmailLooksLikeWrongPassword() {
	_, err := s.svc.Login(s.ctx, "ghost@example.com", "whatever")
	s.ErrorIs(err, ErrInvalidCredentials)

	_, err = s.svc.Login(s.ctx, "", "")
	s.ErrorIs(err, ErrValidation)
}

func (s *AuthServiceSuite) TestLoginRejectsSuffixOfMaxLengthPassword() {
	pw := strings.Repeat("a", 72)
	s.register("long@example.com", pw)
	_, err := s.svc.VerifyEmail(s.ctx, s.sender.lastToken(s.T()))
	s.Require().NoError(err)

	_, err = s.svc.Login(s.ctx, "long@example.com", pw+"DIFFERENT-SUFFIX")
	s.ErrorIs(err, ErrInvalidCredentials)

	res, err := s.svc.Login(s.ctx, "long@example.com", pw)
	s.Require().NoError(err)
	s.NotEmpty(res.Token)
}

func (s *AuthServiceSuite) TestVerifyInvalidTokens() {
	for _, tok := range []string{"", "   ", "unknown-token"} {
		_, err := s.svc.VerifyEmail(s.ctx, tok)
		s.ErrorIs(err, ErrInvalidToken, "token %q", tok)
	}
}

func (s *AuthServiceSuite) TestConcurrentVerifySameToken() {
	s.register("race@example.com", "pw")
	token := s.sender.lastToken(s.T())

	const workers = 10
	var ok, invalid atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.VerifyEmail(s.ctx, token)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInvalidToken):
				invalid.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), ok.Load())
	s.Equal(int32(workers-1), invalid.Load())
}

func (s *AuthServiceSuite) TestDeliveryFailureKeepsAccount() {
	s.sender.err = errors.New("provider rejected")
	u, err := s.svc.Register(s.ctx, RegisterInput{Name: "C", Email: "carol@example.com", Password: "pw"})
	s.Require().ErrorIs(err, ErrDelivery)
	s.Require().NotNil(u)

	stored, err := s.repo.GetByEmail(s.ctx, "carol@example.com")
	s.Require().NoError(err)
	s.Equal(entity.StatePending, stored.State)

	_, err = s.svc.VerifyEmail(s.ctx, stored.VerificationToken)
	s.NoError(err)
}

func (s *AuthServiceSuite) TestDeliveryTimeout() {
	s.sender.block = true
	start := time.Now()
	u, err := s.svc.Register(s.ctx, RegisterInput{Name: "D", Email: "dave@example.com", Password: "pw"})
	s.ErrorIs(err, ErrDelivery)
	s.NotNil(u)
	s.Less(time.Since(start), 5*time.Second)
}

func (s *AuthServiceSuite) TestDirectoryFailureDoesNotFailVerification() {
	s.dir.err = errors.New("es unavailable")
	s.register("erin@example.com", "pw")
	_, err := s.svc.VerifyEmail(s.ctx, s.sender.lastToken(s.T()))
	s.NoError(err)
}

func (s *AuthServiceSuite) TestSessionTokenExpiry() {
	s.register("frank@example.com", "pw")
	_, err := s.svc.VerifyEmail(s.ctx, s.sender.lastToken(s.T()))
	s.Require().NoError(err)
	res, err := s.svc.Login(s.ctx, "frank@example.com", "pw")
	s.Require().NoError(err)

	_, err = s.svc.Authenticate(res.Token)
	s.Require().NoError(err)

	s.clock.advance(time.Hour + time.Minute)
	_, err = s.svc.Authenticate(res.Token)
	s.ErrorIs(err, ErrInvalidToken)

	_, err = s.svc.Authenticate("")
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *AuthServiceSuite) TestSearchUsers() {
	entries, err := s.svc.SearchUsers(s.ctx, "ali", 0)
	s.Require().NoError(err)
	s.Equal("ali", entries[0].Name)

	s.svc.Directory = nil
	entries, err = s.svc.SearchUsers(s.ctx, "ali", 5)
	s.Require().NoError(err)
	s.Empty(entries)
}

type failingHasher struct{}

func (failingHasher) Hash(string) (string, error) { return "", errors.New("out of memory") }
func (failingHasher) Verify(string, string) bool  { return false }

type failingTokens struct{ TokenCodec }

func (failingTokens) IssueVerificationToken() (string, error) { return "", errors.New("entropy") }

func TestRegister_InternalFailuresAreOpaque(t *testing.T) {
	jwtm := helpers.NewJWTManager("secret", "", time.Hour)
	tests := []struct {
		name   string
		hasher PasswordHasher
		tokens TokenCodec
	}{
		{name: "hasher", hasher: failingHasher{}, tokens: helpers.NewTokenCodec(jwtm)},
		{name: "token entropy", hasher: helpers.NewBcryptHasher(bcrypt.MinCost), tokens: failingTokens{helpers.NewTokenCodec(jwtm)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(memory.NewUserRepository(), tt.hasher, tt.tokens, &fakeSender{}, nil, nil, Options{VerifyEmailURL: "http://x/verify"})
			_, err := svc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@example.com", Password: "pw"})
			require.ErrorIs(t, err, ErrInternal)
			assert.NotContains(t, err.Error(), "out of memory")
			assert.NotContains(t, err.Error(), "entropy")
		})
	}
}

func TestVerificationLink(t *testing.T) {
	link, err := VerificationLink("http://localhost:5173/verify-email", "a+b/c")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5173/verify-email?token=a%2Bb%2Fc", link)

	link, err = VerificationLink("https://app.example.com/verify?lang=es", "tok")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/verify?lang=es&token=tok", link)
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"email": "is required", "name": "is required"}}
	assert.Equal(t, "validation failed: email is required, name is required", err.Error())
	assert.ErrorIs(t, err, ErrValidation)
}
