package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/chambitas-auth/internal/domain/entity"
	repo "github.com/oksasatya/chambitas-auth/internal/domain/repository"
	"github.com/oksasatya/chambitas-auth/pkg/helpers"
	"github.com/oksasatya/chambitas-auth/pkg/validation"
)

// PasswordHasher is the one-way credential transform. Verify never errors on mismatch.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// TokenCodec issues single-use verification tokens and signed session tokens.
type TokenCodec interface {
	IssueVerificationToken() (string, error)
	IssueSessionToken(s helpers.SessionSubject) (string, time.Time, error)
	VerifySessionToken(token string) (*helpers.SessionClaims, error)
}

// EmailSender delivers a verification link. Template rendering and provider
// selection are the sender's concern.
type EmailSender interface {
	SendVerification(ctx context.Context, to, subject, link string) error
}

type Options struct {
	VerifyEmailURL  string
	VerifySubject   string
	MailSendTimeout time.Duration
	DefaultRoles    []string
}

// Service owns the credential lifecycle: Pending on registration, Verified
// after the emailed token is consumed, then eligible for login.
type Service struct {
	Repo      repo.UserRepository
	Hasher    PasswordHasher
	Tokens    TokenCodec
	Mail      EmailSender
	Directory UserDirectory
	Logger    *logrus.Logger
	opts      Options

	dummyOnce sync.Once
	dummyHash string
}

func NewService(r repo.UserRepository, hasher PasswordHasher, tokens TokenCodec, mail EmailSender, dir UserDirectory, logger *logrus.Logger, opts Options) *Service {
	if opts.MailSendTimeout <= 0 {
		opts.MailSendTimeout = 10 * time.Second
	}
	if opts.VerifySubject == "" {
		opts.VerifySubject = "Verify your email address"
	}
	if len(opts.DefaultRoles) == 0 {
		opts.DefaultRoles = entity.DefaultRoles()
	}
	if logger == nil {
		logger = helpers.NewNopLogger()
	}
	return &Service{
		Repo:      r,
		Hasher:    hasher,
		Tokens:    tokens,
		Mail:      mail,
		Directory: dir,
		Logger:    logger,
		opts:      opts,
	}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register creates a Pending account and emails its verification link.
// If the email cannot be handed off the account is kept and the returned
// error matches ErrDelivery alongside a non-nil user.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	if err := validateRegister(in); err != nil {
		return nil, err
	}
	log := s.Logger.WithField("email", helpers.MaskEmail(in.Email))

	if _, err := s.Repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, s.internal(log, "lookup email", err)
	}

	// Hashing is CPU bound and runs before, not inside, the repository's critical section.
	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, helpers.ErrPasswordTooLong) {
			return nil, &ValidationError{Fields: map[string]string{"password": "must be at most 72 bytes"}}
		}
		return nil, s.internal(log, "hash password", err)
	}
	token, err := s.Tokens.IssueVerificationToken()
	if err != nil {
		return nil, s.internal(log, "issue verification token", err)
	}

	u := entity.NewPendingUser(in.Name, in.Email, hash, token, s.opts.DefaultRoles)
	if err := s.Repo.Create(ctx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, s.internal(log, "create user", err)
	}
	registrationsTotal.Add(1)
	log = log.WithField("user_id", u.ID)
	log.Info("user registered")

	link, err := VerificationLink(s.opts.VerifyEmailURL, token)
	if err == nil {
		sendCtx, cancel := context.WithTimeout(ctx, s.opts.MailSendTimeout)
		err = s.Mail.SendVerification(sendCtx, u.Email, s.opts.VerifySubject, link)
		cancel()
	}
	if err != nil {
		deliveryFailuresTotal.Add(1)
		log.WithError(err).Warn("verification email not delivered; account kept")
		return u, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return u, nil
}

// VerifyEmail consumes a verification token. Unknown, empty and already used
// tokens are indistinguishable to the caller.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*entity.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	u, err := s.Repo.GetByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, s.internal(s.Logger.WithField("op", "verify"), "lookup token", err)
	}
	verified, err := s.Repo.MarkVerified(ctx, u.ID)
	if err != nil {
		// a concurrent request consumed the token first
		if errors.Is(err, repo.ErrNotPending) {
			return nil, ErrInvalidToken
		}
		return nil, s.internal(s.Logger.WithField("user_id", u.ID), "mark verified", err)
	}
	verificationsTotal.Add(1)
	s.Logger.WithField("user_id", verified.ID).Info("email verified")
	s.index(ctx, verified)
	return verified, nil
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *entity.User
}

// Login never reveals whether the email exists: unknown email and wrong
// password both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(email) == "" {
		verr.add("email", "is required")
	}
	if password == "" {
		verr.add("password", "is required")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	log := s.Logger.WithField("email", helpers.MaskEmail(email))

	u, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.Hasher.Verify(password, s.dummy())
			loginFailuresTotal.Add(1)
			return nil, ErrInvalidCredentials
		}
		return nil, s.internal(log, "lookup email", err)
	}
	if !u.IsVerified() {
		loginFailuresTotal.Add(1)
		return nil, ErrUnverifiedAccount
	}
	if !s.Hasher.Verify(password, u.PasswordHash) {
		loginFailuresTotal.Add(1)
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.Tokens.IssueSessionToken(helpers.SessionSubject{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Roles:  slices.Clone(u.Roles),
	})
	if err != nil {
		return nil, s.internal(log.WithField("user_id", u.ID), "issue session token", err)
	}
	loginsTotal.Add(1)
	log.WithField("user_id", u.ID).Info("login succeeded")
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

// Authenticate verifies a bearer session token.
func (s *Service) Authenticate(token string) (*helpers.SessionClaims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims, err := s.Tokens.VerifySessionToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerificationLink appends the token as a query parameter to base.
func VerificationLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func validateRegister(in RegisterInput) error {
	verr := &ValidationError{}
	if msg := validation.Field(in.Name, "nonblank,max=120"); msg != "" {
		verr.add("name", msg)
	}
	if msg := validation.Field(in.Email, "required,email"); msg != "" {
		verr.add("email", msg)
	}
	if msg := validation.Field(in.Password, "required,pwd"); msg != "" {
		verr.add("password", msg)
	}
	return verr.orNil()
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash("chambitas-timing-equalizer")
	})
	return s.dummyHash
}

func (s *Service) internal(log *logrus.Entry, op string, err error) error {
	log.WithError(err).WithField("op", op).Error("internal failure")
	return fmt.Errorf("%w: %s", ErrInternal, op)
}
