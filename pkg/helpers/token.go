package helpers

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"time"
)

// VerificationTokenBytes gives 256 bits of entropy per verification token.
const VerificationTokenBytes = 32

// TokenCodec issues opaque verification tokens and signed session tokens.
type TokenCodec struct {
	jwt     *JWTManager
	entropy io.Reader
}

func NewTokenCodec(jwt *JWTManager) *TokenCodec {
	return &TokenCodec{jwt: jwt, entropy: rand.Reader}
}

func (c *TokenCodec) IssueVerificationToken() (string, error) {
	b := make([]byte, VerificationTokenBytes)
	if _, err := io.ReadFull(c.entropy, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (c *TokenCodec) IssueSessionToken(s SessionSubject) (string, time.Time, error) {
	return c.jwt.GenerateSessionToken(s)
}

func (c *TokenCodec) VerifySessionToken(token string) (*SessionClaims, error) {
	return c.jwt.ParseSessionToken(token)
}
