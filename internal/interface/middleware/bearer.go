package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/chambitas-auth/pkg/helpers"
	"github.com/oksasatya/chambitas-auth/pkg/response"
)

const (
	CtxUserIDKey = "userID"
	CtxClaimsKey = "claims"
)

// SessionAuthenticator verifies a raw session token.
type SessionAuthenticator interface {
	Authenticate(token string) (*helpers.SessionClaims, error)
}

// BearerAuth requires "Authorization: Bearer <session token>" and injects the
// verified claims and user id into the context.
func BearerAuth(auth SessionAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Error[any](c, http.StatusUnauthorized, "missing bearer token", response.ErrorBody{Code: "unauthorized"})
			c.Abort()
			return
		}
		claims, err := auth.Authenticate(token)
		if err != nil {
			response.Error[any](c, http.StatusUnauthorized, "invalid or expired session token", response.ErrorBody{Code: "unauthorized"})
			c.Abort()
			return
		}
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Claims returns the session claims stored by BearerAuth.
func Claims(c *gin.Context) (*helpers.SessionClaims, bool) {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*helpers.SessionClaims)
	return claims, ok
}
