package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/chambitas-auth/internal/interface/http"
	"github.com/oksasatya/chambitas-auth/internal/interface/middleware"
)

// AuthModule wires the credential lifecycle routes.
// Public: POST /auth/register, GET|POST /auth/verify, GET|POST /auth/verify-email, POST /auth/login
// Bearer: GET /auth/me
type AuthModule struct {
	Handler *handlers.AuthHandler
	Auth    middleware.SessionAuthenticator
}

func NewAuthModule(h *handlers.AuthHandler, auth middleware.SessionAuthenticator) *AuthModule {
	return &AuthModule{Handler: h, Auth: auth}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	g := rg.Group("/auth")
	g.POST("/register", m.Handler.Register)
	g.POST("/login", m.Handler.Login)
	for _, p := range []string{"/verify", "/verify-email"} {
		g.GET(p, m.Handler.VerifyPage)
		g.POST(p, m.Handler.VerifyJSON)
	}

	g.GET("/me", middleware.BearerAuth(m.Auth), m.Handler.Me)
}
