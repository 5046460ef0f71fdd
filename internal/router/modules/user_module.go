package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/chambitas-auth/internal/interface/http"
	"github.com/oksasatya/chambitas-auth/internal/interface/middleware"
)

// UserModule exposes the verified-user directory to authenticated callers.
type UserModule struct {
	Handler *handlers.UserHandler
	Auth    middleware.SessionAuthenticator
}

func NewUserModule(h *handlers.UserHandler, auth middleware.SessionAuthenticator) *UserModule {
	return &UserModule{Handler: h, Auth: auth}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/users")
	auth.Use(middleware.BearerAuth(m.Auth))
	auth.GET("/search", m.Handler.Search)
}
