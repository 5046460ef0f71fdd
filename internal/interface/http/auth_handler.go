package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/chambitas-auth/internal/application"
	"github.com/oksasatya/chambitas-auth/internal/interface/middleware"
	"github.com/oksasatya/chambitas-auth/pkg/helpers"
	"github.com/oksasatya/chambitas-auth/pkg/response"
	"github.com/oksasatya/chambitas-auth/pkg/validation"
)

type AuthHandler struct {
	Svc      *application.Service
	Logger   *logrus.Logger
	LoginURL string
}

func NewAuthHandler(svc *application.Service, logger *logrus.Logger, loginURL string) *AuthHandler {
	if logger == nil {
		logger = helpers.NewNopLogger()
	}
	return &AuthHandler{Svc: svc, Logger: logger, LoginURL: loginURL}
}

type registerRequest struct {
	Name     string `json:"name" binding:"nonblank,max=120"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,pwd"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type userView struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Roles      []string   `json:"roles"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

type loginView struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userView  `json:"user"`
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, validation.ToDetails(err))
		return
	}
	u, err := h.Svc.Register(c.Request.Context(), application.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if u != nil {
			h.Logger.WithFields(logrus.Fields{
				"request_id": c.GetString(middleware.CtxRequestIDKey),
				"user_id":    u.ID,
			}).Warn("registration kept without verification email")
		}
		writeError(c, err)
		return
	}
	h.Logger.WithFields(logrus.Fields{
		"request_id": c.GetString(middleware.CtxRequestIDKey),
		"ip":         c.GetString(middleware.CtxRealIPKey),
		"user_id":    u.ID,
	}).Info("registration accepted")
	response.Success[any](c, http.StatusCreated, nil, "registration successful, check your email to verify your account", nil)
}

// VerifyJSON POST /api/auth/verify and /api/auth/verify-email, token in body or query.
func (h *AuthHandler) VerifyJSON(c *gin.Context) {
	var req verifyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			bindError(c, validation.ToDetails(err))
			return
		}
	}
	if req.Token == "" {
		req.Token = c.Query("token")
	}
	if _, err := h.Svc.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		writeError(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, nil, "email verified, you can now log in", nil)
}

// VerifyPage GET /api/auth/verify and /api/auth/verify-email?token=, answered as HTML.
func (h *AuthHandler) VerifyPage(c *gin.Context) {
	_, err := h.Svc.VerifyEmail(c.Request.Context(), c.Query("token"))
	data := verifyPageData{LoginURL: h.LoginURL, OK: err == nil}
	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, application.ErrInvalidToken):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
		data.ServerError = true
	}
	var buf bytes.Buffer
	if err := verifyPage.Execute(&buf, data); err != nil {
		h.Logger.WithError(err).Error("render verify page")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, validation.ToDetails(err))
		return
	}
	res, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, loginView{
		Token:     res.Token,
		TokenType: "Bearer",
		ExpiresAt: res.ExpiresAt,
		User: userView{
			ID:         res.User.ID,
			Name:       res.User.Name,
			Email:      res.User.Email,
			Roles:      res.User.Roles,
			VerifiedAt: res.User.VerifiedAt,
		},
	}, "login successful", nil)
}

// Me GET /api/auth/me (bearer)
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error[any](c, http.StatusUnauthorized, "unauthorized", response.ErrorBody{Code: "unauthorized"})
		return
	}
	var exp *time.Time
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		exp = &t
	}
	response.Success(c, http.StatusOK, gin.H{
		"id":         claims.UserID,
		"name":       claims.Name,
		"email":      claims.Email,
		"roles":      claims.Roles,
		"expires_at": exp,
	}, "session valid", nil)
}

type verifyPageData struct {
	LoginURL    string
	OK          bool
	ServerError bool
}

var verifyPage = template.Must(template.New("verify").Parse(`<!doctype html>
<html lang="es">
<head><meta charset="utf-8"><title>Chambitas</title></head>
<body style="font-family:sans-serif;text-align:center;padding:48px">
{{if .OK}}
<h1>¡Correo verificado!</h1>
<p>Tu cuenta está activa. Ya puedes iniciar sesión.</p>
<p><a href="{{.LoginURL}}">Iniciar sesión</a></p>
{{else if .ServerError}}
<h1>Algo salió mal</h1>
<p>No pudimos verificar tu correo en este momento. Inténtalo de nuevo más tarde.</p>
{{else}}
<h1>Enlace inválido</h1>
<p>El enlace de verificación no es válido o ya fue utilizado.</p>
{{end}}
</body>
</html>
`))
