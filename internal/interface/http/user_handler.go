package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/chambitas-auth/internal/application"
	"github.com/oksasatya/chambitas-auth/pkg/response"
)

type UserHandler struct {
	Svc *application.Service
}

func NewUserHandler(svc *application.Service) *UserHandler {
	return &UserHandler{Svc: svc}
}

// Search GET /api/users/search?q=&size= over the verified-user directory.
func (h *UserHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		bindError(c, map[string]string{"q": "is required"})
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	entries, err := h.Svc.SearchUsers(c.Request.Context(), q, size)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, entries, "ok", map[string]any{"count": len(entries)})
}
