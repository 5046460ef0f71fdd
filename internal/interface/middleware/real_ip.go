package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

const CtxRealIPKey = "real_ip"

// RealIP stores the client IP under "real_ip". Proxy headers are read in
// order (CF-Connecting-IP, then the left-most X-Forwarded-For entry) only
// when trustProxy is set; otherwise gin's ClientIP is used.
func RealIP(trustProxy bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := ""
		if trustProxy {
			ip = headerIP(c.GetHeader("CF-Connecting-IP"))
			if ip == "" {
				first, _, _ := strings.Cut(c.GetHeader("X-Forwarded-For"), ",")
				ip = headerIP(first)
			}
		}
		if ip == "" {
			ip = c.ClientIP()
		}
		c.Set(CtxRealIPKey, ip)
		c.Next()
	}
}

func headerIP(v string) string {
	if parsed := net.ParseIP(strings.TrimSpace(v)); parsed != nil {
		return parsed.String()
	}
	return ""
}
