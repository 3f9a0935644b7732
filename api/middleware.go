package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"subsai/config"

	"github.com/gin-gonic/gin"
)

// tokenQueryParam lets EventSource clients, which cannot set headers,
// authenticate the progress stream.
const tokenQueryParam = "token"

// AuthMiddleware guards the API with the shared AUTH_KEY when AUTH_ENABLE is set.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.AuthEnable {
			c.Next()
			return
		}

		token, reason := requestToken(c)
		if reason != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.AuthKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Next()
	}
}

// requestToken returns the bearer token, or a reason why none was usable.
func requestToken(c *gin.Context) (string, string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query(tokenQueryParam); token != "" && c.Request.Method == http.MethodGet {
			return token, ""
		}
		return "", "Authorization header required"
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" || strings.Contains(token, " ") {
		return "", "Invalid Authorization header format"
	}
	return token, ""
}
