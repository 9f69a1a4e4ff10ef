package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"edge-gatekeeper/internal/domain"
)

// AdminAuth exige "Authorization: Bearer <ADMIN_TOKEN>" nas rotas administrativas.
// Sem token configurado toda chamada é recusada.
func AdminAuth(token string, log domain.Logger) gin.HandlerFunc {
	expected := []byte(token)

	return func(c *gin.Context) {
		provided, ok := ExtractBearerToken(c.GetHeader("Authorization"))
		if len(expected) > 0 && ok && subtle.ConstantTimeCompare([]byte(provided), expected) == 1 {
			c.Next()
			return
		}

		if log != nil {
			log.WithContext(c.Request.Context()).Warn("Admin request rejected", map[string]interface{}{
				"path":       c.Request.URL.Path,
				"client_ip":  ExtractClientIP(c),
				"configured": len(expected) > 0,
			})
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "A valid admin token is required",
		})
	}
}
