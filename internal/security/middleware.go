package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireGuard: 保護操作用ミドルウェア。
// PIN未設定なら常に通す（RequireIfSet契約）。設定済みなら
// Authorization: Bearer <grace token> を要求する。
func RequireGuard(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !svc.HasPin() {
			c.Next()
			return
		}

		h := c.GetHeader("Authorization")
		if h == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "pin verification required"})
			return
		}
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}
		if !svc.CheckGraceToken(strings.TrimSpace(parts[1])) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired grace token"})
			return
		}
		c.Next()
	}
}
