package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/liverlink/liverlink-backend/internal/logger"
)

// OperatorAuth guards mutating routes with a static bearer token shared with
// the coordination dashboard. An empty configured token disables the check,
// which is only acceptable in local development.
type OperatorAuth struct {
	log   *logger.Logger
	token string
}

func NewOperatorAuth(log *logger.Logger, token string) *OperatorAuth {
	return &OperatorAuth{
		log:   log.With("Middleware", "OperatorAuth"),
		token: strings.TrimSpace(token),
	}
}

func (oa *OperatorAuth) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if oa.token == "" {
			c.Next()
			return
		}
		presented := extractToken(c)
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(oa.token)) != 1 {
			oa.log.Warn("Rejected operator token")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
