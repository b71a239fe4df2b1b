package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/vilanovax/bizbuzz/internal/dto"
)

func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set("request_id", requestID)

		start := time.Now()
		c.Next()

		zlog.Logger.Info().
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	}
}

// bearerUserID extracts the account id from an HS256 bearer token issued by
// the platform's account service. Token issuance lives there, not here.
func bearerUserID(c *gin.Context, secret string) (int64, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return 0, false
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false
	}
	id, ok := claims["user_id"].(float64)
	if !ok {
		return 0, false
	}
	return int64(id), true
}

// OptionalAuth attaches the caller's user id when a valid token is present
// and lets the request through either way. Registration accepts both
// authenticated users and guests.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := bearerUserID(c, secret); ok {
			c.Set("user_id", id)
		}
		c.Next()
	}
}

// RequireAuth guards the organizer management endpoints.
func RequireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := bearerUserID(c, secret)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Response{
				Status: "error",
				Error:  &dto.Error{Code: dto.Unauthorized, Desc: "Missing or invalid token"},
			})
			return
		}
		c.Set("user_id", id)
		c.Next()
	}
}
