package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-feed/internal/domain"
	"chat-feed/internal/service"
)

const (
	authClaimsKey    = "auth_claims"
	accessTokenQuery = "access_token"
)

// JWTAuthMiddleware valida JWT access tokens y guarda claims en el contexto.
// Los navegadores no pueden mandar headers en el handshake de websocket, por eso
// tambien se acepta ?access_token=.
func JWTAuthMiddleware(jwtSvc *service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
			c.Abort()
			return
		}

		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		claims, err := jwtSvc.ParseAccessToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header != "" {
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			return ""
		}
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return strings.TrimSpace(c.Query(accessTokenQuery))
}

// GetAuthClaims obtiene claims de JWT desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}

func currentViewer(c *gin.Context) (domain.Viewer, bool) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		return domain.Viewer{}, false
	}
	return claims.Viewer(), true
}
