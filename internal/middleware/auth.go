package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"tabflow/internal/config"
	"tabflow/internal/domain"
)

const (
	ContextKeyNamespace = "namespace"
	ContextKeySubject   = "subject"

	// DefaultNamespace scopes saved mappings when auth is disabled.
	DefaultNamespace = "default"
)

// Claims is the payload of a host-signed bearer token. Namespace scopes saved
// mappings so different host tenants never see each other's.
type Claims struct {
	Namespace string `json:"namespace"`
	jwt.RegisteredClaims
}

// AuthMiddleware returns Gin middleware that validates host-signed HS256
// tokens and injects the caller's namespace. An empty secret disables auth
// entirely: every request runs in the default namespace.
func AuthMiddleware(cfg *config.AuthConfig) gin.HandlerFunc {
	if cfg.Secret == "" {
		return func(c *gin.Context) {
			c.Set(ContextKeyNamespace, DefaultNamespace)
			c.Next()
		}
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			abortUnauthorized(c, "missing or invalid authorization header")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := validateToken(token, cfg)
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		namespace := claims.Namespace
		if namespace == "" {
			namespace = DefaultNamespace
		}
		c.Set(ContextKeyNamespace, namespace)
		c.Set(ContextKeySubject, claims.Subject)
		c.Next()
	}
}

func validateToken(token string, cfg *config.AuthConfig) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !parsed.Valid {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   gin.H{"code": "UNAUTHORIZED", "message": msg},
	})
}

// GetNamespace extracts the caller's namespace from the Gin context.
func GetNamespace(c *gin.Context) string {
	val, exists := c.Get(ContextKeyNamespace)
	if !exists {
		return DefaultNamespace
	}
	return val.(string)
}
