package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"progress-tracker-backend/internal/config"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/workflow"
)

const (
	UserIDKey = "user_id"
	RoleKey   = "role"
)

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: message,
	})
}

// AuthMiddleware verifies a Supabase HS256 access token and stores the
// user id and staff role in the context. Tokens without a role claim are
// treated as workers.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "missing authorization header")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(c, "invalid authorization header format")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			unauthorized(c, "empty token")
			return
		}

		// Some clients URL-encode the token
		if decoded, err := url.QueryUnescape(tokenString); err == nil {
			tokenString = decoded
		}

		if len(strings.Split(tokenString, ".")) != 3 {
			unauthorized(c, "JWT token must have 3 parts separated by dots")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			if cfg.SupabaseJWTSecret == "" {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.SupabaseJWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))

		if err != nil {
			var message string
			switch {
			case strings.Contains(err.Error(), "signature is invalid"):
				message = "token signature is invalid - check JWT secret"
			case strings.Contains(err.Error(), "token is expired"):
				message = "token has expired"
			case strings.Contains(err.Error(), "could not JSON decode"):
				message = "token is malformed - ensure you're using a valid Supabase JWT token"
			default:
				message = err.Error()
			}
			unauthorized(c, message)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			unauthorized(c, "invalid token claims")
			return
		}

		sub, ok := claims["sub"].(string)
		if !ok || sub == "" {
			unauthorized(c, "missing user id in token")
			return
		}

		c.Set(UserIDKey, sub)
		c.Set(RoleKey, roleFromClaims(claims))
		c.Next()
	}
}

// roleFromClaims reads app_metadata.role, which only the service role can
// write in Supabase.
func roleFromClaims(claims jwt.MapClaims) workflow.Role {
	meta, ok := claims["app_metadata"].(map[string]interface{})
	if !ok {
		return workflow.RoleWorker
	}
	raw, _ := meta["role"].(string)
	role, err := workflow.ParseRole(raw)
	if err != nil {
		return workflow.RoleWorker
	}
	return role
}

// RoleFromContext returns the role set by AuthMiddleware.
func RoleFromContext(c *gin.Context) workflow.Role {
	if v, ok := c.Get(RoleKey); ok {
		if role, ok := v.(workflow.Role); ok {
			return role
		}
	}
	return workflow.RoleWorker
}

// UserIDFromContext returns the JWT subject set by AuthMiddleware, or ""
// when the request is unauthenticated.
func UserIDFromContext(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// RequireRole rejects requests whose role is not one of roles.
func RequireRole(roles ...workflow.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := RoleFromContext(c)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{
			Error:   "forbidden",
			Message: "role " + string(role) + " may not perform this action",
		})
	}
}
