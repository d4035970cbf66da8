package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	userIDKey    = "auth_user_id"
	userNameKey  = "auth_user_name"
	userRolesKey = "auth_user_roles"
)

// Claims carried in the HMS access token.
type Claims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// JWTMiddleware validates a Bearer token signed with the shared HS256 secret
// and stores the caller's identity on the echo context.
func JWTMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(userIDKey, claims.Subject)
			c.Set(userNameKey, claims.Name)
			c.Set(userRolesKey, claims.Roles)
			return next(c)
		}
	}
}

// DevAuthMiddleware grants every request an admin identity. Development only.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(userIDKey, "dev-user")
			c.Set(userNameKey, "Development User")
			c.Set(userRolesKey, []string{"admin"})
			return next(c)
		}
	}
}

// RequireRole rejects requests whose token carries none of the given roles.
// The admin role always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles)+1)
	allowed["admin"] = true
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles, _ := c.Get(userRolesKey).([]string)
			for _, r := range userRoles {
				if allowed[r] {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
		}
	}
}

// UserID returns the authenticated caller's id, or "" when unauthenticated.
func UserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

// UserName returns the authenticated caller's display name.
func UserName(c echo.Context) string {
	name, _ := c.Get(userNameKey).(string)
	return name
}
