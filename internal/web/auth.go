package web

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/golang-jwt/jwt/v4"

	appLog "github.com/hariharan888/faith-admin/internal/log"
)

// actorKey holds the authenticated identity in fiber Locals.
const actorKey = "actor"

func (s *Server) authMode() string {
	switch {
	case s.cfg.JWTSecret != "":
		return "jwt"
	case s.basicAuthEnabled():
		return "basic"
	}
	return "none"
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable it.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// authMiddleware guards the admin routes. A JWT secret takes precedence over
// basic auth; with neither configured the routes are open.
func (s *Server) authMiddleware() fiber.Handler {
	switch s.authMode() {
	case "jwt":
		return s.jwtMiddleware()
	case "basic":
		username := s.cfg.BasicAuth.Username
		password := s.cfg.BasicAuth.Password
		return basicauth.New(basicauth.Config{
			Realm: "faith-admin",
			Authorizer: func(u, p string) bool {
				return secureCompare(u, username) && secureCompare(p, password)
			},
			Unauthorized: func(c *fiber.Ctx) error {
				c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="faith-admin", charset="UTF-8"`)
				return writeError(c, fiber.StatusUnauthorized, "Unauthorized")
			},
			ContextUsername: actorKey,
		})
	}
	appLog.Warn("admin API has no authentication configured")
	return func(c *fiber.Ctx) error { return c.Next() }
}

// jwtMiddleware accepts HS256 bearer tokens signed with cfg.JWTSecret. The
// subject claim becomes the actor.
func (s *Server) jwtMiddleware() fiber.Handler {
	secret := []byte(s.cfg.JWTSecret)
	return func(c *fiber.Ctx) error {
		authz := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
			return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
		}
		raw := strings.TrimSpace(authz[7:])

		tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
		}
		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
		}
		sub, _ := claims["sub"].(string)
		if strings.TrimSpace(sub) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Token has no subject")
		}
		c.Locals(actorKey, sub)
		return c.Next()
	}
}

// actor returns the authenticated identity, or "anonymous".
func actor(c *fiber.Ctx) string {
	if a, ok := c.Locals(actorKey).(string); ok && a != "" {
		return a
	}
	return "anonymous"
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
