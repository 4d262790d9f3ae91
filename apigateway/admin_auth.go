package gateway

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/tplumina/lumina/apperr"
)

// AdminAuthConfig guards operator endpoints such as /metrics.
type AdminAuthConfig struct {
	Key      string
	User     string
	Password string
	Debug    bool
}

func (cfg AdminAuthConfig) keyMatches(got string) bool {
	got = strings.TrimSpace(got)
	return cfg.Key != "" && got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(cfg.Key)) == 1
}

// RequireAdmin accepts X-Admin-Key or HTTP Basic auth. The guard is open
// in debug mode and when no credentials are configured at all.
func RequireAdmin(cfg AdminAuthConfig) fiber.Handler {
	denied := func(*fiber.Ctx) error {
		return apperr.With(apperr.ErrUnauthorized, "unauthorized")
	}
	basic := denied
	if cfg.User != "" && cfg.Password != "" {
		basic = basicauth.New(basicauth.Config{
			Users:        map[string]string{cfg.User: cfg.Password},
			Realm:        "lumina",
			Unauthorized: denied,
		})
	}
	open := cfg.Debug || (cfg.Key == "" && (cfg.User == "" || cfg.Password == ""))

	return func(c *fiber.Ctx) error {
		if open || cfg.keyMatches(c.Get("X-Admin-Key")) {
			return c.Next()
		}
		return basic(c)
	}
}
