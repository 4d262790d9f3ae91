package gateway

import (
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// LogSamplingConfig throttles access logs. Errors and requests slower than
// After are always logged; other requests at most once per Tick.
type LogSamplingConfig struct {
	Tick  time.Duration
	After time.Duration
}

type logSampler struct {
	cfg  LogSamplingConfig
	next atomic.Int64 // unix nanos of the next sampled slot
}

func (s *logSampler) keep(status int, took time.Duration) bool {
	if status >= fiber.StatusInternalServerError || status == fiber.StatusUnauthorized {
		return true
	}
	if s.cfg.After > 0 && took >= s.cfg.After {
		return true
	}
	if s.cfg.Tick <= 0 {
		return true
	}
	now := time.Now().UnixNano()
	next := s.next.Load()
	if now < next {
		return false
	}
	return s.next.CompareAndSwap(next, now+int64(s.cfg.Tick))
}

// RequestLogger writes one structured line per sampled request.
func RequestLogger(logger *logrus.Logger, cfg LogSamplingConfig) fiber.Handler {
	sampler := &logSampler{cfg: cfg}
	base := logger.WithField("logger", "lumina.http")
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		took := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			status = errorStatus(err)
		}
		if !sampler.keep(status, took) {
			return err
		}

		fields := logrus.Fields{
			"request_id":  RequestIDFromCtx(c),
			"method":      c.Method(),
			"path":        routeOf(c),
			"status":      status,
			"duration_ms": took.Milliseconds(),
			"bytes_in":    len(c.Body()),
			"bytes_out":   len(c.Response().Body()),
			"ip":          c.IP(),
		}
		if p, ok := PrincipalFromCtx(c); ok {
			fields["uid"] = p.UID
			fields["role"] = p.Role
		}
		if id := c.Params("tenant_id"); id != "" {
			fields["tenant_id"] = id
		}
		if err != nil {
			fields["error"] = err.Error()
		}

		entry := base.WithFields(fields)
		switch {
		case status >= fiber.StatusInternalServerError:
			entry.Error("request")
		case status >= fiber.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
		return err
	}
}

// routeOf prefers the registered route pattern so ids stay out of the path.
func routeOf(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" {
		return r.Path
	}
	return c.Path()
}
