package http

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"bizapi/internal/apperr"
	"bizapi/internal/config"
	"bizapi/internal/quota"
)

// quotaMiddleware counts free calls per client identity and rejects them
// once the free tier is used up. Callers presenting a premium plan in the
// configured header pass without being counted.
func quotaMiddleware(cfg *config.Config, limiter *quota.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}

		premium := limiter.IsPremium(c.Get(cfg.Quota.PremiumHeader))
		identity := quota.ClientIdentity(c.Get(fiber.HeaderXForwardedFor), c.IP())

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		d, err := limiter.Admit(ctx, identity, premium)
		if !d.Premium && d.Count > 0 {
			c.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			c.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining(), 10))
		}
		if err != nil {
			return writeError(c, err)
		}

		c.Locals("premium", premium)
		return c.Next()
	}
}

// writeError renders err as the JSON failure envelope with the status its
// kind maps to.
func writeError(c *fiber.Ctx, err error) error {
	ae := apperr.As(err)
	c.Locals("error_code", ae.Code)

	msg := ae.Error()
	if ae.Kind == apperr.KindInternal {
		msg = "internal error"
	}

	return c.Status(ae.Status()).JSON(ErrorResponse{
		Success: false,
		Code:    ae.Code,
		Error:   msg,
		Phase:   ae.Phase,
		Raw:     ae.Raw,
	})
}

// errorHandler maps errors that escape handlers (routing misses, body
// limits, recovered panics) into the same envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := "INTERNAL_ERROR"
		switch fe.Code {
		case fiber.StatusNotFound:
			code = "NOT_FOUND"
		case fiber.StatusMethodNotAllowed:
			code = "METHOD_NOT_ALLOWED"
		case fiber.StatusRequestEntityTooLarge:
			code = "PAYLOAD_TOO_LARGE"
		default:
			if fe.Code >= 400 && fe.Code < 500 {
				code = "BAD_REQUEST"
			}
		}
		c.Locals("error_code", code)
		return c.Status(fe.Code).JSON(ErrorResponse{
			Success: false,
			Code:    code,
			Error:   fe.Message,
		})
	}
	return writeError(c, err)
}

func missingParam(name string) error {
	return apperr.Input("MISSING_PARAMETER", "Missing required parameter '"+name+"'", nil)
}

func invalidJSON(err error) error {
	return apperr.Input("BAD_REQUEST_INVALID_JSON", "Bad request, malformed JSON", err)
}
