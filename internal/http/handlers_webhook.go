package http

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

func webhookRegisterHandler(c *fiber.Ctx) error {
	var body WebhookRegisterRequest
	if err := c.BodyParser(&body); err != nil {
		return writeError(c, invalidJSON(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := servicesFrom(c).Webhooks.Register(ctx, body.TargetURL, body.CallbackURL, body.EventType)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(WebhookRegisterResponse{
		Status:         "success",
		Message:        "Webhook registered successfully",
		SubscriptionID: sub.ID,
	})
}

// webhookSimulateHandler fires the synthetic event at the subscription's
// callback once and relays what the callback answered.
func webhookSimulateHandler(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	cfg := configFrom(c)
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Webhook.TimeoutMs)*time.Millisecond+2*time.Second)
	defer cancel()

	d, err := servicesFrom(c).Webhooks.Simulate(ctx, id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(WebhookSimulateResponse{
		Status:                 "success",
		Message:                "Webhook execution simulated successfully.",
		CallbackResponseStatus: d.StatusCode,
		CallbackResponseText:   d.Body,
	})
}
