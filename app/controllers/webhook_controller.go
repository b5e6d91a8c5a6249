package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HandleWebhook ingests a gateway notification. The gateway retries anything
// that does not come back 2xx quickly, so this handler always acknowledges:
// storage or processing failures are logged and surface through the stored
// event's error fields and the reprocess endpoint, never through the response.
func HandleWebhook(c *fiber.Ctx) error {
	raw := make([]byte, len(c.Body()))
	copy(raw, c.Body())

	event, created, err := processor.StoreEvent(raw, c.IP())
	if err != nil {
		log.Errorf("[Webhook] Failed to store event from %s: %v", c.IP(), err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	}

	if !created {
		log.Infof("[Webhook] Duplicate delivery of event %d (key %s)", event.ID, event.IdempotencyKey)
	}
	if !event.Processed {
		if err := processor.Process(event.ID); err != nil {
			log.Errorf("[Webhook] Processing event %d failed: %v", event.ID, err)
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}
