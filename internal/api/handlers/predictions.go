/**
 * @description
 * Prediction API Handlers.
 * Read surface over the cached prediction records, their price history and
 * the live price stream.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/store
 * - backend/internal/services
 */

package handlers

import (
	"bufio"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/swipe-markets/backend/internal/services"
	"github.com/swipe-markets/backend/internal/store"
)

const (
	maxHistoryLimit = services.MaxPricePoints
	streamHeartbeat = 15 * time.Second
)

type PredictionHandler struct {
	Predictions *store.PredictionStore
	History     *services.PriceHistory
	Hub         *services.PriceStreamHub
}

func NewPredictionHandler(predictions *store.PredictionStore, history *services.PriceHistory, hub *services.PriceStreamHub) *PredictionHandler {
	return &PredictionHandler{Predictions: predictions, History: history, Hub: hub}
}

// GetActive returns open predictions whose deadline has not passed
// GET /api/v1/predictions/active
func (h *PredictionHandler) GetActive(c *fiber.Ctx) error {
	predictions, err := h.Predictions.ListActive(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(predictions)
}

// GetPrediction returns one cached record
// GET /api/v1/predictions/:id
func (h *PredictionHandler) GetPrediction(c *fiber.Ctx) error {
	p, err := h.Predictions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if p == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Prediction not found"})
	}
	return c.JSON(p)
}

// GetHistory returns the newest price points, oldest first
// GET /api/v1/predictions/:id/history?limit=
func (h *PredictionHandler) GetHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 || limit > maxHistoryLimit {
		return badRequest(c, fmt.Sprintf("limit must be between 0 and %d", maxHistoryLimit))
	}
	points, err := h.History.Get(c.Context(), c.Params("id"), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"predictionId": c.Params("id"), "points": points})
}

// StreamPrices streams appended price points over SSE
// GET /api/v1/predictions/stream?predictionId=
func (h *PredictionHandler) StreamPrices(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	updates, unsubscribe := h.Hub.Subscribe(c.Query("predictionId"))
	requestDone := c.Context().Done()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		fmt.Fprint(w, ": connected\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case <-requestDone:
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
			case payload, ok := <-updates:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", payload)
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})

	return nil
}
