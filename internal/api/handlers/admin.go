/**
 * @description
 * Admin API Handlers.
 * Operator tools for reconciliation: manual syncs, drift reports, counter
 * repair, route registration and the sync run history.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 * - backend/internal/registry
 *
 * @notes
 * - Mounted behind middleware.AdminOnly.
 * - Batch endpoints always answer 200 with per-id results; one failed id is
 *   reported in its result, never as the response status.
 */

package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/swipe-markets/backend/internal/api/middleware"
	"github.com/swipe-markets/backend/internal/chain"
	"github.com/swipe-markets/backend/internal/logger"
	"github.com/swipe-markets/backend/internal/registry"
	"github.com/swipe-markets/backend/internal/services"
	"github.com/swipe-markets/backend/internal/store"
)

const maxSyncBatch = 500

type AdminHandler struct {
	Reconciler  *services.Reconciler
	Routes      registry.Registry
	Runs        registry.RunLog
	Tasks       *services.TaskService
	Predictions *store.PredictionStore
	Notifier    *services.Notifier
}

type SyncRequest struct {
	IDs []string `json:"ids"`
	All bool     `json:"all"`
}

type RegisterRouteRequest struct {
	PredictionID    string `json:"predictionId"`
	Version         string `json:"version"`
	OnchainID       string `json:"onchainId"`
	ContractAddress string `json:"contractAddress"`
}

// Sync mirrors the given ids, or every registered id when all is set
// POST /api/v1/admin/sync
func (h *AdminHandler) Sync(c *fiber.Ctx) error {
	var req SyncRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body", "details": err.Error()})
	}

	trigger := "admin"
	if sub, err := middleware.GetSubject(c); err == nil {
		trigger = "admin:" + sub
	}

	if req.All {
		batch, err := h.Reconciler.SyncAllKnown(c.Context(), trigger)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(batch)
	}

	if len(req.IDs) == 0 {
		return badRequest(c, "ids is required unless all is set")
	}
	if len(req.IDs) > maxSyncBatch {
		return badRequest(c, "at most "+strconv.Itoa(maxSyncBatch)+" ids per request")
	}
	logger.Info("Admin sync of %d ids requested by %s", len(req.IDs), trigger)
	return c.JSON(h.Reconciler.SyncMany(c.Context(), req.IDs, trigger))
}

// Compare reports drift between the routed pool and the cached record
// GET /api/v1/admin/sync/:id/compare
func (h *AdminHandler) Compare(c *fiber.Ctx) error {
	report, err := h.Reconciler.Compare(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, chain.ErrTransientRead) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
		return respondError(c, err)
	}
	return c.JSON(report)
}

// CheckDrift runs one drift pass over every registered prediction
// POST /api/v1/admin/drift
func (h *AdminHandler) CheckDrift(c *fiber.Ctx) error {
	summary, err := h.Reconciler.CheckDrift(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(summary)
}

// ListRuns returns the most recent batch sync runs
// GET /api/v1/admin/sync/runs?limit=
func (h *AdminHandler) ListRuns(c *fiber.Ctx) error {
	runs, err := h.Runs.Recent(c.Context(), c.QueryInt("limit", 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(runs)
}

// RecountAchievement repairs one achievement counter
// POST /api/v1/admin/achievements/:taskType/recount
func (h *AdminHandler) RecountAchievement(c *fiber.Ctx) error {
	report, err := h.Tasks.RecountAchievement(c.Context(), c.Params("taskType"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// ResetTaskStats zeroes a task counter; ?resetUsers=true also clears its users set
// POST /api/v1/admin/tasks/:taskType/reset
func (h *AdminHandler) ResetTaskStats(c *fiber.Ctx) error {
	report, err := h.Tasks.ResetStats(c.Context(), c.Params("taskType"), c.QueryBool("resetUsers", false))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// ListPredictions pages through every cached record
// GET /api/v1/admin/predictions?cursor=&limit=
func (h *AdminHandler) ListPredictions(c *fiber.Ctx) error {
	var cursor uint64
	if raw := c.Query("cursor"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return badRequest(c, "cursor must be an unsigned integer")
		}
		cursor = parsed
	}

	predictions, next, err := h.Predictions.ListAll(c.Context(), cursor, c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"predictions": predictions,
		"nextCursor":  strconv.FormatUint(next, 10),
		"done":        next == 0,
	})
}

// RegisterRoute pins a prediction id to a contract deployment
// POST /api/v1/admin/routes
func (h *AdminHandler) RegisterRoute(c *fiber.Ctx) error {
	var req RegisterRouteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body", "details": err.Error()})
	}

	route := registry.Route{
		PredictionID: strings.TrimSpace(req.PredictionID),
		Version:      chain.Version(strings.ToLower(strings.TrimSpace(req.Version))),
	}
	if route.PredictionID == "" {
		return badRequest(c, "predictionId is required")
	}
	if !route.Version.Valid() {
		return badRequest(c, "version must be legacy or usdc")
	}
	onchainID, err := registry.ParseOnchainID(strings.TrimSpace(req.OnchainID))
	if err != nil {
		return badRequest(c, err.Error())
	}
	route.OnchainID = onchainID
	if addr := strings.TrimSpace(req.ContractAddress); addr != "" {
		if !common.IsHexAddress(addr) {
			return badRequest(c, "contractAddress must be a 20-byte hex address")
		}
		route.Address = common.HexToAddress(addr)
	}

	if err := h.Routes.Register(c.Context(), route); err != nil {
		return respondError(c, err)
	}
	resolved, err := h.Routes.Resolve(c.Context(), route.PredictionID)
	if err != nil {
		return respondError(c, err)
	}
	logger.Info("Admin registered route %s -> %s #%s", resolved.PredictionID, resolved.Version, resolved.OnchainID)
	return c.Status(fiber.StatusCreated).JSON(resolved)
}

// PendingNotifications lists queued resolution notices, newest first
// GET /api/v1/admin/notifications?limit=
func (h *AdminHandler) PendingNotifications(c *fiber.Ctx) error {
	notices, err := h.Notifier.Pending(c.Context(), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(notices)
}
