package handlers

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/swipe-markets/backend/internal/chain"
	"github.com/swipe-markets/backend/internal/models"
	"github.com/swipe-markets/backend/internal/store"
)

type PositionHandler struct {
	Positions   *store.PositionStore
	Predictions *store.PredictionStore
}

func NewPositionHandler(positions *store.PositionStore, predictions *store.PredictionStore) *PositionHandler {
	return &PositionHandler{Positions: positions, Predictions: predictions}
}

// AssetPositionView adds the fields derived at read time.
type AssetPositionView struct {
	models.AssetPosition
	IsWinner  bool            `json:"isWinner"`
	YesUnits  decimal.Decimal `json:"yesUnits"`
	NoUnits   decimal.Decimal `json:"noUnits"`
	Resolved  bool            `json:"resolved"`
	Cancelled bool            `json:"cancelled"`
}

type PositionResponse struct {
	User         string                             `json:"user"`
	PredictionID string                             `json:"predictionId"`
	Exists       bool                               `json:"exists"`
	Assets       map[models.Asset]AssetPositionView `json:"assets"`
}

// GetPosition returns a user's per-asset stakes with isWinner derived from the
// resolution of the pool each asset is staked in
// GET /api/v1/positions/:address/:id
func (h *PositionHandler) GetPosition(c *fiber.Ctx) error {
	address := strings.TrimSpace(c.Params("address"))
	// Keys are built from the 0x-prefixed form, so bare hex would never match.
	if !common.IsHexAddress(address) || !strings.HasPrefix(strings.ToLower(address), "0x") {
		return badRequest(c, "address must be a 0x-prefixed 20-byte hex address")
	}
	predictionID := c.Params("id")

	pos, err := h.Positions.Get(c.Context(), address, predictionID)
	if err != nil {
		return respondError(c, err)
	}
	prediction, err := h.Predictions.Get(c.Context(), predictionID)
	if err != nil {
		return respondError(c, err)
	}

	resp := PositionResponse{
		User:         pos.User,
		PredictionID: predictionID,
		Exists:       pos.Exists(),
		Assets:       make(map[models.Asset]AssetPositionView, len(pos.Assets)),
	}
	for asset, ap := range pos.Assets {
		view := AssetPositionView{
			AssetPosition: ap,
			YesUnits:      chain.ToUnits(ap.YesAmount, asset),
			NoUnits:       chain.ToUnits(ap.NoAmount, asset),
		}
		if prediction != nil {
			res := prediction.ResolutionFor(asset)
			view.IsWinner = ap.IsWinner(res)
			view.Resolved, view.Cancelled = res.Resolved, res.Cancelled
		}
		resp.Assets[asset] = view
	}
	return c.JSON(resp)
}
