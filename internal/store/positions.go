/**
 * @description
 * User position store.
 * One Redis hash per (user, prediction) with one JSON field per asset, so an
 * upsert of one asset never clobbers the others.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 * - backend/internal/models
 */

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/swipe-markets/backend/internal/logger"
	"github.com/swipe-markets/backend/internal/models"
)

type PositionStore struct {
	kv  *KV
	now func() time.Time
}

func NewPositionStore(kv *KV) *PositionStore {
	return &PositionStore{kv: kv, now: time.Now}
}

// Get never returns an error for a missing position; the result then has no assets.
func (s *PositionStore) Get(ctx context.Context, user, predictionID string) (*models.UserPosition, error) {
	user = models.NormalizeAddress(user)
	pos := &models.UserPosition{
		User:         user,
		PredictionID: predictionID,
		Assets:       map[models.Asset]models.AssetPosition{},
	}

	fields, err := s.kv.HGetAll(ctx, PositionKey(user, predictionID))
	if err != nil {
		return nil, err
	}
	for field, raw := range fields {
		asset := models.Asset(field)
		if !asset.Valid() {
			continue
		}
		var ap models.AssetPosition
		if err := DecodeJSON([]byte(raw), &ap); err != nil {
			logger.Warn("skipping undecodable %s position for %s/%s: %v", field, user, predictionID, err)
			continue
		}
		pos.Assets[asset] = ap
	}
	return pos, nil
}

// Upsert replaces one asset's sub-record and indexes the user under the prediction.
func (s *PositionStore) Upsert(ctx context.Context, user, predictionID string, asset models.Asset, ap models.AssetPosition) error {
	if !asset.Valid() {
		return fmt.Errorf("unsupported asset %q", asset)
	}
	user = models.NormalizeAddress(user)
	if ap.UpdatedAt == 0 {
		ap.UpdatedAt = s.now().Unix()
	}
	data, err := marshalRecord(ap)
	if err != nil {
		return err
	}

	_, err = s.kv.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, PositionKey(user, predictionID), string(asset), data)
		pipe.SAdd(ctx, PositionUsersKey(predictionID), user)
		return nil
	})
	return err
}

// Users returns every address with a cached position in the prediction.
func (s *PositionStore) Users(ctx context.Context, predictionID string) ([]string, error) {
	return s.kv.SMembers(ctx, PositionUsersKey(predictionID))
}

// ListForPrediction loads all cached positions of a prediction.
func (s *PositionStore) ListForPrediction(ctx context.Context, predictionID string) ([]*models.UserPosition, error) {
	users, err := s.Users(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.UserPosition, 0, len(users))
	for _, user := range users {
		pos, err := s.Get(ctx, user, predictionID)
		if err != nil {
			return nil, err
		}
		if pos.Exists() {
			out = append(out, pos)
		}
	}
	return out, nil
}
