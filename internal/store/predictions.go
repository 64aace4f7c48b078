/**
 * @description
 * Prediction record store.
 * CRUD and query layer over `prediction:<id>` JSON documents plus the
 * `predictions:active` membership set.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 * - backend/internal/models
 *
 * @notes
 * - Save is a full overwrite, last writer wins. Callers that merge must hold
 *   the per-id lock (see KeyLocker).
 * - The active set is a hint maintained imperatively. ListActive re-filters by
 *   Prediction.IsActive and prunes members that no longer qualify.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/swipe-markets/backend/internal/logger"
	"github.com/swipe-markets/backend/internal/models"
)

var ErrPredictionExists = errors.New("prediction already exists")

const maxListAllPage = 200

type PredictionStore struct {
	kv  *KV
	now func() time.Time
}

func NewPredictionStore(kv *KV) *PredictionStore {
	return &PredictionStore{kv: kv, now: time.Now}
}

// Get returns (nil, nil) when the record does not exist.
func (s *PredictionStore) Get(ctx context.Context, id string) (*models.Prediction, error) {
	var p models.Prediction
	found, err := s.kv.GetJSON(ctx, PredictionKey(id), &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

// Save overwrites the record and keeps active-set membership in step with it.
func (s *PredictionStore) Save(ctx context.Context, p *models.Prediction) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("prediction id is required")
	}
	data, err := marshalRecord(p)
	if err != nil {
		return err
	}

	_, err = s.kv.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, PredictionKey(p.ID), data, 0)
		if p.IsActive(s.now()) {
			pipe.SAdd(ctx, ActivePredictionsKey, p.ID)
		} else {
			pipe.SRem(ctx, ActivePredictionsKey, p.ID)
		}
		return nil
	})
	return err
}

// Create stores a new record and fails with ErrPredictionExists if the id is taken.
func (s *PredictionStore) Create(ctx context.Context, p *models.Prediction) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("prediction id is required")
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = s.now().Unix()
	}
	data, err := marshalRecord(p)
	if err != nil {
		return err
	}
	ok, err := s.kv.SetIfAbsent(ctx, PredictionKey(p.ID), string(data), 0)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPredictionExists
	}
	if p.IsActive(s.now()) {
		if _, err := s.kv.SAdd(ctx, ActivePredictionsKey, p.ID); err != nil {
			return fmt.Errorf("failed to index active prediction: %w", err)
		}
	}
	return nil
}

// ListActive reads the active set, loads the records and keeps only those that
// satisfy the active predicate. Stale members are removed best-effort.
func (s *PredictionStore) ListActive(ctx context.Context) ([]*models.Prediction, error) {
	ids, err := s.kv.SMembers(ctx, ActivePredictionsKey)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*models.Prediction{}, nil
	}

	records, err := s.loadMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.now()
	active := make([]*models.Prediction, 0, len(records))
	var stale []string
	for i, p := range records {
		if p == nil || !p.IsActive(now) {
			stale = append(stale, ids[i])
			continue
		}
		active = append(active, p)
	}

	if len(stale) > 0 {
		if _, err := s.kv.SRem(ctx, ActivePredictionsKey, stale...); err != nil {
			logger.Warn("failed to prune %d stale active ids: %v", len(stale), err)
		}
	}
	return active, nil
}

// ListAll pages through every prediction record with SCAN. Pass cursor 0 to
// start; a returned cursor of 0 means the walk is done. Debug and admin only.
func (s *PredictionStore) ListAll(ctx context.Context, cursor uint64, limit int) ([]*models.Prediction, uint64, error) {
	if limit <= 0 || limit > maxListAllPage {
		limit = maxListAllPage
	}
	keys, next, err := s.kv.ScanPage(ctx, predictionPrefix+"*", cursor, int64(limit))
	if err != nil {
		return nil, 0, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, predictionPrefix))
	}
	records, err := s.loadMany(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*models.Prediction, 0, len(records))
	for _, p := range records {
		if p != nil {
			out = append(out, p)
		}
	}
	return out, next, nil
}

// loadMany returns one entry per id, nil where the record is missing or undecodable.
func (s *PredictionStore) loadMany(ctx context.Context, ids []string) ([]*models.Prediction, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = PredictionKey(id)
	}
	raws, err := s.kv.MGetRaw(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Prediction, len(ids))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		var p models.Prediction
		if err := DecodeJSON(raw, &p); err != nil {
			logger.Warn("skipping undecodable prediction %s: %v", ids[i], err)
			continue
		}
		if p.ID == "" {
			p.ID = ids[i]
		}
		out[i] = &p
	}
	return out, nil
}
