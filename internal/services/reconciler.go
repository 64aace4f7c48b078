/**
 * @description
 * Reconciliation engine.
 * Pulls authoritative pool state from the prediction contracts and merges it
 * into the cached prediction records and user positions.
 *
 * Key features:
 * - SyncOne: route, read, merge the routed pool only, upsert non-zero positions.
 * - SyncMany / SyncAllKnown: sequential batches with per-id results.
 * - Compare / CheckDrift: read-only drift detection, sync only on drift.
 *
 * @dependencies
 * - backend/internal/chain: contract reads
 * - backend/internal/registry: prediction id -> contract routing, run log
 * - backend/internal/store: prediction and position stores
 *
 * @notes
 * - A legacy route writes the native fields, a USDC route writes the usdc*
 *   fields. Neither ever touches the other pool or the display metadata.
 * - The per-prediction lock only keeps concurrent merges from losing each
 *   other's fields. Contract reads happen before it is taken, so it does not
 *   order syncs: an older chain snapshot can land after a newer one. The next
 *   drift check repairs that.
 * - Every per-id failure becomes a SyncResult. Nothing escapes a batch.
 */

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/swipe-markets/backend/internal/chain"
	"github.com/swipe-markets/backend/internal/logger"
	"github.com/swipe-markets/backend/internal/metrics"
	"github.com/swipe-markets/backend/internal/models"
	"github.com/swipe-markets/backend/internal/registry"
	"github.com/swipe-markets/backend/internal/store"
)

// DefaultMaxParticipants bounds the position reads of one sync call.
const DefaultMaxParticipants = 100

type SyncStatus string

const (
	StatusSynced        SyncStatus = "synced"
	StatusPartial       SyncStatus = "partial"
	StatusNotRegistered SyncStatus = "not_registered"
	StatusFailed        SyncStatus = "failed"
)

// SyncResult is the structured outcome of one SyncOne call.
type SyncResult struct {
	PredictionID         string           `json:"predictionId"`
	Success              bool             `json:"success"`
	Registered           bool             `json:"registered"`
	Status               SyncStatus       `json:"status"`
	Version              chain.Version    `json:"version,omitempty"`
	YesPool              *decimal.Decimal `json:"yesPool,omitempty"`
	NoPool               *decimal.Decimal `json:"noPool,omitempty"`
	ParticipantCount     *int             `json:"participantCount,omitempty"`
	PositionsUpdated     int              `json:"positionsUpdated"`
	PositionsFailed      int              `json:"positionsFailed"`
	ParticipantsDeferred int              `json:"participantsDeferred,omitempty"`
	Error                string           `json:"error,omitempty"`
}

func (r *SyncResult) fail(err error) SyncResult {
	r.Success = false
	r.Status = StatusFailed
	r.Error = err.Error()
	return *r
}

// BatchResult is the outcome of SyncMany.
type BatchResult struct {
	RunID         string                `json:"runId,omitempty"`
	Total         int                   `json:"total"`
	Succeeded     int                   `json:"succeeded"`
	Failed        int                   `json:"failed"`
	NotRegistered int                   `json:"notRegistered"`
	Results       map[string]SyncResult `json:"results"`
}

// PoolView is one side-by-side snapshot of a pool for drift reports.
type PoolView struct {
	YesPool          decimal.Decimal  `json:"yesPool"`
	NoPool           decimal.Decimal  `json:"noPool"`
	SwipeYesPool     *decimal.Decimal `json:"swipeYesPool,omitempty"`
	SwipeNoPool      *decimal.Decimal `json:"swipeNoPool,omitempty"`
	ParticipantCount int              `json:"participantCount"`
	Resolved         bool             `json:"resolved"`
	Cancelled        bool             `json:"cancelled"`
	Outcome          bool             `json:"outcome"`
}

// DriftReport compares the routed pool on-chain with its cached mirror.
type DriftReport struct {
	PredictionID   string        `json:"predictionId"`
	Version        chain.Version `json:"version"`
	Registered     bool          `json:"registered"`
	MissingLocally bool          `json:"missingLocally"`
	NeedsSync      bool          `json:"needsSync"`
	ResolvedMatch  bool          `json:"resolvedMatch"`
	OutcomeMatch   bool          `json:"outcomeMatch"`
	CancelledMatch bool          `json:"cancelledMatch"`
	PoolMatch      bool          `json:"poolMatch"`
	// CrossPoolDivergence is set when the native and USDC pools disagree on
	// resolution. It is reported only; a sync never reconciles the two.
	CrossPoolDivergence bool      `json:"crossPoolDivergence"`
	Chain               *PoolView `json:"chain,omitempty"`
	Cache               *PoolView `json:"cache,omitempty"`
}

// DriftSummary aggregates one scheduled drift pass.
type DriftSummary struct {
	Checked int `json:"checked"`
	Drifted int `json:"drifted"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}

type ReconcilerOptions struct {
	Chain           chain.Reader
	Routes          registry.Registry
	Predictions     *store.PredictionStore
	Positions       *store.PositionStore
	Notifier        *Notifier
	Runs            registry.RunLog
	Metrics         *metrics.Metrics
	MaxParticipants int
}

type Reconciler struct {
	chain           chain.Reader
	routes          registry.Registry
	predictions     *store.PredictionStore
	positions       *store.PositionStore
	notifier        *Notifier
	runs            registry.RunLog
	metrics         *metrics.Metrics
	locks           *store.KeyLocker
	maxParticipants int
	now             func() time.Time
	log             *logger.Scoped
}

func NewReconciler(opts ReconcilerOptions) *Reconciler {
	maxParticipants := opts.MaxParticipants
	if maxParticipants <= 0 {
		maxParticipants = DefaultMaxParticipants
	}
	runs := opts.Runs
	if runs == nil {
		runs = registry.NopRunLog{}
	}
	return &Reconciler{
		chain:           opts.Chain,
		routes:          opts.Routes,
		predictions:     opts.Predictions,
		positions:       opts.Positions,
		notifier:        opts.Notifier,
		runs:            runs,
		metrics:         opts.Metrics,
		locks:           store.NewKeyLocker(),
		maxParticipants: maxParticipants,
		now:             time.Now,
		log:             logger.Named("reconciler"),
	}
}

// SyncOne mirrors one prediction's routed pool into the cache.
func (r *Reconciler) SyncOne(ctx context.Context, predictionID string) (res SyncResult) {
	start := r.now()
	res = SyncResult{PredictionID: predictionID}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("sync %s panicked: %v", predictionID, rec)
			res.fail(fmt.Errorf("panic: %v", rec))
		}
		r.metrics.ObserveSync(string(res.Status), string(res.Version), time.Since(start).Seconds())
	}()

	route, err := r.routes.Resolve(ctx, predictionID)
	if err != nil {
		return res.fail(err)
	}
	res.Version = route.Version
	target := route.Target()

	state, err := r.chain.GetPrediction(ctx, target)
	if err != nil {
		r.log.Warn("contract read failed for %s: %v", predictionID, err)
		return res.fail(err)
	}
	if !state.Registered {
		res.Success = true
		res.Status = StatusNotRegistered
		return res
	}
	res.Registered = true

	existing, err := r.predictions.Get(ctx, predictionID)
	if err != nil {
		return res.fail(fmt.Errorf("failed to load cached record: %w", err))
	}
	if existing == nil {
		r.log.Error("%s is registered on the %s contract but has no cached record", predictionID, route.Version)
		return res.fail(fmt.Errorf("%w: %s", ErrRecordMissingLocally, predictionID))
	}

	var participants []common.Address
	if state.ParticipantCount > 0 {
		participants, err = r.chain.GetParticipants(ctx, target)
		if err != nil {
			r.log.Warn("participant list read failed for %s: %v", predictionID, err)
			return res.fail(fmt.Errorf("participant fetch failed: %w", err))
		}
	}

	r.syncPositions(ctx, predictionID, target, participants, &res)

	before, after, err := r.mergeAndSave(ctx, predictionID, route.Version, state, participants)
	if err != nil {
		return res.fail(err)
	}
	r.notifyTransition(ctx, after, route.Version, before)

	yes, no, count := state.YesPool, state.NoPool, state.ParticipantCount
	res.YesPool, res.NoPool, res.ParticipantCount = &yes, &no, &count
	res.Success = true
	res.Status = StatusSynced
	if res.PositionsFailed > 0 {
		res.Status = StatusPartial
	}
	return res
}

// syncPositions reads and upserts up to maxParticipants positions. A failed read
// is logged and counted; the loop continues.
func (r *Reconciler) syncPositions(ctx context.Context, predictionID string, target chain.Target, participants []common.Address, res *SyncResult) {
	if len(participants) > r.maxParticipants {
		res.ParticipantsDeferred = len(participants) - r.maxParticipants
		r.log.Info("%s has %d participants, syncing first %d", predictionID, len(participants), r.maxParticipants)
		participants = participants[:r.maxParticipants]
	}

	for _, addr := range participants {
		user := strings.ToLower(addr.Hex())
		assets, err := r.chain.GetPosition(ctx, target, addr)
		if err != nil {
			r.log.Warn("position read failed for %s/%s: %v", predictionID, user, err)
			r.metrics.PositionRead(false)
			res.PositionsFailed++
			continue
		}
		r.metrics.PositionRead(true)

		for _, asset := range models.Assets {
			ap, ok := assets[asset]
			if !ok || ap.IsZero() {
				continue
			}
			if err := r.positions.Upsert(ctx, user, predictionID, asset, ap); err != nil {
				r.log.Warn("position write failed for %s/%s/%s: %v", predictionID, user, asset, err)
				res.PositionsFailed++
				continue
			}
			res.PositionsUpdated++
		}
	}
}

// mergeAndSave re-reads the record under the per-id lock, merges the routed
// pool and persists it. It returns the routed pool's resolution before the merge.
func (r *Reconciler) mergeAndSave(ctx context.Context, predictionID string, version chain.Version, state *chain.PredictionState, participants []common.Address) (models.Resolution, *models.Prediction, error) {
	unlock := r.locks.Lock(store.PredictionKey(predictionID))
	defer unlock()

	p, err := r.predictions.Get(ctx, predictionID)
	if err != nil {
		return models.Resolution{}, nil, fmt.Errorf("failed to reload cached record: %w", err)
	}
	if p == nil {
		return models.Resolution{}, nil, fmt.Errorf("%w: %s", ErrRecordMissingLocally, predictionID)
	}

	before := p.ResolutionFor(version.PrimaryAsset())
	applyState(p, version, state, participants)
	p.LastSyncedAt = r.now().Unix()

	if err := r.predictions.Save(ctx, p); err != nil {
		return before, nil, fmt.Errorf("failed to persist record: %w", err)
	}
	return before, p, nil
}

// applyState writes the contract's view into the fields owned by its route.
func applyState(p *models.Prediction, version chain.Version, s *chain.PredictionState, participants []common.Address) {
	switch version {
	case chain.VersionUSDC:
		p.USDCPoolEnabled = true
		p.USDCYesTotalAmount = s.YesPool
		p.USDCNoTotalAmount = s.NoPool
		p.USDCParticipantCount = s.ParticipantCount
		p.USDCParticipants = lowerAddresses(participants)
		p.USDCResolved = s.Resolved
		p.USDCCancelled = s.Cancelled
		p.USDCOutcome = s.Outcome
	case chain.VersionLegacy:
		p.YesTotalAmount = s.YesPool
		p.NoTotalAmount = s.NoPool
		if s.SwipeYesPool != nil && s.SwipeNoPool != nil {
			yes, no := *s.SwipeYesPool, *s.SwipeNoPool
			p.SwipeYesTotalAmount, p.SwipeNoTotalAmount = &yes, &no
		}
		p.ParticipantCount = s.ParticipantCount
		p.Resolved = s.Resolved
		p.Cancelled = s.Cancelled
		p.Outcome = s.Outcome
	}
}

func (r *Reconciler) notifyTransition(ctx context.Context, p *models.Prediction, version chain.Version, before models.Resolution) {
	if r.notifier == nil || p == nil {
		return
	}
	asset := version.PrimaryAsset()
	after := p.ResolutionFor(asset)
	if before.Settled() || !after.Settled() {
		return
	}
	notice := ResolutionNotice{
		PredictionID: p.ID,
		Question:     p.Question,
		Asset:        asset,
		Resolved:     after.Resolved,
		Cancelled:    after.Cancelled,
		Outcome:      after.Outcome,
	}
	if err := r.notifier.NotifyResolution(ctx, notice); err != nil {
		r.log.Warn("failed to queue notice for %s: %v", p.ID, err)
	}
}

// SyncMany runs SyncOne for each id in order. One id's failure never aborts the batch.
func (r *Reconciler) SyncMany(ctx context.Context, ids []string, trigger string) *BatchResult {
	started := r.now()
	batch := &BatchResult{Results: make(map[string]SyncResult, len(ids))}

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := batch.Results[id]; dup {
			continue
		}

		var res SyncResult
		if err := ctx.Err(); err != nil {
			res = SyncResult{PredictionID: id}
			res.fail(err)
		} else {
			res = r.SyncOne(ctx, id)
		}

		batch.Results[id] = res
		batch.Total++
		switch {
		case res.Status == StatusNotRegistered:
			batch.NotRegistered++
		case res.Success:
			batch.Succeeded++
		default:
			batch.Failed++
		}
	}

	r.recordRun(ctx, trigger, started, batch)
	r.log.Info("batch sync (%s): %d total, %d ok, %d failed, %d not registered",
		trigger, batch.Total, batch.Succeeded, batch.Failed, batch.NotRegistered)
	return batch
}

// SyncAllKnown syncs every prediction the route registry enumerates.
func (r *Reconciler) SyncAllKnown(ctx context.Context, trigger string) (*BatchResult, error) {
	routes, err := r.routes.ListRegistered(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list registered predictions: %w", err)
	}
	ids := make([]string, 0, len(routes))
	for _, route := range routes {
		ids = append(ids, route.PredictionID)
	}
	return r.SyncMany(ctx, ids, trigger), nil
}

func (r *Reconciler) recordRun(ctx context.Context, trigger string, started time.Time, batch *BatchResult) {
	summary, err := json.Marshal(batch.Results)
	if err != nil {
		summary = []byte("{}")
	}
	finished := r.now()
	run := &models.SyncRun{
		Trigger:       trigger,
		StartedAt:     started,
		FinishedAt:    &finished,
		Total:         batch.Total,
		Succeeded:     batch.Succeeded,
		Failed:        batch.Failed,
		NotRegistered: batch.NotRegistered,
		Summary:       string(summary),
	}
	if err := r.runs.Record(ctx, run); err != nil {
		r.log.Warn("failed to record sync run: %v", err)
		return
	}
	if run.ID != uuid.Nil {
		batch.RunID = run.ID.String()
	}
}

// Compare re-reads the routed pool and the cached record without writing anything.
func (r *Reconciler) Compare(ctx context.Context, predictionID string) (*DriftReport, error) {
	route, err := r.routes.Resolve(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	report := &DriftReport{PredictionID: predictionID, Version: route.Version}

	state, err := r.chain.GetPrediction(ctx, route.Target())
	if err != nil {
		return nil, err
	}
	if !state.Registered {
		return report, nil
	}
	report.Registered = true
	report.Chain = chainView(state)

	p, err := r.predictions.Get(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		// A sync cannot fix this; it needs the market metadata first.
		report.MissingLocally = true
		return report, nil
	}
	report.Cache = cacheView(p, route.Version)

	c, k := report.Chain, report.Cache
	report.ResolvedMatch = c.Resolved == k.Resolved
	report.CancelledMatch = c.Cancelled == k.Cancelled
	report.OutcomeMatch = !c.Resolved || c.Outcome == k.Outcome
	report.PoolMatch = c.YesPool.Equal(k.YesPool) && c.NoPool.Equal(k.NoPool) &&
		c.ParticipantCount == k.ParticipantCount &&
		optionalEqual(c.SwipeYesPool, k.SwipeYesPool) && optionalEqual(c.SwipeNoPool, k.SwipeNoPool)
	report.NeedsSync = !(report.ResolvedMatch && report.CancelledMatch && report.OutcomeMatch && report.PoolMatch)
	if route.Version == chain.VersionUSDC && !p.USDCPoolEnabled {
		report.NeedsSync = true
	}

	merged := *p
	applyState(&merged, route.Version, state, nil)
	report.CrossPoolDivergence = crossPoolDivergence(&merged)
	return report, nil
}

// CheckDrift compares every registered prediction and syncs only those that drifted.
func (r *Reconciler) CheckDrift(ctx context.Context) (DriftSummary, error) {
	var summary DriftSummary
	routes, err := r.routes.ListRegistered(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list registered predictions: %w", err)
	}

	for _, route := range routes {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Checked++

		report, err := r.Compare(ctx, route.PredictionID)
		if err != nil {
			r.log.Warn("drift check failed for %s: %v", route.PredictionID, err)
			r.metrics.DriftCheck("error")
			summary.Failed++
			continue
		}
		if report.CrossPoolDivergence {
			r.log.Warn("%s: native and USDC pools disagree on resolution", route.PredictionID)
		}
		if !report.NeedsSync {
			r.metrics.DriftCheck("clean")
			continue
		}

		r.metrics.DriftCheck("drift")
		summary.Drifted++
		if res := r.SyncOne(ctx, route.PredictionID); res.Success {
			summary.Synced++
		} else {
			summary.Failed++
		}
	}

	r.log.Info("drift check: %d checked, %d drifted, %d synced, %d failed",
		summary.Checked, summary.Drifted, summary.Synced, summary.Failed)
	return summary, nil
}

func chainView(s *chain.PredictionState) *PoolView {
	return &PoolView{
		YesPool:          s.YesPool,
		NoPool:           s.NoPool,
		SwipeYesPool:     s.SwipeYesPool,
		SwipeNoPool:      s.SwipeNoPool,
		ParticipantCount: s.ParticipantCount,
		Resolved:         s.Resolved,
		Cancelled:        s.Cancelled,
		Outcome:          s.Outcome,
	}
}

func cacheView(p *models.Prediction, version chain.Version) *PoolView {
	if version == chain.VersionUSDC {
		return &PoolView{
			YesPool:          p.USDCYesTotalAmount,
			NoPool:           p.USDCNoTotalAmount,
			ParticipantCount: p.USDCParticipantCount,
			Resolved:         p.USDCResolved,
			Cancelled:        p.USDCCancelled,
			Outcome:          p.USDCOutcome,
		}
	}
	return &PoolView{
		YesPool:          p.YesTotalAmount,
		NoPool:           p.NoTotalAmount,
		SwipeYesPool:     p.SwipeYesTotalAmount,
		SwipeNoPool:      p.SwipeNoTotalAmount,
		ParticipantCount: p.ParticipantCount,
		Resolved:         p.Resolved,
		Cancelled:        p.Cancelled,
		Outcome:          p.Outcome,
	}
}

// crossPoolDivergence reports native and USDC resolution states that disagree.
func crossPoolDivergence(p *models.Prediction) bool {
	if !p.USDCPoolEnabled {
		return false
	}
	native, usdc := p.NativePool.Resolution(), p.USDCPool.Resolution()
	if native.Resolved != usdc.Resolved || native.Cancelled != usdc.Cancelled {
		return true
	}
	return native.Resolved && native.Outcome != usdc.Outcome
}

// optionalEqual treats a missing side pool as zero.
func optionalEqual(a, b *decimal.Decimal) bool {
	return valueOrZero(a).Equal(valueOrZero(b))
}

func valueOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func lowerAddresses(addrs []common.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = strings.ToLower(a.Hex())
	}
	return out
}

// IsUnroutable reports whether err came from the route registry.
func IsUnroutable(err error) bool {
	return errors.Is(err, registry.ErrUnroutable)
}
