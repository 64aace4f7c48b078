/**
 * @description
 * Contract route registry.
 * Maps every prediction id to exactly one contract deployment and on-chain id.
 * Routing is explicit configuration (prefix rules plus per-id registrations),
 * never inferred from the id format at call sites.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/common
 * - backend/internal/chain
 *
 * @notes
 * - Rules are tried longest prefix first. The remainder after the prefix must
 *   be a base-10 integer; it becomes the on-chain id.
 * - Explicit registrations always win over rules.
 */

package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/swipe-markets/backend/internal/chain"
	"github.com/swipe-markets/backend/internal/config"
	"github.com/swipe-markets/backend/internal/logger"
)

// ErrUnroutable means no rule or registration maps the id to a contract.
var ErrUnroutable = errors.New("prediction id has no contract route")

// Route is the routing decision for one prediction id.
type Route struct {
	PredictionID string         `json:"predictionId"`
	Version      chain.Version  `json:"version"`
	Address      common.Address `json:"address"`
	OnchainID    *big.Int       `json:"onchainId"`
}

// Target is the contract call target of the route.
func (r Route) Target() chain.Target {
	return chain.Target{Version: r.Version, Address: r.Address, OnchainID: r.OnchainID}
}

// Registry resolves and enumerates contract routes.
type Registry interface {
	Resolve(ctx context.Context, predictionID string) (Route, error)
	ListRegistered(ctx context.Context) ([]Route, error)
	Register(ctx context.Context, route Route) error
}

type rule struct {
	prefix  string
	version chain.Version
}

// StaticRegistry routes by configured prefix rules and in-memory registrations.
type StaticRegistry struct {
	rules     []rule
	contracts map[chain.Version]common.Address
	seed      []string

	mu        sync.RWMutex
	overrides map[string]Route
}

// NewStaticRegistry builds a registry from a rule string such as "pred_v2_=usdc,=legacy".
func NewStaticRegistry(rules string, contracts map[chain.Version]common.Address, seed []string) (*StaticRegistry, error) {
	parsed, err := parseRules(rules)
	if err != nil {
		return nil, err
	}
	return &StaticRegistry{
		rules:     parsed,
		contracts: contracts,
		seed:      seed,
		overrides: make(map[string]Route),
	}, nil
}

// NewStaticRegistryFromConfig wires rules, contract addresses and the seed list from config.
func NewStaticRegistryFromConfig(cfg *config.Config) (*StaticRegistry, error) {
	contracts := make(map[chain.Version]common.Address)
	if cfg.Chain.LegacyContract != "" {
		contracts[chain.VersionLegacy] = common.HexToAddress(cfg.Chain.LegacyContract)
	}
	if cfg.Chain.USDCContract != "" {
		contracts[chain.VersionUSDC] = common.HexToAddress(cfg.Chain.USDCContract)
	}
	return NewStaticRegistry(cfg.Routing.Rules, contracts, cfg.Routing.KnownIDs)
}

func parseRules(spec string) ([]rule, error) {
	var rules []rule
	seen := make(map[string]bool)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		prefix, version, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid route rule %q: expected prefix=version", part)
		}
		v := chain.Version(strings.ToLower(strings.TrimSpace(version)))
		if !v.Valid() {
			return nil, fmt.Errorf("invalid route rule %q: unknown version %q", part, version)
		}
		prefix = strings.TrimSpace(prefix)
		if seen[prefix] {
			return nil, fmt.Errorf("duplicate route rule for prefix %q", prefix)
		}
		seen[prefix] = true
		rules = append(rules, rule{prefix: prefix, version: v})
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("at least one route rule is required")
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].prefix) > len(rules[j].prefix)
	})
	return rules, nil
}

func (r *StaticRegistry) Resolve(ctx context.Context, predictionID string) (Route, error) {
	predictionID = strings.TrimSpace(predictionID)
	if predictionID == "" {
		return Route{}, fmt.Errorf("%w: empty id", ErrUnroutable)
	}

	r.mu.RLock()
	route, ok := r.overrides[predictionID]
	r.mu.RUnlock()
	if ok {
		return route, nil
	}

	for _, rl := range r.rules {
		if !strings.HasPrefix(predictionID, rl.prefix) {
			continue
		}
		onchainID, ok := parseOnchainID(predictionID[len(rl.prefix):])
		if !ok {
			continue
		}
		addr, ok := r.contracts[rl.version]
		if !ok {
			return Route{}, fmt.Errorf("%w: no %s contract configured for %s", ErrUnroutable, rl.version, predictionID)
		}
		return Route{PredictionID: predictionID, Version: rl.version, Address: addr, OnchainID: onchainID}, nil
	}
	return Route{}, fmt.Errorf("%w: %s", ErrUnroutable, predictionID)
}

// ListRegistered returns the seed ids that route, followed by runtime registrations.
func (r *StaticRegistry) ListRegistered(ctx context.Context) ([]Route, error) {
	seen := make(map[string]bool)
	var out []Route
	for _, id := range r.seed {
		if seen[id] {
			continue
		}
		route, err := r.Resolve(ctx, id)
		if err != nil {
			logger.Warn("skipping seed prediction %s: %v", id, err)
			continue
		}
		seen[id] = true
		out = append(out, route)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	extra := make([]string, 0, len(r.overrides))
	for id := range r.overrides {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		out = append(out, r.overrides[id])
	}
	return out, nil
}

// Register pins an id to a route for the lifetime of the process.
func (r *StaticRegistry) Register(ctx context.Context, route Route) error {
	route, err := r.complete(route)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.overrides[route.PredictionID] = route
	r.mu.Unlock()
	return nil
}

// complete validates a route and fills the contract address from config when unset.
func (r *StaticRegistry) complete(route Route) (Route, error) {
	route.PredictionID = strings.TrimSpace(route.PredictionID)
	if route.PredictionID == "" {
		return Route{}, fmt.Errorf("prediction id is required")
	}
	if !route.Version.Valid() {
		return Route{}, fmt.Errorf("unknown contract version %q", route.Version)
	}
	if route.OnchainID == nil || route.OnchainID.Sign() < 0 {
		return Route{}, fmt.Errorf("on-chain id must be a non-negative integer")
	}
	if route.Address == (common.Address{}) {
		addr, ok := r.contracts[route.Version]
		if !ok {
			return Route{}, fmt.Errorf("%w: no %s contract configured", ErrUnroutable, route.Version)
		}
		route.Address = addr
	}
	return route, nil
}

// ParseOnchainID parses a base-10 unsigned integer.
func ParseOnchainID(raw string) (*big.Int, error) {
	id, ok := parseOnchainID(raw)
	if !ok {
		return nil, fmt.Errorf("invalid on-chain id %q", raw)
	}
	return id, nil
}

func parseOnchainID(raw string) (*big.Int, bool) {
	if raw == "" {
		return nil, false
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return nil, false
		}
	}
	return new(big.Int).SetString(raw, 10)
}
