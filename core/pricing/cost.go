package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

// Denominator is the fixed scale factor applied to per-point pricing so unit
// prices can express fractional weights without floating point math.
const Denominator = 1_000_000

var (
	errZeroDenominator = errors.New("pricing: denominator must be positive")
	errNilMinDeposit   = errors.New("pricing: minimum deposit must be positive")
)

// EngagementMetrics carries the engagement counters attested for a post at
// mint time. All counters are non-negative by construction.
type EngagementMetrics struct {
	Likes       uint64 `json:"likes"`
	Reposts     uint64 `json:"reposts"`
	Quotes      uint64 `json:"quotes"`
	Replies     uint64 `json:"replies"`
	Bookmarks   uint64 `json:"bookmarks"`
	Impressions uint64 `json:"impressions"`
}

// CostTable assigns a unit price to each engagement counter.
type CostTable struct {
	Likes       uint64 `toml:"likes" json:"likes"`
	Reposts     uint64 `toml:"reposts" json:"reposts"`
	Quotes      uint64 `toml:"quotes" json:"quotes"`
	Replies     uint64 `toml:"replies" json:"replies"`
	Bookmarks   uint64 `toml:"bookmarks" json:"bookmarks"`
	Impressions uint64 `toml:"impressions" json:"impressions"`
}

// Engine converts engagement counters into the deposit required to cover a
// mint. The engine is pure: Cost has no side effects and never mutates the
// configured table.
type Engine struct {
	minDeposit    *big.Int
	pricePerPoint *big.Int
	denominator   *big.Int
	table         CostTable
}

// NewEngine validates the pricing parameters and returns a ready engine.
func NewEngine(minDeposit, pricePerPoint *big.Int, denominator int64, table CostTable) (*Engine, error) {
	if minDeposit == nil || minDeposit.Sign() <= 0 {
		return nil, errNilMinDeposit
	}
	if pricePerPoint == nil || pricePerPoint.Sign() < 0 {
		return nil, fmt.Errorf("pricing: price per point must be non-negative")
	}
	if denominator <= 0 {
		return nil, errZeroDenominator
	}
	return &Engine{
		minDeposit:    new(big.Int).Set(minDeposit),
		pricePerPoint: new(big.Int).Set(pricePerPoint),
		denominator:   big.NewInt(denominator),
		table:         table,
	}, nil
}

// MinDeposit returns a copy of the configured minimum deposit.
func (e *Engine) MinDeposit() *big.Int {
	if e == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(e.minDeposit)
}

// Cost computes the deposit required for the supplied metrics:
//
//	cost = minDeposit + pricePerPoint * weightedSum(metrics) / denominator
//
// Freshly published posts accrue engagement slowly, so a result that would
// undercut the minimum deposit is replaced by a five-fold floor buffer rather
// than rejecting the request outright.
func (e *Engine) Cost(metrics EngagementMetrics) (*big.Int, error) {
	if e == nil {
		return nil, fmt.Errorf("pricing: engine not configured")
	}
	weighted := e.weightedSum(metrics)
	cost := new(big.Int).Mul(e.pricePerPoint, weighted)
	cost.Div(cost, e.denominator)
	cost.Add(cost, e.minDeposit)
	if cost.Cmp(e.minDeposit) < 0 {
		return new(big.Int).Mul(e.minDeposit, big.NewInt(5)), nil
	}
	return cost, nil
}

func (e *Engine) weightedSum(metrics EngagementMetrics) *big.Int {
	sum := new(big.Int)
	addWeighted(sum, e.table.Likes, metrics.Likes)
	addWeighted(sum, e.table.Reposts, metrics.Reposts)
	addWeighted(sum, e.table.Quotes, metrics.Quotes)
	addWeighted(sum, e.table.Replies, metrics.Replies)
	addWeighted(sum, e.table.Bookmarks, metrics.Bookmarks)
	addWeighted(sum, e.table.Impressions, metrics.Impressions)
	return sum
}

func addWeighted(sum *big.Int, unitPrice, metric uint64) {
	if unitPrice == 0 || metric == 0 {
		return
	}
	term := new(big.Int).Mul(new(big.Int).SetUint64(unitPrice), new(big.Int).SetUint64(metric))
	sum.Add(sum, term)
}

// MetricsFromExtra extracts the engagement counters embedded in a token
// metadata extra payload. Missing counters default to zero.
func MetricsFromExtra(extra json.RawMessage) (EngagementMetrics, error) {
	var metrics EngagementMetrics
	if len(extra) == 0 {
		return metrics, nil
	}
	if err := json.Unmarshal(extra, &metrics); err != nil {
		return EngagementMetrics{}, fmt.Errorf("pricing: decode metrics: %w", err)
	}
	return metrics, nil
}
