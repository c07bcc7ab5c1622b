// Package rewards converts accumulated node performance into token amounts
// and drives their distribution through the ledger gateway.
package rewards

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/elicharlese/ThePublic-sub000/internal/errs"
	"github.com/elicharlese/ThePublic-sub000/internal/models"
	"github.com/elicharlese/ThePublic-sub000/internal/store"
)

// Params is the reward policy. The defaults reproduce the historical formula
// and must stay bit-compatible with it; deployments may override.
type Params struct {
	BaseReward           float64
	TokensPerGiB         float64
	TokensPerUser        float64
	ReliabilityBonus     float64
	ReliabilityThreshold float64
}

// DefaultParams is the production reward policy.
func DefaultParams() Params {
	return Params{
		BaseReward:           100,
		TokensPerGiB:         1,
		TokensPerUser:        10,
		ReliabilityBonus:     50,
		ReliabilityThreshold: 95,
	}
}

const bytesPerGiB = 1 << 30

// Calculate converts a metrics record into a reward amount:
// base scaled by uptime, plus per-GiB and per-user bonuses, plus a flat
// reliability bonus above the threshold. Never negative.
func (p Params) Calculate(m models.PerformanceMetrics) float64 {
	total := p.BaseReward

	if m.UptimePercentage != nil {
		total *= *m.UptimePercentage / 100
	} else {
		total = 0
	}
	if m.DataTransferred != nil {
		total += float64(*m.DataTransferred) / bytesPerGiB * p.TokensPerGiB
	}
	if m.UsersServed != nil {
		total += float64(*m.UsersServed) * p.TokensPerUser
	}
	if m.ReliabilityScore != nil && *m.ReliabilityScore > p.ReliabilityThreshold {
		total += p.ReliabilityBonus
	}

	if total < 0 {
		return 0
	}
	return total
}

// Categorize picks the reward category from the dominant formula component.
func (p Params) Categorize(m models.PerformanceMetrics) models.RewardCategory {
	uptime, traffic, users := 0.0, 0.0, 0.0
	if m.UptimePercentage != nil {
		uptime = p.BaseReward * *m.UptimePercentage / 100
	}
	if m.DataTransferred != nil {
		traffic = float64(*m.DataTransferred) / bytesPerGiB * p.TokensPerGiB
	}
	if m.UsersServed != nil {
		users = float64(*m.UsersServed) * p.TokensPerUser
	}

	switch {
	case traffic > uptime && traffic >= users:
		return models.RewardTraffic
	case users > uptime && users > traffic:
		return models.RewardBonus
	case m.ReliabilityScore != nil && *m.ReliabilityScore > p.ReliabilityThreshold && uptime == 0:
		return models.RewardReliability
	default:
		return models.RewardCoverage
	}
}

// Ledger is the subset of the chain gateway the engine needs.
type Ledger interface {
	DistributeRewards(ctx context.Context, nodeIDs []string, amounts []float64) ([]string, error)
}

// Engine creates pending rewards and settles them through the ledger.
type Engine struct {
	store         *store.Store
	ledger        Ledger
	params        Params
	ledgerTimeout time.Duration
	log           *logrus.Entry
}

// New builds an engine with the given policy.
func New(st *store.Store, ledger Ledger, params Params, ledgerTimeout time.Duration) *Engine {
	return &Engine{
		store:         st,
		ledger:        ledger,
		params:        params,
		ledgerTimeout: ledgerTimeout,
		log:           logrus.WithField("component", "rewards"),
	}
}

// Params returns the active policy.
func (e *Engine) Params() Params { return e.params }

// CreatePending persists a pending reward for the node's owner.
func (e *Engine) CreatePending(ctx context.Context, node *models.Node, amount float64, category models.RewardCategory, periodStart, periodEnd time.Time) (*models.Reward, error) {
	if amount < 0 {
		return nil, errs.Validation("amount", "must not be negative")
	}
	if node.OwnerID == "" {
		return nil, errs.Validation("owner", "node has no owner")
	}

	reward := &models.Reward{
		NodeID:      node.NodeID,
		OwnerID:     node.OwnerID,
		Amount:      amount,
		Category:    category,
		Status:      models.RewardPending,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}
	if err := e.store.CreateReward(ctx, reward); err != nil {
		return nil, err
	}
	return reward, nil
}

// DistributionResult is the per-reward outcome of a batch run.
type DistributionResult struct {
	RewardID    uuid.UUID           `json:"reward_id"`
	NodeID      string              `json:"node_id"`
	Status      models.RewardStatus `json:"status"`
	TxSignature string              `json:"transaction_signature,omitempty"`
	Err         error               `json:"-"`
}

// DistributeBatch settles each reward through the ledger one at a time. A
// failed transfer marks that reward failed and moves on; one bad reward
// never aborts the batch, and no reward is left pending afterwards.
//
// Rewards are sent to the ledger sequentially because the gateway is
// capacity constrained.
func (e *Engine) DistributeBatch(ctx context.Context, batch []models.Reward) []DistributionResult {
	results := make([]DistributionResult, 0, len(batch))

	for _, reward := range batch {
		res := DistributionResult{RewardID: reward.ID, NodeID: reward.NodeID}

		// Malformed rewards fail locally and never reach the ledger.
		if reward.Amount < 0 || reward.OwnerID == "" {
			res.Err = errs.Validation("reward", "negative amount or missing owner")
			e.settle(ctx, &res, reward, models.RewardFailed, "")
			results = append(results, res)
			continue
		}

		lctx, cancel := context.WithTimeout(ctx, e.ledgerTimeout)
		sigs, err := e.ledger.DistributeRewards(lctx, []string{reward.NodeID}, []float64{reward.Amount})
		cancel()

		if err != nil || len(sigs) == 0 {
			if err == nil {
				err = errs.Ledger("distributeRewards", context.Canceled)
			}
			e.log.WithFields(logrus.Fields{"reward_id": reward.ID, "node_id": reward.NodeID, "error": err}).
				Warn("Reward distribution failed")
			res.Err = err
			e.settle(ctx, &res, reward, models.RewardFailed, "")
			results = append(results, res)
			continue
		}

		e.settle(ctx, &res, reward, models.RewardDistributed, sigs[0])
		if res.Err == nil {
			e.log.WithFields(logrus.Fields{
				"reward_id": reward.ID,
				"node_id":   reward.NodeID,
				"amount":    reward.Amount,
				"signature": sigs[0],
			}).Info("Reward distributed")
		}
		results = append(results, res)
	}

	return results
}

func (e *Engine) settle(ctx context.Context, res *DistributionResult, reward models.Reward, status models.RewardStatus, sig string) {
	if _, err := e.store.SettleReward(ctx, reward.ID, status, sig); err != nil {
		// The store is the source of truth; surface the failure in the
		// result rather than hiding it behind the ledger outcome.
		e.log.WithFields(logrus.Fields{"reward_id": reward.ID, "error": err}).
			Error("Failed to record reward settlement")
		res.Err = err
		res.Status = reward.Status
		return
	}
	res.Status = status
	res.TxSignature = sig
}

// RunPeriod closes a reward period: every active node with metrics gets a
// pending reward computed from its current record, and the resulting batch
// is distributed immediately.
func (e *Engine) RunPeriod(ctx context.Context, periodStart, periodEnd time.Time) ([]DistributionResult, error) {
	nodes, _, err := e.store.ListNodes(ctx, store.NodeFilter{Status: models.StatusActive})
	if err != nil {
		return nil, err
	}

	var batch []models.Reward
	for i := range nodes {
		node := &nodes[i]
		amount := e.params.Calculate(node.Metrics)
		if amount == 0 {
			continue
		}
		reward, err := e.CreatePending(ctx, node, amount, e.params.Categorize(node.Metrics), periodStart, periodEnd)
		if err != nil {
			e.log.WithFields(logrus.Fields{"node_id": node.NodeID, "error": err}).
				Warn("Skipping reward for node")
			continue
		}
		batch = append(batch, *reward)
	}

	e.log.WithFields(logrus.Fields{
		"period_start": periodStart,
		"period_end":   periodEnd,
		"rewards":      len(batch),
	}).Info("Reward period closed")
	return e.DistributeBatch(ctx, batch), nil
}
