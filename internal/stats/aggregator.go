// Package stats periodically snapshots network-wide counters and serves the
// historical series behind the activity views.
package stats

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elicharlese/ThePublic-sub000/internal/models"
	"github.com/elicharlese/ThePublic-sub000/internal/solana"
	"github.com/elicharlese/ThePublic-sub000/internal/store"
	"github.com/elicharlese/ThePublic-sub000/internal/topology"
)

// Ledger supplies the on-chain counters merged into each snapshot.
type Ledger interface {
	GetNetworkStats(ctx context.Context) (solana.NetworkStats, error)
}

// Aggregator builds and persists immutable stats snapshots.
type Aggregator struct {
	store         *store.Store
	ledger        Ledger
	ledgerTimeout time.Duration
	log           *logrus.Entry
}

// New builds an aggregator.
func New(st *store.Store, ledger Ledger, ledgerTimeout time.Duration) *Aggregator {
	return &Aggregator{
		store:         st,
		ledger:        ledger,
		ledgerTimeout: ledgerTimeout,
		log:           logrus.WithField("component", "stats"),
	}
}

// Aggregate computes the current counters from the node set without
// persisting anything. Pure aggregation over its input.
func Aggregate(nodes []models.Node) models.NetworkStatsSnapshot {
	snap := models.NetworkStatsSnapshot{TotalNodes: int64(len(nodes))}

	var uptimeSum, responseSum float64
	var uptimeCount, responseCount int64
	for _, n := range nodes {
		if n.Status == models.StatusActive {
			snap.ActiveNodes++
		}
		if n.Metrics.UsersServed != nil {
			snap.TotalUsers += *n.Metrics.UsersServed
		}
		if n.Metrics.DataTransferred != nil {
			snap.DataTransferred += *n.Metrics.DataTransferred
		}
		if n.Metrics.UptimePercentage != nil {
			uptimeSum += *n.Metrics.UptimePercentage
			uptimeCount++
		}
		if n.Metrics.ResponseTimeMs != nil {
			responseSum += *n.Metrics.ResponseTimeMs
			responseCount++
		}
	}
	if uptimeCount > 0 {
		snap.AvgUptime = uptimeSum / float64(uptimeCount)
	}
	if responseCount > 0 {
		snap.AvgResponseTime = responseSum / float64(responseCount)
	}
	snap.CoverageAreaKm2 = topology.CoverageAreaKm2(nodes)
	return snap
}

// Snapshot aggregates the current node set with the on-chain counters and
// appends the result as an immutable row. A ledger failure degrades the
// on-chain counters to zero rather than losing the snapshot; LedgerOK
// reports which happened.
func (a *Aggregator) Snapshot(ctx context.Context) (*models.NetworkStatsSnapshot, bool, error) {
	nodes, _, err := a.store.ListNodes(ctx, store.NodeFilter{})
	if err != nil {
		return nil, false, err
	}

	snap := Aggregate(nodes)

	ledgerOK := true
	lctx, cancel := context.WithTimeout(ctx, a.ledgerTimeout)
	chain, err := a.ledger.GetNetworkStats(lctx)
	cancel()
	if err != nil {
		a.log.Warnf("snapshot proceeding without on-chain counters: %v", err)
		ledgerOK = false
	} else {
		snap.BlockHeight = chain.BlockHeight
		snap.OnChainTotalNodes = chain.TotalNodes
		snap.OnChainActiveNodes = chain.ActiveNodes
	}

	if err := a.store.InsertSnapshot(ctx, &snap); err != nil {
		return nil, ledgerOK, err
	}
	return &snap, ledgerOK, nil
}

// timeframes maps the public timeframe enum to a lookback window. Unknown
// values fall back to 24h, matching the historical behavior.
var timeframes = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// Lookback resolves a timeframe string to its window.
func Lookback(timeframe string) time.Duration {
	if d, ok := timeframes[timeframe]; ok {
		return d
	}
	return timeframes["24h"]
}

// History returns snapshots within the timeframe, oldest first.
func (a *Aggregator) History(ctx context.Context, timeframe string) ([]models.NetworkStatsSnapshot, error) {
	since := time.Now().UTC().Add(-Lookback(timeframe))
	return a.store.SnapshotsSince(ctx, since)
}

// Run snapshots on a fixed interval until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.log.Infof("Stats aggregator started (every %s)", interval)
	for {
		select {
		case <-ctx.Done():
			a.log.Info("Stats aggregator stopped")
			return
		case <-ticker.C:
			if _, _, err := a.Snapshot(ctx); err != nil {
				a.log.Errorf("Scheduled snapshot failed: %v", err)
			}
		}
	}
}
