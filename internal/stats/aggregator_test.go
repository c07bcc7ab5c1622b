package stats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/elicharlese/ThePublic-sub000/internal/models"
	"github.com/elicharlese/ThePublic-sub000/internal/solana"
	"github.com/elicharlese/ThePublic-sub000/internal/store"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int64) *int64     { return &v }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	st, err := store.New(db)
	require.NoError(t, err)
	return st
}

type fakeLedger struct {
	stats solana.NetworkStats
	fail  bool
}

func (f *fakeLedger) GetNetworkStats(context.Context) (solana.NetworkStats, error) {
	if f.fail {
		return solana.NetworkStats{}, errors.New("gateway unreachable")
	}
	return f.stats, nil
}

func TestAggregate(t *testing.T) {
	nodes := []models.Node{
		{
			NodeID: "node_1", Status: models.StatusActive, Lat: 0, Lng: 0,
			Metrics: models.PerformanceMetrics{
				UptimePercentage: fptr(90),
				UsersServed:      iptr(10),
				DataTransferred:  iptr(1 << 30),
				ResponseTimeMs:   fptr(40),
			},
		},
		{
			NodeID: "node_2", Status: models.StatusActive, Lat: 1, Lng: 1,
			Metrics: models.PerformanceMetrics{
				UptimePercentage: fptr(100),
				UsersServed:      iptr(20),
				DataTransferred:  iptr(2 << 30),
			},
		},
		// No metrics yet; counts toward totals, not averages.
		{NodeID: "node_3", Status: models.StatusInactive, Lat: 0.5, Lng: 0.5},
	}

	snap := Aggregate(nodes)
	assert.EqualValues(t, 3, snap.TotalNodes)
	assert.EqualValues(t, 2, snap.ActiveNodes)
	assert.EqualValues(t, 30, snap.TotalUsers)
	assert.EqualValues(t, 3<<30, snap.DataTransferred)
	assert.Equal(t, 95.0, snap.AvgUptime)
	assert.Equal(t, 40.0, snap.AvgResponseTime)
	assert.InDelta(t, 111*111, snap.CoverageAreaKm2, 1e-9)
}

func TestAggregateEmpty(t *testing.T) {
	snap := Aggregate(nil)
	assert.Zero(t, snap.TotalNodes)
	assert.Zero(t, snap.AvgUptime)
	assert.Zero(t, snap.CoverageAreaKm2)
}

func TestSnapshotMergesOnChainCounters(t *testing.T) {
	st := openTestStore(t)
	ledger := &fakeLedger{stats: solana.NetworkStats{BlockHeight: 1234, TotalNodes: 7, ActiveNodes: 5}}
	a := New(st, ledger, time.Second)
	ctx := context.Background()

	require.NoError(t, st.CreateNode(ctx, &models.Node{NodeID: "node_1", OwnerID: "owner_1", Status: models.StatusActive}))

	snap, ledgerOK, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, ledgerOK)
	assert.EqualValues(t, 1, snap.TotalNodes)
	assert.EqualValues(t, 1234, snap.BlockHeight)
	assert.EqualValues(t, 7, snap.OnChainTotalNodes)
	assert.EqualValues(t, 5, snap.OnChainActiveNodes)

	// The snapshot persisted.
	snaps, err := st.SnapshotsSince(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestSnapshotDegradesOnLedgerFailure(t *testing.T) {
	st := openTestStore(t)
	a := New(st, &fakeLedger{fail: true}, time.Second)
	ctx := context.Background()

	require.NoError(t, st.CreateNode(ctx, &models.Node{NodeID: "node_1", OwnerID: "owner_1", Status: models.StatusActive}))

	snap, ledgerOK, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, ledgerOK)
	assert.EqualValues(t, 1, snap.TotalNodes)
	assert.Zero(t, snap.BlockHeight)
	assert.Zero(t, snap.OnChainTotalNodes)

	// A degraded snapshot still persists.
	snaps, err := st.SnapshotsSince(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestLookback(t *testing.T) {
	assert.Equal(t, time.Hour, Lookback("1h"))
	assert.Equal(t, 24*time.Hour, Lookback("24h"))
	assert.Equal(t, 7*24*time.Hour, Lookback("7d"))
	assert.Equal(t, 30*24*time.Hour, Lookback("30d"))
	// Unknown values fall back to a day.
	assert.Equal(t, 24*time.Hour, Lookback("1y"))
	assert.Equal(t, 24*time.Hour, Lookback(""))
}

func TestHistoryWindow(t *testing.T) {
	st := openTestStore(t)
	a := New(st, &fakeLedger{}, time.Second)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, age := range []time.Duration{30 * time.Minute, 2 * time.Hour, 3 * 24 * time.Hour} {
		require.NoError(t, st.InsertSnapshot(ctx, &models.NetworkStatsSnapshot{CreatedAt: now.Add(-age)}))
	}

	hour, err := a.History(ctx, "1h")
	require.NoError(t, err)
	assert.Len(t, hour, 1)

	day, err := a.History(ctx, "24h")
	require.NoError(t, err)
	assert.Len(t, day, 2)

	week, err := a.History(ctx, "7d")
	require.NoError(t, err)
	assert.Len(t, week, 3)
	assert.True(t, week[0].CreatedAt.Before(week[1].CreatedAt))
}
