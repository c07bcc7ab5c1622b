package rewards

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

// fakeLedger settles every transfer except node ids listed in failFor.
type fakeLedger struct {
	failFor map[string]bool
	calls   int
}

func (f *fakeLedger) DistributeRewards(_ context.Context, nodeIDs []string, amounts []float64) ([]string, error) {
	f.calls++
	sigs := make([]string, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if f.failFor[id] {
			return nil, errors.New("insufficient treasury balance")
		}
		sigs = append(sigs, "sig_"+id)
	}
	return sigs, nil
}

func TestCalculateFullFormula(t *testing.T) {
	m := models.PerformanceMetrics{
		UptimePercentage: fptr(100),
		DataTransferred:  iptr(1 << 30),
		UsersServed:      iptr(5),
		ReliabilityScore: fptr(97),
	}
	// 100*1.0 + 1 GiB + 5 users * 10 + reliability bonus.
	assert.Equal(t, 201.0, DefaultParams().Calculate(m))
}

func TestCalculateNoMetrics(t *testing.T) {
	assert.Equal(t, 0.0, DefaultParams().Calculate(models.PerformanceMetrics{}))
}

func TestCalculateReliabilityAtThresholdGetsNoBonus(t *testing.T) {
	p := DefaultParams()
	m := models.PerformanceMetrics{UptimePercentage: fptr(50), ReliabilityScore: fptr(95)}
	assert.Equal(t, 50.0, p.Calculate(m))

	m.ReliabilityScore = fptr(95.1)
	assert.Equal(t, 100.0, p.Calculate(m))
}

func TestCalculateMonotonicity(t *testing.T) {
	p := DefaultParams()
	base := models.PerformanceMetrics{
		UptimePercentage: fptr(80),
		DataTransferred:  iptr(1 << 30),
		UsersServed:      iptr(3),
	}
	ref := p.Calculate(base)

	moreUptime := base
	moreUptime.UptimePercentage = fptr(90)
	assert.GreaterOrEqual(t, p.Calculate(moreUptime), ref)

	moreData := base
	moreData.DataTransferred = iptr(5 << 30)
	assert.GreaterOrEqual(t, p.Calculate(moreData), ref)

	moreUsers := base
	moreUsers.UsersServed = iptr(30)
	assert.GreaterOrEqual(t, p.Calculate(moreUsers), ref)
}

func TestCalculateNeverNegative(t *testing.T) {
	p := DefaultParams()
	m := models.PerformanceMetrics{
		UptimePercentage: fptr(0),
		DataTransferred:  iptr(0),
		UsersServed:      iptr(0),
	}
	assert.Equal(t, 0.0, p.Calculate(m))
}

func TestCategorize(t *testing.T) {
	p := DefaultParams()

	assert.Equal(t, models.RewardCoverage, p.Categorize(models.PerformanceMetrics{
		UptimePercentage: fptr(99),
	}))
	assert.Equal(t, models.RewardTraffic, p.Categorize(models.PerformanceMetrics{
		UptimePercentage: fptr(50),
		DataTransferred:  iptr(200 << 30),
	}))
	assert.Equal(t, models.RewardBonus, p.Categorize(models.PerformanceMetrics{
		UptimePercentage: fptr(50),
		UsersServed:      iptr(20),
	}))
	assert.Equal(t, models.RewardReliability, p.Categorize(models.PerformanceMetrics{
		ReliabilityScore: fptr(99),
	}))
}

func seedNode(t *testing.T, st *store.Store, nodeID, ownerID string, status models.NodeStatus, m models.PerformanceMetrics) *models.Node {
	t.Helper()
	node := &models.Node{
		NodeID:  nodeID,
		OwnerID: ownerID,
		Name:    nodeID,
		Status:  status,
		Metrics: m,
	}
	require.NoError(t, st.CreateNode(context.Background(), node))
	return node
}

func TestCreatePendingValidation(t *testing.T) {
	st := openTestStore(t)
	e := New(st, &fakeLedger{}, DefaultParams(), time.Second)
	now := time.Now().UTC()

	node := seedNode(t, st, "node_1", "owner_1", models.StatusActive, models.PerformanceMetrics{})

	_, err := e.CreatePending(context.Background(), node, -1, models.RewardCoverage, now, now)
	assert.Error(t, err)

	orphan := *node
	orphan.OwnerID = ""
	_, err = e.CreatePending(context.Background(), &orphan, 10, models.RewardCoverage, now, now)
	assert.Error(t, err)

	reward, err := e.CreatePending(context.Background(), node, 10, models.RewardCoverage, now, now)
	require.NoError(t, err)
	assert.Equal(t, models.RewardPending, reward.Status)
	assert.Equal(t, "owner_1", reward.OwnerID)
}

func TestDistributeBatchIsolatesFailures(t *testing.T) {
	st := openTestStore(t)
	ledger := &fakeLedger{failFor: map[string]bool{"node_2": true}}
	e := New(st, ledger, DefaultParams(), time.Second)
	ctx := context.Background()
	now := time.Now().UTC()

	var batch []models.Reward
	for i := 1; i <= 3; i++ {
		nodeID := fmt.Sprintf("node_%d", i)
		node := seedNode(t, st, nodeID, "owner_1", models.StatusActive, models.PerformanceMetrics{})
		reward, err := e.CreatePending(ctx, node, float64(i*10), models.RewardCoverage, now.Add(-time.Hour), now)
		require.NoError(t, err)
		batch = append(batch, *reward)
	}

	results := e.DistributeBatch(ctx, batch)
	require.Len(t, results, 3)

	byNode := make(map[string]DistributionResult)
	for _, r := range results {
		byNode[r.NodeID] = r
	}
	assert.Equal(t, models.RewardDistributed, byNode["node_1"].Status)
	assert.Equal(t, "sig_node_1", byNode["node_1"].TxSignature)
	assert.Equal(t, models.RewardFailed, byNode["node_2"].Status)
	assert.Error(t, byNode["node_2"].Err)
	assert.Equal(t, models.RewardDistributed, byNode["node_3"].Status)

	// Nothing stays pending after a batch completes.
	for i := 1; i <= 3; i++ {
		rewards, _, err := st.ListRewardsByNode(ctx, fmt.Sprintf("node_%d", i), 10, 0)
		require.NoError(t, err)
		require.Len(t, rewards, 1)
		assert.NotEqual(t, models.RewardPending, rewards[0].Status)
	}
}

func TestDistributeBatchMalformedRewardSkipsLedger(t *testing.T) {
	st := openTestStore(t)
	ledger := &fakeLedger{}
	e := New(st, ledger, DefaultParams(), time.Second)
	ctx := context.Background()

	reward := &models.Reward{
		NodeID: "node_1",
		Amount: 10,
		Status: models.RewardPending,
	}
	require.NoError(t, st.CreateReward(ctx, reward))

	// Missing owner must fail locally without a ledger call.
	results := e.DistributeBatch(ctx, []models.Reward{*reward})
	require.Len(t, results, 1)
	assert.Equal(t, models.RewardFailed, results[0].Status)
	assert.Error(t, results[0].Err)
	assert.Zero(t, ledger.calls)
}

func TestRunPeriodRewardsActiveNodesOnly(t *testing.T) {
	st := openTestStore(t)
	ledger := &fakeLedger{}
	e := New(st, ledger, DefaultParams(), time.Second)
	ctx := context.Background()

	metrics := models.PerformanceMetrics{UptimePercentage: fptr(100), UsersServed: iptr(2)}
	seedNode(t, st, "node_active", "owner_1", models.StatusActive, metrics)
	seedNode(t, st, "node_idle", "owner_1", models.StatusInactive, metrics)
	// Active but zero-valued metrics earn nothing and get no reward row.
	seedNode(t, st, "node_zero", "owner_1", models.StatusActive, models.PerformanceMetrics{UptimePercentage: fptr(0)})

	end := time.Now().UTC()
	results, err := e.RunPeriod(ctx, end.Add(-24*time.Hour), end)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "node_active", results[0].NodeID)
	assert.Equal(t, models.RewardDistributed, results[0].Status)

	rewards, _, err := st.ListRewardsByNode(ctx, "node_active", 10, 0)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, 120.0, rewards[0].Amount)

	for _, nodeID := range []string{"node_idle", "node_zero"} {
		rewards, _, err := st.ListRewardsByNode(ctx, nodeID, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, rewards)
	}
}
