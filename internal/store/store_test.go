package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/elicharlese/ThePublic-sub000/internal/errs"
	"github.com/elicharlese/ThePublic-sub000/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	st, err := New(db)
	require.NoError(t, err)
	return st
}

func seedNode(t *testing.T, st *Store, nodeID, ownerID string, status models.NodeStatus, lat, lng float64) *models.Node {
	t.Helper()
	node := &models.Node{
		NodeID:  nodeID,
		OwnerID: ownerID,
		Name:    nodeID,
		Status:  status,
		Lat:     lat,
		Lng:     lng,
		City:    "San Francisco",
		Country: "United States",
	}
	require.NoError(t, st.CreateNode(context.Background(), node))
	return node
}

func TestGetOwnedNodeMergesAbsenceAndForeignOwnership(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	seedNode(t, st, "node_1", "owner_1", models.StatusActive, 37.77, -122.41)

	_, err := st.GetOwnedNode(ctx, "node_1", "owner_2")
	assert.ErrorIs(t, err, errs.ErrNotFoundOrUnauthorized)

	_, err = st.GetOwnedNode(ctx, "node_missing", "owner_1")
	assert.ErrorIs(t, err, errs.ErrNotFoundOrUnauthorized)

	node, err := st.GetOwnedNode(ctx, "node_1", "owner_1")
	require.NoError(t, err)
	assert.Equal(t, "node_1", node.NodeID)
}

func TestListNodesFilters(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	seedNode(t, st, "node_sf", "owner_1", models.StatusActive, 37.77, -122.41)
	seedNode(t, st, "node_oak", "owner_1", models.StatusInactive, 37.80, -122.27)
	berlin := seedNode(t, st, "node_berlin", "owner_2", models.StatusActive, 52.52, 13.40)
	berlin.City = "Berlin"
	berlin.Country = "Germany"
	_, err := st.UpdateNode(ctx, berlin, func(*models.Node) {})
	require.NoError(t, err)

	nodes, total, err := st.ListNodes(ctx, NodeFilter{Status: models.StatusActive})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, nodes, 2)

	nodes, total, err = st.ListNodes(ctx, NodeFilter{Location: "Berlin"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, nodes, 1)
	assert.Equal(t, "node_berlin", nodes[0].NodeID)

	// Bay Area bounding box excludes Berlin.
	nodes, _, err = st.ListNodes(ctx, NodeFilter{Bounds: &Bounds{North: 38, South: 37, East: -122, West: -123}})
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestListNodesPagination(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		seedNode(t, st, fmt.Sprintf("node_%d", i), "owner_1", models.StatusActive, 37.77, -122.41)
	}

	nodes, total, err := st.ListNodes(ctx, NodeFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, nodes, 1)
}

func TestSettleRewardGuardsImmutability(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	reward := &models.Reward{
		NodeID:  "node_1",
		OwnerID: "owner_1",
		Amount:  42,
		Status:  models.RewardPending,
	}
	require.NoError(t, st.CreateReward(ctx, reward))

	settled, err := st.SettleReward(ctx, reward.ID, models.RewardDistributed, "sig_1")
	require.NoError(t, err)
	assert.Equal(t, models.RewardDistributed, settled.Status)
	assert.Equal(t, "sig_1", settled.TxSignature)

	// A settled reward can never be settled again.
	_, err = st.SettleReward(ctx, reward.ID, models.RewardFailed, "")
	assert.Error(t, err)

	rewards, _, err := st.ListRewardsByNode(ctx, "node_1", 10, 0)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, models.RewardDistributed, rewards[0].Status)
	assert.Equal(t, "sig_1", rewards[0].TxSignature)
}

func TestSettleRewardRejectsPendingTarget(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	reward := &models.Reward{NodeID: "node_1", OwnerID: "owner_1", Amount: 1, Status: models.RewardPending}
	require.NoError(t, st.CreateReward(ctx, reward))

	_, err := st.SettleReward(ctx, reward.ID, models.RewardPending, "")
	assert.True(t, errs.IsValidation(err))

	_, err = st.SettleReward(ctx, uuid.New(), models.RewardFailed, "")
	assert.ErrorIs(t, err, errs.ErrNotFoundOrUnauthorized)
}

func TestNodesWithHeartbeatSince(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	fresh := seedNode(t, st, "node_fresh", "owner_1", models.StatusActive, 37.77, -122.41)
	stale := seedNode(t, st, "node_stale", "owner_1", models.StatusActive, 37.78, -122.42)

	now := time.Now().UTC()
	recent := now.Add(-time.Minute)
	old := now.Add(-48 * time.Hour)
	_, err := st.UpdateNode(ctx, fresh, func(n *models.Node) { n.LastHeartbeat = &recent })
	require.NoError(t, err)
	_, err = st.UpdateNode(ctx, stale, func(n *models.Node) { n.LastHeartbeat = &old })
	require.NoError(t, err)

	nodes, err := st.NodesWithHeartbeatSince(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "node_fresh", nodes[0].NodeID)
}

func TestSnapshotsSinceOrderedOldestFirst(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, age := range []time.Duration{3 * time.Hour, time.Hour, 2 * time.Hour} {
		snap := &models.NetworkStatsSnapshot{
			TotalNodes: int64(age / time.Hour),
			CreatedAt:  now.Add(-age),
		}
		require.NoError(t, st.InsertSnapshot(ctx, snap))
	}

	snaps, err := st.SnapshotsSince(ctx, now.Add(-150*time.Minute))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.True(t, snaps[0].CreatedAt.Before(snaps[1].CreatedAt))
}

func TestUpdateNodeLeavesInputUntouched(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	node := seedNode(t, st, "node_1", "owner_1", models.StatusInactive, 37.77, -122.41)

	updated, err := st.UpdateNode(ctx, node, func(n *models.Node) {
		n.Status = models.StatusActive
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, updated.Status)
	assert.Equal(t, models.StatusInactive, node.Status)
}
