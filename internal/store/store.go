// Package store is the durable persistence layer over the Supabase Postgres
// database. It is the single source of truth: every write failure here is
// fatal to the operation that caused it.
//
// Mutations are reported to a ChangeObserver with the old and new row values
// so the event layer can classify what actually changed.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/elicharlese/ThePublic-sub000/internal/errs"
	"github.com/elicharlese/ThePublic-sub000/internal/models"
)

// ChangeObserver receives row-level change notifications. A nil old value
// means insert, a nil new value means delete.
type ChangeObserver interface {
	NodeChanged(old, new *models.Node)
	RewardChanged(old, new *models.Reward)
	SnapshotInserted(snap *models.NetworkStatsSnapshot)
}

// Store wraps the database handle.
type Store struct {
	db       *gorm.DB
	observer ChangeObserver
}

// New wraps an open gorm handle and runs migrations.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&models.Node{}, &models.Reward{}, &models.NetworkStatsSnapshot{}); err != nil {
		return nil, errs.Store("migrate", err)
	}
	return &Store{db: db}, nil
}

// SetObserver installs the change observer. Must be called before traffic.
func (s *Store) SetObserver(o ChangeObserver) { s.observer = o }

// Bounds is an optional geographic bounding box filter.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// NodeFilter narrows node listings.
type NodeFilter struct {
	Status   models.NodeStatus
	Location string
	Bounds   *Bounds
	Limit    int
	Offset   int
}

// CreateNode persists a new node row.
func (s *Store) CreateNode(ctx context.Context, node *models.Node) error {
	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(node).Error; err != nil {
		return errs.Store("create node", err)
	}
	if s.observer != nil {
		s.observer.NodeChanged(nil, node)
	}
	return nil
}

// GetNodeByNodeID fetches a node by its external identifier.
func (s *Store) GetNodeByNodeID(ctx context.Context, nodeID string) (*models.Node, error) {
	var node models.Node
	err := s.db.WithContext(ctx).Where("node_id = ?", nodeID).First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrNotFoundOrUnauthorized
	}
	if err != nil {
		return nil, errs.Store("get node", err)
	}
	return &node, nil
}

// GetOwnedNode fetches a node only if ownerID owns it. Absence and foreign
// ownership are indistinguishable to the caller.
func (s *Store) GetOwnedNode(ctx context.Context, nodeID, ownerID string) (*models.Node, error) {
	var node models.Node
	err := s.db.WithContext(ctx).
		Where("node_id = ? AND owner_id = ?", nodeID, ownerID).
		First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrNotFoundOrUnauthorized
	}
	if err != nil {
		return nil, errs.Store("get owned node", err)
	}
	return &node, nil
}

// ListNodes returns a filtered page of nodes and the total match count.
func (s *Store) ListNodes(ctx context.Context, f NodeFilter) ([]models.Node, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Node{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Location != "" {
		q = q.Where("city LIKE ? OR country LIKE ?", "%"+f.Location+"%", "%"+f.Location+"%")
	}
	if f.Bounds != nil {
		q = q.Where("lat BETWEEN ? AND ?", f.Bounds.South, f.Bounds.North).
			Where("lng BETWEEN ? AND ?", f.Bounds.West, f.Bounds.East)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errs.Store("count nodes", err)
	}

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var nodes []models.Node
	if err := q.Offset(f.Offset).Order("created_at").Find(&nodes).Error; err != nil {
		return nil, 0, errs.Store("list nodes", err)
	}
	return nodes, total, nil
}

// UpdateNode applies mutate to a copy of node, saves the whole row and
// reports the change. The returned value is the saved row; node itself is
// left untouched.
func (s *Store) UpdateNode(ctx context.Context, node *models.Node, mutate func(*models.Node)) (*models.Node, error) {
	old := *node
	updated := *node
	mutate(&updated)
	updated.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Save(&updated).Error; err != nil {
		return nil, errs.Store("update node", err)
	}
	if s.observer != nil {
		s.observer.NodeChanged(&old, &updated)
	}
	return &updated, nil
}

// NodesWithHeartbeatSince returns nodes that reported after t, most recent
// first.
func (s *Store) NodesWithHeartbeatSince(ctx context.Context, t time.Time) ([]models.Node, error) {
	var nodes []models.Node
	err := s.db.WithContext(ctx).
		Where("last_heartbeat >= ?", t).
		Order("last_heartbeat DESC").
		Find(&nodes).Error
	if err != nil {
		return nil, errs.Store("heartbeat activity", err)
	}
	return nodes, nil
}

// CreateReward persists a new reward row.
func (s *Store) CreateReward(ctx context.Context, reward *models.Reward) error {
	if reward.ID == uuid.Nil {
		reward.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(reward).Error; err != nil {
		return errs.Store("create reward", err)
	}
	if s.observer != nil {
		s.observer.RewardChanged(nil, reward)
	}
	return nil
}

// SettleReward moves a pending reward to distributed or failed. Settled
// rewards are immutable, so the guard refuses anything not pending.
func (s *Store) SettleReward(ctx context.Context, id uuid.UUID, status models.RewardStatus, txSignature string) (*models.Reward, error) {
	if status != models.RewardDistributed && status != models.RewardFailed {
		return nil, errs.Validation("status", fmt.Sprintf("cannot settle to %q", status))
	}

	var old models.Reward
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&old).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrNotFoundOrUnauthorized
	}
	if err != nil {
		return nil, errs.Store("get reward", err)
	}

	res := s.db.WithContext(ctx).Model(&models.Reward{}).
		Where("id = ? AND status = ?", id, models.RewardPending).
		Updates(map[string]interface{}{
			"status":       status,
			"tx_signature": txSignature,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, errs.Store("settle reward", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errs.Store("settle reward", fmt.Errorf("reward %s is not pending", id))
	}

	updated := old
	updated.Status = status
	updated.TxSignature = txSignature
	if s.observer != nil {
		s.observer.RewardChanged(&old, &updated)
	}
	return &updated, nil
}

// ListRewardsByNode returns a reward page for one node, newest first.
func (s *Store) ListRewardsByNode(ctx context.Context, nodeID string, limit, offset int) ([]models.Reward, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Reward{}).Where("node_id = ?", nodeID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errs.Store("count rewards", err)
	}

	var rewards []models.Reward
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rewards).Error; err != nil {
		return nil, 0, errs.Store("list rewards", err)
	}
	return rewards, total, nil
}

// InsertSnapshot appends an immutable stats snapshot.
func (s *Store) InsertSnapshot(ctx context.Context, snap *models.NetworkStatsSnapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(snap).Error; err != nil {
		return errs.Store("insert snapshot", err)
	}
	if s.observer != nil {
		s.observer.SnapshotInserted(snap)
	}
	return nil
}

// SnapshotsSince returns snapshots taken at or after t, oldest first.
func (s *Store) SnapshotsSince(ctx context.Context, t time.Time) ([]models.NetworkStatsSnapshot, error) {
	var snaps []models.NetworkStatsSnapshot
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", t).
		Order("created_at ASC").
		Find(&snaps).Error
	if err != nil {
		return nil, errs.Store("list snapshots", err)
	}
	return snaps, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.db.DB()
	if err != nil {
		return errs.Store("ping", err)
	}
	return db.PingContext(ctx)
}
