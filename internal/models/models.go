package models

import (
	"time"

	"github.com/google/uuid"
)

// NodeStatus is the lifecycle state of a registered node.
type NodeStatus string

const (
	StatusInactive    NodeStatus = "inactive"
	StatusActive      NodeStatus = "active"
	StatusMaintenance NodeStatus = "maintenance"
	StatusSuspended   NodeStatus = "suspended"
)

// ValidStatus reports whether s is one of the four node states.
func ValidStatus(s NodeStatus) bool {
	switch s {
	case StatusInactive, StatusActive, StatusMaintenance, StatusSuspended:
		return true
	}
	return false
}

// PerformanceMetrics is the fixed-field performance record reported by a
// heartbeat. Fields are pointers: a node has no metrics until its first
// heartbeat, and each heartbeat replaces the whole record, so unreported
// fields read back as null.
type PerformanceMetrics struct {
	UptimePercentage *float64 `gorm:"column:metric_uptime_percentage" json:"uptime_percentage"`
	DataTransferred  *int64   `gorm:"column:metric_data_transferred" json:"data_transferred"`
	UsersServed      *int64   `gorm:"column:metric_users_served" json:"users_served"`
	ResponseTimeMs   *float64 `gorm:"column:metric_response_time" json:"response_time"`
	ReliabilityScore *float64 `gorm:"column:metric_reliability_score" json:"reliability_score"`
}

// Equal compares two metric records field by field.
func (m PerformanceMetrics) Equal(o PerformanceMetrics) bool {
	return eqF(m.UptimePercentage, o.UptimePercentage) &&
		eqI(m.DataTransferred, o.DataTransferred) &&
		eqI(m.UsersServed, o.UsersServed) &&
		eqF(m.ResponseTimeMs, o.ResponseTimeMs) &&
		eqF(m.ReliabilityScore, o.ReliabilityScore)
}

func eqF(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqI(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Node is a registered community access point.
type Node struct {
	ID            uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	NodeID        string             `gorm:"uniqueIndex;size:64" json:"node_id"`
	OwnerID       string             `gorm:"index;size:64" json:"owner_id"`
	Name          string             `gorm:"size:128" json:"name"`
	Description   string             `json:"description,omitempty"`
	Lat           float64            `json:"lat"`
	Lng           float64            `json:"lng"`
	City          string             `gorm:"size:128" json:"city"`
	Country       string             `gorm:"size:64" json:"country"`
	HardwareType  string             `gorm:"size:128" json:"hardware_type"`
	HardwareSpecs string             `json:"hardware_specs"`
	Capabilities  string             `json:"capabilities,omitempty"` // comma-separated
	Status        NodeStatus         `gorm:"size:16;index" json:"status"`
	Metrics       PerformanceMetrics `gorm:"embedded" json:"performance_metrics"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	LastHeartbeat *time.Time         `json:"last_heartbeat,omitempty"`
}

// RewardCategory classifies what a reward was earned for.
type RewardCategory string

const (
	RewardCoverage    RewardCategory = "coverage"
	RewardTraffic     RewardCategory = "traffic"
	RewardReliability RewardCategory = "reliability"
	RewardBonus       RewardCategory = "bonus"
)

// RewardStatus tracks settlement of a reward through the ledger.
type RewardStatus string

const (
	RewardPending     RewardStatus = "pending"
	RewardDistributed RewardStatus = "distributed"
	RewardFailed      RewardStatus = "failed"
)

// Reward is value owed or paid to a node's owner for a performance period.
// Once distributed or failed it is immutable.
type Reward struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	NodeID      string         `gorm:"index;size:64" json:"node_id"`
	OwnerID     string         `gorm:"index;size:64" json:"owner_id"`
	Amount      float64        `json:"amount"`
	Category    RewardCategory `gorm:"size:16" json:"category"`
	Status      RewardStatus   `gorm:"size:16;index" json:"status"`
	TxSignature string         `gorm:"size:128" json:"transaction_signature,omitempty"`
	PeriodStart time.Time      `json:"period_start"`
	PeriodEnd   time.Time      `json:"period_end"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NetworkStatsSnapshot is an immutable point-in-time aggregate of
// network-wide counters, including the on-chain view from the ledger.
type NetworkStatsSnapshot struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TotalNodes         int64     `json:"total_nodes"`
	ActiveNodes        int64     `json:"active_nodes"`
	TotalUsers         int64     `json:"total_users"`
	DataTransferred    int64     `json:"data_transferred"`
	AvgUptime          float64   `json:"avg_uptime"`
	AvgResponseTime    float64   `json:"avg_response_time"`
	CoverageAreaKm2    float64   `json:"coverage_area_km2"`
	BlockHeight        uint64    `json:"block_height"`
	OnChainTotalNodes  int64     `json:"total_nodes_on_chain"`
	OnChainActiveNodes int64     `json:"active_nodes_on_chain"`
	CreatedAt          time.Time `gorm:"index" json:"created_at"`
}

// TableName keeps the table aligned with the Supabase schema.
func (NetworkStatsSnapshot) TableName() string { return "network_stats" }

// APIResponse is the standard response envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Pagination describes a page of a listing.
type Pagination struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// HealthStatus is the health check response.
type HealthStatus struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services"`
	Timestamp int64             `json:"timestamp"`
}
