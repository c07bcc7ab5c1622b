// Package registry owns node records: registration, heartbeat ingestion and
// status transitions.
//
// The two ledger policies in here are deliberate and must stay separate:
// heartbeats are frequent and never blocked by the chain (best-effort, local
// state stays authoritative), while status changes affect reward eligibility
// and are gated on a successful ledger write.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elicharlese/ThePublic-sub000/internal/errs"
	"github.com/elicharlese/ThePublic-sub000/internal/geo"
	"github.com/elicharlese/ThePublic-sub000/internal/models"
	"github.com/elicharlese/ThePublic-sub000/internal/store"
)

// Ledger is the subset of the chain gateway the registry needs.
type Ledger interface {
	RegisterNode(ctx context.Context, nodeID string, lat, lng float64, country, ownerID string) (string, error)
	UpdateNodeStatus(ctx context.Context, nodeID string, status models.NodeStatus, ownerID string) (string, error)
	SubmitHeartbeat(ctx context.Context, nodeID string, metrics models.PerformanceMetrics, ownerID string) (string, error)
}

// GeoResolver fills in city/country for registrations that omit them.
type GeoResolver interface {
	Resolve(ip string) (city, country string, ok bool)
}

// Registry drives the node lifecycle.
type Registry struct {
	store         *store.Store
	ledger        Ledger
	geoResolver   GeoResolver
	ledgerTimeout time.Duration
	log           *logrus.Entry
}

// New builds a registry. geoResolver may be nil.
func New(st *store.Store, ledger Ledger, geoResolver GeoResolver, ledgerTimeout time.Duration) *Registry {
	return &Registry{
		store:         st,
		ledger:        ledger,
		geoResolver:   geoResolver,
		ledgerTimeout: ledgerTimeout,
		log:           logrus.WithField("component", "registry"),
	}
}

// RegisterInput is a registration request.
type RegisterInput struct {
	Name          string   `json:"name" binding:"required"`
	Description   string   `json:"description"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	City          string   `json:"city"`
	Country       string   `json:"country"`
	HardwareType  string   `json:"hardware_type"`
	HardwareSpecs string   `json:"hardware_specs"`
	Capabilities  []string `json:"capabilities"`
	// ClientIP backs the geolocation fallback when city/country are blank.
	ClientIP string `json:"-"`
}

// Result is a node operation outcome. LedgerOK is false when the local write
// succeeded but the chain write did not.
type Result struct {
	Node        *models.Node
	TxSignature string
	LedgerOK    bool
}

// Register validates and persists a new node, then records it on chain.
// The database write commits regardless of ledger outcome; a ledger failure
// is reported through Result.LedgerOK, not as an error.
func (r *Registry) Register(ctx context.Context, ownerID string, in RegisterInput) (*Result, error) {
	if ownerID == "" {
		return nil, errs.ErrNotFoundOrUnauthorized
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, errs.Validation("name", "must not be empty")
	}
	if !geo.ValidPoint(geo.Point{Lat: in.Lat, Lng: in.Lng}) {
		return nil, errs.Validation("location", "latitude must be in [-90,90] and longitude in [-180,180]")
	}
	if strings.TrimSpace(in.HardwareType) == "" {
		return nil, errs.Validation("hardware", "type must not be empty")
	}

	city, country := in.City, in.Country
	if (city == "" || country == "") && r.geoResolver != nil && in.ClientIP != "" {
		if c, co, ok := r.geoResolver.Resolve(in.ClientIP); ok {
			if city == "" {
				city = c
			}
			if country == "" {
				country = co
			}
		}
	}

	node := &models.Node{
		NodeID:        newNodeID(),
		OwnerID:       ownerID,
		Name:          in.Name,
		Description:   in.Description,
		Lat:           in.Lat,
		Lng:           in.Lng,
		City:          city,
		Country:       country,
		HardwareType:  in.HardwareType,
		HardwareSpecs: in.HardwareSpecs,
		Capabilities:  strings.Join(in.Capabilities, ","),
		Status:        models.StatusInactive,
	}
	if err := r.store.CreateNode(ctx, node); err != nil {
		return nil, err
	}

	res := &Result{Node: node, LedgerOK: true}
	lctx, cancel := context.WithTimeout(ctx, r.ledgerTimeout)
	defer cancel()
	sig, err := r.ledger.RegisterNode(lctx, node.NodeID, node.Lat, node.Lng, node.Country, ownerID)
	if err != nil {
		r.log.WithFields(logrus.Fields{"node_id": node.NodeID, "error": err}).
			Warn("Node registered locally but on-chain registration failed")
		res.LedgerOK = false
	} else {
		res.TxSignature = sig
	}

	r.log.WithFields(logrus.Fields{"node_id": node.NodeID, "owner_id": ownerID}).Info("Node registered")
	return res, nil
}

// SubmitHeartbeat replaces the node's metrics record, advances
// last_heartbeat and promotes inactive nodes to active. The ledger write is
// best-effort: a failure is logged and reported via LedgerOK but never fails
// the heartbeat, since local state is authoritative for the dashboard.
func (r *Registry) SubmitHeartbeat(ctx context.Context, nodeID, callerOwnerID string, metrics models.PerformanceMetrics) (*Result, error) {
	node, err := r.store.GetOwnedNode(ctx, nodeID, callerOwnerID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updated, err := r.store.UpdateNode(ctx, node, func(n *models.Node) {
		n.Metrics = metrics
		if n.LastHeartbeat == nil || now.After(*n.LastHeartbeat) {
			n.LastHeartbeat = &now
		}
		if n.Status == models.StatusInactive {
			n.Status = models.StatusActive
		}
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Node: updated, LedgerOK: true}
	lctx, cancel := context.WithTimeout(ctx, r.ledgerTimeout)
	defer cancel()
	sig, err := r.ledger.SubmitHeartbeat(lctx, nodeID, metrics, callerOwnerID)
	if err != nil {
		r.log.WithFields(logrus.Fields{"node_id": nodeID, "error": err}).
			Warn("Heartbeat stored locally but on-chain submission failed")
		res.LedgerOK = false
	} else {
		res.TxSignature = sig
	}
	return res, nil
}

// UpdateStatus transitions a node's status. The ledger write happens first
// and gates the local change: on ledger failure nothing changes locally.
func (r *Registry) UpdateStatus(ctx context.Context, nodeID, callerOwnerID string, newStatus models.NodeStatus) (*Result, error) {
	if !models.ValidStatus(newStatus) {
		return nil, errs.Validation("status", fmt.Sprintf("unknown status %q", newStatus))
	}

	node, err := r.store.GetOwnedNode(ctx, nodeID, callerOwnerID)
	if err != nil {
		return nil, err
	}
	if node.Status == newStatus {
		return &Result{Node: node, LedgerOK: true}, nil
	}

	lctx, cancel := context.WithTimeout(ctx, r.ledgerTimeout)
	defer cancel()
	sig, err := r.ledger.UpdateNodeStatus(lctx, nodeID, newStatus, callerOwnerID)
	if err != nil {
		return nil, errs.Ledger("updateNodeStatus", err)
	}

	updated, err := r.store.UpdateNode(ctx, node, func(n *models.Node) {
		n.Status = newStatus
	})
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"node_id":    nodeID,
		"old_status": node.Status,
		"new_status": newStatus,
		"signature":  sig,
	}).Info("Node status updated")
	return &Result{Node: updated, TxSignature: sig, LedgerOK: true}, nil
}

// Deactivate soft-deletes a node by setting it inactive.
func (r *Registry) Deactivate(ctx context.Context, nodeID, callerOwnerID string) (*Result, error) {
	return r.UpdateStatus(ctx, nodeID, callerOwnerID, models.StatusInactive)
}

// UpdateDetails changes name/description without touching status or the
// ledger.
func (r *Registry) UpdateDetails(ctx context.Context, nodeID, callerOwnerID, name, description string) (*models.Node, error) {
	node, err := r.store.GetOwnedNode(ctx, nodeID, callerOwnerID)
	if err != nil {
		return nil, err
	}
	return r.store.UpdateNode(ctx, node, func(n *models.Node) {
		if name != "" {
			n.Name = name
		}
		if description != "" {
			n.Description = description
		}
	})
}

// newNodeID builds the stable external identifier, matching the historical
// node_<millis>_<suffix> format.
func newNodeID() string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		// Timestamp alone still yields a usable identifier.
		return fmt.Sprintf("node_%d", time.Now().UnixMilli())
	}
	return fmt.Sprintf("node_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}
