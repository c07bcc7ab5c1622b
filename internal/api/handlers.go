package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/elicharlese/ThePublic-sub000/internal/cache"
	"github.com/elicharlese/ThePublic-sub000/internal/config"
	"github.com/elicharlese/ThePublic-sub000/internal/errs"
	"github.com/elicharlese/ThePublic-sub000/internal/models"
	"github.com/elicharlese/ThePublic-sub000/internal/registry"
	"github.com/elicharlese/ThePublic-sub000/internal/rewards"
	"github.com/elicharlese/ThePublic-sub000/internal/solana"
	"github.com/elicharlese/ThePublic-sub000/internal/stats"
	"github.com/elicharlese/ThePublic-sub000/internal/store"
	"github.com/elicharlese/ThePublic-sub000/internal/topology"
	"github.com/elicharlese/ThePublic-sub000/pkg/middleware"
)

// Handler contains all HTTP handlers.
type Handler struct {
	config     *config.Config
	store      *store.Store
	cache      *cache.Cache
	registry   *registry.Registry
	engine     *rewards.Engine
	aggregator *stats.Aggregator
	ledger     *solana.Client
}

// NewHandler creates a new handler instance.
func NewHandler(cfg *config.Config, st *store.Store, ca *cache.Cache, reg *registry.Registry, eng *rewards.Engine, agg *stats.Aggregator, ledger *solana.Client) *Handler {
	return &Handler{
		config:     cfg,
		store:      st,
		cache:      ca,
		registry:   reg,
		engine:     eng,
		aggregator: agg,
		ledger:     ledger,
	}
}

// SetupRoutes configures all API routes.
func SetupRoutes(r *gin.Engine, h *Handler) {
	// Health check (no auth required)
	r.GET("/health", h.HealthCheck)

	v1 := r.Group("/api")
	v1.Use(middleware.APIKeyAuth(h.config.ValidAPIKeys))
	v1.Use(middleware.RateLimit(h.config.RateLimitRPM))
	v1.Use(middleware.UserIdentity())
	{
		// Nodes
		v1.GET("/nodes", h.ListNodes)
		v1.GET("/nodes/:id", h.GetNode)
		v1.GET("/nodes/:id/rewards", h.GetNodeRewards)
		v1.GET("/nodes/:id/connections", h.GetNodeConnections)

		authed := v1.Group("")
		authed.Use(middleware.RequireUser())
		{
			authed.POST("/nodes", h.RegisterNode)
			authed.PUT("/nodes/:id", h.UpdateNode)
			authed.DELETE("/nodes/:id", h.DeleteNode)
			authed.POST("/nodes/:id/heartbeat", h.SubmitHeartbeat)
		}

		// Network
		v1.GET("/network/map", h.GetNetworkMap)
		v1.GET("/network/stats", h.GetNetworkStats)
		v1.GET("/network/activity", h.GetNetworkActivity)
	}
}

// respondError maps the error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errs.IsValidation(err):
		c.JSON(http.StatusBadRequest, models.APIResponse{Error: err.Error()})
	case errors.Is(err, errs.ErrNotFoundOrUnauthorized):
		c.JSON(http.StatusNotFound, models.APIResponse{Error: "Node not found or unauthorized"})
	case errs.IsLedger(err):
		logrus.Error("Ledger operation failed: ", err)
		c.JSON(http.StatusBadGateway, models.APIResponse{Error: "Ledger operation failed"})
	default:
		logrus.Error("Internal error: ", err)
		c.JSON(http.StatusInternalServerError, models.APIResponse{Error: "Internal server error"})
	}
}

func ledgerStatus(ok bool) string {
	if ok {
		return "ok"
	}
	return "degraded"
}

// HealthCheck returns system health status.
func (h *Handler) HealthCheck(c *gin.Context) {
	health := &models.HealthStatus{
		Status:    "healthy",
		Services:  make(map[string]string),
		Timestamp: time.Now().Unix(),
	}

	if err := h.store.Ping(c.Request.Context()); err != nil {
		health.Services["database"] = "unhealthy"
		health.Status = "degraded"
		logrus.Warn("Database health check failed: ", err)
	} else {
		health.Services["database"] = "healthy"
	}

	if err := h.cache.Ping(c.Request.Context()); err != nil {
		health.Services["redis"] = "unhealthy"
		logrus.Warn("Redis health check failed: ", err)
	} else {
		health.Services["redis"] = "healthy"
	}

	if err := h.ledger.HealthCheck(c.Request.Context()); err != nil {
		health.Services["ledger"] = "unhealthy"
		logrus.Warn("Ledger health check failed: ", err)
	} else {
		health.Services["ledger"] = "healthy"
	}

	statusCode := http.StatusOK
	if health.Services["database"] == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, health)
}

// RegisterNode registers a new node for the authenticated owner. The local
// record commits even when the chain write fails; ledger_status tells the
// caller which happened.
func (h *Handler) RegisterNode(c *gin.Context) {
	var in registry.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	in.ClientIP = c.ClientIP()

	res, err := h.registry.Register(c.Request.Context(), middleware.CallerID(c), in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.APIResponse{
		Success: true,
		Data: gin.H{
			"node":                  res.Node,
			"transaction_signature": res.TxSignature,
			"ledger_status":         ledgerStatus(res.LedgerOK),
		},
	})
}

// ListNodes returns a filtered page of nodes.
func (h *Handler) ListNodes(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	filter := store.NodeFilter{
		Status:   models.NodeStatus(c.Query("status")),
		Location: c.Query("location"),
		Limit:    limit,
		Offset:   offset,
	}
	if filter.Status != "" && !models.ValidStatus(filter.Status) {
		c.JSON(http.StatusBadRequest, models.APIResponse{Error: "Unknown status filter"})
		return
	}

	nodes, total, err := h.store.ListNodes(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data: gin.H{
			"nodes":      nodes,
			"pagination": models.Pagination{Total: total, Limit: limit, Offset: offset},
		},
	})
}

// GetNode returns one node with its on-chain account data.
func (h *Handler) GetNode(c *gin.Context) {
	node, err := h.store.GetNodeByNodeID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	// On-chain data is decoration here; a gateway failure must not hide the
	// local record.
	var account *solana.NodeAccount
	if acc, err := h.ledger.GetNodeAccount(c.Request.Context(), node.NodeID); err == nil {
		account = acc
	} else {
		logrus.Warn("Failed to fetch on-chain account: ", err)
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data: gin.H{
			"node":        node,
			"solana_data": account,
		},
	})
}

// UpdateNode changes a node's status and/or details. Status transitions are
// ledger-gated: a chain failure leaves the local status untouched and fails
// the request.
func (h *Handler) UpdateNode(c *gin.Context) {
	var in struct {
		Name        string            `json:"name"`
		Description string            `json:"description"`
		Status      models.NodeStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	nodeID := c.Param("id")
	caller := middleware.CallerID(c)

	var node *models.Node
	var txSignature string

	if in.Status != "" {
		res, err := h.registry.UpdateStatus(c.Request.Context(), nodeID, caller, in.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		node = res.Node
		txSignature = res.TxSignature
	}

	if in.Name != "" || in.Description != "" {
		updated, err := h.registry.UpdateDetails(c.Request.Context(), nodeID, caller, in.Name, in.Description)
		if err != nil {
			respondError(c, err)
			return
		}
		node = updated
	}

	if node == nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{Error: "Nothing to update"})
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data: gin.H{
			"node":                  node,
			"transaction_signature": txSignature,
		},
	})
}

// DeleteNode soft-deletes a node by deactivating it.
func (h *Handler) DeleteNode(c *gin.Context) {
	res, err := h.registry.Deactivate(c.Request.Context(), c.Param("id"), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Node deactivated successfully",
		Data: gin.H{
			"transaction_signature": res.TxSignature,
		},
	})
}

// SubmitHeartbeat ingests a performance report for an owned node.
func (h *Handler) SubmitHeartbeat(c *gin.Context) {
	var in struct {
		PerformanceMetrics models.PerformanceMetrics `json:"performance_metrics"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	res, err := h.registry.SubmitHeartbeat(c.Request.Context(), c.Param("id"), middleware.CallerID(c), in.PerformanceMetrics)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data: gin.H{
			"node":                  res.Node,
			"transaction_signature": res.TxSignature,
			"ledger_status":         ledgerStatus(res.LedgerOK),
		},
	})
}

// GetNodeRewards returns a reward page for one node.
func (h *Handler) GetNodeRewards(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 50
	}

	rewardList, total, err := h.store.ListRewardsByNode(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data: gin.H{
			"rewards":    rewardList,
			"pagination": models.Pagination{Total: total, Limit: limit, Offset: offset},
		},
	})
}

// GetNodeConnections returns nearby active nodes with distance and signal
// strength, nearest first.
func (h *Handler) GetNodeConnections(c *gin.Context) {
	nodeID := c.Param("id")
	cacheKey := "node:connections:" + nodeID

	if cached, err := h.cache.Get(c.Request.Context(), cacheKey); err == nil {
		var data gin.H
		if err := cached.Unmarshal(&data); err == nil {
			c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: data})
			return
		}
	}

	node, err := h.store.GetNodeByNodeID(c.Request.Context(), nodeID)
	if err != nil {
		respondError(c, err)
		return
	}

	candidates, _, err := h.store.ListNodes(c.Request.Context(), store.NodeFilter{Status: models.StatusActive})
	if err != nil {
		respondError(c, err)
		return
	}

	neighbors := topology.BuildNodeNeighbors(*node, candidates, h.config.NeighborThresholdKm, h.config.NeighborLimit)

	data := gin.H{
		"node": gin.H{
			"node_id": node.NodeID,
			"name":    node.Name,
			"lat":     node.Lat,
			"lng":     node.Lng,
			"city":    node.City,
			"country": node.Country,
		},
		"connections": neighbors,
	}
	if err := h.cache.Set(c.Request.Context(), cacheKey, data, h.config.MapCacheTTL); err != nil && !errors.Is(err, cache.ErrDisabled) {
		logrus.Warn("Failed to cache node connections: ", err)
	}

	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: data})
}

// GetNetworkMap returns nodes, derived connections and coverage stats for
// the map view. The graph is recomputed from the current node set on every
// cache miss; nothing about it is stored.
func (h *Handler) GetNetworkMap(c *gin.Context) {
	status := models.NodeStatus(c.DefaultQuery("status", string(models.StatusActive)))
	boundsParam := c.Query("bounds")
	cacheKey := "network:map:" + string(status) + ":" + boundsParam

	if cached, err := h.cache.Get(c.Request.Context(), cacheKey); err == nil {
		var data gin.H
		if err := cached.Unmarshal(&data); err == nil {
			c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: data})
			return
		}
	}

	filter := store.NodeFilter{Status: status}
	if boundsParam != "" {
		var b store.Bounds
		if err := json.Unmarshal([]byte(boundsParam), &b); err != nil {
			c.JSON(http.StatusBadRequest, models.APIResponse{Error: "Invalid bounds parameter"})
			return
		}
		filter.Bounds = &b
	}

	nodes, _, err := h.store.ListNodes(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	connections := topology.BuildMapGraph(nodes, h.config.MapThresholdKm)

	activeCount := 0
	for _, n := range nodes {
		if n.Status == models.StatusActive {
			activeCount++
		}
	}

	data := gin.H{
		"nodes":       nodes,
		"connections": connections,
		"stats": gin.H{
			"total_nodes":   len(nodes),
			"active_nodes":  activeCount,
			"coverage_area": topology.CoverageAreaKm2(nodes),
		},
	}
	if err := h.cache.Set(c.Request.Context(), cacheKey, data, h.config.MapCacheTTL); err != nil && !errors.Is(err, cache.ErrDisabled) {
		logrus.Warn("Failed to cache network map: ", err)
	}

	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: data})
}

// GetNetworkStats returns the current counters combined with the on-chain
// view, persisting the snapshot for the historical series.
func (h *Handler) GetNetworkStats(c *gin.Context) {
	cacheKey := "network:stats"

	if cached, err := h.cache.Get(c.Request.Context(), cacheKey); err == nil {
		var data gin.H
		if err := cached.Unmarshal(&data); err == nil {
			c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: data})
			return
		}
	}

	snap, ledgerOK, err := h.aggregator.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	data := gin.H{
		"stats":         snap,
		"ledger_status": ledgerStatus(ledgerOK),
	}
	if err := h.cache.Set(c.Request.Context(), cacheKey, data, h.config.StatsCacheTTL); err != nil && !errors.Is(err, cache.ErrDisabled) {
		logrus.Warn("Failed to cache network stats: ", err)
	}

	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: data})
}

// GetNetworkActivity returns historical snapshots plus recent node activity
// for a timeframe.
func (h *Handler) GetNetworkActivity(c *gin.Context) {
	timeframe := c.DefaultQuery("timeframe", "24h")
	cacheKey := "network:activity:" + timeframe

	if cached, err := h.cache.Get(c.Request.Context(), cacheKey); err == nil {
		var data gin.H
		if err := cached.Unmarshal(&data); err == nil {
			c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: data})
			return
		}
	}

	history, err := h.aggregator.History(c.Request.Context(), timeframe)
	if err != nil {
		respondError(c, err)
		return
	}

	since := time.Now().UTC().Add(-stats.Lookback(timeframe))
	activities, err := h.store.NodesWithHeartbeatSince(c.Request.Context(), since)
	if err != nil {
		respondError(c, err)
		return
	}

	activeNow := 0
	for _, n := range activities {
		if n.Status == models.StatusActive {
			activeNow++
		}
	}

	data := gin.H{
		"timeframe":         timeframe,
		"historical_stats":  history,
		"recent_activities": activities,
		"summary": gin.H{
			"total_data_points": len(history),
			"active_nodes_now":  activeNow,
			"recent_heartbeats": len(activities),
		},
	}
	if err := h.cache.Set(c.Request.Context(), cacheKey, data, h.config.ActivityCacheTTL); err != nil && !errors.Is(err, cache.ErrDisabled) {
		logrus.Warn("Failed to cache network activity: ", err)
	}

	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: data})
}
