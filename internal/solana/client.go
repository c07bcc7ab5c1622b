// Package solana talks to the node-registry program gateway over JSON-RPC.
// The gateway signs and submits the actual Solana transactions; this client
// treats the chain as an opaque ledger that returns transaction signatures.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elicharlese/ThePublic-sub000/internal/errs"
	"github.com/elicharlese/ThePublic-sub000/internal/models"
)

// Client is the ledger gateway client. Calls are bounded by the configured
// timeout and fail over across the configured endpoints.
type Client struct {
	endpoints []string
	client    *http.Client
	log       *logrus.Entry
}

// NodeAccount mirrors the on-chain node account as reported by the gateway.
type NodeAccount struct {
	Owner            string                    `json:"owner"`
	NodeID           string                    `json:"node_id"`
	Status           string                    `json:"status"`
	RegistrationTime int64                     `json:"registration_time"`
	LastHeartbeat    int64                     `json:"last_heartbeat"`
	ReputationScore  int64                     `json:"reputation_score"`
	TotalRewards     float64                   `json:"total_rewards"`
	Metrics          models.PerformanceMetrics `json:"performance_metrics"`
}

// NetworkStats is the on-chain view of the network.
type NetworkStats struct {
	BlockHeight uint64 `json:"block_height"`
	TotalNodes  int64  `json:"total_nodes"`
	ActiveNodes int64  `json:"active_nodes"`
}

// TxStatus reports confirmation state for a signature.
type TxStatus struct {
	Confirmed   bool    `json:"confirmed"`
	BlockHeight uint64  `json:"block_height,omitempty"`
	Fee         float64 `json:"fee,omitempty"`
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// NewClient builds a gateway client. At least one endpoint is required.
func NewClient(endpoints []string, timeout time.Duration) *Client {
	return &Client{
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
		log:       logrus.WithField("component", "solana"),
	}
}

// call tries each endpoint in order until one answers, mirroring the seed
// failover used for gossip queries.
func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "thepublic-backend",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errs.Ledger(method, err)
	}

	var lastErr error
	for _, endpoint := range c.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			c.log.Warnf("gateway %s unreachable for %s: %v", endpoint, method, err)
			lastErr = err
			continue
		}

		err = func() error {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("gateway returned status %d", resp.StatusCode)
			}
			var rpcResp rpcResponse
			if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
				return err
			}
			if rpcResp.Error != nil {
				return fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
			}
			if out != nil {
				return json.Unmarshal(rpcResp.Result, out)
			}
			return nil
		}()
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return errs.Ledger(method, lastErr)
}

type signatureResult struct {
	Signature string `json:"signature"`
}

// RegisterNode records a new node on chain and returns the transaction
// signature.
func (c *Client) RegisterNode(ctx context.Context, nodeID string, lat, lng float64, country, ownerID string) (string, error) {
	var res signatureResult
	err := c.call(ctx, "registerNode", map[string]interface{}{
		"node_id": nodeID,
		"lat":     lat,
		"lng":     lng,
		"country": country,
		"owner":   ownerID,
	}, &res)
	if err != nil {
		return "", err
	}
	c.log.WithFields(logrus.Fields{"node_id": nodeID, "signature": res.Signature}).Info("Node registered on chain")
	return res.Signature, nil
}

// UpdateNodeStatus records a status transition on chain.
func (c *Client) UpdateNodeStatus(ctx context.Context, nodeID string, status models.NodeStatus, ownerID string) (string, error) {
	var res signatureResult
	err := c.call(ctx, "updateNodeStatus", map[string]interface{}{
		"node_id": nodeID,
		"status":  status,
		"owner":   ownerID,
	}, &res)
	if err != nil {
		return "", err
	}
	return res.Signature, nil
}

// SubmitHeartbeat records a heartbeat on chain.
func (c *Client) SubmitHeartbeat(ctx context.Context, nodeID string, metrics models.PerformanceMetrics, ownerID string) (string, error) {
	var res signatureResult
	err := c.call(ctx, "submitHeartbeat", map[string]interface{}{
		"node_id": nodeID,
		"metrics": metrics,
		"owner":   ownerID,
	}, &res)
	if err != nil {
		return "", err
	}
	return res.Signature, nil
}

// GetNodeAccount fetches the on-chain account for a node, or nil if the
// node has no account yet.
func (c *Client) GetNodeAccount(ctx context.Context, nodeID string) (*NodeAccount, error) {
	var res *NodeAccount
	err := c.call(ctx, "getNodeAccount", map[string]interface{}{"node_id": nodeID}, &res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DistributeRewards transfers the given amounts to the owners of the given
// nodes and returns one signature per transfer.
func (c *Client) DistributeRewards(ctx context.Context, nodeIDs []string, amounts []float64) ([]string, error) {
	if len(nodeIDs) != len(amounts) {
		return nil, errs.Ledger("distributeRewards", fmt.Errorf("%d node ids for %d amounts", len(nodeIDs), len(amounts)))
	}
	var res struct {
		Signatures []string `json:"signatures"`
	}
	err := c.call(ctx, "distributeRewards", map[string]interface{}{
		"node_ids": nodeIDs,
		"amounts":  amounts,
	}, &res)
	if err != nil {
		return nil, err
	}
	return res.Signatures, nil
}

// GetTransactionStatus reports confirmation state for a signature.
func (c *Client) GetTransactionStatus(ctx context.Context, signature string) (TxStatus, error) {
	var res TxStatus
	err := c.call(ctx, "getTransactionStatus", map[string]interface{}{"signature": signature}, &res)
	return res, err
}

// GetNetworkStats returns the on-chain network counters.
func (c *Client) GetNetworkStats(ctx context.Context) (NetworkStats, error) {
	var res NetworkStats
	err := c.call(ctx, "getNetworkStats", nil, &res)
	return res, err
}

// HealthCheck verifies the gateway answers at all.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.GetNetworkStats(ctx)
	return err
}
