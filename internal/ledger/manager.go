package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fairlens/escrow-engine/pkg/utils"
)

// NodeStats holds node interaction statistics
type NodeStats struct {
	TotalRequests   uint64    `json:"total_requests"`
	FailedRequests  uint64    `json:"failed_requests"`
	LastRound       uint64    `json:"last_round"`
	GenesisID       string    `json:"genesis_id"`
	LastHealthCheck time.Time `json:"last_health_check"`
	IsHealthy       bool      `json:"is_healthy"`
}

// NodeManager wraps a Node with health tracking and statistics
type NodeManager struct {
	node   Node
	mu     sync.RWMutex
	stats  NodeStats
	logger *logrus.Logger

	healthInterval time.Duration
	lastCheck      time.Time
	isHealthy      bool
}

// NewNodeManager creates a node manager
func NewNodeManager(node Node, healthInterval time.Duration) *NodeManager {
	if healthInterval <= 0 {
		healthInterval = time.Minute
	}
	return &NodeManager{
		node:           node,
		logger:         utils.GetLogger(),
		healthInterval: healthInterval,
	}
}

// Node returns the managed node, re-checking health when stale
func (nm *NodeManager) Node(ctx context.Context) (Node, error) {
	nm.mu.RLock()
	stale := time.Since(nm.lastCheck) > nm.healthInterval
	nm.mu.RUnlock()

	if stale {
		if err := nm.HealthCheck(ctx); err != nil {
			return nil, err
		}
	}

	nm.mu.Lock()
	nm.stats.TotalRequests++
	nm.mu.Unlock()
	return nm.node, nil
}

// HealthCheck queries node status and updates statistics
func (nm *NodeManager) HealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	status, err := nm.node.Status(checkCtx)

	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.lastCheck = time.Now()
	nm.stats.LastHealthCheck = nm.lastCheck

	if err != nil {
		nm.isHealthy = false
		nm.stats.IsHealthy = false
		nm.stats.FailedRequests++
		return utils.NewAppError(utils.ErrCodeConnection, "Node status check failed", err.Error())
	}

	nm.isHealthy = true
	nm.stats.IsHealthy = true
	nm.stats.LastRound = status.LastRound
	nm.stats.GenesisID = status.GenesisID

	nm.logger.WithFields(logrus.Fields{
		"last_round": status.LastRound,
		"genesis_id": status.GenesisID,
	}).Debug("Node health check passed")

	return nil
}

// IsHealthy reports the last known health state
func (nm *NodeManager) IsHealthy() bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.isHealthy
}

// Stats returns node interaction statistics
func (nm *NodeManager) Stats() NodeStats {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.stats
}
