package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fairlens/escrow-engine/internal/models"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

// Channel delivers one escrow event to a destination
type Channel interface {
	Name() string
	Deliver(ctx context.Context, event *models.EscrowEvent) error
}

// Config holds notification manager configuration
type Config struct {
	Enabled       bool          `json:"enabled"`
	QueueSize     int           `json:"queue_size"`
	Workers       int           `json:"workers"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
	MaxRetryDelay time.Duration `json:"max_retry_delay"`
}

// DefaultConfig returns sensible notification defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		QueueSize:     256,
		Workers:       2,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// Stats provides notification statistics
type Stats struct {
	TotalPublished uint64     `json:"total_published"`
	TotalDelivered uint64     `json:"total_delivered"`
	TotalFailed    uint64     `json:"total_failed"`
	TotalDropped   uint64     `json:"total_dropped"`
	QueueLength    int        `json:"queue_length"`
	ActiveChannels int        `json:"active_channels"`
	LastError      *string    `json:"last_error,omitempty"`
	LastErrorTime  *time.Time `json:"last_error_time,omitempty"`
}

// Manager fans escrow events out to registered channels. Delivery is
// asynchronous and best-effort; a full queue drops the event rather than
// stalling the operation pipeline.
type Manager struct {
	config *Config
	logger *logrus.Logger

	mu       sync.RWMutex
	running  bool
	channels map[string]Channel
	stats    Stats

	queue  chan *models.EscrowEvent
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new notification manager
func NewManager(config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	return &Manager{
		config:   config,
		logger:   utils.GetLogger(),
		channels: make(map[string]Channel),
		queue:    make(chan *models.EscrowEvent, config.QueueSize),
	}
}

// AddChannel registers a delivery channel
func (m *Manager) AddChannel(channel Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.channels[channel.Name()]; exists {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Notification channel already registered", channel.Name())
	}

	m.channels[channel.Name()] = channel
	m.logger.WithField("channel", channel.Name()).Info("Notification channel added")
	return nil
}

// RemoveChannel unregisters a delivery channel
func (m *Manager) RemoveChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.channels, name)
	m.logger.WithField("channel", name).Info("Notification channel removed")
}

// Start starts the delivery workers
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Notification manager already running")
	}
	if !m.config.Enabled {
		m.logger.Info("Notifications disabled")
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := m.config.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker(workerCtx)
	}

	m.logger.WithField("workers", workers).Info("Notification manager started")
	return nil
}

// Stop stops the delivery workers and waits for in-flight deliveries
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	m.logger.Info("Notification manager stopped")
	return nil
}

// IsHealthy returns whether the notification manager is running
func (m *Manager) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running || !m.config.Enabled
}

// Publish enqueues an event for delivery. Never blocks: when the queue is
// full the event is dropped and counted.
func (m *Manager) Publish(event *models.EscrowEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.stats.TotalPublished++

	select {
	case m.queue <- event:
	default:
		m.stats.TotalDropped++
		m.logger.WithFields(logrus.Fields{
			"contract_id": event.ContractID,
			"operation":   event.Operation,
		}).Warn("Notification queue full, event dropped")
	}
}

// GetStats returns notification statistics
func (m *Manager) GetStats() *Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.stats
	stats.QueueLength = len(m.queue)
	stats.ActiveChannels = len(m.channels)
	return &stats
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-m.queue:
			m.deliver(ctx, event)
		}
	}
}

func (m *Manager) deliver(ctx context.Context, event *models.EscrowEvent) {
	m.mu.RLock()
	channels := make([]Channel, 0, len(m.channels))
	for _, channel := range m.channels {
		channels = append(channels, channel)
	}
	m.mu.RUnlock()

	for _, channel := range channels {
		if err := m.deliverWithRetry(ctx, channel, event); err != nil {
			m.recordFailure(err)
			m.logger.WithFields(logrus.Fields{
				"channel":     channel.Name(),
				"contract_id": event.ContractID,
				"operation":   event.Operation,
				"error":       err,
			}).Error("Notification delivery failed")
			continue
		}
		m.recordSuccess()
	}
}

func (m *Manager) deliverWithRetry(ctx context.Context, channel Channel, event *models.EscrowEvent) error {
	var lastErr error
	delay := m.config.RetryDelay

	for attempt := 1; attempt <= m.config.RetryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
			if delay > m.config.MaxRetryDelay {
				delay = m.config.MaxRetryDelay
			}
		}

		lastErr = channel.Deliver(ctx, event)
		if lastErr == nil {
			return nil
		}
	}

	return lastErr
}

func (m *Manager) recordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TotalDelivered++
}

func (m *Manager) recordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.TotalFailed++
	errStr := err.Error()
	m.stats.LastError = &errStr
	now := time.Now()
	m.stats.LastErrorTime = &now
}
