package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fairlens/escrow-engine/internal/models"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

// LogChannel writes escrow events to the application log. Always enabled as
// the audit trail of record for operators without a webhook endpoint.
type LogChannel struct {
	logger *logrus.Logger
}

// NewLogChannel creates a log-backed notification channel
func NewLogChannel() *LogChannel {
	return &LogChannel{logger: utils.GetLogger()}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Deliver(_ context.Context, event *models.EscrowEvent) error {
	fields := logrus.Fields{
		"event_id":        event.ID,
		"contract_id":     event.ContractID,
		"operation":       event.Operation,
		"caller":          event.Caller,
		"contract_status": event.ContractStatus,
	}
	if event.MilestoneIndex != nil {
		fields["milestone_index"] = *event.MilestoneIndex
	}
	if event.MilestoneStatus != nil {
		fields["milestone_status"] = *event.MilestoneStatus
	}
	c.logger.WithFields(fields).Info("Escrow event")
	return nil
}

// WebhookConfig defines webhook channel configuration
type WebhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Timeout time.Duration     `json:"timeout"`
}

// WebhookPayload is the JSON body posted to webhook endpoints
type WebhookPayload struct {
	Event     *models.EscrowEvent `json:"event"`
	Timestamp time.Time           `json:"timestamp"`
	Source    string              `json:"source"`
	Version   string              `json:"version"`
}

// WebhookChannel posts escrow events to an HTTP endpoint
type WebhookChannel struct {
	config     *WebhookConfig
	httpClient *http.Client
}

// NewWebhookChannel creates a webhook-backed notification channel
func NewWebhookChannel(config *WebhookConfig) (*WebhookChannel, error) {
	if config.URL == "" {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Webhook URL is required")
	}
	if config.Method == "" {
		config.Method = http.MethodPost
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &WebhookChannel{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}, nil
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Deliver(ctx context.Context, event *models.EscrowEvent) error {
	payload := &WebhookPayload{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Source:    "fairlens-escrow-engine",
		Version:   "1.0",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, c.config.Method, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to create webhook request", err.Error())
	}

	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "FairLens-Escrow-Engine/1.0")
	}
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if requestID, err := utils.GenerateID(); err == nil {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeTransport, "Failed to send webhook", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return utils.NewAppError(utils.ErrCodeTransport,
			"Webhook returned non-success status", fmt.Sprintf("status: %d", resp.StatusCode))
	}

	return nil
}
