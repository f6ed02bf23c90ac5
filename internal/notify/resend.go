// Package notify delivers transactional email through the Resend API.
package notify

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/outcome"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

const (
	defaultTimeout   = 10 * time.Second
	ReasonE2EMode    = "e2e_mode"
	ReasonNotEnabled = "missing_resend_config"
)

// Message is a single outgoing email.
type Message struct {
	To      string
	Subject string
	HTML    string
	ReplyTo string
}

// Notifier delivers messages. Delivery problems are reported, never returned as errors.
type Notifier interface {
	Send(ctx context.Context, message Message) outcome.Outcome
}

// ResendConfig configures a ResendClient. An empty APIKey or From disables delivery.
// Endpoint overrides the API base URL.
type ResendConfig struct {
	APIKey     string
	From       string
	Endpoint   string
	E2EMode    bool
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// ResendClient sends messages with the Resend SDK.
type ResendClient struct {
	client  *resend.Client
	from    string
	e2eMode bool
	enabled bool
	logger  *zap.Logger
}

func NewResendClient(cfg ResendConfig) *ResendClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	from := strings.TrimSpace(cfg.From)

	client := resend.NewCustomClient(httpClient, apiKey)
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		baseURL, err := url.Parse(strings.TrimRight(endpoint, "/") + "/")
		if err != nil {
			logger.Warn("invalid resend endpoint, using default", zap.String("endpoint", endpoint), zap.Error(err))
		} else {
			client.BaseURL = baseURL
		}
	}

	return &ResendClient{
		client:  client,
		from:    from,
		e2eMode: cfg.E2EMode,
		enabled: apiKey != "" && from != "",
		logger:  logger,
	}
}

// Enabled reports whether the client would attempt delivery.
func (c *ResendClient) Enabled() bool {
	return !c.e2eMode && c.enabled
}

// Send delivers the message. E2E mode and missing credentials skip delivery.
func (c *ResendClient) Send(ctx context.Context, message Message) outcome.Outcome {
	if c.e2eMode {
		return outcome.Skipped(ReasonE2EMode)
	}
	if !c.enabled {
		return outcome.Skipped(ReasonNotEnabled)
	}

	sent, err := c.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{message.To},
		Subject: message.Subject,
		Html:    message.HTML,
		ReplyTo: message.ReplyTo,
	})
	if err != nil {
		return outcome.Failed(err)
	}
	c.logger.Debug("email accepted", zap.String("resend_id", sent.Id))
	return outcome.Succeeded()
}
