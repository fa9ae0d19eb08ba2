package tasks

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// SMSSender sends a text message.
type SMSSender interface {
	Send(ctx context.Context, to, message string) error
}

// SMSConfig configures the HTTP gateway.
type SMSConfig struct {
	GatewayURL string
	APIKey     string
	SenderID   string
}

type smsRequest struct {
	To       string `json:"to"`
	Message  string `json:"message"`
	SenderID string `json:"sender_id,omitempty"`
}

// GatewaySMS posts messages to an HTTP SMS gateway.
type GatewaySMS struct {
	http     *resty.Client
	senderID string
	enabled  bool
}

// NewGatewaySMS creates a gateway client. An empty GatewayURL disables SMS.
func NewGatewaySMS(cfg SMSConfig) *GatewaySMS {
	client := resty.New().
		SetBaseURL(cfg.GatewayURL).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.APIKey)
	return &GatewaySMS{http: client, senderID: cfg.SenderID, enabled: cfg.GatewayURL != ""}
}

// Send posts one message. Gateway 4xx responses other than 429 are not worth retrying.
func (g *GatewaySMS) Send(ctx context.Context, to, message string) error {
	if !g.enabled {
		return ErrChannelDisabled
	}
	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(smsRequest{To: to, Message: message, SenderID: g.senderID}).
		Post("/messages")
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	code := resp.StatusCode()
	switch {
	case code < 300:
		return nil
	case code >= 400 && code < 500 && code != http.StatusTooManyRequests:
		return &GatewayError{Status: code, Body: resp.String(), Permanent: true}
	default:
		return &GatewayError{Status: code, Body: resp.String()}
	}
}

// GatewayError is a non-2xx response from the SMS gateway.
type GatewayError struct {
	Status    int
	Body      string
	Permanent bool
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("sms gateway returned %d: %s", e.Status, e.Body)
}
