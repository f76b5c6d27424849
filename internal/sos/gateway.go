package sos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Medi-Pal/medipal/internal/config"
	apperrors "github.com/Medi-Pal/medipal/internal/errors"
	"github.com/Medi-Pal/medipal/internal/security"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// HTTPGateway posts messages to a JSON SMS gateway
type HTTPGateway struct {
	url     string
	apiKey  string
	sender  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *zap.Logger
}

type smsRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Body string `json:"body"`
}

func NewHTTPGateway(cfg config.SOSConfig, logger *zap.Logger) *HTTPGateway {
	return &HTTPGateway{
		url:    cfg.GatewayURL,
		apiKey: cfg.APIKey,
		sender: cfg.Sender,
		client: &http.Client{Timeout: 15 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:    "sms-gateway",
			Timeout: time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		logger: logger,
	}
}

// SendSMS implements SMSSender
func (g *HTTPGateway) SendSMS(ctx context.Context, to, body string) error {
	if g.url == "" {
		return apperrors.ErrConfigInvalid.WithCause(fmt.Errorf("sos.gateway_url is not set"))
	}

	payload, err := json.Marshal(smsRequest{From: g.sender, To: to, Body: body})
	if err != nil {
		return err
	}

	_, err = g.breaker.Execute(func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return struct{}{}, fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode,
				security.RedactSecrets(strings.TrimSpace(string(body))))
		}
		return struct{}{}, nil
	})
	if err != nil {
		return apperrors.ErrRemoteUnavailable.WithCause(err)
	}
	return nil
}
