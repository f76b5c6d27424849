// Package remote is the HTTP client for the MediPal prescription backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Medi-Pal/medipal/internal/config"
	apperrors "github.com/Medi-Pal/medipal/internal/errors"
	"github.com/Medi-Pal/medipal/internal/metrics"
	"github.com/Medi-Pal/medipal/internal/security"
	"github.com/Medi-Pal/medipal/internal/store"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Options tunes the client
type Options struct {
	BaseURL            string
	Timeout            time.Duration
	RatePerSecond      float64
	Burst              int
	BreakerMaxFailures uint32
	BreakerOpen        time.Duration
}

// OptionsFromConfig maps the remote config section
func OptionsFromConfig(cfg config.RemoteConfig) Options {
	return Options{
		BaseURL:            cfg.BaseURL,
		Timeout:            time.Duration(cfg.TimeoutSeconds) * time.Second,
		RatePerSecond:      cfg.RatePerSecond,
		Burst:              cfg.Burst,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerOpen:        time.Duration(cfg.BreakerOpenSeconds) * time.Second,
	}
}

// StatusError is a non-2xx backend response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Body)
}

// Client calls the backend through a rate limiter and a circuit breaker.
// Authenticated calls carry the stored session as a bearer token.
type Client struct {
	baseURL string
	timeout time.Duration

	public  *http.Client
	authed  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]

	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewClient builds a client. tokens may be nil when only public endpoints
// are used.
func NewClient(opts Options, tokens oauth2.TokenSource, logger *zap.Logger, m *metrics.Collector) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.BreakerMaxFailures == 0 {
		opts.BreakerMaxFailures = 5
	}
	if opts.BreakerOpen <= 0 {
		opts.BreakerOpen = 30 * time.Second
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		public:  &http.Client{},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		metrics: m,
	}

	if tokens != nil {
		c.authed = &http.Client{
			Transport: &oauth2.Transport{Source: tokens, Base: http.DefaultTransport},
		}
	}

	maxFailures := opts.BreakerMaxFailures
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "medipal-backend",
		MaxRequests: 1,
		Timeout:     opts.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Backend circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return c
}

// FetchPrescriptionsForPhone lists the backend prescriptions of a patient
func (c *Client) FetchPrescriptionsForPhone(ctx context.Context, phone string) ([]store.Prescription, error) {
	var dtos []prescriptionDTO
	path := "/prescriptions?phone=" + url.QueryEscape(phone)
	if err := c.do(ctx, "fetch_for_phone", http.MethodGet, path, nil, &dtos, true); err != nil {
		return nil, err
	}

	out := make([]store.Prescription, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toModel())
	}
	return out, nil
}

// FetchPrescriptionByID returns one prescription, nil when the backend has
// no such id
func (c *Client) FetchPrescriptionByID(ctx context.Context, id string) (*store.Prescription, error) {
	var dto prescriptionDTO
	err := c.do(ctx, "fetch_by_id", http.MethodGet, "/prescriptions/"+url.PathEscape(id), nil, &dto, true)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := dto.toModel()
	return &p, nil
}

// UpdateUsage records that the patient used the prescription
func (c *Client) UpdateUsage(ctx context.Context, id, phone string) (*store.Prescription, error) {
	var dto prescriptionDTO
	path := "/prescriptions/" + url.PathEscape(id) + "/usage"
	if err := c.do(ctx, "update_usage", http.MethodPost, path, usageRequest{PhoneNumber: phone}, &dto, true); err != nil {
		return nil, err
	}
	p := dto.toModel()
	return &p, nil
}

// FetchDoctors lists the doctors known to the backend
func (c *Client) FetchDoctors(ctx context.Context) ([]store.Doctor, error) {
	var dtos []doctorDTO
	if err := c.do(ctx, "fetch_doctors", http.MethodGet, "/doctors", nil, &dtos, true); err != nil {
		return nil, err
	}
	out := make([]store.Doctor, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toModel())
	}
	return out, nil
}

// SendOTP asks the backend to text a login code to phone
func (c *Client) SendOTP(ctx context.Context, phone string) error {
	return c.do(ctx, "send_otp", http.MethodPost, "/auth/otp/send", otpRequest{PhoneNumber: phone}, nil, false)
}

// VerifyOTP exchanges the code for a backend session
func (c *Client) VerifyOTP(ctx context.Context, phone, code string) (*Session, error) {
	var resp otpResponse
	if err := c.do(ctx, "verify_otp", http.MethodPost, "/auth/otp/verify", otpRequest{PhoneNumber: phone, OTP: code}, &resp, false); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, apperrors.ErrRemoteDecode.WithCause(fmt.Errorf("empty token"))
	}

	sess := &Session{Token: resp.Token, User: resp.User.toModel()}
	if sess.User.PhoneNumber == "" {
		sess.User.PhoneNumber = phone
	}
	if resp.ExpiresIn > 0 {
		sess.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return sess, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any, authed bool) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RemoteRequest(op, err, time.Since(start))
	}()

	if c.baseURL == "" {
		return apperrors.ErrConfigInvalid.WithCause(fmt.Errorf("remote.base_url is not set"))
	}

	httpClient := c.public
	if authed {
		if c.authed == nil {
			return apperrors.ErrNoSession
		}
		httpClient = c.authed
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.ErrRateLimited.WithCause(err)
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	data, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: security.RedactSecrets(strings.TrimSpace(string(respBody)))}
		}
		return respBody, nil
	})
	if err != nil {
		return c.classify(op, err)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.ErrRemoteDecode.WithCause(err)
	}
	return nil
}

func (c *Client) classify(op string, err error) error {
	var se *StatusError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return apperrors.ErrRemoteUnavailable.WithCause(err)
	case errors.Is(err, apperrors.ErrNoSession):
		return apperrors.ErrUnauthorized.WithCause(err)
	case errors.As(err, &se):
		switch se.StatusCode {
		case http.StatusNotFound:
			return apperrors.ErrNotFound.WithCause(err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperrors.ErrUnauthorized.WithCause(err)
		case http.StatusTooManyRequests:
			return apperrors.ErrRateLimited.WithCause(err)
		}
		return apperrors.ErrRemoteStatus.WithCause(err)
	}

	c.logger.Debug("Backend request failed", zap.String("operation", op), zap.Error(err))
	return apperrors.ErrRemoteUnavailable.WithCause(err)
}

// BreakerState reports the circuit breaker state for status pages
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
