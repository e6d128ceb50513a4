package khalti

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stagehub-np/backend-stagehub/internal/resilience"
)

const (
	// DefaultGatewayURL is the production ePayment API base.
	DefaultGatewayURL = "https://a.khalti.com/api/v2"
	// SandboxGatewayURL is the test-mode ePayment API base.
	SandboxGatewayURL = "https://dev.khalti.com/api/v2"
	// DefaultTimeout bounds one network round trip. Exceeding it is a
	// transport failure, not "pending forever".
	DefaultTimeout = 30 * time.Second

	clientVersion    = "stagehub-payments/1.2"
	maxResponseBytes = 1 << 20
)

// Config carries the credential bundle and endpoints resolved at startup.
// The secret key is read-only after construction; no call-time env reads.
type Config struct {
	PublicKey   string
	SecretKey   string
	GatewayURL  string
	ReturnURL   string
	WebsiteURL  string
	Environment string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *zerolog.Logger
}

// Client talks to the Khalti ePayment API. All operations are stateless;
// concurrent use needs no coordination.
type Client struct {
	publicKey   string
	secretKey   string
	gatewayURL  string
	returnURL   string
	websiteURL  string
	environment string
	initiate    resilience.HTTPClient
	lookup      resilience.HTTPClient
	logger      zerolog.Logger
}

// New validates the credential bundle and builds a client. Missing keys are
// a construction-time error; the config layer only leaves them empty in
// production mode, so this is the fatal-startup path the deployment expects.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("khalti: secret key is required")
	}
	if strings.TrimSpace(cfg.PublicKey) == "" {
		return nil, errors.New("khalti: public key is required")
	}
	gateway := strings.TrimRight(strings.TrimSpace(cfg.GatewayURL), "/")
	if gateway == "" {
		gateway = DefaultGatewayURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: timeout}
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	breaker := resilience.NewBreaker(10, 0.5, 30*time.Second)
	c := &Client{
		publicKey:   strings.TrimSpace(cfg.PublicKey),
		secretKey:   strings.TrimSpace(cfg.SecretKey),
		gatewayURL:  gateway,
		returnURL:   strings.TrimSpace(cfg.ReturnURL),
		websiteURL:  strings.TrimSpace(cfg.WebsiteURL),
		environment: strings.TrimSpace(cfg.Environment),
		logger:      logger,
		// Initiation is not guaranteed idempotent upstream, so it gets
		// exactly one attempt; a blind retry risks a duplicate charge.
		initiate: resilience.HTTPClient{
			Client:      base,
			Breaker:     breaker,
			MaxAttempts: 1,
			Timeout:     timeout,
			Target:      "khalti-initiate",
			Logger:      &logger,
		},
		// Lookup is an idempotent read and tolerates bounded retries.
		lookup: resilience.HTTPClient{
			Client:      base,
			Breaker:     breaker,
			MaxAttempts: 3,
			BaseBackoff: 200 * time.Millisecond,
			Jitter:      0.2,
			Timeout:     timeout,
			Target:      "khalti-lookup",
			Logger:      &logger,
		},
	}
	return c, nil
}

// InitiatePayment opens a payment session and returns the processor's
// session descriptor. Breakdown and product sums are forwarded as supplied;
// a mismatch surfaces as the processor's rejection, never a silent fix.
func (c *Client) InitiatePayment(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	var zero PaymentResponse
	if req.Amount <= 0 {
		return zero, &InitiationError{Detail: "amount must be a positive paisa value"}
	}
	if strings.TrimSpace(req.PurchaseOrderID) == "" {
		return zero, &InitiationError{Detail: "purchase_order_id is required"}
	}
	if strings.TrimSpace(req.ReturnURL) == "" {
		req.ReturnURL = c.returnURL
	}
	if strings.TrimSpace(req.WebsiteURL) == "" {
		req.WebsiteURL = c.websiteURL
	}
	body, err := json.Marshal(req)
	if err != nil {
		return zero, &InitiationError{Err: err}
	}
	httpReq, err := c.newRequest(ctx, "/epayment/initiate/", body)
	if err != nil {
		return zero, &InitiationError{Err: err}
	}
	resp, err := c.initiate.Do(ctx, httpReq)
	if err != nil {
		return zero, &InitiationError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return zero, &InitiationError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return zero, &InitiationError{StatusCode: resp.StatusCode, Detail: errorDetail(data, resp.Status)}
	}
	var out PaymentResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, &InitiationError{Err: err}
	}
	if strings.TrimSpace(out.Pidx) == "" {
		return zero, &InitiationError{StatusCode: resp.StatusCode, Detail: "response missing pidx"}
	}
	c.logger.Debug().
		Str("purchase_order_id", req.PurchaseOrderID).
		Str("pidx", out.Pidx).
		Int64("amount", req.Amount).
		Msg("payment initiated")
	return out, nil
}

// LookupPayment fetches the current status snapshot for a session. Safe to
// repeat; callers polling the same pidx should serialize calls if they need
// monotonically observed state.
func (c *Client) LookupPayment(ctx context.Context, pidx string) (PaymentStatus, error) {
	var zero PaymentStatus
	pidx = strings.TrimSpace(pidx)
	if pidx == "" {
		return zero, &LookupError{Detail: "pidx is required"}
	}
	body, err := json.Marshal(map[string]string{"pidx": pidx})
	if err != nil {
		return zero, &LookupError{Pidx: pidx, Err: err}
	}
	httpReq, err := c.newRequest(ctx, "/epayment/lookup/", body)
	if err != nil {
		return zero, &LookupError{Pidx: pidx, Err: err}
	}
	resp, err := c.lookup.Do(ctx, httpReq)
	if err != nil {
		return zero, &LookupError{Pidx: pidx, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return zero, &LookupError{Pidx: pidx, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return zero, &LookupError{Pidx: pidx, StatusCode: resp.StatusCode, Detail: errorDetail(data, resp.Status)}
	}
	var out PaymentStatus
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, &LookupError{Pidx: pidx, Err: err}
	}
	if out.Status == "" {
		return zero, &LookupError{Pidx: pidx, StatusCode: resp.StatusCode, Detail: "response missing status"}
	}
	if out.Pidx == "" {
		out.Pidx = pidx
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Key "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", clientVersion)
	if c.environment != "" {
		req.Header.Set("X-Environment", c.environment)
	}
	return req, nil
}

// errorDetail extracts the processor's message from an error body, falling
// back to the HTTP status line when the body is not decodable.
func errorDetail(body []byte, fallback string) string {
	var parsed struct {
		Detail   string `json:"detail"`
		ErrorKey string `json:"error_key"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if strings.TrimSpace(parsed.Detail) != "" {
			if parsed.ErrorKey != "" {
				return parsed.Detail + " (" + parsed.ErrorKey + ")"
			}
			return parsed.Detail
		}
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed != "" && len(trimmed) <= 200 {
		return trimmed
	}
	return fallback
}
