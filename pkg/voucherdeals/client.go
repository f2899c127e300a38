package voucherdeals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/config"
	pkgerrors "github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/errors"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/logger"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/metrics"
)

const (
	authScheme       = "VDP-HMAC"
	authVersion      = "1.1"
	authDigest       = "HMAC-SHA1"
	showParams       = "deal_info,option_info"
	maxResponseBytes = 1 << 20
)

var (
	errLoggerRequired  = errors.New("voucher provider logger is required")
	errBaseURLRequired = errors.New("voucher provider base URL is required")
	errSecretRequired  = errors.New("voucher provider signing secret is required")
)

// Client talks to the voucher provider's units API with centralized signing,
// logging, metrics, and retry of ambiguous failures. A fresh nonce is minted
// for every HTTP attempt; the provider rejects nonce reuse.
type Client struct {
	httpClient *http.Client
	baseURL    string
	configID   string
	clientID   string
	secret     string
	attempts   int
	baseDelay  time.Duration
	logger     *logger.Logger
	metrics    *metrics.ProviderMetrics
}

// NewClient validates the provider credentials and builds the wrapper.
func NewClient(cfg config.ProviderConfig, logg *logger.Logger, m *metrics.ProviderMetrics) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errBaseURLRequired
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errSecretRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		configID:   cfg.ConfigID,
		clientID:   cfg.ClientID,
		secret:     cfg.Secret,
		attempts:   attempts,
		baseDelay:  cfg.RetryBaseDelay,
		logger:     logg,
		metrics:    m,
	}, nil
}

// FetchUnit looks up a single redemption code with deal and option details.
func (c *Client) FetchUnit(ctx context.Context, code string) (*Result, error) {
	query := url.Values{}
	query.Set("redemptionCodes", code)
	query.Set("show", showParams)
	return c.Call(ctx, http.MethodGet, c.unitsURL(query), "")
}

type redeemRequest struct {
	Data []redeemUnit `json:"data"`
}

type redeemUnit struct {
	RedemptionCode string `json:"redemptionCode"`
	Status         string `json:"status"`
	UpdatedAt      string `json:"updatedAt"`
}

// RedeemUnit marks a single redemption code as redeemed at the given time.
func (c *Client) RedeemUnit(ctx context.Context, code string, at time.Time) (*Result, error) {
	body, err := json.Marshal(redeemRequest{
		Data: []redeemUnit{{
			RedemptionCode: code,
			Status:         UnitStatusRedeemed,
			UpdatedAt:      at.UTC().Format(time.RFC3339),
		}},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode redeem request")
	}
	return c.Call(ctx, http.MethodPatch, c.unitsURL(nil), string(body))
}

// Call performs a signed request and retries ambiguous results. A transport
// failure returns an error; any parsed provider response, including one full
// of errors, returns as a Result so callers can apply their own policy. After
// the retry budget is spent, the last ambiguous Result is returned.
func (c *Client) Call(ctx context.Context, method, rawURL, body string) (*Result, error) {
	var last *Result
	for attempt := 1; attempt <= c.attempts; attempt++ {
		result, err := c.do(ctx, method, rawURL, body)
		if err != nil {
			return nil, err
		}
		last = result
		if !result.Ambiguous() {
			return result, nil
		}
		if attempt == c.attempts {
			break
		}
		c.metrics.IncAmbiguousRetry(method)
		delay := time.Duration(attempt) * c.baseDelay
		c.log(ctx, "retry", method, map[string]any{
			"attempt": attempt,
			"delay":   delay.String(),
		})
		select {
		case <-ctx.Done():
			return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, ctx.Err(), "provider retry interrupted")
		case <-time.After(delay):
		}
	}
	return last, nil
}

func (c *Client) do(ctx context.Context, method, rawURL, body string) (*Result, error) {
	nonce := uuid.NewString()
	signature := Sign(method, rawURL, body, nonce, c.secret)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build provider request")
	}
	req.Header.Set("Authorization", fmt.Sprintf(
		"%s version=%q,digest=%q,nonce=%q,signature=%q",
		authScheme, authVersion, authDigest, nonce, signature,
	))
	req.Header.Set("X-Request-ID", nonce)
	req.Header.Set("X-Client-ID", c.clientID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.log(ctx, "request", method, map[string]any{
		"url":   rawURL,
		"nonce": nonce,
	})

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveCall(method, 0, time.Since(start))
		c.log(ctx, "error", method, map[string]any{"error": err.Error()})
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "provider request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.ObserveCall(method, 0, time.Since(start))
		c.log(ctx, "error", method, map[string]any{"error": err.Error()})
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "read provider response")
	}

	result := &Result{StatusCode: resp.StatusCode, Body: raw}
	if len(raw) > 0 {
		// A body that is not the expected envelope is treated as an empty
		// payload; the status code still tells callers what happened.
		_ = json.Unmarshal(raw, &result.Payload)
	}

	c.metrics.ObserveCall(method, resp.StatusCode, time.Since(start))
	c.log(ctx, "response", method, map[string]any{
		"status_code": resp.StatusCode,
		"units":       len(result.Payload.Data),
		"errors":      len(result.Payload.Errors),
	})
	return result, nil
}

func (c *Client) unitsURL(query url.Values) string {
	base := fmt.Sprintf("%s/%s/v1/units", c.baseURL, c.configID)
	if len(query) == 0 {
		return base
	}
	return base + "?" + query.Encode()
}

func (c *Client) log(ctx context.Context, phase, method string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"provider": "voucherdeals",
		"phase":    phase,
		"method":   method,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, "voucher provider call failed", errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("voucher provider %s", phase))
	}
}
