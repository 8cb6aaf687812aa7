package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rafflehq/ticket-engine/internal/apperrors"
	log "github.com/sirupsen/logrus"
)

const (
	defaultGatewayTimeout = 15 * time.Second
	maxGatewayBody        = 1 << 20
)

// AuthorizeRequest is a card authorization for one checkout attempt.
type AuthorizeRequest struct {
	Amount         int64
	Currency       string
	IdempotencyKey string
	UserID         uint64
}

// AuthorizeResult is the opaque gateway answer plus the raw payloads exchanged.
type AuthorizeResult struct {
	CheckoutID        string
	PaymentID         string
	StatusCode        string
	StatusDescription string
	RequestPayload    []byte
	ResponsePayload   []byte
}

// Gateway authorizes card charges with an external payment provider.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error)
}

// GatewayConfig configures HTTPGateway.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPGateway talks to the payment provider's JSON API.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPGateway builds an HTTPGateway.
func NewHTTPGateway(cfg GatewayConfig) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &HTTPGateway{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type authorizeBody struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotency_key"`
	Reference      string `json:"reference,omitempty"`
}

type authorizeResponse struct {
	CheckoutID        string `json:"checkout_id"`
	PaymentID         string `json:"payment_id"`
	StatusCode        string `json:"status_code"`
	StatusDescription string `json:"status_description"`
}

// Authorize posts the authorization. Transport failures and deadlines become
// gateway_timeout; an unreadable answer becomes gateway_declined.
func (g *HTTPGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if g.baseURL == "" {
		return nil, apperrors.New(apperrors.KindGatewayDeclined, "payment gateway is not configured")
	}
	body, errMarshal := json.Marshal(authorizeBody{
		Amount:         req.Amount,
		Currency:       req.Currency,
		IdempotencyKey: req.IdempotencyKey,
		Reference:      fmt.Sprintf("user-%d", req.UserID),
	})
	if errMarshal != nil {
		return nil, fmt.Errorf("payments: marshal authorize: %w", errMarshal)
	}

	httpReq, errReq := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/checkouts", bytes.NewReader(body))
	if errReq != nil {
		return nil, fmt.Errorf("payments: build request: %w", errReq)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, errDo := g.httpClient.Do(httpReq)
	if errDo != nil {
		if isTimeout(ctx, errDo) {
			return nil, apperrors.Wrap(apperrors.KindGatewayTimeout, errDo, "gateway did not respond")
		}
		return nil, apperrors.Wrap(apperrors.KindGatewayTimeout, errDo, "gateway unreachable")
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("payments: close gateway response")
		}
	}()

	raw, errRead := io.ReadAll(io.LimitReader(resp.Body, maxGatewayBody))
	if errRead != nil {
		if isTimeout(ctx, errRead) {
			return nil, apperrors.Wrap(apperrors.KindGatewayTimeout, errRead, "gateway did not respond")
		}
		return nil, apperrors.Wrap(apperrors.KindGatewayDeclined, errRead, "gateway response unreadable")
	}

	var parsed authorizeResponse
	if errUnmarshal := json.Unmarshal(raw, &parsed); errUnmarshal != nil || parsed.StatusCode == "" {
		return &AuthorizeResult{
			StatusCode:        fmt.Sprintf("http_%d", resp.StatusCode),
			StatusDescription: http.StatusText(resp.StatusCode),
			RequestPayload:    body,
			ResponsePayload:   sanitizePayload(raw),
		}, nil
	}
	return &AuthorizeResult{
		CheckoutID:        parsed.CheckoutID,
		PaymentID:         parsed.PaymentID,
		StatusCode:        parsed.StatusCode,
		StatusDescription: parsed.StatusDescription,
		RequestPayload:    body,
		ResponsePayload:   raw,
	}, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || (ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// sanitizePayload keeps non-JSON bodies storable in a JSON column.
func sanitizePayload(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return raw
	}
	wrapped, errMarshal := json.Marshal(map[string]string{"raw": string(raw)})
	if errMarshal != nil {
		return nil
	}
	return wrapped
}
