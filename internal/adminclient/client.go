// Package adminclient is the typed HTTP requester for the release
// management admin service: v1 class inventories and enacts, and the v2
// release inventory and aggregate enact.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mozilla-releng/balrogagent/internal/apperrors"
	"github.com/mozilla-releng/balrogagent/internal/config"
	"github.com/mozilla-releng/balrogagent/internal/resilience"
	"github.com/mozilla-releng/balrogagent/internal/scheduledchange"
	"github.com/mozilla-releng/balrogagent/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2/clientcredentials"
)

// Client is the admin-service collaborator the cycle driver depends on.
type Client interface {
	GetV1(ctx context.Context, cls scheduledchange.Class) (scheduledchange.Inventory, error)
	GetV2Releases(ctx context.Context) ([]scheduledchange.Release, error)
	Enact(ctx context.Context, endpoint string) error
}

// HTTPClient is the production Client implementation: an OAuth2
// client-credentials-authenticated, otelhttp-instrumented *http.Client
// wrapped with a circuit breaker and retry.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
	cb         *resilience.CircuitBreaker
	retry      *resilience.RetryConfig
	timeout    time.Duration
}

// New builds an HTTPClient authenticated via OAuth2 client credentials.
func New(cfg config.ClientCredentials, baseURL string, log logger.Logger) (*HTTPClient, error) {
	oauthCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	if cfg.Audience != "" {
		oauthCfg.EndpointParams = map[string][]string{"audience": {cfg.Audience}}
	}

	transport := otelhttp.NewTransport(oauthCfg.Client(context.Background()).Transport)

	metrics, err := resilience.NewOTelMetricsCollector()
	if err != nil {
		return nil, apperrors.NewFatalConfigError("build admin-service circuit breaker metrics", err)
	}

	cb, err := resilience.CreateCircuitBreaker("admin-service", resilience.Dependencies{Logger: log, Metrics: metrics})
	if err != nil {
		return nil, apperrors.NewFatalConfigError("build admin-service circuit breaker", err)
	}

	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		logger:  log,
		cb:      cb,
		retry:   resilience.DefaultRetryConfig(),
		timeout: 30 * time.Second,
	}, nil
}

// GetV1 fetches the scheduled-change inventory for one v1 class.
func (c *HTTPClient) GetV1(ctx context.Context, cls scheduledchange.Class) (scheduledchange.Inventory, error) {
	var inv scheduledchange.Inventory
	body, err := c.do(ctx, http.MethodGet, cls.Endpoint(), nil)
	if err != nil {
		return inv, err
	}
	if err := json.Unmarshal(body, &inv); err != nil {
		return inv, apperrors.NewStructuralError("decode "+cls.Endpoint(), "", err)
	}
	return inv, nil
}

// GetV2Releases fetches the v2 release inventory.
func (c *HTTPClient) GetV2Releases(ctx context.Context) ([]scheduledchange.Release, error) {
	body, err := c.do(ctx, http.MethodGet, "/v2/releases", nil)
	if err != nil {
		return nil, err
	}
	var inv scheduledchange.ReleaseInventory
	if err := json.Unmarshal(body, &inv); err != nil {
		return nil, apperrors.NewStructuralError("decode /v2/releases", "", err)
	}
	return inv.Releases, nil
}

// Enact dispatches a non-GET enactment request.
func (c *HTTPClient) Enact(ctx context.Context, endpoint string) error {
	_, err := c.do(ctx, http.MethodPost, endpoint, nil)
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	tracer := otel.Tracer("balrogagent/adminclient")
	ctx, span := tracer.Start(ctx, "adminclient."+method, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("endpoint", endpoint),
	))
	defer span.End()

	var result []byte
	err := resilience.RetryWithCircuitBreaker(ctx, c.retry, c.cb, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+endpoint, body)
		if err != nil {
			return apperrors.NewTransportError("build request", endpoint, err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			span.RecordError(err)
			return apperrors.NewTransportError("do request", endpoint, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			span.RecordError(err)
			return apperrors.NewTransportError("read response", endpoint, err)
		}

		if resp.StatusCode >= 400 {
			err := fmt.Errorf("admin service returned status %d: %s", resp.StatusCode, string(respBody))
			span.RecordError(err)
			span.SetStatus(codes.Error, "admin service error")
			return apperrors.NewTransportError("request", endpoint, err)
		}

		span.SetStatus(codes.Ok, "")
		result = respBody
		return nil
	})

	c.logger.Debug("admin service request", map[string]interface{}{
		"method":   method,
		"endpoint": endpoint,
		"error":    errString(err),
	})

	return result, err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
