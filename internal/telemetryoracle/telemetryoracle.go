// Package telemetryoracle queries observed telemetry uptake for a
// product/channel pair, implementing readiness.UptakeFetcher.
package telemetryoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mozilla-releng/balrogagent/internal/apperrors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Oracle queries a telemetry service's /uptake endpoint.
type Oracle struct {
	baseURL    string
	httpClient *http.Client
}

// New builds an Oracle against baseURL.
func New(baseURL string) *Oracle {
	return &Oracle{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
	}
}

type uptakeResponse struct {
	Uptake float64 `json:"uptake"`
}

// Fetch implements readiness.UptakeFetcher, querying
// /uptake?product=&channel= and returning the observed fraction. Any
// failure comes back as a PredicateError, which the readiness oracle
// degrades to "not ready" rather than aborting the cycle.
func (o *Oracle) Fetch(ctx context.Context, product, channel string) (float64, error) {
	endpoint := fmt.Sprintf("/uptake?product=%s&channel=%s", url.QueryEscape(product), url.QueryEscape(channel))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+endpoint, nil)
	if err != nil {
		return 0, apperrors.NewPredicateError("build uptake request", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, apperrors.NewPredicateError("do uptake request", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, apperrors.NewPredicateError("uptake request", endpoint, fmt.Errorf("status %d", resp.StatusCode))
	}

	var body uptakeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, apperrors.NewPredicateError("decode uptake response", endpoint, err)
	}
	return body.Uptake, nil
}
