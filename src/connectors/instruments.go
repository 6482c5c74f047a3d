package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// Instrument is the resolver's view of a tradable contract. Kind is the
// typed classification (EQUITY, FUTURE, OPTION); when empty the symbol
// suffix heuristic decides option handling downstream.
type Instrument struct {
	TradableID string     `json:"tradable_id"`
	Symbol     string     `json:"symbol"`
	Segment    string     `json:"segment"`
	LotSize    int        `json:"lot_size"`
	TickSize   float64    `json:"tick_size"`
	Kind       string     `json:"kind,omitempty"`
	Expiry     *time.Time `json:"expiry,omitempty"`
}

// InstrumentClient resolves symbols or tokens to tradable contracts via the
// reference-data service.
type InstrumentClient struct {
	http *resty.Client
}

// NewInstrumentClient creates a client against the configured resolver base URL.
func NewInstrumentClient(baseURL string, timeout time.Duration, retryCount int) *InstrumentClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(200 * time.Millisecond)

	return &InstrumentClient{http: client}
}

// NewInstrumentClientFromConfig creates a client from environment configuration.
func NewInstrumentClientFromConfig() *InstrumentClient {
	config := GetConfig()
	return NewInstrumentClient(config.InstrumentBaseURL, config.HTTPTimeout, config.RetryCount)
}

// Resolve looks up a tradable contract by symbol or token.
func (c *InstrumentClient) Resolve(ctx context.Context, symbolOrToken string) (*Instrument, error) {

	logger.WithFields(map[string]interface{}{
		"connector": "InstrumentClient",
		"op":        "Resolve",
		"ref":       symbolOrToken,
	}).Debug("Resolving instrument")

	var out Instrument

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/instruments/" + symbolOrToken)

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"connector": "InstrumentClient",
			"op":        "Resolve",
			"ref":       symbolOrToken,
		}).WithError(err).Error("Failed to resolve instrument")

		return nil, err
	}

	if resp.StatusCode() == 404 {
		return nil, nil
	}

	if resp.IsError() {
		return nil, fmt.Errorf("instrument resolver returned status %d for %s", resp.StatusCode(), symbolOrToken)
	}

	return &out, nil
}
