package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// MarketFeedClient fetches last-traded prices from the market data service.
// Calls carry a bounded timeout; a failed or zero quote is reported to the
// caller, which degrades to the order's last known price.
type MarketFeedClient struct {
	http *resty.Client
}

type ltpResponse struct {
	InstrumentToken string  `json:"instrument_token"`
	LTP             float64 `json:"ltp"`
	Error           string  `json:"error,omitempty"`
}

// NewMarketFeedClient creates a client against the configured feed base URL.
func NewMarketFeedClient(baseURL string, timeout time.Duration, retryCount int) *MarketFeedClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(200 * time.Millisecond)

	return &MarketFeedClient{http: client}
}

// NewMarketFeedClientFromConfig creates a client from environment configuration.
func NewMarketFeedClientFromConfig() *MarketFeedClient {
	config := GetConfig()
	return NewMarketFeedClient(config.MarketFeedBaseURL, config.HTTPTimeout, config.RetryCount)
}

// GetLastPrice returns the last traded price for the instrument token.
// A zero price with nil error means the feed had no quote.
func (c *MarketFeedClient) GetLastPrice(ctx context.Context, instrumentToken string) (float64, error) {

	logger.WithFields(map[string]interface{}{
		"connector": "MarketFeedClient",
		"op":        "GetLastPrice",
		"token":     instrumentToken,
	}).Debug("Fetching last traded price")

	var out ltpResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/ltp/" + instrumentToken)

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"connector": "MarketFeedClient",
			"op":        "GetLastPrice",
			"token":     instrumentToken,
		}).WithError(err).Error("Failed to fetch last traded price")

		return 0, err
	}

	if resp.IsError() {
		return 0, fmt.Errorf("market feed returned status %d for token %s", resp.StatusCode(), instrumentToken)
	}

	if out.Error != "" {
		return 0, fmt.Errorf("market feed error for token %s: %s", instrumentToken, out.Error)
	}

	return out.LTP, nil
}
