package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MarketFeedBaseURL string        `envconfig:"MARKET_FEED_BASE_URL" default:"http://localhost:9101"`
	InstrumentBaseURL string        `envconfig:"INSTRUMENT_BASE_URL" default:"http://localhost:9102"`
	FeedWSURL         string        `envconfig:"FEED_WS_URL" default:"ws://localhost:9103/ticks"`
	HTTPTimeout       time.Duration `envconfig:"CONNECTOR_HTTP_TIMEOUT" default:"5s"`
	RetryCount        int           `envconfig:"CONNECTOR_RETRY_COUNT" default:"2"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
