package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LoopPeriod time.Duration `envconfig:"LOOP_PERIOD" default:"30s"`

	// Wall-clock triggers in market time (HH:MM, Asia/Kolkata).
	SessionCloseAt string `envconfig:"SQUAREOFF_SESSION_CLOSE" default:"15:20"`
	MidnightPassAt string `envconfig:"SQUAREOFF_MIDNIGHT_PASS" default:"00:05"`

	BatchSize int `envconfig:"SQUAREOFF_BATCH_SIZE" default:"1000"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
