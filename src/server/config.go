package server

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`
	// FetchSchedule is a cron expression for the weekly report refresh.
	// Defaults to Fridays at 15:31, right after release confirmation.
	FetchSchedule string `envconfig:"FETCH_SCHEDULE" default:"31 15 * * FRI"`
	CacheFile     string `envconfig:"COT_CACHE_FILE" default:"data/cot/cache.json"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
