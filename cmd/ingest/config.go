package ingest

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	CacheFile string `envconfig:"COT_CACHE_FILE" default:"data/cot/cache.json"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
