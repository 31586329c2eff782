package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SocrataAppToken string `envconfig:"SOCRATA_APP_TOKEN" required:"true"`
	SocrataBaseURL  string `envconfig:"SOCRATA_BASE_URL" default:"https://publicreporting.cftc.gov/resource/6dca-aqww.json"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
