// Package dockerjob runs the external reformatting job as a Docker container.
package dockerjob

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config describes the reformatting container and the Docker daemon that runs it.
type Config struct {
	DockerHost    string            `env:"DOCKER_HOST" envDefault:"tcp://docker-proxy:2375"` // Docker Engine API endpoint
	Image         string            `env:"IMAGE" envDefault:"airflow/stock-app"`
	ContainerName string            `env:"CONTAINER_NAME" envDefault:"stock_prices_formatter"` // Suffixed with the symbol so runs do not collide
	Network       string            `env:"NETWORK" envDefault:"stock_pipeline_net"`
	ArgsEnv       string            `env:"ARGS_ENV" envDefault:"SPARK_APPLICATION_ARGS"` // Container variable that carries the locator
	Env           map[string]string `env:"ENV"`                                          // Extra container environment
	TTY           bool              `env:"TTY" envDefault:"true"`
	Timeout       time.Duration     `env:"TIMEOUT" envDefault:"30m"` // Covers every Docker call of a run; 0 disables it
}

// LoadConfig loads job configuration from FORMATTER_* environment variables.
func LoadConfig() (Config, error) {
	return env.ParseAsWithOptions[Config](env.Options{Prefix: "FORMATTER_"})
}
