// Package objectstore は S3 互換オブジェクトストレージ（MinIO）へのアクセスを提供します。
package objectstore

import (
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds connection settings for the object store.
type Config struct {
	Endpoint  string `env:"ENDPOINT" envDefault:"http://minio:9000"` // URL or host:port; an https scheme enables TLS
	AccessKey string `env:"ACCESS_KEY" envDefault:"minio"`
	SecretKey string `env:"SECRET_KEY" envDefault:"minio123"`
	Region    string `env:"REGION"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
	Bucket    string `env:"BUCKET" envDefault:"stock-market"` // Bucket shared by every stage
}

// LoadConfig loads object store configuration from MINIO_* environment variables.
func LoadConfig() (Config, error) {
	return env.ParseAsWithOptions[Config](env.Options{Prefix: "MINIO_"})
}

// normalizeEndpoint strips the URL scheme the SDK does not accept and reports whether TLS is required.
func normalizeEndpoint(endpoint string, useSSL bool) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), useSSL
	default:
		return strings.TrimSuffix(endpoint, "/"), useSSL
	}
}
