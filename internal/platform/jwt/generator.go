// Package jwtmw はオペレーターAPI用のJWT発行と検証ミドルウェアを提供します。
package jwtmw

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim of every token this service issues.
const Issuer = "stock-pipeline"

// Config holds the signing secret and token lifetime.
type Config struct {
	Secret     string        `env:"SECRET"`
	Expiration time.Duration `env:"EXPIRATION" envDefault:"24h"`
}

// LoadConfig loads JWT settings from JWT_* environment variables.
func LoadConfig() (Config, error) {
	return env.ParseAsWithOptions[Config](env.Options{Prefix: "JWT_"})
}

// Generator issues signed operator tokens.
type Generator struct {
	secret     []byte
	expiration time.Duration
}

// NewGenerator creates a new JWT generator with the provided secret and expiration duration.
func NewGenerator(secret string, expiration time.Duration) *Generator {
	return &Generator{
		secret:     []byte(secret),
		expiration: expiration,
	}
}

// GenerateToken creates a signed JWT token whose subject is the operator name.
func (g *Generator) GenerateToken(operator string) (string, error) {
	if len(g.secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	if operator == "" {
		return "", errors.New("operator name is empty")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": operator,
		"iss": Issuer,
		"exp": now.Add(g.expiration).Unix(),
		"iat": now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}
