// Command token はオペレーターAPI用のJWTを発行します。
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"stock_pipeline/internal/config"
	jwtmw "stock_pipeline/internal/platform/jwt"
)

func main() {
	operator := flag.String("operator", "", "operator name recorded as the token subject")
	ttl := flag.Duration("ttl", 0, "token lifetime (default: JWT_EXPIRATION)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	expiration := cfg.JWT.Expiration
	if *ttl > 0 {
		expiration = *ttl
	}

	token, err := jwtmw.NewGenerator(cfg.JWT.Secret, expiration).GenerateToken(*operator)
	if err != nil {
		slog.Error("failed to issue token", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
