package domain

import (
	"fmt"
	"strings"
)

// Object key convention shared by the store stage, the reformatting job and
// the locator. Every key lives under the symbol's own prefix.
const (
	RawPricesFile      = "prices.json"
	FormattedPricesDir = "formatted_prices"
	FormattedSuffix    = ".csv"

	warehouseScheme = "s3://"
)

// RawPricesKey returns the key of a symbol's raw payload, e.g. "NVDA/prices.json".
func RawPricesKey(symbol string) string {
	return symbol + "/" + RawPricesFile
}

// FormattedPricesPrefix returns the prefix the reformatting job writes under,
// e.g. "NVDA/formatted_prices/".
func FormattedPricesPrefix(symbol string) string {
	return symbol + "/" + FormattedPricesDir + "/"
}

// IsFormattedPricesKey reports whether key is a columnar artifact for symbol.
func IsFormattedPricesKey(symbol, key string) bool {
	return strings.HasPrefix(key, FormattedPricesPrefix(symbol)) && strings.HasSuffix(key, FormattedSuffix)
}

// Locator returns the coarse "{bucket}/{symbol}" handoff value.
func Locator(bucket, symbol string) string {
	return bucket + "/" + symbol
}

// ParseLocator splits a "{bucket}/{symbol}" locator.
func ParseLocator(loc string) (bucket, symbol string, err error) {
	parts := strings.Split(strings.TrimSpace(loc), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: locator %q", ErrInvalidHandoff, loc)
	}
	return parts[0], parts[1], nil
}

// WarehouseSource returns the "s3://{bucket}/{key}" address the loader reads from.
func WarehouseSource(bucket, key string) string {
	return warehouseScheme + bucket + "/" + key
}

// ParseWarehouseSource splits an "s3://{bucket}/{key}" address.
func ParseWarehouseSource(src string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(src, warehouseScheme)
	if !ok {
		return "", "", fmt.Errorf("%w: source %q is not an s3 address", ErrInvalidHandoff, src)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: source %q", ErrInvalidHandoff, src)
	}
	return bucket, key, nil
}
