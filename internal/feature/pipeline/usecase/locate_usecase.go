package usecase

import (
	"context"
	"fmt"

	"stock_pipeline/internal/feature/pipeline/domain"
)

// FormattedLocator finds the columnar artifact the reformatting job produced.
type FormattedLocator struct {
	objects ObjectStore
	bucket  string
}

// NewFormattedLocator creates a FormattedLocator bound to the shared bucket.
func NewFormattedLocator(objects ObjectStore, bucket string) *FormattedLocator {
	return &FormattedLocator{objects: objects, bucket: bucket}
}

// Locate returns the first key under "{symbol}/formatted_prices/" ending in ".csv".
// "First" is the object store's native listing order, which is not assumed to
// be sorted. When nothing matches it fails with domain.ErrNotFound.
func (l *FormattedLocator) Locate(ctx context.Context, locator string) (string, error) {
	bucket, symbol, err := domain.ParseLocator(locator)
	if err != nil {
		return "", err
	}
	if bucket != l.bucket {
		return "", fmt.Errorf("%w: locator bucket %q, expected %q", domain.ErrInvalidHandoff, bucket, l.bucket)
	}

	prefix := domain.FormattedPricesPrefix(symbol)
	keys, err := l.objects.ListObjects(ctx, l.bucket, prefix, true)
	if err != nil {
		return "", fmt.Errorf("list %s/%s: %w", l.bucket, prefix, err)
	}
	for _, k := range keys {
		if domain.IsFormattedPricesKey(symbol, k) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: no formatted prices found in %s", domain.ErrNotFound, prefix)
}
