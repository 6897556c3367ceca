package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"stock_pipeline/internal/feature/pipeline/domain"
)

const payloadContentType = "application/json"

// ObjectStore はオブジェクトストレージへのアクセスを抽象化します。
type ObjectStore interface {
	// EnsureBucket はバケットが存在しなければ作成します。既存のバケットはエラーになりません。
	EnsureBucket(ctx context.Context, bucket string) error
	// PutObject はキーのオブジェクトを丸ごと上書きします。
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
	// ListObjects はプレフィックス配下のキーをバックエンドのネイティブ順で返します。
	ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]string, error)
	// GetObject はオブジェクトの内容を返します。呼び出し側でCloseしてください。
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// QuoteStore は取得した生データを解析し、オブジェクトストレージに保存するユースケースです。
type QuoteStore struct {
	objects ObjectStore
	bucket  string
}

// NewQuoteStore は新しい QuoteStore を作成します。
func NewQuoteStore(objects ObjectStore, bucket string) *QuoteStore {
	return &QuoteStore{objects: objects, bucket: bucket}
}

// Store は生データを {symbol}/prices.json として保存し、"{bucket}/{symbol}" を返します。
// バケットの作成はペイロードの検証より先に行います。
func (s *QuoteStore) Store(ctx context.Context, raw string) (string, error) {
	if err := s.objects.EnsureBucket(ctx, s.bucket); err != nil {
		return "", fmt.Errorf("ensure bucket %s: %w", s.bucket, err)
	}

	payload, err := domain.ParseQuotePayload([]byte(raw))
	if err != nil {
		return "", err
	}
	symbol, err := payload.Symbol()
	if err != nil {
		return "", err
	}

	data, err := payload.Encode()
	if err != nil {
		return "", err
	}

	key := domain.RawPricesKey(symbol)
	if err := s.objects.PutObject(ctx, s.bucket, key, data, payloadContentType); err != nil {
		return "", fmt.Errorf("put %s/%s: %w", s.bucket, key, err)
	}
	slog.Info("stored raw prices", "bucket", s.bucket, "key", key, "bytes", len(data))

	return domain.Locator(s.bucket, symbol), nil
}
