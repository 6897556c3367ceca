package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"stock_pipeline/internal/feature/pipeline/usecase"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

//go:generate mockgen -source=gateway.go -destination=mock_client_test.go -package=objectstore

// Client is the subset of the MinIO SDK the gateway uses.
type Client interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
}

// sdkClient adapts *minio.Client to Client. GetObject stats the object so that
// a missing key fails at open time instead of on first read.
type sdkClient struct {
	*minio.Client
}

func (c sdkClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := c.Client.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}
	return obj, nil
}

// Gateway はオブジェクトストレージへのアクセスをパイプラインのステージに提供します。
type Gateway struct {
	client Client
}

// GatewayがObjectStoreを実装していることをコンパイル時に検証します。
var _ usecase.ObjectStore = (*Gateway)(nil)

// NewGateway は任意の Client から Gateway を作成します。
func NewGateway(client Client) *Gateway {
	return &Gateway{client: client}
}

// New は設定から MinIO クライアントを作成し、Gateway を返します。
func New(cfg Config) (*Gateway, error) {
	endpoint, secure := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client for %s: %w", endpoint, err)
	}
	slog.Info("object store configured", "endpoint", endpoint, "secure", secure)
	return NewGateway(sdkClient{mc}), nil
}

// EnsureBucket はバケットが存在しなければ作成します。何度呼んでも安全です。
func (g *Gateway) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := g.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := g.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		// another run may have created it between the check and the create
		switch minio.ToErrorResponse(err).Code {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return nil
		}
		return fmt.Errorf("make bucket %s: %w", bucket, err)
	}
	slog.Info("bucket created", "bucket", bucket)
	return nil
}

// PutObject はオブジェクトを書き込みます。既存のキーは上書きされます。
func (g *Gateway) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := g.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// ListObjects は prefix 配下のキーをバックエンドが返す順序のまま返します。
func (g *Gateway) ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	// stops the SDK's listing goroutine if we return early
	defer cancel()

	var keys []string
	for obj := range g.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: recursive}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// GetObject はオブジェクトの読み取りストリームを返します。呼び出し側で Close してください。
func (g *Gateway) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	rc, err := g.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return rc, nil
}
