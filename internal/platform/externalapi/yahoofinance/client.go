package yahoofinance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"stock_pipeline/internal/feature/pipeline/domain"
	"stock_pipeline/internal/feature/pipeline/usecase"
	"stock_pipeline/internal/platform/externalapi/yahoofinance/dto"
	"stock_pipeline/internal/shared/ratelimiter"
)

// maxBodyBytes bounds how much of a response is read. One year of daily data is well below it.
const maxBodyBytes = 16 << 20

// Client はYahoo Finance APIからヘルスチェックと株価データ取得を行います。
type Client struct {
	cfg     Config
	client  *http.Client
	limiter ratelimiter.RateLimiterInterface
}

// ClientがHealthProbeとQuoteFetcherを実装していることをコンパイル時に検証します。
var (
	_ usecase.HealthProbe  = (*Client)(nil)
	_ usecase.QuoteFetcher = (*Client)(nil)
)

// NewClient は指定された設定とHTTPクライアントで Client を生成します。
// limiter は同時に実行される全ての銘柄で共有されます。nil の場合は制限しません。
func NewClient(cfg Config, client *http.Client, limiter ratelimiter.RateLimiterInterface) *Client {
	return &Client{cfg: cfg, client: client, limiter: limiter}
}

// Probe はエンドポイントを1回呼び出し、finance.result が null かどうかを確認します。
// ネットワークエラーや解釈できない応答は ErrRequest としてラップされます。
func (c *Client) Probe(ctx context.Context) (usecase.ProbeResult, error) {
	u := c.cfg.HealthURL()
	res := usecase.ProbeResult{URL: u}

	body, status, err := c.get(ctx, u)
	if err != nil {
		return res, err
	}
	if status >= http.StatusInternalServerError {
		return res, fmt.Errorf("%w: health probe http %d", domain.ErrRequest, status)
	}

	var health dto.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return res, fmt.Errorf("%w: decode health response: %v", domain.ErrRequest, err)
	}
	if health.Finance != nil && !isNull(health.Finance.Result) {
		res.Degraded = true
	}
	return res, nil
}

// FetchQuotes は {baseURL}{symbol} から1年分の日足を取得し、chart.result[0] をJSON文字列で返します。
// リトライは行いません。再実行はスケジューラの責務です。
func (c *Client) FetchQuotes(ctx context.Context, baseURL, symbol string) (string, error) {
	q := url.Values{}
	q.Set("metrics", "high")
	q.Set("interval", "1d")
	q.Set("range", "1y")
	u := baseURL + url.PathEscape(symbol) + "?" + q.Encode()

	body, status, err := c.get(ctx, u)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("%w: yahoo finance http %d for %s", domain.ErrRequest, status, symbol)
	}

	var chart dto.ChartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return "", fmt.Errorf("%w: decode chart response: %v", domain.ErrRequest, err)
	}
	if chart.Chart == nil {
		return "", fmt.Errorf("%w: response has no chart object", domain.ErrRequest)
	}
	if chart.Chart.Error != nil {
		return "", fmt.Errorf("%w: yahoo finance: %s: %s", domain.ErrRequest, chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || isNull(chart.Chart.Result[0]) {
		return "", fmt.Errorf("%w: chart.result is empty for %s", domain.ErrRequest, symbol)
	}

	var out bytes.Buffer
	if err := json.Compact(&out, chart.Chart.Result[0]); err != nil {
		return "", fmt.Errorf("%w: compact result: %v", domain.ErrRequest, err)
	}
	return out.String(), nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
	}

	// リクエストオブジェクトを作成
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request: %v", domain.ErrRequest, err)
	}

	// リクエストを実行
	res, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrRequest, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, res.StatusCode, fmt.Errorf("%w: read body: %v", domain.ErrRequest, err)
	}
	return body, res.StatusCode, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
