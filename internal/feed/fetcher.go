package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/castman/internal/metrics"
)

// defaultMaxStale はフェッチ時にキャッシュへ許容する陳腐化期間の既定値（8時間）。
// 中継キャッシュがある環境で同一フィードへの実リクエストを抑える。
const defaultMaxStale = 8 * time.Hour

// Response は1フィードのフェッチ結果。
// 成功時はParsedが、失敗時はErrが設定される。
// あるURLの失敗が他のURLの結果に影響することはない。
type Response struct {
	URL    string
	Parsed *Parsed
	Err    error
}

// Guard はフェッチ先URLの検証とSSRF防止クライアントの生成インターフェース。
type Guard interface {
	SafeClient(timeout time.Duration) *http.Client
	CheckURL(rawURL string) error
}

// Fetcher は複数フィードの並列フェッチと解析を行う。
// semaphoreパターンで最大並列数を制御し、共有レートリミッタで
// リクエスト頻度を抑える。結果は完了順にチャネルへ送出される。
type Fetcher struct {
	client         *http.Client
	guard          Guard
	parser         *Parser
	limiter        *rate.Limiter
	collector      metrics.MetricsCollector
	logger         *slog.Logger
	maxConcurrency int
	maxBodySize    int64
	maxStale       time.Duration
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
// requestsPerSecondが0以下の場合はレート制限を行わない。
// maxStaleが0以下の場合はデフォルト値8時間を使用する。
func NewFetcher(
	guard Guard,
	parser *Parser,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
	maxConcurrency int,
	requestsPerSecond float64,
	maxStale time.Duration,
) *Fetcher {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	if maxStale <= 0 {
		maxStale = defaultMaxStale
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Fetcher{
		client:         guard.SafeClient(timeout),
		guard:          guard,
		parser:         parser,
		limiter:        rate.NewLimiter(limit, 1),
		collector:      collector,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		maxBodySize:    maxBodySize,
		maxStale:       maxStale,
	}
}

// FetchAll は指定された全URLを並列にフェッチし、結果を完了順に送出する
// チャネルを返す。チャネルはURL数ぶんの結果を送出したあと閉じられる。
// コンテキストのキャンセルは進行中のリクエストに伝播する。
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) <-chan Response {
	results := make(chan Response, len(urls))

	go func() {
		defer close(results)

		// semaphoreパターンで並列数を制御
		sem := make(chan struct{}, f.maxConcurrency)
		var wg sync.WaitGroup

		for _, url := range urls {
			wg.Add(1)
			sem <- struct{}{} // semaphore取得（ブロック）

			go func(url string) {
				defer wg.Done()
				defer func() { <-sem }() // semaphore解放

				results <- f.fetchOne(ctx, url)
			}(url)
		}

		wg.Wait()
	}()

	return results
}

// fetchOne は1フィードをフェッチして解析する。
// 失敗はResponse.Errに格納して返し、他のフィードには波及させない。
func (f *Fetcher) fetchOne(ctx context.Context, url string) Response {
	if err := f.limiter.Wait(ctx); err != nil {
		return Response{URL: url, Err: fmt.Errorf("レート制限の待機が中断されました: %w", err)}
	}

	// SSRF検証
	if err := f.guard.CheckURL(url); err != nil {
		f.logger.Error("SSRF検証に失敗しました",
			slog.String("feed_url", url),
			slog.String("error", err.Error()),
		)
		f.collector.RecordFetchFailure(url, "ssrf")
		return Response{URL: url, Err: fmt.Errorf("SSRF検証に失敗しました: %w", err)}
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		f.collector.RecordFetchFailure(url, "request")
		return Response{URL: url, Err: fmt.Errorf("リクエスト作成に失敗しました: %w", err)}
	}

	req.Header.Set("User-Agent", "Castman/1.0 Podcast Sync")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	req.Header.Set("Cache-Control", fmt.Sprintf("max-stale=%d", int(f.maxStale.Seconds())))

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("feed_url", url),
			slog.String("error", err.Error()),
		)
		f.collector.RecordFetchFailure(url, "network")
		return Response{URL: url, Err: fmt.Errorf("HTTPリクエストに失敗しました: %w", err)}
	}
	defer resp.Body.Close()

	f.collector.RecordHTTPStatus(resp.StatusCode)
	f.collector.RecordFetchLatency(time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Warn("フィードフェッチが失敗ステータスを返しました",
			slog.String("feed_url", url),
			slog.Int("http_status", resp.StatusCode),
		)
		f.collector.RecordFetchFailure(url, "http_status")
		return Response{URL: url, Err: fmt.Errorf("HTTPステータス %d が返されました: %s", resp.StatusCode, url)}
	}

	// レスポンスボディを読み込み（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		f.collector.RecordFetchFailure(url, "body")
		return Response{URL: url, Err: fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)}
	}

	parsed, err := f.parser.Parse(body, url)
	if err != nil {
		f.logger.Error("フィードの解析に失敗しました",
			slog.String("feed_url", url),
			slog.String("error", err.Error()),
		)
		f.collector.RecordParseFailure(url)
		return Response{URL: url, Err: err}
	}

	f.collector.RecordFetchSuccess(url)
	f.logger.Info("フィードフェッチが完了しました",
		slog.String("feed_url", url),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("episode_count", len(parsed.Episodes)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return Response{URL: url, Parsed: parsed}
}
