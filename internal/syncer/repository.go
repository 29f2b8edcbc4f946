// Package syncer はフィード一覧とローカルストアの同期を調整する。
//
// 同期は常に単一走行で、実行中の同期がある間に届いた要求は
// その完了に合流する（強制指定でも新しい同期は始まらない）。
// 個別フィードの失敗は呼び出し側へ伝播せず、ログとメトリクスにのみ残る。
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/castman/internal/database"
	"github.com/hitoshi/castman/internal/feed"
	"github.com/hitoshi/castman/internal/metrics"
	"github.com/hitoshi/castman/internal/store"
)

// FeedFetcher はフィード一覧の並列フェッチのインターフェース。
type FeedFetcher interface {
	FetchAll(ctx context.Context, urls []string) <-chan feed.Response
}

// Repository はポッドキャストストアの同期コーディネーター。
type Repository struct {
	db         *database.DB
	podcasts   store.PodcastStore
	episodes   store.EpisodeStore
	categories store.CategoryStore
	fetcher    FeedFetcher
	collector  metrics.MetricsCollector
	logger     *slog.Logger
	feedURLs   []string

	mu      sync.Mutex
	running chan struct{} // 実行中の同期の完了チャネル。未実行時はnil
}

// NewRepository はRepositoryの新しいインスタンスを生成する。
func NewRepository(
	db *database.DB,
	podcasts store.PodcastStore,
	episodes store.EpisodeStore,
	categories store.CategoryStore,
	fetcher FeedFetcher,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	feedURLs []string,
) *Repository {
	return &Repository{
		db:         db,
		podcasts:   podcasts,
		episodes:   episodes,
		categories: categories,
		fetcher:    fetcher,
		collector:  collector,
		logger:     logger,
		feedURLs:   feedURLs,
	}
}

// UpdatePodcasts はフィード一覧との同期を要求する。
//
//   - 実行中の同期がある場合: その完了を待って返る（forceでも新規起動しない）。
//   - 実行中でなく、forceまたはストアが空の場合: 同期を起動して完了を待つ。
//   - それ以外: 何もせず即座に返る。
//
// 起動判定と実行ハンドルの記録は1回のロック区間で行い、
// 同時呼び出しが二重に同期を起動することはない。
// 返り値はコンテキスト起因のエラーのみで、個別フィードの失敗は含まれない。
func (r *Repository) UpdatePodcasts(ctx context.Context, force bool) error {
	r.mu.Lock()

	if r.running != nil {
		done := r.running
		r.mu.Unlock()
		r.collector.RecordRefreshCoalesced()
		r.logger.Info("実行中の同期に合流します")
		return r.wait(ctx, done)
	}

	need := force
	if !need {
		empty, err := r.podcasts.IsEmpty(ctx)
		if err != nil {
			r.mu.Unlock()
			return err
		}
		need = empty
	}
	if !need {
		r.mu.Unlock()
		return nil
	}

	done := make(chan struct{})
	r.running = done
	r.mu.Unlock()

	go func() {
		defer func() {
			// ハンドルは成否にかかわらず必ずクリアする
			r.mu.Lock()
			r.running = nil
			r.mu.Unlock()
			close(done)
		}()
		// 要求元のキャンセルで同期自体は中断しない。
		// 合流している他の呼び出しが結果を待っているためである
		r.refresh(context.WithoutCancel(ctx))
	}()

	return r.wait(ctx, done)
}

// wait は同期の完了またはコンテキストのキャンセルを待つ。
func (r *Repository) wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refresh は設定された全フィードをフェッチし、成功分をストアへ取り込む。
func (r *Repository) refresh(ctx context.Context) {
	jobID := uuid.NewString()
	start := time.Now()
	r.collector.RecordRefreshRun()

	r.logger.Info("同期を開始します",
		slog.String("job_id", jobID),
		slog.Int("feed_count", len(r.feedURLs)),
	)

	var merged, failed int
	for resp := range r.fetcher.FetchAll(ctx, r.feedURLs) {
		if resp.Err != nil {
			// 個別フィードの失敗は同期全体を止めない
			failed++
			r.logger.Warn("フィードの取り込みをスキップします",
				slog.String("job_id", jobID),
				slog.String("feed_url", resp.URL),
				slog.String("error", resp.Err.Error()),
			)
			continue
		}

		if err := r.merge(ctx, resp.Parsed); err != nil {
			failed++
			r.logger.Error("フィードのマージに失敗しました",
				slog.String("job_id", jobID),
				slog.String("feed_url", resp.URL),
				slog.String("error", err.Error()),
			)
			continue
		}
		merged++
	}

	r.logger.Info("同期が完了しました",
		slog.String("job_id", jobID),
		slog.Int("merged", merged),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}

// merge は1フィードの解析結果を1トランザクションで取り込む。
// フィードごとのトランザクションは独立しており、
// 失敗したマージは自分のフィード分だけをロールバックする。
func (r *Repository) merge(ctx context.Context, parsed *feed.Parsed) error {
	var inserted int

	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := r.podcasts.AddPodcast(ctx, tx, &parsed.Podcast); err != nil {
			return err
		}

		n, err := r.episodes.AddEpisodes(ctx, tx, parsed.Episodes)
		if err != nil {
			return err
		}
		inserted = n

		for _, category := range parsed.Categories {
			id, err := r.categories.AddCategory(ctx, tx, category)
			if err != nil {
				return err
			}
			if err := r.categories.AddPodcastToCategory(ctx, tx, parsed.Podcast.URI, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.collector.RecordEpisodesInserted(inserted)
	return nil
}
