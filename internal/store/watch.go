package store

import (
	"context"
	"log/slog"

	"github.com/hitoshi/castman/internal/database"
)

// テーブル名定数。Watch*の依存登録と書き込み時のInvalidateで共有する。
const (
	tablePodcasts        = "podcasts"
	tableEpisodes        = "episodes"
	tableCategories      = "categories"
	tableCategoryEntries = "podcast_category_entries"
	tableFollowedEntries = "podcast_followed_entries"
)

// watch はリアクティブクエリの共通実装。
// 現在の結果を即座に1回送信し、以降はtablesのいずれかが変更されるたびに
// queryを再実行して結果を送信する。ctxのキャンセルでチャネルを閉じる。
// クエリエラーは送信をスキップしてログに記録する（購読は継続する）。
func watch[T any](ctx context.Context, db *database.DB, tables []string, query func(context.Context) (T, error)) <-chan T {
	out := make(chan T, 1)
	sub := db.Notifier().Subscribe(tables...)

	go func() {
		defer close(out)
		defer sub.Close()

		for {
			result, err := query(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("リアクティブクエリの再実行に失敗しました",
					slog.String("error", err.Error()),
				)
			} else {
				select {
				case out <- result:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-sub.C():
			}
		}
	}()

	return out
}

// normalizeLimit は0以下のlimitをSQLiteの「無制限」(-1)に変換する。
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
