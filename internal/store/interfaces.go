// Package store はポッドキャスト・エピソード・カテゴリの永続化層を提供する。
//
// 読み取りは一回限りのクエリとリアクティブクエリ（Watch*）の両方を公開する。
// Watch*は現在の結果を即座に1回送信し、以降は依存テーブルの変更のたびに
// 再クエリした結果を送信するチャネルを返す。
// 書き込みはinsert-or-ignoreセマンティクス（自然キー衝突時は何もしない）で、
// 同一フィードの再同期を冪等にする。
// ストア層自体はロックを持たず、原子性はdatabase.DBのWithTxに委譲する。
package store

import (
	"context"

	"github.com/hitoshi/castman/internal/database"
	"github.com/hitoshi/castman/internal/model"
)

// PodcastStore はポッドキャストとフォロー状態の永続化インターフェース。
type PodcastStore interface {
	// PodcastWithURI は指定URIのポッドキャストを取得する。見つからない場合はnilを返す。
	PodcastWithURI(ctx context.Context, uri string) (*model.Podcast, error)

	// PodcastWithExtraInfo は最新エピソード日時とフォロー状態付きで取得する。
	// 見つからない場合はnilを返す。
	PodcastWithExtraInfo(ctx context.Context, uri string) (*model.PodcastWithExtraInfo, error)

	// PodcastsSortedByLastEpisode は最新エピソードの新しい順に一覧を返す。
	// limitが0以下の場合は全件を返す。
	PodcastsSortedByLastEpisode(ctx context.Context, limit int) ([]model.PodcastWithExtraInfo, error)

	// FollowedPodcastsSortedByLastEpisode はフォロー中のみを最新エピソード順に返す。
	FollowedPodcastsSortedByLastEpisode(ctx context.Context, limit int) ([]model.PodcastWithExtraInfo, error)

	// SearchPodcastByTitle はタイトルの部分一致検索を行う。
	SearchPodcastByTitle(ctx context.Context, keyword string, limit int) ([]model.PodcastWithExtraInfo, error)

	// SearchPodcastByTitleAndCategories はタイトル部分一致に加えて
	// 指定カテゴリへの所属で絞り込む。
	SearchPodcastByTitleAndCategories(ctx context.Context, keyword string, categories []model.Category, limit int) ([]model.PodcastWithExtraInfo, error)

	// WatchPodcastWithURI は指定URIのポッドキャストのリアクティブクエリ。
	WatchPodcastWithURI(ctx context.Context, uri string) <-chan model.Podcast

	// WatchPodcastsSortedByLastEpisode は一覧のリアクティブクエリ。
	WatchPodcastsSortedByLastEpisode(ctx context.Context, limit int) <-chan []model.PodcastWithExtraInfo

	// WatchFollowedPodcastsSortedByLastEpisode はフォロー中一覧のリアクティブクエリ。
	WatchFollowedPodcastsSortedByLastEpisode(ctx context.Context, limit int) <-chan []model.PodcastWithExtraInfo

	// AddPodcast はポッドキャストを挿入する。URI衝突時は何もしない。
	AddPodcast(ctx context.Context, q database.Querier, podcast *model.Podcast) error

	// FollowPodcast はフォロー行を挿入する。すでにフォロー中の場合は何もしない。
	FollowPodcast(ctx context.Context, podcastURI string) error

	// UnfollowPodcast はフォロー行を削除する。
	UnfollowPodcast(ctx context.Context, podcastURI string) error

	// TogglePodcastFollowed はフォロー状態をトランザクション内で反転する。
	TogglePodcastFollowed(ctx context.Context, podcastURI string) error

	// IsPodcastFollowed はフォロー行の存在を返す。
	IsPodcastFollowed(ctx context.Context, podcastURI string) (bool, error)

	// IsEmpty は総行数が0かどうかを返す。初回同期のトリガー判定に使用する。
	IsEmpty(ctx context.Context) (bool, error)
}

// EpisodeStore はエピソードの永続化インターフェース。
type EpisodeStore interface {
	// EpisodeWithURI は指定URIのエピソードを取得する。見つからない場合はnilを返す。
	EpisodeWithURI(ctx context.Context, uri string) (*model.Episode, error)

	// EpisodeAndPodcastWithURI はエピソードと所属ポッドキャストをJOINして取得する。
	EpisodeAndPodcastWithURI(ctx context.Context, uri string) (*model.EpisodeToPodcast, error)

	// EpisodesInPodcast は指定ポッドキャストのエピソードを公開日時の新しい順に返す。
	EpisodesInPodcast(ctx context.Context, podcastURI string, limit int) ([]model.EpisodeToPodcast, error)

	// EpisodesInPodcasts は複数ポッドキャストのエピソードを公開日時の新しい順に返す。
	EpisodesInPodcasts(ctx context.Context, podcastURIs []string, limit int) ([]model.EpisodeToPodcast, error)

	// WatchEpisodesInPodcast はEpisodesInPodcastのリアクティブクエリ。
	WatchEpisodesInPodcast(ctx context.Context, podcastURI string, limit int) <-chan []model.EpisodeToPodcast

	// AddEpisodes はエピソードを一括挿入する。URI衝突行はスキップされる。
	// 実際に挿入された行数を返す。
	AddEpisodes(ctx context.Context, q database.Querier, episodes []model.Episode) (int, error)

	// IsEmpty は総行数が0かどうかを返す。
	IsEmpty(ctx context.Context) (bool, error)
}

// CategoryStore はカテゴリと対応行の永続化インターフェース。
type CategoryStore interface {
	// CategoriesSortedByPodcastCount は所属ポッドキャスト数の多い順にカテゴリを返す。
	CategoriesSortedByPodcastCount(ctx context.Context, limit int) ([]model.Category, error)

	// WatchCategoriesSortedByPodcastCount は上記のリアクティブクエリ。
	WatchCategoriesSortedByPodcastCount(ctx context.Context, limit int) <-chan []model.Category

	// PodcastsInCategorySortedByLastEpisode はカテゴリ内のポッドキャストを
	// 最新エピソード順に返す。
	PodcastsInCategorySortedByLastEpisode(ctx context.Context, categoryID int64, limit int) ([]model.PodcastWithExtraInfo, error)

	// EpisodesFromPodcastsInCategory はカテゴリ内ポッドキャストのエピソードを
	// 公開日時の新しい順に返す。
	EpisodesFromPodcastsInCategory(ctx context.Context, categoryID int64, limit int) ([]model.EpisodeToPodcast, error)

	// AddCategory はカテゴリを冪等に追加する。
	// 同名カテゴリが存在する場合は挿入せず既存のIDを返す。
	AddCategory(ctx context.Context, q database.Querier, category model.Category) (int64, error)

	// AddPodcastToCategory は対応行を挿入する。ペア衝突時は何もしない。
	AddPodcastToCategory(ctx context.Context, q database.Querier, podcastURI string, categoryID int64) error

	// GetCategory は名前でカテゴリを取得する。見つからない場合はnilを返す。
	GetCategory(ctx context.Context, name string) (*model.Category, error)

	// IsEmpty は総行数が0かどうかを返す。
	IsEmpty(ctx context.Context) (bool, error)
}
